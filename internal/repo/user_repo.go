package repo

import (
	"github.com/pumpfunds/copytrader/internal/model"
	"gorm.io/gorm"
)

type UserRepo interface {
	// GetByID 按ID获取用户
	GetByID(userID string) (*model.User, error)
}

type userRepoImpl struct {
	db *gorm.DB
}

func NewUserRepo(db *gorm.DB) UserRepo {
	return &userRepoImpl{
		db: db,
	}
}

func (r *userRepoImpl) GetByID(userID string) (*model.User, error) {
	var user model.User
	err := r.db.Where("id = ?", userID).First(&user).Error
	if err != nil {
		return nil, err
	}
	return &user, nil
}
