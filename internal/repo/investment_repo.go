package repo

import (
	"github.com/pumpfunds/copytrader/internal/model"
	"gorm.io/gorm"
)

type InvestmentRepo interface {
	// GetByFund 获取基金下全部跟单配置（含未生效的，由上层过滤）
	GetByFund(fundID string) ([]*model.Investment, error)

	// GetByUserAndFund 获取用户对指定基金的跟单配置
	GetByUserAndFund(userID, fundID string) (*model.Investment, error)

	// CountActiveByFund 统计基金下生效中的跟单数量
	CountActiveByFund(fundID string) (int64, error)

	// Upsert 创建或更新跟单配置
	Upsert(inv *model.Investment) error

	// Deactivate 停用跟单配置
	Deactivate(userID, fundID string) error
}

type investmentRepoImpl struct {
	db *gorm.DB
}

func NewInvestmentRepo(db *gorm.DB) InvestmentRepo {
	return &investmentRepoImpl{
		db: db,
	}
}

func (r *investmentRepoImpl) GetByFund(fundID string) ([]*model.Investment, error) {
	var investments []*model.Investment
	err := r.db.
		Where("fund_id = ?", fundID).
		Find(&investments).Error
	return investments, err
}

func (r *investmentRepoImpl) GetByUserAndFund(userID, fundID string) (*model.Investment, error) {
	var inv model.Investment
	err := r.db.
		Where("user_id = ? AND fund_id = ?", userID, fundID).
		First(&inv).Error
	if err != nil {
		return nil, err
	}
	return &inv, nil
}

func (r *investmentRepoImpl) CountActiveByFund(fundID string) (int64, error) {
	var count int64
	err := r.db.Model(&model.Investment{}).
		Where("fund_id = ? AND is_active = 1", fundID).
		Count(&count).Error
	return count, err
}

func (r *investmentRepoImpl) Upsert(inv *model.Investment) error {
	return r.db.Save(inv).Error
}

func (r *investmentRepoImpl) Deactivate(userID, fundID string) error {
	return r.db.Model(&model.Investment{}).
		Where("user_id = ? AND fund_id = ?", userID, fundID).
		Update("is_active", false).Error
}
