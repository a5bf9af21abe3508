package repo

import (
	"github.com/pumpfunds/copytrader/internal/model"
	"gorm.io/gorm"
)

type FundRepo interface {
	// GetAll 获取全部基金
	GetAll() ([]*model.Fund, error)

	// GetByID 按ID获取基金
	GetByID(fundID string) (*model.Fund, error)

	// GetByWallet 获取包含指定钱包地址的全部基金
	GetByWallet(wallet string) ([]*model.Fund, error)
}

type fundRepoImpl struct {
	db *gorm.DB
}

func NewFundRepo(db *gorm.DB) FundRepo {
	return &fundRepoImpl{
		db: db,
	}
}

func (r *fundRepoImpl) GetAll() ([]*model.Fund, error) {
	var funds []*model.Fund
	err := r.db.Find(&funds).Error
	return funds, err
}

func (r *fundRepoImpl) GetByID(fundID string) (*model.Fund, error) {
	var fund model.Fund
	err := r.db.Where("id = ?", fundID).First(&fund).Error
	if err != nil {
		return nil, err
	}
	return &fund, nil
}

// GetByWallet 共享钱包可能命中多个基金，全部返回
func (r *fundRepoImpl) GetByWallet(wallet string) ([]*model.Fund, error) {
	all, err := r.GetAll()
	if err != nil {
		return nil, err
	}

	var matched []*model.Fund
	for _, fund := range all {
		if fund.HasWallet(wallet) {
			matched = append(matched, fund)
		}
	}
	return matched, nil
}
