package repo

import (
	"github.com/pumpfunds/copytrader/internal/model"
	"gorm.io/gorm"
)

type TradeRepo interface {
	// Append 追加一条跟单执行记录
	Append(record *model.TradeRecord) error

	// GetByUser 获取用户最近的跟单记录
	GetByUser(userID string, limit int) ([]*model.TradeRecord, error)
}

type tradeRepoImpl struct {
	db *gorm.DB
}

func NewTradeRepo(db *gorm.DB) TradeRepo {
	return &tradeRepoImpl{
		db: db,
	}
}

func (r *tradeRepoImpl) Append(record *model.TradeRecord) error {
	return r.db.Create(record).Error
}

func (r *tradeRepoImpl) GetByUser(userID string, limit int) ([]*model.TradeRecord, error) {
	var records []*model.TradeRecord
	err := r.db.
		Where("user_id = ?", userID).
		Order("id DESC").
		Limit(limit).
		Find(&records).Error
	return records, err
}
