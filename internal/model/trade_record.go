package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// TradeRecord 跟单执行结果，只追加不更新
type TradeRecord struct {
	ID              uint64          `gorm:"column:id;primaryKey;autoIncrement;comment:主键"`
	UserID          string          `gorm:"column:user_id;type:varchar(64);index;not null;comment:用户ID"`
	FundID          string          `gorm:"column:fund_id;type:varchar(64);index;not null;comment:基金ID"`
	Direction       Direction       `gorm:"column:direction;type:varchar(8);not null;comment:buy/sell"`
	TokenMint       string          `gorm:"column:token_mint;type:varchar(128);not null;comment:交易代币mint"`
	TokenSymbol     string          `gorm:"column:token_symbol;type:varchar(32);default:'';comment:代币符号"`
	InputAmount     decimal.Decimal `gorm:"column:input_amount;type:decimal(32,9);not null;comment:投入数量"`
	OutputAmount    decimal.Decimal `gorm:"column:output_amount;type:decimal(32,9);not null;comment:获得数量"`
	Price           decimal.Decimal `gorm:"column:price;type:decimal(32,18);default:0;comment:成交均价"`
	Signature       string          `gorm:"column:signature;type:varchar(128);not null;comment:跟单交易签名或failed_标记"`
	SourceSignature string          `gorm:"column:source_signature;type:varchar(128);index;not null;comment:触发的源交易签名"`
	IsSuccess       bool            `gorm:"column:is_success;not null;comment:是否成功"`
	ErrorMessage    string          `gorm:"column:error_message;type:text;comment:失败原因"`
	Attempts        int             `gorm:"column:attempts;not null;default:1;comment:执行尝试次数"`
	DurationMs      int64           `gorm:"column:duration_ms;not null;default:0;comment:执行耗时(毫秒)"`
	CreatedAt       *time.Time      `gorm:"column:created_at;autoCreateTime"`
}

func (*TradeRecord) TableName() string {
	return "trade_records"
}
