package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Fund 被跟单的基金，可绑定多个链上钱包
type Fund struct {
	ID              string     `gorm:"column:id;primaryKey;type:varchar(64);comment:基金ID"`
	Name            string     `gorm:"column:name;type:varchar(128);not null;comment:基金名称"`
	WalletAddresses []string   `gorm:"column:wallet_addresses;serializer:json;comment:基金钱包地址列表"`
	CreatedAt       *time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt       *time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

func (*Fund) TableName() string {
	return "funds"
}

// HasWallet 判断钱包是否属于该基金
func (f *Fund) HasWallet(wallet string) bool {
	for _, w := range f.WalletAddresses {
		if w == wallet {
			return true
		}
	}
	return false
}

// Investment 用户对基金的跟单配置
type Investment struct {
	ID                     string          `gorm:"column:id;primaryKey;type:varchar(64);comment:跟单配置ID"`
	UserID                 string          `gorm:"column:user_id;type:varchar(64);index;not null;comment:用户ID"`
	FundID                 string          `gorm:"column:fund_id;type:varchar(64);index;not null;comment:基金ID"`
	AllocatedAmount        decimal.Decimal `gorm:"column:allocated_amount;type:decimal(32,9);not null;comment:分配SOL额度"`
	PurchaseSizePercentage decimal.Decimal `gorm:"column:purchase_size_percentage;type:decimal(8,4);not null;comment:单笔跟单比例(百分数)"`
	AutoApprove            bool            `gorm:"column:auto_approve;not null;default:0;comment:是否自动执行"`
	IsActive               bool            `gorm:"column:is_active;not null;default:1;comment:是否生效"`
	CreatedAt              *time.Time      `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt              *time.Time      `gorm:"column:updated_at;autoUpdateTime"`
}

func (*Investment) TableName() string {
	return "investments"
}

// TradeAmount 单笔跟单的SOL预算 = 分配额度 × 比例 / 100
func (i *Investment) TradeAmount() decimal.Decimal {
	return i.AllocatedAmount.Mul(i.PurchaseSizePercentage).Div(decimal.NewFromInt(100))
}

// User 跟单用户
type User struct {
	ID                string     `gorm:"column:id;primaryKey;type:varchar(64);comment:用户ID"`
	WalletAddress     string     `gorm:"column:wallet_address;type:varchar(128);not null;comment:用户钱包地址"`
	EncryptedSecret   string     `gorm:"column:encrypted_secret;type:text;comment:secretbox加密的私钥种子(base64)"`
	NotificationToken string     `gorm:"column:notification_token;type:varchar(256);comment:推送token"`
	CreatedAt         *time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt         *time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

func (*User) TableName() string {
	return "users"
}
