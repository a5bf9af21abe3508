package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// SolMint SOL原生代币mint地址
const SolMint = "So11111111111111111111111111111111111111112"

// Direction 跟单方向
type Direction string

const (
	DirectionBuy  Direction = "buy"
	DirectionSell Direction = "sell"
)

// TokenTransfer 一笔swap内的代币转账
type TokenTransfer struct {
	Mint            string          `json:"mint"`
	TokenSymbol     string          `json:"tokenSymbol"`
	FromUserAccount string          `json:"fromUserAccount"`
	ToUserAccount   string          `json:"toUserAccount"`
	TokenAmount     decimal.Decimal `json:"tokenAmount"`
}

// AccountData 交易涉及的账户信息
type AccountData struct {
	Account string `json:"account"`
}

// SwapEvent 标准化后的swap事件，进入管道后不再修改
type SwapEvent struct {
	Signature      string          `json:"signature"`
	Type           string          `json:"type"`
	Description    string          `json:"description"`
	Source         string          `json:"source"`
	FeePayer       string          `json:"feePayer"`
	AccountData    []AccountData   `json:"accountData"`
	TokenTransfers []TokenTransfer `json:"tokenTransfers"`
	Timestamp      int64           `json:"timestamp"`
}

// TradedToken swap中被交易的非SOL代币，第一笔非SOL转账决定方向
type TradedToken struct {
	Mint      string
	Symbol    string
	Amount    decimal.Decimal
	Direction Direction
}

// ReceivedAt 事件链上时间
func (e *SwapEvent) ReceivedAt() time.Time {
	return time.Unix(e.Timestamp, 0)
}
