package model

import "time"

// MonitoredWallet 被轮询监控的基金钱包
type MonitoredWallet struct {
	Address string
	FundID  string

	// LastSignature 高水位：上次轮询看到的最新签名
	LastSignature string
	// LastPollAt 上次轮询时间，用于限制单钱包轮询频率
	LastPollAt time.Time
}
