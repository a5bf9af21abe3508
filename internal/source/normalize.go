package source

import (
	"regexp"
	"strings"

	"github.com/mr-tron/base58"

	"github.com/pumpfunds/copytrader/internal/model"
)

var walletPattern = regexp.MustCompile(`^[1-9A-HJ-NP-Za-km-z]{32,44}$`)

// IsWalletAddress 判断字符串是否为base58编码的32字节钱包地址
func IsWalletAddress(s string) bool {
	if len(s) < 30 || !walletPattern.MatchString(s) {
		return false
	}
	data, err := base58.Decode(s)
	return err == nil && len(data) == 32
}

// ExtractSourceWallet 从事件中解析发起swap的钱包地址。
// 优先级：source字段(为钱包形态时) > feePayer > description首token > accountData首账户。
func ExtractSourceWallet(e *model.SwapEvent) string {
	if IsWalletAddress(e.Source) {
		return e.Source
	}

	if e.FeePayer != "" {
		return e.FeePayer
	}

	// 增强描述形如 "<wallet> swapped X for Y"
	if fields := strings.Fields(e.Description); len(fields) > 0 && IsWalletAddress(fields[0]) {
		return fields[0]
	}

	if len(e.AccountData) > 0 {
		return e.AccountData[0].Account
	}
	return ""
}

// TradedTokenFor 找出swap中被交易的非SOL代币并判定方向。
// 第一笔非SOL转账决定交易代币；转入基金钱包为买入，否则为卖出。
// 纯SOL转账的事件返回nil。
func TradedTokenFor(e *model.SwapEvent, fundWallet string) *model.TradedToken {
	for _, transfer := range e.TokenTransfers {
		if transfer.Mint == "" || transfer.Mint == model.SolMint {
			continue
		}

		direction := model.DirectionSell
		if transfer.ToUserAccount == fundWallet {
			direction = model.DirectionBuy
		}
		return &model.TradedToken{
			Mint:      transfer.Mint,
			Symbol:    transfer.TokenSymbol,
			Amount:    transfer.TokenAmount,
			Direction: direction,
		}
	}
	return nil
}
