package source

import (
	"bytes"
	"testing"

	"github.com/mr-tron/base58"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pumpfunds/copytrader/internal/model"
)

// testWallet 生成确定性的合法钱包地址
func testWallet(b byte) string {
	return base58.Encode(bytes.Repeat([]byte{b}, 32))
}

func TestIsWalletAddress(t *testing.T) {
	assert.True(t, IsWalletAddress(testWallet(1)))
	assert.True(t, IsWalletAddress(model.SolMint))

	// 数据源平台标记不是钱包
	assert.False(t, IsWalletAddress("JUPITER"))
	assert.False(t, IsWalletAddress("RAYDIUM"))
	assert.False(t, IsWalletAddress(""))
	// 含非base58字符
	assert.False(t, IsWalletAddress("0OIl"+testWallet(1)[4:]))
	// base58合法但不是32字节
	assert.False(t, IsWalletAddress(base58.Encode(bytes.Repeat([]byte{1}, 20))))
}

func TestExtractSourceWallet(t *testing.T) {
	wallet := testWallet(2)
	feePayer := testWallet(3)

	t.Run("source field wins when wallet shaped", func(t *testing.T) {
		e := &model.SwapEvent{Source: wallet, FeePayer: feePayer}
		assert.Equal(t, wallet, ExtractSourceWallet(e))
	})

	t.Run("platform source falls back to fee payer", func(t *testing.T) {
		e := &model.SwapEvent{Source: "JUPITER", FeePayer: feePayer}
		assert.Equal(t, feePayer, ExtractSourceWallet(e))
	})

	t.Run("description first token", func(t *testing.T) {
		e := &model.SwapEvent{
			Source:      "RAYDIUM",
			Description: wallet + " swapped 1 SOL for 1000 BONK",
		}
		assert.Equal(t, wallet, ExtractSourceWallet(e))
	})

	t.Run("account data as last resort", func(t *testing.T) {
		e := &model.SwapEvent{
			AccountData: []model.AccountData{{Account: wallet}, {Account: feePayer}},
		}
		assert.Equal(t, wallet, ExtractSourceWallet(e))
	})

	t.Run("nothing usable", func(t *testing.T) {
		assert.Equal(t, "", ExtractSourceWallet(&model.SwapEvent{Source: "PUMP_FUN"}))
	})
}

func TestTradedTokenFor(t *testing.T) {
	fundWallet := testWallet(4)
	mint := testWallet(5)

	t.Run("buy when token flows to fund wallet", func(t *testing.T) {
		e := &model.SwapEvent{
			TokenTransfers: []model.TokenTransfer{
				{Mint: model.SolMint, FromUserAccount: fundWallet},
				{Mint: mint, TokenSymbol: "BONK", ToUserAccount: fundWallet, TokenAmount: decimal.NewFromInt(1000)},
			},
		}
		token := TradedTokenFor(e, fundWallet)
		require.NotNil(t, token)
		assert.Equal(t, mint, token.Mint)
		assert.Equal(t, "BONK", token.Symbol)
		assert.Equal(t, model.DirectionBuy, token.Direction)
	})

	t.Run("sell when token flows away", func(t *testing.T) {
		e := &model.SwapEvent{
			TokenTransfers: []model.TokenTransfer{
				{Mint: mint, FromUserAccount: fundWallet, ToUserAccount: testWallet(6)},
			},
		}
		token := TradedTokenFor(e, fundWallet)
		require.NotNil(t, token)
		assert.Equal(t, model.DirectionSell, token.Direction)
	})

	t.Run("first non sol transfer decides", func(t *testing.T) {
		other := testWallet(7)
		e := &model.SwapEvent{
			TokenTransfers: []model.TokenTransfer{
				{Mint: mint, ToUserAccount: fundWallet},
				{Mint: other, FromUserAccount: fundWallet},
			},
		}
		token := TradedTokenFor(e, fundWallet)
		require.NotNil(t, token)
		assert.Equal(t, mint, token.Mint)
		assert.Equal(t, model.DirectionBuy, token.Direction)
	})

	t.Run("sol only event yields nothing", func(t *testing.T) {
		e := &model.SwapEvent{
			TokenTransfers: []model.TokenTransfer{
				{Mint: model.SolMint, ToUserAccount: fundWallet},
			},
		}
		assert.Nil(t, TradedTokenFor(e, fundWallet))
	})
}
