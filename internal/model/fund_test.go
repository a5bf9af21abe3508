package model

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestTradeAmount(t *testing.T) {
	tests := []struct {
		name      string
		allocated string
		pct       string
		want      string
	}{
		{"half of ten", "10", "50", "5"},
		{"quarter of thousand", "1000", "25", "250"},
		{"fractional percentage", "3", "33.3333", "0.999999"},
		{"full allocation", "1.5", "100", "1.5"},
		{"tiny allocation", "0.1", "10", "0.01"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			inv := &Investment{
				AllocatedAmount:        decimal.RequireFromString(tt.allocated),
				PurchaseSizePercentage: decimal.RequireFromString(tt.pct),
			}
			assert.True(t, inv.TradeAmount().Equal(decimal.RequireFromString(tt.want)),
				"got %s", inv.TradeAmount().String())
		})
	}
}

func TestHasWallet(t *testing.T) {
	fund := &Fund{
		ID:              "fund1",
		WalletAddresses: []string{"walletA", "walletB"},
	}

	assert.True(t, fund.HasWallet("walletA"))
	assert.True(t, fund.HasWallet("walletB"))
	assert.False(t, fund.HasWallet("walletC"))

	empty := &Fund{ID: "fund2"}
	assert.False(t, empty.HasWallet("walletA"))
}
