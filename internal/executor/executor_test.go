package executor

import (
	"bytes"
	"context"
	"encoding/hex"
	"fmt"
	"os"
	"strings"
	"sync"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/mr-tron/base58"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pumpfunds/copytrader/internal/model"
	"github.com/pumpfunds/copytrader/internal/router"
	"github.com/pumpfunds/copytrader/pkg/logger"
	"github.com/pumpfunds/copytrader/pkg/secretbox"
)

func TestMain(m *testing.M) {
	cfg := &logger.Config{Name: "test", Level: "error", Discard: true, DisableSentry: true, SentryLevel: "error"}
	l := cfg.Build()
	logger.SetDefault(l)
	logger.SetDefaultL1(l)
	os.Exit(m.Run())
}

// --- fakes ---

type fakeUserRepo struct {
	users map[string]*model.User
	calls int
}

func (f *fakeUserRepo) GetByID(userID string) (*model.User, error) {
	f.calls++
	if u, ok := f.users[userID]; ok {
		return u, nil
	}
	return nil, errors.New("record not found")
}

type fakeTradeRepo struct {
	mu      sync.Mutex
	records []*model.TradeRecord
}

func (f *fakeTradeRepo) Append(record *model.TradeRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.records = append(f.records, record)
	return nil
}

func (f *fakeTradeRepo) GetByUser(userID string, limit int) ([]*model.TradeRecord, error) {
	return f.records, nil
}

type fakeNotifier struct {
	executed int
	failed   int
}

func (f *fakeNotifier) NotifyTradeExecuted(user *model.User, record *model.TradeRecord) {
	f.executed++
}

func (f *fakeNotifier) NotifyTradeFailed(user *model.User, record *model.TradeRecord) {
	f.failed++
}

type fakeChain struct {
	balance      uint64
	tokenBalance uint64
	confirmErr   error
}

func (f *fakeChain) Balance(ctx context.Context, owner solana.PublicKey) (uint64, error) {
	return f.balance, nil
}

func (f *fakeChain) TokenBalance(ctx context.Context, owner solana.PublicKey, mint solana.PublicKey) (uint64, error) {
	return f.tokenBalance, nil
}

func (f *fakeChain) SignSerialized(txBase64 string, signer solana.PrivateKey) (*solana.Transaction, error) {
	return &solana.Transaction{}, nil
}

func (f *fakeChain) Submit(ctx context.Context, tx *solana.Transaction) (solana.Signature, error) {
	return solana.Signature{}, nil
}

func (f *fakeChain) Confirm(ctx context.Context, sig solana.Signature) error {
	return f.confirmErr
}

type fakeRouter struct {
	quoteFailures int
	quoteCalls    int
	lastInput     string
	lastOutput    string
	lastAmount    uint64
	inAmount      string
	outAmount     string
	onQuote       func()
}

func (f *fakeRouter) Quote(ctx context.Context, inputMint, outputMint string, amount uint64) (*router.Quote, error) {
	f.quoteCalls++
	if f.onQuote != nil {
		f.onQuote()
	}
	f.lastInput = inputMint
	f.lastOutput = outputMint
	f.lastAmount = amount
	if f.quoteCalls <= f.quoteFailures {
		return nil, errors.New("quote unavailable")
	}
	return &router.Quote{
		InputMint:  inputMint,
		OutputMint: outputMint,
		InAmount:   f.inAmount,
		OutAmount:  f.outAmount,
	}, nil
}

func (f *fakeRouter) BuildSwap(ctx context.Context, quote *router.Quote, userPublicKey string) (string, error) {
	return "dHg=", nil
}

// --- helpers ---

var testSecretKey = func() *[secretbox.KeySize]byte {
	var key [secretbox.KeySize]byte
	for i := range key {
		key[i] = byte(i + 1)
	}
	return &key
}()

func encryptedSeed(t *testing.T) string {
	t.Helper()
	seedHex := hex.EncodeToString(bytes.Repeat([]byte{7}, 32))
	var nonce [secretbox.NonceSize]byte
	nonce[0] = 9
	return secretbox.Encrypt([]byte(seedHex), &nonce, testSecretKey)
}

func testMint() string {
	return base58.Encode(bytes.Repeat([]byte{5}, 32))
}

func testSetup(t *testing.T, chainClient *fakeChain, routerClient *fakeRouter) (*TradeExecutor, *fakeUserRepo, *fakeTradeRepo, *fakeNotifier) {
	t.Helper()
	userRepo := &fakeUserRepo{users: map[string]*model.User{
		"user1": {ID: "user1", EncryptedSecret: encryptedSeed(t)},
	}}
	tradeRepo := &fakeTradeRepo{}
	notifier := &fakeNotifier{}
	exec := New(userRepo, tradeRepo, chainClient, routerClient, notifier, testSecretKey)
	return exec, userRepo, tradeRepo, notifier
}

func testInvestment(allocated, pct string) *model.Investment {
	return &model.Investment{
		ID:                     "inv1",
		UserID:                 "user1",
		FundID:                 "fund1",
		AllocatedAmount:        decimal.RequireFromString(allocated),
		PurchaseSizePercentage: decimal.RequireFromString(pct),
		AutoApprove:            true,
		IsActive:               true,
	}
}

// --- tests ---

func TestExecuteBuySuccess(t *testing.T) {
	chainClient := &fakeChain{balance: 10_000_000_000}
	routerClient := &fakeRouter{inAmount: "5000000000", outAmount: "1000000000"}
	exec, _, tradeRepo, notifier := testSetup(t, chainClient, routerClient)

	event := &model.SwapEvent{Signature: "src-sig"}
	token := &model.TradedToken{Mint: testMint(), Symbol: "BONK", Direction: model.DirectionBuy}

	exec.Execute(context.Background(), &model.Fund{ID: "fund1"}, testInvestment("10", "50"), event, token)

	// 10 SOL × 50% = 5 SOL投入
	assert.Equal(t, uint64(5_000_000_000), routerClient.lastAmount)
	assert.Equal(t, model.SolMint, routerClient.lastInput)
	assert.Equal(t, testMint(), routerClient.lastOutput)

	require.Len(t, tradeRepo.records, 1)
	record := tradeRepo.records[0]
	assert.True(t, record.IsSuccess)
	assert.Equal(t, 1, record.Attempts)
	assert.Equal(t, "src-sig", record.SourceSignature)
	assert.Equal(t, model.DirectionBuy, record.Direction)
	assert.True(t, record.InputAmount.Equal(decimal.NewFromInt(5)), "input %s", record.InputAmount)
	assert.True(t, record.OutputAmount.Equal(decimal.NewFromInt(1)), "output %s", record.OutputAmount)
	assert.True(t, record.Price.Equal(decimal.NewFromInt(5)), "price %s", record.Price)
	assert.Equal(t, 1, notifier.executed)
	assert.Equal(t, 0, notifier.failed)
}

func TestExecuteBuyInsufficientBalance(t *testing.T) {
	// 余额正好等于投入额，缺gas缓冲
	chainClient := &fakeChain{balance: 5_000_000_000}
	routerClient := &fakeRouter{inAmount: "1", outAmount: "1"}
	exec, _, tradeRepo, notifier := testSetup(t, chainClient, routerClient)

	event := &model.SwapEvent{Signature: "src-sig"}
	token := &model.TradedToken{Mint: testMint(), Direction: model.DirectionBuy}

	exec.Execute(context.Background(), &model.Fund{ID: "fund1"}, testInvestment("10", "50"), event, token)

	// 校验失败：不报价、不落记录、不通知
	assert.Equal(t, 0, routerClient.quoteCalls)
	assert.Empty(t, tradeRepo.records)
	assert.Equal(t, 0, notifier.failed)
}

func TestExecuteSellSizesFromTokenBalance(t *testing.T) {
	chainClient := &fakeChain{balance: 2_000_000, tokenBalance: 1000}
	routerClient := &fakeRouter{inAmount: "250", outAmount: "2000000000"}
	exec, _, tradeRepo, _ := testSetup(t, chainClient, routerClient)

	event := &model.SwapEvent{Signature: "src-sig"}
	token := &model.TradedToken{Mint: testMint(), Symbol: "BONK", Direction: model.DirectionSell}

	exec.Execute(context.Background(), &model.Fund{ID: "fund1"}, testInvestment("10", "25"), event, token)

	// 持仓1000 × 25% = 250，方向反转为token→SOL
	assert.Equal(t, uint64(250), routerClient.lastAmount)
	assert.Equal(t, testMint(), routerClient.lastInput)
	assert.Equal(t, model.SolMint, routerClient.lastOutput)

	require.Len(t, tradeRepo.records, 1)
	record := tradeRepo.records[0]
	assert.True(t, record.IsSuccess)
	assert.Equal(t, model.DirectionSell, record.Direction)
	// 卖出价 = SOL产出 / token投入
	expected := decimal.NewFromInt(2).Div(decimal.RequireFromString("250").Div(decimal.NewFromInt(1_000_000_000)))
	assert.True(t, record.Price.Equal(expected), "price %s", record.Price)
}

func TestExecuteSellSkipsWithoutHolding(t *testing.T) {
	chainClient := &fakeChain{balance: 2_000_000, tokenBalance: 0}
	routerClient := &fakeRouter{}
	exec, _, tradeRepo, _ := testSetup(t, chainClient, routerClient)

	event := &model.SwapEvent{Signature: "src-sig"}
	token := &model.TradedToken{Mint: testMint(), Direction: model.DirectionSell}

	exec.Execute(context.Background(), &model.Fund{ID: "fund1"}, testInvestment("10", "25"), event, token)

	assert.Equal(t, 0, routerClient.quoteCalls)
	assert.Empty(t, tradeRepo.records)
}

func TestExecuteSkipsUnknownUser(t *testing.T) {
	chainClient := &fakeChain{balance: 10_000_000_000}
	routerClient := &fakeRouter{}
	exec, userRepo, tradeRepo, _ := testSetup(t, chainClient, routerClient)
	delete(userRepo.users, "user1")

	event := &model.SwapEvent{Signature: "src-sig"}
	token := &model.TradedToken{Mint: testMint(), Direction: model.DirectionBuy}

	exec.Execute(context.Background(), &model.Fund{ID: "fund1"}, testInvestment("10", "50"), event, token)

	assert.Equal(t, 0, routerClient.quoteCalls)
	assert.Empty(t, tradeRepo.records)
}

func TestExecuteSkipsUserWithoutCustody(t *testing.T) {
	chainClient := &fakeChain{balance: 10_000_000_000}
	routerClient := &fakeRouter{}
	exec, userRepo, tradeRepo, _ := testSetup(t, chainClient, routerClient)
	userRepo.users["user1"].EncryptedSecret = ""

	event := &model.SwapEvent{Signature: "src-sig"}
	token := &model.TradedToken{Mint: testMint(), Direction: model.DirectionBuy}

	exec.Execute(context.Background(), &model.Fund{ID: "fund1"}, testInvestment("10", "50"), event, token)

	assert.Equal(t, 0, routerClient.quoteCalls)
	assert.Empty(t, tradeRepo.records)
}

func TestExecuteRetriesAndRecordsFailure(t *testing.T) {
	chainClient := &fakeChain{balance: 10_000_000_000}
	routerClient := &fakeRouter{quoteFailures: 100}
	exec, userRepo, tradeRepo, notifier := testSetup(t, chainClient, routerClient)

	event := &model.SwapEvent{Signature: "src-sig"}
	token := &model.TradedToken{Mint: testMint(), Symbol: "BONK", Direction: model.DirectionBuy}

	exec.Execute(context.Background(), &model.Fund{ID: "fund1"}, testInvestment("10", "50"), event, token)

	assert.Equal(t, maxAttempts, routerClient.quoteCalls)
	// 重试不回到校验阶段
	assert.Equal(t, 1, userRepo.calls)

	require.Len(t, tradeRepo.records, 1)
	record := tradeRepo.records[0]
	assert.False(t, record.IsSuccess)
	assert.Equal(t, maxAttempts, record.Attempts)
	assert.True(t, strings.HasPrefix(record.Signature, "failed_"), "signature %s", record.Signature)
	assert.Equal(t, "src-sig", record.SourceSignature)
	assert.True(t, record.InputAmount.IsZero())
	assert.True(t, record.OutputAmount.IsZero())
	assert.Contains(t, record.ErrorMessage, "quote unavailable")
	assert.Equal(t, 1, notifier.failed)
	assert.Equal(t, 0, notifier.executed)
}

func TestExecuteRecoversOnSecondAttempt(t *testing.T) {
	chainClient := &fakeChain{balance: 10_000_000_000}
	routerClient := &fakeRouter{quoteFailures: 1, inAmount: "5000000000", outAmount: "1000000000"}
	exec, _, tradeRepo, notifier := testSetup(t, chainClient, routerClient)

	event := &model.SwapEvent{Signature: "src-sig"}
	token := &model.TradedToken{Mint: testMint(), Symbol: "BONK", Direction: model.DirectionBuy}

	exec.Execute(context.Background(), &model.Fund{ID: "fund1"}, testInvestment("10", "50"), event, token)

	assert.Equal(t, 2, routerClient.quoteCalls)
	require.Len(t, tradeRepo.records, 1)
	assert.True(t, tradeRepo.records[0].IsSuccess)
	assert.Equal(t, 2, tradeRepo.records[0].Attempts)
	assert.Equal(t, 1, notifier.executed)
}

func TestExecuteCancelledDuringBackoff(t *testing.T) {
	chainClient := &fakeChain{balance: 10_000_000_000}
	routerClient := &fakeRouter{quoteFailures: 100}
	exec, _, tradeRepo, notifier := testSetup(t, chainClient, routerClient)

	ctx, cancel := context.WithCancel(context.Background())
	routerClient.onQuote = cancel

	event := &model.SwapEvent{Signature: "src-sig"}
	token := &model.TradedToken{Mint: testMint(), Symbol: "BONK", Direction: model.DirectionBuy}

	exec.Execute(ctx, &model.Fund{ID: "fund1"}, testInvestment("10", "50"), event, token)

	// 首次报价后上下文已取消，退避等待中止，不再重试
	assert.Equal(t, 1, routerClient.quoteCalls)

	require.Len(t, tradeRepo.records, 1)
	record := tradeRepo.records[0]
	assert.False(t, record.IsSuccess)
	// 记录实际尝试次数而非重试上限
	assert.Equal(t, 1, record.Attempts)
	assert.Contains(t, record.ErrorMessage, "context canceled")
	assert.Equal(t, 1, notifier.failed)
}

func TestBackoffCapped(t *testing.T) {
	for attempt := 1; attempt < maxAttempts; attempt++ {
		backoff := baseBackoff << (attempt - 1)
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
		assert.LessOrEqual(t, backoff, maxBackoff, fmt.Sprintf("attempt %d", attempt))
	}
}

func TestSkipError(t *testing.T) {
	err := skip("余额不足: %d", 42)
	assert.True(t, IsSkip(err))
	assert.Contains(t, err.Error(), "42")
	assert.False(t, IsSkip(errors.New("network down")))
}

func TestLamportsToDecimal(t *testing.T) {
	assert.True(t, lamportsToDecimal("1000000000").Equal(decimal.NewFromInt(1)))
	assert.True(t, lamportsToDecimal("1500000000").Equal(decimal.RequireFromString("1.5")))
	assert.True(t, lamportsToDecimal("garbage").IsZero())
}
