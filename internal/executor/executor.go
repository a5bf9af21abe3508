package executor

import (
	"context"
	"fmt"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/pumpfunds/copytrader/internal/chain"
	"github.com/pumpfunds/copytrader/internal/model"
	"github.com/pumpfunds/copytrader/internal/repo"
	"github.com/pumpfunds/copytrader/internal/router"
	"github.com/pumpfunds/copytrader/pkg/logger"
	"github.com/pumpfunds/copytrader/pkg/secretbox"
)

const (
	maxAttempts = 3

	baseBackoff = 200 * time.Millisecond
	maxBackoff  = 1000 * time.Millisecond

	// 买入需预留的gas与租金缓冲
	buyBufferLamports = 3_000_000
	// 卖出仅需手续费缓冲
	sellMinFeeLamports = 1_000_000

	lamportsPerSol = 1_000_000_000
)

// Notifier 执行结果通知，实现方必须保证不阻塞、不上抛错误
type Notifier interface {
	NotifyTradeExecuted(user *model.User, record *model.TradeRecord)
	NotifyTradeFailed(user *model.User, record *model.TradeRecord)
}

// TradePublisher 跟单记录外发(审计流)，可为nil
type TradePublisher interface {
	PublishTradeRecord(record *model.TradeRecord)
}

// ChainClient 链上余额查询与交易提交，*chain.Client实现
type ChainClient interface {
	Balance(ctx context.Context, owner solana.PublicKey) (uint64, error)
	TokenBalance(ctx context.Context, owner solana.PublicKey, mint solana.PublicKey) (uint64, error)
	SignSerialized(txBase64 string, signer solana.PrivateKey) (*solana.Transaction, error)
	Submit(ctx context.Context, tx *solana.Transaction) (solana.Signature, error)
	Confirm(ctx context.Context, sig solana.Signature) error
}

// SwapRouter 报价与swap交易构建，*router.Client实现
type SwapRouter interface {
	Quote(ctx context.Context, inputMint, outputMint string, amount uint64) (*router.Quote, error)
	BuildSwap(ctx context.Context, quote *router.Quote, userPublicKey string) (string, error)
}

// TradeExecutor 单笔跟单执行器。
// 状态机：校验 → 报价 → 构建 → 签名 → 提交 → 确认。
// 校验失败静默跳过；报价之后的失败按指数退避重试，重试不回到校验。
type TradeExecutor struct {
	userRepo  repo.UserRepo
	tradeRepo repo.TradeRepo
	chain     ChainClient
	router    SwapRouter
	notifier  Notifier
	publisher TradePublisher
	secretKey *[secretbox.KeySize]byte
}

func New(
	userRepo repo.UserRepo,
	tradeRepo repo.TradeRepo,
	chainClient ChainClient,
	routerClient SwapRouter,
	notifier Notifier,
	secretKey *[secretbox.KeySize]byte,
) *TradeExecutor {
	return &TradeExecutor{
		userRepo:  userRepo,
		tradeRepo: tradeRepo,
		chain:     chainClient,
		router:    routerClient,
		notifier:  notifier,
		secretKey: secretKey,
	}
}

// SetTradePublisher 配置可选的跟单记录外发
func (e *TradeExecutor) SetTradePublisher(p TradePublisher) {
	e.publisher = p
}

// plan 校验通过后的执行计划
type plan struct {
	user       *model.User
	signer     solana.PrivateKey
	inputMint  string
	outputMint string
	amount     uint64 // 输入代币最小单位
}

// Execute 执行一笔跟单。每次完整执行至多落一条记录；校验跳过不落记录。
func (e *TradeExecutor) Execute(
	ctx context.Context,
	fund *model.Fund,
	investment *model.Investment,
	event *model.SwapEvent,
	token *model.TradedToken,
) {
	start := time.Now()

	p, err := e.validate(ctx, investment, token)
	if err != nil {
		if IsSkip(err) {
			logger.Info("⏭️ 跳过跟单",
				logger.String("user_id", investment.UserID),
				logger.String("fund_id", investment.FundID),
				logger.String("signature", event.Signature),
				logger.String("reason", err.Error()))
		} else {
			logger.Error("跟单校验失败",
				logger.String("user_id", investment.UserID),
				logger.String("fund_id", investment.FundID),
				logger.FieldErr(err))
		}
		return
	}

	logger.Info("🎯 开始执行跟单",
		logger.String("user_id", investment.UserID),
		logger.String("fund_id", investment.FundID),
		logger.String("direction", string(token.Direction)),
		logger.String("token", token.Mint),
		logger.Uint64("amount", p.amount))

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		sig, quote, err := e.attempt(ctx, p)
		if err == nil {
			e.recordSuccess(p, investment, event, token, quote, sig, attempt, start)
			return
		}

		lastErr = err
		logger.Warn("⚠️ 跟单执行失败",
			logger.String("user_id", investment.UserID),
			logger.String("signature", event.Signature),
			logger.Int("attempt", attempt),
			logger.FieldErr(err))

		if attempt < maxAttempts {
			backoff := baseBackoff << (attempt - 1)
			if backoff > maxBackoff {
				backoff = maxBackoff
			}
			select {
			case <-ctx.Done():
				e.recordFailure(p, investment, event, token, ctx.Err(), attempt, start)
				return
			case <-time.After(backoff):
			}
		}
	}

	e.recordFailure(p, investment, event, token, lastErr, maxAttempts, start)
}

// validate 校验用户、密钥与余额，并换算输入数量
func (e *TradeExecutor) validate(ctx context.Context, investment *model.Investment, token *model.TradedToken) (*plan, error) {
	user, err := e.userRepo.GetByID(investment.UserID)
	if err != nil {
		return nil, skip("用户不存在: %s", investment.UserID)
	}
	if user.EncryptedSecret == "" {
		return nil, skip("用户未托管私钥: %s", investment.UserID)
	}

	seed, err := secretbox.Decrypt(user.EncryptedSecret, e.secretKey)
	if err != nil {
		return nil, errors.Wrap(err, "decrypt user secret")
	}
	signer, err := chain.KeypairFromSeed(string(seed))
	if err != nil {
		return nil, errors.Wrap(err, "derive keypair")
	}

	balance, err := e.chain.Balance(ctx, signer.PublicKey())
	if err != nil {
		return nil, errors.Wrap(err, "query balance")
	}

	p := &plan{user: user, signer: signer}

	switch token.Direction {
	case model.DirectionBuy:
		tradeAmount := investment.TradeAmount()
		lamports := tradeAmount.Mul(decimal.NewFromInt(lamportsPerSol)).IntPart()
		if lamports <= 0 {
			return nil, skip("跟单额度为零")
		}
		required := uint64(lamports) + buyBufferLamports
		if balance < required {
			return nil, skip("SOL余额不足: balance=%d required=%d", balance, required)
		}
		p.inputMint = model.SolMint
		p.outputMint = token.Mint
		p.amount = uint64(lamports)

	case model.DirectionSell:
		mintPub, err := solana.PublicKeyFromBase58(token.Mint)
		if err != nil {
			return nil, errors.Wrapf(err, "parse mint %s", token.Mint)
		}
		tokenBalance, err := e.chain.TokenBalance(ctx, signer.PublicKey(), mintPub)
		if err != nil {
			return nil, errors.Wrap(err, "query token balance")
		}
		if tokenBalance == 0 {
			return nil, skip("用户未持有代币: %s", token.Mint)
		}
		sellAmount := decimal.NewFromUint64(tokenBalance).
			Mul(investment.PurchaseSizePercentage).
			Div(decimal.NewFromInt(100)).
			IntPart()
		if sellAmount <= 0 {
			return nil, skip("卖出数量为零")
		}
		if balance < sellMinFeeLamports {
			return nil, skip("SOL余额不足以支付手续费: balance=%d", balance)
		}
		p.inputMint = token.Mint
		p.outputMint = model.SolMint
		p.amount = uint64(sellAmount)

	default:
		return nil, skip("未知方向: %s", token.Direction)
	}

	return p, nil
}

// attempt 报价→构建→签名→提交→确认
func (e *TradeExecutor) attempt(ctx context.Context, p *plan) (solana.Signature, *router.Quote, error) {
	quote, err := e.router.Quote(ctx, p.inputMint, p.outputMint, p.amount)
	if err != nil {
		return solana.Signature{}, nil, err
	}

	txBase64, err := e.router.BuildSwap(ctx, quote, p.signer.PublicKey().String())
	if err != nil {
		return solana.Signature{}, nil, err
	}

	tx, err := e.chain.SignSerialized(txBase64, p.signer)
	if err != nil {
		return solana.Signature{}, nil, err
	}

	sig, err := e.chain.Submit(ctx, tx)
	if err != nil {
		return solana.Signature{}, nil, err
	}

	if err := e.chain.Confirm(ctx, sig); err != nil {
		return solana.Signature{}, nil, err
	}
	return sig, quote, nil
}

func (e *TradeExecutor) recordSuccess(
	p *plan,
	investment *model.Investment,
	event *model.SwapEvent,
	token *model.TradedToken,
	quote *router.Quote,
	sig solana.Signature,
	attempts int,
	start time.Time,
) {
	inAmount := lamportsToDecimal(quote.InAmount)
	outAmount := lamportsToDecimal(quote.OutAmount)

	var price decimal.Decimal
	if token.Direction == model.DirectionBuy {
		if !outAmount.IsZero() {
			price = inAmount.Div(outAmount)
		}
	} else {
		if !inAmount.IsZero() {
			price = outAmount.Div(inAmount)
		}
	}

	record := &model.TradeRecord{
		UserID:          investment.UserID,
		FundID:          investment.FundID,
		Direction:       token.Direction,
		TokenMint:       token.Mint,
		TokenSymbol:     token.Symbol,
		InputAmount:     inAmount,
		OutputAmount:    outAmount,
		Price:           price,
		Signature:       sig.String(),
		SourceSignature: event.Signature,
		IsSuccess:       true,
		Attempts:        attempts,
		DurationMs:      time.Since(start).Milliseconds(),
	}
	if err := e.tradeRepo.Append(record); err != nil {
		logger.Error("写入跟单记录失败",
			logger.String("user_id", investment.UserID),
			logger.String("signature", record.Signature),
			logger.FieldErr(err))
	}

	logger.Info("✅ 跟单执行成功",
		logger.String("user_id", investment.UserID),
		logger.String("fund_id", investment.FundID),
		logger.String("direction", string(token.Direction)),
		logger.String("signature", record.Signature),
		logger.String("input_amount", inAmount.String()),
		logger.String("output_amount", outAmount.String()),
		logger.Int("attempts", attempts),
		logger.Int64("duration_ms", record.DurationMs))

	e.notifier.NotifyTradeExecuted(p.user, record)
	if e.publisher != nil {
		e.publisher.PublishTradeRecord(record)
	}
}

func (e *TradeExecutor) recordFailure(
	p *plan,
	investment *model.Investment,
	event *model.SwapEvent,
	token *model.TradedToken,
	lastErr error,
	attempts int,
	start time.Time,
) {
	errMsg := ""
	if lastErr != nil {
		errMsg = lastErr.Error()
	}

	record := &model.TradeRecord{
		UserID:          investment.UserID,
		FundID:          investment.FundID,
		Direction:       token.Direction,
		TokenMint:       token.Mint,
		TokenSymbol:     token.Symbol,
		InputAmount:     decimal.Zero,
		OutputAmount:    decimal.Zero,
		Price:           decimal.Zero,
		Signature:       fmt.Sprintf("failed_%d", time.Now().UnixMilli()),
		SourceSignature: event.Signature,
		IsSuccess:       false,
		ErrorMessage:    errMsg,
		Attempts:        attempts,
		DurationMs:      time.Since(start).Milliseconds(),
	}
	if err := e.tradeRepo.Append(record); err != nil {
		logger.Error("写入失败跟单记录失败",
			logger.String("user_id", investment.UserID),
			logger.FieldErr(err))
	}

	logger.Error("❌ 跟单最终失败",
		logger.String("user_id", investment.UserID),
		logger.String("fund_id", investment.FundID),
		logger.String("source_signature", event.Signature),
		logger.Int("attempts", attempts),
		logger.FieldErr(lastErr))

	e.notifier.NotifyTradeFailed(p.user, record)
	if e.publisher != nil {
		e.publisher.PublishTradeRecord(record)
	}
}

// lamportsToDecimal 报价接口返回最小单位字符串，按1e9换算
func lamportsToDecimal(raw string) decimal.Decimal {
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero
	}
	return d.Div(decimal.NewFromInt(lamportsPerSol))
}
