package dispatcher

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/pumpfunds/copytrader/internal/dedup"
	"github.com/pumpfunds/copytrader/internal/executor"
	"github.com/pumpfunds/copytrader/internal/matcher"
	"github.com/pumpfunds/copytrader/internal/model"
	"github.com/pumpfunds/copytrader/internal/repo"
	"github.com/pumpfunds/copytrader/internal/source"
	"github.com/pumpfunds/copytrader/pkg/logger"
	"github.com/pumpfunds/copytrader/pkg/utils"
)

const defaultMaxWorkers = 32

// ApprovalNotifier 非自动跟单的确认提醒
type ApprovalNotifier interface {
	NotifyApprovalRequired(user *model.User, fundName string, token *model.TradedToken)
}

// Dispatcher 事件分发器：消费扇入后的swap事件流，
// 解析源钱包→匹配基金→逐跟单去重→派发执行。
// 执行在有界worker池上并发进行，不阻塞事件消费。
type Dispatcher struct {
	sourceManager *source.Manager
	fundMatcher   *matcher.FundMatcher
	gate          *dedup.Gate
	executor      *executor.TradeExecutor
	userRepo      repo.UserRepo
	approvals     ApprovalNotifier

	workerSem chan struct{}
	wg        sync.WaitGroup
	ctx       context.Context
	cancel    context.CancelFunc

	// 统计
	eventsProcessed int64
	tradesLaunched  int64
	errorsCount     int64
}

// New 创建事件分发器
func New(
	fundMatcher *matcher.FundMatcher,
	gate *dedup.Gate,
	tradeExecutor *executor.TradeExecutor,
	userRepo repo.UserRepo,
	approvals ApprovalNotifier,
	maxWorkers int,
) *Dispatcher {
	if maxWorkers <= 0 {
		maxWorkers = defaultMaxWorkers
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Dispatcher{
		sourceManager: source.NewManager(),
		fundMatcher:   fundMatcher,
		gate:          gate,
		executor:      tradeExecutor,
		userRepo:      userRepo,
		approvals:     approvals,
		workerSem:     make(chan struct{}, maxWorkers),
		ctx:           ctx,
		cancel:        cancel,
	}
}

// GetSourceManager 获取数据源管理器
func (d *Dispatcher) GetSourceManager() *source.Manager {
	return d.sourceManager
}

// Start 启动数据源与处理协程
func (d *Dispatcher) Start() error {
	logger.Info("启动事件分发器")

	if err := d.sourceManager.Start(); err != nil {
		return err
	}

	go d.processEvents()
	go d.processErrors()

	logger.Info("事件分发器已启动")
	return nil
}

// Stop 停止分发器，等待在途跟单执行完成
func (d *Dispatcher) Stop() error {
	logger.Info("停止事件分发器")

	if err := d.sourceManager.Stop(); err != nil {
		logger.Error("停止数据源管理器失败", logger.FieldErr(err))
	}

	d.cancel()
	d.wg.Wait()

	logger.Info("事件分发器已停止")
	return nil
}

// processEvents 消费swap事件流
func (d *Dispatcher) processEvents() {
	eventChan := d.sourceManager.Events()

	for {
		select {
		case <-d.ctx.Done():
			return
		case event, ok := <-eventChan:
			if !ok {
				return
			}
			atomic.AddInt64(&d.eventsProcessed, 1)
			d.handleEvent(event)
		}
	}
}

// processErrors 消费数据源错误流
func (d *Dispatcher) processErrors() {
	errorChan := d.sourceManager.Errors()

	for {
		select {
		case <-d.ctx.Done():
			return
		case err, ok := <-errorChan:
			if !ok {
				return
			}
			atomic.AddInt64(&d.errorsCount, 1)
			logger.Error("数据源错误", logger.FieldErr(err))
		}
	}
}

// handleEvent 处理单个swap事件
func (d *Dispatcher) handleEvent(event *model.SwapEvent) {
	sourceWallet := source.ExtractSourceWallet(event)
	if sourceWallet == "" {
		logger.Debug("无法解析源钱包，忽略事件",
			logger.String("signature", event.Signature))
		return
	}

	matches, err := d.fundMatcher.Match(sourceWallet)
	if err != nil {
		atomic.AddInt64(&d.errorsCount, 1)
		logger.Error("匹配基金失败",
			logger.String("wallet", sourceWallet),
			logger.FieldErr(err))
		return
	}
	if len(matches) == 0 {
		return
	}

	token := source.TradedTokenFor(event, sourceWallet)
	if token == nil {
		logger.Debug("事件不含非SOL代币转账，忽略",
			logger.String("signature", event.Signature))
		return
	}

	logger.Info("📥 收到基金swap事件",
		logger.String("signature", event.Signature),
		logger.String("wallet", sourceWallet),
		logger.String("direction", string(token.Direction)),
		logger.String("token", token.Mint),
		logger.Int("funds", len(matches)))

	for _, match := range matches {
		for _, investment := range match.Investments {
			if !investment.IsActive {
				continue
			}
			if !d.gate.TryAcquire(investment.UserID, investment.FundID, event.Signature) {
				logger.Debug("⏭️ 去重窗口内已处理，跳过",
					logger.String("user_id", investment.UserID),
					logger.String("fund_id", investment.FundID),
					logger.String("signature", event.Signature))
				continue
			}
			if !investment.AutoApprove {
				d.notifyApproval(match.Fund, investment, token)
				continue
			}
			d.launch(match.Fund, investment, event, token)
		}
	}
}

// launch 在worker池上派发一次跟单执行
func (d *Dispatcher) launch(fund *model.Fund, investment *model.Investment, event *model.SwapEvent, token *model.TradedToken) {
	atomic.AddInt64(&d.tradesLaunched, 1)
	d.wg.Add(1)

	go func() {
		defer d.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				atomic.AddInt64(&d.errorsCount, 1)
				logger.Error("跟单执行协程panic",
					logger.String("user_id", investment.UserID),
					logger.Any("panic", r),
					logger.FieldStack(utils.GetStack()))
			}
		}()

		select {
		case d.workerSem <- struct{}{}:
		case <-d.ctx.Done():
			return
		}
		defer func() { <-d.workerSem }()

		d.executor.Execute(d.ctx, fund, investment, event, token)
	}()
}

// notifyApproval 非自动执行跟单，提醒用户确认
func (d *Dispatcher) notifyApproval(fund *model.Fund, investment *model.Investment, token *model.TradedToken) {
	user, err := d.userRepo.GetByID(investment.UserID)
	if err != nil {
		logger.Debug("查询用户失败，跳过确认提醒",
			logger.String("user_id", investment.UserID))
		return
	}
	d.approvals.NotifyApprovalRequired(user, fund.Name, token)
}

// Stats 分发器统计信息
type Stats struct {
	EventsProcessed int64 `json:"events_processed"`
	TradesLaunched  int64 `json:"trades_launched"`
	ErrorsCount     int64 `json:"errors_count"`
}

// GetStats 获取统计信息
func (d *Dispatcher) GetStats() *Stats {
	return &Stats{
		EventsProcessed: atomic.LoadInt64(&d.eventsProcessed),
		TradesLaunched:  atomic.LoadInt64(&d.tradesLaunched),
		ErrorsCount:     atomic.LoadInt64(&d.errorsCount),
	}
}
