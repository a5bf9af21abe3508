package poller

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/pumpfunds/copytrader/internal/model"
	"github.com/pumpfunds/copytrader/pkg/logger"
)

// WalletSet 轮询数据源消费的监控钱包集合视图
type WalletSet interface {
	DueWallets(minInterval time.Duration) []*model.MonitoredWallet
	MarkPolled(address string)
	HighWater(address string) string
	AdvanceHighWater(address, signature string)
}

// ActivityFetcher 按钱包拉取最近swap活动
type ActivityFetcher interface {
	GetWalletTransactions(ctx context.Context, wallet string, limit int) ([]*model.SwapEvent, error)
}

// SourceConfig 轮询数据源配置
type SourceConfig struct {
	CycleInterval     time.Duration // 轮询周期
	MinWalletInterval time.Duration // 单钱包最小轮询间隔
	BatchSize         int           // 并发批大小
	BatchPause        time.Duration // 批间停顿
	FetchLimit        int           // 单次拉取交易数
}

// DefaultConfig 与推送通道互补的兜底轮询节奏
func DefaultConfig() SourceConfig {
	return SourceConfig{
		CycleInterval:     5 * time.Second,
		MinWalletInterval: 3 * time.Second,
		BatchSize:         5,
		BatchPause:        100 * time.Millisecond,
		FetchLimit:        3,
	}
}

// Source 轮询数据源，webhook推送失效时的兜底通道。
// 每个钱包维护签名高水位，只下发严格新于高水位的事件。
type Source struct {
	eventChan chan *model.SwapEvent
	errChan   chan error
	ctx       context.Context
	cancel    context.CancelFunc
	config    SourceConfig
	wallets   WalletSet
	fetcher   ActivityFetcher
	wg        sync.WaitGroup

	// 已下发签名集合，防止高水位推进前的重复下发
	processedMutex sync.Mutex
	processed      map[string]struct{}
}

// NewSource 创建轮询数据源
func NewSource(config SourceConfig, wallets WalletSet, fetcher ActivityFetcher) *Source {
	if config.CycleInterval <= 0 {
		config = DefaultConfig()
	}
	ctx, cancel := context.WithCancel(context.Background())

	return &Source{
		eventChan: make(chan *model.SwapEvent, 10000),
		errChan:   make(chan error, 100),
		ctx:       ctx,
		cancel:    cancel,
		config:    config,
		wallets:   wallets,
		fetcher:   fetcher,
		processed: make(map[string]struct{}),
	}
}

// Start 启动轮询
func (s *Source) Start(ctx context.Context) error {
	logger.Info("🔍 启动钱包轮询数据源",
		logger.String("cycle_interval", s.config.CycleInterval.String()),
		logger.String("min_wallet_interval", s.config.MinWalletInterval.String()),
		logger.Int("batch_size", s.config.BatchSize),
		logger.Int("fetch_limit", s.config.FetchLimit))

	s.wg.Add(2)
	go s.startPolling()
	go s.startProcessedCleanup()

	return nil
}

// Stop 停止轮询数据源，等在途轮询排空后再关闭通道
func (s *Source) Stop() error {
	logger.Info("🛑 停止钱包轮询数据源")
	s.cancel()
	s.wg.Wait()

	close(s.eventChan)
	close(s.errChan)
	return nil
}

// Subscribe 订阅swap事件流
func (s *Source) Subscribe() <-chan *model.SwapEvent {
	return s.eventChan
}

// Errors 获取错误通道
func (s *Source) Errors() <-chan error {
	return s.errChan
}

// String 数据源名称
func (s *Source) String() string {
	return "poller"
}

// startPolling 轮询主循环
func (s *Source) startPolling() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.config.CycleInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			logger.Info("🛑 钱包轮询收到停止信号")
			return
		case <-ticker.C:
			s.checkAllWallets()
		}
	}
}

// checkAllWallets 分批并发检查到期钱包，批内并发批间停顿
func (s *Source) checkAllWallets() {
	due := s.wallets.DueWallets(s.config.MinWalletInterval)
	if len(due) == 0 {
		return
	}

	for start := 0; start < len(due); start += s.config.BatchSize {
		select {
		case <-s.ctx.Done():
			return
		default:
		}

		end := start + s.config.BatchSize
		if end > len(due) {
			end = len(due)
		}

		var wg sync.WaitGroup
		for _, wallet := range due[start:end] {
			wg.Add(1)
			go func(w *model.MonitoredWallet) {
				defer wg.Done()
				s.checkWallet(w)
			}(wallet)
		}
		wg.Wait()

		if end < len(due) {
			select {
			case <-s.ctx.Done():
				return
			case <-time.After(s.config.BatchPause):
			}
		}
	}
}

// checkWallet 拉取单个钱包最近活动并下发高水位之后的新事件。
// 无论是否产出事件，高水位都推进到本次看到的最新签名。
func (s *Source) checkWallet(wallet *model.MonitoredWallet) {
	ctx, cancel := context.WithTimeout(s.ctx, 10*time.Second)
	defer cancel()

	events, err := s.fetcher.GetWalletTransactions(ctx, wallet.Address, s.config.FetchLimit)
	s.wallets.MarkPolled(wallet.Address)
	if err != nil {
		s.sendError(errors.Wrapf(err, "poll wallet %s", wallet.Address))
		return
	}
	if len(events) == 0 {
		return
	}

	lastSignature := s.wallets.HighWater(wallet.Address)
	emitted := 0

	// 返回按时间倒序，遇到高水位即停止
	for _, event := range events {
		if event.Signature == lastSignature {
			break
		}
		if !s.markProcessed(event.Signature) {
			continue
		}
		s.sendEvent(event)
		emitted++
	}

	s.wallets.AdvanceHighWater(wallet.Address, events[0].Signature)

	if emitted > 0 {
		logger.Debug("🔄 轮询发现新swap",
			logger.String("wallet", wallet.Address),
			logger.Int("count", emitted))
	}
}

// markProcessed 首次见到该签名返回true
func (s *Source) markProcessed(signature string) bool {
	s.processedMutex.Lock()
	defer s.processedMutex.Unlock()

	if _, ok := s.processed[signature]; ok {
		return false
	}
	s.processed[signature] = struct{}{}
	return true
}

// startProcessedCleanup 已下发签名集合超限时整体清空
func (s *Source) startProcessedCleanup() {
	defer s.wg.Done()

	ticker := time.NewTicker(10 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			s.processedMutex.Lock()
			if len(s.processed) > 1000 {
				s.processed = make(map[string]struct{})
				logger.Debug("🧹 已清空轮询签名缓存")
			}
			s.processedMutex.Unlock()
		}
	}
}

func (s *Source) sendEvent(event *model.SwapEvent) {
	select {
	case s.eventChan <- event:
	case <-s.ctx.Done():
	}
}

func (s *Source) sendError(err error) {
	select {
	case s.errChan <- err:
	case <-s.ctx.Done():
	}
}
