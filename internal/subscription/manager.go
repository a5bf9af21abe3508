package subscription

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/robfig/cron/v3"

	"github.com/pumpfunds/copytrader/internal/model"
	"github.com/pumpfunds/copytrader/internal/registry"
	"github.com/pumpfunds/copytrader/internal/repo"
	"github.com/pumpfunds/copytrader/pkg/logger"
)

// Manager 钱包订阅管理器，是监控钱包集合的唯一持有者。
// 轮询数据源通过它读取钱包与高水位；webhook注册中心按它的集合做增量同步。
type Manager struct {
	fundRepo       repo.FundRepo
	investmentRepo repo.InvestmentRepo
	registry       *registry.Client

	mutex   sync.RWMutex
	wallets map[string]*model.MonitoredWallet // address → wallet

	cron   *cron.Cron
	ctx    context.Context
	cancel context.CancelFunc
}

func NewManager(fundRepo repo.FundRepo, investmentRepo repo.InvestmentRepo, registryClient *registry.Client) *Manager {
	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		fundRepo:       fundRepo,
		investmentRepo: investmentRepo,
		registry:       registryClient,
		wallets:        make(map[string]*model.MonitoredWallet),
		cron:           cron.New(),
		ctx:            ctx,
		cancel:         cancel,
	}
}

// Start 加载初始钱包集合，同步注册中心，并启动周期任务
func (m *Manager) Start() error {
	if err := m.Refresh(); err != nil {
		return err
	}

	// 启动时先做一次注册中心清理，清除上次运行遗留的订阅
	if err := m.CleanupRegistry(m.ctx); err != nil {
		logger.Warn("⚠️ 启动时同步webhook注册失败，轮询通道兜底", logger.FieldErr(err))
	}

	if _, err := m.cron.AddFunc("@every 5m", func() {
		if err := m.Refresh(); err != nil {
			logger.Error("刷新监控钱包集合失败", logger.FieldErr(err))
		}
	}); err != nil {
		return err
	}
	if _, err := m.cron.AddFunc("@every 30m", func() {
		if err := m.CleanupRegistry(m.ctx); err != nil {
			logger.Warn("⚠️ 周期清理webhook注册失败", logger.FieldErr(err))
		}
	}); err != nil {
		return err
	}
	m.cron.Start()

	logger.Info("👁️ 钱包订阅管理器已启动", logger.Int("wallets", m.WalletCount()))
	return nil
}

func (m *Manager) Stop() {
	m.cancel()
	stopCtx := m.cron.Stop()
	<-stopCtx.Done()
	logger.Info("钱包订阅管理器已停止")
}

// Refresh 重算监控钱包集合：仅纳入存在生效跟单的基金钱包。
// 已有钱包保留高水位，消失的钱包立即移出轮询集合。
func (m *Manager) Refresh() error {
	funds, err := m.fundRepo.GetAll()
	if err != nil {
		return errors.Wrap(err, "load funds")
	}

	desired := make(map[string]string) // address → fundID
	for _, fund := range funds {
		count, err := m.investmentRepo.CountActiveByFund(fund.ID)
		if err != nil {
			logger.Error("统计基金生效跟单失败",
				logger.String("fund_id", fund.ID),
				logger.FieldErr(err))
			continue
		}
		if count == 0 {
			continue
		}
		for _, wallet := range fund.WalletAddresses {
			desired[wallet] = fund.ID
		}
	}

	m.mutex.Lock()
	defer m.mutex.Unlock()

	added, removed := 0, 0
	for address, fundID := range desired {
		if existing, ok := m.wallets[address]; ok {
			existing.FundID = fundID
			continue
		}
		m.wallets[address] = &model.MonitoredWallet{
			Address: address,
			FundID:  fundID,
		}
		added++
	}
	for address := range m.wallets {
		if _, ok := desired[address]; !ok {
			delete(m.wallets, address)
			removed++
		}
	}

	if added > 0 || removed > 0 {
		logger.Info("🔄 监控钱包集合已更新",
			logger.Int("added", added),
			logger.Int("removed", removed),
			logger.Int("total", len(m.wallets)))
	}
	return nil
}

// OnSubscribe 跟单创建后立即纳入基金钱包并同步注册中心
func (m *Manager) OnSubscribe(ctx context.Context, fundID string) error {
	fund, err := m.fundRepo.GetByID(fundID)
	if err != nil {
		return errors.Wrapf(err, "load fund %s", fundID)
	}

	count, err := m.investmentRepo.CountActiveByFund(fundID)
	if err != nil {
		return err
	}
	if count == 0 {
		return nil
	}

	m.mutex.Lock()
	for _, wallet := range fund.WalletAddresses {
		if _, ok := m.wallets[wallet]; !ok {
			m.wallets[wallet] = &model.MonitoredWallet{
				Address: wallet,
				FundID:  fund.ID,
			}
		}
	}
	m.mutex.Unlock()

	// 注册中心失败只记录，轮询通道保证事件不丢
	if err := m.CleanupRegistry(ctx); err != nil {
		logger.Warn("⚠️ 订阅后同步webhook注册失败",
			logger.String("fund_id", fundID),
			logger.FieldErr(err))
	}

	logger.Info("✅ 基金钱包已纳入监控",
		logger.String("fund_id", fundID),
		logger.Int("wallets", len(fund.WalletAddresses)))
	return nil
}

// OnUnsubscribe 基金最后一个生效跟单退出后，钱包立即移出轮询集合。
// 注册中心侧的移除延迟到周期清理。
func (m *Manager) OnUnsubscribe(ctx context.Context, fundID string) error {
	count, err := m.investmentRepo.CountActiveByFund(fundID)
	if err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	fund, err := m.fundRepo.GetByID(fundID)
	if err != nil {
		return errors.Wrapf(err, "load fund %s", fundID)
	}

	m.mutex.Lock()
	for _, wallet := range fund.WalletAddresses {
		delete(m.wallets, wallet)
	}
	m.mutex.Unlock()

	logger.Info("🚪 基金钱包已移出监控",
		logger.String("fund_id", fundID),
		logger.Int("wallets", len(fund.WalletAddresses)))
	return nil
}

// CleanupRegistry 将注册中心的webhook地址集合对齐到当前监控集合。
// 幂等：无差异时不发起变更；目标集合为空时删除整个webhook。
func (m *Manager) CleanupRegistry(ctx context.Context) error {
	desired := m.walletAddresses()

	hook, err := m.registry.FindByCallback(ctx)
	if err != nil {
		return err
	}

	if len(desired) == 0 {
		if hook == nil {
			return nil
		}
		if err := m.registry.DeleteWebhook(ctx, hook.WebhookID); err != nil {
			return err
		}
		logger.Info("🗑️ 监控集合为空，已删除webhook订阅")
		return nil
	}

	if hook == nil {
		created, err := m.registry.CreateWebhook(ctx, desired)
		if err != nil {
			return err
		}
		logger.Info("📮 已创建webhook订阅",
			logger.String("webhook_id", created.WebhookID),
			logger.Int("addresses", len(desired)))
		return nil
	}

	if sameAddressSet(hook.AccountAddresses, desired) {
		return nil
	}
	if err := m.registry.UpdateWebhook(ctx, hook.WebhookID, desired); err != nil {
		return err
	}
	logger.Info("📮 已更新webhook订阅地址集合",
		logger.String("webhook_id", hook.WebhookID),
		logger.Int("addresses", len(desired)))
	return nil
}

// --- 轮询数据源访问接口 ---

// DueWallets 返回距上次轮询超过minInterval的钱包副本
func (m *Manager) DueWallets(minInterval time.Duration) []*model.MonitoredWallet {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	now := time.Now()
	due := make([]*model.MonitoredWallet, 0, len(m.wallets))
	for _, w := range m.wallets {
		if now.Sub(w.LastPollAt) < minInterval {
			continue
		}
		cp := *w
		due = append(due, &cp)
	}
	// 稳定顺序便于分批
	sort.Slice(due, func(i, j int) bool { return due[i].Address < due[j].Address })
	return due
}

// MarkPolled 记录钱包轮询时间
func (m *Manager) MarkPolled(address string) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	if w, ok := m.wallets[address]; ok {
		w.LastPollAt = time.Now()
	}
}

// HighWater 钱包当前高水位签名
func (m *Manager) HighWater(address string) string {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	if w, ok := m.wallets[address]; ok {
		return w.LastSignature
	}
	return ""
}

// AdvanceHighWater 推进高水位到本次观察到的最新签名
func (m *Manager) AdvanceHighWater(address, signature string) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	if w, ok := m.wallets[address]; ok && signature != "" {
		w.LastSignature = signature
	}
}

// FundForWallet 查询钱包所属基金
func (m *Manager) FundForWallet(address string) (string, bool) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	if w, ok := m.wallets[address]; ok {
		return w.FundID, true
	}
	return "", false
}

// WalletCount 当前监控钱包数量
func (m *Manager) WalletCount() int {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	return len(m.wallets)
}

func (m *Manager) walletAddresses() []string {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	addresses := make([]string, 0, len(m.wallets))
	for address := range m.wallets {
		addresses = append(addresses, address)
	}
	sort.Strings(addresses)
	return addresses
}

func sameAddressSet(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	set := make(map[string]struct{}, len(a))
	for _, s := range a {
		set[s] = struct{}{}
	}
	for _, s := range b {
		if _, ok := set[s]; !ok {
			return false
		}
	}
	return true
}
