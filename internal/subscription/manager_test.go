package subscription

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pumpfunds/copytrader/internal/model"
	"github.com/pumpfunds/copytrader/internal/registry"
	"github.com/pumpfunds/copytrader/pkg/logger"
)

func TestMain(m *testing.M) {
	cfg := &logger.Config{Name: "test", Level: "error", Discard: true, DisableSentry: true, SentryLevel: "error"}
	l := cfg.Build()
	logger.SetDefault(l)
	logger.SetDefaultL1(l)
	os.Exit(m.Run())
}

// --- fakes ---

type fakeFundRepo struct {
	funds []*model.Fund
}

func (f *fakeFundRepo) GetAll() ([]*model.Fund, error) {
	return f.funds, nil
}

func (f *fakeFundRepo) GetByID(fundID string) (*model.Fund, error) {
	for _, fund := range f.funds {
		if fund.ID == fundID {
			return fund, nil
		}
	}
	return nil, errors.New("record not found")
}

func (f *fakeFundRepo) GetByWallet(wallet string) ([]*model.Fund, error) {
	var matched []*model.Fund
	for _, fund := range f.funds {
		if fund.HasWallet(wallet) {
			matched = append(matched, fund)
		}
	}
	return matched, nil
}

type fakeInvestmentRepo struct {
	activeByFund map[string]int64
}

func (f *fakeInvestmentRepo) GetByFund(fundID string) ([]*model.Investment, error) {
	return nil, nil
}

func (f *fakeInvestmentRepo) GetByUserAndFund(userID, fundID string) (*model.Investment, error) {
	return nil, errors.New("record not found")
}

func (f *fakeInvestmentRepo) CountActiveByFund(fundID string) (int64, error) {
	return f.activeByFund[fundID], nil
}

func (f *fakeInvestmentRepo) Upsert(inv *model.Investment) error { return nil }

func (f *fakeInvestmentRepo) Deactivate(userID, fundID string) error { return nil }

// fakeRegistryServer Helius风格webhook管理API的内存实现
type fakeRegistryServer struct {
	mu      sync.Mutex
	hook    *registry.Webhook
	creates int
	updates int
	deletes int
}

func (f *fakeRegistryServer) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/v0/webhooks", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()

		switch r.Method {
		case http.MethodGet:
			hooks := []*registry.Webhook{}
			if f.hook != nil {
				hooks = append(hooks, f.hook)
			}
			json.NewEncoder(w).Encode(hooks)
		case http.MethodPost:
			var hook registry.Webhook
			json.NewDecoder(r.Body).Decode(&hook)
			hook.WebhookID = "hook-1"
			f.hook = &hook
			f.creates++
			json.NewEncoder(w).Encode(&hook)
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
	})
	mux.HandleFunc("/v0/webhooks/", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()

		switch r.Method {
		case http.MethodPut:
			var hook registry.Webhook
			json.NewDecoder(r.Body).Decode(&hook)
			if f.hook != nil {
				f.hook.AccountAddresses = hook.AccountAddresses
			}
			f.updates++
			w.WriteHeader(http.StatusOK)
		case http.MethodDelete:
			f.hook = nil
			f.deletes++
			w.WriteHeader(http.StatusOK)
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
	})
	return mux
}

func newTestManager(t *testing.T, funds []*model.Fund, active map[string]int64) (*Manager, *fakeRegistryServer) {
	t.Helper()

	fake := &fakeRegistryServer{}
	srv := httptest.NewServer(fake.handler())
	t.Cleanup(srv.Close)

	client := registry.NewClient(registry.Config{
		BaseURL:    srv.URL,
		APIKey:     "test-key",
		WebhookURL: "https://copytrader.test/api/webhooks/helius",
	})
	return NewManager(
		&fakeFundRepo{funds: funds},
		&fakeInvestmentRepo{activeByFund: active},
		client,
	), fake
}

// --- tests ---

func TestRefreshAddsOnlyFundsWithActiveInvestments(t *testing.T) {
	funds := []*model.Fund{
		{ID: "fund1", WalletAddresses: []string{"walletA", "walletB"}},
		{ID: "fund2", WalletAddresses: []string{"walletC"}},
	}
	m, _ := newTestManager(t, funds, map[string]int64{"fund1": 2})

	require.NoError(t, m.Refresh())

	assert.Equal(t, 2, m.WalletCount())
	_, ok := m.FundForWallet("walletA")
	assert.True(t, ok)
	_, ok = m.FundForWallet("walletC")
	assert.False(t, ok)
}

func TestRefreshPreservesHighWater(t *testing.T) {
	funds := []*model.Fund{{ID: "fund1", WalletAddresses: []string{"walletA"}}}
	m, _ := newTestManager(t, funds, map[string]int64{"fund1": 1})

	require.NoError(t, m.Refresh())
	m.AdvanceHighWater("walletA", "sig-100")

	require.NoError(t, m.Refresh())
	assert.Equal(t, "sig-100", m.HighWater("walletA"))
}

func TestRefreshRemovesStaleWallets(t *testing.T) {
	funds := []*model.Fund{{ID: "fund1", WalletAddresses: []string{"walletA"}}}
	active := map[string]int64{"fund1": 1}
	m, _ := newTestManager(t, funds, active)

	require.NoError(t, m.Refresh())
	assert.Equal(t, 1, m.WalletCount())

	// 最后一个跟单退出后钱包消失
	active["fund1"] = 0
	require.NoError(t, m.Refresh())
	assert.Equal(t, 0, m.WalletCount())
}

func TestOnUnsubscribeKeepsWalletsWhileActiveRemain(t *testing.T) {
	funds := []*model.Fund{{ID: "fund1", WalletAddresses: []string{"walletA"}}}
	active := map[string]int64{"fund1": 2}
	m, _ := newTestManager(t, funds, active)
	require.NoError(t, m.Refresh())

	require.NoError(t, m.OnUnsubscribe(context.Background(), "fund1"))
	assert.Equal(t, 1, m.WalletCount())

	active["fund1"] = 0
	require.NoError(t, m.OnUnsubscribe(context.Background(), "fund1"))
	assert.Equal(t, 0, m.WalletCount())
}

func TestOnSubscribeSyncsRegistry(t *testing.T) {
	funds := []*model.Fund{{ID: "fund1", WalletAddresses: []string{"walletA", "walletB"}}}
	m, fake := newTestManager(t, funds, map[string]int64{"fund1": 1})

	require.NoError(t, m.OnSubscribe(context.Background(), "fund1"))

	assert.Equal(t, 2, m.WalletCount())
	assert.Equal(t, 1, fake.creates)
	require.NotNil(t, fake.hook)
	assert.ElementsMatch(t, []string{"walletA", "walletB"}, fake.hook.AccountAddresses)
}

func TestCleanupRegistryIdempotent(t *testing.T) {
	funds := []*model.Fund{{ID: "fund1", WalletAddresses: []string{"walletA"}}}
	active := map[string]int64{"fund1": 1}
	m, fake := newTestManager(t, funds, active)
	require.NoError(t, m.Refresh())

	// 首次同步创建
	require.NoError(t, m.CleanupRegistry(context.Background()))
	assert.Equal(t, 1, fake.creates)

	// 集合无变化时不再发起变更
	require.NoError(t, m.CleanupRegistry(context.Background()))
	assert.Equal(t, 1, fake.creates)
	assert.Equal(t, 0, fake.updates)

	// 集合为空时删除整个webhook
	active["fund1"] = 0
	require.NoError(t, m.Refresh())
	require.NoError(t, m.CleanupRegistry(context.Background()))
	assert.Equal(t, 1, fake.deletes)
	assert.Nil(t, fake.hook)
}

func TestCleanupRegistryUpdatesOnDiff(t *testing.T) {
	fund := &model.Fund{ID: "fund1", WalletAddresses: []string{"walletA"}}
	m, fake := newTestManager(t, []*model.Fund{fund}, map[string]int64{"fund1": 1})
	require.NoError(t, m.Refresh())
	require.NoError(t, m.CleanupRegistry(context.Background()))

	fund.WalletAddresses = append(fund.WalletAddresses, "walletB")
	require.NoError(t, m.Refresh())
	require.NoError(t, m.CleanupRegistry(context.Background()))

	assert.Equal(t, 1, fake.updates)
	assert.ElementsMatch(t, []string{"walletA", "walletB"}, fake.hook.AccountAddresses)
}

func TestDueWallets(t *testing.T) {
	funds := []*model.Fund{{ID: "fund1", WalletAddresses: []string{"walletA", "walletB"}}}
	m, _ := newTestManager(t, funds, map[string]int64{"fund1": 1})
	require.NoError(t, m.Refresh())

	due := m.DueWallets(time.Second)
	require.Len(t, due, 2)
	// 稳定排序
	assert.Equal(t, "walletA", due[0].Address)

	m.MarkPolled("walletA")
	due = m.DueWallets(time.Second)
	require.Len(t, due, 1)
	assert.Equal(t, "walletB", due[0].Address)
}

func TestSameAddressSet(t *testing.T) {
	assert.True(t, sameAddressSet([]string{"a", "b"}, []string{"b", "a"}))
	assert.False(t, sameAddressSet([]string{"a"}, []string{"a", "b"}))
	assert.False(t, sameAddressSet([]string{"a", "c"}, []string{"a", "b"}))
	assert.True(t, sameAddressSet(nil, nil))
}
