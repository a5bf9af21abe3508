package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pumpfunds/copytrader/internal/dispatcher"
	"github.com/pumpfunds/copytrader/internal/model"
	"github.com/pumpfunds/copytrader/internal/registry"
	"github.com/pumpfunds/copytrader/internal/subscription"
	"github.com/pumpfunds/copytrader/pkg/logger"
)

func TestMain(m *testing.M) {
	cfg := &logger.Config{Name: "test", Level: "error", Discard: true, DisableSentry: true, SentryLevel: "error"}
	l := cfg.Build()
	logger.SetDefault(l)
	logger.SetDefaultL1(l)
	os.Exit(m.Run())
}

type fakeFundRepo struct {
	funds []*model.Fund
}

func (f *fakeFundRepo) GetAll() ([]*model.Fund, error) { return f.funds, nil }

func (f *fakeFundRepo) GetByID(fundID string) (*model.Fund, error) {
	for _, fund := range f.funds {
		if fund.ID == fundID {
			return fund, nil
		}
	}
	return nil, errors.New("record not found")
}

func (f *fakeFundRepo) GetByWallet(wallet string) ([]*model.Fund, error) { return nil, nil }

type fakeInvestmentRepo struct {
	investments map[string]*model.Investment // userID_fundID → investment
}

func (f *fakeInvestmentRepo) GetByFund(fundID string) ([]*model.Investment, error) {
	return nil, nil
}

func (f *fakeInvestmentRepo) GetByUserAndFund(userID, fundID string) (*model.Investment, error) {
	if inv, ok := f.investments[userID+"_"+fundID]; ok {
		return inv, nil
	}
	return nil, errors.New("record not found")
}

func (f *fakeInvestmentRepo) CountActiveByFund(fundID string) (int64, error) {
	var count int64
	for _, inv := range f.investments {
		if inv.FundID == fundID && inv.IsActive {
			count++
		}
	}
	return count, nil
}

func (f *fakeInvestmentRepo) Upsert(inv *model.Investment) error {
	f.investments[inv.UserID+"_"+inv.FundID] = inv
	return nil
}

func (f *fakeInvestmentRepo) Deactivate(userID, fundID string) error {
	if inv, ok := f.investments[userID+"_"+fundID]; ok {
		inv.IsActive = false
	}
	return nil
}

func newTestServer(t *testing.T) (*httptest.Server, *fakeInvestmentRepo) {
	t.Helper()

	// 注册中心桩：列表恒空，创建恒成功
	registryStub := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			w.Write([]byte("[]"))
			return
		}
		w.Write([]byte(`{"webhookID": "hook-1"}`))
	}))
	t.Cleanup(registryStub.Close)

	fundRepo := &fakeFundRepo{funds: []*model.Fund{
		{ID: "fund1", Name: "Alpha Fund", WalletAddresses: []string{"walletA"}},
	}}
	investmentRepo := &fakeInvestmentRepo{investments: make(map[string]*model.Investment)}

	subs := subscription.NewManager(fundRepo, investmentRepo, registry.NewClient(registry.Config{
		BaseURL:    registryStub.URL,
		APIKey:     "test-key",
		WebhookURL: "https://copytrader.test/api/webhooks/helius",
	}))
	disp := dispatcher.New(nil, nil, nil, nil, nil, 1)

	webhookHandler := func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) }
	s := New(Config{}, webhookHandler, subs, disp, fundRepo, investmentRepo)

	srv := httptest.NewServer(s.routes())
	t.Cleanup(srv.Close)
	return srv, investmentRepo
}

func postJSON(t *testing.T, url, body string) *http.Response {
	t.Helper()
	resp, err := http.Post(url, "application/json", strings.NewReader(body))
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestHealth(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, 200, resp.StatusCode)

	var body map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "ok", body["status"])
}

func TestSubscribe(t *testing.T) {
	srv, investmentRepo := newTestServer(t)

	resp := postJSON(t, srv.URL+"/api/subscribe",
		`{"userId":"user1","fundId":"fund1","allocatedAmount":"10","purchaseSizePercentage":"50","autoApprove":true}`)
	assert.Equal(t, 200, resp.StatusCode)

	inv, err := investmentRepo.GetByUserAndFund("user1", "fund1")
	require.NoError(t, err)
	assert.True(t, inv.IsActive)
	assert.True(t, inv.AutoApprove)
	assert.True(t, inv.AllocatedAmount.Equal(decimal.NewFromInt(10)))
}

func TestSubscribeValidation(t *testing.T) {
	srv, _ := newTestServer(t)

	tests := []struct {
		name string
		body string
		code int
	}{
		{"missing ids", `{"allocatedAmount":"10","purchaseSizePercentage":"50"}`, 400},
		{"zero allocation", `{"userId":"u","fundId":"fund1","allocatedAmount":"0","purchaseSizePercentage":"50"}`, 400},
		{"percentage above 100", `{"userId":"u","fundId":"fund1","allocatedAmount":"10","purchaseSizePercentage":"150"}`, 400},
		{"unknown fund", `{"userId":"u","fundId":"nope","allocatedAmount":"10","purchaseSizePercentage":"50"}`, 404},
		{"garbage body", `{`, 400},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := postJSON(t, srv.URL+"/api/subscribe", tt.body)
			assert.Equal(t, tt.code, resp.StatusCode)
		})
	}
}

func TestUnsubscribe(t *testing.T) {
	srv, investmentRepo := newTestServer(t)

	postJSON(t, srv.URL+"/api/subscribe",
		`{"userId":"user1","fundId":"fund1","allocatedAmount":"10","purchaseSizePercentage":"50"}`)

	resp := postJSON(t, srv.URL+"/api/unsubscribe", `{"userId":"user1","fundId":"fund1"}`)
	assert.Equal(t, 200, resp.StatusCode)

	inv, err := investmentRepo.GetByUserAndFund("user1", "fund1")
	require.NoError(t, err)
	assert.False(t, inv.IsActive)
}

func TestUpdateInvestment(t *testing.T) {
	srv, investmentRepo := newTestServer(t)

	postJSON(t, srv.URL+"/api/subscribe",
		`{"userId":"user1","fundId":"fund1","allocatedAmount":"10","purchaseSizePercentage":"50"}`)

	resp := postJSON(t, srv.URL+"/api/update-investment",
		`{"userId":"user1","fundId":"fund1","purchaseSizePercentage":"25","autoApprove":true}`)
	assert.Equal(t, 200, resp.StatusCode)

	inv, err := investmentRepo.GetByUserAndFund("user1", "fund1")
	require.NoError(t, err)
	assert.True(t, inv.PurchaseSizePercentage.Equal(decimal.NewFromInt(25)))
	assert.True(t, inv.AutoApprove)
	// 未提交的字段保持不变
	assert.True(t, inv.AllocatedAmount.Equal(decimal.NewFromInt(10)))
}

func TestUpdateInvestmentNotFound(t *testing.T) {
	srv, _ := newTestServer(t)

	resp := postJSON(t, srv.URL+"/api/update-investment",
		`{"userId":"ghost","fundId":"fund1","autoApprove":true}`)
	assert.Equal(t, 404, resp.StatusCode)
}

func TestListAndGetFunds(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, err := http.Get(srv.URL + "/api/funds")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, 200, resp.StatusCode)

	var list struct {
		Funds []*model.Fund `json:"funds"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&list))
	require.Len(t, list.Funds, 1)
	assert.Equal(t, "Alpha Fund", list.Funds[0].Name)

	single, err := http.Get(srv.URL + "/api/funds/fund1")
	require.NoError(t, err)
	defer single.Body.Close()
	assert.Equal(t, 200, single.StatusCode)

	missing, err := http.Get(srv.URL + "/api/funds/ghost")
	require.NoError(t, err)
	defer missing.Body.Close()
	assert.Equal(t, 500, missing.StatusCode)
}

func TestWebhookRouteMounted(t *testing.T) {
	srv, _ := newTestServer(t)

	resp := postJSON(t, srv.URL+"/api/webhooks/helius", "[]")
	assert.Equal(t, 200, resp.StatusCode)
}
