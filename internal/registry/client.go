package registry

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/pkg/errors"

	"github.com/pumpfunds/copytrader/internal/model"
)

// Config webhook注册中心配置
type Config struct {
	BaseURL    string        `yaml:"base_url" json:"base_url"`
	APIKey     string        `yaml:"api_key" json:"api_key"`
	WebhookURL string        `yaml:"webhook_url" json:"webhook_url"`
	Timeout    time.Duration `yaml:"timeout" json:"timeout"`
}

// Webhook 注册中心侧的推送订阅
type Webhook struct {
	WebhookID        string   `json:"webhookID"`
	WebhookURL       string   `json:"webhookURL"`
	TransactionTypes []string `json:"transactionTypes"`
	AccountAddresses []string `json:"accountAddresses"`
	WebhookType      string   `json:"webhookType"`
	TxnStatus        string   `json:"txnStatus"`
}

// Client 事件提供方(Helius风格)API客户端，承担webhook管理与钱包活动查询
type Client struct {
	cfg  Config
	http *http.Client
}

func NewClient(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.helius.xyz"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &Client{
		cfg:  cfg,
		http: &http.Client{Timeout: cfg.Timeout},
	}
}

// CallbackURL 本服务接收推送的回调地址
func (c *Client) CallbackURL() string {
	return c.cfg.WebhookURL
}

// ListWebhooks 列出账号下全部webhook
func (c *Client) ListWebhooks(ctx context.Context) ([]*Webhook, error) {
	url := fmt.Sprintf("%s/v0/webhooks?api-key=%s", c.cfg.BaseURL, c.cfg.APIKey)

	var hooks []*Webhook
	if err := c.do(ctx, http.MethodGet, url, nil, &hooks); err != nil {
		return nil, errors.Wrap(err, "list webhooks")
	}
	return hooks, nil
}

// FindByCallback 按回调地址查找本服务注册的webhook，未注册返回nil
func (c *Client) FindByCallback(ctx context.Context) (*Webhook, error) {
	hooks, err := c.ListWebhooks(ctx)
	if err != nil {
		return nil, err
	}
	for _, h := range hooks {
		if h.WebhookURL == c.cfg.WebhookURL {
			return h, nil
		}
	}
	return nil, nil
}

// CreateWebhook 注册新的swap推送订阅
func (c *Client) CreateWebhook(ctx context.Context, addresses []string) (*Webhook, error) {
	url := fmt.Sprintf("%s/v0/webhooks?api-key=%s", c.cfg.BaseURL, c.cfg.APIKey)

	body := map[string]interface{}{
		"webhookURL":       c.cfg.WebhookURL,
		"transactionTypes": []string{"SWAP"},
		"accountAddresses": addresses,
		"webhookType":      "enhanced",
		"txnStatus":        "all",
	}

	var created Webhook
	if err := c.do(ctx, http.MethodPost, url, body, &created); err != nil {
		return nil, errors.Wrap(err, "create webhook")
	}
	return &created, nil
}

// UpdateWebhook 全量替换webhook监听的地址集合
func (c *Client) UpdateWebhook(ctx context.Context, webhookID string, addresses []string) error {
	url := fmt.Sprintf("%s/v0/webhooks/%s?api-key=%s", c.cfg.BaseURL, webhookID, c.cfg.APIKey)

	body := map[string]interface{}{
		"webhookURL":       c.cfg.WebhookURL,
		"transactionTypes": []string{"SWAP"},
		"accountAddresses": addresses,
		"webhookType":      "enhanced",
		"txnStatus":        "all",
	}

	if err := c.do(ctx, http.MethodPut, url, body, nil); err != nil {
		return errors.Wrap(err, "update webhook")
	}
	return nil
}

// DeleteWebhook 删除整个webhook
func (c *Client) DeleteWebhook(ctx context.Context, webhookID string) error {
	url := fmt.Sprintf("%s/v0/webhooks/%s?api-key=%s", c.cfg.BaseURL, webhookID, c.cfg.APIKey)

	if err := c.do(ctx, http.MethodDelete, url, nil, nil); err != nil {
		return errors.Wrap(err, "delete webhook")
	}
	return nil
}

// GetWalletTransactions 拉取钱包最近的swap增强交易，轮询数据源使用
func (c *Client) GetWalletTransactions(ctx context.Context, wallet string, limit int) ([]*model.SwapEvent, error) {
	url := fmt.Sprintf("%s/v0/addresses/%s/transactions?api-key=%s&limit=%d&type=SWAP",
		c.cfg.BaseURL, wallet, c.cfg.APIKey, limit)

	var events []*model.SwapEvent
	if err := c.do(ctx, http.MethodGet, url, nil, &events); err != nil {
		return nil, errors.Wrapf(err, "get wallet transactions: %s", wallet)
	}
	return events, nil
}

func (c *Client) do(ctx context.Context, method, url string, body interface{}, out interface{}) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return errors.Errorf("unexpected status %d: %s", resp.StatusCode, string(data))
	}

	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
