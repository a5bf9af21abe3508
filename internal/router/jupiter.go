package router

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/pkg/errors"
)

// Config 聚合路由(Jupiter)配置
type Config struct {
	QuoteURL    string        `yaml:"quote_url" json:"quote_url"`
	SwapURL     string        `yaml:"swap_url" json:"swap_url"`
	SlippageBps int           `yaml:"slippage_bps" json:"slippage_bps"`
	Timeout     time.Duration `yaml:"timeout" json:"timeout"`
}

// Quote 报价结果，Raw保留完整响应体用于回传构建swap
type Quote struct {
	InputMint  string `json:"inputMint"`
	OutputMint string `json:"outputMint"`
	InAmount   string `json:"inAmount"`
	OutAmount  string `json:"outAmount"`

	Raw json.RawMessage `json:"-"`
}

// Client Jupiter swap API客户端
type Client struct {
	cfg  Config
	http *http.Client
}

func NewClient(cfg Config) *Client {
	if cfg.QuoteURL == "" {
		cfg.QuoteURL = "https://lite-api.jup.ag/swap/v1/quote"
	}
	if cfg.SwapURL == "" {
		cfg.SwapURL = "https://lite-api.jup.ag/swap/v1/swap"
	}
	if cfg.SlippageBps == 0 {
		cfg.SlippageBps = 500
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 3 * time.Second
	}
	return &Client{
		cfg:  cfg,
		http: &http.Client{Timeout: cfg.Timeout},
	}
}

// SlippageBps 当前配置的滑点
func (c *Client) SlippageBps() int {
	return c.cfg.SlippageBps
}

// Quote 获取 inputMint → outputMint 的兑换报价，amount为输入代币的最小单位数量
func (c *Client) Quote(ctx context.Context, inputMint, outputMint string, amount uint64) (*Quote, error) {
	url := fmt.Sprintf("%s?inputMint=%s&outputMint=%s&amount=%d&slippageBps=%d",
		c.cfg.QuoteURL, inputMint, outputMint, amount, c.cfg.SlippageBps)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "quote request")
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrap(err, "read quote response")
	}
	if resp.StatusCode != http.StatusOK {
		return nil, errors.Errorf("quote status %d: %s", resp.StatusCode, truncate(data))
	}

	var q Quote
	if err := json.Unmarshal(data, &q); err != nil {
		return nil, errors.Wrap(err, "decode quote response")
	}
	if q.OutAmount == "" {
		return nil, errors.New("quote response missing outAmount")
	}
	q.Raw = data
	return &q, nil
}

// BuildSwap 基于报价构建swap交易，返回base64序列化的待签名交易
func (c *Client) BuildSwap(ctx context.Context, quote *Quote, userPublicKey string) (string, error) {
	body := map[string]interface{}{
		"quoteResponse":             json.RawMessage(quote.Raw),
		"userPublicKey":             userPublicKey,
		"wrapAndUnwrapSol":          true,
		"prioritizationFeeLamports": "auto",
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.SwapURL, bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", errors.Wrap(err, "swap request")
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", errors.Wrap(err, "read swap response")
	}
	if resp.StatusCode != http.StatusOK {
		return "", errors.Errorf("swap status %d: %s", resp.StatusCode, truncate(data))
	}

	var result struct {
		SwapTransaction string `json:"swapTransaction"`
	}
	if err := json.Unmarshal(data, &result); err != nil {
		return "", errors.Wrap(err, "decode swap response")
	}
	if result.SwapTransaction == "" {
		return "", errors.New("swap response missing swapTransaction")
	}
	return result.SwapTransaction, nil
}

func truncate(data []byte) string {
	const max = 512
	if len(data) > max {
		return string(data[:max])
	}
	return string(data)
}
