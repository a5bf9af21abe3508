package notifier

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/pumpfunds/copytrader/internal/model"
	"github.com/pumpfunds/copytrader/pkg/logger"
	"github.com/pumpfunds/copytrader/pkg/utils"
)

// Config 推送通知配置
type Config struct {
	Enabled   bool          `yaml:"enabled" json:"enabled"`
	Endpoint  string        `yaml:"endpoint" json:"endpoint"`
	ServerKey string        `yaml:"server_key" json:"server_key"`
	Timeout   time.Duration `yaml:"timeout" json:"timeout"`
}

// pushMessage FCM推送消息结构
type pushMessage struct {
	To           string            `json:"to"`
	Notification pushNotification  `json:"notification"`
	Data         map[string]string `json:"data,omitempty"`
}

type pushNotification struct {
	Title string `json:"title"`
	Body  string `json:"body"`
}

// PushNotifier 移动端推送通知器。
// 所有发送均为fire-and-forget：失败只记录日志，绝不影响跟单主流程。
type PushNotifier struct {
	cfg  Config
	http *http.Client
}

func NewPushNotifier(cfg Config) *PushNotifier {
	if cfg.Endpoint == "" {
		cfg.Endpoint = "https://fcm.googleapis.com/fcm/send"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 5 * time.Second
	}
	return &PushNotifier{
		cfg:  cfg,
		http: &http.Client{Timeout: cfg.Timeout},
	}
}

// displayToken 无symbol的代币用缩短的mint地址展示
func displayToken(symbol, mint string) string {
	if symbol != "" {
		return symbol
	}
	return utils.GetDisplayWalletAddress(mint)
}

// NotifyTradeExecuted 跟单成功通知
func (n *PushNotifier) NotifyTradeExecuted(user *model.User, record *model.TradeRecord) {
	title := "Copy Trade Executed"
	body := fmt.Sprintf("%s %s at %s: in %s, out %s",
		record.Direction, displayToken(record.TokenSymbol, record.TokenMint),
		utils.FormatPrice(record.Price.String()),
		utils.FormatAmountWithDecimals(record.InputAmount.String(), 0),
		utils.FormatAmountWithDecimals(record.OutputAmount.String(), 0))
	n.push(user, title, body, map[string]string{
		"type":      "trade_executed",
		"fundId":    record.FundID,
		"signature": record.Signature,
	})
}

// NotifyTradeFailed 跟单失败通知
func (n *PushNotifier) NotifyTradeFailed(user *model.User, record *model.TradeRecord) {
	title := "Copy Trade Failed"
	body := fmt.Sprintf("%s %s failed: %s",
		record.Direction, displayToken(record.TokenSymbol, record.TokenMint), record.ErrorMessage)
	n.push(user, title, body, map[string]string{
		"type":   "trade_failed",
		"fundId": record.FundID,
	})
}

// NotifyApprovalRequired 非自动执行的跟单提醒用户确认
func (n *PushNotifier) NotifyApprovalRequired(user *model.User, fundName string, token *model.TradedToken) {
	title := "Trade Detected"
	body := fmt.Sprintf("%s wants to %s %s. Open the app to approve.",
		fundName, token.Direction, displayToken(token.Symbol, token.Mint))
	n.push(user, title, body, map[string]string{
		"type": "approval_required",
		"mint": token.Mint,
	})
}

// push 异步发送，不向调用方上抛任何错误
func (n *PushNotifier) push(user *model.User, title, body string, data map[string]string) {
	if !n.cfg.Enabled {
		return
	}
	if user == nil || user.NotificationToken == "" {
		logger.Debug("用户无推送token，跳过通知")
		return
	}

	msg := pushMessage{
		To: user.NotificationToken,
		Notification: pushNotification{
			Title: title,
			Body:  body,
		},
		Data: data,
	}

	go func() {
		payload, err := json.Marshal(msg)
		if err != nil {
			logger.Warn("⚠️ 序列化推送消息失败", logger.FieldErr(err))
			return
		}

		req, err := http.NewRequest(http.MethodPost, n.cfg.Endpoint, bytes.NewReader(payload))
		if err != nil {
			logger.Warn("⚠️ 创建推送请求失败", logger.FieldErr(err))
			return
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "key="+n.cfg.ServerKey)

		resp, err := n.http.Do(req)
		if err != nil {
			logger.Warn("⚠️ 发送推送失败",
				logger.String("user_id", user.ID),
				logger.FieldErr(err))
			return
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			logger.Warn("⚠️ 推送服务返回错误状态码",
				logger.String("user_id", user.ID),
				logger.Int("status", resp.StatusCode))
			return
		}
		logger.Debug("📲 推送通知已发送", logger.String("user_id", user.ID))
	}()
}
