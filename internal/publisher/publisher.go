package publisher

import (
	"encoding/json"

	"github.com/pumpfunds/copytrader/internal/model"
	"github.com/pumpfunds/copytrader/pkg/logger"
	"github.com/pumpfunds/copytrader/pkg/mq/kafka"
)

// Config 跟单记录外发配置
type Config struct {
	Enabled  bool                      `yaml:"enabled" json:"enabled"`
	Brokers  []string                  `yaml:"brokers" json:"brokers"`
	Topic    string                    `yaml:"topic" json:"topic"`
	Producer kafka.KafkaProducerConfig `yaml:"producer" json:"producer"`
}

// TradePublisher 将跟单记录写入Kafka审计流。
// 与推送通知同一契约：失败只记录日志，不影响跟单主流程。
type TradePublisher struct {
	topic string
}

// Setup 初始化生产者并返回发布器
func Setup(cfg Config) (*TradePublisher, error) {
	if cfg.Topic == "" {
		cfg.Topic = "copytrader.trades"
	}
	if err := kafka.SetupKafkaProducer(cfg.Brokers, cfg.Producer); err != nil {
		return nil, err
	}
	logger.Info("📡 跟单审计流已启用", logger.String("topic", cfg.Topic))
	return &TradePublisher{topic: cfg.Topic}, nil
}

// PublishTradeRecord 异步发布一条跟单记录
func (p *TradePublisher) PublishTradeRecord(record *model.TradeRecord) {
	payload, err := json.Marshal(record)
	if err != nil {
		logger.Warn("⚠️ 序列化跟单记录失败", logger.FieldErr(err))
		return
	}

	go func() {
		if err := kafka.SendMessageWithKey(p.topic, record.UserID, payload); err != nil {
			logger.Warn("⚠️ 发布跟单记录失败",
				logger.String("user_id", record.UserID),
				logger.String("source_signature", record.SourceSignature),
				logger.FieldErr(err))
		}
	}()
}

// Close 关闭生产者
func (p *TradePublisher) Close() error {
	return kafka.CloseProducer()
}
