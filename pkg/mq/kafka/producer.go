package kafka

import (
	"crypto/tls"
	"time"

	"github.com/IBM/sarama"
)

func newProducerConfig(cfg KafkaProducerConfig) *sarama.Config {
	conf := sarama.NewConfig()
	conf.Producer.Return.Successes = true
	conf.Producer.RequiredAcks = sarama.WaitForLocal
	conf.Producer.Retry.Max = 3
	conf.Producer.Retry.Backoff = 1000 * time.Millisecond
	conf.Producer.Compression = sarama.CompressionSnappy
	conf.Producer.MaxMessageBytes = DefaultMessageMaxBytes

	if cfg.RequiredAcks != 0 {
		conf.Producer.RequiredAcks = sarama.RequiredAcks(cfg.RequiredAcks)
	}
	if cfg.RetryBackoffMs != 0 {
		conf.Producer.Retry.Backoff = time.Duration(cfg.RetryBackoffMs) * time.Millisecond
	}
	if cfg.MessageMaxBytes != 0 {
		conf.Producer.MaxMessageBytes = cfg.MessageMaxBytes
	}
	if cfg.LingerMs != 0 {
		conf.Producer.Flush.Frequency = time.Duration(cfg.LingerMs) * time.Millisecond
	}
	if cfg.ClientID != "" {
		conf.ClientID = cfg.ClientID + getClientID()
	}

	switch cfg.SecurityProtocol {
	case "PLAINTEXT", "":
	case "SASL_PLAINTEXT":
		conf.Net.SASL.Enable = true
		conf.Net.SASL.User = cfg.SaslUsername
		conf.Net.SASL.Password = cfg.SaslPassword
		if cfg.SaslMechanism != "" {
			conf.Net.SASL.Mechanism = sarama.SASLMechanism(cfg.SaslMechanism)
		}
	case "SASL_SSL":
		conf.Net.SASL.Enable = true
		conf.Net.SASL.User = cfg.SaslUsername
		conf.Net.SASL.Password = cfg.SaslPassword
		conf.Net.TLS.Enable = true
		// 部分托管集群证书hostname不匹配，跳过校验
		conf.Net.TLS.Config = &tls.Config{InsecureSkipVerify: true}
	case "SSL":
		conf.Net.TLS.Enable = true
		conf.Net.TLS.Config = &tls.Config{InsecureSkipVerify: true}
	}

	return conf
}

type KafkaProducer struct {
	producer sarama.SyncProducer
}

func NewKafkaProducer(brokers []string, cfg KafkaProducerConfig) (*KafkaProducer, error) {
	producer, err := sarama.NewSyncProducer(brokers, newProducerConfig(cfg))
	if err != nil {
		return nil, err
	}
	return &KafkaProducer{producer: producer}, nil
}

func (p *KafkaProducer) SendMessage(topic string, value []byte) error {
	msg := &sarama.ProducerMessage{
		Topic: topic,
		Value: sarama.ByteEncoder(value),
	}
	_, _, err := p.producer.SendMessage(msg)
	return err
}

func (p *KafkaProducer) SendMessageWithKey(topic string, key string, value []byte) error {
	msg := &sarama.ProducerMessage{
		Topic: topic,
		Key:   sarama.StringEncoder(key),
		Value: sarama.ByteEncoder(value),
	}
	_, _, err := p.producer.SendMessage(msg)
	return err
}

func (p *KafkaProducer) Close() error {
	return p.producer.Close()
}

func CloseProducer() error {
	return defaultProducer.Close()
}

func SendMessage(topic string, value []byte) error {
	return defaultProducer.SendMessage(topic, value)
}

func SendMessageWithKey(topic string, key string, value []byte) error {
	return defaultProducer.SendMessageWithKey(topic, key, value)
}
