package config

import (
	"fmt"

	"github.com/hashicorp/go-multierror"

	"github.com/pumpfunds/copytrader/internal/chain"
	"github.com/pumpfunds/copytrader/internal/notifier"
	"github.com/pumpfunds/copytrader/internal/publisher"
	"github.com/pumpfunds/copytrader/internal/registry"
	"github.com/pumpfunds/copytrader/internal/router"
	"github.com/pumpfunds/copytrader/internal/server"
	"github.com/pumpfunds/copytrader/pkg/config"
	"github.com/pumpfunds/copytrader/pkg/config/source"
	"github.com/pumpfunds/copytrader/pkg/config/source/file"
	"github.com/pumpfunds/copytrader/pkg/database/mysql"
	"github.com/pumpfunds/copytrader/pkg/logger"
	"github.com/pumpfunds/copytrader/pkg/utils"
)

// AppConfig 应用配置结构
type AppConfig struct {
	Logger    LoggerConfig      `yaml:"logger" json:"logger"`
	Server    server.Config     `yaml:"server" json:"server"`
	Mysql     mysql.MysqlConfig `yaml:"mysql" json:"mysql"`
	Registry  registry.Config   `yaml:"registry" json:"registry"`
	Router    router.Config     `yaml:"router" json:"router"`
	Chain     chain.Config      `yaml:"chain" json:"chain"`
	Notifier  notifier.Config   `yaml:"notifier" json:"notifier"`
	Publisher publisher.Config  `yaml:"publisher" json:"publisher"`
	Trading   TradingConfig     `yaml:"trading" json:"trading"`
}

// LoggerConfig 日志配置
type LoggerConfig struct {
	Output     string `yaml:"output" json:"output"`
	Debug      bool   `yaml:"debug" json:"debug"`
	Level      string `yaml:"level" json:"level"`
	AddCaller  bool   `yaml:"add_caller" json:"add_caller"`
	CallerSkip int    `yaml:"caller_skip" json:"caller_skip"`
}

// TradingConfig 跟单执行配置
type TradingConfig struct {
	// SecretKey 解密用户托管私钥的对称密钥(hex或base64)
	SecretKey string `yaml:"secret_key" json:"secret_key"`
	// WebhookWorkers webhook解码worker数
	WebhookWorkers int `yaml:"webhook_workers" json:"webhook_workers"`
	// MaxConcurrentTrades 并发跟单执行上限
	MaxConcurrentTrades int `yaml:"max_concurrent_trades" json:"max_concurrent_trades"`
}

// Manager 配置管理器
type Manager struct {
	config *AppConfig
}

// NewManager 创建配置管理器
func NewManager() *Manager {
	return &Manager{}
}

// Load 加载配置文件，环境变量可覆盖配置文件路径
func (m *Manager) Load(configPath string) error {
	if p := utils.GetConfigFilePath(); p != "" {
		configPath = p
	}

	// 使用默认config，它已经支持yaml格式了
	err := config.Load(file.NewSource(
		file.WithPath(configPath),
		source.WithFormat("yaml"),
	))
	if err != nil {
		return err
	}

	// 解析配置
	var appConfig AppConfig
	err = config.Scan(&appConfig)
	if err != nil {
		return err
	}

	m.config = &appConfig
	return nil
}

// Validate 校验启动必需的配置项，聚合全部缺失项一次性报出
func (m *Manager) Validate() error {
	var result *multierror.Error

	if m.config.Chain.RPCURL == "" {
		result = multierror.Append(result, fmt.Errorf("chain.rpc_url is required"))
	}
	if m.config.Registry.APIKey == "" {
		result = multierror.Append(result, fmt.Errorf("registry.api_key is required"))
	}
	if m.config.Registry.WebhookURL == "" {
		result = multierror.Append(result, fmt.Errorf("registry.webhook_url is required"))
	}
	if m.config.Trading.SecretKey == "" {
		result = multierror.Append(result, fmt.Errorf("trading.secret_key is required"))
	}
	if m.config.Mysql.Host == "" {
		result = multierror.Append(result, fmt.Errorf("mysql.host is required"))
	}
	if m.config.Notifier.Enabled && m.config.Notifier.ServerKey == "" {
		result = multierror.Append(result, fmt.Errorf("notifier.server_key is required when notifier is enabled"))
	}
	if m.config.Publisher.Enabled && len(m.config.Publisher.Brokers) == 0 {
		result = multierror.Append(result, fmt.Errorf("publisher.brokers is required when publisher is enabled"))
	}

	return result.ErrorOrNil()
}

// GetAppConfig 获取应用配置
func (m *Manager) GetAppConfig() *AppConfig {
	return m.config
}

// GetLoggerConfig 获取日志配置
func (m *Manager) GetLoggerConfig() LoggerConfig {
	return m.config.Logger
}

// GetDatabaseConfig 获取数据库配置
func (m *Manager) GetDatabaseConfig() mysql.MysqlConfig {
	return m.config.Mysql
}

// GetTradingConfig 获取跟单执行配置
func (m *Manager) GetTradingConfig() TradingConfig {
	return m.config.Trading
}

// InitLogger 初始化日志系统
func (m *Manager) InitLogger() error {
	loggerConfig := logger.FromConfig("logger")
	loggerInstance := loggerConfig.Build()
	logger.SetDefault(loggerInstance)
	logger.SetDefaultL1(loggerInstance)
	return nil
}
