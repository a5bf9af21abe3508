package app

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"gorm.io/gorm"

	"github.com/pumpfunds/copytrader/internal/chain"
	"github.com/pumpfunds/copytrader/internal/config"
	"github.com/pumpfunds/copytrader/internal/dedup"
	"github.com/pumpfunds/copytrader/internal/dispatcher"
	"github.com/pumpfunds/copytrader/internal/executor"
	"github.com/pumpfunds/copytrader/internal/matcher"
	"github.com/pumpfunds/copytrader/internal/notifier"
	"github.com/pumpfunds/copytrader/internal/publisher"
	"github.com/pumpfunds/copytrader/internal/registry"
	"github.com/pumpfunds/copytrader/internal/repo"
	"github.com/pumpfunds/copytrader/internal/router"
	"github.com/pumpfunds/copytrader/internal/server"
	"github.com/pumpfunds/copytrader/internal/source/poller"
	"github.com/pumpfunds/copytrader/internal/source/webhook"
	"github.com/pumpfunds/copytrader/internal/subscription"
	"github.com/pumpfunds/copytrader/pkg/database/mysql"
	"github.com/pumpfunds/copytrader/pkg/logger"
	"github.com/pumpfunds/copytrader/pkg/secretbox"
)

// Application 基金跟单应用
type Application struct {
	configManager *config.Manager
	db            *gorm.DB

	fundRepo       repo.FundRepo
	investmentRepo repo.InvestmentRepo
	userRepo       repo.UserRepo
	tradeRepo      repo.TradeRepo

	registryClient *registry.Client
	gate           *dedup.Gate
	subs           *subscription.Manager
	dispatcher     *dispatcher.Dispatcher
	tradePublisher *publisher.TradePublisher
	server         *server.Server
}

// New 创建跟单应用实例
func New() *Application {
	return &Application{
		configManager: config.NewManager(),
	}
}

// Initialize 初始化应用
func (app *Application) Initialize(configPath string) error {
	// 1. 加载配置
	if err := app.configManager.Load(configPath); err != nil {
		return err
	}

	// 2. 初始化日志系统
	if err := app.configManager.InitLogger(); err != nil {
		return err
	}
	logger.Info("🚀 基金跟单服务初始化开始", logger.String("config_path", configPath))

	// 3. 配置校验
	if err := app.configManager.Validate(); err != nil {
		return err
	}

	// 4. 初始化数据库与仓储
	if err := app.initDatabase(); err != nil {
		return err
	}

	// 5. 组装组件
	if err := app.setupComponents(); err != nil {
		return err
	}

	logger.Info("✅ 基金跟单服务初始化完成")
	return nil
}

// initDatabase 初始化数据库连接与仓储
func (app *Application) initDatabase() error {
	if err := mysql.SetupDatabaseFromDefaultConfig(); err != nil {
		return err
	}

	db, err := mysql.GetDb()
	if err != nil {
		return err
	}
	app.db = db

	app.fundRepo = repo.NewFundRepo(db)
	app.investmentRepo = repo.NewInvestmentRepo(db)
	app.userRepo = repo.NewUserRepo(db)
	app.tradeRepo = repo.NewTradeRepo(db)

	logger.Info("📊 数据库连接已建立")
	return nil
}

// setupComponents 组装跟单链路：客户端 → 执行器 → 订阅管理 → 数据源 → 分发器 → HTTP
func (app *Application) setupComponents() error {
	appConfig := app.configManager.GetAppConfig()
	tradingConfig := app.configManager.GetTradingConfig()

	// 外部客户端
	app.registryClient = registry.NewClient(appConfig.Registry)
	routerClient := router.NewClient(appConfig.Router)
	chainClient := chain.NewClient(appConfig.Chain)

	// 私钥解密密钥
	secretKey, err := secretbox.ParseKey(tradingConfig.SecretKey)
	if err != nil {
		return err
	}

	// 通知与执行器
	pushNotifier := notifier.NewPushNotifier(appConfig.Notifier)
	tradeExecutor := executor.New(
		app.userRepo, app.tradeRepo,
		chainClient, routerClient,
		pushNotifier, secretKey,
	)

	// 可选的Kafka审计流
	if appConfig.Publisher.Enabled {
		tradePublisher, err := publisher.Setup(appConfig.Publisher)
		if err != nil {
			return err
		}
		app.tradePublisher = tradePublisher
		tradeExecutor.SetTradePublisher(tradePublisher)
	}

	// 钱包订阅管理
	app.subs = subscription.NewManager(app.fundRepo, app.investmentRepo, app.registryClient)

	// 去重闸口
	app.gate = dedup.NewGate(dedup.DefaultTTL)

	// 事件分发器与双通道数据源
	app.dispatcher = dispatcher.New(
		matcher.New(app.fundRepo, app.investmentRepo),
		app.gate,
		tradeExecutor,
		app.userRepo,
		pushNotifier,
		tradingConfig.MaxConcurrentTrades,
	)

	webhookSource := webhook.NewSource(tradingConfig.WebhookWorkers)
	pollerSource := poller.NewSource(poller.DefaultConfig(), app.subs, app.registryClient)
	app.dispatcher.GetSourceManager().AddSource(webhookSource)
	app.dispatcher.GetSourceManager().AddSource(pollerSource)

	logger.Info("📡 已配置双通道数据源",
		logger.String("push", webhookSource.String()),
		logger.String("fallback", pollerSource.String()))

	// HTTP入口
	app.server = server.New(
		appConfig.Server,
		webhookSource.Handler(),
		app.subs,
		app.dispatcher,
		app.fundRepo,
		app.investmentRepo,
	)

	return nil
}

// Run 运行应用
func (app *Application) Run() error {
	logger.Info("🎯 启动基金跟单链路")

	app.gate.Start()

	if err := app.subs.Start(); err != nil {
		return err
	}

	if err := app.dispatcher.Start(); err != nil {
		return err
	}

	app.server.Start()

	logger.Info("🔥 基金跟单服务已启动，开始监控基金钱包...")
	logger.Info("📡 数据源: webhook推送 + 钱包轮询兜底")
	logger.Info("🔁 去重窗口5分钟 | 单笔跟单最多重试3次")

	// 等待终止信号
	app.waitForShutdown()

	return nil
}

// waitForShutdown 等待关闭信号
func (app *Application) waitForShutdown() {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	// 阻塞等待信号
	sig := <-quit
	logger.Info("📤 收到终止信号，开始优雅关闭应用...", logger.String("signal", sig.String()))

	// 优雅关闭
	app.Shutdown()
}

// Shutdown 优雅关闭应用，先停入口再停链路最后断外设
func (app *Application) Shutdown() {
	logger.Info("🛑 开始关闭基金跟单服务...")

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := app.server.Stop(ctx); err != nil {
		logger.Error("停止HTTP服务失败", logger.FieldErr(err))
	}

	if err := app.dispatcher.Stop(); err != nil {
		logger.Error("停止事件分发器失败", logger.FieldErr(err))
	}

	app.subs.Stop()
	app.gate.Stop()

	if app.tradePublisher != nil {
		if err := app.tradePublisher.Close(); err != nil {
			logger.Error("关闭跟单审计流失败", logger.FieldErr(err))
		}
	}

	if err := mysql.Stop(); err != nil {
		logger.Error("关闭数据库连接失败", logger.FieldErr(err))
	}

	stats := app.dispatcher.GetStats()
	logger.Info("📈 服务运行统计",
		logger.Int64("events_processed", stats.EventsProcessed),
		logger.Int64("trades_launched", stats.TradesLaunched),
		logger.Int64("errors_count", stats.ErrorsCount),
		logger.Int("monitored_wallets", app.subs.WalletCount()))

	logger.Info("✨ 基金跟单服务已成功关闭")
}

// Start 启动应用的便捷方法
func (app *Application) Start(configPath string) error {
	// 初始化
	if err := app.Initialize(configPath); err != nil {
		logger.Error("❌ 基金跟单服务初始化失败", logger.FieldErr(err))
		return err
	}

	// 运行
	if err := app.Run(); err != nil {
		logger.Error("❌ 基金跟单服务运行失败", logger.FieldErr(err))
		return err
	}

	return nil
}

// GetConfigManager 获取配置管理器
func (app *Application) GetConfigManager() *config.Manager {
	return app.configManager
}

// GetDatabase 获取数据库连接
func (app *Application) GetDatabase() *gorm.DB {
	return app.db
}
