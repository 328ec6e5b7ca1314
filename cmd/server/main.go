package main

import (
	"github.com/Giveth/giveth-dapp-sub001/internal/config"
	"github.com/Giveth/giveth-dapp-sub001/internal/database"
	"github.com/Giveth/giveth-dapp-sub001/internal/index"
	"github.com/Giveth/giveth-dapp-sub001/internal/ledger"
	"github.com/Giveth/giveth-dapp-sub001/internal/logger"
	"github.com/Giveth/giveth-dapp-sub001/internal/monitor"
	"github.com/Giveth/giveth-dapp-sub001/internal/notify"
	"github.com/Giveth/giveth-dapp-sub001/internal/registry"
	"github.com/Giveth/giveth-dapp-sub001/internal/router"
	"github.com/Giveth/giveth-dapp-sub001/internal/subscription"
	"github.com/Giveth/giveth-dapp-sub001/internal/task"
	"github.com/Giveth/giveth-dapp-sub001/internal/workflow"
	"github.com/gin-gonic/gin"
)

func main() {
	// 加载配置
	cfg := config.Load()

	// 初始化日志
	setupLogger(cfg.Log)

	// 初始化数据库
	db, err := database.Init(cfg.Database)
	if err != nil {
		logger.Fatal("Failed to initialize database: %v", err)
	}

	// 初始化账本客户端
	ledgerClient, err := ledger.Init(cfg.Chain, cfg.Engine)
	if err != nil {
		logger.Fatal("Failed to initialize ledger client: %v", err)
	}

	// 组装引擎
	broker := subscription.NewBroker(db, cfg.Engine.SubscriptionBuffer)
	reg := registry.NewRegistry(db)
	idx := index.NewIndex(db, reg, broker, notify.NewLogNotifier())
	delegationWf := workflow.NewDelegationWorkflow(idx, reg, ledgerClient, cfg.Engine.CommitWindow())
	withdrawalWf := workflow.NewWithdrawalWorkflow(idx, reg, ledgerClient)

	// 启动事件监控
	ledgerMonitor := monitor.NewLedgerMonitor(ledgerClient, db, idx, reg, cfg)
	if err := ledgerMonitor.Start(); err != nil {
		logger.Fatal("Failed to start ledger monitor: %v", err)
	}
	defer ledgerMonitor.Stop()

	// 启动定时任务
	taskManager := task.Start(idx, delegationWf, ledgerClient, cfg)
	defer taskManager.Stop()

	// 设置Gin模式
	if cfg.Server.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	// 初始化路由
	r := router.Setup(reg, idx, delegationWf, withdrawalWf, broker)

	// 启动服务器
	logger.Info("Server starting on port %s", cfg.Server.Port)
	if err := r.Run(":" + cfg.Server.Port); err != nil {
		logger.Fatal("Failed to start server: %v", err)
	}
}

// setupLogger 按配置初始化全局日志器
func setupLogger(cfg config.LogConfig) {
	level := logger.ParseLogLevel(cfg.Level)

	var l *logger.Logger
	var err error
	if cfg.Output == "file" {
		l, err = logger.NewWithFileRotation(level, cfg.File)
	} else {
		l, err = logger.New(level)
	}
	if err != nil {
		logger.Fatal("Failed to initialize logger: %v", err)
	}
	logger.SetDefaultLogger(l)
}
