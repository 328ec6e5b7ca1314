package config

import (
	"time"

	"github.com/Giveth/giveth-dapp-sub001/internal/logger"
	"github.com/spf13/viper"
)

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Chain    ChainConfig    `mapstructure:"chain"`
	Engine   EngineConfig   `mapstructure:"engine"`
	Log      LogConfig      `mapstructure:"log"`
}

type ServerConfig struct {
	Port string `mapstructure:"port"`
	Mode string `mapstructure:"mode"`
}

type DatabaseConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
	SSLMode  string `mapstructure:"sslmode"`
}

// ChainConfig 单链配置
type ChainConfig struct {
	ChainType  string         `mapstructure:"chain_type"`  // 链类型 (ethereum, polygon, etc.)
	ChainId    int64          `mapstructure:"chain_id"`    // 链ID
	RpcUrl     string         `mapstructure:"rpc_url"`     // RPC节点URL
	PrivateKey string         `mapstructure:"private_key"` // 私钥
	Contract   ContractConfig `mapstructure:"contract"`    // 质押账本合约配置
}

// ContractConfig 账本合约配置
type ContractConfig struct {
	Address  string `mapstructure:"address"`   // 合约地址
	BlockNum int64  `mapstructure:"block_num"` // 合约部署区块号
}

// EngineConfig 委派/结算引擎配置
type EngineConfig struct {
	CommitWindowHours  int `mapstructure:"commit_window_hours"`  // 委派确认窗口（小时），窗口过后自动提交
	SubmitTimeout      int `mapstructure:"submit_timeout"`       // 链上提交超时（秒）
	MaxSubmitRetries   int `mapstructure:"max_submit_retries"`   // 超时后重新广播次数
	Confirmations      int `mapstructure:"confirmations"`        // 确认区块数
	SweepInterval      int `mapstructure:"sweep_interval"`       // 确认窗口扫描间隔（秒）
	MonitorInterval    int `mapstructure:"monitor_interval"`     // 事件监控轮询间隔（秒）
	MonitorBatchSize   int `mapstructure:"monitor_batch_size"`   // 每批处理的区块数
	SubscriptionBuffer int `mapstructure:"subscription_buffer"`  // 订阅通道缓冲大小
}

// CommitWindow 确认窗口时长
func (e EngineConfig) CommitWindow() time.Duration {
	return time.Duration(e.CommitWindowHours) * time.Hour
}

// SubmitTimeoutDuration 链上提交超时时长
func (e EngineConfig) SubmitTimeoutDuration() time.Duration {
	return time.Duration(e.SubmitTimeout) * time.Second
}

type LogConfig struct {
	Level  string `mapstructure:"level"`  // 日志级别: debug, info, warn, error, fatal
	Output string `mapstructure:"output"` // 输出目标: stdout, stderr, file
	File   string `mapstructure:"file"`   // 日志文件路径（当output为file时使用）
}

func Load() *Config {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")
	viper.AddConfigPath("/etc/pledge-engine")

	// 设置默认值
	viper.SetDefault("server.port", "8080")
	viper.SetDefault("server.mode", "debug")
	viper.SetDefault("database.host", "localhost")
	viper.SetDefault("database.port", 5432)
	viper.SetDefault("database.user", "postgres")
	viper.SetDefault("database.password", "")
	viper.SetDefault("database.dbname", "pledge_engine")
	viper.SetDefault("database.sslmode", "disable")
	viper.SetDefault("chain.chain_type", "ethereum")
	viper.SetDefault("chain.chain_id", 1)
	viper.SetDefault("engine.commit_window_hours", 72)
	viper.SetDefault("engine.submit_timeout", 300)
	viper.SetDefault("engine.max_submit_retries", 3)
	viper.SetDefault("engine.confirmations", 12)
	viper.SetDefault("engine.sweep_interval", 60)
	viper.SetDefault("engine.monitor_interval", 60)
	viper.SetDefault("engine.monitor_batch_size", 500)
	viper.SetDefault("engine.subscription_buffer", 64)
	viper.SetDefault("log.level", "info")
	viper.SetDefault("log.output", "stdout")
	viper.SetDefault("log.file", "logs/app.log")

	// 自动读取环境变量
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		logger.Warn("Warning: Could not read config file: %v", err)
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		logger.Fatal("Unable to decode config into struct: %v", err)
	}

	return &config
}
