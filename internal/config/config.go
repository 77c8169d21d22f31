package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config 配置结构体
type Config struct {
	// Binance配置
	BinanceAPIKey         string
	BinanceSecretKey      string
	BinanceTestnet        bool
	BinanceFAPIBaseURL    string
	BinanceHTTPTimeoutSec float64
	BinanceRecvWindowMs   int

	// Dry-run模式
	DryRun bool

	// 交易对与周期
	Symbol      string
	Timeframe   string
	CandleLimit int
	Leverage    int
	MarginType  string

	// 仓位与风控参数
	PositionRatio       float64
	TrailCallbackRate   float64
	HardStopLossPct     float64
	BackupTakeProfitPct float64
	BackupStopLossPct   float64

	// 信号阈值
	RSILongMax  float64
	RSIShortMin float64

	// 开仓订单
	EntryOrderType      string
	EntryLimitOffsetPct float64

	// 功能开关
	EnableTrailingFallback bool
	EnableBackupTP         bool

	// 调度
	ScheduleMode         string
	PollIntervalSec      int
	CandleCloseDelaySec  int
	ErrorRetryDelaySec   int
	BotRestartBackoffSec int
	BotMaxRestarts       int

	// 通知
	NotifyQueueSize  int
	TelegramBotToken string
	TelegramChatID   int64
	AlertWebhookURL  string

	// Redis配置
	RedisEnabled        bool
	RedisHost           string
	RedisPort           int
	RedisPassword       string
	RedisDB             int
	InstanceLeaseTTLSec int
	AuditMaxLen         int
	StatusTTLSec        int

	// Web配置
	WebPort          int
	WebBasicAuthUser string
	WebBasicAuthPass string

	// 日志配置
	LogLevel string
	LogFile  string
}

const (
	binanceMainnetURL = "https://fapi.binance.com"
	binanceTestnetURL = "https://testnet.binancefuture.com"
)

var globalConfig *Config

// Load 加载配置
func Load() error {
	_ = godotenv.Load()

	testnet := getBoolEnv("BINANCE_TESTNET", false)
	baseURL := binanceMainnetURL
	if testnet {
		baseURL = binanceTestnetURL
	}

	globalConfig = &Config{
		BinanceAPIKey:         getEnv("BINANCE_API_KEY", ""),
		BinanceSecretKey:      getEnv("BINANCE_SECRET_KEY", ""),
		BinanceTestnet:        testnet,
		BinanceFAPIBaseURL:    getEnv("BINANCE_FAPI_BASE_URL", baseURL),
		BinanceHTTPTimeoutSec: getFloatEnv("BINANCE_HTTP_TIMEOUT_SEC", 10.0),
		BinanceRecvWindowMs:   getIntEnv("BINANCE_RECV_WINDOW_MS", 5000),

		DryRun: getBoolEnv("DRY_RUN", true),

		Symbol:      strings.ToUpper(getEnv("SYMBOL", "BTCUSDT")),
		Timeframe:   getEnv("TIMEFRAME", "15m"),
		CandleLimit: getIntEnv("CANDLE_LIMIT", 200),
		Leverage:    getIntEnv("LEVERAGE", 1),
		MarginType:  strings.ToUpper(getEnv("MARGIN_TYPE", "ISOLATED")),

		PositionRatio:       getFloatEnv("POSITION_RATIO", 0.10),
		TrailCallbackRate:   getFloatEnv("TRAIL_CALLBACK_RATE", 1.5),
		HardStopLossPct:     getFloatEnv("HARD_STOP_LOSS_PCT", -5.0),
		BackupTakeProfitPct: getFloatEnv("BACKUP_TAKE_PROFIT_PCT", 3.0),
		BackupStopLossPct:   getFloatEnv("BACKUP_STOP_LOSS_PCT", 0),

		RSILongMax:  getFloatEnv("RSI_LONG_MAX", 68.0),
		RSIShortMin: getFloatEnv("RSI_SHORT_MIN", 32.0),

		EntryOrderType:      strings.ToLower(getEnv("ENTRY_ORDER_TYPE", "market")),
		EntryLimitOffsetPct: getFloatEnv("ENTRY_LIMIT_OFFSET_PCT", 0.05),

		EnableTrailingFallback: getBoolEnv("ENABLE_TRAILING_FALLBACK", true),
		EnableBackupTP:         getBoolEnv("ENABLE_BACKUP_TP", true),

		ScheduleMode:         strings.ToLower(getEnv("SCHEDULE_MODE", "candle")),
		PollIntervalSec:      getIntEnv("POLL_INTERVAL_SEC", 30),
		CandleCloseDelaySec:  getIntEnv("CANDLE_CLOSE_DELAY_SEC", 2),
		ErrorRetryDelaySec:   getIntEnv("ERROR_RETRY_DELAY_SEC", 30),
		BotRestartBackoffSec: getIntEnv("BOT_RESTART_BACKOFF_SEC", 10),
		BotMaxRestarts:       getIntEnv("BOT_MAX_RESTARTS", 0),

		NotifyQueueSize:  getIntEnv("NOTIFY_QUEUE_SIZE", 64),
		TelegramBotToken: getEnv("TELEGRAM_BOT_TOKEN", ""),
		TelegramChatID:   getInt64Env("TELEGRAM_CHAT_ID", 0),
		AlertWebhookURL:  getEnv("ALERT_WEBHOOK_URL", ""),

		RedisEnabled:        getBoolEnv("REDIS_ENABLED", false),
		RedisHost:           getEnv("REDIS_HOST", "localhost"),
		RedisPort:           getIntEnv("REDIS_PORT", 6379),
		RedisPassword:       getEnv("REDIS_PASSWORD", ""),
		RedisDB:             getIntEnv("REDIS_DB", 0),
		InstanceLeaseTTLSec: getIntEnv("INSTANCE_LEASE_TTL_SEC", 120),
		AuditMaxLen:         getIntEnv("AUDIT_MAX_LEN", 2000),
		StatusTTLSec:        getIntEnv("STATUS_TTL_SEC", 600),

		WebPort:          getIntEnv("WEB_PORT", 5000),
		WebBasicAuthUser: getEnv("WEB_BASIC_AUTH_USER", ""),
		WebBasicAuthPass: getEnv("WEB_BASIC_AUTH_PASS", ""),

		LogLevel: getEnv("LOG_LEVEL", "INFO"),
		LogFile:  getEnv("LOG_FILE", "trading_bot.log"),
	}

	return nil
}

// Get 获取全局配置
func Get() *Config {
	if globalConfig == nil {
		_ = Load()
	}
	return globalConfig
}

// Set 替换全局配置（测试使用）
func Set(cfg *Config) {
	globalConfig = cfg
}

// GetRedisKey 生成Redis键名
func GetRedisKey(name string) string {
	return "trendguard:" + name
}

// 辅助函数
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return strings.TrimSpace(value)
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		value = strings.TrimSpace(value)
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getInt64Env(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		value = strings.TrimSpace(value)
		if intValue, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getFloatEnv(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		value = strings.TrimSpace(value)
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		value = strings.TrimSpace(value)
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}
