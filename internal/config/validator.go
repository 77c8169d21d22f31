package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// ValidateConfig 验证配置
func ValidateConfig() error {
	cfg := Get()
	var errors []string

	// 验证Binance配置（如果非DRY_RUN模式）
	if !cfg.DryRun {
		if cfg.BinanceAPIKey == "" {
			errors = append(errors, "BINANCE_API_KEY is required when DRY_RUN=false")
		}
		if cfg.BinanceSecretKey == "" {
			errors = append(errors, "BINANCE_SECRET_KEY is required when DRY_RUN=false")
		}
	}
	if cfg.BinanceFAPIBaseURL == "" {
		errors = append(errors, "BINANCE_FAPI_BASE_URL is required")
	}

	// 验证交易参数
	if cfg.Symbol == "" {
		errors = append(errors, "SYMBOL is required")
	}
	if _, err := cfg.TimeframeDuration(); err != nil {
		errors = append(errors, fmt.Sprintf("TIMEFRAME is invalid: %v", err))
	}
	if cfg.CandleLimit < 3 || cfg.CandleLimit > 1500 {
		errors = append(errors, fmt.Sprintf("CANDLE_LIMIT must be between 3 and 1500, got %d", cfg.CandleLimit))
	}
	if cfg.Leverage <= 0 || cfg.Leverage > 125 {
		errors = append(errors, fmt.Sprintf("LEVERAGE must be between 1 and 125, got %d", cfg.Leverage))
	}
	if cfg.MarginType != "ISOLATED" && cfg.MarginType != "CROSSED" {
		errors = append(errors, fmt.Sprintf("MARGIN_TYPE must be ISOLATED or CROSSED, got %s", cfg.MarginType))
	}
	if cfg.PositionRatio <= 0 || cfg.PositionRatio > 1 {
		errors = append(errors, fmt.Sprintf("POSITION_RATIO must be in (0, 1], got %g", cfg.PositionRatio))
	}
	// Binance要求回调比例在0.1%到5%之间
	if cfg.TrailCallbackRate < 0.1 || cfg.TrailCallbackRate > 5 {
		errors = append(errors, fmt.Sprintf("TRAIL_CALLBACK_RATE must be between 0.1 and 5, got %g", cfg.TrailCallbackRate))
	}
	if cfg.HardStopLossPct >= 0 {
		errors = append(errors, fmt.Sprintf("HARD_STOP_LOSS_PCT must be negative, got %g", cfg.HardStopLossPct))
	}
	if cfg.BackupTakeProfitPct <= 0 {
		errors = append(errors, "BACKUP_TAKE_PROFIT_PCT must be greater than 0")
	}
	if cfg.BackupStopLossPct < 0 {
		errors = append(errors, "BACKUP_STOP_LOSS_PCT must not be negative")
	}
	if cfg.RSILongMax <= 0 || cfg.RSILongMax > 100 || cfg.RSIShortMin < 0 || cfg.RSIShortMin >= 100 {
		errors = append(errors, "RSI_LONG_MAX and RSI_SHORT_MIN must be within [0, 100]")
	}
	if cfg.EntryOrderType != "market" && cfg.EntryOrderType != "limit" {
		errors = append(errors, fmt.Sprintf("ENTRY_ORDER_TYPE must be market or limit, got %s", cfg.EntryOrderType))
	}
	if cfg.EntryOrderType == "limit" && (cfg.EntryLimitOffsetPct < 0 || cfg.EntryLimitOffsetPct >= 5) {
		errors = append(errors, "ENTRY_LIMIT_OFFSET_PCT must be within [0, 5)")
	}

	// 验证调度配置
	if cfg.ScheduleMode != "candle" && cfg.ScheduleMode != "fixed" {
		errors = append(errors, fmt.Sprintf("SCHEDULE_MODE must be candle or fixed, got %s", cfg.ScheduleMode))
	}
	if cfg.PollIntervalSec <= 0 {
		errors = append(errors, "POLL_INTERVAL_SEC must be greater than 0")
	}
	if cfg.CandleCloseDelaySec < 0 {
		errors = append(errors, "CANDLE_CLOSE_DELAY_SEC must not be negative")
	}
	if cfg.ErrorRetryDelaySec <= 0 {
		errors = append(errors, "ERROR_RETRY_DELAY_SEC must be greater than 0")
	}
	if cfg.BotRestartBackoffSec <= 0 {
		errors = append(errors, "BOT_RESTART_BACKOFF_SEC must be greater than 0")
	}
	if cfg.BotMaxRestarts < 0 {
		errors = append(errors, "BOT_MAX_RESTARTS must not be negative (0 = unbounded)")
	}

	// 验证通知配置
	if cfg.NotifyQueueSize <= 0 {
		errors = append(errors, "NOTIFY_QUEUE_SIZE must be greater than 0")
	}
	if cfg.TelegramBotToken != "" && cfg.TelegramChatID == 0 {
		errors = append(errors, "TELEGRAM_CHAT_ID is required when TELEGRAM_BOT_TOKEN is set")
	}

	// 验证Redis配置（如果启用）
	if cfg.RedisEnabled {
		if cfg.RedisHost == "" {
			errors = append(errors, "REDIS_HOST is required when REDIS_ENABLED=true")
		}
		if cfg.RedisPort <= 0 || cfg.RedisPort > 65535 {
			errors = append(errors, fmt.Sprintf("REDIS_PORT must be between 1 and 65535, got %d", cfg.RedisPort))
		}
		if cfg.InstanceLeaseTTLSec <= 0 {
			errors = append(errors, "INSTANCE_LEASE_TTL_SEC must be greater than 0")
		}
	}

	// 验证Web配置
	if cfg.WebPort <= 0 || cfg.WebPort > 65535 {
		errors = append(errors, fmt.Sprintf("WEB_PORT must be between 1 and 65535, got %d", cfg.WebPort))
	}
	if (cfg.WebBasicAuthUser == "") != (cfg.WebBasicAuthPass == "") {
		errors = append(errors, "WEB_BASIC_AUTH_USER and WEB_BASIC_AUTH_PASS must be set together")
	}

	// 如果有错误，返回
	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n  - %s", strings.Join(errors, "\n  - "))
	}

	return nil
}

// ValidateAndExit 验证配置并在失败时退出
func ValidateAndExit() {
	if err := ValidateConfig(); err != nil {
		fmt.Fprintf(os.Stderr, "❌ Configuration validation failed:\n%v\n", err)
		os.Exit(1)
	}
}

// TimeframeDuration 将K线周期（如 1m、15m、4h、1d、1w）转换为时长
func (c *Config) TimeframeDuration() (time.Duration, error) {
	return ParseTimeframe(c.Timeframe)
}

// ParseTimeframe 解析Binance K线周期
func ParseTimeframe(tf string) (time.Duration, error) {
	tf = strings.TrimSpace(tf)
	if len(tf) < 2 {
		return 0, fmt.Errorf("unsupported timeframe %q", tf)
	}

	n, err := strconv.Atoi(tf[:len(tf)-1])
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("unsupported timeframe %q", tf)
	}

	switch tf[len(tf)-1] {
	case 'm':
		return time.Duration(n) * time.Minute, nil
	case 'h':
		return time.Duration(n) * time.Hour, nil
	case 'd':
		return time.Duration(n) * 24 * time.Hour, nil
	case 'w':
		return time.Duration(n) * 7 * 24 * time.Hour, nil
	default:
		// 月线（1M）长度不固定，不支持K线对齐调度
		return 0, fmt.Errorf("unsupported timeframe %q", tf)
	}
}
