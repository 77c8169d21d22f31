package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// loadDefaults 以默认值加载配置（DRY_RUN，无密钥）
func loadDefaults(t *testing.T) *Config {
	t.Helper()
	for _, key := range []string{
		"BINANCE_API_KEY", "BINANCE_SECRET_KEY", "BINANCE_TESTNET", "BINANCE_FAPI_BASE_URL",
		"SYMBOL", "TIMEFRAME", "POSITION_RATIO", "TRAIL_CALLBACK_RATE", "HARD_STOP_LOSS_PCT",
		"ENTRY_ORDER_TYPE", "SCHEDULE_MODE", "TELEGRAM_BOT_TOKEN", "TELEGRAM_CHAT_ID",
		"REDIS_ENABLED", "WEB_BASIC_AUTH_USER", "WEB_BASIC_AUTH_PASS", "MARGIN_TYPE",
	} {
		t.Setenv(key, "")
	}
	t.Setenv("DRY_RUN", "true")
	require.NoError(t, Load())
	return Get()
}

func TestValidateConfig_DefaultsPass(t *testing.T) {
	loadDefaults(t)
	assert.NoError(t, ValidateConfig())
}

func TestValidateConfig_Violations(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
		want   string
	}{
		{"live without api key", func(c *Config) { c.DryRun = false; c.BinanceSecretKey = "s" }, "BINANCE_API_KEY"},
		{"live without secret", func(c *Config) { c.DryRun = false; c.BinanceAPIKey = "k" }, "BINANCE_SECRET_KEY"},
		{"positive hard stop", func(c *Config) { c.HardStopLossPct = 5 }, "HARD_STOP_LOSS_PCT"},
		{"zero hard stop", func(c *Config) { c.HardStopLossPct = 0 }, "HARD_STOP_LOSS_PCT"},
		{"callback too small", func(c *Config) { c.TrailCallbackRate = 0.05 }, "TRAIL_CALLBACK_RATE"},
		{"callback too large", func(c *Config) { c.TrailCallbackRate = 5.5 }, "TRAIL_CALLBACK_RATE"},
		{"zero position ratio", func(c *Config) { c.PositionRatio = 0 }, "POSITION_RATIO"},
		{"position ratio above one", func(c *Config) { c.PositionRatio = 1.5 }, "POSITION_RATIO"},
		{"monthly timeframe", func(c *Config) { c.Timeframe = "1M" }, "TIMEFRAME"},
		{"garbage timeframe", func(c *Config) { c.Timeframe = "abc" }, "TIMEFRAME"},
		{"candle limit below three", func(c *Config) { c.CandleLimit = 2 }, "CANDLE_LIMIT"},
		{"bad margin type", func(c *Config) { c.MarginType = "CROSS" }, "MARGIN_TYPE"},
		{"bad entry order type", func(c *Config) { c.EntryOrderType = "stop" }, "ENTRY_ORDER_TYPE"},
		{"bad schedule mode", func(c *Config) { c.ScheduleMode = "cron" }, "SCHEDULE_MODE"},
		{"negative max restarts", func(c *Config) { c.BotMaxRestarts = -1 }, "BOT_MAX_RESTARTS"},
		{"telegram token without chat", func(c *Config) { c.TelegramBotToken = "x" }, "TELEGRAM_CHAT_ID"},
		{"redis without host", func(c *Config) { c.RedisEnabled = true; c.RedisHost = "" }, "REDIS_HOST"},
		{"auth user without password", func(c *Config) { c.WebBasicAuthUser = "admin" }, "WEB_BASIC_AUTH"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.mutate(loadDefaults(t))
			err := ValidateConfig()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestValidateConfig_AggregatesAllViolations(t *testing.T) {
	cfg := loadDefaults(t)
	cfg.HardStopLossPct = 1
	cfg.PositionRatio = 2

	err := ValidateConfig()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "HARD_STOP_LOSS_PCT")
	assert.Contains(t, err.Error(), "POSITION_RATIO")
}

func TestValidateConfig_LiveWithKeysPasses(t *testing.T) {
	cfg := loadDefaults(t)
	cfg.DryRun = false
	cfg.BinanceAPIKey = "key"
	cfg.BinanceSecretKey = "secret"
	assert.NoError(t, ValidateConfig())
}

func TestParseTimeframe(t *testing.T) {
	tests := []struct {
		in   string
		want time.Duration
		ok   bool
	}{
		{"1m", time.Minute, true},
		{"15m", 15 * time.Minute, true},
		{"4h", 4 * time.Hour, true},
		{"1d", 24 * time.Hour, true},
		{"1w", 7 * 24 * time.Hour, true},
		{"1M", 0, false},
		{"0m", 0, false},
		{"m", 0, false},
		{"", 0, false},
	}

	for _, tt := range tests {
		got, err := ParseTimeframe(tt.in)
		if !tt.ok {
			assert.Error(t, err, tt.in)
			continue
		}
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}
}
