package exchange

import (
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/yuechangmingzou/trendguard/internal/config"
	"github.com/yuechangmingzou/trendguard/internal/utils"
	"github.com/yuechangmingzou/trendguard/pkg/types"
	"go.uber.org/zap"
)

// dryRunBalance dry-run模式下的模拟可用余额（USDT）
const dryRunBalance = 10000.0

// Options BinanceExchange构造参数
type Options struct {
	BaseURL      string
	APIKey       string
	SecretKey    string
	Timeout      time.Duration
	RecvWindowMs int
	DryRun       bool
}

// BinanceExchange Binance USDⓈ-M永续合约实现
type BinanceExchange struct {
	client  *HTTPClient
	dryRun  bool
	logger  *zap.SugaredLogger
	filters map[string]types.SymbolFilters
	mu      sync.RWMutex
}

var (
	globalBinanceExchange *BinanceExchange
	binanceOnce           sync.Once
)

// NewBinanceExchange 创建交易所客户端
func NewBinanceExchange(opts Options) *BinanceExchange {
	return &BinanceExchange{
		client:  NewHTTPClient(opts.BaseURL, opts.APIKey, opts.SecretKey, opts.Timeout, opts.RecvWindowMs),
		dryRun:  opts.DryRun,
		logger:  utils.GetLogger("exchange"),
		filters: make(map[string]types.SymbolFilters),
	}
}

// GetBinanceExchange 获取Binance交易所实例（单例，按全局配置构造）
func GetBinanceExchange() *BinanceExchange {
	binanceOnce.Do(func() {
		cfg := config.Get()
		globalBinanceExchange = NewBinanceExchange(Options{
			BaseURL:      cfg.BinanceFAPIBaseURL,
			APIKey:       cfg.BinanceAPIKey,
			SecretKey:    cfg.BinanceSecretKey,
			Timeout:      time.Duration(cfg.BinanceHTTPTimeoutSec * float64(time.Second)),
			RecvWindowMs: cfg.BinanceRecvWindowMs,
			DryRun:       cfg.DryRun,
		})
	})
	return globalBinanceExchange
}

// DryRun 是否为模拟模式
func (be *BinanceExchange) DryRun() bool {
	return be.dryRun
}

// formatDecimal 下单参数格式化，去掉多余的0
func formatDecimal(d decimal.Decimal) string {
	return d.String()
}
