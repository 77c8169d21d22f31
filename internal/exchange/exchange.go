package exchange

import (
	"github.com/yuechangmingzou/trendguard/pkg/types"
)

// 确保BinanceExchange实现了交易所接口（编译时检查）
var (
	_ types.Exchange          = (*BinanceExchange)(nil)
	_ types.AccountConfigurer = (*BinanceExchange)(nil)
)
