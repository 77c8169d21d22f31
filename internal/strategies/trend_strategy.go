package strategies

import (
	"fmt"

	"github.com/yuechangmingzou/trendguard/internal/indicators"
	"github.com/yuechangmingzou/trendguard/pkg/types"
)

// TrendParams 趋势动量策略参数
type TrendParams struct {
	RSILongMax  float64 // 做多要求 RSI < RSILongMax
	RSIShortMin float64 // 做空要求 RSI > RSIShortMin
}

// DefaultTrendParams 默认参数
func DefaultTrendParams() TrendParams {
	return TrendParams{RSILongMax: 68, RSIShortMin: 32}
}

// Decision 策略决策
type Decision struct {
	Side      types.Side // LONG / SHORT / FLAT(不开仓)
	Reason    string
	LastClose float64
	Last      indicators.Snapshot
	Prev      indicators.Snapshot
}

// ShouldEnter 是否需要开仓
func (d Decision) ShouldEnter() bool {
	return d.Side == types.SideLong || d.Side == types.SideShort
}

// TrendStrategy EMA20/EMA60趋势 + RSI过滤，两根已收盘K线确认
type TrendStrategy struct {
	params TrendParams
}

// NewTrendStrategy 创建策略
func NewTrendStrategy(params TrendParams) *TrendStrategy {
	return &TrendStrategy{params: params}
}

// Evaluate 评估开仓信号。
// candles最后一根为进行中的K线，倒数第二根为最近收盘K线，倒数第三根为前一根收盘K线。
// 先判断做多，做多不成立才判断做空
func (s *TrendStrategy) Evaluate(candles []types.OHLCV, series *indicators.Series) Decision {
	n := len(candles)
	if n < indicators.MinCandles || series == nil || series.Len() != n {
		return Decision{Side: types.SideFlat, Reason: "数据不足"}
	}

	last := series.At(n - 2)
	prev := series.At(n - 3)
	lastClose := candles[n-2].Close

	decision := Decision{
		Side:      types.SideFlat,
		LastClose: lastClose,
		Last:      last,
		Prev:      prev,
	}

	if last.EMA20 > last.EMA60 && prev.EMA20 > prev.EMA60 &&
		lastClose > last.EMA20 && last.RSI < s.params.RSILongMax {
		decision.Side = types.SideLong
		decision.Reason = fmt.Sprintf("EMA20>EMA60连续两根收盘确认，收盘%.2f>EMA20 %.2f，RSI %.1f<%.0f",
			lastClose, last.EMA20, last.RSI, s.params.RSILongMax)
		return decision
	}

	if last.EMA20 < last.EMA60 && prev.EMA20 < prev.EMA60 &&
		lastClose < last.EMA20 && last.RSI > s.params.RSIShortMin {
		decision.Side = types.SideShort
		decision.Reason = fmt.Sprintf("EMA20<EMA60连续两根收盘确认，收盘%.2f<EMA20 %.2f，RSI %.1f>%.0f",
			lastClose, last.EMA20, last.RSI, s.params.RSIShortMin)
		return decision
	}

	decision.Reason = "进场条件未满足"
	return decision
}
