package indicators

import (
	"errors"
	"math"

	"github.com/yuechangmingzou/trendguard/pkg/types"
)

const (
	EMAFastPeriod = 20
	EMASlowPeriod = 60
	RSIPeriod     = 14

	// MinCandles 做决策所需的最少K线：进行中的一根 + 两根已收盘
	MinCandles = 3

	// 平均损失为0时的替代值，RSI在这种情况下趋近100
	lossEpsilon = 1e-10
	// 历史不足一个RSI周期时使用的中性值
	neutralRSI = 50.0
)

// ErrInsufficientData K线数量不足
var ErrInsufficientData = errors.New("insufficient candles for indicators")

// Snapshot 单根K线上的指标值
type Snapshot struct {
	EMA20 float64 `json:"ema20"`
	EMA60 float64 `json:"ema60"`
	RSI   float64 `json:"rsi"`
}

// Series 与K线一一对应的指标序列
type Series struct {
	EMA20 []float64
	EMA60 []float64
	RSI   []float64
}

// Len 序列长度
func (s *Series) Len() int {
	return len(s.RSI)
}

// At 取第i根K线的指标，负数下标从末尾倒数（-1为最新）
func (s *Series) At(i int) Snapshot {
	if i < 0 {
		i += s.Len()
	}
	return Snapshot{EMA20: s.EMA20[i], EMA60: s.EMA60[i], RSI: s.RSI[i]}
}

// Compute 由K线收盘价计算EMA20、EMA60和RSI14
func Compute(candles []types.OHLCV) (*Series, error) {
	if len(candles) < MinCandles {
		return nil, ErrInsufficientData
	}

	closes := make([]float64, len(candles))
	for i, c := range candles {
		closes[i] = c.Close
	}

	return &Series{
		EMA20: CalculateEMASeries(closes, EMAFastPeriod),
		EMA60: CalculateEMASeries(closes, EMASlowPeriod),
		RSI:   CalculateRSISeries(closes, RSIPeriod),
	}, nil
}

// CalculateEMASeries 计算指数移动平均线序列。
// alpha = 2/(span+1)，以第一个值为种子，不做偏差修正
func CalculateEMASeries(prices []float64, span int) []float64 {
	out := make([]float64, len(prices))
	if len(prices) == 0 || span <= 0 {
		return out
	}

	alpha := 2.0 / float64(span+1)
	out[0] = prices[0]
	for i := 1; i < len(prices); i++ {
		out[i] = alpha*prices[i] + (1-alpha)*out[i-1]
	}
	return out
}

// CalculateRSISeries 计算Wilder平滑的相对强弱指标序列。
// 首个平均收益/损失为前period个变化的简单均值，之后
// avg = (avg_prev*(period-1) + value) / period。
// 不足period个变化的前导区间用第一个有效值回填
func CalculateRSISeries(prices []float64, period int) []float64 {
	out := make([]float64, len(prices))
	if len(prices) == 0 {
		return out
	}
	if period <= 0 || len(prices) < period+1 {
		for i := range out {
			out[i] = neutralRSI
		}
		return out
	}

	avgGain := 0.0
	avgLoss := 0.0
	for i := 1; i <= period; i++ {
		gain, loss := splitChange(prices[i] - prices[i-1])
		avgGain += gain
		avgLoss += loss
	}
	avgGain /= float64(period)
	avgLoss /= float64(period)
	out[period] = rsiFromAverages(avgGain, avgLoss)

	p := float64(period)
	for i := period + 1; i < len(prices); i++ {
		gain, loss := splitChange(prices[i] - prices[i-1])
		avgGain = (avgGain*(p-1) + gain) / p
		avgLoss = (avgLoss*(p-1) + loss) / p
		out[i] = rsiFromAverages(avgGain, avgLoss)
	}

	// 回填前导区间
	for i := 0; i < period; i++ {
		out[i] = out[period]
	}
	return out
}

func splitChange(change float64) (gain, loss float64) {
	if change > 0 {
		return change, 0
	}
	return 0, -change
}

func rsiFromAverages(avgGain, avgLoss float64) float64 {
	if avgLoss == 0 {
		avgLoss = lossEpsilon
	}
	rs := avgGain / avgLoss
	rsi := 100.0 - 100.0/(1.0+rs)
	if math.IsNaN(rsi) {
		return neutralRSI
	}
	return rsi
}
