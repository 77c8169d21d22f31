package indicators

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yuechangmingzou/trendguard/pkg/types"
)

func candlesFromCloses(closes ...float64) []types.OHLCV {
	out := make([]types.OHLCV, len(closes))
	for i, c := range closes {
		out[i] = types.OHLCV{Time: int64(i) * 900_000, Open: c, High: c, Low: c, Close: c, Volume: 1}
	}
	return out
}

func TestCalculateEMASeries_SeededByFirstValue(t *testing.T) {
	prices := []float64{10, 11, 12}
	ema := CalculateEMASeries(prices, 3) // alpha = 0.5

	assert.Equal(t, 10.0, ema[0])
	assert.InDelta(t, 10.5, ema[1], 1e-12)
	assert.InDelta(t, 11.25, ema[2], 1e-12)
}

func TestCalculateEMASeries_Empty(t *testing.T) {
	assert.Empty(t, CalculateEMASeries(nil, 20))
}

func TestCalculateRSISeries_WilderSmoothing(t *testing.T) {
	// 14个变化：7涨(每次+2)、7跌(每次-1)，然后再涨+3
	prices := []float64{100}
	for i := 0; i < 7; i++ {
		prices = append(prices, prices[len(prices)-1]+2)
	}
	for i := 0; i < 7; i++ {
		prices = append(prices, prices[len(prices)-1]-1)
	}
	prices = append(prices, prices[len(prices)-1]+3)

	rsi := CalculateRSISeries(prices, 14)

	avgGain := 14.0 / 14
	avgLoss := 7.0 / 14
	first := 100 - 100/(1+avgGain/avgLoss)
	assert.InDelta(t, first, rsi[14], 1e-9)

	avgGain = (avgGain*13 + 3) / 14
	avgLoss = (avgLoss * 13) / 14
	second := 100 - 100/(1+avgGain/avgLoss)
	assert.InDelta(t, second, rsi[15], 1e-9)

	// 前导区间回填为第一个有效值
	for i := 0; i < 14; i++ {
		assert.Equal(t, rsi[14], rsi[i], "index %d should be back-filled", i)
	}
}

func TestCalculateRSISeries_AllGainsSaturatesNearHundred(t *testing.T) {
	prices := make([]float64, 30)
	for i := range prices {
		prices[i] = 100 + float64(i)
	}
	rsi := CalculateRSISeries(prices, 14)
	assert.InDelta(t, 100.0, rsi[len(rsi)-1], 1e-6)
	assert.LessOrEqual(t, rsi[len(rsi)-1], 100.0)
}

func TestCalculateRSISeries_ShortHistoryIsNeutral(t *testing.T) {
	rsi := CalculateRSISeries([]float64{1, 2, 3}, 14)
	assert.Equal(t, []float64{50, 50, 50}, rsi)
}

func TestCalculateRSISeries_StaysWithinBounds(t *testing.T) {
	r := rand.New(rand.NewSource(7))
	for n := 14; n < 220; n += 7 {
		prices := make([]float64, n)
		price := 50000.0
		for i := range prices {
			price *= 1 + (r.Float64()-0.5)*0.04
			prices[i] = price
		}
		for i, v := range CalculateRSISeries(prices, 14) {
			require.False(t, math.IsNaN(v), "NaN at %d (n=%d)", i, n)
			require.GreaterOrEqual(t, v, 0.0)
			require.LessOrEqual(t, v, 100.0)
		}
	}
}

func TestCompute(t *testing.T) {
	_, err := Compute(candlesFromCloses(1, 2))
	assert.ErrorIs(t, err, ErrInsufficientData)

	closes := make([]float64, 100)
	for i := range closes {
		closes[i] = 100 + math.Sin(float64(i)/5)*3
	}
	series, err := Compute(candlesFromCloses(closes...))
	require.NoError(t, err)
	assert.Equal(t, 100, series.Len())

	last := series.At(-1)
	assert.Equal(t, series.EMA20[99], last.EMA20)
	assert.Equal(t, series.EMA60[99], last.EMA60)
	assert.Equal(t, series.RSI[99], last.RSI)
	assert.Equal(t, series.At(98), series.At(-2))
}
