package execution

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yuechangmingzou/trendguard/internal/exchange/exchangetest"
	"github.com/yuechangmingzou/trendguard/internal/indicators"
	"github.com/yuechangmingzou/trendguard/pkg/types"
)

// signalSetup 三根K线：[前一根收盘, 最近收盘, 进行中(当前价)]，指标满足做多或做空
func signalSetup(side types.Side, price float64) ([]types.OHLCV, *indicators.Series) {
	if side == types.SideShort {
		return []types.OHLCV{{Close: 99}, {Close: 95}, {Close: price}},
			&indicators.Series{
				EMA20: []float64{100, 98, 98},
				EMA60: []float64{104, 103, 103},
				RSI:   []float64{40, 35, 35},
			}
	}
	return []types.OHLCV{{Close: 101}, {Close: 105}, {Close: price}},
		&indicators.Series{
			EMA20: []float64{100, 102, 102},
			EMA60: []float64{95, 96, 96},
			RSI:   []float64{60, 65, 65},
		}
}

func noSignalSetup(price float64) ([]types.OHLCV, *indicators.Series) {
	return []types.OHLCV{{Close: 99}, {Close: 105}, {Close: price}},
		&indicators.Series{
			EMA20: []float64{99, 102, 102},
			EMA60: []float64{100, 101, 101},
			RSI:   []float64{50, 65, 65},
		}
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestTryEnter_LongWithTrailingStopAndTakeProfit(t *testing.T) {
	ex := exchangetest.New()
	ex.Balance = 1000
	candles, series := signalSetup(types.SideLong, 50000)

	res, err := newTestEngine(ex, testParams()).TryEnter(context.Background(), candles, series)
	require.NoError(t, err)
	require.True(t, res.Entered)
	assert.True(t, res.Quantity.Equal(dec("0.002")))
	assert.Equal(t, 50000.0, res.EntryPrice)

	assert.Equal(t, []string{
		types.OrderTypeMarket,
		types.OrderTypeTrailingStopMarket,
		types.OrderTypeTakeProfitMarket,
	}, ex.PlacedTypes())

	entry, trailing, tp := ex.Placed[0], ex.Placed[1], ex.Placed[2]
	assert.Equal(t, "BUY", entry.Side)
	assert.False(t, entry.ReduceOnly)

	assert.Equal(t, "SELL", trailing.Side)
	assert.True(t, trailing.ReduceOnly)
	require.NotNil(t, trailing.CallbackRate)
	assert.True(t, trailing.CallbackRate.Equal(dec("1.5")))
	assert.True(t, trailing.Quantity.Equal(dec("0.002")))

	assert.Equal(t, "SELL", tp.Side)
	assert.True(t, tp.ReduceOnly)
	assert.True(t, tp.StopPrice.Equal(dec("51500")), "tp=%s", tp.StopPrice)

	assert.True(t, res.Protection.StopProtected())
	assert.False(t, res.Pending)
}

func TestTryEnter_SizingFloorsToStep(t *testing.T) {
	ex := exchangetest.New()
	ex.Balance = 1000
	candles, series := signalSetup(types.SideLong, 66666.67)

	res, err := newTestEngine(ex, testParams()).TryEnter(context.Background(), candles, series)
	require.NoError(t, err)
	assert.True(t, res.Entered)
	assert.True(t, res.Quantity.Equal(dec("0.001")))
	assert.True(t, ex.Placed[0].Quantity.Equal(dec("0.001")))
}

func TestTryEnter_BelowMinQtyPlacesNothing(t *testing.T) {
	ex := exchangetest.New()
	ex.Balance = 10
	candles, series := signalSetup(types.SideLong, 50000)

	res, err := newTestEngine(ex, testParams()).TryEnter(context.Background(), candles, series)
	require.NoError(t, err)
	assert.False(t, res.Entered)
	assert.Empty(t, ex.Placed)
}

func TestTryEnter_TrailingFailureFallsBackToStopMarket(t *testing.T) {
	ex := exchangetest.New()
	ex.Balance = 1000
	ex.PlaceErr[types.OrderTypeTrailingStopMarket] = errors.New("callbackRate out of range")
	candles, series := signalSetup(types.SideLong, 50000)

	res, err := newTestEngine(ex, testParams()).TryEnter(context.Background(), candles, series)
	require.NoError(t, err)
	require.True(t, res.Entered)

	assert.Equal(t, []string{
		types.OrderTypeMarket,
		types.OrderTypeTrailingStopMarket,
		types.OrderTypeStopMarket,
		types.OrderTypeTakeProfitMarket,
	}, ex.PlacedTypes())

	stop := ex.Placed[2]
	assert.Equal(t, "SELL", stop.Side)
	assert.True(t, stop.ReduceOnly)
	assert.True(t, stop.StopPrice.Equal(dec("47500")), "stop=%s", stop.StopPrice)
	assert.True(t, res.Protection.StopProtected())
	assert.Error(t, res.Protection.TrailingErr)
}

func TestTryEnter_ShortFallbackUsesBackupStopDistanceAndFillPrice(t *testing.T) {
	ex := exchangetest.New()
	ex.Balance = 1000
	ex.FillPrice = 40000
	ex.PlaceErr[types.OrderTypeTrailingStopMarket] = errors.New("rejected")
	params := testParams()
	params.BackupStopLossPct = 2
	candles, series := signalSetup(types.SideShort, 40010)

	res, err := newTestEngine(ex, params).TryEnter(context.Background(), candles, series)
	require.NoError(t, err)
	require.True(t, res.Entered)
	assert.Equal(t, 40000.0, res.EntryPrice)

	assert.Equal(t, "SELL", ex.Placed[0].Side)
	stop, tp := ex.Placed[2], ex.Placed[3]
	assert.Equal(t, "BUY", stop.Side)
	assert.True(t, stop.StopPrice.Equal(dec("40800")), "stop=%s", stop.StopPrice)
	assert.Equal(t, "BUY", tp.Side)
	assert.True(t, tp.StopPrice.Equal(dec("38800")), "tp=%s", tp.StopPrice)
}

func TestTryEnter_TakeProfitAttemptedWhenStopsFail(t *testing.T) {
	ex := exchangetest.New()
	ex.Balance = 1000
	ex.PlaceErr[types.OrderTypeTrailingStopMarket] = errors.New("rejected")
	ex.PlaceErr[types.OrderTypeStopMarket] = errors.New("rejected")
	candles, series := signalSetup(types.SideLong, 50000)

	res, err := newTestEngine(ex, testParams()).TryEnter(context.Background(), candles, series)
	require.NoError(t, err)
	assert.True(t, res.Entered, "protection failures never roll back the entry")
	assert.False(t, res.Protection.StopProtected())
	assert.NotNil(t, res.Protection.TakeProfit)
	assert.Contains(t, res.Protection.Summary(), "止损❌")
}

func TestTryEnter_FallbackDisabled(t *testing.T) {
	ex := exchangetest.New()
	ex.Balance = 1000
	ex.PlaceErr[types.OrderTypeTrailingStopMarket] = errors.New("rejected")
	params := testParams()
	params.EnableTrailingFallback = false
	params.EnableBackupTP = false
	candles, series := signalSetup(types.SideLong, 50000)

	_, err := newTestEngine(ex, params).TryEnter(context.Background(), candles, series)
	require.NoError(t, err)
	assert.Equal(t, []string{types.OrderTypeMarket, types.OrderTypeTrailingStopMarket}, ex.PlacedTypes())
}

func TestTryEnter_LimitEntryOffsetInsidePrice(t *testing.T) {
	for _, tc := range []struct {
		side  types.Side
		price string
	}{
		{types.SideLong, "49975"},
		{types.SideShort, "50025"},
	} {
		ex := exchangetest.New()
		ex.Balance = 1000
		params := testParams()
		params.EntryOrderType = "limit"
		candles, series := signalSetup(tc.side, 50000)

		res, err := newTestEngine(ex, params).TryEnter(context.Background(), candles, series)
		require.NoError(t, err)
		assert.True(t, res.Pending, "limit order not filled yet")

		entry := ex.Placed[0]
		assert.Equal(t, types.OrderTypeLimit, entry.OrderType)
		assert.Equal(t, "GTC", entry.TimeInForce)
		require.NotNil(t, entry.Price)
		assert.True(t, entry.Price.Equal(dec(tc.price)), "%s price=%s", tc.side, entry.Price)
	}
}

func TestTryEnter_OpenOrdersBlockEntry(t *testing.T) {
	ex := exchangetest.New()
	ex.Balance = 1000
	ex.OpenOrders = []*types.Order{{ID: "1"}}
	candles, series := signalSetup(types.SideLong, 50000)

	res, err := newTestEngine(ex, testParams()).TryEnter(context.Background(), candles, series)
	require.NoError(t, err)
	assert.False(t, res.Entered)
	assert.Empty(t, ex.Placed)
}

func TestTryEnter_OpenOrdersErrorTreatedAsNone(t *testing.T) {
	ex := exchangetest.New()
	ex.Balance = 1000
	ex.OpenOrdersErr = &types.ExchangeError{Op: "get_open_orders", Kind: types.KindNetwork}
	candles, series := signalSetup(types.SideLong, 50000)

	res, err := newTestEngine(ex, testParams()).TryEnter(context.Background(), candles, series)
	require.NoError(t, err)
	assert.True(t, res.Entered)
}

func TestTryEnter_NoSignal(t *testing.T) {
	ex := exchangetest.New()
	ex.Balance = 1000
	candles, series := noSignalSetup(50000)

	res, err := newTestEngine(ex, testParams()).TryEnter(context.Background(), candles, series)
	require.NoError(t, err)
	assert.False(t, res.Entered)
	assert.Equal(t, types.SideFlat, res.Decision.Side)
	assert.Empty(t, ex.Placed)
}

func TestTryEnter_EntryRejectedSkipsProtection(t *testing.T) {
	ex := exchangetest.New()
	ex.Balance = 1000
	ex.PlaceErr[types.OrderTypeMarket] = &types.ExchangeError{Op: "place_order", Kind: types.KindRejected, Code: -2019}
	candles, series := signalSetup(types.SideLong, 50000)

	res, err := newTestEngine(ex, testParams()).TryEnter(context.Background(), candles, series)
	require.Error(t, err)
	assert.Equal(t, types.KindRejected, types.KindOf(err))
	assert.False(t, res.Entered)
	assert.Len(t, ex.Placed, 1)
}

func TestTryEnter_BalanceError(t *testing.T) {
	ex := exchangetest.New()
	ex.BalanceErr = &types.ExchangeError{Op: "get_balance", Kind: types.KindAuth}
	candles, series := signalSetup(types.SideLong, 50000)

	_, err := newTestEngine(ex, testParams()).TryEnter(context.Background(), candles, series)
	require.Error(t, err)
	assert.Equal(t, types.KindAuth, types.KindOf(err))
	assert.Empty(t, ex.Placed)
}
