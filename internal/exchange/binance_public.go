package exchange

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/yuechangmingzou/trendguard/internal/utils"
	"github.com/yuechangmingzou/trendguard/pkg/types"
)

// GetCandles 获取K线（公开接口，dry-run同样读取真实行情）
func (be *BinanceExchange) GetCandles(ctx context.Context, symbol, timeframe string, limit int) ([]types.OHLCV, error) {
	params := map[string]string{
		"symbol":   utils.NormalizeSymbol(symbol),
		"interval": timeframe,
		"limit":    strconv.Itoa(limit),
	}

	var klines [][]interface{}
	if err := be.client.DoJSON(ctx, "get_candles", http.MethodGet, "/fapi/v1/klines", params, false, &klines); err != nil {
		return nil, err
	}

	result := make([]types.OHLCV, 0, len(klines))
	for _, kline := range klines {
		if len(kline) < 6 {
			return nil, &types.ExchangeError{Op: "get_candles", Kind: types.KindDecode, Err: fmt.Errorf("short kline row: %d fields", len(kline))}
		}
		openTime, err := utils.ParseFloatValue(kline[0])
		if err != nil {
			return nil, &types.ExchangeError{Op: "get_candles", Kind: types.KindDecode, Err: err}
		}
		values := make([]float64, 5)
		for i := range values {
			v, err := utils.ParseFloatValue(kline[i+1])
			if err != nil {
				return nil, &types.ExchangeError{Op: "get_candles", Kind: types.KindDecode, Err: fmt.Errorf("field %d: %w", i+1, err)}
			}
			values[i] = v
		}
		result = append(result, types.OHLCV{
			Time:   int64(openTime),
			Open:   values[0],
			High:   values[1],
			Low:    values[2],
			Close:  values[3],
			Volume: values[4],
		})
	}

	return result, nil
}

// exchangeInfo /fapi/v1/exchangeInfo中用到的字段
type exchangeInfo struct {
	Symbols []struct {
		Symbol         string                   `json:"symbol"`
		PricePrecision int32                    `json:"pricePrecision"`
		Filters        []map[string]interface{} `json:"filters"`
	} `json:"symbols"`
}

// GetSymbolFilters 获取交易对精度规则（成功后缓存）。
// 查询失败时返回错误，由调用方决定是否回退到默认精度
func (be *BinanceExchange) GetSymbolFilters(ctx context.Context, symbol string) (types.SymbolFilters, error) {
	symbol = utils.NormalizeSymbol(symbol)

	be.mu.RLock()
	cached, ok := be.filters[symbol]
	be.mu.RUnlock()
	if ok {
		return cached, nil
	}

	body, err := be.client.Do(ctx, "get_symbol_filters", http.MethodGet, "/fapi/v1/exchangeInfo", nil, false)
	if err != nil {
		return types.SymbolFilters{}, err
	}

	var info exchangeInfo
	if err := json.Unmarshal(body, &info); err != nil {
		return types.SymbolFilters{}, &types.ExchangeError{Op: "get_symbol_filters", Kind: types.KindDecode, Err: err}
	}

	for _, s := range info.Symbols {
		if s.Symbol != symbol {
			continue
		}

		filters := types.DefaultSymbolFilters()
		filters.PricePrecision = s.PricePrecision
		for _, f := range s.Filters {
			switch utils.ParseStringValue(f["filterType"]) {
			case "LOT_SIZE":
				if v, err := utils.ParseDecimalValue(f["stepSize"]); err == nil && v.Sign() > 0 {
					filters.StepSize = v
				}
				if v, err := utils.ParseDecimalValue(f["minQty"]); err == nil && v.Sign() > 0 {
					filters.MinQty = v
				}
			case "PRICE_FILTER":
				if v, err := utils.ParseDecimalValue(f["tickSize"]); err == nil && v.Sign() > 0 {
					filters.TickSize = v
				}
			}
		}

		be.mu.Lock()
		be.filters[symbol] = filters
		be.mu.Unlock()

		be.logger.Infow("Symbol filters loaded",
			"symbol", symbol,
			"step_size", filters.StepSize.String(),
			"min_qty", filters.MinQty.String(),
			"tick_size", filters.TickSize.String(),
			"price_precision", filters.PricePrecision,
		)
		return filters, nil
	}

	return types.SymbolFilters{}, &types.ExchangeError{Op: "get_symbol_filters", Kind: types.KindRejected, Msg: "symbol not found: " + symbol}
}
