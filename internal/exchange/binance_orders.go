package exchange

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/yuechangmingzou/trendguard/internal/utils"
	"github.com/yuechangmingzou/trendguard/pkg/types"
)

// PlaceOrder 下单。数量/价格需由调用方按精度取整
func (be *BinanceExchange) PlaceOrder(ctx context.Context, req types.OrderRequest) (*types.Order, error) {
	symbol := utils.NormalizeSymbol(req.Symbol)
	clientID := req.ClientOrderID
	if clientID == "" {
		clientID = uuid.NewString()
	}

	if be.dryRun {
		// DRY_RUN模式：只记录，不下单
		be.logger.Infow("🧪 DRY RUN: Order would be placed",
			"symbol", symbol,
			"side", req.Side,
			"order_type", req.OrderType,
			"quantity", req.Quantity.String(),
			"price", decimalPtrString(req.Price),
			"stop_price", decimalPtrString(req.StopPrice),
			"callback_rate", decimalPtrString(req.CallbackRate),
			"reduce_only", req.ReduceOnly,
		)
		status := "NEW"
		if strings.EqualFold(req.OrderType, types.OrderTypeMarket) {
			status = "FILLED"
		}
		return &types.Order{
			ID:            "dry_run_" + uuid.NewString(),
			ClientOrderID: clientID,
			Symbol:        symbol,
			Side:          strings.ToUpper(req.Side),
			OrderType:     strings.ToUpper(req.OrderType),
			Status:        status,
			Quantity:      req.Quantity,
			Price:         decimalPtrFloat(req.Price),
			StopPrice:     decimalPtrFloat(req.StopPrice),
			ReduceOnly:    req.ReduceOnly,
			Timestamp:     time.Now().UnixMilli(),
		}, nil
	}

	params := map[string]string{
		"symbol":           symbol,
		"side":             strings.ToUpper(req.Side),
		"type":             strings.ToUpper(req.OrderType),
		"quantity":         formatDecimal(req.Quantity),
		"newClientOrderId": clientID,
		"newOrderRespType": "RESULT", // 市价单直接返回成交均价
	}

	// 价格（限价单需要）
	if req.Price != nil && req.Price.Sign() > 0 {
		params["price"] = formatDecimal(*req.Price)
	}

	// 触发价格（STOP_MARKET / TAKE_PROFIT_MARKET）
	if req.StopPrice != nil && req.StopPrice.Sign() > 0 {
		params["stopPrice"] = formatDecimal(*req.StopPrice)
	}

	// 回调比例（TRAILING_STOP_MARKET）
	if req.CallbackRate != nil && req.CallbackRate.Sign() > 0 {
		params["callbackRate"] = formatDecimal(*req.CallbackRate)
	}

	// 时间条件
	if req.TimeInForce != "" {
		params["timeInForce"] = strings.ToUpper(req.TimeInForce)
	} else if strings.EqualFold(req.OrderType, types.OrderTypeLimit) {
		params["timeInForce"] = "GTC"
	}

	// ReduceOnly（平仓/保护单）
	if req.ReduceOnly {
		params["reduceOnly"] = "true"
	}

	var resp map[string]interface{}
	if err := be.client.DoJSON(ctx, "place_order", http.MethodPost, "/fapi/v1/order", params, true, &resp); err != nil {
		return nil, err
	}

	order := parseOrder(resp)
	if order.Symbol == "" {
		order.Symbol = symbol
	}
	if order.ClientOrderID == "" {
		order.ClientOrderID = clientID
	}
	return order, nil
}

// GetOpenOrders 获取当前挂单
func (be *BinanceExchange) GetOpenOrders(ctx context.Context, symbol string) ([]*types.Order, error) {
	if be.dryRun {
		return []*types.Order{}, nil
	}

	params := map[string]string{"symbol": utils.NormalizeSymbol(symbol)}

	var rows []map[string]interface{}
	if err := be.client.DoJSON(ctx, "get_open_orders", http.MethodGet, "/fapi/v1/openOrders", params, true, &rows); err != nil {
		return nil, err
	}

	orders := make([]*types.Order, 0, len(rows))
	for _, row := range rows {
		orders = append(orders, parseOrder(row))
	}
	return orders, nil
}

// CancelAllOrders 撤销该交易对所有挂单
func (be *BinanceExchange) CancelAllOrders(ctx context.Context, symbol string) error {
	symbol = utils.NormalizeSymbol(symbol)
	if be.dryRun {
		be.logger.Infow("🧪 DRY RUN: All open orders would be canceled", "symbol", symbol)
		return nil
	}

	_, err := be.client.Do(ctx, "cancel_all_orders", http.MethodDelete, "/fapi/v1/allOpenOrders", map[string]string{"symbol": symbol}, true)
	return err
}

// GetPosition 查询单个交易对持仓（单向持仓模式）
func (be *BinanceExchange) GetPosition(ctx context.Context, symbol string) (types.Position, error) {
	symbol = utils.NormalizeSymbol(symbol)
	flat := types.Position{Symbol: symbol, Side: types.SideFlat, Quantity: decimal.Zero}
	if be.dryRun {
		return flat, nil
	}

	var rows []map[string]interface{}
	if err := be.client.DoJSON(ctx, "get_position", http.MethodGet, "/fapi/v2/positionRisk", map[string]string{"symbol": symbol}, true, &rows); err != nil {
		return types.Position{}, err
	}

	for _, row := range rows {
		if utils.ParseStringValue(row["symbol"]) != symbol {
			continue
		}
		amt, err := utils.ParseDecimalValue(row["positionAmt"])
		if err != nil {
			return types.Position{}, &types.ExchangeError{Op: "get_position", Kind: types.KindDecode, Err: err}
		}
		if amt.IsZero() {
			continue
		}

		side := types.SideLong
		if amt.Sign() < 0 {
			side = types.SideShort
		}
		entry, _ := utils.ParseFloatValue(row["entryPrice"])
		mark, _ := utils.ParseFloatValue(row["markPrice"])
		return types.Position{
			Symbol:     symbol,
			Side:       side,
			Quantity:   amt.Abs(),
			EntryPrice: entry,
			MarkPrice:  mark,
		}, nil
	}

	return flat, nil
}

// parseOrder 解析订单响应
func parseOrder(m map[string]interface{}) *types.Order {
	qty, _ := utils.ParseDecimalValue(m["origQty"])
	price, _ := utils.ParseFloatValue(m["price"])
	stopPrice, _ := utils.ParseFloatValue(m["stopPrice"])
	avgPrice, _ := utils.ParseFloatValue(m["avgPrice"])
	reduceOnly, _ := utils.ParseBoolValue(m["reduceOnly"])
	ts, _ := utils.ParseFloatValue(m["updateTime"])

	return &types.Order{
		ID:            utils.ParseStringValue(m["orderId"]),
		ClientOrderID: utils.ParseStringValue(m["clientOrderId"]),
		Symbol:        utils.ParseStringValue(m["symbol"]),
		Side:          utils.ParseStringValue(m["side"]),
		OrderType:     utils.ParseStringValue(m["type"]),
		Status:        utils.ParseStringValue(m["status"]),
		Quantity:      qty,
		Price:         price,
		StopPrice:     stopPrice,
		AvgPrice:      avgPrice,
		ReduceOnly:    reduceOnly,
		Timestamp:     int64(ts),
	}
}

func decimalPtrString(d *decimal.Decimal) string {
	if d == nil {
		return ""
	}
	return d.String()
}

func decimalPtrFloat(d *decimal.Decimal) float64 {
	if d == nil {
		return 0
	}
	return d.InexactFloat64()
}
