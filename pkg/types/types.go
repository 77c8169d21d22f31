package types

import (
	"context"

	"github.com/shopspring/decimal"
)

// OHLCV K线数据（按时间从旧到新排列）
type OHLCV struct {
	Time   int64   `json:"time"` // 开盘时间（毫秒）
	Open   float64 `json:"open"`
	High   float64 `json:"high"`
	Low    float64 `json:"low"`
	Close  float64 `json:"close"`
	Volume float64 `json:"volume"`
}

// Side 持仓方向
type Side string

const (
	SideFlat  Side = "FLAT"
	SideLong  Side = "LONG"
	SideShort Side = "SHORT"
)

// CloseOrderSide 返回平仓所需的订单方向（BUY/SELL）
func (s Side) CloseOrderSide() string {
	if s == SideShort {
		return "BUY"
	}
	return "SELL"
}

// OpenOrderSide 返回开仓所需的订单方向（BUY/SELL）
func (s Side) OpenOrderSide() string {
	if s == SideShort {
		return "SELL"
	}
	return "BUY"
}

// Position 持仓快照，每个tick都从交易所重新读取
type Position struct {
	Symbol     string          `json:"symbol"`
	Side       Side            `json:"side"`
	Quantity   decimal.Decimal `json:"quantity"` // 绝对值，空仓为0
	EntryPrice float64         `json:"entry_price"`
	MarkPrice  float64         `json:"mark_price,omitempty"`
}

// IsFlat 是否空仓
func (p Position) IsFlat() bool {
	return p.Side == SideFlat || p.Quantity.Sign() <= 0
}

// SymbolFilters 交易对精度规则
type SymbolFilters struct {
	StepSize       decimal.Decimal `json:"step_size"`
	MinQty         decimal.Decimal `json:"min_qty"`
	TickSize       decimal.Decimal `json:"tick_size"`
	PricePrecision int32           `json:"price_precision"`
}

// DefaultSymbolFilters 交易所查询失败时使用的默认精度
func DefaultSymbolFilters() SymbolFilters {
	return SymbolFilters{
		StepSize:       decimal.RequireFromString("0.001"),
		MinQty:         decimal.RequireFromString("0.001"),
		TickSize:       decimal.RequireFromString("0.01"),
		PricePrecision: 2,
	}
}

// 订单类型
const (
	OrderTypeMarket             = "MARKET"
	OrderTypeLimit              = "LIMIT"
	OrderTypeStopMarket         = "STOP_MARKET"
	OrderTypeTakeProfitMarket   = "TAKE_PROFIT_MARKET"
	OrderTypeTrailingStopMarket = "TRAILING_STOP_MARKET"
)

// OrderRequest 订单请求。数量和价格在提交前必须已经按精度取整
type OrderRequest struct {
	Symbol        string           `json:"symbol"`
	Side          string           `json:"side"`       // BUY, SELL
	OrderType     string           `json:"order_type"` // MARKET, LIMIT, STOP_MARKET, TAKE_PROFIT_MARKET, TRAILING_STOP_MARKET
	Quantity      decimal.Decimal  `json:"quantity"`
	Price         *decimal.Decimal `json:"price,omitempty"`
	StopPrice     *decimal.Decimal `json:"stop_price,omitempty"`
	CallbackRate  *decimal.Decimal `json:"callback_rate,omitempty"`
	ReduceOnly    bool             `json:"reduce_only,omitempty"`
	TimeInForce   string           `json:"time_in_force,omitempty"` // GTC, IOC, FOK
	ClientOrderID string           `json:"client_order_id,omitempty"`
}

// Order 订单
type Order struct {
	ID            string          `json:"id"`
	ClientOrderID string          `json:"client_order_id,omitempty"`
	Symbol        string          `json:"symbol"`
	Side          string          `json:"side"`
	OrderType     string          `json:"order_type"`
	Status        string          `json:"status"` // NEW, FILLED, CANCELED, REJECTED
	Quantity      decimal.Decimal `json:"quantity"`
	Price         float64         `json:"price,omitempty"`
	StopPrice     float64         `json:"stop_price,omitempty"`
	AvgPrice      float64         `json:"avg_price,omitempty"`
	ReduceOnly    bool            `json:"reduce_only,omitempty"`
	Timestamp     int64           `json:"timestamp"`
}

// Exchange 交易所接口（决策循环唯一依赖的能力集合）
type Exchange interface {
	// 获取K线数据
	GetCandles(ctx context.Context, symbol, timeframe string, limit int) ([]OHLCV, error)

	// 获取可用保证金余额（USDT）
	GetBalance(ctx context.Context) (float64, error)

	// 查询单个交易对持仓，无持仓返回Flat
	GetPosition(ctx context.Context, symbol string) (Position, error)

	// 获取当前挂单
	GetOpenOrders(ctx context.Context, symbol string) ([]*Order, error)

	// 下单
	PlaceOrder(ctx context.Context, req OrderRequest) (*Order, error)

	// 撤销该交易对所有挂单
	CancelAllOrders(ctx context.Context, symbol string) error

	// 获取交易对精度规则
	GetSymbolFilters(ctx context.Context, symbol string) (SymbolFilters, error)
}

// AccountConfigurer 可选能力：启动时设置保证金模式和杠杆
type AccountConfigurer interface {
	SetMarginType(ctx context.Context, symbol, marginType string) error
	SetLeverage(ctx context.Context, symbol string, leverage int) error
}
