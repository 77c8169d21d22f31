// Package exchangetest 内存交易所，供决策循环相关测试使用
package exchangetest

import (
	"context"
	"fmt"
	"sync"

	"github.com/shopspring/decimal"
	"github.com/yuechangmingzou/trendguard/pkg/types"
)

// Fake 可编程的内存交易所。所有字段在调用前设置，调用记录可在之后断言
type Fake struct {
	mu sync.Mutex

	Candles    []types.OHLCV
	Balance    float64
	Position   types.Position
	OpenOrders []*types.Order
	Filters    types.SymbolFilters

	CandlesErr    error
	BalanceErr    error
	PositionErr   error
	OpenOrdersErr error
	CancelErr     error
	FiltersErr    error
	// PlaceErr 按订单类型注入下单错误
	PlaceErr map[string]error
	// FillPrice 市价单返回的成交均价，0表示不返回
	FillPrice float64

	Placed       []types.OrderRequest
	CancelCalls  int
	MarginCalls  []string
	LeverageSets []int
	nextID       int
}

// New 创建空仓、默认精度的内存交易所
func New() *Fake {
	return &Fake{
		Position: types.Position{Side: types.SideFlat, Quantity: decimal.Zero},
		Filters:  types.DefaultSymbolFilters(),
		PlaceErr: make(map[string]error),
	}
}

func (f *Fake) GetCandles(_ context.Context, _, _ string, limit int) ([]types.OHLCV, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.CandlesErr != nil {
		return nil, f.CandlesErr
	}
	out := f.Candles
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return append([]types.OHLCV(nil), out...), nil
}

func (f *Fake) GetBalance(context.Context) (float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Balance, f.BalanceErr
}

func (f *Fake) GetPosition(_ context.Context, symbol string) (types.Position, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.PositionErr != nil {
		return types.Position{}, f.PositionErr
	}
	pos := f.Position
	pos.Symbol = symbol
	return pos, nil
}

func (f *Fake) GetOpenOrders(context.Context, string) ([]*types.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.OpenOrdersErr != nil {
		return nil, f.OpenOrdersErr
	}
	return append([]*types.Order(nil), f.OpenOrders...), nil
}

func (f *Fake) PlaceOrder(_ context.Context, req types.OrderRequest) (*types.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Placed = append(f.Placed, req)
	if err := f.PlaceErr[req.OrderType]; err != nil {
		return nil, err
	}

	f.nextID++
	order := &types.Order{
		ID:         fmt.Sprintf("fake-%d", f.nextID),
		Symbol:     req.Symbol,
		Side:       req.Side,
		OrderType:  req.OrderType,
		Status:     "NEW",
		Quantity:   req.Quantity,
		ReduceOnly: req.ReduceOnly,
	}
	if req.OrderType == types.OrderTypeMarket {
		order.Status = "FILLED"
		order.AvgPrice = f.FillPrice
	}
	if req.StopPrice != nil {
		order.StopPrice = req.StopPrice.InexactFloat64()
	}
	return order, nil
}

func (f *Fake) CancelAllOrders(context.Context, string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.CancelCalls++
	if f.CancelErr != nil {
		return f.CancelErr
	}
	f.OpenOrders = nil
	return nil
}

func (f *Fake) GetSymbolFilters(context.Context, string) (types.SymbolFilters, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.FiltersErr != nil {
		return types.SymbolFilters{}, f.FiltersErr
	}
	return f.Filters, nil
}

func (f *Fake) SetMarginType(_ context.Context, _, marginType string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.MarginCalls = append(f.MarginCalls, marginType)
	return nil
}

func (f *Fake) SetLeverage(_ context.Context, _ string, leverage int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.LeverageSets = append(f.LeverageSets, leverage)
	return nil
}

// SetPosition 设置持仓
func (f *Fake) SetPosition(side types.Side, qty string, entry float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Position = types.Position{Side: side, Quantity: decimal.RequireFromString(qty), EntryPrice: entry}
}

// PlacedTypes 已提交订单的类型序列
func (f *Fake) PlacedTypes() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.Placed))
	for i, r := range f.Placed {
		out[i] = r.OrderType
	}
	return out
}

// Cancels 撤单调用次数
func (f *Fake) Cancels() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.CancelCalls
}

var (
	_ types.Exchange          = (*Fake)(nil)
	_ types.AccountConfigurer = (*Fake)(nil)
)
