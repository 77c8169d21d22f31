package execution

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/yuechangmingzou/trendguard/internal/config"
	"github.com/yuechangmingzou/trendguard/internal/indicators"
	"github.com/yuechangmingzou/trendguard/internal/metrics"
	"github.com/yuechangmingzou/trendguard/internal/quantize"
	"github.com/yuechangmingzou/trendguard/internal/strategies"
	"github.com/yuechangmingzou/trendguard/internal/utils"
	"github.com/yuechangmingzou/trendguard/pkg/types"
	"go.uber.org/zap"
)

var (
	one     = decimal.NewFromInt(1)
	hundred = decimal.NewFromInt(100)
)

// Params 执行参数
type Params struct {
	Symbol                 string
	PositionRatio          float64
	TrailCallbackRate      float64
	HardStopLossPct        float64 // 负数，如 -5.0
	BackupTakeProfitPct    float64
	BackupStopLossPct      float64 // >0 时覆盖回退止损距离，否则使用 |HardStopLossPct|
	EntryOrderType         string  // market | limit
	EntryLimitOffsetPct    float64
	EnableTrailingFallback bool
	EnableBackupTP         bool
}

// ParamsFromConfig 从配置构造执行参数
func ParamsFromConfig(cfg *config.Config) Params {
	return Params{
		Symbol:                 cfg.Symbol,
		PositionRatio:          cfg.PositionRatio,
		TrailCallbackRate:      cfg.TrailCallbackRate,
		HardStopLossPct:        cfg.HardStopLossPct,
		BackupTakeProfitPct:    cfg.BackupTakeProfitPct,
		BackupStopLossPct:      cfg.BackupStopLossPct,
		EntryOrderType:         strings.ToLower(cfg.EntryOrderType),
		EntryLimitOffsetPct:    cfg.EntryLimitOffsetPct,
		EnableTrailingFallback: cfg.EnableTrailingFallback,
		EnableBackupTP:         cfg.EnableBackupTP,
	}
}

// fallbackStopPct 回退固定止损距离（正百分比）
func (p Params) fallbackStopPct() float64 {
	if p.BackupStopLossPct > 0 {
		return p.BackupStopLossPct
	}
	return math.Abs(p.HardStopLossPct)
}

// Engine 执行引擎：硬止损、开仓和保护单
type Engine struct {
	ex       types.Exchange
	filters  types.SymbolFilters
	strategy *strategies.TrendStrategy
	params   Params
	audit    *AuditTrail
	logger   *zap.SugaredLogger
}

// NewEngine 创建执行引擎。audit可以为nil
func NewEngine(ex types.Exchange, filters types.SymbolFilters, strategy *strategies.TrendStrategy, params Params, audit *AuditTrail) *Engine {
	return &Engine{
		ex:       ex,
		filters:  filters,
		strategy: strategy,
		params:   params,
		audit:    audit,
		logger:   utils.GetLogger("execution"),
	}
}

// Filters 当前使用的精度规则
func (e *Engine) Filters() types.SymbolFilters {
	return e.filters
}

// ProtectionResult 保护单挂单结果，每一步相互独立
type ProtectionResult struct {
	Trailing        *types.Order
	TrailingErr     error
	Fallback        *types.Order
	FallbackErr     error
	FallbackPrice   decimal.Decimal
	TakeProfit      *types.Order
	TakeProfitErr   error
	TakeProfitPrice decimal.Decimal
}

// StopProtected 是否有止损类保护（移动止损或回退止损）
func (p ProtectionResult) StopProtected() bool {
	return p.Trailing != nil || p.Fallback != nil
}

// Summary 保护单摘要（用于通知）
func (p ProtectionResult) Summary() string {
	var parts []string
	switch {
	case p.Trailing != nil:
		parts = append(parts, "移动止损✅")
	case p.Fallback != nil:
		parts = append(parts, fmt.Sprintf("移动止损❌ 固定止损✅@%s", p.FallbackPrice))
	default:
		parts = append(parts, "止损❌")
	}
	switch {
	case p.TakeProfit != nil:
		parts = append(parts, fmt.Sprintf("止盈✅@%s", p.TakeProfitPrice))
	case p.TakeProfitErr != nil:
		parts = append(parts, "止盈❌")
	}
	return strings.Join(parts, " ")
}

// EntryResult 开仓尝试结果
type EntryResult struct {
	Entered    bool
	Reason     string
	Decision   strategies.Decision
	Quantity   decimal.Decimal
	Price      float64 // 当前价（进行中K线收盘价）
	EntryPrice float64
	Order      *types.Order
	Protection ProtectionResult
	// Pending 限价开仓单尚未成交。保护单已按计划数量挂出；
	// 若到下一tick仍未成交，仓位为空，开仓单和保护单会被对账当作孤儿挂单撤销
	Pending bool
}

// TryEnter 空仓时评估信号并开仓，成功后挂保护单。
// 返回error表示网关调用失败或开仓单被拒绝；条件不满足只在Reason中说明
func (e *Engine) TryEnter(ctx context.Context, candles []types.OHLCV, series *indicators.Series) (EntryResult, error) {
	n := len(candles)
	if n < indicators.MinCandles {
		return EntryResult{Reason: "数据不足"}, indicators.ErrInsufficientData
	}
	price := candles[n-1].Close
	res := EntryResult{Price: price}

	// 对账撤单之后重新确认没有挂单；查询失败按无挂单处理，倾向于允许重试开仓
	orders, err := e.ex.GetOpenOrders(ctx, e.params.Symbol)
	if err != nil {
		e.logger.Warnw("查询挂单失败，按无挂单处理", "symbol", e.params.Symbol, "error", err)
	} else if len(orders) > 0 {
		res.Reason = fmt.Sprintf("存在%d个挂单，跳过开仓", len(orders))
		return res, nil
	}

	balance, err := e.ex.GetBalance(ctx)
	if err != nil {
		res.Reason = "获取余额失败"
		return res, fmt.Errorf("get balance: %w", err)
	}

	spend := balance * e.params.PositionRatio
	if spend <= 0 || price <= 0 {
		res.Reason = fmt.Sprintf("可用资金不足: balance=%.2f", balance)
		return res, nil
	}

	res.Quantity = quantize.QuantityForBudget(decimal.NewFromFloat(spend), decimal.NewFromFloat(price), e.filters.StepSize)
	if res.Quantity.IsZero() || res.Quantity.LessThan(e.filters.MinQty) {
		res.Reason = fmt.Sprintf("下单数量%s低于最小下单量%s", res.Quantity, e.filters.MinQty)
		e.logger.Infow("数量不足，跳过开仓",
			"symbol", e.params.Symbol,
			"spend", spend,
			"price", price,
			"quantity", res.Quantity.String(),
			"min_qty", e.filters.MinQty.String(),
		)
		return res, nil
	}

	res.Decision = e.strategy.Evaluate(candles, series)
	if !res.Decision.ShouldEnter() {
		res.Reason = res.Decision.Reason
		return res, nil
	}

	side := res.Decision.Side
	req := e.entryRequest(side, res.Quantity, price)

	e.logger.Infow("📈 开仓信号",
		"symbol", e.params.Symbol,
		"side", side,
		"reason", res.Decision.Reason,
		"order_type", req.OrderType,
		"quantity", res.Quantity.String(),
		"price", price,
	)

	order, err := e.place(ctx, "entry", req)
	if err != nil {
		res.Reason = "开仓下单失败"
		e.logger.Errorw("❌ 开仓下单失败", "symbol", e.params.Symbol, "side", side, "error", err)
		return res, fmt.Errorf("place entry order: %w", err)
	}

	res.Entered = true
	res.Order = order
	res.Reason = res.Decision.Reason
	res.EntryPrice = price
	if order != nil && order.AvgPrice > 0 {
		res.EntryPrice = order.AvgPrice
	}
	if req.OrderType == types.OrderTypeLimit && (order == nil || order.Status != "FILLED") {
		res.Pending = true
		e.logger.Warnw("⏳ 限价开仓单未立即成交，下一tick仍未成交将被撤销",
			"symbol", e.params.Symbol,
			"price", req.Price.String(),
		)
	}

	res.Protection = e.placeProtection(ctx, side, res.Quantity, res.EntryPrice)
	return res, nil
}

// entryRequest 构造开仓单。限价单挂在当前价内侧一个小偏移
func (e *Engine) entryRequest(side types.Side, qty decimal.Decimal, price float64) types.OrderRequest {
	req := types.OrderRequest{
		Symbol:    e.params.Symbol,
		Side:      side.OpenOrderSide(),
		OrderType: types.OrderTypeMarket,
		Quantity:  qty,
	}
	if e.params.EntryOrderType != "limit" {
		return req
	}

	offset := decimal.NewFromFloat(e.params.EntryLimitOffsetPct).Div(hundred)
	factor := one.Sub(offset)
	if side == types.SideShort {
		factor = one.Add(offset)
	}
	limitPrice := quantize.Price(decimal.NewFromFloat(price).Mul(factor), e.filters.TickSize)

	req.OrderType = types.OrderTypeLimit
	req.Price = &limitPrice
	req.TimeInForce = "GTC"
	return req
}

// placeProtection 挂保护单：移动止损（失败则回退到固定止损），以及独立的备用止盈。
// 任一步失败只记录警告，不回滚开仓
func (e *Engine) placeProtection(ctx context.Context, side types.Side, qty decimal.Decimal, entryPrice float64) ProtectionResult {
	var res ProtectionResult
	closeSide := side.CloseOrderSide()
	entry := decimal.NewFromFloat(entryPrice)

	// 1. 移动止损
	callback := decimal.NewFromFloat(e.params.TrailCallbackRate)
	res.Trailing, res.TrailingErr = e.place(ctx, "trailing_stop", types.OrderRequest{
		Symbol:       e.params.Symbol,
		Side:         closeSide,
		OrderType:    types.OrderTypeTrailingStopMarket,
		Quantity:     qty,
		CallbackRate: &callback,
		ReduceOnly:   true,
	})
	if res.TrailingErr != nil {
		e.logger.Warnw("⚠️ 移动止损挂单失败", "symbol", e.params.Symbol, "error", res.TrailingErr)

		// 1b. 回退固定止损
		if e.params.EnableTrailingFallback {
			dist := decimal.NewFromFloat(e.params.fallbackStopPct()).Div(hundred)
			factor := one.Sub(dist)
			if side == types.SideShort {
				factor = one.Add(dist)
			}
			res.FallbackPrice = quantize.Price(entry.Mul(factor), e.filters.TickSize)
			res.Fallback, res.FallbackErr = e.place(ctx, "fallback_stop", types.OrderRequest{
				Symbol:     e.params.Symbol,
				Side:       closeSide,
				OrderType:  types.OrderTypeStopMarket,
				Quantity:   qty,
				StopPrice:  &res.FallbackPrice,
				ReduceOnly: true,
			})
			if res.FallbackErr != nil {
				e.logger.Warnw("⚠️ 回退固定止损挂单失败", "symbol", e.params.Symbol, "stop_price", res.FallbackPrice.String(), "error", res.FallbackErr)
			} else {
				e.logger.Infow("🛡️ 已挂回退固定止损", "symbol", e.params.Symbol, "stop_price", res.FallbackPrice.String())
			}
		}
	}

	// 2. 备用止盈，与止损结果无关
	if e.params.EnableBackupTP && e.params.BackupTakeProfitPct > 0 {
		dist := decimal.NewFromFloat(e.params.BackupTakeProfitPct).Div(hundred)
		factor := one.Add(dist)
		if side == types.SideShort {
			factor = one.Sub(dist)
		}
		res.TakeProfitPrice = quantize.Price(entry.Mul(factor), e.filters.TickSize)
		res.TakeProfit, res.TakeProfitErr = e.place(ctx, "take_profit", types.OrderRequest{
			Symbol:     e.params.Symbol,
			Side:       closeSide,
			OrderType:  types.OrderTypeTakeProfitMarket,
			Quantity:   qty,
			StopPrice:  &res.TakeProfitPrice,
			ReduceOnly: true,
		})
		if res.TakeProfitErr != nil {
			e.logger.Warnw("⚠️ 备用止盈挂单失败", "symbol", e.params.Symbol, "stop_price", res.TakeProfitPrice.String(), "error", res.TakeProfitErr)
		}
	}

	if !res.StopProtected() {
		e.logger.Errorw("❌ 仓位没有止损保护，等待下个tick硬止损兜底",
			"symbol", e.params.Symbol,
			"side", side,
			"entry", entryPrice,
		)
	}

	return res
}

// place 下单并记录指标和审计
func (e *Engine) place(ctx context.Context, purpose string, req types.OrderRequest) (*types.Order, error) {
	order, err := e.ex.PlaceOrder(ctx, req)
	metrics.RecordOrder(purpose, err)

	fields := map[string]interface{}{
		"purpose":     purpose,
		"symbol":      req.Symbol,
		"side":        req.Side,
		"type":        req.OrderType,
		"quantity":    req.Quantity.String(),
		"reduce_only": req.ReduceOnly,
	}
	if req.Price != nil {
		fields["price"] = req.Price.String()
	}
	if req.StopPrice != nil {
		fields["stop_price"] = req.StopPrice.String()
	}
	if err != nil {
		fields["error"] = err.Error()
		e.audit.Record("order_failed", fields)
		return nil, err
	}
	if order != nil {
		fields["order_id"] = order.ID
		fields["status"] = order.Status
	}
	e.audit.Record("order_placed", fields)
	return order, nil
}
