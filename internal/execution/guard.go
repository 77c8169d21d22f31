package execution

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"
	"github.com/yuechangmingzou/trendguard/internal/metrics"
	"github.com/yuechangmingzou/trendguard/pkg/types"
)

// ErrInvalidEntryPrice 持仓存在但入场价<=0（读取异常），本tick跳过
var ErrInvalidEntryPrice = errors.New("持仓入场价无效")

// GuardResult 硬止损检查结果
type GuardResult struct {
	PnLPct    float64
	Triggered bool
	Order     *types.Order
	CloseErr  error
	CancelErr error
}

// PnLPercent 按当前价计算持仓盈亏百分比。
// 用十进制计算，阈值边界（如正好-5%）不受浮点误差影响
func PnLPercent(side types.Side, entry, current float64) float64 {
	if entry <= 0 {
		return 0
	}
	e := decimal.NewFromFloat(entry)
	change := decimal.NewFromFloat(current).Sub(e).Div(e).Mul(decimal.NewFromInt(100))

	switch side {
	case types.SideLong:
		return change.InexactFloat64()
	case types.SideShort:
		return change.Neg().InexactFloat64()
	default:
		return 0
	}
}

// CheckHardStop 检查硬止损，pnl<=阈值时市价全平。
// 平仓单不设reduceOnly，确保即使其他地方的数量记录有偏差也能完全平掉。
// 每次调用最多一次平仓尝试；平仓成功后再尽力撤销剩余挂单
func (e *Engine) CheckHardStop(ctx context.Context, pos types.Position, price float64) (GuardResult, error) {
	if pos.IsFlat() {
		return GuardResult{}, nil
	}
	if pos.EntryPrice <= 0 {
		return GuardResult{}, ErrInvalidEntryPrice
	}

	res := GuardResult{PnLPct: PnLPercent(pos.Side, pos.EntryPrice, price)}
	if res.PnLPct > e.params.HardStopLossPct {
		return res, nil
	}

	res.Triggered = true
	metrics.RecordHardStop()
	e.logger.Warnw("🚨 触发硬止损，市价平仓",
		"symbol", e.params.Symbol,
		"side", pos.Side,
		"entry", pos.EntryPrice,
		"price", price,
		"pnl_pct", res.PnLPct,
		"threshold", e.params.HardStopLossPct,
		"quantity", pos.Quantity.String(),
	)

	res.Order, res.CloseErr = e.place(ctx, "hard_stop_close", types.OrderRequest{
		Symbol:    e.params.Symbol,
		Side:      pos.Side.CloseOrderSide(),
		OrderType: types.OrderTypeMarket,
		Quantity:  pos.Quantity,
	})
	if res.CloseErr != nil {
		e.logger.Errorw("❌ 硬止损平仓失败", "symbol", e.params.Symbol, "error", res.CloseErr)
		return res, nil
	}

	res.CancelErr = e.ex.CancelAllOrders(ctx, e.params.Symbol)
	metrics.RecordCancelAll("hard_stop", res.CancelErr)
	if res.CancelErr != nil {
		e.logger.Warnw("⚠️ 硬止损后撤销挂单失败", "symbol", e.params.Symbol, "error", res.CancelErr)
	}

	return res, nil
}
