package execution

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/yuechangmingzou/trendguard/internal/metrics"
	"github.com/yuechangmingzou/trendguard/internal/utils"
	"github.com/yuechangmingzou/trendguard/pkg/types"
)

// Memory 上一个tick观察到的持仓，只用于识别交易所不会主动通知的状态变化。
// 只由决策循环持有和修改
type Memory struct {
	PrevSide types.Side
	PrevQty  decimal.Decimal
}

// NewMemory 初始状态为空仓
func NewMemory() Memory {
	return Memory{PrevSide: types.SideFlat, PrevQty: decimal.Zero}
}

// ReconcileAction 对账动作
type ReconcileAction int

const (
	ActionNone          ReconcileAction = iota
	ActionCancelClosed                  // 多/空 -> 空仓
	ActionCancelFlip                    // 多 <-> 空
	ActionCancelOrphans                 // 空仓 -> 空仓但仍有挂单
)

func (a ReconcileAction) String() string {
	switch a {
	case ActionCancelClosed:
		return "closed"
	case ActionCancelFlip:
		return "flip"
	case ActionCancelOrphans:
		return "orphan"
	default:
		return "none"
	}
}

// ReconcileResult 对账结果
type ReconcileResult struct {
	Action     ReconcileAction
	From       types.Side
	To         types.Side
	CancelErr  error // 撤单失败只记录，不影响状态推进
	SkipEntry  bool  // 清理孤儿挂单后本tick不再开仓
	Transition string
}

// OrderCanceler 对账只需要撤单能力
type OrderCanceler interface {
	CancelAllOrders(ctx context.Context, symbol string) error
}

// Reconcile 比较上一次与当前持仓，发生状态变化时撤销所有挂单。
// 返回的Memory总是当前持仓，撤单失败也不例外，避免同一次失败让状态机每个tick重复撤单
func Reconcile(ctx context.Context, canceler OrderCanceler, symbol string, mem Memory, cur types.Position, openOrders int) (Memory, ReconcileResult) {
	curSide := cur.Side
	if cur.IsFlat() {
		curSide = types.SideFlat
	}

	res := ReconcileResult{
		From:       mem.PrevSide,
		To:         curSide,
		Transition: fmt.Sprintf("%s->%s", mem.PrevSide, curSide),
	}

	switch {
	case mem.PrevSide != types.SideFlat && curSide == types.SideFlat:
		res.Action = ActionCancelClosed
	case mem.PrevSide == types.SideLong && curSide == types.SideShort,
		mem.PrevSide == types.SideShort && curSide == types.SideLong:
		res.Action = ActionCancelFlip
	case mem.PrevSide == types.SideFlat && curSide == types.SideFlat && openOrders > 0:
		res.Action = ActionCancelOrphans
		res.SkipEntry = true
	}

	if res.Action != ActionNone {
		logger := utils.GetLogger("reconcile")
		res.CancelErr = canceler.CancelAllOrders(ctx, symbol)
		metrics.RecordCancelAll(res.Action.String(), res.CancelErr)
		if res.CancelErr != nil {
			logger.Warnw("⚠️ 撤销挂单失败，下个tick再处理",
				"symbol", symbol,
				"transition", res.Transition,
				"reason", res.Action.String(),
				"error", res.CancelErr,
			)
		} else {
			logger.Infow("🧹 已撤销所有挂单",
				"symbol", symbol,
				"transition", res.Transition,
				"reason", res.Action.String(),
				"open_orders", openOrders,
			)
		}
	}

	next := Memory{PrevSide: curSide, PrevQty: cur.Quantity}
	if curSide == types.SideFlat {
		next.PrevQty = decimal.Zero
	}
	return next, res
}
