package bot

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/yuechangmingzou/trendguard/internal/execution"
	"github.com/yuechangmingzou/trendguard/internal/indicators"
	"github.com/yuechangmingzou/trendguard/internal/metrics"
	"github.com/yuechangmingzou/trendguard/internal/notify"
	"github.com/yuechangmingzou/trendguard/internal/scheduler"
	"github.com/yuechangmingzou/trendguard/internal/utils"
	"github.com/yuechangmingzou/trendguard/pkg/types"
	"go.uber.org/zap"
)

// ErrInsufficientData K线不足，本tick跳过
var ErrInsufficientData = indicators.ErrInsufficientData

// IsSkip 是否为“跳过本tick”类错误（按正常节奏继续，不走降级重试）
func IsSkip(err error) bool {
	return errors.Is(err, ErrInsufficientData) || errors.Is(err, execution.ErrInvalidEntryPrice)
}

// Options 机器人参数
type Options struct {
	Symbol      string
	Timeframe   string
	CandleLimit int
	Leverage    int
	MarginType  string
	DryRun      bool
}

// Status 最近一次tick的只读快照
type Status struct {
	Symbol     string     `json:"symbol"`
	DryRun     bool       `json:"dry_run"`
	Side       types.Side `json:"side"`
	Quantity   string     `json:"quantity"`
	EntryPrice float64    `json:"entry_price,omitempty"`
	Price      float64    `json:"price"`
	RefClose   float64    `json:"ref_close"`
	PnLPct     float64    `json:"pnl_pct"`
	LastAction string     `json:"last_action"`
	LastError  string     `json:"last_error,omitempty"`
	Ticks      int64      `json:"ticks"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

// Bot 单交易对决策循环。mem只在决策循环内读写
type Bot struct {
	ex       types.Exchange
	engine   *execution.Engine
	sched    *scheduler.Scheduler
	notifier *notify.Notifier
	audit    *execution.AuditTrail
	opts     Options
	logger   *zap.SugaredLogger

	mem   execution.Memory
	ticks int64

	lastTick atomic.Int64
	status   atomic.Pointer[Status]
}

// New 创建机器人。notifier和audit可以为nil
func New(ex types.Exchange, engine *execution.Engine, sched *scheduler.Scheduler, notifier *notify.Notifier, audit *execution.AuditTrail, opts Options) *Bot {
	if opts.CandleLimit <= 0 {
		opts.CandleLimit = 200
	}
	b := &Bot{
		ex:       ex,
		engine:   engine,
		sched:    sched,
		notifier: notifier,
		audit:    audit,
		opts:     opts,
		logger:   utils.GetLogger("bot"),
		mem:      execution.NewMemory(),
	}
	b.status.Store(&Status{Symbol: opts.Symbol, DryRun: opts.DryRun, Side: types.SideFlat, Quantity: "0"})
	return b
}

// LoadFilters 获取交易对精度规则，失败时使用默认值
func LoadFilters(ctx context.Context, ex types.Exchange, symbol string) types.SymbolFilters {
	filters, err := ex.GetSymbolFilters(ctx, symbol)
	if err != nil {
		defaults := types.DefaultSymbolFilters()
		utils.GetLogger("bot").Warnw("⚠️ 获取交易对精度失败，使用默认值",
			"symbol", symbol,
			"error", err,
			"step_size", defaults.StepSize.String(),
			"min_qty", defaults.MinQty.String(),
			"tick_size", defaults.TickSize.String(),
		)
		return defaults
	}
	return filters
}

// Setup 启动时设置保证金模式和杠杆，失败只告警
func (b *Bot) Setup(ctx context.Context) {
	ctx, cancel := utils.WithMediumTimeout(ctx)
	defer cancel()

	if ac, ok := b.ex.(types.AccountConfigurer); ok {
		if err := ac.SetMarginType(ctx, b.opts.Symbol, b.opts.MarginType); err != nil {
			b.logger.Warnw("设置保证金模式失败（可忽略）", "symbol", b.opts.Symbol, "margin_type", b.opts.MarginType, "error", err)
		}
		if err := ac.SetLeverage(ctx, b.opts.Symbol, b.opts.Leverage); err != nil {
			b.logger.Warnw("设置杠杆失败（可忽略）", "symbol", b.opts.Symbol, "leverage", b.opts.Leverage, "error", err)
		}
	}

	mode := "实盘"
	if b.opts.DryRun {
		mode = "模拟"
	}
	b.notifyf("🤖 机器人启动 | %s | 周期 %s | 杠杆 %dx %s | %s", b.opts.Symbol, b.opts.Timeframe, b.opts.Leverage, b.opts.MarginType, mode)
}

// LastTick 最近一次tick完成时间，零值表示尚未运行
func (b *Bot) LastTick() time.Time {
	ts := b.lastTick.Load()
	if ts == 0 {
		return time.Time{}
	}
	return time.Unix(0, ts)
}

// Status 最近一次tick的状态快照
func (b *Bot) Status() Status {
	return *b.status.Load()
}

// Run 决策循环，直到ctx结束
func (b *Bot) Run(ctx context.Context) error {
	b.logger.Infow("决策循环启动",
		"symbol", b.opts.Symbol,
		"timeframe", b.opts.Timeframe,
		"schedule", b.sched.Mode(),
	)

	for {
		err := b.runTick(ctx)
		degraded := err != nil && !IsSkip(err)

		delay := b.sched.Next(degraded)
		b.logger.Debugw("等待下一个tick", "delay", delay.String(), "degraded", degraded)
		if err := b.sched.Wait(ctx, delay); err != nil {
			b.logger.Infow("决策循环退出", "symbol", b.opts.Symbol)
			return nil
		}
	}
}

// runTick 执行一个tick并记录结果
func (b *Bot) runTick(ctx context.Context) error {
	start := time.Now()
	err := b.Tick(ctx)
	now := time.Now()

	result := "ok"
	switch {
	case err == nil:
	case IsSkip(err):
		result = "skip"
		b.logger.Infow("跳过本tick", "symbol", b.opts.Symbol, "reason", err)
	case ctx.Err() != nil:
		result = "skip"
	case types.IsTransient(err):
		result = "error"
		b.logger.Warnw("tick执行失败（临时错误，降级重试）", "symbol", b.opts.Symbol, "kind", types.KindOf(err).String(), "error", err)
	default:
		result = "error"
		b.logger.Errorw("tick执行失败", "symbol", b.opts.Symbol, "error", err)
	}

	b.ticks++
	b.lastTick.Store(now.UnixNano())
	metrics.RecordTick(result, now)

	status := b.Status()
	status.Ticks = b.ticks
	status.UpdatedAt = now
	status.LastError = ""
	if err != nil {
		status.LastError = err.Error()
	}
	b.status.Store(&status)
	b.audit.SaveStatus(status)

	b.logger.Debugw("tick完成", "result", result, "duration", time.Since(start).String())
	return err
}

// Tick 单次决策：拉K线算指标 -> 读持仓对账 -> 硬止损 -> 空仓时尝试开仓
func (b *Bot) Tick(ctx context.Context) error {
	symbol := b.opts.Symbol

	candles, err := b.ex.GetCandles(ctx, symbol, b.opts.Timeframe, b.opts.CandleLimit)
	if err != nil {
		return fmt.Errorf("get candles: %w", err)
	}
	if len(candles) < indicators.MinCandles {
		return ErrInsufficientData
	}
	series, err := indicators.Compute(candles)
	if err != nil {
		return err
	}

	n := len(candles)
	price := candles[n-1].Close
	refClose := candles[n-2].Close

	// 持仓读取失败时不更新内存，避免把读失败误判为平仓
	pos, err := b.ex.GetPosition(ctx, symbol)
	if err != nil {
		return fmt.Errorf("get position: %w", err)
	}

	openOrders := 0
	if orders, err := b.ex.GetOpenOrders(ctx, symbol); err != nil {
		b.logger.Warnw("查询挂单失败，按无挂单处理", "symbol", symbol, "error", err)
	} else {
		openOrders = len(orders)
	}

	var rec execution.ReconcileResult
	b.mem, rec = execution.Reconcile(ctx, b.ex, symbol, b.mem, pos, openOrders)
	b.onReconciled(rec, price)

	status := b.Status()
	status.Side = b.mem.PrevSide
	status.Quantity = b.mem.PrevQty.String()
	status.EntryPrice = pos.EntryPrice
	status.Price = price
	status.RefClose = refClose
	status.PnLPct = 0
	status.LastAction = "对账:" + rec.Action.String()

	if !pos.IsFlat() {
		guard, err := b.engine.CheckHardStop(ctx, pos, price)
		if err != nil {
			b.publish(status)
			return err
		}
		status.PnLPct = guard.PnLPct
		metrics.SetPosition(pos.Side, guard.PnLPct)

		b.logger.Infow("📊 持仓中",
			"symbol", symbol,
			"price", price,
			"ref_close", refClose,
			"side", pos.Side,
			"quantity", pos.Quantity.String(),
			"entry", pos.EntryPrice,
			"pnl_pct", fmt.Sprintf("%.2f", guard.PnLPct),
		)

		if guard.Triggered {
			status.LastAction = "硬止损"
			b.onHardStop(pos, price, guard)
		} else {
			status.LastAction = "持仓"
		}
		b.publish(status)
		return nil
	}

	metrics.SetPosition(types.SideFlat, 0)
	b.logger.Infow("📊 空仓",
		"symbol", symbol,
		"price", price,
		"ref_close", refClose,
		"open_orders", openOrders,
	)

	if rec.SkipEntry {
		status.LastAction = "清理孤儿挂单"
		b.publish(status)
		return nil
	}

	entry, err := b.engine.TryEnter(ctx, candles, series)
	if err != nil {
		status.LastAction = entry.Reason
		b.publish(status)
		return err
	}

	status.LastAction = entry.Reason
	if entry.Entered {
		status.Side = entry.Decision.Side
		status.Quantity = entry.Quantity.String()
		status.EntryPrice = entry.EntryPrice
		b.onEntered(entry)
	} else {
		b.logger.Infow("未开仓", "symbol", symbol, "reason", entry.Reason)
	}
	b.publish(status)
	return nil
}

func (b *Bot) publish(status Status) {
	b.status.Store(&status)
}

func (b *Bot) onReconciled(rec execution.ReconcileResult, price float64) {
	switch rec.Action {
	case execution.ActionCancelClosed:
		b.notifyf("✅ [%s] %s仓位已平仓（止损/止盈或手动），当前价 %.2f", b.opts.Symbol, sideName(rec.From), price)
	case execution.ActionCancelFlip:
		b.notifyf("🔄 [%s] 仓位方向变化 %s -> %s，已撤销旧挂单", b.opts.Symbol, sideName(rec.From), sideName(rec.To))
	case execution.ActionNone:
		return
	}
	b.audit.Record("reconcile", map[string]interface{}{
		"transition": rec.Transition,
		"action":     rec.Action.String(),
		"cancel_err": rec.CancelErr,
	})
}

func (b *Bot) onHardStop(pos types.Position, price float64, guard execution.GuardResult) {
	b.audit.Record("hard_stop", map[string]interface{}{
		"side":      pos.Side,
		"entry":     pos.EntryPrice,
		"price":     price,
		"pnl_pct":   guard.PnLPct,
		"close_err": guard.CloseErr,
	})
	if guard.CloseErr != nil {
		b.notifyf("🚨 [%s] 触发硬止损 %.2f%% 但平仓失败: %v", b.opts.Symbol, guard.PnLPct, guard.CloseErr)
		return
	}
	b.notifyf("🚨 [%s] 触发硬止损，已市价平%s %s | 入场 %.2f 当前 %.2f 盈亏 %.2f%%",
		b.opts.Symbol, sideName(pos.Side), pos.Quantity, pos.EntryPrice, price, guard.PnLPct)
}

func (b *Bot) onEntered(entry execution.EntryResult) {
	side := entry.Decision.Side
	icon := "🟢"
	if side == types.SideShort {
		icon = "🔴"
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "%s [%s] 开%s %s @ %.2f\n", icon, b.opts.Symbol, sideName(side), entry.Quantity, entry.EntryPrice)
	fmt.Fprintf(&sb, "原因: %s\n", entry.Decision.Reason)
	fmt.Fprintf(&sb, "保护: %s", entry.Protection.Summary())
	if entry.Pending {
		sb.WriteString("\n⏳ 限价单等待成交，下一tick仍未成交将撤销")
	}
	b.notifier.Notify(sb.String())

	if !entry.Protection.StopProtected() {
		b.notifyf("⚠️ [%s] 新开仓位没有止损保护，依赖硬止损兜底", b.opts.Symbol)
	}

	b.audit.Record("entry", map[string]interface{}{
		"side":        side,
		"quantity":    entry.Quantity.String(),
		"entry_price": entry.EntryPrice,
		"reason":      entry.Decision.Reason,
		"protection":  entry.Protection.Summary(),
		"pending":     entry.Pending,
	})
}

func (b *Bot) notifyf(format string, args ...interface{}) {
	b.notifier.Notifyf(format, args...)
}

func sideName(s types.Side) string {
	switch s {
	case types.SideLong:
		return "多"
	case types.SideShort:
		return "空"
	default:
		return "空仓"
	}
}
