// Package scheduler 决策循环的节奏控制：K线对齐或固定间隔，出错时使用固定的降级重试间隔
package scheduler

import (
	"context"
	"fmt"
	"time"
)

// Mode 调度模式
type Mode string

const (
	ModeCandle Mode = "candle" // 每根K线收盘后唤醒
	ModeFixed  Mode = "fixed"  // 固定间隔轮询
)

// ParseMode 解析调度模式
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModeCandle, ModeFixed:
		return Mode(s), nil
	default:
		return "", fmt.Errorf("unknown schedule mode %q", s)
	}
}

// Clock 可注入的时钟
type Clock interface {
	Now() time.Time
	After(d time.Duration) <-chan time.Time
}

type realClock struct{}

func (realClock) Now() time.Time                         { return time.Now() }
func (realClock) After(d time.Duration) <-chan time.Time { return time.After(d) }

// RealClock 系统时钟
func RealClock() Clock { return realClock{} }

// NextDelay 计算下一次唤醒的等待时间。
// candle模式: interval - (now mod interval) + settle，落在新K线收盘后settle处；
// fixed模式: 固定interval
func NextDelay(now time.Time, mode Mode, interval, settle time.Duration) time.Duration {
	if interval <= 0 {
		return settle
	}
	if mode == ModeFixed {
		return interval
	}
	elapsed := time.Duration(now.UnixNano() % int64(interval))
	return interval - elapsed + settle
}

// Trigger 可取消的唤醒器
type Trigger struct {
	clock Clock
}

// NewTrigger 创建唤醒器
func NewTrigger(clock Clock) *Trigger {
	if clock == nil {
		clock = RealClock()
	}
	return &Trigger{clock: clock}
}

// Wait 等待d或ctx取消；取消时返回ctx.Err()
func (t *Trigger) Wait(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if d <= 0 {
		return nil
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.clock.After(d):
		return nil
	}
}

// Options 调度参数
type Options struct {
	Mode       Mode
	Interval   time.Duration // candle模式为K线周期，fixed模式为轮询间隔
	Settle     time.Duration // K线收盘后额外等待，等交易所落定最后一根K线
	ErrorDelay time.Duration // 降级重试间隔
	Clock      Clock
}

// Scheduler 决策循环调度器
type Scheduler struct {
	opts    Options
	trigger *Trigger
}

// New 创建调度器
func New(opts Options) *Scheduler {
	if opts.Clock == nil {
		opts.Clock = RealClock()
	}
	return &Scheduler{opts: opts, trigger: NewTrigger(opts.Clock)}
}

// Next 本tick结束后的等待时间；degraded=true表示tick出错，使用降级重试间隔
func (s *Scheduler) Next(degraded bool) time.Duration {
	if degraded && s.opts.ErrorDelay > 0 {
		return s.opts.ErrorDelay
	}
	return NextDelay(s.opts.Clock.Now(), s.opts.Mode, s.opts.Interval, s.opts.Settle)
}

// Wait 等待d，可被ctx取消
func (s *Scheduler) Wait(ctx context.Context, d time.Duration) error {
	return s.trigger.Wait(ctx, d)
}

// Mode 当前调度模式
func (s *Scheduler) Mode() Mode {
	return s.opts.Mode
}
