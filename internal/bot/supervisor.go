package bot

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/yuechangmingzou/trendguard/internal/metrics"
	"github.com/yuechangmingzou/trendguard/internal/utils"
)

// Supervise 运行run，panic或意外退出后等待backoff重启。
// maxRestarts<=0表示无限重启；ctx结束时返回nil
func Supervise(ctx context.Context, run func(context.Context) error, backoff time.Duration, maxRestarts int, onRestart func(attempt int, reason error)) error {
	logger := utils.GetLogger("supervisor")
	restarts := 0

	for {
		err := runProtected(ctx, run)
		if ctx.Err() != nil {
			return nil
		}
		if err == nil {
			err = fmt.Errorf("决策循环意外退出")
		}

		if maxRestarts > 0 && restarts >= maxRestarts {
			logger.Errorw("❌ 超过最大重启次数，停止", "restarts", restarts, "error", err)
			return fmt.Errorf("exceeded %d restarts: %w", maxRestarts, err)
		}

		restarts++
		metrics.RecordRestart()
		logger.Errorw("决策循环异常退出，准备重启",
			"attempt", restarts,
			"backoff", backoff.String(),
			"error", err,
		)
		if onRestart != nil {
			onRestart(restarts, err)
		}

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(backoff):
		}
	}
}

// runProtected 执行run并把panic转为error
func runProtected(ctx context.Context, run func(context.Context) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			utils.GetLogger("supervisor").Errorw("决策循环panic",
				"panic", r,
				"stack", string(debug.Stack()),
			)
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return run(ctx)
}
