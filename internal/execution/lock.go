package execution

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/yuechangmingzou/trendguard/internal/config"
	"github.com/yuechangmingzou/trendguard/internal/utils"
)

var (
	// ErrLeaseHeld 另一个实例正在管理同一交易对
	ErrLeaseHeld = errors.New("实例租约已被其他进程持有")
	// ErrLeaseLost 租约过期或被抢占
	ErrLeaseLost = errors.New("实例租约已丢失")
)

// 只续期/释放自己持有的租约
var (
	refreshScript = redis.NewScript(`
		if redis.call("get", KEYS[1]) == ARGV[1] then
			return redis.call("pexpire", KEYS[1], ARGV[2])
		else
			return 0
		end
	`)
	releaseScript = redis.NewScript(`
		if redis.call("get", KEYS[1]) == ARGV[1] then
			return redis.call("del", KEYS[1])
		else
			return 0
		end
	`)
)

// Lease 单交易对单实例租约（Redis SET NX PX）。
// 决策循环的内存状态假设同一交易对只有一个实例在运行；未启用Redis时租约为空操作
type Lease struct {
	rdb   *redis.Client
	key   string
	token string
	ttl   time.Duration
}

// NewLease 创建租约，rdb为nil时所有操作直接成功
func NewLease(rdb *redis.Client, symbol string, ttl time.Duration) *Lease {
	if ttl <= 0 {
		ttl = 120 * time.Second
	}
	return &Lease{
		rdb:   rdb,
		key:   config.GetRedisKey(fmt.Sprintf("lease:%s", symbol)),
		token: uuid.NewString(),
		ttl:   ttl,
	}
}

// Acquire 获取租约
func (l *Lease) Acquire(ctx context.Context) error {
	if l.rdb == nil {
		return nil
	}

	ok, err := l.rdb.SetNX(ctx, l.key, l.token, l.ttl).Result()
	if err != nil {
		return fmt.Errorf("获取租约失败: %w", err)
	}
	if !ok {
		holder, _ := l.rdb.Get(ctx, l.key).Result()
		return fmt.Errorf("%w: key=%s holder=%s", ErrLeaseHeld, l.key, holder)
	}

	utils.GetLogger("lease").Infow("🔒 已获取实例租约", "key", l.key, "ttl", l.ttl)
	return nil
}

// Refresh 续期租约
func (l *Lease) Refresh(ctx context.Context) error {
	if l.rdb == nil {
		return nil
	}

	n, err := refreshScript.Run(ctx, l.rdb, []string{l.key}, l.token, l.ttl.Milliseconds()).Int64()
	if err != nil {
		return fmt.Errorf("续期租约失败: %w", err)
	}
	if n == 0 {
		return ErrLeaseLost
	}
	return nil
}

// Release 释放租约
func (l *Lease) Release(ctx context.Context) error {
	if l.rdb == nil {
		return nil
	}

	_, err := releaseScript.Run(ctx, l.rdb, []string{l.key}, l.token).Result()
	if err != nil {
		return fmt.Errorf("释放租约失败: %w", err)
	}
	return nil
}

// AcquireWithRetry 获取租约，Redis暂时不可用时按指数退避重试；
// 租约被其他实例持有时立即返回ErrLeaseHeld
func (l *Lease) AcquireWithRetry(ctx context.Context, backoff, maxBackoff time.Duration) error {
	logger := utils.GetLogger("lease")
	for {
		err := l.Acquire(ctx)
		if err == nil || errors.Is(err, ErrLeaseHeld) {
			return err
		}

		logger.Warnw("获取实例租约失败，稍后重试", "key", l.key, "backoff", backoff.String(), "error", err)
		select {
		case <-ctx.Done():
			return fmt.Errorf("%v: %w", err, ctx.Err())
		case <-time.After(backoff):
		}
		if backoff *= 2; backoff > maxBackoff {
			backoff = maxBackoff
		}
	}
}

// Keep 每ttl/3续期一次，直到ctx结束。
// 键丢失（Redis重启、淘汰）时重新获取；只有键被其他实例持有时才调用onLost并返回
func (l *Lease) Keep(ctx context.Context, onLost func(error)) {
	if l.rdb == nil {
		return
	}

	logger := utils.GetLogger("lease")
	ticker := time.NewTicker(l.ttl / 3)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			err := l.Refresh(ctx)
			if err == nil {
				continue
			}
			if !errors.Is(err, ErrLeaseLost) {
				// Redis暂时不可用，下次再试
				logger.Warnw("租约续期失败", "key", l.key, "error", err)
				continue
			}

			holder, err := l.reacquire(ctx)
			if err != nil {
				logger.Warnw("租约键丢失，重新获取失败，下次再试", "key", l.key, "error", err)
				continue
			}
			if holder == "" {
				logger.Warnw("⚠️ 租约键丢失，已重新获取", "key", l.key)
				continue
			}

			logger.Errorw("❌ 实例租约被其他实例持有", "key", l.key, "holder", holder)
			if onLost != nil {
				onLost(fmt.Errorf("%w: holder=%s", ErrLeaseLost, holder))
			}
			return
		}
	}
}

// reacquire 键不存在时重新占用。返回其他持有者的token，自己持有时返回空串
func (l *Lease) reacquire(ctx context.Context) (string, error) {
	ok, err := l.rdb.SetNX(ctx, l.key, l.token, l.ttl).Result()
	if err != nil {
		return "", err
	}
	if ok {
		return "", nil
	}

	holder, err := l.rdb.Get(ctx, l.key).Result()
	if errors.Is(err, redis.Nil) {
		return "", fmt.Errorf("租约键状态变化")
	}
	if err != nil {
		return "", err
	}
	if holder == l.token {
		return "", nil
	}
	return holder, nil
}
