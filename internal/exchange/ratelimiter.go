package exchange

import (
	"context"
	"strconv"
	"sync"
	"time"
)

// RateLimiter 令牌桶限流器
type RateLimiter struct {
	rate       float64
	capacity   float64
	tokens     float64
	lastUpdate time.Time
	mu         sync.Mutex
}

// NewRateLimiter 创建新的限流器
func NewRateLimiter(rate float64, capacity int) *RateLimiter {
	return &RateLimiter{
		rate:       rate,
		capacity:   float64(capacity),
		tokens:     float64(capacity),
		lastUpdate: time.Now(),
	}
}

// Acquire 尝试获取令牌
func (rl *RateLimiter) Acquire(tokens int) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	elapsed := now.Sub(rl.lastUpdate).Seconds()
	rl.tokens = min(rl.capacity, rl.tokens+elapsed*rl.rate)
	rl.lastUpdate = now

	if rl.tokens >= float64(tokens) {
		rl.tokens -= float64(tokens)
		return true
	}

	return false
}

// Wait 等待直到可以获取令牌，ctx取消时返回错误
func (rl *RateLimiter) Wait(ctx context.Context, tokens int) error {
	for !rl.Acquire(tokens) {
		rl.mu.Lock()
		waitTime := (float64(tokens) - rl.tokens) / rl.rate
		rl.mu.Unlock()
		if waitTime <= 0 {
			waitTime = 0.1
		}
		if waitTime > 1.0 {
			waitTime = 1.0
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(waitTime * float64(time.Second))):
		}
	}
	return nil
}

// BackoffManager 退避管理器（处理429/418限流）
type BackoffManager struct {
	backoffUntil time.Time
	backoffLevel int
	mu           sync.Mutex
	maxLevel     int
	maxSec       float64
}

// NewBackoffManager 创建退避管理器
func NewBackoffManager() *BackoffManager {
	return &BackoffManager{
		maxLevel: 6,
		maxSec:   60.0,
	}
}

// WaitBackoff 等待退避窗口结束
func (bm *BackoffManager) WaitBackoff(ctx context.Context) error {
	for {
		bm.mu.Lock()
		until := bm.backoffUntil
		bm.mu.Unlock()

		if time.Now().After(until) {
			return nil
		}

		wait := time.Until(until)
		if wait > time.Second {
			wait = time.Second
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
}

// Remaining 剩余退避时间
func (bm *BackoffManager) Remaining() time.Duration {
	bm.mu.Lock()
	defer bm.mu.Unlock()
	if d := time.Until(bm.backoffUntil); d > 0 {
		return d
	}
	return 0
}

// SetBackoff 设置退避窗口（只会延长，不会缩短）
func (bm *BackoffManager) SetBackoff(waitSec float64) {
	if waitSec <= 0 {
		return
	}

	bm.mu.Lock()
	defer bm.mu.Unlock()

	until := time.Now().Add(time.Duration(waitSec * float64(time.Second)))
	if until.After(bm.backoffUntil) {
		bm.backoffUntil = until
	}
}

// ResetBackoff 重置退避
func (bm *BackoffManager) ResetBackoff() {
	bm.mu.Lock()
	defer bm.mu.Unlock()

	bm.backoffUntil = time.Time{}
	bm.backoffLevel = 0
}

// OnRateLimited 处理限流，返回建议等待时间（秒）
func (bm *BackoffManager) OnRateLimited(status int, retryAfter *float64) float64 {
	bm.mu.Lock()
	level := bm.backoffLevel
	bm.backoffLevel = min(bm.maxLevel, level+1)
	bm.mu.Unlock()

	var waitSec float64
	if retryAfter != nil {
		waitSec = *retryAfter
	} else {
		// 418表示IP已被封禁，退避基数更大
		base := 60.0
		if status != 418 {
			base = 1.0
		}
		multiplier := 1.0
		for i := 0; i < min(level, bm.maxLevel); i++ {
			multiplier *= 2.0
		}
		waitSec = base * multiplier
	}

	waitSec = max(1.0, min(waitSec, bm.maxSec))
	waitSec += min(0.1*waitSec, 1.0)

	bm.SetBackoff(waitSec)
	return waitSec
}

// ParseRetryAfter 解析Retry-After头
func ParseRetryAfter(value string) *float64 {
	if value == "" {
		return nil
	}

	if sec, err := strconv.ParseFloat(value, 64); err == nil {
		if sec >= 0 {
			return &sec
		}
	}

	if t, err := time.Parse(time.RFC1123, value); err == nil {
		wait := time.Until(t).Seconds()
		if wait >= 0 {
			return &wait
		}
	}

	return nil
}
