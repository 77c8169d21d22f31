package utils

import (
	"context"
	"time"
)

const (
	DefaultTimeout = 5 * time.Second
	MediumTimeout  = 10 * time.Second
)

// WithDefaultTimeout 短超时，用于Redis等本地依赖
func WithDefaultTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, DefaultTimeout)
}

// WithMediumTimeout 中等超时，用于交易所REST调用
func WithMediumTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, MediumTimeout)
}
