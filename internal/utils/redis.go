package utils

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/yuechangmingzou/trendguard/internal/config"
)

var redisClient *redis.Client

// GetRedisClient 获取Redis客户端（单例模式）。未启用Redis时返回nil
func GetRedisClient() *redis.Client {
	cfg := config.Get()
	if !cfg.RedisEnabled {
		return nil
	}

	if redisClient == nil {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     fmt.Sprintf("%s:%d", cfg.RedisHost, cfg.RedisPort),
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
			// 调用方的ctx超时同时约束socket读写，避免Redis卡住时拖住调用方
			ContextTimeoutEnabled: true,
		})

		// 测试连接
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := redisClient.Ping(ctx).Err(); err != nil {
			// 不panic：租约和状态快照在后续调用时会各自报错
			GetLogger("redis").Errorw("Redis连接失败",
				"error", err,
				"host", cfg.RedisHost,
				"port", cfg.RedisPort,
			)
		}
	}
	return redisClient
}

// CloseRedisClient 关闭Redis客户端
func CloseRedisClient() error {
	if redisClient != nil {
		return redisClient.Close()
	}
	return nil
}
