package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/yuechangmingzou/trendguard/internal/bot"
	"github.com/yuechangmingzou/trendguard/internal/config"
	"github.com/yuechangmingzou/trendguard/internal/exchange"
	"github.com/yuechangmingzou/trendguard/internal/execution"
	"github.com/yuechangmingzou/trendguard/internal/notify"
	"github.com/yuechangmingzou/trendguard/internal/scheduler"
	"github.com/yuechangmingzou/trendguard/internal/strategies"
	"github.com/yuechangmingzou/trendguard/internal/utils"
	"github.com/yuechangmingzou/trendguard/internal/web"
	"go.uber.org/zap"
)

func main() {
	// 加载环境变量
	if err := godotenv.Load(); err != nil {
		log.Printf("Warning: .env file not found: %v", err)
	}

	if err := config.Load(); err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	config.ValidateAndExit()
	cfg := config.Get()

	if err := utils.InitLogger(cfg.LogLevel, cfg.LogFile); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer utils.SyncLogger()
	logger := utils.GetLogger("main")

	logger.Infow("🚀 trendguard启动",
		"symbol", cfg.Symbol,
		"timeframe", cfg.Timeframe,
		"testnet", cfg.BinanceTestnet,
		"dry_run", cfg.DryRun,
		"redis", cfg.RedisEnabled,
		"log_level", cfg.LogLevel,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Redis可选：单实例租约 + 审计 + 状态快照
	rdb := utils.GetRedisClient()
	defer utils.CloseRedisClient()

	lease := execution.NewLease(rdb, cfg.Symbol, time.Duration(cfg.InstanceLeaseTTLSec)*time.Second)
	// Redis暂时不可用时退避重试；只有其他实例持有租约才退出
	acquireCtx, stopAcquire := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	err := lease.AcquireWithRetry(acquireCtx, time.Second, 30*time.Second)
	stopAcquire()
	if err != nil {
		if errors.Is(err, execution.ErrLeaseHeld) {
			logger.Fatalw("❌ 该交易对已有实例在运行，退出", "symbol", cfg.Symbol, "error", err)
		}
		logger.Fatalw("❌ 获取实例租约失败", "symbol", cfg.Symbol, "error", err)
	}
	defer func() {
		releaseCtx, releaseCancel := utils.WithDefaultTimeout(context.Background())
		defer releaseCancel()
		if err := lease.Release(releaseCtx); err != nil {
			logger.Warnw("释放实例租约失败", "error", err)
		}
	}()

	audit := execution.NewAuditTrail(rdb, cfg.Symbol, cfg.AuditMaxLen, time.Duration(cfg.StatusTTLSec)*time.Second)

	// 交易所
	ex := exchange.GetBinanceExchange()
	if ex.DryRun() {
		logger.Warn("⚠️ DRY_RUN模式：订单和撤单只记录日志，不会发送到交易所")
	}
	filters := bot.LoadFilters(ctx, ex, cfg.Symbol)

	strategy := strategies.NewTrendStrategy(strategies.TrendParams{
		RSILongMax:  cfg.RSILongMax,
		RSIShortMin: cfg.RSIShortMin,
	})
	engine := execution.NewEngine(ex, filters, strategy, execution.ParamsFromConfig(cfg), audit)

	sched, interval := buildScheduler(cfg)
	notifier := buildNotifier(cfg, logger)

	b := bot.New(ex, engine, sched, notifier, audit, bot.Options{
		Symbol:      cfg.Symbol,
		Timeframe:   cfg.Timeframe,
		CandleLimit: cfg.CandleLimit,
		Leverage:    cfg.Leverage,
		MarginType:  cfg.MarginType,
		DryRun:      cfg.DryRun,
	})

	var pinger web.Pinger
	if rdb != nil {
		pinger = web.PingFunc(func(ctx context.Context) error { return rdb.Ping(ctx).Err() })
	}
	server := web.NewServer(b, audit, pinger, web.Options{
		Port:          cfg.WebPort,
		BasicAuthUser: cfg.WebBasicAuthUser,
		BasicAuthPass: cfg.WebBasicAuthPass,
		StaleAfter:    3*interval + time.Duration(cfg.ErrorRetryDelaySec)*time.Second,
	})

	var wg sync.WaitGroup

	// 通知worker
	wg.Add(1)
	go func() {
		defer wg.Done()
		notifier.Run(ctx)
	}()

	// 审计异步写入
	wg.Add(1)
	go func() {
		defer wg.Done()
		audit.Run(ctx)
	}()

	// 租约续期；键丢失时自动重新获取，只有被其他实例接管才停止所有服务
	wg.Add(1)
	go func() {
		defer wg.Done()
		lease.Keep(ctx, func(err error) {
			notifier.Notifyf("🚨 [%s] 实例租约丢失，停止交易: %v", cfg.Symbol, err)
			cancel()
		})
	}()

	// 决策循环（受监督）
	wg.Add(1)
	go func() {
		defer wg.Done()
		runBot(ctx, cancel, cfg, b, notifier, logger)
	}()

	// Web服务
	wg.Add(1)
	go func() {
		defer wg.Done()
		defer func() {
			if r := recover(); r != nil {
				logger.Errorw("Web服务panic", "error", r)
			}
		}()
		if err := server.Run(ctx); err != nil {
			logger.Errorw("Web服务器错误", "error", err)
		}
	}()

	logger.Info("✅ 所有服务已启动")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		logger.Infow("收到停止信号，正在关闭...", "signal", sig.String())
	case <-ctx.Done():
		logger.Warn("服务因内部原因停止，正在关闭...")
	}
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		logger.Info("✅ 所有服务已停止")
	case <-shutdownCtx.Done():
		logger.Warn("⚠️  关闭超时，强制退出")
	}
}

// runBot 初始化账户后在监督下运行决策循环；超过最大重启次数时停止整个进程
func runBot(ctx context.Context, stop context.CancelFunc, cfg *config.Config, b *bot.Bot, notifier *notify.Notifier, logger *zap.SugaredLogger) {
	b.Setup(ctx)

	backoff := time.Duration(cfg.BotRestartBackoffSec) * time.Second
	err := bot.Supervise(ctx, b.Run, backoff, cfg.BotMaxRestarts, func(attempt int, reason error) {
		notifier.Notifyf("⚠️ [%s] 决策循环异常，%s后第%d次重启: %v", cfg.Symbol, backoff, attempt, reason)
	})
	if err != nil {
		logger.Errorw("❌ 决策循环停止", "error", err)
		notifier.Notifyf("🛑 [%s] 决策循环已停止: %v", cfg.Symbol, err)
		stop()
	}
}

// buildScheduler 按SCHEDULE_MODE创建调度器，返回预期的tick间隔
func buildScheduler(cfg *config.Config) (*scheduler.Scheduler, time.Duration) {
	mode, err := scheduler.ParseMode(cfg.ScheduleMode)
	if err != nil {
		mode = scheduler.ModeCandle
	}

	interval := time.Duration(cfg.PollIntervalSec) * time.Second
	if mode == scheduler.ModeCandle {
		// 周期已在启动校验中检查过
		if tf, err := cfg.TimeframeDuration(); err == nil {
			interval = tf
		}
	}

	return scheduler.New(scheduler.Options{
		Mode:       mode,
		Interval:   interval,
		Settle:     time.Duration(cfg.CandleCloseDelaySec) * time.Second,
		ErrorDelay: time.Duration(cfg.ErrorRetryDelaySec) * time.Second,
	}), interval
}

// buildNotifier 按配置启用Telegram和webhook通道，都未配置时通知为空操作
func buildNotifier(cfg *config.Config, logger *zap.SugaredLogger) *notify.Notifier {
	var sinks []notify.Sink

	if cfg.TelegramBotToken != "" && cfg.TelegramChatID != 0 {
		tg, err := notify.NewTelegramSink(cfg.TelegramBotToken, cfg.TelegramChatID)
		if err != nil {
			logger.Warnw("Telegram通知初始化失败，跳过", "error", utils.SanitizeString(err.Error()))
		} else {
			sinks = append(sinks, tg)
		}
	}
	if cfg.AlertWebhookURL != "" {
		sinks = append(sinks, notify.NewWebhookSink(cfg.AlertWebhookURL))
	}

	logger.Infow("通知通道", "count", len(sinks))
	return notify.New(cfg.NotifyQueueSize, sinks...)
}
