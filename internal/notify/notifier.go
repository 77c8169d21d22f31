// Package notify 异步通知：决策循环只入队，后台worker逐个发送到各个通道，失败只记日志
package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/yuechangmingzou/trendguard/internal/metrics"
	"github.com/yuechangmingzou/trendguard/internal/utils"
	"go.uber.org/zap"
)

const defaultSendTimeout = 10 * time.Second

// Sink 通知通道
type Sink interface {
	Name() string
	Send(ctx context.Context, text string) error
}

// Notifier 有界队列通知器。Notify从不阻塞，队列满时丢弃消息
type Notifier struct {
	queue       chan string
	sinks       []Sink
	sendTimeout time.Duration
	logger      *zap.SugaredLogger
}

// New 创建通知器，size<=0时使用64
func New(size int, sinks ...Sink) *Notifier {
	if size <= 0 {
		size = 64
	}
	return &Notifier{
		queue:       make(chan string, size),
		sinks:       sinks,
		sendTimeout: defaultSendTimeout,
		logger:      utils.GetLogger("notify"),
	}
}

// Enabled 是否配置了任何通道
func (n *Notifier) Enabled() bool {
	return n != nil && len(n.sinks) > 0
}

// Notify 入队一条消息，不等待发送。返回false表示未入队（无通道或队列已满）
func (n *Notifier) Notify(text string) bool {
	if !n.Enabled() {
		return false
	}
	select {
	case n.queue <- text:
		return true
	default:
		metrics.RecordNotification("queue", "dropped")
		n.logger.Warnw("通知队列已满，丢弃消息", "text", text)
		return false
	}
}

// Notifyf 格式化后入队
func (n *Notifier) Notifyf(format string, args ...interface{}) bool {
	return n.Notify(fmt.Sprintf(format, args...))
}

// Run 发送worker，直到ctx结束；结束时尽力发完队列中剩余消息
func (n *Notifier) Run(ctx context.Context) {
	if !n.Enabled() {
		return
	}
	for {
		select {
		case <-ctx.Done():
			n.drain()
			return
		case text := <-n.queue:
			n.dispatch(ctx, text)
		}
	}
}

func (n *Notifier) drain() {
	ctx, cancel := context.WithTimeout(context.Background(), n.sendTimeout)
	defer cancel()
	for {
		select {
		case text := <-n.queue:
			n.dispatch(ctx, text)
		default:
			return
		}
	}
}

func (n *Notifier) dispatch(ctx context.Context, text string) {
	for _, sink := range n.sinks {
		sendCtx, cancel := context.WithTimeout(ctx, n.sendTimeout)
		err := sink.Send(sendCtx, text)
		cancel()
		if err != nil {
			metrics.RecordNotification(sink.Name(), "error")
			n.logger.Warnw("通知发送失败", "sink", sink.Name(), "error", utils.SanitizeString(err.Error()))
			continue
		}
		metrics.RecordNotification(sink.Name(), "ok")
	}
}
