package execution

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/yuechangmingzou/trendguard/internal/config"
	"github.com/yuechangmingzou/trendguard/internal/utils"
	"go.uber.org/zap"
)

const (
	auditEventMaxChars = 2000
	auditQueueSize     = 256
	auditWriteTimeout  = 2 * time.Second
)

type auditWrite struct {
	event  string // 为空表示状态快照
	data   string
	status bool
}

// AuditTrail 机器人动作审计（Redis列表，限长）和最新状态快照。
// 写入先进入有界队列，由Run异步落盘，决策循环从不等待Redis；队列满时丢弃。
// rdb为nil或接收者为nil时所有方法都是空操作
type AuditTrail struct {
	rdb       *redis.Client
	auditKey  string
	statusKey string
	maxLen    int
	statusTTL time.Duration

	queue        chan auditWrite
	writeTimeout time.Duration
	logger       *zap.SugaredLogger
}

// NewAuditTrail 创建审计记录器，需要另起goroutine调用Run
func NewAuditTrail(rdb *redis.Client, symbol string, maxLen int, statusTTL time.Duration) *AuditTrail {
	if maxLen <= 0 {
		maxLen = 2000
	}
	return &AuditTrail{
		rdb:          rdb,
		auditKey:     config.GetRedisKey(fmt.Sprintf("audit:%s", symbol)),
		statusKey:    config.GetRedisKey(fmt.Sprintf("status:%s", symbol)),
		maxLen:       maxLen,
		statusTTL:    statusTTL,
		queue:        make(chan auditWrite, auditQueueSize),
		writeTimeout: auditWriteTimeout,
		logger:       utils.GetLogger("audit"),
	}
}

func (a *AuditTrail) enabled() bool {
	return a != nil && a.rdb != nil
}

// Record 追加一条审计事件（不阻塞）
func (a *AuditTrail) Record(event string, fields map[string]interface{}) {
	if !a.enabled() {
		return
	}

	payload := make(map[string]interface{}, len(fields)+2)
	for k, v := range fields {
		if err, ok := v.(error); ok {
			v = err.Error()
		}
		payload[k] = v
	}
	payload["ts"] = time.Now().Unix()
	payload["event"] = event

	data, err := json.Marshal(payload)
	if err != nil {
		return
	}

	// 限制事件大小
	eventStr := string(data)
	if len(eventStr) > auditEventMaxChars {
		eventStr = eventStr[:auditEventMaxChars] + "...[已截断]"
	}
	a.enqueue(auditWrite{event: event, data: eventStr})
}

// SaveStatus 保存最新状态快照（不阻塞）
func (a *AuditTrail) SaveStatus(status interface{}) {
	if !a.enabled() {
		return
	}

	data, err := json.Marshal(status)
	if err != nil {
		return
	}
	a.enqueue(auditWrite{data: string(data), status: true})
}

func (a *AuditTrail) enqueue(w auditWrite) {
	select {
	case a.queue <- w:
	default:
		a.logger.Debugw("审计队列已满，丢弃", "event", w.event, "status", w.status)
	}
}

// Recent 读取最近n条审计事件（新的在前）
func (a *AuditTrail) Recent(ctx context.Context, n int) ([]string, error) {
	if !a.enabled() {
		return nil, nil
	}
	return a.rdb.LRange(ctx, a.auditKey, 0, int64(n-1)).Result()
}

// Run 写入worker，直到ctx结束；结束时尽力写完队列中剩余记录
func (a *AuditTrail) Run(ctx context.Context) {
	if !a.enabled() {
		return
	}
	for {
		select {
		case <-ctx.Done():
			a.drain()
			return
		case w := <-a.queue:
			a.write(ctx, w)
		}
	}
}

func (a *AuditTrail) drain() {
	for {
		select {
		case w := <-a.queue:
			a.write(context.Background(), w)
		default:
			return
		}
	}
}

func (a *AuditTrail) write(ctx context.Context, w auditWrite) {
	ctx, cancel := context.WithTimeout(ctx, a.writeTimeout)
	defer cancel()

	if w.status {
		if err := a.rdb.Set(ctx, a.statusKey, w.data, a.statusTTL).Err(); err != nil {
			a.logger.Debugw("保存状态快照失败", "error", err)
		}
		return
	}

	pipe := a.rdb.TxPipeline()
	pipe.LPush(ctx, a.auditKey, w.data)
	pipe.LTrim(ctx, a.auditKey, 0, int64(a.maxLen-1))
	if _, err := pipe.Exec(ctx); err != nil {
		a.logger.Debugw("写入审计失败", "event", w.event, "error", err)
	}
}
