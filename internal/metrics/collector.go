// Package metrics Prometheus指标。
//
// 主要指标：
//   - trendguard_ticks_total{result}              每个tick的结果（ok|skip|error）
//   - trendguard_orders_total{purpose,result}     下单次数（entry|trailing_stop|fallback_stop|take_profit|hard_stop_close）
//   - trendguard_cancel_all_total{reason,result}  撤单次数（closed|flip|orphan|hard_stop）
//   - trendguard_hard_stops_total                 硬止损触发次数
//   - trendguard_position_side                    当前方向（1多 / -1空 / 0空仓）
//   - trendguard_position_pnl_pct                 当前持仓盈亏百分比
//   - trendguard_last_tick_timestamp_seconds      最近一次tick完成时间
//   - trendguard_bot_restarts_total               决策循环被监督重启次数
//   - trendguard_notifications_total{sink,result} 通知发送（dropped表示队列已满被丢弃）
//   - trendguard_http_requests_total{path,status} / trendguard_http_request_duration_seconds{path}
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/yuechangmingzou/trendguard/pkg/types"
)

var (
	ticksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trendguard_ticks_total",
			Help: "Decision loop ticks by result",
		},
		[]string{"result"},
	)

	ordersTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trendguard_orders_total",
			Help: "Orders submitted by purpose and result",
		},
		[]string{"purpose", "result"},
	)

	cancelAllTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trendguard_cancel_all_total",
			Help: "Cancel-all-orders calls by reason and result",
		},
		[]string{"reason", "result"},
	)

	hardStopsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "trendguard_hard_stops_total",
			Help: "Hard stop-loss triggers",
		},
	)

	positionSide = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "trendguard_position_side",
			Help: "Current position side: 1 long, -1 short, 0 flat",
		},
	)

	positionPnL = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "trendguard_position_pnl_pct",
			Help: "Unrealized PnL of the open position in percent",
		},
	)

	lastTick = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "trendguard_last_tick_timestamp_seconds",
			Help: "Unix time of the last completed tick",
		},
	)

	botRestarts = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "trendguard_bot_restarts_total",
			Help: "Decision loop restarts by the supervisor",
		},
	)

	notificationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trendguard_notifications_total",
			Help: "Notifications by sink and result",
		},
		[]string{"sink", "result"},
	)

	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trendguard_http_requests_total",
			Help: "HTTP requests served by path and status",
		},
		[]string{"path", "status"},
	)

	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "trendguard_http_request_duration_seconds",
			Help:    "HTTP request latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"path"},
	)
)

func init() {
	prometheus.MustRegister(
		ticksTotal,
		ordersTotal,
		cancelAllTotal,
		hardStopsTotal,
		positionSide,
		positionPnL,
		lastTick,
		botRestarts,
		notificationsTotal,
		httpRequestsTotal,
		httpRequestDuration,
	)
}

func resultLabel(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

// RecordTick 记录tick结果
func RecordTick(result string, at time.Time) {
	ticksTotal.WithLabelValues(result).Inc()
	lastTick.Set(float64(at.Unix()))
}

// RecordOrder 记录下单结果
func RecordOrder(purpose string, err error) {
	ordersTotal.WithLabelValues(purpose, resultLabel(err)).Inc()
}

// RecordCancelAll 记录撤单结果
func RecordCancelAll(reason string, err error) {
	cancelAllTotal.WithLabelValues(reason, resultLabel(err)).Inc()
}

// RecordHardStop 记录硬止损触发
func RecordHardStop() {
	hardStopsTotal.Inc()
}

// SetPosition 更新持仓方向与盈亏
func SetPosition(side types.Side, pnlPct float64) {
	switch side {
	case types.SideLong:
		positionSide.Set(1)
	case types.SideShort:
		positionSide.Set(-1)
	default:
		positionSide.Set(0)
		pnlPct = 0
	}
	positionPnL.Set(pnlPct)
}

// RecordRestart 记录监督重启
func RecordRestart() {
	botRestarts.Inc()
}

// RecordNotification 记录通知结果，result为ok|error|dropped
func RecordNotification(sink, result string) {
	notificationsTotal.WithLabelValues(sink, result).Inc()
}

// RecordHTTPRequest 记录HTTP请求
func RecordHTTPRequest(path string, status int, latency time.Duration) {
	httpRequestsTotal.WithLabelValues(path, strconv.Itoa(status)).Inc()
	httpRequestDuration.WithLabelValues(path).Observe(latency.Seconds())
}
