package metrics

import (
	"io"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
)

// 全局 Registry，供守护进程注册与暴露
var DefaultRegistry = prometheus.NewRegistry()

func init() {
	DefaultRegistry.MustRegister(
		SendTotal,
		FlushDeliveredTotal, FlushDroppedTotal, FlushRetainedTotal,
		FlushDuration, FlushRuns,
		QueueDepth,
	)
}

// SendTotal Send 结果计数（按状态）
var SendTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "memq_send_total",
		Help: "Send 调用总数（按结果）",
	},
	[]string{"status"}, // delivered | queued | error
)

// FlushDeliveredTotal 重放成功投递的记录数
var FlushDeliveredTotal = prometheus.NewCounter(
	prometheus.CounterOpts{
		Name: "memq_flush_delivered_total",
		Help: "Flush 成功投递的记录总数",
	},
)

// FlushDroppedTotal 因解密失败被丢弃的记录数
var FlushDroppedTotal = prometheus.NewCounter(
	prometheus.CounterOpts{
		Name: "memq_flush_dropped_total",
		Help: "Flush 因无法解密而丢弃的记录总数",
	},
)

// FlushRetainedTotal 重放仍失败而保留的记录数
var FlushRetainedTotal = prometheus.NewCounter(
	prometheus.CounterOpts{
		Name: "memq_flush_retained_total",
		Help: "Flush 投递失败后保留的记录总数",
	},
)

// FlushDuration 单次 Flush 耗时（秒）
var FlushDuration = prometheus.NewHistogram(
	prometheus.HistogramOpts{
		Name:    "memq_flush_duration_seconds",
		Help:    "单次 Flush 耗时（秒）",
		Buckets: prometheus.DefBuckets,
	},
)

// FlushRuns Flush 次数（按结果）
var FlushRuns = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "memq_flush_runs_total",
		Help: "Flush 执行次数（按结果）",
	},
	[]string{"result"}, // ok | aborted
)

// QueueDepth 最近一次观测到的队列长度
var QueueDepth = prometheus.NewGauge(
	prometheus.GaugeOpts{
		Name: "memq_queue_depth",
		Help: "当前队列中的记录数",
	},
)

// WritePrometheus 将 Prometheus 文本格式写入 w（供 Hertz 等复用）
func WritePrometheus(w io.Writer) error {
	metrics, err := DefaultRegistry.Gather()
	if err != nil {
		return err
	}
	enc := expfmt.NewEncoder(w, expfmt.FmtText)
	for _, mf := range metrics {
		if err := enc.Encode(mf); err != nil {
			return err
		}
	}
	return nil
}
