package metrics

import (
	"time"

	"github.com/edooria/edooria/pkg/prometheus"
)

// ProgressMetrics 学习进度服务指标
type ProgressMetrics struct {
	// 镜像指标
	EventsApplied       *prometheus.CounterVec // 应用事件总数（按动作、结果）
	SelfHeals           *prometheus.CounterVec // 自愈创建的镜像记录数（按来源）
	TombstoneSuppressed *prometheus.CounterVec // 被墓碑拦截的迟到事件数
	MirrorSessions      *prometheus.GaugeVec   // 镜像中的活跃会话数
	StaleRecordsPurged  *prometheus.CounterVec // 清理的陈旧镜像记录数

	// 对账指标
	ReconcileResponses *prometheus.CounterVec // 对账响应总数（按结果）

	// Redis 指标
	StoreOpDuration *prometheus.HistogramVec // 镜像存储操作延迟（按操作）
}

// New 创建学习进度服务指标
func New(client *prometheus.Client) *ProgressMetrics {
	return &ProgressMetrics{
		EventsApplied: client.MustNewCounter(
			"mirror_events_applied_total",
			"应用事件总数",
			[]string{"action", "result"},
		),
		SelfHeals: client.MustNewCounter(
			"mirror_self_heals_total",
			"自愈创建的镜像记录数",
			[]string{"source"},
		),
		TombstoneSuppressed: client.MustNewCounter(
			"mirror_tombstone_suppressed_total",
			"被墓碑拦截的迟到事件数",
			nil,
		),
		MirrorSessions: client.MustNewGauge(
			"mirror_sessions",
			"镜像中的活跃会话数",
			nil,
		),
		StaleRecordsPurged: client.MustNewCounter(
			"mirror_stale_purged_total",
			"清理的陈旧镜像记录数",
			nil,
		),
		ReconcileResponses: client.MustNewCounter(
			"reconcile_responses_total",
			"对账响应总数",
			[]string{"result"},
		),
		StoreOpDuration: client.MustNewHistogram(
			"store_op_duration_seconds",
			"镜像存储操作延迟",
			[]string{"op"},
			nil,
		),
	}
}

// RecordStoreOp 记录镜像存储操作延迟
func (m *ProgressMetrics) RecordStoreOp(op string, elapsed time.Duration) {
	m.StoreOpDuration.WithLabelValues(op).Observe(elapsed.Seconds())
}
