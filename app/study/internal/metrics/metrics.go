package metrics

import (
	"time"

	"github.com/edooria/edooria/pkg/prometheus"
)

// StudyMetrics 学习会话服务指标
type StudyMetrics struct {
	// 会话指标
	SessionsStarted *prometheus.CounterVec // 会话开始总数（按结果）
	SessionsEnded   *prometheus.CounterVec // 会话结束总数（按原因：manual/inactivity/max_duration）
	ActiveSessions  *prometheus.GaugeVec   // 当前活跃会话数
	Heartbeats      *prometheus.CounterVec // 心跳总数（按结果）

	// 事件指标
	EventsPublished *prometheus.CounterVec // 发布事件总数（按主题、结果）

	// 对账指标
	ReconcileMissingInMirror *prometheus.GaugeVec // 最近一次对账中镜像缺失的会话数
	ReconcileMissingInOwner  *prometheus.GaugeVec // 最近一次对账中权威侧缺失的会话数

	// 数据库指标
	DBQueryDuration *prometheus.HistogramVec // 数据库查询延迟（按操作）
}

// New 创建学习会话服务指标
func New(client *prometheus.Client) *StudyMetrics {
	return &StudyMetrics{
		SessionsStarted: client.MustNewCounter(
			"sessions_started_total",
			"会话开始总数",
			[]string{"result"},
		),
		SessionsEnded: client.MustNewCounter(
			"sessions_ended_total",
			"会话结束总数",
			[]string{"reason"},
		),
		ActiveSessions: client.MustNewGauge(
			"active_sessions",
			"当前活跃会话数",
			nil,
		),
		Heartbeats: client.MustNewCounter(
			"heartbeats_total",
			"心跳总数",
			[]string{"result"},
		),
		EventsPublished: client.MustNewCounter(
			"events_published_total",
			"发布事件总数",
			[]string{"topic", "result"},
		),
		ReconcileMissingInMirror: client.MustNewGauge(
			"reconcile_missing_in_mirror",
			"最近一次对账中镜像缺失的会话数",
			nil,
		),
		ReconcileMissingInOwner: client.MustNewGauge(
			"reconcile_missing_in_owner",
			"最近一次对账中权威侧缺失的会话数",
			nil,
		),
		DBQueryDuration: client.MustNewHistogram(
			"db_query_duration_seconds",
			"数据库查询延迟",
			[]string{"op"},
			nil,
		),
	}
}

// RecordDBQuery 记录数据库查询延迟
func (m *StudyMetrics) RecordDBQuery(op string, elapsed time.Duration) {
	m.DBQueryDuration.WithLabelValues(op).Observe(elapsed.Seconds())
}
