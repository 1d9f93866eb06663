package events

// 学习会话相关的 Kafka 主题
const (
	// TopicSessionStarted 会话开始事件
	TopicSessionStarted = "study.session.started"

	// TopicSessionEnded 会话结束事件
	TopicSessionEnded = "study.session.ended"

	// TopicSessionHeartbeat 会话心跳事件（仅位置变化时发布）
	TopicSessionHeartbeat = "study.session.heartbeat"

	// TopicSessionConfirmation 会话确认事件（权威服务处理完成后发布）
	TopicSessionConfirmation = "study.session.confirmation"

	// TopicReconcileRequest 对账请求
	TopicReconcileRequest = "study.session.reconcile.request"

	// TopicReconcileResponse 对账响应
	TopicReconcileResponse = "study.session.reconcile.response"

	// TopicLastAccess 课程最近访问时间更新
	TopicLastAccess = "study.progress.lastaccess"

	// TopicStreakUpdate 连续学习天数更新
	TopicStreakUpdate = "study.streak.update"

	// TopicSessionDLQ 会话事件死信主题
	TopicSessionDLQ = "study.session.dlq"
)
