package publisher

import (
	"context"
	"time"

	"github.com/edooria/edooria/app/study/internal/metrics"
	"github.com/edooria/edooria/app/study/internal/model"
	"github.com/edooria/edooria/pkg/events"
	"github.com/edooria/edooria/pkg/logger"
	"github.com/edooria/edooria/pkg/mq/kafka"
)

// EventPublisher 基于 Kafka 的生命周期事件发布器
// 消息 Key 固定为 userID，同一用户的事件落在同一分区
type EventPublisher struct {
	client  *kafka.Client
	logger  logger.Logger
	metrics *metrics.StudyMetrics
}

// New 创建事件发布器
func New(client *kafka.Client, l logger.Logger, m *metrics.StudyMetrics) *EventPublisher {
	return &EventPublisher{
		client:  client,
		logger:  l.Named("publisher"),
		metrics: m,
	}
}

// PublishStarted 发布会话开始事件
func (p *EventPublisher) PublishStarted(ctx context.Context, s *model.Session) error {
	return p.publishSessionEvent(ctx, events.TopicSessionStarted, s, events.ActionStarted)
}

// PublishEnded 发布会话结束事件
func (p *EventPublisher) PublishEnded(ctx context.Context, s *model.Session) error {
	return p.publishSessionEvent(ctx, events.TopicSessionEnded, s, events.ActionEnded)
}

// PublishHeartbeat 发布心跳事件
func (p *EventPublisher) PublishHeartbeat(ctx context.Context, s *model.Session) error {
	return p.publishSessionEvent(ctx, events.TopicSessionHeartbeat, s, events.ActionHeartbeat)
}

func (p *EventPublisher) publishSessionEvent(ctx context.Context, topic string, s *model.Session, action events.Action) error {
	e := &events.SessionEvent{
		SessionID: s.ID,
		UserID:    s.UserID,
		CourseID:  s.CourseID,
		ModuleID:  s.ModuleID,
		LessonID:  s.LessonID,
		Action:    action,
		Timestamp: s.LastActivityTime,
	}

	return p.publish(ctx, topic, s.UserID, e)
}

// PublishConfirmation 发布确认事件
func (p *EventPublisher) PublishConfirmation(ctx context.Context, c *events.ConfirmationEvent) error {
	return p.publish(ctx, events.TopicSessionConfirmation, c.UserID, c)
}

// PublishReconcileRequest 发布对账请求
func (p *EventPublisher) PublishReconcileRequest(ctx context.Context, r *events.ReconcileRequest) error {
	return p.publish(ctx, events.TopicReconcileRequest, r.Scope, r)
}

// UpdateLastAccessed 最近访问协作方的实现：发布到进度服务的主题
func (p *EventPublisher) UpdateLastAccessed(ctx context.Context, userID, courseID, moduleID, lessonID string) error {
	e := &events.LastAccessEvent{
		UserID:    userID,
		CourseID:  courseID,
		ModuleID:  moduleID,
		LessonID:  lessonID,
		Timestamp: time.Now(),
	}
	return p.publish(ctx, events.TopicLastAccess, userID, e)
}

// RecordStudyTime 连续学习协作方的实现：发布到连续学习主题
func (p *EventPublisher) RecordStudyTime(ctx context.Context, userID string, durationMinutes int64) error {
	e := &events.StreakEvent{
		UserID:          userID,
		DurationMinutes: durationMinutes,
		Timestamp:       time.Now(),
	}
	return p.publish(ctx, events.TopicStreakUpdate, userID, e)
}

func (p *EventPublisher) publish(ctx context.Context, topic, key string, payload interface{}) error {
	data, err := events.Marshal(payload)
	if err != nil {
		p.metrics.EventsPublished.WithLabelValues(topic, "marshal_error").Inc()
		return err
	}

	if err := p.client.PublishWithKey(ctx, topic, key, data); err != nil {
		p.metrics.EventsPublished.WithLabelValues(topic, "error").Inc()
		return err
	}

	p.metrics.EventsPublished.WithLabelValues(topic, "success").Inc()
	p.logger.Debug("event published",
		"topic", topic,
		"key", key,
	)
	return nil
}
