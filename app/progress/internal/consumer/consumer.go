package consumer

import (
	"context"
	"errors"
	"fmt"

	"github.com/edooria/edooria/app/progress/internal/service"
	"github.com/edooria/edooria/pkg/events"
	"github.com/edooria/edooria/pkg/logger"
	"github.com/edooria/edooria/pkg/mq/kafka"
)

// Consumers 进度服务的全部消费者组
// 生命周期事件、确认事件、对账请求和最近访问各用独立的消费者组，
// 一条流的积压不会阻塞其它流
type Consumers struct {
	client *kafka.Client
	svc    *service.MirrorService
	logger logger.Logger

	groups []*kafka.ConsumerGroup
}

// New 创建消费者集合
func New(client *kafka.Client, svc *service.MirrorService, l logger.Logger) *Consumers {
	return &Consumers{
		client: client,
		svc:    svc,
		logger: l.Named("consumer"),
	}
}

// Start 订阅并启动全部消费者组
func (c *Consumers) Start() error {
	subscriptions := []struct {
		groupID string
		topics  []string
		handler kafka.Handler
	}{
		{
			groupID: "progress-session",
			topics: []string{
				events.TopicSessionStarted,
				events.TopicSessionHeartbeat,
				events.TopicSessionEnded,
			},
			handler: c.handleSessionEvent,
		},
		{
			groupID: "progress-confirmation",
			topics:  []string{events.TopicSessionConfirmation},
			handler: c.handleConfirmation,
		},
		{
			groupID: "progress-reconcile",
			topics:  []string{events.TopicReconcileRequest},
			handler: c.handleReconcileRequest,
		},
		{
			groupID: "progress-lastaccess",
			topics:  []string{events.TopicLastAccess},
			handler: c.handleLastAccess,
		},
	}

	for _, sub := range subscriptions {
		group, err := c.client.Subscribe(sub.topics, sub.handler, kafka.WithGroupID(sub.groupID))
		if err != nil {
			return fmt.Errorf("failed to subscribe %s: %w", sub.groupID, err)
		}
		if err := group.Start(context.Background()); err != nil {
			return fmt.Errorf("failed to start %s: %w", sub.groupID, err)
		}
		c.groups = append(c.groups, group)
	}

	return nil
}

// Stop 停止全部消费者组
func (c *Consumers) Stop() error {
	var firstErr error
	for _, group := range c.groups {
		if err := group.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (c *Consumers) handleSessionEvent(ctx context.Context, msg *kafka.Message) error {
	var ev events.SessionEvent
	if err := events.Unmarshal(msg.Value, &ev); err != nil {
		return fmt.Errorf("%w: %v", kafka.ErrNonRetryable, err)
	}

	return c.wrapInvalid(c.svc.ApplySessionEvent(ctx, &ev))
}

func (c *Consumers) handleConfirmation(ctx context.Context, msg *kafka.Message) error {
	var ev events.ConfirmationEvent
	if err := events.Unmarshal(msg.Value, &ev); err != nil {
		return fmt.Errorf("%w: %v", kafka.ErrNonRetryable, err)
	}

	return c.wrapInvalid(c.svc.ApplyConfirmation(ctx, &ev))
}

func (c *Consumers) handleReconcileRequest(ctx context.Context, msg *kafka.Message) error {
	var req events.ReconcileRequest
	if err := events.Unmarshal(msg.Value, &req); err != nil {
		return fmt.Errorf("%w: %v", kafka.ErrNonRetryable, err)
	}

	_, err := c.svc.HandleReconcileRequest(ctx, &req)
	return c.wrapInvalid(err)
}

func (c *Consumers) handleLastAccess(ctx context.Context, msg *kafka.Message) error {
	var ev events.LastAccessEvent
	if err := events.Unmarshal(msg.Value, &ev); err != nil {
		return fmt.Errorf("%w: %v", kafka.ErrNonRetryable, err)
	}

	return c.wrapInvalid(c.svc.ApplyLastAccess(ctx, &ev))
}

// wrapInvalid 负载非法的错误重试没有意义，标记为不可重试直接进死信
func (c *Consumers) wrapInvalid(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, service.ErrInvalidEvent) {
		return fmt.Errorf("%w: %v", kafka.ErrNonRetryable, err)
	}
	return err
}
