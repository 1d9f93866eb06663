package consumer

import (
	"context"
	"fmt"

	"github.com/edooria/edooria/app/study/internal/service"
	"github.com/edooria/edooria/pkg/events"
	"github.com/edooria/edooria/pkg/logger"
	"github.com/edooria/edooria/pkg/mq/kafka"
)

// ReconcileConsumer 消费镜像侧的对账响应
type ReconcileConsumer struct {
	client *kafka.Client
	svc    *service.SessionService
	logger logger.Logger

	group *kafka.ConsumerGroup
}

// NewReconcileConsumer 创建对账响应消费者
func NewReconcileConsumer(client *kafka.Client, svc *service.SessionService, l logger.Logger) *ReconcileConsumer {
	return &ReconcileConsumer{
		client: client,
		svc:    svc,
		logger: l.Named("consumer.reconcile"),
	}
}

// Start 启动消费
func (c *ReconcileConsumer) Start() error {
	group, err := c.client.Subscribe(
		[]string{events.TopicReconcileResponse},
		c.handle,
		kafka.WithGroupID("study-reconcile"),
	)
	if err != nil {
		return err
	}
	c.group = group

	return c.group.Start(context.Background())
}

// Stop 停止消费
func (c *ReconcileConsumer) Stop() error {
	if c.group == nil {
		return nil
	}
	return c.group.Close()
}

func (c *ReconcileConsumer) handle(ctx context.Context, msg *kafka.Message) error {
	var resp events.ReconcileResponse
	if err := events.Unmarshal(msg.Value, &resp); err != nil {
		// 非法消息体不重试，直接进死信
		return fmt.Errorf("%w: %v", kafka.ErrNonRetryable, err)
	}

	if resp.RequestID == "" {
		return fmt.Errorf("%w: reconcile response missing request_id", kafka.ErrNonRetryable)
	}

	c.svc.HandleReconcileResponse(ctx, &resp)
	return nil
}
