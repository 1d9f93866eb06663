package publisher

import (
	"context"

	"github.com/edooria/edooria/pkg/events"
	"github.com/edooria/edooria/pkg/logger"
	"github.com/edooria/edooria/pkg/mq/kafka"
)

// ResponsePublisher 基于 Kafka 的对账响应发布器
type ResponsePublisher struct {
	client *kafka.Client
	logger logger.Logger
}

// New 创建对账响应发布器
func New(client *kafka.Client, l logger.Logger) *ResponsePublisher {
	return &ResponsePublisher{
		client: client,
		logger: l.Named("publisher"),
	}
}

// PublishReconcileResponse 发布对账响应
// Key 使用请求 ID，同一轮对账的响应落在同一分区
func (p *ResponsePublisher) PublishReconcileResponse(ctx context.Context, r *events.ReconcileResponse) error {
	data, err := events.Marshal(r)
	if err != nil {
		return err
	}

	if err := p.client.PublishWithKey(ctx, events.TopicReconcileResponse, r.RequestID, data); err != nil {
		return err
	}

	p.logger.Debug("reconcile response published",
		"request_id", r.RequestID,
	)
	return nil
}
