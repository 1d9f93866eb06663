package kafka

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/edooria/edooria/pkg/logger"
)

// 死信消息附带的失败上下文 header
const (
	HeaderDLQOriginTopic     = "x-dlq-origin-topic"
	HeaderDLQOriginPartition = "x-dlq-origin-partition"
	HeaderDLQOriginOffset    = "x-dlq-origin-offset"
	HeaderDLQError           = "x-dlq-error"
	HeaderDLQFailedAt        = "x-dlq-failed-at"
	HeaderDLQAttempts        = "x-dlq-attempts"
)

// LoggingMiddleware 消费日志中间件
func LoggingMiddleware(log logger.Logger) Middleware {
	return func(next Handler) Handler {
		return func(ctx context.Context, msg *Message) error {
			start := time.Now()
			err := next(ctx, msg)
			elapsed := time.Since(start)

			if err != nil {
				log.Error("message handled with error",
					"topic", msg.Topic,
					"partition", msg.Partition,
					"offset", msg.Offset,
					"elapsed", elapsed,
					"error", err,
				)
			} else {
				log.Debug("message handled",
					"topic", msg.Topic,
					"partition", msg.Partition,
					"offset", msg.Offset,
					"elapsed", elapsed,
				)
			}

			return err
		}
	}
}

// RecoveryMiddleware 恐慌恢复中间件
func RecoveryMiddleware(log logger.Logger) Middleware {
	return func(next Handler) Handler {
		return func(ctx context.Context, msg *Message) (err error) {
			defer func() {
				if r := recover(); r != nil {
					log.Error("handler panic recovered",
						"topic", msg.Topic,
						"partition", msg.Partition,
						"offset", msg.Offset,
						"panic", r,
					)
					err = fmt.Errorf("%w: %v", ErrConsumerPanic, r)
				}
			}()
			return next(ctx, msg)
		}
	}
}

// RetryMiddleware 重试中间件，按指数退避重试失败的消息处理。
// maxRetries 为 0 时不重试。遇到 ErrNonRetryable 立即放弃。
func RetryMiddleware(maxRetries int, backoff time.Duration, log logger.Logger) Middleware {
	return func(next Handler) Handler {
		return func(ctx context.Context, msg *Message) error {
			var lastErr error

			for attempt := 0; attempt <= maxRetries; attempt++ {
				if attempt > 0 {
					// 指数退避：backoff * 2^(attempt-1)
					wait := backoff << (attempt - 1)

					log.Warn("retrying message",
						"topic", msg.Topic,
						"partition", msg.Partition,
						"offset", msg.Offset,
						"attempt", attempt,
						"max_retries", maxRetries,
						"backoff", wait,
						"error", lastErr,
					)

					select {
					case <-ctx.Done():
						return ctx.Err()
					case <-time.After(wait):
					}
				}

				lastErr = next(ctx, msg)
				if lastErr == nil {
					return nil
				}

				if errors.Is(lastErr, ErrNonRetryable) {
					return lastErr
				}
			}

			return lastErr
		}
	}
}

// DLQPublisher 死信发布接口
type DLQPublisher interface {
	Publish(ctx context.Context, topic string, msg *Message) error
}

// DeadLetterMiddleware 死信中间件。内层处理链（通常包含重试）仍然失败时，
// 将原始消息连同失败上下文转发到死信主题并返回 nil，使 offset 得以提交、
// 消费不被阻塞。死信发布自身失败时返回原始错误，消息将被重新投递。
func DeadLetterMiddleware(publisher DLQPublisher, dlqTopic string, log logger.Logger) Middleware {
	return func(next Handler) Handler {
		return func(ctx context.Context, msg *Message) error {
			err := next(ctx, msg)
			if err == nil {
				return nil
			}

			dlqMsg := &Message{
				Topic: dlqTopic,
				Key:   msg.Key,
				Value: msg.Value,
				Headers: map[string]string{
					HeaderDLQOriginTopic:     msg.Topic,
					HeaderDLQOriginPartition: strconv.Itoa(msg.Partition),
					HeaderDLQOriginOffset:    strconv.FormatInt(msg.Offset, 10),
					HeaderDLQError:           err.Error(),
					HeaderDLQFailedAt:        time.Now().UTC().Format(time.RFC3339),
				},
			}
			for k, v := range msg.Headers {
				dlqMsg.Headers[k] = v
			}

			if pubErr := publisher.Publish(ctx, dlqTopic, dlqMsg); pubErr != nil {
				log.Error("failed to publish to dead letter topic",
					"dlq_topic", dlqTopic,
					"origin_topic", msg.Topic,
					"partition", msg.Partition,
					"offset", msg.Offset,
					"publish_error", pubErr,
					"handler_error", err,
				)
				return err
			}

			log.Warn("message routed to dead letter topic",
				"dlq_topic", dlqTopic,
				"origin_topic", msg.Topic,
				"partition", msg.Partition,
				"offset", msg.Offset,
				"error", err,
			)

			return nil
		}
	}
}

// ProducerLoggingMiddleware 生产日志中间件
func ProducerLoggingMiddleware(log logger.Logger) ProducerMiddleware {
	return func(ctx context.Context, msg *Message, next func(context.Context, *Message) error) error {
		start := time.Now()
		err := next(ctx, msg)
		elapsed := time.Since(start)

		if err != nil {
			log.Error("message publish failed",
				"topic", msg.Topic,
				"elapsed", elapsed,
				"error", err,
			)
		} else {
			log.Debug("message published",
				"topic", msg.Topic,
				"elapsed", elapsed,
			)
		}

		return err
	}
}
