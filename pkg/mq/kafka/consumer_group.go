package kafka

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	kafkago "github.com/segmentio/kafka-go"
)

// ConsumerGroup 消费者组
type ConsumerGroup struct {
	client  *Client
	id      string
	groupID string
	topics  []string
	handler Handler
	reader  *kafkago.Reader

	// 状态
	state atomic.Int32

	// 控制
	stopCh chan struct{}
	wg     sync.WaitGroup

	// 配置
	concurrency int
	autoCommit  bool

	// 统计
	stats ConsumerStats
}

// ConsumerOption 消费者选项
type ConsumerOption func(*consumerOptions)

type consumerOptions struct {
	groupID     string
	concurrency int
}

// WithConcurrency 设置并发消费数
func WithConcurrency(n int) ConsumerOption {
	return func(o *consumerOptions) {
		if n > 0 {
			o.concurrency = n
		}
	}
}

// WithGroupID 设置消费者组 ID（覆盖配置中的 GroupID）
func WithGroupID(groupID string) ConsumerOption {
	return func(o *consumerOptions) {
		if groupID != "" {
			o.groupID = groupID
		}
	}
}

// newConsumerGroup 创建消费者组
func newConsumerGroup(c *Client, topics []string, handler Handler, opts ...ConsumerOption) *ConsumerGroup {
	cfg := c.config.Consumer

	options := &consumerOptions{
		groupID:     cfg.GroupID,
		concurrency: cfg.Concurrency,
	}
	for _, opt := range opts {
		opt(options)
	}
	if options.concurrency < 1 {
		options.concurrency = 1
	}

	cg := &ConsumerGroup{
		client:      c,
		id:          uuid.New().String(),
		groupID:     options.groupID,
		topics:      topics,
		stopCh:      make(chan struct{}),
		concurrency: options.concurrency,
		autoCommit:  cfg.CommitInterval > 0,
	}

	// 应用中间件（第一个中间件在最外层）
	wrappedHandler := handler
	for i := len(c.consumerMiddlewares) - 1; i >= 0; i-- {
		wrappedHandler = c.consumerMiddlewares[i](wrappedHandler)
	}
	cg.handler = wrappedHandler

	readerCfg := kafkago.ReaderConfig{
		Brokers:           c.config.Brokers,
		GroupID:           options.groupID,
		GroupTopics:       topics,
		MinBytes:          cfg.MinBytes,
		MaxBytes:          cfg.MaxBytes,
		MaxWait:           cfg.MaxWait,
		StartOffset:       cfg.StartOffset,
		HeartbeatInterval: cfg.HeartbeatInterval,
		SessionTimeout:    cfg.SessionTimeout,
		RebalanceTimeout:  cfg.RebalanceTimeout,
	}

	if cg.autoCommit {
		readerCfg.CommitInterval = cfg.CommitInterval
	}

	cg.reader = kafkago.NewReader(readerCfg)

	return cg
}

// ID 返回消费者组实例 ID
func (cg *ConsumerGroup) ID() string {
	return cg.id
}

// Topics 返回订阅的主题
func (cg *ConsumerGroup) Topics() []string {
	return cg.topics
}

// Start 启动消费
func (cg *ConsumerGroup) Start(ctx context.Context) error {
	if !cg.state.CompareAndSwap(int32(ConsumerStateIdle), int32(ConsumerStateRunning)) {
		return ErrConsumerAlreadyRunning
	}

	cg.client.logger.Info("consumer group starting",
		"group_id", cg.groupID,
		"topics", cg.topics,
		"concurrency", cg.concurrency,
	)

	for i := 0; i < cg.concurrency; i++ {
		cg.wg.Add(1)
		workerID := i
		go func() {
			defer cg.wg.Done()
			cg.consume(ctx, workerID)
		}()
	}

	return nil
}

// consume 消费循环
func (cg *ConsumerGroup) consume(ctx context.Context, workerID int) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-cg.stopCh:
			return
		default:
		}

		// 带超时拉取，以便定期检查 stopCh
		fetchCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		kafkaMsg, err := cg.reader.FetchMessage(fetchCtx)
		cancel()
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			select {
			case <-cg.stopCh:
				return
			default:
			}
			// 超时是正常的，继续下一次循环
			if errors.Is(err, context.DeadlineExceeded) {
				continue
			}

			cg.client.logger.Error("failed to fetch message",
				"group_id", cg.groupID,
				"worker_id", workerID,
				"error", err,
			)
			continue
		}

		atomic.AddInt64(&cg.stats.MessagesConsumed, 1)

		msg := &Message{
			Topic:     kafkaMsg.Topic,
			Key:       kafkaMsg.Key,
			Value:     kafkaMsg.Value,
			Partition: kafkaMsg.Partition,
			Offset:    kafkaMsg.Offset,
			Timestamp: kafkaMsg.Time,
			Headers:   make(map[string]string),
		}
		for _, h := range kafkaMsg.Headers {
			msg.Headers[h.Key] = string(h.Value)
		}

		// 处理消息。中间件链（重试、死信）耗尽后仍返回错误时不提交
		// offset，消息将被重新投递。
		if err := cg.handler(ctx, msg); err != nil {
			atomic.AddInt64(&cg.stats.MessagesFailed, 1)
			cg.client.logger.Error("failed to handle message",
				"group_id", cg.groupID,
				"topic", msg.Topic,
				"partition", msg.Partition,
				"offset", msg.Offset,
				"error", err,
			)
			continue
		}

		atomic.AddInt64(&cg.stats.MessagesSucceeded, 1)

		// 手动提交
		if !cg.autoCommit {
			if err := cg.reader.CommitMessages(ctx, kafkaMsg); err != nil {
				cg.client.logger.Error("failed to commit message",
					"group_id", cg.groupID,
					"topic", msg.Topic,
					"partition", msg.Partition,
					"offset", msg.Offset,
					"error", err,
				)
			}
		}
	}
}

// Stop 停止消费
func (cg *ConsumerGroup) Stop() error {
	if !cg.state.CompareAndSwap(int32(ConsumerStateRunning), int32(ConsumerStateStopping)) {
		state := ConsumerState(cg.state.Load())
		if state == ConsumerStateStopped || state == ConsumerStateStopping {
			return nil
		}
		return ErrConsumerNotRunning
	}

	cg.client.logger.Info("consumer group stopping", "group_id", cg.groupID)

	close(cg.stopCh)
	cg.wg.Wait()

	cg.state.Store(int32(ConsumerStateStopped))

	cg.client.logger.Info("consumer group stopped", "group_id", cg.groupID)

	return nil
}

// Close 关闭消费者
func (cg *ConsumerGroup) Close() error {
	_ = cg.Stop()

	if err := cg.reader.Close(); err != nil {
		return err
	}

	cg.client.logger.Debug("consumer group closed", "group_id", cg.groupID)

	return nil
}

// State 返回消费者状态
func (cg *ConsumerGroup) State() ConsumerState {
	return ConsumerState(cg.state.Load())
}

// IsRunning 是否正在运行
func (cg *ConsumerGroup) IsRunning() bool {
	return cg.State() == ConsumerStateRunning
}

// Stats 返回统计信息
func (cg *ConsumerGroup) Stats() ConsumerStats {
	return ConsumerStats{
		MessagesConsumed:     atomic.LoadInt64(&cg.stats.MessagesConsumed),
		MessagesSucceeded:    atomic.LoadInt64(&cg.stats.MessagesSucceeded),
		MessagesFailed:       atomic.LoadInt64(&cg.stats.MessagesFailed),
		MessagesDeadLettered: atomic.LoadInt64(&cg.stats.MessagesDeadLettered),
	}
}
