package kafka

import (
	"context"
	"sync/atomic"

	kafkago "github.com/segmentio/kafka-go"
)

// Producer Kafka 生产者
type Producer struct {
	client *Client
	topic  string
	writer *kafkago.Writer

	// 统计
	stats ProducerStats

	closed atomic.Bool
}

// newProducer 创建生产者
func newProducer(c *Client, topic string) *Producer {
	cfg := c.config.Producer

	writer := &kafkago.Writer{
		Addr:                   kafkago.TCP(c.config.Brokers...),
		Topic:                  topic,
		Balancer:               &kafkago.Hash{},
		BatchSize:              cfg.BatchSize,
		BatchTimeout:           cfg.BatchTimeout,
		MaxAttempts:            cfg.MaxRetries + 1,
		WriteTimeout:           cfg.WriteTimeout,
		ReadTimeout:            cfg.ReadTimeout,
		RequiredAcks:           kafkago.RequiredAcks(cfg.RequiredAcks),
		Compression:            parseCompression(cfg.Compression),
		AllowAutoTopicCreation: true,
	}

	return &Producer{
		client: c,
		topic:  topic,
		writer: writer,
	}
}

// Publish 发布单条消息
func (p *Producer) Publish(ctx context.Context, msg *Message) error {
	if p.closed.Load() {
		return ErrProducerClosed
	}

	atomic.AddInt64(&p.stats.MessagesProduced, 1)

	// 构建中间件链
	publish := func(ctx context.Context, msg *Message) error {
		return p.doPublish(ctx, msg)
	}

	for i := len(p.client.producerMiddlewares) - 1; i >= 0; i-- {
		mw := p.client.producerMiddlewares[i]
		next := publish
		publish = func(ctx context.Context, msg *Message) error {
			return mw(ctx, msg, next)
		}
	}

	err := publish(ctx, msg)
	if err != nil {
		atomic.AddInt64(&p.stats.MessagesFailed, 1)
	} else {
		atomic.AddInt64(&p.stats.MessagesSucceeded, 1)
	}

	return err
}

// doPublish 实际发布
func (p *Producer) doPublish(ctx context.Context, msg *Message) error {
	kafkaMsg := kafkago.Message{
		Key:   msg.Key,
		Value: msg.Value,
	}

	if len(msg.Headers) > 0 {
		headers := make([]kafkago.Header, 0, len(msg.Headers))
		for k, v := range msg.Headers {
			headers = append(headers, kafkago.Header{Key: k, Value: []byte(v)})
		}
		kafkaMsg.Headers = headers
	}

	return p.writer.WriteMessages(ctx, kafkaMsg)
}

// PublishWithKey 发布带 Key 的消息
func (p *Producer) PublishWithKey(ctx context.Context, key string, value []byte) error {
	return p.Publish(ctx, &Message{
		Topic: p.topic,
		Key:   []byte(key),
		Value: value,
	})
}

// Topic 返回 topic 名称
func (p *Producer) Topic() string {
	return p.topic
}

// Stats 返回统计信息
func (p *Producer) Stats() ProducerStats {
	return ProducerStats{
		MessagesProduced:  atomic.LoadInt64(&p.stats.MessagesProduced),
		MessagesSucceeded: atomic.LoadInt64(&p.stats.MessagesSucceeded),
		MessagesFailed:    atomic.LoadInt64(&p.stats.MessagesFailed),
	}
}

// Close 关闭生产者
func (p *Producer) Close() error {
	if p.closed.Swap(true) {
		return nil
	}

	p.client.logger.Debug("producer closing", "topic", p.topic)

	return p.writer.Close()
}

// parseCompression 解析压缩算法
func parseCompression(s string) kafkago.Compression {
	switch s {
	case "gzip":
		return kafkago.Gzip
	case "snappy":
		return kafkago.Snappy
	case "lz4":
		return kafkago.Lz4
	case "zstd":
		return kafkago.Zstd
	default:
		return 0 // none
	}
}
