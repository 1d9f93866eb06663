package kafka

import "errors"

var (
	// ErrInvalidConfig 配置无效
	ErrInvalidConfig = errors.New("kafka: invalid config")

	// ErrNoBrokers 无 broker 地址
	ErrNoBrokers = errors.New("kafka: no brokers configured")

	// ErrEmptyGroupID 空消费者组 ID
	ErrEmptyGroupID = errors.New("kafka: empty group id")

	// ErrClientClosed 客户端已关闭
	ErrClientClosed = errors.New("kafka: client is closed")

	// ErrProducerClosed 生产者已关闭
	ErrProducerClosed = errors.New("kafka: producer is closed")

	// ErrConsumerAlreadyRunning 消费者已在运行
	ErrConsumerAlreadyRunning = errors.New("kafka: consumer is already running")

	// ErrConsumerNotRunning 消费者未运行
	ErrConsumerNotRunning = errors.New("kafka: consumer is not running")

	// ErrNoHandler 无消息处理器
	ErrNoHandler = errors.New("kafka: no handler provided")

	// ErrNoTopics 无订阅主题
	ErrNoTopics = errors.New("kafka: no topics provided")

	// ErrConsumerPanic 消费者 panic
	ErrConsumerPanic = errors.New("kafka: consumer panic")

	// ErrNonRetryable 不可重试的处理失败（如非法消息体）
	// 重试中间件遇到该错误立即放弃，死信中间件直接路由到死信主题。
	ErrNonRetryable = errors.New("kafka: non-retryable handler failure")
)
