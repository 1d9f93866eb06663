package kafka

import "time"

// Config Kafka 配置
type Config struct {
	// Brokers Kafka broker 地址列表
	Brokers []string `mapstructure:"brokers"`

	// Producer 生产者配置
	Producer ProducerConfig `mapstructure:"producer"`

	// Consumer 消费者配置
	Consumer ConsumerConfig `mapstructure:"consumer"`
}

// ProducerConfig 生产者配置
type ProducerConfig struct {
	// BatchSize 批量大小
	BatchSize int `mapstructure:"batch_size"`

	// BatchTimeout 批量等待超时
	BatchTimeout time.Duration `mapstructure:"batch_timeout"`

	// MaxRetries 发送失败最大重试次数
	MaxRetries int `mapstructure:"max_retries"`

	// RequiredAcks 确认模式：0 不等待，1 Leader 确认，-1 所有副本确认
	RequiredAcks int `mapstructure:"required_acks"`

	// Compression 压缩算法: none, gzip, snappy, lz4, zstd
	Compression string `mapstructure:"compression"`

	// WriteTimeout 写超时
	WriteTimeout time.Duration `mapstructure:"write_timeout"`

	// ReadTimeout 读超时
	ReadTimeout time.Duration `mapstructure:"read_timeout"`
}

// ConsumerConfig 消费者配置
type ConsumerConfig struct {
	// GroupID 消费者组 ID
	GroupID string `mapstructure:"group_id"`

	// MinBytes 最小拉取字节数
	MinBytes int `mapstructure:"min_bytes"`

	// MaxBytes 最大拉取字节数
	MaxBytes int `mapstructure:"max_bytes"`

	// MaxWait 未达到 MinBytes 时的最长等待时间
	MaxWait time.Duration `mapstructure:"max_wait"`

	// CommitInterval 自动提交间隔（0 表示手动提交）
	CommitInterval time.Duration `mapstructure:"commit_interval"`

	// StartOffset 起始偏移量：-1 Latest，-2 Earliest
	StartOffset int64 `mapstructure:"start_offset"`

	// HeartbeatInterval 心跳间隔
	HeartbeatInterval time.Duration `mapstructure:"heartbeat_interval"`

	// SessionTimeout 会话超时
	SessionTimeout time.Duration `mapstructure:"session_timeout"`

	// RebalanceTimeout 重平衡超时
	RebalanceTimeout time.Duration `mapstructure:"rebalance_timeout"`

	// MaxRetries 消费失败最大重试次数（重试耗尽后路由到死信主题）
	MaxRetries int `mapstructure:"max_retries"`

	// RetryBackoff 首次重试间隔（之后按指数退避增长）
	RetryBackoff time.Duration `mapstructure:"retry_backoff"`

	// Concurrency 并发消费协程数
	Concurrency int `mapstructure:"concurrency"`
}

// DefaultConfig 默认配置
func DefaultConfig() *Config {
	return &Config{
		Brokers: []string{"localhost:9092"},
		Producer: ProducerConfig{
			BatchSize:    100,
			BatchTimeout: 1 * time.Second,
			MaxRetries:   3,
			RequiredAcks: -1,
			Compression:  "snappy",
			WriteTimeout: 10 * time.Second,
			ReadTimeout:  10 * time.Second,
		},
		Consumer: ConsumerConfig{
			GroupID:           "default-group",
			MinBytes:          10 * 1024,
			MaxBytes:          10 * 1024 * 1024,
			MaxWait:           500 * time.Millisecond,
			CommitInterval:    0,
			StartOffset:       -2,
			HeartbeatInterval: 3 * time.Second,
			SessionTimeout:    30 * time.Second,
			RebalanceTimeout:  60 * time.Second,
			MaxRetries:        3,
			RetryBackoff:      200 * time.Millisecond,
			Concurrency:       1,
		},
	}
}

// Validate 验证配置
func (c *Config) Validate() error {
	if len(c.Brokers) == 0 {
		return ErrNoBrokers
	}
	if c.Consumer.GroupID == "" {
		return ErrEmptyGroupID
	}
	if c.Consumer.Concurrency < 0 {
		return ErrInvalidConfig
	}
	if c.Consumer.MaxRetries < 0 {
		return ErrInvalidConfig
	}
	return nil
}
