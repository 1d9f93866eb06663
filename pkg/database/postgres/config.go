package postgres

import "time"

// Config PostgreSQL 配置
type Config struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"db_name"`
	SSLMode  string `mapstructure:"ssl_mode"`

	// 连接池配置
	Pool PoolConfig `mapstructure:"pool"`

	// ConnectTimeout 建立连接超时
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`

	// QueryTimeout 单次查询超时（0 表示不限制）
	QueryTimeout time.Duration `mapstructure:"query_timeout"`
}

// PoolConfig 连接池配置
type PoolConfig struct {
	MaxConns          int32         `mapstructure:"max_conns"`
	MinConns          int32         `mapstructure:"min_conns"`
	MaxConnLifetime   time.Duration `mapstructure:"max_conn_lifetime"`
	MaxConnIdleTime   time.Duration `mapstructure:"max_conn_idle_time"`
	HealthCheckPeriod time.Duration `mapstructure:"health_check_period"`
}

// DefaultConfig 默认配置
func DefaultConfig() *Config {
	return &Config{
		Host:    "localhost",
		Port:    5432,
		SSLMode: "disable",
		Pool: PoolConfig{
			MaxConns:          10,
			MinConns:          2,
			MaxConnLifetime:   time.Hour,
			MaxConnIdleTime:   30 * time.Minute,
			HealthCheckPeriod: time.Minute,
		},
		ConnectTimeout: 10 * time.Second,
		QueryTimeout:   5 * time.Second,
	}
}

// Validate 验证配置
func (c *Config) Validate() error {
	if c.Host == "" {
		return ErrInvalidConfig
	}
	if c.Port <= 0 || c.Port > 65535 {
		return ErrInvalidConfig
	}
	if c.User == "" {
		return ErrInvalidConfig
	}
	if c.DBName == "" {
		return ErrInvalidConfig
	}
	if c.Pool.MaxConns <= 0 {
		return ErrInvalidConfig
	}
	if c.Pool.MinConns < 0 || c.Pool.MinConns > c.Pool.MaxConns {
		return ErrInvalidConfig
	}
	return nil
}
