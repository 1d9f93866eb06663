package service

import "time"

// Config 会话生命周期配置
type Config struct {
	// AllowMultipleActiveSessions 是否允许单用户多个活跃会话
	AllowMultipleActiveSessions bool `mapstructure:"allow_multiple_active_sessions"`

	// MaxInactivityMinutes 不活跃超时（分钟）
	MaxInactivityMinutes int `mapstructure:"max_inactivity_minutes"`

	// MaxSessionDurationMinutes 会话最大时长上限（分钟）
	MaxSessionDurationMinutes int `mapstructure:"max_session_duration_minutes"`

	// HeartbeatCheckIntervalSeconds 超时扫描间隔（秒）
	HeartbeatCheckIntervalSeconds int `mapstructure:"heartbeat_check_interval_seconds"`
}

// DefaultConfig 默认配置
func DefaultConfig() *Config {
	return &Config{
		AllowMultipleActiveSessions:   false,
		MaxInactivityMinutes:          15,
		MaxSessionDurationMinutes:     240,
		HeartbeatCheckIntervalSeconds: 60,
	}
}

// MaxInactivity 不活跃超时
func (c *Config) MaxInactivity() time.Duration {
	return time.Duration(c.MaxInactivityMinutes) * time.Minute
}

// MaxDuration 最大会话时长
func (c *Config) MaxDuration() time.Duration {
	return time.Duration(c.MaxSessionDurationMinutes) * time.Minute
}

// CheckInterval 超时扫描间隔
func (c *Config) CheckInterval() time.Duration {
	return time.Duration(c.HeartbeatCheckIntervalSeconds) * time.Second
}
