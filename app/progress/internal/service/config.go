package service

import "time"

// Config 镜像服务配置
type Config struct {
	// TombstoneTTLMinutes 墓碑保留时长（分钟）
	// 需要覆盖事件总线的最大重试投递窗口
	TombstoneTTLMinutes int `mapstructure:"tombstone_ttl_minutes" json:"tombstone_ttl_minutes" yaml:"tombstone_ttl_minutes"`

	// AutoPurgeStale 是否自动清理陈旧镜像记录
	// 默认关闭：孤儿记录由对账流程报告，人工确认后再处理
	AutoPurgeStale bool `mapstructure:"auto_purge_stale" json:"auto_purge_stale" yaml:"auto_purge_stale"`

	// StaleThresholdMinutes 镜像记录视为陈旧的不活跃时长（分钟）
	StaleThresholdMinutes int `mapstructure:"stale_threshold_minutes" json:"stale_threshold_minutes" yaml:"stale_threshold_minutes"`

	// CleanupIntervalMinutes 清理扫描周期（分钟），0 表示禁用
	CleanupIntervalMinutes int `mapstructure:"cleanup_interval_minutes" json:"cleanup_interval_minutes" yaml:"cleanup_interval_minutes"`
}

// DefaultConfig 默认配置
func DefaultConfig() *Config {
	return &Config{
		TombstoneTTLMinutes:    60,
		AutoPurgeStale:         false,
		StaleThresholdMinutes:  24 * 60,
		CleanupIntervalMinutes: 60,
	}
}

// TombstoneTTL 墓碑保留时长
func (c *Config) TombstoneTTL() time.Duration {
	return time.Duration(c.TombstoneTTLMinutes) * time.Minute
}

// StaleThreshold 陈旧判定时长
func (c *Config) StaleThreshold() time.Duration {
	return time.Duration(c.StaleThresholdMinutes) * time.Minute
}
