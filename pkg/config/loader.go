package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// EnvPrefix 环境变量前缀
const EnvPrefix = "EDOORIA"

// Loader 配置加载器
type Loader struct {
	viper *viper.Viper
}

// NewLoader 创建配置加载器
func NewLoader() *Loader {
	v := viper.New()

	// 环境变量覆盖：EDOORIA_LOG_LEVEL -> log.level
	v.SetEnvPrefix(EnvPrefix)
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))

	return &Loader{viper: v}
}

// LoadFile 加载 YAML 配置文件
func (l *Loader) LoadFile(configPath string) error {
	l.viper.SetConfigFile(configPath)
	l.viper.SetConfigType("yaml")

	if err := l.viper.ReadInConfig(); err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	return nil
}

// Unmarshal 解析整个配置到结构体
func (l *Loader) Unmarshal(target interface{}) error {
	if target == nil {
		return ErrNilTarget
	}
	if err := l.viper.Unmarshal(target); err != nil {
		return fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return nil
}

// UnmarshalKey 解析配置中的某个 key 到结构体
func (l *Loader) UnmarshalKey(key string, target interface{}) error {
	if target == nil {
		return ErrNilTarget
	}
	if err := l.viper.UnmarshalKey(key, target); err != nil {
		return fmt.Errorf("failed to unmarshal key %s: %w", key, err)
	}
	return nil
}

// Set 设置配置项（优先级高于配置文件）
func (l *Loader) Set(key string, value interface{}) {
	l.viper.Set(key, value)
}

// SetDefault 设置默认值（优先级低于配置文件和环境变量）
func (l *Loader) SetDefault(key string, value interface{}) {
	l.viper.SetDefault(key, value)
}

// Viper 返回底层 viper 实例
func (l *Loader) Viper() *viper.Viper {
	return l.viper
}
