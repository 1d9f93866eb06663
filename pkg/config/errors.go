package config

import "errors"

var (
	// ErrNilTarget 解析目标不能为 nil
	ErrNilTarget = errors.New("config: unmarshal target is nil")

	// ErrConfigNotFound 配置文件不存在
	ErrConfigNotFound = errors.New("config: config file not found")
)
