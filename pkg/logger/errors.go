package logger

import "errors"

var (
	// ErrInvalidOutputPath 启用文件输出时必须指定路径
	ErrInvalidOutputPath = errors.New("logger: output path is required when file output is enabled")

	// ErrNoOutputEnabled 至少启用一种输出
	ErrNoOutputEnabled = errors.New("logger: at least one output must be enabled")

	// ErrInvalidLevel 无效的日志等级
	ErrInvalidLevel = errors.New("logger: invalid log level")
)
