package logger

// 确保 NoopLogger 实现了 Logger 接口
var _ Logger = (*NoopLogger)(nil)

// NoopLogger 空日志记录器，不做任何操作
// 用于不需要日志输出的场景，或作为其他模块的默认 Logger
type NoopLogger struct{}

// Noop 返回空日志记录器
func Noop() *NoopLogger {
	return &NoopLogger{}
}

// Default 返回仅输出到控制台的基础日志记录器
// 配置加载失败或尚未加载时作为兜底
func Default() Logger {
	cfg := DefaultConfig()
	cfg.EnableFile = false
	cfg.EnableConsole = true

	l, err := New(cfg)
	if err != nil {
		return Noop()
	}
	return l
}

// Debug 空实现
func (l *NoopLogger) Debug(msg string, keysAndValues ...interface{}) {}

// Info 空实现
func (l *NoopLogger) Info(msg string, keysAndValues ...interface{}) {}

// Warn 空实现
func (l *NoopLogger) Warn(msg string, keysAndValues ...interface{}) {}

// Error 空实现
func (l *NoopLogger) Error(msg string, keysAndValues ...interface{}) {}

// Named 空实现
func (l *NoopLogger) Named(name string) Logger { return l }

// WithFields 空实现
func (l *NoopLogger) WithFields(keysAndValues ...interface{}) Logger { return l }

// Sync 空实现
func (l *NoopLogger) Sync() error { return nil }
