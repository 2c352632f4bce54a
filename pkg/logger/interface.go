package logger

// Logger 引擎组件使用的日志接口
// 键值对形式的字段: logger.Info("tick completed", "status", status)
type Logger interface {
	Debug(msg string, keysAndValues ...interface{})
	Info(msg string, keysAndValues ...interface{})
	Warn(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})

	// Named 派生具名 logger，名称以 "." 连接
	Named(name string) Logger
	// WithFields 派生带固定字段的 logger
	WithFields(keysAndValues ...interface{}) Logger

	Sync() error
}
