package metrics

import (
	"github.com/cockroachdb/errors"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap/zapcore"

	"github.com/lk2023060901/xdooria-ai/pkg/logger"
)

// LogCounter 按等级统计写出的日志条数
// 注册之前累计的计数在注册后同样可见。
type LogCounter struct {
	entries *prometheus.CounterVec
}

// NewLogCounter 创建日志计数器
func NewLogCounter(namespace string) *LogCounter {
	return &LogCounter{
		entries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "log_entries_total",
			Help: "Log entries written, by level.",
		}, []string{"level"}),
	}
}

// Hook 返回给 logger.WithHooks 使用的写入钩子
func (c *LogCounter) Hook() logger.Hook {
	return logger.LevelCounterHook(func(level zapcore.Level) {
		c.entries.WithLabelValues(level.String()).Inc()
	})
}

// Register 注册到 reg
func (c *LogCounter) Register(reg prometheus.Registerer) error {
	if err := reg.Register(c.entries); err != nil {
		return errors.Wrap(err, "register log counter")
	}
	return nil
}
