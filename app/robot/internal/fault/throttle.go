package fault

import (
	"context"

	"go.uber.org/atomic"
	"golang.org/x/time/rate"

	"github.com/lk2023060901/xdooria-ai/pkg/behavior/composite"
	"github.com/lk2023060901/xdooria-ai/pkg/logger"
)

// Config 故障上报限流配置
type Config struct {
	// PerSecond 每秒允许上报的故障数
	PerSecond float64 `mapstructure:"per_second" json:"per_second" yaml:"per_second" validate:"gt=0"`
	// Burst 允许的突发数
	Burst int `mapstructure:"burst" json:"burst" yaml:"burst" validate:"gte=1"`
}

// DefaultConfig 默认配置
func DefaultConfig() *Config {
	return &Config{PerSecond: 5, Burst: 20}
}

// Throttled 对下游故障上报限流
// 同一个故障往往在每个 tick 重复出现，超出配额的上报被丢弃并计数。
type Throttled struct {
	next    composite.FaultReporter
	limiter *rate.Limiter
	logger  logger.Logger
	dropped atomic.Uint64
}

var _ composite.FaultReporter = (*Throttled)(nil)

// NewThrottled 包装下游上报器
func NewThrottled(next composite.FaultReporter, cfg *Config, l logger.Logger) *Throttled {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if l == nil {
		l = logger.NewNoop()
	}
	return &Throttled{
		next:    next,
		limiter: rate.NewLimiter(rate.Limit(cfg.PerSecond), cfg.Burst),
		logger:  l.Named("fault"),
	}
}

// ReportFault 配额内转发，超出时丢弃
func (t *Throttled) ReportFault(ctx context.Context, err error, tags map[string]string) {
	if !t.limiter.Allow() {
		if n := t.dropped.Inc(); n == 1 || n%100 == 0 {
			t.logger.Warn("fault reports throttled", "dropped", n)
		}
		return
	}
	t.next.ReportFault(ctx, err, tags)
}

// Dropped 被丢弃的上报数
func (t *Throttled) Dropped() uint64 { return t.dropped.Load() }
