package metrics

import (
	"github.com/cockroachdb/errors"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/lk2023060901/xdooria-ai/pkg/behavior/composite"
	"github.com/lk2023060901/xdooria-ai/pkg/metrics/sliding"
)

// Recorder 把控制器的 tick 结果写入 prometheus 和滑动窗口
// 实现 composite.Recorder，可被多个控制器并发调用。
type Recorder struct {
	ticks       *prometheus.CounterVec
	conflicts   *prometheus.CounterVec
	transitions *prometheus.CounterVec
	treeStatus  *prometheus.CounterVec
	latency     *prometheus.HistogramVec

	window *sliding.Window
}

var _ composite.Recorder = (*Recorder)(nil)

// NewRecorder 创建并注册 tick 指标
func NewRecorder(reg prometheus.Registerer, cfg *Config, opts ...sliding.Option) (*Recorder, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	window, err := sliding.NewWindow(&cfg.Window, opts...)
	if err != nil {
		return nil, err
	}

	ns := cfg.Namespace
	r := &Recorder{
		ticks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns, Name: "ticks_total",
			Help: "Controller ticks by mode and outcome.",
		}, []string{"mode", "result"}),
		conflicts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns, Name: "conflicts_resolved_total",
			Help: "Ticks that went through conflict resolution, by winning source.",
		}, []string{"mode", "source"}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns, Name: "state_entries_total",
			Help: "States entered by state machine transitions.",
		}, []string{"state"}),
		treeStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns, Name: "tree_status_total",
			Help: "Behavior tree root status per tick.",
		}, []string{"status"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: ns, Name: "tick_duration_seconds",
			Help:    "Controller tick latency.",
			Buckets: prometheus.ExponentialBuckets(0.00005, 4, 8),
		}, []string{"mode"}),
		window: window,
	}

	successRate := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: ns, Name: "window_success_ratio",
		Help: "Tick success ratio over the sliding window.",
	}, func() float64 {
		s := r.window.GetStats()
		if s.TotalCount == 0 {
			return 1
		}
		return s.SuccessRate / 100
	})
	tickRate := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: ns, Name: "window_ticks_per_second",
		Help: "Tick rate over the sliding window.",
	}, func() float64 { return r.window.GetStats().Rate })

	for _, c := range []prometheus.Collector{r.ticks, r.conflicts, r.transitions, r.treeStatus, r.latency, successRate, tickRate} {
		if err := reg.Register(c); err != nil {
			return nil, errors.Wrap(err, "register tick metrics")
		}
	}
	return r, nil
}

// ObserveTick 记录一次 tick
func (r *Recorder) ObserveTick(res *composite.Result) {
	mode := string(res.Mode)
	result := "success"
	if !res.Success {
		result = "failure"
	}
	r.ticks.WithLabelValues(mode, result).Inc()
	r.latency.WithLabelValues(mode).Observe(res.Duration.Seconds())
	r.window.Record(res.Duration.Seconds(), res.Success)

	if res.RanBehaviorTree {
		r.treeStatus.WithLabelValues(res.TreeStatus.String()).Inc()
	}
	for _, state := range res.Transitions {
		r.transitions.WithLabelValues(state).Inc()
	}
	if res.ConflictResolved {
		r.conflicts.WithLabelValues(mode, string(res.Factors.Decision.Source)).Inc()
	}
}

// Window 滑动窗口统计
func (r *Recorder) Window() sliding.Stats { return r.window.GetStats() }
