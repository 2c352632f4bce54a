package sliding

import (
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/lk2023060901/xdooria-ai/pkg/config"
)

// WindowConfig 滑动窗口配置
type WindowConfig struct {
	Enabled     bool          `mapstructure:"enabled" json:"enabled" yaml:"enabled"`
	WindowSize  time.Duration `mapstructure:"window_size" json:"window_size" yaml:"window_size"`
	BucketCount int           `mapstructure:"bucket_count" json:"bucket_count" yaml:"bucket_count" validate:"omitempty,min=1"`
}

// DefaultWindowConfig 默认配置
func DefaultWindowConfig() *WindowConfig {
	return &WindowConfig{
		Enabled:     true,
		WindowSize:  60 * time.Second,
		BucketCount: 60,
	}
}

// bucket 时间桶，slot 为桶覆盖的时间片编号
type bucket struct {
	slot       int64
	count      int64
	totalTime  float64
	minLatency float64
	maxLatency float64
	successCnt int64
	failureCnt int64
}

// Window 滑动窗口统计器
// 桶按时钟懒轮转：写入或读取时根据当前时间片定位桶，过期桶在复用时清空，不需要后台 goroutine。
type Window struct {
	config *WindowConfig
	width  time.Duration
	now    func() time.Time

	mu      sync.Mutex
	buckets []bucket
}

// Option 窗口选项
type Option func(*Window)

// WithClock 注入时钟，测试用
func WithClock(now func() time.Time) Option {
	return func(w *Window) { w.now = now }
}

// NewWindow 创建滑动窗口统计器
func NewWindow(cfg *WindowConfig, opts ...Option) (*Window, error) {
	merged, err := config.MergeConfig(DefaultWindowConfig(), cfg)
	if err != nil {
		return nil, errors.Wrap(err, "merge window config")
	}
	if merged.BucketCount <= 0 || merged.WindowSize < time.Duration(merged.BucketCount) {
		return nil, errors.Newf("invalid window: size=%s buckets=%d", merged.WindowSize, merged.BucketCount)
	}

	w := &Window{
		config:  merged,
		width:   merged.WindowSize / time.Duration(merged.BucketCount),
		now:     time.Now,
		buckets: make([]bucket, merged.BucketCount),
	}
	for _, opt := range opts {
		opt(w)
	}
	for i := range w.buckets {
		w.buckets[i].slot = -1
	}
	return w, nil
}

func (w *Window) currentSlot() int64 {
	return w.now().UnixNano() / int64(w.width)
}

// Record 记录一次采样，latency 单位为秒
func (w *Window) Record(latency float64, success bool) {
	if !w.config.Enabled {
		return
	}

	slot := w.currentSlot()

	w.mu.Lock()
	defer w.mu.Unlock()

	b := &w.buckets[slot%int64(len(w.buckets))]
	if b.slot != slot {
		*b = bucket{slot: slot, minLatency: -1}
	}

	b.count++
	b.totalTime += latency
	if success {
		b.successCnt++
	} else {
		b.failureCnt++
	}
	if b.minLatency < 0 || latency < b.minLatency {
		b.minLatency = latency
	}
	if latency > b.maxLatency {
		b.maxLatency = latency
	}
}

// Stats 统计结果
type Stats struct {
	// 每秒采样数
	Rate float64 `json:"rate"`
	// 平均延迟（秒）
	AvgLatency float64 `json:"avg_latency"`
	MinLatency float64 `json:"min_latency"`
	MaxLatency float64 `json:"max_latency"`
	// 成功率 (0-100)
	SuccessRate  float64 `json:"success_rate"`
	TotalCount   int64   `json:"total_count"`
	SuccessCount int64   `json:"success_count"`
	FailureCount int64   `json:"failure_count"`
}

// GetStats 汇总窗口内的桶
func (w *Window) GetStats() Stats {
	slot := w.currentSlot()
	oldest := slot - int64(len(w.buckets)) + 1

	w.mu.Lock()
	defer w.mu.Unlock()

	var stats Stats
	var totalTime float64
	minLatency := float64(-1)

	for _, b := range w.buckets {
		if b.slot < oldest || b.slot > slot || b.count == 0 {
			continue
		}
		stats.TotalCount += b.count
		stats.SuccessCount += b.successCnt
		stats.FailureCount += b.failureCnt
		totalTime += b.totalTime

		if minLatency < 0 || b.minLatency < minLatency {
			minLatency = b.minLatency
		}
		if b.maxLatency > stats.MaxLatency {
			stats.MaxLatency = b.maxLatency
		}
	}

	stats.Rate = float64(stats.TotalCount) / w.config.WindowSize.Seconds()
	if stats.TotalCount > 0 {
		stats.AvgLatency = totalTime / float64(stats.TotalCount)
		stats.SuccessRate = float64(stats.SuccessCount) / float64(stats.TotalCount) * 100
	}
	if minLatency > 0 {
		stats.MinLatency = minLatency
	}
	return stats
}

// Reset 清空所有桶
func (w *Window) Reset() {
	w.mu.Lock()
	defer w.mu.Unlock()
	for i := range w.buckets {
		w.buckets[i] = bucket{slot: -1}
	}
}
