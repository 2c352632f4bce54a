package sliding

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestWindow(t *testing.T) (*Window, *fakeClock) {
	t.Helper()
	clock := &fakeClock{t: time.Unix(1_700_000_000, 0)}
	w, err := NewWindow(&WindowConfig{WindowSize: 10 * time.Second, BucketCount: 10}, WithClock(clock.Now))
	require.NoError(t, err)
	return w, clock
}

func TestWindow_Aggregates(t *testing.T) {
	w, clock := newTestWindow(t)

	w.Record(0.010, true)
	w.Record(0.030, false)
	clock.Advance(2 * time.Second)
	w.Record(0.020, true)

	s := w.GetStats()
	assert.EqualValues(t, 3, s.TotalCount)
	assert.EqualValues(t, 2, s.SuccessCount)
	assert.EqualValues(t, 1, s.FailureCount)
	assert.InDelta(t, 0.020, s.AvgLatency, 1e-9)
	assert.InDelta(t, 0.010, s.MinLatency, 1e-9)
	assert.InDelta(t, 0.030, s.MaxLatency, 1e-9)
	assert.InDelta(t, 0.3, s.Rate, 1e-9)
	assert.InDelta(t, 66.666, s.SuccessRate, 0.01)
}

func TestWindow_ExpiresOldBuckets(t *testing.T) {
	w, clock := newTestWindow(t)

	w.Record(1, true)
	clock.Advance(5 * time.Second)
	w.Record(2, true)
	assert.EqualValues(t, 2, w.GetStats().TotalCount)

	clock.Advance(6 * time.Second)
	s := w.GetStats()
	assert.EqualValues(t, 1, s.TotalCount)
	assert.InDelta(t, 2.0, s.AvgLatency, 1e-9)

	// 复用同一个桶时旧数据被清空
	clock.Advance(4 * time.Second)
	w.Record(3, false)
	s = w.GetStats()
	assert.EqualValues(t, 1, s.TotalCount)
	assert.EqualValues(t, 1, s.FailureCount)
}

func TestWindow_ResetAndInvalidConfig(t *testing.T) {
	w, _ := newTestWindow(t)
	w.Record(1, true)
	w.Reset()
	assert.Zero(t, w.GetStats().TotalCount)

	_, err := NewWindow(&WindowConfig{WindowSize: time.Nanosecond, BucketCount: 10})
	assert.Error(t, err)
}
