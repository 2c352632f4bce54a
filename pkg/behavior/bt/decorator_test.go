package bt

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInverter(t *testing.T) {
	tests := []struct {
		in, want Status
	}{
		{StatusSuccess, StatusFailure},
		{StatusFailure, StatusSuccess},
		{StatusRunning, StatusRunning},
	}
	for _, tt := range tests {
		t.Run(tt.in.String(), func(t *testing.T) {
			n := NewInverter("inv", newScripted("c", tt.in))
			status, err := n.Execute(testCtx(0))
			require.NoError(t, err)
			assert.Equal(t, tt.want, status)
		})
	}
}

func TestRetry_ExhaustsAttempts(t *testing.T) {
	child := newScripted("flaky", StatusFailure)
	r := NewRetry("retry", 3, child)

	var seen []Status
	for i := 0; i < 3; i++ {
		status, err := r.Execute(testCtx(0))
		require.NoError(t, err)
		seen = append(seen, status)
	}

	assert.Equal(t, []Status{StatusRunning, StatusRunning, StatusFailure}, seen)
	assert.Equal(t, 3, child.calls)
}

func TestRetry_SuccessShortCircuits(t *testing.T) {
	child := newScripted("flaky", StatusFailure, StatusSuccess)
	r := NewRetry("retry", 5, child)

	status, _ := r.Execute(testCtx(0))
	assert.Equal(t, StatusRunning, status)
	status, _ = r.Execute(testCtx(0))
	assert.Equal(t, StatusSuccess, status)
	assert.Equal(t, 2, child.calls)
}

func TestCooldown_BlocksWithinInterval(t *testing.T) {
	child := newScripted("attack", StatusSuccess)
	cd := NewCooldown("cd", time.Second, child)

	status, _ := cd.Execute(testCtx(0))
	assert.Equal(t, StatusSuccess, status)
	assert.Equal(t, 1, child.calls)

	status, _ = cd.Execute(testCtx(500 * time.Millisecond))
	assert.Equal(t, StatusFailure, status)
	assert.Equal(t, 1, child.calls, "child not invoked during cooldown")

	status, _ = cd.Execute(testCtx(1500 * time.Millisecond))
	assert.Equal(t, StatusSuccess, status)
	assert.Equal(t, 2, child.calls)

	cd.Reset()
	_, ok := cd.LastSuccess()
	assert.False(t, ok)
	status, _ = cd.Execute(testCtx(1600 * time.Millisecond))
	assert.Equal(t, StatusSuccess, status, "reset clears cooldown")
}

func TestRepeater(t *testing.T) {
	t.Run("budget", func(t *testing.T) {
		child := newScripted("step", StatusSuccess, StatusSuccess, StatusFailure)
		r := NewRepeater("rep", 3, child)

		var seen []Status
		for i := 0; i < 3; i++ {
			status, err := r.Execute(testCtx(0))
			require.NoError(t, err)
			seen = append(seen, status)
		}
		assert.Equal(t, []Status{StatusRunning, StatusRunning, StatusFailure}, seen)
		assert.Equal(t, 3, child.calls)
	})

	t.Run("zero", func(t *testing.T) {
		child := newScripted("step", StatusSuccess)
		status, _ := NewRepeater("rep", 0, child).Execute(testCtx(0))
		assert.Equal(t, StatusSuccess, status)
		assert.Zero(t, child.calls)
	})

	t.Run("forever", func(t *testing.T) {
		child := newScripted("step", StatusSuccess)
		r := NewRepeater("rep", -1, child)
		for i := 0; i < 10; i++ {
			status, _ := r.Execute(testCtx(0))
			assert.Equal(t, StatusRunning, status)
		}
		assert.Equal(t, 10, r.Count())
	})

	t.Run("running child keeps count", func(t *testing.T) {
		child := newScripted("step", StatusRunning, StatusSuccess)
		r := NewRepeater("rep", 1, child)
		status, _ := r.Execute(testCtx(0))
		assert.Equal(t, StatusRunning, status)
		assert.Zero(t, r.Count())
		status, _ = r.Execute(testCtx(0))
		assert.Equal(t, StatusSuccess, status)
	})
}

func TestTimeout_FailsAfterLimit(t *testing.T) {
	child := newScripted("walk", StatusRunning)
	to := NewTimeout("to", time.Second, child)

	status, _ := to.Execute(testCtx(0))
	assert.Equal(t, StatusRunning, status)
	status, _ = to.Execute(testCtx(time.Second))
	assert.Equal(t, StatusRunning, status, "exactly at limit still runs")

	status, _ = to.Execute(testCtx(1500 * time.Millisecond))
	assert.Equal(t, StatusFailure, status)
	assert.Equal(t, StatusInvalid, child.Status(), "child reset on timeout")
	assert.Equal(t, 2, child.calls)
}

func TestUntilSuccessAndFailure(t *testing.T) {
	us := NewUntilSuccess("us", newScripted("c", StatusFailure, StatusRunning, StatusSuccess))
	var seen []Status
	for i := 0; i < 3; i++ {
		status, _ := us.Execute(testCtx(0))
		seen = append(seen, status)
	}
	assert.Equal(t, []Status{StatusRunning, StatusRunning, StatusSuccess}, seen)

	uf := NewUntilFailure("uf", newScripted("c", StatusSuccess, StatusFailure))
	status, _ := uf.Execute(testCtx(0))
	assert.Equal(t, StatusRunning, status)
	status, _ = uf.Execute(testCtx(0))
	assert.Equal(t, StatusSuccess, status)
}

func TestDelay_WaitsBeforeChild(t *testing.T) {
	child := newScripted("c", StatusSuccess)
	d := NewDelay("delay", time.Second, child)

	status, _ := d.Execute(testCtx(0))
	assert.Equal(t, StatusRunning, status)
	assert.Zero(t, child.calls)

	status, _ = d.Execute(testCtx(time.Second))
	assert.Equal(t, StatusSuccess, status)
	assert.Equal(t, 1, child.calls)
}

func TestHooks_StartAndEnd(t *testing.T) {
	child := newScripted("c", StatusRunning, StatusSuccess)
	var events []string
	child.OnStart(func(*Context) { events = append(events, "start") })
	child.OnEnd(func(_ *Context, s Status) { events = append(events, "end:"+s.String()) })

	_, _ = child.Execute(testCtx(0))
	_, _ = child.Execute(testCtx(time.Second))
	_, _ = child.Execute(testCtx(2 * time.Second))

	assert.Equal(t, []string{"start", "end:SUCCESS", "start", "end:SUCCESS"}, events)
	assert.Equal(t, epoch.Add(2*time.Second), child.StartedAt())
}
