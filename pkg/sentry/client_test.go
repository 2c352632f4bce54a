package sentry

import (
	"context"
	"sync"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/getsentry/sentry-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testDSN = "https://public@example.invalid/1"

// newCapturingClient 所有事件在发送前被拦截，不产生网络请求
func newCapturingClient(t *testing.T) (*Client, func() []*sentry.Event) {
	t.Helper()
	var (
		mu     sync.Mutex
		events []*sentry.Event
	)
	c, err := New(&Config{DSN: testDSN, Tags: map[string]string{"service": "robot"}},
		WithBeforeSend(func(e *sentry.Event, _ *sentry.EventHint) *sentry.Event {
			mu.Lock()
			events = append(events, e)
			mu.Unlock()
			return nil
		}))
	require.NoError(t, err)
	return c, func() []*sentry.Event {
		mu.Lock()
		defer mu.Unlock()
		return append([]*sentry.Event(nil), events...)
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     *Config
		wantErr error
	}{
		{name: "missing dsn", cfg: &Config{}, wantErr: ErrInvalidDSN},
		{name: "bad sample rate", cfg: &Config{DSN: testDSN, SampleRate: 3}, wantErr: ErrInvalidConfig},
		{name: "ok", cfg: &Config{DSN: testDSN}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.cfg)
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.True(t, errors.Is(err, tt.wantErr))
		})
	}
}

func TestClient_ReportFault(t *testing.T) {
	c, events := newCapturingClient(t)

	c.ReportFault(context.Background(), errors.New("action exploded"), map[string]string{
		"agent":     "scout-1",
		"component": "behavior_tree",
	})
	c.ReportFault(context.Background(), nil, nil)

	got := events()
	require.Len(t, got, 1)
	assert.Equal(t, "scout-1", got[0].Tags["agent"])
	assert.Equal(t, "behavior_tree", got[0].Tags["component"])
	assert.Equal(t, "robot", got[0].Tags["service"])
	require.NotEmpty(t, got[0].Exception)
	assert.Equal(t, "action exploded", got[0].Exception[len(got[0].Exception)-1].Value)

	stats := c.Stats()
	assert.EqualValues(t, 1, stats.EventsTotal)
	assert.EqualValues(t, 1, stats.EventsDropped)
}

func TestClient_RecoverWithContext(t *testing.T) {
	c, events := newCapturingClient(t)

	func() {
		defer func() {
			if r := recover(); r != nil {
				c.RecoverWithContext(context.Background(), r)
			}
		}()
		panic("respawn job blew up")
	}()

	got := events()
	require.Len(t, got, 1)
	assert.Equal(t, "robot", got[0].Tags["service"])
	assert.EqualValues(t, 1, c.Stats().EventsTotal)
}

func TestClient_Closed(t *testing.T) {
	c, events := newCapturingClient(t)
	require.NoError(t, c.Close())
	assert.True(t, errors.Is(c.Close(), ErrClientClosed))

	assert.Nil(t, c.RecoverWithContext(context.Background(), "late"))
	c.ReportFault(context.Background(), errors.New("late"), nil)
	assert.Empty(t, events())
}
