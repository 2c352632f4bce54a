package sentry

import (
	"context"
	"sync/atomic"

	"github.com/cockroachdb/errors"
	"github.com/getsentry/sentry-go"
	"github.com/lk2023060901/xdooria-ai/pkg/config"
)

// Client Sentry 客户端，持有独立的 Hub
type Client struct {
	hub    *sentry.Hub
	config *Config
	closed atomic.Bool

	stats struct {
		eventsTotal    atomic.Uint64
		eventsCaptured atomic.Uint64
		eventsDropped  atomic.Uint64
	}
}

// Option 客户端选项
type Option func(*sentry.ClientOptions)

// WithBeforeSend 设置上报前回调，返回 nil 丢弃事件
func WithBeforeSend(fn func(event *sentry.Event, hint *sentry.EventHint) *sentry.Event) Option {
	return func(o *sentry.ClientOptions) {
		o.BeforeSend = fn
	}
}

// New 创建 Sentry 客户端
func New(cfg *Config, opts ...Option) (*Client, error) {
	merged, err := config.MergeConfig(DefaultConfig(), cfg)
	if err != nil {
		return nil, err
	}
	if err := merged.Validate(); err != nil {
		return nil, err
	}

	clientOpts := merged.toClientOptions()
	for _, opt := range opts {
		opt(&clientOpts)
	}

	client, err := sentry.NewClient(clientOpts)
	if err != nil {
		return nil, errors.Wrap(err, "create sentry client")
	}

	hub := sentry.NewHub(client, sentry.NewScope())
	hub.ConfigureScope(func(scope *sentry.Scope) {
		for key, value := range merged.Tags {
			scope.SetTag(key, value)
		}
	})

	return &Client{hub: hub, config: merged}, nil
}

func (c *Client) record(id *sentry.EventID) *sentry.EventID {
	c.stats.eventsTotal.Add(1)
	if id != nil && *id != "" {
		c.stats.eventsCaptured.Add(1)
	} else {
		c.stats.eventsDropped.Add(1)
	}
	return id
}

// RecoverWithContext 上报已恢复的 panic，不重新抛出
func (c *Client) RecoverWithContext(ctx context.Context, recovered interface{}) *sentry.EventID {
	if c.closed.Load() {
		return nil
	}
	return c.record(c.hub.RecoverWithContext(ctx, recovered))
}

// ReportFault 上报行为引擎的运行期故障，tags 写入事件标签（agent、component、mode 等）
func (c *Client) ReportFault(ctx context.Context, err error, tags map[string]string) {
	if c.closed.Load() || err == nil {
		return
	}

	var id *sentry.EventID
	c.hub.WithScope(func(scope *sentry.Scope) {
		scope.SetLevel(sentry.LevelError)
		for k, v := range tags {
			scope.SetTag(k, v)
		}
		if span := sentry.SpanFromContext(ctx); span != nil {
			scope.SetContext("trace", sentry.Context{"trace_id": span.TraceID.String()})
		}
		id = c.hub.CaptureException(err)
	})
	c.record(id)
}

// Close 刷新后关闭客户端
func (c *Client) Close() error {
	if c.closed.Swap(true) {
		return ErrClientClosed
	}
	c.hub.Flush(c.config.ShutdownTimeout)
	return nil
}

// Stats 上报统计
type Stats struct {
	EventsTotal    uint64
	EventsCaptured uint64
	EventsDropped  uint64
}

// Stats 获取统计信息
func (c *Client) Stats() Stats {
	return Stats{
		EventsTotal:    c.stats.eventsTotal.Load(),
		EventsCaptured: c.stats.eventsCaptured.Load(),
		EventsDropped:  c.stats.eventsDropped.Load(),
	}
}
