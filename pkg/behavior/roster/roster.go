package roster

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/panjf2000/ants/v2"
	"go.uber.org/atomic"
	"golang.org/x/sync/errgroup"

	"github.com/lk2023060901/xdooria-ai/pkg/behavior/composite"
	"github.com/lk2023060901/xdooria-ai/pkg/logger"
)

// releaseTimeout 等待 worker 退出的上限
const releaseTimeout = 3 * time.Second

// Roster 按智能体 id 管理控制器，在 goroutine 池上驱动整个回合
// 控制器由外部激活（composite.Controller.Activate），不运行自己的循环。
type Roster struct {
	config *Config
	logger logger.Logger
	pool   *ants.Pool

	mu     sync.RWMutex
	agents map[string]*composite.Controller

	beforeTurn func(ctx context.Context, agents []string)

	turns    atomic.Uint64
	released atomic.Bool
}

// Option 花名册选项
type Option func(*Roster)

// WithLogger 设置 logger
func WithLogger(l logger.Logger) Option {
	return func(r *Roster) {
		if l != nil {
			r.logger = l.Named("roster")
		}
	}
}

// WithBeforeTurn 每回合开始前在调用方 goroutine 内执行，例如把感知写入共享数据
func WithBeforeTurn(fn func(ctx context.Context, agents []string)) Option {
	return func(r *Roster) { r.beforeTurn = fn }
}

// New 创建花名册和 goroutine 池
func New(cfg *Config, opts ...Option) (*Roster, error) {
	merged, err := mergeConfig(cfg)
	if err != nil {
		return nil, err
	}

	r := &Roster{
		config: merged,
		logger: logger.NewNoop(),
		agents: make(map[string]*composite.Controller),
	}
	for _, opt := range opts {
		opt(r)
	}

	pool, err := ants.NewPool(merged.PoolSize,
		ants.WithExpiryDuration(merged.ExpiryDuration),
		ants.WithPanicHandler(func(p interface{}) {
			r.logger.Error("roster worker panic", "panic", p)
		}),
	)
	if err != nil {
		return nil, errors.Wrap(err, "create roster pool")
	}
	r.pool = pool
	return r, nil
}

// Add 注册智能体
func (r *Roster) Add(agentID string, c *composite.Controller) error {
	if c == nil {
		return ErrNilController
	}
	if r.released.Load() {
		return ErrReleased
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.agents[agentID]; ok {
		return errors.Wrapf(ErrAgentExists, "agent %s", agentID)
	}
	r.agents[agentID] = c
	r.logger.Debug("agent added", "agent_id", agentID, "controller_id", c.ID())
	return nil
}

// Remove 停止并移除智能体
func (r *Roster) Remove(ctx context.Context, agentID string) error {
	r.mu.Lock()
	c, ok := r.agents[agentID]
	delete(r.agents, agentID)
	r.mu.Unlock()

	if !ok {
		return errors.Wrapf(ErrAgentNotFound, "agent %s", agentID)
	}
	if err := c.Stop(ctx); err != nil {
		return errors.Wrapf(err, "stop agent %s", agentID)
	}
	r.logger.Debug("agent removed", "agent_id", agentID)
	return nil
}

// Get 查找控制器
func (r *Roster) Get(agentID string) (*composite.Controller, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.agents[agentID]
	return c, ok
}

// Len 已注册的智能体数量
func (r *Roster) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.agents)
}

// IDs 按字典序返回所有智能体 id
func (r *Roster) IDs() []string {
	r.mu.RLock()
	ids := make([]string, 0, len(r.agents))
	for id := range r.agents {
		ids = append(ids, id)
	}
	r.mu.RUnlock()
	slices.Sort(ids)
	return ids
}

// Turns 已完成的回合数
func (r *Roster) Turns() uint64 { return r.turns.Load() }

// TickAll 在池上并发 tick 所有智能体并等待全部完成
// 每个智能体都会得到结果；提交失败时结果的 Err 为提交错误。
func (r *Roster) TickAll(ctx context.Context, delta time.Duration) map[string]*composite.Result {
	ids := r.IDs()
	if r.beforeTurn != nil {
		r.beforeTurn(ctx, ids)
	}
	results := make([]*composite.Result, len(ids))

	var wg sync.WaitGroup
	for i, id := range ids {
		c, ok := r.Get(id)
		if !ok {
			continue
		}
		wg.Add(1)
		err := r.pool.Submit(func() {
			defer wg.Done()
			results[i] = c.Tick(ctx, delta)
		})
		if err != nil {
			wg.Done()
			results[i] = &composite.Result{
				AgentID:   id,
				Err:       errors.Wrap(err, "submit tick"),
				Timestamp: time.Now(),
			}
		}
	}
	wg.Wait()

	out := make(map[string]*composite.Result, len(ids))
	var failed int
	for i, id := range ids {
		if results[i] == nil {
			continue
		}
		out[id] = results[i]
		if !results[i].Success {
			failed++
		}
	}
	turn := r.turns.Inc()
	if failed > 0 {
		r.logger.Warn("turn completed with failures", "turn", turn, "agents", len(out), "failed", failed)
	} else {
		r.logger.Debug("turn completed", "turn", turn, "agents", len(out))
	}
	return out
}

// Run 按 TurnInterval 循环执行 TickAll 直到 ctx 取消，每回合结果交给 onTurn
func (r *Roster) Run(ctx context.Context, onTurn func(turn uint64, results map[string]*composite.Result)) {
	ticker := time.NewTicker(r.config.TurnInterval)
	defer ticker.Stop()

	last := time.Now()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			results := r.TickAll(ctx, now.Sub(last))
			last = now
			if onTurn != nil {
				onTurn(r.Turns(), results)
			}
		}
	}
}

// Shutdown 并发停止所有控制器，然后释放池
func (r *Roster) Shutdown(ctx context.Context) error {
	r.mu.Lock()
	agents := r.agents
	r.agents = make(map[string]*composite.Controller)
	r.mu.Unlock()

	var g errgroup.Group
	for id, c := range agents {
		g.Go(func() error {
			return errors.Wrapf(c.Stop(ctx), "stop agent %s", id)
		})
	}
	err := g.Wait()
	return errors.CombineErrors(err, r.Release())
}

// Release 释放池并等待 worker 退出，之后 TickAll 的提交都会失败
func (r *Roster) Release() error {
	if !r.released.CAS(false, true) {
		return nil
	}
	if err := r.pool.ReleaseTimeout(releaseTimeout); err != nil {
		return errors.Wrap(err, "release roster pool")
	}
	return nil
}
