package composite

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/lk2023060901/xdooria-ai/pkg/behavior/bt"
	"github.com/lk2023060901/xdooria-ai/pkg/behavior/event"
	"github.com/lk2023060901/xdooria-ai/pkg/behavior/hsm"
	"github.com/lk2023060901/xdooria-ai/pkg/logger"
	xotel "github.com/lk2023060901/xdooria-ai/pkg/otel"
)

// Controller 组合行为控制器
// 持有至多一棵行为树和一个状态机，按控制模式驱动两者并调和决策。
// 子系统不运行自己的循环，只在控制器的 Tick 中被同步驱动。
type Controller struct {
	id       string
	agentID  string
	logger   logger.Logger
	tracer   trace.Tracer
	recorder Recorder
	reporter FaultReporter
	resolver Resolver
	now      func() time.Time

	tree    *bt.Tree
	machine *hsm.Machine

	mu       sync.RWMutex
	cfg      *Config
	shared   map[string]interface{}
	agent    interface{}
	world    interface{}
	metrics  Metrics
	history  *history
	lastTick time.Time

	ticking atomic.Bool
	results event.Emitter[*Result]
	errs    event.Emitter[ErrorEvent]

	loopMu sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// Option 控制器选项
type Option func(*Controller)

// WithBehaviorTree 设置行为树
func WithBehaviorTree(t *bt.Tree) Option {
	return func(c *Controller) { c.tree = t }
}

// WithStateMachine 设置状态机
func WithStateMachine(m *hsm.Machine) Option {
	return func(c *Controller) { c.machine = m }
}

// WithResolver 安装自定义冲突解析器
func WithResolver(r Resolver) Option {
	return func(c *Controller) { c.resolver = r }
}

// WithLogger 设置 logger
func WithLogger(l logger.Logger) Option {
	return func(c *Controller) {
		if l != nil {
			c.logger = l.Named("composite")
		}
	}
}

// WithTracer 设置 tracer，默认使用全局 TracerProvider
func WithTracer(t trace.Tracer) Option {
	return func(c *Controller) {
		if t != nil {
			c.tracer = t
		}
	}
}

// WithRecorder 设置指标接收器
func WithRecorder(r Recorder) Option {
	return func(c *Controller) { c.recorder = r }
}

// WithFaultReporter 设置故障上报
func WithFaultReporter(r FaultReporter) Option {
	return func(c *Controller) { c.reporter = r }
}

// WithClock 设置时钟
func WithClock(now func() time.Time) Option {
	return func(c *Controller) {
		if now != nil {
			c.now = now
		}
	}
}

// WithAgentID 设置所属智能体 id，用于日志、span 和故障标签
func WithAgentID(id string) Option {
	return func(c *Controller) { c.agentID = id }
}

// New 创建控制器，cfg 与默认配置合并
// 配置中的模式与子系统是否匹配不在这里检查，需调用 ValidateConfiguration。
func New(cfg *Config, opts ...Option) (*Controller, error) {
	merged, err := mergeConfig(cfg)
	if err != nil {
		return nil, err
	}
	if err := merged.Validate(); err != nil {
		return nil, errors.Wrap(err, "validate controller config")
	}

	c := &Controller{
		id:      uuid.NewString(),
		logger:  logger.NewNoop(),
		tracer:  xotel.Tracer(xotel.TracerName),
		now:     time.Now,
		cfg:     merged,
		shared:  make(map[string]interface{}),
		history: newHistory(merged.HistorySize),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.agentID != "" {
		c.logger = c.logger.WithFields("agent_id", c.agentID)
	}
	return c, nil
}

func (c *Controller) ID() string { return c.id }

func (c *Controller) AgentID() string { return c.agentID }

func (c *Controller) BehaviorTree() *bt.Tree { return c.tree }

func (c *Controller) StateMachine() *hsm.Machine { return c.machine }

// Config 返回当前配置副本
func (c *Controller) Config() Config {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.cfg.clone()
}

// OnResult 订阅 tick 结果
func (c *Controller) OnResult(fn func(*Result)) func() { return c.results.Subscribe(fn) }

// OnError 订阅故障事件
func (c *Controller) OnError(fn func(ErrorEvent)) func() { return c.errs.Subscribe(fn) }

// SetSharedData 设置共享数据，同步写入行为树黑板和状态机上下文
func (c *Controller) SetSharedData(key string, value interface{}) {
	c.mu.Lock()
	c.shared[key] = value
	c.mu.Unlock()

	if c.tree != nil {
		c.tree.Blackboard().Set(key, value)
	}
	if c.machine != nil {
		c.machine.Context().Set(key, value)
	}
}

// GetSharedData 读取共享数据
func (c *Controller) GetSharedData(key string) (interface{}, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.shared[key]
	return v, ok
}

// DeleteSharedData 删除共享数据，同步从两个子系统删除
func (c *Controller) DeleteSharedData(key string) {
	c.mu.Lock()
	delete(c.shared, key)
	c.mu.Unlock()

	if c.tree != nil {
		c.tree.Blackboard().Delete(key)
	}
	if c.machine != nil {
		c.machine.Context().Delete(key)
	}
}

func (c *Controller) sharedSnapshot() map[string]interface{} {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[string]interface{}, len(c.shared))
	for k, v := range c.shared {
		out[k] = v
	}
	return out
}

func (c *Controller) syncShared() {
	for k, v := range c.sharedSnapshot() {
		if c.tree != nil {
			c.tree.Blackboard().Set(k, v)
		}
		if c.machine != nil {
			c.machine.Context().Set(k, v)
		}
	}
}

// ValidateConfiguration 检查配置以及模式所需的子系统，返回合并后的错误
func (c *Controller) ValidateConfiguration() error {
	cfg := c.Config()

	var err error
	if verr := validate.Validate(&cfg); verr != nil {
		err = errors.CombineErrors(err, verr)
	}
	if cfg.Mode.needsTree() && c.tree == nil {
		err = errors.CombineErrors(err, errors.Wrapf(ErrMissingBehaviorTree, "mode %s", cfg.Mode))
	}
	if cfg.Mode.needsMachine() && c.machine == nil {
		err = errors.CombineErrors(err, errors.Wrapf(ErrMissingStateMachine, "mode %s", cfg.Mode))
	}
	if w := cfg.weights(); w.BehaviorTree+w.StateMachine <= 0 {
		err = errors.CombineErrors(err, errors.Wrapf(ErrInvalidWeights, "behavior_tree=%g state_machine=%g", w.BehaviorTree, w.StateMachine))
	}
	return err
}

// ApplyConfig 热更新模式、策略、权重、间隔和历史容量
// 新配置与默认值合并后校验字段，失败时保持原配置。
// 与 New 相同，权重之和不为正只由 ValidateConfiguration 报告。
func (c *Controller) ApplyConfig(cfg *Config) error {
	merged, err := mergeConfig(cfg)
	if err != nil {
		return err
	}
	if err := merged.Validate(); err != nil {
		return errors.Wrap(err, "validate controller config")
	}

	c.mu.Lock()
	prev := c.cfg.Mode
	c.cfg = merged
	c.history.resize(merged.HistorySize)
	c.mu.Unlock()

	c.logger.Info("controller config applied",
		"mode", string(merged.Mode),
		"previous_mode", string(prev),
		"strategy", string(merged.ConflictResolution),
	)
	return nil
}

// Activate 同步共享数据并激活模式需要的状态机，不启动循环
// 由外部驱动 Tick 时（例如 roster）使用。
func (c *Controller) Activate(ctx context.Context, agent, world interface{}) error {
	c.mu.Lock()
	c.agent, c.world = agent, world
	mode := c.cfg.Mode
	c.mu.Unlock()

	c.syncShared()
	if mode.needsMachine() && c.machine != nil && len(c.machine.CurrentStates()) == 0 {
		if err := c.machine.Activate(ctx, agent, world, ""); err != nil {
			return errors.Wrap(err, "activate state machine")
		}
	}
	return nil
}

// Start 激活后在新 goroutine 中按 TickInterval 循环 Tick
func (c *Controller) Start(ctx context.Context, agent, world interface{}) error {
	c.loopMu.Lock()
	defer c.loopMu.Unlock()
	if c.cancel != nil {
		return ErrAlreadyRunning
	}
	if err := c.Activate(ctx, agent, world); err != nil {
		return err
	}

	loopCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	c.cancel, c.done = cancel, done
	go func() {
		defer close(done)
		c.run(loopCtx)
	}()
	c.logger.Info("controller started", "controller_id", c.id, "mode", string(c.Config().Mode))
	return nil
}

func (c *Controller) run(ctx context.Context) {
	interval := c.Config().TickInterval
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	last := c.now()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			now := c.now()
			c.Tick(ctx, now.Sub(last))
			last = now
			if next := c.Config().TickInterval; next != interval {
				interval = next
				ticker.Reset(interval)
			}
		}
	}
}

// Stop 停止循环并退出状态机的所有激活状态
func (c *Controller) Stop(ctx context.Context) error {
	c.loopMu.Lock()
	cancel, done := c.cancel, c.done
	c.cancel, c.done = nil, nil
	c.loopMu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}

	var err error
	if c.machine != nil {
		err = c.machine.Stop(ctx)
	}
	c.logger.Info("controller stopped", "controller_id", c.id)
	return err
}

// Running 自驱循环是否在运行
func (c *Controller) Running() bool {
	c.loopMu.Lock()
	defer c.loopMu.Unlock()
	return c.cancel != nil
}

// Tick 按模式执行一次，总是返回结果
// 回调错误和 panic 使结果 Success 为 false，并发布故障事件，不影响后续 tick。
func (c *Controller) Tick(ctx context.Context, delta time.Duration) *Result {
	start := c.now()
	c.mu.Lock()
	cfg := *c.cfg
	c.lastTick = start
	agent, world := c.agent, c.world
	c.mu.Unlock()

	res := &Result{
		ID:        uuid.NewString(),
		AgentID:   c.agentID,
		Mode:      cfg.Mode,
		Timestamp: start,
	}
	if !c.ticking.CompareAndSwap(false, true) {
		res.Err = ErrTickInProgress
		return res
	}
	defer c.ticking.Store(false)

	ctx, span := c.tracer.Start(ctx, "composite.tick", trace.WithAttributes(
		xotel.AgentIDKey.String(c.agentID),
		xotel.ModeKey.String(string(cfg.Mode)),
	))
	defer span.End()

	cc := &Context{
		Context:   ctx,
		AgentID:   c.agentID,
		Agent:     agent,
		World:     world,
		DeltaTime: delta,
		Timestamp: start,
		Shared:    c.sharedSnapshot(),
	}
	res.Err = c.dispatch(cc, &cfg, res)
	res.Success = res.Err == nil
	res.Duration = c.now().Sub(start)

	if res.Err != nil {
		c.fault(ctx, res, start)
		span.RecordError(res.Err)
		span.SetStatus(codes.Error, res.Err.Error())
	}
	span.SetAttributes(
		xotel.SuccessKey.Bool(res.Success),
		xotel.ConflictKey.Bool(res.ConflictResolved),
		xotel.TreeStatusKey.String(res.TreeStatus.String()),
		xotel.StatesKey.StringSlice(res.ActiveStates),
		attribute.String("behavior.decision_source", string(res.Factors.Decision.Source)),
	)

	c.record(res)
	return res
}

func (c *Controller) dispatch(cc *Context, cfg *Config, res *Result) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.Newf("panic: %v", r)
		}
	}()

	if cfg.Mode.needsTree() && c.tree == nil {
		return errors.Wrapf(ErrMissingBehaviorTree, "mode %s", cfg.Mode)
	}
	if cfg.Mode.needsMachine() && c.machine == nil {
		return errors.Wrapf(ErrMissingStateMachine, "mode %s", cfg.Mode)
	}

	weights := cfg.weights()
	wbt, wsm := weights.normalized()
	res.Factors.External = weights.External

	switch cfg.Mode {
	case ModeBehaviorTreeOnly:
		res.Factors.BehaviorTree = 1
		if err := c.runTree(cc, res); err != nil {
			return err
		}
		res.Factors.Decision = treeDecision(res.TreeStatus)

	case ModeStateMachineOnly:
		res.Factors.StateMachine = 1
		if err := c.runMachine(cc, res); err != nil {
			return err
		}
		res.Factors.Decision = machineDecision(res.Transitions)

	case ModeHybridPrimaryBT:
		res.Factors.BehaviorTree, res.Factors.StateMachine = wbt, wsm
		if err := c.runTree(cc, res); err != nil {
			return err
		}
		if err := c.runMachine(cc, res); err != nil {
			return err
		}
		// 只有行为树明确失败且状态机发生了转移才调和，RUNNING 仍以行为树为准
		if res.TreeStatus == bt.StatusFailure && len(res.Transitions) > 0 {
			return c.resolve(cc, cfg, res)
		}
		res.Factors.Decision = treeDecision(res.TreeStatus)

	case ModeHybridPrimarySM:
		res.Factors.BehaviorTree, res.Factors.StateMachine = wbt, wsm
		if err := c.runMachine(cc, res); err != nil {
			return err
		}
		if err := c.runTree(cc, res); err != nil {
			return err
		}
		if len(res.Transitions) > 0 {
			res.Factors.Decision = machineDecision(res.Transitions)
		} else {
			res.Factors.Decision = treeDecision(res.TreeStatus)
		}

	case ModeCollaborative:
		res.Factors.BehaviorTree, res.Factors.StateMachine = wbt, wsm
		var g errgroup.Group
		g.Go(func() error { return c.runTree(cc, res) })
		g.Go(func() error { return c.runMachine(cc, res) })
		if err := g.Wait(); err != nil {
			return err
		}
		return c.resolve(cc, cfg, res)

	default:
		return errors.Wrapf(ErrUnknownMode, "%q", cfg.Mode)
	}
	return nil
}

// runTree 与 runMachine 只写 res 中各自的字段，协作模式下可以并发执行
func (c *Controller) runTree(cc *Context, res *Result) error {
	res.RanBehaviorTree = true
	status, err := c.tree.Tick(cc, cc.Agent, cc.World, cc.DeltaTime)
	res.TreeStatus = status
	if err != nil {
		return errors.Wrap(err, "behavior tree")
	}
	return nil
}

func (c *Controller) runMachine(cc *Context, res *Result) error {
	res.RanStateMachine = true
	entered, err := c.machine.Tick(cc, cc.DeltaTime)
	res.Transitions = entered
	res.ActiveStates = c.machine.CurrentStates()
	if err != nil {
		return errors.Wrap(err, "state machine")
	}
	return nil
}

// resolve 调和行为树状态和状态机转移，已安装的解析器优先于内置策略
func (c *Controller) resolve(cc *Context, cfg *Config, res *Result) error {
	res.ConflictResolved = true

	if c.resolver != nil {
		d, err := c.resolver.Resolve(cc, res.TreeStatus, res.Transitions)
		if err != nil {
			return errors.Wrap(err, "conflict resolver")
		}
		if d.Source == "" {
			d.Source = SourceResolver
		}
		res.Factors.Decision = d
		return nil
	}

	switch cfg.ConflictResolution {
	case StrategySMPriority:
		if len(res.Transitions) > 0 {
			res.Factors.Decision = machineDecision(res.Transitions)
		} else {
			res.Factors.Decision = treeDecision(res.TreeStatus)
		}
	case StrategyWeighted:
		if w := cfg.weights(); w.StateMachine > w.BehaviorTree {
			res.Factors.Decision = machineDecision(res.Transitions)
		} else {
			res.Factors.Decision = treeDecision(res.TreeStatus)
		}
	default:
		res.Factors.Decision = treeDecision(res.TreeStatus)
	}
	return nil
}

func treeDecision(status bt.Status) Decision {
	return Decision{Source: SourceBehaviorTree, Status: status, Value: status}
}

func machineDecision(states []string) Decision {
	states = append([]string(nil), states...)
	return Decision{Source: SourceStateMachine, States: states, Value: states}
}

func (c *Controller) fault(ctx context.Context, res *Result, at time.Time) {
	c.logger.Error("controller tick failed",
		"controller_id", c.id,
		"mode", string(res.Mode),
		"error", res.Err,
	)
	c.errs.Emit(ErrorEvent{
		ControllerID: c.id,
		AgentID:      c.agentID,
		Component:    "composite",
		Err:          res.Err,
		Timestamp:    at,
	})
	if c.reporter != nil {
		c.reporter.ReportFault(ctx, res.Err, map[string]string{
			"component":     "composite",
			"controller_id": c.id,
			"agent_id":      c.agentID,
			"mode":          string(res.Mode),
		})
	}
}

func (c *Controller) record(res *Result) {
	c.mu.Lock()
	m := &c.metrics
	m.TotalTicks++
	if res.Success {
		m.SuccessfulTicks++
	} else {
		m.FailedTicks++
	}
	if res.ConflictResolved {
		m.ConflictsResolved++
	}
	if res.RanBehaviorTree {
		m.BehaviorTreeRuns++
	}
	if res.RanStateMachine {
		m.StateMachineRuns++
	}
	m.LastLatency = res.Duration
	m.AverageLatency += (res.Duration - m.AverageLatency) / time.Duration(m.TotalTicks)
	c.history.push(res)
	c.mu.Unlock()

	if c.recorder != nil {
		c.recorder.ObserveTick(res)
	}
	c.results.Emit(res)
}

// Metrics 返回累计指标
func (c *Controller) Metrics() Metrics {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.metrics
}

// History 从旧到新返回最近的结果
func (c *Controller) History() []*Result {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.history.list()
}

// Status 返回状态快照
func (c *Controller) Status() Status {
	c.mu.RLock()
	s := Status{
		ID:              c.id,
		AgentID:         c.agentID,
		Mode:            c.cfg.Mode,
		Strategy:        c.cfg.ConflictResolution,
		HasBehaviorTree: c.tree != nil,
		HasStateMachine: c.machine != nil,
		SharedKeys:      len(c.shared),
		Ticks:           c.metrics.TotalTicks,
		LastTick:        c.lastTick,
	}
	if items := c.history.list(); len(items) > 0 {
		s.TreeStatus = items[len(items)-1].TreeStatus
	}
	c.mu.RUnlock()

	s.Running = c.Running()
	if c.machine != nil {
		s.ActiveStates = c.machine.CurrentStates()
	}
	return s
}
