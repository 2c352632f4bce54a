package hsm

import (
	"cmp"
	"context"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/lk2023060901/xdooria-ai/pkg/behavior/event"
	"github.com/lk2023060901/xdooria-ai/pkg/logger"
	"golang.org/x/sync/errgroup"
)

// DefaultInterval 自驱循环的默认间隔
const DefaultInterval = 100 * time.Millisecond

// Machine 分层状态机
// 钩子、守卫和事件回调都在锁外调用，可以重入操作状态机。
type Machine struct {
	id       string
	logger   logger.Logger
	interval time.Duration
	now      func() time.Time

	mu          sync.RWMutex
	states      map[string]*State
	order       []*State
	root        *State
	transitions []*Transition

	mc      *Context
	ticking atomic.Bool

	entered     event.Emitter[StateEvent]
	exited      event.Emitter[StateEvent]
	transEvents event.Emitter[TransitionEvent]
	errs        event.Emitter[ErrorEvent]

	loopMu sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// Option 状态机选项
type Option func(*Machine)

// WithLogger 设置 logger
func WithLogger(l logger.Logger) Option {
	return func(m *Machine) {
		if l != nil {
			m.logger = l.Named("hsm")
		}
	}
}

// WithInterval 设置自驱循环间隔
func WithInterval(d time.Duration) Option {
	return func(m *Machine) {
		if d > 0 {
			m.interval = d
		}
	}
}

// WithClock 设置时钟
func WithClock(now func() time.Time) Option {
	return func(m *Machine) {
		if now != nil {
			m.now = now
		}
	}
}

// NewMachine 创建状态机
func NewMachine(opts ...Option) *Machine {
	m := &Machine{
		id:       uuid.NewString(),
		logger:   logger.NewNoop(),
		interval: DefaultInterval,
		now:      time.Now,
		states:   make(map[string]*State),
		mc:       NewContext(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// ID 状态机标识
func (m *Machine) ID() string { return m.id }

// Context 共享上下文
func (m *Machine) Context() *Context { return m.mc }

// OnStateEntered 订阅状态进入事件
func (m *Machine) OnStateEntered(fn func(StateEvent)) func() { return m.entered.Subscribe(fn) }

// OnStateExited 订阅状态退出事件
func (m *Machine) OnStateExited(fn func(StateEvent)) func() { return m.exited.Subscribe(fn) }

// OnTransition 订阅转移事件
func (m *Machine) OnTransition(fn func(TransitionEvent)) func() {
	return m.transEvents.Subscribe(fn)
}

// OnError 订阅故障事件
func (m *Machine) OnError(fn func(ErrorEvent)) func() { return m.errs.Subscribe(fn) }

// AddState 注册状态及其全部子孙
func (m *Machine) AddState(s *State) error {
	if s == nil {
		return ErrNilState
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	var subtree []*State
	seen := make(map[string]struct{})
	var dup error
	s.walk(func(st *State) {
		if _, ok := m.states[st.id]; ok {
			dup = errors.CombineErrors(dup, errors.Wrapf(ErrDuplicateState, "state %s", st.id))
		}
		if _, ok := seen[st.id]; ok {
			dup = errors.CombineErrors(dup, errors.Wrapf(ErrDuplicateState, "state %s", st.id))
		}
		seen[st.id] = struct{}{}
		subtree = append(subtree, st)
	})
	if dup != nil {
		return dup
	}

	for _, st := range subtree {
		m.states[st.id] = st
		m.order = append(m.order, st)
	}
	return nil
}

// SetRootState 设置根状态，未注册时一并注册
func (m *Machine) SetRootState(s *State) error {
	if s == nil {
		return ErrNilState
	}
	m.mu.RLock()
	registered := m.states[s.id] == s
	m.mu.RUnlock()

	if !registered {
		if err := m.AddState(s); err != nil {
			return err
		}
	}
	m.mu.Lock()
	m.root = s
	m.mu.Unlock()
	return nil
}

// RootState 根状态
func (m *Machine) RootState() *State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.root
}

// AddTransition 注册转移，按调用顺序决定同优先级的先后
func (m *Machine) AddTransition(t *Transition) error {
	if t == nil {
		return ErrNilTransition
	}
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	m.mu.Lock()
	m.transitions = append(m.transitions, t)
	m.mu.Unlock()
	return nil
}

// Transitions 按声明顺序返回全部转移
func (m *Machine) Transitions() []*Transition {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Clone(m.transitions)
}

// State 按 id 查找已注册状态
func (m *Machine) State(id string) *State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.states[id]
}

// IsActive 状态是否激活
func (m *Machine) IsActive(id string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.states[id]
	return ok && s.active
}

// ActiveChild 组合/历史状态当前激活的子状态 id
func (m *Machine) ActiveChild(id string) string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if s, ok := m.states[id]; ok && s.current != nil {
		return s.current.id
	}
	return ""
}

// CurrentStates 按注册顺序返回所有激活状态 id
func (m *Machine) CurrentStates() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []string
	for _, s := range m.order {
		if s.active {
			out = append(out, s.id)
		}
	}
	return out
}

// Validate 检查根状态和转移端点，返回合并后的错误
// 只做提示，Start 不会自动调用。
func (m *Machine) Validate() error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var err error
	if m.root == nil {
		err = errors.CombineErrors(err, ErrNoRootState)
	}
	for _, t := range m.transitions {
		if _, ok := m.states[t.From]; !ok {
			err = errors.CombineErrors(err, errors.Wrapf(ErrUnknownState, "transition %s from %q", t.ID, t.From))
		}
		if _, ok := m.states[t.To]; !ok {
			err = errors.CombineErrors(err, errors.Wrapf(ErrUnknownState, "transition %s to %q", t.ID, t.To))
		}
	}
	return err
}

func (m *Machine) lookup(id string) (*State, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.states[id]
	if !ok {
		return nil, errors.Wrapf(ErrUnknownState, "%q", id)
	}
	return s, nil
}

// Activate 进入 initialID 指定的状态或根状态，不启动循环
func (m *Machine) Activate(ctx context.Context, agent, world interface{}, initialID string) error {
	now := m.now()
	m.mc.Agent, m.mc.World = agent, world
	m.mc.StartedAt, m.mc.Timestamp = now, now

	var target *State
	if initialID != "" {
		s, err := m.lookup(initialID)
		if err != nil {
			return err
		}
		target = s
	} else {
		target = m.RootState()
		if target == nil {
			return ErrNoRootState
		}
	}

	if err := m.enter(ctx, target); err != nil {
		m.fault("activate", err, now)
		return err
	}
	m.logger.Info("state machine activated", "machine_id", m.id, "state", target.id)
	return nil
}

// EnterState 进入状态
// 未激活的祖先先被激活；父状态为组合状态时先退出原来激活的兄弟状态。
func (m *Machine) EnterState(ctx context.Context, id string) error {
	s, err := m.lookup(id)
	if err != nil {
		return err
	}
	return m.enter(ctx, s)
}

// ExitState 退出状态及其激活的子孙
func (m *Machine) ExitState(ctx context.Context, id string) error {
	s, err := m.lookup(id)
	if err != nil {
		return err
	}
	return m.exit(ctx, s)
}

// TransitionTo 显式转移：退出 from，进入 to，不检查守卫
func (m *Machine) TransitionTo(ctx context.Context, from, to string) error {
	src, err := m.lookup(from)
	if err != nil {
		return err
	}
	dst, err := m.lookup(to)
	if err != nil {
		return err
	}
	return m.transition(ctx, "", src, dst)
}

func (m *Machine) transition(ctx context.Context, id string, src, dst *State) error {
	if err := m.exit(ctx, src); err != nil {
		return err
	}
	if err := m.enter(ctx, dst); err != nil {
		return err
	}
	m.transEvents.Emit(TransitionEvent{
		MachineID:    m.id,
		TransitionID: id,
		From:         src.id,
		To:           dst.id,
		Timestamp:    m.mc.Timestamp,
	})
	m.logger.Debug("transition executed", "machine_id", m.id, "transition_id", id, "from", src.id, "to", dst.id)
	return nil
}

func (m *Machine) enter(ctx context.Context, s *State) error {
	// 自顶向下收集未激活的祖先
	m.mu.RLock()
	chain := []*State{s}
	for p := s.parent; p != nil && !p.active; p = p.parent {
		chain = append([]*State{p}, chain...)
	}
	var sibling *State
	if head := chain[0]; head.parent != nil && head.parent.kind != KindParallel {
		if cur := head.parent.current; cur != nil && cur != head {
			sibling = cur
		}
	}
	m.mu.RUnlock()

	if sibling != nil {
		if err := m.exit(ctx, sibling); err != nil {
			return err
		}
	}
	for i := 0; i < len(chain)-1; i++ {
		if err := m.activate(ctx, chain[i], chain[i+1]); err != nil {
			return err
		}
	}
	return m.enterDeep(ctx, s, nil)
}

// activate 激活路径上的祖先；并行祖先的其余子状态照常进入
func (m *Machine) activate(ctx context.Context, s, next *State) error {
	if !m.markActive(s) {
		return nil
	}
	if err := m.runHook(ctx, s, s.onEnter, "enter"); err != nil {
		return err
	}
	m.entered.Emit(StateEvent{MachineID: m.id, State: s, Timestamp: m.mc.Timestamp})

	if s.kind != KindParallel {
		return nil
	}
	var g errgroup.Group
	for _, c := range s.order {
		if c == next {
			continue
		}
		g.Go(func() error { return protect(func() error { return m.enterDeep(ctx, c, nil) }) })
	}
	return g.Wait()
}

func (m *Machine) markActive(s *State) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s.active {
		return false
	}
	s.active = true
	if p := s.parent; p != nil && p.kind != KindParallel {
		p.current = s
	}
	return true
}

func (m *Machine) enterDeep(ctx context.Context, s *State, memory map[string]string) error {
	m.mu.Lock()
	if s.active {
		m.mu.Unlock()
		return nil
	}
	s.active = true
	if p := s.parent; p != nil && p.kind != KindParallel {
		p.current = s
	}

	var next *State
	switch s.kind {
	case KindComposite:
		if id, ok := memory[s.id]; ok {
			next = s.children[id]
		}
	case KindHistory:
		if s.deep {
			memory = make(map[string]string, len(s.deepMemory))
			for k, v := range s.deepMemory {
				memory[k] = v
			}
			next = s.children[memory[s.id]]
		} else {
			next = s.children[s.shallow]
		}
	}
	if next == nil && s.kind != KindParallel {
		next = s.Initial()
	}
	m.mu.Unlock()

	if err := m.runHook(ctx, s, s.onEnter, "enter"); err != nil {
		return err
	}
	m.entered.Emit(StateEvent{MachineID: m.id, State: s, Timestamp: m.mc.Timestamp})

	switch s.kind {
	case KindParallel:
		var g errgroup.Group
		for _, c := range s.order {
			g.Go(func() error { return protect(func() error { return m.enterDeep(ctx, c, memory) }) })
		}
		return g.Wait()
	default:
		if next == nil {
			return nil
		}
		return m.enterDeep(ctx, next, memory)
	}
}

func (m *Machine) exit(ctx context.Context, s *State) error {
	m.mu.Lock()
	if !s.active {
		m.mu.Unlock()
		return nil
	}
	if s.kind == KindHistory {
		if s.deep {
			s.deepMemory = recordDeep(s)
		} else if s.current != nil {
			s.shallow = s.current.id
		}
	}
	var children []*State
	switch s.kind {
	case KindParallel:
		for _, c := range s.order {
			if c.active {
				children = append(children, c)
			}
		}
	default:
		if s.current != nil {
			children = append(children, s.current)
		}
	}
	m.mu.Unlock()

	var err error
	if s.kind == KindParallel {
		var g errgroup.Group
		for _, c := range children {
			g.Go(func() error { return protect(func() error { return m.exit(ctx, c) }) })
		}
		err = g.Wait()
	} else {
		for _, c := range children {
			err = errors.CombineErrors(err, m.exit(ctx, c))
		}
	}
	err = errors.CombineErrors(err, m.runHook(ctx, s, s.onExit, "exit"))

	m.mu.Lock()
	s.active = false
	s.current = nil
	if p := s.parent; p != nil && p.current == s {
		p.current = nil
	}
	m.mu.Unlock()

	m.exited.Emit(StateEvent{MachineID: m.id, State: s, Timestamp: m.mc.Timestamp})
	return err
}

// recordDeep 记录 s 之下每个激活组合状态的当前子状态，调用方持有锁
func recordDeep(s *State) map[string]string {
	memory := make(map[string]string)
	var visit func(*State)
	visit = func(st *State) {
		if st.kind == KindParallel {
			for _, c := range st.order {
				if c.active {
					visit(c)
				}
			}
			return
		}
		if st.current != nil {
			memory[st.id] = st.current.id
			visit(st.current)
		}
	}
	visit(s)
	return memory
}

// Tick 更新所有激活的顶层状态并评估其转移，返回本次经转移进入的状态 id
func (m *Machine) Tick(ctx context.Context, delta time.Duration) (entered []string, err error) {
	if !m.ticking.CompareAndSwap(false, true) {
		return nil, ErrTickInProgress
	}
	defer m.ticking.Store(false)

	now := m.now()
	m.mc.DeltaTime, m.mc.Timestamp = delta, now

	defer func() {
		if r := recover(); r != nil {
			err = panicError(r)
		}
		if err != nil {
			m.fault("tick", err, now)
		}
	}()

	for _, s := range m.activeTopLevel() {
		ids, err := m.update(ctx, s)
		entered = append(entered, ids...)
		if err != nil {
			return entered, err
		}
		if !m.stillActive(s, nil) {
			continue
		}
		id, err := m.fireBest(ctx, s)
		if err != nil {
			return entered, err
		}
		if id != "" {
			entered = append(entered, id)
		}
	}
	return entered, nil
}

// stillActive s 在本轮更新后仍处于激活状态，且 parent 非空时仍是其当前子状态
// 更深层的转移可能已经退出了 s，此时 s 的转移不再参与本轮选择。
func (m *Machine) stillActive(s, parent *State) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if parent != nil && parent.current != s {
		return false
	}
	return s.active
}

func (m *Machine) activeTopLevel() []*State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*State
	for _, s := range m.order {
		if s.parent == nil && s.active {
			out = append(out, s)
		}
	}
	return out
}

func (m *Machine) update(ctx context.Context, s *State) ([]string, error) {
	if err := m.runHook(ctx, s, s.onUpdate, "update"); err != nil {
		return nil, err
	}

	m.mu.RLock()
	kind, current := s.kind, s.current
	var active []*State
	if kind == KindParallel {
		for _, c := range s.order {
			if c.active {
				active = append(active, c)
			}
		}
	}
	m.mu.RUnlock()

	if kind == KindParallel {
		results := make([][]string, len(active))
		var g errgroup.Group
		for i, c := range active {
			g.Go(func() error {
				return protect(func() error {
					ids, err := m.update(ctx, c)
					results[i] = ids
					return err
				})
			})
		}
		err := g.Wait()
		var entered []string
		for _, ids := range results {
			entered = append(entered, ids...)
		}
		return entered, err
	}

	if current == nil {
		return nil, nil
	}
	entered, err := m.update(ctx, current)
	if err != nil {
		return entered, err
	}
	if !m.stillActive(current, s) {
		return entered, nil
	}
	id, err := m.fireBest(ctx, current)
	if id != "" {
		entered = append(entered, id)
	}
	return entered, err
}

// fireBest 选择并触发 s 的最佳转移，返回进入的状态 id
func (m *Machine) fireBest(ctx context.Context, s *State) (string, error) {
	t, err := m.selectTransition(s)
	if err != nil || t == nil {
		return "", err
	}
	for _, action := range t.Actions {
		if action == nil {
			continue
		}
		if err := action(ctx, m.mc); err != nil {
			return "", errors.Wrapf(err, "transition %s action", t.ID)
		}
	}
	dst, err := m.lookup(t.To)
	if err != nil {
		return "", errors.Wrapf(err, "transition %s", t.ID)
	}
	if err := m.transition(ctx, t.ID, s, dst); err != nil {
		return "", err
	}
	return dst.id, nil
}

// selectTransition 启用的转移按优先级降序稳定排序，返回第一个守卫全部通过的
// 守卫出错时立即返回错误，不再评估后续候选。
func (m *Machine) selectTransition(s *State) (*Transition, error) {
	m.mu.RLock()
	var candidates []*Transition
	for _, t := range m.transitions {
		if t.From == s.id && t.IsEnabled() {
			candidates = append(candidates, t)
		}
	}
	m.mu.RUnlock()

	slices.SortStableFunc(candidates, func(a, b *Transition) int {
		return cmp.Compare(b.Priority, a.Priority)
	})
	for _, t := range candidates {
		ok, err := t.allowed(m.mc)
		if err != nil {
			return nil, err
		}
		if ok {
			return t, nil
		}
	}
	return nil, nil
}

func (m *Machine) runHook(ctx context.Context, s *State, h Hook, op string) error {
	if h == nil {
		return nil
	}
	if err := protect(func() error { return h(ctx, m.mc) }); err != nil {
		return errors.Wrapf(err, "state %s %s", s.id, op)
	}
	return nil
}

func (m *Machine) fault(op string, err error, at time.Time) {
	m.logger.Error("state machine fault", "machine_id", m.id, "op", op, "error", err)
	m.errs.Emit(ErrorEvent{MachineID: m.id, Component: "state_machine", Op: op, Err: err, Timestamp: at})
}

// Run 按间隔阻塞式循环 Tick，直到 ctx 取消，单次错误不终止循环
func (m *Machine) Run(ctx context.Context) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	last := m.now()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			now := m.now()
			_, _ = m.Tick(ctx, now.Sub(last))
			last = now
		}
	}
}

// Start 激活状态并在新 goroutine 中运行 Run
func (m *Machine) Start(ctx context.Context, agent, world interface{}, initialID string) error {
	m.loopMu.Lock()
	defer m.loopMu.Unlock()
	if m.cancel != nil {
		return ErrAlreadyRunning
	}
	if err := m.Activate(ctx, agent, world, initialID); err != nil {
		return err
	}

	loopCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	m.cancel, m.done = cancel, done
	go func() {
		defer close(done)
		m.Run(loopCtx)
	}()
	m.logger.Info("state machine started", "machine_id", m.id, "interval", m.interval)
	return nil
}

// Stop 停止循环，然后并发退出所有激活的顶层状态
func (m *Machine) Stop(ctx context.Context) error {
	m.loopMu.Lock()
	cancel, done := m.cancel, m.done
	m.cancel, m.done = nil, nil
	m.loopMu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}

	var g errgroup.Group
	for _, s := range m.activeTopLevel() {
		g.Go(func() error { return protect(func() error { return m.exit(ctx, s) }) })
	}
	err := g.Wait()
	if err != nil {
		m.fault("stop", err, m.now())
	}
	m.logger.Info("state machine stopped", "machine_id", m.id)
	return err
}

func protect(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = panicError(r)
		}
	}()
	return fn()
}

func panicError(r interface{}) error {
	if err, ok := r.(error); ok {
		return errors.Wrap(err, "panic")
	}
	return errors.Newf("panic: %v", r)
}
