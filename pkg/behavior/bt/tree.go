package bt

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/lk2023060901/xdooria-ai/pkg/behavior/event"
	"github.com/lk2023060901/xdooria-ai/pkg/logger"
)

// DefaultInterval 自驱循环的默认间隔
const DefaultInterval = 100 * time.Millisecond

// Tree 行为树
type Tree struct {
	id       string
	logger   logger.Logger
	interval time.Duration
	now      func() time.Time

	mu         sync.RWMutex
	root       Node
	blackboard *Blackboard
	ticking    atomic.Bool

	nodeEvents event.Emitter[NodeStatusEvent]
	tickEvents event.Emitter[TickEvent]
	errEvents  event.Emitter[ErrorEvent]

	loopMu sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// Option 行为树选项
type Option func(*Tree)

// WithLogger 设置 logger
func WithLogger(l logger.Logger) Option {
	return func(t *Tree) {
		if l != nil {
			t.logger = l.Named("bt")
		}
	}
}

// WithInterval 设置自驱循环间隔
func WithInterval(d time.Duration) Option {
	return func(t *Tree) {
		if d > 0 {
			t.interval = d
		}
	}
}

// WithClock 设置时钟，Context.Timestamp 由它生成
func WithClock(now func() time.Time) Option {
	return func(t *Tree) {
		if now != nil {
			t.now = now
		}
	}
}

// WithRoot 设置根节点
func WithRoot(root Node) Option {
	return func(t *Tree) { t.root = root }
}

// NewTree 创建行为树
func NewTree(opts ...Option) *Tree {
	t := &Tree{
		id:         uuid.NewString(),
		logger:     logger.NewNoop(),
		interval:   DefaultInterval,
		now:        time.Now,
		blackboard: NewBlackboard(),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// ID 行为树标识
func (t *Tree) ID() string { return t.id }

// SetRoot 替换根节点
func (t *Tree) SetRoot(root Node) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.root = root
}

// Root 返回根节点
func (t *Tree) Root() Node {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.root
}

// Blackboard 返回黑板
func (t *Tree) Blackboard() *Blackboard {
	return t.blackboard
}

// OnNodeStatus 订阅节点状态事件，根节点除外
func (t *Tree) OnNodeStatus(fn func(NodeStatusEvent)) func() {
	return t.nodeEvents.Subscribe(fn)
}

// OnTick 订阅 tick 完成事件
func (t *Tree) OnTick(fn func(TickEvent)) func() {
	return t.tickEvents.Subscribe(fn)
}

// OnError 订阅故障事件
func (t *Tree) OnError(fn func(ErrorEvent)) func() {
	return t.errEvents.Subscribe(fn)
}

// Tick 执行一次根节点
// 回调返回的错误和 panic 会被返回并发布为 ErrorEvent，同时重置根节点以便下次重新开始。
func (t *Tree) Tick(ctx context.Context, agent, world interface{}, delta time.Duration) (Status, error) {
	if !t.ticking.CompareAndSwap(false, true) {
		return StatusFailure, ErrTickInProgress
	}
	defer t.ticking.Store(false)

	root := t.Root()
	start := t.now()
	if root == nil {
		t.fault(ErrNoRoot, start)
		return StatusFailure, ErrNoRoot
	}

	bctx := &Context{
		Context:    ctx,
		Blackboard: t.blackboard,
		DeltaTime:  delta,
		Timestamp:  start,
		Agent:      agent,
		World:      world,
		root:       root,
		events:     &t.nodeEvents,
	}

	status, err := t.execute(bctx, root)
	if err != nil {
		root.Reset()
		t.fault(err, start)
	}

	t.tickEvents.Emit(TickEvent{
		TreeID:    t.id,
		Status:    status,
		Timestamp: start,
		Duration:  t.now().Sub(start),
	})
	t.logger.Debug("tick completed", "tree_id", t.id, "status", status.String())
	return status, err
}

func (t *Tree) execute(ctx *Context, root Node) (status Status, err error) {
	defer func() {
		if r := recover(); r != nil {
			status, err = StatusFailure, panicError(r)
		}
	}()
	return root.Execute(ctx)
}

func (t *Tree) fault(err error, at time.Time) {
	t.logger.Error("behavior tree tick failed", "tree_id", t.id, "error", err)
	t.errEvents.Emit(ErrorEvent{TreeID: t.id, Component: "behavior_tree", Err: err, Timestamp: at})
}

// Reset 重置所有节点并清空黑板
func (t *Tree) Reset() {
	if root := t.Root(); root != nil {
		root.Reset()
	}
	t.blackboard.Clear()
}

// Run 按间隔阻塞式循环 tick，直到 ctx 取消
// 单次 tick 的错误只发布事件不终止循环。节点在新一轮开始时自行重新初始化，
// 循环不重置根节点，冷却等跨轮状态得以保留。
func (t *Tree) Run(ctx context.Context, agent, world interface{}) {
	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	last := t.now()
	for {
		select {
		case <-ctx.Done():
			t.logger.Info("behavior tree stopped", "tree_id", t.id)
			return
		case <-ticker.C:
			now := t.now()
			_, _ = t.Tick(ctx, agent, world, now.Sub(last))
			last = now
		}
	}
}

// Start 在新 goroutine 中运行 Run
func (t *Tree) Start(ctx context.Context, agent, world interface{}) error {
	t.loopMu.Lock()
	defer t.loopMu.Unlock()
	if t.cancel != nil {
		return ErrAlreadyRunning
	}

	loopCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	t.cancel, t.done = cancel, done

	go func() {
		defer close(done)
		t.Run(loopCtx, agent, world)
	}()
	t.logger.Info("behavior tree started", "tree_id", t.id, "interval", t.interval)
	return nil
}

// Stop 停止循环并等待其退出，未启动时直接返回
func (t *Tree) Stop() {
	t.loopMu.Lock()
	cancel, done := t.cancel, t.done
	t.cancel, t.done = nil, nil
	t.loopMu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// Walk 深度优先前序遍历，fn 返回 false 时终止
func (t *Tree) Walk(fn func(n Node, depth int) bool) {
	root := t.Root()
	if root == nil {
		return
	}
	walk(root, 0, fn)
}

func walk(n Node, depth int, fn func(Node, int) bool) bool {
	if !fn(n, depth) {
		return false
	}
	for _, c := range n.base().children {
		if !walk(c, depth+1, fn) {
			return false
		}
	}
	return true
}

// FindNode 按 id 查找节点
func (t *Tree) FindNode(id string) Node {
	var found Node
	t.Walk(func(n Node, _ int) bool {
		if n.ID() == id {
			found = n
			return false
		}
		return true
	})
	return found
}

// Nodes 返回前序遍历得到的所有节点
func (t *Tree) Nodes() []Node {
	var out []Node
	t.Walk(func(n Node, _ int) bool {
		out = append(out, n)
		return true
	})
	return out
}

// Depth 节点深度，根为 0
func Depth(n Node) int {
	depth := 0
	for p := n.Parent(); p != nil; p = p.Parent() {
		depth++
	}
	return depth
}

// Path 从根到节点的 id 路径
func Path(n Node) []string {
	var path []string
	for cur := n; cur != nil; cur = cur.Parent() {
		path = append([]string{cur.ID()}, path...)
	}
	return path
}
