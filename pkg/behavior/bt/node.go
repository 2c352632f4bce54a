package bt

import (
	"time"

	"github.com/cockroachdb/errors"
)

// Node 行为树节点
// 所有节点都嵌入 BaseNode，因此节点种类是封闭的，由 Kind 区分。
type Node interface {
	ID() string
	Kind() Kind
	Status() Status
	Parent() Node
	Children() []Node
	// AddChild 挂载子节点，违反结构约束时立即返回配置错误
	AddChild(child Node) error
	// Execute 执行一次节点
	Execute(ctx *Context) (Status, error)
	// Reset 递归清除运行进度，状态回到 StatusInvalid
	Reset()

	base() *BaseNode
}

// BaseNode 节点公共部分
type BaseNode struct {
	id       string
	kind     Kind
	status   Status
	parent   Node
	children []Node
	self     Node

	startedAt time.Time
	onStart   func(ctx *Context)
	onEnd     func(ctx *Context, status Status)
}

func (b *BaseNode) init(self Node, id string, kind Kind) {
	b.self = self
	b.id = id
	b.kind = kind
}

func (b *BaseNode) base() *BaseNode { return b }

func (b *BaseNode) ID() string { return b.id }

func (b *BaseNode) Kind() Kind { return b.kind }

func (b *BaseNode) Status() Status { return b.status }

// Parent 返回父节点，根节点返回 nil
func (b *BaseNode) Parent() Node { return b.parent }

// Children 返回子节点副本
func (b *BaseNode) Children() []Node {
	out := make([]Node, len(b.children))
	copy(out, b.children)
	return out
}

// StartedAt 本轮开始执行的时间
func (b *BaseNode) StartedAt() time.Time { return b.startedAt }

// OnStart 设置开始钩子，节点从非 RUNNING 状态执行时调用
func (b *BaseNode) OnStart(fn func(ctx *Context)) { b.onStart = fn }

// OnEnd 设置结束钩子，结果不是 RUNNING 时调用
func (b *BaseNode) OnEnd(fn func(ctx *Context, status Status)) { b.onEnd = fn }

func (b *BaseNode) AddChild(child Node) error {
	if child == nil {
		return ErrNilNode
	}
	switch limit := b.kind.arity(); {
	case limit == 0:
		return errors.Wrapf(ErrLeafChildren, "node %s", b.id)
	case limit > 0 && len(b.children) >= limit:
		return errors.Wrapf(ErrDecoratorFull, "node %s", b.id)
	}

	cb := child.base()
	if cb.parent != nil {
		return errors.Wrapf(ErrAlreadyAttached, "node %s under %s", cb.id, cb.parent.ID())
	}
	cb.parent = b.self
	b.children = append(b.children, child)
	return nil
}

// attach 构造函数中挂载子节点，忽略 nil
func (b *BaseNode) attach(children ...Node) {
	for _, c := range children {
		if c == nil {
			continue
		}
		if err := b.AddChild(c); err != nil {
			panic(err)
		}
	}
}

func (b *BaseNode) child() Node {
	if len(b.children) == 0 {
		return nil
	}
	return b.children[0]
}

// resetBase 清除公共状态并递归重置子节点
func (b *BaseNode) resetBase() {
	b.status = StatusInvalid
	b.startedAt = time.Time{}
	for _, c := range b.children {
		c.Reset()
	}
}

// run 节点执行骨架：开始钩子、种类逻辑、结束钩子、状态事件
func (b *BaseNode) run(ctx *Context, start func(), tick func(*Context) (Status, error)) (Status, error) {
	if b.status != StatusRunning {
		b.startedAt = ctx.Timestamp
		if start != nil {
			start()
		}
		if b.onStart != nil {
			b.onStart(ctx)
		}
	}

	status, err := tick(ctx)
	if err != nil {
		status = StatusFailure
	}

	if status != StatusRunning && b.onEnd != nil {
		b.onEnd(ctx, status)
	}
	b.status = status
	ctx.publish(b.self, status)
	return status, err
}
