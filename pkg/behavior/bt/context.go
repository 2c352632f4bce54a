package bt

import (
	"context"
	"time"

	"github.com/lk2023060901/xdooria-ai/pkg/behavior/event"
)

// Context 单次 tick 的执行上下文
// Agent 和 World 由调用方传入，引擎不解释其内容。
type Context struct {
	context.Context

	Blackboard *Blackboard
	DeltaTime  time.Duration
	Timestamp  time.Time
	Agent      interface{}
	World      interface{}

	root   Node
	events *event.Emitter[NodeStatusEvent]
}

// NewContext 创建不发布事件的上下文，便于单独执行子树
func NewContext(ctx context.Context, bb *Blackboard, now time.Time) *Context {
	if ctx == nil {
		ctx = context.Background()
	}
	if bb == nil {
		bb = NewBlackboard()
	}
	return &Context{Context: ctx, Blackboard: bb, Timestamp: now}
}

func (c *Context) publish(n Node, status Status) {
	// 根节点的结果由 TickEvent 发布
	if c.events == nil || n == c.root {
		return
	}
	c.events.Emit(NodeStatusEvent{Node: n, Status: status, Timestamp: c.Timestamp})
}

// NodeStatusEvent 节点执行完成事件
type NodeStatusEvent struct {
	Node      Node
	Status    Status
	Timestamp time.Time
}

// TickEvent 整棵树一次 tick 完成
type TickEvent struct {
	TreeID    string
	Status    Status
	Timestamp time.Time
	Duration  time.Duration
}

// ErrorEvent tick 过程中出现的故障
type ErrorEvent struct {
	TreeID    string
	Component string
	Err       error
	Timestamp time.Time
}
