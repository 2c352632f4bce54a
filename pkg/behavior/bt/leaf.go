package bt

import "github.com/cockroachdb/errors"

// ActionFunc 动作逻辑，可返回任意非 Invalid 状态
type ActionFunc func(ctx *Context) (Status, error)

// ConditionFunc 条件判断
type ConditionFunc func(ctx *Context) bool

// Action 动作叶子节点
type Action struct {
	BaseNode
	fn ActionFunc
}

// NewAction 创建动作节点
func NewAction(id string, fn ActionFunc) *Action {
	n := &Action{fn: fn}
	n.init(n, id, KindAction)
	return n
}

func (n *Action) Execute(ctx *Context) (Status, error) {
	return n.run(ctx, nil, func(ctx *Context) (Status, error) {
		if n.fn == nil {
			return StatusFailure, nil
		}
		status, err := n.fn(ctx)
		if err != nil {
			return StatusFailure, errors.Wrapf(err, "action %s", n.id)
		}
		if status == StatusInvalid || status > StatusRunning {
			return StatusFailure, errors.Wrapf(ErrInvalidStatus, "action %s returned %d", n.id, int(status))
		}
		return status, nil
	})
}

func (n *Action) Reset() { n.resetBase() }

// Condition 条件叶子节点：true 为 SUCCESS，false 为 FAILURE，从不返回 RUNNING
type Condition struct {
	BaseNode
	eval func(ctx *Context) (bool, error)
}

// NewCondition 创建条件节点
func NewCondition(id string, fn ConditionFunc) *Condition {
	var eval func(*Context) (bool, error)
	if fn != nil {
		eval = func(ctx *Context) (bool, error) { return fn(ctx), nil }
	}
	return newCondition(id, eval)
}

func newCondition(id string, eval func(*Context) (bool, error)) *Condition {
	n := &Condition{eval: eval}
	n.init(n, id, KindCondition)
	return n
}

func (n *Condition) Execute(ctx *Context) (Status, error) {
	return n.run(ctx, nil, func(ctx *Context) (Status, error) {
		if n.eval == nil {
			return StatusFailure, nil
		}
		ok, err := n.eval(ctx)
		if err != nil {
			return StatusFailure, errors.Wrapf(err, "condition %s", n.id)
		}
		if ok {
			return StatusSuccess, nil
		}
		return StatusFailure, nil
	})
}

func (n *Condition) Reset() { n.resetBase() }

// panicError 将 recover 得到的值转为错误
func panicError(r interface{}) error {
	if err, ok := r.(error); ok {
		return errors.Wrap(err, "panic")
	}
	return errors.Newf("panic: %v", r)
}
