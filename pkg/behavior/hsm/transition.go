package hsm

import (
	"context"
	"sync/atomic"

	"github.com/cockroachdb/errors"
)

// Guard 转移守卫/条件
// 返回错误时不触发任何转移，本次 tick 以该错误结束。
type Guard func(mc *Context) (bool, error)

// When 把不会出错的判断包装为 Guard
func When(fn func(mc *Context) bool) Guard {
	return func(mc *Context) (bool, error) { return fn(mc), nil }
}

// Action 转移动作，在退出源状态之前执行
type Action func(ctx context.Context, mc *Context) error

// Transition 状态转移
// Guards 与 Conditions 全部为 true 时可以触发；同一源状态按 Priority 降序选择，
// 优先级相同时先声明的优先。
type Transition struct {
	ID         string
	From       string
	To         string
	Guards     []Guard
	Conditions []Guard
	Actions    []Action
	Priority   int

	disabled atomic.Bool
}

// NewTransition 创建转移，id 为空时注册时自动生成
func NewTransition(id, from, to string, priority int) *Transition {
	return &Transition{ID: id, From: from, To: to, Priority: priority}
}

// Enable 启用
func (t *Transition) Enable() { t.disabled.Store(false) }

// Disable 禁用，禁用的转移不参与选择
func (t *Transition) Disable() { t.disabled.Store(true) }

// IsEnabled 是否启用
func (t *Transition) IsEnabled() bool { return !t.disabled.Load() }

func (t *Transition) allowed(mc *Context) (bool, error) {
	for _, set := range [][]Guard{t.Guards, t.Conditions} {
		for _, g := range set {
			if g == nil {
				continue
			}
			ok, err := g(mc)
			if err != nil {
				return false, errors.Wrapf(err, "transition %s guard", t.ID)
			}
			if !ok {
				return false, nil
			}
		}
	}
	return true, nil
}
