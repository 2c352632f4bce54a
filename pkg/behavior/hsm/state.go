package hsm

import (
	"context"
	"fmt"

	"github.com/cockroachdb/errors"
)

// Kind 状态类型
type Kind int

const (
	// KindSimple 叶子状态
	KindSimple Kind = iota
	// KindComposite 组合状态，同一时刻只有一个子状态激活
	KindComposite
	// KindParallel 并行状态，所有子状态同时激活
	KindParallel
	// KindHistory 历史状态，重新进入时恢复上次激活的子状态
	KindHistory
)

func (k Kind) String() string {
	switch k {
	case KindSimple:
		return "simple"
	case KindComposite:
		return "composite"
	case KindParallel:
		return "parallel"
	case KindHistory:
		return "history"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// ParseKind 解析状态类型名，空串视为 simple
func ParseKind(s string) (Kind, error) {
	switch s {
	case "", "simple":
		return KindSimple, nil
	case "composite":
		return KindComposite, nil
	case "parallel":
		return KindParallel, nil
	case "history":
		return KindHistory, nil
	default:
		return KindSimple, errors.Wrapf(ErrUnknownKind, "%q", s)
	}
}

// Hook 状态生命周期钩子
type Hook func(ctx context.Context, mc *Context) error

// State 状态
// 结构（父子关系、初始子状态）在注册到 Machine 之前构建；
// 激活标记、当前子状态和历史记录由 Machine 在自己的锁下维护。
type State struct {
	id     string
	name   string
	kind   Kind
	deep   bool
	parent *State

	children map[string]*State
	order    []*State
	initial  *State

	onEnter  Hook
	onUpdate Hook
	onExit   Hook

	active     bool
	current    *State
	shallow    string
	deepMemory map[string]string
}

// StateOption 状态选项
type StateOption func(*State)

// WithOnEnter 设置进入钩子
func WithOnEnter(h Hook) StateOption {
	return func(s *State) { s.onEnter = h }
}

// WithOnUpdate 设置更新钩子
func WithOnUpdate(h Hook) StateOption {
	return func(s *State) { s.onUpdate = h }
}

// WithOnExit 设置退出钩子
func WithOnExit(h Hook) StateOption {
	return func(s *State) { s.onExit = h }
}

// WithDeepHistory 历史状态记录全部层级，默认只记录直接子状态
func WithDeepHistory() StateOption {
	return func(s *State) { s.deep = true }
}

// NewState 创建状态，name 为空时使用 id
func NewState(id, name string, kind Kind, opts ...StateOption) *State {
	if name == "" {
		name = id
	}
	s := &State{id: id, name: name, kind: kind}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *State) ID() string { return s.id }

func (s *State) Name() string { return s.name }

func (s *State) Kind() Kind { return s.kind }

// Deep 是否为深历史
func (s *State) Deep() bool { return s.deep }

// Parent 父状态，顶层状态返回 nil
func (s *State) Parent() *State { return s.parent }

// Children 按声明顺序返回子状态
func (s *State) Children() []*State {
	out := make([]*State, len(s.order))
	copy(out, s.order)
	return out
}

// Child 按 id 查找直接子状态
func (s *State) Child(id string) *State { return s.children[id] }

// Initial 初始子状态，未显式设置时为第一个子状态
func (s *State) Initial() *State {
	if s.initial != nil {
		return s.initial
	}
	if len(s.order) > 0 {
		return s.order[0]
	}
	return nil
}

// AddChild 挂载子状态
func (s *State) AddChild(child *State) error {
	if child == nil {
		return ErrNilState
	}
	if s.kind == KindSimple {
		return errors.Wrapf(ErrSimpleChildren, "state %s", s.id)
	}
	if child.parent != nil {
		return errors.Wrapf(ErrAlreadyAttached, "state %s", child.id)
	}
	if _, ok := s.children[child.id]; ok || child.id == s.id {
		return errors.Wrapf(ErrDuplicateState, "state %s under %s", child.id, s.id)
	}
	if s.children == nil {
		s.children = make(map[string]*State)
	}
	child.parent = s
	s.children[child.id] = child
	s.order = append(s.order, child)
	return nil
}

// SetInitial 设置初始子状态
func (s *State) SetInitial(id string) error {
	child, ok := s.children[id]
	if !ok {
		return errors.Wrapf(ErrUnknownState, "initial %s is not a child of %s", id, s.id)
	}
	s.initial = child
	return nil
}

// walk 前序遍历子树
func (s *State) walk(fn func(*State)) {
	fn(s)
	for _, c := range s.order {
		c.walk(fn)
	}
}
