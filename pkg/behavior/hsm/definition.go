package hsm

import (
	"github.com/cockroachdb/errors"
	"gopkg.in/yaml.v3"
)

// Definition 声明式状态机定义
type Definition struct {
	Root        string                 `yaml:"root"`
	States      []StateDefinition      `yaml:"states"`
	Transitions []TransitionDefinition `yaml:"transitions"`
}

// StateDefinition 状态定义，parent 为空表示顶层状态
type StateDefinition struct {
	ID      string `yaml:"id"`
	Name    string `yaml:"name"`
	Type    string `yaml:"type"`
	Parent  string `yaml:"parent"`
	Initial string `yaml:"initial"`
	Deep    bool   `yaml:"deep"`
}

// TransitionDefinition 转移定义，守卫和条件为表达式
type TransitionDefinition struct {
	ID         string   `yaml:"id"`
	From       string   `yaml:"from"`
	To         string   `yaml:"to"`
	Priority   int      `yaml:"priority"`
	Guards     []string `yaml:"guards"`
	Conditions []string `yaml:"conditions"`
	Actions    []string `yaml:"actions"`
	Disabled   bool     `yaml:"disabled"`
}

// StateHooks 单个状态的钩子
type StateHooks struct {
	OnEnter  Hook
	OnUpdate Hook
	OnExit   Hook
}

// Hooks 构建时按 id 查找的钩子和转移动作
type Hooks struct {
	States  map[string]StateHooks
	Actions map[string]Action
}

// ParseDefinition 解析 YAML 定义
func ParseDefinition(data []byte) (*Definition, error) {
	var def Definition
	if err := yaml.Unmarshal(data, &def); err != nil {
		return nil, errors.Wrap(err, "parse state machine definition")
	}
	return &def, nil
}

// Build 按定义构建状态机
// 状态按声明顺序挂载，父状态可以声明在子状态之后。
func (d *Definition) Build(hooks Hooks, opts ...Option) (*Machine, error) {
	states := make(map[string]*State, len(d.States))
	for _, sd := range d.States {
		if sd.ID == "" {
			return nil, errors.Wrap(ErrUnknownState, "state without id")
		}
		if _, ok := states[sd.ID]; ok {
			return nil, errors.Wrapf(ErrDuplicateState, "state %s", sd.ID)
		}
		kind, err := ParseKind(sd.Type)
		if err != nil {
			return nil, errors.Wrapf(err, "state %s", sd.ID)
		}

		var stateOpts []StateOption
		if h, ok := hooks.States[sd.ID]; ok {
			stateOpts = append(stateOpts, WithOnEnter(h.OnEnter), WithOnUpdate(h.OnUpdate), WithOnExit(h.OnExit))
		}
		if sd.Deep {
			stateOpts = append(stateOpts, WithDeepHistory())
		}
		states[sd.ID] = NewState(sd.ID, sd.Name, kind, stateOpts...)
	}

	var tops []*State
	for _, sd := range d.States {
		s := states[sd.ID]
		if sd.Parent == "" {
			tops = append(tops, s)
			continue
		}
		parent, ok := states[sd.Parent]
		if !ok {
			return nil, errors.Wrapf(ErrUnknownState, "parent %s of state %s", sd.Parent, sd.ID)
		}
		if err := parent.AddChild(s); err != nil {
			return nil, err
		}
	}
	for _, sd := range d.States {
		if sd.Initial == "" {
			continue
		}
		if err := states[sd.ID].SetInitial(sd.Initial); err != nil {
			return nil, err
		}
	}

	m := NewMachine(opts...)
	for _, s := range tops {
		if err := m.AddState(s); err != nil {
			return nil, err
		}
	}
	if d.Root != "" {
		root, ok := states[d.Root]
		if !ok {
			return nil, errors.Wrapf(ErrUnknownState, "root %s", d.Root)
		}
		if err := m.SetRootState(root); err != nil {
			return nil, err
		}
	}

	for _, td := range d.Transitions {
		t, err := td.build(hooks)
		if err != nil {
			return nil, err
		}
		if err := m.AddTransition(t); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (td TransitionDefinition) build(hooks Hooks) (*Transition, error) {
	t := NewTransition(td.ID, td.From, td.To, td.Priority)
	for _, src := range td.Guards {
		g, err := ExprGuard(src)
		if err != nil {
			return nil, errors.Wrapf(err, "transition %s", td.ID)
		}
		t.Guards = append(t.Guards, g)
	}
	for _, src := range td.Conditions {
		c, err := ExprGuard(src)
		if err != nil {
			return nil, errors.Wrapf(err, "transition %s", td.ID)
		}
		t.Conditions = append(t.Conditions, c)
	}
	for _, name := range td.Actions {
		a, ok := hooks.Actions[name]
		if !ok {
			return nil, errors.Wrapf(ErrUnknownAction, "%s in transition %s", name, td.ID)
		}
		t.Actions = append(t.Actions, a)
	}
	if td.Disabled {
		t.Disable()
	}
	return t, nil
}
