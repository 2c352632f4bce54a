package hsm

import (
	"context"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const guardDefinition = `
root: guard
states:
  - id: patrol
    parent: guard
  - id: guard
    name: Guard
    type: composite
    initial: patrol
  - id: combat
    type: history
    parent: guard
    deep: true
  - id: melee
    parent: combat
  - id: ranged
    parent: combat
transitions:
  - id: spot
    from: patrol
    to: combat
    priority: 10
    guards: ["enemy_visible"]
    conditions: ["hp > 30"]
    actions: [alert]
  - id: flee
    from: patrol
    to: ranged
    priority: 1
    guards: ["enemy_visible"]
  - id: calm
    from: combat
    to: patrol
    guards: ["!enemy_visible"]
    disabled: true
`

func TestDefinition_Build(t *testing.T) {
	def, err := ParseDefinition([]byte(guardDefinition))
	require.NoError(t, err)
	require.Len(t, def.States, 5)

	alerts := 0
	var entered []string
	hooks := Hooks{
		States: map[string]StateHooks{
			"combat": {OnEnter: func(context.Context, *Context) error {
				entered = append(entered, "combat")
				return nil
			}},
		},
		Actions: map[string]Action{
			"alert": func(context.Context, *Context) error { alerts++; return nil },
		},
	}

	m, err := def.Build(hooks, WithClock(func() time.Time { return epoch }))
	require.NoError(t, err)
	require.NoError(t, m.Validate())
	assert.Equal(t, "Guard", m.RootState().Name())
	assert.Equal(t, KindHistory, m.State("combat").Kind())
	assert.True(t, m.State("combat").Deep())

	ts := m.Transitions()
	require.Len(t, ts, 3)
	assert.False(t, ts[2].IsEnabled())

	ctx := context.Background()
	require.NoError(t, m.Activate(ctx, nil, nil, ""))
	assert.Equal(t, []string{"guard", "patrol"}, m.CurrentStates())

	m.Context().Set("enemy_visible", true)
	m.Context().Set("hp", 20)
	got, err := m.Tick(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"ranged"}, got)
	assert.Equal(t, 0, alerts)

	require.NoError(t, m.TransitionTo(ctx, "combat", "patrol"))
	m.Context().Set("hp", 80)
	got, err = m.Tick(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"combat"}, got)
	assert.Equal(t, 1, alerts)
	assert.Equal(t, []string{"combat", "combat"}, entered)
	// 深历史恢复上次的 ranged
	assert.Equal(t, []string{"guard", "combat", "ranged"}, m.CurrentStates())
}

func TestDefinition_Errors(t *testing.T) {
	tests := []struct {
		name  string
		yaml  string
		hooks Hooks
		want  error
	}{
		{
			name: "unknown kind",
			yaml: "states:\n  - id: a\n    type: quantum\n",
			want: ErrUnknownKind,
		},
		{
			name: "unknown parent",
			yaml: "states:\n  - id: a\n    parent: ghost\n",
			want: ErrUnknownState,
		},
		{
			name: "duplicate state",
			yaml: "states:\n  - id: a\n  - id: a\n",
			want: ErrDuplicateState,
		},
		{
			name: "unknown root",
			yaml: "root: ghost\nstates:\n  - id: a\n",
			want: ErrUnknownState,
		},
		{
			name: "bad initial",
			yaml: "states:\n  - id: a\n    type: composite\n    initial: ghost\n",
			want: ErrUnknownState,
		},
		{
			name: "unknown action",
			yaml: "states:\n  - id: a\ntransitions:\n  - from: a\n    to: a\n    actions: [nope]\n",
			want: ErrUnknownAction,
		},
		{
			name: "children on simple state",
			yaml: "states:\n  - id: a\n  - id: b\n    parent: a\n",
			want: ErrSimpleChildren,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			def, err := ParseDefinition([]byte(tt.yaml))
			require.NoError(t, err)
			_, err = def.Build(tt.hooks)
			assert.True(t, errors.Is(err, tt.want), "got %v", err)
		})
	}

	_, err := ParseDefinition([]byte("states: [unterminated"))
	assert.Error(t, err)

	def, err := ParseDefinition([]byte("states:\n  - id: a\ntransitions:\n  - from: a\n    to: a\n    guards: ['hp <']\n"))
	require.NoError(t, err)
	_, err = def.Build(Hooks{})
	assert.Error(t, err)
}

func TestExprGuard(t *testing.T) {
	tests := []struct {
		name string
		expr string
		want bool
	}{
		{"flag", `ready`, true},
		{"arithmetic", `hp > 30 && ammo >= 2`, true},
		{"missing key is nil", `target == nil`, true},
		{"delta seconds", `delta == 0.5`, true},
		{"agent passthrough", `agent == "npc-3"`, true},
		{"false", `hp < 10`, false},
	}

	mc := NewContext()
	mc.Set("ready", true)
	mc.Set("hp", 50)
	mc.Set("ammo", 3)
	mc.DeltaTime = 500 * time.Millisecond
	mc.Agent = "npc-3"

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g, err := ExprGuard(tt.expr)
			require.NoError(t, err)
			ok, err := g(mc)
			require.NoError(t, err)
			assert.Equal(t, tt.want, ok)
		})
	}

	_, err := ExprGuard(`ready &&`)
	assert.Error(t, err)

	g, err := ExprGuard(`hp + 'x' > 1`)
	require.NoError(t, err)
	ok, err := g(mc)
	assert.False(t, ok)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `hp + 'x' > 1`)
}

func TestExprGuard_RuntimeErrorFaultsTick(t *testing.T) {
	def, err := ParseDefinition([]byte(`
root: root
states:
  - id: root
    type: composite
    initial: idle
  - id: idle
    parent: root
  - id: alert
    parent: root
transitions:
  - id: broken
    from: idle
    to: alert
    guards: ["hp + 'x' > 1"]
`))
	require.NoError(t, err)
	m, err := def.Build(Hooks{})
	require.NoError(t, err)

	var faults []ErrorEvent
	m.OnError(func(e ErrorEvent) { faults = append(faults, e) })

	ctx := context.Background()
	require.NoError(t, m.Activate(ctx, nil, nil, ""))
	m.Context().Set("hp", 50)

	entered, err := m.Tick(ctx, 0)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "transition broken guard")
	assert.Empty(t, entered)
	assert.True(t, m.IsActive("idle"))
	assert.False(t, m.IsActive("alert"))
	require.Len(t, faults, 1)
	assert.Equal(t, "tick", faults[0].Op)
}

func TestContext(t *testing.T) {
	mc := NewContext()
	mc.Set("name", "scout")
	mc.Set("hp", 7)
	mc.Set("speed", 1.5)

	s, ok := mc.GetString("name")
	assert.True(t, ok)
	assert.Equal(t, "scout", s)
	i, ok := mc.GetInt("hp")
	assert.True(t, ok)
	assert.Equal(t, 7, i)
	f, ok := mc.GetFloat64("speed")
	assert.True(t, ok)
	assert.Equal(t, 1.5, f)
	_, ok = mc.GetInt("name")
	assert.False(t, ok)
	assert.False(t, mc.GetBool("name"))

	snap := mc.Snapshot()
	snap["hp"] = 0
	v, _ := mc.Get("hp")
	assert.Equal(t, 7, v)

	mc.Delete("hp")
	assert.False(t, mc.Has("hp"))
	assert.Equal(t, 2, mc.Len())
}

func TestParseKind(t *testing.T) {
	for _, k := range []Kind{KindSimple, KindComposite, KindParallel, KindHistory} {
		got, err := ParseKind(k.String())
		require.NoError(t, err)
		assert.Equal(t, k, got)
	}
	got, err := ParseKind("")
	require.NoError(t, err)
	assert.Equal(t, KindSimple, got)
}
