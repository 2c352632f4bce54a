package hsm

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMachine_ReadyFlagScenario(t *testing.T) {
	root := NewState("root", "Root", KindComposite)
	a := NewState("A", "", KindSimple)
	b := NewState("B", "", KindSimple)
	mustAdd(t, root, a, b)
	require.NoError(t, root.SetInitial("A"))

	m := newTestMachine()
	require.NoError(t, m.SetRootState(root))
	require.NoError(t, m.AddTransition(&Transition{
		ID:     "a_to_b",
		From:   "A",
		To:     "B",
		Guards: []Guard{When(func(mc *Context) bool { return mc.GetBool("ready") })},
	}))
	require.NoError(t, m.Validate())

	var fired []TransitionEvent
	m.OnTransition(func(e TransitionEvent) { fired = append(fired, e) })

	ctx := context.Background()
	require.NoError(t, m.Activate(ctx, "agent", "world", ""))

	entered, err := m.Tick(ctx, 100*time.Millisecond)
	require.NoError(t, err)
	assert.Empty(t, entered)
	assert.True(t, m.IsActive("A"))
	assert.False(t, m.IsActive("B"))

	m.Context().Set("ready", true)
	entered, err = m.Tick(ctx, 100*time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, []string{"B"}, entered)
	assert.True(t, m.IsActive("B"))
	assert.False(t, m.IsActive("A"))
	if diff := cmp.Diff([]string{"root", "B"}, m.CurrentStates()); diff != "" {
		t.Errorf("current states mismatch (-want +got):\n%s", diff)
	}

	require.Len(t, fired, 1)
	assert.Equal(t, "a_to_b", fired[0].TransitionID)
	assert.Equal(t, "A", fired[0].From)
	assert.Equal(t, "B", fired[0].To)
}

func TestMachine_CompositeEntersOneLeafPerBranch(t *testing.T) {
	var j journal
	root := traced(&j, "root", KindComposite)
	a := traced(&j, "A", KindComposite)
	mustAdd(t, a, traced(&j, "A1", KindSimple), traced(&j, "A2", KindSimple))
	mustAdd(t, root, a, traced(&j, "B", KindSimple))

	m := newTestMachine()
	require.NoError(t, m.SetRootState(root))
	require.NoError(t, m.Activate(context.Background(), nil, nil, ""))

	if diff := cmp.Diff([]string{"root", "A", "A1"}, m.CurrentStates()); diff != "" {
		t.Errorf("current states mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, []string{"enter:root", "enter:A", "enter:A1"}, j.list())
	assert.Equal(t, "A", m.ActiveChild("root"))
	assert.Equal(t, "A1", m.ActiveChild("A"))
}

func TestMachine_ParallelEntersAllChildrenConcurrently(t *testing.T) {
	var arrived sync.WaitGroup
	arrived.Add(2)
	rendezvous := func(context.Context, *Context) error {
		arrived.Done()
		done := make(chan struct{})
		go func() {
			arrived.Wait()
			close(done)
		}()
		select {
		case <-done:
			return nil
		case <-time.After(2 * time.Second):
			return errors.New("sibling never entered")
		}
	}

	root := NewState("root", "", KindParallel)
	z := NewState("Z", "", KindComposite)
	mustAdd(t, z, NewState("Z1", "", KindSimple), NewState("Z2", "", KindSimple))
	mustAdd(t, root,
		NewState("X", "", KindSimple, WithOnEnter(rendezvous)),
		NewState("Y", "", KindSimple, WithOnEnter(rendezvous)),
		z,
	)

	m := newTestMachine()
	require.NoError(t, m.SetRootState(root))
	require.NoError(t, m.Activate(context.Background(), nil, nil, ""))

	if diff := cmp.Diff([]string{"root", "X", "Y", "Z", "Z1"}, m.CurrentStates()); diff != "" {
		t.Errorf("current states mismatch (-want +got):\n%s", diff)
	}

	var updates atomic.Int32
	for _, id := range []string{"X", "Y", "Z1"} {
		m.State(id).onUpdate = func(context.Context, *Context) error {
			updates.Add(1)
			return nil
		}
	}
	_, err := m.Tick(context.Background(), 0)
	require.NoError(t, err)
	assert.Equal(t, int32(3), updates.Load())

	require.NoError(t, m.Stop(context.Background()))
	assert.Empty(t, m.CurrentStates())
}

func TestMachine_TransitionPriority(t *testing.T) {
	tests := []struct {
		name      string
		first     int
		second    int
		disable   bool
		wantState string
	}{
		{"higher priority wins", 5, 10, false, "second"},
		{"higher priority declared first", 10, 5, false, "first"},
		{"tie goes to first declared", 7, 7, false, "first"},
		{"disabled transition skipped", 1, 10, true, "first"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			root := NewState("root", "", KindComposite)
			mustAdd(t, root,
				NewState("idle", "", KindSimple),
				NewState("first", "", KindSimple),
				NewState("second", "", KindSimple),
			)
			m := newTestMachine()
			require.NoError(t, m.SetRootState(root))

			always := When(func(*Context) bool { return true })
			require.NoError(t, m.AddTransition(&Transition{ID: "t1", From: "idle", To: "first", Priority: tt.first, Guards: []Guard{always}}))
			t2 := &Transition{ID: "t2", From: "idle", To: "second", Priority: tt.second, Conditions: []Guard{always}}
			require.NoError(t, m.AddTransition(t2))
			if tt.disable {
				t2.Disable()
			}

			ctx := context.Background()
			require.NoError(t, m.Activate(ctx, nil, nil, ""))
			entered, err := m.Tick(ctx, 0)
			require.NoError(t, err)
			assert.Equal(t, []string{tt.wantState}, entered)
			assert.True(t, m.IsActive(tt.wantState))
		})
	}
}

func TestMachine_GuardsAndConditionsAllRequired(t *testing.T) {
	root := NewState("root", "", KindComposite)
	mustAdd(t, root, NewState("a", "", KindSimple), NewState("b", "", KindSimple))
	m := newTestMachine()
	require.NoError(t, m.SetRootState(root))

	flag := func(key string) Guard { return When(func(mc *Context) bool { return mc.GetBool(key) }) }
	require.NoError(t, m.AddTransition(&Transition{
		From: "a", To: "b",
		Guards:     []Guard{flag("g1"), flag("g2")},
		Conditions: []Guard{flag("c1")},
	}))

	ctx := context.Background()
	require.NoError(t, m.Activate(ctx, nil, nil, ""))
	for _, key := range []string{"g1", "g2"} {
		m.Context().Set(key, true)
		entered, err := m.Tick(ctx, 0)
		require.NoError(t, err)
		assert.Empty(t, entered)
	}
	m.Context().Set("c1", true)
	entered, err := m.Tick(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"b"}, entered)
}

func TestMachine_FiringOrder(t *testing.T) {
	var j journal
	root := traced(&j, "root", KindComposite)
	mustAdd(t, root, traced(&j, "a", KindSimple), traced(&j, "b", KindSimple))
	m := newTestMachine()
	require.NoError(t, m.SetRootState(root))
	require.NoError(t, m.AddTransition(&Transition{
		ID: "go", From: "a", To: "b",
		Actions: []Action{func(context.Context, *Context) error { j.add("action:go"); return nil }},
	}))
	m.OnTransition(func(e TransitionEvent) { j.add("event:" + e.TransitionID) })

	ctx := context.Background()
	require.NoError(t, m.Activate(ctx, nil, nil, ""))
	j.reset()

	_, err := m.Tick(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"action:go", "exit:a", "enter:b", "event:go"}, j.list())
}

func TestMachine_ExitedAncestorDoesNotFire(t *testing.T) {
	var j journal
	root := traced(&j, "R", KindComposite)
	p := traced(&j, "P", KindComposite)
	mustAdd(t, p, traced(&j, "P1", KindSimple))
	mustAdd(t, root, p, traced(&j, "Q", KindSimple), traced(&j, "X", KindSimple))

	m := newTestMachine()
	require.NoError(t, m.SetRootState(root))
	require.NoError(t, m.AddTransition(&Transition{ID: "leaf_out", From: "P1", To: "Q"}))
	require.NoError(t, m.AddTransition(&Transition{ID: "parent_out", From: "P", To: "X"}))

	var fired []string
	m.OnTransition(func(e TransitionEvent) { fired = append(fired, e.TransitionID) })

	ctx := context.Background()
	require.NoError(t, m.Activate(ctx, nil, nil, ""))
	j.reset()

	entered, err := m.Tick(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"Q"}, entered)
	assert.Equal(t, []string{"leaf_out"}, fired)
	assert.True(t, m.IsActive("Q"))
	assert.False(t, m.IsActive("X"))
	assert.False(t, m.IsActive("P"))
	assert.NotContains(t, j.list(), "enter:X")
}

func TestMachine_ActionErrorAbortsTransition(t *testing.T) {
	root := NewState("root", "", KindComposite)
	mustAdd(t, root, NewState("a", "", KindSimple), NewState("b", "", KindSimple))
	m := newTestMachine()
	require.NoError(t, m.SetRootState(root))
	boom := errors.New("boom")
	require.NoError(t, m.AddTransition(&Transition{
		ID: "go", From: "a", To: "b",
		Actions: []Action{func(context.Context, *Context) error { return boom }},
	}))

	var faults []ErrorEvent
	m.OnError(func(e ErrorEvent) { faults = append(faults, e) })

	ctx := context.Background()
	require.NoError(t, m.Activate(ctx, nil, nil, ""))
	_, err := m.Tick(ctx, 0)
	assert.True(t, errors.Is(err, boom))
	assert.True(t, m.IsActive("a"))
	require.Len(t, faults, 1)
	assert.Equal(t, "tick", faults[0].Op)
}

func TestMachine_History(t *testing.T) {
	tests := []struct {
		name string
		deep bool
		want []string
	}{
		{"shallow restores direct child only", false, []string{"root", "H", "C", "C1"}},
		{"deep restores every level", true, []string{"root", "H", "C", "C2"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var opts []StateOption
			if tt.deep {
				opts = append(opts, WithDeepHistory())
			}
			root := NewState("root", "", KindComposite)
			h := NewState("H", "", KindHistory, opts...)
			c := NewState("C", "", KindComposite)
			mustAdd(t, c, NewState("C1", "", KindSimple), NewState("C2", "", KindSimple))
			mustAdd(t, h, NewState("D", "", KindSimple), c)
			mustAdd(t, root, h, NewState("O", "", KindSimple))

			m := newTestMachine()
			require.NoError(t, m.SetRootState(root))
			ctx := context.Background()
			require.NoError(t, m.Activate(ctx, nil, nil, ""))
			assert.Equal(t, []string{"root", "H", "D"}, m.CurrentStates())

			require.NoError(t, m.TransitionTo(ctx, "D", "C"))
			require.NoError(t, m.TransitionTo(ctx, "C1", "C2"))
			require.NoError(t, m.TransitionTo(ctx, "H", "O"))
			assert.Equal(t, []string{"root", "O"}, m.CurrentStates())

			require.NoError(t, m.TransitionTo(ctx, "O", "H"))
			if diff := cmp.Diff(tt.want, m.CurrentStates()); diff != "" {
				t.Errorf("current states mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestMachine_EnterActivatesAncestors(t *testing.T) {
	var j journal
	root := traced(&j, "root", KindComposite)
	a := traced(&j, "A", KindComposite)
	mustAdd(t, a, traced(&j, "A1", KindSimple), traced(&j, "A2", KindSimple))
	b := traced(&j, "B", KindComposite)
	mustAdd(t, b, traced(&j, "B1", KindSimple))
	mustAdd(t, root, a, b)

	m := newTestMachine()
	require.NoError(t, m.SetRootState(root))
	ctx := context.Background()

	require.NoError(t, m.EnterState(ctx, "A2"))
	assert.Equal(t, []string{"enter:root", "enter:A", "enter:A2"}, j.list())
	assert.Equal(t, []string{"root", "A", "A2"}, m.CurrentStates())

	// 进入另一分支先退出原来的兄弟分支
	j.reset()
	require.NoError(t, m.EnterState(ctx, "B1"))
	assert.Equal(t, []string{"exit:A2", "exit:A", "enter:B", "enter:B1"}, j.list())
	assert.Equal(t, []string{"root", "B", "B1"}, m.CurrentStates())

	// 已激活的状态再次进入不产生钩子
	j.reset()
	require.NoError(t, m.EnterState(ctx, "B"))
	assert.Empty(t, j.list())

	require.NoError(t, m.ExitState(ctx, "B"))
	assert.Equal(t, []string{"root"}, m.CurrentStates())
	assert.Equal(t, "", m.ActiveChild("root"))
}

func TestMachine_TransitionTo(t *testing.T) {
	root := NewState("root", "", KindComposite)
	mustAdd(t, root, NewState("a", "", KindSimple), NewState("b", "", KindSimple))
	m := newTestMachine()
	require.NoError(t, m.SetRootState(root))
	require.NoError(t, m.AddTransition(&Transition{
		From: "a", To: "b",
		Guards: []Guard{When(func(*Context) bool { return false })},
	}))

	var events []TransitionEvent
	m.OnTransition(func(e TransitionEvent) { events = append(events, e) })

	ctx := context.Background()
	require.NoError(t, m.Activate(ctx, nil, nil, ""))
	require.NoError(t, m.TransitionTo(ctx, "a", "b"))
	assert.True(t, m.IsActive("b"))
	assert.False(t, m.IsActive("a"))
	require.Len(t, events, 1)
	assert.Empty(t, events[0].TransitionID)

	assert.True(t, errors.Is(m.TransitionTo(ctx, "b", "nowhere"), ErrUnknownState))
	assert.True(t, errors.Is(m.EnterState(ctx, "nowhere"), ErrUnknownState))
}

func TestMachine_Validate(t *testing.T) {
	m := newTestMachine()
	assert.True(t, errors.Is(m.Validate(), ErrNoRootState))

	root := NewState("root", "", KindComposite)
	mustAdd(t, root, NewState("a", "", KindSimple))
	require.NoError(t, m.SetRootState(root))
	require.NoError(t, m.Validate())

	require.NoError(t, m.AddTransition(NewTransition("dangling", "a", "ghost", 0)))
	err := m.Validate()
	assert.True(t, errors.Is(err, ErrUnknownState))
	assert.Contains(t, err.Error(), "ghost")

	// 校验只做提示，不阻止激活
	require.NoError(t, m.Activate(context.Background(), nil, nil, ""))
}

func TestMachine_Registration(t *testing.T) {
	m := newTestMachine()
	root := NewState("root", "", KindComposite)
	mustAdd(t, root, NewState("a", "", KindSimple))
	require.NoError(t, m.AddState(root))

	assert.True(t, errors.Is(m.AddState(NewState("a", "", KindSimple)), ErrDuplicateState))
	assert.True(t, errors.Is(m.AddState(nil), ErrNilState))
	assert.True(t, errors.Is(m.AddTransition(nil), ErrNilTransition))
	assert.Same(t, root, m.State("root"))
	assert.Nil(t, m.State("missing"))

	leaf := NewState("leaf", "", KindSimple)
	assert.True(t, errors.Is(leaf.AddChild(NewState("x", "", KindSimple)), ErrSimpleChildren))
	assert.True(t, errors.Is(root.AddChild(m.State("a")), ErrAlreadyAttached))
	assert.True(t, errors.Is(root.SetInitial("zzz"), ErrUnknownState))

	assert.True(t, errors.Is(newTestMachine().Activate(context.Background(), nil, nil, ""), ErrNoRootState))
}

func TestMachine_HookFaultRecovered(t *testing.T) {
	explode := true
	root := NewState("root", "", KindComposite)
	mustAdd(t, root, NewState("a", "", KindSimple, WithOnUpdate(func(context.Context, *Context) error {
		if explode {
			panic("hook exploded")
		}
		return nil
	})))

	m := newTestMachine()
	require.NoError(t, m.SetRootState(root))
	var faults []ErrorEvent
	m.OnError(func(e ErrorEvent) { faults = append(faults, e) })

	ctx := context.Background()
	require.NoError(t, m.Activate(ctx, nil, nil, ""))
	_, err := m.Tick(ctx, 0)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "hook exploded")
	require.Len(t, faults, 1)
	assert.Equal(t, "state_machine", faults[0].Component)

	explode = false
	_, err = m.Tick(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"root", "a"}, m.CurrentStates())
}

func TestMachine_ParallelUpdatePanicInChild(t *testing.T) {
	root := NewState("root", "", KindParallel)
	mustAdd(t, root,
		NewState("ok", "", KindSimple),
		NewState("bad", "", KindSimple, WithOnUpdate(func(context.Context, *Context) error { panic("child") })),
	)
	m := newTestMachine()
	require.NoError(t, m.SetRootState(root))
	ctx := context.Background()
	require.NoError(t, m.Activate(ctx, nil, nil, ""))

	_, err := m.Tick(ctx, 0)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "child")
}

func TestMachine_TickStampsContext(t *testing.T) {
	now := epoch
	m := NewMachine(WithClock(func() time.Time { return now }))
	root := NewState("root", "", KindSimple)
	require.NoError(t, m.SetRootState(root))

	ctx := context.Background()
	require.NoError(t, m.Activate(ctx, "agent-7", "world", ""))
	assert.Equal(t, epoch, m.Context().StartedAt)
	assert.Equal(t, "agent-7", m.Context().Agent)

	now = epoch.Add(time.Second)
	_, err := m.Tick(ctx, 250*time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, now, m.Context().Timestamp)
	assert.Equal(t, 250*time.Millisecond, m.Context().DeltaTime)
}

func TestMachine_StartStop(t *testing.T) {
	var updates atomic.Int32
	var j journal
	root := traced(&j, "root", KindParallel, WithOnUpdate(func(context.Context, *Context) error {
		updates.Add(1)
		return nil
	}))
	mustAdd(t, root, traced(&j, "left", KindSimple), traced(&j, "right", KindSimple))

	m := NewMachine(WithInterval(5 * time.Millisecond))
	require.NoError(t, m.SetRootState(root))

	ctx := context.Background()
	require.NoError(t, m.Start(ctx, nil, nil, ""))
	assert.True(t, errors.Is(m.Start(ctx, nil, nil, ""), ErrAlreadyRunning))

	require.Eventually(t, func() bool { return updates.Load() >= 3 }, time.Second, 5*time.Millisecond)

	j.reset()
	require.NoError(t, m.Stop(ctx))
	assert.Empty(t, m.CurrentStates())
	assert.ElementsMatch(t, []string{"exit:left", "exit:right", "exit:root"}, j.list())
	assert.Equal(t, "exit:root", j.list()[2])

	// 再次 Stop 无副作用
	require.NoError(t, m.Stop(ctx))
}
