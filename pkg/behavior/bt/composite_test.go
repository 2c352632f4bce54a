package bt

import (
	"fmt"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSequence_StopsAtFirstFailure(t *testing.T) {
	const n = 5
	for k := 0; k < n; k++ {
		t.Run(fmt.Sprintf("fail_at_%d", k), func(t *testing.T) {
			children := make([]*scripted, n)
			nodes := make([]Node, n)
			for i := range children {
				st := StatusSuccess
				if i == k {
					st = StatusFailure
				}
				children[i] = newScripted(fmt.Sprintf("c%d", i), st)
				nodes[i] = children[i]
			}
			seq := NewSequence("seq", nodes...)

			status, err := seq.Execute(testCtx(0))
			require.NoError(t, err)
			assert.Equal(t, StatusFailure, status)
			for i, c := range children {
				want := 0
				if i <= k {
					want = 1
				}
				assert.Equal(t, want, c.calls, "child %d", i)
			}
			assert.Equal(t, k, seq.Cursor())

			seq.Reset()
			assert.Equal(t, 0, seq.Cursor())
			assert.Equal(t, StatusInvalid, seq.Status())
		})
	}
}

func TestSequence_ResumesRunningChild(t *testing.T) {
	a := newScripted("a", StatusSuccess)
	b := newScripted("b", StatusRunning, StatusSuccess)
	seq := NewSequence("seq", a, b)

	status, _ := seq.Execute(testCtx(0))
	assert.Equal(t, StatusRunning, status)
	assert.Equal(t, 1, seq.Cursor())

	status, _ = seq.Execute(testCtx(0))
	assert.Equal(t, StatusSuccess, status)
	assert.Equal(t, 1, a.calls, "resolved child is not re-run")
	assert.Equal(t, 2, b.calls)
}

func TestSelector_InvocationCount(t *testing.T) {
	tests := []struct {
		name     string
		statuses []Status
		want     Status
		invoked  int
	}{
		{"first succeeds", []Status{StatusSuccess, StatusFailure}, StatusSuccess, 1},
		{"third succeeds", []Status{StatusFailure, StatusFailure, StatusSuccess, StatusSuccess}, StatusSuccess, 3},
		{"all fail", []Status{StatusFailure, StatusFailure}, StatusFailure, 2},
		{"running stops", []Status{StatusFailure, StatusRunning, StatusSuccess}, StatusRunning, 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var children []*scripted
			var nodes []Node
			for i, st := range tt.statuses {
				c := newScripted(fmt.Sprintf("c%d", i), st)
				children = append(children, c)
				nodes = append(nodes, c)
			}
			sel := NewSelector("sel", nodes...)

			status, err := sel.Execute(testCtx(0))
			require.NoError(t, err)
			assert.Equal(t, tt.want, status)

			invoked := 0
			for _, c := range children {
				invoked += c.calls
			}
			assert.Equal(t, tt.invoked, invoked)
		})
	}
}

func TestParallel_Policies(t *testing.T) {
	tests := []struct {
		name     string
		policy   ParallelPolicy
		statuses []Status
		want     Status
	}{
		{"all: success+running", RequireAll, []Status{StatusSuccess, StatusRunning}, StatusRunning},
		{"all: success+failure", RequireAll, []Status{StatusSuccess, StatusFailure}, StatusFailure},
		{"all: failure+success", RequireAll, []Status{StatusFailure, StatusSuccess}, StatusFailure},
		{"all: all success", RequireAll, []Status{StatusSuccess, StatusSuccess}, StatusSuccess},
		{"one: failure+running", RequireOne, []Status{StatusFailure, StatusRunning}, StatusRunning},
		{"one: failure+success", RequireOne, []Status{StatusFailure, StatusSuccess}, StatusSuccess},
		{"one: all failure", RequireOne, []Status{StatusFailure, StatusFailure}, StatusFailure},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var nodes []Node
			for i, st := range tt.statuses {
				nodes = append(nodes, newScripted(fmt.Sprintf("c%d", i), st))
			}
			p := NewParallel("par", tt.policy, nodes...)
			status, err := p.Execute(testCtx(0))
			require.NoError(t, err)
			assert.Equal(t, tt.want, status)
		})
	}
}

func TestParallel_AllChildrenRunEveryTick(t *testing.T) {
	healthy := true
	checks := 0
	guard := NewCondition("healthy", func(*Context) bool {
		checks++
		return healthy
	})
	work := newScripted("work", StatusRunning)
	p := NewParallel("par", RequireAll, guard, work)

	status, err := p.Execute(testCtx(0))
	require.NoError(t, err)
	assert.Equal(t, StatusRunning, status)

	// 上一轮成功的条件在下一轮重新求值
	healthy = false
	status, err = p.Execute(testCtx(0))
	require.NoError(t, err)
	assert.Equal(t, StatusFailure, status)
	assert.Equal(t, 2, checks)
	assert.Equal(t, 2, work.calls)
	assert.Equal(t, StatusInvalid, work.Status(), "running child reset on resolution")

	done := newScripted("done", StatusSuccess)
	slow := newScripted("slow", StatusRunning, StatusSuccess)
	p = NewParallel("pair", RequireAll, done, slow)
	status, _ = p.Execute(testCtx(0))
	assert.Equal(t, StatusRunning, status)
	status, _ = p.Execute(testCtx(0))
	assert.Equal(t, StatusSuccess, status)
	assert.Equal(t, 2, done.calls)
	assert.Equal(t, 2, slow.calls)

	win := newScripted("win", StatusSuccess)
	hang := newScripted("hang", StatusRunning)
	p = NewParallel("race", RequireOne, hang, win)
	status, _ = p.Execute(testCtx(0))
	assert.Equal(t, StatusSuccess, status)
	assert.Equal(t, StatusInvalid, hang.Status(), "running child reset on resolution")
}

func TestEmptyNodesFail(t *testing.T) {
	w, err := NewWeighted("w", []float64{1}, nil)
	require.NoError(t, err)

	nodes := []Node{
		NewSequence("seq"),
		NewSelector("sel"),
		NewParallel("par", RequireAll),
		NewInverter("inv", nil),
		NewRepeater("rep", 3, nil),
		NewRetry("retry", 3, nil),
		NewTimeout("timeout", 0, nil),
		NewCooldown("cd", 0, nil),
		NewUntilSuccess("us", nil),
		NewUntilFailure("uf", nil),
		NewDelay("delay", 0, nil),
		NewRandom("rnd", nil),
		w,
		NewAction("noop", nil),
		NewCondition("nocond", nil),
	}
	for _, n := range nodes {
		t.Run(n.Kind().String(), func(t *testing.T) {
			status, err := n.Execute(testCtx(0))
			assert.NoError(t, err)
			assert.Equal(t, StatusFailure, status)
		})
	}
}

func TestAddChild_ConfigurationErrors(t *testing.T) {
	inv := NewInverter("inv", NewAction("a", nil))
	assert.True(t, errors.Is(inv.AddChild(NewAction("b", nil)), ErrDecoratorFull))

	leaf := NewAction("leaf", nil)
	assert.True(t, errors.Is(leaf.AddChild(NewAction("c", nil)), ErrLeafChildren))

	seq := NewSequence("seq")
	assert.True(t, errors.Is(seq.AddChild(nil), ErrNilNode))

	child := NewAction("child", nil)
	require.NoError(t, seq.AddChild(child))
	assert.Same(t, seq, child.Parent())
	assert.True(t, errors.Is(NewSelector("other").AddChild(child), ErrAlreadyAttached))

	assert.Panics(t, func() { NewSequence("dup", child) })
}
