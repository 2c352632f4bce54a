package event

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEmitter_OrderAndUnsubscribe(t *testing.T) {
	var e Emitter[int]
	var got []string

	unsubA := e.Subscribe(func(v int) { got = append(got, "a") })
	e.Subscribe(func(v int) { got = append(got, "b") })

	e.Emit(1)
	assert.Equal(t, []string{"a", "b"}, got)

	unsubA()
	unsubA()
	got = nil
	e.Emit(2)
	assert.Equal(t, []string{"b"}, got)
	assert.Equal(t, 1, e.Len())
}

func TestEmitter_ListenerMaySubscribeDuringEmit(t *testing.T) {
	var e Emitter[string]
	calls := 0

	e.Subscribe(func(string) {
		calls++
		e.Subscribe(func(string) { calls++ })
	})

	e.Emit("x")
	assert.Equal(t, 1, calls)
	assert.Equal(t, 2, e.Len())
}

func TestEmitter_NilListener(t *testing.T) {
	var e Emitter[int]
	unsub := e.Subscribe(nil)
	unsub()
	assert.Equal(t, 0, e.Len())
	e.Emit(1)
}
