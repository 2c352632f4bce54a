package event

import "sync"

// Listener 事件监听函数
type Listener[T any] func(T)

// Emitter 同步事件分发器
// Emit 在调用方 goroutine 内按注册顺序依次调用监听器，返回前所有监听器都已看到事件
type Emitter[T any] struct {
	mu        sync.RWMutex
	nextID    uint64
	listeners []entry[T]
}

type entry[T any] struct {
	id uint64
	fn Listener[T]
}

// Subscribe 注册监听器，返回取消函数
func (e *Emitter[T]) Subscribe(fn Listener[T]) func() {
	if fn == nil {
		return func() {}
	}

	e.mu.Lock()
	e.nextID++
	id := e.nextID
	e.listeners = append(e.listeners, entry[T]{id: id, fn: fn})
	e.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() { e.remove(id) })
	}
}

func (e *Emitter[T]) remove(id uint64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for i, l := range e.listeners {
		if l.id == id {
			e.listeners = append(e.listeners[:i:i], e.listeners[i+1:]...)
			return
		}
	}
}

// Emit 分发事件
func (e *Emitter[T]) Emit(v T) {
	e.mu.RLock()
	if len(e.listeners) == 0 {
		e.mu.RUnlock()
		return
	}
	snapshot := make([]entry[T], len(e.listeners))
	copy(snapshot, e.listeners)
	e.mu.RUnlock()

	for _, l := range snapshot {
		l.fn(v)
	}
}

// Len 返回监听器数量
func (e *Emitter[T]) Len() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.listeners)
}
