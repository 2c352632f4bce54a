package bt

import (
	"reflect"
	"sync"
	"sync/atomic"
)

// MaxNotifyDepth 订阅回调中再次修改黑板时允许的最大嵌套层数，超过的通知被丢弃
const MaxNotifyDepth = 8

// ChangeFunc 键值变化回调，删除时 newValue 为 nil
type ChangeFunc func(key string, oldValue, newValue interface{})

// SubscriptionID 订阅标识
type SubscriptionID uint64

type subscription struct {
	id SubscriptionID
	fn ChangeFunc
}

// Blackboard 黑板，节点间共享数据
// 回调在释放锁之后同步执行，回调内可以安全地读写黑板。
type Blackboard struct {
	mu     sync.RWMutex
	data   map[string]interface{}
	subs   map[string][]subscription
	nextID SubscriptionID

	depth   atomic.Int32
	dropped atomic.Uint64
}

// NewBlackboard 创建黑板
func NewBlackboard() *Blackboard {
	return &Blackboard{
		data: make(map[string]interface{}),
		subs: make(map[string][]subscription),
	}
}

// Set 设置数据，值发生变化时通知订阅者
func (bb *Blackboard) Set(key string, value interface{}) {
	bb.mu.Lock()
	old, existed := bb.data[key]
	bb.data[key] = value
	subs := bb.subs[key]
	bb.mu.Unlock()

	if existed && sameValue(old, value) {
		return
	}
	bb.notify(subs, key, old, value)
}

// Get 获取数据
func (bb *Blackboard) Get(key string) (interface{}, bool) {
	bb.mu.RLock()
	defer bb.mu.RUnlock()
	val, ok := bb.data[key]
	return val, ok
}

// GetString 获取字符串
func (bb *Blackboard) GetString(key string) (string, bool) {
	val, ok := bb.Get(key)
	if !ok {
		return "", false
	}
	s, ok := val.(string)
	return s, ok
}

// GetInt 获取整数
func (bb *Blackboard) GetInt(key string) (int, bool) {
	val, ok := bb.Get(key)
	if !ok {
		return 0, false
	}
	i, ok := val.(int)
	return i, ok
}

// GetInt64 获取 int64
func (bb *Blackboard) GetInt64(key string) (int64, bool) {
	val, ok := bb.Get(key)
	if !ok {
		return 0, false
	}
	i, ok := val.(int64)
	return i, ok
}

// GetFloat64 获取浮点数
func (bb *Blackboard) GetFloat64(key string) (float64, bool) {
	val, ok := bb.Get(key)
	if !ok {
		return 0, false
	}
	f, ok := val.(float64)
	return f, ok
}

// GetBool 获取布尔值
func (bb *Blackboard) GetBool(key string) (bool, bool) {
	val, ok := bb.Get(key)
	if !ok {
		return false, false
	}
	b, ok := val.(bool)
	return b, ok
}

// Has 检查是否存在
func (bb *Blackboard) Has(key string) bool {
	bb.mu.RLock()
	defer bb.mu.RUnlock()
	_, ok := bb.data[key]
	return ok
}

// Delete 删除数据，键存在时以 nil 通知订阅者
func (bb *Blackboard) Delete(key string) {
	bb.mu.Lock()
	old, existed := bb.data[key]
	delete(bb.data, key)
	subs := bb.subs[key]
	bb.mu.Unlock()

	if existed {
		bb.notify(subs, key, old, nil)
	}
}

// Keys 返回所有键
func (bb *Blackboard) Keys() []string {
	bb.mu.RLock()
	defer bb.mu.RUnlock()
	keys := make([]string, 0, len(bb.data))
	for k := range bb.data {
		keys = append(keys, k)
	}
	return keys
}

// Len 返回键数量
func (bb *Blackboard) Len() int {
	bb.mu.RLock()
	defer bb.mu.RUnlock()
	return len(bb.data)
}

// Snapshot 返回数据的浅拷贝
func (bb *Blackboard) Snapshot() map[string]interface{} {
	bb.mu.RLock()
	defer bb.mu.RUnlock()
	out := make(map[string]interface{}, len(bb.data))
	for k, v := range bb.data {
		out[k] = v
	}
	return out
}

// Clear 清空数据，保留订阅，不触发通知
func (bb *Blackboard) Clear() {
	bb.mu.Lock()
	defer bb.mu.Unlock()
	bb.data = make(map[string]interface{})
}

// Subscribe 订阅某个键的变化
func (bb *Blackboard) Subscribe(key string, fn ChangeFunc) SubscriptionID {
	if fn == nil {
		return 0
	}
	bb.mu.Lock()
	defer bb.mu.Unlock()
	bb.nextID++
	id := bb.nextID
	// 复制后追加，通知时持有的旧切片不受影响
	subs := make([]subscription, len(bb.subs[key]), len(bb.subs[key])+1)
	copy(subs, bb.subs[key])
	bb.subs[key] = append(subs, subscription{id: id, fn: fn})
	return id
}

// Unsubscribe 取消订阅，返回是否找到
func (bb *Blackboard) Unsubscribe(key string, id SubscriptionID) bool {
	bb.mu.Lock()
	defer bb.mu.Unlock()
	subs := bb.subs[key]
	for i, s := range subs {
		if s.id != id {
			continue
		}
		next := make([]subscription, 0, len(subs)-1)
		next = append(next, subs[:i]...)
		next = append(next, subs[i+1:]...)
		if len(next) == 0 {
			delete(bb.subs, key)
		} else {
			bb.subs[key] = next
		}
		return true
	}
	return false
}

// DroppedNotifications 因嵌套过深被丢弃的通知数量
func (bb *Blackboard) DroppedNotifications() uint64 {
	return bb.dropped.Load()
}

func (bb *Blackboard) notify(subs []subscription, key string, old, value interface{}) {
	if len(subs) == 0 {
		return
	}
	if bb.depth.Add(1) > MaxNotifyDepth {
		bb.depth.Add(-1)
		bb.dropped.Add(1)
		return
	}
	defer bb.depth.Add(-1)

	for _, s := range subs {
		s.fn(key, old, value)
	}
}

// sameValue 可比较类型用 ==，其余用 reflect.DeepEqual
func sameValue(a, b interface{}) (same bool) {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	t := reflect.TypeOf(a)
	if t != reflect.TypeOf(b) {
		return false
	}
	if !t.Comparable() {
		return reflect.DeepEqual(a, b)
	}
	// 结构体内含接口字段时 == 仍可能 panic
	defer func() {
		if recover() != nil {
			same = reflect.DeepEqual(a, b)
		}
	}()
	return a == b
}
