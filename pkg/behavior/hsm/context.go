package hsm

import (
	"sync"
	"time"
)

// Context 状态机共享上下文
// 数据表加锁访问；Agent 和 World 由调用方传入，状态机不解释其内容。
type Context struct {
	mu   sync.RWMutex
	data map[string]interface{}

	Agent     interface{}
	World     interface{}
	DeltaTime time.Duration
	Timestamp time.Time
	StartedAt time.Time
}

// NewContext 创建空上下文
func NewContext() *Context {
	return &Context{data: make(map[string]interface{})}
}

func (c *Context) Set(key string, value interface{}) {
	c.mu.Lock()
	c.data[key] = value
	c.mu.Unlock()
}

func (c *Context) Get(key string) (interface{}, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.data[key]
	return v, ok
}

// GetBool 读取布尔值，类型不符时返回 false
func (c *Context) GetBool(key string) bool {
	v, _ := c.Get(key)
	b, _ := v.(bool)
	return b
}

// GetString 读取字符串
func (c *Context) GetString(key string) (string, bool) {
	v, ok := c.Get(key)
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

// GetInt 读取整数
func (c *Context) GetInt(key string) (int, bool) {
	v, ok := c.Get(key)
	if !ok {
		return 0, false
	}
	i, ok := v.(int)
	return i, ok
}

// GetFloat64 读取浮点数
func (c *Context) GetFloat64(key string) (float64, bool) {
	v, ok := c.Get(key)
	if !ok {
		return 0, false
	}
	f, ok := v.(float64)
	return f, ok
}

func (c *Context) Has(key string) bool {
	_, ok := c.Get(key)
	return ok
}

func (c *Context) Delete(key string) {
	c.mu.Lock()
	delete(c.data, key)
	c.mu.Unlock()
}

// Snapshot 返回数据表副本
func (c *Context) Snapshot() map[string]interface{} {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[string]interface{}, len(c.data))
	for k, v := range c.data {
		out[k] = v
	}
	return out
}

// Len 键数量
func (c *Context) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.data)
}
