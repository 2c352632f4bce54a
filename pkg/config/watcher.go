package config

import (
	"sync"

	"github.com/fsnotify/fsnotify"
)

// Watcher 配置热更新监听器
// 每次重载都会把文件中 key 对应的段解析到一份新的 defaults 上再校验，
// 文件里显式写出的零值同样生效。失败时保留旧配置并通过 OnError 回调报告。
type Watcher[T any] struct {
	path       string
	configType string
	key        string
	defaults   func() *T
	validate   func(*T) error

	mu        sync.RWMutex
	config    *T
	callbacks []func(*T)
	onError   []func(error)
	stopped   bool
}

// WatcherOption 监听器选项
type WatcherOption[T any] func(*Watcher[T])

// WithWatchKey 只解析指定的配置段
func WithWatchKey[T any](key string) WatcherOption[T] {
	return func(w *Watcher[T]) { w.key = key }
}

// WithWatchDefaults 每次重载前以 defaults 返回的配置为底
func WithWatchDefaults[T any](defaults func() *T) WatcherOption[T] {
	return func(w *Watcher[T]) { w.defaults = defaults }
}

// WithWatchValidate 设置校验函数
func WithWatchValidate[T any](validate func(*T) error) WatcherOption[T] {
	return func(w *Watcher[T]) { w.validate = validate }
}

// NewWatcher 加载配置并返回监听器，调用 Watch 后才开始监听文件变化
func NewWatcher[T any](path, configType string, opts ...WatcherOption[T]) (*Watcher[T], error) {
	w := &Watcher[T]{path: path, configType: configType}
	for _, opt := range opts {
		opt(w)
	}

	cfg, _, err := w.load()
	if err != nil {
		return nil, err
	}
	w.config = cfg
	return w, nil
}

func (w *Watcher[T]) load() (*T, *Loader, error) {
	loader := NewLoader("")
	if err := loader.LoadFile(w.path, w.configType); err != nil {
		return nil, nil, err
	}

	cfg := new(T)
	if w.defaults != nil {
		cfg = w.defaults()
	}
	if err := loader.Unmarshal(w.key, cfg); err != nil {
		return nil, nil, err
	}

	if w.validate != nil {
		if err := w.validate(cfg); err != nil {
			return nil, nil, err
		}
	}
	return cfg, loader, nil
}

// GetConfig 获取当前配置
func (w *Watcher[T]) GetConfig() *T {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.config
}

// OnChange 注册配置变化回调
func (w *Watcher[T]) OnChange(callback func(*T)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.callbacks = append(w.callbacks, callback)
}

// OnError 注册重载失败回调
func (w *Watcher[T]) OnError(callback func(error)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.onError = append(w.onError, callback)
}

// Watch 开始监听文件变化
func (w *Watcher[T]) Watch() error {
	_, loader, err := w.load()
	if err != nil {
		return err
	}
	loader.viper.OnConfigChange(func(fsnotify.Event) {
		_ = w.Reload()
	})
	loader.viper.WatchConfig()
	return nil
}

// Reload 立即重新加载配置并通知回调
func (w *Watcher[T]) Reload() error {
	w.mu.RLock()
	stopped := w.stopped
	w.mu.RUnlock()
	if stopped {
		return ErrWatcherStopped
	}

	cfg, _, err := w.load()
	if err != nil {
		w.mu.RLock()
		handlers := append([]func(error){}, w.onError...)
		w.mu.RUnlock()
		for _, h := range handlers {
			h(err)
		}
		return err
	}

	w.mu.Lock()
	w.config = cfg
	callbacks := append([]func(*T){}, w.callbacks...)
	w.mu.Unlock()

	for _, cb := range callbacks {
		cb(cfg)
	}
	return nil
}

// Stop 停止分发变化，viper 不支持关闭底层文件监听，停止后的事件会被忽略
func (w *Watcher[T]) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.stopped = true
}
