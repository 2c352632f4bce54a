package hsm

import "github.com/cockroachdb/errors"

var (
	// ErrNilState 传入了 nil 状态
	ErrNilState = errors.New("state cannot be nil")
	// ErrDuplicateState 状态 id 重复
	ErrDuplicateState = errors.New("duplicate state id")
	// ErrUnknownState 引用了未注册的状态
	ErrUnknownState = errors.New("unknown state")
	// ErrNoRootState 未设置根状态
	ErrNoRootState = errors.New("state machine has no root state")
	// ErrAlreadyAttached 状态已经挂在其他父状态下
	ErrAlreadyAttached = errors.New("state already has a parent")
	// ErrSimpleChildren 简单状态不能有子状态
	ErrSimpleChildren = errors.New("simple state cannot have children")
	// ErrNilTransition 传入了 nil 转移
	ErrNilTransition = errors.New("transition cannot be nil")
	// ErrUnknownKind 无法识别的状态类型
	ErrUnknownKind = errors.New("unknown state kind")
	// ErrUnknownAction 定义中引用了未注册的转移动作
	ErrUnknownAction = errors.New("unknown transition action")
	// ErrTickInProgress 同一状态机并发 Tick
	ErrTickInProgress = errors.New("state machine tick already in progress")
	// ErrAlreadyRunning 自驱循环已启动
	ErrAlreadyRunning = errors.New("state machine loop already running")
)
