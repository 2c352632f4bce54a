package composite

import "github.com/cockroachdb/errors"

var (
	// ErrMissingBehaviorTree 当前模式需要行为树但未设置
	ErrMissingBehaviorTree = errors.New("mode requires a behavior tree")
	// ErrMissingStateMachine 当前模式需要状态机但未设置
	ErrMissingStateMachine = errors.New("mode requires a state machine")
	// ErrInvalidWeights 行为树与状态机权重之和不为正
	ErrInvalidWeights = errors.New("behavior tree and state machine weights must sum to a positive value")
	// ErrUnknownMode 无法识别的控制模式
	ErrUnknownMode = errors.New("unknown control mode")
	// ErrTickInProgress 同一控制器并发 Tick
	ErrTickInProgress = errors.New("controller tick already in progress")
	// ErrAlreadyRunning 自驱循环已启动
	ErrAlreadyRunning = errors.New("controller loop already running")
)
