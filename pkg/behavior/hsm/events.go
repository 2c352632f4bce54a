package hsm

import "time"

// StateEvent 状态进入/退出事件
type StateEvent struct {
	MachineID string
	State     *State
	Timestamp time.Time
}

// TransitionEvent 转移执行事件，显式 TransitionTo 的 TransitionID 为空
type TransitionEvent struct {
	MachineID    string
	TransitionID string
	From         string
	To           string
	Timestamp    time.Time
}

// ErrorEvent 状态机运行故障
type ErrorEvent struct {
	MachineID string
	Component string
	Op        string
	Err       error
	Timestamp time.Time
}
