package bt

// Status 节点执行状态
type Status int

const (
	StatusInvalid Status = iota
	StatusSuccess
	StatusFailure
	StatusRunning
)

func (s Status) String() string {
	switch s {
	case StatusSuccess:
		return "SUCCESS"
	case StatusFailure:
		return "FAILURE"
	case StatusRunning:
		return "RUNNING"
	default:
		return "INVALID"
	}
}

// Kind 节点类型
type Kind int

const (
	KindSequence Kind = iota + 1
	KindSelector
	KindParallel
	KindInverter
	KindRepeater
	KindRetry
	KindTimeout
	KindCooldown
	KindUntilSuccess
	KindUntilFailure
	KindDelay
	KindRandom
	KindWeighted
	KindAction
	KindCondition
)

var kindNames = map[Kind]string{
	KindSequence:     "sequence",
	KindSelector:     "selector",
	KindParallel:     "parallel",
	KindInverter:     "inverter",
	KindRepeater:     "repeater",
	KindRetry:        "retry",
	KindTimeout:      "timeout",
	KindCooldown:     "cooldown",
	KindUntilSuccess: "until_success",
	KindUntilFailure: "until_failure",
	KindDelay:        "delay",
	KindRandom:       "random",
	KindWeighted:     "weighted",
	KindAction:       "action",
	KindCondition:    "condition",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return "unknown"
}

// arity 子节点数量上限，-1 表示不限
func (k Kind) arity() int {
	switch k {
	case KindSequence, KindSelector, KindParallel, KindRandom, KindWeighted:
		return -1
	case KindAction, KindCondition:
		return 0
	default:
		return 1
	}
}
