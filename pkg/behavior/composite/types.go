package composite

import (
	"context"
	"time"

	"github.com/lk2023060901/xdooria-ai/pkg/behavior/bt"
)

// Source 最终决策的来源
type Source string

const (
	SourceNone         Source = "none"
	SourceBehaviorTree Source = "behavior_tree"
	SourceStateMachine Source = "state_machine"
	SourceResolver     Source = "resolver"
)

// Decision 调和后的最终决策
type Decision struct {
	Source Source
	Status bt.Status
	States []string
	// Value 决策值：行为树为 bt.Status，状态机为进入的状态 id 列表，自定义解析器可返回任意值
	Value interface{}
}

// Factors 决策因子
type Factors struct {
	BehaviorTree float64
	StateMachine float64
	External     float64
	Decision     Decision
}

// Result 单次 tick 的执行结果，发生故障时 Success 为 false
type Result struct {
	ID      string
	AgentID string
	Success bool
	Err     error
	Mode    Mode

	RanBehaviorTree bool
	RanStateMachine bool
	TreeStatus      bt.Status
	Transitions     []string
	ActiveStates    []string

	ConflictResolved bool
	Factors          Factors

	Timestamp time.Time
	Duration  time.Duration
}

// Context 传给冲突解析器的执行上下文
type Context struct {
	context.Context

	AgentID   string
	Agent     interface{}
	World     interface{}
	DeltaTime time.Duration
	Timestamp time.Time
	Shared    map[string]interface{}
}

// Resolver 自定义冲突解析器，安装后替代内置策略
type Resolver interface {
	Resolve(ctx *Context, treeStatus bt.Status, transitions []string) (Decision, error)
}

// ResolverFunc 函数形式的 Resolver
type ResolverFunc func(ctx *Context, treeStatus bt.Status, transitions []string) (Decision, error)

func (f ResolverFunc) Resolve(ctx *Context, treeStatus bt.Status, transitions []string) (Decision, error) {
	return f(ctx, treeStatus, transitions)
}

// Recorder 接收每次 tick 的结果，用于指标采集
type Recorder interface {
	ObserveTick(res *Result)
}

// FaultReporter 上报运行期故障
type FaultReporter interface {
	ReportFault(ctx context.Context, err error, tags map[string]string)
}

// ErrorEvent 控制器故障事件
type ErrorEvent struct {
	ControllerID string
	AgentID      string
	Component    string
	Err          error
	Timestamp    time.Time
}

// Metrics 控制器累计指标
type Metrics struct {
	TotalTicks        uint64
	SuccessfulTicks   uint64
	FailedTicks       uint64
	ConflictsResolved uint64
	BehaviorTreeRuns  uint64
	StateMachineRuns  uint64
	AverageLatency    time.Duration
	LastLatency       time.Duration
}

// Status 控制器状态快照
type Status struct {
	ID              string
	AgentID         string
	Mode            Mode
	Strategy        Strategy
	Running         bool
	HasBehaviorTree bool
	HasStateMachine bool
	// TreeStatus 最近一次 tick 的行为树状态
	TreeStatus      bt.Status
	ActiveStates    []string
	SharedKeys      int
	Ticks           uint64
	LastTick        time.Time
}
