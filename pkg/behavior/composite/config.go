package composite

import (
	"time"

	"github.com/cockroachdb/errors"
	"github.com/lk2023060901/xdooria-ai/pkg/config"
)

// Mode 控制模式
type Mode string

const (
	ModeBehaviorTreeOnly Mode = "behavior_tree_only"
	ModeStateMachineOnly Mode = "state_machine_only"
	ModeHybridPrimaryBT  Mode = "hybrid_primary_bt"
	ModeHybridPrimarySM  Mode = "hybrid_primary_sm"
	ModeCollaborative    Mode = "collaborative"
)

// needsTree 模式是否执行行为树
func (m Mode) needsTree() bool { return m != ModeStateMachineOnly }

// needsMachine 模式是否执行状态机
func (m Mode) needsMachine() bool { return m != ModeBehaviorTreeOnly }

// Strategy 冲突解决策略
type Strategy string

const (
	StrategyBTPriority Strategy = "bt_priority"
	StrategySMPriority Strategy = "sm_priority"
	StrategyWeighted   Strategy = "weighted"
)

// Weights 各决策来源的权重
// External 留给外部决策层，只透传到 Factors，不参与内置策略。
type Weights struct {
	BehaviorTree float64 `mapstructure:"behavior_tree" json:"behavior_tree" yaml:"behavior_tree" validate:"gte=0"`
	StateMachine float64 `mapstructure:"state_machine" json:"state_machine" yaml:"state_machine" validate:"gte=0"`
	External     float64 `mapstructure:"external" json:"external" yaml:"external" validate:"gte=0"`
}

// Config 控制器配置
type Config struct {
	Mode               Mode          `mapstructure:"mode" json:"mode" yaml:"mode" validate:"required,oneof=behavior_tree_only state_machine_only hybrid_primary_bt hybrid_primary_sm collaborative"`
	ConflictResolution Strategy      `mapstructure:"conflict_resolution" json:"conflict_resolution" yaml:"conflict_resolution" validate:"required,oneof=bt_priority sm_priority weighted"`
	Weights            *Weights      `mapstructure:"weights" json:"weights" yaml:"weights"`
	TickInterval       time.Duration `mapstructure:"tick_interval" json:"tick_interval" yaml:"tick_interval" validate:"gt=0"`
	HistorySize        int           `mapstructure:"history_size" json:"history_size" yaml:"history_size" validate:"gte=1"`
}

// DefaultConfig 默认配置
func DefaultConfig() *Config {
	return &Config{
		Mode:               ModeHybridPrimaryBT,
		ConflictResolution: StrategyBTPriority,
		Weights: &Weights{
			BehaviorTree: 0.5,
			StateMachine: 0.5,
		},
		TickInterval: 100 * time.Millisecond,
		HistorySize:  100,
	}
}

var validate = config.NewValidator()

// Validate 校验配置字段
// 权重之和是否为正由 Controller.ValidateConfiguration 检查。
func (c *Config) Validate() error {
	if c == nil {
		return config.ErrNilConfig
	}
	return validate.Validate(c)
}

// weights 当前权重，未设置时为零值
func (c *Config) weights() Weights {
	if c.Weights == nil {
		return Weights{}
	}
	return *c.Weights
}

// clone 复制配置，权重不与原配置共享
func (c *Config) clone() Config {
	out := *c
	if c.Weights != nil {
		w := *c.Weights
		out.Weights = &w
	}
	return out
}

// normalized 行为树与状态机的归一化权重
func (w Weights) normalized() (float64, float64) {
	total := w.BehaviorTree + w.StateMachine
	if total <= 0 {
		return 0, 0
	}
	return w.BehaviorTree / total, w.StateMachine / total
}

// mergeConfig 以默认值补全 cfg
// 设置了 Weights 时整体采用调用方的取值，零权重同样有效。
func mergeConfig(cfg *Config) (*Config, error) {
	var weights *Weights
	if cfg != nil && cfg.Weights != nil {
		w := *cfg.Weights
		weights = &w
	}
	merged, err := config.MergeConfig(DefaultConfig(), cfg)
	if err != nil {
		return nil, errors.Wrap(err, "merge controller config")
	}
	if weights != nil {
		merged.Weights = weights
	}
	return merged, nil
}
