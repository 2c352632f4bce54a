package brain

import (
	"time"

	"github.com/cockroachdb/errors"
	"github.com/lk2023060901/xdooria-ai/pkg/config"
)

// Config 机器人行为参数
type Config struct {
	// Step 每次 tick 的移动距离
	Step float64 `mapstructure:"step" json:"step" yaml:"step" validate:"gt=0"`
	// Reach 攻击距离
	Reach  float64 `mapstructure:"reach" json:"reach" yaml:"reach" validate:"gt=0"`
	Damage int     `mapstructure:"damage" json:"damage" yaml:"damage" validate:"gt=0"`
	// RestAmount 休息时每次 tick 恢复的血量
	RestAmount int `mapstructure:"rest_amount" json:"rest_amount" yaml:"rest_amount" validate:"gt=0"`
	// FleeBelow 血量比例低于该值时逃跑
	FleeBelow    float64 `mapstructure:"flee_below" json:"flee_below" yaml:"flee_below" validate:"gt=0,lt=1"`
	WanderRadius float64 `mapstructure:"wander_radius" json:"wander_radius" yaml:"wander_radius" validate:"gt=0"`
	// WanderCooldown 两次游走的最小间隔
	WanderCooldown time.Duration `mapstructure:"wander_cooldown" json:"wander_cooldown" yaml:"wander_cooldown" validate:"gt=0"`
	// HuntTimeout 单次狩猎的时限
	HuntTimeout time.Duration `mapstructure:"hunt_timeout" json:"hunt_timeout" yaml:"hunt_timeout" validate:"gt=0"`
	// Prey 优先狩猎的怪物种类，为空表示任意
	Prey string `mapstructure:"prey" json:"prey" yaml:"prey"`
}

// DefaultConfig 默认配置
func DefaultConfig() *Config {
	return &Config{
		Step:           2,
		Reach:          1.5,
		Damage:         8,
		RestAmount:     5,
		FleeBelow:      0.3,
		WanderRadius:   5,
		WanderCooldown: time.Second,
		HuntTimeout:    30 * time.Second,
	}
}

var validate = config.NewValidator()

// Validate 校验配置
func (c *Config) Validate() error {
	if c == nil {
		return config.ErrNilConfig
	}
	return validate.Validate(c)
}

func mergeConfig(cfg *Config) (*Config, error) {
	merged, err := config.MergeConfig(DefaultConfig(), cfg)
	if err != nil {
		return nil, errors.Wrap(err, "merge brain config")
	}
	if err := merged.Validate(); err != nil {
		return nil, errors.Wrap(err, "validate brain config")
	}
	return merged, nil
}
