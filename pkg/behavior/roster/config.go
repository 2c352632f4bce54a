package roster

import (
	"time"

	"github.com/cockroachdb/errors"
	"github.com/lk2023060901/xdooria-ai/pkg/config"
)

// Config 花名册配置
type Config struct {
	// PoolSize 同时 tick 的智能体上限
	PoolSize int `mapstructure:"pool_size" json:"pool_size" yaml:"pool_size" validate:"gte=1"`
	// ExpiryDuration 空闲 worker 的回收间隔
	ExpiryDuration time.Duration `mapstructure:"expiry_duration" json:"expiry_duration" yaml:"expiry_duration" validate:"gt=0"`
	// TurnInterval Run 驱动回合的间隔
	TurnInterval time.Duration `mapstructure:"turn_interval" json:"turn_interval" yaml:"turn_interval" validate:"gt=0"`
}

// DefaultConfig 默认配置
func DefaultConfig() *Config {
	return &Config{
		PoolSize:       64,
		ExpiryDuration: 10 * time.Second,
		TurnInterval:   100 * time.Millisecond,
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
		return nil, errors.Wrap(err, "merge roster config")
	}
	if err := merged.Validate(); err != nil {
		return nil, errors.Wrap(err, "validate roster config")
	}
	return merged, nil
}
