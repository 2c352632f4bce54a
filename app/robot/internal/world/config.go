package world

import (
	"github.com/cockroachdb/errors"
	"github.com/lk2023060901/xdooria-ai/pkg/config"
)

// Config 模拟世界配置
type Config struct {
	// Size 地图边长，坐标范围 [0, Size)
	Size float64 `mapstructure:"size" json:"size" yaml:"size" validate:"gt=0"`
	// Monsters 场上怪物数量上限，Respawn 补齐到该值
	Monsters int `mapstructure:"monsters" json:"monsters" yaml:"monsters" validate:"gte=0"`
	// MonsterKinds 怪物种类，按轮转分配
	MonsterKinds []string `mapstructure:"monster_kinds" json:"monster_kinds" yaml:"monster_kinds" validate:"min=1,dive,required"`
	MonsterHP    int      `mapstructure:"monster_hp" json:"monster_hp" yaml:"monster_hp" validate:"gt=0"`
	// MonsterDamage 每次被攻击时怪物的反击伤害
	MonsterDamage int `mapstructure:"monster_damage" json:"monster_damage" yaml:"monster_damage" validate:"gte=0"`
	RobotHP       int `mapstructure:"robot_hp" json:"robot_hp" yaml:"robot_hp" validate:"gt=0"`
	// AggroRadius 怪物进入该半径视为威胁
	AggroRadius float64 `mapstructure:"aggro_radius" json:"aggro_radius" yaml:"aggro_radius" validate:"gt=0"`
	// Seed 随机种子，相同种子和机器人 id 得到相同的世界
	Seed uint64 `mapstructure:"seed" json:"seed" yaml:"seed"`
}

// DefaultConfig 默认配置
func DefaultConfig() *Config {
	return &Config{
		Size:          100,
		Monsters:      20,
		MonsterKinds:  []string{"slime", "wolf", "goblin"},
		MonsterHP:     30,
		MonsterDamage: 4,
		RobotHP:       100,
		AggroRadius:   15,
		Seed:          1,
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
		return nil, errors.Wrap(err, "merge world config")
	}
	if err := merged.Validate(); err != nil {
		return nil, errors.Wrap(err, "validate world config")
	}
	return merged, nil
}
