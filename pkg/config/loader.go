package config

import (
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
)

// decodeHook 在 viper 默认钩子之外支持 encoding.TextUnmarshaler 字段
var decodeHook = viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
	mapstructure.StringToTimeDurationHookFunc(),
	mapstructure.StringToSliceHookFunc(","),
	mapstructure.TextUnmarshallerHookFunc(),
))

// Loader 一次性配置加载器
type Loader struct {
	viper     *viper.Viper
	envPrefix string
}

// NewLoader 创建配置加载器，envPrefix 为空时使用 DefaultEnvPrefix
func NewLoader(envPrefix string) *Loader {
	if envPrefix == "" {
		envPrefix = DefaultEnvPrefix
	}
	return &Loader{viper: viper.New(), envPrefix: envPrefix}
}

// LoadFile 加载配置文件，configType 为 "yaml" 或 "json"
func (l *Loader) LoadFile(configPath string, configType string) error {
	l.viper.SetConfigFile(configPath)
	l.viper.SetConfigType(configType)

	l.viper.SetEnvPrefix(l.envPrefix)
	l.viper.AutomaticEnv()
	l.viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := l.viper.ReadInConfig(); err != nil {
		return errors.Wrapf(err, "read config file %s", configPath)
	}
	return nil
}

// Unmarshal 解析到结构体，key 为空时解析整个文件
func (l *Loader) Unmarshal(key string, target any) error {
	if key == "" {
		if err := l.viper.Unmarshal(target, decodeHook); err != nil {
			return errors.Wrap(err, "unmarshal config")
		}
		return nil
	}
	if err := l.viper.UnmarshalKey(key, target, decodeHook); err != nil {
		return errors.Wrapf(err, "unmarshal key %s", key)
	}
	return nil
}
