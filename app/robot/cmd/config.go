package main

import (
	"os"
	"path/filepath"

	"github.com/cockroachdb/errors"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/lk2023060901/xdooria-ai/app/robot/internal/brain"
	"github.com/lk2023060901/xdooria-ai/app/robot/internal/fault"
	"github.com/lk2023060901/xdooria-ai/app/robot/internal/metrics"
	"github.com/lk2023060901/xdooria-ai/app/robot/internal/world"
	"github.com/lk2023060901/xdooria-ai/pkg/behavior/composite"
	"github.com/lk2023060901/xdooria-ai/pkg/behavior/roster"
	"github.com/lk2023060901/xdooria-ai/pkg/config"
	"github.com/lk2023060901/xdooria-ai/pkg/logger"
	xotel "github.com/lk2023060901/xdooria-ai/pkg/otel"
	"github.com/lk2023060901/xdooria-ai/pkg/sentry"
)

// Config 机器人模拟配置
type Config struct {
	Log        logger.Config    `mapstructure:"log"`
	Controller composite.Config `mapstructure:"controller"`
	Roster     roster.Config    `mapstructure:"roster"`
	World      world.Config     `mapstructure:"world"`
	Brain      brain.Config     `mapstructure:"brain"`
	Metrics    metrics.Config   `mapstructure:"metrics"`
	Otel       xotel.Config     `mapstructure:"otel"`
	// Sentry DSN 为空时不上报故障
	Sentry sentry.Config `mapstructure:"sentry"`
	Fault  fault.Config  `mapstructure:"fault"`

	// Robots 机器人数量
	Robots   int            `mapstructure:"robots"`
	Schedule ScheduleConfig `mapstructure:"schedule"`
}

// ScheduleConfig 周期任务，cron 表达式
type ScheduleConfig struct {
	// Respawn 补齐怪物
	Respawn string `mapstructure:"respawn"`
	// Summary 输出运行摘要
	Summary string `mapstructure:"summary"`
}

func defaultConfig() *Config {
	return &Config{
		Log:        *logger.DefaultConfig(),
		Controller: *composite.DefaultConfig(),
		Roster:     *roster.DefaultConfig(),
		World:      *world.DefaultConfig(),
		Brain:      *brain.DefaultConfig(),
		Metrics:    *metrics.DefaultConfig(),
		Otel:       *xotel.DefaultConfig(),
		Sentry:     *sentry.DefaultConfig(),
		Fault:      *fault.DefaultConfig(),
		Robots:     8,
		Schedule: ScheduleConfig{
			Respawn: "@every 5s",
			Summary: "@every 10s",
		},
	}
}

var (
	configPath string
	robots     int
	logLevel   string
)

// loadConfig 优先级：命令行显式参数 > 环境变量 > 配置文件 > 默认值
func loadConfig() (*Config, string, error) {
	pflag.StringVarP(&configPath, "config", "c", "", "path to config file (default: robot.yaml next to the executable)")
	pflag.IntVarP(&robots, "robots", "n", 0, "number of robots, overrides the config file")
	pflag.StringVar(&logLevel, "log.level", "", "log level, overrides the config file")
	pflag.Parse()

	path := configPath
	if !pflag.CommandLine.Changed("config") {
		if env := os.Getenv(config.DefaultEnvPrefix + "_CONFIG"); env != "" {
			path = env
		} else {
			exe, err := os.Executable()
			if err != nil {
				return nil, "", errors.Wrap(err, "locate executable")
			}
			path = filepath.Join(filepath.Dir(exe), "robot.yaml")
		}
	}
	if _, err := os.Stat(path); err != nil {
		return nil, "", errors.Wrapf(err, "config file %s", path)
	}

	v := viper.New()
	if pflag.CommandLine.Changed("robots") {
		v.Set("robots", robots)
	}
	if pflag.CommandLine.Changed("log.level") {
		v.Set("log.level", logLevel)
	}

	mgr := config.NewManager(config.WithViper(v), config.WithEnvPrefix(config.DefaultEnvPrefix))
	if err := mgr.LoadFile(path); err != nil {
		return nil, "", err
	}
	cfg := defaultConfig()
	if err := mgr.Unmarshal(cfg); err != nil {
		return nil, "", err
	}
	if cfg.Robots <= 0 {
		return nil, "", errors.Newf("robots must be positive, got %d", cfg.Robots)
	}
	return cfg, path, nil
}
