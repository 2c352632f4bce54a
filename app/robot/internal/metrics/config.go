package metrics

import (
	"time"

	"github.com/cockroachdb/errors"

	"github.com/lk2023060901/xdooria-ai/pkg/config"
	"github.com/lk2023060901/xdooria-ai/pkg/metrics/sliding"
)

// ErrServerClosed 服务已关闭
var ErrServerClosed = errors.New("metrics server closed")

// Config 指标配置
// 由调用方先填充 DefaultConfig 再解析配置文件，布尔开关可以被关闭。
type Config struct {
	// Namespace 指标名前缀
	Namespace string `mapstructure:"namespace" json:"namespace" yaml:"namespace" validate:"required"`

	HTTPServer HTTPServerConfig `mapstructure:"http_server" json:"http_server" yaml:"http_server"`

	EnableGoCollector      bool `mapstructure:"enable_go_collector" json:"enable_go_collector" yaml:"enable_go_collector"`
	EnableProcessCollector bool `mapstructure:"enable_process_collector" json:"enable_process_collector" yaml:"enable_process_collector"`
	// EnableSystemCollector 通过 gopsutil 采集进程和主机的 CPU、内存
	EnableSystemCollector bool `mapstructure:"enable_system_collector" json:"enable_system_collector" yaml:"enable_system_collector"`

	// Window 最近一段时间的 tick 成功率和延迟
	Window sliding.WindowConfig `mapstructure:"window" json:"window" yaml:"window"`
}

// HTTPServerConfig 指标 HTTP 服务配置
type HTTPServerConfig struct {
	Enabled bool          `mapstructure:"enabled" json:"enabled" yaml:"enabled"`
	Addr    string        `mapstructure:"addr" json:"addr" yaml:"addr" validate:"required_if=Enabled true"`
	Path    string        `mapstructure:"path" json:"path" yaml:"path" validate:"required_if=Enabled true"`
	Timeout time.Duration `mapstructure:"timeout" json:"timeout" yaml:"timeout" validate:"gte=0"`
}

// DefaultConfig 默认配置
func DefaultConfig() *Config {
	return &Config{
		Namespace: "robot",
		HTTPServer: HTTPServerConfig{
			Enabled: true,
			Addr:    ":9090",
			Path:    "/metrics",
			Timeout: 10 * time.Second,
		},
		EnableGoCollector:      true,
		EnableProcessCollector: true,
		EnableSystemCollector:  true,
		Window:                 *sliding.DefaultWindowConfig(),
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
