package otel

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// TracerName 引擎组件使用的 instrumentation 名称
const TracerName = "github.com/lk2023060901/xdooria-ai/pkg/behavior"

// 行为引擎 span 属性键
const (
	AgentIDKey    = attribute.Key("behavior.agent_id")
	ModeKey       = attribute.Key("behavior.mode")
	SuccessKey    = attribute.Key("behavior.success")
	ConflictKey   = attribute.Key("behavior.conflict_resolved")
	TreeStatusKey = attribute.Key("behavior.tree_status")
	StatesKey     = attribute.Key("behavior.active_states")
)

// Tracer 获取全局 Tracer
func Tracer(name string, opts ...trace.TracerOption) trace.Tracer {
	return otel.Tracer(name, opts...)
}
