package hsm

import (
	"github.com/cockroachdb/errors"
	"github.com/expr-lang/expr"
)

// 表达式中可用的保留变量，会覆盖同名的上下文键
const (
	ExprVarDelta = "delta"
	ExprVarNow   = "now"
	ExprVarAgent = "agent"
	ExprVarWorld = "world"
)

// ExprGuard 编译布尔表达式守卫，例如 "ready && hp > 30"
// 求值出错（例如类型不匹配）时返回错误，由 Tick 作为故障上报。
func ExprGuard(source string) (Guard, error) {
	program, err := expr.Compile(source, expr.AsBool(), expr.AllowUndefinedVariables())
	if err != nil {
		return nil, errors.Wrapf(err, "compile guard %q", source)
	}

	return func(mc *Context) (bool, error) {
		env := mc.Snapshot()
		env[ExprVarDelta] = mc.DeltaTime.Seconds()
		env[ExprVarNow] = mc.Timestamp
		env[ExprVarAgent] = mc.Agent
		env[ExprVarWorld] = mc.World

		out, err := expr.Run(program, env)
		if err != nil {
			return false, errors.Wrapf(err, "evaluate guard %q", source)
		}
		ok, _ := out.(bool)
		return ok, nil
	}, nil
}
