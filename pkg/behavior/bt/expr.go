package bt

import (
	"github.com/cockroachdb/errors"
	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
)

// 表达式中可用的保留变量，会覆盖同名的黑板键
const (
	ExprVarDelta = "delta"
	ExprVarNow   = "now"
	ExprVarAgent = "agent"
	ExprVarWorld = "world"
)

// CompileExpr 编译布尔表达式，未定义的变量求值为 nil
func CompileExpr(source string) (*vm.Program, error) {
	program, err := expr.Compile(source, expr.AsBool(), expr.AllowUndefinedVariables())
	if err != nil {
		return nil, errors.Wrapf(err, "compile expression %q", source)
	}
	return program, nil
}

// NewExprCondition 创建表达式条件节点
// 表达式在黑板快照上求值，例如 "hp < 30 && enemy_visible"。
func NewExprCondition(id, source string) (*Condition, error) {
	program, err := CompileExpr(source)
	if err != nil {
		return nil, err
	}

	return newCondition(id, func(ctx *Context) (bool, error) {
		env := ctx.Blackboard.Snapshot()
		env[ExprVarDelta] = ctx.DeltaTime.Seconds()
		env[ExprVarNow] = ctx.Timestamp
		env[ExprVarAgent] = ctx.Agent
		env[ExprVarWorld] = ctx.World

		out, err := expr.Run(program, env)
		if err != nil {
			return false, errors.Wrapf(err, "evaluate %q", source)
		}
		ok, _ := out.(bool)
		return ok, nil
	}), nil
}
