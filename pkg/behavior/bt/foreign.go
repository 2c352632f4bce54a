package bt

import (
	"github.com/cockroachdb/errors"
	gobt "github.com/joeycumines/go-behaviortree"
)

// NewForeignAction 把 go-behaviortree 子树包装成动作节点
// 子树每次 Execute 被 tick 一次，状态一一映射。
func NewForeignAction(id string, node gobt.Node) *Action {
	return NewAction(id, func(ctx *Context) (Status, error) {
		if node == nil {
			return StatusFailure, nil
		}
		status, err := node.Tick()
		if err != nil {
			return StatusFailure, err
		}
		switch status {
		case gobt.Success:
			return StatusSuccess, nil
		case gobt.Failure:
			return StatusFailure, nil
		case gobt.Running:
			return StatusRunning, nil
		default:
			return StatusFailure, errors.Newf("foreign node returned unknown status %d", int(status))
		}
	})
}
