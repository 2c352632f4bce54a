package actions

import (
	"github.com/cockroachdb/errors"

	"github.com/lk2023060901/xdooria-ai/app/robot/internal/world"
	"github.com/lk2023060901/xdooria-ai/pkg/behavior/bt"
)

// 黑板键，感知数据由控制器共享数据写入
const (
	KeyTarget  = "target"
	KeyHPRatio = "hp_ratio"
	KeyThreat  = "threat"
	KeyDrops   = "drops"
	KeyPicked  = "picked"
)

// ErrBadContext tick 上下文中没有机器人 id 或世界
var ErrBadContext = errors.New("tick context carries no robot")

// bind 从上下文取出机器人 id 和世界，Agent 为 id，World 为 *world.World
func bind(ctx *bt.Context) (string, *world.World, error) {
	id, ok := ctx.Agent.(string)
	w, wok := ctx.World.(*world.World)
	if !ok || !wok || w == nil {
		return "", nil, ErrBadContext
	}
	return id, w, nil
}

func target(ctx *bt.Context) (int64, bool) {
	return ctx.Blackboard.GetInt64(KeyTarget)
}

// InStance 机器人处于指定姿态
func InStance(id, stance string) *bt.Condition {
	return bt.NewCondition(id, func(ctx *bt.Context) bool {
		robotID, w, err := bind(ctx)
		if err != nil {
			return false
		}
		r, ok := w.Robot(robotID)
		return ok && r.Stance == stance
	})
}

// HasDrops 有待拾取的掉落
func HasDrops(id string) (*bt.Condition, error) {
	return bt.NewExprCondition(id, KeyDrops+" > 0")
}
