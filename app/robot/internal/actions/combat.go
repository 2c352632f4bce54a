package actions

import (
	"github.com/cockroachdb/errors"

	"github.com/lk2023060901/xdooria-ai/app/robot/internal/world"
	"github.com/lk2023060901/xdooria-ai/pkg/behavior/bt"
)

// FindMonster 锁定最近的怪物，kind 为空表示任意种类
func FindMonster(id, kind string) *bt.Action {
	return bt.NewAction(id, func(ctx *bt.Context) (bt.Status, error) {
		robotID, w, err := bind(ctx)
		if err != nil {
			return bt.StatusFailure, err
		}
		m, ok := w.Nearest(robotID, kind)
		if !ok {
			ctx.Blackboard.Delete(KeyTarget)
			return bt.StatusFailure, nil
		}
		ctx.Blackboard.Set(KeyTarget, m.ID)
		return bt.StatusSuccess, nil
	})
}

// MoveToTarget 每次 tick 向目标移动 step，进入 reach 后成功
func MoveToTarget(id string, step, reach float64) *bt.Action {
	return bt.NewAction(id, func(ctx *bt.Context) (bt.Status, error) {
		robotID, w, err := bind(ctx)
		if err != nil {
			return bt.StatusFailure, err
		}
		monsterID, ok := target(ctx)
		if !ok {
			return bt.StatusFailure, nil
		}
		m, ok := w.Monster(monsterID)
		if !ok {
			ctx.Blackboard.Delete(KeyTarget)
			return bt.StatusFailure, nil
		}
		arrived, err := w.MoveToward(robotID, m.Pos, step, reach)
		if err != nil {
			return bt.StatusFailure, err
		}
		if arrived {
			return bt.StatusSuccess, nil
		}
		return bt.StatusRunning, nil
	})
}

// AttackTarget 攻击目标直到击杀
func AttackTarget(id string, damage int) *bt.Action {
	return bt.NewAction(id, func(ctx *bt.Context) (bt.Status, error) {
		robotID, w, err := bind(ctx)
		if err != nil {
			return bt.StatusFailure, err
		}
		monsterID, ok := target(ctx)
		if !ok {
			return bt.StatusFailure, nil
		}
		res, err := w.Attack(robotID, monsterID, damage)
		switch {
		case errors.Is(err, world.ErrMonsterGone):
			ctx.Blackboard.Delete(KeyTarget)
			return bt.StatusFailure, nil
		case err != nil:
			return bt.StatusFailure, err
		case res.Killed:
			ctx.Blackboard.Delete(KeyTarget)
			return bt.StatusSuccess, nil
		default:
			return bt.StatusRunning, nil
		}
	})
}

// PickupLoot 拾取掉落，拾取数量写入黑板
func PickupLoot(id string) *bt.Action {
	return bt.NewAction(id, func(ctx *bt.Context) (bt.Status, error) {
		robotID, w, err := bind(ctx)
		if err != nil {
			return bt.StatusFailure, err
		}
		n, err := w.Pickup(robotID)
		if err != nil {
			return bt.StatusFailure, err
		}
		ctx.Blackboard.Set(KeyPicked, n)
		return bt.StatusSuccess, nil
	})
}
