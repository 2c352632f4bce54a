package actions

import "github.com/lk2023060901/xdooria-ai/pkg/behavior/bt"

// homeReach 回家判定距离
const homeReach = 0.5

// Wander 随机游走
func Wander(id string, radius float64) *bt.Action {
	return bt.NewAction(id, func(ctx *bt.Context) (bt.Status, error) {
		robotID, w, err := bind(ctx)
		if err != nil {
			return bt.StatusFailure, err
		}
		if _, err := w.Wander(robotID, radius); err != nil {
			return bt.StatusFailure, err
		}
		return bt.StatusSuccess, nil
	})
}

// Retreat 撤回出生点
func Retreat(id string, step float64) *bt.Action {
	return bt.NewAction(id, func(ctx *bt.Context) (bt.Status, error) {
		robotID, w, err := bind(ctx)
		if err != nil {
			return bt.StatusFailure, err
		}
		r, ok := w.Robot(robotID)
		if !ok {
			return bt.StatusFailure, ErrBadContext
		}
		arrived, err := w.MoveToward(robotID, r.Home, step, homeReach)
		if err != nil {
			return bt.StatusFailure, err
		}
		if arrived {
			return bt.StatusSuccess, nil
		}
		return bt.StatusRunning, nil
	})
}

// Rest 每次 tick 恢复 amount 点血量，满血后成功
func Rest(id string, amount int) *bt.Action {
	return bt.NewAction(id, func(ctx *bt.Context) (bt.Status, error) {
		robotID, w, err := bind(ctx)
		if err != nil {
			return bt.StatusFailure, err
		}
		full, err := w.Rest(robotID, amount)
		if err != nil {
			return bt.StatusFailure, err
		}
		if full {
			return bt.StatusSuccess, nil
		}
		return bt.StatusRunning, nil
	})
}
