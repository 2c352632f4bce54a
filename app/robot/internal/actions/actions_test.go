package actions

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lk2023060901/xdooria-ai/app/robot/internal/world"
	"github.com/lk2023060901/xdooria-ai/pkg/behavior/bt"
)

const bot = "bot"

func newWorld(t *testing.T, cfg *world.Config) *world.World {
	t.Helper()
	w, err := world.New(cfg)
	require.NoError(t, err)
	_, err = w.AddRobot(bot)
	require.NoError(t, err)
	return w
}

// tickUntil 反复 tick 直到不再 RUNNING
func tickUntil(t *testing.T, tree *bt.Tree, w *world.World, limit int) bt.Status {
	t.Helper()
	for i := 0; i < limit; i++ {
		status, err := tree.Tick(context.Background(), bot, w, 0)
		require.NoError(t, err)
		if status != bt.StatusRunning {
			return status
		}
	}
	t.Fatalf("tree still running after %d ticks", limit)
	return bt.StatusInvalid
}

func TestHunt(t *testing.T) {
	w := newWorld(t, &world.Config{Monsters: 1, MonsterHP: 10, MonsterDamage: 1, RobotHP: 50})
	tree := bt.NewTree(bt.WithRoot(bt.NewSequence("hunt",
		FindMonster("find", ""),
		MoveToTarget("approach", 5, 1),
		AttackTarget("attack", 4),
		PickupLoot("loot"),
	)))

	assert.Equal(t, bt.StatusSuccess, tickUntil(t, tree, w, 100))

	r, _ := w.Robot(bot)
	assert.Equal(t, 1, r.Kills)
	assert.Equal(t, 1, r.Loot)
	assert.Equal(t, 48, r.HP)
	picked, ok := tree.Blackboard().GetInt(KeyPicked)
	assert.True(t, ok)
	assert.Equal(t, 1, picked)
	assert.False(t, tree.Blackboard().Has(KeyTarget))

	// 场上没有怪物时找不到目标
	status, err := tree.Tick(context.Background(), bot, w, 0)
	require.NoError(t, err)
	assert.Equal(t, bt.StatusFailure, status)
}

func TestAttackTarget_GoneMonster(t *testing.T) {
	w := newWorld(t, &world.Config{Monsters: 1})
	tree := bt.NewTree(bt.WithRoot(AttackTarget("attack", 1)))
	tree.Blackboard().Set(KeyTarget, int64(999))

	status, err := tree.Tick(context.Background(), bot, w, 0)
	require.NoError(t, err)
	assert.Equal(t, bt.StatusFailure, status)
	assert.False(t, tree.Blackboard().Has(KeyTarget))
}

func TestRetreatAndRest(t *testing.T) {
	w := newWorld(t, &world.Config{Monsters: 1, MonsterHP: 1000, MonsterDamage: 10, RobotHP: 30})
	m, ok := w.Nearest(bot, "")
	require.True(t, ok)
	_, err := w.Attack(bot, m.ID, 1)
	require.NoError(t, err)
	_, err = w.MoveToward(bot, m.Pos, 3, 0)
	require.NoError(t, err)

	tree := bt.NewTree(bt.WithRoot(bt.NewSequence("flee",
		Retreat("retreat", 2),
		Rest("rest", 3),
	)))
	assert.Equal(t, bt.StatusSuccess, tickUntil(t, tree, w, 200))

	r, _ := w.Robot(bot)
	assert.Equal(t, r.MaxHP, r.HP)
	assert.LessOrEqual(t, r.Pos.Dist(r.Home), 0.5)
}

func TestConditions(t *testing.T) {
	w := newWorld(t, nil)
	require.NoError(t, w.SetStance(bot, world.StanceHunting))

	hasDrops, err := HasDrops("has_drops")
	require.NoError(t, err)

	tests := []struct {
		name  string
		node  bt.Node
		drops int
		want  bt.Status
	}{
		{name: "stance match", node: InStance("hunting", world.StanceHunting), want: bt.StatusSuccess},
		{name: "stance mismatch", node: InStance("fleeing", world.StanceFleeing), want: bt.StatusFailure},
		{name: "no drops", node: hasDrops, drops: 0, want: bt.StatusFailure},
		{name: "drops", node: hasDrops, drops: 2, want: bt.StatusSuccess},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bb := bt.NewBlackboard()
			bb.Set(KeyDrops, tt.drops)
			ctx := bt.NewContext(context.Background(), bb, time.Now())
			ctx.Agent, ctx.World = bot, w

			status, err := tt.node.Execute(ctx)
			require.NoError(t, err)
			assert.Equal(t, tt.want, status)
		})
	}
}

func TestBadContext(t *testing.T) {
	tree := bt.NewTree(bt.WithRoot(Wander("wander", 1)))
	_, err := tree.Tick(context.Background(), 42, nil, 0)
	assert.ErrorIs(t, err, ErrBadContext)

	cond := InStance("calm", world.StanceCalm)
	status, err := cond.Execute(bt.NewContext(context.Background(), nil, time.Now()))
	require.NoError(t, err)
	assert.Equal(t, bt.StatusFailure, status)
}
