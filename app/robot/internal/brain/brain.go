package brain

import (
	"context"
	_ "embed"
	"math/rand/v2"

	"github.com/cespare/xxhash/v2"
	"github.com/cockroachdb/errors"
	gobt "github.com/joeycumines/go-behaviortree"

	"github.com/lk2023060901/xdooria-ai/app/robot/internal/actions"
	"github.com/lk2023060901/xdooria-ai/app/robot/internal/world"
	"github.com/lk2023060901/xdooria-ai/pkg/behavior/bt"
	"github.com/lk2023060901/xdooria-ai/pkg/behavior/composite"
	"github.com/lk2023060901/xdooria-ai/pkg/behavior/hsm"
)

//go:embed mind.yaml
var mindDefinition []byte

const (
	// keyFleeBelow 逃跑阈值，供状态机守卫读取
	keyFleeBelow = "flee_below"
	// KeyRecoveries 状态机上下文中记录的脱险次数
	KeyRecoveries = "recoveries"
)

// Brain 单个机器人的决策组合：行为树负责行动，状态机负责姿态
type Brain struct {
	id    string
	world *world.World
	cfg   *Config
	ctrl  *composite.Controller
}

// New 为机器人构建行为树和状态机并装配到控制器
// ctrlCfg 为 nil 时使用控制器默认配置，opts 追加到控制器选项之后。
func New(id string, w *world.World, cfg *Config, ctrlCfg *composite.Config, opts ...composite.Option) (*Brain, error) {
	merged, err := mergeConfig(cfg)
	if err != nil {
		return nil, err
	}
	b := &Brain{id: id, world: w, cfg: merged}

	root, err := b.buildTree()
	if err != nil {
		return nil, err
	}
	machine, err := b.buildMachine()
	if err != nil {
		return nil, err
	}

	base := []composite.Option{
		composite.WithAgentID(id),
		composite.WithBehaviorTree(bt.NewTree(bt.WithRoot(root))),
		composite.WithStateMachine(machine),
	}
	ctrl, err := composite.New(ctrlCfg, append(base, opts...)...)
	if err != nil {
		return nil, errors.Wrapf(err, "controller for robot %s", id)
	}
	b.ctrl = ctrl
	ctrl.SetSharedData(keyFleeBelow, merged.FleeBelow)
	return b, nil
}

// ID 机器人 id
func (b *Brain) ID() string { return b.id }

// Controller 返回控制器
func (b *Brain) Controller() *composite.Controller { return b.ctrl }

// Activate 以机器人 id 为 agent、世界为 world 激活控制器
func (b *Brain) Activate(ctx context.Context) error {
	if err := b.Sense(); err != nil {
		return err
	}
	return b.ctrl.Activate(ctx, b.id, b.world)
}

// Sense 把世界感知写入共享数据，同时对行为树黑板和状态机上下文可见
func (b *Brain) Sense() error {
	s, err := b.world.Sense(b.id)
	if err != nil {
		return err
	}
	b.ctrl.SetSharedData(actions.KeyHPRatio, s.HPRatio)
	b.ctrl.SetSharedData(actions.KeyThreat, s.Threat)
	b.ctrl.SetSharedData(actions.KeyDrops, s.Drops)
	return nil
}

func (b *Brain) buildTree() (bt.Node, error) {
	cfg := b.cfg
	hasDrops, err := actions.HasDrops("has_drops")
	if err != nil {
		return nil, err
	}

	// 游走和原地观望按 3:1 随机选择
	rng := rand.New(rand.NewPCG(xxhash.Sum64String(b.id), b.world.Config().Seed))
	idle, err := bt.NewWeighted("idle", []float64{3, 1}, rng,
		actions.Wander("wander", cfg.WanderRadius),
		b.watch("watch"),
	)
	if err != nil {
		return nil, errors.Wrap(err, "build idle node")
	}

	return bt.NewSelector("root",
		bt.NewSequence("survive",
			actions.InStance("is_fleeing", world.StanceFleeing),
			actions.Retreat("retreat", cfg.Step),
			actions.Rest("rest", cfg.RestAmount),
		),
		bt.NewSequence("collect",
			hasDrops,
			actions.PickupLoot("pickup"),
		),
		bt.NewSequence("hunt",
			actions.InStance("is_hunting", world.StanceHunting),
			bt.NewTimeout("hunt_limit", cfg.HuntTimeout, bt.NewSequence("engage",
				actions.FindMonster("find", cfg.Prey),
				actions.MoveToTarget("approach", cfg.Step, cfg.Reach),
				actions.AttackTarget("attack", cfg.Damage),
			)),
		),
		bt.NewCooldown("patrol", cfg.WanderCooldown, idle),
	), nil
}

// watch 原地观望，附近没有威胁时成功
func (b *Brain) watch(id string) bt.Node {
	threatened := func([]gobt.Node) (gobt.Status, error) {
		s, err := b.world.Sense(b.id)
		if err != nil {
			return gobt.Failure, err
		}
		if s.Threat {
			return gobt.Success, nil
		}
		return gobt.Failure, nil
	}
	return bt.NewForeignAction(id, gobt.New(gobt.Not(threatened)))
}

func (b *Brain) buildMachine() (*hsm.Machine, error) {
	def, err := hsm.ParseDefinition(mindDefinition)
	if err != nil {
		return nil, err
	}

	hooks := hsm.Hooks{
		States: map[string]hsm.StateHooks{
			world.StanceCalm:    {OnEnter: b.stance(world.StanceCalm)},
			world.StanceHunting: {OnEnter: b.stance(world.StanceHunting)},
			world.StanceFleeing: {OnEnter: b.stance(world.StanceFleeing)},
		},
		Actions: map[string]hsm.Action{
			"count_recovery": func(_ context.Context, mc *hsm.Context) error {
				n, _ := mc.GetInt(KeyRecoveries)
				mc.Set(KeyRecoveries, n+1)
				return nil
			},
		},
	}
	m, err := def.Build(hooks)
	if err != nil {
		return nil, errors.Wrapf(err, "state machine for robot %s", b.id)
	}
	return m, nil
}

// stance 进入状态时把姿态写回世界
func (b *Brain) stance(stance string) hsm.Hook {
	return func(_ context.Context, mc *hsm.Context) error {
		w, ok := mc.World.(*world.World)
		if !ok {
			return errors.Wrapf(actions.ErrBadContext, "enter %s", stance)
		}
		id, _ := mc.Agent.(string)
		return w.SetStance(id, stance)
	}
}
