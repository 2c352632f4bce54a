package world

import (
	"math"
	"math/rand/v2"
	"sort"
	"sync"

	"github.com/cespare/xxhash/v2"
	"github.com/cockroachdb/errors"
)

var (
	// ErrRobotExists 机器人已在世界中
	ErrRobotExists = errors.New("robot already exists")
	// ErrRobotNotFound 机器人不存在
	ErrRobotNotFound = errors.New("robot not found")
	// ErrMonsterGone 目标怪物已死亡或被移除
	ErrMonsterGone = errors.New("monster gone")
)

// 机器人姿态，由状态机写入，行为树读取
const (
	StanceCalm    = "calm"
	StanceHunting = "hunting"
	StanceFleeing = "fleeing"
)

// Vec 平面坐标
type Vec struct {
	X, Z float64
}

// Dist 两点距离
func (v Vec) Dist(o Vec) float64 { return math.Hypot(v.X-o.X, v.Z-o.Z) }

// Monster 怪物
type Monster struct {
	ID   int64
	Kind string
	Pos  Vec
	HP   int
}

// Robot 机器人快照
type Robot struct {
	ID     string
	Pos    Vec
	Home   Vec
	HP     int
	MaxHP  int
	Stance string
	// Drops 击杀后尚未拾取的掉落
	Drops int
	Loot  int
	Kills int
}

// HPRatio 当前血量比例
func (r Robot) HPRatio() float64 {
	if r.MaxHP <= 0 {
		return 0
	}
	return float64(r.HP) / float64(r.MaxHP)
}

type robot struct {
	Robot
	rng *rand.Rand
}

// World 多个机器人共享的模拟世界，所有方法并发安全
type World struct {
	cfg *Config

	mu       sync.Mutex
	rng      *rand.Rand
	nextID   int64
	spawned  int
	monsters map[int64]*Monster
	robots   map[string]*robot
}

// New 创建世界并刷出怪物
func New(cfg *Config) (*World, error) {
	merged, err := mergeConfig(cfg)
	if err != nil {
		return nil, err
	}
	w := &World{
		cfg:      merged,
		rng:      rand.New(rand.NewPCG(merged.Seed, merged.Seed^0x9e3779b97f4a7c15)),
		monsters: make(map[int64]*Monster),
		robots:   make(map[string]*robot),
	}
	w.Respawn()
	return w, nil
}

// Config 返回配置
func (w *World) Config() Config { return *w.cfg }

func (w *World) randomPos(rng *rand.Rand) Vec {
	return Vec{X: rng.Float64() * w.cfg.Size, Z: rng.Float64() * w.cfg.Size}
}

func (w *World) clamp(v Vec) Vec {
	limit := math.Nextafter(w.cfg.Size, 0)
	v.X = math.Min(math.Max(v.X, 0), limit)
	v.Z = math.Min(math.Max(v.Z, 0), limit)
	return v
}

// Respawn 补齐怪物数量，返回新刷出的数量
func (w *World) Respawn() int {
	w.mu.Lock()
	defer w.mu.Unlock()

	n := 0
	for len(w.monsters) < w.cfg.Monsters {
		w.nextID++
		kind := w.cfg.MonsterKinds[w.spawned%len(w.cfg.MonsterKinds)]
		w.spawned++
		w.monsters[w.nextID] = &Monster{
			ID:   w.nextID,
			Kind: kind,
			Pos:  w.randomPos(w.rng),
			HP:   w.cfg.MonsterHP,
		}
		n++
	}
	return n
}

// AddRobot 在随机位置放置机器人，出生点即为家
// 机器人的随机源由 id 和世界种子派生，同一 id 的行为可复现。
func (w *World) AddRobot(id string) (Robot, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if _, ok := w.robots[id]; ok {
		return Robot{}, errors.Wrapf(ErrRobotExists, "robot %s", id)
	}
	seed := xxhash.Sum64String(id) ^ w.cfg.Seed
	rng := rand.New(rand.NewPCG(seed, w.cfg.Seed))
	home := w.randomPos(rng)
	r := &robot{
		Robot: Robot{
			ID:     id,
			Pos:    home,
			Home:   home,
			HP:     w.cfg.RobotHP,
			MaxHP:  w.cfg.RobotHP,
			Stance: StanceCalm,
		},
		rng: rng,
	}
	w.robots[id] = r
	return r.Robot, nil
}

// RemoveRobot 移除机器人
func (w *World) RemoveRobot(id string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	delete(w.robots, id)
}

func (w *World) robot(id string) (*robot, error) {
	r, ok := w.robots[id]
	if !ok {
		return nil, errors.Wrapf(ErrRobotNotFound, "robot %s", id)
	}
	return r, nil
}

// Robot 返回机器人快照
func (w *World) Robot(id string) (Robot, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	r, ok := w.robots[id]
	if !ok {
		return Robot{}, false
	}
	return r.Robot, true
}

// Monster 返回怪物快照
func (w *World) Monster(id int64) (Monster, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	m, ok := w.monsters[id]
	if !ok {
		return Monster{}, false
	}
	return *m, true
}

// Nearest 查找离机器人最近的怪物，kind 为空表示任意种类
// 距离相同时 id 小的优先。
func (w *World) Nearest(robotID, kind string) (Monster, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()

	r, ok := w.robots[robotID]
	if !ok {
		return Monster{}, false
	}
	var best *Monster
	bestDist := math.Inf(1)
	for _, m := range w.monsters {
		if kind != "" && m.Kind != kind {
			continue
		}
		d := r.Pos.Dist(m.Pos)
		if d < bestDist || (d == bestDist && best != nil && m.ID < best.ID) {
			best, bestDist = m, d
		}
	}
	if best == nil {
		return Monster{}, false
	}
	return *best, true
}

// Sense 机器人的感知结果
type Sense struct {
	HPRatio float64
	// Threat 警戒半径内是否有怪物
	Threat  bool
	Nearest float64
	Drops   int
	Stance  string
}

// Sense 采集机器人的感知
func (w *World) Sense(robotID string) (Sense, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	r, err := w.robot(robotID)
	if err != nil {
		return Sense{}, err
	}
	s := Sense{
		HPRatio: r.HPRatio(),
		Nearest: math.Inf(1),
		Drops:   r.Drops,
		Stance:  r.Stance,
	}
	for _, m := range w.monsters {
		s.Nearest = math.Min(s.Nearest, r.Pos.Dist(m.Pos))
	}
	s.Threat = s.Nearest <= w.cfg.AggroRadius
	return s, nil
}

// MoveToward 向目标移动至多 step，进入 reach 范围内返回 true
func (w *World) MoveToward(robotID string, target Vec, step, reach float64) (bool, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	r, err := w.robot(robotID)
	if err != nil {
		return false, err
	}
	d := r.Pos.Dist(target)
	if d <= reach {
		return true, nil
	}
	if d-step <= reach {
		// 停在 reach 边界上
		k := (d - reach) / d
		r.Pos = w.clamp(Vec{X: r.Pos.X + (target.X-r.Pos.X)*k, Z: r.Pos.Z + (target.Z-r.Pos.Z)*k})
		return true, nil
	}
	k := step / d
	r.Pos = w.clamp(Vec{X: r.Pos.X + (target.X-r.Pos.X)*k, Z: r.Pos.Z + (target.Z-r.Pos.Z)*k})
	return false, nil
}

// Wander 在 radius 内随机移动，返回新位置
func (w *World) Wander(robotID string, radius float64) (Vec, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	r, err := w.robot(robotID)
	if err != nil {
		return Vec{}, err
	}
	r.Pos = w.clamp(Vec{
		X: r.Pos.X + (r.rng.Float64()*2-1)*radius,
		Z: r.Pos.Z + (r.rng.Float64()*2-1)*radius,
	})
	return r.Pos, nil
}

// AttackResult 一次攻击的结果
type AttackResult struct {
	Killed bool
	// Taken 机器人受到的反击伤害
	Taken int
}

// Attack 机器人攻击怪物，未击杀时怪物反击
// 击杀后怪物移除，机器人获得一份待拾取的掉落。
func (w *World) Attack(robotID string, monsterID int64, damage int) (AttackResult, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	r, err := w.robot(robotID)
	if err != nil {
		return AttackResult{}, err
	}
	m, ok := w.monsters[monsterID]
	if !ok {
		return AttackResult{}, errors.Wrapf(ErrMonsterGone, "monster %d", monsterID)
	}

	m.HP -= damage
	if m.HP <= 0 {
		delete(w.monsters, monsterID)
		r.Kills++
		r.Drops++
		return AttackResult{Killed: true}, nil
	}
	taken := min(w.cfg.MonsterDamage, r.HP)
	r.HP -= taken
	return AttackResult{Taken: taken}, nil
}

// Pickup 拾取所有掉落，返回拾取数量
func (w *World) Pickup(robotID string) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	r, err := w.robot(robotID)
	if err != nil {
		return 0, err
	}
	n := r.Drops
	r.Loot += n
	r.Drops = 0
	return n, nil
}

// Rest 恢复 amount 点血量，返回是否已满
func (w *World) Rest(robotID string, amount int) (bool, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	r, err := w.robot(robotID)
	if err != nil {
		return false, err
	}
	r.HP = min(r.HP+amount, r.MaxHP)
	return r.HP == r.MaxHP, nil
}

// SetStance 设置机器人姿态
func (w *World) SetStance(robotID, stance string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	r, err := w.robot(robotID)
	if err != nil {
		return err
	}
	r.Stance = stance
	return nil
}

// Stats 世界统计
type Stats struct {
	Robots   int
	Monsters int
	Kills    int
	Loot     int
	// Stances 各姿态的机器人数量
	Stances map[string]int
}

// Stats 汇总统计
func (w *World) Stats() Stats {
	w.mu.Lock()
	defer w.mu.Unlock()

	s := Stats{
		Robots:   len(w.robots),
		Monsters: len(w.monsters),
		Stances:  make(map[string]int),
	}
	for _, r := range w.robots {
		s.Kills += r.Kills
		s.Loot += r.Loot
		s.Stances[r.Stance]++
	}
	return s
}

// RobotIDs 按字典序返回机器人 id
func (w *World) RobotIDs() []string {
	w.mu.Lock()
	ids := make([]string, 0, len(w.robots))
	for id := range w.robots {
		ids = append(ids, id)
	}
	w.mu.Unlock()
	sort.Strings(ids)
	return ids
}
