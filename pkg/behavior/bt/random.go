package bt

import (
	"math"
	"math/rand/v2"

	"github.com/cockroachdb/errors"
)

// Random 随机选择节点：每轮开始时均匀选中一个子节点，本轮只执行它
type Random struct {
	BaseNode
	rng  *rand.Rand
	pick int
}

// NewRandom 创建随机选择节点，rng 为 nil 时使用全局随机源
func NewRandom(id string, rng *rand.Rand, children ...Node) *Random {
	n := &Random{rng: rng, pick: -1}
	n.init(n, id, KindRandom)
	n.attach(children...)
	return n
}

// Pick 本轮选中的子节点下标，未选中时为 -1
func (n *Random) Pick() int { return n.pick }

func (n *Random) Execute(ctx *Context) (Status, error) {
	return n.run(ctx, func() { n.pick = -1 }, func(ctx *Context) (Status, error) {
		if len(n.children) == 0 {
			return StatusFailure, nil
		}
		if n.pick < 0 || n.pick >= len(n.children) {
			n.pick = intN(n.rng, len(n.children))
		}
		return n.children[n.pick].Execute(ctx)
	})
}

func (n *Random) Reset() {
	n.pick = -1
	n.resetBase()
}

// Weighted 加权随机选择节点：按权重比例选中一个子节点
// 权重与子节点一一对应，需在构造时给出。
type Weighted struct {
	BaseNode
	weights []float64
	total   float64
	rng     *rand.Rand
	pick    int
}

// NewWeighted 创建加权选择节点，子节点可以稍后通过 AddChild 按权重顺序挂载
func NewWeighted(id string, weights []float64, rng *rand.Rand, children ...Node) (*Weighted, error) {
	total, err := validateWeights(weights)
	if err != nil {
		return nil, errors.Wrapf(err, "node %s", id)
	}
	n := &Weighted{weights: append([]float64(nil), weights...), total: total, rng: rng, pick: -1}
	n.init(n, id, KindWeighted)
	for _, c := range children {
		if err := n.AddChild(c); err != nil {
			return nil, err
		}
	}
	return n, nil
}

func validateWeights(weights []float64) (float64, error) {
	var total float64
	for _, w := range weights {
		if w < 0 || math.IsNaN(w) || math.IsInf(w, 0) {
			return 0, ErrInvalidWeights
		}
		total += w
	}
	if total <= 0 {
		return 0, ErrInvalidWeights
	}
	return total, nil
}

// AddChild 挂载子节点，子节点数量不能超过权重数量
func (n *Weighted) AddChild(child Node) error {
	if child != nil && len(n.children) >= len(n.weights) {
		return errors.Wrapf(ErrWeightCount, "node %s has %d weights", n.id, len(n.weights))
	}
	return n.BaseNode.AddChild(child)
}

// Weights 返回权重副本
func (n *Weighted) Weights() []float64 { return append([]float64(nil), n.weights...) }

// Pick 本轮选中的子节点下标
func (n *Weighted) Pick() int { return n.pick }

func (n *Weighted) Execute(ctx *Context) (Status, error) {
	return n.run(ctx, func() { n.pick = -1 }, func(ctx *Context) (Status, error) {
		if len(n.children) == 0 {
			return StatusFailure, nil
		}
		if len(n.children) != len(n.weights) {
			return StatusFailure, errors.Wrapf(ErrWeightCount, "node %s: %d children, %d weights", n.id, len(n.children), len(n.weights))
		}
		if n.pick < 0 {
			n.pick = n.choose()
		}
		return n.children[n.pick].Execute(ctx)
	})
}

func (n *Weighted) choose() int {
	r := float64N(n.rng) * n.total
	for i, w := range n.weights {
		if r < w {
			return i
		}
		r -= w
	}
	// 浮点误差落在末尾时取最后一个正权重
	for i := len(n.weights) - 1; i >= 0; i-- {
		if n.weights[i] > 0 {
			return i
		}
	}
	return 0
}

func (n *Weighted) Reset() {
	n.pick = -1
	n.resetBase()
}

func intN(rng *rand.Rand, n int) int {
	if rng == nil {
		return rand.IntN(n)
	}
	return rng.IntN(n)
}

func float64N(rng *rand.Rand) float64 {
	if rng == nil {
		return rand.Float64()
	}
	return rng.Float64()
}
