package bt

import "time"

// Inverter 反转节点：SUCCESS 与 FAILURE 互换，RUNNING 透传
type Inverter struct {
	BaseNode
}

// NewInverter 创建反转节点，child 可以为 nil 稍后通过 AddChild 挂载
func NewInverter(id string, child Node) *Inverter {
	n := &Inverter{}
	n.init(n, id, KindInverter)
	n.attach(child)
	return n
}

func (n *Inverter) Execute(ctx *Context) (Status, error) {
	return n.run(ctx, nil, func(ctx *Context) (Status, error) {
		child := n.child()
		if child == nil {
			return StatusFailure, nil
		}
		status, err := child.Execute(ctx)
		if err != nil {
			return StatusFailure, err
		}
		switch status {
		case StatusSuccess:
			return StatusFailure, nil
		case StatusFailure:
			return StatusSuccess, nil
		default:
			return status, nil
		}
	})
}

func (n *Inverter) Reset() { n.resetBase() }

// Repeater 重复节点：子节点每结束一次计数加一并重置，次数用尽后返回子节点最后一次的结果
// times < 0 表示无限重复，times == 0 立即成功。
type Repeater struct {
	BaseNode
	times int
	count int
}

// NewRepeater 创建重复节点
func NewRepeater(id string, times int, child Node) *Repeater {
	n := &Repeater{times: times}
	n.init(n, id, KindRepeater)
	n.attach(child)
	return n
}

// Count 本轮已完成次数
func (n *Repeater) Count() int { return n.count }

func (n *Repeater) Execute(ctx *Context) (Status, error) {
	return n.run(ctx, func() { n.count = 0 }, func(ctx *Context) (Status, error) {
		child := n.child()
		if child == nil {
			return StatusFailure, nil
		}
		if n.times == 0 {
			return StatusSuccess, nil
		}

		status, err := child.Execute(ctx)
		if err != nil {
			return StatusFailure, err
		}
		if status == StatusRunning {
			return StatusRunning, nil
		}

		n.count++
		if n.times > 0 && n.count >= n.times {
			return status, nil
		}
		child.Reset()
		return StatusRunning, nil
	})
}

func (n *Repeater) Reset() {
	n.count = 0
	n.resetBase()
}

// Retry 重试节点：子节点失败时重置并在下次 tick 重试，最多尝试 attempts 次
type Retry struct {
	BaseNode
	attempts int
	failures int
}

// NewRetry 创建重试节点，attempts < 1 时按 1 处理
func NewRetry(id string, attempts int, child Node) *Retry {
	if attempts < 1 {
		attempts = 1
	}
	n := &Retry{attempts: attempts}
	n.init(n, id, KindRetry)
	n.attach(child)
	return n
}

// Failures 本轮已失败次数
func (n *Retry) Failures() int { return n.failures }

func (n *Retry) Execute(ctx *Context) (Status, error) {
	return n.run(ctx, func() { n.failures = 0 }, func(ctx *Context) (Status, error) {
		child := n.child()
		if child == nil {
			return StatusFailure, nil
		}

		status, err := child.Execute(ctx)
		if err != nil {
			return StatusFailure, err
		}
		if status != StatusFailure {
			return status, nil
		}

		n.failures++
		if n.failures >= n.attempts {
			return StatusFailure, nil
		}
		child.Reset()
		return StatusRunning, nil
	})
}

func (n *Retry) Reset() {
	n.failures = 0
	n.resetBase()
}

// Timeout 超时节点：本轮开始后超过 limit 即失败并重置子节点
type Timeout struct {
	BaseNode
	limit time.Duration
}

// NewTimeout 创建超时节点
func NewTimeout(id string, limit time.Duration, child Node) *Timeout {
	n := &Timeout{limit: limit}
	n.init(n, id, KindTimeout)
	n.attach(child)
	return n
}

func (n *Timeout) Execute(ctx *Context) (Status, error) {
	return n.run(ctx, nil, func(ctx *Context) (Status, error) {
		child := n.child()
		if child == nil {
			return StatusFailure, nil
		}
		if ctx.Timestamp.Sub(n.startedAt) > n.limit {
			child.Reset()
			return StatusFailure, nil
		}
		return child.Execute(ctx)
	})
}

func (n *Timeout) Reset() { n.resetBase() }

// Cooldown 冷却节点：子节点上次成功后 interval 内直接失败，不调用子节点
type Cooldown struct {
	BaseNode
	interval    time.Duration
	lastSuccess time.Time
	hasSuccess  bool
}

// NewCooldown 创建冷却节点
func NewCooldown(id string, interval time.Duration, child Node) *Cooldown {
	n := &Cooldown{interval: interval}
	n.init(n, id, KindCooldown)
	n.attach(child)
	return n
}

// LastSuccess 子节点上次成功的时间
func (n *Cooldown) LastSuccess() (time.Time, bool) { return n.lastSuccess, n.hasSuccess }

func (n *Cooldown) Execute(ctx *Context) (Status, error) {
	return n.run(ctx, nil, func(ctx *Context) (Status, error) {
		child := n.child()
		if child == nil {
			return StatusFailure, nil
		}
		if n.hasSuccess && ctx.Timestamp.Sub(n.lastSuccess) < n.interval {
			return StatusFailure, nil
		}

		status, err := child.Execute(ctx)
		if err != nil {
			return StatusFailure, err
		}
		if status == StatusSuccess {
			n.lastSuccess = ctx.Timestamp
			n.hasSuccess = true
		}
		return status, nil
	})
}

func (n *Cooldown) Reset() {
	n.lastSuccess = time.Time{}
	n.hasSuccess = false
	n.resetBase()
}

// UntilSuccess 重复执行直到子节点成功
type UntilSuccess struct {
	BaseNode
}

// NewUntilSuccess 创建直到成功节点
func NewUntilSuccess(id string, child Node) *UntilSuccess {
	n := &UntilSuccess{}
	n.init(n, id, KindUntilSuccess)
	n.attach(child)
	return n
}

func (n *UntilSuccess) Execute(ctx *Context) (Status, error) {
	return n.run(ctx, nil, func(ctx *Context) (Status, error) {
		return repeatUntil(ctx, n.child(), StatusSuccess)
	})
}

func (n *UntilSuccess) Reset() { n.resetBase() }

// UntilFailure 重复执行直到子节点失败，失败时本节点成功
type UntilFailure struct {
	BaseNode
}

// NewUntilFailure 创建直到失败节点
func NewUntilFailure(id string, child Node) *UntilFailure {
	n := &UntilFailure{}
	n.init(n, id, KindUntilFailure)
	n.attach(child)
	return n
}

func (n *UntilFailure) Execute(ctx *Context) (Status, error) {
	return n.run(ctx, nil, func(ctx *Context) (Status, error) {
		return repeatUntil(ctx, n.child(), StatusFailure)
	})
}

func (n *UntilFailure) Reset() { n.resetBase() }

func repeatUntil(ctx *Context, child Node, want Status) (Status, error) {
	if child == nil {
		return StatusFailure, nil
	}
	status, err := child.Execute(ctx)
	if err != nil {
		return StatusFailure, err
	}
	if status == want {
		return StatusSuccess, nil
	}
	if status != StatusRunning {
		child.Reset()
	}
	return StatusRunning, nil
}

// Delay 延迟节点：本轮开始 wait 之后才执行子节点
type Delay struct {
	BaseNode
	wait time.Duration
}

// NewDelay 创建延迟节点
func NewDelay(id string, wait time.Duration, child Node) *Delay {
	n := &Delay{wait: wait}
	n.init(n, id, KindDelay)
	n.attach(child)
	return n
}

func (n *Delay) Execute(ctx *Context) (Status, error) {
	return n.run(ctx, nil, func(ctx *Context) (Status, error) {
		child := n.child()
		if child == nil {
			return StatusFailure, nil
		}
		if ctx.Timestamp.Sub(n.startedAt) < n.wait {
			return StatusRunning, nil
		}
		return child.Execute(ctx)
	})
}

func (n *Delay) Reset() { n.resetBase() }
