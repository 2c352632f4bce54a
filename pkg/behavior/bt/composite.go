package bt

// Sequence 顺序节点：按声明顺序执行子节点，全部成功才成功
// 子节点 RUNNING 时保留游标，下次 tick 从该子节点继续。
type Sequence struct {
	BaseNode
	cursor int
}

// NewSequence 创建顺序节点，nil 子节点被忽略，已挂载的子节点会 panic
func NewSequence(id string, children ...Node) *Sequence {
	s := &Sequence{}
	s.init(s, id, KindSequence)
	s.attach(children...)
	return s
}

// Cursor 当前游标
func (s *Sequence) Cursor() int { return s.cursor }

func (s *Sequence) Execute(ctx *Context) (Status, error) {
	return s.run(ctx, func() { s.cursor = 0 }, s.tick)
}

func (s *Sequence) tick(ctx *Context) (Status, error) {
	if len(s.children) == 0 {
		return StatusFailure, nil
	}
	for s.cursor < len(s.children) {
		status, err := s.children[s.cursor].Execute(ctx)
		if err != nil {
			return StatusFailure, err
		}
		switch status {
		case StatusSuccess:
			s.cursor++
		case StatusRunning:
			return StatusRunning, nil
		default:
			return StatusFailure, nil
		}
	}
	return StatusSuccess, nil
}

func (s *Sequence) Reset() {
	s.cursor = 0
	s.resetBase()
}

// Selector 选择节点：按声明顺序执行子节点，有一个成功就成功
type Selector struct {
	BaseNode
	cursor int
}

// NewSelector 创建选择节点
func NewSelector(id string, children ...Node) *Selector {
	s := &Selector{}
	s.init(s, id, KindSelector)
	s.attach(children...)
	return s
}

// Cursor 当前游标
func (s *Selector) Cursor() int { return s.cursor }

func (s *Selector) Execute(ctx *Context) (Status, error) {
	return s.run(ctx, func() { s.cursor = 0 }, s.tick)
}

func (s *Selector) tick(ctx *Context) (Status, error) {
	for s.cursor < len(s.children) {
		status, err := s.children[s.cursor].Execute(ctx)
		if err != nil {
			return StatusFailure, err
		}
		switch status {
		case StatusSuccess:
			return StatusSuccess, nil
		case StatusRunning:
			return StatusRunning, nil
		default:
			s.cursor++
		}
	}
	return StatusFailure, nil
}

func (s *Selector) Reset() {
	s.cursor = 0
	s.resetBase()
}

// ParallelPolicy 并行节点的成功策略
type ParallelPolicy int

const (
	// RequireAll 全部成功才成功，任一失败即失败
	RequireAll ParallelPolicy = iota
	// RequireOne 任一成功即成功，全部失败才失败
	RequireOne
)

func (p ParallelPolicy) String() string {
	if p == RequireOne {
		return "require_one"
	}
	return "require_all"
}

// Parallel 并行节点：每次 tick 按声明顺序执行全部子节点，按本次结果计数
// 节点得出结果时，仍在 RUNNING 的子节点会被重置。
type Parallel struct {
	BaseNode
	policy ParallelPolicy
}

// NewParallel 创建并行节点
func NewParallel(id string, policy ParallelPolicy, children ...Node) *Parallel {
	p := &Parallel{policy: policy}
	p.init(p, id, KindParallel)
	p.attach(children...)
	return p
}

// Policy 返回策略
func (p *Parallel) Policy() ParallelPolicy { return p.policy }

func (p *Parallel) Execute(ctx *Context) (Status, error) {
	return p.run(ctx, nil, p.tick)
}

func (p *Parallel) tick(ctx *Context) (Status, error) {
	n := len(p.children)
	if n == 0 {
		return StatusFailure, nil
	}

	var success, failure int
	for _, child := range p.children {
		status, err := child.Execute(ctx)
		if err != nil {
			p.haltRunning()
			return StatusFailure, err
		}
		switch status {
		case StatusSuccess:
			success++
		case StatusFailure:
			failure++
		}
	}

	var status Status
	switch p.policy {
	case RequireOne:
		switch {
		case success > 0:
			status = StatusSuccess
		case failure == n:
			status = StatusFailure
		default:
			status = StatusRunning
		}
	default:
		switch {
		case failure > 0:
			status = StatusFailure
		case success == n:
			status = StatusSuccess
		default:
			status = StatusRunning
		}
	}

	if status != StatusRunning {
		p.haltRunning()
	}
	return status, nil
}

func (p *Parallel) haltRunning() {
	for _, child := range p.children {
		if child.Status() == StatusRunning {
			child.Reset()
		}
	}
}

func (p *Parallel) Reset() {
	p.resetBase()
}
