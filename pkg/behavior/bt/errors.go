package bt

import "github.com/cockroachdb/errors"

var (
	// ErrNoRoot 行为树未设置根节点
	ErrNoRoot = errors.New("behavior tree has no root node")
	// ErrNilNode 传入了 nil 节点
	ErrNilNode = errors.New("node cannot be nil")
	// ErrDecoratorFull 装饰节点只能有一个子节点
	ErrDecoratorFull = errors.New("decorator already has a child")
	// ErrLeafChildren 叶子节点不能有子节点
	ErrLeafChildren = errors.New("leaf node cannot have children")
	// ErrAlreadyAttached 节点已经挂在其他父节点下
	ErrAlreadyAttached = errors.New("node already has a parent")
	// ErrInvalidWeights 权重为负、非有限值或总和不为正
	ErrInvalidWeights = errors.New("weights must be non-negative with a positive sum")
	// ErrWeightCount 权重数量与子节点数量不一致
	ErrWeightCount = errors.New("weight count does not match child count")
	// ErrInvalidStatus 动作返回了 StatusInvalid
	ErrInvalidStatus = errors.New("action returned invalid status")
	// ErrTickInProgress 同一棵树并发 Tick
	ErrTickInProgress = errors.New("behavior tree tick already in progress")
	// ErrAlreadyRunning 自驱循环已启动
	ErrAlreadyRunning = errors.New("behavior tree loop already running")
)
