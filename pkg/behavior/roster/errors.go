package roster

import "github.com/cockroachdb/errors"

var (
	// ErrAgentExists 智能体已注册
	ErrAgentExists = errors.New("agent already registered")
	// ErrAgentNotFound 智能体未注册
	ErrAgentNotFound = errors.New("agent not found")
	// ErrNilController 传入了 nil 控制器
	ErrNilController = errors.New("controller cannot be nil")
	// ErrReleased 花名册已释放
	ErrReleased = errors.New("roster has been released")
)
