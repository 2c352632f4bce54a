package bt

import (
	"context"
	"testing"
	"time"

	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

var epoch = time.Unix(1_700_000_000, 0)

// scripted 依次返回 statuses，用完后重复最后一个
type scripted struct {
	*Action
	calls int
}

func newScripted(id string, statuses ...Status) *scripted {
	s := &scripted{}
	s.Action = NewAction(id, func(*Context) (Status, error) {
		i := s.calls
		if i >= len(statuses) {
			i = len(statuses) - 1
		}
		s.calls++
		return statuses[i], nil
	})
	return s
}

func testCtx(at time.Duration) *Context {
	return NewContext(context.Background(), nil, epoch.Add(at))
}
