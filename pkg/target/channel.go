package target

import (
	"context"
	"sync/atomic"

	"github.com/atlassian/loadrig"
)

// ExecutorChannel adapts a synchronous executor to the asynchronous channel
// interface by running each operation on its own goroutine.  Async jobs
// typically build one per connection so in-flight counts reflect per
// connection load.
type ExecutorChannel struct {
	exec        loadrig.Executor
	outstanding int64
}

func NewExecutorChannel(exec loadrig.Executor) *ExecutorChannel {
	return &ExecutorChannel{exec: exec}
}

// StartOperation begins the operation and returns immediately; done is
// invoked on the operation's goroutine when it completes.
func (c *ExecutorChannel) StartOperation(ctx context.Context, req *loadrig.Request, done func(err error)) error {
	atomic.AddInt64(&c.outstanding, 1)
	go func() {
		err := c.exec.Execute(ctx, req)
		atomic.AddInt64(&c.outstanding, -1)
		done(err)
	}()
	return nil
}

// Outstanding reports the number of operations started but not completed.
func (c *ExecutorChannel) Outstanding() int {
	return int(atomic.LoadInt64(&c.outstanding))
}
