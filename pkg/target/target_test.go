package target

import (
	"bytes"
	"context"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atlassian/loadrig"
	"github.com/atlassian/loadrig/internal/fixtures"
)

// startSink listens on a loopback port and accumulates everything written
// to it.
func startSink(t *testing.T) (addr string, received func() []byte) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = ln.Close()
	})

	var mu sync.Mutex
	var buf bytes.Buffer
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go func() {
				chunk := make([]byte, 4096)
				for {
					n, err := conn.Read(chunk)
					if n > 0 {
						mu.Lock()
						buf.Write(chunk[:n])
						mu.Unlock()
					}
					if err != nil {
						return
					}
				}
			}()
		}
	}()
	return ln.Addr().String(), func() []byte {
		mu.Lock()
		defer mu.Unlock()
		return append([]byte(nil), buf.Bytes()...)
	}
}

func waitFor(t *testing.T, received func() []byte, want []byte) {
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if bytes.Equal(received(), want) {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	assert.Equal(t, string(want), string(received()))
}

func TestExecutorWritesPayload(t *testing.T) {
	t.Parallel()
	addr, received := startSink(t)
	e, err := New(Config{
		Logger:  fixtures.NewTestLogger(t),
		Address: addr,
	})
	require.NoError(t, err)
	defer e.Close()

	require.NoError(t, e.Execute(context.Background(), &loadrig.Request{Payload: []byte("PING\n")}))
	require.NoError(t, e.Execute(context.Background(), &loadrig.Request{Payload: []byte("PONG\n")}))

	waitFor(t, received, []byte("PING\nPONG\n"))
}

func TestExecutorSerializesRecords(t *testing.T) {
	t.Parallel()
	addr, received := startSink(t)
	e, err := New(Config{
		Logger:  fixtures.NewTestLogger(t),
		Address: addr,
	})
	require.NoError(t, err)
	defer e.Close()

	rec := loadrig.NewRecord(2)
	rec.Add("uid", "user.1")
	rec.Add("cn", "user.1-x")
	require.NoError(t, e.Execute(context.Background(), &loadrig.Request{Record: rec}))

	waitFor(t, received, []byte("uid: user.1\ncn: user.1-x\n\n"))
}

func TestExecutorClassifiesConnectFailure(t *testing.T) {
	t.Parallel()
	// Grab a free port and close it again so nothing is listening there.
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	e, err := New(Config{
		Logger:      fixtures.NewTestLogger(t),
		Address:     addr,
		DialTimeout: 50 * time.Millisecond,
	})
	require.NoError(t, err)

	opErr := e.Execute(context.Background(), &loadrig.Request{Payload: []byte("x")})
	require.Error(t, opErr)
	assert.Equal(t, loadrig.ResultConnectError, loadrig.CodeOf(opErr))
}

func TestExecutorRejectsEmptyRequest(t *testing.T) {
	t.Parallel()
	e, err := New(Config{
		Logger:  fixtures.NewTestLogger(t),
		Address: "127.0.0.1:1",
	})
	require.NoError(t, err)

	opErr := e.Execute(context.Background(), &loadrig.Request{})
	require.Error(t, opErr)
	assert.Equal(t, loadrig.ResultClientError, loadrig.CodeOf(opErr))
}

func TestNewRequiresAddress(t *testing.T) {
	t.Parallel()
	_, err := New(Config{})
	assert.Error(t, err)
}

type blockingExecutor struct {
	release chan struct{}
	calls   int64
}

func (e *blockingExecutor) Execute(ctx context.Context, req *loadrig.Request) error {
	atomic.AddInt64(&e.calls, 1)
	<-e.release
	return nil
}

func TestExecutorChannel(t *testing.T) {
	t.Parallel()
	exec := &blockingExecutor{release: make(chan struct{})}
	ch := NewExecutorChannel(exec)

	done := make(chan error, 2)
	for i := 0; i < 2; i++ {
		require.NoError(t, ch.StartOperation(context.Background(), &loadrig.Request{Payload: []byte("x")}, func(err error) {
			done <- err
		}))
	}

	deadline := time.Now().Add(5 * time.Second)
	for ch.Outstanding() != 2 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	assert.Equal(t, 2, ch.Outstanding())

	close(exec.release)
	for i := 0; i < 2; i++ {
		select {
		case err := <-done:
			assert.NoError(t, err)
		case <-time.After(5 * time.Second):
			t.Fatal("completion listener was not invoked")
		}
	}
	deadline = time.Now().Add(5 * time.Second)
	for ch.Outstanding() != 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	assert.Equal(t, 0, ch.Outstanding())
}

var _ io.Closer = (*Executor)(nil)
