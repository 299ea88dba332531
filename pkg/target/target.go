// Package target provides a concrete operation executor that writes
// request payloads to a TCP (or UDP) endpoint.  It exists so jobs can be
// pointed at a real listener out of the box; protocol specific executors
// implement the same interface elsewhere.
package target

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/sirupsen/logrus"

	"github.com/atlassian/loadrig"
	"github.com/atlassian/loadrig/pkg/pool"
)

// Config describes the endpoint operations are written to.
type Config struct {
	Logger logrus.FieldLogger
	// Address is the host:port to connect to.
	Address string
	// Network defaults to "tcp".
	Network string
	// DialTimeout bounds connection establishment, including retries.
	DialTimeout time.Duration
	// WriteTimeout bounds a single request write.  Zero means no deadline.
	WriteTimeout time.Duration
}

// Executor writes each request's payload to the configured endpoint over
// a single reused connection, reconnecting with exponential backoff after
// a failure.  Safe for concurrent use; writes are serialized.
type Executor struct {
	cfg     Config
	buffers *pool.BytesBuffer

	mu   sync.Mutex
	conn net.Conn
}

// New validates cfg and builds an Executor.  No connection is made until
// the first operation.
func New(cfg Config) (*Executor, error) {
	if cfg.Address == "" {
		return nil, fmt.Errorf("target: an address is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.StandardLogger()
	}
	if cfg.Network == "" {
		cfg.Network = "tcp"
	}
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = 10 * time.Second
	}
	return &Executor{
		cfg:     cfg,
		buffers: pool.NewBytesBuffer(),
	}, nil
}

// Execute writes the request to the endpoint.  A request without a raw
// payload has its record serialized as "name: value" lines with a blank
// line terminator.
func (e *Executor) Execute(ctx context.Context, req *loadrig.Request) error {
	payload := req.Payload
	if payload == nil {
		if req.Record == nil {
			return loadrig.NewCodedError(loadrig.ResultClientError, fmt.Errorf("request has neither payload nor record"))
		}
		buf := e.buffers.Get()
		defer e.buffers.Put(buf)
		EncodeRecord(buf, req.Record)
		payload = buf.Bytes()
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	conn, err := e.connection(ctx)
	if err != nil {
		return loadrig.NewCodedError(loadrig.ResultConnectError, err)
	}
	if e.cfg.WriteTimeout > 0 {
		if err := conn.SetWriteDeadline(time.Now().Add(e.cfg.WriteTimeout)); err != nil {
			return loadrig.NewCodedError(loadrig.ResultWriteError, err)
		}
	}
	if _, err := conn.Write(payload); err != nil {
		// The connection is suspect after a failed write.  Drop it so the
		// next operation redials.
		e.closeLocked()
		if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
			return loadrig.NewCodedError(loadrig.ResultTimeout, err)
		}
		return loadrig.NewCodedError(loadrig.ResultWriteError, err)
	}
	return nil
}

// connection returns the established connection, dialing with backoff if
// there is none.  Callers hold e.mu.
func (e *Executor) connection(ctx context.Context) (net.Conn, error) {
	if e.conn != nil {
		return e.conn, nil
	}
	b := backoff.NewExponentialBackOff()
	b.MaxElapsedTime = e.cfg.DialTimeout
	dialer := &net.Dialer{}
	err := backoff.Retry(func() error {
		conn, err := dialer.DialContext(ctx, e.cfg.Network, e.cfg.Address)
		if err != nil {
			e.cfg.Logger.WithError(err).WithField("address", e.cfg.Address).Warn("Failed to connect, retrying")
			return err
		}
		e.conn = conn
		return nil
	}, backoff.WithContext(b, ctx))
	if err != nil {
		return nil, fmt.Errorf("connecting to %s: %w", e.cfg.Address, err)
	}
	return e.conn, nil
}

// Close releases the connection if one is established.
func (e *Executor) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.closeLocked()
}

func (e *Executor) closeLocked() error {
	if e.conn == nil {
		return nil
	}
	err := e.conn.Close()
	e.conn = nil
	return err
}
