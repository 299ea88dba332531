package loadrig

import (
	"context"
	"errors"
)

// ResultCode classifies the outcome of a single operation.  Codes are
// free-form labels so that executors can surface protocol specific codes
// without this package having to know about them.
type ResultCode string

const (
	// ResultSuccess is the code for an operation that completed normally.
	ResultSuccess ResultCode = "success"
	// ResultClientError is the synthetic code used when an operation failed
	// before the target service could produce a code of its own, for example
	// when record generation failed or a request could not be serialized.
	ResultClientError ResultCode = "client-error"
	// ResultConnectError is the code for a failure to establish or reuse a
	// connection to the target.
	ResultConnectError ResultCode = "connect-error"
	// ResultWriteError is the code for a failure while sending a request.
	ResultWriteError ResultCode = "write-error"
	// ResultTimeout is the code for an operation that exceeded its deadline.
	ResultTimeout ResultCode = "timeout"
)

func (rc ResultCode) String() string {
	return string(rc)
}

// Request is a single unit of work handed to an Executor or Channel.  For
// templated jobs Record is set; executors that write raw bytes use Payload.
type Request struct {
	Payload []byte
	Record  *Record
}

// Executor performs one operation against the target service.  A nil error
// means the operation succeeded.  Errors should carry a ResultCode (see
// CodedError); errors without one are bucketed as ResultClientError so the
// driver can always classify an outcome.
type Executor interface {
	Execute(ctx context.Context, req *Request) error
}

// Channel is an asynchronous operation endpoint.  StartOperation begins the
// operation and returns without waiting for it; done is invoked exactly once
// when the operation completes, with the operation's error (nil on success).
// An error returned from StartOperation itself means the operation was never
// started and done will not be called.
//
// Outstanding reports the number of started but not yet completed operations
// and may be slightly stale; it is used as a selection heuristic only.
type Channel interface {
	StartOperation(ctx context.Context, req *Request, done func(err error)) error
	Outstanding() int
}

// CodedError is an error carrying a ResultCode.
type CodedError struct {
	Code ResultCode
	Err  error
}

// NewCodedError wraps err with the given result code.
func NewCodedError(code ResultCode, err error) *CodedError {
	return &CodedError{Code: code, Err: err}
}

func (e *CodedError) Error() string {
	if e.Err == nil {
		return string(e.Code)
	}
	return string(e.Code) + ": " + e.Err.Error()
}

func (e *CodedError) Unwrap() error {
	return e.Err
}

// ResultCode returns the code carried by the error.
func (e *CodedError) ResultCode() ResultCode {
	return e.Code
}

// CodeOf classifies an operation error.  nil maps to ResultSuccess, errors
// carrying a ResultCode report it, and anything else is a client side
// failure.
func CodeOf(err error) ResultCode {
	if err == nil {
		return ResultSuccess
	}
	var coded *CodedError
	if errors.As(err, &coded) {
		return coded.Code
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ResultTimeout
	}
	return ResultClientError
}
