package loadrig

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCodeOf(t *testing.T) {
	t.Parallel()
	tests := map[string]struct {
		err      error
		expected ResultCode
	}{
		"nil is success":              {err: nil, expected: ResultSuccess},
		"coded error reports code":    {err: NewCodedError(ResultConnectError, errors.New("refused")), expected: ResultConnectError},
		"wrapped coded error":         {err: fmt.Errorf("sending: %w", NewCodedError(ResultWriteError, nil)), expected: ResultWriteError},
		"deadline maps to timeout":    {err: context.DeadlineExceeded, expected: ResultTimeout},
		"wrapped deadline":            {err: fmt.Errorf("op: %w", context.DeadlineExceeded), expected: ResultTimeout},
		"opaque error is client side": {err: errors.New("boom"), expected: ResultClientError},
	}
	for name, tc := range tests {
		tc := tc
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tc.expected, CodeOf(tc.err))
		})
	}
}

func TestCodedErrorMessage(t *testing.T) {
	t.Parallel()
	err := NewCodedError(ResultWriteError, errors.New("broken pipe"))
	assert.Equal(t, "write-error: broken pipe", err.Error())
	assert.Equal(t, ResultWriteError, err.ResultCode())

	bare := NewCodedError(ResultTimeout, nil)
	assert.Equal(t, "timeout", bare.Error())
}
