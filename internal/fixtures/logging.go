package fixtures

import (
	"io"
	"testing"

	"github.com/sirupsen/logrus"
)

type testLogWriter struct {
	tb testing.TB
}

var _ io.Writer = (*testLogWriter)(nil)

func (w testLogWriter) Write(p []byte) (int, error) {
	w.tb.Log(string(p))
	return len(p), nil
}

// NewTestLogger returns a logger which forwards everything to the test log,
// so driver output shows up attached to the failing test.
func NewTestLogger(tb testing.TB) logrus.FieldLogger {
	l := logrus.New()
	l.SetLevel(logrus.DebugLevel)
	l.SetOutput(testLogWriter{tb: tb})
	return l
}
