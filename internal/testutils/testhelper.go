package testutils

import (
	"bytes"
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
)

type TestHelper struct {
	T      *testing.T
	Logger *logrus.Logger
	Logs   *LogBuffer
}

// NewTestHelper creates a test helper whose logger writes into a buffer.
func NewTestHelper(t *testing.T) *TestHelper {
	logs := &LogBuffer{}
	return &TestHelper{
		T:      t,
		Logger: NewBufferedLogger(logs),
		Logs:   logs,
	}
}

// NewBufferedLogger returns a debug-level logger writing plain text to w.
func NewBufferedLogger(w *LogBuffer) *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(w)
	logger.SetLevel(logrus.DebugLevel) // enable debug logs to track execution flow
	logger.SetFormatter(&logrus.TextFormatter{DisableColors: true, DisableTimestamp: true})
	return logger
}

// Context returns a context cancelled when the test ends.
func (h *TestHelper) Context(timeout time.Duration) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	h.T.Cleanup(cancel)
	return ctx
}

// LogBuffer is a goroutine-safe log sink.
type LogBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *LogBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *LogBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// Contains reports whether any logged line contains every one of parts.
func (b *LogBuffer) Contains(parts ...string) bool {
	for _, line := range strings.Split(b.String(), "\n") {
		matched := true
		for _, p := range parts {
			if !strings.Contains(line, p) {
				matched = false
				break
			}
		}
		if matched && line != "" {
			return true
		}
	}
	return false
}
