package testutils

import (
	"bytes"
	"sync"
	"testing"

	"github.com/sirupsen/logrus"
)

// TestHelper bundles the logger and fake adapter most session tests need.
type TestHelper struct {
	T       *testing.T
	Logger  *logrus.Logger
	Adapter *FakeAdapter
}

// NewTestHelper creates a helper with a debug-level logger and a record-only adapter.
func NewTestHelper(t *testing.T) *TestHelper {
	logger := logrus.New()
	logger.SetLevel(logrus.DebugLevel) // enable debug logs to track execution flow
	return &TestHelper{
		T:       t,
		Logger:  logger,
		Adapter: NewFakeAdapter(),
	}
}

// CaptureLogs redirects the helper logger into a buffer with a fixed format.
func (h *TestHelper) CaptureLogs() *LogBuffer {
	buf := &LogBuffer{}
	h.Logger.SetOutput(buf)
	h.Logger.SetFormatter(&logrus.TextFormatter{DisableTimestamp: true, DisableColors: true})
	return buf
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
