package testutil

import (
	"io"
	"log"
	"os"
	"testing"
)

// TestLogger logs to stdout only when tests run verbose. Actor goroutines may
// outlive the test, so it never writes through t.
func TestLogger(t *testing.T) *log.Logger {
	var out io.Writer = io.Discard
	if testing.Verbose() {
		out = os.Stdout
	}

	logger := log.New(out, "["+t.Name()+"] ", log.LstdFlags)
	t.Cleanup(func() {
		logger.SetOutput(io.Discard)
	})
	return logger
}

func Ptr[T any](v T) *T {
	return &v
}
