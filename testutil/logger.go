package testutil

import (
	"io"
	"testing"

	"github.com/apsdehal/go-logger"
)

// NewLogger returns a logger that writes nowhere.
func NewLogger(t *testing.T) *logger.Logger {
	t.Helper()

	log, err := logger.New("TEST", 0, io.Discard)
	if err != nil {
		t.Fatalf("Failed to create logger: %v", err)
	}
	return log
}
