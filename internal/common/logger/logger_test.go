package logger

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestConsoleLogger_FormatsFields(t *testing.T) {
	var buf bytes.Buffer
	l := NewConsoleLoggerTo(&buf)
	l.now = func() time.Time { return time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC) }

	l.Warn("Ledger write failed", String("transaction_id", "tx-1"), Err(errors.New("boom")))

	assert.Equal(t, "2026-01-02T03:04:05Z [WARN] Ledger write failed [transaction_id=tx-1, error=boom]\n", buf.String())
}

func TestConsoleLogger_NoFields(t *testing.T) {
	var buf bytes.Buffer
	l := NewConsoleLoggerTo(&buf)
	l.now = func() time.Time { return time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC) }

	l.Info("Starting coordinator")

	assert.Equal(t, "2026-01-02T03:04:05Z [INFO] Starting coordinator\n", buf.String())
}
