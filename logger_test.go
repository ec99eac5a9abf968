package membership

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

type logCall struct {
	level   string
	message string
	args    []any
}

type captureLogger struct {
	calls []logCall
}

func (l *captureLogger) record(level, message string, args ...any) {
	l.calls = append(l.calls, logCall{level: level, message: message, args: args})
}

func (l *captureLogger) Debug(message string, args ...any) { l.record("debug", message, args...) }
func (l *captureLogger) Info(message string, args ...any)  { l.record("info", message, args...) }
func (l *captureLogger) Warn(message string, args ...any)  { l.record("warn", message, args...) }
func (l *captureLogger) Error(message string, args ...any) { l.record("error", message, args...) }

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var out []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		entry := map[string]any{}
		require.NoError(t, json.Unmarshal([]byte(line), &entry))
		out = append(out, entry)
	}
	return out
}

func TestZeroLoggerWritesStructuredFields(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&buf, "membership", "debug").Named("registry")

	logger.Info("identity registered", "id", int64(7), "member_number", "4001234567")
	logger.Error("audit append failed", "error", errors.New("no such table"), "dangling")

	lines := decodeLines(t, &buf)
	require.Len(t, lines, 2)

	require.Equal(t, "info", lines[0]["level"])
	require.Equal(t, "identity registered", lines[0]["message"])
	require.Equal(t, "membership", lines[0]["logger"])
	require.Equal(t, "registry", lines[0]["component"])
	require.Equal(t, float64(7), lines[0]["id"])
	require.Equal(t, "4001234567", lines[0]["member_number"])

	require.Equal(t, "no such table", lines[1]["error"])
	require.Equal(t, "(MISSING)", lines[1]["dangling"])
}

func TestZeroLoggerLevelFilter(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&buf, "membership", "warn")

	logger.Debug("hidden")
	logger.Info("hidden")
	logger.Warn("shown")

	lines := decodeLines(t, &buf)
	require.Len(t, lines, 1)
	require.Equal(t, "shown", lines[0]["message"])

	buf.Reset()
	NewLogger(&buf, "membership", "bogus").Debug("hidden")
	require.Empty(t, buf.String())
}

func TestNormalizeLogger(t *testing.T) {
	capture := &captureLogger{}
	require.Same(t, capture, normalizeLogger(capture, "x"))
	require.NotNil(t, normalizeLogger(nil, "x"))
}

func TestAuditAppendLogsFailures(t *testing.T) {
	capture := &captureLogger{}
	pipeline := NewAuditPipeline(nil, WithAuditLogger(capture))

	pipeline.Append(context.Background(), AuditEntry{Action: ""})

	require.Len(t, capture.calls, 1)
	require.Equal(t, "error", capture.calls[0].level)
	require.Equal(t, "audit append failed", capture.calls[0].message)
}
