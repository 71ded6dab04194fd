package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    LogLevel
		wantErr bool
	}{
		{"debug", LogLevelDebug, false},
		{"INFO", LogLevelInfo, false},
		{"", LogLevelInfo, false},
		{"warning", LogLevelWarn, false},
		{" Error ", LogLevelError, false},
		{"verbose", LogLevelInfo, true},
	}
	for _, tt := range tests {
		got, err := ParseLevel(tt.in)
		if tt.wantErr {
			assert.Error(t, err, tt.in)
			continue
		}
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}
}

func TestChainLogger_JSONAttributes(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger(&LoggerConfig{Level: LogLevelDebug, Format: "json", Output: &buf}).
		WithComponent("manager").
		WithSession("sid-1").
		WithContext("store", "memory")

	l.Info("session read", "bytes", 12)

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "session read", rec["msg"])
	assert.Equal(t, "manager", rec["component"])
	assert.Equal(t, "sid-1", rec["session_id"])
	assert.Equal(t, "memory", rec["store"])
	assert.EqualValues(t, 12, rec["bytes"])
}

func TestChainLogger_LevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger(&LoggerConfig{Level: LogLevelWarn, Format: "text", Output: &buf})

	l.Debug("hidden")
	l.Info("hidden")
	LogHandlerCall(l, "session read done", time.Millisecond, true, "id", "s1")
	assert.Empty(t, buf.String())

	LogHandlerCall(l, "session write done", time.Millisecond, false, "id", "s1")
	assert.Contains(t, buf.String(), "level=WARN")
	assert.Contains(t, buf.String(), "session write done")
	assert.Contains(t, buf.String(), "id=s1")
	assert.Contains(t, buf.String(), "duration=1ms")
	assert.Contains(t, buf.String(), "result=false")
}

func TestSlogAdapter(t *testing.T) {
	var buf bytes.Buffer
	sl := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})).With("app", "shop")
	l := NewSlogAdapter(sl)

	LogHandlerCall(l, "session read done", 2*time.Millisecond, true, "id", "s1")
	l.Error("session write failed", "id", "s2")

	dec := json.NewDecoder(&buf)
	var first, second map[string]any
	require.NoError(t, dec.Decode(&first))
	require.NoError(t, dec.Decode(&second))

	assert.Equal(t, "DEBUG", first["level"])
	assert.Equal(t, "session read done", first["msg"])
	assert.Equal(t, "shop", first["app"])
	assert.Equal(t, "s1", first["id"])
	assert.Equal(t, true, first["result"])
	assert.Equal(t, float64(2*time.Millisecond), first["duration"])

	assert.Equal(t, "ERROR", second["level"])
	assert.Equal(t, "s2", second["id"])
}

func TestChainLogger_WithDoesNotMutateParent(t *testing.T) {
	var buf bytes.Buffer
	parent := NewLogger(&LoggerConfig{Level: LogLevelInfo, Format: "text", Output: &buf})
	_ = parent.WithContext("k", "v")

	parent.Info("plain")
	assert.NotContains(t, buf.String(), "k=v")
}

func TestOrNoOp(t *testing.T) {
	assert.Equal(t, NoOpLogger{}, OrNoOp(nil))
	l := NewSlogAdapter(slog.Default())
	assert.Same(t, l, OrNoOp(l))
}
