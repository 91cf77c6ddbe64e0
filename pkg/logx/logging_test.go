package logx

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func TestZeroLoggerIsNop(t *testing.T) {
	var l Logger
	require.True(t, l.IsZero())
	// Must not panic.
	l.Info("ignored", String("k", "v"))
	require.False(t, Nop().IsZero())
}

func TestLoggerWithFields(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf, "debug").With(String("task", "alpha"))
	l.Warn("iteration failed", Int64("iteration", 3), Err(errors.New("boom")))

	var m map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &m))
	require.Equal(t, "alpha", m["task"])
	require.Equal(t, float64(3), m["iteration"])
	require.Equal(t, "warn", m["level"])
	require.Equal(t, "iteration failed", m["message"])
	require.Contains(t, m[zerolog.CallerFieldName], "logging_test.go")
}

func TestLoggerLevelFilter(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf, "warn")
	l.Debug("hidden")
	require.Zero(t, buf.Len())
	require.False(t, l.Enabled(LevelDebug))
	require.True(t, l.Enabled(LevelError))
}

func TestNewConsoleLevel(t *testing.T) {
	l := NewConsole("error")
	require.False(t, l.IsZero())
	require.False(t, l.Enabled(LevelWarn))
	require.True(t, l.Enabled(LevelError))
	require.True(t, NewConsole("bogus").Enabled(LevelInfo))
}

func TestParseLevel(t *testing.T) {
	require.Equal(t, zerolog.DebugLevel, ParseLevel(" debug ", zerolog.InfoLevel))
	require.Equal(t, zerolog.WarnLevel, ParseLevel("WARNING", zerolog.InfoLevel))
	require.Equal(t, zerolog.InfoLevel, ParseLevel("nonsense", zerolog.InfoLevel))
}

func TestServiceApplyFileSink(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.log")
	svc, log := NewService(Config{Level: "info", File: FileConfig{Enabled: true, Path: path}})
	t.Cleanup(func() { _ = svc.Close() })

	log.Info("first")
	svc.Apply(Config{Level: "error", File: FileConfig{Enabled: true, Path: path}})
	log.Info("filtered after apply")
	log.Error("second")
	require.NoError(t, svc.Close())

	b, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Contains(t, string(b), "first")
	require.Contains(t, string(b), "second")
	require.NotContains(t, string(b), "filtered after apply")
}
