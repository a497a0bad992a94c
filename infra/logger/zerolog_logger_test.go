package logger

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestZerologLoggerMethods(t *testing.T) {
	t.Setenv("APP_ENV", "dev")
	l := NewZerologLogger("test")
	if l == nil {
		t.Fatalf("nil logger")
	}
	l.Debugf("debug %d", 1)
	l.Debugw("debug", map[string]any{"k": 1})
	l.Infof("info %s", "test")
	l.Warnf("warn")
	l.Errorf("error")
}

func TestZerologLogger_Fields(t *testing.T) {
	var buf bytes.Buffer
	l := NewWithWriter("dispatch", &buf)
	l.Warnf("solve %s", "infeasible")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "dispatch", entry["component"])
	assert.Equal(t, "warn", entry["level"])
	assert.Equal(t, "solve infeasible", entry["message"])
}

func TestConfigure(t *testing.T) {
	t.Cleanup(func() {
		_, _ = Configure(Options{})
	})

	_, err := Configure(Options{Level: "loud"})
	assert.Error(t, err)
	_, err = Configure(Options{Format: "xml"})
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "gridinertia.log")
	closeFn, err := Configure(Options{Level: "warn", File: path, MaxSizeMB: 1})
	require.NoError(t, err)
	assert.Equal(t, zerolog.WarnLevel, zerolog.GlobalLevel())

	l := New("solver")
	l.Infof("dropped")
	l.Errorf("kept")
	require.NoError(t, closeFn())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "dropped")
	assert.Contains(t, string(data), "kept")
}

func TestNopLogger(t *testing.T) {
	var l Logger = NopLogger{}
	l.Infof("ignored")
}
