package logger

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewReportsCallerWhenEnabled(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ReportCaller = true

	log, err := New(cfg)
	require.NoError(t, err)

	var buf bytes.Buffer
	log.SetOutput(&buf)
	log.Info("hello")

	out := buf.String()
	assert.Contains(t, out, "func=TestNewReportsCallerWhenEnabled")
	assert.Contains(t, out, "logger_test.go:")
}

func TestNewOmitsCallerByDefault(t *testing.T) {
	log, err := New(DefaultConfig())
	require.NoError(t, err)

	var buf bytes.Buffer
	log.SetOutput(&buf)
	log.Info("hello")

	assert.NotContains(t, buf.String(), "logger_test.go")
}

func TestNewJSONFileOutput(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Format = "json"
	cfg.Output = "file"
	cfg.File = filepath.Join(t.TempDir(), "logs", "escalation.log")

	log, err := New(cfg)
	require.NoError(t, err)

	var buf bytes.Buffer
	log.SetOutput(&buf)
	log.WithField("job", "digest").Warn("careful")

	assert.Contains(t, buf.String(), `"message":"careful"`)
	assert.Contains(t, buf.String(), `"job":"digest"`)
	assert.DirExists(t, filepath.Dir(cfg.File))
}

func TestNewRejectsUnknownLevel(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Level = "chatty"

	_, err := New(cfg)
	assert.Error(t, err)
}
