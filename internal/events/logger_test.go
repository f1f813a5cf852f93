package events

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLoggerLevels(t *testing.T) {
	var buf bytes.Buffer
	logger := NewTestLogger(WarnLevel, &buf)

	logger.Debug("debug message")
	logger.Info("info message")
	logger.Warn("warn message")
	logger.Error("error message")

	out := buf.String()
	assert.NotContains(t, out, "debug message")
	assert.NotContains(t, out, "info message")
	assert.Contains(t, out, "warn message")
	assert.Contains(t, out, "error message")
}

func TestLoggerFields(t *testing.T) {
	var buf bytes.Buffer
	logger := NewTestLogger(DebugLevel, &buf)

	logger.WithField("device_id", "phone-1").Info("paired")

	line := buf.String()
	assert.Contains(t, line, "[INFO]")
	assert.Contains(t, line, "paired")
	assert.Contains(t, line, "device_id=phone-1")
}

func TestLoggerFieldsSorted(t *testing.T) {
	var buf bytes.Buffer
	logger := NewTestLogger(DebugLevel, &buf)

	logger.WithFields(map[string]interface{}{
		"zebra": 1,
		"alpha": 2,
	}).Info("msg")

	line := buf.String()
	assert.Less(t, strings.Index(line, "alpha="), strings.Index(line, "zebra="))
}

func TestLoggerChildDoesNotMutateParent(t *testing.T) {
	var buf bytes.Buffer
	parent := NewTestLogger(DebugLevel, &buf)
	_ = parent.WithField("child_only", "yes")

	parent.Info("from parent")
	assert.NotContains(t, buf.String(), "child_only")
}

func TestLoggerWithError(t *testing.T) {
	var buf bytes.Buffer
	logger := NewTestLogger(DebugLevel, &buf)

	logger.WithError(errors.New("boom")).Error("failed")
	assert.Contains(t, buf.String(), "error=boom")
}
