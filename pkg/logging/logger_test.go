package logging

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogLevels(t *testing.T) {
	buf := &bytes.Buffer{}
	logger := NewLogger(&Config{Level: InfoLevel, Format: TextFormat, Output: buf})

	logger.Debug("debug message")
	assert.Zero(t, buf.Len(), "debug message should be suppressed at info level")

	logger.Info("info message")
	assert.Contains(t, buf.String(), "info message")
	assert.Contains(t, buf.String(), "[INFO]")
}

func TestJSONFormat(t *testing.T) {
	buf := &bytes.Buffer{}
	logger := NewLogger(&Config{Level: InfoLevel, Format: JSONFormat, Output: buf})

	logger.Info("test message", map[string]interface{}{"key1": "value1", "key2": 42})

	var entry LogEntry
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "INFO", entry.Level)
	assert.Equal(t, "test message", entry.Message)
	assert.Equal(t, "value1", entry.Fields["key1"])
	assert.Equal(t, float64(42), entry.Fields["key2"])
}

func TestWithFieldsAndComponent(t *testing.T) {
	buf := &bytes.Buffer{}
	logger := NewLogger(&Config{Level: InfoLevel, Format: JSONFormat, Output: buf, Component: "transfer"})

	logger.WithFields(map[string]interface{}{"session_id": "s-1"}).Info("chunk accepted")

	var entry LogEntry
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "s-1", entry.Fields["session_id"])
	assert.Equal(t, "transfer", entry.Fields["component"])
}

func TestWithOperationAndSession(t *testing.T) {
	buf := &bytes.Buffer{}
	logger := NewLogger(&Config{Level: InfoLevel, Format: JSONFormat, Output: buf})

	logger.WithOperation("op-1").WithField("stage", "commit").Info("committed")

	var entry LogEntry
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "op-1", entry.Fields["operation_id"])
	assert.Equal(t, "commit", entry.Fields["stage"])

	buf.Reset()
	logger.WithSession("s-1").Info("chunk accepted")

	var sessEntry LogEntry
	require.NoError(t, json.Unmarshal(buf.Bytes(), &sessEntry))
	assert.Equal(t, "s-1", sessEntry.Fields["session_id"])
}

func TestFormattedMethods(t *testing.T) {
	buf := &bytes.Buffer{}
	logger := NewLogger(&Config{Level: InfoLevel, Format: TextFormat, Output: buf})

	logger.Infof("formatted %s with %d", "message", 42)
	assert.Contains(t, buf.String(), "formatted message with 42")
}

func TestFileOutput(t *testing.T) {
	dir := t.TempDir()
	logFile := filepath.Join(dir, "test.log")

	fileWriter, err := CreateFileOutput(logFile)
	require.NoError(t, err)

	logger := NewLogger(&Config{Level: InfoLevel, Format: TextFormat, Output: fileWriter})
	logger.Info("test message to file")

	content, err := os.ReadFile(logFile)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(content), "test message to file"))
}

func TestParseLogLevel(t *testing.T) {
	level, err := ParseLogLevel("debug")
	require.NoError(t, err)
	assert.Equal(t, DebugLevel, level)

	_, err = ParseLogLevel("bogus")
	assert.Error(t, err)
}

func TestGlobalLogger(t *testing.T) {
	buf := &bytes.Buffer{}
	InitGlobalLogger(&Config{Level: DebugLevel, Format: TextFormat, Output: buf})

	Info("global info")
	assert.Contains(t, buf.String(), "global info")
}
