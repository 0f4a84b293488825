// File: internal/observability/logger_test.go
package observability

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/hexfn/chauffeur/internal/config"
)

// memSink is an in-memory WriteSyncer for capturing encoder output.
type memSink struct {
	data []byte
}

func (s *memSink) Write(p []byte) (int, error) {
	s.data = append(s.data, p...)
	return len(p), nil
}

func (s *memSink) Sync() error { return nil }

func TestInitializeJSONFormat(t *testing.T) {
	ResetForTest()
	t.Cleanup(ResetForTest)

	sink := &memSink{}
	Initialize(config.LoggerConfig{
		Level:       "debug",
		Format:      "json",
		ServiceName: "chauffeur-test",
	}, sink)

	logger := GetLogger()
	require.NotNil(t, logger)

	logger.Info("hello", zap.String("key", "value"))
	require.NoError(t, logger.Sync())

	var entry map[string]any
	require.NoError(t, json.Unmarshal(sink.data, &entry), "JSON format should emit parseable lines")
	assert.Equal(t, "hello", entry["msg"])
	assert.Equal(t, "value", entry["key"])
	assert.Equal(t, "chauffeur-test", entry["logger"])
}

func TestInitializeRespectsLevel(t *testing.T) {
	ResetForTest()
	t.Cleanup(ResetForTest)

	sink := &memSink{}
	Initialize(config.LoggerConfig{
		Level:       "warn",
		Format:      "json",
		ServiceName: "chauffeur-test",
	}, sink)

	logger := GetLogger()
	logger.Info("dropped")
	logger.Warn("kept")
	require.NoError(t, logger.Sync())

	assert.NotContains(t, string(sink.data), "dropped")
	assert.Contains(t, string(sink.data), "kept")
}

func TestInitializeOnlyOnce(t *testing.T) {
	ResetForTest()
	t.Cleanup(ResetForTest)

	first := &memSink{}
	second := &memSink{}
	Initialize(config.LoggerConfig{Level: "info", Format: "json", ServiceName: "a"}, first)
	Initialize(config.LoggerConfig{Level: "info", Format: "json", ServiceName: "b"}, second)

	GetLogger().Info("once")
	require.NoError(t, GetLogger().Sync())

	assert.NotEmpty(t, first.data, "first initialization should win")
	assert.Empty(t, second.data, "second initialization must be a no-op")
}

func TestGetLoggerFallback(t *testing.T) {
	ResetForTest()
	t.Cleanup(ResetForTest)

	logger := GetLogger()
	require.NotNil(t, logger, "fallback logger must never be nil")
}

func TestInvalidLevelDefaultsToInfo(t *testing.T) {
	ResetForTest()
	t.Cleanup(ResetForTest)

	sink := &memSink{}
	Initialize(config.LoggerConfig{Level: "chatty", Format: "json", ServiceName: "t"}, sink)

	GetLogger().Debug("dropped at info")
	GetLogger().Info("kept at info")
	require.NoError(t, GetLogger().Sync())

	assert.NotContains(t, string(sink.data), "dropped at info")
	assert.Contains(t, string(sink.data), "kept at info")
}
