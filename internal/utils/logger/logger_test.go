package logger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestNewLogger(t *testing.T) {
	for _, level := range []string{"debug", "info", "warn", "error", "bogus"} {
		log, err := NewLogger(level, "development")
		require.NoError(t, err)
		require.NotNil(t, log)
	}

	log, err := NewLogger("info", "production")
	require.NoError(t, err)
	require.NotNil(t, log)
}

func TestWithComponent(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	log := WithComponent(zap.New(core), "cleanup_worker")

	log.Info("sweep finished")

	entries := logs.All()
	require.Len(t, entries, 1)
	assert.Equal(t, "cleanup_worker", entries[0].ContextMap()["component"])
}
