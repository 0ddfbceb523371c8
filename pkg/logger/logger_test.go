package logger

import (
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestInitHonoursLevel(t *testing.T) {
	t.Cleanup(func() { Replace(nil) })

	require.NoError(t, Init("debug", "json"))
	require.True(t, Logger().Core().Enabled(zap.DebugLevel))

	SetLevel("warn")
	require.False(t, Logger().Core().Enabled(zap.InfoLevel))
	require.True(t, Logger().Core().Enabled(zap.WarnLevel))
}

func TestInitFallsBackToInfo(t *testing.T) {
	t.Cleanup(func() { Replace(nil) })

	require.NoError(t, Init("not-a-level", "console"))
	require.False(t, Logger().Core().Enabled(zap.DebugLevel))
	require.True(t, Logger().Core().Enabled(zap.InfoLevel))
}

func TestReplaceNilInstallsNop(t *testing.T) {
	Replace(nil)
	require.NotNil(t, Logger())
	require.False(t, Logger().Core().Enabled(zap.ErrorLevel))
}

func TestWithModuleAttachesModuleField(t *testing.T) {
	core, recorded := observer.New(zap.InfoLevel)
	t.Cleanup(func() { Replace(nil) })
	Replace(zap.New(core))

	WithModule("realtime").Info("stream opened", zap.String("user_id", "7"))

	entries := recorded.All()
	require.Len(t, entries, 1)
	require.Equal(t, "realtime", entries[0].ContextMap()["module"])
	require.Equal(t, "7", entries[0].ContextMap()["user_id"])
}
