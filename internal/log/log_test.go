package log

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLevelFiltering(t *testing.T) {
	l := New("", "WARN")
	require.False(t, l.enabled("DEBUG"))
	require.False(t, l.enabled("INFO"))
	require.True(t, l.enabled("WARN"))
	require.True(t, l.enabled("ERROR"))
}

func TestWarnOnceFiresSingleTime(t *testing.T) {
	l := New("", "DEBUG")
	l.WarnOnce("remote-down", "remote tier unavailable", Pairs{"backend": "redis"})
	require.True(t, l.warned["remote-down"])
	// second call must not panic and must remain a no-op; nothing to assert on
	// output here since Logger writes directly to the configured writer.
	l.WarnOnce("remote-down", "remote tier unavailable", Pairs{"backend": "redis"})
}

func TestPackageLevelLoggerDoesNotPanic(t *testing.T) {
	Init("", "DEBUG")
	Debug("testing debug", Pairs{"k": "v"})
	Info("testing info", Pairs{"k": "v"})
	Warn("testing warn", Pairs{"k": "v"})
	Error("testing error", Pairs{"k": "v"})
}
