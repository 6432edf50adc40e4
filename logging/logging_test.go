package logging

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLevelRoundTrip(t *testing.T) {
	for _, level := range []int{TraceLevel, DebugLevel, InfoLevel, WarnLevel, ErrorLevel, FatalLevel} {
		require.Equal(t, level, LevelFromString(LogLevelToString(level)))
	}
	require.Equal(t, InfoLevel, LevelFromString("bogus"))
}

func TestSlogLoggerFiltersByLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := NewSlogLoggerTo(&buf, WarnLevel).With("worker", 3)
	logger.Info("ignored")
	logger.Warn("kept", "channel", 7)
	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	require.Len(t, lines, 1)
	var msg map[string]interface{}
	require.Nil(t, json.Unmarshal(lines[0], &msg))
	require.Equal(t, "kept", msg["msg"])
	require.Equal(t, float64(3), msg["worker"])
	require.Equal(t, float64(7), msg["channel"])
}
