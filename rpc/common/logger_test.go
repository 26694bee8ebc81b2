package common

import (
	"github.com/stretchr/testify/require"
	"testing"
)

func TestParseLogLevel(t *testing.T) {
	for _, level := range []string{"debug", "INFO", " warn ", "warning", "error", "critical"} {
		_, err := ParseLogLevel(level)
		require.NoError(t, err, level)
	}
	_, err := ParseLogLevel("loud")
	require.Error(t, err)
}

func TestSetLogLevelCoversEveryPackage(t *testing.T) {
	for _, name := range []string{"bus", "relay", "cache", "facts", "node", "metrics", "store", "transport", "cmd"} {
		require.Contains(t, loggerNames, name)
	}

	require.NoError(t, SetLogLevel("warn"))
	require.Equal(t, "warn", LogLevel())
	require.Error(t, SetLogLevel("loud"))
	require.Equal(t, "warn", LogLevel())
	require.NoError(t, SetLogLevel("info"))
}
