package logging

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewWithWriter(t *testing.T) {
	tests := []struct {
		name        string
		level       string
		format      string
		expectError bool
		expectJSON  bool
	}{
		{name: "debug_json", level: "debug", format: FormatJSON, expectJSON: true},
		{name: "info_json", level: "info", format: FormatJSON, expectJSON: true},
		{name: "info_console", level: "info", format: FormatConsole},
		{name: "unsupported_level", level: "verbose", format: FormatJSON, expectError: true},
		{name: "unsupported_format", level: "info", format: "xml", expectError: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			logger, err := NewWithWriter(tt.level, tt.format, &buf)

			if tt.expectError {
				require.Error(t, err)
				require.Nil(t, logger)
				return
			}
			require.NoError(t, err)

			logger.Info("logging_test_message")
			_ = logger.Sync()

			out := bytes.TrimSpace(buf.Bytes())
			require.Contains(t, string(out), "logging_test_message")
			require.Equal(t, tt.expectJSON, json.Valid(out))
		})
	}
}

func TestNewWithWriter_LevelFilters(t *testing.T) {
	var buf bytes.Buffer
	logger, err := NewWithWriter("warn", FormatJSON, &buf)
	require.NoError(t, err)

	logger.Info("hidden")
	logger.Warn("shown")

	require.NotContains(t, buf.String(), "hidden")
	require.Contains(t, buf.String(), "shown")
}
