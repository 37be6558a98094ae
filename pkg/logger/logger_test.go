package logger

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestJSONOutputAndLevel(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithWriter(&buf, "warn", "json")

	log.Info().Msg("hidden")
	require.Zero(t, buf.Len(), "info is below warn")

	log.Warn().Str("component", "relay").Msg("visible")
	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	require.Equal(t, "visible", line["message"])
	require.Equal(t, "relay", line["component"])
	require.Equal(t, "medicchat", line["service"])
}

func TestUnknownLevelFallsBackToInfo(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithWriter(&buf, "loud", "json")
	log.Debug().Msg("hidden")
	require.Zero(t, buf.Len())
	log.Info().Msg("shown")
	require.NotZero(t, buf.Len())
}
