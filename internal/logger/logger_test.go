package logger

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewWithWriter_JSON(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithWriter(&buf, "warn", false)

	log.Info().Msg("dropped")
	log.Warn().Str("symbol", "7203.T").Msg("kept")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "kept", line["message"])
	assert.Equal(t, "7203.T", line["symbol"])
	assert.Equal(t, "kabuscout", line["service"])
	assert.Equal(t, "warn", line["level"])
}

func TestNewWithWriter_UnknownLevelIsInfo(t *testing.T) {
	log := NewWithWriter(&bytes.Buffer{}, "loud", false)
	assert.Equal(t, zerolog.InfoLevel, log.GetLevel())

	log = NewWithWriter(&bytes.Buffer{}, "", false)
	assert.Equal(t, zerolog.InfoLevel, log.GetLevel())
}

func TestNewWithWriter_Pretty(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithWriter(&buf, "debug", true)
	log.Debug().Msg("hello")
	assert.Contains(t, buf.String(), "hello")
	assert.NotContains(t, buf.String(), `"message"`)
}
