package logger

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_InvalidLevel(t *testing.T) {
	t.Parallel()

	_, err := New(Config{Level: "chatty"})
	assert.Error(t, err)
}

func TestNewWithWriter_JSON(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	log := NewWithWriter(Config{Format: "json"}, &buf, zerolog.InfoLevel)

	log.Debug().Msg("hidden")
	log.Info().Str("component", "engine").Float64("equity", 10000).Msg("heartbeat")

	var ev map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &ev))
	assert.Equal(t, "heartbeat", ev["message"])
	assert.Equal(t, "engine", ev["component"])
	assert.Equal(t, 10000.0, ev["equity"])
	assert.Contains(t, ev, "time")
}

func TestNew_File(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "engine.log")
	log, err := New(Config{Level: "debug", Format: "json", Output: path})
	require.NoError(t, err)

	log.Debug().Msg("written")

	b, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(b), `"message":"written"`)
}
