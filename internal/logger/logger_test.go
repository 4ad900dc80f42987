package logger

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ekisa-team/flamingo/internal/env"
)

func TestNew_ProductionWritesJSON(t *testing.T) {
	var buf bytes.Buffer
	log := New(env.Production, WithOutput(&buf))

	log.Info("Model loaded", "model_id", "small")
	log.Debug("Hidden at info level")

	var record map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &record))
	assert.Equal(t, "Model loaded", record["msg"])
	assert.Equal(t, "small", record["model_id"])
	assert.NotContains(t, buf.String(), "Hidden")
}

func TestNew_DevelopmentUsesDebugLevel(t *testing.T) {
	var buf bytes.Buffer
	log := New(env.Development, WithOutput(&buf))

	log.Debug("Decoding", "beam_size", 1)
	assert.Contains(t, buf.String(), "Decoding")
}

func TestNew_FanOutToFile(t *testing.T) {
	var buf bytes.Buffer
	path := filepath.Join(t.TempDir(), "flamingo.log")
	log := New(env.Production, WithOutput(&buf), WithLogToFile(true), WithLogFile(path))

	log.With("request_id", "r-1").Warn("Noise manifest empty")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "Noise manifest empty")
	assert.Contains(t, string(data), "r-1")
	assert.Contains(t, buf.String(), "Noise manifest empty")
}
