package app

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/ekisa-team/flamingo/internal/audio/audiotest"
	"github.com/ekisa-team/flamingo/internal/avsr"
	"github.com/ekisa-team/flamingo/internal/backend"
	"github.com/ekisa-team/flamingo/internal/config"
	"github.com/ekisa-team/flamingo/internal/envvar"
	"github.com/ekisa-team/flamingo/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	t.Setenv(envvar.FlamingoModelsPath, "")

	cfg := config.Default()
	cfg.Storage.ModelsDir = t.TempDir()
	return cfg
}

func asrRequest(t *testing.T) *avsr.Request {
	p := avsr.DefaultParams()
	p.Modalities = "asr"
	return &avsr.Request{
		Audio:  audiotest.WAV(t, 16000, 1, 16, audiotest.Sine(16000, 16000, 220, 8000)),
		Params: p,
	}
}

func TestApp_PreloadAndTranscribe(t *testing.T) {
	a, err := New(testConfig(t), nil)
	require.NoError(t, err)
	defer a.Close()

	require.NoError(t, a.Preload(context.Background()))

	states := a.Models.States()
	require.Len(t, states, 1)
	assert.Equal(t, model.StatusLoaded, states[0].Status)
	assert.Equal(t, avsr.AudioVisual, states[0].Modality)

	res, err := a.Transcriber.Transcribe(context.Background(), asrRequest(t))
	require.NoError(t, err)
	assert.Equal(t, "hello world", res.Text)
}

func TestApp_VideoWithoutExtractor(t *testing.T) {
	a, err := New(testConfig(t), nil)
	require.NoError(t, err)
	defer a.Close()

	videoPath := filepath.Join(t.TempDir(), "clip.mp4")
	require.NoError(t, os.WriteFile(videoPath, []byte("x"), 0o644))

	req := asrRequest(t)
	req.Params.Modalities = "vsr"
	req.Video = videoPath

	_, err = a.Transcriber.Transcribe(context.Background(), req)
	assert.ErrorIs(t, err, avsr.ErrConfiguration)
}

func TestApp_GRPCBackendNeedsEndpoint(t *testing.T) {
	cfg := testConfig(t)
	cfg.Model.Backend = string(backend.ProviderGRPC)

	_, err := New(cfg, nil)
	assert.ErrorIs(t, err, avsr.ErrConfiguration)
}

func TestApp_MissingExtractorBinary(t *testing.T) {
	cfg := testConfig(t)
	cfg.Video.Extractor = filepath.Join(t.TempDir(), "missing-extractor")

	_, err := New(cfg, nil)
	assert.ErrorIs(t, err, avsr.ErrConfiguration)
}

func TestApp_DiskCache(t *testing.T) {
	cfg := testConfig(t)
	cfg.Cache.Enabled = true
	cfg.Cache.Dir = t.TempDir()

	a, err := New(cfg, nil)
	require.NoError(t, err)
	defer a.Close()

	req := asrRequest(t)
	_, err = a.Transcriber.Transcribe(context.Background(), req)
	require.NoError(t, err)

	res, err := a.Transcriber.Transcribe(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, true, res.Metrics["cached"])
}

func TestApp_Reload(t *testing.T) {
	cfg := testConfig(t)
	a, err := New(cfg, nil)
	require.NoError(t, err)
	defer a.Close()

	require.NoError(t, a.Preload(context.Background()))

	next := *cfg
	next.Model.Variant = "large-v3"
	require.NoError(t, a.Reload(context.Background(), &next))

	states := a.Models.States()
	require.Len(t, states, 1)
	assert.Equal(t, "large-v3", states[0].Variant)
	assert.Equal(t, 128, states[0].Contract.NumMels)
}
