package source

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ekisa-team/flamingo/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func urlArtifact(url, path, sum string) *config.ArtifactConfig {
	return &config.ArtifactConfig{Source: config.SourceConfig{URL: &config.URLSource{URL: url, Path: path, SHA256: sum}}}
}

func TestURLDownloader(t *testing.T) {
	payload := []byte("weights")
	sum := sha256.Sum256(payload)

	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		_, _ = w.Write(payload)
	}))
	defer srv.Close()

	dir := t.TempDir()
	d := NewURLDownloader(srv.Client())
	art := urlArtifact(srv.URL+"/w.msgpack", "avhubert/w.msgpack", hex.EncodeToString(sum[:]))

	path, cached, err := d.Download(context.Background(), art, dir)
	require.NoError(t, err)
	assert.False(t, cached)
	assert.Equal(t, filepath.Join(dir, "avhubert", "w.msgpack"), path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, payload, data)

	_, cached, err = d.Download(context.Background(), art, dir)
	require.NoError(t, err)
	assert.True(t, cached)
	assert.Equal(t, int32(1), hits.Load())
}

func TestURLDownloader_ChecksumMismatch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("tampered"))
	}))
	defer srv.Close()

	dir := t.TempDir()
	d := NewURLDownloader(srv.Client())
	d.retryDelay = 0

	bad := "0000000000000000000000000000000000000000000000000000000000000000"
	_, _, err := d.Download(context.Background(), urlArtifact(srv.URL, "w.bin", bad), dir)
	assert.ErrorContains(t, err, "checksum mismatch")
	assert.NoFileExists(t, filepath.Join(dir, "w.bin"))
}

func TestURLDownloader_RejectsEscape(t *testing.T) {
	d := NewURLDownloader(nil)

	_, _, err := d.Download(context.Background(), urlArtifact("http://localhost/x", "../../etc/passwd", ""), t.TempDir())
	assert.Error(t, err)
}

func TestGetDownloader(t *testing.T) {
	d, err := GetDownloader(context.Background(), config.SourceTypeHuggingFace)
	require.NoError(t, err)
	assert.IsType(t, &HuggingFaceDownloader{}, d)

	d, err = GetDownloader(context.Background(), config.SourceTypeURL)
	require.NoError(t, err)
	assert.IsType(t, &URLDownloader{}, d)

	_, err = GetDownloader(context.Background(), "s3")
	assert.Error(t, err)
}

func TestEnsureModelsDirectory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "a", "b")
	require.NoError(t, EnsureModelsDirectory(dir))
	assert.DirExists(t, dir)
	require.NoError(t, EnsureModelsDirectory(dir))

	file := filepath.Join(t.TempDir(), "f")
	require.NoError(t, os.WriteFile(file, nil, 0o644))
	assert.Error(t, EnsureModelsDirectory(file))
}

func TestMarker(t *testing.T) {
	dir := t.TempDir()

	m := newMarker(dir, "repo", "org/repo", "revision", "main")
	assert.Equal(t, "repo: org/repo\nrevision: main\n", m.content)
	assert.False(t, m.current())

	m.write()
	assert.True(t, m.current())
	assert.False(t, newMarker(dir, "repo", "org/repo", "revision", "v2").current())
}

func TestRetry(t *testing.T) {
	var calls int
	err := retry(context.Background(), 0, []any{"url", "x"}, func(context.Context) error {
		calls++
		if calls < 2 {
			return errors.New("flaky")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 2, calls)

	calls = 0
	err = retry(context.Background(), 0, nil, func(context.Context) error {
		calls++
		return errors.New("down")
	})
	assert.EqualError(t, err, "down")
	assert.Equal(t, defaultMaxRetries, calls)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err = retry(ctx, time.Hour, nil, func(context.Context) error { return errors.New("down") })
	assert.ErrorIs(t, err, context.Canceled)
}

func TestHFArgs(t *testing.T) {
	hf := config.HuggingFaceSource{
		Repo:       "org/repo",
		Revision:   "main",
		Include:    []string{"*.msgpack"},
		MaxWorkers: 4,
	}
	assert.Equal(t, []string{
		"download", "org/repo", "--local-dir", "/models/org/repo",
		"--revision", "main",
		"--include", "*.msgpack",
		"--max-workers", "4",
	}, hfArgs(hf, "org/repo", "/models/org/repo"))
}

func TestHuggingFaceDownloader(t *testing.T) {
	dir := t.TempDir()
	log := filepath.Join(dir, "calls")
	bin := filepath.Join(dir, "hf")
	require.NoError(t, os.WriteFile(bin, []byte("#!/bin/sh\necho \"$@\" >> "+log+"\n"), 0o755))

	d := &HuggingFaceDownloader{Bin: bin}
	models := filepath.Join(dir, "models")
	art := &config.ArtifactConfig{Source: config.SourceConfig{HuggingFace: &config.HuggingFaceSource{Repo: "org/repo", Revision: "main"}}}

	path, cached, err := d.Download(context.Background(), art, models)
	require.NoError(t, err)
	assert.False(t, cached)
	assert.Equal(t, filepath.Join(models, "org", "repo"), path)
	assert.FileExists(t, filepath.Join(path, markerFilename))

	_, cached, err = d.Download(context.Background(), art, models)
	require.NoError(t, err)
	assert.True(t, cached)

	data, err := os.ReadFile(log)
	require.NoError(t, err)
	assert.Equal(t, "download org/repo --local-dir "+path+" --revision main\n", string(data))
}

func TestHuggingFaceDownloader_Failure(t *testing.T) {
	d := &HuggingFaceDownloader{Bin: filepath.Join(t.TempDir(), "missing-hf"), retryDelay: time.Millisecond}
	art := &config.ArtifactConfig{Source: config.SourceConfig{HuggingFace: &config.HuggingFaceSource{Repo: "org/repo"}}}

	dir := t.TempDir()
	_, _, err := d.Download(context.Background(), art, dir)
	require.Error(t, err)
	assert.NoFileExists(t, filepath.Join(dir, "org", "repo", markerFilename))
}
