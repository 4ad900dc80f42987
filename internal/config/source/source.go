// Package source fetches model artifacts into the models directory.
package source

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/ekisa-team/flamingo/internal/config"
)

const (
	defaultRetryDelay = 2 * time.Second
	defaultMaxRetries = 3
	defaultTimeout    = 5 * time.Minute
	markerFilename    = ".flamingo-downloaded"
)

// Downloader fetches an artifact into targetDir. It returns the local path
// and whether the artifact was already present.
type Downloader interface {
	Download(ctx context.Context, artifact *config.ArtifactConfig, targetDir string) (path string, cached bool, err error)
}

// GetDownloader returns the downloader for a source type.
func GetDownloader(_ context.Context, t config.SourceType) (Downloader, error) {
	switch t {
	case config.SourceTypeHuggingFace:
		return &HuggingFaceDownloader{}, nil
	case config.SourceTypeURL:
		return NewURLDownloader(nil), nil
	default:
		return nil, fmt.Errorf("unsupported source type: %s", t)
	}
}

// EnsureModelsDirectory creates the models directory if needed.
func EnsureModelsDirectory(path string) error {
	info, err := os.Stat(path)
	if err == nil {
		if !info.IsDir() {
			return fmt.Errorf("%s exists and is not a directory", path)
		}
		return nil
	}
	if !os.IsNotExist(err) {
		return err
	}

	slog.Info("Creating models directory", "path", path)
	return os.MkdirAll(path, 0o755)
}

// EnsureArtifacts downloads every configured artifact that is missing and
// returns their local paths by name.
func EnsureArtifacts(ctx context.Context, cfg *config.Config) (map[string]string, error) {
	modelsPath := cfg.ModelsPath()
	if err := EnsureModelsDirectory(modelsPath); err != nil {
		return nil, fmt.Errorf("failed to prepare models directory %s: %w", modelsPath, err)
	}

	names := make([]string, 0, len(cfg.Artifacts))
	for name := range cfg.Artifacts {
		names = append(names, name)
	}
	slices.Sort(names)

	paths := make(map[string]string, len(names))
	for _, name := range names {
		artifact := cfg.Artifacts[name]

		src, err := artifact.GetSource()
		if err != nil {
			return nil, fmt.Errorf("artifact %s: %w", name, err)
		}

		downloader, err := GetDownloader(ctx, src.Type())
		if err != nil {
			return nil, fmt.Errorf("artifact %s: %w", name, err)
		}

		path, cached, err := downloader.Download(ctx, &artifact, modelsPath)
		if err != nil {
			return nil, fmt.Errorf("failed to download artifact %s into %s: %w", name, modelsPath, err)
		}

		paths[name] = path
		slog.Info("Artifact ready", "artifact", name, "path", path, "cached", cached)
	}

	return paths, nil
}

// marker records which source a downloaded directory came from, so a config
// change triggers a fresh download.
type marker struct {
	path    string
	content string
}

// newMarker returns the marker for dir. fields are key, value pairs.
func newMarker(dir string, fields ...string) marker {
	var b strings.Builder
	for i := 0; i+1 < len(fields); i += 2 {
		fmt.Fprintf(&b, "%s: %s\n", fields[i], fields[i+1])
	}
	return marker{path: filepath.Join(dir, markerFilename), content: b.String()}
}

// current reports whether the marker on disk matches.
func (m marker) current() bool {
	content, err := os.ReadFile(m.path)
	if err != nil {
		slog.Debug("Marker file missing or unreadable", "path", m.path, "error", err)
		return false
	}
	if string(content) != m.content {
		slog.Info("Artifact config changed (marker mismatch), will redownload",
			"marker_path", m.path,
			"expected_snippet", m.content,
			"actual_snippet", string(content))
		return false
	}
	return true
}

func (m marker) write() {
	if err := os.WriteFile(m.path, []byte(m.content), 0o644); err != nil {
		slog.Warn("Failed to write download marker", "path", m.path, "error", err)
		return
	}
	slog.Info("Download marker updated", "path", m.path)
}

// retry runs fetch up to defaultMaxRetries times, waiting delay between
// attempts. attrs identify the artifact in log lines.
func retry(ctx context.Context, delay time.Duration, attrs []any, fetch func(ctx context.Context) error) error {
	var lastErr error
	for attempt := range defaultMaxRetries {
		if attempt > 0 {
			slog.Info("Retrying download", append(attrs, "attempt", attempt+1, "last_error", lastErr)...)
			if err := sleep(ctx, delay); err != nil {
				return fmt.Errorf("download canceled: %w", err)
			}
		} else {
			slog.Info("Downloading artifact", attrs...)
		}

		lastErr = fetch(ctx)
		if lastErr == nil {
			slog.Info("Artifact downloaded successfully", append(attrs, "attempt", attempt+1)...)
			return nil
		}
		if ctx.Err() != nil {
			return fmt.Errorf("download canceled: %w", ctx.Err())
		}

		slog.Error("Failed to download artifact", append(attrs, "attempt", attempt+1, "error", lastErr)...)
	}
	return lastErr
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
