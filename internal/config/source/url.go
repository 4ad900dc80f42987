package source

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ekisa-team/flamingo/internal/config"
	"github.com/ekisa-team/flamingo/internal/xfs"
	"github.com/google/uuid"
)

// URLDownloader fetches a single file over HTTP(S).
type URLDownloader struct {
	client     *http.Client
	retryDelay time.Duration
}

// NewURLDownloader creates a downloader. A nil client uses a client with the
// default download timeout.
func NewURLDownloader(client *http.Client) *URLDownloader {
	if client == nil {
		client = &http.Client{Timeout: defaultTimeout}
	}
	return &URLDownloader{client: client, retryDelay: defaultRetryDelay}
}

// Download fetches the file unless it already exists with the expected checksum.
func (d *URLDownloader) Download(ctx context.Context, artifact *config.ArtifactConfig, targetDir string) (string, bool, error) {
	source, err := artifact.GetSource()
	if err != nil {
		return "", false, fmt.Errorf("failed to get artifact source: %w", err)
	}

	urlSource, ok := source.(config.URLSource)
	if !ok {
		return "", false, fmt.Errorf("invalid source type: %T", source)
	}

	dest, err := xfs.Within(targetDir, urlSource.Path)
	if err != nil {
		return "", false, fmt.Errorf("invalid artifact path %q: %w", urlSource.Path, err)
	}

	if xfs.Exists(dest) {
		if urlSource.SHA256 == "" {
			slog.Info("Artifact already downloaded, skipping", "path", dest)
			return dest, true, nil
		}
		if sum, err := fileSHA256(dest); err == nil && strings.EqualFold(sum, urlSource.SHA256) {
			slog.Info("Artifact already downloaded and verified, skipping", "path", dest)
			return dest, true, nil
		}
		slog.Info("Artifact checksum mismatch, will redownload", "path", dest)
	}

	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return "", false, fmt.Errorf("failed to create directory: %w", err)
	}

	attrs := []any{"url", urlSource.URL, "path", dest}
	if err := retry(ctx, d.retryDelay, attrs, func(ctx context.Context) error {
		return d.fetch(ctx, urlSource, dest)
	}); err != nil {
		return "", false, err
	}
	return dest, false, nil
}

// fetch downloads into a temporary sibling and renames it into place.
func (d *URLDownloader) fetch(ctx context.Context, src config.URLSource, dest string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, src.URL, http.NoBody)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("request failed with status code %d", resp.StatusCode)
	}

	tmp := fmt.Sprintf("%s.%s.part", dest, uuid.NewString())
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer os.Remove(tmp)

	h := sha256.New()
	if _, err := io.Copy(io.MultiWriter(f, h), resp.Body); err != nil {
		f.Close()
		return fmt.Errorf("failed to write file: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to close file: %w", err)
	}

	if src.SHA256 != "" {
		if sum := hex.EncodeToString(h.Sum(nil)); !strings.EqualFold(sum, src.SHA256) {
			return fmt.Errorf("checksum mismatch: got %s, want %s", sum, src.SHA256)
		}
	}

	return os.Rename(tmp, dest)
}

func fileSHA256(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
