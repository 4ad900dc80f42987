package source

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/ekisa-team/flamingo/internal/config"
)

// HuggingFaceDownloader downloads a repository snapshot with the hf CLI.
type HuggingFaceDownloader struct {
	// Bin is the hf executable, "hf" when empty.
	Bin string

	retryDelay time.Duration
}

// Download runs hf download for the repository into targetDir/<repo>. A
// directory whose marker matches the repo and revision is reused.
func (d *HuggingFaceDownloader) Download(ctx context.Context, artifact *config.ArtifactConfig, targetDir string) (string, bool, error) {
	source, err := artifact.GetSource()
	if err != nil {
		return "", false, fmt.Errorf("failed to get artifact source: %w", err)
	}
	hf, ok := source.(config.HuggingFaceSource)
	if !ok {
		return "", false, fmt.Errorf("invalid source type: %T", source)
	}

	repo := strings.TrimSpace(hf.Repo)
	if repo == "" {
		return "", false, fmt.Errorf("invalid repo name: %q", hf.Repo)
	}

	dir := filepath.Join(targetDir, repo)
	mark := newMarker(dir, "repo", repo, "revision", hf.Revision)
	if mark.current() {
		slog.Info("Artifact already downloaded and up-to-date (marker match), skipping", "repo", repo, "path", dir)
		return dir, true, nil
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", false, fmt.Errorf("failed to create directory: %w", err)
	}

	args := hfArgs(hf, repo, dir)
	err = retry(ctx, d.delay(), []any{"repo", repo, "path", dir}, func(ctx context.Context) error {
		runCtx, cancel := context.WithTimeout(ctx, defaultTimeout)
		defer cancel()

		out, err := exec.CommandContext(runCtx, d.bin(), args...).CombinedOutput()
		if err != nil {
			if runCtx.Err() == context.DeadlineExceeded {
				return fmt.Errorf("hf download timed out after %s", defaultTimeout)
			}
			return fmt.Errorf("hf download: %w: %s", err, strings.TrimSpace(string(out)))
		}
		return nil
	})
	if err != nil {
		return "", false, err
	}

	mark.write()
	return dir, false, nil
}

// hfArgs builds the hf download command line.
func hfArgs(hf config.HuggingFaceSource, repo, dir string) []string {
	args := []string{"download", repo, "--local-dir", dir}
	if hf.Revision != "" {
		args = append(args, "--revision", hf.Revision)
	}
	if hf.RepoType != "" {
		args = append(args, "--repo-type", hf.RepoType)
	}
	for _, inc := range hf.Include {
		args = append(args, "--include", inc)
	}
	for _, exc := range hf.Exclude {
		args = append(args, "--exclude", exc)
	}
	if hf.ForceDownload {
		args = append(args, "--force-download")
	}
	if hf.Token != "" {
		args = append(args, "--token", hf.Token)
	}
	if hf.MaxWorkers > 0 {
		args = append(args, "--max-workers", strconv.Itoa(hf.MaxWorkers))
	}
	return args
}

func (d *HuggingFaceDownloader) bin() string {
	if d.Bin != "" {
		return d.Bin
	}
	return "hf"
}

func (d *HuggingFaceDownloader) delay() time.Duration {
	if d.retryDelay > 0 {
		return d.retryDelay
	}
	return defaultRetryDelay
}
