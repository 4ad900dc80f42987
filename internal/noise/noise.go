// Package noise mixes background noise into clean speech at a target
// signal-to-noise ratio.
package noise

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/ekisa-team/flamingo/internal/audio"
	resampling "github.com/tphakala/go-audio-resampling"
)

// DisabledSNR is the threshold at or above which augmentation is skipped.
const DisabledSNR = 100

// Augmenter adds noise drawn from manifest files to waveforms.
type Augmenter struct {
	selector Selector
	root     string
	logger   *slog.Logger

	mu        sync.Mutex
	manifests map[string][]string
}

// Option configures an Augmenter.
type Option func(*Augmenter)

// WithSelector sets the manifest entry selection policy.
func WithSelector(s Selector) Option {
	return func(a *Augmenter) { a.selector = s }
}

// WithRoot resolves relative manifest entries against dir instead of the
// manifest's own directory.
func WithRoot(dir string) Option {
	return func(a *Augmenter) { a.root = dir }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(a *Augmenter) { a.logger = l }
}

// NewAugmenter creates an Augmenter. The default selector is uniform random.
func NewAugmenter(opts ...Option) *Augmenter {
	a := &Augmenter{
		logger:    slog.Default(),
		manifests: make(map[string][]string),
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.selector == nil {
		a.selector = NewRandomSelector(nil)
	}
	return a
}

// Enabled reports whether snr requests augmentation.
func Enabled(snr int) bool {
	return snr < DisabledSNR
}

// Augment returns a copy of w with one noise clip from manifest mixed in at
// snr dB. The input waveform is never modified.
func (a *Augmenter) Augment(ctx context.Context, w audio.Waveform, manifest string, snr int) (audio.Waveform, error) {
	if !Enabled(snr) {
		return w.Clone(), nil
	}

	entries, err := a.Manifest(manifest)
	if err != nil {
		return audio.Waveform{}, err
	}
	if err := ctx.Err(); err != nil {
		return audio.Waveform{}, err
	}

	path := entries[a.selector.Select(len(entries))]
	clip, err := a.loadClip(path, w.SampleRate)
	if err != nil {
		return audio.Waveform{}, err
	}

	noise := Tile(clip, len(w.Samples))
	out, ok := Mix(w.Samples, noise, float64(snr))
	if !ok {
		a.logger.Warn("Noise clip is silent, leaving audio unchanged", "file", path)
	} else {
		a.logger.Debug("Applied noise", "file", path, "snr", snr)
	}

	return audio.Waveform{SampleRate: w.SampleRate, Samples: out}, nil
}

// Manifest returns the entries of the manifest at path, loading it on first use.
func (a *Augmenter) Manifest(path string) ([]string, error) {
	if path == "" {
		return nil, fmt.Errorf("%w: no manifest configured", ErrManifestNotFound)
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if entries, ok := a.manifests[path]; ok {
		return entries, nil
	}

	entries, err := readManifest(path, a.root)
	if err != nil {
		return nil, err
	}
	a.manifests[path] = entries
	a.logger.Info("Loaded noise manifest", "path", path, "entries", len(entries))

	return entries, nil
}

func readManifest(path, root string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrManifestNotFound, path)
		}
		return nil, fmt.Errorf("%w: %s: %v", ErrManifestNotFound, path, err)
	}

	if root == "" {
		root = filepath.Dir(path)
	}

	var entries []string
	sc := bufio.NewScanner(bytes.NewReader(data))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		if !filepath.IsAbs(line) {
			line = filepath.Join(root, line)
		}
		entries = append(entries, line)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrManifestNotFound, path, err)
	}
	if len(entries) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrManifestEmpty, path)
	}

	return entries, nil
}

func (a *Augmenter) loadClip(path string, sampleRate int) ([]int16, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrNoiseUnreadable, path, err)
	}

	w, err := audio.DecodeWAVMono(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrNoiseUnreadable, path, err)
	}

	if w.SampleRate != sampleRate {
		w, err = Resample(w, sampleRate)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrNoiseUnreadable, path, err)
		}
	}
	if len(w.Samples) == 0 {
		return nil, fmt.Errorf("%w: %s: no samples", ErrNoiseUnreadable, path)
	}

	return w.Samples, nil
}

// Resample converts w to the target sample rate.
func Resample(w audio.Waveform, rate int) (audio.Waveform, error) {
	rs, err := resampling.New(&resampling.Config{
		InputRate:  float64(w.SampleRate),
		OutputRate: float64(rate),
		Channels:   1,
		Quality:    resampling.QualitySpec{Preset: resampling.QualityHigh},
	})
	if err != nil {
		return audio.Waveform{}, fmt.Errorf("failed to create resampler: %w", err)
	}

	input := make([]float64, len(w.Samples))
	for i, s := range w.Samples {
		input[i] = float64(s) / audio.FullScale
	}

	output, err := rs.Process(input)
	if err != nil {
		return audio.Waveform{}, fmt.Errorf("failed to resample: %w", err)
	}

	samples := make([]int16, len(output))
	for i, v := range output {
		samples[i] = clip(v * audio.FullScale)
	}

	return audio.Waveform{SampleRate: rate, Samples: samples}, nil
}

// Tile loops noise from its first sample until it covers n samples, or trims
// it to n when it is longer.
func Tile(noise []int16, n int) []int16 {
	out := make([]int16, n)
	if len(noise) == 0 {
		return out
	}
	for off := 0; off < n; off += len(noise) {
		copy(out[off:], noise)
	}
	return out
}

// Mix scales noise to the requested SNR relative to clean and adds it,
// clipping to the int16 range. It reports false and returns a copy of clean
// when the noise carries no energy.
func Mix(clean, noise []int16, snr float64) ([]int16, bool) {
	out := make([]int16, len(clean))
	copy(out, clean)

	pn := audio.Power(noise)
	if pn == 0 {
		return out, false
	}
	ps := audio.Power(clean)
	scale := math.Sqrt(ps / (pn * math.Pow(10, snr/10)))

	for i := range out {
		out[i] = clip(float64(clean[i]) + scale*float64(noise[i]))
	}
	return out, true
}

func clip(v float64) int16 {
	v = math.Round(v)
	if v > math.MaxInt16 {
		return math.MaxInt16
	}
	if v < math.MinInt16 {
		return math.MinInt16
	}
	return int16(v)
}
