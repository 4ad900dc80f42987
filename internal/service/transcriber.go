// Package service runs transcription requests end to end: validation, feature
// extraction, model acquisition and modality dispatch.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ekisa-team/flamingo/internal/audio"
	"github.com/ekisa-team/flamingo/internal/audio/mel"
	"github.com/ekisa-team/flamingo/internal/avsr"
	"github.com/ekisa-team/flamingo/internal/backend"
	"github.com/ekisa-team/flamingo/internal/cache"
	"github.com/ekisa-team/flamingo/internal/config"
	"github.com/ekisa-team/flamingo/internal/model"
	"github.com/ekisa-team/flamingo/internal/noise"
	"github.com/ekisa-team/flamingo/internal/tensor"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// Models serves loaded model states.
type Models interface {
	Config() *config.Config
	KeyFor(language string, modality avsr.Modality, override string) (model.Key, error)
	Use(ctx context.Context, key model.Key, fn func(backend.Model, model.Tokenizer) error) error
	States() []model.Info
}

// AudioFeatures turns a waveform into a log-mel spectrogram.
type AudioFeatures interface {
	Extract(w audio.Waveform, nMels int) (*tensor.Tensor, error)
	Silence(nMels int) *tensor.Tensor
}

// VideoFeatures turns a video file into a lip frame tensor.
type VideoFeatures interface {
	Extract(ctx context.Context, path string) (*tensor.Tensor, error)
}

// Augmenter mixes background noise into a waveform.
type Augmenter interface {
	Augment(ctx context.Context, w audio.Waveform, manifest string, snr int) (audio.Waveform, error)
}

// Transcriber is the transcription service.
type Transcriber struct {
	models     Models
	audio      AudioFeatures
	video      VideoFeatures
	noise      Augmenter
	results    *cache.Results
	dispatcher *Dispatcher
	logger     *slog.Logger
}

// Option configures a Transcriber.
type Option func(*Transcriber)

// WithNoise enables noise augmentation for requests with noise_snr below 100.
func WithNoise(a Augmenter) Option {
	return func(t *Transcriber) { t.noise = a }
}

// WithCache caches results of requests without noise augmentation.
func WithCache(r *cache.Results) Option {
	return func(t *Transcriber) { t.results = r }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(t *Transcriber) { t.logger = l }
}

// NewTranscriber creates a transcription service.
func NewTranscriber(models Models, af AudioFeatures, vf VideoFeatures, opts ...Option) *Transcriber {
	t := &Transcriber{
		models: models,
		audio:  af,
		video:  vf,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(t)
	}
	t.dispatcher = NewDispatcher(af.Silence)
	return t
}

// Languages returns the supported language table.
func (t *Transcriber) Languages() avsr.Languages {
	return t.models.Config().SupportedLanguages()
}

// States returns a snapshot of the model states.
func (t *Transcriber) States() []model.Info {
	return t.models.States()
}

// Transcribe runs one request. Every returned error wraps an avsr error class
// or a context error.
func (t *Transcriber) Transcribe(ctx context.Context, req *avsr.Request) (*avsr.Result, error) {
	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	logger := t.logger.With("request_id", req.ID)
	cfg := t.models.Config()

	if d := cfg.RequestTimeout(); d > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d)
		defer cancel()
	}

	v, err := avsr.NewValidator(cfg.SupportedLanguages(), cfg.Model.Device).Validate(req)
	if err != nil {
		logger.Info("Rejected request", "error", err)
		return nil, err
	}

	key, err := t.models.KeyFor(req.Params.Language, v.Modality, req.Params.CheckpointPath)
	if err != nil {
		return nil, err
	}

	var wave audio.Waveform
	if v.Modality.UsesAudio() {
		wave, err = audio.DecodeWAV(req.Audio)
		if err != nil {
			return nil, err
		}
		if wave.SampleRate != avsr.SampleRate {
			return nil, fmt.Errorf("%w: audio sample rate %d, want %d", avsr.ErrInvalidInput, wave.SampleRate, avsr.SampleRate)
		}
	}

	metrics := map[string]any{
		"modality":      string(v.Modality),
		"beam_size":     v.Options.BeamSize,
		"noise_applied": false,
		"cached":        false,
	}
	if v.Modality.UsesAudio() {
		metrics["audio_seconds"] = wave.Duration().Seconds()
	}

	var cacheKey string
	if t.results != nil && !noise.Enabled(req.Params.NoiseSNR) {
		cacheKey, err = t.cacheKey(req, v, key, cfg.Model.Variant)
		if err != nil {
			logger.Warn("Skipping result cache", "error", err)
		} else if res, ok := t.results.Get(ctx, cacheKey); ok {
			metrics["cached"] = true
			res.Metrics = metrics
			logger.Info("Served cached transcription", "key", key.String())
			return &res, nil
		}
	}

	if v.Modality.UsesAudio() && noise.Enabled(req.Params.NoiseSNR) {
		if t.noise == nil {
			return nil, fmt.Errorf("%w: noise augmentation is not configured", avsr.ErrConfiguration)
		}
		manifest := req.Params.NoiseManifest
		if manifest == "" {
			manifest = cfg.Noise.Manifest
		}
		wave, err = t.noise.Augment(ctx, wave, manifest, req.Params.NoiseSNR)
		if err != nil {
			return nil, err
		}
		metrics["noise_applied"] = true
	}

	nMels := mel.BinsForVariant(cfg.Model.Variant)
	start := time.Now()
	spec, frames, err := t.features(ctx, v.Modality, wave, req.Video, nMels)
	if err != nil {
		logger.Info("Feature extraction failed", "error", err)
		return nil, err
	}
	metrics["feature_ms"] = time.Since(start).Milliseconds()
	if frames != nil {
		metrics["video_frames"] = frames.Shape[2]
	}

	var hyp backend.Hypothesis
	err = t.models.Use(ctx, key, func(m backend.Model, tok model.Tokenizer) error {
		if v.Task == avsr.TaskTranslate && !tok.Multilingual {
			logger.Warn("Translation requested on an English-only model", "variant", m.Contract().Variant)
		}

		// A state that kept its previous model across a reload may expect
		// a different bin count than the current config.
		input := spec
		if want := m.Contract().NumMels; input != nil && want != nMels {
			var err error
			if input, err = t.audio.Extract(wave, want); err != nil {
				return err
			}
		}

		start := time.Now()
		var err error
		hyp, err = t.dispatcher.Decode(ctx, m, v.Modality, input, frames, v.Options)
		metrics["decode_ms"] = time.Since(start).Milliseconds()
		return err
	})
	if err != nil {
		logger.Error("Transcription failed", "key", key.String(), "error", err)
		return nil, err
	}

	res := avsr.Result{Text: hyp.Text, Language: resultLanguage(v.Options.Language, hyp.Language)}
	if cacheKey != "" {
		t.results.Put(ctx, cacheKey, res)
	}
	res.Metrics = metrics

	logger.Info("Transcribed request",
		"key", key.String(),
		"feature_ms", metrics["feature_ms"],
		"decode_ms", metrics["decode_ms"])

	return &res, nil
}

// features extracts the audio and video features the modality uses, in parallel.
func (t *Transcriber) features(ctx context.Context, modality avsr.Modality, wave audio.Waveform, videoPath string, nMels int) (*tensor.Tensor, *tensor.Tensor, error) {
	if modality.UsesVideo() && t.video == nil {
		return nil, nil, fmt.Errorf("%w: video extraction is not configured", avsr.ErrConfiguration)
	}

	var mel, frames *tensor.Tensor

	g, gctx := errgroup.WithContext(ctx)
	if modality.UsesAudio() {
		g.Go(func() error {
			var err error
			mel, err = t.audio.Extract(wave, nMels)
			return err
		})
	}
	if modality.UsesVideo() {
		g.Go(func() error {
			var err error
			frames, err = t.video.Extract(gctx, videoPath)
			return err
		})
	}

	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	return mel, frames, nil
}

func (t *Transcriber) cacheKey(req *avsr.Request, v *avsr.Validated, key model.Key, variant string) (string, error) {
	k := cache.NewKey().
		String(variant).
		String(key.String()).
		Value(v.Options)
	if v.Modality.UsesAudio() {
		k.Bytes(req.Audio)
	}
	if v.Modality.UsesVideo() {
		if err := k.File(req.Video); err != nil {
			return "", errors.Join(avsr.ErrResource, err)
		}
	}
	return k.Sum(), nil
}

// resultLanguage prefers the requested language and falls back to the one the
// model detected.
func resultLanguage(requested, detected string) string {
	if requested != "" {
		return requested
	}
	return detected
}
