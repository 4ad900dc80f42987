package model

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ekisa-team/flamingo/internal/avsr"
	"github.com/ekisa-team/flamingo/internal/backend"
	"github.com/ekisa-team/flamingo/internal/checkpoint"
)

// Status is the current loading status of a model state.
type Status string

const (
	// StatusUnloaded indicates that the model is not loaded.
	StatusUnloaded Status = "unloaded"

	// StatusLoading indicates that the model is being loaded.
	StatusLoading Status = "loading"

	// StatusLoaded indicates that the model is loaded.
	StatusLoaded Status = "loaded"

	// StatusFailed indicates that the model failed to load.
	StatusFailed Status = "failed"

	// StatusUnloading indicates that the model is being unloaded.
	StatusUnloading Status = "unloading"
)

// Key identifies a model state.
type Key struct {
	Language   string
	Modality   avsr.Modality
	Checkpoint string
}

func (k Key) String() string {
	return fmt.Sprintf("%s/%s/%s", k.Language, k.Modality, k.Checkpoint)
}

// Tokenizer describes the vocabulary and task prompt used by a model.
type Tokenizer struct {
	Multilingual bool      `json:"multilingual"`
	Task         avsr.Task `json:"task"`
}

// NewTokenizer returns the tokenizer settings for a model variant.
func NewTokenizer(variant string, task avsr.Task) Tokenizer {
	return Tokenizer{Multilingual: backend.IsMultilingual(variant), Task: task}
}

// Info is a read-only view of a state.
type Info struct {
	Key        string           `json:"key"`
	Language   string           `json:"language"`
	Modality   avsr.Modality    `json:"modality"`
	Checkpoint string           `json:"checkpoint,omitempty"`
	Variant    string           `json:"variant"`
	Status     Status           `json:"status"`
	LoadedAt   *time.Time       `json:"loaded_at,omitempty"`
	Error      string           `json:"error,omitempty"`
	Tokenizer  Tokenizer        `json:"tokenizer"`
	Contract   backend.Contract `json:"contract"`
	Strict     bool             `json:"strict_load"`
	Applied    int              `json:"applied_parameters"`
}

// State holds one loaded transcription model and its tokenizer. Decodes
// share it under a read lock; reloads swap it under the write lock.
type State struct {
	key     Key
	spec    backend.LoadSpec
	loader  backend.Loader
	adapter *checkpoint.Adapter
	logger  *slog.Logger

	mu        sync.RWMutex
	model     backend.Model
	tokenizer Tokenizer
	report    checkpoint.LoadReport
	status    Status
	loadedAt  *time.Time
	lastErr   string
	torndown  bool

	lastUsed atomic.Int64
}

// NewState creates an unloaded state.
func NewState(key Key, spec backend.LoadSpec, loader backend.Loader, adapter *checkpoint.Adapter, logger *slog.Logger) *State {
	if logger == nil {
		logger = slog.Default()
	}
	s := &State{
		key:     key,
		spec:    spec,
		loader:  loader,
		adapter: adapter,
		logger:  logger,
		status:  StatusUnloaded,
	}
	s.touch()
	return s
}

// Key returns the state key.
func (s *State) Key() Key {
	return s.key
}

func (s *State) touch() {
	s.lastUsed.Store(time.Now().UnixNano())
}

// LastUsed returns when the state was last acquired.
func (s *State) LastUsed() time.Time {
	return time.Unix(0, s.lastUsed.Load())
}

// build constructs a fresh model and applies the state's checkpoint.
func (s *State) build(ctx context.Context, spec backend.LoadSpec) (backend.Model, checkpoint.LoadReport, error) {
	start := time.Now()

	m, err := s.loader.Load(ctx, spec)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, checkpoint.LoadReport{}, fmt.Errorf("load %s model: %w", spec.Variant, err)
		}
		return nil, checkpoint.LoadReport{}, fmt.Errorf("%w: load %s model: %v", avsr.ErrResource, spec.Variant, err)
	}

	var report checkpoint.LoadReport
	if s.key.Checkpoint != "" {
		report, err = s.adapter.LoadAndApply(ctx, m, s.key.Checkpoint)
		if err != nil {
			if cerr := m.Close(); cerr != nil {
				s.logger.Error("Failed to close model", "key", s.key.String(), "error", cerr)
			}
			return nil, checkpoint.LoadReport{}, err
		}
	}

	s.logger.Info("Model state built",
		"key", s.key.String(),
		"variant", spec.Variant,
		"video", spec.VideoEnabled(),
		"gated_x_attn", spec.GatedCrossAttention(),
		"fp16", spec.HalfPrecision(),
		"duration", time.Since(start))

	return m, report, nil
}

// Ready reports whether the model is loaded and in service.
func (s *State) Ready() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return !s.torndown && s.model != nil
}

// Initialize loads the model if it is not loaded yet.
func (s *State) Initialize(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.torndown {
		return ErrEvicted
	}
	if s.model != nil {
		return nil
	}

	s.status = StatusLoading
	m, report, err := s.build(ctx, s.spec)
	if err != nil {
		s.status = StatusFailed
		s.lastErr = err.Error()
		return err
	}

	s.install(m, report)
	return nil
}

// Reload rebuilds the model with spec and swaps it in. On failure the
// previous model stays in service.
func (s *State) Reload(ctx context.Context, spec backend.LoadSpec) error {
	m, report, err := s.build(ctx, spec)
	if err != nil {
		s.mu.Lock()
		s.lastErr = err.Error()
		s.mu.Unlock()
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.torndown {
		_ = m.Close()
		return ErrEvicted
	}

	old := s.model
	s.spec = spec
	s.install(m, report)

	if old != nil {
		if err := old.Close(); err != nil {
			s.logger.Error("Failed to close replaced model", "key", s.key.String(), "error", err)
		}
	}
	return nil
}

func (s *State) install(m backend.Model, report checkpoint.LoadReport) {
	now := time.Now()
	s.model = m
	s.report = report
	s.tokenizer = NewTokenizer(s.spec.Variant, avsr.TaskTranscribe)
	s.status = StatusLoaded
	s.loadedAt = &now
	s.lastErr = ""
}

// Use runs fn with the loaded model under the read lock.
func (s *State) Use(ctx context.Context, fn func(backend.Model, Tokenizer) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.torndown {
		return ErrEvicted
	}
	if s.model == nil {
		return fmt.Errorf("%w: %s", ErrNotLoaded, s.key)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.touch()
	return fn(s.model, s.tokenizer)
}

// Teardown waits for in-flight users and releases the model.
func (s *State) Teardown() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.torndown = true
	if s.model == nil {
		s.status = StatusUnloaded
		return nil
	}

	s.status = StatusUnloading
	err := s.model.Close()
	s.model = nil
	s.status = StatusUnloaded
	s.logger.Info("Model state unloaded", "key", s.key.String())
	return err
}

// Info returns a snapshot of the state.
func (s *State) Info() Info {
	s.mu.RLock()
	defer s.mu.RUnlock()

	info := Info{
		Key:        s.key.String(),
		Language:   s.key.Language,
		Modality:   s.key.Modality,
		Checkpoint: s.key.Checkpoint,
		Variant:    s.spec.Variant,
		Status:     s.status,
		LoadedAt:   s.loadedAt,
		Error:      s.lastErr,
		Tokenizer:  s.tokenizer,
		Strict:     s.report.Strict,
		Applied:    s.report.Applied,
	}
	if s.model != nil {
		info.Contract = s.model.Contract()
	}
	return info
}
