package model

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/ekisa-team/flamingo/internal/avsr"
	"github.com/ekisa-team/flamingo/internal/backend"
	"github.com/ekisa-team/flamingo/internal/checkpoint"
	"github.com/ekisa-team/flamingo/internal/config"
	"github.com/ekisa-team/flamingo/internal/xfs"
	"golang.org/x/sync/singleflight"
)

// Manager orchestrates model state lifecycle: eager preload, lazy
// initialization and least recently used eviction.
type Manager struct {
	registry *Registry
	loaders  *backend.Registry
	logger   *slog.Logger
	group    singleflight.Group

	mu     sync.RWMutex // guards cfg and pinned
	cfg    *config.Config
	pinned map[Key]bool
}

// NewManager creates a manager for cfg using the given loaders.
func NewManager(cfg *config.Config, loaders *backend.Registry, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		registry: NewRegistry(),
		loaders:  loaders,
		logger:   logger,
		cfg:      cfg,
		pinned:   make(map[Key]bool),
	}
}

// Registry returns the state registry.
func (m *Manager) Registry() *Registry {
	return m.registry
}

// Config returns the configuration currently in effect.
func (m *Manager) Config() *config.Config {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.cfg
}

// Spec returns the load spec for a modality under the current config.
func (m *Manager) Spec(modality avsr.Modality) backend.LoadSpec {
	return specFor(m.Config(), modality)
}

func specFor(cfg *config.Config, modality avsr.Modality) backend.LoadSpec {
	mc := cfg.Model
	return backend.LoadSpec{
		Variant:            mc.Variant,
		WhisperPath:        cfg.ResolvePath(mc.WhisperPath),
		AVHubertPath:       cfg.ResolvePath(mc.AVHubertPath),
		AVHubertCheckpoint: cfg.ResolvePath(mc.AVHubertCheckpoint),
		AVHubertEncoder:    mc.AVHubertEncoder,
		Fusion:             mc.Fusion,
		Modality:           modality,
		Device:             mc.Device,
		FP16:               mc.FP16,
	}
}

// KeyFor returns the state key serving a request. A non-empty override must
// resolve inside the models directory.
func (m *Manager) KeyFor(language string, modality avsr.Modality, override string) (Key, error) {
	cfg := m.Config()

	ckpt := cfg.SelectCheckpoint(language, modality)
	if override != "" {
		p, err := xfs.Within(cfg.ModelsPath(), override)
		if err != nil {
			return Key{}, fmt.Errorf("%w: checkpoint_path %q: %v", avsr.ErrValidation, override, err)
		}
		ckpt = p
	}

	return Key{Language: language, Modality: modality, Checkpoint: ckpt}, nil
}

// Acquire returns the initialized state for key, loading it once if needed.
// The load is shared by every concurrent caller and is not cancelled when
// one of them gives up.
func (m *Manager) Acquire(ctx context.Context, key Key) (*State, error) {
	if s, ok := m.registry.Get(key); ok && s.Ready() {
		s.touch()
		return s, nil
	}

	ch := m.group.DoChan(key.String(), func() (any, error) {
		return m.load(context.WithoutCancel(ctx), key)
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		s := res.Val.(*State)
		s.touch()
		return s, nil
	}
}

func (m *Manager) load(ctx context.Context, key Key) (_ *State, err error) {
	defer func() {
		if r := recover(); r != nil {
			m.logger.Error("Model state load panicked", "key", key.String(), "panic", r)
			err = fmt.Errorf("%w: load %s: %v", avsr.ErrResource, key, r)
		}
	}()

	if s, ok := m.registry.Get(key); ok {
		err := s.Initialize(ctx)
		if err == nil {
			return s, nil
		}
		if !errors.Is(err, ErrEvicted) {
			return nil, err
		}
		m.registry.Delete(key)
	}

	cfg := m.Config()
	loader, err := m.loaders.Get(backend.Provider(cfg.Model.Backend))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", avsr.ErrConfiguration, err)
	}

	adapter := checkpoint.NewAdapter(cfg.CheckpointPrefix(), m.logger)
	s := NewState(key, specFor(cfg, key.Modality), loader, adapter, m.logger)
	if err := s.Initialize(ctx); err != nil {
		return nil, err
	}

	m.registry.Set(s)
	m.evict()
	return s, nil
}

// Use acquires the state for key and runs fn with its model. A state evicted
// between acquisition and use is reacquired once.
func (m *Manager) Use(ctx context.Context, key Key, fn func(backend.Model, Tokenizer) error) error {
	for attempt := 0; ; attempt++ {
		s, err := m.Acquire(ctx, key)
		if err != nil {
			return err
		}

		err = s.Use(ctx, fn)
		if errors.Is(err, ErrEvicted) && attempt == 0 {
			continue
		}
		return err
	}
}

// evict tears down least recently used states beyond max_loaded. Pinned
// states are never evicted.
func (m *Manager) evict() {
	m.mu.RLock()
	limit := m.cfg.Model.MaxLoaded
	pinned := make(map[Key]bool, len(m.pinned))
	for k := range m.pinned {
		pinned[k] = true
	}
	m.mu.RUnlock()

	if limit <= 0 {
		return
	}

	for m.registry.Len() > limit {
		var victim *State
		for _, s := range m.registry.List() {
			if pinned[s.Key()] {
				continue
			}
			if victim == nil || s.LastUsed().Before(victim.LastUsed()) {
				victim = s
			}
		}
		if victim == nil {
			return
		}

		m.registry.Delete(victim.Key())
		m.logger.Info("Evicting model state", "key", victim.Key().String(), "last_used", victim.LastUsed())
		if err := victim.Teardown(); err != nil {
			m.logger.Error("Failed to tear down model state", "key", victim.Key().String(), "error", err)
		}
	}
}

// Preload builds every state listed in model.preload. Any failure is
// returned so startup can abort.
func (m *Manager) Preload(ctx context.Context) error {
	cfg := m.Config()
	if cfg.Model.LazyLoad {
		m.logger.Info("Lazy loading enabled, skipping preload")
		return nil
	}

	for _, p := range cfg.Model.Preload {
		modality, err := avsr.ParseModality(p.Modality)
		if err != nil {
			return err
		}
		key, err := m.KeyFor(p.Language, modality, "")
		if err != nil {
			return err
		}

		m.mu.Lock()
		m.pinned[key] = true
		m.mu.Unlock()

		if _, err := m.Acquire(ctx, key); err != nil {
			return fmt.Errorf("preload %s: %w", key, err)
		}
		m.logger.Info("Model state preloaded", "key", key.String())
	}

	return nil
}

// ApplyConfig switches to cfg and rebuilds every loaded state with the new
// model settings. States that fail to rebuild keep serving the previous model.
func (m *Manager) ApplyConfig(ctx context.Context, cfg *config.Config) error {
	m.mu.Lock()
	m.cfg = cfg
	m.mu.Unlock()

	var errs []error
	for _, s := range m.registry.List() {
		if err := s.Reload(ctx, specFor(cfg, s.Key().Modality)); err != nil {
			m.logger.Error("Failed to reload model state, keeping previous model", "key", s.Key().String(), "error", err)
			errs = append(errs, fmt.Errorf("%s: %w", s.Key(), err))
		}
	}

	m.evict()
	return errors.Join(errs...)
}

// States returns a snapshot of every state.
func (m *Manager) States() []Info {
	states := m.registry.List()
	out := make([]Info, 0, len(states))
	for _, s := range states {
		out = append(out, s.Info())
	}
	return out
}

// Close tears down all states.
func (m *Manager) Close() error {
	var errs []error
	for _, s := range m.registry.List() {
		m.registry.Delete(s.Key())
		if err := s.Teardown(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
