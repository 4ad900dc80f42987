// Package app wires configuration into a ready transcription service.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/ekisa-team/flamingo/internal/audio"
	"github.com/ekisa-team/flamingo/internal/avsr"
	"github.com/ekisa-team/flamingo/internal/backend"
	"github.com/ekisa-team/flamingo/internal/backend/grpcmodel"
	"github.com/ekisa-team/flamingo/internal/backend/mock"
	"github.com/ekisa-team/flamingo/internal/cache"
	"github.com/ekisa-team/flamingo/internal/config"
	"github.com/ekisa-team/flamingo/internal/model"
	"github.com/ekisa-team/flamingo/internal/noise"
	"github.com/ekisa-team/flamingo/internal/service"
	"github.com/ekisa-team/flamingo/internal/video"
	"github.com/ekisa-team/flamingo/internal/xfs"
)

// App owns every long-lived component of the service.
type App struct {
	Loaders     *backend.Registry
	Servers     *backend.ServerManager
	Models      *model.Manager
	Transcriber *service.Transcriber

	results *cache.Results
	logger  *slog.Logger
}

// New builds the application for cfg. Nothing is loaded until Preload or the
// first request.
func New(cfg *config.Config, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}

	a := &App{
		Loaders: backend.NewRegistry(),
		Servers: backend.NewServerManager(),
		logger:  logger,
	}

	if err := a.registerLoaders(cfg); err != nil {
		_ = a.Close()
		return nil, err
	}

	vf, err := newVideo(cfg)
	if err != nil {
		_ = a.Close()
		return nil, err
	}

	opts := []service.Option{
		service.WithLogger(logger),
		service.WithNoise(noise.NewAugmenter(
			noise.WithSelector(noise.NewSelector(cfg.Noise.Selection, cfg.Noise.Seed)),
			noise.WithRoot(cfg.ResolvePath(cfg.Noise.Root)),
			noise.WithLogger(logger),
		)),
	}

	if cfg.Cache.Enabled {
		store, err := newStore(cfg, logger)
		if err != nil {
			_ = a.Close()
			return nil, err
		}
		a.results = cache.NewResults(store, cfg.CacheTTL(), logger)
		opts = append(opts, service.WithCache(a.results))
	}

	a.Models = model.NewManager(cfg, a.Loaders, logger)
	a.Transcriber = service.NewTranscriber(a.Models, audio.NewPipeline(), vf, opts...)

	return a, nil
}

func (a *App) registerLoaders(cfg *config.Config) error {
	if err := a.Loaders.Register(mock.NewLoader()); err != nil {
		return err
	}

	g := cfg.Model.GRPC
	if g.Endpoint == "" {
		if cfg.Model.Backend == string(backend.ProviderGRPC) {
			return fmt.Errorf("%w: model.grpc.endpoint is required for the grpc backend", avsr.ErrConfiguration)
		}
		return nil
	}

	gc := grpcmodel.Config{
		Endpoint:    g.Endpoint,
		CallTimeout: g.CallTimeoutDuration(),
	}
	if g.Spawn != nil {
		gc.Spawn = &grpcmodel.Spawn{
			BinPath:      xfs.ExpandTilde(g.Spawn.Bin),
			Args:         g.Spawn.Args,
			Env:          g.Spawn.Env,
			Port:         g.Spawn.Port,
			ReadyTimeout: g.Spawn.ReadyTimeoutDuration(),
		}
	}

	loader, err := grpcmodel.NewLoader(gc, a.Servers)
	if err != nil {
		return fmt.Errorf("%w: %v", avsr.ErrConfiguration, err)
	}
	return a.Loaders.Register(loader)
}

// newVideo returns nil when no extractor is configured; video modalities
// then fail with a configuration error.
func newVideo(cfg *config.Config) (service.VideoFeatures, error) {
	if cfg.Video.Extractor == "" {
		return nil, nil
	}

	exec, err := backend.NewExecutor(xfs.ExpandTilde(cfg.Video.Extractor), cfg.VideoTimeout())
	if err != nil {
		return nil, fmt.Errorf("%w: video extractor: %v", avsr.ErrConfiguration, err)
	}
	return video.NewPipeline(video.NewExecExtractor(exec)), nil
}

func newStore(cfg *config.Config, logger *slog.Logger) (cache.Store, error) {
	if cfg.Cache.Dir == "" {
		return cache.NewMemory(), nil
	}

	store, err := cache.NewBadger(cache.BadgerOptions{
		Dir:    xfs.ExpandTilde(cfg.Cache.Dir),
		Logger: logger,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: open result cache: %v", avsr.ErrResource, err)
	}
	return store, nil
}

// Preload builds the configured model states.
func (a *App) Preload(ctx context.Context) error {
	return a.Models.Preload(ctx)
}

// Reload applies a new configuration to the loaded model states.
func (a *App) Reload(ctx context.Context, cfg *config.Config) error {
	return a.Models.ApplyConfig(ctx, cfg)
}

// Close releases models, loaders, spawned servers and the cache.
func (a *App) Close() error {
	var errs []error
	if a.Models != nil {
		errs = append(errs, a.Models.Close())
	}
	errs = append(errs, a.Loaders.Close())
	a.Servers.StopAll()
	if a.results != nil {
		errs = append(errs, a.results.Close())
	}
	return errors.Join(errs...)
}
