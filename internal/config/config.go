package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/ekisa-team/flamingo/internal/avsr"
	"github.com/ekisa-team/flamingo/internal/envvar"
	"github.com/ekisa-team/flamingo/internal/xfs"
)

// SourceType represents the type of artifact source.
type SourceType string

const (
	// SourceTypeHuggingFace represents a Hugging Face repository source.
	SourceTypeHuggingFace SourceType = "huggingface"

	// SourceTypeURL represents a plain HTTP(S) download.
	SourceTypeURL SourceType = "url"
)

// Config holds the main configuration for the application.
type Config struct {
	Version     string                    `json:"version"               yaml:"version"`
	Server      ServerConfig              `json:"server,omitempty"      yaml:"server,omitempty"`
	Storage     StorageConfig             `json:"storage,omitempty"     yaml:"storage,omitempty"`
	Model       ModelConfig               `json:"model"                 yaml:"model"`
	Checkpoints CheckpointsConfig         `json:"checkpoints,omitempty" yaml:"checkpoints,omitempty"`
	Artifacts   map[string]ArtifactConfig `json:"artifacts,omitempty"   yaml:"artifacts,omitempty"`
	Video       VideoConfig               `json:"video,omitempty"       yaml:"video,omitempty"`
	Noise       NoiseConfig               `json:"noise,omitempty"       yaml:"noise,omitempty"`
	Cache       CacheConfig               `json:"cache,omitempty"       yaml:"cache,omitempty"`
	Languages   map[string]string         `json:"languages,omitempty"   yaml:"languages,omitempty"`
}

// ServerConfig holds the listener configuration.
type ServerConfig struct {
	Host           string `json:"host,omitempty"            yaml:"host,omitempty"`
	HTTPPort       int    `json:"http_port,omitempty"       yaml:"http_port,omitempty"`
	GRPCPort       int    `json:"grpc_port,omitempty"       yaml:"grpc_port,omitempty"`
	MaxUploadMB    int    `json:"max_upload_mb,omitempty"   yaml:"max_upload_mb,omitempty"`
	RequestTimeout string `json:"request_timeout,omitempty" yaml:"request_timeout,omitempty"`
}

// StorageConfig holds configuration for artifacts and scratch files.
type StorageConfig struct {
	ModelsDir string `json:"models_dir,omitempty" yaml:"models_dir,omitempty"`
	TempDir   string `json:"temp_dir,omitempty"   yaml:"temp_dir,omitempty"`
}

// ModelConfig describes how transcription models are built and held.
type ModelConfig struct {
	Variant            string            `json:"variant"                        yaml:"variant"`
	Backend            string            `json:"backend"                        yaml:"backend"`
	Device             string            `json:"device,omitempty"               yaml:"device,omitempty"`
	FP16               bool              `json:"fp16,omitempty"                 yaml:"fp16,omitempty"`
	WhisperPath        string            `json:"whisper_path,omitempty"         yaml:"whisper_path,omitempty"`
	AVHubertPath       string            `json:"av_hubert_path,omitempty"       yaml:"av_hubert_path,omitempty"`
	AVHubertCheckpoint string            `json:"av_hubert_checkpoint,omitempty" yaml:"av_hubert_checkpoint,omitempty"`
	AVHubertEncoder    bool              `json:"av_hubert_encoder,omitempty"    yaml:"av_hubert_encoder,omitempty"`
	Fusion             string            `json:"fusion,omitempty"               yaml:"fusion,omitempty"`
	LazyLoad           bool              `json:"lazy_load,omitempty"            yaml:"lazy_load,omitempty"`
	MaxLoaded          int               `json:"max_loaded,omitempty"           yaml:"max_loaded,omitempty"`
	GRPC               GRPCBackendConfig `json:"grpc,omitempty"                 yaml:"grpc,omitempty"`
	Preload            []PreloadConfig   `json:"preload,omitempty"              yaml:"preload,omitempty"`
}

// GRPCBackendConfig configures the remote model server.
type GRPCBackendConfig struct {
	Endpoint    string       `json:"endpoint,omitempty"     yaml:"endpoint,omitempty"`
	CallTimeout string       `json:"call_timeout,omitempty" yaml:"call_timeout,omitempty"`
	Spawn       *SpawnConfig `json:"spawn,omitempty"        yaml:"spawn,omitempty"`
}

// SpawnConfig describes a model server process started on demand.
type SpawnConfig struct {
	Bin          string            `json:"bin"                     yaml:"bin"`
	Args         []string          `json:"args,omitempty"          yaml:"args,omitempty"`
	Env          map[string]string `json:"env,omitempty"           yaml:"env,omitempty"`
	Port         int               `json:"port"                    yaml:"port"`
	ReadyTimeout string            `json:"ready_timeout,omitempty" yaml:"ready_timeout,omitempty"`
}

// PreloadConfig names a model state built at startup.
type PreloadConfig struct {
	Language string `json:"language" yaml:"language"`
	Modality string `json:"modality" yaml:"modality"`
}

// CheckpointsConfig selects fine-tuned weights per language and modality.
type CheckpointsConfig struct {
	Default string           `json:"default,omitempty" yaml:"default,omitempty"`
	Prefix  *string          `json:"prefix,omitempty"  yaml:"prefix,omitempty"`
	Rules   []CheckpointRule `json:"rules,omitempty"   yaml:"rules,omitempty"`
}

// CheckpointRule maps a language and/or modality to a checkpoint. Empty
// fields match anything.
type CheckpointRule struct {
	Language string `json:"language,omitempty" yaml:"language,omitempty"`
	Modality string `json:"modality,omitempty" yaml:"modality,omitempty"`
	Path     string `json:"path"               yaml:"path"`
}

// ArtifactConfig describes a file or repository fetched into the models directory.
type ArtifactConfig struct {
	Source SourceConfig `json:"source" yaml:"source"`
}

// SourceConfig wraps optional sources (only one should be set).
type SourceConfig struct {
	HuggingFace *HuggingFaceSource `json:"huggingface,omitempty" yaml:"huggingface,omitempty"`
	URL         *URLSource         `json:"url,omitempty"         yaml:"url,omitempty"`
}

// VideoConfig configures the lip-region extractor.
type VideoConfig struct {
	Extractor string `json:"extractor,omitempty" yaml:"extractor,omitempty"`
	Timeout   string `json:"timeout,omitempty"   yaml:"timeout,omitempty"`
}

// NoiseConfig configures noise augmentation.
type NoiseConfig struct {
	Manifest  string `json:"manifest,omitempty"  yaml:"manifest,omitempty"`
	Selection string `json:"selection,omitempty" yaml:"selection,omitempty"`
	Seed      int64  `json:"seed,omitempty"      yaml:"seed,omitempty"`
	Root      string `json:"root,omitempty"      yaml:"root,omitempty"`
}

// CacheConfig configures the transcription result cache.
type CacheConfig struct {
	Enabled bool   `json:"enabled,omitempty" yaml:"enabled,omitempty"`
	Dir     string `json:"dir,omitempty"     yaml:"dir,omitempty"`
	TTL     string `json:"ttl,omitempty"     yaml:"ttl,omitempty"`
}

// -------------------------
// Source definitions
// -------------------------

// ArtifactSource represents a source for an artifact.
type ArtifactSource interface {
	Type() SourceType
}

// HuggingFaceSource represents a Hugging Face repository source.
type HuggingFaceSource struct {
	Repo          string   `json:"repo"                     yaml:"repo"`
	Revision      string   `json:"revision,omitempty"       yaml:"revision,omitempty"`
	RepoType      string   `json:"repo_type,omitempty"      yaml:"repo_type,omitempty"`
	Token         string   `json:"token,omitempty"          yaml:"token,omitempty"`
	Include       []string `json:"include,omitempty"        yaml:"include,omitempty"`
	Exclude       []string `json:"exclude,omitempty"        yaml:"exclude,omitempty"`
	MaxWorkers    int      `json:"max_workers,omitempty"    yaml:"max_workers,omitempty"`
	ForceDownload bool     `json:"force_download,omitempty" yaml:"force_download,omitempty"`
}

// Type returns the Hugging Face source type.
func (h HuggingFaceSource) Type() SourceType {
	return SourceTypeHuggingFace
}

// URLSource downloads a single file over HTTP(S).
type URLSource struct {
	URL    string `json:"url"              yaml:"url"`
	Path   string `json:"path"             yaml:"path"`
	SHA256 string `json:"sha256,omitempty" yaml:"sha256,omitempty"`
}

// Type returns the URL source type.
func (u URLSource) Type() SourceType {
	return SourceTypeURL
}

// GetSource returns the active source for the artifact.
func (a *ArtifactConfig) GetSource() (ArtifactSource, error) {
	switch {
	case a.Source.HuggingFace != nil:
		return *a.Source.HuggingFace, nil
	case a.Source.URL != nil:
		return *a.Source.URL, nil
	}

	return nil, errors.New("no source configured for artifact")
}

// -------------------------
// Accessors
// -------------------------

// ModelsPath returns the models directory.
// Precedence:
// 1. FLAMINGO_MODELS_PATH environment variable.
// 2. storage.models_dir in the config.
// 3. Default models path.
func (c *Config) ModelsPath() string {
	if p := os.Getenv(envvar.FlamingoModelsPath); p != "" {
		return xfs.ExpandTilde(p)
	}
	if c.Storage.ModelsDir != "" {
		return xfs.ExpandTilde(c.Storage.ModelsDir)
	}
	return xfs.ExpandTilde(DefaultModelsPath())
}

// ResolvePath resolves p against the models directory unless it is absolute.
func (c *Config) ResolvePath(p string) string {
	if p == "" {
		return ""
	}
	p = xfs.ExpandTilde(p)
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(c.ModelsPath(), p)
}

// CheckpointPrefix returns the parameter name prefix stripped from checkpoints.
func (c *Config) CheckpointPrefix() string {
	if c.Checkpoints.Prefix != nil {
		return *c.Checkpoints.Prefix
	}
	return "model."
}

// SelectCheckpoint returns the checkpoint for language and modality: the
// first rule matching both, or the default.
func (c *Config) SelectCheckpoint(language string, modality avsr.Modality) string {
	for _, r := range c.Checkpoints.Rules {
		if r.Language != "" && r.Language != language {
			continue
		}
		if r.Modality != "" && r.Modality != string(modality) {
			continue
		}
		return c.ResolvePath(r.Path)
	}
	return c.ResolvePath(c.Checkpoints.Default)
}

// SupportedLanguages returns the configured language table or the built-in one.
func (c *Config) SupportedLanguages() avsr.Languages {
	if len(c.Languages) > 0 {
		return avsr.NewLanguages(c.Languages)
	}
	return avsr.NewLanguages(avsr.DefaultLanguages)
}

// HTTPAddr returns the HTTP listen address.
func (c *Config) HTTPAddr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.HTTPPort)
}

// GRPCAddr returns the gRPC listen address.
func (c *Config) GRPCAddr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.GRPCPort)
}

// RequestTimeout returns the per-request deadline, zero for none.
func (c *Config) RequestTimeout() time.Duration {
	return duration(c.Server.RequestTimeout, 0)
}

// CacheTTL returns the result cache entry lifetime, zero for no expiry.
func (c *Config) CacheTTL() time.Duration {
	return duration(c.Cache.TTL, 0)
}

// VideoTimeout returns the extractor timeout.
func (c *Config) VideoTimeout() time.Duration {
	return duration(c.Video.Timeout, 2*time.Minute)
}

// CallTimeoutDuration returns the model server RPC timeout.
func (g GRPCBackendConfig) CallTimeoutDuration() time.Duration {
	return duration(g.CallTimeout, 0)
}

// ReadyTimeoutDuration returns how long to wait for a spawned server.
func (s SpawnConfig) ReadyTimeoutDuration() time.Duration {
	return duration(s.ReadyTimeout, 60*time.Second)
}

func duration(s string, def time.Duration) time.Duration {
	if s == "" {
		return def
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return def
	}
	return d
}
