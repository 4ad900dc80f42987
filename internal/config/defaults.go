package config

import (
	"os"
	"path/filepath"
	"runtime"
	"strconv"

	"github.com/ekisa-team/flamingo/internal/envvar"
)

const (
	defaultHTTPPort    = 8000
	defaultGRPCPort    = 9000
	defaultMaxUploadMB = 200
	defaultVariant     = "small"
	defaultDevice      = "cpu"
	defaultFusion      = "separate"
	defaultBackend     = "mock"
	defaultMaxLoaded   = 4
)

// DefaultConfigPath returns the default path for the FLAMINGO config directory.
func DefaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", "flamingo", "config")
	}

	switch runtime.GOOS {
	case "windows":
		return filepath.Join(home, "AppData", "Roaming", "flamingo")
	case "darwin":
		return filepath.Join(home, "Library", "Application Support", "flamingo")
	default: // Linux, BSD, etc.
		if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
			return filepath.Join(xdg, "flamingo")
		}
		return filepath.Join(home, ".config", "flamingo")
	}
}

// DefaultModelsPath returns the default path for the FLAMINGO models directory.
func DefaultModelsPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", "flamingo", "models")
	}

	switch runtime.GOOS {
	case "windows":
		return filepath.Join(home, "AppData", "Local", "flamingo", "models")
	case "darwin":
		return filepath.Join(home, "Library", "Caches", "flamingo", "models")
	default: // Linux, BSD, etc.
		if xdg := os.Getenv("XDG_CACHE_HOME"); xdg != "" {
			return filepath.Join(xdg, "flamingo", "models")
		}
		return filepath.Join(home, ".cache", "flamingo", "models")
	}
}

// DefaultHTTPPort returns the HTTP port from FLAMINGO_SERVER_HTTP_PORT or 8000.
func DefaultHTTPPort() int {
	return portFromEnv(envvar.FlamingoServerHTTPPort, defaultHTTPPort)
}

// DefaultGRPCPort returns the gRPC port from FLAMINGO_SERVER_GRPC_PORT or 9000.
func DefaultGRPCPort() int {
	return portFromEnv(envvar.FlamingoServerGRPCPort, defaultGRPCPort)
}

func portFromEnv(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if p, err := strconv.Atoi(v); err == nil && p > 0 && p < 65536 {
			return p
		}
	}
	return def
}

// ApplyDefaults fills unset fields.
func (c *Config) ApplyDefaults() {
	if c.Server.HTTPPort == 0 {
		c.Server.HTTPPort = DefaultHTTPPort()
	}
	if c.Server.GRPCPort == 0 {
		c.Server.GRPCPort = DefaultGRPCPort()
	}
	if c.Server.MaxUploadMB == 0 {
		c.Server.MaxUploadMB = defaultMaxUploadMB
	}
	if c.Model.Variant == "" {
		c.Model.Variant = defaultVariant
	}
	if c.Model.Backend == "" {
		c.Model.Backend = defaultBackend
	}
	if c.Model.Device == "" {
		c.Model.Device = defaultDevice
	}
	if c.Model.Fusion == "" {
		c.Model.Fusion = defaultFusion
	}
	if c.Model.MaxLoaded == 0 {
		c.Model.MaxLoaded = defaultMaxLoaded
	}
	if c.Noise.Selection == "" {
		c.Noise.Selection = "random"
	}
}

// Default returns a configuration using only defaults: the mock backend and
// an English audio-visual model preloaded.
func Default() *Config {
	c := &Config{
		Version: "1",
		Model: ModelConfig{
			Preload: []PreloadConfig{{Language: "en", Modality: "avsr"}},
		},
	}
	c.ApplyDefaults()
	return c
}
