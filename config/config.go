// Package config loads the host configuration from YAML.
package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/gogpu/viewbackend/importer"
)

// ErrInvalid is wrapped by every validation failure.
var ErrInvalid = errors.New("config: invalid")

// Config is the host configuration.
type Config struct {
	// Importer names the buffer importer. Empty picks the best available.
	Importer string `yaml:"importer"`

	// LeaseTimeout bounds how long the embedder may hold an exported
	// buffer. Zero disables leases.
	LeaseTimeout time.Duration `yaml:"lease_timeout"`

	// Width and Height are the initial view size.
	Width  uint32 `yaml:"width"`
	Height uint32 `yaml:"height"`

	Log        LogConfig        `yaml:"log"`
	GPU        GPUConfig        `yaml:"gpu"`
	Extensions ExtensionsConfig `yaml:"extensions"`
}

// LogConfig selects the log handler.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text or json
}

// GPUConfig describes the display the GPU image importer binds to.
type GPUConfig struct {
	Extensions []string `yaml:"extensions"`
}

// ExtensionsConfig enables the side channels.
type ExtensionsConfig struct {
	Audio      bool `yaml:"audio"`
	VideoPlane bool `yaml:"video_plane"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Width:  1280,
		Height: 720,
		Log:    LogConfig{Level: "info", Format: "text"},
	}
}

// Load reads path on top of Default and validates the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML on top of Default and validates the result.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

var importerNames = []string{
	importer.NameGPUImage,
	importer.NameGPUStream,
	importer.NamePool,
	importer.NameSharedMemory,
}

// Validate checks field ranges and names.
func (c *Config) Validate() error {
	if c.Importer != "" && !contains(importerNames, c.Importer) {
		return fmt.Errorf("%w: unknown importer %q", ErrInvalid, c.Importer)
	}
	if c.LeaseTimeout < 0 {
		return fmt.Errorf("%w: negative lease_timeout %v", ErrInvalid, c.LeaseTimeout)
	}
	if c.Width == 0 || c.Height == 0 {
		return fmt.Errorf("%w: view size %dx%d", ErrInvalid, c.Width, c.Height)
	}
	if _, err := c.Log.SlogLevel(); err != nil {
		return err
	}
	if c.Log.Format != "text" && c.Log.Format != "json" {
		return fmt.Errorf("%w: log format %q", ErrInvalid, c.Log.Format)
	}
	if _, err := importer.ParseExtensions(c.GPU.Extensions); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	return nil
}

// DisplayExtensions returns the configured GPU extensions, or all of them
// when none are listed.
func (c *Config) DisplayExtensions() importer.Extensions {
	if len(c.GPU.Extensions) == 0 {
		return importer.AllExtensions
	}
	ext, _ := importer.ParseExtensions(c.GPU.Extensions)
	return ext
}

// SlogLevel parses Level.
func (l LogConfig) SlogLevel() (slog.Level, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(l.Level)); err != nil {
		return 0, fmt.Errorf("%w: log level %q", ErrInvalid, l.Level)
	}
	return lvl, nil
}

// Logger builds a logger writing to w.
func (l LogConfig) Logger(w io.Writer) *slog.Logger {
	lvl, err := l.SlogLevel()
	if err != nil {
		lvl = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: lvl}
	if l.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
