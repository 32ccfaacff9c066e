// Package config loads index settings for the command line tools from a YAML
// file and the environment.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/dd0wney/cluso-bfi/pkg/bfi"
	"github.com/dd0wney/cluso-bfi/pkg/logging"
	"github.com/dd0wney/cluso-bfi/pkg/metrics"
	"github.com/dd0wney/cluso-bfi/pkg/validation"
	"gopkg.in/yaml.v3"
)

// Config mirrors bfi.Options with file-friendly types. Zero geometry fields
// fall back to the index defaults.
type Config struct {
	Path          string `yaml:"path"`
	Addressing    string `yaml:"addressing" validate:"omitempty,oneof=slot key"`
	ReadOnly      bool   `yaml:"read_only"`
	NoCreate      bool   `yaml:"no_create"`
	SlotSize      int    `yaml:"slot_size" validate:"min=0"`
	SlotsPerPage  int    `yaml:"slots_per_page" validate:"min=0"`
	SignatureBits int    `yaml:"signature_bits" validate:"min=0"`
	Hashes        int    `yaml:"hashes" validate:"min=0"`
	CachePages    int    `yaml:"cache_pages" validate:"min=0"`
	LogLevel      string `yaml:"log_level" validate:"omitempty,oneof=debug info warn warning error"`
	MetricsAddr   string `yaml:"metrics_addr" validate:"omitempty,hostname_port"`
}

// Default returns the configuration used when no file is given
func Default() Config {
	return Config{
		Addressing: "slot",
		LogLevel:   "info",
	}
}

// Load reads path (if non-empty), applies environment overrides and
// validates the result
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		f, err := os.Open(path)
		if err != nil {
			return Config{}, fmt.Errorf("failed to open config: %w", err)
		}
		defer f.Close()
		if err := cfg.decode(f); err != nil {
			return Config{}, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	}
	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Parse decodes YAML over the defaults without consulting the environment
func Parse(data []byte) (Config, error) {
	cfg := Default()
	if err := cfg.decode(bytes.NewReader(data)); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) decode(r io.Reader) error {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// applyEnv overrides fields from BFI_PATH, BFI_READ_ONLY, BFI_METRICS_ADDR
// and LOG_LEVEL
func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	if v, ok := lookup("BFI_PATH"); ok && v != "" {
		c.Path = v
	}
	if v, ok := lookup("BFI_READ_ONLY"); ok && v != "" {
		ro, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid BFI_READ_ONLY %q: %w", v, err)
		}
		c.ReadOnly = ro
	}
	if v, ok := lookup("BFI_METRICS_ADDR"); ok && v != "" {
		c.MetricsAddr = v
	}
	if v, ok := lookup("LOG_LEVEL"); ok && v != "" {
		c.LogLevel = v
	}
	return nil
}

// Validate checks field syntax and that the resulting index options are
// usable
func (c Config) Validate() error {
	if err := validation.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	opts, err := c.Options(nil, nil)
	if err != nil {
		return err
	}
	return opts.Validate()
}

// Options converts the configuration into index options
func (c Config) Options(logger logging.Logger, reg *metrics.Registry) (bfi.Options, error) {
	opts := bfi.DefaultOptions()
	if c.Addressing != "" {
		a, err := bfi.ParseAddressing(c.Addressing)
		if err != nil {
			return bfi.Options{}, err
		}
		opts.Addressing = a
	}
	opts.ReadOnly = c.ReadOnly
	opts.Create = !c.NoCreate && !c.ReadOnly
	opts.SlotSize = validation.DefaultOrInt(c.SlotSize, opts.SlotSize)
	opts.SlotsPerPage = validation.DefaultOrInt(c.SlotsPerPage, opts.SlotsPerPage)
	opts.SignatureBits = validation.DefaultOrInt(c.SignatureBits, opts.SignatureBits)
	opts.Hashes = validation.DefaultOrInt(c.Hashes, opts.Hashes)
	opts.CachePages = validation.DefaultOrInt(c.CachePages, opts.CachePages)
	opts.Logger = logger
	opts.Metrics = reg
	return opts, nil
}

// Logger builds a JSON logger on w at the configured level
func (c Config) Logger(w io.Writer) logging.Logger {
	return logging.NewJSONLogger(w, logging.ParseLevel(c.LogLevel))
}
