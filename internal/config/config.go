// Package config loads per-project settings from .callindex.yml.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"gopkg.in/yaml.v3"
)

// FileName is the config file looked up at the scanned root.
const FileName = ".callindex.yml"

// DefaultMaxFileSize is the size above which files are skipped.
const DefaultMaxFileSize = 1_000_000 // 1 MB

// Config holds project settings. Zero values mean "use the default".
type Config struct {
	// Extensions lists file extensions treated as PHP, with leading dot.
	Extensions []string `yaml:"extensions"`
	// Exclude lists doublestar globs, relative to the root, of files to skip.
	Exclude []string `yaml:"exclude"`
	// SkipDirs lists extra directory names never descended into.
	SkipDirs []string `yaml:"skip_dirs"`
	// MaxFileSize skips files larger than this many bytes.
	MaxFileSize int `yaml:"max_file_size"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{
		Extensions:  []string{".php", ".phtml", ".inc"},
		MaxFileSize: DefaultMaxFileSize,
	}
}

// Load reads root/.callindex.yml on top of Default. A missing file is not
// an error.
func Load(root string) (*Config, error) {
	cfg := Default()
	data, err := os.ReadFile(filepath.Join(root, FileName))
	if errors.Is(err, os.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return nil, err
	}
	if err := Parse(data, cfg); err != nil {
		return nil, fmt.Errorf("%s: %w", FileName, err)
	}
	return cfg, nil
}

// Parse decodes YAML data into cfg, keeping cfg's values for absent keys,
// and validates the result.
func Parse(data []byte, cfg *Config) error {
	var file Config
	if err := yaml.Unmarshal(data, &file); err != nil {
		return err
	}
	if len(file.Extensions) > 0 {
		cfg.Extensions = nil
		for _, ext := range file.Extensions {
			ext = strings.TrimSpace(ext)
			if !strings.HasPrefix(ext, ".") {
				ext = "." + ext
			}
			cfg.Extensions = append(cfg.Extensions, ext)
		}
	}
	if file.MaxFileSize != 0 {
		cfg.MaxFileSize = file.MaxFileSize
	}
	cfg.Exclude = append(cfg.Exclude, file.Exclude...)
	cfg.SkipDirs = append(cfg.SkipDirs, file.SkipDirs...)
	return cfg.Validate()
}

// Validate checks that every exclude pattern is well formed.
func (c *Config) Validate() error {
	if c.MaxFileSize < 0 {
		return fmt.Errorf("max_file_size must not be negative, got %d", c.MaxFileSize)
	}
	for _, pattern := range c.Exclude {
		if !doublestar.ValidatePattern(pattern) {
			return fmt.Errorf("invalid exclude pattern %q", pattern)
		}
	}
	return nil
}

// Excluded reports whether the slash-separated relative path matches any
// exclude pattern.
func (c *Config) Excluded(rel string) bool {
	rel = filepath.ToSlash(rel)
	for _, pattern := range c.Exclude {
		if ok, _ := doublestar.Match(pattern, rel); ok {
			return true
		}
	}
	return false
}
