package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the runtime configuration. Values come from an optional YAML
// file, then SMARTQR_* environment variables, then command-line flags.
type Config struct {
	WorkDir     string        `yaml:"workdir"`
	DBPath      string        `yaml:"db"`
	Addr        string        `yaml:"addr"`
	TokenHash   string        `yaml:"token_hash"`
	Operator    string        `yaml:"operator"`
	FramesDir   string        `yaml:"frames_dir"`
	LabelSize   int           `yaml:"label_size"`
	MaxQty      int           `yaml:"max_qty"`
	ScanTimeout time.Duration `yaml:"scan_timeout"`
}

// Load reads path (skipped when empty or missing) and applies env overrides.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return nil, err
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse %s: %w", path, err)
			}
		}
	}

	setString(&cfg.WorkDir, "SMARTQR_WORKDIR")
	setString(&cfg.DBPath, "SMARTQR_DB")
	setString(&cfg.Addr, "SMARTQR_ADDR")
	setString(&cfg.TokenHash, "SMARTQR_TOKEN_HASH")
	setString(&cfg.Operator, "SMARTQR_OPERATOR")
	setString(&cfg.FramesDir, "SMARTQR_FRAMES_DIR")
	if v := os.Getenv("SMARTQR_SCAN_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return nil, fmt.Errorf("SMARTQR_SCAN_TIMEOUT: %w", err)
		}
		cfg.ScanTimeout = d
	}
	if v := os.Getenv("SMARTQR_MAX_QTY"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("SMARTQR_MAX_QTY: %w", err)
		}
		cfg.MaxQty = n
	}
	return cfg, nil
}

func setString(dst *string, env string) {
	if v := os.Getenv(env); v != "" {
		*dst = v
	}
}

// Finalize fills defaults. Relative paths resolve against the working
// directory, which itself defaults to the executable's directory.
func (c *Config) Finalize() error {
	if c.WorkDir == "" {
		exe, err := os.Executable()
		if err != nil {
			return err
		}
		c.WorkDir = filepath.Dir(exe)
	}
	abs, err := filepath.Abs(c.WorkDir)
	if err != nil {
		return err
	}
	c.WorkDir = abs

	if c.DBPath == "" {
		c.DBPath = "data.db"
	}
	if c.DBPath != ":memory:" && !filepath.IsAbs(c.DBPath) {
		c.DBPath = filepath.Join(c.WorkDir, c.DBPath)
	}
	if c.FramesDir == "" {
		c.FramesDir = "frames"
	}
	if !filepath.IsAbs(c.FramesDir) {
		c.FramesDir = filepath.Join(c.WorkDir, c.FramesDir)
	}
	if c.Addr == "" {
		c.Addr = "127.0.0.1:9000"
	}
	if c.LabelSize <= 0 {
		c.LabelSize = 256
	}
	if c.MaxQty <= 0 {
		c.MaxQty = 100000
	}
	if c.ScanTimeout < 0 {
		return fmt.Errorf("scan_timeout must not be negative")
	}
	return nil
}

// LabelDir is where label images are written.
func (c *Config) LabelDir() string { return filepath.Join(c.WorkDir, "qrcodes") }

// ExportDir is where spreadsheets are written.
func (c *Config) ExportDir() string { return filepath.Join(c.WorkDir, "exports") }
