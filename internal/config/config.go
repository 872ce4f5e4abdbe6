// Copyright (c) 2026 The XGo Authors (xgo.dev). All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package config loads the optional cargo-near configuration file.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/goplus/cargo-near/internal/env"
	"github.com/qiniu/x/log"
	"gopkg.in/yaml.v3"
)

// FileName is the name of the config file inside env.ConfigDir.
const FileName = "config.yaml"

// Config holds user settings. Zero values mean "use the default".
type Config struct {
	// Cargo is the build tool binary. The CARGO environment variable wins
	// over it.
	Cargo string `yaml:"cargo"`
	// LogLevel is one of debug, info, warn, error.
	LogLevel string `yaml:"log_level"`
	// RequireEntryPoints makes a contract without ABI entry points an error.
	RequireEntryPoints bool `yaml:"require_entry_points"`
	// TempDir is the parent directory for workspace snapshots.
	TempDir string `yaml:"temp_dir"`
}

var levels = map[string]int{
	"debug": log.Ldebug,
	"info":  log.Linfo,
	"warn":  log.Lwarn,
	"error": log.Lerror,
}

// Level maps LogLevel to a qiniu/x/log level. An empty LogLevel yields def.
func (c *Config) Level(def int) int {
	if c.LogLevel == "" {
		return def
	}
	return levels[c.LogLevel]
}

// CargoBin resolves the build tool: environment first, then the config
// file, then the platform default.
func (c *Config) CargoBin() string {
	bin, fromEnv := env.Cargo()
	if !fromEnv && c.Cargo != "" {
		return c.Cargo
	}
	return bin
}

// Load reads the config file at path. An empty path selects the default
// location, which may be absent; an explicit path must exist.
func Load(path string) (*Config, error) {
	explicit := path != ""
	if !explicit {
		dir, err := env.ConfigDir()
		if err != nil {
			return &Config{}, nil
		}
		path = filepath.Join(dir, FileName)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if !explicit && errors.Is(err, os.ErrNotExist) {
			return &Config{}, nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	log.Debugf("Loading config from %s", path)

	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes a YAML config document.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}
	if _, ok := levels[cfg.LogLevel]; cfg.LogLevel != "" && !ok {
		return nil, fmt.Errorf("unknown log_level %q", cfg.LogLevel)
	}
	return &cfg, nil
}
