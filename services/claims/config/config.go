// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package config loads service configuration from YAML with environment
// overrides.
//
// Precedence, lowest to highest: built-in defaults, the YAML file,
// CLAIMPILOT_* environment variables. Secrets (the backend API key)
// come from the environment only and never from the file.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration wraps time.Duration with YAML support for strings like
// "30s" and "2m".
type Duration time.Duration

// UnmarshalYAML parses a Go duration string.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	parsed, err := time.ParseDuration(value.Value)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", value.Value, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// Backend type selectors.
const (
	// BackendScript is the deterministic scripted backend. It needs no
	// network and is the default.
	BackendScript = "script"

	// BackendOpenAI drives stages through an OpenAI-compatible API.
	BackendOpenAI = "openai"
)

// ServerConfig tunes the HTTP listener.
type ServerConfig struct {
	// Port is the listen port.
	Port string `yaml:"port"`

	// Mode is the gin mode: debug, release, or test.
	Mode string `yaml:"mode"`
}

// StorageConfig tunes the badger store.
type StorageConfig struct {
	// Dir is the database directory. Ignored when InMemory is set.
	Dir string `yaml:"dir"`

	// InMemory keeps all data in memory. Intended for demos and tests.
	InMemory bool `yaml:"in_memory"`
}

// BackendConfig selects and tunes the reasoning backend.
type BackendConfig struct {
	// Type is BackendScript or BackendOpenAI.
	Type string `yaml:"type"`

	// BaseURL overrides the OpenAI-compatible endpoint. Empty uses the
	// client's default. Point this at a local llama.cpp or vLLM server
	// for offline operation.
	BaseURL string `yaml:"base_url"`

	// Model is the model identifier for the OpenAI backend.
	Model string `yaml:"model"`

	// Temperature is the sampling temperature.
	Temperature float32 `yaml:"temperature"`

	// APIKey is read from CLAIMPILOT_OPENAI_API_KEY only.
	APIKey string `yaml:"-"`
}

// EngineConfig tunes the workflow engine.
type EngineConfig struct {
	// WorkerPoolSize bounds concurrent review stages.
	WorkerPoolSize int `yaml:"worker_pool_size"`

	// StageTimeout bounds one stage run.
	StageTimeout Duration `yaml:"stage_timeout"`

	// RunTimeout bounds one full processing run.
	RunTimeout Duration `yaml:"run_timeout"`

	// MaxSteps bounds one stage's reasoning loop.
	MaxSteps int `yaml:"max_steps"`
}

// Config is the full service configuration.
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Storage StorageConfig `yaml:"storage"`
	Backend BackendConfig `yaml:"backend"`
	Engine  EngineConfig  `yaml:"engine"`
}

// Default returns the built-in defaults.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Port: "12410",
			Mode: "release",
		},
		Storage: StorageConfig{
			Dir: "/var/lib/claimpilot",
		},
		Backend: BackendConfig{
			Type:        BackendScript,
			Temperature: 0.1,
		},
		Engine: EngineConfig{
			WorkerPoolSize: 4,
			StageTimeout:   Duration(30 * time.Second),
			RunTimeout:     Duration(2 * time.Minute),
			MaxSteps:       8,
		},
	}
}

// Load reads the configuration.
//
// Inputs:
//
//	path - YAML file path; empty skips the file layer
//
// Outputs:
//
//	Config - Merged configuration
//	error - Non-nil if the file exists but cannot be parsed, or a
//	        value fails validation
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	applyEnv(&cfg)

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// applyEnv layers CLAIMPILOT_* variables over the file values.
func applyEnv(cfg *Config) {
	if v := os.Getenv("CLAIMPILOT_PORT"); v != "" {
		cfg.Server.Port = v
	}
	if v := os.Getenv("CLAIMPILOT_GIN_MODE"); v != "" {
		cfg.Server.Mode = v
	}
	if v := os.Getenv("CLAIMPILOT_DATA_DIR"); v != "" {
		cfg.Storage.Dir = v
	}
	if v := os.Getenv("CLAIMPILOT_IN_MEMORY"); v != "" {
		cfg.Storage.InMemory = v == "1" || v == "true"
	}
	if v := os.Getenv("CLAIMPILOT_BACKEND"); v != "" {
		cfg.Backend.Type = v
	}
	if v := os.Getenv("CLAIMPILOT_OPENAI_BASE_URL"); v != "" {
		cfg.Backend.BaseURL = v
	}
	if v := os.Getenv("CLAIMPILOT_OPENAI_MODEL"); v != "" {
		cfg.Backend.Model = v
	}
	if v := os.Getenv("CLAIMPILOT_WORKER_POOL"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Engine.WorkerPoolSize = n
		}
	}
	cfg.Backend.APIKey = os.Getenv("CLAIMPILOT_OPENAI_API_KEY")
}

// Validate rejects unusable configurations.
func (c Config) Validate() error {
	if c.Backend.Type != BackendScript && c.Backend.Type != BackendOpenAI {
		return fmt.Errorf("unknown backend type %q", c.Backend.Type)
	}
	if c.Backend.Type == BackendOpenAI && c.Backend.APIKey == "" && c.Backend.BaseURL == "" {
		return fmt.Errorf("openai backend requires CLAIMPILOT_OPENAI_API_KEY or a base_url")
	}
	if !c.Storage.InMemory && c.Storage.Dir == "" {
		return fmt.Errorf("storage dir must be set when not in memory")
	}
	if c.Engine.WorkerPoolSize < 1 {
		return fmt.Errorf("worker pool size must be at least 1, got %d", c.Engine.WorkerPoolSize)
	}
	if c.Engine.MaxSteps < 1 {
		return fmt.Errorf("max steps must be at least 1, got %d", c.Engine.MaxSteps)
	}
	return nil
}
