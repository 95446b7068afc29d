// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Port != "12410" {
		t.Errorf("unexpected default port %s", cfg.Server.Port)
	}
	if cfg.Backend.Type != BackendScript {
		t.Errorf("default backend must be script, got %s", cfg.Backend.Type)
	}
	if cfg.Engine.WorkerPoolSize != 4 || cfg.Engine.MaxSteps != 8 {
		t.Errorf("unexpected engine defaults: %+v", cfg.Engine)
	}
}

func TestLoadFileOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "claimpilot.yaml")
	data := []byte(`
server:
  port: "9000"
storage:
  in_memory: true
engine:
  worker_pool_size: 2
  stage_timeout: 10s
`)
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Port != "9000" {
		t.Errorf("file port not applied, got %s", cfg.Server.Port)
	}
	if !cfg.Storage.InMemory {
		t.Error("in_memory not applied")
	}
	if cfg.Engine.WorkerPoolSize != 2 {
		t.Errorf("worker pool not applied, got %d", cfg.Engine.WorkerPoolSize)
	}
	if cfg.Engine.StageTimeout.Std() != 10*time.Second {
		t.Errorf("stage timeout not applied, got %s", cfg.Engine.StageTimeout.Std())
	}
	// Untouched values keep their defaults.
	if cfg.Engine.MaxSteps != 8 {
		t.Errorf("max steps default lost, got %d", cfg.Engine.MaxSteps)
	}
}

func TestLoadEnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "claimpilot.yaml")
	if err := os.WriteFile(path, []byte("server:\n  port: \"9000\"\n"), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("CLAIMPILOT_PORT", "9001")
	t.Setenv("CLAIMPILOT_IN_MEMORY", "1")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Port != "9001" {
		t.Errorf("env port must win, got %s", cfg.Server.Port)
	}
	if !cfg.Storage.InMemory {
		t.Error("env in-memory flag not applied")
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"unknown backend", func(c *Config) { c.Backend.Type = "psychic" }},
		{"openai without credentials", func(c *Config) { c.Backend.Type = BackendOpenAI }},
		{"no storage dir", func(c *Config) { c.Storage.Dir = "" }},
		{"zero workers", func(c *Config) { c.Engine.WorkerPoolSize = 0 }},
		{"zero steps", func(c *Config) { c.Engine.MaxSteps = 0 }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(&cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("expected a validation error")
			}
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Error("expected an error for a missing file")
	}
}
