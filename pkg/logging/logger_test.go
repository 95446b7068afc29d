// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package logging

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"ERROR", slog.LevelError},
		{"  Info ", slog.LevelInfo},
		{"", slog.LevelInfo},
		{"verbose", slog.LevelInfo},
	}
	for _, tc := range tests {
		if got := parseLevel(tc.in); got != tc.want {
			t.Errorf("parseLevel(%q) = %v, want %v", tc.in, got, tc.want)
		}
	}
}

func TestNewWritesLogFile(t *testing.T) {
	dir := t.TempDir()
	logger, closeFn, err := New(Config{
		Level:   "debug",
		JSON:    true,
		Service: "claims",
		LogDir:  dir,
	})
	if err != nil {
		t.Fatalf("new: %v", err)
	}

	logger.Info("claim submitted", "claim_id", "CLM-TEST0001")
	closeFn()

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("read dir: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected one log file, got %d", len(entries))
	}
	name := entries[0].Name()
	if !strings.HasPrefix(name, "claims_") || !strings.HasSuffix(name, ".log") {
		t.Errorf("unexpected log file name %q", name)
	}

	raw, err := os.ReadFile(filepath.Join(dir, name))
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	if !strings.Contains(string(raw), "CLM-TEST0001") {
		t.Errorf("log file missing record: %s", raw)
	}
	if !strings.Contains(string(raw), `"service":"claims"`) {
		t.Errorf("log file missing service key: %s", raw)
	}
}

func TestDefaultNeverNil(t *testing.T) {
	if Default() == nil {
		t.Fatal("Default returned nil")
	}
}

func TestExpandHome(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("no home dir in this environment")
	}

	got, err := expandHome("~/logs")
	if err != nil {
		t.Fatalf("expand: %v", err)
	}
	if got != filepath.Join(home, "logs") {
		t.Errorf("expandHome = %q", got)
	}

	plain, err := expandHome("/var/log/claimpilot")
	if err != nil || plain != "/var/log/claimpilot" {
		t.Errorf("absolute paths must pass through, got %q, %v", plain, err)
	}
}

func TestWithClaimAndStage(t *testing.T) {
	logger := Default()
	if WithClaim(logger, "CLM-TEST0001") == nil {
		t.Fatal("WithClaim returned nil")
	}
	if WithStage(logger, "CLM-TEST0001", "eligibility") == nil {
		t.Fatal("WithStage returned nil")
	}
}
