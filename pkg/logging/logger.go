// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package logging provides structured logging for claimpilot components.
//
// The package wraps Go's slog with two conventions the service relies
// on everywhere: stderr output by default (text for terminals, JSON
// for deployment), and claim-scoped child loggers so that every line
// emitted while a claim is in flight carries its claim_id.
//
// Basic usage:
//
//	logger := logging.Default()
//	logger.Info("server starting", "port", port)
//
//	claimLog := logging.WithClaim(logger, claimID)
//	claimLog.Info("stage finished", "role", role)
//
// This package does NOT redact sensitive data. Callers must keep
// patient identifiers out of free-text log values; structured keys
// such as claim_id and patient_id are the only sanctioned carriers.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Config configures logger construction. The zero value yields an
// Info-level text logger on stderr.
type Config struct {
	// Level is the minimum level: "debug", "info", "warn", "error".
	Level string

	// JSON switches output to JSON. Text output is the default.
	JSON bool

	// Service is attached to every record as the service key.
	Service string

	// LogDir, when set, additionally writes JSON records to a file
	// named {service}_{date}.log under this directory.
	LogDir string
}

// Default returns an Info-level text logger on stderr.
func Default() *slog.Logger {
	logger, _, err := New(Config{})
	if err != nil {
		// Cannot happen without LogDir; keep the signature honest.
		return slog.New(slog.NewTextHandler(os.Stderr, nil))
	}
	return logger
}

// New builds a logger from the config.
//
// Inputs:
//
//	cfg - Logger configuration
//
// Outputs:
//
//	*slog.Logger - The configured logger
//	func() - Close function for the log file; never nil
//	error - Non-nil if the log directory cannot be created
func New(cfg Config) (*slog.Logger, func(), error) {
	level := parseLevel(cfg.Level)
	opts := &slog.HandlerOptions{Level: level}

	var out io.Writer = os.Stderr
	closer := func() {}

	if cfg.LogDir != "" {
		dir, err := expandHome(cfg.LogDir)
		if err != nil {
			return nil, nil, err
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, nil, fmt.Errorf("create log dir %s: %w", dir, err)
		}

		service := cfg.Service
		if service == "" {
			service = "claimpilot"
		}
		name := fmt.Sprintf("%s_%s.log", service, time.Now().UTC().Format("2006-01-02"))
		file, err := os.OpenFile(filepath.Join(dir, name), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, nil, fmt.Errorf("open log file: %w", err)
		}
		out = io.MultiWriter(os.Stderr, file)
		closer = func() { _ = file.Close() }
	}

	var handler slog.Handler
	if cfg.JSON {
		handler = slog.NewJSONHandler(out, opts)
	} else {
		handler = slog.NewTextHandler(out, opts)
	}

	logger := slog.New(handler)
	if cfg.Service != "" {
		logger = logger.With("service", cfg.Service)
	}
	return logger, closer, nil
}

// WithClaim returns a child logger scoped to one claim.
func WithClaim(logger *slog.Logger, claimID string) *slog.Logger {
	return logger.With("claim_id", claimID)
}

// WithStage returns a child logger scoped to one agent stage.
func WithStage(logger *slog.Logger, claimID, role string) *slog.Logger {
	return logger.With("claim_id", claimID, "role", role)
}

// parseLevel maps a config string to a slog level. Unknown values
// fall back to Info.
func parseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// expandHome resolves a leading ~ in a path.
func expandHome(path string) (string, error) {
	if !strings.HasPrefix(path, "~") {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home dir: %w", err)
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~")), nil
}
