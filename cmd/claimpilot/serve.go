// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/AleutianAI/claimpilot/pkg/logging"
	"github.com/AleutianAI/claimpilot/services/claims/agent"
	"github.com/AleutianAI/claimpilot/services/claims/config"
	"github.com/AleutianAI/claimpilot/services/claims/engine"
	"github.com/AleutianAI/claimpilot/services/claims/fraud"
	"github.com/AleutianAI/claimpilot/services/claims/learning"
	"github.com/AleutianAI/claimpilot/services/claims/observability"
	"github.com/AleutianAI/claimpilot/services/claims/routes"
	claimbadger "github.com/AleutianAI/claimpilot/services/claims/storage/badger"
	"github.com/AleutianAI/claimpilot/services/claims/store"
	"github.com/AleutianAI/claimpilot/services/claims/telemetry"
	"github.com/AleutianAI/claimpilot/services/claims/tools"
)

// runServe boots the full claim processing service.
func runServe(cmd *cobra.Command, args []string) {
	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("FATAL: could not load configuration: %v", err)
	}

	logger, closeLog, err := logging.New(logging.Config{
		Level:   os.Getenv("CLAIMPILOT_LOG_LEVEL"),
		JSON:    true,
		Service: "claims",
	})
	if err != nil {
		log.Fatalf("FATAL: could not initialize logging: %v", err)
	}
	defer closeLog()

	tracer, err := telemetry.NewTracer(telemetry.DefaultServiceName)
	if err != nil {
		log.Fatalf("FATAL: could not initialize tracing: %v", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tracer.Shutdown(shutdownCtx); err != nil {
			logger.Error("tracer shutdown failed", "error", err)
		}
	}()

	badgerCfg := claimbadger.DefaultConfig(cfg.Storage.Dir)
	if cfg.Storage.InMemory {
		badgerCfg = claimbadger.InMemoryConfig()
	}
	db, err := claimbadger.Open(badgerCfg)
	if err != nil {
		log.Fatalf("FATAL: could not open claim database: %v", err)
	}
	defer func() {
		if err := db.Close(); err != nil {
			logger.Error("database close failed", "error", err)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go claimbadger.RunGC(ctx, db, badgerCfg)

	claimStore := store.New(db)
	patterns := learning.NewStore(db, nil, logger)

	registry := tools.NewRegistry()
	tools.RegisterClaimTools(registry, claimStore, fraud.NewAnalyzer(claimStore))

	var backend agent.ReasoningBackend
	switch cfg.Backend.Type {
	case config.BackendOpenAI:
		backend = agent.NewOpenAIBackend(agent.OpenAIBackendConfig{
			BaseURL:     cfg.Backend.BaseURL,
			APIKey:      cfg.Backend.APIKey,
			Model:       cfg.Backend.Model,
			Temperature: cfg.Backend.Temperature,
		}, logger)
		logger.Info("using OpenAI-compatible reasoning backend", "model", cfg.Backend.Model)
	default:
		backend = agent.NewScriptBackend()
		logger.Info("using scripted reasoning backend")
	}

	promRegistry := prometheus.NewRegistry()
	metrics := observability.NewMetrics(promRegistry)

	eng := engine.New(claimStore, patterns, registry, backend, metrics, tracer, logger, engine.Config{
		WorkerPoolSize: cfg.Engine.WorkerPoolSize,
		StageTimeout:   cfg.Engine.StageTimeout.Std(),
		RunTimeout:     cfg.Engine.RunTimeout.Std(),
		Loop: agent.LoopConfig{
			MaxSteps:        cfg.Engine.MaxSteps,
			RepeatThreshold: agent.DefaultRepeatThreshold,
		},
	})

	gin.SetMode(cfg.Server.Mode)
	router := gin.New()
	router.Use(gin.Recovery())
	routes.SetupRoutes(router, claimStore, eng, promRegistry)

	server := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("claim service listening", "port", cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server stopped unexpectedly", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", "error", err)
	}
	logger.Info("claim service stopped")
}
