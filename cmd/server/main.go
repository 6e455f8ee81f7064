// Copyright (c) 2026 Lettervault Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Lettervault — Forwarded-Newsletter Import Service
//
// Entry point for the import service. It:
//  1. Loads configuration from config.yaml
//  2. Connects to PostgreSQL, Redis, and object storage
//  3. Wires the import pipeline (extract → dedup → plan → store)
//  4. Serves the inbound email webhook for the mail provider
//  5. Handles graceful shutdown on SIGTERM/SIGINT
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	gcs "cloud.google.com/go/storage"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"golang.org/x/oauth2/clientcredentials"
	"google.golang.org/api/option"

	"github.com/lettervault/ingestion/internal/config"
	"github.com/lettervault/ingestion/internal/dedup"
	"github.com/lettervault/ingestion/internal/importer"
	"github.com/lettervault/ingestion/internal/objstore"
	"github.com/lettervault/ingestion/internal/plan"
	"github.com/lettervault/ingestion/internal/queue"
	"github.com/lettervault/ingestion/internal/ratelimit"
	"github.com/lettervault/ingestion/internal/store"
	"github.com/lettervault/ingestion/internal/webhook"
)

func main() {
	// Structured JSON logging
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	slog.Info("starting Lettervault import service")

	// --- Load Configuration ---
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	slog.Info("configuration loaded",
		"port", cfg.Port,
		"rate_hard_limit", cfg.RateLimit.HardLimit,
		"rate_soft_buffer", cfg.RateLimit.SoftBuffer,
		"shared_content", cfg.Storage.SharedContent,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// --- Connect to PostgreSQL ---
	pgPool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		slog.Error("failed to create Postgres pool", "error", err)
		os.Exit(1)
	}
	defer pgPool.Close()

	if err := pgPool.Ping(ctx); err != nil {
		slog.Error("failed to connect to PostgreSQL", "error", err)
		os.Exit(1)
	}
	slog.Info("connected to PostgreSQL")

	// --- Connect to Redis ---
	opt, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		slog.Error("invalid REDIS_URL", "error", err)
		os.Exit(1)
	}
	rdb := redis.NewClient(opt)

	publisher := queue.NewPublisher(rdb, cfg.EventsQueue)
	if err := publisher.Ping(ctx); err != nil {
		slog.Error("failed to connect to Redis", "error", err)
		os.Exit(1)
	}
	slog.Info("connected to Redis")

	// --- Library Store (Postgres) ---
	library, err := store.New(ctx, pgPool)
	if err != nil {
		slog.Error("failed to initialise library store", "error", err)
		os.Exit(1)
	}

	// --- Object Storage ---
	objects, err := buildObjectStore(ctx, cfg.Storage)
	if err != nil {
		slog.Error("failed to initialise object storage", "error", err)
		os.Exit(1)
	}

	// --- Entitlements Provider ---
	provider := buildEntitlementsProvider(ctx, cfg.Entitlements)

	// --- Import Pipeline ---
	limiter := ratelimit.NewLimiter(
		ratelimit.NewRedisCache(rdb),
		ratelimit.WithLimits(cfg.RateLimit.HardLimit, cfg.RateLimit.SoftBuffer),
		ratelimit.WithWindow(cfg.RateLimit.Window),
	)

	pipeline := importer.New(importer.Config{
		Library:       library,
		Detector:      dedup.NewDetector(library),
		Engine:        plan.NewEngine(provider, library),
		Limiter:       limiter,
		Objects:       objects,
		Events:        publisher,
		MaxEmailBytes: cfg.MaxEmailBytes,
		SharedContent: cfg.Storage.SharedContent,
	})

	// --- Inbound Webhook Server ---
	handler := webhook.NewHandler(pipeline)
	ready, err := webhook.Serve(ctx, cfg.InboundPort, handler)
	if err != nil {
		slog.Error("failed to start inbound webhook server", "error", err)
		os.Exit(1)
	}
	<-ready
	slog.Info("inbound webhook server ready")

	// --- Health Check Server ---
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		// Check Redis
		if err := publisher.Ping(r.Context()); err != nil {
			http.Error(w, "redis unhealthy", http.StatusServiceUnavailable)
			return
		}
		// Check Postgres
		if err := library.Touch(r.Context()); err != nil {
			http.Error(w, "postgres unhealthy", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status": "healthy"}`))
	})

	addr := fmt.Sprintf(":%d", cfg.Port)
	server := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	// --- Graceful Shutdown ---
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
		sig := <-sigCh

		slog.Info("received shutdown signal", "signal", sig)
		cancel() // Stop the webhook server

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer shutdownCancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("server shutdown error", "error", err)
		}

		rdb.Close()
		pgPool.Close()
	}()

	slog.Info("import service listening", "inbound_port", cfg.InboundPort, "health_addr", addr)
	if err := server.ListenAndServe(); err != http.ErrServerClosed {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}

	slog.Info("import service stopped")
}

// buildObjectStore picks GCS when a bucket is configured, otherwise the
// local filesystem store.
func buildObjectStore(ctx context.Context, cfg config.StorageConfig) (objstore.Store, error) {
	if cfg.Bucket != "" {
		var opts []option.ClientOption
		if cfg.CredentialsFile != "" {
			opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
		}
		client, err := gcs.NewClient(ctx, opts...)
		if err != nil {
			return nil, fmt.Errorf("create GCS client: %w", err)
		}
		slog.Info("using GCS object storage", "bucket", cfg.Bucket)
		return objstore.NewGCS(client, cfg.Bucket), nil
	}

	dir := cfg.LocalDir
	if dir == "" {
		dir = "./data/newsletters"
	}
	slog.Info("using local object storage", "dir", dir)
	return objstore.NewLocal(dir), nil
}

// buildEntitlementsProvider uses the billing service when configured,
// otherwise the static development tier.
func buildEntitlementsProvider(ctx context.Context, cfg config.EntitlementsConfig) plan.Provider {
	if cfg.BaseURL == "" {
		slog.Info("no billing service configured, using static entitlements",
			"hard_cap", cfg.StaticHardCap,
			"unlocked_cap", cfg.StaticUnlockedCap,
		)
		return &plan.Static{Entitlements: plan.Entitlements{
			IsUnrestricted: cfg.StaticUnrestricted,
			HardCap:        cfg.StaticHardCap,
			UnlockedCap:    cfg.StaticUnlockedCap,
		}}
	}

	creds := &clientcredentials.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		TokenURL:     cfg.TokenURL,
	}
	slog.Info("using billing service entitlements", "base_url", cfg.BaseURL)
	return plan.NewClient(creds.Client(ctx), cfg.BaseURL)
}
