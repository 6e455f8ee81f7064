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

// Lettervault — Usage Counter Recount Command
//
// Standalone CLI tool that recomputes per-user usage counters from the
// newsletters table. Counters are maintained incrementally by the import
// pipeline; a missed increment (crash between store and count) drifts them
// until this runs.
//
// Usage:
//
//	go run ./cmd/recount/ [--user <id>]
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/lettervault/ingestion/internal/config"
	"github.com/lettervault/ingestion/internal/store"
)

func main() {
	// Structured JSON logging
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	// --- CLI Flags ---
	userFlag := flag.String("user", "", "Recount a single user id (empty = all users)")
	flag.Parse()

	// --- Load Configuration ---
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	ctx := context.Background()

	pgPool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		slog.Error("failed to create Postgres pool", "error", err)
		os.Exit(1)
	}
	defer pgPool.Close()

	library, err := store.New(ctx, pgPool)
	if err != nil {
		slog.Error("failed to initialise library store", "error", err)
		os.Exit(1)
	}

	userIDs := []string{*userFlag}
	if *userFlag == "" {
		userIDs, err = library.ListUserIDs(ctx)
		if err != nil {
			slog.Error("failed to list users", "error", err)
			os.Exit(1)
		}
	}

	slog.Info("starting usage recount", "users", len(userIDs))

	failures := 0
	for _, userID := range userIDs {
		counters, err := library.RecountUsage(ctx, userID)
		if err != nil {
			slog.Error("recount failed", "user", userID, "error", err)
			failures++
			continue
		}
		slog.Info("recounted usage",
			"user", userID,
			"total", counters.TotalStored,
			"unlocked", counters.UnlockedStored,
			"locked", counters.LockedStored,
		)
	}

	if failures > 0 {
		slog.Error("recount finished with failures", "failures", failures)
		os.Exit(1)
	}
	slog.Info("recount finished")
}
