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

// Package store provides the Postgres-backed library: users, stored
// newsletters (the per-user dedup indexes live here), and per-user usage
// counters.
package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/lettervault/ingestion/internal/models"
)

// Store provides CRUD operations against Postgres.
type Store struct {
	pool *pgxpool.Pool
}

// New creates a store backed by the given Postgres pool. It ensures the
// schema exists on creation.
func New(ctx context.Context, pool *pgxpool.Pool) (*Store, error) {
	s := &Store{pool: pool}
	if err := s.ensureSchema(ctx); err != nil {
		return nil, fmt.Errorf("ensure library schema: %w", err)
	}
	slog.Info("library store initialised")
	return s, nil
}

func (s *Store) ensureSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS users (
			id             TEXT PRIMARY KEY,
			email          TEXT NOT NULL,
			import_address TEXT NOT NULL UNIQUE,
			created_at     TIMESTAMPTZ DEFAULT NOW()
		);
		CREATE TABLE IF NOT EXISTS newsletters (
			id             UUID PRIMARY KEY,
			user_id        TEXT NOT NULL REFERENCES users(id),
			message_id     TEXT DEFAULT '',
			fingerprint    TEXT NOT NULL,
			from_address   TEXT NOT NULL,
			from_name      TEXT DEFAULT '',
			subject        TEXT NOT NULL,
			published_at   TIMESTAMPTZ NOT NULL,
			storage_key    TEXT NOT NULL,
			locked_by_plan BOOLEAN DEFAULT FALSE,
			created_at     TIMESTAMPTZ DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS idx_newsletters_user ON newsletters(user_id);
		CREATE INDEX IF NOT EXISTS idx_newsletters_msgid ON newsletters(user_id, message_id);
		CREATE INDEX IF NOT EXISTS idx_newsletters_fp ON newsletters(user_id, fingerprint);
		CREATE TABLE IF NOT EXISTS usage_counters (
			user_id         TEXT PRIMARY KEY REFERENCES users(id),
			total_stored    INTEGER NOT NULL DEFAULT 0,
			unlocked_stored INTEGER NOT NULL DEFAULT 0,
			locked_stored   INTEGER NOT NULL DEFAULT 0,
			updated_at      TIMESTAMPTZ DEFAULT NOW()
		);
	`)
	return err
}

// FindUserByAddress resolves the forwarding user from their envelope sender
// address. Returns nil when the address is not registered.
func (s *Store) FindUserByAddress(ctx context.Context, address string) (*models.User, error) {
	address = strings.ToLower(strings.TrimSpace(address))
	row := s.pool.QueryRow(ctx, `
		SELECT id, email, import_address
		FROM users
		WHERE LOWER(email) = $1 OR LOWER(import_address) = $1
	`, address)

	var u models.User
	if err := row.Scan(&u.ID, &u.Email, &u.ImportAddress); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("find user by address: %w", err)
	}
	return &u, nil
}

// FindByMessageID looks up a stored newsletter for this user with the given
// RFC 5322 message-id. Returns "" when no match exists.
func (s *Store) FindByMessageID(ctx context.Context, userID, messageID string) (string, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id FROM newsletters
		WHERE user_id = $1 AND message_id = $2 AND message_id <> ''
		LIMIT 1
	`, userID, messageID)

	var id string
	if err := row.Scan(&id); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", nil
		}
		return "", fmt.Errorf("find by message id: %w", err)
	}
	return id, nil
}

// FindByFingerprint looks up a stored newsletter for this user with the
// given content fingerprint. Returns "" when no match exists.
func (s *Store) FindByFingerprint(ctx context.Context, userID, fingerprint string) (string, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id FROM newsletters
		WHERE user_id = $1 AND fingerprint = $2
		LIMIT 1
	`, userID, fingerprint)

	var id string
	if err := row.Scan(&id); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", nil
		}
		return "", fmt.Errorf("find by fingerprint: %w", err)
	}
	return id, nil
}

// InsertNewsletter records a stored item in the user's library.
func (s *Store) InsertNewsletter(ctx context.Context, n models.Newsletter) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO newsletters
			(id, user_id, message_id, fingerprint, from_address, from_name,
			 subject, published_at, storage_key, locked_by_plan)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, n.ID, n.UserID, n.MessageID, n.Fingerprint, n.FromAddress, n.FromName,
		n.Subject, n.PublishedAt, n.StorageKey, n.LockedByPlan)
	if err != nil {
		return fmt.Errorf("insert newsletter: %w", err)
	}
	return nil
}

// GetUsageCounters reads the user's counters. Returns nil when no counter
// row exists yet; callers recompute the fallback via RecountUsage.
func (s *Store) GetUsageCounters(ctx context.Context, userID string) (*models.UsageCounters, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT total_stored, unlocked_stored, locked_stored
		FROM usage_counters
		WHERE user_id = $1
	`, userID)

	var c models.UsageCounters
	if err := row.Scan(&c.TotalStored, &c.UnlockedStored, &c.LockedStored); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get usage counters: %w", err)
	}
	return &c, nil
}

// RecountUsage recomputes the counters from the newsletters table and
// persists the result. Used when the counter row is absent, and by the
// recount maintenance command.
func (s *Store) RecountUsage(ctx context.Context, userID string) (*models.UsageCounters, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT COUNT(*),
		       COUNT(*) FILTER (WHERE NOT locked_by_plan),
		       COUNT(*) FILTER (WHERE locked_by_plan)
		FROM newsletters
		WHERE user_id = $1
	`, userID)

	var c models.UsageCounters
	if err := row.Scan(&c.TotalStored, &c.UnlockedStored, &c.LockedStored); err != nil {
		return nil, fmt.Errorf("recount usage: %w", err)
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO usage_counters (user_id, total_stored, unlocked_stored, locked_stored)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (user_id) DO UPDATE SET
			total_stored    = EXCLUDED.total_stored,
			unlocked_stored = EXCLUDED.unlocked_stored,
			locked_stored   = EXCLUDED.locked_stored,
			updated_at      = NOW()
	`, userID, c.TotalStored, c.UnlockedStored, c.LockedStored)
	if err != nil {
		return nil, fmt.Errorf("persist recounted usage: %w", err)
	}
	return &c, nil
}

// IncrementUsage bumps total_stored and exactly one of the locked/unlocked
// buckets after a successful store. The increment is plain SQL arithmetic:
// the decision that preceded it read the counters without a lock, and two
// near-simultaneous imports can both pass the cap check before either
// increments. The caps are soft limits and the race window is accepted.
func (s *Store) IncrementUsage(ctx context.Context, userID string, locked bool) error {
	column := "unlocked_stored"
	if locked {
		column = "locked_stored"
	}
	_, err := s.pool.Exec(ctx, fmt.Sprintf(`
		INSERT INTO usage_counters (user_id, total_stored, unlocked_stored, locked_stored)
		VALUES ($1, 1, %d, %d)
		ON CONFLICT (user_id) DO UPDATE SET
			total_stored = usage_counters.total_stored + 1,
			%s           = usage_counters.%s + 1,
			updated_at   = NOW()
	`, boolToInt(!locked), boolToInt(locked), column, column), userID)
	if err != nil {
		return fmt.Errorf("increment usage: %w", err)
	}
	return nil
}

// ListUserIDs returns every user id, for the recount command.
func (s *Store) ListUserIDs(ctx context.Context) ([]string, error) {
	rows, err := s.pool.Query(ctx, `SELECT id FROM users ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan user id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Touch is a connectivity probe for the health endpoint.
func (s *Store) Touch(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return s.pool.Ping(ctx)
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
