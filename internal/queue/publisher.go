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

// Package queue publishes import events to Redis for the downstream search
// indexer. Publication is best-effort: a stored newsletter whose event is
// lost gets picked up by the indexer's periodic reconciliation.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ImportedEvent announces one newly stored newsletter.
type ImportedEvent struct {
	EventID     string `json:"event_id"`
	UserID      string `json:"user_id"`
	ItemID      string `json:"item_id"`
	Fingerprint string `json:"fingerprint"`
	Subject     string `json:"subject"`
	Locked      bool   `json:"locked"`
	ImportedAt  string `json:"imported_at"`
}

// Publisher sends import events to a Redis list.
type Publisher struct {
	rdb       *redis.Client
	queueName string
}

// NewPublisher creates a publisher targeting the specified queue.
func NewPublisher(rdb *redis.Client, queueName string) *Publisher {
	return &Publisher{rdb: rdb, queueName: queueName}
}

// PublishImported serialises the event and pushes it onto the queue.
func (p *Publisher) PublishImported(ctx context.Context, event ImportedEvent) error {
	if event.EventID == "" {
		event.EventID = uuid.New().String()
	}
	if event.ImportedAt == "" {
		event.ImportedAt = time.Now().UTC().Format(time.RFC3339)
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal import event: %w", err)
	}

	if err := p.rdb.LPush(ctx, p.queueName, payload).Err(); err != nil {
		return fmt.Errorf("redis LPUSH: %w", err)
	}

	slog.Info("published import event",
		"event_id", event.EventID,
		"user", event.UserID,
		"item", event.ItemID,
		"queue", p.queueName,
	)
	return nil
}

// Ping checks the Redis connection.
func (p *Publisher) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return p.rdb.Ping(ctx).Err()
}
