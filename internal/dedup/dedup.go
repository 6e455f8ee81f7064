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

// Package dedup decides whether an extracted newsletter is already in the
// importing user's library. Two tiers: exact message-id first, then the
// normalized-content fingerprint. Lookups are scoped per user — the same
// issue held by two different users is never a duplicate of each other.
// That scoping is a privacy boundary, not an optimisation.
package dedup

import (
	"context"
	"fmt"

	"github.com/lettervault/ingestion/internal/models"
)

// Index is the lookup surface the detector needs. The Postgres store
// implements it.
type Index interface {
	// FindByMessageID returns the existing item id, or "" on miss.
	FindByMessageID(ctx context.Context, userID, messageID string) (string, error)
	// FindByFingerprint returns the existing item id, or "" on miss.
	FindByFingerprint(ctx context.Context, userID, fingerprint string) (string, error)
}

// Detector runs the two-tier duplicate check.
type Detector struct {
	index Index
}

// NewDetector creates a duplicate detector over the given index.
func NewDetector(index Index) *Detector {
	return &Detector{index: index}
}

// Detect checks for an existing copy of the newsletter in the user's
// library. The message-id tier wins when both tiers would match: message-ids
// are globally unique by mail convention and survive re-transmission, while
// content hashes can coincide across distinct messages with identical
// boilerplate or miss a volatile field normalization didn't catch.
func (d *Detector) Detect(ctx context.Context, userID, messageID, fingerprint string) (models.DuplicateVerdict, error) {
	if messageID != "" {
		existing, err := d.index.FindByMessageID(ctx, userID, messageID)
		if err != nil {
			return models.DuplicateVerdict{}, fmt.Errorf("message-id lookup: %w", err)
		}
		if existing != "" {
			return models.DuplicateVerdict{
				IsDuplicate: true,
				Reason:      models.DuplicateByMessageID,
				ExistingID:  existing,
			}, nil
		}
	}

	existing, err := d.index.FindByFingerprint(ctx, userID, fingerprint)
	if err != nil {
		return models.DuplicateVerdict{}, fmt.Errorf("fingerprint lookup: %w", err)
	}
	if existing != "" {
		return models.DuplicateVerdict{
			IsDuplicate: true,
			Reason:      models.DuplicateByContentHash,
			ExistingID:  existing,
		}, nil
	}

	return models.DuplicateVerdict{}, nil
}
