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

package plan

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/lettervault/ingestion/internal/models"
)

// Decision is the storage verdict for one non-duplicate import.
type Decision int

const (
	// Accept stores the item unlocked.
	Accept Decision = iota
	// AcceptLocked stores the item but marks it locked-by-plan; access is
	// gated upstream, the content itself is kept.
	AcceptLocked
	// RejectAtCap refuses the import entirely: nothing stored, no
	// counters touched. Reported distinctly from a duplicate so the
	// product can say "upgrade" instead of "already imported".
	RejectAtCap
)

func (d Decision) String() string {
	switch d {
	case Accept:
		return "accept"
	case AcceptLocked:
		return "accept_locked"
	case RejectAtCap:
		return "reject_at_cap"
	default:
		return fmt.Sprintf("decision(%d)", int(d))
	}
}

// CounterSource reads (and when absent, rebuilds) a user's usage counters.
// The Postgres store implements it.
type CounterSource interface {
	GetUsageCounters(ctx context.Context, userID string) (*models.UsageCounters, error)
	RecountUsage(ctx context.Context, userID string) (*models.UsageCounters, error)
}

// Engine applies plan entitlements to usage counters.
//
// The counter read here and the increment after a successful store are not
// one atomic step: two imports for the same user can both read
// total_stored == cap-1 and both be accepted. The caps are anti-abuse soft
// limits, and that overshoot window is accepted.
type Engine struct {
	provider Provider
	counters CounterSource
}

// NewEngine creates a storage decision engine.
func NewEngine(provider Provider, counters CounterSource) *Engine {
	return &Engine{provider: provider, counters: counters}
}

// Decide returns the storage verdict for one accepted-so-far import.
func (e *Engine) Decide(ctx context.Context, userID string) (Decision, error) {
	ent, err := e.provider.GetEntitlements(ctx, userID)
	if err != nil {
		return RejectAtCap, fmt.Errorf("get entitlements: %w", err)
	}

	if ent.IsUnrestricted {
		return Accept, nil
	}

	counters, err := e.counters.GetUsageCounters(ctx, userID)
	if err != nil {
		return RejectAtCap, fmt.Errorf("get usage counters: %w", err)
	}
	if counters == nil {
		// First import since the counter row was introduced (or it was
		// dropped): rebuild from the library itself.
		counters, err = e.counters.RecountUsage(ctx, userID)
		if err != nil {
			return RejectAtCap, fmt.Errorf("recount usage counters: %w", err)
		}
		slog.Info("rebuilt usage counters",
			"user", userID,
			"total", counters.TotalStored,
		)
	}

	switch {
	case counters.TotalStored >= ent.HardCap:
		return RejectAtCap, nil
	case counters.UnlockedStored >= ent.UnlockedCap:
		return AcceptLocked, nil
	default:
		return Accept, nil
	}
}
