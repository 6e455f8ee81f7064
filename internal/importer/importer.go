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

// Package importer runs the forwarded-newsletter pipeline for one inbound
// email: bound the stream, parse, extract the original message, normalize
// and fingerprint, check for duplicates, apply the plan decision, store, and
// account for it. Each invocation is independent and stateless; all ordering
// guarantees hold within one invocation only.
package importer

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/lettervault/ingestion/internal/dedup"
	"github.com/lettervault/ingestion/internal/forward"
	"github.com/lettervault/ingestion/internal/mailparse"
	"github.com/lettervault/ingestion/internal/models"
	"github.com/lettervault/ingestion/internal/normalize"
	"github.com/lettervault/ingestion/internal/objstore"
	"github.com/lettervault/ingestion/internal/plan"
	"github.com/lettervault/ingestion/internal/queue"
	"github.com/lettervault/ingestion/internal/sanitize"
	"github.com/lettervault/ingestion/internal/stream"
)

// Status classifies the outcome of one import attempt. Only Stored means
// content was written; everything else intentionally skipped the expensive
// steps. None of these ever bounce the email at the transport level.
type Status string

const (
	StatusStored           Status = "stored"
	StatusDuplicate        Status = "duplicate"
	StatusPlanLimit        Status = "plan_limit"
	StatusRateLimited      Status = "rate_limited"
	StatusInvalidSender    Status = "invalid_sender"
	StatusExtractionFailed Status = "extraction_failed"
	StatusOversized        Status = "oversized"
	StatusError            Status = "error"
)

// Outcome is the result of one import attempt.
type Outcome struct {
	Status      Status
	StoredID    string
	Fingerprint string
	Locked      bool

	// Duplicate details, set when Status == StatusDuplicate.
	DuplicateReason models.DuplicateReason
	ExistingID      string

	// Err is set when Status is StatusOversized or StatusError.
	Err error
}

// Library is the persistence surface the pipeline needs.
type Library interface {
	FindUserByAddress(ctx context.Context, address string) (*models.User, error)
	InsertNewsletter(ctx context.Context, n models.Newsletter) error
	IncrementUsage(ctx context.Context, userID string, locked bool) error
}

// DecisionEngine is the plan-cap gate.
type DecisionEngine interface {
	Decide(ctx context.Context, userID string) (plan.Decision, error)
}

// RateLimiter is the hourly import gate.
type RateLimiter interface {
	Allow(ctx context.Context, userID string) (bool, error)
	Record(ctx context.Context, userID string) error
}

// EventPublisher announces stored items downstream.
type EventPublisher interface {
	PublishImported(ctx context.Context, event queue.ImportedEvent) error
}

// Config assembles an Importer.
type Config struct {
	Library  Library
	Detector *dedup.Detector
	Engine   DecisionEngine
	Limiter  RateLimiter
	Objects  objstore.Store
	// Events may be nil; event publication is best-effort.
	Events EventPublisher

	// MaxEmailBytes caps one raw inbound email; 0 means the default.
	MaxEmailBytes int64
	// SharedContent switches object keys to content-addressed shared
	// keys. Dedup scope stays per-user either way.
	SharedContent bool
}

// Importer runs the import pipeline.
type Importer struct {
	cfg Config
}

// New creates an Importer.
func New(cfg Config) *Importer {
	return &Importer{cfg: cfg}
}

// Import processes one forwarded email from envelopeFrom. It never panics
// and never asks the transport to bounce: every failure mode maps to an
// Outcome the caller logs. External-dependency failures abort this
// invocation only; there is no retry here.
func (im *Importer) Import(ctx context.Context, envelopeFrom string, raw io.Reader) Outcome {
	user, err := im.cfg.Library.FindUserByAddress(ctx, envelopeFrom)
	if err != nil {
		return Outcome{Status: StatusError, Err: err}
	}
	if user == nil {
		slog.Info("import from unregistered sender", "from", envelopeFrom)
		return Outcome{Status: StatusInvalidSender}
	}

	// Coarse hourly gate, checked before any expensive work.
	allowed, err := im.cfg.Limiter.Allow(ctx, user.ID)
	if err != nil {
		return Outcome{Status: StatusError, Err: err}
	}
	if !allowed {
		slog.Info("import rate limited", "user", user.ID)
		return Outcome{Status: StatusRateLimited}
	}

	data, err := stream.ReadAll(raw, im.cfg.MaxEmailBytes)
	if err != nil {
		var oversized *stream.OversizedError
		if errors.As(err, &oversized) {
			slog.Warn("oversized email rejected", "user", user.ID, "limit", oversized.Limit)
			return Outcome{Status: StatusOversized, Err: err}
		}
		return Outcome{Status: StatusError, Err: err}
	}

	parsed := mailparse.Parse(data)
	extracted := forward.Extract(parsed)
	if extracted == nil {
		slog.Info("no forwarded newsletter identified",
			"user", user.ID,
			"subject", parsed.Subject,
		)
		return Outcome{Status: StatusExtractionFailed}
	}

	subject := extracted.OriginalSubject
	if subject == "" {
		subject = "(no subject)"
	}

	html := sanitize.Sanitize(extracted.HTMLContent)

	// Pick the storable body: sanitized HTML, then plain text, then the
	// subject-derived fallback so empty-body emails still fingerprint
	// distinctly by subject.
	content := html
	contentType := "text/html"
	if content == "" {
		content = extracted.TextContent
		contentType = "text/plain"
	}
	if content == "" {
		content = normalize.FallbackBody(subject)
		contentType = "text/html"
	}

	fingerprint := normalize.Fingerprint(normalize.Normalize(content))

	verdict, err := im.cfg.Detector.Detect(ctx, user.ID, extracted.MessageID, fingerprint)
	if err != nil {
		return Outcome{Status: StatusError, Err: err}
	}
	if verdict.IsDuplicate {
		slog.Info("duplicate import skipped",
			"user", user.ID,
			"reason", string(verdict.Reason),
			"existing", verdict.ExistingID,
		)
		return Outcome{
			Status:          StatusDuplicate,
			DuplicateReason: verdict.Reason,
			ExistingID:      verdict.ExistingID,
			Fingerprint:     fingerprint,
		}
	}

	decision, err := im.cfg.Engine.Decide(ctx, user.ID)
	if err != nil {
		return Outcome{Status: StatusError, Err: err}
	}
	if decision == plan.RejectAtCap {
		slog.Info("import rejected at plan cap", "user", user.ID)
		return Outcome{Status: StatusPlanLimit}
	}
	locked := decision == plan.AcceptLocked

	key := objstore.PrivateKey(user.ID)
	if im.cfg.SharedContent {
		key = objstore.SharedKey(fingerprint)
	}
	if err := im.cfg.Objects.Put(ctx, key, []byte(content), contentType); err != nil {
		return Outcome{Status: StatusError, Err: err}
	}

	item := models.Newsletter{
		ID:           uuid.New().String(),
		UserID:       user.ID,
		MessageID:    extracted.MessageID,
		Fingerprint:  fingerprint,
		FromAddress:  extracted.OriginalFrom,
		FromName:     extracted.OriginalFromName,
		Subject:      subject,
		PublishedAt:  extracted.OriginalDate,
		StorageKey:   key,
		LockedByPlan: locked,
		CreatedAt:    time.Now().UTC(),
	}
	if err := im.cfg.Library.InsertNewsletter(ctx, item); err != nil {
		return Outcome{Status: StatusError, Err: err}
	}

	if err := im.cfg.Library.IncrementUsage(ctx, user.ID, locked); err != nil {
		// The item is stored; a missed count self-heals on the next
		// recount. Log and keep going.
		slog.Error("usage increment failed", "user", user.ID, "error", err)
	}

	// Only successful, non-duplicate imports consume rate budget.
	if err := im.cfg.Limiter.Record(ctx, user.ID); err != nil {
		slog.Warn("rate-limit record failed", "user", user.ID, "error", err)
	}

	if im.cfg.Events != nil {
		if err := im.cfg.Events.PublishImported(ctx, queue.ImportedEvent{
			UserID:      user.ID,
			ItemID:      item.ID,
			Fingerprint: fingerprint,
			Subject:     subject,
			Locked:      locked,
		}); err != nil {
			slog.Warn("import event publish failed", "item", item.ID, "error", err)
		}
	}

	slog.Info("newsletter imported",
		"user", user.ID,
		"item", item.ID,
		"fingerprint", fingerprint,
		"locked", locked,
	)

	return Outcome{
		Status:      StatusStored,
		StoredID:    item.ID,
		Fingerprint: fingerprint,
		Locked:      locked,
	}
}
