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

package importer

import (
	"context"
	"strings"
	"testing"

	"github.com/lettervault/ingestion/internal/dedup"
	"github.com/lettervault/ingestion/internal/models"
	"github.com/lettervault/ingestion/internal/plan"
	"github.com/lettervault/ingestion/internal/queue"
)

// fakeLibrary backs both the Library and the dedup.Index with one slice.
type fakeLibrary struct {
	users      map[string]*models.User
	inserted   []models.Newsletter
	increments []bool
}

func (f *fakeLibrary) FindUserByAddress(_ context.Context, address string) (*models.User, error) {
	return f.users[strings.ToLower(address)], nil
}

func (f *fakeLibrary) InsertNewsletter(_ context.Context, n models.Newsletter) error {
	f.inserted = append(f.inserted, n)
	return nil
}

func (f *fakeLibrary) IncrementUsage(_ context.Context, _ string, locked bool) error {
	f.increments = append(f.increments, locked)
	return nil
}

func (f *fakeLibrary) FindByMessageID(_ context.Context, userID, messageID string) (string, error) {
	for _, n := range f.inserted {
		if n.UserID == userID && n.MessageID == messageID && n.MessageID != "" {
			return n.ID, nil
		}
	}
	return "", nil
}

func (f *fakeLibrary) FindByFingerprint(_ context.Context, userID, fingerprint string) (string, error) {
	for _, n := range f.inserted {
		if n.UserID == userID && n.Fingerprint == fingerprint {
			return n.ID, nil
		}
	}
	return "", nil
}

type fakeEngine struct {
	decision plan.Decision
}

func (f *fakeEngine) Decide(_ context.Context, _ string) (plan.Decision, error) {
	return f.decision, nil
}

type fakeLimiter struct {
	allowed bool
	records int
}

func (f *fakeLimiter) Allow(_ context.Context, _ string) (bool, error) { return f.allowed, nil }
func (f *fakeLimiter) Record(_ context.Context, _ string) error {
	f.records++
	return nil
}

type fakeObjects struct {
	puts map[string][]byte
}

func (f *fakeObjects) Put(_ context.Context, key string, data []byte, _ string) error {
	if f.puts == nil {
		f.puts = map[string][]byte{}
	}
	f.puts[key] = data
	return nil
}

type fakeEvents struct {
	events []queue.ImportedEvent
}

func (f *fakeEvents) PublishImported(_ context.Context, e queue.ImportedEvent) error {
	f.events = append(f.events, e)
	return nil
}

// harness wires an Importer over all fakes.
type harness struct {
	lib     *fakeLibrary
	limiter *fakeLimiter
	objects *fakeObjects
	events  *fakeEvents
	imp     *Importer
}

func newHarness(decision plan.Decision) *harness {
	h := &harness{
		lib: &fakeLibrary{users: map[string]*models.User{
			"reader@example.com": {ID: "u1", Email: "reader@example.com", ImportAddress: "reader@import.lettervault.example"},
		}},
		limiter: &fakeLimiter{allowed: true},
		objects: &fakeObjects{},
		events:  &fakeEvents{},
	}
	h.imp = New(Config{
		Library:  h.lib,
		Detector: dedup.NewDetector(h.lib),
		Engine:   &fakeEngine{decision: decision},
		Limiter:  h.limiter,
		Objects:  h.objects,
		Events:   h.events,
	})
	return h
}

func forwardedEmail(messageID string) string {
	return strings.Join([]string{
		"From: Reader <reader@example.com>",
		"To: import@lettervault.example",
		"Subject: Fwd: Weekly Digest",
		"Message-Id: <" + messageID + ">",
		"Content-Type: text/plain; charset=utf-8",
		"",
		"---------- Forwarded message ---------",
		"From: original@newsletter.com",
		"Date: Mon, Jan 20, 2026 at 10:00 AM",
		"Subject: Weekly Digest",
		"",
		"Body text.",
		"",
	}, "\r\n")
}

func TestImport_StoresForwardedNewsletter(t *testing.T) {
	h := newHarness(plan.Accept)

	out := h.imp.Import(context.Background(), "reader@example.com", strings.NewReader(forwardedEmail("fwd-1@mail.example.com")))

	if out.Status != StatusStored {
		t.Fatalf("Status = %q (err=%v), want stored", out.Status, out.Err)
	}
	if out.StoredID == "" || out.Fingerprint == "" {
		t.Errorf("outcome missing ids: %+v", out)
	}
	if out.Locked {
		t.Error("unexpected locked item")
	}

	if len(h.lib.inserted) != 1 {
		t.Fatalf("inserted %d items, want 1", len(h.lib.inserted))
	}
	item := h.lib.inserted[0]
	if item.FromAddress != "original@newsletter.com" {
		t.Errorf("FromAddress = %q", item.FromAddress)
	}
	if item.Subject != "Weekly Digest" {
		t.Errorf("Subject = %q", item.Subject)
	}
	if item.PublishedAt.Year() != 2026 || item.PublishedAt.Day() != 20 {
		t.Errorf("PublishedAt = %v", item.PublishedAt)
	}
	if item.MessageID != "fwd-1@mail.example.com" {
		t.Errorf("MessageID = %q", item.MessageID)
	}

	if len(h.objects.puts) != 1 {
		t.Errorf("object puts = %d, want 1", len(h.objects.puts))
	}
	if h.limiter.records != 1 {
		t.Errorf("rate records = %d, want 1", h.limiter.records)
	}
	if len(h.events.events) != 1 {
		t.Errorf("published events = %d, want 1", len(h.events.events))
	}
	if len(h.lib.increments) != 1 || h.lib.increments[0] {
		t.Errorf("increments = %v, want one unlocked", h.lib.increments)
	}
}

// TestImport_DuplicateSecondTime is the duplicate-skip scenario: same
// message-id twice, stored once, rate budget consumed once.
func TestImport_DuplicateSecondTime(t *testing.T) {
	h := newHarness(plan.Accept)

	first := h.imp.Import(context.Background(), "reader@example.com", strings.NewReader(forwardedEmail("dup-1@mail.example.com")))
	if first.Status != StatusStored {
		t.Fatalf("first import: %q (err=%v)", first.Status, first.Err)
	}

	second := h.imp.Import(context.Background(), "reader@example.com", strings.NewReader(forwardedEmail("dup-1@mail.example.com")))
	if second.Status != StatusDuplicate {
		t.Fatalf("second import: %q, want duplicate", second.Status)
	}
	if second.DuplicateReason != models.DuplicateByMessageID {
		t.Errorf("DuplicateReason = %q, want message_id", second.DuplicateReason)
	}
	if second.ExistingID != first.StoredID {
		t.Errorf("ExistingID = %q, want %q", second.ExistingID, first.StoredID)
	}

	if len(h.lib.inserted) != 1 {
		t.Errorf("inserted %d items, want 1", len(h.lib.inserted))
	}
	if h.limiter.records != 1 {
		t.Errorf("rate records = %d, want 1 (duplicates never consume budget)", h.limiter.records)
	}
}

// TestImport_ContentHashDuplicate: different message-ids, same content.
func TestImport_ContentHashDuplicate(t *testing.T) {
	h := newHarness(plan.Accept)

	if out := h.imp.Import(context.Background(), "reader@example.com", strings.NewReader(forwardedEmail("a@mail.example.com"))); out.Status != StatusStored {
		t.Fatalf("first import: %q", out.Status)
	}
	out := h.imp.Import(context.Background(), "reader@example.com", strings.NewReader(forwardedEmail("b@mail.example.com")))
	if out.Status != StatusDuplicate {
		t.Fatalf("second import: %q, want duplicate", out.Status)
	}
	if out.DuplicateReason != models.DuplicateByContentHash {
		t.Errorf("DuplicateReason = %q, want content_hash", out.DuplicateReason)
	}
}

func TestImport_InvalidSender(t *testing.T) {
	h := newHarness(plan.Accept)
	out := h.imp.Import(context.Background(), "stranger@example.com", strings.NewReader(forwardedEmail("x@mail.example.com")))
	if out.Status != StatusInvalidSender {
		t.Errorf("Status = %q, want invalid_sender", out.Status)
	}
}

func TestImport_RateLimited(t *testing.T) {
	h := newHarness(plan.Accept)
	h.limiter.allowed = false

	out := h.imp.Import(context.Background(), "reader@example.com", strings.NewReader(forwardedEmail("x@mail.example.com")))
	if out.Status != StatusRateLimited {
		t.Errorf("Status = %q, want rate_limited", out.Status)
	}
	if len(h.objects.puts) != 0 || len(h.lib.inserted) != 0 {
		t.Error("rate-limited import must not touch storage")
	}
}

func TestImport_PlanLimit(t *testing.T) {
	h := newHarness(plan.RejectAtCap)

	out := h.imp.Import(context.Background(), "reader@example.com", strings.NewReader(forwardedEmail("x@mail.example.com")))
	if out.Status != StatusPlanLimit {
		t.Errorf("Status = %q, want plan_limit", out.Status)
	}
	if len(h.lib.inserted) != 0 || len(h.lib.increments) != 0 || h.limiter.records != 0 {
		t.Error("plan-limit rejection must not store, count, or consume rate budget")
	}
}

func TestImport_AcceptLocked(t *testing.T) {
	h := newHarness(plan.AcceptLocked)

	out := h.imp.Import(context.Background(), "reader@example.com", strings.NewReader(forwardedEmail("x@mail.example.com")))
	if out.Status != StatusStored {
		t.Fatalf("Status = %q (err=%v)", out.Status, out.Err)
	}
	if !out.Locked {
		t.Error("expected locked outcome")
	}
	if len(h.lib.increments) != 1 || !h.lib.increments[0] {
		t.Errorf("increments = %v, want one locked", h.lib.increments)
	}
}

func TestImport_ExtractionFailed(t *testing.T) {
	h := newHarness(plan.Accept)

	plain := strings.Join([]string{
		"From: reader@example.com",
		"Subject: Quarterly Update",
		"",
		"Just a regular email.",
	}, "\r\n")

	out := h.imp.Import(context.Background(), "reader@example.com", strings.NewReader(plain))
	if out.Status != StatusExtractionFailed {
		t.Errorf("Status = %q, want extraction_failed", out.Status)
	}
	if h.limiter.records != 0 {
		t.Error("failed extraction must not consume rate budget")
	}
}

func TestImport_Oversized(t *testing.T) {
	h := newHarness(plan.Accept)
	h.imp.cfg.MaxEmailBytes = 64

	big := forwardedEmail("x@mail.example.com") + strings.Repeat("padding ", 100)
	out := h.imp.Import(context.Background(), "reader@example.com", strings.NewReader(big))
	if out.Status != StatusOversized {
		t.Errorf("Status = %q, want oversized", out.Status)
	}
	if out.Err == nil {
		t.Error("oversized outcome must carry the error")
	}
}

func TestImport_SharedContentKeying(t *testing.T) {
	h := newHarness(plan.Accept)
	h.imp.cfg.SharedContent = true

	out := h.imp.Import(context.Background(), "reader@example.com", strings.NewReader(forwardedEmail("x@mail.example.com")))
	if out.Status != StatusStored {
		t.Fatalf("Status = %q (err=%v)", out.Status, out.Err)
	}
	wantKey := "newsletters/shared/" + out.Fingerprint + ".html"
	if _, ok := h.objects.puts[wantKey]; !ok {
		t.Errorf("object keys = %v, want %q", keysOf(h.objects.puts), wantKey)
	}
}

func keysOf(m map[string][]byte) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}
