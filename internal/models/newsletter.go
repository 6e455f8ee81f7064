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

// Package models defines the data structures shared across the import service.
package models

import "time"

// EmailAddress represents a sender or recipient with an address and optional name.
type EmailAddress struct {
	Address string `json:"address"`
	Name    string `json:"name,omitempty"`
}

// Attachment represents a decoded MIME part attached to an email.
type Attachment struct {
	MimeType string `json:"mime_type"`
	Content  []byte `json:"-"`
}

// ParsedEmail is the structured form of one raw inbound message, as produced
// by the MIME parser boundary. It is read-only to downstream stages.
type ParsedEmail struct {
	From        EmailAddress
	Subject     string
	Date        *time.Time
	HTML        string
	Text        string
	MessageID   string
	Attachments []Attachment
}

// ExtractedNewsletter is the original message recovered from a forward
// wrapper. OriginalDate is always concrete; the extractor substitutes the
// receive time when the forwarded headers carry no parseable date.
type ExtractedNewsletter struct {
	OriginalFrom     string
	OriginalFromName string
	OriginalSubject  string
	OriginalDate     time.Time
	HTMLContent      string
	TextContent      string
	MessageID        string
}

// DuplicateVerdict is the result of the two-tier duplicate check. Computed
// once per import attempt and consumed immediately; never persisted.
type DuplicateVerdict struct {
	IsDuplicate bool
	Reason      DuplicateReason
	ExistingID  string
}

// DuplicateReason says which tier of the duplicate check matched.
type DuplicateReason string

const (
	// DuplicateByMessageID means an item with the same RFC 5322 message-id
	// already exists for this user.
	DuplicateByMessageID DuplicateReason = "message_id"

	// DuplicateByContentHash means an item with the same normalized-content
	// fingerprint already exists for this user.
	DuplicateByContentHash DuplicateReason = "content_hash"
)

// UsageCounters tracks how many newsletters a user has stored, split by
// whether plan policy locked them at store time.
//
// Invariant: TotalStored == UnlockedStored + LockedStored.
type UsageCounters struct {
	TotalStored    int
	UnlockedStored int
	LockedStored   int
}

// Newsletter is one stored item in a user's library.
type Newsletter struct {
	ID           string
	UserID       string
	MessageID    string
	Fingerprint  string
	FromAddress  string
	FromName     string
	Subject      string
	PublishedAt  time.Time
	StorageKey   string
	LockedByPlan bool
	CreatedAt    time.Time
}

// User is the owner of an import address.
type User struct {
	ID            string
	Email         string
	ImportAddress string
}
