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

// Package mailparse is the MIME parser boundary. It wraps enmime's lenient
// decoder and never fails: malformed input degrades to a ParsedEmail with
// absent optional fields. Forwarded emails arrive from every mail client in
// existence, so bouncing on bad MIME is not an option.
package mailparse

import (
	"bytes"
	"net/mail"
	"strings"
	"time"

	"github.com/jhillyerd/enmime"

	"github.com/lettervault/ingestion/internal/models"
)

// Parse decodes raw RFC 5322 bytes into a ParsedEmail. It always returns a
// usable (possibly mostly-empty) result.
func Parse(raw []byte) *models.ParsedEmail {
	parsed := &models.ParsedEmail{}

	env, err := enmime.ReadEnvelope(bytes.NewReader(raw))
	if err != nil || env == nil {
		return parsed
	}

	parsed.From = parseAddressHeader(env.GetHeader("From"))
	parsed.Subject = strings.TrimSpace(env.GetHeader("Subject"))
	parsed.HTML = env.HTML
	parsed.Text = env.Text
	parsed.MessageID = strings.TrimSpace(env.GetHeader("Message-Id"))

	if d := parseDateHeader(env.GetHeader("Date")); d != nil {
		parsed.Date = d
	}

	for _, part := range env.Attachments {
		parsed.Attachments = append(parsed.Attachments, models.Attachment{
			MimeType: strings.ToLower(part.ContentType),
			Content:  part.Content,
		})
	}
	// message/rfc822 parts are usually neither inline nor flagged as
	// attachments; enmime surfaces them under OtherParts.
	for _, part := range env.OtherParts {
		parsed.Attachments = append(parsed.Attachments, models.Attachment{
			MimeType: strings.ToLower(part.ContentType),
			Content:  part.Content,
		})
	}

	return parsed
}

// parseAddressHeader extracts address and display name from a From header.
func parseAddressHeader(raw string) models.EmailAddress {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return models.EmailAddress{}
	}
	addr, err := mail.ParseAddress(raw)
	if err != nil {
		// Keep whatever we got — downstream treats it as best-effort.
		return models.EmailAddress{Address: raw}
	}
	return models.EmailAddress{Address: addr.Address, Name: addr.Name}
}

// parseDateHeader parses a Date header, returning nil when unparseable.
func parseDateHeader(raw string) *time.Time {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	t, err := mail.ParseDate(raw)
	if err != nil {
		return nil
	}
	return &t
}
