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

package mailparse

import (
	"strings"
	"testing"
)

func TestParse_SimpleTextEmail(t *testing.T) {
	raw := strings.Join([]string{
		"From: Newsletter Team <team@newsletter.example>",
		"To: reader@lettervault.example",
		"Subject: Weekly Digest",
		"Date: Mon, 20 Jan 2026 10:00:00 +0000",
		"Message-Id: <digest-42@newsletter.example>",
		"Content-Type: text/plain; charset=utf-8",
		"",
		"Hello reader, here is your digest.",
		"",
	}, "\r\n")

	parsed := Parse([]byte(raw))

	if parsed.From.Address != "team@newsletter.example" {
		t.Errorf("From.Address = %q", parsed.From.Address)
	}
	if parsed.From.Name != "Newsletter Team" {
		t.Errorf("From.Name = %q", parsed.From.Name)
	}
	if parsed.Subject != "Weekly Digest" {
		t.Errorf("Subject = %q", parsed.Subject)
	}
	if parsed.MessageID != "<digest-42@newsletter.example>" {
		t.Errorf("MessageID = %q", parsed.MessageID)
	}
	if parsed.Date == nil {
		t.Fatal("Date = nil, want parsed date")
	}
	if y, m, d := parsed.Date.Date(); y != 2026 || int(m) != 1 || d != 20 {
		t.Errorf("Date = %v, want 2026-01-20", parsed.Date)
	}
	if !strings.Contains(parsed.Text, "here is your digest") {
		t.Errorf("Text = %q", parsed.Text)
	}
}

func TestParse_MalformedNeverNil(t *testing.T) {
	inputs := [][]byte{
		nil,
		[]byte(""),
		[]byte("\x00\x01\x02 garbage"),
		[]byte("no headers at all, just a line of text"),
	}
	for _, raw := range inputs {
		if parsed := Parse(raw); parsed == nil {
			t.Fatalf("Parse(%q) returned nil", raw)
		}
	}
}

func TestParse_RFC822Attachment(t *testing.T) {
	inner := strings.Join([]string{
		"From: original@newsletter.example",
		"Subject: Inner",
		"",
		"inner body",
	}, "\r\n")

	raw := strings.Join([]string{
		"From: forwarder@example.com",
		"Subject: Fwd: Inner",
		"MIME-Version: 1.0",
		`Content-Type: multipart/mixed; boundary="BOUNDARY"`,
		"",
		"--BOUNDARY",
		"Content-Type: text/plain",
		"",
		"see attached",
		"--BOUNDARY",
		"Content-Type: message/rfc822",
		"",
		inner,
		"--BOUNDARY--",
		"",
	}, "\r\n")

	parsed := Parse([]byte(raw))

	var found bool
	for _, att := range parsed.Attachments {
		if strings.HasPrefix(att.MimeType, "message/rfc822") {
			found = true
			if !strings.Contains(string(att.Content), "original@newsletter.example") {
				t.Errorf("attachment content missing inner headers: %q", att.Content)
			}
		}
	}
	if !found {
		t.Fatalf("no message/rfc822 attachment found; got %+v", parsed.Attachments)
	}
}

func TestParse_UglyFromHeader(t *testing.T) {
	raw := "From: totally not an address\r\nSubject: x\r\n\r\nbody"
	parsed := Parse([]byte(raw))
	if parsed.From.Address == "" {
		t.Error("unparseable From should degrade to raw value, not empty")
	}
}
