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

// Package forward recovers the original newsletter from a forwarded email.
//
// Mail clients wrap forwarded content in wildly different formats: some
// attach the original as a message/rfc822 part (the reliable case), most
// quote it inline behind a client-specific boundary marker, and a few just
// prepend "Fwd:" to the subject and resend the body untouched. Extraction is
// an ordered chain of strategies tried from most to least reliable, and no
// step ever fails hard — a malformed forward degrades field by field until
// the top level returns nil for "not a forward at all".
package forward

import (
	"net/mail"
	"regexp"
	"strings"
	"time"

	"github.com/lettervault/ingestion/internal/mailparse"
	"github.com/lettervault/ingestion/internal/models"
)

// forwardMarker locates one client convention for an inline-quoted forward.
type forwardMarker struct {
	name string
	find func(body string) int
}

// Markers are tried in this fixed order; the earliest match position wins,
// with the earlier marker keeping ties.
var forwardMarkers = []forwardMarker{
	{name: "gmail", find: literalIndex("---------- Forwarded message ---------")},
	{name: "thunderbird", find: literalIndex("-------- Original Message --------")},
	{name: "apple-mail", find: literalIndex("Begin forwarded message:")},
	{name: "mutt", find: regexIndex(regexp.MustCompile(`-----\s?Forwarded message from [^\n]{1,100}?-----`))},
	{name: "quoted-headers", find: literalIndex("> From:")},
}

func literalIndex(marker string) func(string) int {
	return func(body string) int { return strings.Index(body, marker) }
}

func regexIndex(re *regexp.Regexp) func(string) int {
	return func(body string) int {
		loc := re.FindStringIndex(body)
		if loc == nil {
			return -1
		}
		return loc[0]
	}
}

var (
	headerLineRes = map[string]*regexp.Regexp{
		"From":       headerLineRe("From"),
		"Subject":    headerLineRe("Subject"),
		"Date":       headerLineRe("Date"),
		"Message-ID": headerLineRe("Message-ID"),
	}

	bracketAddrRe = regexp.MustCompile(`<([^<>]+)>`)
	bareAddrRe    = regexp.MustCompile(`[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}`)
	blankLineRe   = regexp.MustCompile(`\r?\n[ \t]*\r?\n`)
	fwdSubjectRe  = regexp.MustCompile(`(?i)fwd|fw`)
)

// headerLineRe matches a header line inside quoted body text, tolerating a
// leading ">" quote marker.
func headerLineRe(name string) *regexp.Regexp {
	return regexp.MustCompile(`(?im)^>?[ \t]*` + regexp.QuoteMeta(name) + `:[ \t]*(.+)$`)
}

// subjectPrefixes are stripped from forwarded subjects. Longer tokens come
// first so "Fwd:" is never half-eaten by "Fw:". Stripping is a single pass
// over the leftmost prefix only: "Re: Fwd: X" becomes "Fwd: X", not "X".
// Accepted behavior, not a bug.
var subjectPrefixes = []string{"[fwd]", "[fw]", "fwd:", "fw:", "re:"}

// dateLayouts are tried in order after mail.ParseDate fails. The " at "
// substitution in parseForwardDate already reduced the common
// "Jan 20, 2026 at 10:00 AM" client style to these shapes.
var dateLayouts = []string{
	"Mon, Jan 2, 2006 3:04 PM",
	"Mon, Jan 2, 2006 15:04",
	"Jan 2, 2006 3:04 PM",
	"Jan 2, 2006 15:04",
	"Mon, 2 Jan 2006 15:04:05 -0700",
	time.RFC1123Z,
	time.RFC1123,
	"2 January 2006 15:04",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// Extract recovers the original newsletter from a forwarded email. It
// returns nil when the message cannot be identified as a forward. Every
// internal step degrades to a zero value instead of failing; the outer
// message's own fields backstop anything the forwarded section is missing.
func Extract(parsed *models.ParsedEmail) *models.ExtractedNewsletter {
	if parsed == nil {
		return nil
	}

	// Strategy 1: the original message attached as message/rfc822. The
	// headers are machine-parseable here, not scraped from quoted text.
	if n := extractFromAttachment(parsed); n != nil {
		return n
	}

	// Strategy 2/3: inline-quoted forward, or a bare "Fwd:" resend.
	return extractInline(parsed)
}

// extractFromAttachment handles forwards where the client attached the
// original email verbatim.
func extractFromAttachment(parsed *models.ParsedEmail) *models.ExtractedNewsletter {
	for _, att := range parsed.Attachments {
		if !strings.HasPrefix(att.MimeType, "message/rfc822") {
			continue
		}

		inner := mailparse.Parse(att.Content)
		if inner.From.Address == "" && inner.HTML == "" && inner.Text == "" {
			// Empty or unreadable part; try the next one.
			continue
		}

		n := &models.ExtractedNewsletter{
			OriginalFrom:     inner.From.Address,
			OriginalFromName: inner.From.Name,
			OriginalSubject:  inner.Subject,
			HTMLContent:      inner.HTML,
			TextContent:      inner.Text,
			MessageID:        normalizeMessageID(inner.MessageID),
		}
		if n.OriginalSubject == "" {
			n.OriginalSubject = stripSubjectPrefix(parsed.Subject)
		}
		n.OriginalDate = resolveDate(inner.Date, parsed.Date)
		return n
	}
	return nil
}

// extractInline handles forwards quoted into the message body, and the
// "possible simple forward" case where only the subject hints at a forward.
func extractInline(parsed *models.ParsedEmail) *models.ExtractedNewsletter {
	// Plain text is far more reliable for marker detection than HTML
	// (clients bury the marker under markup), so prefer it.
	body := parsed.Text
	usedText := true
	if body == "" {
		body = parsed.HTML
		usedText = false
	}

	pos := findForwardStart(body)
	if pos < 0 {
		return extractSimpleForward(parsed, body)
	}

	section := body[pos:]
	n := &models.ExtractedNewsletter{}

	fromValue := extractHeader(section, "From")
	n.OriginalFrom = extractEmailAddress(fromValue)
	n.OriginalFromName = extractDisplayName(fromValue)
	if n.OriginalFrom == "" {
		n.OriginalFrom = parsed.From.Address
		n.OriginalFromName = parsed.From.Name
	}

	n.OriginalSubject = extractHeader(section, "Subject")
	if n.OriginalSubject == "" {
		n.OriginalSubject = stripSubjectPrefix(parsed.Subject)
	}

	n.OriginalDate = resolveDate(parseForwardDate(extractHeader(section, "Date")), parsed.Date)

	n.MessageID = normalizeMessageID(extractHeader(section, "Message-ID"))
	if n.MessageID == "" {
		n.MessageID = normalizeMessageID(parsed.MessageID)
	}

	extracted := bodyAfterHeaders(body, pos)
	if usedText {
		n.TextContent = extracted
		n.HTMLContent = parsed.HTML
	} else {
		n.HTMLContent = extracted
	}

	return n
}

// extractSimpleForward judges whether a marker-less message is still a
// forward (subject carries a forward prefix or a fwd/fw token). Fields come
// from header extraction over the whole body with outer-message fallbacks.
func extractSimpleForward(parsed *models.ParsedEmail, body string) *models.ExtractedNewsletter {
	stripped := stripSubjectPrefix(parsed.Subject)
	if stripped == parsed.Subject && !fwdSubjectRe.MatchString(parsed.Subject) {
		return nil
	}

	n := &models.ExtractedNewsletter{
		HTMLContent: parsed.HTML,
		TextContent: parsed.Text,
	}

	fromValue := extractHeader(body, "From")
	n.OriginalFrom = extractEmailAddress(fromValue)
	n.OriginalFromName = extractDisplayName(fromValue)
	if n.OriginalFrom == "" {
		n.OriginalFrom = parsed.From.Address
		n.OriginalFromName = parsed.From.Name
	}

	n.OriginalSubject = extractHeader(body, "Subject")
	if n.OriginalSubject == "" {
		n.OriginalSubject = stripped
	}

	n.OriginalDate = resolveDate(parseForwardDate(extractHeader(body, "Date")), parsed.Date)

	n.MessageID = normalizeMessageID(extractHeader(body, "Message-ID"))
	if n.MessageID == "" {
		n.MessageID = normalizeMessageID(parsed.MessageID)
	}

	return n
}

// findForwardStart returns the position of the earliest forward marker in
// body, or -1. Markers are evaluated in their fixed priority order.
func findForwardStart(body string) int {
	best := -1
	for _, m := range forwardMarkers {
		idx := m.find(body)
		if idx < 0 {
			continue
		}
		if best < 0 || idx < best {
			best = idx
		}
	}
	return best
}

// extractHeader matches a "Name: value" line in quoted body text and returns
// the trimmed value, or "".
func extractHeader(body, name string) string {
	re, ok := headerLineRes[name]
	if !ok {
		re = headerLineRe(name)
	}
	m := re.FindStringSubmatch(body)
	if m == nil {
		return ""
	}
	return strings.TrimSpace(m[1])
}

// extractEmailAddress reduces a From header value to the bare address:
// "<...>" bracket extraction first, then a bare-email pattern, then the
// trimmed value as-is.
func extractEmailAddress(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return ""
	}
	if m := bracketAddrRe.FindStringSubmatch(value); m != nil {
		return strings.TrimSpace(m[1])
	}
	if m := bareAddrRe.FindString(value); m != "" {
		return m
	}
	return value
}

// extractDisplayName pulls the display name out of a "Name <addr>" header
// value, or "" when there is none.
func extractDisplayName(value string) string {
	value = strings.TrimSpace(value)
	idx := strings.Index(value, "<")
	if idx <= 0 {
		return ""
	}
	name := strings.TrimSpace(value[:idx])
	name = strings.Trim(name, `"`)
	// A name that is itself an address is noise, not a name.
	if strings.Contains(name, "@") {
		return ""
	}
	return strings.TrimSpace(name)
}

// parseForwardDate parses a Date header value scraped from quoted text.
// The literal " at " is collapsed first so "Jan 20, 2026 at 10:00 AM"
// becomes parseable. Unparseable input yields nil, never an error.
func parseForwardDate(value string) *time.Time {
	value = strings.TrimSpace(strings.ReplaceAll(value, " at ", " "))
	if value == "" {
		return nil
	}

	if t, err := mail.ParseDate(value); err == nil {
		return &t
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return &t
		}
	}
	return nil
}

// resolveDate picks the first concrete date from the candidates, falling
// back to the receive time so OriginalDate is always set.
func resolveDate(candidates ...*time.Time) time.Time {
	for _, c := range candidates {
		if c != nil {
			return *c
		}
	}
	return time.Now().UTC()
}

// normalizeMessageID strips angle brackets and whitespace; an empty result
// means "absent".
func normalizeMessageID(raw string) string {
	raw = strings.TrimSpace(raw)
	raw = strings.TrimPrefix(raw, "<")
	raw = strings.TrimSuffix(raw, ">")
	return strings.TrimSpace(raw)
}

// stripSubjectPrefix removes the leftmost forward/reply prefix from a
// subject. Exactly one prefix is removed per call.
func stripSubjectPrefix(subject string) string {
	trimmed := strings.TrimSpace(subject)
	lower := strings.ToLower(trimmed)
	for _, prefix := range subjectPrefixes {
		if strings.HasPrefix(lower, prefix) {
			return strings.TrimSpace(trimmed[len(prefix):])
		}
	}
	return subject
}

// bodyAfterHeaders returns the content after the first blank line following
// the forward marker, which is where the quoted header block ends and the
// real body begins. When no blank-line boundary exists the original content
// is returned untouched — losing content is worse than keeping header lines.
func bodyAfterHeaders(content string, markerPos int) string {
	if markerPos < 0 || markerPos >= len(content) {
		return content
	}
	section := content[markerPos:]
	loc := blankLineRe.FindStringIndex(section)
	if loc == nil {
		return content
	}
	return strings.TrimSpace(section[loc[1]:])
}
