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

// Package normalize strips the volatile, per-recipient parts of newsletter
// content (tracking pixels, unsubscribe tokens, greeting names, long hex
// identifiers) so the same issue sent to different subscribers reduces to
// one canonical string, then fingerprints that string for deduplication and
// content-addressed storage.
package normalize

import (
	"crypto/sha256"
	"encoding/hex"
	"regexp"
	"strings"
)

// Transformation order matters: later patterns assume earlier ones already
// collapsed the obvious tracking markup. All replacements are fixed points
// of every pattern, which is what makes Normalize idempotent.
var (
	// <img> tags whose src path or host marks them as tracking beacons.
	trackingPathImgRe = regexp.MustCompile(`(?i)<img[^>]*src\s*=\s*["']?[^"'\s>]*(?:/track/|/pixel/|/beacon/|/open/|/click/)[^>]*>`)
	trackingHostImgRe = regexp.MustCompile(`(?i)<img[^>]*src\s*=\s*["']?https?://(?:track|pixel|beacon|open)\.[^>]*>`)

	// Classic 1x1 pixel, either attribute order.
	onePixelWHRe = regexp.MustCompile(`(?i)<img[^>]*width\s*=\s*["']?1["']?[^>]*height\s*=\s*["']?1["']?[^>]*>`)
	onePixelHWRe = regexp.MustCompile(`(?i)<img[^>]*height\s*=\s*["']?1["']?[^>]*width\s*=\s*["']?1["']?[^>]*>`)

	// Per-recipient unsubscribe targets; the surrounding markup survives.
	unsubscribeRe = regexp.MustCompile(`(?i)href\s*=\s*["'][^"']*unsubscribe[^"']*["']`)

	// "Hi Alice," and friends; the greeting word stays, the name goes.
	greetingRe = regexp.MustCompile(`(?i)\b(Hi|Hello|Dear|Hey)\s+[A-Za-z][A-Za-z-]*\s*,`)

	// Long hex runs are tracking codes or per-recipient identifiers.
	hexRunRe = regexp.MustCompile(`[a-fA-F0-9]{32,}`)

	whitespaceRe = regexp.MustCompile(`\s+`)
)

// Normalize reduces raw newsletter content to its canonical form.
// It is idempotent: Normalize(Normalize(x)) == Normalize(x).
func Normalize(raw string) string {
	s := trackingPathImgRe.ReplaceAllString(raw, "")
	s = trackingHostImgRe.ReplaceAllString(s, "")
	s = onePixelWHRe.ReplaceAllString(s, "")
	s = onePixelHWRe.ReplaceAllString(s, "")
	s = unsubscribeRe.ReplaceAllString(s, `href="UNSUBSCRIBE"`)
	s = greetingRe.ReplaceAllString(s, "$1 USER,")
	s = hexRunRe.ReplaceAllString(s, "HASH")
	s = whitespaceRe.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

// Fingerprint returns the SHA-256 digest of the normalized content as
// lowercase hex. Pure function of its input: no salt, no timestamp. The
// digest doubles as the content-addressed storage key, so identical content
// must always land on the same key.
func Fingerprint(normalized string) string {
	sum := sha256.Sum256([]byte(normalized))
	return hex.EncodeToString(sum[:])
}

// FallbackBody is what gets normalized and hashed when an email has no body
// at all. Distinct subjects keep distinct fingerprints; two truly
// content-free emails with the same subject intentionally collide.
func FallbackBody(subject string) string {
	return "<p>" + subject + "</p>"
}
