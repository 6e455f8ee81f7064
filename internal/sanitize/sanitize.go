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

// Package sanitize strips executable and active content from newsletter
// HTML before it is considered storable. The policy is idempotent:
// sanitizing already-sanitized HTML is a no-op.
package sanitize

import "github.com/microcosm-cc/bluemonday"

var policy = newPolicy()

// newPolicy builds the newsletter HTML policy. UGC as a base, widened with
// the presentational attributes marketing emails lean on.
func newPolicy() *bluemonday.Policy {
	p := bluemonday.UGCPolicy()
	p.AllowAttrs("style").Globally()
	p.AllowAttrs("width", "height", "align", "valign", "bgcolor", "border",
		"cellpadding", "cellspacing").OnElements("table", "td", "tr", "th", "img")
	p.AllowAttrs("alt", "src", "title").OnElements("img")
	p.AllowImages()
	p.AllowLists()
	p.AllowTables()
	p.RequireNoFollowOnLinks(false)
	return p
}

// Sanitize returns html with scripts, event handlers, and other active
// content removed.
func Sanitize(html string) string {
	if html == "" {
		return ""
	}
	return policy.Sanitize(html)
}
