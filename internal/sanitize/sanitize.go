// Package sanitize cleans user-supplied text before it is stored. Uses
// bluemonday's strict policy to drop every HTML element so fields like
// display names are always plain text.
package sanitize

import (
	"html"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/microcosm-cc/bluemonday"
)

// policy is the singleton strict policy. Initialized once via sync.Once for
// thread-safe lazy initialization.
var (
	policy     *bluemonday.Policy
	policyOnce sync.Once
)

// getPolicy returns the shared policy, initializing it on first call.
func getPolicy() *bluemonday.Policy {
	policyOnce.Do(func() {
		policy = bluemonday.StrictPolicy()
	})
	return policy
}

// PlainText strips all markup from input and decodes the entities
// bluemonday emits, returning plain text. The result is NOT safe to insert
// into HTML unescaped; clients must escape it like any other text.
func PlainText(input string) string {
	if input == "" {
		return ""
	}
	return html.UnescapeString(getPolicy().Sanitize(input))
}

// DisplayName turns a submitted name into a storable one: markup stripped,
// runs of whitespace collapsed to single spaces, and cut to at most maxRunes
// characters.
func DisplayName(input string, maxRunes int) string {
	clean := strings.Join(strings.Fields(PlainText(input)), " ")
	if maxRunes > 0 && utf8.RuneCountInString(clean) > maxRunes {
		clean = strings.TrimSpace(string([]rune(clean)[:maxRunes]))
	}
	return clean
}
