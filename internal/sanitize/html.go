// Package sanitize strips markup from user-supplied text before it is
// validated and stored.
package sanitize

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// strictPolicy removes every tag and attribute.
var strictPolicy = bluemonday.StrictPolicy()

// Text returns input as plain text: tags are removed, entities escaped by
// the policy are decoded again, and surrounding whitespace is trimmed. The
// result is never longer than the input.
func Text(input string) string {
	if input == "" {
		return ""
	}
	return strings.TrimSpace(html.UnescapeString(strictPolicy.Sanitize(input)))
}

// OptionalText applies Text to a possibly absent value. Blank results
// collapse to nil.
func OptionalText(input *string) *string {
	if input == nil {
		return nil
	}
	cleaned := Text(*input)
	if cleaned == "" {
		return nil
	}
	return &cleaned
}
