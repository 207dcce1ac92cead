package job

import (
	"html"
	"strings"
	"unicode/utf8"

	"github.com/microcosm-cc/bluemonday"
)

const maxReasonLength = 500

var strict = bluemonday.StrictPolicy()

// sanitize turns backend-supplied error text into plain text safe to show
// in a transcript
func sanitize(s string) string {
	s = html.UnescapeString(strict.Sanitize(s))
	s = strings.Join(strings.Fields(s), " ")
	if utf8.RuneCountInString(s) > maxReasonLength {
		s = string([]rune(s)[:maxReasonLength]) + "..."
	}
	return s
}
