// Package sanitize normalizes free-form text inputs before they are stored.
package sanitize

import (
	"regexp"
	"strings"
)

var (
	scriptRe = regexp.MustCompile(`(?is)<script\b.*?</script>`)
	tagRe    = regexp.MustCompile(`<[^>]*>`)
)

// String strips script blocks and HTML tags, trims surrounding whitespace and
// caps the result at maxLen runes. An empty result means the input carried no
// usable content.
func String(input string, maxLen int) string {
	if maxLen <= 0 {
		maxLen = 1000
	}
	out := scriptRe.ReplaceAllString(input, "")
	out = tagRe.ReplaceAllString(out, "")
	out = strings.TrimSpace(out)

	runes := []rune(out)
	if len(runes) > maxLen {
		out = string(runes[:maxLen])
	}
	return out
}
