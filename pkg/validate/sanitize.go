package validate

import (
	"fmt"
	"html"
	"regexp"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// dangerousPatterns is the deny-list applied to every external string before
// it reaches storage or search. Matches reject the input outright rather
// than silently stripping the offending markup.
var dangerousPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)<script[^>]*>.*?</script>`),
	regexp.MustCompile(`(?i)javascript:`),
	regexp.MustCompile(`(?i)on\w+\s*=`),
	regexp.MustCompile(`(?i)<iframe[^>]*>.*?</iframe>`),
	regexp.MustCompile(`(?i)<object[^>]*>.*?</object>`),
	regexp.MustCompile(`(?i)<embed[^>]*>.*?</embed>`),
}

// SanitizeString rejects dangerous markup, then HTML-escapes, applies
// Unicode compatibility normalization (NFKC), and strips control characters
// except newline, carriage return, and tab. fieldName is used only for the
// error message.
func SanitizeString(value, fieldName string) (string, error) {
	for _, pattern := range dangerousPatterns {
		if pattern.MatchString(value) {
			return "", fmt.Errorf("%s contains potentially dangerous content", fieldName)
		}
	}

	sanitized := html.EscapeString(value)
	sanitized = norm.NFKC.String(sanitized)

	var b strings.Builder
	b.Grow(len(sanitized))
	for _, r := range sanitized {
		if r >= 32 || r == '\n' || r == '\r' || r == '\t' {
			b.WriteRune(r)
		}
	}

	return b.String(), nil
}
