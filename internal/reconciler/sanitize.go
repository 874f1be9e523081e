package reconciler

import "regexp"

var sanitizers = []struct {
	pattern     *regexp.Regexp
	replacement string
}{
	// Credentials embedded in URLs.
	{regexp.MustCompile(`://[^/\s:@]+:[^/\s@]+@`), "://[REDACTED]@"},
	{regexp.MustCompile(`(?i)\b(bearer|basic)\s+[A-Za-z0-9._~+/=-]+`), "$1 [REDACTED]"},
	{regexp.MustCompile(`(?i)\b(password|passwd|secret|token|api[_-]?key)(\s*[=:]\s*)\S+`), "$1$2[REDACTED]"},
	// Long opaque strings are likely tokens. Identity keys are 40 characters
	// and stay readable.
	{regexp.MustCompile(`[A-Za-z0-9+/_-]{48,}={0,2}`), "[REDACTED]"},
}

// SanitizeErrorMessage removes credentials from an error message before it is
// stored in a Failure or published in a Kubernetes Event.
func SanitizeErrorMessage(msg string) string {
	for _, s := range sanitizers {
		msg = s.pattern.ReplaceAllString(msg, s.replacement)
	}
	return msg
}
