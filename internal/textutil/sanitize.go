package textutil

import "strings"

// SanitizeToken lowercases value and reduces it to [a-z0-9-_] so it is safe
// to use as a single path segment. Runs of disallowed characters collapse to
// one underscore. Returns "unknown" when nothing usable survives.
func SanitizeToken(value string) string {
	var b strings.Builder
	pendingSep := false
	for _, r := range strings.TrimSpace(value) {
		switch {
		case r >= 'A' && r <= 'Z':
			r += 'a' - 'A'
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '-', r == '_':
		default:
			pendingSep = b.Len() > 0
			continue
		}
		if pendingSep {
			b.WriteByte('_')
			pendingSep = false
		}
		b.WriteRune(r)
	}
	token := strings.Trim(b.String(), "-_")
	if token == "" {
		return "unknown"
	}
	return token
}
