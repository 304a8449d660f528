// Package slug normalises free-form category labels into stable codes.
package slug

import (
	"regexp"
	"strings"
)

// MaxLen bounds the length of a category code.
const MaxLen = 40

var reSlug = regexp.MustCompile(`^[a-z0-9_]{2,40}$`)

// IsSlug reports whether s is already a canonical code.
func IsSlug(s string) bool {
	return reSlug.MatchString(s)
}

// Slugify lowercases s, maps runs of characters outside [a-z0-9_] to a single
// '_', trims to MaxLen and strips leading/trailing underscores.
// "Eating Out" becomes "eating_out".
func Slugify(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	pendingSep := false
	for _, r := range strings.ToLower(strings.TrimSpace(s)) {
		isWord := (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9')
		if !isWord {
			pendingSep = b.Len() > 0
			continue
		}
		if pendingSep {
			if b.Len()+1 >= MaxLen {
				break
			}
			b.WriteByte('_')
			pendingSep = false
		}
		b.WriteRune(r)
		if b.Len() >= MaxLen {
			break
		}
	}
	return b.String()
}
