// Package slug normalizes human-entered names into comparable keys. Account
// names are unique by slug, so "Main Till" and "main-till" collide.
package slug

import (
	"regexp"
	"strings"
)

const maxLen = 40

var reSlug = regexp.MustCompile(`^[a-z0-9_]{2,40}$`)

// IsSlug returns true if s matches ^[a-z0-9_]{2,40}$
func IsSlug(s string) bool {
	return reSlug.MatchString(s)
}

// Slugify converts s to a slug: lowercase, non [a-z0-9_] -> '_', collapse repeats, trim to 40, and trim leading/trailing '_'.
func Slugify(s string) string {
	out := make([]rune, 0, len(s))
	prevUnderscore := false
	for _, r := range strings.ToLower(s) {
		alnum := (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9')
		if !alnum {
			if prevUnderscore {
				continue
			}
			r = '_'
		}
		prevUnderscore = r == '_'
		out = append(out, r)
		if len(out) >= maxLen {
			break
		}
	}
	return strings.Trim(string(out), "_")
}

// Equal reports whether two display names normalize to the same key.
func Equal(a, b string) bool {
	ka, kb := Slugify(a), Slugify(b)
	return ka != "" && ka == kb
}
