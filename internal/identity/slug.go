package identity

import (
	"regexp"
	"strings"
)

var (
	slugInvalidRunes  = regexp.MustCompile(`[^a-z0-9]+`)
	slugNumericSuffix = regexp.MustCompile(`(-[0-9]+)+$`)
)

// Slugify derives the stable collection slug from a title: lowercased,
// runs of non-alphanumerics collapsed to single dashes, trailing numeric
// suffixes stripped so "Fxhash Drop 2" and "Fxhash Drop 3" land on the same
// collection. Returns "" when nothing usable remains.
func Slugify(title string) string {
	slug := strings.ToLower(strings.TrimSpace(title))
	slug = slugInvalidRunes.ReplaceAllString(slug, "-")
	slug = strings.Trim(slug, "-")
	if stripped := slugNumericSuffix.ReplaceAllString(slug, ""); stripped != "" {
		slug = stripped
	}
	return slug
}
