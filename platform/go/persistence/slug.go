package persistence

import (
	"regexp"
	"strings"

	"github.com/zenGate-Global/seletor-hub/platform/go/apperrors"
)

var systemSlugPattern = regexp.MustCompile(`^[a-z0-9]+(?:-[a-z0-9]+)*$`)

// NormalizeSystemSlug trims and lowercases a system slug. System slugs are public URL
// segments, so they may not start, end or repeat hyphens.
func NormalizeSystemSlug(input string) (string, error) {
	slug := strings.ToLower(strings.TrimSpace(input))
	if slug == "" {
		return "", apperrors.NewValidation("system", "system slug is required")
	}
	if !systemSlugPattern.MatchString(slug) {
		return "", apperrors.NewValidation("system", "invalid system slug %q", input)
	}
	return slug, nil
}
