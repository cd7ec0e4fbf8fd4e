package tenant

import (
	"regexp"
	"strings"

	"github.com/zenGate-Global/seletor-hub/platform/go/apperrors"
)

var (
	slugPattern         = regexp.MustCompile(`^[a-z0-9-]+$`)
	databaseNamePattern = regexp.MustCompile(`^[a-z0-9_]+$`)
)

// ValidateSlug trims and lowercases the input and checks it against ^[a-z0-9-]+$.
func ValidateSlug(input string) (string, error) {
	slug := strings.ToLower(strings.TrimSpace(input))
	if slug == "" {
		return "", apperrors.NewValidation("slug", "slug is required")
	}
	if !slugPattern.MatchString(slug) {
		return "", apperrors.NewValidation("slug", "%q must match ^[a-z0-9-]+$", input)
	}
	return slug, nil
}

// ToSnake converts a kebab-case slug into snake_case.
func ToSnake(slug string) string {
	return strings.ReplaceAll(strings.ToLower(slug), "-", "_")
}

// DatabaseName derives the physical database name for a slug: dashes become
// underscores and "_db" is appended. The result is interpolated into DDL, so it
// is rejected unless it matches ^[a-z0-9_]+$.
func DatabaseName(slug string) (string, error) {
	name := strings.ReplaceAll(slug, "-", "_") + "_db"
	if err := ValidateDatabaseName(name); err != nil {
		return "", err
	}
	return name, nil
}

// ValidateDatabaseName checks an existing physical database name before it reaches DDL.
func ValidateDatabaseName(name string) error {
	if !databaseNamePattern.MatchString(name) {
		return apperrors.NewValidation("database_name", "%q must match ^[a-z0-9_]+$", name)
	}
	return nil
}
