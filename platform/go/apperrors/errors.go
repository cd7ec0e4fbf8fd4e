// Package apperrors defines the error taxonomy shared by provisioning and aggregation.
package apperrors

import (
	"errors"
	"fmt"
	"strings"
)

// ConfigurationError reports missing or invalid startup configuration. It is fatal.
type ConfigurationError struct {
	Key    string
	Reason string
}

func (e *ConfigurationError) Error() string {
	if e.Key == "" {
		return "configuration error: " + e.Reason
	}
	return fmt.Sprintf("configuration error: %s: %s", e.Key, e.Reason)
}

// ValidationError is returned for malformed input, before any side effect happened.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

// NewValidation builds a ValidationError for the given field.
func NewValidation(field, format string, args ...any) *ValidationError {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// MaxStatementSnippet bounds how much of a failing statement is kept in errors and logs.
const MaxStatementSnippet = 600

// TemplateApplicationError reports a failed template statement, or a template that
// ran without creating the users table (Statement is empty in that case). When the users
// table check itself failed, Err carries the cause.
type TemplateApplicationError struct {
	Database  string
	Phase     string
	Index     int
	Statement string
	Err       error
}

func (e *TemplateApplicationError) Error() string {
	if e.Statement == "" {
		if e.Err != nil {
			return fmt.Sprintf("template applied but users table check failed (db=%s): %v", e.Database, e.Err)
		}
		return fmt.Sprintf("template applied but users table missing (db=%s)", e.Database)
	}
	msg := fmt.Sprintf("template %s failed (db=%s) stmt#%d:\n%s", e.Phase, e.Database, e.Index, e.Statement)
	if e.Err != nil {
		msg += "\n" + e.Err.Error()
	}
	return msg
}

func (e *TemplateApplicationError) Unwrap() error { return e.Err }

// Snippet truncates a statement to MaxStatementSnippet characters, marking the cut with "...".
func Snippet(stmt string) string {
	r := []rune(stmt)
	if len(r) <= MaxStatementSnippet {
		return stmt
	}
	return string(r[:MaxStatementSnippet]) + "..."
}

// TenantUnreachableError reports a tenant database that could not be contacted.
type TenantUnreachableError struct {
	TenantSlug string
	Database   string
	Err        error
}

func (e *TenantUnreachableError) Error() string {
	return fmt.Sprintf("tenant %s unreachable (db=%s): %v", e.TenantSlug, e.Database, e.Err)
}

func (e *TenantUnreachableError) Unwrap() error { return e.Err }

// SchemaIncompatibleError reports a tenant users table lacking mandatory columns.
type SchemaIncompatibleError struct {
	TenantSlug string
	Missing    []string
}

func (e *SchemaIncompatibleError) Error() string {
	return fmt.Sprintf("tenant %s users table incompatible: missing %s", e.TenantSlug, strings.Join(e.Missing, ", "))
}

// GenericDatabaseMessage replaces driver detail outside development environments.
const GenericDatabaseMessage = "internal database error"

// SafeMessage returns a message safe to hand to API callers. Validation errors are always
// returned verbatim; anything else only carries detail when dev is true.
func SafeMessage(err error, dev bool) string {
	if err == nil {
		return ""
	}
	var verr *ValidationError
	if errors.As(err, &verr) {
		return verr.Error()
	}
	if dev {
		return err.Error()
	}
	return GenericDatabaseMessage
}
