// Package problems renders RFC 7807 problem documents and JSON bodies for the HTTP handlers.
package problems

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/zenGate-Global/seletor-hub/platform/go/apperrors"
)

const (
	TypeValidation   = "https://seletor.app/problems/validation-error"
	TypeUnauthorized = "https://seletor.app/problems/unauthorized"
	TypeForbidden    = "https://seletor.app/problems/forbidden"
	TypeNotFound     = "https://seletor.app/problems/not-found"
	TypeConflict     = "https://seletor.app/problems/conflict"
	TypeUnavailable  = "https://seletor.app/problems/unavailable"
	TypeTemplate     = "https://seletor.app/problems/template-application"
	TypeInternal     = "https://seletor.app/problems/internal-error"
)

const maxBodyBytes = 1 << 20

// Details is the problem+json document returned on every error.
type Details struct {
	Type   string              `json:"type"`
	Title  string              `json:"title"`
	Status int                 `json:"status"`
	Detail string              `json:"detail,omitempty"`
	Errors map[string][]string `json:"errors,omitempty"`
}

// New builds a problem document.
func New(title, detail, problemType string, status int, errs map[string][]string) Details {
	return Details{Type: problemType, Title: title, Status: status, Detail: detail, Errors: errs}
}

// Write sends a problem document.
func Write(w http.ResponseWriter, p Details) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(p.Status)
	_ = json.NewEncoder(w).Encode(p)
}

// WriteJSON sends v as a JSON body with the given status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(v)
}

// Decode reads a JSON request body into dst. Malformed bodies become ValidationErrors.
func Decode(r *http.Request, dst any) error {
	if r.Body == nil {
		return apperrors.NewValidation("body", "request body is required")
	}
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return apperrors.NewValidation("body", "request body is required")
		}
		return apperrors.NewValidation("body", "malformed JSON: %v", err)
	}
	return nil
}

// Validation renders a ValidationError as a 400 problem.
func Validation(err *apperrors.ValidationError) Details {
	var errs map[string][]string
	if err.Field != "" {
		errs = map[string][]string{err.Field: {err.Message}}
	}
	return New("Invalid request", err.Error(), TypeValidation, http.StatusBadRequest, errs)
}

// FromError maps the shared error taxonomy to a problem document. Anything unknown is an
// internal error whose detail is only exposed when dev is true.
func FromError(err error, dev bool) Details {
	var (
		verr *apperrors.ValidationError
		terr *apperrors.TemplateApplicationError
	)
	switch {
	case errors.As(err, &verr):
		return Validation(verr)
	case errors.As(err, &terr):
		detail := "tenant template could not be applied"
		if dev {
			detail = terr.Error()
		}
		return New("Template application failed", detail, TypeTemplate, http.StatusUnprocessableEntity, nil)
	default:
		return New("Internal error", apperrors.SafeMessage(err, dev), TypeInternal, http.StatusInternalServerError, nil)
	}
}

// NotFound, Conflict, Forbidden and Unauthorized are shorthands for the common client errors.
func NotFound(detail string) Details {
	return New("Not found", detail, TypeNotFound, http.StatusNotFound, nil)
}

func Conflict(detail string) Details {
	return New("Conflict", detail, TypeConflict, http.StatusConflict, nil)
}

func Forbidden(detail string) Details {
	return New("Forbidden", detail, TypeForbidden, http.StatusForbidden, nil)
}

func Unauthorized(detail string) Details {
	return New("Unauthorized", detail, TypeUnauthorized, http.StatusUnauthorized, nil)
}

func Unavailable(detail string) Details {
	return New("Service unavailable", detail, TypeUnavailable, http.StatusServiceUnavailable, nil)
}

// BadRequest reports a malformed parameter outside the validation taxonomy.
func BadRequest(field, format string, args ...any) Details {
	msg := fmt.Sprintf(format, args...)
	return New("Invalid request", msg, TypeValidation, http.StatusBadRequest, map[string][]string{field: {msg}})
}
