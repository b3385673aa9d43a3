// Rdiffgate - Web Access to rdiff-backup Repositories
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/rdiffgate

package api

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/tomtom215/rdiffgate/internal/catalogue"
	"github.com/tomtom215/rdiffgate/internal/logging"
	"github.com/tomtom215/rdiffgate/internal/rdiff"
	"github.com/tomtom215/rdiffgate/internal/validation"
)

// sanitizeLogValue removes control characters from strings to prevent log injection attacks.
func sanitizeLogValue(s string) string {
	var result strings.Builder
	result.Grow(len(s))
	for _, r := range s {
		if r < 0x20 || r == 0x7F {
			result.WriteString(fmt.Sprintf("\\x%02x", r))
		} else {
			result.WriteRune(r)
		}
	}
	return result.String()
}

// errorStatus maps an error to an HTTP status and error code.
func errorStatus(err error) (int, string) {
	var verr *validation.RequestValidationError
	switch {
	case errors.As(err, &verr):
		return http.StatusBadRequest, ErrCodeValidationFailed
	case errors.Is(err, catalogue.ErrUserNotFound):
		return http.StatusForbidden, ErrCodeForbidden
	case errors.Is(err, catalogue.ErrRepoNotFound):
		return http.StatusNotFound, ErrCodeNotFound
	}
	switch rdiff.KindOf(err) {
	case rdiff.DoesNotExist:
		return http.StatusNotFound, ErrCodeNotFound
	case rdiff.AccessDenied:
		return http.StatusForbidden, ErrCodeForbidden
	case rdiff.InvalidTimestamp:
		return http.StatusBadRequest, ErrCodeInvalidTimestamp
	case rdiff.EngineMissing:
		return http.StatusInternalServerError, ErrCodeEngineMissing
	case rdiff.RestoreFailed:
		return http.StatusInternalServerError, ErrCodeRestoreFailed
	case rdiff.IOUnavailable:
		return http.StatusInternalServerError, ErrCodeIOUnavailable
	}
	return http.StatusInternalServerError, ErrCodeInternalError
}

// respondError logs err and writes the enveloped error for it. Server-side
// failures get a generic message; client errors carry the error text, which
// only ever holds quoted paths.
func respondError(w http.ResponseWriter, r *http.Request, err error) {
	status, code := errorStatus(err)
	logger := logging.Ctx(r.Context())
	if status >= http.StatusInternalServerError {
		logger.Error().Str("code", code).Str("error", sanitizeLogValue(err.Error())).Msg("API error")
		NewResponseWriter(w, r).Error(status, code, http.StatusText(status))
		return
	}
	logger.Debug().Str("code", code).Str("error", sanitizeLogValue(err.Error())).Msg("API request rejected")

	var verr *validation.RequestValidationError
	if errors.As(err, &verr) {
		apiErr := verr.ToAPIError()
		NewResponseWriter(w, r).ErrorWithDetails(status, apiErr.Code, apiErr.Message, apiErr.Details)
		return
	}
	NewResponseWriter(w, r).Error(status, code, err.Error())
}

// validateRequest validates a struct using go-playground/validator.
func validateRequest(v interface{}) error {
	if verr := validation.ValidateStruct(v); verr != nil {
		return verr
	}
	return nil
}

// getIntParam extracts an integer query parameter with a default value
func getIntParam(r *http.Request, key string, defaultValue int) int {
	value := r.URL.Query().Get(key)
	if value == "" {
		return defaultValue
	}

	intValue, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}

	return intValue
}

// getTimeParam parses an optional timestamp query parameter given in URL
// form or as epoch seconds.
func getTimeParam(r *http.Request, key string) (*rdiff.Time, error) {
	value := r.URL.Query().Get(key)
	if value == "" {
		return nil, nil
	}
	t, err := rdiff.ParseUserTime(value)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// wildcardPath returns the path captured by a trailing "*" route segment.
func wildcardPath(r *http.Request) string {
	return strings.Trim(chi.URLParam(r, "*"), "/")
}
