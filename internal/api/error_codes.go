package api

import (
	"errors"
	"io/fs"
	"net/http"

	"imgdash/internal/catalog"
	"imgdash/internal/sandbox"
	"imgdash/internal/session"
)

func errorCodeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "invalid_request"
	case http.StatusForbidden:
		return "forbidden"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusMethodNotAllowed:
		return "method_not_allowed"
	case http.StatusTooManyRequests:
		return "rate_limited"
	case http.StatusServiceUnavailable:
		return "service_unavailable"
	default:
		if status >= http.StatusInternalServerError {
			return "internal_error"
		}
	}
	return ""
}

// errorForDomain maps package sentinel errors onto HTTP errors. Traversal is
// a client error and is never retried; missing targets are plain 404s.
func errorForDomain(err error, notFound string) *apiError {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, sandbox.ErrPathTraversal):
		return &apiError{Status: http.StatusForbidden, Message: "path outside root"}
	case errors.Is(err, session.ErrProjectNotFound),
		errors.Is(err, catalog.ErrNotDirectory),
		errors.Is(err, fs.ErrNotExist):
		return &apiError{Status: http.StatusNotFound, Message: notFound}
	default:
		return &apiError{Status: http.StatusInternalServerError, Message: "internal error"}
	}
}
