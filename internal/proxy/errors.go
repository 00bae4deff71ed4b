package proxy

import (
	"context"
	"net/http"
)

// apiError is the local {"error":{"type","message"}} envelope returned when
// a failure originates in the dispatcher itself rather than being forwarded
// verbatim from the upstream provider.
type apiError struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

type apiErrorEnvelope struct {
	Error apiError `json:"error"`
}

// errorStatus maps a local error type to its HTTP status, per the error
// taxonomy: invalid_request_error -> 400, authentication_error -> 401,
// permission_error -> 403, not_found_error -> 404, rate_limit_error -> 429,
// timeout_error -> 408, everything else -> 500.
func errorStatus(errType string) int {
	switch errType {
	case "invalid_request_error":
		return http.StatusBadRequest
	case "authentication_error":
		return http.StatusUnauthorized
	case "permission_error":
		return http.StatusForbidden
	case "not_found_error":
		return http.StatusNotFound
	case "rate_limit_error":
		return http.StatusTooManyRequests
	case "timeout_error":
		return http.StatusRequestTimeout
	default:
		return http.StatusInternalServerError
	}
}

func writeAPIError(ctx context.Context, w http.ResponseWriter, errType, message string) {
	writeJSON(ctx, w, apiErrorEnvelope{Error: apiError{Type: errType, Message: message}}, errorStatus(errType))
}
