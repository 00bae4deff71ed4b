package credentials

import (
	"errors"
	"fmt"

	"golang.org/x/oauth2"
)

// RetryableError wraps a transient refresh failure (network error, timeout,
// 5xx upstream): the caller should retry later, credentials are not revoked.
type RetryableError struct {
	Err error
}

func (e *RetryableError) Error() string { return fmt.Sprintf("credentials: retryable: %s", e.Err) }
func (e *RetryableError) Unwrap() error { return e.Err }

// classifyRefreshError inspects an error returned by an oauth2.TokenSource
// refresh and sorts it into a non-retryable OAuthError (revoke, fail fast) or
// a RetryableError (no revocation, safe to retry with backoff).
func classifyRefreshError(err error) error {
	var retrieveErr *oauth2.RetrieveError
	if errors.As(err, &retrieveErr) {
		if retrieveErr.Response != nil && retrieveErr.Response.StatusCode >= 400 && retrieveErr.Response.StatusCode < 500 {
			code := retrieveErr.ErrorCode
			if code == "" {
				code = fmt.Sprintf("http_%d", retrieveErr.Response.StatusCode)
			}
			return &OAuthError{Code: code, Message: retrieveErr.ErrorDescription}
		}
		return &RetryableError{Err: retrieveErr}
	}

	return &RetryableError{Err: err}
}

// IsRevocable reports whether err should cause the manager to mark the
// credential as revoked and stop retrying.
func IsRevocable(err error) bool {
	var oauthErr *OAuthError
	return errors.As(err, &oauthErr)
}
