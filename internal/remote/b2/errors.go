package b2

import (
	"errors"
	"fmt"
)

// ErrNotAuthenticated is returned by data operations called before a
// successful Authenticate.
var ErrNotAuthenticated = errors.New("b2: client is not authenticated")

// AuthError is a failed credential exchange. It is fatal for the run and is
// never retried automatically; the caller decides whether to retry the whole
// run.
type AuthError struct {
	Err error
}

func (e *AuthError) Error() string { return fmt.Sprintf("b2: authenticate: %v", e.Err) }
func (e *AuthError) Unwrap() error { return e.Err }

// ListError is a failed listing. Partial pages are discarded, never returned
// truncated.
type ListError struct {
	Err error
}

func (e *ListError) Error() string { return fmt.Sprintf("b2: list objects: %v", e.Err) }
func (e *ListError) Unwrap() error { return e.Err }

// UploadError carries the last underlying cause after the retry budget for
// an upload is spent.
type UploadError struct {
	Name string
	Err  error
}

func (e *UploadError) Error() string { return fmt.Sprintf("b2: upload %s: %v", e.Name, e.Err) }
func (e *UploadError) Unwrap() error { return e.Err }

// apiError is a non-2xx response decoded from the remote's error body.
type apiError struct {
	Status  int
	Code    string
	Message string
}

func (e *apiError) Error() string {
	return fmt.Sprintf("remote returned %d (%s): %s", e.Status, e.Code, e.Message)
}

// retryable reports whether the request may be reissued: request timeout,
// rate limiting, and server errors. Malformed-request responses are not.
func (e *apiError) retryable() bool {
	return e.Status == 408 || e.Status == 429 || e.Status >= 500
}

func (e *apiError) expiredAuth() bool {
	return e.Status == 401 && e.Code == "expired_auth_token"
}
