package main

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrUserNotFound means there is no local record for the handle.
	ErrUserNotFound = errors.New("user not found")
	// ErrHandleNotFound means the account does not exist on Twitter.
	ErrHandleNotFound = errors.New("twitter account not found")
	// ErrInvalidHandle means the handle cannot be a Twitter username.
	ErrInvalidHandle = errors.New("invalid twitter handle")

	errMissingToken = errors.New("no bearer token configured")
)

// RemoteServiceError reports a failure talking to the Twitter API:
// network errors, rejected credentials, rate limiting and bad responses.
type RemoteServiceError struct {
	Op         string
	StatusCode int
	Err        error
}

func (e *RemoteServiceError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("twitter %s: status %d: %v", e.Op, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("twitter %s: %v", e.Op, e.Err)
}

func (e *RemoteServiceError) Unwrap() error {
	return e.Err
}

// errorKind is a stable label for logs and metrics.
func errorKind(err error) string {
	var remote *RemoteServiceError
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrInvalidHandle):
		return "invalid_handle"
	case errors.Is(err, ErrHandleNotFound):
		return "handle_not_found"
	case errors.Is(err, ErrUserNotFound):
		return "user_not_found"
	case errors.As(err, &remote):
		return "remote_error"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	default:
		return "storage_error"
	}
}

// userMessage turns an error from the registration or lookup path into
// text that is safe to show on a page.
func userMessage(err error) string {
	var remote *RemoteServiceError
	switch {
	case errors.Is(err, ErrInvalidHandle):
		return "that is not a valid Twitter handle"
	case errors.Is(err, ErrHandleNotFound):
		return "no such account on Twitter"
	case errors.Is(err, ErrUserNotFound):
		return "this user has not been added yet"
	case errors.As(err, &remote):
		if remote.StatusCode == 429 {
			return "Twitter is rate limiting us, try again in a few minutes"
		}
		return "could not reach Twitter, try again later"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "the request was canceled before it finished"
	default:
		return "something went wrong while talking to the database"
	}
}
