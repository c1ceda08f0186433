package main

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorKindAndMessage(t *testing.T) {
	tests := []struct {
		err     error
		kind    string
		message string
	}{
		{fmt.Errorf("%q: %w", "x y", ErrInvalidHandle), "invalid_handle", "that is not a valid Twitter handle"},
		{fmt.Errorf("lookup ghost: %w", ErrHandleNotFound), "handle_not_found", "no such account on Twitter"},
		{fmt.Errorf("bob: %w", ErrUserNotFound), "user_not_found", "this user has not been added yet"},
		{&RemoteServiceError{Op: "fetch timeline", StatusCode: 503, Err: errors.New("down")}, "remote_error", "could not reach Twitter, try again later"},
		{&RemoteServiceError{Op: "lookup user", StatusCode: 429, Err: errors.New("slow down")}, "remote_error", "Twitter is rate limiting us, try again in a few minutes"},
		{fmt.Errorf("list users: %w", context.Canceled), "canceled", "the request was canceled before it finished"},
		{fmt.Errorf("tweets for alice: %w", context.DeadlineExceeded), "canceled", "the request was canceled before it finished"},
		{errors.New("disk I/O error"), "storage_error", "something went wrong while talking to the database"},
	}

	for _, tc := range tests {
		assert.Equal(t, tc.kind, errorKind(tc.err), tc.err.Error())
		assert.Equal(t, tc.message, userMessage(tc.err), tc.err.Error())
	}
	assert.Equal(t, "ok", errorKind(nil))
}

func TestRemoteServiceErrorString(t *testing.T) {
	err := &RemoteServiceError{Op: "lookup user", StatusCode: 401, Err: errors.New("Unauthorized")}
	assert.Equal(t, "twitter lookup user: status 401: Unauthorized", err.Error())

	err = &RemoteServiceError{Op: "lookup user", Err: errMissingToken}
	assert.Equal(t, "twitter lookup user: no bearer token configured", err.Error())
	assert.ErrorIs(t, err, errMissingToken)
}
