package api

import (
	"fmt"
	"net/http"
	"strings"
)

// AuthError is a client-credentials exchange the server rejected. It is never
// retried.
type AuthError struct {
	Status int
	Body   string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("failed to get access token: status %d: %s", e.Status, e.Body)
}

// TransportError covers network failures (Status 0) and non-200 responses.
type TransportError struct {
	Status int
	Body   string
	Err    error
}

func (e *TransportError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("graphql query failed: %v", e.Err)
	}
	return fmt.Sprintf("graphql query failed: status %d: %s", e.Status, e.Body)
}

func (e *TransportError) Unwrap() error { return e.Err }

// Retryable reports whether another attempt could plausibly succeed.
func (e *TransportError) Retryable() bool {
	if e.Status == 0 {
		return true
	}
	return e.Status == http.StatusTooManyRequests ||
		e.Status == http.StatusUnauthorized ||
		e.Status >= http.StatusInternalServerError
}

// GraphQLError is a well-formed response carrying a top-level errors list.
type GraphQLError struct {
	Messages []string
}

func (e *GraphQLError) Error() string {
	return "graphql errors: " + strings.Join(e.Messages, "; ")
}

type gqlErrorItem struct {
	Message string `json:"message"`
	Path    []any  `json:"path,omitempty"`
}
