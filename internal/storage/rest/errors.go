package rest

import (
	"fmt"
	"net/http"

	"github.com/VitaminP8/commentree/internal/comment"
)

// APIError is a non-2xx answer of the comment API.
type APIError struct {
	Method  string
	Path    string
	Status  int
	Message string
	// Kind is the comment sentinel matching the status, if any.
	Kind error
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("%s %s: HTTP %d", e.Method, e.Path, e.Status)
	}
	return fmt.Sprintf("%s %s: HTTP %d: %s", e.Method, e.Path, e.Status, e.Message)
}

func (e *APIError) Unwrap() error {
	return e.Kind
}

// errorBody covers both error shapes the API returns.
type errorBody struct {
	Message string `json:"message"`
	Detail  string `json:"detail"`
}

func kindFor(status int, notFound error) error {
	switch status {
	case http.StatusUnauthorized, http.StatusForbidden:
		return comment.ErrUnauthorized
	case http.StatusNotFound:
		return notFound
	default:
		return nil
	}
}
