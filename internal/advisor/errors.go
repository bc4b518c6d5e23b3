package advisor

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrRateLimited may be returned (or wrapped) by any Service that is throttled.
var ErrRateLimited = errors.New("advisory service rate limited")

// statusResourceExhausted is the Google API status for quota and rate limit errors.
const statusResourceExhausted = "RESOURCE_EXHAUSTED"

// ServiceError is a structured failure reported by the advisory service.
type ServiceError struct {
	StatusCode int
	Status     string
	Message    string
}

func (e *ServiceError) Error() string {
	return fmt.Sprintf("advisory service: status %d %s: %s", e.StatusCode, e.Status, e.Message)
}

// Class groups errors by how the client reacts to them.
type Class string

const (
	ClassNone        Class = "ok"
	ClassRateLimited Class = "rate_limited"
	ClassOther       Class = "error"
)

// Classify inspects the error structure; message text is never consulted.
func Classify(err error) Class {
	if err == nil {
		return ClassNone
	}
	if errors.Is(err, ErrRateLimited) {
		return ClassRateLimited
	}
	var se *ServiceError
	if errors.As(err, &se) {
		if se.StatusCode == http.StatusTooManyRequests || se.Status == statusResourceExhausted {
			return ClassRateLimited
		}
	}
	return ClassOther
}
