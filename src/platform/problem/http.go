package problem

import (
	"errors"
	"math"
	"net/http"
)

const problemType = "about:blank"

// Problem is the RFC 7807 response body shape.
type Problem struct {
	Type     string `json:"type"`
	Title    string `json:"title"`
	Status   int    `json:"status"`
	Detail   string `json:"detail"`
	Instance string `json:"instance"`
}

type statusMapping struct {
	status int
	title  string
	detail string
}

var kindStatuses = map[Kind]statusMapping{
	KindInvalidArgument:       {http.StatusBadRequest, "Bad Request", "One or more request fields are invalid."},
	KindAuthRequired:          {http.StatusUnauthorized, "Unauthorized", "Authentication is required."},
	KindNotFound:              {http.StatusNotFound, "Not Found", "The requested resource does not exist."},
	KindConflict:              {http.StatusConflict, "Conflict", "The request conflicts with the current state."},
	KindRateLimitExceeded:     {http.StatusTooManyRequests, "Too Many Requests", "Message rate limit exceeded."},
	KindTimeout:               {http.StatusGatewayTimeout, "Gateway Timeout", "The operation did not complete in time."},
	KindEventProductionFailed: {http.StatusServiceUnavailable, "Service Unavailable", "The message could not be accepted right now."},
}

var fallbackStatus = statusMapping{
	http.StatusInternalServerError, "Internal Server Error", "An unexpected error occurred.",
}

// ToProblem maps an error to its transport representation. In developer
// mode the raw error message is exposed as the detail; in production the
// canned generic detail is used.
func ToProblem(err error, instance string, developerMode bool) Problem {
	mapping, ok := kindStatuses[KindOf(err)]
	if !ok {
		mapping = fallbackStatus
	}

	detail := mapping.detail
	if developerMode && err != nil {
		detail = err.Error()
	}

	return Problem{
		Type:     problemType,
		Title:    mapping.title,
		Status:   mapping.status,
		Detail:   detail,
		Instance: instance,
	}
}

// RetryAfterSeconds extracts the Retry-After value, in whole seconds
// rounded up, from a rate-limit error. Returns 0 for other errors.
func RetryAfterSeconds(err error) int {
	var typed *Error
	if !errors.As(err, &typed) || typed.Kind != KindRateLimitExceeded {
		return 0
	}
	return int(math.Ceil(typed.RetryAfter.Seconds()))
}
