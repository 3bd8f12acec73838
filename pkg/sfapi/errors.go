package sfapi

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrRateLimited is returned when the platform rejects a call with HTTP 429
// even after the client's bounded retries. Callers should stop issuing new
// calls rather than hammer the org further.
var ErrRateLimited = errors.New("rate limit exceeded")

// StatusError is a non-2xx response from the platform. The status code is
// part of the message so downstream classification by error text works.
type StatusError struct {
	Code int
	URL  string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%d %s: %s", e.Code, http.StatusText(e.Code), e.URL)
}

// IsStatus reports whether err carries the given HTTP status code.
func IsStatus(err error, code int) bool {
	var se *StatusError
	return errors.As(err, &se) && se.Code == code
}
