package harvest

import (
	"errors"
	"fmt"
)

// ErrBodyTruncated reports a response body that was cut off by the size cap
// or ended before its declared Content-Length.
var ErrBodyTruncated = errors.New("response body truncated")

// StatusError reports a response outside the 2xx range.
type StatusError struct {
	URL        string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d for %s", e.StatusCode, e.URL)
}

// StatusCode extracts the HTTP status from err, or 0 when err carries none.
func StatusCode(err error) int {
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.StatusCode
	}
	return 0
}
