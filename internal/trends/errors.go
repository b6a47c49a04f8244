package trends

import (
	"errors"
	"fmt"
)

var (
	// ErrNoQueries is returned when a request carries no query terms.
	ErrNoQueries = errors.New("no queries provided")

	// ErrTooManyQueries is returned when a request exceeds the provider's
	// per-request comparison limit.
	ErrTooManyQueries = errors.New("too many queries for a single request")

	// ErrNoTimeseriesWidget is returned when the explore response does not
	// contain an interest-over-time widget.
	ErrNoTimeseriesWidget = errors.New("explore response contains no timeseries widget")
)

// StatusError reports an unexpected HTTP status from the provider.
type StatusError struct {
	Endpoint string
	Code     int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("trends: %s returned status %d", e.Endpoint, e.Code)
}

// IsRetryable reports whether the status indicates a transient condition.
func (e *StatusError) IsRetryable() bool {
	return e.Code == 429 || e.Code >= 500
}
