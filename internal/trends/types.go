// Package trends provides a client for the Google Trends interest-over-time
// API together with the data types the rest of the application works with.
package trends

import (
	"fmt"
	"time"
)

// Timeframe is the lookback window for an interest-over-time request,
// expressed in months.
type Timeframe int

const (
	// Timeframe12Months covers the trailing twelve months.
	Timeframe12Months Timeframe = 12
	// Timeframe24Months covers the trailing twenty-four months.
	Timeframe24Months Timeframe = 24
)

// ParseTimeframe converts a month count into a Timeframe.
func ParseTimeframe(months int) (Timeframe, error) {
	switch months {
	case 12:
		return Timeframe12Months, nil
	case 24:
		return Timeframe24Months, nil
	default:
		return 0, fmt.Errorf("unsupported timeframe: %d months (must be 12 or 24)", months)
	}
}

// TimeframeFromMonths maps a month count to a Timeframe. Unsupported
// values fall back to the twelve-month window.
func TimeframeFromMonths(months int) Timeframe {
	if tf, err := ParseTimeframe(months); err == nil {
		return tf
	}
	return Timeframe12Months
}

// Months returns the number of months the timeframe covers.
func (t Timeframe) Months() int {
	return int(t)
}

// String returns the timeframe token the Trends API expects.
func (t Timeframe) String() string {
	return fmt.Sprintf("today %d-m", int(t))
}

// Score is a single interest value. Valid is false when the provider
// returned no value for the date, which happens when tables covering
// different date ranges are merged.
type Score struct {
	Value int
	Valid bool
}

// Column is one query's interest series, aligned with the owning
// table's Dates slice.
type Column struct {
	Query  string
	Scores []Score
}

// InterestTable is a date-indexed table of interest scores. Dates are
// sorted ascending and unique. Every column holds exactly len(Dates)
// scores.
type InterestTable struct {
	Dates   []time.Time
	Columns []Column
}

// Queries returns the column names in order.
func (t *InterestTable) Queries() []string {
	names := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		names[i] = c.Query
	}
	return names
}

// Empty reports whether the table holds no dates or no columns.
func (t *InterestTable) Empty() bool {
	return t == nil || len(t.Dates) == 0 || len(t.Columns) == 0
}

// Column returns the column for the given query, or nil when absent.
func (t *InterestTable) Column(query string) *Column {
	for i := range t.Columns {
		if t.Columns[i].Query == query {
			return &t.Columns[i]
		}
	}
	return nil
}
