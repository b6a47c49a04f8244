package pipeline

import (
	"errors"
	"sort"
	"time"

	"github.com/Spenny12/Google-Trends-bulk-tool/internal/trends"
)

// ErrNoData is returned when merging produced no columns at all,
// typically because every batch fetch failed.
var ErrNoData = errors.New("no interest data collected")

// BatchResult is the outcome of fetching one batch. Exactly one of
// Table and Err is set.
type BatchResult struct {
	Batch []string
	Table *trends.InterestTable
	Err   error
}

// MergeOutput is the result of combining per-batch tables.
type MergeOutput struct {
	// Table holds the union of all dates, ascending, with columns in
	// batch order. Cells a batch did not cover are invalid.
	Table *trends.InterestTable

	// Omitted lists queries that ended up with no column, either
	// because their batch failed or because the provider returned no
	// series for them. Order follows the input, duplicates removed.
	Omitted []string
}

// Merge combines per-batch tables into one. The date index is the
// ascending outer union of all batch indexes. Columns keep batch order;
// when the same query name appears more than once the first occurrence
// wins and later ones are dropped.
func Merge(results []BatchResult) (*MergeOutput, error) {
	dates := unionDates(results)

	seen := make(map[string]bool)
	merged := &trends.InterestTable{Dates: dates}

	for _, res := range results {
		if res.Err != nil || res.Table == nil {
			continue
		}

		index := make(map[time.Time]int, len(res.Table.Dates))
		for i, d := range res.Table.Dates {
			index[d] = i
		}

		for _, col := range res.Table.Columns {
			if seen[col.Query] {
				continue
			}
			seen[col.Query] = true

			scores := make([]trends.Score, len(dates))
			for i, d := range dates {
				if j, ok := index[d]; ok && j < len(col.Scores) {
					scores[i] = col.Scores[j]
				}
			}
			merged.Columns = append(merged.Columns, trends.Column{
				Query:  col.Query,
				Scores: scores,
			})
		}
	}

	if merged.Empty() {
		return nil, ErrNoData
	}

	return &MergeOutput{
		Table:   merged,
		Omitted: omittedQueries(results, seen),
	}, nil
}

// unionDates collects every date appearing in any successful batch,
// sorted ascending without duplicates.
func unionDates(results []BatchResult) []time.Time {
	set := make(map[time.Time]struct{})
	for _, res := range results {
		if res.Err != nil || res.Table == nil {
			continue
		}
		for _, d := range res.Table.Dates {
			set[d] = struct{}{}
		}
	}

	dates := make([]time.Time, 0, len(set))
	for d := range set {
		dates = append(dates, d)
	}
	sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })
	return dates
}

// omittedQueries lists every distinct input query that has no column
// in the merged table, preserving first-appearance order.
func omittedQueries(results []BatchResult, merged map[string]bool) []string {
	var omitted []string
	noted := make(map[string]bool)
	for _, res := range results {
		for _, q := range res.Batch {
			if merged[q] || noted[q] {
				continue
			}
			noted[q] = true
			omitted = append(omitted, q)
		}
	}
	return omitted
}
