package pipeline

import "github.com/Spenny12/Google-Trends-bulk-tool/internal/trends"

// DefaultBatchSize matches the provider's per-request comparison limit.
const DefaultBatchSize = trends.MaxQueriesPerRequest

// Batch splits queries into contiguous groups of at most size each,
// preserving order. The final group may be short. A size outside
// (0, DefaultBatchSize] is clamped to DefaultBatchSize.
func Batch(queries []string, size int) [][]string {
	if size <= 0 || size > DefaultBatchSize {
		size = DefaultBatchSize
	}
	if len(queries) == 0 {
		return nil
	}

	batches := make([][]string, 0, (len(queries)+size-1)/size)
	for start := 0; start < len(queries); start += size {
		end := start + size
		if end > len(queries) {
			end = len(queries)
		}
		batches = append(batches, queries[start:end])
	}
	return batches
}
