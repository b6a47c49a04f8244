package pipeline

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBatch(t *testing.T) {
	tests := []struct {
		name    string
		count   int
		size    int
		want    int
		lastLen int
	}{
		{name: "empty", count: 0, size: 5, want: 0},
		{name: "one query", count: 1, size: 5, want: 1, lastLen: 1},
		{name: "exact batch", count: 5, size: 5, want: 1, lastLen: 5},
		{name: "six queries two batches", count: 6, size: 5, want: 2, lastLen: 1},
		{name: "eleven queries", count: 11, size: 5, want: 3, lastLen: 1},
		{name: "size clamped from zero", count: 7, size: 0, want: 2, lastLen: 2},
		{name: "size clamped from above limit", count: 7, size: 50, want: 2, lastLen: 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			queries := make([]string, tt.count)
			for i := range queries {
				queries[i] = fmt.Sprintf("query-%d", i)
			}

			batches := Batch(queries, tt.size)
			require.Len(t, batches, tt.want)
			if tt.want == 0 {
				return
			}

			assert.Len(t, batches[len(batches)-1], tt.lastLen)

			// Concatenating the batches must reproduce the input.
			var flat []string
			for _, b := range batches {
				flat = append(flat, b...)
			}
			assert.Equal(t, queries, flat)
		})
	}
}
