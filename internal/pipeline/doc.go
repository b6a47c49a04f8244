// Package pipeline contains the fetch pipeline: loading query lists
// from tabular uploads, batching them for the provider, fetching each
// batch, merging the per-batch tables and tracking run state.
package pipeline
