// Package exporter serializes merged interest tables to CSV files with
// timestamped filenames.
package exporter
