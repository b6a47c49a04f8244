package exporter

import (
	"encoding/csv"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/Spenny12/Google-Trends-bulk-tool/internal/trends"
)

const dateLayout = "2006-01-02"

// WriteTable serializes an interest table as CSV. The header row is
// "date" followed by the query names in column order; rows follow the
// table's ascending date index with dates formatted 2006-01-02 and
// invalid cells left empty.
func WriteTable(w io.Writer, table *trends.InterestTable) error {
	if table.Empty() {
		return fmt.Errorf("nothing to export")
	}

	writer := csv.NewWriter(w)

	header := append([]string{"date"}, table.Queries()...)
	if err := writer.Write(header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}

	record := make([]string, len(header))
	for i, date := range table.Dates {
		record[0] = date.Format(dateLayout)
		for j := range table.Columns {
			score := table.Columns[j].Scores[i]
			if score.Valid {
				record[j+1] = strconv.Itoa(score.Value)
			} else {
				record[j+1] = ""
			}
		}
		if err := writer.Write(record); err != nil {
			return fmt.Errorf("write row %d: %w", i, err)
		}
	}

	writer.Flush()
	return writer.Error()
}

// ReadTable parses a CSV produced by WriteTable back into a table.
func ReadTable(r io.Reader) (*trends.InterestTable, error) {
	reader := csv.NewReader(r)

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	if len(header) < 2 || header[0] != "date" {
		return nil, fmt.Errorf("unexpected header %v", header)
	}

	table := &trends.InterestTable{}
	for _, name := range header[1:] {
		table.Columns = append(table.Columns, trends.Column{Query: name})
	}

	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read row: %w", err)
		}

		date, err := time.Parse(dateLayout, record[0])
		if err != nil {
			return nil, fmt.Errorf("parse date %q: %w", record[0], err)
		}
		table.Dates = append(table.Dates, date)

		for i := range table.Columns {
			score := trends.Score{}
			if cell := record[i+1]; cell != "" {
				v, err := strconv.Atoi(cell)
				if err != nil {
					return nil, fmt.Errorf("parse score %q: %w", cell, err)
				}
				score = trends.Score{Value: v, Valid: true}
			}
			table.Columns[i].Scores = append(table.Columns[i].Scores, score)
		}
	}

	return table, nil
}

// CSVExporter writes export artifacts into a directory.
type CSVExporter struct {
	dir    string
	logger *slog.Logger
}

// NewCSVExporter creates an exporter rooted at dir.
func NewCSVExporter(dir string, logger *slog.Logger) *CSVExporter {
	return &CSVExporter{
		dir:    dir,
		logger: logger.With(slog.String("component", "csv_exporter")),
	}
}

// Export writes the table to a timestamped CSV file and returns the
// filename, without directory.
func (e *CSVExporter) Export(table *trends.InterestTable, months int) (string, error) {
	filename := Filename(months, time.Now())

	if err := os.MkdirAll(e.dir, 0755); err != nil {
		return "", fmt.Errorf("create export directory: %w", err)
	}

	path := filepath.Join(e.dir, filename)
	file, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("create export file: %w", err)
	}
	defer file.Close()

	if err := WriteTable(file, table); err != nil {
		os.Remove(path)
		return "", err
	}

	e.logger.Info("export written",
		slog.String("filename", filename),
		slog.Int("rows", len(table.Dates)),
		slog.Int("columns", len(table.Columns)),
	)

	return filename, nil
}

// Path returns the absolute location of a previously exported file.
func (e *CSVExporter) Path(filename string) string {
	return filepath.Join(e.dir, filename)
}
