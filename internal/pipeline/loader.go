package pipeline

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"
)

var (
	// ErrEmptyInput is returned when an upload yields no usable queries.
	ErrEmptyInput = errors.New("input contains no usable queries")

	// ErrMalformedInput is returned when an upload cannot be parsed at
	// all, such as broken CSV quoting or a corrupt workbook. Like
	// ErrEmptyInput it marks a user-correctable problem with the file.
	ErrMalformedInput = errors.New("query file could not be parsed")
)

// LoadQueries parses a query list from tabular content. The format is
// chosen from the file extension: .xlsx is read as a workbook, anything
// else as CSV. Queries come from the first column of every row, with
// surrounding whitespace trimmed and empty cells dropped. Duplicates
// are kept and order is preserved.
func LoadQueries(filename string, r io.Reader) ([]string, error) {
	var (
		queries []string
		err     error
	)

	switch strings.ToLower(filepath.Ext(filename)) {
	case ".xlsx":
		queries, err = loadXLSX(r)
	default:
		queries, err = loadCSV(r)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedInput, err)
	}

	if len(queries) == 0 {
		return nil, ErrEmptyInput
	}
	return queries, nil
}

func loadCSV(r io.Reader) ([]string, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	var queries []string
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("parse csv: %w", err)
		}
		if len(record) == 0 {
			continue
		}
		if q := strings.TrimSpace(record[0]); q != "" {
			queries = append(queries, q)
		}
	}
	return queries, nil
}

func loadXLSX(r io.Reader) ([]string, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("open workbook: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, nil
	}

	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("read sheet %q: %w", sheets[0], err)
	}

	var queries []string
	for _, row := range rows {
		if len(row) == 0 {
			continue
		}
		if q := strings.TrimSpace(row[0]); q != "" {
			queries = append(queries, q)
		}
	}
	return queries, nil
}
