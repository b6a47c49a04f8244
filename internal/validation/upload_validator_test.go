package validation

import (
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestUploadValidator(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	v := NewUploadValidator(1024, logger)

	tests := []struct {
		name     string
		filename string
		size     int64
		wantErr  string
	}{
		{name: "csv ok", filename: "queries.csv", size: 100},
		{name: "xlsx ok", filename: "queries.xlsx", size: 100},
		{name: "uppercase extension", filename: "QUERIES.CSV", size: 100},
		{name: "path stripped", filename: "../uploads/queries.csv", size: 100},
		{name: "unsupported type", filename: "queries.txt", size: 100, wantErr: "unsupported file type"},
		{name: "no extension", filename: "queries", size: 100, wantErr: "unsupported file type"},
		{name: "too large", filename: "queries.csv", size: 2048, wantErr: "upload limit"},
		{name: "missing name", filename: "", size: 100, wantErr: "missing filename"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := v.Validate(tt.filename, tt.size)
			if tt.wantErr == "" {
				assert.NoError(t, err)
			} else {
				assert.ErrorContains(t, err, tt.wantErr)
			}
		})
	}
}

func TestUploadValidatorNoSizeLimit(t *testing.T) {
	v := NewUploadValidator(0, nil)
	assert.NoError(t, v.Validate("queries.csv", 1<<30))
}
