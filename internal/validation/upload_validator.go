// Package validation checks uploaded query files before parsing.
package validation

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
)

// allowedExtensions are the query file formats the loader understands.
var allowedExtensions = map[string]bool{
	".csv":  true,
	".xlsx": true,
}

// UploadValidator validates uploaded query files.
type UploadValidator struct {
	maxSize int64
	logger  *slog.Logger
}

// NewUploadValidator creates a validator. maxSize caps the upload in
// bytes; zero or negative disables the size check.
func NewUploadValidator(maxSize int64, logger *slog.Logger) *UploadValidator {
	if logger == nil {
		logger = slog.Default()
	}
	return &UploadValidator{
		maxSize: maxSize,
		logger:  logger.With(slog.String("component", "upload_validator")),
	}
}

// Validate checks the filename and size of an uploaded query file.
func (v *UploadValidator) Validate(filename string, size int64) error {
	base := filepath.Base(filename)
	if base == "" || base == "." || base == string(filepath.Separator) {
		return fmt.Errorf("missing filename")
	}

	ext := strings.ToLower(filepath.Ext(base))
	if !allowedExtensions[ext] {
		v.logger.Warn("rejected upload with unsupported extension",
			slog.String("filename", base),
			slog.String("extension", ext))
		return fmt.Errorf("unsupported file type %q, expected .csv or .xlsx", ext)
	}

	if v.maxSize > 0 && size > v.maxSize {
		v.logger.Warn("rejected oversized upload",
			slog.String("filename", base),
			slog.Int64("size", size),
			slog.Int64("max_size", v.maxSize))
		return fmt.Errorf("file exceeds the %d byte upload limit", v.maxSize)
	}

	return nil
}
