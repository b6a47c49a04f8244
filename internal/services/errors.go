package services

import "errors"

// Service errors
var (
	// Upload errors
	ErrUploadNotFound = errors.New("upload not found")

	// Run errors
	ErrRunNotFound     = errors.New("run not found")
	ErrRunNotCompleted = errors.New("run is not completed")
	ErrRunFailed       = errors.New("run failed")

	// General errors
	ErrInvalidInput = errors.New("invalid input")
)
