package services

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Upload is a parsed query list held in memory until a run consumes it.
type Upload struct {
	ID        string    `json:"id"`
	Filename  string    `json:"filename"`
	Queries   []string  `json:"-"`
	CreatedAt time.Time `json:"created_at"`
}

// UploadStore keeps parsed uploads keyed by UUID. Uploads live for the
// process lifetime; there is no persistence.
type UploadStore struct {
	mu      sync.RWMutex
	uploads map[string]Upload
}

// NewUploadStore creates an empty store.
func NewUploadStore() *UploadStore {
	return &UploadStore{uploads: make(map[string]Upload)}
}

// Add stores a parsed query list and returns the created upload.
func (s *UploadStore) Add(filename string, queries []string) Upload {
	upload := Upload{
		ID:        uuid.New().String(),
		Filename:  filename,
		Queries:   append([]string(nil), queries...),
		CreatedAt: time.Now(),
	}

	s.mu.Lock()
	s.uploads[upload.ID] = upload
	s.mu.Unlock()

	return upload
}

// Get returns the upload with the given ID.
func (s *UploadStore) Get(id string) (Upload, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	upload, ok := s.uploads[id]
	if !ok {
		return Upload{}, ErrUploadNotFound
	}
	return upload, nil
}

// Count returns the number of stored uploads.
func (s *UploadStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.uploads)
}
