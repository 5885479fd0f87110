// Package models defines core data structures for indexed images, queries, and search results.
package models

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrInvalidInput is returned when a required field is missing. Operations that
// fail with it have no side effects.
var ErrInvalidInput = errors.New("invalid input")

// IndexedImage is one photo's embedding as stored in the vector index.
// The pair (OwnerID, SourcePath) is unique and records are never modified.
type IndexedImage struct {
	ID         string    `json:"id"`
	OwnerID    string    `json:"owner_id"`
	SourcePath string    `json:"source_path"`
	Embedding  []float32 `json:"embedding,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// IndexRequest is the input for indexing one photo.
type IndexRequest struct {
	OwnerID    string
	SourcePath string
	Image      []byte
	MimeType   string
}

// Validate checks that all required fields are present.
func (r *IndexRequest) Validate() error {
	switch {
	case strings.TrimSpace(r.OwnerID) == "":
		return fmt.Errorf("%w: owner id is required", ErrInvalidInput)
	case strings.TrimSpace(r.SourcePath) == "":
		return fmt.Errorf("%w: source path is required", ErrInvalidInput)
	case len(r.Image) == 0:
		return fmt.Errorf("%w: image bytes are required", ErrInvalidInput)
	}
	return nil
}

// IndexResult reports the outcome of a successful index call.
type IndexResult struct {
	// AlreadyIndexed is true when a record for the pair existed before this call
	// (including when a concurrent writer won the insert race).
	AlreadyIndexed bool   `json:"already_indexed"`
	ID             string `json:"id,omitempty"`
}

// Photo is a photo known to a client. Path is read for the image bytes and is
// also sent as the source path, so it must be stable across runs.
type Photo struct {
	Path string `json:"path"`
}
