package models

import (
	"fmt"
	"strings"
)

// SearchQuery represents a free-text search request.
type SearchQuery struct {
	Query string `json:"query"`
	// Prompt is accepted as an alias of Query for older clients.
	Prompt  string `json:"prompt,omitempty"`
	OwnerID string `json:"owner_id,omitempty"`
	Limit   int    `json:"limit,omitempty"`
}

// Validate normalizes the query text and clamps Limit to maxLimit.
// Returns ErrInvalidInput if the query is empty.
func (q *SearchQuery) Validate(maxLimit int) error {
	if strings.TrimSpace(q.Query) == "" {
		q.Query = q.Prompt
	}
	q.Query = strings.TrimSpace(q.Query)
	q.OwnerID = strings.TrimSpace(q.OwnerID)
	if q.Query == "" {
		return fmt.Errorf("%w: query cannot be empty", ErrInvalidInput)
	}
	if q.Limit <= 0 || q.Limit > maxLimit {
		q.Limit = maxLimit
	}
	return nil
}
