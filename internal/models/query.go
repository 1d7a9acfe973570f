package models

import "fmt"

// RetrieveQuery is a direct retrieval request, used to inspect what the
// chat pipeline would see for a question.
type RetrieveQuery struct {
	Query       string   `json:"query"`
	Limit       int      `json:"limit,omitempty"`
	DocumentIDs []string `json:"document_ids,omitempty"`
	MinScore    *float64 `json:"min_score,omitempty"` // overrides the configured floor when set
}

// Validate ensures the query has valid fields and sets defaults.
// Returns an error if the query is empty; otherwise normalizes limit.
func (q *RetrieveQuery) Validate(defaultLimit int) error {
	if q.Query == "" {
		return fmt.Errorf("%w: query cannot be empty", ErrValidation)
	}
	if q.Limit <= 0 {
		q.Limit = defaultLimit
	}
	if q.Limit > 100 {
		q.Limit = 100
	}
	if q.MinScore != nil && (*q.MinScore < -1 || *q.MinScore > 1) {
		return fmt.Errorf("%w: min_score must be between -1 and 1", ErrValidation)
	}
	return nil
}
