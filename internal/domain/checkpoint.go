package domain

import "time"

// Checkpoint records which external items an import run has already decided on.
// ProcessedIDs keeps discovery order and never holds duplicates.
type Checkpoint struct {
	SourceName    string     `json:"source_name"`
	RunID         string     `json:"run_id"`
	Total         int        `json:"total"`
	ProcessedIDs  []string   `json:"processed_ids"`
	ImportedCount int        `json:"imported_count"`
	SkippedCount  int        `json:"skipped_count"`
	FailedCount   int        `json:"failed_count"`
	Failures      []Failure  `json:"failures"`
	Complete      bool       `json:"complete"`
	StartedAt     time.Time  `json:"started_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
	CompletedAt   *time.Time `json:"completed_at,omitempty"`
}

type Failure struct {
	ExternalID string `json:"external_id"`
	Reason     string `json:"reason"`
}

// Clone returns a deep copy safe to hand to a store.
func (c *Checkpoint) Clone() *Checkpoint {
	cp := *c
	cp.ProcessedIDs = append([]string(nil), c.ProcessedIDs...)
	cp.Failures = append([]Failure(nil), c.Failures...)
	if c.CompletedAt != nil {
		t := *c.CompletedAt
		cp.CompletedAt = &t
	}
	return &cp
}
