package models

import (
	"database/sql/driver"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// ReindexJobStatus represents the status of a reindex job
type ReindexJobStatus string

const (
	JobStatusPending    ReindexJobStatus = "pending"
	JobStatusInProgress ReindexJobStatus = "in_progress"
	JobStatusCompleted  ReindexJobStatus = "completed"
	JobStatusFailed     ReindexJobStatus = "failed"
)

// ReindexStep tracks one collection of a reindex run
type ReindexStep struct {
	Collection Collection `json:"collection"`
	Status     string     `json:"status"` // "pending", "in_progress", "completed", "failed"
	Entities   int        `json:"entities"`
	Chunks     int        `json:"chunks"`
	Failures   int        `json:"failures"`
}

// ReindexSteps represents the per-collection steps of a job
type ReindexSteps []ReindexStep

// Value implements driver.Valuer for JSONB
func (s ReindexSteps) Value() (driver.Value, error) {
	return json.Marshal(s)
}

// Scan implements sql.Scanner for JSONB
func (s *ReindexSteps) Scan(value interface{}) error {
	if value == nil {
		*s = make(ReindexSteps, 0)
		return nil
	}

	var bytes []byte
	switch v := value.(type) {
	case []byte:
		bytes = v
	case string:
		bytes = []byte(v)
	default:
		*s = make(ReindexSteps, 0)
		return nil
	}

	if len(bytes) == 0 {
		*s = make(ReindexSteps, 0)
		return nil
	}

	return json.Unmarshal(bytes, s)
}

// ReindexJob represents one full pipeline run triggered by an admin or the CLI
type ReindexJob struct {
	ID           uuid.UUID        `json:"id"`
	Status       ReindexJobStatus `json:"status"`
	Collections  []Collection     `json:"collections"`
	Steps        ReindexSteps     `json:"steps"`
	Entities     int              `json:"entities"`
	Chunks       int              `json:"chunks"`
	Failures     int              `json:"failures"`
	ErrorMessage *string          `json:"error_message,omitempty"`
	CreatedAt    time.Time        `json:"created_at"`
	UpdatedAt    time.Time        `json:"updated_at"`
	CompletedAt  *time.Time       `json:"completed_at,omitempty"`
}
