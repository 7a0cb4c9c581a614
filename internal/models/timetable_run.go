package models

import (
	"time"

	"github.com/jmoiron/sqlx/types"
)

// RunStatus tracks a generation attempt through its lifecycle.
type RunStatus string

const (
	RunQueued    RunStatus = "QUEUED"
	RunRunning   RunStatus = "RUNNING"
	RunSucceeded RunStatus = "SUCCEEDED"
	RunFailed    RunStatus = "FAILED"
)

// RunSource records where the generation input came from.
type RunSource string

const (
	RunSourceDatabase RunSource = "DATABASE"
	RunSourcePreview  RunSource = "PREVIEW"
)

// TimetableRun is the persisted record of one generation attempt.
type TimetableRun struct {
	ID           string         `db:"id" json:"id"`
	Status       RunStatus      `db:"status" json:"status"`
	Source       RunSource      `db:"source" json:"source"`
	Seed         int64          `db:"seed" json:"seed"`
	Requirements int            `db:"requirements" json:"requirements"`
	Placed       int            `db:"placed" json:"placed"`
	Failed       int            `db:"failed" json:"failed"`
	Error        *string        `db:"error" json:"error,omitempty"`
	Audit        types.JSONText `db:"audit" json:"audit,omitempty"`
	RequestedBy  *string        `db:"requested_by" json:"requested_by,omitempty"`
	CreatedAt    time.Time      `db:"created_at" json:"created_at"`
	FinishedAt   *time.Time     `db:"finished_at" json:"finished_at,omitempty"`
}

// Terminal reports whether the run will not change status again.
func (r TimetableRun) Terminal() bool {
	return r.Status == RunSucceeded || r.Status == RunFailed
}
