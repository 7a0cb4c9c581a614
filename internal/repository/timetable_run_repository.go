package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/jmoiron/sqlx/types"

	"github.com/noah-isme/sma-timetable-api/internal/models"
)

const timetableRunColumns = "id, status, source, seed, requirements, placed, failed, error, audit, requested_by, created_at, finished_at"

// TimetableRunRepository records generation attempts.
type TimetableRunRepository struct {
	db *sqlx.DB
}

// NewTimetableRunRepository constructs the repository.
func NewTimetableRunRepository(db *sqlx.DB) *TimetableRunRepository {
	return &TimetableRunRepository{db: db}
}

func (r *TimetableRunRepository) exec(exec sqlx.ExtContext) sqlx.ExtContext {
	if exec != nil {
		return exec
	}
	return r.db
}

// Create inserts a run, assigning id and creation time when missing.
func (r *TimetableRunRepository) Create(ctx context.Context, exec sqlx.ExtContext, run *models.TimetableRun) error {
	if run.ID == "" {
		run.ID = uuid.NewString()
	}
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now().UTC()
	}
	ensureAudit(run)
	const query = `INSERT INTO timetable_runs (` + timetableRunColumns + `)
VALUES (:id, :status, :source, :seed, :requirements, :placed, :failed, :error, :audit, :requested_by, :created_at, :finished_at)`
	if _, err := sqlx.NamedExecContext(ctx, r.exec(exec), query, run); err != nil {
		return fmt.Errorf("insert timetable run: %w", err)
	}
	return nil
}

// Update overwrites the mutable columns of a run.
func (r *TimetableRunRepository) Update(ctx context.Context, exec sqlx.ExtContext, run *models.TimetableRun) error {
	const query = `UPDATE timetable_runs SET status = :status, seed = :seed, requirements = :requirements, placed = :placed,
failed = :failed, error = :error, audit = :audit, finished_at = :finished_at WHERE id = :id`
	ensureAudit(run)
	res, err := sqlx.NamedExecContext(ctx, r.exec(exec), query, run)
	if err != nil {
		return fmt.Errorf("update timetable run: %w", err)
	}
	if affected, err := res.RowsAffected(); err == nil && affected == 0 {
		return fmt.Errorf("update timetable run %s: %w", run.ID, sql.ErrNoRows)
	}
	return nil
}

// FindByID loads a run. sql.ErrNoRows is wrapped when it does not exist.
func (r *TimetableRunRepository) FindByID(ctx context.Context, id string) (*models.TimetableRun, error) {
	query := "SELECT " + timetableRunColumns + " FROM timetable_runs WHERE id = $1"
	var run models.TimetableRun
	if err := r.db.GetContext(ctx, &run, query, id); err != nil {
		return nil, fmt.Errorf("get timetable run: %w", err)
	}
	return &run, nil
}

// ListRecent returns the newest runs first.
func (r *TimetableRunRepository) ListRecent(ctx context.Context, limit int) ([]models.TimetableRun, error) {
	query := "SELECT " + timetableRunColumns + " FROM timetable_runs ORDER BY created_at DESC LIMIT $1"
	var runs []models.TimetableRun
	if err := r.db.SelectContext(ctx, &runs, query, limit); err != nil {
		return nil, fmt.Errorf("list timetable runs: %w", err)
	}
	return runs, nil
}

// jsonb rejects an empty payload.
func ensureAudit(run *models.TimetableRun) {
	if len(run.Audit) == 0 {
		run.Audit = types.JSONText("{}")
	}
}
