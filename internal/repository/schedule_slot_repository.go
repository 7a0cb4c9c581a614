package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/sma-timetable-api/internal/models"
)

const scheduleSlotColumns = "id, run_id, day, lesson_number, class_group_id, subject_id, teacher_id, classroom_id, start_time, end_time, created_at"

// ScheduleSlotRepository stores the committed weekly timetable. There is one active timetable;
// committing a new one replaces every row.
type ScheduleSlotRepository struct {
	db *sqlx.DB
}

// NewScheduleSlotRepository builds the repository.
func NewScheduleSlotRepository(db *sqlx.DB) *ScheduleSlotRepository {
	return &ScheduleSlotRepository{db: db}
}

func (r *ScheduleSlotRepository) exec(exec sqlx.ExtContext) sqlx.ExtContext {
	if exec != nil {
		return exec
	}
	return r.db
}

// ReplaceAll deletes the stored timetable and inserts slots. Callers pass a transaction so the
// swap is atomic.
func (r *ScheduleSlotRepository) ReplaceAll(ctx context.Context, exec sqlx.ExtContext, slots []models.ScheduleSlot) error {
	target := r.exec(exec)
	if _, err := target.ExecContext(ctx, "DELETE FROM schedule_slots"); err != nil {
		return fmt.Errorf("clear schedule slots: %w", err)
	}
	now := time.Now().UTC()

	const query = `INSERT INTO schedule_slots (` + scheduleSlotColumns + `)
VALUES (:id, :run_id, :day, :lesson_number, :class_group_id, :subject_id, :teacher_id, :classroom_id, :start_time, :end_time, :created_at)`

	for i := range slots {
		slot := &slots[i]
		if slot.ID == "" {
			slot.ID = uuid.NewString()
		}
		if slot.CreatedAt.IsZero() {
			slot.CreatedAt = now
		}
		if _, err := sqlx.NamedExecContext(ctx, target, query, slot); err != nil {
			return fmt.Errorf("insert schedule slot: %w", err)
		}
	}
	return nil
}

// List returns stored slots matching filter, ordered by group, weekday and lesson.
func (r *ScheduleSlotRepository) List(ctx context.Context, filter models.ScheduleFilter) ([]models.ScheduleSlot, error) {
	var (
		conditions []string
		args       []interface{}
	)
	add := func(column, value string) {
		if value == "" {
			return
		}
		args = append(args, value)
		conditions = append(conditions, fmt.Sprintf("%s = $%d", column, len(args)))
	}
	add("class_group_id", filter.ClassGroupID)
	add("teacher_id", filter.TeacherID)
	add("classroom_id", filter.ClassroomID)
	add("day", filter.Day)

	query := "SELECT " + scheduleSlotColumns + " FROM schedule_slots WHERE 1=1"
	if len(conditions) > 0 {
		query += " AND " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY class_group_id ASC, " + dayOrderExpr + " ASC, lesson_number ASC"

	var slots []models.ScheduleSlot
	if err := r.db.SelectContext(ctx, &slots, query, args...); err != nil {
		return nil, fmt.Errorf("list schedule slots: %w", err)
	}
	return slots, nil
}

// DeleteAll clears the stored timetable and reports how many slots were removed.
func (r *ScheduleSlotRepository) DeleteAll(ctx context.Context) (int64, error) {
	res, err := r.db.ExecContext(ctx, "DELETE FROM schedule_slots")
	if err != nil {
		return 0, fmt.Errorf("delete schedule slots: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("delete schedule slots: %w", err)
	}
	return affected, nil
}

const dayOrderExpr = "array_position(ARRAY['Monday','Tuesday','Wednesday','Thursday','Friday','Saturday','Sunday'], day)"
