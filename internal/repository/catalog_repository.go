package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/jmoiron/sqlx/types"
	"github.com/lib/pq"

	"github.com/noah-isme/sma-timetable-api/internal/models"
	"github.com/noah-isme/sma-timetable-api/internal/scheduler"
)

// CatalogRepository reads the entities a generation run needs. The catalog is maintained elsewhere;
// this side only reads.
type CatalogRepository struct {
	db *sqlx.DB
}

// NewCatalogRepository constructs a CatalogRepository.
func NewCatalogRepository(db *sqlx.DB) *CatalogRepository {
	return &CatalogRepository{db: db}
}

type institutionRow struct {
	ID             string         `db:"id"`
	Name           string         `db:"name"`
	WorkingDays    pq.StringArray `db:"working_days"`
	LessonsPerDay  int            `db:"lessons_per_day"`
	LessonDuration int            `db:"lesson_duration"`
	BreakDurations pq.Int64Array  `db:"break_durations"`
	StartTime      string         `db:"start_time"`
	AcademicWeeks  int            `db:"academic_weeks"`
}

type classroomRow struct {
	ID             string         `db:"id"`
	Number         string         `db:"number"`
	Floor          int            `db:"floor"`
	Type           string         `db:"type"`
	Capacity       int            `db:"capacity"`
	HasComputers   bool           `db:"has_computers"`
	Specialization pq.StringArray `db:"specialization"`
}

type classGroupRow struct {
	ID              string         `db:"id"`
	Name            string         `db:"name"`
	Course          int            `db:"course"`
	StudentsCount   int            `db:"students_count"`
	HomeClassroomID sql.NullString `db:"home_classroom_id"`
	SubjectHours    types.JSONText `db:"subject_hours"`
}

type subjectRow struct {
	ID         string         `db:"id"`
	Name       string         `db:"name"`
	Type       string         `db:"type"`
	Course     int            `db:"course"`
	TeacherIDs pq.StringArray `db:"teacher_ids"`
}

type teacherRow struct {
	ID                  string         `db:"id"`
	FirstName           string         `db:"first_name"`
	LastName            string         `db:"last_name"`
	Subjects            pq.StringArray `db:"subjects"`
	HomeClassroomID     sql.NullString `db:"home_classroom_id"`
	AssignedClassGroups pq.StringArray `db:"assigned_class_groups"`
	AvailableHours      types.JSONText `db:"available_hours"`
}

// Institution returns the most recently updated calendar. sql.ErrNoRows is wrapped when none exists.
func (r *CatalogRepository) Institution(ctx context.Context) (*models.Institution, error) {
	const query = `SELECT id, name, working_days, lessons_per_day, lesson_duration, break_durations, start_time, academic_weeks FROM institutions ORDER BY updated_at DESC LIMIT 1`
	var row institutionRow
	if err := r.db.GetContext(ctx, &row, query); err != nil {
		return nil, fmt.Errorf("get institution: %w", err)
	}
	breaks := make([]int, 0, len(row.BreakDurations))
	for _, b := range row.BreakDurations {
		breaks = append(breaks, int(b))
	}
	return &models.Institution{
		ID:             row.ID,
		Name:           row.Name,
		WorkingDays:    []string(row.WorkingDays),
		LessonsPerDay:  row.LessonsPerDay,
		LessonDuration: row.LessonDuration,
		BreakDurations: breaks,
		StartTime:      row.StartTime,
		AcademicWeeks:  row.AcademicWeeks,
	}, nil
}

// Classrooms lists every room ordered by id.
func (r *CatalogRepository) Classrooms(ctx context.Context) ([]models.Classroom, error) {
	const query = `SELECT id, number, floor, type, capacity, has_computers, specialization FROM classrooms ORDER BY id`
	var rows []classroomRow
	if err := r.db.SelectContext(ctx, &rows, query); err != nil {
		return nil, fmt.Errorf("list classrooms: %w", err)
	}
	out := make([]models.Classroom, 0, len(rows))
	for _, row := range rows {
		out = append(out, models.Classroom{
			ID:             row.ID,
			Number:         row.Number,
			Floor:          row.Floor,
			Type:           models.ClassroomType(row.Type),
			Capacity:       row.Capacity,
			HasComputers:   row.HasComputers,
			Specialization: []string(row.Specialization),
		})
	}
	return out, nil
}

// ClassGroups lists every group ordered by id.
func (r *CatalogRepository) ClassGroups(ctx context.Context) ([]models.ClassGroup, error) {
	const query = `SELECT id, name, course, students_count, home_classroom_id, subject_hours FROM class_groups ORDER BY id`
	var rows []classGroupRow
	if err := r.db.SelectContext(ctx, &rows, query); err != nil {
		return nil, fmt.Errorf("list class groups: %w", err)
	}
	out := make([]models.ClassGroup, 0, len(rows))
	for _, row := range rows {
		hours := map[string]int{}
		if err := decodeJSONColumn(row.SubjectHours, &hours); err != nil {
			return nil, fmt.Errorf("decode subject hours for group %s: %w", row.ID, err)
		}
		out = append(out, models.ClassGroup{
			ID:              row.ID,
			Name:            row.Name,
			Course:          row.Course,
			StudentsCount:   row.StudentsCount,
			HomeClassroomID: row.HomeClassroomID.String,
			SubjectHours:    hours,
		})
	}
	return out, nil
}

// Subjects lists every subject ordered by id.
func (r *CatalogRepository) Subjects(ctx context.Context) ([]models.Subject, error) {
	const query = `SELECT id, name, type, course, teacher_ids FROM subjects ORDER BY id`
	var rows []subjectRow
	if err := r.db.SelectContext(ctx, &rows, query); err != nil {
		return nil, fmt.Errorf("list subjects: %w", err)
	}
	out := make([]models.Subject, 0, len(rows))
	for _, row := range rows {
		out = append(out, models.Subject{
			ID:         row.ID,
			Name:       row.Name,
			Type:       models.SubjectType(row.Type),
			Course:     row.Course,
			TeacherIDs: []string(row.TeacherIDs),
		})
	}
	return out, nil
}

// Teachers lists every teacher ordered by id. Ownership of teacher labs follows this order.
func (r *CatalogRepository) Teachers(ctx context.Context) ([]models.Teacher, error) {
	const query = `SELECT id, first_name, last_name, subjects, home_classroom_id, assigned_class_groups, available_hours FROM teachers ORDER BY id`
	var rows []teacherRow
	if err := r.db.SelectContext(ctx, &rows, query); err != nil {
		return nil, fmt.Errorf("list teachers: %w", err)
	}
	out := make([]models.Teacher, 0, len(rows))
	for _, row := range rows {
		hours := map[string][]int{}
		if err := decodeJSONColumn(row.AvailableHours, &hours); err != nil {
			return nil, fmt.Errorf("decode available hours for teacher %s: %w", row.ID, err)
		}
		out = append(out, models.Teacher{
			ID:                  row.ID,
			FirstName:           row.FirstName,
			LastName:            row.LastName,
			Subjects:            []string(row.Subjects),
			HomeClassroomID:     row.HomeClassroomID.String,
			AssignedClassGroups: []string(row.AssignedClassGroups),
			AvailableHours:      hours,
		})
	}
	return out, nil
}

// Snapshot reads the whole catalog as engine input.
func (r *CatalogRepository) Snapshot(ctx context.Context) (scheduler.Input, error) {
	var in scheduler.Input
	inst, err := r.Institution(ctx)
	if err != nil {
		return in, err
	}
	in.Institution = *inst
	if in.Classrooms, err = r.Classrooms(ctx); err != nil {
		return in, err
	}
	if in.ClassGroups, err = r.ClassGroups(ctx); err != nil {
		return in, err
	}
	if in.Subjects, err = r.Subjects(ctx); err != nil {
		return in, err
	}
	if in.Teachers, err = r.Teachers(ctx); err != nil {
		return in, err
	}
	return in, nil
}

func decodeJSONColumn(raw types.JSONText, dest interface{}) error {
	if len(raw) == 0 {
		return nil
	}
	return json.Unmarshal(raw, dest)
}
