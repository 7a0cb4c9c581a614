package repository

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-timetable-api/internal/models"
)

func newRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func expectCatalog(mock sqlmock.Sqlmock) {
	mock.ExpectQuery(regexp.QuoteMeta("FROM institutions ORDER BY updated_at DESC LIMIT 1")).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "working_days", "lessons_per_day", "lesson_duration", "break_durations", "start_time", "academic_weeks"}).
			AddRow("inst-1", "Riverside", "{Monday,Tuesday}", 4, 70, "{10,20,10}", "09:00", 40))
	mock.ExpectQuery(regexp.QuoteMeta("FROM classrooms ORDER BY id")).
		WillReturnRows(sqlmock.NewRows([]string{"id", "number", "floor", "type", "capacity", "has_computers", "specialization"}).
			AddRow("lab-1", "201", 2, "lab", 24, true, "{chem}").
			AddRow("r1", "101", 1, "theory", 30, false, "{}"))
	mock.ExpectQuery(regexp.QuoteMeta("FROM class_groups ORDER BY id")).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "course", "students_count", "home_classroom_id", "subject_hours"}).
			AddRow("g1", "1A", 1, 25, "r1", `{"math": 80, "chem": 40}`).
			AddRow("g2", "1B", 1, 20, nil, `{}`))
	mock.ExpectQuery(regexp.QuoteMeta("FROM subjects ORDER BY id")).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "type", "course", "teacher_ids"}).
			AddRow("chem", "Chemistry", "lab", 1, "{t1}").
			AddRow("math", "Math", "theory", 1, "{t1,t2}"))
	mock.ExpectQuery(regexp.QuoteMeta("FROM teachers ORDER BY id")).
		WillReturnRows(sqlmock.NewRows([]string{"id", "first_name", "last_name", "subjects", "home_classroom_id", "assigned_class_groups", "available_hours"}).
			AddRow("t1", "Ada", "Byron", "{math,chem}", nil, "{g1,g2}", `{"Monday": [1, 2], "Tuesday": [3]}`).
			AddRow("t2", "Alan", "Turing", "{math}", "r1", "{g2}", nil))
}

func TestCatalogRepositorySnapshot(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewCatalogRepository(db)
	expectCatalog(mock)

	in, err := repo.Snapshot(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{"Monday", "Tuesday"}, in.Institution.WorkingDays)
	assert.Equal(t, []int{10, 20, 10}, in.Institution.BreakDurations)
	require.Len(t, in.Classrooms, 2)
	assert.Equal(t, models.ClassroomLab, in.Classrooms[0].Type)
	assert.Equal(t, []string{"chem"}, in.Classrooms[0].Specialization)
	assert.Empty(t, in.Classrooms[1].Specialization)
	require.Len(t, in.ClassGroups, 2)
	assert.Equal(t, map[string]int{"math": 80, "chem": 40}, in.ClassGroups[0].SubjectHours)
	assert.Equal(t, "r1", in.ClassGroups[0].HomeClassroomID)
	assert.Empty(t, in.ClassGroups[1].HomeClassroomID)
	assert.Equal(t, []string{"t1", "t2"}, in.Subjects[1].TeacherIDs)
	require.Len(t, in.Teachers, 2)
	assert.Equal(t, []int{1, 2}, in.Teachers[0].AvailableHours["Monday"])
	assert.Empty(t, in.Teachers[1].AvailableHours)
	assert.Equal(t, "r1", in.Teachers[1].HomeClassroomID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCatalogRepositoryMissingInstitution(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewCatalogRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("FROM institutions")).WillReturnError(sql.ErrNoRows)

	_, err := repo.Snapshot(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, sql.ErrNoRows))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCatalogRepositoryRejectsBadJSON(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewCatalogRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("FROM class_groups ORDER BY id")).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "course", "students_count", "home_classroom_id", "subject_hours"}).
			AddRow("g1", "1A", 1, 25, nil, `{"math": "lots"}`))

	_, err := repo.ClassGroups(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "group g1")
}
