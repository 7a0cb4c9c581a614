package models

import "time"

// ScheduleSlot is one committed lesson in the weekly timetable.
type ScheduleSlot struct {
	ID           string    `db:"id" json:"id"`
	RunID        *string   `db:"run_id" json:"run_id,omitempty"`
	Day          string    `db:"day" json:"day"`
	LessonNumber int       `db:"lesson_number" json:"lesson_number"`
	ClassGroupID string    `db:"class_group_id" json:"class_group_id"`
	SubjectID    string    `db:"subject_id" json:"subject_id"`
	TeacherID    string    `db:"teacher_id" json:"teacher_id"`
	ClassroomID  string    `db:"classroom_id" json:"classroom_id"`
	StartTime    string    `db:"start_time" json:"start_time"`
	EndTime      string    `db:"end_time" json:"end_time"`
	CreatedAt    time.Time `db:"created_at" json:"created_at,omitempty"`
}

// ScheduleFilter narrows stored slot listings. Empty fields match everything.
type ScheduleFilter struct {
	ClassGroupID string
	TeacherID    string
	ClassroomID  string
	Day          string
}
