package models

import "strings"

// CanonicalWeek is the fixed ordering working days are projected onto.
var CanonicalWeek = []string{"Monday", "Tuesday", "Wednesday", "Thursday", "Friday", "Saturday", "Sunday"}

// Institution describes the weekly calendar shape lessons are placed into.
type Institution struct {
	ID             string   `json:"id"`
	Name           string   `json:"name"`
	WorkingDays    []string `json:"working_days" validate:"required,min=1,dive,required"`
	LessonsPerDay  int      `json:"lessons_per_day" validate:"required,min=1,max=16"`
	LessonDuration int      `json:"lesson_duration" validate:"required,min=1"`
	BreakDurations []int    `json:"break_durations" validate:"omitempty,dive,min=0"`
	StartTime      string   `json:"start_time" validate:"required"`
	AcademicWeeks  int      `json:"academic_weeks" validate:"required,min=1"`
}

// DefaultInstitution mirrors the calendar a freshly installed school starts with.
func DefaultInstitution() Institution {
	return Institution{
		Name:           "Institution",
		WorkingDays:    []string{"Monday", "Tuesday", "Wednesday", "Thursday", "Friday"},
		LessonsPerDay:  4,
		LessonDuration: 70,
		BreakDurations: []int{10, 20, 10},
		StartTime:      "09:00",
		AcademicWeeks:  40,
	}
}

// OrderedWorkingDays returns the configured days in canonical week order.
// Unknown names are dropped and duplicates collapse.
func (i Institution) OrderedWorkingDays() []string {
	configured := make(map[string]struct{}, len(i.WorkingDays))
	for _, day := range i.WorkingDays {
		if canonical, ok := CanonicalDay(day); ok {
			configured[canonical] = struct{}{}
		}
	}
	days := make([]string, 0, len(configured))
	for _, day := range CanonicalWeek {
		if _, ok := configured[day]; ok {
			days = append(days, day)
		}
	}
	return days
}

// CanonicalDay maps a day name onto its CanonicalWeek spelling, ignoring case.
func CanonicalDay(name string) (string, bool) {
	trimmed := strings.TrimSpace(name)
	for _, day := range CanonicalWeek {
		if strings.EqualFold(day, trimmed) {
			return day, true
		}
	}
	return "", false
}
