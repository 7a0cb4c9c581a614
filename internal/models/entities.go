package models

import "strings"

// SubjectType distinguishes lecture subjects from laboratory subjects.
type SubjectType string

const (
	SubjectTheory SubjectType = "theory"
	SubjectLab    SubjectType = "lab"
)

// ClassroomType enumerates the supported room categories.
type ClassroomType string

const (
	ClassroomTheory     ClassroomType = "theory"
	ClassroomLab        ClassroomType = "lab"
	ClassroomTeacherLab ClassroomType = "teacher_lab"
)

// ClassGroup is a cohort of students sharing one timetable.
type ClassGroup struct {
	ID              string         `json:"id" validate:"required"`
	Name            string         `json:"name" validate:"required"`
	Course          int            `json:"course" validate:"omitempty,min=1"`
	StudentsCount   int            `json:"students_count" validate:"min=0"`
	HomeClassroomID string         `json:"home_classroom_id,omitempty"`
	SubjectHours    map[string]int `json:"subject_hours" validate:"dive,min=0"`
}

// Subject is a course taught to one or more groups.
type Subject struct {
	ID         string      `json:"id" validate:"required"`
	Name       string      `json:"name" validate:"required"`
	Type       SubjectType `json:"type" validate:"required,oneof=theory lab"`
	Course     int         `json:"course" validate:"omitempty,min=1"`
	TeacherIDs []string    `json:"teacher_ids"`
}

// IsLab reports whether the subject needs laboratory space.
func (s Subject) IsLab() bool {
	return s.Type == SubjectLab
}

// Teacher carries eligibility and weekly availability for one instructor.
type Teacher struct {
	ID                  string           `json:"id" validate:"required"`
	FirstName           string           `json:"first_name" validate:"required"`
	LastName            string           `json:"last_name"`
	Subjects            []string         `json:"subjects"`
	HomeClassroomID     string           `json:"home_classroom_id,omitempty"`
	AssignedClassGroups []string         `json:"assigned_class_groups"`
	AvailableHours      map[string][]int `json:"available_hours"`
}

// FullName joins first and last name.
func (t Teacher) FullName() string {
	return strings.TrimSpace(t.FirstName + " " + t.LastName)
}

// IsAssignedTo reports whether the teacher may be scheduled for the group.
func (t Teacher) IsAssignedTo(groupID string) bool {
	for _, id := range t.AssignedClassGroups {
		if id == groupID {
			return true
		}
	}
	return false
}

// IsAvailable reports whether lesson is listed for day. Day keys match case-insensitively.
func (t Teacher) IsAvailable(day string, lesson int) bool {
	for key, lessons := range t.AvailableHours {
		if !strings.EqualFold(key, day) {
			continue
		}
		for _, l := range lessons {
			if l == lesson {
				return true
			}
		}
	}
	return false
}

// TotalAvailableLessons counts every declared (day, lesson) pair.
func (t Teacher) TotalAvailableLessons() int {
	total := 0
	for _, lessons := range t.AvailableHours {
		total += len(lessons)
	}
	return total
}

// Classroom is a bookable room.
type Classroom struct {
	ID             string        `json:"id" validate:"required"`
	Number         string        `json:"number" validate:"required"`
	Floor          int           `json:"floor"`
	Type           ClassroomType `json:"type" validate:"required,oneof=theory lab teacher_lab"`
	Capacity       int           `json:"capacity" validate:"min=0"`
	HasComputers   bool          `json:"has_computers"`
	Specialization []string      `json:"specialization,omitempty"`
}

// IsSpecialized reports whether the room is restricted to a subject set.
func (c Classroom) IsSpecialized() bool {
	return len(c.Specialization) > 0
}

// Permits reports whether the specialization set contains subjectID.
func (c Classroom) Permits(subjectID string) bool {
	for _, id := range c.Specialization {
		if id == subjectID {
			return true
		}
	}
	return false
}
