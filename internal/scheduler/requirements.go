package scheduler

import (
	"errors"
	"fmt"
	"sort"

	"github.com/noah-isme/sma-timetable-api/internal/models"
)

var (
	// ErrInvalidInput marks runs rejected before any placement was attempted.
	ErrInvalidInput = errors.New("invalid scheduling input")
	// ErrNothingScheduled marks runs where every requirement failed placement.
	ErrNothingScheduled = errors.New("no lessons could be scheduled; check teacher availability and classroom assignments")
	// ErrUnexpected wraps panics recovered from a stage.
	ErrUnexpected = errors.New("unexpected generation error")
)

// Requirement is one weekly lesson occurrence still to be placed.
type Requirement struct {
	ID          string
	Group       *models.ClassGroup
	Subject     *models.Subject
	SubjectType models.SubjectType
	TeacherIDs  []string
	Priority    int
	LessonIndex int
}

// SkippedPair is a (group, subject) pairing dropped because no teacher may teach it to the group.
type SkippedPair struct {
	GroupID   string `json:"group_id"`
	SubjectID string `json:"subject_id"`
	Reason    string `json:"reason"`
}

func validateInput(in Input) error {
	switch {
	case len(in.ClassGroups) == 0:
		return invalid("no class groups configured")
	case len(in.Subjects) == 0:
		return invalid("no subjects configured")
	case len(in.Teachers) == 0:
		return invalid("no teachers configured")
	case len(in.Classrooms) == 0:
		return invalid("no classrooms configured")
	}

	withHours := false
	for _, group := range in.ClassGroups {
		if len(group.SubjectHours) > 0 {
			withHours = true
			break
		}
	}
	if !withHours {
		return invalid("no subjects assigned to any groups")
	}

	withTeachers := false
	for _, subject := range in.Subjects {
		if len(subject.TeacherIDs) > 0 {
			withTeachers = true
			break
		}
	}
	if !withTeachers {
		return invalid("no teachers assigned to any subjects")
	}

	inst := in.Institution
	switch {
	case len(inst.OrderedWorkingDays()) == 0:
		return invalid("institution has no recognised working days")
	case inst.LessonsPerDay <= 0:
		return invalid("institution lessons per day must be positive")
	case inst.AcademicWeeks <= 0:
		return invalid("institution academic weeks must be positive")
	}
	return nil
}

func invalid(reason string) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, reason)
}

func weeklyLessons(yearlyHours, academicWeeks int) int {
	if yearlyHours <= 0 || academicWeeks <= 0 {
		return 0
	}
	return (yearlyHours + academicWeeks - 1) / academicWeeks
}

// deriveRequirements expands every (group, subject, hours) entry into weekly requirements.
// Pairs without an eligible teacher are skipped and reported; unknown subject ids are an error.
func deriveRequirements(gc *GenerationContext) ([]Requirement, []SkippedPair, error) {
	var (
		requirements []Requirement
		skipped      []SkippedPair
	)
	for gi := range gc.Input.ClassGroups {
		group := &gc.Input.ClassGroups[gi]

		subjectIDs := make([]string, 0, len(group.SubjectHours))
		for id := range group.SubjectHours {
			subjectIDs = append(subjectIDs, id)
		}
		sort.Strings(subjectIDs)

		for _, subjectID := range subjectIDs {
			yearly := group.SubjectHours[subjectID]
			if yearly <= 0 {
				continue
			}
			subject := gc.subjects[subjectID]
			if subject == nil {
				return nil, nil, invalid(fmt.Sprintf("group %s references unknown subject %s", group.ID, subjectID))
			}

			eligible := eligibleTeachers(gc, subject, group.ID)
			if len(eligible) == 0 {
				skip := SkippedPair{GroupID: group.ID, SubjectID: subject.ID, Reason: "no qualified teacher is assigned to the group"}
				skipped = append(skipped, skip)
				gc.emit(EventRequirementSkipped, LevelWarn,
					fmt.Sprintf("skipping %s for %s: no qualified teacher is assigned to the group", subject.Name, group.Name),
					map[string]any{"group_id": group.ID, "subject_id": subject.ID})
				continue
			}

			weekly := weeklyLessons(yearly, gc.Input.Institution.AcademicWeeks)
			priority := requirementPriority(gc, subject, group)
			for i := 0; i < weekly; i++ {
				requirements = append(requirements, Requirement{
					ID:          fmt.Sprintf("%s-%s-%d", group.ID, subject.ID, i),
					Group:       group,
					Subject:     subject,
					SubjectType: subject.Type,
					TeacherIDs:  eligible,
					Priority:    priority,
					LessonIndex: i,
				})
			}
		}
	}
	gc.emit(EventRequirementsDerived, LevelInfo,
		fmt.Sprintf("derived %d lesson requirements", len(requirements)),
		map[string]any{"requirements": len(requirements), "skipped_pairs": len(skipped)})
	return requirements, skipped, nil
}

// eligibleTeachers intersects the subject's teachers with those assigned to the group.
// Ids that do not resolve to a known teacher are dropped.
func eligibleTeachers(gc *GenerationContext, subject *models.Subject, groupID string) []string {
	var out []string
	seen := make(map[string]bool, len(subject.TeacherIDs))
	for _, id := range subject.TeacherIDs {
		if seen[id] {
			continue
		}
		seen[id] = true
		teacher := gc.teachers[id]
		if teacher != nil && teacher.IsAssignedTo(groupID) {
			out = append(out, id)
		}
	}
	return out
}
