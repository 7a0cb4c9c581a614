package scheduler

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-timetable-api/internal/models"
)

func fullWeek(days []string, lessons int) map[string][]int {
	hours := make(map[string][]int, len(days))
	for _, day := range days {
		for l := 1; l <= lessons; l++ {
			hours[day] = append(hours[day], l)
		}
	}
	return hours
}

func baseInstitution() models.Institution {
	return models.Institution{
		Name:           "Test School",
		WorkingDays:    []string{"Monday", "Tuesday", "Wednesday", "Thursday", "Friday"},
		LessonsPerDay:  4,
		LessonDuration: 70,
		BreakDurations: []int{10, 20, 10},
		StartTime:      "09:00",
		AcademicWeeks:  40,
	}
}

// singleTheoryInput is one group, one theory subject at two weekly lessons, one teacher, one room.
func singleTheoryInput() Input {
	inst := baseInstitution()
	return Input{
		Institution: inst,
		ClassGroups: []models.ClassGroup{
			{ID: "g1", Name: "1A", StudentsCount: 25, SubjectHours: map[string]int{"math": 80}},
		},
		Subjects: []models.Subject{
			{ID: "math", Name: "Math", Type: models.SubjectTheory, TeacherIDs: []string{"t1"}},
		},
		Teachers: []models.Teacher{
			{ID: "t1", FirstName: "Ada", LastName: "Byron", AssignedClassGroups: []string{"g1"}, AvailableHours: fullWeek(inst.WorkingDays, 4)},
		},
		Classrooms: []models.Classroom{
			{ID: "r1", Number: "101", Type: models.ClassroomTheory, Capacity: 30},
		},
	}
}

// campusInput is a small but busy school exercising every room category.
func campusInput() Input {
	inst := baseInstitution()
	inst.LessonsPerDay = 6
	inst.BreakDurations = []int{10, 10, 30, 10, 10}
	week := fullWeek(inst.WorkingDays, 6)
	partial := map[string][]int{"Monday": {1, 2, 3}, "Wednesday": {2, 3, 4, 5}, "Friday": {1, 2}}

	return Input{
		Institution: inst,
		ClassGroups: []models.ClassGroup{
			{ID: "g1", Name: "1A", StudentsCount: 28, HomeClassroomID: "r101", SubjectHours: map[string]int{"math": 160, "chem": 80, "hist": 80, "cs": 80}},
			{ID: "g2", Name: "1B", StudentsCount: 22, HomeClassroomID: "r102", SubjectHours: map[string]int{"math": 160, "bio": 80, "hist": 40, "lit": 120}},
			{ID: "g3", Name: "2A", StudentsCount: 31, SubjectHours: map[string]int{"math": 120, "chem": 120, "lit": 80, "cs": 40}},
		},
		Subjects: []models.Subject{
			{ID: "math", Name: "Math", Type: models.SubjectTheory, TeacherIDs: []string{"t1", "t2"}},
			{ID: "chem", Name: "Chemistry", Type: models.SubjectLab, TeacherIDs: []string{"t3"}},
			{ID: "bio", Name: "Biology", Type: models.SubjectLab, TeacherIDs: []string{"t3"}},
			{ID: "hist", Name: "History", Type: models.SubjectTheory, TeacherIDs: []string{"t4"}},
			{ID: "lit", Name: "Literature", Type: models.SubjectTheory, TeacherIDs: []string{"t4", "t5"}},
			{ID: "cs", Name: "Computing", Type: models.SubjectLab, TeacherIDs: []string{"t5"}},
		},
		Teachers: []models.Teacher{
			{ID: "t1", FirstName: "Ada", AssignedClassGroups: []string{"g1", "g2"}, AvailableHours: week},
			{ID: "t2", FirstName: "Alan", AssignedClassGroups: []string{"g2", "g3"}, AvailableHours: week},
			{ID: "t3", FirstName: "Marie", AssignedClassGroups: []string{"g1", "g2", "g3"}, AvailableHours: week},
			{ID: "t4", FirstName: "Herodotus", HomeClassroomID: "tl1", AssignedClassGroups: []string{"g1", "g2", "g3"}, AvailableHours: week},
			{ID: "t5", FirstName: "Grace", AssignedClassGroups: []string{"g1", "g2", "g3"}, AvailableHours: partial},
		},
		Classrooms: []models.Classroom{
			{ID: "r101", Number: "101", Type: models.ClassroomTheory, Capacity: 30},
			{ID: "r102", Number: "102", Type: models.ClassroomTheory, Capacity: 30},
			{ID: "r103", Number: "103", Type: models.ClassroomTheory, Capacity: 35},
			{ID: "lab-chem", Number: "201", Type: models.ClassroomLab, Capacity: 30, Specialization: []string{"chem"}},
			{ID: "lab-gen", Number: "202", Type: models.ClassroomLab, Capacity: 30, HasComputers: true},
			{ID: "tl1", Number: "301", Type: models.ClassroomTeacherLab, Capacity: 25},
			{ID: "tl2", Number: "302", Type: models.ClassroomTeacherLab, Capacity: 25},
		},
	}
}

// requireHardInvariants checks every rule a committed schedule must satisfy.
func requireHardInvariants(t *testing.T, in Input, schedule []models.ScheduleSlot) {
	t.Helper()

	teachers := map[string]models.Teacher{}
	owners := map[string]string{}
	for _, teacher := range in.Teachers {
		teachers[teacher.ID] = teacher
		if teacher.HomeClassroomID != "" {
			if _, ok := owners[teacher.HomeClassroomID]; !ok {
				owners[teacher.HomeClassroomID] = teacher.ID
			}
		}
	}
	rooms := map[string]models.Classroom{}
	for _, room := range in.Classrooms {
		rooms[room.ID] = room
	}

	type key struct {
		kind, id, day string
		lesson        int
	}
	seen := map[key]bool{}
	perPair := map[[2]string]int{}
	for _, slot := range schedule {
		for _, k := range []key{
			{"group", slot.ClassGroupID, slot.Day, slot.LessonNumber},
			{"teacher", slot.TeacherID, slot.Day, slot.LessonNumber},
			{"room", slot.ClassroomID, slot.Day, slot.LessonNumber},
		} {
			require.False(t, seen[k], "double booking %+v", k)
			seen[k] = true
		}

		teacher, ok := teachers[slot.TeacherID]
		require.True(t, ok)
		require.True(t, teacher.IsAssignedTo(slot.ClassGroupID), "teacher %s not assigned to %s", slot.TeacherID, slot.ClassGroupID)
		require.True(t, teacher.IsAvailable(slot.Day, slot.LessonNumber), "teacher %s unavailable %s/%d", slot.TeacherID, slot.Day, slot.LessonNumber)

		room := rooms[slot.ClassroomID]
		if owner, owned := owners[room.ID]; owned && room.Type == models.ClassroomTeacherLab {
			require.Equal(t, owner, slot.TeacherID, "owned room %s used by %s", room.ID, slot.TeacherID)
		}
		if room.IsSpecialized() {
			require.True(t, room.Permits(slot.SubjectID), "room %s hosts %s", room.ID, slot.SubjectID)
		}
		perPair[[2]string{slot.ClassGroupID, slot.SubjectID}]++
	}

	for _, group := range in.ClassGroups {
		for subjectID, hours := range group.SubjectHours {
			require.LessOrEqual(t, perPair[[2]string{group.ID, subjectID}], weeklyLessons(hours, in.Institution.AcademicWeeks))
		}
	}
}
