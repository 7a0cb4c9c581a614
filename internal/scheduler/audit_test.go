package scheduler

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-timetable-api/internal/models"
)

func slot(id, group, subject, teacher, room, day string, lesson int) models.ScheduleSlot {
	return models.ScheduleSlot{
		ID:           id,
		ClassGroupID: group,
		SubjectID:    subject,
		TeacherID:    teacher,
		ClassroomID:  room,
		Day:          day,
		LessonNumber: lesson,
	}
}

func TestAuditDetectsHardViolations(t *testing.T) {
	in := campusInput()
	schedule := []models.ScheduleSlot{
		slot("a", "g1", "math", "t1", "r101", "Monday", 1),
		slot("b", "g2", "math", "t1", "r102", "Monday", 1),
		slot("c", "g3", "math", "t1", "r103", "Tuesday", 1),
		slot("d", "g1", "hist", "t4", "lab-chem", "Tuesday", 2),
		slot("e", "g2", "lit", "t5", "tl1", "Wednesday", 2),
	}

	report := Audit(in, schedule)

	assert.False(t, report.Sound())
	assert.Equal(t, 5, report.Lessons)

	require.Len(t, report.DoubleBookings, 1)
	assert.Equal(t, "teacher", report.DoubleBookings[0].Resource)
	assert.Equal(t, "t1", report.DoubleBookings[0].ID)
	assert.ElementsMatch(t, []string{"a", "b"}, report.DoubleBookings[0].SlotIDs)

	require.Len(t, report.TeacherGroupViolations, 1)
	assert.Equal(t, "c", report.TeacherGroupViolations[0].SlotID)

	require.Len(t, report.UnauthorizedSpecialized, 1)
	assert.Equal(t, "d", report.UnauthorizedSpecialized[0].SlotID)

	require.Len(t, report.UnauthorizedOwnedRoom, 1)
	assert.Equal(t, "e", report.UnauthorizedOwnedRoom[0].SlotID)
}

func TestAuditDistributionGrades(t *testing.T) {
	in := campusInput()
	schedule := []models.ScheduleSlot{
		slot("1", "g1", "math", "t1", "r101", "Monday", 1),
		slot("2", "g1", "math", "t1", "r101", "Tuesday", 1),
		slot("3", "g1", "hist", "t4", "r101", "Wednesday", 2),
		slot("4", "g1", "hist", "t4", "r103", "Wednesday", 3),
		slot("5", "g2", "lit", "t4", "r102", "Monday", 1),
		slot("6", "g2", "lit", "t4", "r102", "Monday", 4),
		slot("7", "g3", "chem", "t3", "lab-chem", "Friday", 1),
		slot("8", "g3", "chem", "t3", "lab-chem", "Friday", 2),
		slot("9", "g3", "chem", "t3", "lab-chem", "Friday", 3),
	}

	report := Audit(in, schedule)

	assert.True(t, report.Sound())
	assert.Equal(t, DistributionTally{Perfect: 1, Acceptable: 1, Problematic: 1, Overloaded: 1}, report.Distribution)
	assert.Equal(t, []PairDistribution{
		{GroupID: "g1", SubjectID: "hist", Quality: QualityAcceptable},
		{GroupID: "g1", SubjectID: "math", Quality: QualityPerfect},
		{GroupID: "g2", SubjectID: "lit", Quality: QualityProblematic},
		{GroupID: "g3", SubjectID: "chem", Quality: QualityOverloaded},
	}, report.Pairs)

	require.Len(t, report.DayImbalances, 1)
	assert.Equal(t, "g3", report.DayImbalances[0].GroupID)
	assert.Equal(t, "Friday", report.DayImbalances[0].BusiestOn)
	assert.Equal(t, "Monday", report.DayImbalances[0].QuietOn)
	assert.Equal(t, 3, report.DayImbalances[0].Spread)

	// 5 of 6 slots for groups with a home room are in it
	assert.Equal(t, 83.3, report.HomeRoomUtilization)

	require.Len(t, report.SpecializedRoomUsage, 1)
	usage := report.SpecializedRoomUsage[0]
	assert.Equal(t, "lab-chem", usage.ClassroomID)
	assert.Equal(t, 3, usage.Occupied)
	assert.Equal(t, 30, usage.Capacity)
	assert.Equal(t, 10.0, usage.Percent)
}

func TestAuditIsIdempotent(t *testing.T) {
	in := campusInput()
	result := Generate(in, WithSeed(17))
	require.True(t, result.Success)

	first := Audit(in, result.Schedule)
	second := Audit(in, result.Schedule)

	assert.Equal(t, first, second)
	assert.Equal(t, *result.Audit, first)
}

func TestAuditEmptySchedule(t *testing.T) {
	report := Audit(campusInput(), nil)

	assert.True(t, report.Sound())
	assert.Zero(t, report.Lessons)
	assert.Empty(t, report.DayImbalances)
	assert.Zero(t, report.HomeRoomUtilization)
}

func TestGradeDay(t *testing.T) {
	assert.Equal(t, QualityPerfect, gradeDay(nil))
	assert.Equal(t, QualityPerfect, gradeDay([]int{3}))
	assert.Equal(t, QualityAcceptable, gradeDay([]int{3, 4}))
	assert.Equal(t, QualityProblematic, gradeDay([]int{1, 4}))
	assert.Equal(t, QualityOverloaded, gradeDay([]int{1, 2, 3}))
}

func TestPercentRoundsToOneDecimal(t *testing.T) {
	assert.Equal(t, 0.0, percent(1, 0))
	assert.Equal(t, 33.3, percent(1, 3))
	assert.Equal(t, 66.7, percent(2, 3))
	assert.Equal(t, 100.0, percent(4, 4))
}
