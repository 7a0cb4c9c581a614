package scheduler

import (
	"fmt"
	"math"
	"sort"

	"github.com/noah-isme/sma-timetable-api/internal/models"
)

// DistributionQuality grades how one (group, subject) pair is spread over the week.
type DistributionQuality string

const (
	QualityPerfect     DistributionQuality = "perfect"
	QualityAcceptable  DistributionQuality = "acceptable"
	QualityProblematic DistributionQuality = "problematic"
	QualityOverloaded  DistributionQuality = "overloaded"
)

var qualityRank = map[DistributionQuality]int{
	QualityPerfect:     0,
	QualityAcceptable:  1,
	QualityProblematic: 2,
	QualityOverloaded:  3,
}

// DayImbalance flags a group whose busiest and quietest days differ by more than two lessons.
type DayImbalance struct {
	GroupID   string         `json:"group_id"`
	Counts    map[string]int `json:"counts"`
	BusiestOn string         `json:"busiest_on"`
	QuietOn   string         `json:"quiet_on"`
	Spread    int            `json:"spread"`
}

// PairDistribution is the graded spread of one (group, subject) pair.
type PairDistribution struct {
	GroupID   string              `json:"group_id"`
	SubjectID string              `json:"subject_id"`
	Quality   DistributionQuality `json:"quality"`
}

// DistributionTally counts pairs per quality grade.
type DistributionTally struct {
	Perfect     int `json:"perfect"`
	Acceptable  int `json:"acceptable"`
	Problematic int `json:"problematic"`
	Overloaded  int `json:"overloaded"`
}

// SlotViolation points at a slot breaking a hard rule.
type SlotViolation struct {
	SlotID string `json:"slot_id"`
	Day    string `json:"day"`
	Lesson int    `json:"lesson_number"`
	Detail string `json:"detail"`
}

// DoubleBooking is a resource used twice at the same time.
type DoubleBooking struct {
	Resource string   `json:"resource"`
	ID       string   `json:"id"`
	Day      string   `json:"day"`
	Lesson   int      `json:"lesson_number"`
	SlotIDs  []string `json:"slot_ids"`
}

// RoomUsage is the occupancy of a specialized room across the week.
type RoomUsage struct {
	ClassroomID string  `json:"classroom_id"`
	Number      string  `json:"number"`
	Occupied    int     `json:"occupied"`
	Capacity    int     `json:"capacity"`
	Percent     float64 `json:"percent"`
}

// AuditReport is the read-only analysis of a committed schedule.
type AuditReport struct {
	Lessons                 int                `json:"lessons"`
	DayImbalances           []DayImbalance     `json:"day_imbalances,omitempty"`
	Distribution            DistributionTally  `json:"distribution"`
	Pairs                   []PairDistribution `json:"pairs,omitempty"`
	TeacherGroupViolations  []SlotViolation    `json:"teacher_group_violations,omitempty"`
	DoubleBookings          []DoubleBooking    `json:"double_bookings,omitempty"`
	HomeRoomUtilization     float64            `json:"home_room_utilization"`
	SpecializedRoomUsage    []RoomUsage        `json:"specialized_room_usage,omitempty"`
	UnauthorizedSpecialized []SlotViolation    `json:"unauthorized_specialized,omitempty"`
	UnauthorizedOwnedRoom   []SlotViolation    `json:"unauthorized_owned_room,omitempty"`
}

// Sound reports whether the schedule breaks no hard rule.
func (r AuditReport) Sound() bool {
	return len(r.TeacherGroupViolations) == 0 &&
		len(r.DoubleBookings) == 0 &&
		len(r.UnauthorizedSpecialized) == 0 &&
		len(r.UnauthorizedOwnedRoom) == 0
}

// Audit analyses a schedule against its input. It is a pure function of its arguments.
func Audit(in Input, schedule []models.ScheduleSlot) AuditReport {
	report := AuditReport{Lessons: len(schedule)}
	days := in.Institution.OrderedWorkingDays()

	teachers := make(map[string]*models.Teacher, len(in.Teachers))
	owners := make(map[string]string)
	for i := range in.Teachers {
		t := &in.Teachers[i]
		teachers[t.ID] = t
		if t.HomeClassroomID != "" {
			if _, taken := owners[t.HomeClassroomID]; !taken {
				owners[t.HomeClassroomID] = t.ID
			}
		}
	}
	rooms := make(map[string]*models.Classroom, len(in.Classrooms))
	for i := range in.Classrooms {
		rooms[in.Classrooms[i].ID] = &in.Classrooms[i]
	}
	groups := make(map[string]*models.ClassGroup, len(in.ClassGroups))
	for i := range in.ClassGroups {
		groups[in.ClassGroups[i].ID] = &in.ClassGroups[i]
	}

	ordered := append([]models.ScheduleSlot(nil), schedule...)
	sort.SliceStable(ordered, func(i, j int) bool {
		return slotLess(ordered[i], ordered[j])
	})

	report.DayImbalances = auditDayBalance(in.ClassGroups, days, ordered)
	report.Pairs, report.Distribution = auditDistribution(ordered)
	report.DoubleBookings = auditDoubleBookings(ordered)

	homeSlots, homeHits := 0, 0
	for _, slot := range ordered {
		teacher := teachers[slot.TeacherID]
		switch {
		case teacher == nil:
			report.TeacherGroupViolations = append(report.TeacherGroupViolations, violation(slot, "teacher "+slot.TeacherID+" does not exist"))
		case !teacher.IsAssignedTo(slot.ClassGroupID):
			report.TeacherGroupViolations = append(report.TeacherGroupViolations, violation(slot,
				fmt.Sprintf("teacher %s is not assigned to group %s", slot.TeacherID, slot.ClassGroupID)))
		}

		if group := groups[slot.ClassGroupID]; group != nil && group.HomeClassroomID != "" {
			homeSlots++
			if slot.ClassroomID == group.HomeClassroomID {
				homeHits++
			}
		}

		room := rooms[slot.ClassroomID]
		if room == nil {
			continue
		}
		if room.IsSpecialized() && !room.Permits(slot.SubjectID) {
			report.UnauthorizedSpecialized = append(report.UnauthorizedSpecialized, violation(slot,
				fmt.Sprintf("subject %s is not permitted in room %s", slot.SubjectID, room.Number)))
		}
		if owner, ok := owners[room.ID]; ok && room.Type == models.ClassroomTeacherLab && owner != slot.TeacherID {
			report.UnauthorizedOwnedRoom = append(report.UnauthorizedOwnedRoom, violation(slot,
				fmt.Sprintf("room %s is owned by %s", room.Number, owner)))
		}
	}
	report.HomeRoomUtilization = percent(homeHits, homeSlots)

	weekly := len(days) * in.Institution.LessonsPerDay
	occupied := make(map[string]int)
	for _, slot := range ordered {
		occupied[slot.ClassroomID]++
	}
	for _, room := range in.Classrooms {
		if !room.IsSpecialized() {
			continue
		}
		report.SpecializedRoomUsage = append(report.SpecializedRoomUsage, RoomUsage{
			ClassroomID: room.ID,
			Number:      room.Number,
			Occupied:    occupied[room.ID],
			Capacity:    weekly,
			Percent:     percent(occupied[room.ID], weekly),
		})
	}
	return report
}

func auditDayBalance(groups []models.ClassGroup, days []string, schedule []models.ScheduleSlot) []DayImbalance {
	if len(days) < 2 {
		return nil
	}
	counts := make(map[string]map[string]int)
	for _, slot := range schedule {
		if counts[slot.ClassGroupID] == nil {
			counts[slot.ClassGroupID] = make(map[string]int)
		}
		counts[slot.ClassGroupID][slot.Day]++
	}

	var out []DayImbalance
	for _, group := range groups {
		perDay := counts[group.ID]
		if len(perDay) == 0 {
			continue
		}
		snapshot := make(map[string]int, len(days))
		busiest, quiet := days[0], days[0]
		for _, day := range days {
			n := perDay[day]
			snapshot[day] = n
			if n > perDay[busiest] {
				busiest = day
			}
			if n < perDay[quiet] {
				quiet = day
			}
		}
		if spread := perDay[busiest] - perDay[quiet]; spread > 2 {
			out = append(out, DayImbalance{GroupID: group.ID, Counts: snapshot, BusiestOn: busiest, QuietOn: quiet, Spread: spread})
		}
	}
	return out
}

func auditDistribution(schedule []models.ScheduleSlot) ([]PairDistribution, DistributionTally) {
	type pairKey struct{ group, subject string }
	lessons := make(map[pairKey]map[string][]int)
	var order []pairKey
	for _, slot := range schedule {
		key := pairKey{slot.ClassGroupID, slot.SubjectID}
		if lessons[key] == nil {
			lessons[key] = make(map[string][]int)
			order = append(order, key)
		}
		lessons[key][slot.Day] = insertSorted(lessons[key][slot.Day], slot.LessonNumber)
	}
	sort.Slice(order, func(i, j int) bool {
		if order[i].group != order[j].group {
			return order[i].group < order[j].group
		}
		return order[i].subject < order[j].subject
	})

	var (
		pairs []PairDistribution
		tally DistributionTally
	)
	for _, key := range order {
		quality := QualityPerfect
		for _, dayLessons := range lessons[key] {
			if q := gradeDay(dayLessons); qualityRank[q] > qualityRank[quality] {
				quality = q
			}
		}
		switch quality {
		case QualityPerfect:
			tally.Perfect++
		case QualityAcceptable:
			tally.Acceptable++
		case QualityProblematic:
			tally.Problematic++
		case QualityOverloaded:
			tally.Overloaded++
		}
		pairs = append(pairs, PairDistribution{GroupID: key.group, SubjectID: key.subject, Quality: quality})
	}
	return pairs, tally
}

func gradeDay(sorted []int) DistributionQuality {
	switch {
	case len(sorted) <= 1:
		return QualityPerfect
	case len(sorted) == 2 && sorted[1]-sorted[0] == 1:
		return QualityAcceptable
	case len(sorted) == 2:
		return QualityProblematic
	default:
		return QualityOverloaded
	}
}

func auditDoubleBookings(schedule []models.ScheduleSlot) []DoubleBooking {
	type key struct {
		resource, id, day string
		lesson            int
	}
	seen := make(map[key][]string)
	var order []key
	track := func(k key, slotID string) {
		if _, ok := seen[k]; !ok {
			order = append(order, k)
		}
		seen[k] = append(seen[k], slotID)
	}
	for _, slot := range schedule {
		track(key{"group", slot.ClassGroupID, slot.Day, slot.LessonNumber}, slot.ID)
		track(key{"teacher", slot.TeacherID, slot.Day, slot.LessonNumber}, slot.ID)
		track(key{"classroom", slot.ClassroomID, slot.Day, slot.LessonNumber}, slot.ID)
	}

	var out []DoubleBooking
	for _, k := range order {
		if ids := seen[k]; len(ids) > 1 {
			out = append(out, DoubleBooking{Resource: k.resource, ID: k.id, Day: k.day, Lesson: k.lesson, SlotIDs: ids})
		}
	}
	return out
}

func violation(slot models.ScheduleSlot, detail string) SlotViolation {
	return SlotViolation{SlotID: slot.ID, Day: slot.Day, Lesson: slot.LessonNumber, Detail: detail}
}

func percent(part, whole int) float64 {
	if whole == 0 {
		return 0
	}
	return math.Round(float64(part)/float64(whole)*1000) / 10
}

func slotLess(a, b models.ScheduleSlot) bool {
	if a.ClassGroupID != b.ClassGroupID {
		return a.ClassGroupID < b.ClassGroupID
	}
	if a.Day != b.Day {
		return dayOrder(a.Day) < dayOrder(b.Day)
	}
	if a.LessonNumber != b.LessonNumber {
		return a.LessonNumber < b.LessonNumber
	}
	return a.ID < b.ID
}

func dayOrder(day string) int {
	for i, d := range models.CanonicalWeek {
		if d == day {
			return i
		}
	}
	return len(models.CanonicalWeek)
}

func (gc *GenerationContext) reportAudit(report AuditReport) {
	for _, imbalance := range report.DayImbalances {
		gc.emit(EventAuditFinding, LevelWarn,
			fmt.Sprintf("group %s has uneven days: %d lessons on %s but %d on %s",
				imbalance.GroupID, imbalance.Counts[imbalance.BusiestOn], imbalance.BusiestOn,
				imbalance.Counts[imbalance.QuietOn], imbalance.QuietOn),
			map[string]any{"group_id": imbalance.GroupID, "spread": imbalance.Spread})
	}

	d := report.Distribution
	gc.emit(EventAuditFinding, LevelInfo,
		fmt.Sprintf("subject distribution: %d perfect, %d acceptable, %d problematic, %d overloaded",
			d.Perfect, d.Acceptable, d.Problematic, d.Overloaded),
		map[string]any{"perfect": d.Perfect, "acceptable": d.Acceptable, "problematic": d.Problematic, "overloaded": d.Overloaded})

	for _, v := range report.TeacherGroupViolations {
		gc.emit(EventAuditFinding, LevelError, "teacher-group violation: "+v.Detail, map[string]any{"slot_id": v.SlotID})
	}
	for _, b := range report.DoubleBookings {
		gc.emit(EventAuditFinding, LevelError,
			fmt.Sprintf("%s %s double booked on %s lesson %d", b.Resource, b.ID, b.Day, b.Lesson),
			map[string]any{"slot_ids": b.SlotIDs})
	}
	for _, v := range report.UnauthorizedSpecialized {
		gc.emit(EventAuditFinding, LevelError, "specialized room misuse: "+v.Detail, map[string]any{"slot_id": v.SlotID})
	}
	for _, v := range report.UnauthorizedOwnedRoom {
		gc.emit(EventAuditFinding, LevelError, "owned room misuse: "+v.Detail, map[string]any{"slot_id": v.SlotID})
	}

	gc.emit(EventAuditFinding, LevelInfo,
		fmt.Sprintf("home room utilization %.1f%%", report.HomeRoomUtilization),
		map[string]any{"home_room_utilization": report.HomeRoomUtilization})
	for _, usage := range report.SpecializedRoomUsage {
		gc.emit(EventAuditFinding, LevelInfo,
			fmt.Sprintf("specialized room %s occupied %d/%d (%.1f%%)", usage.Number, usage.Occupied, usage.Capacity, usage.Percent),
			map[string]any{"classroom_id": usage.ClassroomID})
	}
}
