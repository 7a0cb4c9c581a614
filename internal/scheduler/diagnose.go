package scheduler

import (
	"fmt"

	"github.com/noah-isme/sma-timetable-api/internal/models"
)

// PlacementFailure records a requirement that found no legal slot.
type PlacementFailure struct {
	RequirementID string    `json:"requirement_id"`
	GroupID       string    `json:"group_id"`
	SubjectID     string    `json:"subject_id"`
	LessonIndex   int       `json:"lesson_index"`
	Diagnosis     Diagnosis `json:"diagnosis"`
}

// ConflictTally counts why each (day, lesson) position was rejected.
type ConflictTally struct {
	SlotsChecked       int `json:"slots_checked"`
	GroupBusy          int `json:"group_busy"`
	TeacherBusy        int `json:"teacher_busy"`
	TeacherUnavailable int `json:"teacher_unavailable"`
	ClassroomBusy      int `json:"classroom_busy"`
}

// Diagnosis is a best-effort explanation for a placement failure. It has no effect on placement.
type Diagnosis struct {
	Reason             string         `json:"reason"`
	MissingTeachers    []string       `json:"missing_teachers,omitempty"`
	IdleTeachers       []string       `json:"idle_teachers,omitempty"`
	SuitableClassrooms int            `json:"suitable_classrooms"`
	Conflicts          *ConflictTally `json:"conflicts,omitempty"`
	PotentialSlot      string         `json:"potential_slot,omitempty"`
	Recommendation     string         `json:"recommendation,omitempty"`
}

// diagnose walks the same checks as the search in a fixed order and reports the first blocking cause.
func diagnose(gc *GenerationContext, req Requirement) Diagnosis {
	var d Diagnosis
	if len(req.TeacherIDs) == 0 {
		d.Reason = fmt.Sprintf("no teachers assigned to subject %q", req.Subject.Name)
		return d
	}

	var existing []*models.Teacher
	for _, id := range req.TeacherIDs {
		if teacher := gc.teachers[id]; teacher != nil {
			existing = append(existing, teacher)
		} else {
			d.MissingTeachers = append(d.MissingTeachers, id)
		}
	}
	if len(existing) == 0 {
		d.Reason = "none of the assigned teachers exist"
		return d
	}

	var withHours []*models.Teacher
	for _, teacher := range existing {
		if len(gc.available[teacher.ID]) > 0 {
			withHours = append(withHours, teacher)
		} else {
			d.IdleTeachers = append(d.IdleTeachers, teacher.ID)
		}
	}
	if len(withHours) == 0 {
		d.Reason = "none of the assigned teachers have any available hours"
		return d
	}

	suitable := suitableRooms(gc, req)
	d.SuitableClassrooms = len(suitable)
	if len(suitable) == 0 {
		d.Reason = missingRoomReason(req)
		return d
	}

	tally := &ConflictTally{}
	d.Conflicts = tally
	for _, day := range gc.Days {
		for lesson := 1; lesson <= gc.LessonsPerDay; lesson++ {
			tally.SlotsChecked++
			if gc.groupBusy[bookingKey{ID: req.Group.ID, Day: day, Lesson: lesson}] {
				tally.GroupBusy++
				continue
			}

			free := make(map[string]bool)
			for _, teacher := range withHours {
				switch {
				case !gc.teacherAvailable(teacher.ID, day, lesson):
					tally.TeacherUnavailable++
				case gc.teacherBusy[bookingKey{ID: teacher.ID, Day: day, Lesson: lesson}]:
					tally.TeacherBusy++
				default:
					free[teacher.ID] = true
				}
			}
			if len(free) == 0 {
				continue
			}

			rooms := 0
			for _, room := range suitable {
				if gc.roomBusy[bookingKey{ID: room.ID, Day: day, Lesson: lesson}] {
					tally.ClassroomBusy++
					continue
				}
				if owner, owned := gc.OwnerOf(room.ID); owned && !free[owner] {
					continue
				}
				rooms++
			}
			if rooms > 0 {
				d.Reason = "a free combination exists but every candidate broke an ownership or specialization rule"
				d.PotentialSlot = fmt.Sprintf("%s lesson %d with %d teachers and %d classrooms", day, lesson, len(free), rooms)
				return d
			}
		}
	}

	d.Reason = "no time slot satisfied every constraint"
	switch {
	case tally.TeacherUnavailable > tally.TeacherBusy:
		d.Recommendation = "increase teacher availability hours for this subject"
	case tally.ClassroomBusy > tally.TeacherBusy:
		d.Recommendation = fmt.Sprintf("add more %s classrooms or reduce classroom usage", req.SubjectType)
	case tally.GroupBusy > 0:
		d.Recommendation = "the group schedule is too dense; consider reducing total lessons"
	default:
		d.Recommendation = "complex scheduling conflict; try adjusting teacher hours or adding resources"
	}
	return d
}

// suitableRooms is the teacher-independent room set for the subject type.
func suitableRooms(gc *GenerationContext, req Requirement) []*models.Classroom {
	if req.Subject.IsLab() {
		if specialized := gc.specialized[req.Subject.ID]; len(specialized) > 0 {
			return specialized
		}
		var labs []*models.Classroom
		for i := range gc.Input.Classrooms {
			room := &gc.Input.Classrooms[i]
			if room.Type == models.ClassroomLab && !room.IsSpecialized() {
				labs = append(labs, room)
			}
		}
		return labs
	}
	var rooms []*models.Classroom
	for i := range gc.Input.Classrooms {
		room := &gc.Input.Classrooms[i]
		if room.Type == models.ClassroomTheory || room.Type == models.ClassroomTeacherLab {
			rooms = append(rooms, room)
		}
	}
	return rooms
}

func missingRoomReason(req Requirement) string {
	if req.Subject.IsLab() {
		return "no laboratory classrooms exist for this subject"
	}
	return "no theory classrooms exist"
}

func (gc *GenerationContext) reportFailure(req Requirement, d Diagnosis) {
	fields := map[string]any{
		"requirement_id": req.ID,
		"group_id":       req.Group.ID,
		"subject_id":     req.Subject.ID,
	}
	gc.emit(EventPlacementFailed, LevelWarn,
		fmt.Sprintf("failed to schedule %s for %s", req.Subject.Name, req.Group.Name), fields)

	if len(d.MissingTeachers) > 0 {
		gc.emit(EventDiagnostic, LevelWarn, fmt.Sprintf("teachers %v are assigned to the subject but do not exist", d.MissingTeachers), fields)
	}
	if len(d.IdleTeachers) > 0 {
		gc.emit(EventDiagnostic, LevelWarn, fmt.Sprintf("teachers %v have no available hours", d.IdleTeachers), fields)
	}
	gc.emit(EventDiagnostic, LevelWarn, d.Reason, fields)
	if d.Conflicts != nil && d.PotentialSlot == "" {
		c := d.Conflicts
		gc.emit(EventDiagnostic, LevelInfo, fmt.Sprintf(
			"checked %d slots: group busy %d, teacher busy %d, teacher unavailable %d, classroom busy %d",
			c.SlotsChecked, c.GroupBusy, c.TeacherBusy, c.TeacherUnavailable, c.ClassroomBusy), fields)
	}
	if d.PotentialSlot != "" {
		gc.emit(EventDiagnostic, LevelInfo, "potential slot: "+d.PotentialSlot, fields)
	}
	if d.Recommendation != "" {
		gc.emit(EventDiagnostic, LevelInfo, "recommendation: "+d.Recommendation, fields)
	}
}
