package scheduler

import (
	"github.com/noah-isme/sma-timetable-api/internal/models"
)

// Candidate is one legal (day, lesson, teacher, room) placement for a requirement.
type Candidate struct {
	Day         string
	DayIndex    int
	Lesson      int
	TeacherID   string
	ClassroomID string
	Score       float64
}

// searchSlots enumerates every legal placement for req. Days, lessons, teachers
// and rooms are visited in shuffled order so no position is favoured before scoring.
func searchSlots(gc *GenerationContext, req Requirement) []Candidate {
	days := gc.shuffledDays()
	lessons := gc.shuffledLessons()
	teacherIDs := gc.shuffledStrings(req.TeacherIDs)

	rooms := make(map[string][]string, len(teacherIDs))
	for _, teacherID := range teacherIDs {
		rooms[teacherID] = gc.shuffledStrings(eligibleRooms(gc, req, teacherID))
	}

	var candidates []Candidate
	for _, day := range days {
		for _, lesson := range lessons {
			if gc.groupBusy[bookingKey{ID: req.Group.ID, Day: day, Lesson: lesson}] {
				continue
			}
			for _, teacherID := range teacherIDs {
				for _, roomID := range rooms[teacherID] {
					if !isLegal(gc, req, teacherID, roomID, day, lesson) {
						continue
					}
					candidates = append(candidates, Candidate{
						Day:         day,
						DayIndex:    gc.dayIndex[day],
						Lesson:      lesson,
						TeacherID:   teacherID,
						ClassroomID: roomID,
					})
				}
			}
		}
	}
	return candidates
}

// eligibleRooms lists the rooms a teacher may use for req, before booking checks.
//
// Lab subjects use the rooms specialized for them when any exist, otherwise general labs
// with no specialization. Theory subjects use, in order, the group's theory home room, the
// teacher's own teacher lab, every theory room, and teacher labs nobody owns.
func eligibleRooms(gc *GenerationContext, req Requirement, teacherID string) []string {
	if req.Subject.IsLab() {
		if specialized := gc.specialized[req.Subject.ID]; len(specialized) > 0 {
			ids := make([]string, 0, len(specialized))
			for _, room := range specialized {
				ids = append(ids, room.ID)
			}
			return ids
		}
		var ids []string
		for _, room := range gc.Input.Classrooms {
			if room.Type == models.ClassroomLab && !room.IsSpecialized() {
				ids = append(ids, room.ID)
			}
		}
		return ids
	}

	var ids []string
	seen := make(map[string]bool)
	add := func(id string) {
		if id == "" || seen[id] {
			return
		}
		seen[id] = true
		ids = append(ids, id)
	}

	if home := gc.classrooms[req.Group.HomeClassroomID]; home != nil && home.Type == models.ClassroomTheory {
		add(home.ID)
	}
	if teacher := gc.teachers[teacherID]; teacher != nil {
		if own := gc.classrooms[teacher.HomeClassroomID]; own != nil && own.Type == models.ClassroomTeacherLab {
			if owner, _ := gc.OwnerOf(own.ID); owner == teacherID {
				add(own.ID)
			}
		}
	}
	for _, room := range gc.Input.Classrooms {
		if room.Type == models.ClassroomTheory {
			add(room.ID)
		}
	}
	for _, room := range gc.Input.Classrooms {
		if room.Type != models.ClassroomTeacherLab {
			continue
		}
		if _, owned := gc.OwnerOf(room.ID); !owned {
			add(room.ID)
		}
	}
	return ids
}

// isLegal applies every hard constraint to a single placement.
func isLegal(gc *GenerationContext, req Requirement, teacherID, roomID, day string, lesson int) bool {
	if !gc.teacherAvailable(teacherID, day, lesson) {
		return false
	}
	if gc.groupBusy[bookingKey{ID: req.Group.ID, Day: day, Lesson: lesson}] ||
		gc.teacherBusy[bookingKey{ID: teacherID, Day: day, Lesson: lesson}] ||
		gc.roomBusy[bookingKey{ID: roomID, Day: day, Lesson: lesson}] {
		return false
	}
	room := gc.classrooms[roomID]
	if room == nil {
		return false
	}
	if owner, owned := gc.OwnerOf(roomID); owned && owner != teacherID {
		return false
	}
	if room.IsSpecialized() && !room.Permits(req.Subject.ID) {
		return false
	}
	return true
}
