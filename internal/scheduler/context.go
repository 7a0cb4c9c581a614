package scheduler

import (
	"math/rand"
	"sort"

	"github.com/noah-isme/sma-timetable-api/internal/models"
)

// Input bundles the entity collections one generation run reads from.
// The engine never mutates them.
type Input struct {
	Institution models.Institution `json:"institution"`
	ClassGroups []models.ClassGroup `json:"class_groups"`
	Subjects    []models.Subject    `json:"subjects"`
	Teachers    []models.Teacher    `json:"teachers"`
	Classrooms  []models.Classroom  `json:"classrooms"`
}

// ExpectedLessons returns the number of weekly lessons the input asks for,
// before eligibility filtering. Callers compare it with the placed count.
func (in Input) ExpectedLessons() int {
	total := 0
	for _, group := range in.ClassGroups {
		for _, hours := range group.SubjectHours {
			total += weeklyLessons(hours, in.Institution.AcademicWeeks)
		}
	}
	return total
}

type slotKey struct {
	Day    string
	Lesson int
}

type bookingKey struct {
	ID     string
	Day    string
	Lesson int
}

type dayKey struct {
	ID  string
	Day string
}

type subjectDayKey struct {
	GroupID   string
	SubjectID string
	Day       string
}

// GenerationContext is the state threaded through every stage of one run:
// read-only lookups built from Input plus the mutable schedule accumulator.
type GenerationContext struct {
	Input         Input
	Days          []string
	LessonsPerDay int
	Seed          int64

	groups     map[string]*models.ClassGroup
	subjects   map[string]*models.Subject
	teachers   map[string]*models.Teacher
	classrooms map[string]*models.Classroom
	owners     map[string]string
	dayIndex   map[string]int
	available  map[string]map[slotKey]bool

	// specialized lists, per subject, the specialized rooms permitting it in input order.
	specialized map[string][]*models.Classroom

	schedule         []models.ScheduleSlot
	groupBusy        map[bookingKey]bool
	teacherBusy      map[bookingKey]bool
	roomBusy         map[bookingKey]bool
	groupDayLessons  map[dayKey][]int
	teacherDayLesson map[dayKey][]int
	subjectDayLesson map[subjectDayKey][]int

	clock lessonClock
	rng   *rand.Rand
	sink  EventSink
	phase Phase
}

func newGenerationContext(in Input, seed int64, sink EventSink) *GenerationContext {
	gc := &GenerationContext{
		Input:            in,
		Days:             in.Institution.OrderedWorkingDays(),
		LessonsPerDay:    in.Institution.LessonsPerDay,
		Seed:             seed,
		groups:           make(map[string]*models.ClassGroup, len(in.ClassGroups)),
		subjects:         make(map[string]*models.Subject, len(in.Subjects)),
		teachers:         make(map[string]*models.Teacher, len(in.Teachers)),
		classrooms:       make(map[string]*models.Classroom, len(in.Classrooms)),
		owners:           make(map[string]string),
		dayIndex:         make(map[string]int),
		available:        make(map[string]map[slotKey]bool, len(in.Teachers)),
		specialized:      make(map[string][]*models.Classroom),
		groupBusy:        make(map[bookingKey]bool),
		teacherBusy:      make(map[bookingKey]bool),
		roomBusy:         make(map[bookingKey]bool),
		groupDayLessons:  make(map[dayKey][]int),
		teacherDayLesson: make(map[dayKey][]int),
		subjectDayLesson: make(map[subjectDayKey][]int),
		clock:            newLessonClock(in.Institution),
		rng:              rand.New(rand.NewSource(seed)),
		sink:             sink,
	}
	if gc.sink == nil {
		gc.sink = discardSink{}
	}

	for i, day := range gc.Days {
		gc.dayIndex[day] = i
	}
	for i := range in.ClassGroups {
		gc.groups[in.ClassGroups[i].ID] = &in.ClassGroups[i]
	}
	for i := range in.Subjects {
		gc.subjects[in.Subjects[i].ID] = &in.Subjects[i]
	}
	for i := range in.Classrooms {
		room := &in.Classrooms[i]
		gc.classrooms[room.ID] = room
		for _, subjectID := range room.Specialization {
			gc.specialized[subjectID] = append(gc.specialized[subjectID], room)
		}
	}
	for i := range in.Teachers {
		teacher := &in.Teachers[i]
		gc.teachers[teacher.ID] = teacher

		slots := make(map[slotKey]bool)
		for day, lessons := range teacher.AvailableHours {
			canonical, ok := models.CanonicalDay(day)
			if !ok {
				continue
			}
			for _, lesson := range lessons {
				slots[slotKey{Day: canonical, Lesson: lesson}] = true
			}
		}
		gc.available[teacher.ID] = slots

		// First declared owner wins when two teachers claim the same room.
		if teacher.HomeClassroomID != "" {
			if _, taken := gc.owners[teacher.HomeClassroomID]; !taken {
				gc.owners[teacher.HomeClassroomID] = teacher.ID
			}
		}
	}
	return gc
}

// Schedule returns the slots committed so far.
func (gc *GenerationContext) Schedule() []models.ScheduleSlot {
	return gc.schedule
}

// OwnerOf returns the teacher owning a teacher_lab room.
func (gc *GenerationContext) OwnerOf(classroomID string) (string, bool) {
	room := gc.classrooms[classroomID]
	if room == nil || room.Type != models.ClassroomTeacherLab {
		return "", false
	}
	owner, ok := gc.owners[classroomID]
	return owner, ok
}

func (gc *GenerationContext) teacherAvailable(teacherID, day string, lesson int) bool {
	return gc.available[teacherID][slotKey{Day: day, Lesson: lesson}]
}

func (gc *GenerationContext) commit(req Requirement, c Candidate, id string) models.ScheduleSlot {
	start, end := gc.clock.Times(c.Lesson)
	slot := models.ScheduleSlot{
		ID:           id,
		Day:          c.Day,
		LessonNumber: c.Lesson,
		ClassGroupID: req.Group.ID,
		SubjectID:    req.Subject.ID,
		TeacherID:    c.TeacherID,
		ClassroomID:  c.ClassroomID,
		StartTime:    start,
		EndTime:      end,
	}
	gc.schedule = append(gc.schedule, slot)

	gc.groupBusy[bookingKey{ID: req.Group.ID, Day: c.Day, Lesson: c.Lesson}] = true
	gc.teacherBusy[bookingKey{ID: c.TeacherID, Day: c.Day, Lesson: c.Lesson}] = true
	gc.roomBusy[bookingKey{ID: c.ClassroomID, Day: c.Day, Lesson: c.Lesson}] = true

	gk := dayKey{ID: req.Group.ID, Day: c.Day}
	gc.groupDayLessons[gk] = insertSorted(gc.groupDayLessons[gk], c.Lesson)
	tk := dayKey{ID: c.TeacherID, Day: c.Day}
	gc.teacherDayLesson[tk] = insertSorted(gc.teacherDayLesson[tk], c.Lesson)
	sk := subjectDayKey{GroupID: req.Group.ID, SubjectID: req.Subject.ID, Day: c.Day}
	gc.subjectDayLesson[sk] = insertSorted(gc.subjectDayLesson[sk], c.Lesson)
	return slot
}

func (gc *GenerationContext) shuffledDays() []string {
	days := append([]string(nil), gc.Days...)
	gc.rng.Shuffle(len(days), func(i, j int) { days[i], days[j] = days[j], days[i] })
	return days
}

func (gc *GenerationContext) shuffledLessons() []int {
	perm := gc.rng.Perm(gc.LessonsPerDay)
	for i := range perm {
		perm[i]++
	}
	return perm
}

func (gc *GenerationContext) shuffledStrings(values []string) []string {
	out := append([]string(nil), values...)
	gc.rng.Shuffle(len(out), func(i, j int) { out[i], out[j] = out[j], out[i] })
	return out
}

func insertSorted(values []int, v int) []int {
	i := sort.SearchInts(values, v)
	values = append(values, 0)
	copy(values[i+1:], values[i:])
	values[i] = v
	return values
}

func hasAdjacent(values []int, lesson int) bool {
	for _, v := range values {
		if v == lesson-1 || v == lesson+1 {
			return true
		}
	}
	return false
}
