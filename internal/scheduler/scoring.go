package scheduler

import (
	"fmt"
	"sort"

	"github.com/mroth/weightedrand/v2"
)

const (
	dayWeight             = 2
	positionWeight        = 3
	dayLoadPenalty        = 5
	homeRoomBonus         = 150
	ownRoomBonus          = 100
	specializationBonus   = 50
	firstOfDayBonus       = 200
	adjacentDoubleBonus   = 50
	splitDoublePenalty    = 150
	overloadedDayPenalty  = 300
	adjacentTeacherBonus  = 30
	scatteredTeacherCost  = 10
	maxJitter             = 5.0
	selectionWindowFactor = 0.9
)

// scoreCandidate rates one placement. Higher is better.
func scoreCandidate(gc *GenerationContext, req Requirement, c Candidate) float64 {
	score := 0

	score += (len(gc.Days) - c.DayIndex) * dayWeight

	middle := (gc.LessonsPerDay + 1) / 2
	score += (gc.LessonsPerDay - abs(c.Lesson-middle)) * positionWeight

	score -= len(gc.groupDayLessons[dayKey{ID: req.Group.ID, Day: c.Day}]) * dayLoadPenalty

	if req.Group.HomeClassroomID != "" && c.ClassroomID == req.Group.HomeClassroomID {
		score += homeRoomBonus
	}
	if teacher := gc.teachers[c.TeacherID]; teacher != nil && teacher.HomeClassroomID == c.ClassroomID {
		score += ownRoomBonus
	}
	if room := gc.classrooms[c.ClassroomID]; room != nil && room.Permits(req.Subject.ID) {
		score += specializationBonus
	}

	sameSubject := gc.subjectDayLesson[subjectDayKey{GroupID: req.Group.ID, SubjectID: req.Subject.ID, Day: c.Day}]
	switch {
	case len(sameSubject) == 0:
		score += firstOfDayBonus
	case len(sameSubject) == 1 && hasAdjacent(sameSubject, c.Lesson):
		score += adjacentDoubleBonus
	case len(sameSubject) == 1:
		score -= splitDoublePenalty
	default:
		score -= overloadedDayPenalty
	}

	if sameTeacher := gc.teacherDayLesson[dayKey{ID: c.TeacherID, Day: c.Day}]; len(sameTeacher) > 0 {
		if hasAdjacent(sameTeacher, c.Lesson) {
			score += adjacentTeacherBonus
		} else {
			score -= scatteredTeacherCost
		}
	}

	return float64(score) + gc.rng.Float64()*maxJitter
}

// selectCandidate scores every candidate and picks uniformly among those within
// the selection window of the best score.
func selectCandidate(gc *GenerationContext, req Requirement, candidates []Candidate) (Candidate, error) {
	scored := make([]Candidate, len(candidates))
	for i, c := range candidates {
		c.Score = scoreCandidate(gc, req, c)
		scored[i] = c
	}
	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].Score > scored[j].Score
	})

	window := scored[:windowSize(scored)]
	if len(window) == 1 {
		return window[0], nil
	}

	choices := make([]weightedrand.Choice[Candidate, int], 0, len(window))
	for _, c := range window {
		choices = append(choices, weightedrand.NewChoice(c, 1))
	}
	chooser, err := weightedrand.NewChooser(choices...)
	if err != nil {
		return Candidate{}, fmt.Errorf("build candidate chooser: %w", err)
	}
	return chooser.PickSource(gc.rng), nil
}

// windowSize counts the leading candidates scoring at least 90% of the top score.
// For a non-positive top score the window extends 10% of its magnitude below it.
func windowSize(sorted []Candidate) int {
	if len(sorted) == 0 {
		return 0
	}
	top := sorted[0].Score
	threshold := top * selectionWindowFactor
	if top <= 0 {
		threshold = top - (1-selectionWindowFactor)*-top
	}
	n := 0
	for _, c := range sorted {
		if c.Score < threshold {
			break
		}
		n++
	}
	return n
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
