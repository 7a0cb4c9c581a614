package scheduler

import (
	"fmt"
	"time"

	"github.com/noah-isme/sma-timetable-api/internal/models"
)

const clockLayout = "15:04"

// lessonClock converts lesson numbers into wall-clock start and end times.
type lessonClock struct {
	start    time.Time
	duration time.Duration
	breaks   []time.Duration
	valid    bool
}

func newLessonClock(inst models.Institution) lessonClock {
	start, err := time.Parse(clockLayout, inst.StartTime)
	clock := lessonClock{
		start:    start,
		duration: time.Duration(inst.LessonDuration) * time.Minute,
		valid:    err == nil,
	}
	for _, b := range inst.BreakDurations {
		clock.breaks = append(clock.breaks, time.Duration(b)*time.Minute)
	}
	return clock
}

// Times returns "HH:MM" start and end for a 1-based lesson number.
// A break list shorter than lessonsPerDay-1 is treated as zero-length breaks.
func (c lessonClock) Times(lesson int) (string, string) {
	if !c.valid || lesson < 1 {
		return "", ""
	}
	offset := time.Duration(lesson-1) * c.duration
	for i := 0; i < lesson-1 && i < len(c.breaks); i++ {
		offset += c.breaks[i]
	}
	begin := c.start.Add(offset)
	return begin.Format(clockLayout), begin.Add(c.duration).Format(clockLayout)
}

// LessonTimes exposes the clock for callers rendering timetables.
func LessonTimes(inst models.Institution, lesson int) (string, string, error) {
	clock := newLessonClock(inst)
	if !clock.valid {
		return "", "", fmt.Errorf("invalid start time %q", inst.StartTime)
	}
	start, end := clock.Times(lesson)
	return start, end, nil
}
