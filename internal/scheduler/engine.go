package scheduler

import (
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/google/uuid"

	"github.com/noah-isme/sma-timetable-api/internal/models"
)

// Result is the outcome of one generation run.
type Result struct {
	Success      bool                  `json:"success"`
	Schedule     []models.ScheduleSlot `json:"schedule"`
	Error        string                `json:"error,omitempty"`
	Seed         int64                 `json:"seed"`
	Phase        Phase                 `json:"phase"`
	Expected     int                   `json:"expected"`
	Requirements int                   `json:"requirements"`
	Placed       int                   `json:"placed"`
	Skipped      []SkippedPair         `json:"skipped,omitempty"`
	Failures     []PlacementFailure    `json:"failures,omitempty"`
	Audit        *AuditReport          `json:"audit,omitempty"`
	Duration     time.Duration         `json:"duration"`

	// Cause wraps ErrInvalidInput, ErrNothingScheduled or ErrUnexpected on failure.
	Cause error `json:"-"`
}

// Complete reports whether every derived requirement was placed.
func (r Result) Complete() bool {
	return r.Success && r.Placed == r.Requirements
}

type options struct {
	seed   int64
	seeded bool
	sinks  []EventSink
	now    func() time.Time
}

// Option customises a generation run.
type Option func(*options)

// WithSeed fixes the PRNG seed so the run is reproducible.
func WithSeed(seed int64) Option {
	return func(o *options) {
		o.seed = seed
		o.seeded = true
	}
}

// WithSink adds an event sink. Several sinks receive events in registration order.
func WithSink(sink EventSink) Option {
	return func(o *options) {
		if sink != nil {
			o.sinks = append(o.sinks, sink)
		}
	}
}

// WithLogFunc streams event messages to fn.
func WithLogFunc(fn func(string)) Option {
	return func(o *options) {
		if fn != nil {
			o.sinks = append(o.sinks, LogFunc(fn))
		}
	}
}

// WithClock overrides the time source used for seeding and timing.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

// Generate builds a weekly timetable from in. It never returns a Go error:
// failures are reported through Result.Success, Result.Error and Result.Cause.
func Generate(in Input, opts ...Option) (result Result) {
	o := options{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	if !o.seeded {
		o.seed = o.now().UnixNano() + rand.Int63n(1_000_000)
	}

	var sink EventSink = discardSink{}
	if len(o.sinks) == 1 {
		sink = o.sinks[0]
	} else if len(o.sinks) > 1 {
		sink = multiSink(o.sinks)
	}

	started := o.now()
	var gc *GenerationContext
	defer func() {
		if r := recover(); r != nil {
			cause := fmt.Errorf("%w: %v", ErrUnexpected, r)
			phase := PhaseValidating
			if gc != nil {
				phase = gc.phase
			}
			sink.Emit(Event{Kind: EventRunFinished, Level: LevelError, Phase: phase, Message: "generation error: " + cause.Error()})
			result = failed(o.seed, cause)
		}
		result.Duration = o.now().Sub(started)
	}()

	gc = newGenerationContext(in, o.seed, sink)
	gc.enter(PhaseValidating)
	gc.emit(EventRunStarted, LevelInfo, fmt.Sprintf("starting generation with seed %d", o.seed), map[string]any{"seed": o.seed})

	if err := validateInput(in); err != nil {
		gc.emit(EventValidationFailed, LevelError, err.Error(), nil)
		return gc.finishFailed(err)
	}
	gc.reportRoomInventory()

	gc.enter(PhaseDerivingRequirements)
	requirements, skipped, err := deriveRequirements(gc)
	if err != nil {
		gc.emit(EventValidationFailed, LevelError, err.Error(), nil)
		return gc.finishFailed(err)
	}
	ranked := rankRequirements(gc, requirements)

	gc.enter(PhasePlacing)
	var failures []PlacementFailure
	for _, req := range ranked {
		candidates := searchSlots(gc, req)
		if len(candidates) == 0 {
			d := diagnose(gc, req)
			gc.reportFailure(req, d)
			failures = append(failures, PlacementFailure{
				RequirementID: req.ID,
				GroupID:       req.Group.ID,
				SubjectID:     req.Subject.ID,
				LessonIndex:   req.LessonIndex,
				Diagnosis:     d,
			})
			continue
		}

		chosen, err := selectCandidate(gc, req, candidates)
		if err != nil {
			panic(err)
		}
		id, err := uuid.NewRandomFromReader(gc.rng)
		if err != nil {
			panic(err)
		}
		slot := gc.commit(req, chosen, id.String())
		gc.emit(EventLessonPlaced, LevelDebug,
			fmt.Sprintf("placed %s for %s on %s lesson %d", req.Subject.Name, req.Group.Name, slot.Day, slot.LessonNumber),
			map[string]any{
				"requirement_id": req.ID,
				"teacher_id":     slot.TeacherID,
				"classroom_id":   slot.ClassroomID,
				"score":          chosen.Score,
				"candidates":     len(candidates),
			})
	}

	placed := len(gc.schedule)
	gc.emit(EventRunFinished, LevelInfo,
		fmt.Sprintf("placement complete: %d scheduled, %d failed", placed, len(failures)),
		map[string]any{"placed": placed, "failed": len(failures)})

	if placed == 0 {
		res := gc.finishFailed(ErrNothingScheduled)
		res.Requirements = len(requirements)
		res.Skipped = skipped
		res.Failures = failures
		res.Expected = in.ExpectedLessons()
		return res
	}

	gc.enter(PhaseAuditing)
	report := Audit(in, gc.schedule)
	gc.reportAudit(report)

	gc.phase = PhaseDone
	return Result{
		Success:      true,
		Schedule:     gc.schedule,
		Seed:         o.seed,
		Phase:        PhaseDone,
		Expected:     in.ExpectedLessons(),
		Requirements: len(requirements),
		Placed:       placed,
		Skipped:      skipped,
		Failures:     failures,
		Audit:        &report,
	}
}

func (gc *GenerationContext) finishFailed(cause error) Result {
	gc.phase = PhaseFailed
	return failed(gc.Seed, cause)
}

func failed(seed int64, cause error) Result {
	return Result{
		Success:  false,
		Schedule: []models.ScheduleSlot{},
		Error:    cause.Error(),
		Seed:     seed,
		Phase:    PhaseFailed,
		Cause:    cause,
	}
}

// IsInvalidInput reports whether a result failed validation.
func (r Result) IsInvalidInput() bool {
	return errors.Is(r.Cause, ErrInvalidInput)
}

func (gc *GenerationContext) reportRoomInventory() {
	for _, room := range gc.Input.Classrooms {
		switch {
		case room.IsSpecialized():
			names := make([]string, 0, len(room.Specialization))
			for _, id := range room.Specialization {
				if subject := gc.subjects[id]; subject != nil {
					names = append(names, subject.Name)
				} else {
					names = append(names, id)
				}
			}
			gc.emit(EventRoomInventory, LevelInfo,
				fmt.Sprintf("room %s is specialized for %v", room.Number, names),
				map[string]any{"classroom_id": room.ID})
		case room.Type == models.ClassroomTeacherLab:
			if owner, ok := gc.OwnerOf(room.ID); ok {
				gc.emit(EventRoomInventory, LevelInfo,
					fmt.Sprintf("room %s is owned by %s", room.Number, gc.teachers[owner].FullName()),
					map[string]any{"classroom_id": room.ID, "owner_id": owner})
			} else {
				gc.emit(EventRoomInventory, LevelInfo,
					fmt.Sprintf("room %s has no owner and is open to any teacher", room.Number),
					map[string]any{"classroom_id": room.ID})
			}
		}
	}
}
