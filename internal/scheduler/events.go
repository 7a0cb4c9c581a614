package scheduler

import (
	"sort"

	"go.uber.org/zap"
)

// Phase names a step of the generation state machine.
type Phase string

const (
	PhaseValidating           Phase = "VALIDATING"
	PhaseDerivingRequirements Phase = "DERIVING_REQUIREMENTS"
	PhasePlacing              Phase = "PLACING"
	PhaseAuditing             Phase = "AUDITING"
	PhaseDone                 Phase = "DONE"
	PhaseFailed               Phase = "FAILED"
)

// EventKind classifies engine events.
type EventKind string

const (
	EventRunStarted          EventKind = "run_started"
	EventPhaseChanged        EventKind = "phase_changed"
	EventValidationFailed    EventKind = "validation_failed"
	EventRoomInventory       EventKind = "room_inventory"
	EventRequirementSkipped  EventKind = "requirement_skipped"
	EventRequirementsDerived EventKind = "requirements_derived"
	EventRequirementsRanked  EventKind = "requirements_ranked"
	EventLessonPlaced        EventKind = "lesson_placed"
	EventPlacementFailed     EventKind = "placement_failed"
	EventDiagnostic          EventKind = "diagnostic"
	EventAuditFinding        EventKind = "audit_finding"
	EventRunFinished         EventKind = "run_finished"
)

// Level is the severity attached to an event.
type Level string

const (
	LevelDebug Level = "debug"
	LevelInfo  Level = "info"
	LevelWarn  Level = "warn"
	LevelError Level = "error"
)

// Event is one structured, human readable progress notification.
type Event struct {
	Kind    EventKind      `json:"kind"`
	Level   Level          `json:"level"`
	Phase   Phase          `json:"phase"`
	Message string         `json:"message"`
	Fields  map[string]any `json:"fields,omitempty"`
}

// EventSink receives events synchronously. Implementations must not call back into the engine.
type EventSink interface {
	Emit(Event)
}

// SinkFunc adapts a function to EventSink.
type SinkFunc func(Event)

// Emit calls f.
func (f SinkFunc) Emit(e Event) {
	f(e)
}

// LogFunc adapts a plain string callback into a sink receiving each event message.
func LogFunc(fn func(string)) EventSink {
	return SinkFunc(func(e Event) {
		fn(e.Message)
	})
}

type discardSink struct{}

func (discardSink) Emit(Event) {}

type multiSink []EventSink

func (m multiSink) Emit(e Event) {
	for _, sink := range m {
		sink.Emit(e)
	}
}

// Recorder collects events in memory, mostly for tests and API responses.
type Recorder struct {
	Events []Event
}

// Emit appends the event.
func (r *Recorder) Emit(e Event) {
	r.Events = append(r.Events, e)
}

// Messages returns the recorded messages in order.
func (r *Recorder) Messages() []string {
	out := make([]string, 0, len(r.Events))
	for _, e := range r.Events {
		out = append(out, e.Message)
	}
	return out
}

// OfKind filters the recorded events.
func (r *Recorder) OfKind(kind EventKind) []Event {
	var out []Event
	for _, e := range r.Events {
		if e.Kind == kind {
			out = append(out, e)
		}
	}
	return out
}

type zapSink struct {
	logger *zap.Logger
}

// NewZapSink forwards events to a zap logger using the event level.
// Per-lesson placement events are logged at debug to keep production logs small.
func NewZapSink(logger *zap.Logger) EventSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return zapSink{logger: logger}
}

func (s zapSink) Emit(e Event) {
	fields := make([]zap.Field, 0, len(e.Fields)+2)
	fields = append(fields, zap.String("event", string(e.Kind)), zap.String("phase", string(e.Phase)))
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fields = append(fields, zap.Any(k, e.Fields[k]))
	}

	switch e.Level {
	case LevelError:
		s.logger.Error(e.Message, fields...)
	case LevelWarn:
		s.logger.Warn(e.Message, fields...)
	case LevelDebug:
		s.logger.Debug(e.Message, fields...)
	default:
		s.logger.Info(e.Message, fields...)
	}
}

func (gc *GenerationContext) emit(kind EventKind, level Level, message string, fields map[string]any) {
	gc.sink.Emit(Event{Kind: kind, Level: level, Phase: gc.phase, Message: message, Fields: fields})
}

func (gc *GenerationContext) enter(phase Phase) {
	gc.phase = phase
	gc.emit(EventPhaseChanged, LevelDebug, "entering "+string(phase), nil)
}
