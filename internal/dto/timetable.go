package dto

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/noah-isme/sma-timetable-api/internal/models"
	"github.com/noah-isme/sma-timetable-api/internal/scheduler"
)

const (
	// DefaultRunLimit is used when a run listing omits the limit.
	DefaultRunLimit = 20
	// MaxRunLimit caps run listings.
	MaxRunLimit = 100
)

// Dataset is a self-contained scheduling input, as posted to preview or read from a file.
type Dataset struct {
	Institution models.Institution  `json:"institution"`
	ClassGroups []models.ClassGroup `json:"class_groups" validate:"dive"`
	Subjects    []models.Subject    `json:"subjects" validate:"dive"`
	Teachers    []models.Teacher    `json:"teachers" validate:"dive"`
	Classrooms  []models.Classroom  `json:"classrooms" validate:"dive"`
}

// Validate runs struct validation plus the calendar shape check. Empty collections are left to
// the engine so its messages reach the caller unchanged.
func (d Dataset) Validate(v *validator.Validate) error {
	if v == nil {
		v = validator.New()
	}
	if err := v.Struct(d); err != nil {
		return err
	}
	return ValidateCalendar(d.Institution)
}

// Input converts the dataset into engine input.
func (d Dataset) Input() scheduler.Input {
	return scheduler.Input{
		Institution: d.Institution,
		ClassGroups: d.ClassGroups,
		Subjects:    d.Subjects,
		Teachers:    d.Teachers,
		Classrooms:  d.Classrooms,
	}
}

// DatasetFromInput is the inverse of Input.
func DatasetFromInput(in scheduler.Input) Dataset {
	return Dataset{
		Institution: in.Institution,
		ClassGroups: in.ClassGroups,
		Subjects:    in.Subjects,
		Teachers:    in.Teachers,
		Classrooms:  in.Classrooms,
	}
}

// ValidateCalendar checks the calendar invariants the struct tags cannot express.
func ValidateCalendar(inst models.Institution) error {
	if want := inst.LessonsPerDay - 1; len(inst.BreakDurations) != want {
		return fmt.Errorf("break_durations must have %d entries, got %d", want, len(inst.BreakDurations))
	}
	if len(inst.OrderedWorkingDays()) != len(inst.WorkingDays) {
		return fmt.Errorf("working_days contains an unknown or repeated day")
	}
	return nil
}

// GenerateRequest triggers generation over the stored catalog.
type GenerateRequest struct {
	Seed        *int64 `json:"seed"`
	IncludeLogs bool   `json:"includeLogs"`
}

// PreviewRequest runs the engine over an inline dataset without persisting anything.
type PreviewRequest struct {
	Dataset     Dataset `json:"dataset" validate:"required"`
	Seed        *int64  `json:"seed"`
	IncludeLogs bool    `json:"includeLogs"`
}

// GenerationResponse summarises one engine run for API callers.
type GenerationResponse struct {
	RunID        string                       `json:"runId,omitempty"`
	ProposalID   string                       `json:"proposalId,omitempty"`
	Status       models.RunStatus             `json:"status"`
	Seed         int64                        `json:"seed"`
	Expected     int                          `json:"expected"`
	Requirements int                          `json:"requirements"`
	Placed       int                          `json:"placed"`
	Failed       int                          `json:"failed"`
	Complete     bool                         `json:"complete"`
	Schedule     []models.ScheduleSlot        `json:"schedule,omitempty"`
	Skipped      []scheduler.SkippedPair      `json:"skipped,omitempty"`
	Failures     []scheduler.PlacementFailure `json:"failures,omitempty"`
	Audit        *scheduler.AuditReport       `json:"audit,omitempty"`
	Logs         []string                     `json:"logs,omitempty"`
	DurationMs   int64                        `json:"durationMs"`
}

// NewGenerationResponse maps an engine result.
func NewGenerationResponse(result scheduler.Result) *GenerationResponse {
	status := models.RunSucceeded
	if !result.Success {
		status = models.RunFailed
	}
	return &GenerationResponse{
		Status:       status,
		Seed:         result.Seed,
		Expected:     result.Expected,
		Requirements: result.Requirements,
		Placed:       result.Placed,
		Failed:       len(result.Failures),
		Complete:     result.Complete(),
		Schedule:     result.Schedule,
		Skipped:      result.Skipped,
		Failures:     result.Failures,
		Audit:        result.Audit,
		DurationMs:   result.Duration.Milliseconds(),
	}
}

// ScheduleQuery filters stored slots.
type ScheduleQuery struct {
	GroupID     string `form:"groupId" json:"groupId"`
	TeacherID   string `form:"teacherId" json:"teacherId"`
	ClassroomID string `form:"classroomId" json:"classroomId"`
	Day         string `form:"day" json:"day"`
}

// Filter normalises the query. Unknown day names are an error.
func (q ScheduleQuery) Filter() (models.ScheduleFilter, error) {
	filter := models.ScheduleFilter{
		ClassGroupID: strings.TrimSpace(q.GroupID),
		TeacherID:    strings.TrimSpace(q.TeacherID),
		ClassroomID:  strings.TrimSpace(q.ClassroomID),
	}
	if day := strings.TrimSpace(q.Day); day != "" {
		canonical, ok := models.CanonicalDay(day)
		if !ok {
			return filter, fmt.Errorf("unknown day %q", q.Day)
		}
		filter.Day = canonical
	}
	return filter, nil
}

// RunQuery pages the run history.
type RunQuery struct {
	Limit int `form:"limit" json:"limit" validate:"omitempty,min=1"`
}

// Normalize applies default and maximum limits.
func (q RunQuery) Normalize() RunQuery {
	switch {
	case q.Limit <= 0:
		q.Limit = DefaultRunLimit
	case q.Limit > MaxRunLimit:
		q.Limit = MaxRunLimit
	}
	return q
}

// ExportQuery selects the download format and optional filters.
type ExportQuery struct {
	ScheduleQuery
	Format string `form:"format" json:"format"`
}
