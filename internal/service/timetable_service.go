package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/jmoiron/sqlx/types"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-timetable-api/internal/dto"
	"github.com/noah-isme/sma-timetable-api/internal/models"
	"github.com/noah-isme/sma-timetable-api/internal/scheduler"
	appErrors "github.com/noah-isme/sma-timetable-api/pkg/errors"
	"github.com/noah-isme/sma-timetable-api/pkg/jobs"
)

type catalogReader interface {
	Snapshot(ctx context.Context) (scheduler.Input, error)
}

type scheduleSlotStore interface {
	ReplaceAll(ctx context.Context, exec sqlx.ExtContext, slots []models.ScheduleSlot) error
	List(ctx context.Context, filter models.ScheduleFilter) ([]models.ScheduleSlot, error)
	DeleteAll(ctx context.Context) (int64, error)
}

type timetableRunStore interface {
	Create(ctx context.Context, exec sqlx.ExtContext, run *models.TimetableRun) error
	Update(ctx context.Context, exec sqlx.ExtContext, run *models.TimetableRun) error
	FindByID(ctx context.Context, id string) (*models.TimetableRun, error)
	ListRecent(ctx context.Context, limit int) ([]models.TimetableRun, error)
}

type txProvider interface {
	BeginTxx(ctx context.Context, opts *sql.TxOptions) (*sqlx.Tx, error)
}

type jobEnqueuer interface {
	Enqueue(job jobs.Job) error
}

// TimetableConfig governs generation behaviour.
type TimetableConfig struct {
	ProposalTTL time.Duration
	// Seed, when non-zero, is used for runs that do not ask for one.
	Seed        int64
	IncludeLogs bool
}

// TimetableService runs the scheduling engine and persists its results.
type TimetableService struct {
	catalog   catalogReader
	slots     scheduleSlotStore
	runs      timetableRunStore
	tx        txProvider
	validator *validator.Validate
	metrics   *MetricsService
	logger    *zap.Logger
	store     *proposalStore
	queue     jobEnqueuer
	cfg       TimetableConfig
	now       func() time.Time
}

// NewTimetableService wires timetable dependencies. cache may be nil.
func NewTimetableService(
	catalog catalogReader,
	slots scheduleSlotStore,
	runs timetableRunStore,
	tx txProvider,
	cache *CacheService,
	metrics *MetricsService,
	validate *validator.Validate,
	logger *zap.Logger,
	cfg TimetableConfig,
) *TimetableService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.ProposalTTL <= 0 {
		cfg.ProposalTTL = 30 * time.Minute
	}
	return &TimetableService{
		catalog:   catalog,
		slots:     slots,
		runs:      runs,
		tx:        tx,
		validator: validate,
		metrics:   metrics,
		logger:    logger,
		store:     newProposalStore(cfg.ProposalTTL, cache),
		cfg:       cfg,
		now:       time.Now,
	}
}

// SetQueue attaches the async worker queue used by EnqueueGenerate.
func (s *TimetableService) SetQueue(queue jobEnqueuer) {
	s.queue = queue
}

// Generate loads the stored catalog, runs the engine and, on success, replaces the stored
// schedule. Every attempt is recorded as a run, including failed ones.
func (s *TimetableService) Generate(ctx context.Context, req dto.GenerateRequest, requestedBy *string) (*dto.GenerationResponse, error) {
	run := &models.TimetableRun{
		Status:      models.RunRunning,
		Source:      models.RunSourceDatabase,
		RequestedBy: requestedBy,
	}
	return s.generate(ctx, run, req)
}

func (s *TimetableService) generate(ctx context.Context, run *models.TimetableRun, req dto.GenerateRequest) (*dto.GenerationResponse, error) {
	input, err := s.catalog.Snapshot(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "institution calendar is not configured")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load scheduling catalog")
	}
	if err := dto.ValidateCalendar(input.Institution); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "institution calendar is invalid")
	}

	result, logs := s.runEngine(input, req.Seed, req.IncludeLogs)
	s.observe(run.Source, result)
	fillRun(run, result, s.now().UTC())

	if !result.Success {
		if err := s.saveRun(ctx, nil, run); err != nil {
			s.logger.Error("failed to record failed timetable run", zap.Error(err))
		}
		return nil, resultError(result)
	}

	schedule := cloneSlots(result.Schedule)
	if err := s.persist(ctx, run, schedule); err != nil {
		return nil, err
	}

	resp := dto.NewGenerationResponse(result)
	resp.RunID = run.ID
	resp.Schedule = schedule
	resp.Logs = logs
	s.logger.Info("timetable generated",
		zap.String("run_id", run.ID),
		zap.Int64("seed", result.Seed),
		zap.Int("placed", result.Placed),
		zap.Int("failed", len(result.Failures)),
	)
	return resp, nil
}

// Preview runs the engine over an inline dataset and keeps the result as a proposal.
// Nothing is written to the database.
func (s *TimetableService) Preview(ctx context.Context, req dto.PreviewRequest, requestedBy *string) (*dto.GenerationResponse, error) {
	if err := req.Dataset.Validate(s.validator); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid timetable dataset")
	}

	result, logs := s.runEngine(req.Dataset.Input(), req.Seed, req.IncludeLogs)
	s.observe(models.RunSourcePreview, result)
	if !result.Success {
		return nil, resultError(result)
	}

	proposal := timetableProposal{
		ID:           uuid.NewString(),
		Dataset:      req.Dataset,
		Schedule:     result.Schedule,
		Seed:         result.Seed,
		Requirements: result.Requirements,
		Placed:       result.Placed,
		Failed:       len(result.Failures),
		Audit:        result.Audit,
		RequestedBy:  requestedBy,
		RequestedAt:  s.now(),
	}
	s.store.Save(ctx, proposal)

	resp := dto.NewGenerationResponse(result)
	resp.ProposalID = proposal.ID
	resp.Logs = logs
	return resp, nil
}

// Commit persists a previewed proposal, replacing the stored schedule.
func (s *TimetableService) Commit(ctx context.Context, proposalID string, requestedBy *string) (*models.TimetableRun, error) {
	proposal, ok := s.store.Get(ctx, proposalID)
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "proposal not found or expired")
	}

	finished := s.now().UTC()
	run := &models.TimetableRun{
		Status:       models.RunSucceeded,
		Source:       models.RunSourcePreview,
		Seed:         proposal.Seed,
		Requirements: proposal.Requirements,
		Placed:       proposal.Placed,
		Failed:       proposal.Failed,
		Audit:        encodeAudit(proposal.Audit),
		RequestedBy:  requestedBy,
		FinishedAt:   &finished,
	}
	if requestedBy == nil {
		run.RequestedBy = proposal.RequestedBy
	}
	if err := s.persist(ctx, run, cloneSlots(proposal.Schedule)); err != nil {
		return nil, err
	}

	s.store.Delete(ctx, proposalID)
	return run, nil
}

// persist records the run and replaces the stored schedule in one transaction.
func (s *TimetableService) persist(ctx context.Context, run *models.TimetableRun, schedule []models.ScheduleSlot) (err error) {
	if s.tx == nil {
		return appErrors.Clone(appErrors.ErrInternal, "transaction provider missing")
	}
	start := time.Now()
	defer func() {
		s.metrics.ObserveDBQuery("replace_schedule", time.Since(start))
	}()

	tx, err := s.tx.BeginTxx(ctx, nil)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to begin transaction")
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if err = s.saveRun(ctx, tx, run); err != nil {
		err = appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record timetable run")
		return err
	}
	for i := range schedule {
		schedule[i].RunID = &run.ID
	}
	if err = s.slots.ReplaceAll(ctx, tx, schedule); err != nil {
		err = appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to persist schedule")
		return err
	}
	if err = tx.Commit(); err != nil {
		err = appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to commit schedule transaction")
		return err
	}
	return nil
}

// saveRun inserts new runs and updates queued ones.
func (s *TimetableService) saveRun(ctx context.Context, exec sqlx.ExtContext, run *models.TimetableRun) error {
	if run.ID == "" {
		return s.runs.Create(ctx, exec, run)
	}
	return s.runs.Update(ctx, exec, run)
}

// GetRun returns a single run.
func (s *TimetableService) GetRun(ctx context.Context, id string) (*models.TimetableRun, error) {
	run, err := s.runs.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "timetable run not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load timetable run")
	}
	return run, nil
}

// ListRuns returns the most recent runs.
func (s *TimetableService) ListRuns(ctx context.Context, query dto.RunQuery) ([]models.TimetableRun, error) {
	query = query.Normalize()
	runs, err := s.runs.ListRecent(ctx, query.Limit)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list timetable runs")
	}
	if runs == nil {
		runs = []models.TimetableRun{}
	}
	return runs, nil
}

// Schedule lists stored slots matching the query.
func (s *TimetableService) Schedule(ctx context.Context, query dto.ScheduleQuery) ([]models.ScheduleSlot, error) {
	filter, err := query.Filter()
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, err.Error())
	}
	slots, err := s.slots.List(ctx, filter)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list schedule")
	}
	if slots == nil {
		slots = []models.ScheduleSlot{}
	}
	return slots, nil
}

// ClearSchedule removes every stored slot and returns how many were deleted.
func (s *TimetableService) ClearSchedule(ctx context.Context) (int64, error) {
	deleted, err := s.slots.DeleteAll(ctx)
	if err != nil {
		return 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to clear schedule")
	}
	s.logger.Info("timetable schedule cleared", zap.Int64("deleted", deleted))
	return deleted, nil
}

// SweepProposals drops expired proposals.
func (s *TimetableService) SweepProposals() int {
	removed := s.store.Sweep()
	if removed > 0 {
		s.logger.Debug("expired timetable proposals swept", zap.Int("removed", removed))
	}
	return removed
}

func (s *TimetableService) runEngine(input scheduler.Input, seed *int64, includeLogs bool) (scheduler.Result, []string) {
	opts := []scheduler.Option{scheduler.WithSink(scheduler.NewZapSink(s.logger.Named("engine")))}
	switch {
	case seed != nil:
		opts = append(opts, scheduler.WithSeed(*seed))
	case s.cfg.Seed != 0:
		opts = append(opts, scheduler.WithSeed(s.cfg.Seed))
	}

	var rec *scheduler.Recorder
	if includeLogs || s.cfg.IncludeLogs {
		rec = &scheduler.Recorder{}
		opts = append(opts, scheduler.WithSink(rec))
	}

	result := scheduler.Generate(input, opts...)
	if rec == nil {
		return result, nil
	}
	return result, rec.Messages()
}

func (s *TimetableService) observe(source models.RunSource, result scheduler.Result) {
	s.metrics.ObserveGeneration(string(source), outcome(result), result.Placed, len(result.Failures), result.Duration)
}

func outcome(result scheduler.Result) string {
	switch {
	case result.IsInvalidInput():
		return OutcomeInvalid
	case !result.Success:
		return OutcomeFailed
	case !result.Complete():
		return OutcomePartial
	default:
		return OutcomeSucceeded
	}
}

// resultError maps an unsuccessful engine result onto the API error taxonomy.
func resultError(result scheduler.Result) error {
	switch {
	case result.IsInvalidInput():
		return appErrors.Wrap(result.Cause, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, result.Error)
	case errors.Is(result.Cause, scheduler.ErrNothingScheduled):
		return appErrors.Wrap(result.Cause, appErrors.ErrSchedulingFailed.Code, appErrors.ErrSchedulingFailed.Status, result.Error)
	default:
		return appErrors.Wrap(result.Cause, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "timetable generation failed")
	}
}

func fillRun(run *models.TimetableRun, result scheduler.Result, finished time.Time) {
	run.Seed = result.Seed
	run.Requirements = result.Requirements
	run.Placed = result.Placed
	run.Failed = len(result.Failures)
	run.Audit = encodeAudit(result.Audit)
	run.FinishedAt = &finished
	if result.Success {
		run.Status = models.RunSucceeded
		run.Error = nil
		return
	}
	run.Status = models.RunFailed
	msg := result.Error
	run.Error = &msg
}

func cloneSlots(schedule []models.ScheduleSlot) []models.ScheduleSlot {
	out := make([]models.ScheduleSlot, len(schedule))
	copy(out, schedule)
	return out
}

func encodeAudit(report *scheduler.AuditReport) types.JSONText {
	if report == nil {
		return types.JSONText("{}")
	}
	raw, err := json.Marshal(report)
	if err != nil {
		return types.JSONText(fmt.Sprintf(`{"error":%q}`, err.Error()))
	}
	return types.JSONText(raw)
}
