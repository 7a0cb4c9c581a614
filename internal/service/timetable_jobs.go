package service

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-timetable-api/internal/dto"
	"github.com/noah-isme/sma-timetable-api/internal/models"
	appErrors "github.com/noah-isme/sma-timetable-api/pkg/errors"
	"github.com/noah-isme/sma-timetable-api/pkg/jobs"
)

// JobTypeGenerate identifies queued generation runs.
const JobTypeGenerate = "timetable.generate"

// GenerateJobPayload is carried by queued generation jobs.
type GenerateJobPayload struct {
	RunID   string
	Request dto.GenerateRequest
}

// EnqueueGenerate records a QUEUED run and hands it to the worker pool.
func (s *TimetableService) EnqueueGenerate(ctx context.Context, req dto.GenerateRequest, requestedBy *string) (*models.TimetableRun, error) {
	if s.queue == nil {
		return nil, appErrors.Clone(appErrors.ErrUnavailable, "async generation is disabled")
	}
	run := &models.TimetableRun{
		Status:      models.RunQueued,
		Source:      models.RunSourceDatabase,
		RequestedBy: requestedBy,
	}
	if req.Seed != nil {
		run.Seed = *req.Seed
	}
	if err := s.runs.Create(ctx, nil, run); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record timetable run")
	}

	job := jobs.Job{ID: run.ID, Type: JobTypeGenerate, Payload: GenerateJobPayload{RunID: run.ID, Request: req}}
	if err := s.queue.Enqueue(job); err != nil {
		s.markFailed(ctx, run, fmt.Sprintf("enqueue failed: %v", err))
		return nil, appErrors.Wrap(err, appErrors.ErrUnavailable.Code, appErrors.ErrUnavailable.Status, "failed to queue timetable generation")
	}
	s.logger.Info("timetable generation queued", zap.String("run_id", run.ID))
	return run, nil
}

// HandleJob is the worker entry point. Engine failures are final and recorded on the run;
// only storage faults are returned so the queue retries them.
func (s *TimetableService) HandleJob(ctx context.Context, job jobs.Job) error {
	payload, ok := job.Payload.(GenerateJobPayload)
	if !ok {
		s.logger.Error("unexpected job payload", zap.String("job_id", job.ID), zap.String("type", job.Type))
		return nil
	}

	run, err := s.runs.FindByID(ctx, payload.RunID)
	if err != nil {
		return fmt.Errorf("load queued run %s: %w", payload.RunID, err)
	}
	if run.Terminal() {
		return nil
	}
	run.Status = models.RunRunning
	if err := s.runs.Update(ctx, nil, run); err != nil {
		return fmt.Errorf("mark run %s running: %w", run.ID, err)
	}

	_, err = s.generate(ctx, run, payload.Request)
	if err == nil {
		return nil
	}
	if appErrors.Is(err, appErrors.ErrInternal) {
		return err
	}
	if !run.Terminal() {
		s.markFailed(ctx, run, err.Error())
	}
	s.logger.Warn("queued timetable generation failed", zap.String("run_id", run.ID), zap.Error(err))
	return nil
}

// OnJobExhausted marks the run FAILED once the queue gives up on it.
func (s *TimetableService) OnJobExhausted(job jobs.Job, cause error) {
	payload, ok := job.Payload.(GenerateJobPayload)
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	run, err := s.runs.FindByID(ctx, payload.RunID)
	if err != nil {
		s.logger.Error("failed to load exhausted run", zap.String("run_id", payload.RunID), zap.Error(err))
		return
	}
	s.markFailed(ctx, run, cause.Error())
}

func (s *TimetableService) markFailed(ctx context.Context, run *models.TimetableRun, reason string) {
	finished := s.now().UTC()
	run.Status = models.RunFailed
	run.Error = &reason
	run.FinishedAt = &finished
	if err := s.runs.Update(ctx, nil, run); err != nil {
		s.logger.Error("failed to mark timetable run failed", zap.String("run_id", run.ID), zap.Error(err))
	}
}

// StartSweeper schedules periodic removal of expired proposals. The caller stops the returned cron.
func (s *TimetableService) StartSweeper(spec string) (*cron.Cron, error) {
	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DefaultLogger)))
	if _, err := c.AddFunc(spec, func() { s.SweepProposals() }); err != nil {
		return nil, fmt.Errorf("schedule proposal sweep %q: %w", spec, err)
	}
	c.Start()
	return c, nil
}
