package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-timetable-api/internal/dto"
	"github.com/noah-isme/sma-timetable-api/internal/models"
	"github.com/noah-isme/sma-timetable-api/internal/scheduler"
	appErrors "github.com/noah-isme/sma-timetable-api/pkg/errors"
	"github.com/noah-isme/sma-timetable-api/pkg/jobs"
)

func timetableInput() scheduler.Input {
	inst := models.DefaultInstitution()
	week := map[string][]int{}
	for _, day := range inst.WorkingDays {
		week[day] = []int{1, 2, 3, 4}
	}
	return scheduler.Input{
		Institution: inst,
		ClassGroups: []models.ClassGroup{{ID: "g1", Name: "1A", StudentsCount: 20, SubjectHours: map[string]int{"math": 80}}},
		Subjects:    []models.Subject{{ID: "math", Name: "Math", Type: models.SubjectTheory, TeacherIDs: []string{"t1"}}},
		Teachers:    []models.Teacher{{ID: "t1", FirstName: "Ada", AssignedClassGroups: []string{"g1"}, AvailableHours: week}},
		Classrooms:  []models.Classroom{{ID: "r1", Number: "101", Type: models.ClassroomTheory, Capacity: 30}},
	}
}

type catalogStub struct {
	input scheduler.Input
	err   error
}

func (s catalogStub) Snapshot(ctx context.Context) (scheduler.Input, error) {
	return s.input, s.err
}

type slotStoreStub struct {
	replaced   []models.ScheduleSlot
	replaceTx  bool
	replaceErr error
	filter     models.ScheduleFilter
	listed     []models.ScheduleSlot
	deleted    int64
}

func (s *slotStoreStub) ReplaceAll(ctx context.Context, exec sqlx.ExtContext, slots []models.ScheduleSlot) error {
	if s.replaceErr != nil {
		return s.replaceErr
	}
	_, s.replaceTx = exec.(*sqlx.Tx)
	s.replaced = slots
	return nil
}

func (s *slotStoreStub) List(ctx context.Context, filter models.ScheduleFilter) ([]models.ScheduleSlot, error) {
	s.filter = filter
	return s.listed, nil
}

func (s *slotStoreStub) DeleteAll(ctx context.Context) (int64, error) {
	return s.deleted, nil
}

type runStoreStub struct {
	mu        sync.Mutex
	runs      map[string]models.TimetableRun
	created   []models.TimetableRun
	updated   []models.TimetableRun
	createErr error
	listLimit int
}

func newRunStoreStub() *runStoreStub {
	return &runStoreStub{runs: map[string]models.TimetableRun{}}
}

func (s *runStoreStub) Create(ctx context.Context, exec sqlx.ExtContext, run *models.TimetableRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.createErr != nil {
		return s.createErr
	}
	run.ID = fmt.Sprintf("run-%d", len(s.created)+1)
	run.CreatedAt = time.Now().UTC()
	s.created = append(s.created, *run)
	s.runs[run.ID] = *run
	return nil
}

func (s *runStoreStub) Update(ctx context.Context, exec sqlx.ExtContext, run *models.TimetableRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.runs[run.ID]; !ok {
		return fmt.Errorf("update timetable run %s: %w", run.ID, sql.ErrNoRows)
	}
	s.updated = append(s.updated, *run)
	s.runs[run.ID] = *run
	return nil
}

func (s *runStoreStub) FindByID(ctx context.Context, id string) (*models.TimetableRun, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	run, ok := s.runs[id]
	if !ok {
		return nil, fmt.Errorf("get timetable run: %w", sql.ErrNoRows)
	}
	return &run, nil
}

func (s *runStoreStub) ListRecent(ctx context.Context, limit int) ([]models.TimetableRun, error) {
	s.listLimit = limit
	return nil, nil
}

type txProviderMock struct {
	db   *sqlx.DB
	mock sqlmock.Sqlmock
}

func newTxProviderMock(t *testing.T) (*txProviderMock, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return &txProviderMock{db: sqlx.NewDb(db, "sqlmock"), mock: mock}, mock
}

func (t *txProviderMock) BeginTxx(ctx context.Context, opts *sql.TxOptions) (*sqlx.Tx, error) {
	return t.db.BeginTxx(ctx, opts)
}

type timetableFixture struct {
	svc     *TimetableService
	slots   *slotStoreStub
	runs    *runStoreStub
	mock    sqlmock.Sqlmock
	metrics *MetricsService
}

func newTimetableFixture(t *testing.T, catalog catalogReader, cache *CacheService) timetableFixture {
	t.Helper()
	tx, mock := newTxProviderMock(t)
	slots := &slotStoreStub{}
	runs := newRunStoreStub()
	metrics := NewMetricsService()
	svc := NewTimetableService(catalog, slots, runs, tx, cache, metrics, nil, zap.NewNop(), TimetableConfig{ProposalTTL: time.Minute})
	return timetableFixture{svc: svc, slots: slots, runs: runs, mock: mock, metrics: metrics}
}

func seed(v int64) *int64 {
	return &v
}

func TestTimetableServiceGeneratePersistsInTransaction(t *testing.T) {
	fx := newTimetableFixture(t, catalogStub{input: timetableInput()}, nil)
	fx.mock.ExpectBegin()
	fx.mock.ExpectCommit()

	admin := "admin-1"
	resp, err := fx.svc.Generate(context.Background(), dto.GenerateRequest{Seed: seed(3), IncludeLogs: true}, &admin)
	require.NoError(t, err)

	assert.Equal(t, "run-1", resp.RunID)
	assert.Equal(t, models.RunSucceeded, resp.Status)
	assert.Equal(t, int64(3), resp.Seed)
	assert.Equal(t, 2, resp.Placed)
	assert.True(t, resp.Complete)
	assert.Contains(t, resp.Logs, "starting generation with seed 3")

	require.Len(t, fx.slots.replaced, 2)
	assert.True(t, fx.slots.replaceTx)
	for _, slot := range fx.slots.replaced {
		require.NotNil(t, slot.RunID)
		assert.Equal(t, "run-1", *slot.RunID)
	}

	require.Len(t, fx.runs.created, 1)
	run := fx.runs.created[0]
	assert.Equal(t, models.RunSucceeded, run.Status)
	assert.Equal(t, models.RunSourceDatabase, run.Source)
	assert.Equal(t, &admin, run.RequestedBy)
	assert.NotNil(t, run.FinishedAt)
	assert.Contains(t, string(run.Audit), `"lessons":2`)

	assert.Equal(t, 2.0, testutil.ToFloat64(fx.metrics.lessonsPlaced))
	require.NoError(t, fx.mock.ExpectationsWereMet())
}

func TestTimetableServiceGenerateMissingInstitution(t *testing.T) {
	fx := newTimetableFixture(t, catalogStub{err: fmt.Errorf("get institution: %w", sql.ErrNoRows)}, nil)

	_, err := fx.svc.Generate(context.Background(), dto.GenerateRequest{}, nil)

	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrPreconditionFailed))
	assert.Empty(t, fx.runs.created)
}

func TestTimetableServiceGenerateCatalogFault(t *testing.T) {
	fx := newTimetableFixture(t, catalogStub{err: errors.New("connection reset")}, nil)

	_, err := fx.svc.Generate(context.Background(), dto.GenerateRequest{}, nil)

	assert.True(t, appErrors.Is(err, appErrors.ErrInternal))
}

func TestTimetableServiceGenerateRecordsFailedRun(t *testing.T) {
	in := timetableInput()
	in.Teachers[0].AvailableHours = nil
	fx := newTimetableFixture(t, catalogStub{input: in}, nil)

	_, err := fx.svc.Generate(context.Background(), dto.GenerateRequest{Seed: seed(1)}, nil)

	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrSchedulingFailed))
	assert.Nil(t, fx.slots.replaced)
	require.Len(t, fx.runs.created, 1)
	assert.Equal(t, models.RunFailed, fx.runs.created[0].Status)
	require.NotNil(t, fx.runs.created[0].Error)
	assert.Contains(t, *fx.runs.created[0].Error, "no lessons could be scheduled")
	assert.Equal(t, 2, fx.runs.created[0].Failed)
	require.NoError(t, fx.mock.ExpectationsWereMet())
}

func TestTimetableServiceGenerateInvalidInput(t *testing.T) {
	in := timetableInput()
	in.Classrooms = nil
	fx := newTimetableFixture(t, catalogStub{input: in}, nil)

	_, err := fx.svc.Generate(context.Background(), dto.GenerateRequest{}, nil)

	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrValidation))
	assert.Contains(t, err.Error(), "no classrooms configured")
	require.Len(t, fx.runs.created, 1)
	assert.Equal(t, models.RunFailed, fx.runs.created[0].Status)
}

func TestTimetableServiceGenerateRejectsBadCalendar(t *testing.T) {
	in := timetableInput()
	in.Institution.BreakDurations = []int{10}
	fx := newTimetableFixture(t, catalogStub{input: in}, nil)

	_, err := fx.svc.Generate(context.Background(), dto.GenerateRequest{}, nil)

	assert.True(t, appErrors.Is(err, appErrors.ErrValidation))
	assert.Empty(t, fx.runs.created)
}

func TestTimetableServiceGenerateRollsBackOnStorageError(t *testing.T) {
	fx := newTimetableFixture(t, catalogStub{input: timetableInput()}, nil)
	fx.slots.replaceErr = errors.New("disk full")
	fx.mock.ExpectBegin()
	fx.mock.ExpectRollback()

	_, err := fx.svc.Generate(context.Background(), dto.GenerateRequest{Seed: seed(2)}, nil)

	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrInternal))
	require.NoError(t, fx.mock.ExpectationsWereMet())
}

func TestTimetableServicePreviewCommitRoundTrip(t *testing.T) {
	fx := newTimetableFixture(t, catalogStub{}, nil)
	dataset := dto.DatasetFromInput(timetableInput())

	preview, err := fx.svc.Preview(context.Background(), dto.PreviewRequest{Dataset: dataset, Seed: seed(9)}, nil)
	require.NoError(t, err)
	require.NotEmpty(t, preview.ProposalID)
	assert.Empty(t, preview.RunID)
	assert.Len(t, preview.Schedule, 2)
	assert.Nil(t, fx.slots.replaced, "preview must not persist")

	fx.mock.ExpectBegin()
	fx.mock.ExpectCommit()
	user := "scheduler-1"
	run, err := fx.svc.Commit(context.Background(), preview.ProposalID, &user)
	require.NoError(t, err)

	assert.Equal(t, models.RunSucceeded, run.Status)
	assert.Equal(t, models.RunSourcePreview, run.Source)
	assert.Equal(t, int64(9), run.Seed)
	assert.Equal(t, &user, run.RequestedBy)
	require.Len(t, fx.slots.replaced, 2)
	assert.Equal(t, preview.Schedule[0].ID, fx.slots.replaced[0].ID)
	require.NoError(t, fx.mock.ExpectationsWereMet())

	_, err = fx.svc.Commit(context.Background(), preview.ProposalID, nil)
	assert.True(t, appErrors.Is(err, appErrors.ErrNotFound))
}

func TestTimetableServicePreviewValidatesDataset(t *testing.T) {
	fx := newTimetableFixture(t, catalogStub{}, nil)
	dataset := dto.DatasetFromInput(timetableInput())
	dataset.Institution.LessonsPerDay = 0

	_, err := fx.svc.Preview(context.Background(), dto.PreviewRequest{Dataset: dataset}, nil)

	assert.True(t, appErrors.Is(err, appErrors.ErrValidation))
}

func TestTimetableServicePreviewNothingScheduled(t *testing.T) {
	fx := newTimetableFixture(t, catalogStub{}, nil)
	in := timetableInput()
	in.Teachers[0].AvailableHours = map[string][]int{}
	dataset := dto.DatasetFromInput(in)

	_, err := fx.svc.Preview(context.Background(), dto.PreviewRequest{Dataset: dataset}, nil)

	assert.True(t, appErrors.Is(err, appErrors.ErrSchedulingFailed))
	assert.Zero(t, fx.svc.store.Len())
}

func TestTimetableServiceProposalsExpire(t *testing.T) {
	fx := newTimetableFixture(t, catalogStub{}, nil)
	preview, err := fx.svc.Preview(context.Background(), dto.PreviewRequest{Dataset: dto.DatasetFromInput(timetableInput())}, nil)
	require.NoError(t, err)
	require.Equal(t, 1, fx.svc.store.Len())

	later := time.Now().Add(2 * time.Minute)
	fx.svc.store.now = func() time.Time { return later }

	assert.Equal(t, 1, fx.svc.SweepProposals())
	assert.Zero(t, fx.svc.store.Len())
	_, err = fx.svc.Commit(context.Background(), preview.ProposalID, nil)
	assert.True(t, appErrors.Is(err, appErrors.ErrNotFound))
}

type memoryCacheRepo struct {
	mu    sync.Mutex
	items map[string]interface{}
}

func (m *memoryCacheRepo) Get(ctx context.Context, key string, dest interface{}) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.items[key]
	if !ok {
		return appErrors.ErrCacheMiss
	}
	p, ok := dest.(*timetableProposal)
	if !ok {
		return errors.New("unexpected destination")
	}
	*p = v.(timetableProposal)
	return nil
}

func (m *memoryCacheRepo) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items[key] = value
	return nil
}

func (m *memoryCacheRepo) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.items, key)
	return nil
}

func TestTimetableServiceCommitOnOtherInstanceThroughCache(t *testing.T) {
	repo := &memoryCacheRepo{items: map[string]interface{}{}}
	metrics := NewMetricsService()
	cache := NewCacheService(repo, metrics, time.Minute, zap.NewNop(), true)

	first := newTimetableFixture(t, catalogStub{}, cache)
	second := newTimetableFixture(t, catalogStub{}, cache)

	preview, err := first.svc.Preview(context.Background(), dto.PreviewRequest{Dataset: dto.DatasetFromInput(timetableInput())}, nil)
	require.NoError(t, err)
	require.Contains(t, repo.items, proposalCachePrefix+preview.ProposalID)

	second.mock.ExpectBegin()
	second.mock.ExpectCommit()
	_, err = second.svc.Commit(context.Background(), preview.ProposalID, nil)
	require.NoError(t, err)

	assert.NotContains(t, repo.items, proposalCachePrefix+preview.ProposalID)
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.cacheHits))
	require.NoError(t, second.mock.ExpectationsWereMet())
}

func TestTimetableServiceGetRun(t *testing.T) {
	fx := newTimetableFixture(t, catalogStub{}, nil)
	require.NoError(t, fx.runs.Create(context.Background(), nil, &models.TimetableRun{Status: models.RunSucceeded}))

	run, err := fx.svc.GetRun(context.Background(), "run-1")
	require.NoError(t, err)
	assert.Equal(t, models.RunSucceeded, run.Status)

	_, err = fx.svc.GetRun(context.Background(), "missing")
	assert.True(t, appErrors.Is(err, appErrors.ErrNotFound))
}

func TestTimetableServiceListRunsNormalizesLimit(t *testing.T) {
	fx := newTimetableFixture(t, catalogStub{}, nil)

	runs, err := fx.svc.ListRuns(context.Background(), dto.RunQuery{})
	require.NoError(t, err)
	assert.NotNil(t, runs)
	assert.Equal(t, dto.DefaultRunLimit, fx.runs.listLimit)

	_, err = fx.svc.ListRuns(context.Background(), dto.RunQuery{Limit: 1000})
	require.NoError(t, err)
	assert.Equal(t, dto.MaxRunLimit, fx.runs.listLimit)
}

func TestTimetableServiceSchedule(t *testing.T) {
	fx := newTimetableFixture(t, catalogStub{}, nil)

	slots, err := fx.svc.Schedule(context.Background(), dto.ScheduleQuery{GroupID: " g1 ", Day: "tuesday"})
	require.NoError(t, err)
	assert.NotNil(t, slots)
	assert.Equal(t, models.ScheduleFilter{ClassGroupID: "g1", Day: "Tuesday"}, fx.slots.filter)

	_, err = fx.svc.Schedule(context.Background(), dto.ScheduleQuery{Day: "Funday"})
	assert.True(t, appErrors.Is(err, appErrors.ErrValidation))
}

func TestTimetableServiceClearSchedule(t *testing.T) {
	fx := newTimetableFixture(t, catalogStub{}, nil)
	fx.slots.deleted = 12

	deleted, err := fx.svc.ClearSchedule(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(12), deleted)
}

type queueStub struct {
	jobs []jobs.Job
	err  error
}

func (q *queueStub) Enqueue(job jobs.Job) error {
	if q.err != nil {
		return q.err
	}
	q.jobs = append(q.jobs, job)
	return nil
}

func TestTimetableServiceEnqueueRequiresQueue(t *testing.T) {
	fx := newTimetableFixture(t, catalogStub{}, nil)

	_, err := fx.svc.EnqueueGenerate(context.Background(), dto.GenerateRequest{}, nil)

	assert.True(t, appErrors.Is(err, appErrors.ErrUnavailable))
}

func TestTimetableServiceQueuedRunCompletes(t *testing.T) {
	fx := newTimetableFixture(t, catalogStub{input: timetableInput()}, nil)
	queue := &queueStub{}
	fx.svc.SetQueue(queue)

	run, err := fx.svc.EnqueueGenerate(context.Background(), dto.GenerateRequest{Seed: seed(4)}, nil)
	require.NoError(t, err)
	assert.Equal(t, models.RunQueued, run.Status)
	require.Len(t, queue.jobs, 1)
	assert.Equal(t, JobTypeGenerate, queue.jobs[0].Type)

	fx.mock.ExpectBegin()
	fx.mock.ExpectCommit()
	require.NoError(t, fx.svc.HandleJob(context.Background(), queue.jobs[0]))

	stored, err := fx.runs.FindByID(context.Background(), run.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RunSucceeded, stored.Status)
	assert.Equal(t, int64(4), stored.Seed)
	require.Len(t, fx.slots.replaced, 2)
	assert.Equal(t, run.ID, *fx.slots.replaced[0].RunID)
	assert.Equal(t, models.RunRunning, fx.runs.updated[0].Status)
	require.NoError(t, fx.mock.ExpectationsWereMet())

	// a terminal run is not generated twice
	require.NoError(t, fx.svc.HandleJob(context.Background(), queue.jobs[0]))
	assert.Len(t, fx.runs.updated, 2)
}

func TestTimetableServiceQueuedRunFailsWithoutRetry(t *testing.T) {
	fx := newTimetableFixture(t, catalogStub{err: fmt.Errorf("get institution: %w", sql.ErrNoRows)}, nil)
	queue := &queueStub{}
	fx.svc.SetQueue(queue)

	run, err := fx.svc.EnqueueGenerate(context.Background(), dto.GenerateRequest{}, nil)
	require.NoError(t, err)

	require.NoError(t, fx.svc.HandleJob(context.Background(), queue.jobs[0]))

	stored, _ := fx.runs.FindByID(context.Background(), run.ID)
	assert.Equal(t, models.RunFailed, stored.Status)
	require.NotNil(t, stored.Error)
	assert.Contains(t, *stored.Error, "institution calendar is not configured")
}

func TestTimetableServiceQueuedRunStorageFaultIsRetried(t *testing.T) {
	fx := newTimetableFixture(t, catalogStub{err: errors.New("connection reset")}, nil)
	queue := &queueStub{}
	fx.svc.SetQueue(queue)

	run, err := fx.svc.EnqueueGenerate(context.Background(), dto.GenerateRequest{}, nil)
	require.NoError(t, err)

	err = fx.svc.HandleJob(context.Background(), queue.jobs[0])
	require.Error(t, err)

	fx.svc.OnJobExhausted(queue.jobs[0], err)
	stored, _ := fx.runs.FindByID(context.Background(), run.ID)
	assert.Equal(t, models.RunFailed, stored.Status)
}

func TestTimetableServiceEnqueueFailureMarksRun(t *testing.T) {
	fx := newTimetableFixture(t, catalogStub{}, nil)
	fx.svc.SetQueue(&queueStub{err: errors.New("queue timetable not started")})

	_, err := fx.svc.EnqueueGenerate(context.Background(), dto.GenerateRequest{}, nil)

	require.Error(t, err)
	stored, _ := fx.runs.FindByID(context.Background(), "run-1")
	assert.Equal(t, models.RunFailed, stored.Status)
}

func TestStartSweeperRejectsBadSpec(t *testing.T) {
	fx := newTimetableFixture(t, catalogStub{}, nil)

	_, err := fx.svc.StartSweeper("not a cron spec")
	assert.Error(t, err)

	c, err := fx.svc.StartSweeper("@every 1h")
	require.NoError(t, err)
	c.Stop()
}
