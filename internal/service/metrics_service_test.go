package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	appErrors "github.com/noah-isme/sma-timetable-api/pkg/errors"
)

func TestMetricsServiceSnapshot(t *testing.T) {
	m := NewMetricsService()

	m.ObserveHTTPRequest("POST", "/api/v1/timetable/generate", 200, 20*time.Millisecond)
	m.ObserveHTTPRequest("GET", "/api/v1/timetable/runs", 200, 10*time.Millisecond)
	m.ObserveGeneration("DATABASE", OutcomePartial, 10, 2, time.Second)
	m.ObserveGeneration("PREVIEW", OutcomeSucceeded, 5, 0, time.Second)
	m.RecordCacheOperation(true, time.Millisecond)
	m.RecordCacheOperation(false, time.Millisecond)
	m.SetQueueDepth(3)

	snap := m.Snapshot()
	assert.Equal(t, uint64(2), snap.RequestsTotal)
	assert.InDelta(t, 15.0, snap.AverageRequestDurationMs, 0.001)
	assert.Equal(t, uint64(2), snap.GenerationsTotal)
	assert.Equal(t, uint64(15), snap.LessonsPlacedTotal)
	assert.Equal(t, uint64(2), snap.LessonsFailedTotal)
	assert.InDelta(t, 0.5, snap.CacheHitRatio, 0.001)
	assert.Positive(t, snap.Goroutines)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.generationTotal.WithLabelValues("DATABASE", OutcomePartial)))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.queueDepth))
}

func TestMetricsServiceNilSafe(t *testing.T) {
	var m *MetricsService

	assert.NotPanics(t, func() {
		m.ObserveHTTPRequest("GET", "/", 200, time.Millisecond)
		m.ObserveGeneration("DATABASE", OutcomeFailed, 0, 1, time.Millisecond)
		m.ObserveDBQuery("replace_schedule", time.Millisecond)
		m.SetQueueDepth(1)
		m.RecordCacheOperation(true, time.Millisecond)
	})
	assert.Zero(t, m.Snapshot().GenerationsTotal)
}

type failingCacheRepo struct {
	memoryCacheRepo
	err error
}

func (f *failingCacheRepo) Get(ctx context.Context, key string, dest interface{}) error {
	return f.err
}

func TestCacheServiceDisabledIsNoop(t *testing.T) {
	repo := &memoryCacheRepo{items: map[string]interface{}{}}
	svc := NewCacheService(repo, nil, 0, zap.NewNop(), false)

	require.NoError(t, svc.Set(context.Background(), "k", timetableProposal{ID: "p"}, time.Minute))
	assert.Empty(t, repo.items)

	var nilSvc *CacheService
	hit, err := nilSvc.Get(context.Background(), "k", &timetableProposal{})
	require.NoError(t, err)
	assert.False(t, hit)
}

func TestCacheServiceRecordsMissesAndErrors(t *testing.T) {
	metrics := NewMetricsService()
	repo := &failingCacheRepo{memoryCacheRepo: memoryCacheRepo{items: map[string]interface{}{}}, err: appErrors.ErrCacheMiss}
	svc := NewCacheService(repo, metrics, time.Minute, zap.NewNop(), true)

	hit, err := svc.Get(context.Background(), "k", &timetableProposal{})
	require.NoError(t, err)
	assert.False(t, hit)

	repo.err = errors.New("connection refused")
	hit, err = svc.Get(context.Background(), "k", &timetableProposal{})
	assert.Error(t, err)
	assert.False(t, hit)

	assert.Equal(t, 2.0, testutil.ToFloat64(metrics.cacheMisses))
}

func TestProposalStoreFallsBackToMemoryWhenCacheFails(t *testing.T) {
	repo := &failingCacheRepo{memoryCacheRepo: memoryCacheRepo{items: map[string]interface{}{}}, err: errors.New("timeout")}
	store := newProposalStore(time.Minute, NewCacheService(repo, nil, time.Minute, zap.NewNop(), true))

	store.Save(context.Background(), timetableProposal{ID: "p1", RequestedAt: time.Now()})

	got, ok := store.Get(context.Background(), "p1")
	require.True(t, ok)
	assert.Equal(t, "p1", got.ID)

	_, ok = store.Get(context.Background(), "missing")
	assert.False(t, ok)
}
