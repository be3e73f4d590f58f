package retention

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/docchatd/internal/ingest"
	"github.com/fyrsmithlabs/docchatd/internal/logging"
	"github.com/fyrsmithlabs/docchatd/internal/metadata"
)

type fakeSource struct {
	mu   sync.Mutex
	docs []metadata.Document
	err  error

	cutoffs []time.Time
}

func (f *fakeSource) ListOlderThan(_ context.Context, cutoff time.Time) ([]metadata.Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cutoffs = append(f.cutoffs, cutoff)
	if f.err != nil {
		return nil, f.err
	}
	return f.docs, nil
}

type fakeDeleter struct {
	mu      sync.Mutex
	errs    map[string]error
	vectors map[string]int

	deleted []string
}

func (f *fakeDeleter) Delete(_ context.Context, _, documentID string) (*ingest.DeleteReport, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.errs[documentID]; err != nil {
		return nil, err
	}
	f.deleted = append(f.deleted, documentID)
	return &ingest.DeleteReport{
		DocumentID:     documentID,
		VectorsDeleted: f.vectors[documentID],
	}, nil
}

type fakePoints struct {
	mu        sync.Mutex
	ids       []string
	scanErr   error
	deleteErr error

	deleteCalls int
}

func (f *fakePoints) ScanOlderThan(_ context.Context, _ time.Time) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.scanErr != nil {
		return nil, f.scanErr
	}
	return f.ids, nil
}

func (f *fakePoints) DeletePoints(_ context.Context, ids []string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleteCalls++
	if f.deleteErr != nil {
		return 0, f.deleteErr
	}
	return len(ids), nil
}

func newSweeper(t *testing.T, cfg Config, source *fakeSource, deleter *fakeDeleter, points *fakePoints) *Sweeper {
	t.Helper()
	s, err := NewSweeper(cfg, source, deleter, points, logging.NewNop())
	require.NoError(t, err)
	return s
}

func TestNewSweeperValidation(t *testing.T) {
	source := &fakeSource{}
	deleter := &fakeDeleter{}
	points := &fakePoints{}

	_, err := NewSweeper(Config{}, nil, deleter, points, nil)
	assert.ErrorIs(t, err, ErrInvalidConfig)

	_, err = NewSweeper(Config{}, source, nil, points, nil)
	assert.ErrorIs(t, err, ErrInvalidConfig)

	_, err = NewSweeper(Config{}, source, deleter, nil, nil)
	assert.ErrorIs(t, err, ErrInvalidConfig)

	_, err = NewSweeper(Config{Window: -time.Hour}, source, deleter, points, nil)
	assert.ErrorIs(t, err, ErrInvalidConfig)

	_, err = NewSweeper(Config{Interval: -time.Minute}, source, deleter, points, nil)
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestSweeperDefaults(t *testing.T) {
	s := newSweeper(t, Config{}, &fakeSource{}, &fakeDeleter{}, &fakePoints{})
	assert.Equal(t, 72*time.Hour, s.Window())
	assert.Equal(t, 24*time.Hour, s.config.Interval)
}

func TestRunOnce(t *testing.T) {
	source := &fakeSource{docs: []metadata.Document{
		{ID: "doc-1", TenantID: "tenant-1"},
		{ID: "doc-2", TenantID: "tenant-2"},
	}}
	deleter := &fakeDeleter{vectors: map[string]int{"doc-1": 3, "doc-2": 2}}
	points := &fakePoints{ids: []string{"p1", "p2"}}
	s := newSweeper(t, Config{Window: 48 * time.Hour}, source, deleter, points)

	result, err := s.RunOnce(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, result.DocumentsScanned)
	assert.Equal(t, 2, result.DocumentsDeleted)
	assert.Equal(t, 5, result.VectorsDeleted)
	assert.Equal(t, 2, result.OrphansDeleted)
	assert.Zero(t, result.Failures)

	assert.Equal(t, []string{"doc-1", "doc-2"}, deleter.deleted)

	// Cutoff sits the window behind now.
	require.Len(t, source.cutoffs, 1)
	assert.WithinDuration(t, time.Now().UTC().Add(-48*time.Hour), source.cutoffs[0], 5*time.Second)

	assert.Equal(t, result, s.LastResult())
	assert.NoError(t, s.LastError())
	assert.False(t, s.LastSweep().IsZero())
}

func TestRunOnceDeleteFailureContinues(t *testing.T) {
	source := &fakeSource{docs: []metadata.Document{
		{ID: "doc-1", TenantID: "tenant-1"},
		{ID: "doc-2", TenantID: "tenant-1"},
	}}
	deleter := &fakeDeleter{
		errs:    map[string]error{"doc-1": errors.New("postgres down")},
		vectors: map[string]int{"doc-2": 4},
	}
	s := newSweeper(t, Config{}, source, deleter, &fakePoints{})

	result, err := s.RunOnce(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, result.Failures)
	assert.Equal(t, 1, result.DocumentsDeleted)
	assert.Equal(t, 4, result.VectorsDeleted)
	assert.Equal(t, []string{"doc-2"}, deleter.deleted)
}

func TestRunOnceListError(t *testing.T) {
	source := &fakeSource{err: errors.New("postgres down")}
	s := newSweeper(t, Config{}, source, &fakeDeleter{}, &fakePoints{})

	_, err := s.RunOnce(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "listing expired documents")

	assert.Nil(t, s.LastResult())
	assert.Error(t, s.LastError())
}

func TestRunOnceOrphanScanFailureDegrades(t *testing.T) {
	points := &fakePoints{scanErr: errors.New("qdrant unavailable")}
	s := newSweeper(t, Config{}, &fakeSource{}, &fakeDeleter{}, points)

	result, err := s.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, result.Failures)
	assert.Zero(t, result.OrphansDeleted)
	assert.Zero(t, points.deleteCalls)
}

func TestRunOnceNoOrphans(t *testing.T) {
	points := &fakePoints{}
	s := newSweeper(t, Config{}, &fakeSource{}, &fakeDeleter{}, points)

	result, err := s.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Zero(t, result.OrphansDeleted)
	assert.Zero(t, points.deleteCalls)
}

func TestRunWindowOverride(t *testing.T) {
	source := &fakeSource{}
	s := newSweeper(t, Config{Window: 72 * time.Hour}, source, &fakeDeleter{}, &fakePoints{})

	_, err := s.RunWindow(context.Background(), 24*time.Hour)
	require.NoError(t, err)

	require.Len(t, source.cutoffs, 1)
	assert.WithinDuration(t, time.Now().UTC().Add(-24*time.Hour), source.cutoffs[0], 5*time.Second)
}

func TestRunWindowRejectsNonPositive(t *testing.T) {
	s := newSweeper(t, Config{}, &fakeSource{}, &fakeDeleter{}, &fakePoints{})

	_, err := s.RunWindow(context.Background(), 0)
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestSweeperStartStop(t *testing.T) {
	source := &fakeSource{docs: []metadata.Document{{ID: "doc-1", TenantID: "tenant-1"}}}
	deleter := &fakeDeleter{}
	s := newSweeper(t, Config{Interval: 10 * time.Millisecond}, source, deleter, &fakePoints{})

	s.Start(context.Background())
	assert.True(t, s.IsRunning())

	// The first sweep runs immediately.
	assert.Eventually(t, func() bool {
		return s.LastResult() != nil
	}, 2*time.Second, 5*time.Millisecond)

	s.Stop()
	assert.False(t, s.IsRunning())

	// Stopping again is a no-op.
	s.Stop()
}

func TestSweeperStartIdempotent(t *testing.T) {
	s := newSweeper(t, Config{Interval: time.Hour}, &fakeSource{}, &fakeDeleter{}, &fakePoints{})

	s.Start(context.Background())
	s.Start(context.Background())
	assert.True(t, s.IsRunning())

	s.Stop()
	assert.False(t, s.IsRunning())
}
