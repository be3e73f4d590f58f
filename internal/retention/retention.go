// Package retention deletes documents past their retention window.
//
// The sweeper runs periodically in the background. Each sweep deletes
// every document older than the window through the full deletion path
// (vectors, stored file, metadata row), then clears orphaned vector
// points whose metadata row is already gone.
package retention

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/docchatd/internal/ingest"
	"github.com/fyrsmithlabs/docchatd/internal/logging"
	"github.com/fyrsmithlabs/docchatd/internal/metadata"
	"github.com/fyrsmithlabs/docchatd/internal/vectorstore"
)

const (
	defaultWindow   = 72 * time.Hour
	defaultInterval = 24 * time.Hour

	// sweepTimeout bounds one sweep so a stalled backend cannot wedge
	// the loop.
	sweepTimeout = 10 * time.Minute
)

// ErrInvalidConfig indicates a missing dependency or bad setting.
var ErrInvalidConfig = errors.New("retention: invalid configuration")

// DocumentSource lists documents past the cutoff across all tenants.
type DocumentSource interface {
	ListOlderThan(ctx context.Context, cutoff time.Time) ([]metadata.Document, error)
}

// DocumentDeleter removes one document end to end.
type DocumentDeleter interface {
	Delete(ctx context.Context, tenantID, documentID string) (*ingest.DeleteReport, error)
}

// PointScanner finds and removes aged vector points directly.
type PointScanner interface {
	ScanOlderThan(ctx context.Context, cutoff time.Time) ([]string, error)
	DeletePoints(ctx context.Context, ids []string) (int, error)
}

var (
	_ DocumentSource  = (metadata.DocumentStore)(nil)
	_ DocumentDeleter = (*ingest.Coordinator)(nil)
	_ PointScanner    = (vectorstore.ChunkStore)(nil)
)

// Config holds sweeper settings.
type Config struct {
	// Window is how long documents are kept. Zero uses 72 hours.
	Window time.Duration

	// Interval is the time between sweeps. Zero uses 24 hours.
	Interval time.Duration
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if c.Window < 0 {
		return fmt.Errorf("%w: window must not be negative", ErrInvalidConfig)
	}
	if c.Interval < 0 {
		return fmt.Errorf("%w: interval must not be negative", ErrInvalidConfig)
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.Window == 0 {
		c.Window = defaultWindow
	}
	if c.Interval == 0 {
		c.Interval = defaultInterval
	}
}

// SweepResult summarizes one sweep.
type SweepResult struct {
	DocumentsScanned int
	DocumentsDeleted int
	VectorsDeleted   int
	OrphansDeleted   int
	Failures         int
}

// Sweeper periodically enforces the retention window.
type Sweeper struct {
	config  Config
	docs    DocumentSource
	deleter DocumentDeleter
	points  PointScanner
	logger  *logging.Logger

	mu         sync.RWMutex
	lastResult *SweepResult
	lastError  error
	lastSweep  time.Time
	running    bool

	stopCh chan struct{}
	doneCh chan struct{}
}

// NewSweeper creates a sweeper.
func NewSweeper(cfg Config, docs DocumentSource, deleter DocumentDeleter, points PointScanner, logger *logging.Logger) (*Sweeper, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg.applyDefaults()

	if docs == nil {
		return nil, fmt.Errorf("%w: document source is required", ErrInvalidConfig)
	}
	if deleter == nil {
		return nil, fmt.Errorf("%w: document deleter is required", ErrInvalidConfig)
	}
	if points == nil {
		return nil, fmt.Errorf("%w: point scanner is required", ErrInvalidConfig)
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	return &Sweeper{
		config:  cfg,
		docs:    docs,
		deleter: deleter,
		points:  points,
		logger:  logger,
		stopCh:  make(chan struct{}),
		doneCh:  make(chan struct{}),
	}, nil
}

// Window returns the configured retention window.
func (s *Sweeper) Window() time.Duration {
	return s.config.Window
}

// Start begins periodic sweeping in the background. Returns
// immediately; sweeping happens in a goroutine.
func (s *Sweeper) Start(ctx context.Context) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	s.mu.Unlock()

	s.logger.Info(ctx, "starting retention sweeper",
		zap.Duration("window", s.config.Window),
		zap.Duration("interval", s.config.Interval))

	go s.run(ctx)
}

// Stop halts the sweeper and waits for the current sweep to finish.
func (s *Sweeper) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()

	close(s.stopCh)
	<-s.doneCh

	s.mu.Lock()
	s.running = false
	s.mu.Unlock()
}

// IsRunning reports whether the background loop is active.
func (s *Sweeper) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

// LastResult returns the most recent sweep result, nil before the
// first sweep.
func (s *Sweeper) LastResult() *SweepResult {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastResult
}

// LastError returns the most recent sweep error, if any.
func (s *Sweeper) LastError() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastError
}

// LastSweep returns when the most recent sweep finished.
func (s *Sweeper) LastSweep() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastSweep
}

func (s *Sweeper) run(ctx context.Context) {
	defer close(s.doneCh)

	s.sweep(ctx)

	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info(ctx, "retention sweeper stopped: context canceled")
			return
		case <-s.stopCh:
			s.logger.Info(ctx, "retention sweeper stopped: stop requested")
			return
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

func (s *Sweeper) sweep(ctx context.Context) {
	sweepCtx, cancel := context.WithTimeout(ctx, sweepTimeout)
	defer cancel()

	if _, err := s.RunOnce(sweepCtx); err != nil {
		s.logger.Error(ctx, "retention sweep failed", zap.Error(err))
	}
}

// RunOnce performs a single sweep with the configured window.
func (s *Sweeper) RunOnce(ctx context.Context) (*SweepResult, error) {
	return s.RunWindow(ctx, s.config.Window)
}

// RunWindow performs a single sweep with an explicit window and returns
// its result. Per-document failures degrade the sweep rather than abort
// it; only a failure to list candidates at all returns an error.
func (s *Sweeper) RunWindow(ctx context.Context, window time.Duration) (*SweepResult, error) {
	if window <= 0 {
		return nil, fmt.Errorf("%w: window must be positive", ErrInvalidConfig)
	}

	cutoff := time.Now().UTC().Add(-window)
	result := &SweepResult{}

	docs, err := s.docs.ListOlderThan(ctx, cutoff)
	if err != nil {
		err = fmt.Errorf("listing expired documents: %w", err)
		s.record(nil, err)
		return nil, err
	}
	result.DocumentsScanned = len(docs)

	for _, doc := range docs {
		report, err := s.deleter.Delete(ctx, doc.TenantID, doc.ID)
		if err != nil {
			result.Failures++
			s.logger.Warn(ctx, "failed to delete expired document",
				zap.String("document_id", doc.ID),
				zap.Error(err))
			continue
		}
		result.DocumentsDeleted++
		result.VectorsDeleted += report.VectorsDeleted
	}

	// Orphan pass. Points whose metadata row is already gone still age
	// out by their own created_at payload.
	ids, err := s.points.ScanOlderThan(ctx, cutoff)
	if err != nil {
		result.Failures++
		s.logger.Warn(ctx, "failed to scan for orphaned points", zap.Error(err))
	} else if len(ids) > 0 {
		deleted, err := s.points.DeletePoints(ctx, ids)
		if err != nil {
			result.Failures++
			s.logger.Warn(ctx, "failed to delete orphaned points",
				zap.Int("candidates", len(ids)),
				zap.Error(err))
		} else {
			result.OrphansDeleted = deleted
		}
	}

	s.record(result, nil)
	s.logger.Info(ctx, "retention sweep completed",
		zap.Time("cutoff", cutoff),
		zap.Int("documents_scanned", result.DocumentsScanned),
		zap.Int("documents_deleted", result.DocumentsDeleted),
		zap.Int("vectors_deleted", result.VectorsDeleted),
		zap.Int("orphans_deleted", result.OrphansDeleted),
		zap.Int("failures", result.Failures))
	return result, nil
}

func (s *Sweeper) record(result *SweepResult, err error) {
	s.mu.Lock()
	if result != nil {
		s.lastResult = result
	}
	s.lastError = err
	s.lastSweep = time.Now().UTC()
	s.mu.Unlock()
}
