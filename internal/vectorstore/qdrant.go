package vectorstore

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	grpccodes "google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/fyrsmithlabs/docchatd/internal/logging"
)

// Tracer for OpenTelemetry instrumentation.
var tracer = otel.Tracer("docchatd.vectorstore.qdrant")

// collectionNamePattern validates collection names.
// Pattern: lowercase letters, numbers, underscores, 1-64 characters.
var collectionNamePattern = regexp.MustCompile(`^[a-z0-9_]{1,64}$`)

const (
	defaultSearchLimit = 5
	maxSearchLimit     = 100
)

// Config holds configuration for the Qdrant-backed chunk store.
type Config struct {
	// Host is the Qdrant server hostname or IP address.
	Host string

	// Port is the Qdrant gRPC port (6334), not the HTTP REST port (6333).
	Port int

	// APIKey authenticates the gRPC connection. Empty disables auth.
	APIKey string

	// CollectionName is the collection holding every tenant's chunks.
	// Isolation happens through payload filtering, not per-tenant
	// collections.
	CollectionName string

	// VectorSize is the embedding dimensionality. Must match the
	// embedding provider's output.
	VectorSize uint64

	// UseTLS enables TLS for the gRPC connection.
	UseTLS bool

	// MaxRetries is the retry budget for transient failures. Default: 3.
	MaxRetries int

	// RetryBackoff is the initial backoff, doubled per retry. Default: 1s.
	RetryBackoff time.Duration

	// MaxMessageSize caps gRPC messages. Default: 50MB.
	MaxMessageSize int

	// CircuitBreakerThreshold is the failure count that opens the
	// circuit. Default: 5.
	CircuitBreakerThreshold int

	// UpsertBatchSize is the number of points written per upsert call.
	// Default: 100.
	UpsertBatchSize int

	// ScrollPageSize is the page size for scroll-based scans. Default: 1000.
	ScrollPageSize int
}

// Validate validates the configuration.
func (c Config) Validate() error {
	if c.Host == "" {
		return fmt.Errorf("%w: host required", ErrInvalidConfig)
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("%w: invalid port: %d", ErrInvalidConfig, c.Port)
	}
	if c.CollectionName == "" {
		return fmt.Errorf("%w: collection name required", ErrInvalidConfig)
	}
	if c.VectorSize == 0 {
		return fmt.Errorf("%w: vector size required", ErrInvalidConfig)
	}
	return nil
}

// ApplyDefaults sets default values for unset fields.
func (c *Config) ApplyDefaults() {
	if c.MaxRetries == 0 {
		c.MaxRetries = 3
	}
	if c.RetryBackoff == 0 {
		c.RetryBackoff = time.Second
	}
	if c.MaxMessageSize == 0 {
		c.MaxMessageSize = 50 * 1024 * 1024
	}
	if c.CircuitBreakerThreshold == 0 {
		c.CircuitBreakerThreshold = 5
	}
	if c.UpsertBatchSize == 0 {
		c.UpsertBatchSize = 100
	}
	if c.ScrollPageSize == 0 {
		c.ScrollPageSize = 1000
	}
}

// ValidateCollectionName validates a collection name against security rules.
// Pattern: ^[a-z0-9_]{1,64}$
// Rejects: uppercase, special chars, path traversal, spaces.
func ValidateCollectionName(name string) error {
	if name == "" {
		return fmt.Errorf("%w: collection name cannot be empty", ErrInvalidCollectionName)
	}
	if !collectionNamePattern.MatchString(name) {
		return fmt.Errorf("%w: collection name must match pattern ^[a-z0-9_]{1,64}$, got %q", ErrInvalidCollectionName, name)
	}
	return nil
}

// IsTransientError checks if an error is transient (should retry).
// Returns true for network timeouts, temporary unavailability.
// Returns false for invalid config, not found, permission denied.
func IsTransientError(err error) bool {
	if err == nil {
		return false
	}

	st, ok := status.FromError(err)
	if !ok {
		return false
	}

	switch st.Code() {
	case grpccodes.Unavailable, grpccodes.DeadlineExceeded, grpccodes.Aborted, grpccodes.ResourceExhausted:
		return true
	default:
		return false
	}
}

// QdrantStore is a ChunkStore backed by Qdrant's native gRPC client.
//
// gRPC transport (port 6334) avoids the HTTP layer's payload limits, which
// matters when a single document produces hundreds of chunk points.
type QdrantStore struct {
	client *qdrant.Client
	config Config
	logger *logging.Logger

	// collections caches collection existence to avoid repeated checks.
	collections sync.Map

	// circuitBreaker tracks consecutive failures.
	circuitBreaker struct {
		failures int
		lastFail time.Time
		mu       sync.Mutex
	}
}

var _ ChunkStore = (*QdrantStore)(nil)

// NewQdrantStore creates a store and verifies connectivity.
func NewQdrantStore(config Config, logger *logging.Logger) (*QdrantStore, error) {
	config.ApplyDefaults()

	if err := config.Validate(); err != nil {
		return nil, err
	}
	if err := ValidateCollectionName(config.CollectionName); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	if !config.UseTLS {
		logger.Warn(context.Background(), "qdrant grpc using plaintext, insecure for production")
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   config.Host,
		Port:   config.Port,
		APIKey: config.APIKey,
		UseTLS: config.UseTLS,
		GrpcOptions: []grpc.DialOption{
			grpc.WithDefaultCallOptions(
				grpc.MaxCallRecvMsgSize(config.MaxMessageSize),
				grpc.MaxCallSendMsgSize(config.MaxMessageSize),
			),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConnectionFailed, err)
	}

	store := &QdrantStore{
		client: client,
		config: config,
		logger: logger,
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := store.healthCheck(ctx); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("health check failed: %w", err)
	}

	return store, nil
}

// Close closes the Qdrant gRPC connection.
func (s *QdrantStore) Close() error {
	if s.client != nil {
		return s.client.Close()
	}
	return nil
}

func (s *QdrantStore) healthCheck(ctx context.Context) error {
	ctx, span := tracer.Start(ctx, "QdrantStore.HealthCheck")
	defer span.End()

	_, err := s.client.HealthCheck(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("health check failed: %w", err)
	}

	span.SetStatus(codes.Ok, "healthy")
	return nil
}

// retryOperation retries an operation with exponential backoff.
func (s *QdrantStore) retryOperation(ctx context.Context, operationName string, operation func() error) error {
	backoff := s.config.RetryBackoff

	for attempt := 0; attempt <= s.config.MaxRetries; attempt++ {
		err := operation()
		if err == nil {
			s.resetCircuitBreaker()
			return nil
		}

		if s.isCircuitOpen() {
			return fmt.Errorf("%s: circuit breaker open", operationName)
		}

		if !IsTransientError(err) {
			return fmt.Errorf("%s failed (permanent): %w", operationName, err)
		}

		s.recordFailure()

		if attempt == s.config.MaxRetries {
			return fmt.Errorf("%s failed after %d retries: %w", operationName, s.config.MaxRetries, err)
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("%s canceled: %w", operationName, ctx.Err())
		case <-time.After(backoff):
			backoff *= 2
		}
	}
	return nil
}

func (s *QdrantStore) recordFailure() {
	s.circuitBreaker.mu.Lock()
	defer s.circuitBreaker.mu.Unlock()
	s.circuitBreaker.failures++
	s.circuitBreaker.lastFail = time.Now()
}

func (s *QdrantStore) resetCircuitBreaker() {
	s.circuitBreaker.mu.Lock()
	defer s.circuitBreaker.mu.Unlock()
	s.circuitBreaker.failures = 0
}

func (s *QdrantStore) isCircuitOpen() bool {
	s.circuitBreaker.mu.Lock()
	defer s.circuitBreaker.mu.Unlock()

	if s.circuitBreaker.failures >= s.config.CircuitBreakerThreshold {
		// Allow retry after 30 seconds
		if time.Since(s.circuitBreaker.lastFail) > 30*time.Second {
			s.circuitBreaker.failures = 0
			return false
		}
		return true
	}
	return false
}

// EnsureCollection creates the collection if missing. An existing
// collection must have the configured vector size.
func (s *QdrantStore) EnsureCollection(ctx context.Context) (err error) {
	ctx, span := tracer.Start(ctx, "QdrantStore.EnsureCollection")
	defer span.End()

	start := time.Now()
	defer func() { recordOperation("ensure_collection", start, err) }()

	name := s.config.CollectionName
	span.SetAttributes(attribute.String("collection", name))

	if _, ok := s.collections.Load(name); ok {
		return nil
	}

	var exists bool
	err = s.retryOperation(ctx, "collection_exists", func() error {
		ok, err := s.client.CollectionExists(ctx, name)
		if err != nil {
			return err
		}
		exists = ok
		return nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("checking collection %s: %w", name, err)
	}

	if !exists {
		s.logger.Info(ctx, "creating collection",
			zap.String("collection", name),
			zap.Uint64("vector_size", s.config.VectorSize))

		err = s.retryOperation(ctx, "create_collection", func() error {
			return s.client.CreateCollection(ctx, &qdrant.CreateCollection{
				CollectionName: name,
				VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
					Size:     s.config.VectorSize,
					Distance: qdrant.Distance_Cosine,
				}),
			})
		})
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return fmt.Errorf("creating collection %s: %w", name, err)
		}
	} else {
		info, err := s.collectionInfo(ctx)
		if err != nil {
			span.RecordError(err)
			return err
		}
		if info.VectorSize != 0 && info.VectorSize != int(s.config.VectorSize) {
			err = fmt.Errorf("%w: collection %s has size %d, want %d",
				ErrDimensionMismatch, name, info.VectorSize, s.config.VectorSize)
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return err
		}
	}

	if err = s.ensureFieldIndexes(ctx); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	s.collections.Store(name, true)
	span.SetStatus(codes.Ok, "success")
	return nil
}

// ensureFieldIndexes creates keyword payload indexes for the filter
// fields. Every search and scoped delete filters on these, so they must
// be indexed before the collection grows. Creation is idempotent.
func (s *QdrantStore) ensureFieldIndexes(ctx context.Context) error {
	for _, field := range []string{payloadTenantID, payloadDocumentID} {
		err := s.retryOperation(ctx, "create_field_index", func() error {
			_, err := s.client.CreateFieldIndex(ctx, &qdrant.CreateFieldIndexCollection{
				CollectionName: s.config.CollectionName,
				FieldName:      field,
				FieldType:      qdrant.FieldType_FieldTypeKeyword.Enum(),
				Wait:           qdrant.PtrOf(true),
			})
			if err != nil {
				st, ok := status.FromError(err)
				if ok && st.Code() == grpccodes.AlreadyExists {
					return nil
				}
				return err
			}
			return nil
		})
		if err != nil {
			return fmt.Errorf("indexing payload field %s: %w", field, err)
		}
	}
	return nil
}

// UpsertChunks writes chunks in batches of UpsertBatchSize and returns the
// number of points stored. Every chunk must carry a tenant id and a vector
// of the configured size.
func (s *QdrantStore) UpsertChunks(ctx context.Context, chunks []Chunk) (stored int, err error) {
	ctx, span := tracer.Start(ctx, "QdrantStore.UpsertChunks")
	defer span.End()

	start := time.Now()
	defer func() { recordOperation("upsert", start, err) }()

	span.SetAttributes(
		attribute.Int("chunk_count", len(chunks)),
		attribute.String("collection", s.config.CollectionName),
	)

	if len(chunks) == 0 {
		return 0, nil
	}

	for i, chunk := range chunks {
		if chunk.TenantID == "" {
			return 0, fmt.Errorf("chunk %d: %w", i, ErrTenantRequired)
		}
		if len(chunk.Vector) != int(s.config.VectorSize) {
			return 0, fmt.Errorf("chunk %d: %w: got %d, want %d",
				i, ErrDimensionMismatch, len(chunk.Vector), s.config.VectorSize)
		}
	}

	batchSize := s.config.UpsertBatchSize
	for batchStart := 0; batchStart < len(chunks); batchStart += batchSize {
		batchEnd := batchStart + batchSize
		if batchEnd > len(chunks) {
			batchEnd = len(chunks)
		}
		batch := chunks[batchStart:batchEnd]

		points := make([]*qdrant.PointStruct, len(batch))
		for i, chunk := range batch {
			points[i] = pointFromChunk(chunk)
		}

		err = s.retryOperation(ctx, "upsert", func() error {
			_, err := s.client.Upsert(ctx, &qdrant.UpsertPoints{
				CollectionName: s.config.CollectionName,
				Points:         points,
				Wait:           qdrant.PtrOf(true),
			})
			return err
		})
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return stored, fmt.Errorf("upserting batch at %d: %w", batchStart, err)
		}
		stored += len(points)

		s.logger.Debug(ctx, "upserted chunk batch",
			zap.Int("batch_start", batchStart),
			zap.Int("batch_len", len(points)),
			zap.Int("total", len(chunks)))
	}

	pointsUpserted.Add(float64(stored))
	span.SetAttributes(attribute.Int("points_stored", stored))
	span.SetStatus(codes.Ok, "success")
	return stored, nil
}

// Search runs a tenant-scoped similarity query.
func (s *QdrantStore) Search(ctx context.Context, query SearchQuery) (results []ScoredChunk, err error) {
	ctx, span := tracer.Start(ctx, "QdrantStore.Search")
	defer span.End()

	start := time.Now()
	defer func() { recordOperation("search", start, err) }()

	span.SetAttributes(
		attribute.String("collection", s.config.CollectionName),
		attribute.Int("document_filter_count", len(query.DocumentIDs)),
	)

	if query.TenantID == "" {
		return nil, ErrTenantRequired
	}
	if len(query.Vector) != int(s.config.VectorSize) {
		return nil, fmt.Errorf("%w: got %d, want %d",
			ErrDimensionMismatch, len(query.Vector), s.config.VectorSize)
	}

	limit := query.Limit
	if limit <= 0 {
		limit = defaultSearchLimit
	}
	if limit > maxSearchLimit {
		limit = maxSearchLimit
	}
	span.SetAttributes(attribute.Int("limit", limit))

	var points []*qdrant.ScoredPoint
	err = s.retryOperation(ctx, "search", func() error {
		res, err := s.client.Query(ctx, &qdrant.QueryPoints{
			CollectionName: s.config.CollectionName,
			Query:          qdrant.NewQuery(query.Vector...),
			Limit:          qdrant.PtrOf(uint64(limit)),
			WithPayload:    qdrant.NewWithPayload(true),
			Filter:         searchFilter(query.TenantID, query.DocumentIDs),
		})
		if err != nil {
			return err
		}
		points = res
		return nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("searching collection %s: %w", s.config.CollectionName, err)
	}

	results = make([]ScoredChunk, len(points))
	for i, point := range points {
		results[i] = chunkFromScored(point)
	}

	span.SetAttributes(attribute.Int("results_count", len(results)))
	span.SetStatus(codes.Ok, "success")
	return results, nil
}

// DeleteByDocument removes every point of one tenant's document, paging
// through matches with the scroll cursor. Returns the number removed.
func (s *QdrantStore) DeleteByDocument(ctx context.Context, tenantID, documentID string) (deleted int, err error) {
	ctx, span := tracer.Start(ctx, "QdrantStore.DeleteByDocument")
	defer span.End()

	start := time.Now()
	defer func() { recordOperation("delete_by_document", start, err) }()

	span.SetAttributes(
		attribute.String("collection", s.config.CollectionName),
		attribute.String("document_id", documentID),
	)

	if tenantID == "" {
		return 0, ErrTenantRequired
	}
	if documentID == "" {
		return 0, fmt.Errorf("%w: document id required", ErrInvalidConfig)
	}

	filter := documentFilter(tenantID, documentID)

	var offset *qdrant.PointId
	for {
		points, next, scrollErr := s.scrollPage(ctx, filter, offset, false)
		if scrollErr != nil {
			err = scrollErr
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return deleted, err
		}
		if len(points) == 0 {
			break
		}

		ids := make([]*qdrant.PointId, 0, len(points))
		for _, p := range points {
			if p.Id != nil {
				ids = append(ids, p.Id)
			}
		}
		if err = s.deletePoints(ctx, ids); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return deleted, err
		}
		deleted += len(ids)

		if next == nil {
			break
		}
		offset = next
	}

	pointsDeleted.Add(float64(deleted))
	span.SetAttributes(attribute.Int("points_deleted", deleted))
	span.SetStatus(codes.Ok, "success")
	return deleted, nil
}

// ScanOlderThan walks the whole collection and returns the ids of
// points whose created_at payload predates cutoff. Timestamps are
// compared after parsing; points with missing or malformed timestamps
// are never reported as expired.
func (s *QdrantStore) ScanOlderThan(ctx context.Context, cutoff time.Time) (expired []string, err error) {
	ctx, span := tracer.Start(ctx, "QdrantStore.ScanOlderThan")
	defer span.End()

	start := time.Now()
	defer func() { recordOperation("scan_older_than", start, err) }()

	span.SetAttributes(
		attribute.String("collection", s.config.CollectionName),
		attribute.String("cutoff", cutoff.UTC().Format(time.RFC3339)),
	)

	skipped := 0
	scanned := 0
	var offset *qdrant.PointId
	for {
		points, next, scrollErr := s.scrollPage(ctx, nil, offset, true)
		if scrollErr != nil {
			err = scrollErr
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return nil, err
		}
		if len(points) == 0 {
			break
		}
		scanned += len(points)

		for _, p := range points {
			createdAt, ok := pointCreatedAt(p)
			if !ok {
				skipped++
				continue
			}
			if createdAt.Before(cutoff) && p.Id != nil {
				expired = append(expired, p.Id.GetUuid())
			}
		}

		if next == nil {
			break
		}
		offset = next
	}

	if skipped > 0 {
		s.logger.Warn(ctx, "skipped points with unreadable created_at during retention scan",
			zap.Int("skipped", skipped))
	}

	span.SetAttributes(
		attribute.Int("points_scanned", scanned),
		attribute.Int("points_expired", len(expired)),
	)
	span.SetStatus(codes.Ok, "success")
	return expired, nil
}

// DeletePoints removes points by id and returns the number removed.
func (s *QdrantStore) DeletePoints(ctx context.Context, ids []string) (deleted int, err error) {
	ctx, span := tracer.Start(ctx, "QdrantStore.DeletePoints")
	defer span.End()

	start := time.Now()
	defer func() { recordOperation("delete_points", start, err) }()

	span.SetAttributes(
		attribute.String("collection", s.config.CollectionName),
		attribute.Int("id_count", len(ids)),
	)

	if len(ids) == 0 {
		return 0, nil
	}

	pointIDs := make([]*qdrant.PointId, len(ids))
	for i, id := range ids {
		pointIDs[i] = qdrant.NewID(id)
	}

	if err = s.deletePoints(ctx, pointIDs); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return 0, err
	}

	pointsDeleted.Add(float64(len(ids)))
	span.SetStatus(codes.Ok, "success")
	return len(ids), nil
}

// Count returns the number of points belonging to one tenant.
func (s *QdrantStore) Count(ctx context.Context, tenantID string) (count uint64, err error) {
	ctx, span := tracer.Start(ctx, "QdrantStore.Count")
	defer span.End()

	start := time.Now()
	defer func() { recordOperation("count", start, err) }()

	span.SetAttributes(attribute.String("collection", s.config.CollectionName))

	if tenantID == "" {
		return 0, ErrTenantRequired
	}

	err = s.retryOperation(ctx, "count", func() error {
		n, err := s.client.Count(ctx, &qdrant.CountPoints{
			CollectionName: s.config.CollectionName,
			Filter:         searchFilter(tenantID, nil),
			Exact:          qdrant.PtrOf(true),
		})
		if err != nil {
			return err
		}
		count = n
		return nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return 0, fmt.Errorf("counting tenant points: %w", err)
	}

	span.SetAttributes(attribute.Int("point_count", int(count)))
	span.SetStatus(codes.Ok, "success")
	return count, nil
}

// Info reports point count and vector size for the collection.
func (s *QdrantStore) Info(ctx context.Context) (info *CollectionInfo, err error) {
	ctx, span := tracer.Start(ctx, "QdrantStore.Info")
	defer span.End()

	start := time.Now()
	defer func() { recordOperation("info", start, err) }()

	span.SetAttributes(attribute.String("collection", s.config.CollectionName))

	info, err = s.collectionInfo(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	span.SetAttributes(attribute.Int("point_count", info.PointsCount))
	span.SetStatus(codes.Ok, "success")
	return info, nil
}

func (s *QdrantStore) collectionInfo(ctx context.Context) (*CollectionInfo, error) {
	var info *CollectionInfo
	err := s.retryOperation(ctx, "get_collection_info", func() error {
		collInfo, err := s.client.GetCollectionInfo(ctx, s.config.CollectionName)
		if err != nil {
			st, ok := status.FromError(err)
			if ok && st.Code() == grpccodes.NotFound {
				return ErrCollectionNotFound
			}
			return err
		}

		var vectorSize int
		if params := collInfo.GetConfig().GetParams().GetVectorsConfig().GetParams(); params != nil {
			vectorSize = int(params.Size)
		}
		pointsCount := 0
		if collInfo.PointsCount != nil {
			pointsCount = int(*collInfo.PointsCount)
		}
		statusName := "unknown"
		if collInfo.Status != 0 {
			statusName = collInfo.Status.String()
		}

		info = &CollectionInfo{
			Name:        s.config.CollectionName,
			PointsCount: pointsCount,
			VectorSize:  vectorSize,
			Status:      statusName,
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrCollectionNotFound) {
			return nil, ErrCollectionNotFound
		}
		return nil, fmt.Errorf("getting collection info for %s: %w", s.config.CollectionName, err)
	}
	return info, nil
}

// scrollPage fetches one page of points matching filter starting at offset.
func (s *QdrantStore) scrollPage(ctx context.Context, filter *qdrant.Filter, offset *qdrant.PointId, withPayload bool) ([]*qdrant.RetrievedPoint, *qdrant.PointId, error) {
	var (
		points []*qdrant.RetrievedPoint
		next   *qdrant.PointId
	)
	err := s.retryOperation(ctx, "scroll", func() error {
		pts, nextOffset, err := s.client.ScrollAndOffset(ctx, &qdrant.ScrollPoints{
			CollectionName: s.config.CollectionName,
			Filter:         filter,
			Offset:         offset,
			Limit:          qdrant.PtrOf(uint32(s.config.ScrollPageSize)),
			WithPayload:    qdrant.NewWithPayload(withPayload),
		})
		if err != nil {
			return err
		}
		points, next = pts, nextOffset
		return nil
	})
	if err != nil {
		return nil, nil, fmt.Errorf("scrolling collection %s: %w", s.config.CollectionName, err)
	}
	return points, next, nil
}

// deletePoints removes points by id, waiting for the operation to apply so
// scroll cursors stay consistent with deletions.
func (s *QdrantStore) deletePoints(ctx context.Context, ids []*qdrant.PointId) error {
	if len(ids) == 0 {
		return nil
	}
	err := s.retryOperation(ctx, "delete", func() error {
		_, err := s.client.Delete(ctx, &qdrant.DeletePoints{
			CollectionName: s.config.CollectionName,
			Points:         qdrant.NewPointsSelector(ids...),
			Wait:           qdrant.PtrOf(true),
		})
		return err
	})
	if err != nil {
		return fmt.Errorf("deleting %d points: %w", len(ids), err)
	}
	return nil
}

// pointFromChunk converts a chunk into a Qdrant point with a fresh UUID id.
func pointFromChunk(chunk Chunk) *qdrant.PointStruct {
	return &qdrant.PointStruct{
		Id:      qdrant.NewID(uuid.NewString()),
		Vectors: qdrant.NewVectors(chunk.Vector...),
		Payload: qdrant.NewValueMap(map[string]any{
			payloadDocumentID:   chunk.DocumentID,
			payloadTenantID:     chunk.TenantID,
			payloadDocumentName: chunk.DocumentName,
			payloadChunkText:    chunk.Text,
			payloadChunkIndex:   int64(chunk.Index),
			payloadCreatedAt:    chunk.CreatedAt.UTC().Format(time.RFC3339),
		}),
	}
}

// chunkFromScored converts a search hit back into a ScoredChunk.
func chunkFromScored(point *qdrant.ScoredPoint) ScoredChunk {
	chunk := ScoredChunk{Score: point.Score}
	if point.Id != nil {
		chunk.PointID = point.Id.GetUuid()
	}
	for key, value := range point.Payload {
		switch key {
		case payloadDocumentID:
			chunk.DocumentID = value.GetStringValue()
		case payloadDocumentName:
			chunk.DocumentName = value.GetStringValue()
		case payloadChunkText:
			chunk.Text = value.GetStringValue()
		case payloadChunkIndex:
			chunk.Index = int(value.GetIntegerValue())
		}
	}
	return chunk
}

// pointCreatedAt reads and parses the created_at payload field.
func pointCreatedAt(point *qdrant.RetrievedPoint) (time.Time, bool) {
	value, ok := point.Payload[payloadCreatedAt]
	if !ok {
		return time.Time{}, false
	}
	raw := value.GetStringValue()
	if raw == "" {
		return time.Time{}, false
	}
	createdAt, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, false
	}
	return createdAt, true
}

// searchFilter builds the tenant-scoped filter for similarity queries.
func searchFilter(tenantID string, documentIDs []string) *qdrant.Filter {
	must := []*qdrant.Condition{
		qdrant.NewMatch(payloadTenantID, tenantID),
	}
	if len(documentIDs) > 0 {
		must = append(must, matchKeywords(payloadDocumentID, documentIDs))
	}
	return &qdrant.Filter{Must: must}
}

// documentFilter matches every point of one tenant's document.
func documentFilter(tenantID, documentID string) *qdrant.Filter {
	return &qdrant.Filter{Must: []*qdrant.Condition{
		qdrant.NewMatch(payloadTenantID, tenantID),
		qdrant.NewMatch(payloadDocumentID, documentID),
	}}
}

// matchKeywords matches a payload field against any of the given values.
func matchKeywords(key string, values []string) *qdrant.Condition {
	return &qdrant.Condition{
		ConditionOneOf: &qdrant.Condition_Field{
			Field: &qdrant.FieldCondition{
				Key: key,
				Match: &qdrant.Match{
					MatchValue: &qdrant.Match_Keywords{
						Keywords: &qdrant.RepeatedStrings{Strings: values},
					},
				},
			},
		},
	}
}
