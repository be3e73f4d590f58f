// Package vectorstore stores and searches document chunk vectors in Qdrant.
package vectorstore

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrInvalidConfig is returned when the store configuration is invalid.
	ErrInvalidConfig = errors.New("vectorstore: invalid configuration")

	// ErrInvalidCollectionName is returned when a collection name fails validation.
	ErrInvalidCollectionName = errors.New("vectorstore: invalid collection name")

	// ErrConnectionFailed is returned when the Qdrant client cannot be created.
	ErrConnectionFailed = errors.New("vectorstore: connection failed")

	// ErrCollectionNotFound is returned when the collection does not exist.
	ErrCollectionNotFound = errors.New("vectorstore: collection not found")

	// ErrTenantRequired is returned when an operation is attempted without a
	// tenant identifier. Tenant scoping fails closed: no tenant, no data.
	ErrTenantRequired = errors.New("vectorstore: tenant id required")

	// ErrDimensionMismatch is returned when a vector does not match the
	// collection's configured size.
	ErrDimensionMismatch = errors.New("vectorstore: vector dimension mismatch")
)

// ChunkStore is the storage surface for embedded document chunks.
//
// Every read and delete that touches tenant data requires an explicit
// tenant id; the store never widens a query beyond one tenant.
type ChunkStore interface {
	// EnsureCollection creates the collection if missing and verifies the
	// vector size of an existing one.
	EnsureCollection(ctx context.Context) error

	// UpsertChunks writes chunks in batches and returns the number stored.
	UpsertChunks(ctx context.Context, chunks []Chunk) (int, error)

	// Search returns the best-scoring chunks for the query vector within
	// the query's tenant scope.
	Search(ctx context.Context, query SearchQuery) ([]ScoredChunk, error)

	// DeleteByDocument removes every point belonging to one document of
	// one tenant and returns the number removed.
	DeleteByDocument(ctx context.Context, tenantID, documentID string) (int, error)

	// ScanOlderThan returns ids of points created before cutoff across
	// all tenants. Used by retention sweeps.
	ScanOlderThan(ctx context.Context, cutoff time.Time) ([]string, error)

	// DeletePoints removes points by id and returns the number removed.
	DeletePoints(ctx context.Context, ids []string) (int, error)

	// Count returns the number of points belonging to one tenant.
	Count(ctx context.Context, tenantID string) (uint64, error)

	// Info reports collection point count and vector size.
	Info(ctx context.Context) (*CollectionInfo, error)

	// Close releases the underlying client connection.
	Close() error
}
