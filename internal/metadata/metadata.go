// Package metadata persists document records and chat history in Postgres.
package metadata

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var (
	// ErrInvalidConfig indicates the store configuration is invalid.
	ErrInvalidConfig = errors.New("metadata: invalid configuration")

	// ErrNotFound indicates no row matched the tenant and id.
	ErrNotFound = errors.New("metadata: document not found")

	// ErrInvalidStatus indicates an unknown lifecycle status.
	ErrInvalidStatus = errors.New("metadata: invalid status")
)

// Status is a document's ingestion lifecycle state.
type Status string

const (
	// StatusReceived means the file is stored but not yet processed.
	StatusReceived Status = "received"

	// StatusProcessing means ingestion is underway.
	StatusProcessing Status = "processing"

	// StatusCompleted means chunks and vectors are stored and searchable.
	StatusCompleted Status = "completed"

	// StatusError means ingestion failed; ErrorMessage holds the cause.
	StatusError Status = "error"
)

// Valid reports whether s is a known lifecycle status.
func (s Status) Valid() bool {
	switch s {
	case StatusReceived, StatusProcessing, StatusCompleted, StatusError:
		return true
	}
	return false
}

// Document is one uploaded document's metadata row.
type Document struct {
	ID           string
	TenantID     string
	Name         string
	FilePath     string
	FileType     string
	SizeBytes    int64
	Status       Status
	ErrorMessage string
	ChunkCount   int
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Searchable reports whether the document can serve retrieval queries.
func (d *Document) Searchable() bool {
	return d.Status == StatusCompleted
}

// ChatMessage is one question/answer exchange.
type ChatMessage struct {
	ID          string
	TenantID    string
	Question    string
	Answer      string
	DocumentIDs []string
	CreatedAt   time.Time
}

// Stats summarizes one tenant's documents.
type Stats struct {
	Total          int
	ByStatus       map[Status]int
	ByFileType     map[string]int
	TotalSizeBytes int64
}

// ListOptions narrows and pages List results.
type ListOptions struct {
	// Status filters by lifecycle state. Empty means all statuses.
	Status Status

	// Limit caps the page size. Zero uses the default of 50; 200 is the
	// maximum.
	Limit int

	// Offset skips that many newest-first rows.
	Offset int
}

const (
	defaultListLimit = 50
	maxListLimit     = 200
)

func (o ListOptions) normalize() (ListOptions, error) {
	if o.Status != "" && !o.Status.Valid() {
		return o, fmt.Errorf("%w: %q", ErrInvalidStatus, o.Status)
	}
	if o.Limit <= 0 {
		o.Limit = defaultListLimit
	}
	if o.Limit > maxListLimit {
		o.Limit = maxListLimit
	}
	if o.Offset < 0 {
		o.Offset = 0
	}
	return o, nil
}

// DocumentStore is the persistence surface for document metadata.
// Reads and writes are tenant-scoped except ListOlderThan, which feeds
// the retention sweeper across tenants.
type DocumentStore interface {
	Create(ctx context.Context, doc *Document) error
	Get(ctx context.Context, tenantID, id string) (*Document, error)
	List(ctx context.Context, tenantID string, opts ListOptions) ([]Document, error)
	Stats(ctx context.Context, tenantID string) (*Stats, error)
	UpdateStatus(ctx context.Context, tenantID, id string, status Status, errorMessage string) error
	MarkCompleted(ctx context.Context, tenantID, id string, chunkCount int) error
	Delete(ctx context.Context, tenantID, id string) error
	ListOlderThan(ctx context.Context, cutoff time.Time) ([]Document, error)
}

// ChatStore persists question/answer history.
type ChatStore interface {
	SaveChatMessage(ctx context.Context, msg *ChatMessage) error
	ListChatMessages(ctx context.Context, tenantID string, limit int) ([]ChatMessage, error)
}
