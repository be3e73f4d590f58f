// Package ingest coordinates the document processing pipeline.
//
// A document moves through received → processing → completed | error.
// The coordinator owns every transition: it downloads the stored file,
// extracts text, chunks it, obtains embeddings, writes vector points,
// and reconciles the metadata status on every exit path. Vectors from a
// failed attempt are not rolled back; reprocessing clears them first.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/docchatd/internal/chunking"
	"github.com/fyrsmithlabs/docchatd/internal/embeddings"
	"github.com/fyrsmithlabs/docchatd/internal/extract"
	"github.com/fyrsmithlabs/docchatd/internal/filestore"
	"github.com/fyrsmithlabs/docchatd/internal/logging"
	"github.com/fyrsmithlabs/docchatd/internal/metadata"
	"github.com/fyrsmithlabs/docchatd/internal/vectorstore"
)

var tracer = otel.Tracer("docchatd.ingest")

var (
	// ErrInvalidConfig indicates a missing dependency or bad setting.
	ErrInvalidConfig = errors.New("ingest: invalid configuration")

	// ErrNoChunks indicates extraction produced no usable text segments.
	ErrNoChunks = errors.New("no text chunks could be extracted from the document")

	// ErrCountMismatch indicates the embedding provider returned a
	// different number of vectors than segments sent.
	ErrCountMismatch = errors.New("mismatch between number of chunks and embeddings")
)

// DocumentStore is the metadata surface the pipeline needs.
type DocumentStore interface {
	Get(ctx context.Context, tenantID, id string) (*metadata.Document, error)
	UpdateStatus(ctx context.Context, tenantID, id string, status metadata.Status, errorMessage string) error
	MarkCompleted(ctx context.Context, tenantID, id string, chunkCount int) error
	Delete(ctx context.Context, tenantID, id string) error
}

// FileStore is the slice of the upload store the pipeline needs.
type FileStore interface {
	DownloadTemp(ctx context.Context, path string) (string, func(), error)
	Delete(ctx context.Context, path string) error
}

// Extractor produces plain text from raw file bytes.
type Extractor interface {
	Text(ctx context.Context, data []byte, fileType string) (string, error)
}

// Chunker splits text into embedding-sized segments.
type Chunker interface {
	Split(text string) ([]string, error)
}

// Embedder turns segments into vectors.
type Embedder interface {
	EmbedBatched(ctx context.Context, texts []string, batchSize int) ([][]float32, error)
}

// VectorStore is the point storage the pipeline needs.
type VectorStore interface {
	EnsureCollection(ctx context.Context) error
	UpsertChunks(ctx context.Context, chunks []vectorstore.Chunk) (int, error)
	DeleteByDocument(ctx context.Context, tenantID, documentID string) (int, error)
}

var (
	_ DocumentStore = (metadata.DocumentStore)(nil)
	_ FileStore     = (*filestore.Store)(nil)
	_ Extractor     = (*extract.Extractor)(nil)
	_ Chunker       = (*chunking.Splitter)(nil)
	_ Embedder      = (embeddings.Provider)(nil)
	_ VectorStore   = (vectorstore.ChunkStore)(nil)
)

// Config holds pipeline settings.
type Config struct {
	// EmbedBatchSize is the segment group size sent to the embedding
	// provider per batch. Zero uses the provider default.
	EmbedBatchSize int
}

// Deps are the coordinator's collaborators. All are required except
// Logger.
type Deps struct {
	Documents DocumentStore
	Files     FileStore
	Extractor Extractor
	Chunker   Chunker
	Embedder  Embedder
	Vectors   VectorStore
	Logger    *logging.Logger
}

// Coordinator drives documents through the ingestion pipeline.
type Coordinator struct {
	config    Config
	documents DocumentStore
	files     FileStore
	extractor Extractor
	chunker   Chunker
	embedder  Embedder
	vectors   VectorStore
	logger    *logging.Logger
}

// NewCoordinator creates a coordinator.
func NewCoordinator(cfg Config, deps Deps) (*Coordinator, error) {
	switch {
	case deps.Documents == nil:
		return nil, fmt.Errorf("%w: document store is required", ErrInvalidConfig)
	case deps.Files == nil:
		return nil, fmt.Errorf("%w: file store is required", ErrInvalidConfig)
	case deps.Extractor == nil:
		return nil, fmt.Errorf("%w: extractor is required", ErrInvalidConfig)
	case deps.Chunker == nil:
		return nil, fmt.Errorf("%w: chunker is required", ErrInvalidConfig)
	case deps.Embedder == nil:
		return nil, fmt.Errorf("%w: embedder is required", ErrInvalidConfig)
	case deps.Vectors == nil:
		return nil, fmt.Errorf("%w: vector store is required", ErrInvalidConfig)
	}
	if cfg.EmbedBatchSize < 0 {
		return nil, fmt.Errorf("%w: embed batch size must not be negative", ErrInvalidConfig)
	}
	if deps.Logger == nil {
		deps.Logger = logging.NewNop()
	}

	return &Coordinator{
		config:    cfg,
		documents: deps.Documents,
		files:     deps.Files,
		extractor: deps.Extractor,
		chunker:   deps.Chunker,
		embedder:  deps.Embedder,
		vectors:   deps.Vectors,
		logger:    deps.Logger,
	}, nil
}

// Result summarizes a completed ingestion run.
type Result struct {
	DocumentID   string
	ChunksStored int
}

// CleanupOutcome records one best-effort deletion step.
type CleanupOutcome struct {
	Attempted bool
	Succeeded bool
	Err       error
}

// DeleteReport describes a document deletion. The metadata row is the
// authoritative deletion; vector and file cleanup are best-effort and
// their outcomes are reported here.
type DeleteReport struct {
	DocumentID     string
	DocumentName   string
	VectorsDeleted int
	Vectors        CleanupOutcome
	File           CleanupOutcome
}

// DeletedDocument is one successful deletion in a bulk request.
type DeletedDocument struct {
	ID   string
	Name string
}

// FailedDocument is one failed deletion in a bulk request.
type FailedDocument struct {
	ID     string
	Reason string
}

// BulkDeleteReport aggregates per-document outcomes of a bulk delete.
type BulkDeleteReport struct {
	Deleted        []DeletedDocument
	Failed         []FailedDocument
	VectorsDeleted int
}

// Ingest runs the pipeline for a stored document.
func (c *Coordinator) Ingest(ctx context.Context, tenantID, documentID string) (*Result, error) {
	ctx, span := tracer.Start(ctx, "Coordinator.Ingest")
	defer span.End()
	span.SetAttributes(attribute.String("document_id", documentID))

	doc, err := c.documents.Get(ctx, tenantID, documentID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	result, err := c.process(ctx, doc)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(attribute.Int("chunks_stored", result.ChunksStored))
	span.SetStatus(codes.Ok, "success")
	return result, nil
}

// Reprocess deletes the document's existing vectors and runs the
// pipeline again. Without the delete, stale points from the prior
// attempt would surface in searches alongside the fresh ones.
func (c *Coordinator) Reprocess(ctx context.Context, tenantID, documentID string) (*Result, error) {
	ctx, span := tracer.Start(ctx, "Coordinator.Reprocess")
	defer span.End()
	span.SetAttributes(attribute.String("document_id", documentID))

	doc, err := c.documents.Get(ctx, tenantID, documentID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	deleted, err := c.vectors.DeleteByDocument(ctx, tenantID, documentID)
	if err != nil {
		// Best-effort; the fresh attempt still runs.
		c.logger.Warn(ctx, "failed to delete stale vectors before reprocessing",
			zap.String("document_id", documentID),
			zap.Error(err))
	} else if deleted > 0 {
		c.logger.Debug(ctx, "cleared stale vectors",
			zap.String("document_id", documentID),
			zap.Int("deleted", deleted))
	}

	result, err := c.process(ctx, doc)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(attribute.Int("chunks_stored", result.ChunksStored))
	span.SetStatus(codes.Ok, "success")
	return result, nil
}

// process runs the pipeline on a loaded document row and mirrors the
// outcome into the metadata status.
func (c *Coordinator) process(ctx context.Context, doc *metadata.Document) (*Result, error) {
	start := time.Now()

	if err := c.documents.UpdateStatus(ctx, doc.TenantID, doc.ID, metadata.StatusProcessing, ""); err != nil {
		return nil, fmt.Errorf("marking processing: %w", err)
	}

	result, err := c.runPipeline(ctx, doc)
	if err != nil {
		c.markError(ctx, doc, err)
		return nil, err
	}

	if err := c.documents.MarkCompleted(ctx, doc.TenantID, doc.ID, result.ChunksStored); err != nil {
		// The vectors are written; surface the failure rather than leave
		// the row stuck in processing.
		c.markError(ctx, doc, err)
		return nil, fmt.Errorf("marking completed: %w", err)
	}

	c.logger.Info(ctx, "document processed",
		zap.String("document_id", doc.ID),
		zap.String("file_type", doc.FileType),
		zap.Int("chunks_stored", result.ChunksStored),
		zap.Duration("duration", time.Since(start)))
	return result, nil
}

// runPipeline executes download → extract → chunk → embed → upsert.
// The temp file is released on every exit path.
func (c *Coordinator) runPipeline(ctx context.Context, doc *metadata.Document) (*Result, error) {
	tmpPath, cleanup, err := c.files.DownloadTemp(ctx, doc.FilePath)
	if err != nil {
		return nil, fmt.Errorf("downloading stored file: %w", err)
	}
	defer cleanup()

	data, err := os.ReadFile(tmpPath)
	if err != nil {
		return nil, fmt.Errorf("reading downloaded file: %w", err)
	}

	text, err := c.extractor.Text(ctx, data, doc.FileType)
	if err != nil {
		return nil, fmt.Errorf("extracting text: %w", err)
	}

	segments, err := c.chunker.Split(text)
	if err != nil {
		if errors.Is(err, chunking.ErrEmptyInput) {
			return nil, ErrNoChunks
		}
		return nil, fmt.Errorf("chunking text: %w", err)
	}
	if len(segments) == 0 {
		return nil, ErrNoChunks
	}

	vectors, err := c.embedder.EmbedBatched(ctx, segments, c.config.EmbedBatchSize)
	if err != nil {
		return nil, fmt.Errorf("embedding chunks: %w", err)
	}
	if len(vectors) != len(segments) {
		return nil, ErrCountMismatch
	}

	now := time.Now().UTC()
	chunks := make([]vectorstore.Chunk, len(segments))
	for i, segment := range segments {
		chunks[i] = vectorstore.Chunk{
			DocumentID:   doc.ID,
			TenantID:     doc.TenantID,
			DocumentName: doc.Name,
			Text:         segment,
			Index:        i,
			Vector:       vectors[i],
			CreatedAt:    now,
		}
	}

	if err := c.vectors.EnsureCollection(ctx); err != nil {
		return nil, fmt.Errorf("ensuring collection: %w", err)
	}
	stored, err := c.vectors.UpsertChunks(ctx, chunks)
	if err != nil {
		return nil, fmt.Errorf("storing chunks: %w", err)
	}

	return &Result{DocumentID: doc.ID, ChunksStored: stored}, nil
}

// markError records the failure cause on the document row, best-effort.
func (c *Coordinator) markError(ctx context.Context, doc *metadata.Document, cause error) {
	if err := c.documents.UpdateStatus(ctx, doc.TenantID, doc.ID, metadata.StatusError, cause.Error()); err != nil {
		c.logger.Error(ctx, "failed to record error status",
			zap.String("document_id", doc.ID),
			zap.NamedError("cause", cause),
			zap.Error(err))
	}
}

// Delete removes a document's vectors and stored file best-effort, then
// deletes the metadata row. Only a metadata failure fails the call.
func (c *Coordinator) Delete(ctx context.Context, tenantID, documentID string) (*DeleteReport, error) {
	ctx, span := tracer.Start(ctx, "Coordinator.Delete")
	defer span.End()
	span.SetAttributes(attribute.String("document_id", documentID))

	doc, err := c.documents.Get(ctx, tenantID, documentID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	report := &DeleteReport{DocumentID: doc.ID, DocumentName: doc.Name}

	report.Vectors.Attempted = true
	if deleted, err := c.vectors.DeleteByDocument(ctx, tenantID, doc.ID); err != nil {
		report.Vectors.Err = err
		c.logger.Warn(ctx, "failed to delete document vectors",
			zap.String("document_id", doc.ID),
			zap.Error(err))
	} else {
		report.Vectors.Succeeded = true
		report.VectorsDeleted = deleted
	}

	report.File.Attempted = true
	switch err := c.files.Delete(ctx, doc.FilePath); {
	case err == nil, errors.Is(err, filestore.ErrNotFound):
		// A missing file is already in the goal state.
		report.File.Succeeded = true
	default:
		report.File.Err = err
		c.logger.Warn(ctx, "failed to delete stored file",
			zap.String("document_id", doc.ID),
			zap.String("path", doc.FilePath),
			zap.Error(err))
	}

	if err := c.documents.Delete(ctx, tenantID, doc.ID); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return report, fmt.Errorf("deleting document metadata: %w", err)
	}

	c.logger.Info(ctx, "document deleted",
		zap.String("document_id", doc.ID),
		zap.Int("vectors_deleted", report.VectorsDeleted))
	span.SetStatus(codes.Ok, "success")
	return report, nil
}

// DeleteMany deletes documents one by one, collecting per-document
// outcomes. One failure never stops the rest.
func (c *Coordinator) DeleteMany(ctx context.Context, tenantID string, documentIDs []string) (*BulkDeleteReport, error) {
	ctx, span := tracer.Start(ctx, "Coordinator.DeleteMany")
	defer span.End()
	span.SetAttributes(attribute.Int("document_count", len(documentIDs)))

	report := &BulkDeleteReport{}
	for _, id := range documentIDs {
		dr, err := c.Delete(ctx, tenantID, id)
		if err != nil {
			report.Failed = append(report.Failed, FailedDocument{ID: id, Reason: err.Error()})
			continue
		}
		report.Deleted = append(report.Deleted, DeletedDocument{ID: dr.DocumentID, Name: dr.DocumentName})
		report.VectorsDeleted += dr.VectorsDeleted
	}

	span.SetAttributes(
		attribute.Int("deleted", len(report.Deleted)),
		attribute.Int("failed", len(report.Failed)),
	)
	span.SetStatus(codes.Ok, "done")
	return report, nil
}
