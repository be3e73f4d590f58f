package httpapi

import (
	"errors"
	"fmt"
	"math"
	"net/http"
	"path/filepath"
	"strconv"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/docchatd/internal/auth"
	"github.com/fyrsmithlabs/docchatd/internal/extract"
	"github.com/fyrsmithlabs/docchatd/internal/filestore"
	"github.com/fyrsmithlabs/docchatd/internal/metadata"
)

// tenantID resolves the authenticated tenant or fails the request.
func (s *Server) tenantID(c echo.Context) (string, error) {
	tenantID, err := auth.TenantID(c)
	if err != nil {
		return "", echo.NewHTTPError(http.StatusUnauthorized, "no authenticated tenant")
	}
	return tenantID, nil
}

// handleUpload receives a multipart file, stores it, and runs the
// ingestion pipeline synchronously. A pipeline failure is reported in
// the envelope; the document row keeps the error for later inspection.
func (s *Server) handleUpload(c echo.Context) error {
	ctx := c.Request().Context()
	tenantID, err := s.tenantID(c)
	if err != nil {
		return err
	}

	fileHeader, err := c.FormFile("file")
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "file field is required")
	}

	fileType, err := extract.TypeFromFilename(fileHeader.Filename)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest,
			fmt.Sprintf("unsupported file type %q", filepath.Ext(fileHeader.Filename)))
	}

	src, err := fileHeader.Open()
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "unreadable file upload")
	}
	defer src.Close()

	documentID := uuid.NewString()
	relPath, size, err := s.files.Save(ctx, tenantID, documentID, fileHeader.Filename, src)
	if err != nil {
		switch {
		case errors.Is(err, filestore.ErrTooLarge):
			return echo.NewHTTPError(http.StatusRequestEntityTooLarge, "file exceeds the size limit")
		case errors.Is(err, filestore.ErrInvalidPath):
			return echo.NewHTTPError(http.StatusBadRequest, "invalid file name")
		default:
			return fmt.Errorf("saving upload: %w", err)
		}
	}

	doc := &metadata.Document{
		ID:        documentID,
		TenantID:  tenantID,
		Name:      filepath.Base(fileHeader.Filename),
		FilePath:  relPath,
		FileType:  fileType,
		SizeBytes: size,
		Status:    metadata.StatusReceived,
	}
	if err := s.documents.Create(ctx, doc); err != nil {
		return fmt.Errorf("creating document record: %w", err)
	}

	s.logger.Info(ctx, "document received",
		zap.String("document_id", documentID),
		zap.String("file_type", fileType),
		zap.Int64("size_bytes", size))

	result, err := s.pipeline.Ingest(ctx, tenantID, documentID)
	if err != nil {
		return c.JSON(http.StatusOK, APIResponse{
			Success: false,
			Message: "Failed to process document",
			Error:   err.Error(),
		})
	}

	return c.JSON(http.StatusOK, APIResponse{
		Success: true,
		Message: fmt.Sprintf("Document processed successfully. %d chunks stored.", result.ChunksStored),
		Data: UploadResult{
			DocumentID: documentID,
			Status:     string(metadata.StatusCompleted),
			Message:    fmt.Sprintf("Successfully processed %d chunks", result.ChunksStored),
		},
	})
}

// handleListDocuments returns the tenant's documents, newest first.
func (s *Server) handleListDocuments(c echo.Context) error {
	ctx := c.Request().Context()
	tenantID, err := s.tenantID(c)
	if err != nil {
		return err
	}

	opts := metadata.ListOptions{}
	if v := c.QueryParam("status"); v != "" {
		status := metadata.Status(v)
		if !status.Valid() {
			return echo.NewHTTPError(http.StatusBadRequest, fmt.Sprintf("unknown status %q", v))
		}
		opts.Status = status
	}
	if v := c.QueryParam("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return echo.NewHTTPError(http.StatusBadRequest, "limit must be a positive integer")
		}
		opts.Limit = n
	}
	if v := c.QueryParam("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return echo.NewHTTPError(http.StatusBadRequest, "offset must not be negative")
		}
		opts.Offset = n
	}

	docs, err := s.documents.List(ctx, tenantID, opts)
	if err != nil {
		if errors.Is(err, metadata.ErrInvalidStatus) {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
		return fmt.Errorf("listing documents: %w", err)
	}

	// The page total counts all matching rows, not just this page.
	stats, err := s.documents.Stats(ctx, tenantID)
	if err != nil {
		return fmt.Errorf("counting documents: %w", err)
	}
	total := stats.Total
	if opts.Status != "" {
		total = stats.ByStatus[opts.Status]
	}

	infos := make([]DocumentInfo, len(docs))
	for i := range docs {
		infos[i] = documentInfo(&docs[i])
	}
	return c.JSON(http.StatusOK, DocumentListResponse{Documents: infos, TotalCount: total})
}

// handleStats returns aggregate document statistics for the tenant.
func (s *Server) handleStats(c echo.Context) error {
	ctx := c.Request().Context()
	tenantID, err := s.tenantID(c)
	if err != nil {
		return err
	}

	stats, err := s.documents.Stats(ctx, tenantID)
	if err != nil {
		return fmt.Errorf("loading document stats: %w", err)
	}

	statusBreakdown := make(map[string]int, len(stats.ByStatus))
	for status, count := range stats.ByStatus {
		statusBreakdown[string(status)] = count
	}
	fileTypeBreakdown := stats.ByFileType
	if fileTypeBreakdown == nil {
		fileTypeBreakdown = map[string]int{}
	}

	resp := StatsResponse{
		TotalDocuments:      stats.Total,
		StatusBreakdown:     statusBreakdown,
		TotalSizeBytes:      stats.TotalSizeBytes,
		TotalSizeMB:         math.Round(float64(stats.TotalSizeBytes)/(1<<20)*100) / 100,
		FileTypeBreakdown:   fileTypeBreakdown,
		CompletedDocuments:  stats.ByStatus[metadata.StatusCompleted],
		ProcessingDocuments: stats.ByStatus[metadata.StatusProcessing],
		ErrorDocuments:      stats.ByStatus[metadata.StatusError],
	}

	// Vector counts are informational; stats still render without them.
	if n, err := s.vectors.Count(ctx, tenantID); err != nil {
		s.logger.Warn(ctx, "failed to count tenant vectors", zap.Error(err))
	} else {
		resp.VectorPoints = &n
	}

	return c.JSON(http.StatusOK, resp)
}

// handleGetDocument returns one document.
func (s *Server) handleGetDocument(c echo.Context) error {
	ctx := c.Request().Context()
	tenantID, err := s.tenantID(c)
	if err != nil {
		return err
	}

	doc, err := s.documents.Get(ctx, tenantID, c.Param("id"))
	if errors.Is(err, metadata.ErrNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "document not found")
	}
	if err != nil {
		return fmt.Errorf("loading document: %w", err)
	}
	return c.JSON(http.StatusOK, documentInfo(doc))
}

// handleDocumentStatus returns the lifecycle state for polling.
func (s *Server) handleDocumentStatus(c echo.Context) error {
	ctx := c.Request().Context()
	tenantID, err := s.tenantID(c)
	if err != nil {
		return err
	}

	doc, err := s.documents.Get(ctx, tenantID, c.Param("id"))
	if errors.Is(err, metadata.ErrNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "document not found")
	}
	if err != nil {
		return fmt.Errorf("loading document: %w", err)
	}
	return c.JSON(http.StatusOK, StatusResponse{
		DocumentID:   doc.ID,
		Status:       string(doc.Status),
		ErrorMessage: doc.ErrorMessage,
	})
}

// handleReprocess re-runs the pipeline for a stored document.
func (s *Server) handleReprocess(c echo.Context) error {
	ctx := c.Request().Context()
	tenantID, err := s.tenantID(c)
	if err != nil {
		return err
	}

	result, err := s.pipeline.Reprocess(ctx, tenantID, c.Param("id"))
	if errors.Is(err, metadata.ErrNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "document not found")
	}
	if err != nil {
		return c.JSON(http.StatusOK, APIResponse{
			Success: false,
			Message: "Failed to reprocess document",
			Error:   err.Error(),
		})
	}

	return c.JSON(http.StatusOK, APIResponse{
		Success: true,
		Message: fmt.Sprintf("Document processed successfully. %d chunks stored.", result.ChunksStored),
		Data: UploadResult{
			DocumentID: result.DocumentID,
			Status:     string(metadata.StatusCompleted),
			Message:    fmt.Sprintf("Successfully processed %d chunks", result.ChunksStored),
		},
	})
}

// handleDeleteDocument deletes one document's vectors, file, and row.
func (s *Server) handleDeleteDocument(c echo.Context) error {
	ctx := c.Request().Context()
	tenantID, err := s.tenantID(c)
	if err != nil {
		return err
	}

	report, err := s.pipeline.Delete(ctx, tenantID, c.Param("id"))
	if errors.Is(err, metadata.ErrNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "document not found")
	}
	if err != nil {
		return c.JSON(http.StatusOK, APIResponse{
			Success: false,
			Message: "Failed to delete document",
			Error:   err.Error(),
		})
	}

	return c.JSON(http.StatusOK, APIResponse{
		Success: true,
		Message: "Document deleted successfully",
		Data: DeleteResult{
			DeletedDocumentID:   report.DocumentID,
			DeletedVectorsCount: report.VectorsDeleted,
			Message: fmt.Sprintf("Deleted document '%s' and %d vectors",
				report.DocumentName, report.VectorsDeleted),
		},
	})
}

// handleBulkDelete deletes several documents, reporting per-id outcomes.
// The request succeeds if at least one document was deleted.
func (s *Server) handleBulkDelete(c echo.Context) error {
	ctx := c.Request().Context()
	tenantID, err := s.tenantID(c)
	if err != nil {
		return err
	}

	var req BulkDeleteRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if len(req.DocumentIDs) == 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "No document IDs provided")
	}

	report, err := s.pipeline.DeleteMany(ctx, tenantID, req.DocumentIDs)
	if err != nil {
		return fmt.Errorf("deleting documents: %w", err)
	}

	deleted := make([]DeletedDocumentInfo, len(report.Deleted))
	for i, d := range report.Deleted {
		deleted[i] = DeletedDocumentInfo{ID: d.ID, Name: d.Name}
	}
	failed := make([]FailedDocumentInfo, len(report.Failed))
	for i, f := range report.Failed {
		failed[i] = FailedDocumentInfo{ID: f.ID, Error: f.Reason}
	}

	message := fmt.Sprintf("Successfully deleted %d documents", len(deleted))
	if len(failed) > 0 {
		message += fmt.Sprintf(", failed to delete %d documents", len(failed))
	}

	return c.JSON(http.StatusOK, APIResponse{
		Success: len(deleted) > 0,
		Message: message,
		Data: BulkDeleteResult{
			DeletedDocuments:    deleted,
			FailedDocuments:     failed,
			TotalVectorsDeleted: report.VectorsDeleted,
		},
	})
}
