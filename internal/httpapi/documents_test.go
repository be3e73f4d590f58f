package httpapi

import (
	"bytes"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/docchatd/internal/filestore"
	"github.com/fyrsmithlabs/docchatd/internal/ingest"
	"github.com/fyrsmithlabs/docchatd/internal/metadata"
)

func uploadRequest(t *testing.T, filename string, content []byte) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	part, err := w.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = part.Write(content)
	require.NoError(t, err)
	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPost, "/documents", &buf)
	req.Header.Set(echo.HeaderContentType, w.FormDataContentType())
	return req
}

func TestUpload(t *testing.T) {
	env := newServerEnv(t)
	content := []byte("quarterly revenue figures")

	rec := httptest.NewRecorder()
	env.server.echo.ServeHTTP(rec, uploadRequest(t, "report.pdf", content))
	require.Equal(t, http.StatusOK, rec.Code)

	envelope, data := decodeEnvelope(t, rec)
	assert.True(t, envelope.Success)
	assert.Equal(t, "Document processed successfully. 3 chunks stored.", envelope.Message)

	var result UploadResult
	require.NoError(t, json.Unmarshal(data, &result))
	assert.NotEmpty(t, result.DocumentID)
	assert.Equal(t, string(metadata.StatusCompleted), result.Status)
	assert.Equal(t, "Successfully processed 3 chunks", result.Message)

	require.Len(t, env.docs.created, 1)
	doc := env.docs.created[0]
	assert.Equal(t, result.DocumentID, doc.ID)
	assert.Equal(t, "tenant-1", doc.TenantID)
	assert.Equal(t, "report.pdf", doc.Name)
	assert.Equal(t, "pdf", doc.FileType)
	assert.Equal(t, int64(len(content)), doc.SizeBytes)
	assert.Equal(t, metadata.StatusReceived, doc.Status)
	assert.Equal(t, "tenant-1/"+doc.ID+"_report.pdf", doc.FilePath)

	assert.Equal(t, content, env.files.gotContent)
	assert.Equal(t, "report.pdf", env.files.gotFilename)
	assert.Equal(t, []string{doc.ID}, env.pipeline.ingested)
}

func TestUploadMissingFile(t *testing.T) {
	env := newServerEnv(t)

	rec := doJSON(t, env.server, http.MethodPost, "/documents", "")
	require.Equal(t, http.StatusBadRequest, rec.Code)

	envelope, _ := decodeEnvelope(t, rec)
	assert.Equal(t, "file field is required", envelope.Error)
}

func TestUploadUnsupportedType(t *testing.T) {
	env := newServerEnv(t)

	rec := httptest.NewRecorder()
	env.server.echo.ServeHTTP(rec, uploadRequest(t, "tool.exe", []byte("MZ")))
	require.Equal(t, http.StatusBadRequest, rec.Code)

	envelope, _ := decodeEnvelope(t, rec)
	assert.Equal(t, `unsupported file type ".exe"`, envelope.Error)
	assert.Empty(t, env.docs.created)
}

func TestUploadSaveFailures(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantCode int
	}{
		{"too large", filestore.ErrTooLarge, http.StatusRequestEntityTooLarge},
		{"invalid name", filestore.ErrInvalidPath, http.StatusBadRequest},
		{"disk failure", errors.New("disk full"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newServerEnv(t)
			env.files.saveErr = tt.err

			rec := httptest.NewRecorder()
			env.server.echo.ServeHTTP(rec, uploadRequest(t, "report.pdf", []byte("x")))
			assert.Equal(t, tt.wantCode, rec.Code)
			assert.Empty(t, env.docs.created)
			assert.Empty(t, env.pipeline.ingested)
		})
	}
}

func TestUploadPipelineFailure(t *testing.T) {
	env := newServerEnv(t)
	env.pipeline.ingestErr = errors.New("no text chunks could be extracted from the document")

	rec := httptest.NewRecorder()
	env.server.echo.ServeHTTP(rec, uploadRequest(t, "blank.pdf", []byte("x")))
	require.Equal(t, http.StatusOK, rec.Code)

	envelope, _ := decodeEnvelope(t, rec)
	assert.False(t, envelope.Success)
	assert.Equal(t, "Failed to process document", envelope.Message)
	assert.Contains(t, envelope.Error, "no text chunks")

	// The document row stays for status polling and reprocessing.
	require.Len(t, env.docs.created, 1)
}

func TestListDocuments(t *testing.T) {
	t.Run("filtered page", func(t *testing.T) {
		env := newServerEnv(t)
		env.docs.listDocs = []metadata.Document{
			{ID: "doc-1", TenantID: "tenant-1", Name: "report.pdf", FileType: "pdf", SizeBytes: 100, Status: metadata.StatusCompleted, ChunkCount: 3},
			{ID: "doc-2", TenantID: "tenant-1", Name: "notes.txt", FileType: "txt", SizeBytes: 40, Status: metadata.StatusCompleted, ChunkCount: 1},
		}
		env.docs.stats = &metadata.Stats{
			Total:    7,
			ByStatus: map[metadata.Status]int{metadata.StatusCompleted: 4, metadata.StatusError: 3},
		}

		rec := doJSON(t, env.server, http.MethodGet, "/documents?status=completed&limit=10&offset=5", "")
		require.Equal(t, http.StatusOK, rec.Code)

		assert.Equal(t, metadata.StatusCompleted, env.docs.gotOpts.Status)
		assert.Equal(t, 10, env.docs.gotOpts.Limit)
		assert.Equal(t, 5, env.docs.gotOpts.Offset)

		var resp DocumentListResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		require.Len(t, resp.Documents, 2)
		assert.Equal(t, "doc-1", resp.Documents[0].ID)
		assert.Equal(t, int64(100), resp.Documents[0].FileSize)
		assert.Equal(t, 4, resp.TotalCount)
	})

	t.Run("unfiltered total", func(t *testing.T) {
		env := newServerEnv(t)
		env.docs.stats = &metadata.Stats{Total: 7, ByStatus: map[metadata.Status]int{}}

		rec := doJSON(t, env.server, http.MethodGet, "/documents", "")
		require.Equal(t, http.StatusOK, rec.Code)

		var resp DocumentListResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, 7, resp.TotalCount)
	})
}

func TestListDocumentsBadParams(t *testing.T) {
	tests := []struct {
		name   string
		target string
	}{
		{"unknown status", "/documents?status=bogus"},
		{"zero limit", "/documents?limit=0"},
		{"non-numeric limit", "/documents?limit=ten"},
		{"negative offset", "/documents?offset=-1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newServerEnv(t)

			rec := doJSON(t, env.server, http.MethodGet, tt.target, "")
			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}
}

func TestGetDocument(t *testing.T) {
	env := newServerEnv(t)
	created := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	env.addDocument(&metadata.Document{
		ID:         "doc-1",
		TenantID:   "tenant-1",
		Name:       "report.pdf",
		FileType:   "pdf",
		SizeBytes:  2048,
		Status:     metadata.StatusCompleted,
		ChunkCount: 3,
		CreatedAt:  created,
		UpdatedAt:  created,
	})

	rec := doJSON(t, env.server, http.MethodGet, "/documents/doc-1", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var info DocumentInfo
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &info))
	assert.Equal(t, "doc-1", info.ID)
	assert.Equal(t, "report.pdf", info.Name)
	assert.Equal(t, "pdf", info.FileType)
	assert.Equal(t, int64(2048), info.FileSize)
	assert.Equal(t, "completed", info.Status)
	assert.Equal(t, 3, info.ChunkCount)
	assert.True(t, created.Equal(info.CreatedAt))
}

func TestDocumentStatus(t *testing.T) {
	env := newServerEnv(t)
	env.addDocument(&metadata.Document{
		ID:           "doc-1",
		TenantID:     "tenant-1",
		Name:         "broken.pdf",
		Status:       metadata.StatusError,
		ErrorMessage: "no text chunks could be extracted from the document",
	})

	rec := doJSON(t, env.server, http.MethodGet, "/documents/doc-1/status", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp StatusResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "doc-1", resp.DocumentID)
	assert.Equal(t, "error", resp.Status)
	assert.Contains(t, resp.ErrorMessage, "no text chunks")

	rec = doJSON(t, env.server, http.MethodGet, "/documents/missing/status", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestStats(t *testing.T) {
	t.Run("full breakdown", func(t *testing.T) {
		env := newServerEnv(t)
		env.docs.stats = &metadata.Stats{
			Total: 3,
			ByStatus: map[metadata.Status]int{
				metadata.StatusCompleted: 2,
				metadata.StatusError:     1,
			},
			ByFileType:     map[string]int{"pdf": 2, "txt": 1},
			TotalSizeBytes: 1572864,
		}
		env.vectors.count = 42

		rec := doJSON(t, env.server, http.MethodGet, "/documents/stats", "")
		require.Equal(t, http.StatusOK, rec.Code)

		var resp StatsResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, 3, resp.TotalDocuments)
		assert.Equal(t, map[string]int{"completed": 2, "error": 1}, resp.StatusBreakdown)
		assert.Equal(t, int64(1572864), resp.TotalSizeBytes)
		assert.Equal(t, 1.5, resp.TotalSizeMB)
		assert.Equal(t, map[string]int{"pdf": 2, "txt": 1}, resp.FileTypeBreakdown)
		assert.Equal(t, 2, resp.CompletedDocuments)
		assert.Equal(t, 0, resp.ProcessingDocuments)
		assert.Equal(t, 1, resp.ErrorDocuments)
		require.NotNil(t, resp.VectorPoints)
		assert.Equal(t, uint64(42), *resp.VectorPoints)
	})

	t.Run("vector count failure is omitted", func(t *testing.T) {
		env := newServerEnv(t)
		env.vectors.countErr = errors.New("qdrant unavailable")

		rec := doJSON(t, env.server, http.MethodGet, "/documents/stats", "")
		require.Equal(t, http.StatusOK, rec.Code)

		var raw map[string]any
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &raw))
		_, present := raw["vector_points"]
		assert.False(t, present)
	})
}

func TestReprocess(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		env := newServerEnv(t)

		rec := doJSON(t, env.server, http.MethodPost, "/documents/doc-1/reprocess", "")
		require.Equal(t, http.StatusOK, rec.Code)

		envelope, data := decodeEnvelope(t, rec)
		assert.True(t, envelope.Success)
		assert.Equal(t, "Document processed successfully. 3 chunks stored.", envelope.Message)

		var result UploadResult
		require.NoError(t, json.Unmarshal(data, &result))
		assert.Equal(t, "doc-1", result.DocumentID)
		assert.Equal(t, []string{"doc-1"}, env.pipeline.reprocessed)
	})

	t.Run("not found", func(t *testing.T) {
		env := newServerEnv(t)
		env.pipeline.reprocessErr = metadata.ErrNotFound

		rec := doJSON(t, env.server, http.MethodPost, "/documents/missing/reprocess", "")
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("pipeline failure", func(t *testing.T) {
		env := newServerEnv(t)
		env.pipeline.reprocessErr = errors.New("extracting text: corrupt pdf")

		rec := doJSON(t, env.server, http.MethodPost, "/documents/doc-1/reprocess", "")
		require.Equal(t, http.StatusOK, rec.Code)

		envelope, _ := decodeEnvelope(t, rec)
		assert.False(t, envelope.Success)
		assert.Equal(t, "Failed to reprocess document", envelope.Message)
		assert.Contains(t, envelope.Error, "corrupt pdf")
	})
}

func TestDeleteDocument(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		env := newServerEnv(t)

		rec := doJSON(t, env.server, http.MethodDelete, "/documents/doc-1", "")
		require.Equal(t, http.StatusOK, rec.Code)

		envelope, data := decodeEnvelope(t, rec)
		assert.True(t, envelope.Success)
		assert.Equal(t, "Document deleted successfully", envelope.Message)

		var result DeleteResult
		require.NoError(t, json.Unmarshal(data, &result))
		assert.Equal(t, "doc-1", result.DeletedDocumentID)
		assert.Equal(t, 3, result.DeletedVectorsCount)
		assert.Equal(t, "Deleted document 'report.pdf' and 3 vectors", result.Message)
	})

	t.Run("not found", func(t *testing.T) {
		env := newServerEnv(t)
		env.pipeline.deleteErr = metadata.ErrNotFound

		rec := doJSON(t, env.server, http.MethodDelete, "/documents/missing", "")
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("pipeline failure", func(t *testing.T) {
		env := newServerEnv(t)
		env.pipeline.deleteErr = errors.New("deleting document metadata: connection reset")

		rec := doJSON(t, env.server, http.MethodDelete, "/documents/doc-1", "")
		require.Equal(t, http.StatusOK, rec.Code)

		envelope, _ := decodeEnvelope(t, rec)
		assert.False(t, envelope.Success)
		assert.Equal(t, "Failed to delete document", envelope.Message)
	})
}

func TestBulkDelete(t *testing.T) {
	t.Run("mixed outcome", func(t *testing.T) {
		env := newServerEnv(t)
		env.pipeline.bulkReport = &ingest.BulkDeleteReport{
			Deleted: []ingest.DeletedDocument{
				{ID: "doc-1", Name: "report.pdf"},
				{ID: "doc-2", Name: "notes.txt"},
			},
			Failed: []ingest.FailedDocument{
				{ID: "missing", Reason: "metadata: not found"},
			},
			VectorsDeleted: 5,
		}

		rec := doJSON(t, env.server, http.MethodPost, "/documents/bulk-delete",
			`{"document_ids":["doc-1","missing","doc-2"]}`)
		require.Equal(t, http.StatusOK, rec.Code)

		assert.Equal(t, []string{"doc-1", "missing", "doc-2"}, env.pipeline.bulkIDs)

		envelope, data := decodeEnvelope(t, rec)
		assert.True(t, envelope.Success)
		assert.Equal(t, "Successfully deleted 2 documents, failed to delete 1 documents", envelope.Message)

		var result BulkDeleteResult
		require.NoError(t, json.Unmarshal(data, &result))
		require.Len(t, result.DeletedDocuments, 2)
		assert.Equal(t, "report.pdf", result.DeletedDocuments[0].Name)
		require.Len(t, result.FailedDocuments, 1)
		assert.Equal(t, "missing", result.FailedDocuments[0].ID)
		assert.Equal(t, 5, result.TotalVectorsDeleted)
	})

	t.Run("all failed", func(t *testing.T) {
		env := newServerEnv(t)
		env.pipeline.bulkReport = &ingest.BulkDeleteReport{
			Failed: []ingest.FailedDocument{{ID: "missing", Reason: "metadata: not found"}},
		}

		rec := doJSON(t, env.server, http.MethodPost, "/documents/bulk-delete",
			`{"document_ids":["missing"]}`)
		require.Equal(t, http.StatusOK, rec.Code)

		envelope, _ := decodeEnvelope(t, rec)
		assert.False(t, envelope.Success)
	})

	t.Run("empty ids", func(t *testing.T) {
		env := newServerEnv(t)

		rec := doJSON(t, env.server, http.MethodPost, "/documents/bulk-delete", `{"document_ids":[]}`)
		require.Equal(t, http.StatusBadRequest, rec.Code)

		envelope, _ := decodeEnvelope(t, rec)
		assert.Equal(t, "No document IDs provided", envelope.Error)
	})

	t.Run("malformed body", func(t *testing.T) {
		env := newServerEnv(t)

		rec := doJSON(t, env.server, http.MethodPost, "/documents/bulk-delete", `{"document_ids":`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}
