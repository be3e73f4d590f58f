package httpapi

import (
	"time"

	"github.com/fyrsmithlabs/docchatd/internal/metadata"
)

// APIResponse is the envelope for processing endpoints. Read endpoints
// return their payload directly.
type APIResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

// DocumentInfo is the wire form of a document row.
type DocumentInfo struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	FileType     string    `json:"file_type"`
	FileSize     int64     `json:"file_size"`
	Status       string    `json:"status"`
	ErrorMessage string    `json:"error_message,omitempty"`
	ChunkCount   int       `json:"chunk_count"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

func documentInfo(doc *metadata.Document) DocumentInfo {
	return DocumentInfo{
		ID:           doc.ID,
		Name:         doc.Name,
		FileType:     doc.FileType,
		FileSize:     doc.SizeBytes,
		Status:       string(doc.Status),
		ErrorMessage: doc.ErrorMessage,
		ChunkCount:   doc.ChunkCount,
		CreatedAt:    doc.CreatedAt,
		UpdatedAt:    doc.UpdatedAt,
	}
}

// DocumentListResponse is the body of GET /documents.
type DocumentListResponse struct {
	Documents  []DocumentInfo `json:"documents"`
	TotalCount int            `json:"total_count"`
}

// StatusResponse is the body of GET /documents/:id/status.
type StatusResponse struct {
	DocumentID   string `json:"document_id"`
	Status       string `json:"status"`
	ErrorMessage string `json:"error_message,omitempty"`
}

// StatsResponse is the body of GET /documents/stats.
type StatsResponse struct {
	TotalDocuments      int            `json:"total_documents"`
	StatusBreakdown     map[string]int `json:"status_breakdown"`
	TotalSizeBytes      int64          `json:"total_size_bytes"`
	TotalSizeMB         float64        `json:"total_size_mb"`
	FileTypeBreakdown   map[string]int `json:"file_type_breakdown"`
	CompletedDocuments  int            `json:"completed_documents"`
	ProcessingDocuments int            `json:"processing_documents"`
	ErrorDocuments      int            `json:"error_documents"`
	VectorPoints        *uint64        `json:"vector_points,omitempty"`
}

// UploadResult is the data payload after upload or reprocess.
type UploadResult struct {
	DocumentID string `json:"document_id"`
	Status     string `json:"status"`
	Message    string `json:"message"`
}

// DeleteResult is the data payload after a single-document delete.
type DeleteResult struct {
	DeletedDocumentID   string `json:"deleted_document_id"`
	DeletedVectorsCount int    `json:"deleted_vectors_count"`
	Message             string `json:"message"`
}

// DeletedDocumentInfo is one success entry in a bulk delete.
type DeletedDocumentInfo struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// FailedDocumentInfo is one failure entry in a bulk delete.
type FailedDocumentInfo struct {
	ID    string `json:"id"`
	Error string `json:"error"`
}

// BulkDeleteRequest is the body of POST /documents/bulk-delete.
type BulkDeleteRequest struct {
	DocumentIDs []string `json:"document_ids"`
}

// BulkDeleteResult is the data payload after a bulk delete.
type BulkDeleteResult struct {
	DeletedDocuments    []DeletedDocumentInfo `json:"deleted_documents"`
	FailedDocuments     []FailedDocumentInfo  `json:"failed_documents"`
	TotalVectorsDeleted int                   `json:"total_vectors_deleted"`
}

// AskRequest is the body of POST /ask and POST /ask/quick.
type AskRequest struct {
	Question    string   `json:"question"`
	DocumentIDs []string `json:"document_ids"`
}

// SourceChunk is one retrieved chunk attributed in an answer. Text is
// truncated for the response; the full chunk stays in the vector store.
type SourceChunk struct {
	DocumentID   string  `json:"document_id"`
	DocumentName string  `json:"document_name"`
	ChunkText    string  `json:"chunk_text"`
	Score        float32 `json:"score"`
}

// AnswerResult is the data payload of an answered question.
type AnswerResult struct {
	Answer   string        `json:"answer"`
	Sources  []SourceChunk `json:"sources"`
	Question string        `json:"question"`
}

// ChatMessageInfo is the wire form of one chat exchange.
type ChatMessageInfo struct {
	ID          string    `json:"id"`
	Question    string    `json:"question"`
	Answer      string    `json:"answer"`
	DocumentIDs []string  `json:"document_ids"`
	CreatedAt   time.Time `json:"created_at"`
}

// ChatHistoryResponse is the body of GET /chat/history.
type ChatHistoryResponse struct {
	Messages   []ChatMessageInfo `json:"messages"`
	TotalCount int               `json:"total_count"`
}

// CleanupRequest is the body of POST /admin/cleanup.
type CleanupRequest struct {
	// RetentionDays overrides the configured window for this sweep.
	// Zero keeps the configured window.
	RetentionDays int `json:"retention_days"`
}

// CleanupResult is the data payload after a manual sweep.
type CleanupResult struct {
	DocumentsScanned int `json:"documents_scanned"`
	DocumentsDeleted int `json:"documents_deleted"`
	VectorsDeleted   int `json:"vectors_deleted"`
	OrphansDeleted   int `json:"orphans_deleted"`
	Failures         int `json:"failures"`
}

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status    string            `json:"status"`
	Timestamp time.Time         `json:"timestamp"`
	Services  map[string]string `json:"services"`
}
