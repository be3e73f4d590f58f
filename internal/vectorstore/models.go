package vectorstore

import "time"

// Payload keys stored with every point.
const (
	payloadDocumentID   = "document_id"
	payloadTenantID     = "tenant_id"
	payloadDocumentName = "document_name"
	payloadChunkText    = "chunk_text"
	payloadChunkIndex   = "chunk_index"
	payloadCreatedAt    = "created_at"
)

// Chunk is one embedded slice of a document, ready for storage.
type Chunk struct {
	// DocumentID is the owning document's identifier.
	DocumentID string

	// TenantID scopes the chunk to its owner. Required.
	TenantID string

	// DocumentName is the human-readable source file name, stored for
	// answer attribution.
	DocumentName string

	// Text is the chunk content.
	Text string

	// Index is the chunk's position within the document.
	Index int

	// Vector is the embedding. Its length must match the collection size.
	Vector []float32

	// CreatedAt is the ingestion time, stored as RFC 3339 UTC.
	CreatedAt time.Time
}

// SearchQuery describes one similarity search.
type SearchQuery struct {
	// TenantID scopes the search. Required.
	TenantID string

	// Vector is the embedded query.
	Vector []float32

	// DocumentIDs optionally narrows the search to specific documents.
	// Empty means all of the tenant's documents.
	DocumentIDs []string

	// Limit caps the number of results. Zero uses the default of 5.
	Limit int
}

// ScoredChunk is one similarity search hit.
type ScoredChunk struct {
	PointID      string
	Score        float32
	DocumentID   string
	DocumentName string
	Text         string
	Index        int
}

// CollectionInfo describes the backing collection.
type CollectionInfo struct {
	Name        string
	PointsCount int
	VectorSize  int
	Status      string
}
