// Package retrieval embeds a question and finds its best matching
// chunks within one tenant's documents.
package retrieval

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/docchatd/internal/embeddings"
	"github.com/fyrsmithlabs/docchatd/internal/logging"
	"github.com/fyrsmithlabs/docchatd/internal/vectorstore"
)

const defaultTopK = 5

var (
	// ErrInvalidConfig indicates a missing dependency or bad setting.
	ErrInvalidConfig = errors.New("retrieval: invalid configuration")

	// ErrEmptyQuestion indicates a blank question.
	ErrEmptyQuestion = errors.New("retrieval: question must not be empty")
)

// QueryEmbedder turns a question into a vector.
type QueryEmbedder interface {
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// Searcher runs similarity search over stored chunks.
type Searcher interface {
	Search(ctx context.Context, query vectorstore.SearchQuery) ([]vectorstore.ScoredChunk, error)
}

var (
	_ QueryEmbedder = (embeddings.Provider)(nil)
	_ Searcher      = (vectorstore.ChunkStore)(nil)
)

// Config holds retrieval settings.
type Config struct {
	// TopK is the number of chunks returned per question. Zero uses the
	// default of 5.
	TopK int
}

// Retriever answers "which chunks are relevant to this question".
type Retriever struct {
	config   Config
	embedder QueryEmbedder
	store    Searcher
	logger   *logging.Logger
}

// NewRetriever creates a retriever.
func NewRetriever(cfg Config, embedder QueryEmbedder, store Searcher, logger *logging.Logger) (*Retriever, error) {
	if embedder == nil {
		return nil, fmt.Errorf("%w: embedder is required", ErrInvalidConfig)
	}
	if store == nil {
		return nil, fmt.Errorf("%w: vector store is required", ErrInvalidConfig)
	}
	if cfg.TopK < 0 {
		return nil, fmt.Errorf("%w: top k must not be negative", ErrInvalidConfig)
	}
	if cfg.TopK == 0 {
		cfg.TopK = defaultTopK
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	return &Retriever{
		config:   cfg,
		embedder: embedder,
		store:    store,
		logger:   logger,
	}, nil
}

// Retrieve returns the tenant's best-scoring chunks for the question.
// An empty documentIDs searches all of the tenant's documents. No
// matching chunks is a valid outcome, not an error.
func (r *Retriever) Retrieve(ctx context.Context, tenantID, question string, documentIDs []string) ([]vectorstore.ScoredChunk, error) {
	if strings.TrimSpace(question) == "" {
		return nil, ErrEmptyQuestion
	}

	vector, err := r.embedder.EmbedQuery(ctx, question)
	if err != nil {
		return nil, fmt.Errorf("embedding question: %w", err)
	}

	chunks, err := r.store.Search(ctx, vectorstore.SearchQuery{
		TenantID:    tenantID,
		Vector:      vector,
		DocumentIDs: documentIDs,
		Limit:       r.config.TopK,
	})
	if err != nil {
		return nil, fmt.Errorf("searching chunks: %w", err)
	}

	r.logger.Debug(ctx, "retrieved chunks",
		zap.Int("requested", r.config.TopK),
		zap.Int("returned", len(chunks)))
	return chunks, nil
}
