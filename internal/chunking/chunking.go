// Package chunking splits extracted document text into overlapping segments
// sized for embedding.
//
// Splitting walks a separator priority list (paragraph break, line break,
// space, empty string) preferring the largest separator that keeps segments
// within the configured size, with a soft character overlap between adjacent
// segments. Near-empty segments are dropped so they never reach the
// embedding provider.
package chunking

import (
	"errors"
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/textsplitter"
)

// ErrEmptyInput indicates the input text was empty or every produced
// segment fell below the minimum length.
var ErrEmptyInput = errors.New("chunking: no usable text")

// separators is the split priority order, largest first.
var separators = []string{"\n\n", "\n", " ", ""}

// Config holds splitter configuration.
type Config struct {
	// ChunkSize is the maximum segment length in characters.
	ChunkSize int
	// ChunkOverlap is the soft overlap between adjacent segments.
	ChunkOverlap int
	// MinChunkLength drops segments whose trimmed length does not exceed it.
	MinChunkLength int
}

// DefaultConfig returns the standard splitter configuration.
func DefaultConfig() Config {
	return Config{
		ChunkSize:      1000,
		ChunkOverlap:   200,
		MinChunkLength: 50,
	}
}

// Validate checks config for errors.
func (c Config) Validate() error {
	if c.ChunkSize < 1 {
		return fmt.Errorf("chunk size must be >= 1, got %d", c.ChunkSize)
	}
	if c.ChunkOverlap < 0 || c.ChunkOverlap >= c.ChunkSize {
		return fmt.Errorf("chunk overlap must be in [0, chunk size), got %d", c.ChunkOverlap)
	}
	if c.MinChunkLength < 0 {
		return fmt.Errorf("min chunk length must be >= 0, got %d", c.MinChunkLength)
	}
	return nil
}

// Splitter produces overlapping text segments. It is stateless and safe for
// concurrent use.
type Splitter struct {
	cfg      Config
	splitter textsplitter.RecursiveCharacter
}

// NewSplitter creates a splitter from config.
func NewSplitter(cfg Config) (*Splitter, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Splitter{
		cfg: cfg,
		splitter: textsplitter.NewRecursiveCharacter(
			textsplitter.WithChunkSize(cfg.ChunkSize),
			textsplitter.WithChunkOverlap(cfg.ChunkOverlap),
			textsplitter.WithSeparators(separators),
		),
	}, nil
}

// Split breaks text into ordered segments. Segments whose trimmed length is
// at or below the minimum are dropped. Returns ErrEmptyInput when the text
// is empty or nothing survives filtering.
func (s *Splitter) Split(text string) ([]string, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyInput
	}

	parts, err := s.splitter.SplitText(text)
	if err != nil {
		return nil, fmt.Errorf("split text: %w", err)
	}

	segments := make([]string, 0, len(parts))
	for _, part := range parts {
		if len(strings.TrimSpace(part)) > s.cfg.MinChunkLength {
			segments = append(segments, part)
		}
	}

	if len(segments) == 0 {
		return nil, ErrEmptyInput
	}

	return segments, nil
}
