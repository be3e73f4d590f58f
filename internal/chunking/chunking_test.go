package chunking

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSplitter(t *testing.T) *Splitter {
	t.Helper()
	s, err := NewSplitter(DefaultConfig())
	require.NoError(t, err)
	return s
}

func TestNewSplitterValidatesConfig(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
	}{
		{name: "zero chunk size", cfg: Config{ChunkSize: 0, ChunkOverlap: 0}},
		{name: "overlap equals size", cfg: Config{ChunkSize: 100, ChunkOverlap: 100}},
		{name: "negative overlap", cfg: Config{ChunkSize: 100, ChunkOverlap: -1}},
		{name: "negative min length", cfg: Config{ChunkSize: 100, ChunkOverlap: 10, MinChunkLength: -1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewSplitter(tt.cfg)
			assert.Error(t, err)
		})
	}
}

func TestSplitEmptyInput(t *testing.T) {
	s := newTestSplitter(t)

	for _, input := range []string{"", "   ", "\n\n\t  \n"} {
		_, err := s.Split(input)
		assert.ErrorIs(t, err, ErrEmptyInput, "input %q", input)
	}
}

func TestSplitFiltersShortSegments(t *testing.T) {
	s := newTestSplitter(t)

	// Trimmed length must exceed 50; everything here is shorter.
	_, err := s.Split("too short to keep")
	assert.ErrorIs(t, err, ErrEmptyInput)
}

func TestSplitKeepsLongSegments(t *testing.T) {
	s := newTestSplitter(t)

	text := strings.Repeat("lorem ipsum dolor sit amet ", 5) // ~135 chars
	segments, err := s.Split(text)
	require.NoError(t, err)
	require.Len(t, segments, 1)
	assert.Greater(t, len(strings.TrimSpace(segments[0])), 50)
}

func TestSplitContinuousTextSegmentCount(t *testing.T) {
	s := newTestSplitter(t)

	// 3200 unbroken chars with size 1000 / overlap 200 advance 800 chars
	// per segment: 0-1000, 800-1800, 1600-2600, 2400-3200.
	segments, err := s.Split(strings.Repeat("a", 3200))
	require.NoError(t, err)
	assert.Len(t, segments, 4)

	for i, seg := range segments {
		assert.LessOrEqual(t, len(seg), 1000, "segment %d exceeds chunk size", i)
	}
}

func TestSplitOverlapBetweenAdjacentSegments(t *testing.T) {
	s := newTestSplitter(t)

	var b strings.Builder
	for i := 0; i < 400; i++ {
		fmt.Fprintf(&b, "word%03d ", i)
	}

	segments, err := s.Split(b.String())
	require.NoError(t, err)
	require.Greater(t, len(segments), 1)

	for i := 0; i < len(segments)-1; i++ {
		next := strings.Fields(segments[i+1])
		require.NotEmpty(t, next)
		// The head of each segment repeats material from its predecessor.
		assert.Contains(t, segments[i], next[0],
			"segment %d should overlap segment %d", i+1, i)
	}
}

func TestSplitPrefersParagraphBoundaries(t *testing.T) {
	s := newTestSplitter(t)

	// Each paragraph is ~780 chars; together they exceed the chunk size, so
	// the split must land on the paragraph break.
	para1 := strings.Repeat("first paragraph sentence. ", 30)
	para2 := strings.Repeat("second paragraph sentence. ", 30)
	segments, err := s.Split(para1 + "\n\n" + para2)
	require.NoError(t, err)
	require.Len(t, segments, 2)

	assert.Contains(t, segments[0], "first paragraph")
	assert.Contains(t, segments[1], "second paragraph")
	assert.NotContains(t, segments[0], "second paragraph")
}

func TestSplitDeterministic(t *testing.T) {
	s := newTestSplitter(t)

	text := strings.Repeat("deterministic splitting input text ", 60)
	first, err := s.Split(text)
	require.NoError(t, err)
	second, err := s.Split(text)
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestSplitCustomMinLength(t *testing.T) {
	s, err := NewSplitter(Config{ChunkSize: 100, ChunkOverlap: 0, MinChunkLength: 0})
	require.NoError(t, err)

	segments, err := s.Split("tiny but kept")
	require.NoError(t, err)
	assert.Equal(t, []string{"tiny but kept"}, segments)
}
