package extract

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTypeFromFilename(t *testing.T) {
	tests := []struct {
		name     string
		filename string
		want     string
		wantErr  bool
	}{
		{name: "pdf", filename: "report.pdf", want: "pdf"},
		{name: "uppercase extension", filename: "Report.PDF", want: "pdf"},
		{name: "docx", filename: "notes.docx", want: "docx"},
		{name: "txt", filename: "readme.txt", want: "txt"},
		{name: "markdown", filename: "guide.md", want: "md"},
		{name: "dotted name", filename: "archive.2026.txt", want: "txt"},
		{name: "unsupported", filename: "data.csv", wantErr: true},
		{name: "no extension", filename: "README", wantErr: true},
		{name: "doc is not docx", filename: "legacy.doc", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := TypeFromFilename(tt.filename)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrUnsupportedType)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSupported(t *testing.T) {
	assert.True(t, Supported("pdf"))
	assert.True(t, Supported(".pdf"))
	assert.True(t, Supported("MD"))
	assert.False(t, Supported("csv"))
	assert.False(t, Supported(""))
}

func TestTextPlain(t *testing.T) {
	e := NewExtractor(nil)
	ctx := context.Background()

	t.Run("plain text passes through", func(t *testing.T) {
		text, err := e.Text(ctx, []byte("hello world\nsecond line"), "txt")
		require.NoError(t, err)
		assert.Equal(t, "hello world\nsecond line", text)
	})

	t.Run("markdown passes through", func(t *testing.T) {
		text, err := e.Text(ctx, []byte("# Title\n\nbody"), "md")
		require.NoError(t, err)
		assert.Equal(t, "# Title\n\nbody", text)
	})

	t.Run("invalid utf8 bytes dropped", func(t *testing.T) {
		text, err := e.Text(ctx, []byte{'o', 'k', 0xff, 0xfe, '!', 'x'}, "txt")
		require.NoError(t, err)
		assert.Equal(t, "ok!x", text)
	})

	t.Run("empty file", func(t *testing.T) {
		_, err := e.Text(ctx, nil, "txt")
		assert.ErrorIs(t, err, ErrNoText)
	})

	t.Run("whitespace only", func(t *testing.T) {
		_, err := e.Text(ctx, []byte("   \n\t  "), "txt")
		assert.ErrorIs(t, err, ErrNoText)
	})
}

func TestTextUnsupportedType(t *testing.T) {
	e := NewExtractor(nil)

	_, err := e.Text(context.Background(), []byte("data"), "csv")
	assert.ErrorIs(t, err, ErrUnsupportedType)
}

func TestTextMalformedPDF(t *testing.T) {
	e := NewExtractor(nil)

	_, err := e.Text(context.Background(), []byte("not a pdf at all"), "pdf")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrUnsupportedType)
}

func TestTextMalformedDocx(t *testing.T) {
	e := NewExtractor(nil)

	_, err := e.Text(context.Background(), []byte("not a zip archive"), "docx")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrUnsupportedType)
}
