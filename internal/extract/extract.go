// Package extract pulls plain text out of uploaded document files.
package extract

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"code.sajari.com/docconv/v2"
	"github.com/ledongthuc/pdf"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/docchatd/internal/logging"
)

var (
	// ErrUnsupportedType indicates a file type this service cannot extract.
	ErrUnsupportedType = errors.New("extract: unsupported file type")

	// ErrNoText indicates the file yielded no usable text.
	ErrNoText = errors.New("extract: no text content extracted")
)

const docxMIME = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"

// supportedTypes are the accepted file types, keyed by normalized extension.
var supportedTypes = map[string]bool{
	"pdf":  true,
	"docx": true,
	"txt":  true,
	"md":   true,
}

// Supported reports whether fileType can be extracted.
func Supported(fileType string) bool {
	return supportedTypes[normalizeType(fileType)]
}

// TypeFromFilename derives the normalized file type from a file name.
func TypeFromFilename(name string) (string, error) {
	fileType := normalizeType(filepath.Ext(name))
	if !supportedTypes[fileType] {
		return "", fmt.Errorf("%w: %s", ErrUnsupportedType, fileType)
	}
	return fileType, nil
}

func normalizeType(fileType string) string {
	return strings.ToLower(strings.TrimPrefix(strings.TrimSpace(fileType), "."))
}

// Extractor converts document bytes into plain text.
type Extractor struct {
	logger *logging.Logger
}

// NewExtractor creates an extractor.
func NewExtractor(logger *logging.Logger) *Extractor {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Extractor{logger: logger}
}

// Text extracts plain text from data according to fileType. Empty or
// whitespace-only results are reported as ErrNoText.
func (e *Extractor) Text(ctx context.Context, data []byte, fileType string) (string, error) {
	var (
		text string
		err  error
	)
	switch normalizeType(fileType) {
	case "pdf":
		text, err = e.fromPDF(ctx, data)
	case "docx":
		text, err = e.fromDocx(ctx, data)
	case "txt", "md":
		text = fromPlain(data)
	default:
		return "", fmt.Errorf("%w: %s", ErrUnsupportedType, fileType)
	}
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(text) == "" {
		return "", ErrNoText
	}
	return text, nil
}

// fromPDF walks the document page by page.
func (e *Extractor) fromPDF(ctx context.Context, data []byte) (string, error) {
	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("reading pdf: %w", err)
	}

	totalPages := reader.NumPage()
	var sb strings.Builder
	for pageIndex := 1; pageIndex <= totalPages; pageIndex++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}

		page := reader.Page(pageIndex)
		if page.V.IsNull() {
			e.logger.Warn(ctx, "skipping null pdf page", zap.Int("page", pageIndex))
			continue
		}

		text, err := page.GetPlainText(nil)
		if err != nil {
			return "", fmt.Errorf("extracting pdf page %d: %w", pageIndex, err)
		}
		sb.WriteString(text)
	}

	e.logger.Debug(ctx, "extracted pdf text",
		zap.Int("pages", totalPages),
		zap.Int("text_length", sb.Len()))
	return sb.String(), nil
}

func (e *Extractor) fromDocx(ctx context.Context, data []byte) (string, error) {
	result, err := docconv.Convert(bytes.NewReader(data), docxMIME, false)
	if err != nil {
		return "", fmt.Errorf("converting docx: %w", err)
	}

	e.logger.Debug(ctx, "extracted docx text", zap.Int("text_length", len(result.Body)))
	return result.Body, nil
}

// fromPlain tolerates invalid UTF-8 by dropping the offending bytes.
func fromPlain(data []byte) string {
	return strings.ToValidUTF8(string(data), "")
}
