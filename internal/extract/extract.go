// Package extract turns an uploaded binary document into plain text.
//
// Extraction is a collaborator of the ingestion pipeline, kept behind the
// Extractor interface so document formats can be added without touching the
// pipeline.
package extract

import (
	"bytes"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/ledongthuc/pdf"
)

// MaxDocumentSize caps uploads before extraction (20 MB).
const MaxDocumentSize = 20 * 1024 * 1024

// ErrTooLarge indicates the uploaded document exceeds MaxDocumentSize.
var ErrTooLarge = errors.New("document too large")

// ErrUnsupportedFormat indicates the filename extension is not handled.
var ErrUnsupportedFormat = errors.New("unsupported document format")

// Extractor extracts plain text from a raw document.
type Extractor interface {
	Text(filename string, data []byte) (string, error)
}

// Document extracts text from PDF and plain-text uploads, selected by
// filename extension.
type Document struct{}

// NewDocument creates a Document extractor.
func NewDocument() *Document {
	return &Document{}
}

// Text implements Extractor.
func (d *Document) Text(filename string, data []byte) (string, error) {
	if len(data) > MaxDocumentSize {
		return "", fmt.Errorf("%w: %d bytes (max %d)", ErrTooLarge, len(data), MaxDocumentSize)
	}

	switch strings.ToLower(filepath.Ext(filename)) {
	case ".pdf":
		return pdfText(data)
	case ".txt", ".md", "":
		if !utf8.Valid(data) {
			return "", fmt.Errorf("%w: %q is not valid UTF-8 text", ErrUnsupportedFormat, filename)
		}
		return string(data), nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, filename)
	}
}

// pdfText extracts text from every page of a PDF, page order preserved.
// Pages that fail to decode are skipped; a document where no page yields
// text simply returns an empty string, which the pipeline reports as
// "no text extracted".
func pdfText(data []byte) (string, error) {
	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("opening PDF: %w", err)
	}

	var sb strings.Builder
	for pageNum := 1; pageNum <= reader.NumPage(); pageNum++ {
		page := reader.Page(pageNum)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			continue
		}
		sb.WriteString(text)
		if !strings.HasSuffix(text, "\n") {
			sb.WriteString("\n")
		}
	}
	return sb.String(), nil
}
