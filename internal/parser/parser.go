package parser

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"strings"
	"unicode/utf8"

	"research-assistant/internal/models"

	"github.com/ledongthuc/pdf"
	"github.com/rs/zerolog/log"
)

const utf8BOM = "\ufeff"

// Loader turns an uploaded document into ordered page records
type Loader struct {
	// MaxBytes rejects larger uploads, 0 means unlimited
	MaxBytes int64
	// TempDir holds the uploaded bytes while they are parsed, os.TempDir() when empty
	TempDir string
}

func NewLoader(maxBytes int64) *Loader {
	return &Loader{MaxBytes: maxBytes}
}

// Load writes the document to temporary storage, parses it and removes the
// temporary file whatever the outcome
func (l *Loader) Load(ctx context.Context, doc models.Document) ([]models.PageRecord, error) {
	if doc.Format == "" {
		format, err := models.DetectFormat(doc.Filename)
		if err != nil {
			return nil, err
		}
		doc.Format = format
	}
	if doc.Format != models.FormatPDF && doc.Format != models.FormatText {
		return nil, fmt.Errorf("%w: %q", models.ErrUnsupportedFormat, doc.Format)
	}
	if l.MaxBytes > 0 && int64(len(doc.Data)) > l.MaxBytes {
		return nil, fmt.Errorf("%w: file is %d bytes, limit is %d", models.ErrLoad, len(doc.Data), l.MaxBytes)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	filePath, err := l.writeTemp(doc)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", models.ErrLoad, err)
	}
	defer func() {
		if err := os.Remove(filePath); err != nil {
			log.Warn().Err(err).Str("path", filePath).Msg("Failed to remove temporary upload")
		}
	}()

	var records []models.PageRecord
	switch doc.Format {
	case models.FormatPDF:
		records, err = parsePDF(filePath)
	default:
		records, err = parseText(filePath)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %w", models.ErrLoad, err)
	}
	if !hasText(records) {
		return nil, fmt.Errorf("%w: no text found in %s", models.ErrLoad, doc.Filename)
	}

	log.Debug().Str("filename", doc.Filename).Int("pages", len(records)).Msg("Loaded document")
	return records, nil
}

func (l *Loader) writeTemp(doc models.Document) (string, error) {
	f, err := os.CreateTemp(l.TempDir, "upload-*."+string(doc.Format))
	if err != nil {
		return "", fmt.Errorf("failed to create temp file: %v", err)
	}
	defer f.Close()

	if _, err := f.Write(doc.Data); err != nil {
		os.Remove(f.Name())
		return "", fmt.Errorf("failed to write temp file: %v", err)
	}
	return f.Name(), nil
}

func parsePDF(filePath string) (records []models.PageRecord, err error) {
	// the pdf reader panics on some malformed files
	defer func() {
		if r := recover(); r != nil {
			records = nil
			err = fmt.Errorf("malformed pdf: %v", r)
		}
	}()

	f, err := os.Open(filePath)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	// Get file size for reader initialization
	stat, err := f.Stat()
	if err != nil {
		return nil, err
	}

	reader, err := pdf.NewReader(f, stat.Size())
	if err != nil {
		return nil, fmt.Errorf("failed to open pdf: %v", err)
	}

	numPages := reader.NumPage()
	records = make([]models.PageRecord, 0, numPages)
	for i := 1; i <= numPages; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			records = append(records, models.PageRecord{Page: i})
			continue
		}
		pageText, err := page.GetPlainText(nil)
		if err != nil {
			return nil, fmt.Errorf("failed to read page %d: %v", i, err)
		}
		records = append(records, models.PageRecord{Text: pageText, Page: i})
	}
	return records, nil
}

func parseText(filePath string) ([]models.PageRecord, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, err
	}
	data = bytes.TrimPrefix(data, []byte(utf8BOM))
	if !utf8.Valid(data) {
		return nil, fmt.Errorf("text file is not valid utf-8")
	}
	// TXT has no pages
	return []models.PageRecord{{Text: string(data)}}, nil
}

func hasText(records []models.PageRecord) bool {
	for _, r := range records {
		if strings.TrimSpace(r.Text) != "" {
			return true
		}
	}
	return false
}
