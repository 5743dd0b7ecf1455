package models

import (
	"fmt"
	"path/filepath"
	"strings"
)

// Format is the declared type of an uploaded document
type Format string

const (
	FormatPDF  Format = "pdf"
	FormatText Format = "txt"
)

// DetectFormat returns the declared format from the file extension
func DetectFormat(filename string) (Format, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	switch ext {
	case ".pdf":
		return FormatPDF, nil
	case ".txt":
		return FormatText, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, ext)
	}
}

// Document is an uploaded file, kept only for the lifetime of a session
type Document struct {
	Filename string
	Format   Format
	Data     []byte
}

// PageRecord is one page (or the whole file for plain text) produced by the loader.
// Page is 1-based; 0 means the source has no pages.
type PageRecord struct {
	Text string
	Page int
}

// Segment represents a chunk of document text used as the unit of retrieval
type Segment struct {
	Text     string
	Page     int
	Position int
}

// HasPage reports whether the segment carries source page metadata
func (s Segment) HasPage() bool {
	return s.Page > 0
}

// PageLabel is the page number for display, or "unknown"
func (s Segment) PageLabel() string {
	if !s.HasPage() {
		return "unknown"
	}
	return fmt.Sprintf("%d", s.Page)
}

// PageNote tells readers how cited pages are counted
const PageNote = "Pages are numbered from 1, the first page of the PDF is page 1."

// SearchResult is a segment returned by the index with its distance to the query
type SearchResult struct {
	Segment    Segment
	Distance   float64
	Similarity float64
}

// Answer is the response to a free-form query in Ask mode
type Answer struct {
	Query   string
	Content string
	Sources []SearchResult
}

// Citation returns the top-ranked source, which is the only one shown to the user
func (a *Answer) Citation() (SearchResult, bool) {
	if a == nil || len(a.Sources) == 0 {
		return SearchResult{}, false
	}
	return a.Sources[0], true
}
