// Package extract converts uploaded document bytes into normalized plain text.
package extract

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/hyperjump/kotae/internal/models"
)

type extractFunc func(content []byte) (string, error)

var extractors = map[string]extractFunc{
	"txt":      extractPlain,
	"md":       extractPlain,
	"markdown": extractPlain,
	"rst":      extractPlain,
	"csv":      extractPlain,
	"json":     extractPlain,
	"pdf":      extractPDF,
	"docx":     extractDOCX,
	"xlsx":     extractExcel,
	"pptx":     extractPPTX,
	"odt":      extractOpenDocument,
	"odp":      extractOpenDocument,
	"ods":      extractOpenDocument,
	"rtf":      extractRTF,
}

// Result is the output of a successful extraction.
type Result struct {
	Text   string
	Format string
	// Empty is set when the document yielded no text. The caller decides
	// whether that is acceptable.
	Empty bool
}

// Extractor extracts plain text from document bytes.
type Extractor struct{}

// NewExtractor returns a new Extractor.
func NewExtractor() *Extractor {
	return &Extractor{}
}

// NormalizeFormat lowercases a format or extension and strips the leading dot.
func NormalizeFormat(format string) string {
	return strings.TrimPrefix(strings.ToLower(strings.TrimSpace(format)), ".")
}

// FormatFromFilename returns the normalized format implied by a filename's extension.
func FormatFromFilename(name string) string {
	return NormalizeFormat(filepath.Ext(name))
}

// Supported reports whether format can be extracted.
func Supported(format string) bool {
	_, ok := extractors[NormalizeFormat(format)]
	return ok
}

// Formats lists the supported formats in sorted order.
func Formats() []string {
	out := make([]string, 0, len(extractors))
	for f := range extractors {
		out = append(out, f)
	}
	sort.Strings(out)
	return out
}

// Extract returns the normalized text of content in the declared format.
// Unknown formats fail with models.ErrUnsupportedFormat; unreadable content
// fails with models.ErrExtractionFailure.
func (e *Extractor) Extract(content []byte, format string) (*Result, error) {
	format = NormalizeFormat(format)
	raw, err := e.ExtractBytes(content, format)
	if err != nil {
		return nil, err
	}
	text := Normalize(raw)
	return &Result{Text: text, Format: format, Empty: text == ""}, nil
}

// ExtractBytes returns the raw, unnormalized text of content.
// Parsers run under a recover guard because malformed files can panic them.
func (e *Extractor) ExtractBytes(content []byte, format string) (text string, err error) {
	fn, ok := extractors[NormalizeFormat(format)]
	if !ok {
		return "", fmt.Errorf("%w: %q", models.ErrUnsupportedFormat, format)
	}
	defer func() {
		if r := recover(); r != nil {
			text = ""
			err = fmt.Errorf("%w: %s parser panicked: %v", models.ErrExtractionFailure, format, r)
		}
	}()
	text, err = fn(content)
	if err != nil {
		return "", fmt.Errorf("%w: %w", models.ErrExtractionFailure, err)
	}
	return text, nil
}
