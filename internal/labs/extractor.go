// Package labs turns an uploaded lab report into structured lab values.
package labs

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/ledongthuc/pdf"

	"github.com/diarisk/diarisk/internal/assessment"
	"github.com/diarisk/diarisk/internal/ocr"
)

// Extractor reads report text from a PDF or an image and parses lab values
// out of it.
type Extractor struct {
	ocr ocr.Recognizer
}

// NewExtractor creates an Extractor that uses r for image reports and for
// scanned PDF pages.
func NewExtractor(r ocr.Recognizer) *Extractor {
	return &Extractor{ocr: r}
}

// Parse extracts text from data and parses it. Failing to read the document
// is an error; failing to find values is not.
func (e *Extractor) Parse(ctx context.Context, filename string, data []byte) (assessment.LabParseResult, error) {
	text, err := e.extractText(ctx, filename, data)
	if err != nil {
		return assessment.LabParseResult{}, err
	}
	return ExtractValues(text), nil
}

func (e *Extractor) extractText(ctx context.Context, filename string, data []byte) (string, error) {
	if isPDF(filename, data) {
		pages, err := e.pdfText(ctx, data)
		if err != nil {
			return "", fmt.Errorf("reading pdf %s: %w", filename, err)
		}
		return strings.Join(pages, "\n"), nil
	}

	text, err := e.ocr.Recognize(ctx, data)
	if err != nil {
		return "", fmt.Errorf("recognizing %s: %w", filename, err)
	}
	return text, nil
}

// pdfText returns the text of every page in order. A page with a text layer
// uses it; any other page is transcribed from its page image, one OCR call
// per page.
func (e *Extractor) pdfText(ctx context.Context, data []byte) ([]string, error) {
	pages, err := pdfPages(data)
	if err != nil {
		return nil, err
	}

	var scans map[int][]byte
	for i, text := range pages {
		if strings.TrimSpace(text) != "" {
			continue
		}
		if scans == nil {
			if scans, err = pageImages(data); err != nil {
				return nil, err
			}
		}
		img, ok := scans[i+1]
		if !ok {
			continue
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		text, err := e.ocr.Recognize(ctx, img)
		if err != nil {
			return nil, fmt.Errorf("recognizing page %d: %w", i+1, err)
		}
		pages[i] = text
	}
	return pages, nil
}

var pdfMagic = []byte("%PDF-")

func isPDF(filename string, data []byte) bool {
	return strings.HasSuffix(strings.ToLower(filename), ".pdf") || bytes.HasPrefix(data, pdfMagic)
}

// pdfPages returns the text layer of every page in order. A page without a
// text layer contributes an empty string.
func pdfPages(data []byte) (pages []string, err error) {
	// The pdf reader panics on some malformed inputs.
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("malformed pdf: %v", r)
		}
	}()

	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, err
	}

	n := r.NumPage()
	pages = make([]string, 0, n)
	for i := 1; i <= n; i++ {
		p := r.Page(i)
		if p.V.IsNull() {
			pages = append(pages, "")
			continue
		}
		text, err := p.GetPlainText(nil)
		if err != nil {
			slog.Warn("pdf page text extraction failed", "page", i, "error", err)
			text = ""
		}
		pages = append(pages, text)
	}
	return pages, nil
}
