package document

import (
	"bytes"
	"context"
	"fmt"
	"image/png"
	"strings"

	"github.com/gen2brain/go-fitz"

	"github.com/creastat/receipts"
)

// DefaultMaxPages bounds how much of a PDF is read. Receipts are one or two
// pages; anything longer is unlikely to be a receipt.
const DefaultMaxPages = 5

// PDFSource reads the text layer of a PDF. When the PDF has no text layer
// (a scanned receipt) and an OCR fallback is set, pages are rasterized and
// sent to the fallback instead.
type PDFSource struct {
	maxPages int
	fallback TextSource
}

// PDFOption configures a PDFSource.
type PDFOption func(*PDFSource)

// WithMaxPages limits the number of pages read.
func WithMaxPages(n int) PDFOption {
	return func(p *PDFSource) {
		p.maxPages = n
	}
}

// WithOCRFallback sets the source used for PDFs without a text layer.
func WithOCRFallback(src TextSource) PDFOption {
	return func(p *PDFSource) {
		p.fallback = src
	}
}

// NewPDFSource creates a PDF text source.
func NewPDFSource(opts ...PDFOption) *PDFSource {
	p := &PDFSource{maxPages: DefaultMaxPages}
	for _, opt := range opts {
		opt(p)
	}
	if p.maxPages <= 0 {
		p.maxPages = DefaultMaxPages
	}
	return p
}

// ExtractText implements TextSource.
func (p *PDFSource) ExtractText(ctx context.Context, data []byte) (string, error) {
	doc, err := fitz.NewFromMemory(data)
	if err != nil {
		return "", fmt.Errorf("failed to open PDF document: %w", err)
	}
	defer func() {
		_ = doc.Close()
	}()

	total := doc.NumPage()
	if total == 0 {
		return "", fmt.Errorf("%w: PDF has no pages", receipts.ErrEmptyDocument)
	}
	pages := min(total, p.maxPages)

	var parts []string
	for i := 0; i < pages; i++ {
		text, err := doc.Text(i)
		if err != nil {
			return "", fmt.Errorf("failed to read text of page %d: %w", i+1, err)
		}
		parts = append(parts, text)
	}

	text := strings.TrimSpace(strings.Join(parts, "\n"))
	if text != "" || p.fallback == nil {
		return text, nil
	}
	return p.ocrPages(ctx, doc, pages)
}

func (p *PDFSource) ocrPages(ctx context.Context, doc *fitz.Document, pages int) (string, error) {
	var parts []string
	for i := 0; i < pages; i++ {
		img, err := doc.Image(i)
		if err != nil {
			return "", fmt.Errorf("failed to convert page %d to image: %w", i+1, err)
		}

		var buf bytes.Buffer
		if err := png.Encode(&buf, img); err != nil {
			return "", fmt.Errorf("failed to encode page %d as PNG: %w", i+1, err)
		}

		text, err := p.fallback.ExtractText(ctx, buf.Bytes())
		if err != nil {
			return "", fmt.Errorf("failed to OCR page %d: %w", i+1, err)
		}
		parts = append(parts, text)
	}
	return strings.TrimSpace(strings.Join(parts, "\n")), nil
}

var _ TextSource = (*PDFSource)(nil)
