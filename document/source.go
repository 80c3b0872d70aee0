package document

import (
	"context"
	"fmt"
)

// TextSource turns document bytes into best-effort plain text.
type TextSource interface {
	ExtractText(ctx context.Context, data []byte) (string, error)
}

// TextSourceFunc adapts a function to TextSource.
type TextSourceFunc func(ctx context.Context, data []byte) (string, error)

// ExtractText implements TextSource.
func (f TextSourceFunc) ExtractText(ctx context.Context, data []byte) (string, error) {
	return f(ctx, data)
}

// Sources holds one TextSource per document kind.
type Sources struct {
	PDF   TextSource
	Image TextSource
}

// ExtractText runs the source registered for kind.
func (s Sources) ExtractText(ctx context.Context, data []byte, kind Kind) (string, error) {
	var src TextSource
	switch kind {
	case KindPDF:
		src = s.PDF
	case KindImage:
		src = s.Image
	default:
		return "", fmt.Errorf("unknown document kind %q", kind)
	}
	if src == nil {
		return "", fmt.Errorf("no text source configured for %s documents", kind)
	}
	return src.ExtractText(ctx, data)
}
