// Package document fetches receipt attachments, decides whether they are PDFs
// or images, and turns them into plain text through a TextSource.
package document

import (
	"fmt"
	"mime"
	"strings"

	"github.com/cespare/xxhash/v2"
	"github.com/gabriel-vasile/mimetype"
)

// Kind selects the text-extraction path for a document.
type Kind string

const (
	KindPDF   Kind = "pdf"
	KindImage Kind = "image"
)

// Classification describes a fetched attachment.
type Classification struct {
	Kind Kind `json:"kind"`

	// MIME is the type detected from the byte signature.
	MIME string `json:"mime"`

	// Fingerprint identifies the content for log correlation. It is not used
	// for deduplication.
	Fingerprint string `json:"fingerprint"`

	Size int `json:"size"`
}

// Classify inspects the byte signature first, falls back to the advisory
// content-type hint, and otherwise assumes an image the OCR path can attempt.
func Classify(data []byte, contentTypeHint string) Classification {
	detected := mimetype.Detect(data)

	c := Classification{
		Kind:        KindImage,
		MIME:        detected.String(),
		Fingerprint: Fingerprint(data),
		Size:        len(data),
	}

	switch {
	case detected.Is("application/pdf"):
		c.Kind = KindPDF
	case strings.HasPrefix(detected.String(), "image/"):
		c.Kind = KindImage
	case isPDFHint(contentTypeHint):
		c.Kind = KindPDF
	}
	return c
}

// Fingerprint returns a short, stable content hash.
func Fingerprint(data []byte) string {
	return fmt.Sprintf("%016x", xxhash.Sum64(data))
}

func isPDFHint(hint string) bool {
	if hint == "" {
		return false
	}
	mediaType, _, err := mime.ParseMediaType(hint)
	if err != nil {
		mediaType = strings.ToLower(strings.TrimSpace(hint))
	}
	return mediaType == "application/pdf" || mediaType == "application/x-pdf"
}
