package document

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

var (
	pdfBytes  = []byte("%PDF-1.4\n%\xe2\xe3\xcf\xd3\n1 0 obj\n<< >>\nendobj\n")
	pngBytes  = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR\x00\x00\x00\x01\x00\x00\x00\x01\x08\x02\x00\x00\x00")
	jpegBytes = []byte("\xff\xd8\xff\xe0\x00\x10JFIF\x00\x01\x01\x00\x00\x01\x00\x01\x00\x00")
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		hint string
		want Kind
	}{
		{name: "pdf signature", data: pdfBytes, want: KindPDF},
		{name: "pdf signature beats image hint", data: pdfBytes, hint: "image/jpeg", want: KindPDF},
		{name: "png signature", data: pngBytes, want: KindImage},
		{name: "png signature beats pdf hint", data: pngBytes, hint: "application/pdf", want: KindImage},
		{name: "jpeg signature", data: jpegBytes, want: KindImage},
		{name: "unknown bytes with pdf hint", data: []byte("opaque"), hint: "application/pdf", want: KindPDF},
		{name: "hint with parameters", data: []byte("opaque"), hint: "application/pdf; name=comprovante.pdf", want: KindPDF},
		{name: "unknown bytes with x-pdf hint", data: []byte("opaque"), hint: "Application/X-PDF", want: KindPDF},
		{name: "unknown bytes default to image", data: []byte("opaque"), want: KindImage},
		{name: "unknown bytes with octet-stream hint", data: []byte("opaque"), hint: "application/octet-stream", want: KindImage},
		{name: "empty", data: nil, want: KindImage},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Classify(tt.data, tt.hint)
			assert.Equal(t, tt.want, got.Kind)
			assert.Equal(t, len(tt.data), got.Size)
			assert.Len(t, got.Fingerprint, 16)
		})
	}
}

func TestClassify_DetectedMIME(t *testing.T) {
	assert.Equal(t, "application/pdf", Classify(pdfBytes, "").MIME)
	assert.Equal(t, "image/png", Classify(pngBytes, "").MIME)
}

func TestFingerprint(t *testing.T) {
	assert.Equal(t, Fingerprint(pdfBytes), Fingerprint(append([]byte(nil), pdfBytes...)))
	assert.NotEqual(t, Fingerprint(pdfBytes), Fingerprint(pngBytes))
}
