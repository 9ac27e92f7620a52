package ocr

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"
)

// IsPDF reports whether the attachment content looks like a PDF document.
func IsPDF(contentType string, content []byte) bool {
	if contentType == "application/pdf" {
		return true
	}
	return bytes.HasPrefix(content, []byte("%PDF-"))
}

// ExtractPDFText returns the embedded plain text of a PDF document.
// Scanned PDFs without a text layer yield an empty string, not an error.
func ExtractPDFText(content []byte) (string, error) {
	r, err := pdf.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return "", fmt.Errorf("reading pdf: %w", err)
	}

	var sb strings.Builder
	for i := 1; i <= r.NumPage(); i++ {
		page := r.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			return "", fmt.Errorf("extracting text from page %d: %w", i, err)
		}
		sb.WriteString(text)
	}
	return strings.TrimSpace(sb.String()), nil
}
