// Package pdftext extracts plain text from uploaded document bytes.
// PDF content goes through the pdf reader; anything else is treated as
// UTF-8 text.
package pdftext

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	"github.com/ledongthuc/pdf"
)

// Extract returns the text content of data. The filename extension
// selects the decoder.
func Extract(data []byte, filename string) (string, error) {
	if strings.HasSuffix(strings.ToLower(filename), ".pdf") {
		return fromPDF(data)
	}
	return string(data), nil
}

func fromPDF(data []byte) (string, error) {
	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("pdftext: open pdf: %w", err)
	}
	body, err := r.GetPlainText()
	if err != nil {
		return "", fmt.Errorf("pdftext: extract text: %w", err)
	}
	text, err := io.ReadAll(body)
	if err != nil {
		return "", fmt.Errorf("pdftext: read text: %w", err)
	}
	return string(text), nil
}
