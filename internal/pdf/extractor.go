// Package pdfutil turns PDF attachments into plain text.
package pdfutil

import (
	"bytes"
	"errors"
	"fmt"
	"strings"

	pdf "github.com/ledongthuc/pdf"
)

// ErrNoText is returned when a PDF parses but carries no extractable text,
// typically a scanned document.
var ErrNoText = errors.New("pdf has no extractable text")

// ExtractText reads PDF bytes and returns the text of every non-empty page
// joined by newlines. Malformed input that makes the parser panic is
// reported as an error.
func ExtractText(data []byte) (text string, err error) {
	defer func() {
		if r := recover(); r != nil {
			text, err = "", fmt.Errorf("parse pdf: %v", r)
		}
	}()
	doc, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("new pdf reader: %w", err)
	}
	pages := make([]string, 0, doc.NumPage())
	for page := 1; page <= doc.NumPage(); page++ {
		p := doc.Page(page)
		if p.V.IsNull() {
			continue
		}
		content, err := p.GetPlainText(nil)
		if err != nil {
			return "", fmt.Errorf("page %d: %w", page, err)
		}
		if content = strings.TrimSpace(content); content != "" {
			pages = append(pages, content)
		}
	}
	if len(pages) == 0 {
		return "", ErrNoText
	}
	return strings.Join(pages, "\n"), nil
}

// IsPDF sniffs the PDF magic header.
func IsPDF(data []byte) bool {
	return bytes.HasPrefix(data, []byte("%PDF-"))
}
