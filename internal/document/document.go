// Package document assembles generated Markdown guides into PDF files.
package document

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"github.com/jung-kurt/gofpdf"
)

const (
	bodySize    = 11
	lineHeight  = 5.5
	pageMargin  = 18
	bottomSpace = 15
)

// Guide is a titled Markdown body.
type Guide struct {
	Title    string
	Subtitle string
	Markdown string
	Created  time.Time
}

// RenderPDF lays out the guide as an A4 PDF. Headings, bullets and code
// fences are styled; other Markdown markers are stripped.
func RenderPDF(g Guide) ([]byte, error) {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(pageMargin, pageMargin, pageMargin)
	pdf.SetAutoPageBreak(true, bottomSpace)
	pdf.SetTitle(g.Title, true)
	pdf.SetCreator("ClassBuddy", true)
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	pdf.AddPage()

	pdf.SetFont("Helvetica", "B", 18)
	pdf.MultiCell(0, 9, tr(g.Title), "", "L", false)
	if g.Subtitle != "" || !g.Created.IsZero() {
		pdf.SetFont("Helvetica", "I", 10)
		sub := g.Subtitle
		if !g.Created.IsZero() {
			sub = strings.TrimSpace(sub + "  " + g.Created.Format("2006-01-02"))
		}
		pdf.MultiCell(0, 6, tr(sub), "", "L", false)
	}
	pdf.Ln(4)

	inCode := false
	for _, raw := range strings.Split(strings.ReplaceAll(g.Markdown, "\r\n", "\n"), "\n") {
		line := strings.TrimRight(raw, " \t")
		if strings.HasPrefix(strings.TrimSpace(line), "```") {
			inCode = !inCode
			continue
		}
		if inCode {
			pdf.SetFont("Courier", "", 9)
			pdf.MultiCell(0, 4.5, tr(line), "", "L", false)
			continue
		}
		trimmed := strings.TrimSpace(line)
		switch {
		case trimmed == "":
			pdf.Ln(2)
		case strings.HasPrefix(trimmed, "### "):
			heading(pdf, tr(plain(trimmed[4:])), 12)
		case strings.HasPrefix(trimmed, "## "):
			heading(pdf, tr(plain(trimmed[3:])), 14)
		case strings.HasPrefix(trimmed, "# "):
			heading(pdf, tr(plain(trimmed[2:])), 16)
		case strings.HasPrefix(trimmed, "- "), strings.HasPrefix(trimmed, "* "):
			indent := float64(len(line)-len(strings.TrimLeft(line, " "))) / 2 * 4
			pdf.SetFont("Helvetica", "", bodySize)
			pdf.SetX(pageMargin + 2 + indent)
			pdf.MultiCell(0, lineHeight, tr("• "+plain(trimmed[2:])), "", "L", false)
		default:
			pdf.SetFont("Helvetica", "", bodySize)
			pdf.MultiCell(0, lineHeight, tr(plain(trimmed)), "", "L", false)
		}
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("render pdf: %w", err)
	}
	return buf.Bytes(), nil
}

func heading(pdf *gofpdf.Fpdf, text string, size float64) {
	pdf.Ln(2)
	pdf.SetFont("Helvetica", "B", size)
	pdf.MultiCell(0, size*0.55, text, "", "L", false)
	pdf.Ln(1)
}

// plain removes inline emphasis and code markers.
func plain(s string) string {
	r := strings.NewReplacer("**", "", "__", "", "`", "")
	return r.Replace(s)
}
