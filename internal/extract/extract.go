// Package extract turns an item's raw reference into plain text. Inline
// text is used as is (HTML is converted to Markdown) and Drive attachments
// are fetched and dispatched to a handler chain by MIME type.
package extract

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	md "github.com/JohannesKaufmann/html-to-markdown"

	"github.com/dharsanguruparan/ClassBuddy/internal/logging"
	"github.com/dharsanguruparan/ClassBuddy/internal/model"
	pdfutil "github.com/dharsanguruparan/ClassBuddy/internal/pdf"
	"github.com/dharsanguruparan/ClassBuddy/internal/retry"
)

// Document is a fetched attachment.
type Document struct {
	Title    string
	MimeType string
	Data     []byte
}

// Fetcher downloads attachments. Google Docs and Slides are expected to come
// back already exported.
type Fetcher interface {
	Fetch(ctx context.Context, ref model.FileRef) (Document, error)
}

// Handler converts one document format to text.
type Handler interface {
	CanHandle(doc Document) bool
	Handle(doc Document) (string, error)
}

// ErrUnsupported marks attachments no handler accepts.
var ErrUnsupported = errors.New("unsupported attachment type")

// Extractor concatenates the text of an item's inline body and attachments.
type Extractor struct {
	fetcher  Fetcher
	handlers []Handler
	logger   *slog.Logger
}

// New creates an Extractor with the default handlers. fetcher may be nil
// when only inline text is expected.
func New(fetcher Fetcher, logger *slog.Logger) *Extractor {
	e := &Extractor{fetcher: fetcher, logger: logging.OrDiscard(logger).With("component", "extract")}
	// Register handlers (most specific first).
	e.AddHandler(PDFHandler{})
	e.AddHandler(NewHTMLHandler())
	e.AddHandler(TextHandler{})
	return e
}

// AddHandler appends a handler to the chain.
func (e *Extractor) AddHandler(h Handler) {
	e.handlers = append(e.handlers, h)
}

// Extract returns the item text or a *model.ExtractError. Fetch failures
// that may clear up are marked transient; an item with no usable text is a
// permanent failure.
func (e *Extractor) Extract(ctx context.Context, raw model.RawRef) (string, error) {
	var parts []string
	if inline := strings.TrimSpace(raw.Inline); inline != "" {
		text, err := e.inline(inline)
		if err != nil {
			return "", &model.ExtractError{Err: err}
		}
		parts = append(parts, text)
	}
	for _, ref := range raw.Files {
		text, err := e.file(ctx, ref)
		if err != nil {
			if retry.IsTransient(err) || errors.Is(err, context.Canceled) {
				return "", &model.ExtractError{Err: err, Transient: true}
			}
			e.logger.Warn("skipping attachment", "file", ref.Title, "mime", ref.MimeType, "err", err)
			continue
		}
		parts = append(parts, fmt.Sprintf("--- (Source: %s) ---\n%s", ref.Title, text))
	}
	if len(parts) == 0 {
		return "", &model.ExtractError{Err: errors.New("no extractable text")}
	}
	return strings.Join(parts, "\n\n"), nil
}

func (e *Extractor) inline(text string) (string, error) {
	if !looksLikeHTML(text) {
		return text, nil
	}
	return NewHTMLHandler().Handle(Document{MimeType: "text/html", Data: []byte(text)})
}

func (e *Extractor) file(ctx context.Context, ref model.FileRef) (string, error) {
	if e.fetcher == nil {
		return "", fmt.Errorf("%s: no fetcher configured", ref.Title)
	}
	doc, err := e.fetcher.Fetch(ctx, ref)
	if err != nil {
		return "", fmt.Errorf("fetch %s: %w", ref.Title, err)
	}
	for _, h := range e.handlers {
		if h.CanHandle(doc) {
			text, err := h.Handle(doc)
			if err != nil {
				return "", fmt.Errorf("%s: %w", ref.Title, err)
			}
			if strings.TrimSpace(text) == "" {
				return "", fmt.Errorf("%s: empty document", ref.Title)
			}
			return strings.TrimSpace(text), nil
		}
	}
	return "", fmt.Errorf("%s (%s): %w", ref.Title, doc.MimeType, ErrUnsupported)
}

func looksLikeHTML(text string) bool {
	lower := strings.ToLower(text)
	for _, tag := range []string{"<p", "<br", "<div", "<ul", "<ol", "<a ", "<b>", "<strong", "<html", "<span"} {
		if strings.Contains(lower, tag) {
			return true
		}
	}
	return false
}

// PDFHandler extracts PDF text.
type PDFHandler struct{}

func (PDFHandler) CanHandle(doc Document) bool {
	return strings.Contains(doc.MimeType, "pdf") || pdfutil.IsPDF(doc.Data)
}

func (PDFHandler) Handle(doc Document) (string, error) {
	return pdfutil.ExtractText(doc.Data)
}

// HTMLHandler converts HTML exports to Markdown.
type HTMLHandler struct {
	converter *md.Converter
}

// NewHTMLHandler builds an HTMLHandler.
func NewHTMLHandler() HTMLHandler {
	return HTMLHandler{converter: md.NewConverter("", true, nil)}
}

func (h HTMLHandler) CanHandle(doc Document) bool {
	return strings.HasPrefix(doc.MimeType, "text/html") || strings.Contains(doc.MimeType, "xhtml")
}

func (h HTMLHandler) Handle(doc Document) (string, error) {
	markdown, err := h.converter.ConvertString(string(doc.Data))
	if err != nil {
		return "", fmt.Errorf("converting HTML to markdown: %w", err)
	}
	return markdown, nil
}

// TextHandler passes plain text exports through.
type TextHandler struct{}

func (TextHandler) CanHandle(doc Document) bool {
	switch {
	case strings.HasPrefix(doc.MimeType, "text/"):
		return true
	case strings.Contains(doc.MimeType, "markdown"), strings.Contains(doc.MimeType, "json"):
		return true
	}
	return false
}

func (TextHandler) Handle(doc Document) (string, error) {
	return strings.TrimPrefix(string(doc.Data), "\ufeff"), nil
}
