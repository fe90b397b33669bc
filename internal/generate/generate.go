// Package generate produces one artifact per GenerationTask: text artifacts
// through an LLM, PDF guides through the document renderer and audio
// through a TTS synthesizer.
package generate

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strings"
	"time"

	"github.com/dharsanguruparan/ClassBuddy/internal/document"
	"github.com/dharsanguruparan/ClassBuddy/internal/llm"
	"github.com/dharsanguruparan/ClassBuddy/internal/model"
	"github.com/dharsanguruparan/ClassBuddy/internal/tts"
)

// Context keys understood by the generators.
const (
	CtxCourseName = "course"
	CtxCategory   = "category"
	CtxKeywords   = "keywords"
)

// Generator turns a task into an artifact payload.
type Generator interface {
	Generate(ctx context.Context, task model.GenerationTask) (model.Artifact, error)
}

// Registry dispatches tasks to the generator registered for their kind.
type Registry struct {
	generators map[model.ArtifactKind]Generator
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{generators: make(map[model.ArtifactKind]Generator)}
}

// Default registers every artifact kind on the given backends.
func Default(completer llm.Completer, synth tts.Synthesizer) *Registry {
	r := NewRegistry()
	r.Register(model.ArtifactSummary, &Prompt{Completer: completer, System: summaryPrompt, Format: FormatMarkdown, Label: "Summary"})
	r.Register(model.ArtifactFlashcards, &Prompt{Completer: completer, System: flashcardsPrompt, Format: FormatCSV, Label: "Flashcards"})
	r.Register(model.ArtifactQuiz, &Prompt{Completer: completer, System: quizPrompt, Format: FormatMarkdown, Label: "Quiz"})
	r.Register(model.ArtifactProjectIdea, &Prompt{Completer: completer, System: projectIdeasPrompt, Format: FormatPDF, Label: "ProjectIdeas"})
	r.Register(model.ArtifactLabGuidance, &Prompt{Completer: completer, System: labGuidancePrompt, Format: FormatPDF, Label: "LabGuide"})
	r.Register(model.ArtifactAudio, &Audio{Completer: completer, Synthesizer: synth})
	return r
}

// Register sets the generator for kind.
func (r *Registry) Register(kind model.ArtifactKind, g Generator) {
	r.generators[kind] = g
}

// Generate implements Generator. Every failure is a *model.GenerationError.
func (r *Registry) Generate(ctx context.Context, task model.GenerationTask) (model.Artifact, error) {
	g, ok := r.generators[task.Kind]
	if !ok {
		return model.Artifact{}, &model.GenerationError{Kind: task.Kind, Err: errors.New("no generator registered")}
	}
	artifact, err := g.Generate(ctx, task)
	if err != nil {
		var genErr *model.GenerationError
		if errors.As(err, &genErr) {
			return model.Artifact{}, err
		}
		return model.Artifact{}, &model.GenerationError{Kind: task.Kind, Err: err}
	}
	artifact.ItemID = task.Item.ItemID
	artifact.Kind = task.Kind
	return artifact, nil
}

// Format selects how a prompt reply is packaged.
type Format int

const (
	FormatMarkdown Format = iota
	FormatCSV
	FormatPDF
)

// Prompt is an LLM-backed generator for text artifacts.
type Prompt struct {
	Completer llm.Completer
	System    string
	Format    Format
	Label     string
	MaxTokens int
}

// Generate implements Generator.
func (p *Prompt) Generate(ctx context.Context, task model.GenerationTask) (model.Artifact, error) {
	reply, err := p.Completer.Complete(ctx, llm.Request{
		System:    p.System,
		Prompt:    userPrompt(task),
		MaxTokens: p.MaxTokens,
	})
	if err != nil {
		return model.Artifact{}, err
	}
	reply = stripFence(strings.TrimSpace(reply))
	if reply == "" {
		return model.Artifact{}, llm.ErrEmptyResponse
	}
	name := FileName(p.Label, task.Item.Title)
	switch p.Format {
	case FormatCSV:
		data, err := normalizeCSV(reply)
		if err != nil {
			return model.Artifact{}, err
		}
		return model.Artifact{FileName: name + ".csv", ContentType: "text/csv; charset=utf-8", Data: data}, nil
	case FormatPDF:
		data, err := document.RenderPDF(document.Guide{
			Title:    fmt.Sprintf("%s: %s", labelTitle(p.Label), task.Item.Title),
			Subtitle: task.Context[CtxCourseName],
			Markdown: reply,
			Created:  time.Now(),
		})
		if err != nil {
			return model.Artifact{}, err
		}
		return model.Artifact{FileName: name + ".pdf", ContentType: "application/pdf", Data: data}, nil
	default:
		return model.Artifact{FileName: name + ".md", ContentType: "text/markdown; charset=utf-8", Data: []byte(reply + "\n")}, nil
	}
}

// Audio writes a narration script and synthesizes it.
type Audio struct {
	Completer   llm.Completer
	Synthesizer tts.Synthesizer
}

// Generate implements Generator.
func (a *Audio) Generate(ctx context.Context, task model.GenerationTask) (model.Artifact, error) {
	script, err := a.Completer.Complete(ctx, llm.Request{System: narrationPrompt, Prompt: userPrompt(task)})
	if err != nil {
		return model.Artifact{}, fmt.Errorf("narration: %w", err)
	}
	script = strings.TrimSpace(script)
	if script == "" {
		return model.Artifact{}, llm.ErrEmptyResponse
	}
	audio, err := a.Synthesizer.Synthesize(ctx, script)
	if err != nil {
		return model.Artifact{}, fmt.Errorf("synthesize: %w", err)
	}
	return model.Artifact{
		FileName:    FileName("Audio", task.Item.Title) + "." + audio.Extension,
		ContentType: audio.ContentType,
		Data:        audio.Data,
	}, nil
}

func userPrompt(task model.GenerationTask) string {
	var b strings.Builder
	if course := task.Context[CtxCourseName]; course != "" {
		fmt.Fprintf(&b, "Course: %s\n", course)
	}
	if task.Item.Title != "" {
		fmt.Fprintf(&b, "Title: %s\n", task.Item.Title)
	}
	if kws := task.Context[CtxKeywords]; kws != "" {
		fmt.Fprintf(&b, "Detected Keywords: %s\n", kws)
	}
	fmt.Fprintf(&b, "\nTEXT:\n---\n%s\n---", task.SourceText)
	return b.String()
}

var fenceRe = regexp.MustCompile("(?s)^```[a-zA-Z]*\n(.*)\n```$")

// stripFence unwraps replies that arrive inside a single code fence.
func stripFence(s string) string {
	if m := fenceRe.FindStringSubmatch(s); m != nil {
		return strings.TrimSpace(m[1])
	}
	return s
}

// normalizeCSV keeps only two-column question/answer rows.
func normalizeCSV(reply string) ([]byte, error) {
	r := csv.NewReader(strings.NewReader(reply))
	r.FieldsPerRecord = -1
	r.LazyQuotes = true
	r.TrimLeadingSpace = true
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	rows := 0
	for {
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			continue
		}
		if len(rec) < 2 || strings.TrimSpace(rec[0]) == "" || strings.TrimSpace(rec[1]) == "" {
			continue
		}
		q, ans := strings.TrimSpace(rec[0]), strings.TrimSpace(strings.Join(rec[1:], ","))
		if strings.EqualFold(q, "question") && strings.EqualFold(ans, "answer") {
			continue
		}
		if err := w.Write([]string{q, ans}); err != nil {
			return nil, fmt.Errorf("write flashcard: %w", err)
		}
		rows++
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("flush flashcards: %w", err)
	}
	if rows == 0 {
		return nil, errors.New("no flashcards in reply")
	}
	return buf.Bytes(), nil
}

var unsafeName = regexp.MustCompile(`[^\w\-. ]`)

// FileName builds "<Label>-<title>" with the title sanitized for storage.
func FileName(label, title string) string {
	title = strings.TrimSpace(title)
	if title == "" {
		title = "Untitled"
	}
	safe := strings.ReplaceAll(unsafeName.ReplaceAllString(title, "_"), " ", "_")
	if len(safe) > 80 {
		safe = safe[:80]
	}
	return label + "-" + safe
}

func labelTitle(label string) string {
	switch label {
	case "ProjectIdeas":
		return "Project Ideas"
	case "LabGuide":
		return "Lab Test Guide"
	default:
		return label
	}
}
