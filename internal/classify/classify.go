// Package classify sorts announcements into the closed set of categories
// that decide which artifacts get generated.
package classify

import (
	"context"
	"regexp"
	"strings"

	"github.com/dharsanguruparan/ClassBuddy/internal/model"
)

// Result is a category plus the keywords that triggered it.
type Result struct {
	Category model.Category `json:"category"`
	Keywords []string       `json:"keywords,omitempty"`
}

// Classifier is a pure function over announcement text. Implementations
// return model.ErrClassificationAmbiguous when they cannot decide.
type Classifier interface {
	Classify(ctx context.Context, text string) (Result, error)
}

// ProjectKeywords mark announcements that call for project ideas.
var ProjectKeywords = []string{
	"synopsis", "project", "pbl", "problem-based learning", "problem based learning",
	"capstone", "thesis", "research", "presentation", "proposal", "development",
	"design", "prototype", "deliverable", "milestone", "case study", "report",
	"documentation", "mini project", "major project", "final year project",
	"term project", "semester project",
}

// LabTestKeywords mark announcements about upcoming evaluations.
var LabTestKeywords = []string{
	"lab test", "evaluation", "practical exam", "viva", "quiz", "midterm",
	"final exam", "coding test", "assessment", "lab evaluation",
}

// DeadlineKeywords mark announcements that carry a due date.
var DeadlineKeywords = []string{
	"deadline", "due", "due date", "submit by", "submission", "last date",
	"extended", "extension", "before midnight",
}

type matcher struct {
	keyword string
	re      *regexp.Regexp
}

func compile(keywords []string) []matcher {
	out := make([]matcher, 0, len(keywords))
	for _, kw := range keywords {
		out = append(out, matcher{
			keyword: kw,
			re:      regexp.MustCompile(`(?i)\b` + regexp.QuoteMeta(kw) + `\b`),
		})
	}
	return out
}

// Keyword classifies by whole-word keyword matches. Project keywords win
// over lab-test keywords, which win over deadline keywords.
type Keyword struct {
	project  []matcher
	labTest  []matcher
	deadline []matcher
}

var _ Classifier = (*Keyword)(nil)

// NewKeyword builds a Keyword classifier with the default keyword sets.
func NewKeyword() *Keyword {
	return &Keyword{
		project:  compile(ProjectKeywords),
		labTest:  compile(LabTestKeywords),
		deadline: compile(DeadlineKeywords),
	}
}

// Classify implements Classifier.
func (k *Keyword) Classify(_ context.Context, text string) (Result, error) {
	if strings.TrimSpace(text) == "" {
		return Result{}, model.ErrClassificationAmbiguous
	}
	if kws := matches(k.project, text); len(kws) > 0 {
		return Result{Category: model.CategoryProject, Keywords: kws}, nil
	}
	if kws := matches(k.labTest, text); len(kws) > 0 {
		return Result{Category: model.CategoryLabTest, Keywords: kws}, nil
	}
	if kws := matches(k.deadline, text); len(kws) > 0 {
		return Result{Category: model.CategoryDeadline, Keywords: kws}, nil
	}
	return Result{Category: model.CategoryInformational}, nil
}

func matches(ms []matcher, text string) []string {
	var out []string
	for _, m := range ms {
		if m.re.MatchString(text) {
			out = append(out, m.keyword)
		}
	}
	return out
}

// Keywords returns the keywords in text that support category, so a
// resumed attempt can recover them without classifying again.
func (k *Keyword) Keywords(category model.Category, text string) []string {
	switch category {
	case model.CategoryProject:
		return matches(k.project, text)
	case model.CategoryLabTest:
		return matches(k.labTest, text)
	case model.CategoryDeadline:
		return matches(k.deadline, text)
	}
	return nil
}
