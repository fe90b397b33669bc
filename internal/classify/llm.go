package classify

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/dharsanguruparan/ClassBuddy/internal/llm"
	"github.com/dharsanguruparan/ClassBuddy/internal/model"
)

const classifySystem = `You label classroom announcements. Reply with exactly one label and nothing else:
project-worthy, lab-test-relevant, deadline-bearing, informational-only.
Use project-worthy for project, thesis or proposal work; lab-test-relevant for upcoming tests, quizzes, vivas or evaluations;
deadline-bearing for anything with a due date; informational-only otherwise.`

// LLM asks a language model for the category. Keywords found by the
// fallback classifier are kept so generators can cite them.
type LLM struct {
	completer llm.Completer
	fallback  Classifier
}

var _ Classifier = (*LLM)(nil)

// NewLLM builds an LLM classifier. fallback is consulted for keywords and
// used when the model call fails; it may be nil.
func NewLLM(completer llm.Completer, fallback Classifier) *LLM {
	return &LLM{completer: completer, fallback: fallback}
}

// Classify implements Classifier.
func (c *LLM) Classify(ctx context.Context, text string) (Result, error) {
	if strings.TrimSpace(text) == "" {
		return Result{}, model.ErrClassificationAmbiguous
	}
	var hint Result
	if c.fallback != nil {
		hint, _ = c.fallback.Classify(ctx, text)
	}
	reply, err := c.completer.Complete(ctx, llm.Request{System: classifySystem, Prompt: text, MaxTokens: 16})
	if err != nil {
		if c.fallback != nil && hint.Category != "" {
			return hint, nil
		}
		return Result{}, fmt.Errorf("classify announcement: %w", err)
	}
	category, err := parseCategory(reply)
	if err != nil {
		return Result{}, err
	}
	res := Result{Category: category}
	if hint.Category == category {
		res.Keywords = hint.Keywords
	}
	return res, nil
}

// Keywords asks the fallback for the keywords supporting category. The
// model is not consulted.
func (c *LLM) Keywords(category model.Category, text string) []string {
	if h, ok := c.fallback.(interface {
		Keywords(model.Category, string) []string
	}); ok {
		return h.Keywords(category, text)
	}
	return nil
}

func parseCategory(reply string) (model.Category, error) {
	cleaned := strings.ToLower(strings.Trim(strings.TrimSpace(reply), "`.\"'"))
	var found []model.Category
	for _, c := range model.Categories {
		if strings.Contains(cleaned, string(c)) {
			found = append(found, c)
		}
	}
	if len(found) != 1 {
		return "", fmt.Errorf("%w: %q", model.ErrClassificationAmbiguous, reply)
	}
	return found[0], nil
}

// Resolve maps a classifier outcome onto a category, folding ambiguity into
// informational-only. Other errors are returned.
func Resolve(res Result, err error) (Result, error) {
	if errors.Is(err, model.ErrClassificationAmbiguous) {
		return Result{Category: model.CategoryInformational}, nil
	}
	if err != nil {
		return Result{}, err
	}
	if !res.Category.Valid() {
		return Result{Category: model.CategoryInformational}, nil
	}
	return res, nil
}
