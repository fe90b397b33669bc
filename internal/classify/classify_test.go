package classify

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dharsanguruparan/ClassBuddy/internal/llm"
	"github.com/dharsanguruparan/ClassBuddy/internal/model"
)

func TestKeywordClassify(t *testing.T) {
	k := NewKeyword()
	tests := []struct {
		name string
		text string
		want model.Category
	}{
		{"project", "Submit your mini project synopsis next week", model.CategoryProject},
		{"project beats lab test", "Project evaluation will be held in the lab", model.CategoryProject},
		{"lab test", "Lab test on linked lists this Friday", model.CategoryLabTest},
		{"viva", "Viva for all batches on Monday", model.CategoryLabTest},
		{"deadline", "Assignment 3 is due on Sunday", model.CategoryDeadline},
		{"informational", "Class is cancelled tomorrow", model.CategoryInformational},
		{"word boundary", "Projector in room 204 is broken", model.CategoryInformational},
		{"case insensitive", "CAPSTONE teams are finalised", model.CategoryProject},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := k.Classify(context.Background(), tt.text)
			require.NoError(t, err)
			assert.Equal(t, tt.want, res.Category)
		})
	}
}

func TestKeywordClassifyReportsKeywords(t *testing.T) {
	res, err := NewKeyword().Classify(context.Background(), "Quiz and coding test next week")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"quiz", "coding test"}, res.Keywords)
}

func TestKeywordClassifyEmptyIsAmbiguous(t *testing.T) {
	_, err := NewKeyword().Classify(context.Background(), "   ")
	assert.True(t, errors.Is(err, model.ErrClassificationAmbiguous))
}

func TestLLMClassify(t *testing.T) {
	completer := llm.CompleterFunc(func(context.Context, llm.Request) (string, error) {
		return "Lab-Test-Relevant.", nil
	})
	res, err := NewLLM(completer, NewKeyword()).Classify(context.Background(), "Quiz on Friday")
	require.NoError(t, err)
	assert.Equal(t, model.CategoryLabTest, res.Category)
	assert.Equal(t, []string{"quiz"}, res.Keywords)
}

func TestLLMClassifyUnparseableIsAmbiguous(t *testing.T) {
	completer := llm.CompleterFunc(func(context.Context, llm.Request) (string, error) {
		return "I am not sure", nil
	})
	_, err := NewLLM(completer, nil).Classify(context.Background(), "Hello class")
	assert.True(t, errors.Is(err, model.ErrClassificationAmbiguous))
}

func TestLLMClassifyFallsBackOnError(t *testing.T) {
	completer := llm.CompleterFunc(func(context.Context, llm.Request) (string, error) {
		return "", errors.New("unavailable")
	})
	res, err := NewLLM(completer, NewKeyword()).Classify(context.Background(), "Thesis proposal due")
	require.NoError(t, err)
	assert.Equal(t, model.CategoryProject, res.Category)
}

func TestResolveFoldsAmbiguity(t *testing.T) {
	res, err := Resolve(Result{}, model.ErrClassificationAmbiguous)
	require.NoError(t, err)
	assert.Equal(t, model.CategoryInformational, res.Category)

	_, err = Resolve(Result{}, errors.New("boom"))
	assert.Error(t, err)
}

func TestKeywordsForKnownCategory(t *testing.T) {
	k := NewKeyword()
	text := "Project evaluation will be held in the lab"
	assert.Equal(t, []string{"project"}, k.Keywords(model.CategoryProject, text))
	assert.Equal(t, []string{"evaluation"}, k.Keywords(model.CategoryLabTest, text))
	assert.Empty(t, k.Keywords(model.CategoryInformational, text))

	completer := llm.CompleterFunc(func(context.Context, llm.Request) (string, error) {
		t.Fatal("model consulted for keywords")
		return "", nil
	})
	assert.Equal(t, []string{"evaluation"}, NewLLM(completer, k).Keywords(model.CategoryLabTest, text))
	assert.Empty(t, NewLLM(completer, nil).Keywords(model.CategoryLabTest, text))
}
