package model

import "sort"

// ArtifactKind names one derived artifact type.
type ArtifactKind string

const (
	ArtifactSummary     ArtifactKind = "summary"
	ArtifactFlashcards  ArtifactKind = "flashcards"
	ArtifactQuiz        ArtifactKind = "quiz"
	ArtifactProjectIdea ArtifactKind = "project-idea"
	ArtifactLabGuidance ArtifactKind = "lab-guidance"
	ArtifactAudio       ArtifactKind = "audio"
)

// MaterialKinds is the required artifact set for every material.
var MaterialKinds = []ArtifactKind{ArtifactSummary, ArtifactFlashcards, ArtifactQuiz, ArtifactAudio}

// KindsForCategory returns the required artifact set of an announcement.
// Informational announcements need nothing.
func KindsForCategory(c Category) []ArtifactKind {
	switch c {
	case CategoryProject:
		return []ArtifactKind{ArtifactProjectIdea, ArtifactSummary}
	case CategoryLabTest:
		return []ArtifactKind{ArtifactLabGuidance, ArtifactQuiz}
	case CategoryDeadline:
		return []ArtifactKind{ArtifactSummary}
	default:
		return nil
	}
}

// SortKinds orders kinds lexically so records and reports are stable.
func SortKinds(kinds []ArtifactKind) []ArtifactKind {
	out := append([]ArtifactKind(nil), kinds...)
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Artifact is a generated payload waiting to be published. Only the remote
// identifier returned by the publisher outlives it.
type Artifact struct {
	ItemID      string       `json:"itemId"`
	Kind        ArtifactKind `json:"kind"`
	FileName    string       `json:"fileName"`
	ContentType string       `json:"contentType"`
	Data        []byte       `json:"-"`
}

// GenerationTask is one unit of fan-out work for a single item and kind.
type GenerationTask struct {
	Item       Item
	Kind       ArtifactKind
	SourceText string
	// Context carries optional hints such as the course name or the
	// announcement category.
	Context map[string]string
}
