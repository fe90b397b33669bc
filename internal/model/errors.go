package model

import (
	"errors"
	"fmt"
)

// ErrClassificationAmbiguous is returned by classifiers that cannot decide.
// Callers treat such announcements as informational-only.
var ErrClassificationAmbiguous = errors.New("classification ambiguous")

// ExtractError reports that an item's raw content could not be turned into
// text. It is permanent unless Transient is set, in which case the fetch may
// succeed on a later attempt.
type ExtractError struct {
	ItemID    string
	Err       error
	Transient bool
}

func (e *ExtractError) Error() string {
	return fmt.Sprintf("extract %s: %v", e.ItemID, e.Err)
}

func (e *ExtractError) Unwrap() error {
	return e.Err
}

// Temporary reports whether another attempt could succeed.
func (e *ExtractError) Temporary() bool {
	return e.Transient
}

// GenerationError reports a failed generator call for one artifact kind.
type GenerationError struct {
	Kind ArtifactKind
	Err  error
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("generate %s: %v", e.Kind, e.Err)
}

func (e *GenerationError) Unwrap() error {
	return e.Err
}

func (e *GenerationError) Temporary() bool {
	return true
}

// PublishError reports a failed upload of one artifact.
type PublishError struct {
	Kind ArtifactKind
	Err  error
}

func (e *PublishError) Error() string {
	return fmt.Sprintf("publish %s: %v", e.Kind, e.Err)
}

func (e *PublishError) Unwrap() error {
	return e.Err
}

func (e *PublishError) Temporary() bool {
	return true
}
