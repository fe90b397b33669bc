// Package model contains the struct definitions shared across packages: the
// listed classroom items, their durable processing records and the transient
// artifacts produced for them.
package model

import (
	"time"
)

// ItemKind distinguishes course materials from announcements. A named string
// type keeps the two values from mixing with arbitrary strings.
type ItemKind string

const (
	KindMaterial     ItemKind = "material"
	KindAnnouncement ItemKind = "announcement"
)

// FileRef points at a Drive attachment of a material.
type FileRef struct {
	ID       string `json:"id"`
	Title    string `json:"title"`
	MimeType string `json:"mimeType,omitempty"`
}

// RawRef is the opaque content reference handed to the extractor. Inline
// carries announcement or description text; Files lists Drive attachments.
type RawRef struct {
	Inline string    `json:"inline,omitempty"`
	Files  []FileRef `json:"files,omitempty"`
}

// Empty reports whether the reference carries nothing to extract.
func (r RawRef) Empty() bool {
	return r.Inline == "" && len(r.Files) == 0
}

// Item is one listed material or announcement.
type Item struct {
	ItemID      string    `json:"itemId"`
	CourseID    string    `json:"courseId"`
	CourseName  string    `json:"courseName,omitempty"`
	Kind        ItemKind  `json:"kind"`
	Title       string    `json:"title"`
	RawRef      RawRef    `json:"rawRef"`
	PostedAt    time.Time `json:"postedAt"`
	ContentHash string    `json:"contentHash,omitempty"`
}

// ItemID builds the stable identity of a classroom item.
func ItemID(courseID string, kind ItemKind, classroomID string) string {
	return courseID + "/" + string(kind) + "/" + classroomID
}

// Category is the classification outcome for an announcement.
type Category string

const (
	CategoryProject       Category = "project-worthy"
	CategoryLabTest       Category = "lab-test-relevant"
	CategoryDeadline      Category = "deadline-bearing"
	CategoryInformational Category = "informational-only"
)

// Categories lists every classification outcome.
var Categories = []Category{CategoryProject, CategoryLabTest, CategoryDeadline, CategoryInformational}

// Valid reports whether c is one of the known categories.
func (c Category) Valid() bool {
	for _, known := range Categories {
		if c == known {
			return true
		}
	}
	return false
}

// Course is a classroom course the connector can list items for.
type Course struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}
