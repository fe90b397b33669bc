package model

import (
	"testing"
	"time"
)

func TestRecomputeStatus(t *testing.T) {
	item := Item{ItemID: "c1/material/m1", CourseID: "c1", Kind: KindMaterial, ContentHash: "h1", PostedAt: time.Now()}
	rec := NewRecord(item)
	rec.RequiredKinds = []ArtifactKind{ArtifactSummary, ArtifactQuiz}

	if got := rec.Recompute(); got != StatusFailed {
		t.Fatalf("expected failed with no refs, got %s", got)
	}
	rec.ArtifactRefs[ArtifactQuiz] = "ref-quiz"
	if got := rec.Recompute(); got != StatusPartial {
		t.Fatalf("expected partial, got %s", got)
	}
	if rec.ContentHash != "" {
		t.Fatalf("content hash must not advance before completion, got %q", rec.ContentHash)
	}
	rec.ArtifactRefs[ArtifactSummary] = "ref-summary"
	if got := rec.Recompute(); got != StatusComplete {
		t.Fatalf("expected complete, got %s", got)
	}
	if rec.ContentHash != "h1" {
		t.Fatalf("expected content hash h1, got %q", rec.ContentHash)
	}
}

func TestRecomputeWithNoRequiredKindsIsComplete(t *testing.T) {
	rec := NewRecord(Item{ItemID: "c1/announcement/a1", ContentHash: "h"})
	if got := rec.Recompute(); got != StatusComplete {
		t.Fatalf("expected complete, got %s", got)
	}
}

func TestCloneDoesNotShareRefs(t *testing.T) {
	rec := NewRecord(Item{ItemID: "x"})
	rec.ArtifactRefs[ArtifactQuiz] = "a"
	cp := rec.Clone()
	cp.ArtifactRefs[ArtifactQuiz] = "b"
	if rec.ArtifactRefs[ArtifactQuiz] != "a" {
		t.Fatalf("clone mutated original refs")
	}
}

func TestKindsForCategory(t *testing.T) {
	if kinds := KindsForCategory(CategoryInformational); len(kinds) != 0 {
		t.Fatalf("informational announcements need no artifacts, got %v", kinds)
	}
	if kinds := KindsForCategory(CategoryLabTest); len(kinds) != 2 {
		t.Fatalf("expected lab guidance and quiz, got %v", kinds)
	}
}

func TestStatusValid(t *testing.T) {
	for _, s := range []Status{StatusPending, StatusPartial, StatusComplete, StatusFailed} {
		if !s.Valid() {
			t.Fatalf("%s should be valid", s)
		}
	}
	if Status("done").Valid() {
		t.Fatal("unexpected valid status")
	}
}
