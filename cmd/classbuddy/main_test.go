package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dharsanguruparan/ClassBuddy/internal/model"
	"github.com/dharsanguruparan/ClassBuddy/internal/pipeline"
	"github.com/dharsanguruparan/ClassBuddy/internal/storage"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	configFile, logLevel, asJSON = "", "", false
	t.Setenv("CLASSBUDDY_CONFIG", "")
	cmd := newRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestAnalyzeClassifiesArguments(t *testing.T) {
	t.Setenv("CLASSBUDDY_CLASSIFIER", "keyword")
	out, err := execute(t, "analyze", "Lab", "test", "on", "Friday")
	require.NoError(t, err)
	assert.Contains(t, out, "category: lab-test")
	assert.Contains(t, out, "artifacts: lab-guidance,quiz")

	out, err = execute(t, "analyze", "--json", "Campus is closed tomorrow")
	require.NoError(t, err)
	var got map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.Equal(t, string(model.CategoryInformational), got["category"])
}

func TestStatusListsRecords(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "state.db")
	store, err := storage.NewSQLiteStore(dbPath)
	require.NoError(t, err)
	rec := &model.ProcessingRecord{
		ItemID:        "c1/material/m1",
		CourseID:      "c1",
		Kind:          model.KindMaterial,
		Title:         "Graphs",
		Status:        model.StatusPartial,
		RequiredKinds: []model.ArtifactKind{model.ArtifactQuiz, model.ArtifactSummary},
		ArtifactRefs:  map[model.ArtifactKind]string{model.ArtifactSummary: "ref"},
		AttemptCount:  1,
	}
	require.NoError(t, store.Put(context.Background(), rec))
	require.NoError(t, store.Close())

	t.Setenv("CLASSBUDDY_STORE", "sqlite")
	t.Setenv("CLASSBUDDY_SQLITE_PATH", dbPath)
	out, err := execute(t, "status", "--status", "partial")
	require.NoError(t, err)
	assert.Contains(t, out, "c1/material/m1")
	assert.Contains(t, out, "quiz")
	assert.Contains(t, out, "Graphs")

	out, err = execute(t, "status", "--incomplete", "--json")
	require.NoError(t, err)
	var recs []model.ProcessingRecord
	require.NoError(t, json.Unmarshal([]byte(out), &recs))
	require.Len(t, recs, 1)
	assert.Equal(t, model.StatusPartial, recs[0].Status)

	_, err = execute(t, "status", "--status", "bogus")
	require.Error(t, err)
}

func TestCoursesListsActiveCourses(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/courses", r.URL.Path)
		assert.Equal(t, "ACTIVE", r.URL.Query().Get("courseStates"))
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"courses":[
			{"id":"101","name":"Algorithms","section":"A","courseState":"ACTIVE"},
			{"id":"202","name":"Compilers","courseState":"ACTIVE"}]}`))
	}))
	defer srv.Close()
	t.Setenv("CLASSBUDDY_CLASSROOM_BASE", srv.URL)
	t.Setenv("CLASSBUDDY_GOOGLE_TOKEN", "tok")

	out, err := execute(t, "courses")
	require.NoError(t, err)
	assert.Regexp(t, `ID\s+NAME`, out)
	assert.Regexp(t, `101\s+Algorithms \(A\)`, out)
	assert.Regexp(t, `202\s+Compilers`, out)

	out, err = execute(t, "courses", "--json")
	require.NoError(t, err)
	var courses []model.Course
	require.NoError(t, json.Unmarshal([]byte(out), &courses))
	assert.Equal(t, []model.Course{{ID: "101", Name: "Algorithms (A)"}, {ID: "202", Name: "Compilers"}}, courses)
}

func TestRequeueRequiresItemID(t *testing.T) {
	_, err := execute(t, "requeue")
	require.Error(t, err)
}

func TestPrintReport(t *testing.T) {
	asJSON = false
	report := &pipeline.Report{
		RunID:    "r1",
		Listed:   3,
		Detected: 2,
		Partial: []pipeline.ItemResult{{
			ItemID:  "c1/material/m1",
			Title:   "Graphs",
			Missing: []model.ArtifactKind{model.ArtifactAudio},
			Error:   "audio: tts unavailable",
		}},
		CourseErrors: []pipeline.CourseError{{CourseID: "c2", Error: "forbidden"}},
	}
	var out bytes.Buffer
	require.NoError(t, printReport(&out, report))
	text := out.String()
	assert.Contains(t, text, "run r1: listed 3, detected 2")
	assert.Contains(t, text, "partial (1)")
	assert.Contains(t, text, "missing: audio")
	assert.Contains(t, text, "course c2 skipped: forbidden")
}
