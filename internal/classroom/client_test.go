package classroom

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dharsanguruparan/ClassBuddy/internal/config"
	"github.com/dharsanguruparan/ClassBuddy/internal/extract"
	"github.com/dharsanguruparan/ClassBuddy/internal/model"
)

var now = time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)

func newTestClient(t *testing.T, handler http.Handler, since time.Duration) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	cfg := config.GoogleConfig{ClassroomBase: srv.URL + "/v1", DriveBase: srv.URL + "/drive/v3", UploadBase: srv.URL + "/upload/drive/v3", Token: "tok"}
	return New(cfg, since, nil, WithClock(func() time.Time { return now }))
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func TestListCoursesPagesAndSendsToken(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/courses", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		assert.Equal(t, "ACTIVE", r.URL.Query().Get("courseStates"))
		if r.URL.Query().Get("pageToken") == "" {
			writeJSON(w, map[string]any{"courses": []map[string]string{{"id": "c1", "name": "Algorithms", "section": "A"}}, "nextPageToken": "p2"})
			return
		}
		writeJSON(w, map[string]any{"courses": []map[string]string{{"id": "c2", "name": "Networks"}}})
	})
	c := newTestClient(t, mux, 0)

	courses, err := c.ListCourses(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []model.Course{{ID: "c1", Name: "Algorithms (A)"}, {ID: "c2", Name: "Networks"}}, courses)
}

func TestListMaterialsStopsAtCutoff(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/courses/c1/courseWorkMaterials", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "updateTime desc", r.URL.Query().Get("orderBy"))
		writeJSON(w, map[string]any{
			"courseWorkMaterial": []map[string]any{
				{
					"id": "m2", "title": "Week 2", "description": "Read chapter 2",
					"creationTime": "2025-03-10T09:00:00Z", "updateTime": "2025-03-10T10:00:00Z",
					"materials": []map[string]any{
						{"driveFile": map[string]any{"driveFile": map[string]string{"id": "f1", "title": "slides.pdf"}}},
						{"link": map[string]string{"url": "https://example.org", "title": "Reading"}},
					},
				},
				{"id": "m1", "title": "Week 1", "creationTime": "2025-03-01T09:00:00Z", "updateTime": "2025-03-01T09:00:00Z"},
			},
			"nextPageToken": "never-followed",
		})
	})
	c := newTestClient(t, mux, 24*time.Hour)

	items, err := c.ListMaterials(context.Background(), "c1")
	require.NoError(t, err)
	require.Len(t, items, 1)
	item := items[0]
	assert.Equal(t, "c1/material/m2", item.ItemID)
	assert.Equal(t, model.KindMaterial, item.Kind)
	assert.Equal(t, "Week 2", item.Title)
	assert.Equal(t, []model.FileRef{{ID: "f1", Title: "slides.pdf"}}, item.RawRef.Files)
	assert.Contains(t, item.RawRef.Inline, "Read chapter 2")
	assert.Contains(t, item.RawRef.Inline, "Link: Reading (https://example.org)")
	assert.Equal(t, time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC), item.PostedAt)
	assert.NotEmpty(t, item.ContentHash)
}

func TestAnnouncementHashChangesOnEdit(t *testing.T) {
	updateTime := "2025-03-10T10:00:00Z"
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/courses/c1/announcements", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]any{"announcements": []map[string]any{
			{"id": "a1", "text": "Project proposal due Friday\nDetails inside", "creationTime": "2025-03-10T10:00:00Z", "updateTime": updateTime},
		}})
	})
	c := newTestClient(t, mux, 0)

	first, err := c.ListAnnouncements(context.Background(), "c1")
	require.NoError(t, err)
	require.Len(t, first, 1)
	assert.Equal(t, "Project proposal due Friday", first[0].Title)
	assert.Equal(t, "c1", first[0].CourseID)

	again, err := c.ListAnnouncements(context.Background(), "c1")
	require.NoError(t, err)
	assert.Equal(t, first[0].ContentHash, again[0].ContentHash)

	updateTime = "2025-03-10T11:00:00Z"
	edited, err := c.ListAnnouncements(context.Background(), "c1")
	require.NoError(t, err)
	assert.NotEqual(t, first[0].ContentHash, edited[0].ContentHash)
}

func TestServerErrorsAreTemporary(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/courses/c1/announcements", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "backend down", http.StatusServiceUnavailable)
	})
	c := newTestClient(t, mux, 0)
	_, err := c.ListAnnouncements(context.Background(), "c1")
	var statusErr *StatusError
	require.True(t, errors.As(err, &statusErr))
	assert.True(t, statusErr.Temporary())
}

func TestFetchExportsGoogleDocs(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/drive/v3/files/doc1", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, fileMeta{ID: "doc1", Name: "Lecture notes", MimeType: mimeGoogleDoc})
	})
	mux.HandleFunc("/drive/v3/files/doc1/export", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "text/plain", r.URL.Query().Get("mimeType"))
		_, _ = io.WriteString(w, "Sorting algorithms")
	})
	c := newTestClient(t, mux, 0)

	doc, err := c.Fetch(context.Background(), model.FileRef{ID: "doc1", Title: "notes"})
	require.NoError(t, err)
	assert.Equal(t, extract.Document{Title: "Lecture notes", MimeType: "text/plain", Data: []byte("Sorting algorithms")}, doc)
}

func TestFetchDownloadsPDFAndRejectsVideo(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/drive/v3/files/", func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimPrefix(r.URL.Path, "/drive/v3/files/")
		if r.URL.Query().Get("alt") == "media" {
			_, _ = io.WriteString(w, "%PDF-1.4 body")
			return
		}
		mt := "application/pdf"
		if id == "vid" {
			mt = "video/mp4"
		}
		writeJSON(w, fileMeta{ID: id, Name: id, MimeType: mt})
	})
	c := newTestClient(t, mux, 0)

	doc, err := c.Fetch(context.Background(), model.FileRef{ID: "pdf1"})
	require.NoError(t, err)
	assert.Equal(t, "application/pdf", doc.MimeType)
	assert.Equal(t, "%PDF-1.4 body", string(doc.Data))

	_, err = c.Fetch(context.Background(), model.FileRef{ID: "vid"})
	require.ErrorIs(t, err, extract.ErrUnsupported)
}

func TestDrivePublisherUploadsMultipart(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/upload/drive/v3/files", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "multipart", r.URL.Query().Get("uploadType"))
		mediaType, params, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
		require.NoError(t, err)
		assert.Equal(t, "multipart/related", mediaType)

		mr := multipart.NewReader(r.Body, params["boundary"])
		metaPart, err := mr.NextPart()
		require.NoError(t, err)
		var meta struct {
			Name    string   `json:"name"`
			Parents []string `json:"parents"`
		}
		require.NoError(t, json.NewDecoder(metaPart).Decode(&meta))
		assert.Equal(t, "Quiz-Intro.md", meta.Name)
		assert.Equal(t, []string{"folder1"}, meta.Parents)

		dataPart, err := mr.NextPart()
		require.NoError(t, err)
		assert.Equal(t, "text/markdown", dataPart.Header.Get("Content-Type"))
		data, err := io.ReadAll(dataPart)
		require.NoError(t, err)
		assert.Equal(t, "# Quiz", string(data))

		writeJSON(w, map[string]string{"id": "drive-file-1", "webViewLink": "https://drive/1"})
	})
	c := newTestClient(t, mux, 0)

	id, err := NewDrivePublisher(c).Publish(context.Background(), model.Artifact{Kind: model.ArtifactQuiz, FileName: "Quiz-Intro.md", ContentType: "text/markdown", Data: []byte("# Quiz")}, "folder1")
	require.NoError(t, err)
	assert.Equal(t, "drive-file-1", id)
}

func TestDrivePublisherWrapsFailures(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/upload/drive/v3/files", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "quota", http.StatusForbidden)
	})
	c := newTestClient(t, mux, 0)
	_, err := NewDrivePublisher(c).Publish(context.Background(), model.Artifact{Kind: model.ArtifactAudio, FileName: "a.mp3"}, "")
	var pubErr *model.PublishError
	require.True(t, errors.As(err, &pubErr))
	assert.Equal(t, model.ArtifactAudio, pubErr.Kind)
}
