// Package classroom is a thin REST client for the Classroom and Drive APIs.
// It lists course materials and announcements as pipeline items, fetches
// Drive attachments for extraction and uploads generated artifacts.
package classroom

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/dharsanguruparan/ClassBuddy/internal/config"
	"github.com/dharsanguruparan/ClassBuddy/internal/logging"
	"github.com/dharsanguruparan/ClassBuddy/internal/model"
)

const (
	defaultPageSize = 20
	maxErrorBody    = 2048
)

// StatusError carries a non-2xx reply from a Google API.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("google api error %d: %s", e.Code, e.Body)
}

// Temporary reports whether the request is worth retrying.
func (e *StatusError) Temporary() bool {
	return e.Code == http.StatusTooManyRequests || e.Code >= 500
}

// Client talks to the Classroom and Drive REST endpoints with a bearer token.
type Client struct {
	http          *http.Client
	classroomBase string
	driveBase     string
	uploadBase    string
	token         string
	since         time.Duration
	pageSize      int
	now           func() time.Time
	logger        *slog.Logger
}

// Option customises a Client.
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.http = h }
}

// WithClock replaces time.Now, mostly for tests.
func WithClock(now func() time.Time) Option {
	return func(c *Client) { c.now = now }
}

// New builds a client. Items last updated before now-since are not listed;
// a zero since lists everything.
func New(cfg config.GoogleConfig, since time.Duration, logger *slog.Logger, opts ...Option) *Client {
	c := &Client{
		http:          &http.Client{Timeout: 60 * time.Second},
		classroomBase: strings.TrimRight(cfg.ClassroomBase, "/"),
		driveBase:     strings.TrimRight(cfg.DriveBase, "/"),
		uploadBase:    strings.TrimRight(cfg.UploadBase, "/"),
		token:         cfg.Token,
		since:         since,
		pageSize:      defaultPageSize,
		now:           time.Now,
		logger:        logging.OrDiscard(logger).With("component", "classroom"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type courseList struct {
	Courses []struct {
		ID          string `json:"id"`
		Name        string `json:"name"`
		Section     string `json:"section"`
		CourseState string `json:"courseState"`
	} `json:"courses"`
	NextPageToken string `json:"nextPageToken"`
}

// ListCourses returns every ACTIVE course visible to the token.
func (c *Client) ListCourses(ctx context.Context) ([]model.Course, error) {
	var out []model.Course
	token := ""
	for {
		q := url.Values{"pageSize": {"100"}, "courseStates": {"ACTIVE"}}
		if token != "" {
			q.Set("pageToken", token)
		}
		var page courseList
		if err := c.getJSON(ctx, c.classroomBase+"/courses?"+q.Encode(), &page); err != nil {
			return nil, fmt.Errorf("list courses: %w", err)
		}
		for _, course := range page.Courses {
			name := course.Name
			if course.Section != "" {
				name = fmt.Sprintf("%s (%s)", course.Name, course.Section)
			}
			out = append(out, model.Course{ID: course.ID, Name: name})
		}
		if page.NextPageToken == "" || len(page.Courses) == 0 {
			return out, nil
		}
		token = page.NextPageToken
	}
}

type driveFile struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

type material struct {
	DriveFile *struct {
		DriveFile driveFile `json:"driveFile"`
	} `json:"driveFile"`
	Link *struct {
		URL   string `json:"url"`
		Title string `json:"title"`
	} `json:"link"`
	YoutubeVideo *struct {
		Title string `json:"title"`
		URL   string `json:"alternateLink"`
	} `json:"youtubeVideo"`
}

type post struct {
	ID           string     `json:"id"`
	CourseID     string     `json:"courseId"`
	Title        string     `json:"title"`
	Description  string     `json:"description"`
	Text         string     `json:"text"`
	Materials    []material `json:"materials"`
	CreationTime string     `json:"creationTime"`
	UpdateTime   string     `json:"updateTime"`
}

type postList struct {
	Materials     []post `json:"courseWorkMaterial"`
	Announcements []post `json:"announcements"`
	NextPageToken string `json:"nextPageToken"`
}

// ListMaterials lists course work materials updated inside the window.
func (c *Client) ListMaterials(ctx context.Context, courseID string) ([]model.Item, error) {
	return c.listPosts(ctx, courseID, model.KindMaterial, "courseWorkMaterials")
}

// ListAnnouncements lists announcements updated inside the window.
func (c *Client) ListAnnouncements(ctx context.Context, courseID string) ([]model.Item, error) {
	return c.listPosts(ctx, courseID, model.KindAnnouncement, "announcements")
}

// listPosts pages through a newest-first listing and stops at the first
// post older than the cutoff.
func (c *Client) listPosts(ctx context.Context, courseID string, kind model.ItemKind, resource string) ([]model.Item, error) {
	var cutoff time.Time
	if c.since > 0 {
		cutoff = c.now().Add(-c.since)
	}
	var items []model.Item
	token := ""
	for {
		q := url.Values{"pageSize": {fmt.Sprint(c.pageSize)}, "orderBy": {"updateTime desc"}}
		if token != "" {
			q.Set("pageToken", token)
		}
		endpoint := fmt.Sprintf("%s/courses/%s/%s?%s", c.classroomBase, url.PathEscape(courseID), resource, q.Encode())
		var page postList
		if err := c.getJSON(ctx, endpoint, &page); err != nil {
			return nil, fmt.Errorf("list %s for %s: %w", resource, courseID, err)
		}
		posts := page.Materials
		if kind == model.KindAnnouncement {
			posts = page.Announcements
		}
		for _, p := range posts {
			updated := parseTime(p.UpdateTime)
			if !cutoff.IsZero() && !updated.After(cutoff) {
				return items, nil
			}
			if p.CourseID == "" {
				p.CourseID = courseID
			}
			items = append(items, toItem(p, kind))
		}
		if page.NextPageToken == "" || len(posts) == 0 {
			return items, nil
		}
		token = page.NextPageToken
	}
}

func toItem(p post, kind model.ItemKind) model.Item {
	var inline []string
	var files []model.FileRef
	title := p.Title
	if kind == model.KindAnnouncement {
		if text := strings.TrimSpace(p.Text); text != "" {
			inline = append(inline, text)
		}
		title = announcementTitle(p.Text)
	} else if desc := strings.TrimSpace(p.Description); desc != "" {
		inline = append(inline, desc)
	}
	for _, m := range p.Materials {
		switch {
		case m.DriveFile != nil:
			files = append(files, model.FileRef{ID: m.DriveFile.DriveFile.ID, Title: m.DriveFile.DriveFile.Title})
		case m.Link != nil:
			inline = append(inline, fmt.Sprintf("Link: %s (%s)", m.Link.Title, m.Link.URL))
		case m.YoutubeVideo != nil:
			inline = append(inline, fmt.Sprintf("Video: %s (%s)", m.YoutubeVideo.Title, m.YoutubeVideo.URL))
		}
	}
	posted := parseTime(p.CreationTime)
	if posted.IsZero() {
		posted = parseTime(p.UpdateTime)
	}
	return model.Item{
		ItemID:      model.ItemID(p.CourseID, kind, p.ID),
		CourseID:    p.CourseID,
		Kind:        kind,
		Title:       title,
		RawRef:      model.RawRef{Inline: strings.Join(inline, "\n\n"), Files: files},
		PostedAt:    posted,
		ContentHash: revisionHash(p, files),
	}
}

// revisionHash fingerprints the listing metadata that changes on edit.
func revisionHash(p post, files []model.FileRef) string {
	ids := make([]string, 0, len(files))
	for _, f := range files {
		ids = append(ids, f.ID)
	}
	sort.Strings(ids)
	h := sha256.New()
	for _, part := range []string{p.UpdateTime, p.Title, p.Description, p.Text, strings.Join(ids, ",")} {
		io.WriteString(h, part)
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}

func announcementTitle(text string) string {
	line := strings.TrimSpace(strings.SplitN(strings.TrimSpace(text), "\n", 2)[0])
	if r := []rune(line); len(r) > 60 {
		line = string(r[:60]) + "..."
	}
	if line == "" {
		return "Announcement"
	}
	return line
}

func parseTime(value string) time.Time {
	if value == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return time.Time{}
	}
	return t.UTC()
}

func (c *Client) getJSON(ctx context.Context, endpoint string, out any) error {
	body, _, err := c.get(ctx, endpoint)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func (c *Client) get(ctx context.Context, endpoint string) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, "", err
	}
	return c.do(req)
}

func (c *Client) do(req *http.Request) ([]byte, string, error) {
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, "", &StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(snippet))}
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", fmt.Errorf("read body: %w", err)
	}
	return body, resp.Header.Get("Content-Type"), nil
}
