package classroom

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strings"

	"github.com/dharsanguruparan/ClassBuddy/internal/extract"
	"github.com/dharsanguruparan/ClassBuddy/internal/model"
)

const (
	mimeGoogleDoc    = "application/vnd.google-apps.document"
	mimeGoogleSlides = "application/vnd.google-apps.presentation"
)

type fileMeta struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	MimeType string `json:"mimeType"`
}

// Fetch downloads a Drive attachment. Docs and Slides are exported as plain
// text; other files are downloaded as stored. Types the extractor cannot
// read are rejected before download.
func (c *Client) Fetch(ctx context.Context, ref model.FileRef) (extract.Document, error) {
	var meta fileMeta
	metaURL := fmt.Sprintf("%s/files/%s?%s", c.driveBase, url.PathEscape(ref.ID), url.Values{"fields": {"id,name,mimeType"}}.Encode())
	if err := c.getJSON(ctx, metaURL, &meta); err != nil {
		return extract.Document{}, fmt.Errorf("file metadata %s: %w", ref.ID, err)
	}
	title := meta.Name
	if title == "" {
		title = ref.Title
	}
	var endpoint, mimeType string
	switch {
	case meta.MimeType == mimeGoogleDoc, meta.MimeType == mimeGoogleSlides:
		endpoint = fmt.Sprintf("%s/files/%s/export?%s", c.driveBase, url.PathEscape(ref.ID), url.Values{"mimeType": {"text/plain"}}.Encode())
		mimeType = "text/plain"
	case strings.Contains(meta.MimeType, "pdf"), strings.HasPrefix(meta.MimeType, "text/"):
		endpoint = fmt.Sprintf("%s/files/%s?alt=media", c.driveBase, url.PathEscape(ref.ID))
		mimeType = meta.MimeType
	default:
		return extract.Document{}, fmt.Errorf("%s (%s): %w", title, meta.MimeType, extract.ErrUnsupported)
	}
	data, _, err := c.get(ctx, endpoint)
	if err != nil {
		return extract.Document{}, fmt.Errorf("download %s: %w", title, err)
	}
	c.logger.Debug("fetched drive file", "file", title, "mime", meta.MimeType, "bytes", len(data))
	return extract.Document{Title: title, MimeType: mimeType, Data: data}, nil
}

// DrivePublisher uploads artifacts into a Drive folder.
type DrivePublisher struct {
	client *Client
}

// NewDrivePublisher wraps c as a pipeline publisher.
func NewDrivePublisher(c *Client) *DrivePublisher {
	return &DrivePublisher{client: c}
}

// Publish creates the artifact as a Drive file inside the destination folder
// and returns the file id.
func (p *DrivePublisher) Publish(ctx context.Context, artifact model.Artifact, destination string) (string, error) {
	id, err := p.client.upload(ctx, artifact, destination)
	if err != nil {
		return "", &model.PublishError{Kind: artifact.Kind, Err: err}
	}
	return id, nil
}

func (c *Client) upload(ctx context.Context, artifact model.Artifact, folderID string) (string, error) {
	meta := map[string]any{"name": artifact.FileName}
	if folderID != "" {
		meta["parents"] = []string{folderID}
	}
	metaJSON, err := json.Marshal(meta)
	if err != nil {
		return "", fmt.Errorf("encode metadata: %w", err)
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	metaPart, err := mw.CreatePart(textproto.MIMEHeader{"Content-Type": {"application/json; charset=UTF-8"}})
	if err != nil {
		return "", err
	}
	if _, err := metaPart.Write(metaJSON); err != nil {
		return "", err
	}
	contentType := artifact.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	dataPart, err := mw.CreatePart(textproto.MIMEHeader{"Content-Type": {contentType}})
	if err != nil {
		return "", err
	}
	if _, err := dataPart.Write(artifact.Data); err != nil {
		return "", err
	}
	if err := mw.Close(); err != nil {
		return "", err
	}

	endpoint := c.uploadBase + "/files?" + url.Values{"uploadType": {"multipart"}, "fields": {"id,webViewLink"}}.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, &body)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "multipart/related; boundary="+mw.Boundary())
	raw, _, err := c.do(req)
	if err != nil {
		return "", fmt.Errorf("upload %s: %w", artifact.FileName, err)
	}
	var created struct {
		ID          string `json:"id"`
		WebViewLink string `json:"webViewLink"`
	}
	if err := json.Unmarshal(raw, &created); err != nil {
		return "", fmt.Errorf("decode upload response: %w", err)
	}
	if created.ID == "" {
		return "", fmt.Errorf("upload %s: response carried no file id", artifact.FileName)
	}
	c.logger.Info("uploaded artifact", "file", artifact.FileName, "id", created.ID, "link", created.WebViewLink)
	return created.ID, nil
}
