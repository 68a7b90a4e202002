// Package archiveapi is the client for the archive backend: edition
// resolution, snapshot metadata and per-source edition lists.
package archiveapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/raysh454/replaydesk/internal/logging"
	"github.com/raysh454/replaydesk/internal/webclient"
)

var (
	// ErrBackendUnavailable wraps every transport, status or decoding failure.
	ErrBackendUnavailable = errors.New("archive backend unavailable")
	ErrNotFound           = errors.New("not found")
)

// Client talks to the archive backend over a WebClient. Raw capture content
// may go through a different (e.g. rendering) client than the JSON API.
type Client struct {
	baseURL string
	api     webclient.WebClient
	content webclient.WebClient
	logger  logging.Logger
}

// NewClient returns a client rooted at baseURL. content may be nil, in which
// case api is used for raw content too.
func NewClient(baseURL string, api, content webclient.WebClient, logger logging.Logger) (*Client, error) {
	if api == nil {
		return nil, errors.New("archiveapi: nil web client")
	}
	u, err := url.Parse(baseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("archiveapi: invalid base url %q", baseURL)
	}
	if content == nil {
		content = api
	}
	if logger == nil {
		logger = logging.Nop()
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		api:     api,
		content: content,
		logger:  logger.With(logging.Field{Key: "component", Value: "archiveapi"}),
	}, nil
}

// ResolveEdition finds the best capture of req.URL within req.EditionID.
func (c *Client) ResolveEdition(ctx context.Context, req ResolveRequest) (*Resolution, error) {
	q := url.Values{}
	q.Set("editionId", strconv.FormatInt(req.EditionID, 10))
	q.Set("url", req.URL)
	if req.Timestamp14 != "" {
		q.Set("timestamp", req.Timestamp14)
	}

	var res Resolution
	if err := c.getJSON(ctx, "/api/replay/resolve?"+q.Encode(), &res); err != nil {
		// Absence is reported in the body; a 404 here is a backend fault.
		if errors.Is(err, ErrNotFound) {
			return nil, fmt.Errorf("%w: resolve endpoint status 404", ErrBackendUnavailable)
		}
		return nil, err
	}
	c.logger.Debug("resolved edition",
		logging.Field{Key: "edition_id", Value: req.EditionID},
		logging.Field{Key: "url", Value: req.URL},
		logging.Field{Key: "found", Value: res.Found})
	return &res, nil
}

// Snapshot loads the metadata for one capture.
func (c *Client) Snapshot(ctx context.Context, id string) (*SnapshotDetail, error) {
	var d SnapshotDetail
	if err := c.getJSON(ctx, "/api/snapshots/"+url.PathEscape(id), &d); err != nil {
		return nil, err
	}
	return &d, nil
}

// Editions lists the editions of a source, oldest first as sent by the backend.
func (c *Client) Editions(ctx context.Context, sourceCode string) ([]Edition, error) {
	var out []Edition
	if err := c.getJSON(ctx, "/api/sources/"+url.PathEscape(sourceCode)+"/editions", &out); err != nil {
		return nil, err
	}
	return out, nil
}

// FetchTitle pulls raw capture content and returns its <title>, trimmed.
// An empty string with a nil error means the document has no title.
func (c *Client) FetchTitle(ctx context.Context, rawURL string) (string, error) {
	resp, err := c.content.Get(ctx, rawURL)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	if !resp.OK() {
		return "", fmt.Errorf("%w: raw content status %d", ErrBackendUnavailable, resp.StatusCode)
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(resp.Body))
	if err != nil {
		return "", fmt.Errorf("parse raw content: %w", err)
	}
	return strings.Join(strings.Fields(doc.Find("head title").First().Text()), " "), nil
}

func (c *Client) getJSON(ctx context.Context, path string, v any) error {
	resp, err := c.api.Do(ctx, &webclient.Request{
		Method:  http.MethodGet,
		URL:     c.baseURL + path,
		Headers: http.Header{"Accept": {"application/json"}},
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	if resp.StatusCode == http.StatusNotFound {
		return ErrNotFound
	}
	if !resp.OK() {
		c.logger.Warn("backend returned error status",
			logging.Field{Key: "path", Value: path},
			logging.Field{Key: "status", Value: resp.StatusCode})
		return fmt.Errorf("%w: status %d", ErrBackendUnavailable, resp.StatusCode)
	}
	if err := json.Unmarshal(resp.Body, v); err != nil {
		return fmt.Errorf("%w: decode %s: %v", ErrBackendUnavailable, path, err)
	}
	return nil
}
