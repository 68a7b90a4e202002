package archiveapi_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/raysh454/replaydesk/internal/archiveapi"
	"github.com/raysh454/replaydesk/internal/logging"
	"github.com/raysh454/replaydesk/internal/webclient"
)

func newClient(t *testing.T, h http.Handler) *archiveapi.Client {
	t.Helper()
	c, _ := newClientURL(t, h)
	return c
}

func newClientURL(t *testing.T, h http.Handler) (*archiveapi.Client, string) {
	t.Helper()
	ts := httptest.NewServer(h)
	t.Cleanup(ts.Close)

	wc, err := webclient.NewNetHTTPClient(webclient.Config{}, logging.Nop(), ts.Client())
	if err != nil {
		t.Fatalf("NewNetHTTPClient: %v", err)
	}
	c, err := archiveapi.NewClient(ts.URL, wc, nil, logging.Nop())
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	return c, ts.URL
}

// ─── ResolveEdition ────────────────────────────────────────────────────

func TestResolveEdition_Found(t *testing.T) {
	t.Parallel()
	var gotQuery map[string]string
	c := newClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/replay/resolve" {
			http.NotFound(w, r)
			return
		}
		q := r.URL.Query()
		gotQuery = map[string]string{"editionId": q.Get("editionId"), "url": q.Get("url"), "timestamp": q.Get("timestamp")}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"found":            true,
			"browseUrl":        "https://replay.example/job-9/20240101000000/https://a.example/x",
			"resolvedUrl":      "https://a.example/x",
			"captureTimestamp": "2024-01-01T00:00:00Z",
			"snapshotId":       "s-1",
		})
	}))

	res, err := c.ResolveEdition(context.Background(), archiveapi.ResolveRequest{
		EditionID: 9, URL: "https://a.example/x?y=1", Timestamp14: "20230101000000",
	})
	if err != nil {
		t.Fatalf("ResolveEdition: %v", err)
	}
	if !res.Found || res.BrowseURL == "" || res.SnapshotID != "s-1" {
		t.Errorf("unexpected resolution: %+v", res)
	}
	if gotQuery["editionId"] != "9" || gotQuery["url"] != "https://a.example/x?y=1" || gotQuery["timestamp"] != "20230101000000" {
		t.Errorf("unexpected query: %v", gotQuery)
	}
}

func TestResolveEdition_NotFoundIsNotAnError(t *testing.T) {
	t.Parallel()
	c := newClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"found":false}`))
	}))

	res, err := c.ResolveEdition(context.Background(), archiveapi.ResolveRequest{EditionID: 1, URL: "https://a.example/"})
	if err != nil {
		t.Fatalf("found=false must not be an error, got %v", err)
	}
	if res.Found {
		t.Errorf("expected found=false")
	}
}

func TestResolveEdition_ServerErrorIsUnavailable(t *testing.T) {
	t.Parallel()
	c := newClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusBadGateway)
	}))

	_, err := c.ResolveEdition(context.Background(), archiveapi.ResolveRequest{EditionID: 1, URL: "https://a.example/"})
	if !errors.Is(err, archiveapi.ErrBackendUnavailable) {
		t.Fatalf("expected ErrBackendUnavailable, got %v", err)
	}
}

func TestResolveEdition_404IsUnavailable(t *testing.T) {
	t.Parallel()
	c := newClient(t, http.NotFoundHandler())

	_, err := c.ResolveEdition(context.Background(), archiveapi.ResolveRequest{EditionID: 1, URL: "https://a.example/"})
	if !errors.Is(err, archiveapi.ErrBackendUnavailable) {
		t.Fatalf("expected ErrBackendUnavailable, got %v", err)
	}
	if errors.Is(err, archiveapi.ErrNotFound) {
		t.Fatalf("resolve 404 must not read as a missing snapshot: %v", err)
	}
}

func TestResolveEdition_GarbageBodyIsUnavailable(t *testing.T) {
	t.Parallel()
	c := newClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`<html>`))
	}))

	_, err := c.ResolveEdition(context.Background(), archiveapi.ResolveRequest{EditionID: 1, URL: "https://a.example/"})
	if !errors.Is(err, archiveapi.ErrBackendUnavailable) {
		t.Fatalf("expected ErrBackendUnavailable, got %v", err)
	}
}

// ─── Metadata ──────────────────────────────────────────────────────────

func TestSnapshotAndEditions(t *testing.T) {
	t.Parallel()
	mux := http.NewServeMux()
	mux.HandleFunc("/api/snapshots/42", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"id":"42","title":"Home","sourceCode":"hc","jobId":7,"originalUrl":"https://a.example/"}`))
	})
	mux.HandleFunc("/api/sources/hc/editions", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[{"jobId":7,"recordCount":10},{"jobId":8,"recordCount":12,"entryBrowseUrl":"https://replay.example/job-8/https://a.example/"}]`))
	})
	c := newClient(t, mux)

	d, err := c.Snapshot(context.Background(), "42")
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	if d.JobID != 7 || d.SourceCode != "hc" {
		t.Errorf("unexpected detail: %+v", d)
	}

	eds, err := c.Editions(context.Background(), "hc")
	if err != nil {
		t.Fatalf("Editions: %v", err)
	}
	if len(eds) != 2 || eds[1].EntryBrowseURL == "" {
		t.Errorf("unexpected editions: %+v", eds)
	}

	if _, err := c.Snapshot(context.Background(), "missing"); !errors.Is(err, archiveapi.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestFetchTitle(t *testing.T) {
	t.Parallel()
	c, base := newClientURL(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/gone" {
			http.Error(w, "gone", http.StatusGone)
			return
		}
		_, _ = w.Write([]byte("<html><head><title>\n  Health  Canada\n</title></head><body><svg><title>icon</title></svg></body></html>"))
	}))

	title, err := c.FetchTitle(context.Background(), base+"/raw")
	if err != nil {
		t.Fatalf("FetchTitle: %v", err)
	}
	if title != "Health Canada" {
		t.Errorf("expected collapsed head title, got %q", title)
	}

	if _, err := c.FetchTitle(context.Background(), base+"/gone"); !errors.Is(err, archiveapi.ErrBackendUnavailable) {
		t.Errorf("expected ErrBackendUnavailable for 410, got %v", err)
	}
}

func TestNewClient_RejectsBadBaseURL(t *testing.T) {
	t.Parallel()
	wc, _ := webclient.NewNetHTTPClient(webclient.Config{}, logging.Nop(), nil)
	if _, err := archiveapi.NewClient("not a url", wc, nil, nil); err == nil {
		t.Fatal("expected error")
	}
}
