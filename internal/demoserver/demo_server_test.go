package demoserver_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/raysh454/replaydesk/internal/archiveapi"
	"github.com/raysh454/replaydesk/internal/demoserver"
	"github.com/raysh454/replaydesk/internal/testutil"
	"github.com/raysh454/replaydesk/internal/webclient"
)

func newDemo(t *testing.T, cfg demoserver.Config) (*demoserver.DemoServer, *httptest.Server, *archiveapi.Client) {
	t.Helper()
	demo := demoserver.NewDemoServer(cfg)
	ts := httptest.NewServer(demo.Handler())
	t.Cleanup(ts.Close)

	logger := &testutil.DummyLogger{}
	wc, err := webclient.NewNetHTTPClient(webclient.Config{Timeout: 5 * time.Second}, logger, nil)
	if err != nil {
		t.Fatalf("NewNetHTTPClient: %v", err)
	}
	client, err := archiveapi.NewClient(ts.URL, wc, wc, logger)
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	return demo, ts, client
}

func noRedirect() *http.Client {
	return &http.Client{CheckRedirect: func(*http.Request, []*http.Request) error { return http.ErrUseLastResponse }}
}

func TestDemo_SnapshotAndEditions(t *testing.T) {
	t.Parallel()
	_, ts, client := newDemo(t, demoserver.DefaultConfig())
	ctx := context.Background()

	d, err := client.Snapshot(ctx, demoserver.SnapshotID(1, 1))
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	if d.OriginalURL != demoserver.SiteOrigin+"/about" || d.JobID != 1 {
		t.Fatalf("unexpected detail: %+v", d)
	}
	if d.Title != "About the Demo Agency" {
		t.Fatalf("title = %q", d.Title)
	}
	want := ts.URL + "/job-1/20230315093500/" + demoserver.SiteOrigin + "/about"
	if d.BrowseURL != want {
		t.Fatalf("browse url = %s, want %s", d.BrowseURL, want)
	}

	if _, err := client.Snapshot(ctx, "999"); !errors.Is(err, archiveapi.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	eds, err := client.Editions(ctx, demoserver.SourceCode)
	if err != nil {
		t.Fatalf("Editions: %v", err)
	}
	if len(eds) != 4 {
		t.Fatalf("expected 4 editions, got %d", len(eds))
	}
	if eds[0].RecordCount != 3 || eds[0].EntryBrowseURL == "" || eds[0].FirstCapture == "" {
		t.Fatalf("unexpected edition 1: %+v", eds[0])
	}
	if eds[3].EntryBrowseURL != "" {
		t.Fatalf("edition 4 should have no entry page: %+v", eds[3])
	}
}

func TestDemo_Resolve(t *testing.T) {
	t.Parallel()
	_, ts, client := newDemo(t, demoserver.DefaultConfig())
	ctx := context.Background()

	res, err := client.ResolveEdition(ctx, archiveapi.ResolveRequest{EditionID: 2, URL: demoserver.SiteOrigin + "/about#team"})
	if err != nil {
		t.Fatalf("ResolveEdition: %v", err)
	}
	if !res.Found || res.BrowseURL != ts.URL+"/job-2/20240412121000/"+demoserver.SiteOrigin+"/about" {
		t.Fatalf("unexpected resolution: %+v", res)
	}
	if res.CaptureTimestamp != "2024-04-12T12:10:00Z" {
		t.Fatalf("capture timestamp = %s", res.CaptureTimestamp)
	}

	res, err = client.ResolveEdition(ctx, archiveapi.ResolveRequest{EditionID: 3, URL: demoserver.SiteOrigin + "/about"})
	if err != nil {
		t.Fatalf("ResolveEdition: %v", err)
	}
	if res.Found {
		t.Fatalf("about should be absent from edition 3: %+v", res)
	}

	res, err = client.ResolveEdition(ctx, archiveapi.ResolveRequest{EditionID: 1, URL: demoserver.SiteOrigin})
	if err != nil || !res.Found {
		t.Fatalf("bare origin should resolve to the home page: %+v %v", res, err)
	}
}

func TestDemo_ResolveFailingAndDelay(t *testing.T) {
	t.Parallel()
	demo, _, client := newDemo(t, demoserver.Config{ResolveFailing: true})
	ctx := context.Background()

	_, err := client.ResolveEdition(ctx, archiveapi.ResolveRequest{EditionID: 1, URL: demoserver.SiteOrigin + "/"})
	if !errors.Is(err, archiveapi.ErrBackendUnavailable) {
		t.Fatalf("expected ErrBackendUnavailable, got %v", err)
	}

	demo.SetResolveFailing(false)
	demo.SetResolveDelay(50 * time.Millisecond)
	short, cancel := context.WithTimeout(ctx, 10*time.Millisecond)
	defer cancel()
	if _, err := client.ResolveEdition(short, archiveapi.ResolveRequest{EditionID: 1, URL: demoserver.SiteOrigin + "/"}); err == nil {
		t.Fatal("expected timeout error")
	}
}

func TestDemo_ReplayViewerPostsNavigation(t *testing.T) {
	t.Parallel()
	_, ts, _ := newDemo(t, demoserver.DefaultConfig())

	resp, err := http.Get(ts.URL + "/job-2/20240412120000/" + demoserver.SiteOrigin + "/")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status %d: %s", resp.StatusCode, body)
	}
	html := string(body)
	for _, want := range []string{
		`"type":"haReplayNavigation"`,
		`"coll":"job-2"`,
		`"timestamp":"20240412120000"`,
		`href="/job-2/https://demo.example.gov/about"`,
	} {
		if !strings.Contains(html, want) {
			t.Errorf("viewer page missing %s", want)
		}
	}
}

func TestDemo_TimegateRedirects(t *testing.T) {
	t.Parallel()
	_, ts, _ := newDemo(t, demoserver.DefaultConfig())

	resp, err := noRedirect().Get(ts.URL + "/job-4/" + demoserver.SiteOrigin + "/contact")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusFound {
		t.Fatalf("expected 302, got %d", resp.StatusCode)
	}
	if loc := resp.Header.Get("Location"); loc != "/job-4/20250601100000/https://demo.example.gov/contact" {
		t.Fatalf("Location = %s", loc)
	}

	resp, err = http.Get(ts.URL + "/job-4/" + demoserver.SiteOrigin + "/about")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 for uncaptured page, got %d", resp.StatusCode)
	}
}

func TestDemo_RawContentTitleFallback(t *testing.T) {
	t.Parallel()
	_, ts, client := newDemo(t, demoserver.DefaultConfig())
	ctx := context.Background()

	d, err := client.Snapshot(ctx, demoserver.SnapshotID(2, 1))
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	if d.Title != "" {
		t.Fatalf("2024 about page has no title, got %q", d.Title)
	}
	if d.RawSnapshotURL != ts.URL+"/api/snapshots/raw/"+d.ID {
		t.Fatalf("raw url = %s", d.RawSnapshotURL)
	}

	title, err := client.FetchTitle(ctx, ts.URL+"/api/snapshots/raw/"+demoserver.SnapshotID(1, 0))
	if err != nil {
		t.Fatalf("FetchTitle: %v", err)
	}
	if title != "Demo Agency - Home (2023)" {
		t.Fatalf("title = %q", title)
	}
}

func TestDemo_ControlPanel(t *testing.T) {
	t.Parallel()
	demo, ts, _ := newDemo(t, demoserver.DefaultConfig())

	resp, err := http.PostForm(ts.URL+"/demo/resolve-mode", map[string][]string{"failing": {"on"}, "delay_ms": {"0"}})
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status %d", resp.StatusCode)
	}

	resp, err = http.Get(ts.URL + "/demo/control")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if !strings.Contains(string(body), "checked") {
		t.Fatal("control panel should show the failing toggle as checked")
	}
	demo.SetResolveFailing(false)
}
