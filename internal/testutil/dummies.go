// Package testutil provides shared test doubles for use across package tests.
// All dummies implement the corresponding interfaces from the production code,
// allowing injection into components under test without real I/O or side effects.
package testutil

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/raysh454/replaydesk/internal/archiveapi"
	"github.com/raysh454/replaydesk/internal/logging"
	"github.com/raysh454/replaydesk/internal/webclient"
)

// ─── Logger ────────────────────────────────────────────────────────────

// DummyLogger implements logging.Logger with in-memory recording.
type DummyLogger struct {
	mu     sync.Mutex
	Errors []string
	Infos  []string
	Debugs []string
	Warns  []string
}

func (l *DummyLogger) Debug(msg string, fields ...logging.Field) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.Debugs = append(l.Debugs, msg)
}

func (l *DummyLogger) Info(msg string, fields ...logging.Field) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.Infos = append(l.Infos, msg)
}

func (l *DummyLogger) Warn(msg string, fields ...logging.Field) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.Warns = append(l.Warns, msg)
}

func (l *DummyLogger) Error(msg string, fields ...logging.Field) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.Errors = append(l.Errors, msg)
}

func (l *DummyLogger) With(_ ...logging.Field) logging.Logger { return l }

// WarnCount is a race-free len(Warns).
func (l *DummyLogger) WarnCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.Warns)
}

// ─── WebClient ─────────────────────────────────────────────────────────

// DummyWebClient implements webclient.WebClient.
// Responses maps a URL to a canned body (status 200). Unknown URLs get 404.
// Set FailURLs[url] = true to force a transport error for a specific URL.
type DummyWebClient struct {
	ResponseDelay time.Duration
	Responses     map[string]string
	FailURLs      map[string]bool
	mu            sync.Mutex
	Requests      []*webclient.Request
}

func (d *DummyWebClient) Do(ctx context.Context, req *webclient.Request) (*webclient.Response, error) {
	if d.ResponseDelay > 0 {
		select {
		case <-time.After(d.ResponseDelay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	d.mu.Lock()
	d.Requests = append(d.Requests, req)
	d.mu.Unlock()

	if d.FailURLs[req.URL] {
		return nil, fmt.Errorf("dummy failure for %s", req.URL)
	}
	body, ok := d.Responses[req.URL]
	status := http.StatusOK
	if !ok {
		status = http.StatusNotFound
	}
	return &webclient.Response{
		Request:    req,
		Body:       []byte(body),
		Headers:    http.Header{},
		StatusCode: status,
		FetchedAt:  time.Now(),
	}, nil
}

func (d *DummyWebClient) Get(ctx context.Context, url string) (*webclient.Response, error) {
	return d.Do(ctx, &webclient.Request{Method: http.MethodGet, URL: url})
}

func (d *DummyWebClient) Close() error { return nil }

// RequestCount is a race-free len(Requests).
func (d *DummyWebClient) RequestCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.Requests)
}

// ─── Resolver ──────────────────────────────────────────────────────────

// StubResolver answers edition resolution calls from fixed data.
// Results is keyed by edition id; editions without an entry answer
// found=false. Err, when set, is returned for every call. When Block is
// non-nil each call waits on it (or on ctx) before answering.
type StubResolver struct {
	Results map[int64]archiveapi.Resolution
	Err     error
	Block   chan struct{}
	Panic   bool

	mu    sync.Mutex
	Calls []archiveapi.ResolveRequest
	// Started receives one value per call once it is recorded, if non-nil.
	Started chan archiveapi.ResolveRequest
}

func (s *StubResolver) ResolveEdition(ctx context.Context, req archiveapi.ResolveRequest) (*archiveapi.Resolution, error) {
	s.mu.Lock()
	s.Calls = append(s.Calls, req)
	s.mu.Unlock()
	if s.Started != nil {
		s.Started <- req
	}

	if s.Block != nil {
		select {
		case <-s.Block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if s.Panic {
		panic("stub resolver exploded")
	}
	if s.Err != nil {
		return nil, s.Err
	}
	if r, ok := s.Results[req.EditionID]; ok {
		return &r, nil
	}
	return &archiveapi.Resolution{Found: false}, nil
}

// CallCount is a race-free len(Calls).
func (s *StubResolver) CallCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.Calls)
}

// LastCall returns the most recent request.
func (s *StubResolver) LastCall() archiveapi.ResolveRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.Calls) == 0 {
		return archiveapi.ResolveRequest{}
	}
	return s.Calls[len(s.Calls)-1]
}
