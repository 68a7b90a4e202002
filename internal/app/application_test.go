package app

import (
	"context"
	"testing"
	"time"

	"github.com/raysh454/replaydesk/internal/replay"
	"github.com/raysh454/replaydesk/internal/testutil"
)

func TestApplication_ClosesUnattachedSessions(t *testing.T) {
	t.Parallel()
	cfg := DefaultConfig()
	cfg.StorageRoot = t.TempDir()
	cfg.SessionAttachTimeout = 30 * time.Millisecond
	logger := &testutil.DummyLogger{}

	a, err := NewApplication(cfg, logger)
	if err != nil {
		t.Fatalf("NewApplication: %v", err)
	}
	a.Orch = NewOrchestrator(cfg, newFakeBackend(), a.Components.Store, logger)
	if err := a.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = a.Shutdown(ctx)
	})

	for range 20 {
		if _, err := a.Orch.OpenSession(context.Background(), "42", replay.ContextBrowse, ""); err != nil {
			t.Fatalf("OpenSession: %v", err)
		}
	}

	deadline := time.Now().Add(3 * time.Second)
	for a.Orch.SessionCount() != 0 {
		if time.Now().After(deadline) {
			t.Fatalf("%d sessions still live past the attach timeout", a.Orch.SessionCount())
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestReapInterval(t *testing.T) {
	t.Parallel()
	if got := reapInterval(2 * time.Minute); got != time.Minute {
		t.Fatalf("reapInterval(2m) = %s", got)
	}
	if got := reapInterval(time.Millisecond); got != 10*time.Millisecond {
		t.Fatalf("reapInterval(1ms) = %s", got)
	}
}
