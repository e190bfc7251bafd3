package engine

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"go.uber.org/goleak"

	"vaultgraph/internal/config"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m,
		goleak.IgnoreTopFunction("database/sql.(*DB).connectionOpener"),
	)
}

func testConfig() config.Config {
	cfg := *config.DefaultConfig()
	cfg.Watch.Enabled = false
	cfg.Commit.Enabled = false
	cfg.Sweep.IntervalMs = 60 * 60 * 1000
	return cfg
}

func writeNote(t *testing.T, root, relPath, content string) {
	t.Helper()
	full := filepath.Join(root, relPath)
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(full, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

// TestStopWithoutStartDoesNotBlock guards the startMu/started invariant:
// an Engine constructed but never Start-ed must still Stop cleanly.
func TestStopWithoutStartDoesNotBlock(t *testing.T) {
	root := t.TempDir()
	writeNote(t, root, "a.md", "# A\n")

	e, err := New(context.Background(), testConfig(), root)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	done := make(chan struct{})
	go func() {
		e.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop() blocked after an Engine that was never Started")
	}
}

// TestStartStopCleansUpGoroutines exercises the full lifecycle: start
// the writer goroutine and sweep timer, run a direct mutation through
// it, then stop. goleak's TestMain catches any leaked goroutine.
func TestStartStopCleansUpGoroutines(t *testing.T) {
	root := t.TempDir()
	writeNote(t, root, "a.md", "# A\n\n## Notes\n\n- existing\n")

	e, err := New(context.Background(), testConfig(), root)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := e.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}

	res := e.AddToSection(AddToSectionParams{Path: "a.md", Section: "Notes", Content: "added by test"})
	if !res.Success {
		t.Fatalf("AddToSection failed: %s", res.Message)
	}

	raw, err := os.ReadFile(filepath.Join(root, "a.md"))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(raw), "added by test") {
		t.Fatalf("expected written content to contain the new line, got:\n%s", raw)
	}

	e.Stop()
}
