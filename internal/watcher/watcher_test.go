package watcher

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"vaultgraph/internal/config"
	"vaultgraph/internal/eventqueue"
	"vaultgraph/internal/pathfilter"
)

func TestPollingDetectsAddAndUnlink(t *testing.T) {
	root := t.TempDir()
	queue := eventqueue.New(eventqueue.Config{DebounceMs: 20, FlushMs: 200, BatchSize: 50})
	defer queue.Dispose()

	w := New(root, pathfilter.New(), queue, config.WatchConfig{UsePolling: true, PollIntervalMs: 20})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := w.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer w.Stop()

	notePath := filepath.Join(root, "note.md")
	if err := os.WriteFile(notePath, []byte("hello"), 0644); err != nil {
		t.Fatal(err)
	}

	batch := waitForBatch(t, queue, 2*time.Second)
	item := findItem(batch, "note.md")
	if item == nil || item.Kind != eventqueue.Upsert {
		t.Fatalf("expected upsert for note.md, got batch=%+v", batch)
	}

	if err := os.Remove(notePath); err != nil {
		t.Fatal(err)
	}
	batch = waitForBatch(t, queue, 2*time.Second)
	item = findItem(batch, "note.md")
	if item == nil || item.Kind != eventqueue.Delete {
		t.Fatalf("expected delete for note.md, got batch=%+v", batch)
	}
}

func TestPollingIgnoresUnwatchedPaths(t *testing.T) {
	root := t.TempDir()
	queue := eventqueue.New(eventqueue.Config{DebounceMs: 20, FlushMs: 200, BatchSize: 50})
	defer queue.Dispose()

	if err := os.MkdirAll(filepath.Join(root, ".git"), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(root, ".git", "config.md"), []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}

	w := New(root, pathfilter.New(), queue, config.WatchConfig{UsePolling: true, PollIntervalMs: 20})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := w.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer w.Stop()

	select {
	case b := <-queue.Batches():
		t.Fatalf("expected no batch for ignored path, got %+v", b)
	case <-time.After(150 * time.Millisecond):
	}
}

func waitForBatch(t *testing.T, q *eventqueue.Queue, timeout time.Duration) eventqueue.Batch {
	t.Helper()
	select {
	case b := <-q.Batches():
		return b
	case <-time.After(timeout):
		t.Fatal("timed out waiting for batch")
		return eventqueue.Batch{}
	}
}

func findItem(b eventqueue.Batch, path string) *eventqueue.BatchItem {
	for i := range b.Items {
		if b.Items[i].Path == path {
			return &b.Items[i]
		}
	}
	return nil
}
