package eventqueue

import (
	"testing"
	"time"
)

func drainOne(t *testing.T, q *Queue, timeout time.Duration) Batch {
	t.Helper()
	select {
	case b := <-q.Batches():
		return b
	case <-time.After(timeout):
		t.Fatal("timed out waiting for batch")
		return Batch{}
	}
}

func TestCoalescesRapidEventsForSamePath(t *testing.T) {
	q := New(Config{DebounceMs: 30, FlushMs: 2000, BatchSize: 50})
	defer q.Dispose()

	q.Push("notes/a.md", Add)
	q.Push("notes/a.md", Change)
	q.Push("notes/a.md", Change)

	batch := drainOne(t, q, 2*time.Second)
	if len(batch.Items) != 1 {
		t.Fatalf("expected 1 coalesced item, got %d: %+v", len(batch.Items), batch.Items)
	}
	item := batch.Items[0]
	if item.Path != "notes/a.md" || item.Kind != Upsert || item.OriginalEvents != 3 {
		t.Errorf("item = %+v", item)
	}
}

func TestLastEventDecidesKindEvenWhenLaterThanUnlink(t *testing.T) {
	q := New(Config{DebounceMs: 30, FlushMs: 2000, BatchSize: 50})
	defer q.Dispose()

	// unlink followed by a later add (e.g. atomic-save replace pattern)
	// settles to upsert: only the *last* event before settling counts.
	q.Push("notes/b.md", Unlink)
	q.Push("notes/b.md", Add)

	batch := drainOne(t, q, 2*time.Second)
	if len(batch.Items) != 1 || batch.Items[0].Kind != Upsert {
		t.Errorf("expected final add to win as upsert, got %+v", batch.Items)
	}
}

func TestUnlinkLastSettlesToDelete(t *testing.T) {
	q := New(Config{DebounceMs: 30, FlushMs: 2000, BatchSize: 50})
	defer q.Dispose()

	q.Push("notes/c.md", Add)
	q.Push("notes/c.md", Change)
	q.Push("notes/c.md", Unlink)

	batch := drainOne(t, q, 2*time.Second)
	if len(batch.Items) != 1 || batch.Items[0].Kind != Delete {
		t.Errorf("expected delete, got %+v", batch.Items)
	}
}

func TestForceFlushOnSustainedActivity(t *testing.T) {
	q := New(Config{DebounceMs: 2000, FlushMs: 60, BatchSize: 50})
	defer q.Dispose()

	q.Push("notes/d.md", Change)
	// Keep the path "hot" so it never quiets past the debounce window,
	// but the flush ceiling should still force it out.
	go func() {
		for i := 0; i < 5; i++ {
			time.Sleep(20 * time.Millisecond)
			q.Push("notes/d.md", Change)
		}
	}()

	batch := drainOne(t, q, 3*time.Second)
	if len(batch.Items) != 1 || batch.Items[0].Path != "notes/d.md" {
		t.Errorf("expected forced flush of notes/d.md, got %+v", batch.Items)
	}
}

func TestBatchSizeForcesImmediateFlushOfAllPending(t *testing.T) {
	q := New(Config{DebounceMs: 5000, FlushMs: 5000, BatchSize: 3})
	defer q.Dispose()

	q.Push("a.md", Add)
	q.Push("b.md", Add)
	q.Push("c.md", Add) // reaching batch_size forces a flush of all three

	batch := drainOne(t, q, 2*time.Second)
	if len(batch.Items) != 3 {
		t.Fatalf("expected all 3 pending paths flushed at once, got %d: %+v", len(batch.Items), batch.Items)
	}
}

func TestDisposeAfterBatchSizeFlushDoesNotPanic(t *testing.T) {
	// flushLocked's emit runs in a detached goroutine; Dispose must wait
	// for it before closing batches, or a send racing the close panics.
	q := New(Config{DebounceMs: 5000, FlushMs: 5000, BatchSize: 1})
	q.Push("a.md", Add) // BatchSize 1 triggers flushLocked's async emit immediately
	q.Dispose()
}

func TestDisposeDiscardsPendingState(t *testing.T) {
	q := New(Config{DebounceMs: 5000, FlushMs: 5000, BatchSize: 50})
	q.Push("never-flushed.md", Add)
	q.Dispose()

	b, ok := <-q.Batches()
	if ok {
		t.Fatalf("expected closed channel with no batch, got %+v", b)
	}
}
