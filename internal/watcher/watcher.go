// Package watcher abstracts over native and polling filesystem
// watcher backends behind a single capability that feeds raw
// add/change/unlink notifications into an internal/eventqueue.Queue
// (spec §9 "Filesystem watcher portability"). The debounce map and
// settle-on-a-ticker mechanism of internal/eventqueue is itself
// grounded on the teacher's internal/core/mangle_watcher.go; this
// package supplies that mechanism's missing half — a recursive
// fsnotify.Watcher that discovers new subdirectories as they appear,
// plus a stat-polling fallback for filesystems where fsnotify is
// unavailable.
package watcher

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"vaultgraph/internal/config"
	"vaultgraph/internal/eventqueue"
	"vaultgraph/internal/logging"
	"vaultgraph/internal/pathfilter"
)

// Watcher watches a vault root and pushes raw events for every watched
// path into a Queue. Start/Stop are explicit lifecycle hooks owned by
// the caller (spec §9 "Periodic background work" applies equally to
// the watcher as to the sweep timer — no implicit scheduler callback).
type Watcher struct {
	vaultRoot string
	filter    *pathfilter.Filter
	queue     *eventqueue.Queue
	cfg       config.WatchConfig

	fsw    *fsnotify.Watcher
	stopCh chan struct{}
	doneCh chan struct{}
}

// New returns a Watcher that will push into queue once Start runs.
func New(vaultRoot string, filter *pathfilter.Filter, queue *eventqueue.Queue, cfg config.WatchConfig) *Watcher {
	if filter == nil {
		filter = pathfilter.New()
	}
	return &Watcher{
		vaultRoot: vaultRoot,
		filter:    filter,
		queue:     queue,
		cfg:       cfg,
		stopCh:    make(chan struct{}),
		doneCh:    make(chan struct{}),
	}
}

// Start begins watching in a background goroutine, selecting the
// native fsnotify backend unless cfg.UsePolling requests the polling
// fallback. Non-blocking.
func (w *Watcher) Start(ctx context.Context) error {
	if w.cfg.UsePolling {
		go w.runPolling(ctx)
		return nil
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		logging.WatcherWarn("fsnotify unavailable (%v), falling back to polling", err)
		go w.runPolling(ctx)
		return nil
	}
	w.fsw = fsw

	if err := w.addDirsRecursive(w.vaultRoot); err != nil {
		logging.WatcherWarn("initial recursive watch failed: %v", err)
	}

	go w.runNative(ctx)
	return nil
}

// Stop halts the watcher's event loop and releases native resources.
func (w *Watcher) Stop() {
	select {
	case <-w.stopCh:
		return // already stopped
	default:
	}
	close(w.stopCh)
	<-w.doneCh
	if w.fsw != nil {
		w.fsw.Close()
	}
}

func (w *Watcher) addDirsRecursive(root string) error {
	return filepath.Walk(root, func(p string, info os.FileInfo, err error) error {
		if err != nil {
			return nil // self-heal: skip unreadable entries rather than aborting the walk
		}
		if !info.IsDir() {
			return nil
		}
		if rel, rerr := filepath.Rel(root, p); rerr == nil && rel != "." {
			if _, ignored := w.filter.IgnoreDirs[filepath.Base(p)]; ignored {
				return filepath.SkipDir
			}
		}
		if err := w.fsw.Add(p); err != nil {
			logging.WatcherWarn("watch %s: %v", p, err)
		}
		return nil
	})
}

func (w *Watcher) runNative(ctx context.Context) {
	defer close(w.doneCh)

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			w.handleNativeEvent(event)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			logging.WatcherError("fsnotify error: %v", err)
		}
	}
}

func (w *Watcher) handleNativeEvent(event fsnotify.Event) {
	rel, err := filepath.Rel(w.vaultRoot, event.Name)
	if err != nil {
		return
	}
	rel = pathfilter.Normalize(rel)

	if event.Op&fsnotify.Create != 0 {
		if info, statErr := os.Stat(event.Name); statErr == nil && info.IsDir() {
			if err := w.addDirsRecursive(event.Name); err != nil {
				logging.WatcherWarn("watch new dir %s: %v", event.Name, err)
			}
			return
		}
	}

	if !w.filter.Watched(rel) {
		return
	}

	switch {
	case event.Op&(fsnotify.Remove|fsnotify.Rename) != 0:
		w.queue.Push(rel, eventqueue.Unlink)
	case event.Op&fsnotify.Create != 0:
		w.queue.Push(rel, eventqueue.Add)
	case event.Op&fsnotify.Write != 0:
		w.queue.Push(rel, eventqueue.Change)
	}
}

// runPolling is the fallback backend for filesystems where native
// notifications are unavailable (e.g. some network mounts). It
// periodically re-stats every watched path and diffs against its own
// last-seen snapshot, synthesizing add/change/unlink.
func (w *Watcher) runPolling(ctx context.Context) {
	defer close(w.doneCh)

	interval := time.Duration(w.cfg.PollIntervalMs) * time.Millisecond
	if interval <= 0 {
		interval = 2 * time.Second
	}
	tick := time.NewTicker(interval)
	defer tick.Stop()

	seen := make(map[string]time.Time)
	w.pollOnce(seen)

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case <-tick.C:
			w.pollOnce(seen)
		}
	}
}

func (w *Watcher) pollOnce(seen map[string]time.Time) {
	current := make(map[string]time.Time)

	err := filepath.Walk(w.vaultRoot, func(p string, info os.FileInfo, err error) error {
		if err != nil {
			return nil
		}
		if info.IsDir() {
			if _, ignored := w.filter.IgnoreDirs[info.Name()]; ignored {
				return filepath.SkipDir
			}
			return nil
		}
		rel, rerr := filepath.Rel(w.vaultRoot, p)
		if rerr != nil {
			return nil
		}
		rel = pathfilter.Normalize(rel)
		if !w.filter.Watched(rel) {
			return nil
		}
		current[rel] = info.ModTime()
		return nil
	})
	if err != nil {
		logging.WatcherError("poll walk: %v", err)
	}

	for rel, mtime := range current {
		prev, existed := seen[rel]
		switch {
		case !existed:
			w.queue.Push(rel, eventqueue.Add)
		case !mtime.Equal(prev):
			w.queue.Push(rel, eventqueue.Change)
		}
	}
	for rel := range seen {
		if _, stillExists := current[rel]; !stillExists {
			w.queue.Push(rel, eventqueue.Unlink)
		}
	}

	for k := range seen {
		delete(seen, k)
	}
	for k, v := range current {
		seen[k] = v
	}
}
