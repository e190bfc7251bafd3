// Package engine owns vaultgraph's single-writer lifecycle: it wires
// together the graph index, the persistent store, the filesystem
// watcher, the periodic sweep, the version-control gateway, the
// rename and auto-link packages, and the structural writer into one
// object that drains settled batches on its own goroutine and
// serializes every other mutation through the same goroutine via an
// unbuffered command channel (spec §5's single-writer/multi-reader
// model, grounded on the teacher's `LocalStore.mu sync.RWMutex`
// split between fast direct reads and one owning writer).
//
// Queries never touch the command channel: they call straight into
// graph.Index's own RLock-guarded accessors.
package engine

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"vaultgraph/internal/config"
	"vaultgraph/internal/eventqueue"
	"vaultgraph/internal/graph"
	"vaultgraph/internal/logging"
	"vaultgraph/internal/markdown"
	"vaultgraph/internal/pathfilter"
	"vaultgraph/internal/rename"
	"vaultgraph/internal/store"
	"vaultgraph/internal/sweep"
	"vaultgraph/internal/vcsgateway"
	"vaultgraph/internal/watcher"
	"vaultgraph/internal/writer"
)

// MutationResult is the shared response shape every write operation
// returns (spec §6/§7: "every write-tool response carries a
// human-readable Message").
type MutationResult struct {
	Success       bool   `json:"success"`
	Message       string `json:"message"`
	Path          string `json:"path,omitempty"`
	Preview       string `json:"preview,omitempty"`
	CommitHash    string `json:"commit_hash,omitempty"`
	UndoAvailable bool   `json:"undo_available,omitempty"`
}

type lastCommit struct {
	path string
	hash string
}

// mutation is a unit of work run on the writer goroutine, outside the
// settle-batch path, used by direct tool calls that need a
// synchronous graph/store refresh before returning.
type mutation struct {
	fn   func() error
	done chan error
}

// Engine is the single writer-task owner for one vault.
type Engine struct {
	cfg       config.Config
	vaultRoot string
	filter    *pathfilter.Filter

	idx     *graph.Index
	st      *store.Store
	wr      *writer.Writer
	vcs     *vcsgateway.Gateway
	renamer *rename.Renamer
	sweeper *sweep.Sweeper

	queue *eventqueue.Queue
	watch *watcher.Watcher

	mutations chan mutation
	stopCh    chan struct{}
	doneCh    chan struct{}

	sweepStop chan struct{}
	sweepDone chan struct{}

	reportMu sync.RWMutex
	report   *sweep.Report

	lastMu  sync.Mutex
	lastTag *lastCommit

	startMu sync.Mutex
	started bool
}

// New constructs an Engine, performing an initial full Rebuild of the
// graph index and opening the persistent store. It does not start the
// watcher, sweep timer, or batch-draining goroutine — call Start for
// that once the caller is ready to hand off control.
func New(ctx context.Context, cfg config.Config, vaultRoot string) (*Engine, error) {
	filter := pathfilter.New()
	idx := graph.NewIndex(filter)

	if err := idx.Rebuild(ctx, vaultRoot); err != nil {
		return nil, fmt.Errorf("engine: initial rebuild: %w", err)
	}

	storePath := cfg.Store.Path
	if storePath == "" {
		storePath = filepath.Join(".flywheel", "vaultgraph.db")
	}
	st, err := store.Open(filepath.Join(vaultRoot, storePath))
	if err != nil {
		return nil, fmt.Errorf("engine: open store: %w", err)
	}

	e := &Engine{
		cfg:       cfg,
		vaultRoot: vaultRoot,
		filter:    filter,
		idx:       idx,
		st:        st,
		wr:        writer.New(vaultRoot),
		vcs:       vcsgateway.New(cfg.Commit),
		renamer:   rename.New(vaultRoot, filter),
		sweeper:   sweep.NewSweeper(cfg.Sweep, st),
		queue:     eventqueue.New(eventqueue.Config{DebounceMs: cfg.Watch.DebounceMs, FlushMs: cfg.Watch.FlushMs, BatchSize: cfg.Watch.BatchSize}),
		mutations: make(chan mutation),
		stopCh:    make(chan struct{}),
		doneCh:    make(chan struct{}),
		sweepStop: make(chan struct{}),
		sweepDone: make(chan struct{}),
	}

	if err := e.reindexStoreAll(); err != nil {
		logging.SessionWarn("initial store reindex: %v", err)
	}

	e.watch = watcher.New(vaultRoot, filter, e.queue, cfg.Watch)
	return e, nil
}

// Start begins draining settled batches, watching the filesystem (if
// cfg.Watch.Enabled), and running the periodic sweep. Non-blocking.
func (e *Engine) Start(ctx context.Context) error {
	e.startMu.Lock()
	e.started = true
	e.startMu.Unlock()

	go e.runWriter(ctx)

	if e.cfg.Watch.Enabled {
		if err := e.watch.Start(ctx); err != nil {
			return fmt.Errorf("engine: start watcher: %w", err)
		}
	}

	go e.runSweepTimer(ctx)

	if _, err := e.runSweep(ctx); err != nil {
		logging.SweepWarn("initial sweep: %v", err)
	}

	logging.Session("engine started for %s", e.vaultRoot)
	return nil
}

// Stop halts the watcher, the sweep timer, and the writer goroutine,
// and closes the store. Idempotent.
func (e *Engine) Stop() {
	e.startMu.Lock()
	wasStarted := e.started
	e.startMu.Unlock()
	if !wasStarted {
		if err := e.st.Close(); err != nil {
			logging.SessionWarn("close store: %v", err)
		}
		return
	}

	if e.cfg.Watch.Enabled {
		e.watch.Stop()
	}
	select {
	case <-e.sweepStop:
	default:
		close(e.sweepStop)
		<-e.sweepDone
	}
	e.queue.Dispose()
	select {
	case <-e.stopCh:
	default:
		close(e.stopCh)
		<-e.doneCh
	}
	if err := e.st.Close(); err != nil {
		logging.SessionWarn("close store: %v", err)
	}
	logging.Session("engine stopped for %s", e.vaultRoot)
}

// runWriter is the single goroutine that owns every graph mutation:
// settled batches from the watcher and direct mutation requests from
// tool calls are both serialized here, never concurrently.
func (e *Engine) runWriter(ctx context.Context) {
	defer close(e.doneCh)
	for {
		select {
		case <-ctx.Done():
			return
		case <-e.stopCh:
			return
		case batch, ok := <-e.queue.Batches():
			if !ok {
				return
			}
			e.applyBatch(ctx, batch)
		case m := <-e.mutations:
			m.done <- m.fn()
		}
	}
}

// mutate runs fn on the writer goroutine and waits for it, used by
// every tool-facing write so graph/store state is always consistent
// with the file the tool just wrote by the time it returns.
func (e *Engine) mutate(fn func() error) error {
	done := make(chan error, 1)
	select {
	case e.mutations <- mutation{fn: fn, done: done}:
	case <-e.stopCh:
		return fmt.Errorf("engine: stopped")
	}
	return <-done
}

func (e *Engine) applyBatch(ctx context.Context, batch eventqueue.Batch) {
	for _, item := range batch.Items {
		switch item.Kind {
		case eventqueue.Upsert:
			if err := e.idx.Upsert(ctx, e.vaultRoot, item.Path); err != nil {
				logging.SessionWarn("upsert %s: %v", item.Path, err)
				continue
			}
			if err := e.syncStorePath(item.Path); err != nil {
				logging.SessionWarn("store sync %s: %v", item.Path, err)
			}
		case eventqueue.Delete:
			if err := e.idx.Delete(item.Path); err != nil {
				logging.SessionWarn("delete %s: %v", item.Path, err)
				continue
			}
			if err := e.st.Delete(item.Path); err != nil {
				logging.SessionWarn("store delete %s: %v", item.Path, err)
			}
		}
	}
}

func (e *Engine) runSweepTimer(ctx context.Context) {
	defer close(e.sweepDone)
	interval := time.Duration(e.cfg.Sweep.IntervalMs) * time.Millisecond
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	tick := time.NewTicker(interval)
	defer tick.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-e.sweepStop:
			return
		case <-tick.C:
			if _, err := e.runSweep(ctx); err != nil {
				logging.SweepWarn("periodic sweep: %v", err)
			}
		}
	}
}

func (e *Engine) runSweep(ctx context.Context) (*sweep.Report, error) {
	report, err := e.sweeper.Run(ctx, e.idx)
	if err != nil {
		return nil, err
	}
	e.reportMu.Lock()
	e.report = report
	e.reportMu.Unlock()
	return report, nil
}

// reindexStoreAll rebuilds the full-text and entity rows for every
// note currently in the graph, used once at startup since Rebuild
// does not itself touch the store.
func (e *Engine) reindexStoreAll() error {
	for _, p := range e.idx.Paths() {
		if err := e.syncStorePath(p); err != nil {
			logging.StoreWarn("reindex %s: %v", p, err)
		}
	}
	return nil
}

// syncStorePath refreshes path's full-text row and, if it still owns
// an entity key, its entity-catalogue row, reading the file fresh
// since graph.Note does not retain body text.
func (e *Engine) syncStorePath(relPath string) error {
	note, ok := e.idx.GetNote(relPath)
	if !ok {
		return e.st.Delete(relPath)
	}

	raw, err := os.ReadFile(filepath.Join(e.vaultRoot, filepath.FromSlash(relPath)))
	if err != nil {
		return fmt.Errorf("syncStorePath: read %s: %w", relPath, err)
	}
	doc, err := markdown.Parse(raw)
	if err != nil {
		return fmt.Errorf("syncStorePath: parse %s: %w", relPath, err)
	}

	row := store.NoteRow{
		Path:        relPath,
		Title:       note.Title,
		Body:        doc.Body,
		FrontMatter: flattenFrontMatter(note.FrontMatter),
		ContentHash: note.ContentHash,
	}
	if err := e.st.Update(row); err != nil {
		return fmt.Errorf("syncStorePath: update %s: %w", relPath, err)
	}

	for key, path := range e.idx.Entities() {
		if path != relPath {
			continue
		}
		entity := store.EntityRow{
			FoldedName: key,
			Display:    note.Title,
			Path:       relPath,
			Category:   entityCategory(note.FrontMatter),
			Aliases:    note.Aliases,
			Relevance:  1.0,
		}
		if err := e.st.UpsertEntity(entity); err != nil {
			return fmt.Errorf("syncStorePath: upsert entity %s: %w", key, err)
		}
	}
	return nil
}

// flattenFrontMatter concatenates a front-matter tree's scalar values
// into a single tokenisable string, preserving no structure since the
// full-text row only needs the terms, not their shape.
func flattenFrontMatter(fm *markdown.OrderedMap) string {
	if fm == nil {
		return ""
	}
	var b strings.Builder
	for _, k := range fm.Keys() {
		v, _ := fm.Get(k)
		b.WriteString(k)
		b.WriteByte(' ')
		flattenValue(&b, v)
		b.WriteByte(' ')
	}
	return b.String()
}

func flattenValue(b *strings.Builder, v markdown.Value) {
	switch v.Kind {
	case markdown.KindString:
		b.WriteString(v.Str)
	case markdown.KindSequence:
		for _, item := range v.Seq {
			flattenValue(b, item)
			b.WriteByte(' ')
		}
	case markdown.KindMapping:
		if v.Map == nil {
			return
		}
		for _, k := range v.Map.Keys() {
			iv, _ := v.Map.Get(k)
			b.WriteString(k)
			b.WriteByte(' ')
			flattenValue(b, iv)
			b.WriteByte(' ')
		}
	}
}

// entityCategory reads a note's "category" front-matter field,
// defaulting to "other" per autolink.Config's category weight table.
func entityCategory(fm *markdown.OrderedMap) string {
	if fm == nil {
		return "other"
	}
	v, ok := fm.Get("category")
	if !ok || v.Kind != markdown.KindString || v.Str == "" {
		return "other"
	}
	return v.Str
}
