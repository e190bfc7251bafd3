// Package graph maintains the in-memory note graph: notes, outlinks,
// backlinks, the entity map (title/alias resolution), and the tag map.
// Index supports both a full Rebuild from disk and incremental
// Upsert/Delete operations that must leave the index structurally equal
// to a clean Rebuild over the same filesystem state (§8 property 1).
package graph

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
	"golang.org/x/text/unicode/norm"

	"vaultgraph/internal/logging"
	"vaultgraph/internal/markdown"
	"vaultgraph/internal/pathfilter"
)

// Outlink is a resolved-or-not wikilink reference recorded against its
// source note, preserving source order and line number.
type Outlink struct {
	Target string // raw target text, anchors retained (§3)
	Line   int
}

// BacklinkRef is one inbound reference to an entity key.
type BacklinkRef struct {
	SourcePath string
	Line       int
}

// Note is the authoritative record for one Markdown file.
type Note struct {
	Path        string // vault-relative, forward-slash, display case
	Title       string
	Aliases     []string // case-preserving, deduped after fold
	FrontMatter *markdown.OrderedMap
	Tags        map[string]struct{}
	Outlinks    []Outlink
	Modified    time.Time
	ContentHash string
	ParseError  bool
}

// AliasConflict records a title/alias claim shadowed by another note's
// claim on the same folded key, per the entity map's resolution policy
// (shorter path wins, ties lexicographic; aliases never override an
// existing title).
type AliasConflict struct {
	Key           string
	WinnerPath    string
	LoserPath     string
	LoserWasTitle bool
}

// claim is the winning title/alias assertion for one folded entity key.
type claim struct {
	Path    string
	IsTitle bool
}

// Index is the single-writer, multi-reader in-memory graph (§5).
type Index struct {
	mu sync.RWMutex

	filter *pathfilter.Filter

	notes       map[string]*Note
	entities    map[string]claim
	backlinks   map[string][]BacklinkRef
	tags        map[string]map[string]struct{}
	deadTargets map[string]int
	conflicts   []AliasConflict
}

// NewIndex returns an empty Index using filter to decide which paths
// Rebuild should walk. A nil filter uses pathfilter defaults.
func NewIndex(filter *pathfilter.Filter) *Index {
	if filter == nil {
		filter = pathfilter.New()
	}
	return &Index{
		filter:      filter,
		notes:       make(map[string]*Note),
		entities:    make(map[string]claim),
		backlinks:   make(map[string][]BacklinkRef),
		tags:        make(map[string]map[string]struct{}),
		deadTargets: make(map[string]int),
	}
}

// FoldKey case-folds a title/alias/target for entity-map lookup: NFC
// normalization followed by Unicode-aware lowercasing (§9 open
// question: no locale-specific folding).
func FoldKey(s string) string {
	return strings.ToLower(norm.NFC.String(s))
}

// ResolveTargetKey strips a wikilink target's trailing #fragment or
// ^block-id anchor and folds the remainder, per §4.D's resolution
// policy.
func ResolveTargetKey(target string) string {
	t := target
	if idx := strings.IndexAny(t, "#^"); idx > 0 {
		t = t[:idx]
	}
	return FoldKey(strings.TrimSpace(t))
}

// ---- read operations ----

// GetNote returns a copy-safe pointer to the note at path, if present.
func (idx *Index) GetNote(path string) (*Note, bool) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	n, ok := idx.notes[path]
	return n, ok
}

// GetBacklinks returns the sources referencing path's title/aliases,
// ordered by source path then line.
func (idx *Index) GetBacklinks(path string) []BacklinkRef {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	note, ok := idx.notes[path]
	if !ok {
		return nil
	}

	seen := make(map[string]struct{})
	var out []BacklinkRef
	for _, key := range idx.claimedKeysLocked(note) {
		for _, ref := range idx.backlinks[key] {
			dedupeKey := fmt.Sprintf("%s:%d", ref.SourcePath, ref.Line)
			if _, dup := seen[dedupeKey]; dup {
				continue
			}
			seen[dedupeKey] = struct{}{}
			out = append(out, ref)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].SourcePath != out[j].SourcePath {
			return out[i].SourcePath < out[j].SourcePath
		}
		return out[i].Line < out[j].Line
	})
	return out
}

// GetForwardLinks returns path's outlinks resolved to owning note paths,
// skipping dead (unresolved) targets.
func (idx *Index) GetForwardLinks(path string) []string {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	note, ok := idx.notes[path]
	if !ok {
		return nil
	}
	var out []string
	seen := make(map[string]struct{})
	for _, ol := range note.Outlinks {
		key := ResolveTargetKey(ol.Target)
		c, resolved := idx.entities[key]
		if !resolved {
			continue
		}
		if _, dup := seen[c.Path]; dup {
			continue
		}
		seen[c.Path] = struct{}{}
		out = append(out, c.Path)
	}
	sort.Strings(out)
	return out
}

// DeadTargets returns a copy of the unresolved-target tally.
func (idx *Index) DeadTargets() map[string]int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	out := make(map[string]int, len(idx.deadTargets))
	for k, v := range idx.deadTargets {
		out[k] = v
	}
	return out
}

// Conflicts returns alias/title collisions recorded since the last
// Rebuild (§9 Open Question decision 2).
func (idx *Index) Conflicts() []AliasConflict {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	out := make([]AliasConflict, len(idx.conflicts))
	copy(out, idx.conflicts)
	return out
}

// Paths returns every indexed note path, sorted.
func (idx *Index) Paths() []string {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	out := make([]string, 0, len(idx.notes))
	for p := range idx.notes {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// TagPaths returns the notes carrying tag, sorted.
func (idx *Index) TagPaths(tag string) []string {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	set := idx.tags[tag]
	out := make([]string, 0, len(set))
	for p := range set {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// NoteCount returns the number of indexed notes.
func (idx *Index) NoteCount() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return len(idx.notes)
}

// Entities returns a snapshot of the folded-key -> owning-path entity
// map, for sweep's fact generation and autolink's entity catalogue.
func (idx *Index) Entities() map[string]string {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	out := make(map[string]string, len(idx.entities))
	for k, c := range idx.entities {
		out[k] = c.Path
	}
	return out
}

// Tags returns every distinct tag currently indexed, sorted.
func (idx *Index) Tags() []string {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	out := make([]string, 0, len(idx.tags))
	for t := range idx.tags {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// claimedKeysLocked returns the folded title+alias keys note actually
// owns (i.e. it won the claim), used to look up its own backlinks.
// Caller must hold idx.mu.
func (idx *Index) claimedKeysLocked(note *Note) []string {
	var keys []string
	for _, key := range allKeysOf(note) {
		if c, ok := idx.entities[key]; ok && c.Path == note.Path {
			keys = append(keys, key)
		}
	}
	return keys
}

func allKeysOf(note *Note) []string {
	keys := make([]string, 0, 1+len(note.Aliases))
	keys = append(keys, FoldKey(note.Title))
	for _, a := range note.Aliases {
		keys = append(keys, FoldKey(a))
	}
	return keys
}

// ---- write operations ----

// parseFile reads and parses path (vault-relative) off vaultRoot into a
// Note. Parse failures are recorded, not returned: a malformed note
// keeps an empty-outlinks/tags record with ParseError set, per §7.
func parseFile(vaultRoot, relPath string) *Note {
	abs := filepath.Join(vaultRoot, filepath.FromSlash(relPath))
	raw, err := os.ReadFile(abs)
	if err != nil {
		logging.GraphError("read %s: %v", relPath, err)
		return &Note{Path: relPath, Title: stem(relPath), ParseError: true, Tags: map[string]struct{}{}}
	}

	info, statErr := os.Stat(abs)
	var modified time.Time
	if statErr == nil {
		modified = info.ModTime()
	}

	doc, err := markdown.Parse(raw)
	if err != nil {
		logging.GraphWarn("parse %s: %v", relPath, err)
		return &Note{Path: relPath, Title: stem(relPath), Modified: modified, ParseError: true, Tags: map[string]struct{}{}}
	}

	note := &Note{
		Path:        relPath,
		Title:       stem(relPath),
		FrontMatter: doc.FrontMatter,
		Modified:    modified,
		ContentHash: doc.ContentHash,
		Tags:        map[string]struct{}{},
	}

	note.Aliases = extractAliases(doc.FrontMatter)

	for _, t := range frontMatterTags(doc.FrontMatter) {
		note.Tags[t] = struct{}{}
	}
	for _, t := range doc.InlineTags {
		note.Tags[t] = struct{}{}
	}

	for _, ol := range doc.Outlinks {
		note.Outlinks = append(note.Outlinks, Outlink{Target: ol.Target, Line: ol.Line})
	}

	return note
}

func stem(relPath string) string {
	base := filepath.Base(relPath)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// extractAliases reads front-matter "aliases", deduplicating
// case-preserving strings after case-folding (§3 invariant).
func extractAliases(fm *markdown.OrderedMap) []string {
	if fm == nil {
		return nil
	}
	v, ok := fm.Get("aliases")
	if !ok {
		return nil
	}
	var raw []string
	switch v.Kind {
	case markdown.KindSequence:
		for _, item := range v.Seq {
			if item.Kind == markdown.KindString && item.Str != "" {
				raw = append(raw, item.Str)
			}
		}
	case markdown.KindString:
		if v.Str != "" {
			raw = append(raw, v.Str)
		}
	}

	seen := make(map[string]struct{}, len(raw))
	out := make([]string, 0, len(raw))
	for _, a := range raw {
		key := FoldKey(a)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, a)
	}
	return out
}

// frontMatterTags reads the front-matter "tags" field, which may be a
// sequence or a single string.
func frontMatterTags(fm *markdown.OrderedMap) []string {
	if fm == nil {
		return nil
	}
	v, ok := fm.Get("tags")
	if !ok {
		return nil
	}
	var out []string
	switch v.Kind {
	case markdown.KindSequence:
		for _, item := range v.Seq {
			if item.Kind == markdown.KindString && item.Str != "" {
				out = append(out, item.Str)
			}
		}
	case markdown.KindString:
		if v.Str != "" {
			out = append(out, v.Str)
		}
	}
	return out
}

// Rebuild scans vaultRoot, parsing every watched file, and replaces the
// index wholesale. Parsing runs concurrently across a bounded worker
// pool; the merge into the index is serialized in a single goroutine
// (§5, §9 "Worker-pool parsing").
func (idx *Index) Rebuild(ctx context.Context, vaultRoot string) error {
	timer := logging.StartTimer(logging.CategoryGraph, "Rebuild")
	defer timer.Stop()

	var relPaths []string
	err := filepath.Walk(vaultRoot, func(p string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		rel, rerr := filepath.Rel(vaultRoot, p)
		if rerr != nil {
			return rerr
		}
		rel = pathfilter.Normalize(rel)
		if !idx.filter.Watched(rel) {
			return nil
		}
		relPaths = append(relPaths, rel)
		return nil
	})
	if err != nil {
		return fmt.Errorf("walk vault: %w", err)
	}
	sort.Strings(relPaths)

	notes := make([]*Note, len(relPaths))
	sem := semaphore.NewWeighted(parseConcurrency())
	g, gctx := errgroup.WithContext(ctx)
	for i, rel := range relPaths {
		i, rel := i, rel
		if err := sem.Acquire(gctx, 1); err != nil {
			break
		}
		g.Go(func() error {
			defer sem.Release(1)
			notes[i] = parseFile(vaultRoot, rel)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	idx.mu.Lock()
	defer idx.mu.Unlock()

	idx.notes = make(map[string]*Note, len(notes))
	idx.entities = make(map[string]claim)
	idx.backlinks = make(map[string][]BacklinkRef)
	idx.tags = make(map[string]map[string]struct{})
	idx.deadTargets = make(map[string]int)
	idx.conflicts = nil

	for _, n := range notes {
		idx.notes[n.Path] = n
	}
	idx.reclaimAllEntitiesLocked()
	idx.reindexAllTagsLocked()
	idx.recomputeAllBacklinksLocked()

	logging.Graph("rebuilt index: %d notes", len(idx.notes))
	return nil
}

func parseConcurrency() int64 {
	n := int64(8)
	return n
}

// reclaimAllEntitiesLocked recomputes the entire entity map from
// scratch by applying the claim policy across every note's title and
// aliases, in path order for determinism. Caller must hold idx.mu.
func (idx *Index) reclaimAllEntitiesLocked() {
	paths := make([]string, 0, len(idx.notes))
	for p := range idx.notes {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	for _, p := range paths {
		note := idx.notes[p]
		idx.claimKeyLocked(FoldKey(note.Title), note.Path, true)
		for _, a := range note.Aliases {
			idx.claimKeyLocked(FoldKey(a), note.Path, false)
		}
	}
}

// claimKeyLocked applies the entity map's resolution policy (§3):
// titles always beat aliases; among same-kind claims, the shorter path
// wins, ties broken lexicographically. The loser is recorded in
// idx.conflicts, not surfaced as an error. Caller must hold idx.mu.
func (idx *Index) claimKeyLocked(key, path string, isTitle bool) {
	existing, ok := idx.entities[key]
	if !ok {
		idx.entities[key] = claim{Path: path, IsTitle: isTitle}
		return
	}
	if existing.Path == path && existing.IsTitle == isTitle {
		return
	}

	winner, loser, loserWasTitle := existing, claim{Path: path, IsTitle: isTitle}, isTitle
	switch {
	case existing.IsTitle && !isTitle:
		// existing title beats the new alias; nothing changes.
	case !existing.IsTitle && isTitle:
		winner, loser, loserWasTitle = claim{Path: path, IsTitle: isTitle}, existing, existing.IsTitle
	default:
		if betterClaim(path, existing.Path) {
			winner, loser, loserWasTitle = claim{Path: path, IsTitle: isTitle}, existing, existing.IsTitle
		}
	}

	idx.entities[key] = winner
	idx.conflicts = append(idx.conflicts, AliasConflict{
		Key:           key,
		WinnerPath:    winner.Path,
		LoserPath:     loser.Path,
		LoserWasTitle: loserWasTitle,
	})
}

// betterClaim reports whether candidate should win over current under
// the "shorter path wins, ties lexicographic" policy.
func betterClaim(candidate, current string) bool {
	if len(candidate) != len(current) {
		return len(candidate) < len(current)
	}
	return candidate < current
}

func (idx *Index) reindexAllTagsLocked() {
	for tag := range idx.tags {
		delete(idx.tags, tag)
	}
	for path, note := range idx.notes {
		for tag := range note.Tags {
			idx.addTagLocked(tag, path)
		}
	}
}

func (idx *Index) addTagLocked(tag, path string) {
	set, ok := idx.tags[tag]
	if !ok {
		set = make(map[string]struct{})
		idx.tags[tag] = set
	}
	set[path] = struct{}{}
}

func (idx *Index) removeTagLocked(tag, path string) {
	set, ok := idx.tags[tag]
	if !ok {
		return
	}
	delete(set, path)
	if len(set) == 0 {
		delete(idx.tags, tag)
	}
}

// recomputeAllBacklinksLocked rebuilds backlinks and deadTargets from
// scratch by scanning every note's outlinks against the current entity
// map, in path order for determinism. Caller must hold idx.mu.
func (idx *Index) recomputeAllBacklinksLocked() {
	idx.backlinks = make(map[string][]BacklinkRef)
	idx.deadTargets = make(map[string]int)

	paths := make([]string, 0, len(idx.notes))
	for p := range idx.notes {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	for _, p := range paths {
		note := idx.notes[p]
		for _, ol := range note.Outlinks {
			key := ResolveTargetKey(ol.Target)
			if _, resolved := idx.entities[key]; resolved {
				idx.backlinks[key] = append(idx.backlinks[key], BacklinkRef{SourcePath: p, Line: ol.Line})
			} else {
				idx.deadTargets[key]++
			}
		}
	}
}

// recomputeKeyLocked re-derives backlinks/deadTargets for a single
// folded key by rescanning every note's outlinks, used after an
// incremental change narrows the blast radius to one key instead of a
// full recompute. Caller must hold idx.mu.
func (idx *Index) recomputeKeyLocked(key string) {
	delete(idx.backlinks, key)
	delete(idx.deadTargets, key)

	paths := make([]string, 0, len(idx.notes))
	for p := range idx.notes {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	_, resolved := idx.entities[key]
	for _, p := range paths {
		for _, ol := range idx.notes[p].Outlinks {
			if ResolveTargetKey(ol.Target) != key {
				continue
			}
			if resolved {
				idx.backlinks[key] = append(idx.backlinks[key], BacklinkRef{SourcePath: p, Line: ol.Line})
			} else {
				idx.deadTargets[key]++
			}
		}
	}
}

// Upsert parses relPath off vaultRoot and replaces its entry in the
// index, diffing old and new outlinks/aliases/tags to update
// backlinks, the entity map, and the tag map incrementally (§4.D).
// Case changes and renames are handled by the caller as a Delete of
// the old path followed by an Upsert of the new one.
func (idx *Index) Upsert(ctx context.Context, vaultRoot, relPath string) error {
	timer := logging.StartTimer(logging.CategoryGraph, "Upsert")
	defer timer.Stop()

	newNote := parseFile(vaultRoot, relPath)

	idx.mu.Lock()
	defer idx.mu.Unlock()

	old, existed := idx.notes[relPath]

	affectedKeys := make(map[string]struct{})
	if existed {
		idx.releaseNoteLocked(old, affectedKeys)
	}

	idx.notes[relPath] = newNote
	idx.claimKeyLocked(FoldKey(newNote.Title), newNote.Path, true)
	affectedKeys[FoldKey(newNote.Title)] = struct{}{}
	for _, a := range newNote.Aliases {
		idx.claimKeyLocked(FoldKey(a), newNote.Path, false)
		affectedKeys[FoldKey(a)] = struct{}{}
	}
	for _, ol := range newNote.Outlinks {
		affectedKeys[ResolveTargetKey(ol.Target)] = struct{}{}
	}
	for tag := range newNote.Tags {
		idx.addTagLocked(tag, newNote.Path)
	}

	for key := range affectedKeys {
		idx.recomputeKeyLocked(key)
	}

	logging.GraphDebug("upsert %s: title=%s aliases=%d outlinks=%d tags=%d", relPath, newNote.Title, len(newNote.Aliases), len(newNote.Outlinks), len(newNote.Tags))
	return nil
}

// Delete removes path's note, releasing its backlink contributions,
// entity claims (reassigning any it owned per the claim policy), and
// tag memberships, pruning now-empty tag sets.
func (idx *Index) Delete(relPath string) error {
	timer := logging.StartTimer(logging.CategoryGraph, "Delete")
	defer timer.Stop()

	idx.mu.Lock()
	defer idx.mu.Unlock()

	old, ok := idx.notes[relPath]
	if !ok {
		return nil
	}

	affectedKeys := make(map[string]struct{})
	idx.releaseNoteLocked(old, affectedKeys)
	delete(idx.notes, relPath)

	for key := range affectedKeys {
		idx.recomputeKeyLocked(key)
	}

	logging.GraphDebug("deleted %s", relPath)
	return nil
}

// releaseNoteLocked undoes note's contributions to tags, outlink
// targets, and entity claims, recording every folded key whose
// resolution may now have changed into affected so the caller can
// recompute backlinks for exactly those keys. It does not remove note
// from idx.notes. Caller must hold idx.mu.
func (idx *Index) releaseNoteLocked(note *Note, affected map[string]struct{}) {
	for tag := range note.Tags {
		idx.removeTagLocked(tag, note.Path)
	}
	for _, ol := range note.Outlinks {
		affected[ResolveTargetKey(ol.Target)] = struct{}{}
	}

	for _, key := range allKeysOf(note) {
		c, ok := idx.entities[key]
		if !ok || c.Path != note.Path {
			continue
		}
		delete(idx.entities, key)
		idx.reclaimKeyFromRemainingLocked(key, note.Path)
		affected[key] = struct{}{}
	}
}

// reclaimKeyFromRemainingLocked re-derives the winning claim for key
// from every note except excludePath, matching what a full Rebuild
// would compute now that excludePath's claim is gone. Caller must hold
// idx.mu.
func (idx *Index) reclaimKeyFromRemainingLocked(key, excludePath string) {
	paths := make([]string, 0, len(idx.notes))
	for p := range idx.notes {
		if p == excludePath {
			continue
		}
		paths = append(paths, p)
	}
	sort.Strings(paths)

	for _, p := range paths {
		note := idx.notes[p]
		if FoldKey(note.Title) == key {
			idx.claimKeyLocked(key, p, true)
		}
		for _, a := range note.Aliases {
			if FoldKey(a) == key {
				idx.claimKeyLocked(key, p, false)
			}
		}
	}
}
