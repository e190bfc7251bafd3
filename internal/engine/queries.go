package engine

import (
	"sort"
	"strings"

	"vaultgraph/internal/autolink"
	"vaultgraph/internal/graph"
	"vaultgraph/internal/store"
)

// NoteMetadata is get_note_metadata's response shape.
type NoteMetadata struct {
	Path          string   `json:"path"`
	Title         string   `json:"title"`
	Aliases       []string `json:"aliases"`
	Tags          []string `json:"tags"`
	BacklinkCount int      `json:"backlink_count"`
	ForwardCount  int      `json:"forward_count"`
	ParseError    bool     `json:"parse_error"`
}

// SearchScope selects full-text vs front-matter/metadata search.
type SearchScope string

const (
	ScopeFullText SearchScope = "full_text"
	ScopeMetadata SearchScope = "metadata"
)

// SearchParams mirrors spec §6's search({scope, query, title_contains,
// frontmatter_has, folder, limit}).
type SearchParams struct {
	Scope           SearchScope
	Query           string
	TitleContains   string
	FrontmatterHas  string
	Folder          string
	Limit           int
}

// AllPaths returns every indexed note path, used as the default scope
// for vault-wide operations like rename_tag when a caller supplies none.
func (e *Engine) AllPaths() []string {
	return e.idx.Paths()
}

// GetBacklinks returns every note that links to path.
func (e *Engine) GetBacklinks(path string) []graph.BacklinkRef {
	return e.idx.GetBacklinks(path)
}

// GetForwardLinks returns path's resolved outgoing link targets.
func (e *Engine) GetForwardLinks(path string) []string {
	return e.idx.GetForwardLinks(path)
}

// Search dispatches to the persistent store for full-text scope or
// filters the in-memory graph directly for metadata scope.
func (e *Engine) Search(p SearchParams) ([]string, error) {
	if p.Scope == ScopeFullText {
		return e.st.Search(p.Query, store.SearchFilters{PathPrefix: p.Folder, Limit: p.Limit})
	}
	return e.searchMetadata(p), nil
}

func (e *Engine) searchMetadata(p SearchParams) []string {
	var out []string
	for _, path := range e.idx.Paths() {
		if p.Folder != "" && !strings.HasPrefix(path, strings.TrimSuffix(p.Folder, "/")+"/") {
			continue
		}
		note, ok := e.idx.GetNote(path)
		if !ok {
			continue
		}
		if p.TitleContains != "" && !strings.Contains(strings.ToLower(note.Title), strings.ToLower(p.TitleContains)) {
			continue
		}
		if p.FrontmatterHas != "" {
			if note.FrontMatter == nil {
				continue
			}
			if _, has := note.FrontMatter.Get(p.FrontmatterHas); !has {
				continue
			}
		}
		out = append(out, path)
		if p.Limit > 0 && len(out) >= p.Limit {
			break
		}
	}
	sort.Strings(out)
	return out
}

// GetRecentNotes returns up to limit paths ordered by modification
// time, most recent first.
func (e *Engine) GetRecentNotes(limit int) []string {
	paths := e.idx.Paths()
	type pm struct {
		path     string
		modified int64
	}
	items := make([]pm, 0, len(paths))
	for _, p := range paths {
		note, ok := e.idx.GetNote(p)
		if !ok {
			continue
		}
		items = append(items, pm{path: p, modified: note.Modified.UnixNano()})
	}
	sort.Slice(items, func(i, j int) bool {
		if items[i].modified != items[j].modified {
			return items[i].modified > items[j].modified
		}
		return items[i].path < items[j].path
	})
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	out := make([]string, len(items))
	for i, it := range items {
		out[i] = it.path
	}
	return out
}

// GetNoteMetadata returns path's note record plus its backlink and
// forward-link counts, or ok=false if path is not indexed.
func (e *Engine) GetNoteMetadata(path string) (NoteMetadata, bool) {
	note, ok := e.idx.GetNote(path)
	if !ok {
		return NoteMetadata{}, false
	}
	tags := make([]string, 0, len(note.Tags))
	for t := range note.Tags {
		tags = append(tags, t)
	}
	sort.Strings(tags)
	return NoteMetadata{
		Path:          note.Path,
		Title:         note.Title,
		Aliases:       append([]string(nil), note.Aliases...),
		Tags:          tags,
		BacklinkCount: len(e.idx.GetBacklinks(path)),
		ForwardCount:  len(e.idx.GetForwardLinks(path)),
		ParseError:    note.ParseError,
	}, true
}

// HubNote is find_hub_notes' response row.
type HubNote struct {
	Path          string `json:"path"`
	BacklinkCount int    `json:"backlink_count"`
	ForwardCount  int    `json:"forward_count"`
	Total         int    `json:"total"`
}

// FindHubNotes computes, on demand against the live index, every note
// whose combined in/out degree is at least minLinks, so a caller can
// probe a different threshold than sweep's cached hub_threshold.
func (e *Engine) FindHubNotes(minLinks, limit int) []HubNote {
	var out []HubNote
	for _, p := range e.idx.Paths() {
		back := len(e.idx.GetBacklinks(p))
		fwd := len(e.idx.GetForwardLinks(p))
		total := back + fwd
		if total < minLinks {
			continue
		}
		out = append(out, HubNote{Path: p, BacklinkCount: back, ForwardCount: fwd, Total: total})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Total != out[j].Total {
			return out[i].Total > out[j].Total
		}
		return out[i].Path < out[j].Path
	})
	if limit > 0 && limit < len(out) {
		out = out[:limit]
	}
	return out
}

// FindOrphanNotes returns notes with zero backlinks and zero forward
// links, up to limit (0 = unbounded).
func (e *Engine) FindOrphanNotes(limit int) []string {
	var out []string
	for _, p := range e.idx.Paths() {
		if len(e.idx.GetBacklinks(p)) == 0 && len(e.idx.GetForwardLinks(p)) == 0 {
			out = append(out, p)
		}
	}
	sort.Strings(out)
	if limit > 0 && limit < len(out) {
		out = out[:limit]
	}
	return out
}

// GraphAnalysisMode selects which section of the cached sweep report
// graph_analysis surfaces.
type GraphAnalysisMode string

const (
	ModeHubs      GraphAnalysisMode = "hubs"
	ModeOrphans   GraphAnalysisMode = "orphans"
	ModeDeadLinks GraphAnalysisMode = "dead_links"
	ModeUnlinked  GraphAnalysisMode = "top_unlinked"
)

// GraphAnalysis returns the requested section of the most recently
// cached sweep.Report. Reads the cache populated by the periodic
// sweep timer rather than recomputing, since the Datalog pass is not
// cheap enough to run per query (spec §4.F).
func (e *Engine) GraphAnalysis(mode GraphAnalysisMode) any {
	e.reportMu.RLock()
	report := e.report
	e.reportMu.RUnlock()
	if report == nil {
		return nil
	}
	switch mode {
	case ModeHubs:
		return report.Hubs
	case ModeOrphans:
		return report.Orphans
	case ModeDeadLinks:
		return report.DeadLinks
	case ModeUnlinked:
		return report.TopUnlinked
	default:
		return report
	}
}

// FolderNode is one entry in get_folder_structure's tree.
type FolderNode struct {
	Path     string       `json:"path"`
	NoteCount int         `json:"note_count"`
	Children []*FolderNode `json:"children,omitempty"`
}

// GetFolderStructure derives a folder tree from every indexed note's
// path, since the graph does not separately track directories.
func (e *Engine) GetFolderStructure() *FolderNode {
	root := &FolderNode{Path: ""}
	index := map[string]*FolderNode{"": root}

	ensure := func(dir string) *FolderNode {
		if node, ok := index[dir]; ok {
			return node
		}
		parent := root
		if i := strings.LastIndex(dir, "/"); i >= 0 {
			parent = ensure(dir[:i])
		}
		node := &FolderNode{Path: dir}
		index[dir] = node
		parent.Children = append(parent.Children, node)
		return node
	}

	for _, p := range e.idx.Paths() {
		dir := ""
		if i := strings.LastIndex(p, "/"); i >= 0 {
			dir = p[:i]
		}
		node := ensure(dir)
		node.NoteCount++
	}

	var sortTree func(n *FolderNode)
	sortTree = func(n *FolderNode) {
		sort.Slice(n.Children, func(i, j int) bool { return n.Children[i].Path < n.Children[j].Path })
		for _, c := range n.Children {
			sortTree(c)
		}
	}
	sortTree(root)
	return root
}

// SuggestWikilinks runs the auto-link resolver over text against the
// persistent entity catalogue.
func (e *Engine) SuggestWikilinks(text, sourcePath string) (autolink.Result, error) {
	rows, err := e.st.ListEntities(store.EntityFilter{})
	if err != nil {
		return autolink.Result{}, err
	}
	catalogue := make([]autolink.Entity, 0, len(rows))
	for _, r := range rows {
		catalogue = append(catalogue, autolink.Entity{
			Key:      r.FoldedName,
			Display:  r.Display,
			Path:     r.Path,
			Category: r.Category,
			Aliases:  r.Aliases,
		})
	}
	cfg := autolink.Config{
		LinkThreshold:      e.cfg.AutoLink.LinkThreshold,
		SuggestThreshold:   e.cfg.AutoLink.SuggestThreshold,
		ShortNameMinLen:    e.cfg.AutoLink.ShortNameMinLen,
		CategoryWeights:    e.cfg.AutoLink.CategoryWeights,
		CategoryAffinityOn: e.cfg.AutoLink.CategoryAffinityOn,
	}
	return autolink.Resolve(text, sourcePath, catalogue, cfg), nil
}

// SimilarEntity is one find_similar_entities result row.
type SimilarEntity struct {
	FoldedName string   `json:"folded_name"`
	Display    string   `json:"display"`
	Path       string   `json:"path"`
	Category   string   `json:"category"`
	Aliases    []string `json:"aliases"`
}

// FindSimilarEntities returns up to limit entities whose embedding is
// nearest refKey's by cosine distance. ok is false when the store has
// no vector support compiled in, or refKey itself has no stored
// embedding (the case for every entity the engine writes, since it
// stores entity rows without an embedding).
func (e *Engine) FindSimilarEntities(refKey string, limit int) ([]SimilarEntity, bool, error) {
	rows, ok, err := e.st.SearchSimilar(refKey, limit)
	if err != nil || !ok {
		return nil, ok, err
	}
	out := make([]SimilarEntity, 0, len(rows))
	for _, r := range rows {
		out = append(out, SimilarEntity{
			FoldedName: r.FoldedName,
			Display:    r.Display,
			Path:       r.Path,
			Category:   r.Category,
			Aliases:    r.Aliases,
		})
	}
	return out, true, nil
}

// BrokenLink is one dead outlink target surfaced by validate_links /
// find_broken_links.
type BrokenLink struct {
	TargetKey string   `json:"target_key"`
	Count     int      `json:"count"`
}

// ValidateLinks (aka find_broken_links) returns every unresolved
// outlink target, ranked by how many notes reference it.
func (e *Engine) ValidateLinks() []BrokenLink {
	dead := e.idx.DeadTargets()
	out := make([]BrokenLink, 0, len(dead))
	for key, count := range dead {
		out = append(out, BrokenLink{TargetKey: key, Count: count})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].TargetKey < out[j].TargetKey
	})
	return out
}
