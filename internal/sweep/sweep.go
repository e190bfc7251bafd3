// Package sweep runs vaultgraph's periodic hygiene pass: dead links,
// hub notes, orphan notes, and top-unlinked entities, per spec §4.F.
// Sweep reads idx and the store; it never mutates either.
package sweep

import (
	"context"
	"fmt"
	"sort"

	"vaultgraph/internal/config"
	"vaultgraph/internal/graph"
	"vaultgraph/internal/logging"
	"vaultgraph/internal/mangle"
	"vaultgraph/internal/store"
)

// DeadLinkRef is one unresolved outlink, grouped by target.
type DeadLinkRef struct {
	TargetKey string
	Count     int
	Sources   []string
}

// HubNote is a note whose combined in/out degree exceeds the
// configured threshold.
type HubNote struct {
	Path          string
	BacklinkCount int
	ForwardCount  int
	Total         int
}

// UnlinkedEntity is an entity mentioned in full text more often than it
// is actually wikilinked.
type UnlinkedEntity struct {
	FoldedName      string
	Path            string
	MentionCount    int
	BacklinkCount   int
	UnlinkedMentions int
}

// Report is sweep's cached, read-only result.
type Report struct {
	DeadLinks        []DeadLinkRef
	DeadLinkTotal    int
	Hubs             []HubNote
	Orphans          []string
	TopUnlinked      []UnlinkedEntity
}

// Sweeper runs hygiene passes against a graph index and store.
type Sweeper struct {
	cfg   config.SweepConfig
	store *store.Store
}

// NewSweeper constructs a Sweeper. store may be nil, in which case
// TopUnlinked is always empty (mention counts require the store).
func NewSweeper(cfg config.SweepConfig, st *store.Store) *Sweeper {
	return &Sweeper{cfg: cfg, store: st}
}

// Run evaluates the fixed Datalog rule set against idx's current
// snapshot and returns a Report. It never mutates idx.
func (s *Sweeper) Run(ctx context.Context, idx *graph.Index) (*Report, error) {
	timer := logging.StartTimer(logging.CategorySweep, "Run")
	defer timer.Stop()

	engine := mangle.NewEngine(mangle.DefaultConfig())
	if err := engine.LoadSchemaString(mangle.Schema); err != nil {
		return nil, fmt.Errorf("sweep: load rules: %w", err)
	}

	facts := buildFacts(idx)
	if err := engine.AddFacts(facts); err != nil {
		return nil, fmt.Errorf("sweep: assert facts: %w", err)
	}

	report := &Report{}

	deadFacts, err := engine.GetFacts("dead_link")
	if err != nil {
		return nil, fmt.Errorf("sweep: dead_link: %w", err)
	}
	report.DeadLinks, report.DeadLinkTotal = aggregateDeadLinks(deadFacts)

	backlinkCounts, err := factCounts(engine, "backlink_count")
	if err != nil {
		return nil, err
	}
	forwardCounts, err := factCounts(engine, "forward_count")
	if err != nil {
		return nil, err
	}

	threshold := s.cfg.HubThreshold
	if threshold <= 0 {
		threshold = 10
	}
	for _, path := range idx.Paths() {
		total := backlinkCounts[path] + forwardCounts[path]
		if total > threshold {
			report.Hubs = append(report.Hubs, HubNote{
				Path:          path,
				BacklinkCount: backlinkCounts[path],
				ForwardCount:  forwardCounts[path],
				Total:         total,
			})
		}
	}
	sort.Slice(report.Hubs, func(i, j int) bool { return report.Hubs[i].Total > report.Hubs[j].Total })

	orphanFacts, err := engine.GetFacts("orphan")
	if err != nil {
		return nil, fmt.Errorf("sweep: orphan: %w", err)
	}
	for _, f := range orphanFacts {
		if len(f.Args) != 1 {
			continue
		}
		if path, ok := f.Args[0].(string); ok {
			report.Orphans = append(report.Orphans, path)
		}
	}
	sort.Strings(report.Orphans)

	if s.store != nil {
		report.TopUnlinked, err = s.topUnlinked(idx, backlinkCounts)
		if err != nil {
			return nil, err
		}
	}

	logging.Sweep("swept: %d dead targets, %d hubs, %d orphans", len(report.DeadLinks), len(report.Hubs), len(report.Orphans))
	return report, nil
}

func buildFacts(idx *graph.Index) []mangle.Fact {
	var facts []mangle.Fact

	for key, path := range idx.Entities() {
		facts = append(facts, mangle.Fact{Predicate: "entity", Args: []interface{}{key, path}})
	}

	for _, path := range idx.Paths() {
		facts = append(facts, mangle.Fact{Predicate: "note", Args: []interface{}{path}})
		note, ok := idx.GetNote(path)
		if !ok {
			continue
		}
		for _, ol := range note.Outlinks {
			key := graph.ResolveTargetKey(ol.Target)
			facts = append(facts, mangle.Fact{Predicate: "outlink", Args: []interface{}{path, key, int64(ol.Line)}})
		}
	}

	for _, tag := range idx.Tags() {
		for _, path := range idx.TagPaths(tag) {
			facts = append(facts, mangle.Fact{Predicate: "tag_member", Args: []interface{}{tag, path}})
		}
	}

	return facts
}

func aggregateDeadLinks(facts []mangle.Fact) ([]DeadLinkRef, int) {
	byTarget := make(map[string]*DeadLinkRef)
	total := 0
	for _, f := range facts {
		if len(f.Args) != 2 {
			continue
		}
		target, ok1 := f.Args[0].(string)
		source, ok2 := f.Args[1].(string)
		if !ok1 || !ok2 {
			continue
		}
		ref, ok := byTarget[target]
		if !ok {
			ref = &DeadLinkRef{TargetKey: target}
			byTarget[target] = ref
		}
		ref.Count++
		ref.Sources = append(ref.Sources, source)
		total++
	}
	out := make([]DeadLinkRef, 0, len(byTarget))
	for _, ref := range byTarget {
		sort.Strings(ref.Sources)
		out = append(out, *ref)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].TargetKey < out[j].TargetKey
	})
	return out, total
}

func factCounts(engine *mangle.Engine, predicate string) (map[string]int, error) {
	facts, err := engine.GetFacts(predicate)
	if err != nil {
		return nil, fmt.Errorf("sweep: %s: %w", predicate, err)
	}
	out := make(map[string]int, len(facts))
	for _, f := range facts {
		if len(f.Args) != 2 {
			continue
		}
		path, ok := f.Args[0].(string)
		if !ok {
			continue
		}
		switch n := f.Args[1].(type) {
		case int64:
			out[path] = int(n)
		case int:
			out[path] = n
		}
	}
	return out, nil
}

// topUnlinked computes, per entity, mentions_in_full_text −
// backlink_count − 1 (self), ranked descending — done in Go rather
// than Datalog since it needs the store's full-text mention counts,
// which are not graph facts (spec §4.F).
func (s *Sweeper) topUnlinked(idx *graph.Index, backlinkCounts map[string]int) ([]UnlinkedEntity, error) {
	entities := idx.Entities()
	out := make([]UnlinkedEntity, 0, len(entities))
	for key, path := range entities {
		mentions, err := s.store.CountMentions(key)
		if err != nil {
			return nil, fmt.Errorf("sweep: count mentions %s: %w", key, err)
		}
		unlinked := mentions - backlinkCounts[path] - 1
		if unlinked <= 0 {
			continue
		}
		out = append(out, UnlinkedEntity{
			FoldedName:       key,
			Path:             path,
			MentionCount:     mentions,
			BacklinkCount:    backlinkCounts[path],
			UnlinkedMentions: unlinked,
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].UnlinkedMentions != out[j].UnlinkedMentions {
			return out[i].UnlinkedMentions > out[j].UnlinkedMentions
		}
		return out[i].FoldedName < out[j].FoldedName
	})
	return out, nil
}
