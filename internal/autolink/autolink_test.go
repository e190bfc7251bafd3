package autolink

import (
	"reflect"
	"strings"
	"testing"
)

func defaultTestConfig() Config {
	return Config{
		LinkThreshold:    0.72,
		SuggestThreshold: 0.45,
		ShortNameMinLen:  3,
		CategoryWeights: map[string]float64{
			"people":        1.0,
			"projects":      0.95,
			"technologies":  0.85,
			"acronyms":      0.9,
			"organisations": 0.8,
			"locations":     0.7,
			"concepts":      0.6,
			"other":         0.5,
		},
		CategoryAffinityOn: true,
	}
}

// TestAutoLinkThresholding is S6: entities from two different
// categories both clear LinkThreshold (Project X off its single
// exact-case mention), only the first of Alice's two mentions is
// linked, and no link is ever nested inside another.
func TestAutoLinkThresholding(t *testing.T) {
	catalogue := []Entity{
		{Key: "alice", Display: "Alice", Category: "people"},
		{Key: "project-x", Display: "Project X", Category: "projects"},
	}
	text := "Met with Alice about Project X and project x. Alice was pleased."

	res := Resolve(text, "", catalogue, defaultTestConfig())

	if res.LinksAdded != 2 {
		t.Fatalf("expected 2 links added, got %d (text=%q)", res.LinksAdded, res.ModifiedText)
	}
	want := map[string]bool{"alice": false, "project-x": false}
	for _, key := range res.LinkedEntities {
		if _, ok := want[key]; !ok {
			t.Fatalf("unexpected linked entity %q", key)
		}
		want[key] = true
	}
	for key, seen := range want {
		if !seen {
			t.Errorf("expected %q to be in linked_entities, got %v", key, res.LinkedEntities)
		}
	}

	if strings.Contains(res.ModifiedText, "[[[") {
		t.Fatalf("modified text contains a nested link: %q", res.ModifiedText)
	}
	if got := strings.Count(res.ModifiedText, "[[Alice]]"); got != 1 {
		t.Fatalf("expected exactly one [[Alice]], got %d in %q", got, res.ModifiedText)
	}
	if !strings.Contains(res.ModifiedText, "[[Project X]]") {
		t.Fatalf("expected [[Project X]] in %q", res.ModifiedText)
	}
	if !strings.HasSuffix(res.ModifiedText, "Alice was pleased.") {
		t.Fatalf("expected the second, unlinked Alice mention to survive verbatim, got %q", res.ModifiedText)
	}
	if strings.Contains(res.ModifiedText, "[[project x]]") || strings.Contains(res.ModifiedText, "[[project X]]") {
		t.Fatalf("lowercase project x should never match the exact-case catalogue entry, got %q", res.ModifiedText)
	}
}

// TestResolveIsDeterministic exercises spec property 7: identical
// inputs, including a catalogue supplied in arbitrary order, always
// produce an identical Result.
func TestResolveIsDeterministic(t *testing.T) {
	catalogue := []Entity{
		{Key: "project-x", Display: "Project X", Category: "projects"},
		{Key: "alice", Display: "Alice", Category: "people"},
		{Key: "kge", Display: "Knowledge Graph Engine", Category: "technologies", Aliases: []string{"KGE"}},
	}
	text := "Alice built the Knowledge Graph Engine for Project X."
	cfg := defaultTestConfig()

	first := Resolve(text, "notes/a.md", catalogue, cfg)

	reversed := make([]Entity, len(catalogue))
	for i, e := range catalogue {
		reversed[len(catalogue)-1-i] = e
	}
	second := Resolve(text, "notes/a.md", reversed, cfg)

	if !reflect.DeepEqual(first, second) {
		t.Fatalf("Resolve is not deterministic under catalogue reordering:\nfirst=%+v\nsecond=%+v", first, second)
	}

	third := Resolve(text, "notes/a.md", catalogue, cfg)
	if !reflect.DeepEqual(first, third) {
		t.Fatalf("Resolve produced different results across repeated calls with identical inputs:\nfirst=%+v\nthird=%+v", first, third)
	}
}
