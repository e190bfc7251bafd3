package sweep

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"vaultgraph/internal/config"
	"vaultgraph/internal/graph"
	"vaultgraph/internal/pathfilter"
)

func writeNote(t *testing.T, root, relPath, content string) {
	t.Helper()
	full := filepath.Join(root, filepath.FromSlash(relPath))
	if err := os.MkdirAll(filepath.Dir(full), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(full, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
}

func TestSweepFindsDeadLinksHubsAndOrphans(t *testing.T) {
	root := t.TempDir()
	writeNote(t, root, "Hub.md", "# Hub\nLinks to [[A]], [[B]], [[C]], [[Ghost]].\n")
	writeNote(t, root, "A.md", "Back to [[Hub]].\n")
	writeNote(t, root, "B.md", "Back to [[Hub]].\n")
	writeNote(t, root, "C.md", "Back to [[Hub]].\n")
	writeNote(t, root, "Lonely.md", "No links in or out.\n")

	idx := graph.NewIndex(pathfilter.New())
	if err := idx.Rebuild(context.Background(), root); err != nil {
		t.Fatal(err)
	}

	sweeper := NewSweeper(config.SweepConfig{HubThreshold: 2}, nil)
	report, err := sweeper.Run(context.Background(), idx)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if report.DeadLinkTotal != 1 {
		t.Fatalf("DeadLinkTotal = %d, want 1", report.DeadLinkTotal)
	}
	if len(report.DeadLinks) != 1 || report.DeadLinks[0].TargetKey != "ghost" {
		t.Fatalf("DeadLinks = %+v", report.DeadLinks)
	}

	foundHub := false
	for _, h := range report.Hubs {
		if h.Path == "Hub.md" {
			foundHub = true
			if h.ForwardCount != 3 || h.BacklinkCount != 3 {
				t.Fatalf("Hub.md counts = %+v", h)
			}
		}
	}
	if !foundHub {
		t.Fatalf("expected Hub.md to be reported as a hub, got %+v", report.Hubs)
	}

	foundOrphan := false
	for _, o := range report.Orphans {
		if o == "Lonely.md" {
			foundOrphan = true
		}
	}
	if !foundOrphan {
		t.Fatalf("expected Lonely.md to be reported as an orphan, got %v", report.Orphans)
	}
}
