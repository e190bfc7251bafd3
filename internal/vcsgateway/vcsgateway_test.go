package vcsgateway

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"vaultgraph/internal/config"
)

func initRepo(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	run(t, root, "init")
	run(t, root, "config", "user.email", "test@vaultgraph.local")
	run(t, root, "config", "user.name", "vaultgraph test")
	return root
}

func run(t *testing.T, dir string, args ...string) {
	t.Helper()
	cmd := exec.Command("git", args...)
	cmd.Dir = dir
	if out, err := cmd.CombinedOutput(); err != nil {
		t.Fatalf("git %v: %v\n%s", args, err, out)
	}
}

func TestCommitNoRepository(t *testing.T) {
	root := t.TempDir()
	gw := New(config.CommitConfig{})
	result := gw.Commit(context.Background(), root, "note.md", "vaultgraph")
	if result.Success {
		t.Fatal("expected failure with no repository")
	}
	if result.Error != "no repository" {
		t.Fatalf("Error = %q", result.Error)
	}
}

func TestCommitCreatesCommit(t *testing.T) {
	root := initRepo(t)
	if err := os.WriteFile(filepath.Join(root, "note.md"), []byte("hello\n"), 0644); err != nil {
		t.Fatal(err)
	}

	gw := New(config.CommitConfig{MaxAttempts: 3, BaseDelayMs: 10, MaxDelayMs: 50})
	result := gw.Commit(context.Background(), root, "note.md", "vaultgraph")
	if !result.Success {
		t.Fatalf("Commit failed: %s", result.Error)
	}
	if result.Hash == "" || !result.UndoAvailable {
		t.Fatalf("result = %+v", result)
	}
}

func TestCommitNothingToCommit(t *testing.T) {
	root := initRepo(t)
	path := filepath.Join(root, "note.md")
	if err := os.WriteFile(path, []byte("hello\n"), 0644); err != nil {
		t.Fatal(err)
	}
	gw := New(config.CommitConfig{MaxAttempts: 3, BaseDelayMs: 10, MaxDelayMs: 50})

	first := gw.Commit(context.Background(), root, "note.md", "vaultgraph")
	if !first.Success {
		t.Fatalf("first commit failed: %s", first.Error)
	}

	second := gw.Commit(context.Background(), root, "note.md", "vaultgraph")
	if !second.Success {
		t.Fatalf("second commit should succeed as a no-op: %s", second.Error)
	}
	if second.UndoAvailable {
		t.Fatal("no-op commit should not report UndoAvailable")
	}
}

func TestUndoLastRevertsCommit(t *testing.T) {
	root := initRepo(t)
	if err := os.WriteFile(filepath.Join(root, "note.md"), []byte("hello\n"), 0644); err != nil {
		t.Fatal(err)
	}
	gw := New(config.CommitConfig{MaxAttempts: 3, BaseDelayMs: 10, MaxDelayMs: 50})
	result := gw.Commit(context.Background(), root, "note.md", "vaultgraph")
	if !result.Success {
		t.Fatalf("commit failed: %s", result.Error)
	}

	if err := gw.UndoLast(root, result.Hash); err != nil {
		t.Fatalf("UndoLast: %v", err)
	}

	if _, err := os.Stat(filepath.Join(root, "note.md")); !os.IsNotExist(err) {
		t.Fatalf("expected note.md removed after reverting its creation commit, stat err = %v", err)
	}
}

func TestUndoLastRefusesStaleHash(t *testing.T) {
	root := initRepo(t)
	if err := os.WriteFile(filepath.Join(root, "note.md"), []byte("hello\n"), 0644); err != nil {
		t.Fatal(err)
	}
	gw := New(config.CommitConfig{MaxAttempts: 3, BaseDelayMs: 10, MaxDelayMs: 50})
	_ = gw.Commit(context.Background(), root, "note.md", "vaultgraph")

	if err := gw.UndoLast(root, "deadbeef"); err == nil {
		t.Fatal("expected UndoLast to refuse a stale/incorrect hash")
	}
}
