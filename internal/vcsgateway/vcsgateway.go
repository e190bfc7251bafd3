// Package vcsgateway implements vaultgraph's version-control gateway
// (spec §4.I): single-path commits with retry-on-lock-contention, and
// hash-verified undo. Grounded on the teacher's exec-wrapping
// convention (shell out, inspect stderr/output strings rather than
// parsing structured tool output) and on the broader pack's use of
// github.com/cenkalti/backoff/v4 for exponential retry, whose
// ExponentialBackOff contract is exactly the spec's
// baseDelayMs*2^attempt-bounded-by-maxDelayMs formula.
package vcsgateway

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"vaultgraph/internal/config"
	"vaultgraph/internal/logging"
)

// CommitResult is the outcome of a single Commit call.
type CommitResult struct {
	Success           bool
	Hash              string
	Error             string
	UndoAvailable     bool
	StaleLockDetected bool
	LockAgeMs         int64
}

// Gateway commits and reverts single paths against the git repository
// rooted at a vault.
type Gateway struct {
	cfg config.CommitConfig
}

// New returns a Gateway using cfg's retry/stale-lock parameters.
func New(cfg config.CommitConfig) *Gateway {
	return &Gateway{cfg: cfg}
}

// lockSignatures are git's own wording for index-lock contention,
// matched against combined stdout+stderr.
var lockSignatures = []string{
	"Unable to create",
	"index.lock",
	"already exists",
}

func isLockContention(output string) bool {
	for _, needle := range lockSignatures {
		if strings.Contains(output, needle) {
			return true
		}
	}
	return false
}

// Commit stages changedPath and commits it with a message prefixed by
// tag. Lock-contention failures are retried with exponential backoff;
// any other failure is permanent. A "nothing to commit" outcome is a
// success with UndoAvailable=false, since no hash was produced.
func (g *Gateway) Commit(ctx context.Context, vaultRoot, changedPath, tag string) *CommitResult {
	if !isRepo(vaultRoot) {
		return &CommitResult{Success: false, Error: "no repository", UndoAvailable: false}
	}

	result := &CommitResult{}
	attempt := 0

	maxAttempts := g.cfg.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	baseDelay := g.cfg.BaseDelayMs
	if baseDelay <= 0 {
		baseDelay = 200
	}
	maxDelay := g.cfg.MaxDelayMs
	if maxDelay <= 0 {
		maxDelay = 2000
	}
	staleLockMs := g.cfg.StaleLockMs
	if staleLockMs <= 0 {
		staleLockMs = 30000
	}

	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = time.Duration(baseDelay) * time.Millisecond
	eb.MaxInterval = time.Duration(maxDelay) * time.Millisecond
	eb.Multiplier = 2
	eb.MaxElapsedTime = 0
	if !g.cfg.Jitter {
		eb.RandomizationFactor = 0
	}
	policy := backoff.WithContext(backoff.WithMaxRetries(eb, uint64(maxAttempts-1)), ctx)

	op := func() error {
		attempt++

		if age, stale := staleLockAge(vaultRoot, time.Duration(staleLockMs)*time.Millisecond); stale {
			result.StaleLockDetected = true
			result.LockAgeMs = age.Milliseconds()
			logging.VCSWarn("commit: stale lock detected, age=%s", age)
		}

		if out, err := runGit(vaultRoot, "add", "--", changedPath); err != nil {
			if isLockContention(out) {
				logging.VCSWarn("commit: lock contention staging %s (attempt %d/%d)", changedPath, attempt, maxAttempts)
				return fmt.Errorf("git add: %s", out)
			}
			return backoff.Permanent(fmt.Errorf("git add: %s: %w", out, err))
		}

		out, err := runGit(vaultRoot, "commit", "-m", tag+": "+changedPath, "--", changedPath)
		if err != nil {
			if strings.Contains(out, "nothing to commit") {
				result.Success = true
				result.UndoAvailable = false
				return nil
			}
			if isLockContention(out) {
				logging.VCSWarn("commit: lock contention committing %s (attempt %d/%d)", changedPath, attempt, maxAttempts)
				return fmt.Errorf("git commit: %s", out)
			}
			return backoff.Permanent(fmt.Errorf("git commit: %s: %w", out, err))
		}

		hashOut, herr := runGit(vaultRoot, "rev-parse", "HEAD")
		if herr != nil {
			return backoff.Permanent(fmt.Errorf("git rev-parse HEAD: %s: %w", hashOut, herr))
		}
		result.Success = true
		result.Hash = strings.TrimSpace(hashOut)
		result.UndoAvailable = true
		return nil
	}

	if err := backoff.Retry(op, policy); err != nil {
		result.Success = false
		result.Error = err.Error()
		result.UndoAvailable = false
		logging.VCSError("commit failed after %d attempts: %v", attempt, err)
	}

	return result
}

// UndoLast reverts the commit at expectedHash via `git revert`,
// refusing if HEAD has since moved — a destructive `reset --hard`
// would discard any commits made after it, including ones unrelated
// to this gateway.
func (g *Gateway) UndoLast(vaultRoot, expectedHash string) error {
	head, err := runGit(vaultRoot, "rev-parse", "HEAD")
	if err != nil {
		return fmt.Errorf("vcsgateway: resolve HEAD: %s: %w", head, err)
	}
	if strings.TrimSpace(head) != expectedHash {
		return fmt.Errorf("vcsgateway: HEAD %s no longer matches recorded commit %s, refusing undo", strings.TrimSpace(head), expectedHash)
	}
	if out, err := runGit(vaultRoot, "revert", "--no-edit", expectedHash); err != nil {
		return fmt.Errorf("vcsgateway: revert %s: %s: %w", expectedHash, out, err)
	}
	logging.VCS("reverted commit %s", expectedHash)
	return nil
}

func isRepo(vaultRoot string) bool {
	_, err := runGit(vaultRoot, "rev-parse", "--is-inside-work-tree")
	return err == nil
}

// staleLockAge reports .git/index.lock's age, and whether it exceeds
// threshold. The gateway never deletes the lock file itself.
func staleLockAge(vaultRoot string, threshold time.Duration) (time.Duration, bool) {
	lockPath := filepath.Join(vaultRoot, ".git", "index.lock")
	info, err := os.Stat(lockPath)
	if err != nil {
		return 0, false
	}
	age := time.Since(info.ModTime())
	return age, age >= threshold
}

func runGit(vaultRoot string, args ...string) (string, error) {
	cmd := exec.Command("git", args...)
	cmd.Dir = vaultRoot
	var buf bytes.Buffer
	cmd.Stdout = &buf
	cmd.Stderr = &buf
	err := cmd.Run()
	return buf.String(), err
}
