package engine

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"vaultgraph/internal/logging"
	"vaultgraph/internal/markdown"
	"vaultgraph/internal/rename"
	"vaultgraph/internal/vaulterr"
	"vaultgraph/internal/writer"
)

// AddToSectionParams mirrors spec §6's
// vault_add_to_section({path, section, content, format, position, commit}).
type AddToSectionParams struct {
	Path     string
	Section  string
	Content  string
	Format   writer.Style
	Position writer.Position
	Commit   bool
}

// AddToSection inserts content, formatted per Format, into Section's
// body at Position, preserving the note's detected bullet style and
// list indentation.
func (e *Engine) AddToSection(p AddToSectionParams) MutationResult {
	err := e.mutate(func() error {
		doc, rerr := e.wr.Read(p.Path)
		if rerr != nil {
			return rerr
		}
		sec, found := writer.FindSection(doc.Content, p.Section)
		if !found {
			return vaulterr.New(vaulterr.NotFound, "AddToSection", p.Path, fmt.Errorf("section %q not found", p.Section))
		}
		bullet := markdown.DetectBulletStyle(strings.Split(doc.Content, "\n"))
		payload := writer.Format([]string{p.Content}, p.Format, bullet)
		newContent := writer.InsertInSection(doc.Content, *sec, payload, p.Position, writer.InsertOptions{PreserveListNesting: true})
		if werr := e.wr.Write(p.Path, newContent, doc.FrontMatter, doc.LineEnding); werr != nil {
			return werr
		}
		return e.refreshPath(p.Path)
	})
	return e.finishMutation(p.Path, p.Commit, err)
}

// RemoveFromSectionParams mirrors vault_remove_from_section.
type RemoveFromSectionParams struct {
	Path    string
	Section string
	Match   string // literal line content, or a substring to match
	Commit  bool
}

// RemoveFromSection deletes every line within Section whose content
// contains Match.
func (e *Engine) RemoveFromSection(p RemoveFromSectionParams) MutationResult {
	err := e.mutate(func() error {
		doc, rerr := e.wr.Read(p.Path)
		if rerr != nil {
			return rerr
		}
		sec, found := writer.FindSection(doc.Content, p.Section)
		if !found {
			return vaulterr.New(vaulterr.NotFound, "RemoveFromSection", p.Path, fmt.Errorf("section %q not found", p.Section))
		}
		lines := strings.Split(doc.Content, "\n")
		start, end := sec.ContentStartLine, sec.EndLine
		if start < 0 {
			start = 0
		}
		if end >= len(lines) {
			end = len(lines) - 1
		}
		var out []string
		out = append(out, lines[:start]...)
		for i := start; i <= end && i < len(lines); i++ {
			if strings.Contains(lines[i], p.Match) {
				continue
			}
			out = append(out, lines[i])
		}
		out = append(out, lines[end+1:]...)
		newContent := strings.Join(out, "\n")
		if werr := e.wr.Write(p.Path, newContent, doc.FrontMatter, doc.LineEnding); werr != nil {
			return werr
		}
		return e.refreshPath(p.Path)
	})
	return e.finishMutation(p.Path, p.Commit, err)
}

// ReplaceInSectionParams mirrors vault_replace_in_section.
type ReplaceInSectionParams struct {
	Path       string
	Section    string
	OldContent string
	NewContent string
	Commit     bool
}

// ReplaceInSection replaces the first occurrence of OldContent with
// NewContent, scoped to the lines within Section.
func (e *Engine) ReplaceInSection(p ReplaceInSectionParams) MutationResult {
	err := e.mutate(func() error {
		doc, rerr := e.wr.Read(p.Path)
		if rerr != nil {
			return rerr
		}
		sec, found := writer.FindSection(doc.Content, p.Section)
		if !found {
			return vaulterr.New(vaulterr.NotFound, "ReplaceInSection", p.Path, fmt.Errorf("section %q not found", p.Section))
		}
		lines := strings.Split(doc.Content, "\n")
		start, end := sec.ContentStartLine, sec.EndLine
		if start < 0 {
			start = 0
		}
		if end >= len(lines) {
			end = len(lines) - 1
		}
		replaced := false
		for i := start; i <= end && i < len(lines); i++ {
			if !replaced && strings.Contains(lines[i], p.OldContent) {
				lines[i] = strings.Replace(lines[i], p.OldContent, p.NewContent, 1)
				replaced = true
			}
		}
		if !replaced {
			return vaulterr.New(vaulterr.NotFound, "ReplaceInSection", p.Path, errors.New("old content not found in section"))
		}
		newContent := strings.Join(lines, "\n")
		if werr := e.wr.Write(p.Path, newContent, doc.FrontMatter, doc.LineEnding); werr != nil {
			return werr
		}
		return e.refreshPath(p.Path)
	})
	return e.finishMutation(p.Path, p.Commit, err)
}

// AddTaskParams mirrors vault_add_task.
type AddTaskParams struct {
	Path    string
	Section string
	Text    string
	Commit  bool
}

// AddTask appends an unchecked checkbox item ("- [ ] Text") to
// Section.
func (e *Engine) AddTask(p AddTaskParams) MutationResult {
	return e.AddToSection(AddToSectionParams{
		Path: p.Path, Section: p.Section, Content: p.Text,
		Format: writer.Task, Position: writer.Append, Commit: p.Commit,
	})
}

// ToggleTaskParams mirrors vault_toggle_task.
type ToggleTaskParams struct {
	Path   string
	Match  string // substring identifying the task line
	Commit bool
}

// ToggleTask flips the checkbox state ("[ ]" <-> "[x]") of the first
// task line whose content contains Match.
func (e *Engine) ToggleTask(p ToggleTaskParams) MutationResult {
	err := e.mutate(func() error {
		doc, rerr := e.wr.Read(p.Path)
		if rerr != nil {
			return rerr
		}
		lines := strings.Split(doc.Content, "\n")
		toggled := false
		for i, line := range lines {
			if toggled || !strings.Contains(line, p.Match) {
				continue
			}
			switch {
			case strings.Contains(line, "[ ]"):
				lines[i] = strings.Replace(line, "[ ]", "[x]", 1)
				toggled = true
			case strings.Contains(line, "[x]"):
				lines[i] = strings.Replace(line, "[x]", "[ ]", 1)
				toggled = true
			case strings.Contains(line, "[X]"):
				lines[i] = strings.Replace(line, "[X]", "[ ]", 1)
				toggled = true
			}
		}
		if !toggled {
			return vaulterr.New(vaulterr.NotFound, "ToggleTask", p.Path, errors.New("no matching task line"))
		}
		newContent := strings.Join(lines, "\n")
		if werr := e.wr.Write(p.Path, newContent, doc.FrontMatter, doc.LineEnding); werr != nil {
			return werr
		}
		return e.refreshPath(p.Path)
	})
	return e.finishMutation(p.Path, p.Commit, err)
}

// UpdateFrontmatterParams mirrors vault_update_frontmatter /
// vault_add_frontmatter_field — the same operation (set-or-overwrite
// a key), distinguished only by the caller's intent.
type UpdateFrontmatterParams struct {
	Path   string
	Key    string
	Value  markdown.Value
	Commit bool
}

// UpdateFrontmatter sets Key to Value in Path's front matter,
// appending it if new.
func (e *Engine) UpdateFrontmatter(p UpdateFrontmatterParams) MutationResult {
	err := e.mutate(func() error {
		doc, rerr := e.wr.Read(p.Path)
		if rerr != nil {
			return rerr
		}
		if doc.FrontMatter == nil {
			doc.FrontMatter = markdown.NewOrderedMap()
		}
		doc.FrontMatter.Set(p.Key, p.Value)
		if werr := e.wr.Write(p.Path, doc.Content, doc.FrontMatter, doc.LineEnding); werr != nil {
			return werr
		}
		return e.refreshPath(p.Path)
	})
	return e.finishMutation(p.Path, p.Commit, err)
}

// AddFrontmatterField is vault_add_frontmatter_field, an alias of
// UpdateFrontmatter kept distinct so callers name their intent (the
// spec lists them as separate tools even though the underlying
// front-matter edit is identical).
func (e *Engine) AddFrontmatterField(p UpdateFrontmatterParams) MutationResult {
	return e.UpdateFrontmatter(p)
}

// CreateNoteParams mirrors vault_create_note.
type CreateNoteParams struct {
	Path        string
	FrontMatter *markdown.OrderedMap
	Content     string
	Commit      bool
}

// CreateNote writes a new note at Path, failing if one already exists.
func (e *Engine) CreateNote(p CreateNoteParams) MutationResult {
	err := e.mutate(func() error {
		full := filepath.Join(e.vaultRoot, filepath.FromSlash(p.Path))
		if _, statErr := os.Stat(full); statErr == nil {
			return vaulterr.New(vaulterr.Conflict, "CreateNote", p.Path, errors.New("note already exists"))
		}
		if werr := e.wr.Write(p.Path, p.Content, p.FrontMatter, markdown.LF); werr != nil {
			return werr
		}
		return e.refreshPath(p.Path)
	})
	return e.finishMutation(p.Path, p.Commit, err)
}

// DeleteNoteParams mirrors vault_delete_note.
type DeleteNoteParams struct {
	Path   string
	Commit bool
}

// DeleteNote removes Path from disk and from the graph and store.
func (e *Engine) DeleteNote(p DeleteNoteParams) MutationResult {
	err := e.mutate(func() error {
		full := filepath.Join(e.vaultRoot, filepath.FromSlash(p.Path))
		if rerr := os.Remove(full); rerr != nil {
			return vaulterr.New(vaulterr.Io, "DeleteNote", p.Path, rerr)
		}
		if derr := e.idx.Delete(p.Path); derr != nil {
			return derr
		}
		return e.st.Delete(p.Path)
	})
	return e.finishMutation(p.Path, p.Commit, err)
}

// UndoLastMutation reverts the most recent successful commit via the
// version-control gateway's hash-verified undo.
func (e *Engine) UndoLastMutation() MutationResult {
	e.lastMu.Lock()
	last := e.lastTag
	e.lastMu.Unlock()
	if last == nil {
		return MutationResult{Success: false, Message: "no commit available to undo"}
	}
	if err := e.vcs.UndoLast(e.vaultRoot, last.hash); err != nil {
		return MutationResult{Success: false, Message: err.Error(), Path: last.path}
	}
	if err := e.mutate(func() error { return e.refreshPath(last.path) }); err != nil {
		return MutationResult{Success: false, Message: fmt.Sprintf("reverted but resync failed: %v", err), Path: last.path}
	}
	e.lastMu.Lock()
	e.lastTag = nil
	e.lastMu.Unlock()
	return MutationResult{Success: true, Message: "reverted last commit", Path: last.path}
}

// RenameTag delegates to internal/rename and, for every note the
// rename actually touched (and DryRun is false), re-syncs the graph
// and store for that path — the rename package itself never touches
// the index.
func (e *Engine) RenameTag(paths []string, oldTag, newTag string, opts rename.TagOptions) (*rename.Result, error) {
	res, err := e.renamer.RenameTag(paths, oldTag, newTag, opts)
	if err != nil {
		return res, err
	}
	auditRename(opts.DryRun, "rename_tag", oldTag+" -> "+newTag, res)
	if !opts.DryRun {
		if merr := e.mutate(func() error { return e.refreshPreviews(res) }); merr != nil {
			return res, merr
		}
	}
	return res, nil
}

// RenameField delegates to internal/rename with the same post-write
// resync as RenameTag.
func (e *Engine) RenameField(paths []string, oldKey, newKey string, opts rename.Options) (*rename.Result, error) {
	res, err := e.renamer.RenameField(paths, oldKey, newKey, opts)
	if err != nil {
		return res, err
	}
	auditRename(opts.DryRun, "rename_field", oldKey+" -> "+newKey, res)
	if !opts.DryRun {
		if merr := e.mutate(func() error { return e.refreshPreviews(res) }); merr != nil {
			return res, merr
		}
	}
	return res, nil
}

// MigrateFieldValues delegates to internal/rename with the same
// post-write resync as RenameTag.
func (e *Engine) MigrateFieldValues(paths []string, key string, mapping map[string]string, opts rename.Options) (*rename.Result, error) {
	res, err := e.renamer.MigrateFieldValues(paths, key, mapping, opts)
	if err != nil {
		return res, err
	}
	auditRename(opts.DryRun, "migrate_field_values", key, res)
	if !opts.DryRun {
		if merr := e.mutate(func() error { return e.refreshPreviews(res) }); merr != nil {
			return res, merr
		}
	}
	return res, nil
}

// auditRename records a rename/migrate operation's outcome under a
// fresh request ID, distinguishing a dry-run preview from an applied
// rewrite so the audit trail can tell them apart.
func auditRename(dryRun bool, action, detail string, res *rename.Result) {
	eventType := logging.AuditRenameApply
	if dryRun {
		eventType = logging.AuditRenamePreview
	}
	logging.AuditWithRequest(uuid.New().String()).Log(logging.AuditEvent{
		EventType: eventType, Category: string(logging.CategoryTools),
		Action: action, Target: detail, Success: true,
		Fields: map[string]interface{}{"affected_notes": res.AffectedNotes, "total_changes": res.TotalChanges},
	})
}

func (e *Engine) refreshPreviews(res *rename.Result) error {
	for _, prev := range res.Previews {
		if err := e.refreshPath(prev.Path); err != nil {
			return err
		}
	}
	return nil
}

// refreshPath re-parses path into the graph index and resyncs its
// store rows. Always runs on the writer goroutine via mutate, so it
// never races a settle-batch upsert for the same path.
func (e *Engine) refreshPath(path string) error {
	if err := e.idx.Upsert(context.Background(), e.vaultRoot, path); err != nil {
		return err
	}
	return e.syncStorePath(path)
}

// finishMutation converts a mutate error into a MutationResult, and on
// success optionally commits path through the version-control gateway.
// Every outcome, including the commit result's message, is recorded
// under a fresh request ID in the audit trail.
func (e *Engine) finishMutation(path string, commit bool, err error) MutationResult {
	reqID := uuid.New().String()
	if err != nil {
		logging.AuditWithRequest(reqID).Log(logging.AuditEvent{
			EventType: logging.AuditMutationError, Category: string(logging.CategoryTools),
			Target: path, Action: "mutate", Success: false, Error: err.Error(),
		})
		return MutationResult{Success: false, Message: err.Error(), Path: path}
	}
	res := MutationResult{Success: true, Message: "ok", Path: path}
	if commit && e.cfg.Commit.Enabled {
		cr := e.vcs.Commit(context.Background(), e.vaultRoot, path, e.cfg.Commit.CommitTagLabel)
		res.CommitHash = cr.Hash
		res.UndoAvailable = cr.UndoAvailable
		if !cr.Success {
			res.Message = "write succeeded, commit failed: " + cr.Error
		} else {
			e.lastMu.Lock()
			e.lastTag = &lastCommit{path: path, hash: cr.Hash}
			e.lastMu.Unlock()
		}
	}
	logging.AuditWithRequest(reqID).Log(logging.AuditEvent{
		EventType: logging.AuditMutationApply, Category: string(logging.CategoryTools),
		Target: path, Action: "mutate", Success: true, DurationMs: 0, Message: res.Message,
	})
	return res
}
