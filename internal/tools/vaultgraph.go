// Package tools also hosts vaultgraph's concrete tool wiring:
// RegisterEngine builds a Registry whose entries point at one internal/engine.Engine,
// the shape an external MCP-style transport would load to expose the
// engine's read and write operations (spec §6), adapted from the
// teacher's internal/mcp tool-schema types (MCPTool, ToolSummary,
// RenderMode) but pointed at this engine instead of third-party MCP
// servers.
package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"vaultgraph/internal/engine"
	"vaultgraph/internal/markdown"
	"vaultgraph/internal/rename"
	"vaultgraph/internal/writer"
)

func argString(args map[string]any, key string) string {
	if v, ok := args[key].(string); ok {
		return v
	}
	return ""
}

func argBool(args map[string]any, key string) bool {
	if v, ok := args[key].(bool); ok {
		return v
	}
	return false
}

func argInt(args map[string]any, key string) int {
	switch v := args[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	}
	return 0
}

func argStringSlice(args map[string]any, key string) []string {
	raw, ok := args[key].([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, v := range raw {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

func argStringMap(args map[string]any, key string) map[string]string {
	raw, ok := args[key].(map[string]any)
	if !ok {
		return nil
	}
	out := make(map[string]string, len(raw))
	for k, v := range raw {
		if s, ok := v.(string); ok {
			out[k] = s
		}
	}
	return out
}

func toJSON(v any) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("tools: marshal result: %w", err)
	}
	return string(data), nil
}

// RegisterEngine builds and registers every vaultgraph tool named in §6
// against eng, returning the populated Registry.
func RegisterEngine(eng *engine.Engine) (*Registry, error) {
	reg := NewRegistry()

	readTools := []*Tool{
		{
			Name: "get_backlinks", Category: CategoryRead,
			Description: "List every note that links to the given path.",
			Schema:      ToolSchema{Required: []string{"path"}, Properties: map[string]Property{"path": {Type: "string"}}},
			Execute: func(ctx context.Context, args map[string]any) (string, error) {
				return toJSON(eng.GetBacklinks(argString(args, "path")))
			},
		},
		{
			Name: "get_forward_links", Category: CategoryRead,
			Description: "List the resolved outgoing link targets of the given path.",
			Schema:      ToolSchema{Required: []string{"path"}, Properties: map[string]Property{"path": {Type: "string"}}},
			Execute: func(ctx context.Context, args map[string]any) (string, error) {
				return toJSON(eng.GetForwardLinks(argString(args, "path")))
			},
		},
		{
			Name: "search", Category: CategoryRead,
			Description: "Search notes by full text or by metadata filters.",
			Schema: ToolSchema{Properties: map[string]Property{
				"scope": {Type: "string", Enum: []any{"full_text", "metadata"}},
				"query": {Type: "string"}, "title_contains": {Type: "string"},
				"frontmatter_has": {Type: "string"}, "folder": {Type: "string"},
				"limit": {Type: "integer"},
			}},
			Execute: func(ctx context.Context, args map[string]any) (string, error) {
				scope := engine.ScopeMetadata
				if argString(args, "scope") == string(engine.ScopeFullText) {
					scope = engine.ScopeFullText
				}
				paths, err := eng.Search(engine.SearchParams{
					Scope: scope, Query: argString(args, "query"), TitleContains: argString(args, "title_contains"),
					FrontmatterHas: argString(args, "frontmatter_has"), Folder: argString(args, "folder"), Limit: argInt(args, "limit"),
				})
				if err != nil {
					return "", err
				}
				return toJSON(paths)
			},
		},
		{
			Name: "get_recent_notes", Category: CategoryRead,
			Description: "List the most recently modified notes.",
			Schema:      ToolSchema{Properties: map[string]Property{"limit": {Type: "integer"}}},
			Execute: func(ctx context.Context, args map[string]any) (string, error) {
				return toJSON(eng.GetRecentNotes(argInt(args, "limit")))
			},
		},
		{
			Name: "get_note_metadata", Category: CategoryRead,
			Description: "Get a note's title, aliases, tags, and link counts.",
			Schema:      ToolSchema{Required: []string{"path"}, Properties: map[string]Property{"path": {Type: "string"}}},
			Execute: func(ctx context.Context, args map[string]any) (string, error) {
				meta, ok := eng.GetNoteMetadata(argString(args, "path"))
				if !ok {
					return "", fmt.Errorf("note not found: %s", argString(args, "path"))
				}
				return toJSON(meta)
			},
		},
		{
			Name: "find_hub_notes", Category: CategoryRead,
			Description: "Find notes whose combined in/out link degree meets a threshold.",
			Schema: ToolSchema{Properties: map[string]Property{
				"min_links": {Type: "integer"}, "limit": {Type: "integer"},
			}},
			Execute: func(ctx context.Context, args map[string]any) (string, error) {
				return toJSON(eng.FindHubNotes(argInt(args, "min_links"), argInt(args, "limit")))
			},
		},
		{
			Name: "find_orphan_notes", Category: CategoryRead,
			Description: "Find notes with no inbound or outbound links.",
			Schema:      ToolSchema{Properties: map[string]Property{"limit": {Type: "integer"}}},
			Execute: func(ctx context.Context, args map[string]any) (string, error) {
				return toJSON(eng.FindOrphanNotes(argInt(args, "limit")))
			},
		},
		{
			Name: "find_similar_entities", Category: CategoryRead,
			Description: "Find entities whose embedding is nearest a given entity's, by cosine distance. Empty when the entity has no stored embedding, which is the case for every entity the engine writes.",
			Schema: ToolSchema{Required: []string{"entity_key"}, Properties: map[string]Property{
				"entity_key": {Type: "string"}, "limit": {Type: "integer"},
			}},
			Execute: func(ctx context.Context, args map[string]any) (string, error) {
				rows, ok, err := eng.FindSimilarEntities(argString(args, "entity_key"), argInt(args, "limit"))
				if err != nil {
					return "", err
				}
				if !ok {
					return toJSON([]engine.SimilarEntity{})
				}
				return toJSON(rows)
			},
		},
		{
			Name: "graph_analysis", Category: CategoryHygiene,
			Description: "Read a section of the cached hygiene sweep report.",
			Schema: ToolSchema{Required: []string{"mode"}, Properties: map[string]Property{
				"mode": {Type: "string", Enum: []any{"hubs", "orphans", "dead_links", "top_unlinked"}},
			}},
			Execute: func(ctx context.Context, args map[string]any) (string, error) {
				return toJSON(eng.GraphAnalysis(engine.GraphAnalysisMode(argString(args, "mode"))))
			},
		},
		{
			Name: "get_folder_structure", Category: CategoryRead,
			Description: "Return the vault's folder tree with per-folder note counts.",
			Schema:      ToolSchema{},
			Execute: func(ctx context.Context, args map[string]any) (string, error) {
				return toJSON(eng.GetFolderStructure())
			},
		},
		{
			Name: "suggest_wikilinks", Category: CategoryRead,
			Description: "Suggest or insert [[wikilinks]] for recognised entity mentions in text.",
			Schema: ToolSchema{Required: []string{"text"}, Properties: map[string]Property{
				"text": {Type: "string"}, "source_path": {Type: "string"},
			}},
			Execute: func(ctx context.Context, args map[string]any) (string, error) {
				res, err := eng.SuggestWikilinks(argString(args, "text"), argString(args, "source_path"))
				if err != nil {
					return "", err
				}
				return toJSON(res)
			},
		},
		{
			Name: "validate_links", Category: CategoryHygiene,
			Description: "List every unresolved wikilink target, ranked by reference count.",
			Schema:      ToolSchema{},
			Execute: func(ctx context.Context, args map[string]any) (string, error) {
				return toJSON(eng.ValidateLinks())
			},
		},
	}

	writeTools := []*Tool{
		{
			Name: "vault_add_to_section", Category: CategoryWrite,
			Description: "Insert formatted content into a note section.",
			Schema: ToolSchema{Required: []string{"path", "section", "content"}, Properties: map[string]Property{
				"path": {Type: "string"}, "section": {Type: "string"}, "content": {Type: "string"},
				"format": {Type: "string", Enum: []any{"plain", "bullet", "task", "timestamp_bullet"}},
				"position": {Type: "string", Enum: []any{"append", "prepend"}}, "commit": {Type: "boolean"},
			}},
			Execute: func(ctx context.Context, args map[string]any) (string, error) {
				return toJSON(eng.AddToSection(engine.AddToSectionParams{
					Path: argString(args, "path"), Section: argString(args, "section"), Content: argString(args, "content"),
					Format: parseStyle(argString(args, "format")), Position: parsePosition(argString(args, "position")),
					Commit: argBool(args, "commit"),
				}))
			},
		},
		{
			Name: "vault_remove_from_section", Category: CategoryWrite,
			Description: "Remove matching lines from a note section.",
			Schema: ToolSchema{Required: []string{"path", "section", "match"}, Properties: map[string]Property{
				"path": {Type: "string"}, "section": {Type: "string"}, "match": {Type: "string"}, "commit": {Type: "boolean"},
			}},
			Execute: func(ctx context.Context, args map[string]any) (string, error) {
				return toJSON(eng.RemoveFromSection(engine.RemoveFromSectionParams{
					Path: argString(args, "path"), Section: argString(args, "section"), Match: argString(args, "match"),
					Commit: argBool(args, "commit"),
				}))
			},
		},
		{
			Name: "vault_replace_in_section", Category: CategoryWrite,
			Description: "Replace the first matching occurrence within a note section.",
			Schema: ToolSchema{Required: []string{"path", "section", "old_content", "new_content"}, Properties: map[string]Property{
				"path": {Type: "string"}, "section": {Type: "string"}, "old_content": {Type: "string"},
				"new_content": {Type: "string"}, "commit": {Type: "boolean"},
			}},
			Execute: func(ctx context.Context, args map[string]any) (string, error) {
				return toJSON(eng.ReplaceInSection(engine.ReplaceInSectionParams{
					Path: argString(args, "path"), Section: argString(args, "section"),
					OldContent: argString(args, "old_content"), NewContent: argString(args, "new_content"),
					Commit: argBool(args, "commit"),
				}))
			},
		},
		{
			Name: "vault_add_task", Category: CategoryWrite,
			Description: "Append an unchecked task to a note section.",
			Schema: ToolSchema{Required: []string{"path", "section", "text"}, Properties: map[string]Property{
				"path": {Type: "string"}, "section": {Type: "string"}, "text": {Type: "string"}, "commit": {Type: "boolean"},
			}},
			Execute: func(ctx context.Context, args map[string]any) (string, error) {
				return toJSON(eng.AddTask(engine.AddTaskParams{
					Path: argString(args, "path"), Section: argString(args, "section"), Text: argString(args, "text"),
					Commit: argBool(args, "commit"),
				}))
			},
		},
		{
			Name: "vault_toggle_task", Category: CategoryWrite,
			Description: "Toggle a task line's checkbox state.",
			Schema: ToolSchema{Required: []string{"path", "match"}, Properties: map[string]Property{
				"path": {Type: "string"}, "match": {Type: "string"}, "commit": {Type: "boolean"},
			}},
			Execute: func(ctx context.Context, args map[string]any) (string, error) {
				return toJSON(eng.ToggleTask(engine.ToggleTaskParams{
					Path: argString(args, "path"), Match: argString(args, "match"), Commit: argBool(args, "commit"),
				}))
			},
		},
		{
			Name: "vault_update_frontmatter", Category: CategoryWrite,
			Description: "Set or overwrite a front-matter field.",
			Schema: ToolSchema{Required: []string{"path", "key", "value"}, Properties: map[string]Property{
				"path": {Type: "string"}, "key": {Type: "string"}, "value": {Type: "string"}, "commit": {Type: "boolean"},
			}},
			Execute: func(ctx context.Context, args map[string]any) (string, error) {
				return toJSON(eng.UpdateFrontmatter(engine.UpdateFrontmatterParams{
					Path: argString(args, "path"), Key: argString(args, "key"),
					Value: valueFromArg(args["value"]), Commit: argBool(args, "commit"),
				}))
			},
		},
		{
			Name: "vault_add_frontmatter_field", Category: CategoryWrite,
			Description: "Add a new front-matter field.",
			Schema: ToolSchema{Required: []string{"path", "key", "value"}, Properties: map[string]Property{
				"path": {Type: "string"}, "key": {Type: "string"}, "value": {Type: "string"}, "commit": {Type: "boolean"},
			}},
			Execute: func(ctx context.Context, args map[string]any) (string, error) {
				return toJSON(eng.AddFrontmatterField(engine.UpdateFrontmatterParams{
					Path: argString(args, "path"), Key: argString(args, "key"),
					Value: valueFromArg(args["value"]), Commit: argBool(args, "commit"),
				}))
			},
		},
		{
			Name: "vault_create_note", Category: CategoryWrite,
			Description: "Create a new note.",
			Schema: ToolSchema{Required: []string{"path"}, Properties: map[string]Property{
				"path": {Type: "string"}, "content": {Type: "string"}, "commit": {Type: "boolean"},
			}},
			Execute: func(ctx context.Context, args map[string]any) (string, error) {
				return toJSON(eng.CreateNote(engine.CreateNoteParams{
					Path: argString(args, "path"), FrontMatter: frontMatterFromArg(args["front_matter"]),
					Content: argString(args, "content"), Commit: argBool(args, "commit"),
				}))
			},
		},
		{
			Name: "vault_delete_note", Category: CategoryWrite,
			Description: "Delete a note.",
			Schema: ToolSchema{Required: []string{"path"}, Properties: map[string]Property{
				"path": {Type: "string"}, "commit": {Type: "boolean"},
			}},
			Execute: func(ctx context.Context, args map[string]any) (string, error) {
				return toJSON(eng.DeleteNote(engine.DeleteNoteParams{Path: argString(args, "path"), Commit: argBool(args, "commit")}))
			},
		},
		{
			Name: "vault_undo_last_mutation", Category: CategoryVCS,
			Description: "Revert the most recent committed mutation.",
			Schema:      ToolSchema{},
			Execute: func(ctx context.Context, args map[string]any) (string, error) {
				return toJSON(eng.UndoLastMutation())
			},
		},
	}

	renameTools := []*Tool{
		{
			Name: "rename_tag", Category: CategoryRename,
			Description: "Rename a tag across matching notes, in front matter and inline.",
			Schema: ToolSchema{Required: []string{"old_tag", "new_tag"}, Properties: map[string]Property{
				"paths": {Type: "array", Items: &PropertyItems{Type: "string"}}, "old_tag": {Type: "string"},
				"new_tag": {Type: "string"}, "folder": {Type: "string"}, "rename_children": {Type: "boolean"},
				"dry_run": {Type: "boolean"},
			}},
			Execute: func(ctx context.Context, args map[string]any) (string, error) {
				res, err := eng.RenameTag(argStringSlice(args, "paths"), argString(args, "old_tag"), argString(args, "new_tag"),
					rename.TagOptions{Options: rename.Options{Folder: argString(args, "folder"), DryRun: argBool(args, "dry_run")}, RenameChildren: argBool(args, "rename_children")})
				if err != nil {
					return "", err
				}
				return toJSON(res)
			},
		},
		{
			Name: "rename_field", Category: CategoryRename,
			Description: "Rename a front-matter key across matching notes.",
			Schema: ToolSchema{Required: []string{"old_key", "new_key"}, Properties: map[string]Property{
				"paths": {Type: "array", Items: &PropertyItems{Type: "string"}}, "old_key": {Type: "string"},
				"new_key": {Type: "string"}, "folder": {Type: "string"}, "dry_run": {Type: "boolean"},
			}},
			Execute: func(ctx context.Context, args map[string]any) (string, error) {
				res, err := eng.RenameField(argStringSlice(args, "paths"), argString(args, "old_key"), argString(args, "new_key"),
					rename.Options{Folder: argString(args, "folder"), DryRun: argBool(args, "dry_run")})
				if err != nil {
					return "", err
				}
				return toJSON(res)
			},
		},
		{
			Name: "migrate_field_values", Category: CategoryRename,
			Description: "Rewrite a front-matter field's values through an enumerated mapping.",
			Schema: ToolSchema{Required: []string{"key", "mapping"}, Properties: map[string]Property{
				"paths": {Type: "array", Items: &PropertyItems{Type: "string"}}, "key": {Type: "string"},
				"folder": {Type: "string"}, "dry_run": {Type: "boolean"},
			}},
			Execute: func(ctx context.Context, args map[string]any) (string, error) {
				res, err := eng.MigrateFieldValues(argStringSlice(args, "paths"), argString(args, "key"), argStringMap(args, "mapping"),
					rename.Options{Folder: argString(args, "folder"), DryRun: argBool(args, "dry_run")})
				if err != nil {
					return "", err
				}
				return toJSON(res)
			},
		},
	}

	for _, t := range readTools {
		if err := reg.Register(t); err != nil {
			return nil, err
		}
	}
	for _, t := range writeTools {
		if err := reg.Register(t); err != nil {
			return nil, err
		}
	}
	for _, t := range renameTools {
		if err := reg.Register(t); err != nil {
			return nil, err
		}
	}
	return reg, nil
}

func parseStyle(s string) writer.Style {
	switch s {
	case "bullet":
		return writer.Bullet
	case "task":
		return writer.Task
	case "timestamp_bullet":
		return writer.TimestampBullet
	default:
		return writer.Plain
	}
}

func parsePosition(s string) writer.Position {
	if s == "prepend" {
		return writer.Prepend
	}
	return writer.Append
}

// valueFromArg wraps a raw JSON-decoded argument as a front-matter
// scalar: strings, numbers and booleans keep their kind, and any other
// value is stored as its fmt %v string.
func valueFromArg(v any) markdown.Value {
	switch t := v.(type) {
	case string:
		return markdown.StringValue(t)
	case float64:
		return markdown.NumberValue(t)
	case bool:
		return markdown.BoolValue(t)
	default:
		return markdown.StringValue(fmt.Sprintf("%v", v))
	}
}

// frontMatterFromArg builds an OrderedMap from a JSON object argument,
// iterating Go's (unordered) map — acceptable for vault_create_note
// since a brand-new note has no existing key order to preserve.
func frontMatterFromArg(v any) *markdown.OrderedMap {
	raw, ok := v.(map[string]any)
	if !ok || len(raw) == 0 {
		return nil
	}
	om := markdown.NewOrderedMap()
	for k, val := range raw {
		om.Set(k, valueFromArg(val))
	}
	return om
}
