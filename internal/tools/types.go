// Package tools exposes the vault engine's operations as a registry of
// named, schema-validated callables, so a CLI command or an external
// caller can look up and invoke "get_backlinks" or "vault_add_task"
// without depending on the engine's internal types directly.
package tools

import (
	"context"
)

// ToolCategory classifies tools for grouped listing and filtering.
type ToolCategory string

const (
	// CategoryRead covers graph/store queries that never touch a file.
	CategoryRead ToolCategory = "read"

	// CategoryWrite covers structural edits routed through the writer.
	CategoryWrite ToolCategory = "write"

	// CategoryHygiene covers sweep metrics and link validation.
	CategoryHygiene ToolCategory = "hygiene"

	// CategoryRename covers vault-wide tag/field rename operations.
	CategoryRename ToolCategory = "rename"

	// CategoryVCS covers commit and undo operations against the gateway.
	CategoryVCS ToolCategory = "vcs"
)

// Property describes a single parameter property for JSON schema.
type Property struct {
	Type        string `json:"type"`
	Description string `json:"description"`
	Default     any    `json:"default,omitempty"`
	Enum        []any  `json:"enum,omitempty"`
	// Items describes array element schema (required for type="array")
	Items *PropertyItems `json:"items,omitempty"`
}

// PropertyItems describes the schema for array elements.
type PropertyItems struct {
	Type string `json:"type"`
}

// ToolSchema defines the JSON schema for tool arguments.
// This enables LLM tool calling with proper validation.
type ToolSchema struct {
	// Required lists parameters that must be provided.
	Required []string `json:"required"`

	// Properties describes each parameter.
	Properties map[string]Property `json:"properties"`
}

// ExecuteFunc is the signature for tool execution.
// Returns the result string and any error.
type ExecuteFunc func(ctx context.Context, args map[string]any) (string, error)

// Tool defines a modular tool that any agent can use.
// Tools are registered in the Registry and looked up by name or
// category.
type Tool struct {
	// Name is the unique identifier for the tool.
	// Registry.Register rejects a second tool with the same name.
	Name string

	// Description explains what the tool does.
	// Used for LLM tool calling and documentation.
	Description string

	// Category groups the tool for Registry.GetByCategory.
	Category ToolCategory

	// Execute runs the tool with the given arguments.
	Execute ExecuteFunc

	// Schema defines the expected arguments.
	Schema ToolSchema

	// Priority is used when multiple tools match.
	// Higher priority tools are preferred (default 50).
	Priority int

	// RequiresContext indicates if the tool needs session context.
	RequiresContext bool
}

// Validate checks if the tool definition is valid.
func (t *Tool) Validate() error {
	if t.Name == "" {
		return ErrToolNameEmpty
	}
	if t.Execute == nil {
		return ErrToolExecuteNil
	}
	return nil
}

// WithPriority returns a copy of the tool with the given priority.
func (t *Tool) WithPriority(priority int) *Tool {
	copy := *t
	copy.Priority = priority
	return &copy
}

// ToolResult wraps the result of tool execution with metadata.
type ToolResult struct {
	// ToolName identifies which tool was executed.
	ToolName string

	// Result is the string output from the tool.
	Result string

	// Error is set if the tool failed.
	Error error

	// DurationMs is how long execution took.
	DurationMs int64
}

// IsSuccess returns true if the tool executed without error.
func (r *ToolResult) IsSuccess() bool {
	return r.Error == nil
}
