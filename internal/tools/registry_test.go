package tools

import (
	"context"
	"errors"
	"testing"
)

func TestNewRegistry(t *testing.T) {
	reg := NewRegistry()
	if reg == nil {
		t.Fatal("NewRegistry returned nil")
	}
	if reg.Count() != 0 {
		t.Errorf("new registry should be empty, got %d tools", reg.Count())
	}
}

func TestRegisterAndGet(t *testing.T) {
	reg := NewRegistry()

	tool := &Tool{
		Name:        "get_backlinks",
		Description: "List notes linking to a given note",
		Category:    CategoryRead,
		Execute: func(ctx context.Context, args map[string]any) (string, error) {
			return "success", nil
		},
		Schema: ToolSchema{
			Required: []string{},
		},
	}

	if err := reg.Register(tool); err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	got := reg.Get("get_backlinks")
	if got == nil {
		t.Fatal("Get returned nil for registered tool")
	}
	if got.Name != "get_backlinks" {
		t.Errorf("got name %q, want %q", got.Name, "get_backlinks")
	}
}

func TestRegisterDuplicate(t *testing.T) {
	reg := NewRegistry()

	tool := &Tool{
		Name:     "dupe",
		Category: CategoryRead,
		Execute: func(ctx context.Context, args map[string]any) (string, error) {
			return "", nil
		},
	}

	if err := reg.Register(tool); err != nil {
		t.Fatalf("first Register failed: %v", err)
	}

	err := reg.Register(tool)
	if err == nil {
		t.Fatal("expected error for duplicate registration")
	}
}

func TestRegisterValidation(t *testing.T) {
	reg := NewRegistry()

	tests := []struct {
		name    string
		tool    *Tool
		wantErr error
	}{
		{
			name:    "empty name",
			tool:    &Tool{Name: "", Execute: func(ctx context.Context, args map[string]any) (string, error) { return "", nil }},
			wantErr: ErrToolNameEmpty,
		},
		{
			name:    "nil execute",
			tool:    &Tool{Name: "test", Execute: nil},
			wantErr: ErrToolExecuteNil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := reg.Register(tt.tool)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("expected error %v, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestGetByCategory(t *testing.T) {
	reg := NewRegistry()

	tools := []*Tool{
		{Name: "search", Category: CategoryRead, Priority: 80, Execute: func(ctx context.Context, args map[string]any) (string, error) { return "", nil }},
		{Name: "get_recent_notes", Category: CategoryRead, Priority: 60, Execute: func(ctx context.Context, args map[string]any) (string, error) { return "", nil }},
		{Name: "vault_add_task", Category: CategoryWrite, Priority: 50, Execute: func(ctx context.Context, args map[string]any) (string, error) { return "", nil }},
	}

	for _, tool := range tools {
		reg.MustRegister(tool)
	}

	reads := reg.GetByCategory(CategoryRead)
	if len(reads) != 2 {
		t.Errorf("expected 2 read tools, got %d", len(reads))
	}

	// Should be sorted by priority (highest first)
	if reads[0].Name != "search" {
		t.Errorf("expected search first (priority 80), got %s", reads[0].Name)
	}
}

func TestExecute(t *testing.T) {
	reg := NewRegistry()

	tool := &Tool{
		Name:     "echo",
		Category: CategoryRead,
		Execute: func(ctx context.Context, args map[string]any) (string, error) {
			msg, _ := args["message"].(string)
			return "Echo: " + msg, nil
		},
		Schema: ToolSchema{
			Required:   []string{"message"},
			Properties: map[string]Property{"message": {Type: "string"}},
		},
	}

	reg.MustRegister(tool)

	result, err := reg.Execute(context.Background(), "echo", map[string]any{"message": "hello"})
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if result.Result != "Echo: hello" {
		t.Errorf("got result %q, want %q", result.Result, "Echo: hello")
	}
	if !result.IsSuccess() {
		t.Error("expected IsSuccess to be true")
	}

	_, err = reg.Execute(context.Background(), "echo", map[string]any{})
	if err == nil {
		t.Error("expected error for missing required arg")
	}

	_, err = reg.Execute(context.Background(), "nonexistent", map[string]any{})
	if err == nil {
		t.Error("expected error for nonexistent tool")
	}
}

func TestGlobalRegistry(t *testing.T) {
	// Reset global registry for test
	globalRegistry = NewRegistry()

	tool := &Tool{
		Name:     "global_test",
		Category: CategoryRead,
		Execute: func(ctx context.Context, args map[string]any) (string, error) {
			return "global", nil
		},
	}

	if err := Register(tool); err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	got := Get("global_test")
	if got == nil {
		t.Fatal("Get returned nil for globally registered tool")
	}

	result, err := Execute(context.Background(), "global_test", map[string]any{})
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if result.Result != "global" {
		t.Errorf("got result %q, want %q", result.Result, "global")
	}
}
