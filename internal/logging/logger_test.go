package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func resetLoggingState() {
	CloseAll()
	CloseAudit()
	loggers = make(map[Category]*Logger)
	logsDir = ""
	workspace = ""
	config = loggingConfig{}
	configLoaded = false
	auditLogger = nil
}

// TestAllCategoriesLog tests that all categories create log files when debug_mode is true
func TestAllCategoriesLog(t *testing.T) {
	tempDir, err := os.MkdirTemp("", "logging_test")
	if err != nil {
		t.Fatalf("Failed to create temp dir: %v", err)
	}
	defer os.RemoveAll(tempDir)

	configDir := filepath.Join(tempDir, ".vaultgraph")
	if err := os.MkdirAll(configDir, 0755); err != nil {
		t.Fatalf("Failed to create config dir: %v", err)
	}

	configContent := `{
		"logging": {
			"level": "debug",
			"debug_mode": true,
			"categories": {
				"boot": true,
				"session": true,
				"config": true,
				"watcher": true,
				"event_queue": true,
				"markdown": true,
				"graph": true,
				"store": true,
				"mangle": true,
				"sweep": true,
				"auto_link": true,
				"writer": true,
				"vcs": true,
				"rename": true,
				"tools": true,
				"embedding": true
			}
		}
	}`

	configPath := filepath.Join(configDir, "config.json")
	if err := os.WriteFile(configPath, []byte(configContent), 0644); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}

	resetLoggingState()

	if err := Initialize(tempDir); err != nil {
		t.Fatalf("Failed to initialize logging: %v", err)
	}

	if !IsDebugMode() {
		t.Error("Expected debug mode to be enabled")
	}

	categories := []Category{
		CategoryBoot, CategorySession, CategoryPerformance, CategoryConfig,
		CategoryWatcher, CategoryEventQueue, CategoryMarkdown,
		CategoryGraph, CategoryStore, CategoryMangle, CategorySweep,
		CategoryAutoLink, CategoryWriter, CategoryVCS, CategoryRename,
		CategoryTools, CategoryEmbedding,
	}

	for _, cat := range categories {
		if !IsCategoryEnabled(cat) {
			t.Errorf("Category %s should be enabled", cat)
		}

		logger := Get(cat)
		logger.Info("Test info message for %s", cat)
		logger.Debug("Test debug message for %s", cat)
		logger.Warn("Test warn message for %s", cat)
		logger.Error("Test error message for %s", cat)
	}

	Boot("Convenience boot log")
	Session("Convenience session log")
	Watcher("Convenience watcher log")
	EventQueue("Convenience event_queue log")
	Markdown("Convenience markdown log")
	Graph("Convenience graph log")
	Store("Convenience store log")
	Mangle("Convenience mangle log")
	Sweep("Convenience sweep log")
	AutoLink("Convenience auto_link log")
	Writer("Convenience writer log")
	VCS("Convenience vcs log")
	Rename("Convenience rename log")
	Tools("Convenience tools log")
	Embedding("Convenience embedding log")

	CloseAll()
	CloseAudit()

	logsPath := filepath.Join(tempDir, ".vaultgraph", "logs")
	entries, err := os.ReadDir(logsPath)
	if err != nil {
		t.Fatalf("Failed to read logs dir: %v", err)
	}

	t.Logf("Created %d log files in %s", len(entries), logsPath)

	for _, cat := range categories {
		found := false
		for _, entry := range entries {
			if strings.Contains(entry.Name(), string(cat)+".log") {
				found = true
				content, err := os.ReadFile(filepath.Join(logsPath, entry.Name()))
				if err != nil {
					t.Errorf("Failed to read log file for %s: %v", cat, err)
					continue
				}
				if len(content) == 0 {
					t.Errorf("Log file for %s is empty", cat)
				}
				break
			}
		}
		if !found {
			t.Errorf("No log file found for category: %s", cat)
		}
	}
}

// TestDebugModeDisabled tests that no logs are created when debug_mode is false
func TestDebugModeDisabled(t *testing.T) {
	tempDir, err := os.MkdirTemp("", "logging_test_disabled")
	if err != nil {
		t.Fatalf("Failed to create temp dir: %v", err)
	}
	defer os.RemoveAll(tempDir)

	configDir := filepath.Join(tempDir, ".vaultgraph")
	if err := os.MkdirAll(configDir, 0755); err != nil {
		t.Fatalf("Failed to create config dir: %v", err)
	}

	configContent := `{
		"logging": {
			"level": "debug",
			"debug_mode": false,
			"categories": {
				"boot": true,
				"graph": true,
				"sweep": true
			}
		}
	}`

	configPath := filepath.Join(configDir, "config.json")
	if err := os.WriteFile(configPath, []byte(configContent), 0644); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}

	resetLoggingState()

	if err := Initialize(tempDir); err != nil {
		t.Fatalf("Failed to initialize logging: %v", err)
	}

	if IsDebugMode() {
		t.Error("Expected debug mode to be DISABLED (production mode)")
	}

	categories := []Category{CategoryBoot, CategoryGraph, CategorySweep, CategoryWatcher}
	for _, cat := range categories {
		if IsCategoryEnabled(cat) {
			t.Errorf("Category %s should be DISABLED when debug_mode=false", cat)
		}
	}

	Boot("This should NOT be logged")
	Graph("This should NOT be logged")
	Sweep("This should NOT be logged")

	logger := Get(CategoryBoot)
	logger.Info("This should NOT be logged")
	logger.Debug("This should NOT be logged")
	logger.Error("This should NOT be logged")

	CloseAll()
	CloseAudit()

	logsPath := filepath.Join(tempDir, ".vaultgraph", "logs")
	_, err = os.Stat(logsPath)
	if err == nil {
		entries, _ := os.ReadDir(logsPath)
		if len(entries) > 0 {
			t.Errorf("Expected NO log files in production mode, but found %d files", len(entries))
		}
	} else if !os.IsNotExist(err) {
		t.Fatalf("unexpected error stating logs dir: %v", err)
	}
}

// TestCategoryToggle tests individual category enable/disable
func TestCategoryToggle(t *testing.T) {
	tempDir, err := os.MkdirTemp("", "logging_test_category")
	if err != nil {
		t.Fatalf("Failed to create temp dir: %v", err)
	}
	defer os.RemoveAll(tempDir)

	configDir := filepath.Join(tempDir, ".vaultgraph")
	if err := os.MkdirAll(configDir, 0755); err != nil {
		t.Fatalf("Failed to create config dir: %v", err)
	}

	configContent := `{
		"logging": {
			"level": "debug",
			"debug_mode": true,
			"categories": {
				"boot": true,
				"graph": true,
				"watcher": false,
				"sweep": false
			}
		}
	}`

	configPath := filepath.Join(configDir, "config.json")
	if err := os.WriteFile(configPath, []byte(configContent), 0644); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}

	resetLoggingState()

	if err := Initialize(tempDir); err != nil {
		t.Fatalf("Failed to initialize: %v", err)
	}

	if !IsCategoryEnabled(CategoryBoot) {
		t.Error("boot should be enabled")
	}
	if !IsCategoryEnabled(CategoryGraph) {
		t.Error("graph should be enabled")
	}
	if IsCategoryEnabled(CategoryWatcher) {
		t.Error("watcher should be DISABLED")
	}
	if IsCategoryEnabled(CategorySweep) {
		t.Error("sweep should be DISABLED")
	}
	if !IsCategoryEnabled(CategoryWriter) {
		t.Error("writer (not in config) should default to enabled")
	}

	Boot("This SHOULD be logged")
	Graph("This SHOULD be logged")
	Watcher("This should NOT be logged")
	Sweep("This should NOT be logged")
	Writer("This SHOULD be logged (default enabled)")

	CloseAll()
	CloseAudit()

	logsPath := filepath.Join(tempDir, ".vaultgraph", "logs")
	entries, _ := os.ReadDir(logsPath)

	var hasBoot, hasGraph, hasWatcher, hasSweep bool
	for _, e := range entries {
		name := e.Name()
		switch {
		case strings.Contains(name, "boot"):
			hasBoot = true
		case strings.Contains(name, "graph"):
			hasGraph = true
		case strings.Contains(name, "watcher"):
			hasWatcher = true
		case strings.Contains(name, "sweep"):
			hasSweep = true
		}
	}

	if !hasBoot {
		t.Error("Expected boot log file")
	}
	if !hasGraph {
		t.Error("Expected graph log file")
	}
	if hasWatcher {
		t.Error("Should NOT have watcher log file (disabled)")
	}
	if hasSweep {
		t.Error("Should NOT have sweep log file (disabled)")
	}
}

// TestTimerLogging tests the timing helper
func TestTimerLogging(t *testing.T) {
	tempDir, err := os.MkdirTemp("", "logging_test_timer")
	if err != nil {
		t.Fatalf("Failed to create temp dir: %v", err)
	}
	defer os.RemoveAll(tempDir)

	configDir := filepath.Join(tempDir, ".vaultgraph")
	os.MkdirAll(configDir, 0755)

	configContent := `{"logging": {"level": "debug", "debug_mode": true}}`
	os.WriteFile(filepath.Join(configDir, "config.json"), []byte(configContent), 0644)

	resetLoggingState()
	Initialize(tempDir)

	timer := StartTimer(CategoryGraph, "TestOperation")
	time.Sleep(time.Millisecond)
	elapsed := timer.Stop()

	if elapsed <= 0 {
		t.Error("Timer should have recorded non-zero duration")
	}

	CloseAll()
	CloseAudit()
}
