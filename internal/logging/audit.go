// Package logging also provides audit logging that outputs structured,
// Mangle-queryable facts for every mutation and maintenance run against
// the vault. The trail is append-only: the audit file is opened
// write-only, and no vaultgraph component reads it back.
package logging

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// AuditEventType defines the type of audit event (maps to a Mangle predicate).
type AuditEventType string

const (
	// Watcher/event-queue lifecycle -> watch_event/4
	AuditWatchBatch   AuditEventType = "watch_batch"
	AuditWatchStart   AuditEventType = "watch_start"
	AuditWatchStop    AuditEventType = "watch_stop"

	// Graph rebuild/upsert -> graph_op/5
	AuditGraphRebuild AuditEventType = "graph_rebuild"
	AuditGraphUpsert  AuditEventType = "graph_upsert"
	AuditGraphDelete  AuditEventType = "graph_delete"

	// Store writes -> store_op/5
	AuditStoreWrite AuditEventType = "store_write"
	AuditStoreError AuditEventType = "store_error"

	// Structural mutations -> mutation/6
	AuditMutationApply  AuditEventType = "mutation_apply"
	AuditMutationRevert AuditEventType = "mutation_revert"
	AuditMutationError  AuditEventType = "mutation_error"

	// VCS gateway -> vcs_op/5
	AuditVCSCommit AuditEventType = "vcs_commit"
	AuditVCSUndo   AuditEventType = "vcs_undo"
	AuditVCSRetry  AuditEventType = "vcs_retry"
	AuditVCSError  AuditEventType = "vcs_error"

	// Rename operations -> rename_op/5
	AuditRenamePreview AuditEventType = "rename_preview"
	AuditRenameApply   AuditEventType = "rename_apply"

	// Sweep runs -> sweep_run/4
	AuditSweepRun AuditEventType = "sweep_run"

	// Performance -> perf_metric/4
	AuditPerfMetric AuditEventType = "perf_metric"
	AuditPerfSlow   AuditEventType = "perf_slow"

	// Errors -> error_event/4
	AuditErrorGeneric  AuditEventType = "error_generic"
	AuditErrorCritical AuditEventType = "error_critical"
)

// AuditEvent represents a structured audit log entry that can be parsed
// into a Mangle fact. Format: predicate(timestamp, ...args).
type AuditEvent struct {
	Timestamp  int64                  `json:"ts"`
	EventType  AuditEventType         `json:"event"`
	Category   string                 `json:"cat"`
	RequestID  string                 `json:"req"`
	Target     string                 `json:"target"` // note path or rule name
	Action     string                 `json:"action"`
	Success    bool                   `json:"success"`
	DurationMs int64                  `json:"dur_ms"`
	Error      string                 `json:"error"`
	Message    string                 `json:"msg"`
	Fields     map[string]interface{} `json:"fields"`
	MangleFact string                 `json:"mangle"`
}

var (
	auditFile   *os.File
	auditMu     sync.Mutex
	auditLogger *AuditLogger
)

// AuditLogger handles structured audit logging with Mangle fact generation.
type AuditLogger struct {
	requestID string
	category  Category
}

// InitAudit initializes the audit logging system.
func InitAudit() error {
	if !IsDebugMode() {
		return nil
	}

	auditMu.Lock()
	defer auditMu.Unlock()

	if auditFile != nil {
		return nil
	}

	date := time.Now().Format("2006-01-02")
	auditPath := filepath.Join(logsDir, fmt.Sprintf("%s_audit.log", date))

	file, err := os.OpenFile(auditPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("failed to create audit log: %w", err)
	}
	auditFile = file

	header := fmt.Sprintf("# Audit log started at %s\n# Format: Mangle-queryable structured events\n", time.Now().Format(time.RFC3339))
	auditFile.WriteString(header)

	return nil
}

// CloseAudit closes the audit log file.
func CloseAudit() {
	auditMu.Lock()
	defer auditMu.Unlock()

	if auditFile != nil {
		auditFile.Close()
		auditFile = nil
	}
}

// Audit returns the global audit logger.
func Audit() *AuditLogger {
	if auditLogger == nil {
		auditLogger = &AuditLogger{}
	}
	return auditLogger
}

// AuditWithRequest creates an audit logger scoped to a single mutation request.
func AuditWithRequest(requestID string) *AuditLogger {
	return &AuditLogger{requestID: requestID}
}

// AuditWithContext creates a fully-scoped audit logger.
func AuditWithContext(requestID string, category Category) *AuditLogger {
	return &AuditLogger{requestID: requestID, category: category}
}

// Log writes an audit event.
func (a *AuditLogger) Log(event AuditEvent) {
	if !IsDebugMode() || auditFile == nil {
		return
	}

	if event.Timestamp == 0 {
		event.Timestamp = time.Now().UnixMilli()
	}
	if event.RequestID == "" && a.requestID != "" {
		event.RequestID = a.requestID
	}
	if event.Category == "" && a.category != "" {
		event.Category = string(a.category)
	}
	if event.Fields == nil {
		event.Fields = make(map[string]interface{})
	}

	event.MangleFact = generateMangleFact(event)

	auditMu.Lock()
	defer auditMu.Unlock()

	data, err := json.Marshal(event)
	if err == nil {
		auditFile.WriteString(string(data) + "\n")
	}
}

// generateMangleFact creates a Mangle-compatible fact string from an event.
func generateMangleFact(e AuditEvent) string {
	switch e.EventType {
	case AuditWatchBatch, AuditWatchStart, AuditWatchStop:
		return fmt.Sprintf("watch_event(%d, /%s, \"%s\", %v).",
			e.Timestamp, e.EventType, e.Target, e.Success)

	case AuditGraphRebuild, AuditGraphUpsert, AuditGraphDelete:
		return fmt.Sprintf("graph_op(%d, /%s, \"%s\", %v, %d).",
			e.Timestamp, e.EventType, e.Target, e.Success, e.DurationMs)

	case AuditStoreWrite, AuditStoreError:
		return fmt.Sprintf("store_op(%d, /%s, \"%s\", %v, %d).",
			e.Timestamp, e.EventType, e.Target, e.Success, e.DurationMs)

	case AuditMutationApply, AuditMutationRevert, AuditMutationError:
		return fmt.Sprintf("mutation(%d, /%s, \"%s\", \"%s\", %v, \"%s\").",
			e.Timestamp, e.EventType, e.Target, e.Action, e.Success, escapeString(e.RequestID))

	case AuditVCSCommit, AuditVCSUndo, AuditVCSRetry, AuditVCSError:
		return fmt.Sprintf("vcs_op(%d, /%s, \"%s\", %v, %d).",
			e.Timestamp, e.EventType, e.Target, e.Success, e.DurationMs)

	case AuditRenamePreview, AuditRenameApply:
		return fmt.Sprintf("rename_op(%d, /%s, \"%s\", \"%s\", %v).",
			e.Timestamp, e.EventType, e.Target, e.Action, e.Success)

	case AuditSweepRun:
		return fmt.Sprintf("sweep_run(%d, \"%s\", %d, %d).",
			e.Timestamp, e.Target, e.DurationMs, len(e.Fields))

	case AuditPerfMetric, AuditPerfSlow:
		return fmt.Sprintf("perf_metric(%d, \"%s\", \"%s\", %d).",
			e.Timestamp, e.Category, e.Action, e.DurationMs)

	case AuditErrorGeneric, AuditErrorCritical:
		return fmt.Sprintf("error_event(%d, /%s, \"%s\", \"%s\").",
			e.Timestamp, e.EventType, e.Category, escapeString(e.Error))

	default:
		return fmt.Sprintf("audit_event(%d, /%s, \"%s\", \"%s\", %v).",
			e.Timestamp, e.EventType, e.Category, escapeString(e.Message), e.Success)
	}
}

func escapeString(s string) string {
	var b strings.Builder
	b.Grow(len(s) + len(s)/10)

	for _, c := range s {
		switch c {
		case '"':
			b.WriteString("\\\"")
		case '\\':
			b.WriteString("\\\\")
		case '\n':
			b.WriteString("\\n")
		case '\r':
			b.WriteString("\\r")
		case '\t':
			b.WriteString("\\t")
		default:
			b.WriteRune(c)
		}
	}
	return b.String()
}

// WatchBatch logs a coalesced batch of filesystem events being handed off.
func (a *AuditLogger) WatchBatch(pathCount int) {
	a.Log(AuditEvent{
		EventType: AuditWatchBatch,
		Target:    fmt.Sprintf("%d paths", pathCount),
		Success:   true,
		Fields:    map[string]interface{}{"path_count": pathCount},
		Message:   fmt.Sprintf("Watch batch dispatched: %d paths", pathCount),
	})
}

// GraphOp logs a graph index mutation.
func (a *AuditLogger) GraphOp(eventType AuditEventType, path string, durationMs int64, success bool) {
	a.Log(AuditEvent{
		EventType:  eventType,
		Target:     path,
		Success:    success,
		DurationMs: durationMs,
		Message:    fmt.Sprintf("Graph %s: %s (%dms, success=%v)", eventType, path, durationMs, success),
	})
}

// StoreOp logs a store write.
func (a *AuditLogger) StoreOp(path string, durationMs int64, success bool, errMsg string) {
	eventType := AuditStoreWrite
	if !success {
		eventType = AuditStoreError
	}
	a.Log(AuditEvent{
		EventType:  eventType,
		Target:     path,
		Success:    success,
		DurationMs: durationMs,
		Error:      errMsg,
		Message:    fmt.Sprintf("Store write: %s (success=%v)", path, success),
	})
}

// Mutation logs a structural mutation applied (or reverted) against a note.
func (a *AuditLogger) Mutation(eventType AuditEventType, path, action string, success bool, errMsg string) {
	a.Log(AuditEvent{
		EventType: eventType,
		Target:    path,
		Action:    action,
		Success:   success,
		Error:     errMsg,
		Message:   fmt.Sprintf("Mutation %s: %s -> %s (success=%v)", eventType, path, action, success),
	})
}

// VCSOp logs a commit, undo, retry, or failure against the VCS gateway.
func (a *AuditLogger) VCSOp(eventType AuditEventType, ref string, durationMs int64, success bool, errMsg string) {
	a.Log(AuditEvent{
		EventType:  eventType,
		Target:     ref,
		Success:    success,
		DurationMs: durationMs,
		Error:      errMsg,
		Message:    fmt.Sprintf("VCS %s: %s (success=%v)", eventType, ref, success),
	})
}

// RenameOp logs a rename preview or apply.
func (a *AuditLogger) RenameOp(eventType AuditEventType, target, action string, success bool) {
	a.Log(AuditEvent{
		EventType: eventType,
		Target:    target,
		Action:    action,
		Success:   success,
		Message:   fmt.Sprintf("Rename %s: %s (%s, success=%v)", eventType, target, action, success),
	})
}

// SweepRun logs a hygiene sweep completing.
func (a *AuditLogger) SweepRun(reportKind string, durationMs int64, findingCount int) {
	a.Log(AuditEvent{
		EventType:  AuditSweepRun,
		Target:     reportKind,
		Success:    true,
		DurationMs: durationMs,
		Fields:     map[string]interface{}{"finding_count": findingCount},
		Message:    fmt.Sprintf("Sweep %s: %d findings (%dms)", reportKind, findingCount, durationMs),
	})
}

// PerfMetric logs a performance metric.
func (a *AuditLogger) PerfMetric(operation string, durationMs int64, threshold int64) {
	eventType := AuditPerfMetric
	success := true
	if threshold > 0 && durationMs > threshold {
		eventType = AuditPerfSlow
		success = false
	}
	fields := map[string]interface{}{}
	if threshold > 0 {
		fields["threshold_ms"] = threshold
	}
	a.Log(AuditEvent{
		EventType:  eventType,
		Action:     operation,
		DurationMs: durationMs,
		Success:    success,
		Fields:     fields,
		Message:    fmt.Sprintf("Perf: %s took %dms (threshold=%dms)", operation, durationMs, threshold),
	})
}

// Error logs an error event.
func (a *AuditLogger) Error(category string, err error, critical bool) {
	eventType := AuditErrorGeneric
	if critical {
		eventType = AuditErrorCritical
	}
	errMsg := ""
	if err != nil {
		errMsg = err.Error()
	}
	a.Log(AuditEvent{
		EventType: eventType,
		Category:  category,
		Success:   false,
		Error:     errMsg,
		Message:   fmt.Sprintf("Error in %s: %s (critical=%v)", category, errMsg, critical),
	})
}
