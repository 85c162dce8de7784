package audit

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"
)

// AuditEvent represents an access-control or integrity event worth keeping a
// trail of: grants, revokes, denied reads, decryption failures.
type AuditEvent struct {
	Timestamp time.Time         `json:"timestamp"`
	EventType string            `json:"eventType"` // e.g. "CapabilityGrant", "AccessDenied"
	ActorID   string            `json:"actorId"`   // address of the actor performing the operation
	PatientID string            `json:"patientId"`
	Result    string            `json:"result"` // "success" or "failure"
	Reason    string            `json:"reason"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// AuditLogger is the interface for logging audit events.
type AuditLogger interface {
	LogEvent(event AuditEvent)
}

// StdoutAuditLogger is a simple implementation that logs to stdout.
type StdoutAuditLogger struct{}

func (l *StdoutAuditLogger) LogEvent(event AuditEvent) {
	fmt.Printf("[%s] [%s] Actor: %s, Patient: %s, Result: %s, Reason: %s\n",
		event.Timestamp.Format(time.RFC3339), event.EventType, event.ActorID, event.PatientID, event.Result, event.Reason)
}

// NewStdoutAuditLogger returns a new StdoutAuditLogger.
func NewStdoutAuditLogger() AuditLogger {
	return &StdoutAuditLogger{}
}

// FileAuditLogger appends one JSON line per event to an audit log file.
type FileAuditLogger struct {
	mu   sync.Mutex
	path string
}

// NewFileAuditLogger returns a logger appending to path (created 0600).
func NewFileAuditLogger(path string) *FileAuditLogger {
	return &FileAuditLogger{path: path}
}

func (l *FileAuditLogger) LogEvent(event AuditEvent) {
	l.mu.Lock()
	defer l.mu.Unlock()
	f, err := os.OpenFile(l.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		return
	}
	json.NewEncoder(f).Encode(event)
	f.Close()
}

// Access logs a capability decision for the given operation.
func Access(l AuditLogger, eventType, actorID, patientID, result, reason string) {
	if l == nil {
		return
	}
	l.LogEvent(AuditEvent{
		Timestamp: time.Now().UTC(),
		EventType: eventType,
		ActorID:   actorID,
		PatientID: patientID,
		Result:    result,
		Reason:    reason,
	})
}
