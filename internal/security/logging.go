// Package security provides structured JSON logging for application and
// security events. Every log line is a single JSON object so the output can
// be shipped to a log aggregator without extra parsing.
package security

import (
	"encoding/json"
	"log"
	"os"
	"time"
)

// LogLevel classifies a log entry.
type LogLevel string

const (
	LogLevelInfo     LogLevel = "INFO"
	LogLevelWarning  LogLevel = "WARNING"
	LogLevelError    LogLevel = "ERROR"
	LogLevelCritical LogLevel = "CRITICAL"
	LogLevelSecurity LogLevel = "SECURITY"
)

// EventType identifies a security-relevant event.
type EventType string

const (
	EventLoginSuccess      EventType = "login_success"
	EventLoginFailure      EventType = "login_failure"
	EventLogout            EventType = "logout"
	EventAccountLocked     EventType = "account_locked"
	EventRateLimitExceeded EventType = "rate_limit_exceeded"
	EventCSRFViolation     EventType = "csrf_violation"
	EventPermissionDenied  EventType = "permission_denied"
	EventProtectedEntity   EventType = "protected_entity_access"
	EventAuditAppendFailed EventType = "audit_append_failed"
	EventApprovalNoControl EventType = "approval_without_controls"
	EventSecurityAlert     EventType = "security_alert"
	EventSuspiciousInput   EventType = "suspicious_input"
)

// LogEntry is the JSON shape of one log line.
type LogEntry struct {
	Timestamp  time.Time      `json:"timestamp"`
	Level      LogLevel       `json:"level"`
	Message    string         `json:"message"`
	EventType  EventType      `json:"event_type,omitempty"`
	ActorID    *int           `json:"actor_id,omitempty"`
	ActorEmail string         `json:"actor_email,omitempty"`
	IPAddress  string         `json:"ip_address,omitempty"`
	UserAgent  string         `json:"user_agent,omitempty"`
	Method     string         `json:"method,omitempty"`
	Path       string         `json:"path,omitempty"`
	Status     int            `json:"status,omitempty"`
	DurationMS int64          `json:"duration_ms,omitempty"`
	Error      string         `json:"error,omitempty"`
	Extra      map[string]any `json:"extra,omitempty"`
}

// Logger writes structured JSON log entries.
type Logger struct {
	output *log.Logger
}

// NewLogger creates a logger writing to stdout.
func NewLogger() *Logger {
	return &Logger{
		output: log.New(os.Stdout, "", 0),
	}
}

// SetOutput redirects the logger, used by tests to capture output.
func (l *Logger) SetOutput(out *log.Logger) {
	l.output = out
}

func (l *Logger) write(entry LogEntry) {
	entry.Timestamp = time.Now().UTC()
	data, err := json.Marshal(entry)
	if err != nil {
		// Marshalling a LogEntry only fails on unserializable Extra values;
		// fall back to the message so the event is not lost.
		l.output.Printf(`{"timestamp":%q,"level":%q,"message":%q}`,
			entry.Timestamp.Format(time.RFC3339), entry.Level, entry.Message)
		return
	}
	l.output.Println(string(data))
}

// Info logs an informational message.
func (l *Logger) Info(message string) {
	l.write(LogEntry{Level: LogLevelInfo, Message: message})
}

// Warn logs a warning.
func (l *Logger) Warn(message string) {
	l.write(LogEntry{Level: LogLevelWarning, Message: message})
}

// Error logs an error with its cause (cause may be nil).
func (l *Logger) Error(message string, err error) {
	entry := LogEntry{Level: LogLevelError, Message: message}
	if err != nil {
		entry.Error = err.Error()
	}
	l.write(entry)
}

// Critical logs a failure that requires operator attention.
func (l *Logger) Critical(message string, err error) {
	entry := LogEntry{Level: LogLevelCritical, Message: message}
	if err != nil {
		entry.Error = err.Error()
	}
	l.write(entry)
}

// SecurityEvent logs a security-relevant event with actor context.
// The extra map carries event-specific details (resource ids, endpoints).
func (l *Logger) SecurityEvent(event EventType, actorID *int, actorEmail, ipAddress, userAgent string, extra map[string]any) {
	l.write(LogEntry{
		Level:      LogLevelSecurity,
		Message:    string(event),
		EventType:  event,
		ActorID:    actorID,
		ActorEmail: actorEmail,
		IPAddress:  ipAddress,
		UserAgent:  userAgent,
		Extra:      extra,
	})
}

// HTTPRequest logs one completed HTTP request.
func (l *Logger) HTTPRequest(method, path, ip, userAgent, requestID string, status int, duration time.Duration) {
	l.write(LogEntry{
		Level:      LogLevelInfo,
		Message:    "http_request",
		Method:     method,
		Path:       path,
		IPAddress:  ip,
		UserAgent:  userAgent,
		Status:     status,
		DurationMS: duration.Milliseconds(),
		Extra:      map[string]any{"request_id": requestID},
	})
}
