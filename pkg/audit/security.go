// Package audit provides security audit logging for SIEM consumption.
// It logs security-relevant events in structured JSON format for easy parsing
// and integration with security information and event management systems.
package audit

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-recon/pkg/logging"
	"github.com/ekaya-inc/ekaya-recon/pkg/middleware"
)

// SecurityEventType categorizes security-relevant events for filtering and alerting.
type SecurityEventType string

const (
	// EventSQLInjectionAttempt is logged when libinjection flags a filter value.
	EventSQLInjectionAttempt SecurityEventType = "sql_injection_attempt"
	// EventStatementRejected is logged when a SQL statement fails validation.
	EventStatementRejected SecurityEventType = "statement_rejected"
	// EventQueryExecution is logged for every executed statement (high volume).
	EventQueryExecution SecurityEventType = "query_execution"
)

// SecurityEvent represents an auditable security event with all relevant context
// for SIEM ingestion and analysis.
type SecurityEvent struct {
	Timestamp time.Time         `json:"timestamp"`
	EventType SecurityEventType `json:"event_type"`
	RequestID string            `json:"request_id,omitempty"`
	Details   any               `json:"details"`
	Severity  string            `json:"severity"` // info, warning, critical
}

// InjectionDetails contains specifics of a flagged filter value.
type InjectionDetails struct {
	Field       string `json:"field"`
	Value       string `json:"value"`
	Fingerprint string `json:"fingerprint"` // libinjection fingerprint for pattern analysis
	Dataset     string `json:"dataset,omitempty"`
}

// StatementDetails describes a rejected or executed statement. SQL is
// sanitized before it is stored.
type StatementDetails struct {
	Source   string `json:"source"` // user, generated, preview
	SQL      string `json:"sql"`
	Reason   string `json:"reason,omitempty"`
	RowCount int    `json:"row_count,omitempty"`
}

// SecurityAuditor logs security events for SIEM consumption.
type SecurityAuditor struct {
	logger *zap.Logger
}

// NewSecurityAuditor creates a security auditor under the "security_audit"
// logger namespace.
func NewSecurityAuditor(logger *zap.Logger) *SecurityAuditor {
	return &SecurityAuditor{logger: logger.Named("security_audit")}
}

// LogInjectionAttempt records a flagged filter value at ERROR level with
// "critical" severity.
func (a *SecurityAuditor) LogInjectionAttempt(ctx context.Context, details InjectionDetails) {
	event := a.event(ctx, EventSQLInjectionAttempt, details, "critical")
	a.logger.Error("SQL injection attempt detected",
		zap.String("event_json", marshal(event)),
		zap.String("request_id", event.RequestID),
		zap.String("field", details.Field),
		zap.String("fingerprint", details.Fingerprint),
		zap.String("severity", event.Severity),
	)
}

// LogStatementRejected records a statement that failed validation. These are
// usually model or user mistakes, so WARN.
func (a *SecurityAuditor) LogStatementRejected(ctx context.Context, source, sqlQuery, reason string) {
	details := StatementDetails{Source: source, SQL: logging.SanitizeQuery(sqlQuery), Reason: reason}
	event := a.event(ctx, EventStatementRejected, details, "warning")
	a.logger.Warn("SQL statement rejected",
		zap.String("event_json", marshal(event)),
		zap.String("request_id", event.RequestID),
		zap.String("source", source),
		zap.String("reason", reason),
		zap.String("severity", event.Severity),
	)
}

// LogQueryExecution records an executed statement at INFO level.
func (a *SecurityAuditor) LogQueryExecution(ctx context.Context, source, sqlQuery string, rowCount int) {
	details := StatementDetails{Source: source, SQL: logging.SanitizeQuery(sqlQuery), RowCount: rowCount}
	event := a.event(ctx, EventQueryExecution, details, "info")
	a.logger.Info("Query executed",
		zap.String("event_json", marshal(event)),
		zap.String("request_id", event.RequestID),
		zap.String("source", source),
		zap.Int("row_count", rowCount),
		zap.String("severity", event.Severity),
	)
}

func (a *SecurityAuditor) event(ctx context.Context, t SecurityEventType, details any, severity string) SecurityEvent {
	return SecurityEvent{
		Timestamp: time.Now().UTC(),
		EventType: t,
		RequestID: middleware.RequestIDFromContext(ctx),
		Details:   details,
		Severity:  severity,
	}
}

// Marshaling known types never fails.
func marshal(event SecurityEvent) string {
	b, _ := json.Marshal(event)
	return string(b)
}
