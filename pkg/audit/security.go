// Package audit provides security audit logging for SIEM consumption.
// Events are emitted as structured JSON under a dedicated logger namespace.
package audit

import (
	"encoding/json"
	"time"

	"go.uber.org/zap"
)

// SecurityEventType categorizes security-relevant events for filtering and alerting.
type SecurityEventType string

const (
	// EventSQLInjectionAttempt is logged when libinjection flags a bound parameter.
	EventSQLInjectionAttempt SecurityEventType = "sql_injection_attempt"
	// EventDestructiveDenied is logged when a statement carries a denied keyword.
	EventDestructiveDenied SecurityEventType = "destructive_operation_denied"
	// EventParameterValidation is logged when placeholders and parameters disagree.
	EventParameterValidation SecurityEventType = "parameter_validation_failure"
)

// SecurityEvent is one auditable event.
type SecurityEvent struct {
	Timestamp time.Time         `json:"timestamp"`
	EventType SecurityEventType `json:"event_type"`
	RequestID string            `json:"request_id,omitempty"`
	Backend   string            `json:"backend"`
	Details   any               `json:"details"`
	Severity  string            `json:"severity"` // info, warning, critical
}

// SQLInjectionDetails names the flagged parameter. The value itself is never logged.
type SQLInjectionDetails struct {
	ParamName   string `json:"param_name"`
	Fingerprint string `json:"fingerprint"`
}

// SecurityAuditor logs security events for SIEM consumption.
type SecurityAuditor struct {
	logger *zap.Logger
	now    func() time.Time
}

// NewSecurityAuditor creates an auditor logging under the "security_audit" namespace.
func NewSecurityAuditor(logger *zap.Logger) *SecurityAuditor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SecurityAuditor{logger: logger.Named("security_audit"), now: time.Now}
}

// LogInjectionAttempt records a bound value that matched an injection fingerprint.
// Logged at ERROR with critical severity.
func (a *SecurityAuditor) LogInjectionAttempt(requestID, backend string, details SQLInjectionDetails) {
	event := a.event(EventSQLInjectionAttempt, requestID, backend, details, "critical")

	a.logger.Error("SQL injection attempt detected",
		zap.String("event_json", marshalEvent(event)),
		zap.String("request_id", requestID),
		zap.String("backend", backend),
		zap.String("param_name", details.ParamName),
		zap.String("fingerprint", details.Fingerprint),
		zap.String("severity", event.Severity),
	)
}

// LogDestructiveDenied records a statement rejected for a denied keyword.
func (a *SecurityAuditor) LogDestructiveDenied(requestID, backend, keyword string) {
	event := a.event(EventDestructiveDenied, requestID, backend, map[string]string{"keyword": keyword}, "warning")

	a.logger.Warn("Destructive statement denied",
		zap.String("event_json", marshalEvent(event)),
		zap.String("request_id", requestID),
		zap.String("backend", backend),
		zap.String("keyword", keyword),
		zap.String("severity", event.Severity),
	)
}

// LogParameterValidation records a placeholder/parameter mismatch.
// These are usually caller mistakes, so WARN rather than ERROR.
func (a *SecurityAuditor) LogParameterValidation(requestID, backend, errorMessage string) {
	event := a.event(EventParameterValidation, requestID, backend, map[string]string{"error": errorMessage}, "warning")

	a.logger.Warn("Parameter validation failed",
		zap.String("event_json", marshalEvent(event)),
		zap.String("request_id", requestID),
		zap.String("backend", backend),
		zap.String("error", errorMessage),
		zap.String("severity", event.Severity),
	)
}

func (a *SecurityAuditor) event(kind SecurityEventType, requestID, backend string, details any, severity string) SecurityEvent {
	return SecurityEvent{
		Timestamp: a.now().UTC(),
		EventType: kind,
		RequestID: requestID,
		Backend:   backend,
		Details:   details,
		Severity:  severity,
	}
}

// marshalEvent ignores the error: every field is a plain string or map of strings.
func marshalEvent(event SecurityEvent) string {
	b, _ := json.Marshal(event)
	return string(b)
}
