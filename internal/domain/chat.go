// Package domain holds the core data model shared by the relay pipeline:
// inbound chat requests, tenant configuration, audit rows, and the error
// taxonomy surfaced to callers.
package domain

// MaxMessageLength is the largest accepted chat message, in characters.
const MaxMessageLength = 2000

// ChatRequest is the JSON payload posted by the embedded widget.
type ChatRequest struct {
	ClientID     string             `json:"clientId"`
	WidgetID     string             `json:"widgetId,omitempty"`
	SessionID    string             `json:"sessionId"`
	Message      string             `json:"message"`
	History      []ConversationTurn `json:"history,omitempty"`
	Persona      string             `json:"persona,omitempty"`
	UserTime     string             `json:"userTime,omitempty"`
	UserTimezone string             `json:"userTimezone,omitempty"`
}

// ConversationTurn is one prior exchange replayed from widget-side history.
// Order is chronological and preserved when forwarded upstream.
type ConversationTurn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// UpstreamRole maps a stored turn role onto the upstream model's role
// vocabulary: "assistant" becomes "model", everything else is "user".
func UpstreamRole(role string) string {
	if role == "assistant" {
		return "model"
	}
	return "user"
}

// ConversationRow is one persisted conversation turn.
type ConversationRow struct {
	ClientID  string
	SessionID string
	WidgetID  string
	Role      string
	Message   string
	Origin    string
}

// MetricsRecord is the per-request call record persisted after the response
// has been closed. VertexStatus is 0 when no upstream status was observed.
type MetricsRecord struct {
	ClientID       string
	SessionID      string
	WidgetID       string
	ResponseTimeMs int64
	VertexAttempts int
	VertexStatus   int
	Success        bool
	ErrorType      string
	ErrorDetails   string
}

// RetryOutcome summarizes the upstream call attempts actually made.
// FinalStatus is 0 for network or timeout failures where no HTTP status
// was observed.
type RetryOutcome struct {
	Attempts    int
	FinalStatus int
}
