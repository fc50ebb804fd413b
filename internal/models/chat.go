package models

// Message is a single conversational turn sent to a provider adapter.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

const (
	MessageRoleSystem    = "system"
	MessageRoleUser      = "user"
	MessageRoleAssistant = "assistant"
)

// TurnRequest is a client chat submission. SessionID of zero starts a new
// session.
type TurnRequest struct {
	Message   string `json:"message" validate:"required"`
	Model     string `json:"model,omitempty"`
	SessionID uint   `json:"session_id,omitempty"`
	MaxTokens int    `json:"max_tokens,omitempty"`
	Stream    *bool  `json:"stream,omitempty"`
}

// StreamEvent types emitted over the SSE channel, in order:
// session_info once, content zero or more times, then exactly one of
// complete or error.
const (
	StreamEventSessionInfo = "session_info"
	StreamEventContent     = "content"
	StreamEventComplete    = "complete"
	StreamEventError       = "error"
)

type StreamEvent struct {
	Type      string  `json:"type"`
	SessionID uint    `json:"session_id,omitempty"`
	Content   string  `json:"content,omitempty"`
	Model     string  `json:"model,omitempty"`
	Tokens    int     `json:"tokens,omitempty"`
	Cost      float64 `json:"cost,omitempty"`
	Error     string  `json:"error,omitempty"`
}

type TurnResponse struct {
	SessionID uint    `json:"session_id"`
	Content   string  `json:"content"`
	Model     string  `json:"model"`
	Tokens    int     `json:"tokens"`
	Cost      float64 `json:"cost"`
}

type CompareRequest struct {
	Message string   `json:"message" validate:"required"`
	Models  []string `json:"models" validate:"required,min=2"`
}

// CompareResult holds one model's outcome keyed by "provider/model".
// A failed or denied model carries Error and leaves Content empty.
type CompareResult struct {
	Model          string  `json:"model"`
	DisplayName    string  `json:"display_name,omitempty"`
	Content        string  `json:"content,omitempty"`
	Tokens         int     `json:"tokens,omitempty"`
	Cost           float64 `json:"cost,omitempty"`
	ResponseTimeMs int     `json:"response_time_ms,omitempty"`
	Error          string  `json:"error,omitempty"`
}

type CompareResponse struct {
	Results map[string]CompareResult `json:"results"`
}
