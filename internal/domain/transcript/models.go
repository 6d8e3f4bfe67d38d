// Package transcript holds the reconciliation core: the stream event
// vocabulary, the per-agent stream buffer state machine and the merge of
// buffered turns with the authoritative session snapshot.
package transcript

import "time"

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// LLMConfig is the model configuration the backend stores per agent.
type LLMConfig struct {
	Model       string  `json:"model"`
	Temperature float64 `json:"temperature,omitempty"`
}

// AgentCreate describes an agent when asking the backend for a new session.
type AgentCreate struct {
	Name           string                 `json:"name" validate:"required"`
	SystemMessage  string                 `json:"system_message" validate:"required"`
	LLMConfig      map[string]interface{} `json:"llm_config"`
	HumanInputMode string                 `json:"human_input_mode"`
}

type Agent struct {
	AgentCreate
	ID     string   `json:"id"`
	Memory []string `json:"memory"`
}

// ChatMessage is a finished, persisted message as it appears in a snapshot.
type ChatMessage struct {
	Role      string    `json:"role"`
	AgentName string    `json:"agent_name,omitempty"`
	Content   string    `json:"content"`
	Timestamp Timestamp `json:"timestamp"`
}

// Session is the authoritative snapshot returned by the backend. It is
// replaced wholesale on refresh.
type Session struct {
	ID        string        `json:"id"`
	Agents    []Agent       `json:"agents"`
	Messages  []ChatMessage `json:"messages"`
	Summary   string        `json:"summary,omitempty"`
	CreatedAt Timestamp     `json:"created_at"`
	UpdatedAt Timestamp     `json:"updated_at"`
}

// StreamingMessage is one agent turn being assembled from content deltas.
type StreamingMessage struct {
	ID         string    `json:"id"`
	AgentName  string    `json:"agent_name"`
	Content    string    `json:"content"`
	IsComplete bool      `json:"is_complete"`
	StartedAt  time.Time `json:"started_at"`
}

// ConversationMessage is one entry of the reconciled view.
type ConversationMessage struct {
	ID         string    `json:"id"`
	Role       string    `json:"role"`
	AgentName  string    `json:"agent_name,omitempty"`
	Content    string    `json:"content"`
	IsComplete bool      `json:"is_complete"`
	Timestamp  time.Time `json:"timestamp"`
}
