package domain

import "time"

// MessageRole defines who authored a persisted message.
type MessageRole string

const (
	RoleUser      MessageRole = "user"
	RoleAssistant MessageRole = "assistant"
	RoleSystem    MessageRole = "system"
)

// MemoryMessage is one persisted conversation turn half.
type MemoryMessage struct {
	ThreadID  string      `json:"thread_id"`
	Role      MessageRole `json:"role"`
	Content   string      `json:"content"`
	CreatedAt time.Time   `json:"created_at"`
}

// ThreadSummary is the rolling compact summary of a thread.
// At most one exists per thread; writes upsert.
type ThreadSummary struct {
	ThreadID  string    `json:"thread_id"`
	Summary   string    `json:"summary"`
	UpdatedAt time.Time `json:"updated_at"`
}

// MemoryContext is what the phases render into their prompts.
type MemoryContext struct {
	Summary string          `json:"summary,omitempty"`
	Recent  []MemoryMessage `json:"recent,omitempty"`
}

// ChatMessage is one entry in an LLM request message list.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}
