package kernel

import (
	"time"

	"github.com/manthysbr/lineOS/internal/core/domain"
)

// ChatRequest is the body for POST /v1/chat and /v1/chat/stream.
type ChatRequest struct {
	Question string `json:"question"`
	ThreadID string `json:"thread_id,omitempty"`
}

// ChatResponse is the blocking chat reply.
type ChatResponse struct {
	ThreadID    string                       `json:"thread_id"`
	Answer      string                       `json:"answer"`
	Confidence  float64                      `json:"confidence"`
	TraceID     string                       `json:"trace_id,omitempty"`
	Steps       []string                     `json:"steps"`
	Timeline    []domain.TimelineEntry       `json:"timeline"`
	ToolResults map[string]domain.ToolResult `json:"tool_results,omitempty"`
	ReActSteps  []domain.ReActStep           `json:"react_steps,omitempty"`
}

// MessageView is one persisted conversation message.
type MessageView struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// ThreadMessagesResponse lists a thread's history.
type ThreadMessagesResponse struct {
	ThreadID string        `json:"thread_id"`
	Summary  string        `json:"summary,omitempty"`
	Messages []MessageView `json:"messages"`
}

// ToolView describes one registered tool.
type ToolView struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Required    []string `json:"required,omitempty"`
}

// HealthResponse is the health check body.
type HealthResponse struct {
	Status string `json:"status"`
	Model  string `json:"model"`
	Tools  int    `json:"tools"`
}

// ErrorResponse is the uniform error body.
type ErrorResponse struct {
	Error string `json:"error"`
}

func newChatResponse(state *domain.RunState) ChatResponse {
	confidence := 1.0
	if state.OutputValidation != nil {
		confidence = state.OutputValidation.Confidence
	}
	traceID, _ := state.Data["trace_id"].(string)
	return ChatResponse{
		ThreadID:    state.ThreadID,
		Answer:      state.Answer(),
		Confidence:  confidence,
		TraceID:     traceID,
		Steps:       state.Steps,
		Timeline:    state.Timeline,
		ToolResults: state.ToolResults,
		ReActSteps:  state.ReActSteps,
	}
}
