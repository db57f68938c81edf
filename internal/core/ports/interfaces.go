package ports

import (
	"context"

	"github.com/manthysbr/lineOS/internal/core/domain"
)

// Repository abstracts the persistent storage (DuckDB).
type Repository interface {
	// Messages
	AddMessage(ctx context.Context, msg domain.MemoryMessage) error
	// ListRecent returns the most recent messages for a thread in
	// chronological (oldest-first) order, regardless of storage order.
	ListRecent(ctx context.Context, threadID string, limit int) ([]domain.MemoryMessage, error)
	CountMessages(ctx context.Context, threadID string) (int, error)

	// Summaries (at most one per thread, upserted)
	GetSummary(ctx context.Context, threadID string) (string, error)
	UpsertSummary(ctx context.Context, threadID, summary string) error

	// Traces
	SaveTrace(ctx context.Context, trace *domain.Trace) error
	ListTraces(ctx context.Context, limit int) ([]domain.TraceSummary, error)
	GetTrace(ctx context.Context, id domain.TraceID) (*domain.Trace, error)

	// Settings
	GetSetting(ctx context.Context, key string) (string, error)
	SaveSetting(ctx context.Context, key, value string) error
}

// LLMProvider abstracts the completion backend. Implementations own
// model-specific parameter mapping (token-limit naming per model family).
type LLMProvider interface {
	// Complete sends a message list and returns the full response text.
	Complete(ctx context.Context, messages []domain.ChatMessage, maxTokens int) (string, error)

	// Stream sends a message list and invokes onDelta for each text
	// increment in order. It returns the accumulated text once the
	// provider signals end of stream.
	Stream(ctx context.Context, messages []domain.ChatMessage, maxTokens int, onDelta func(delta string)) (string, error)
}

// PromptSource resolves phase system prompts by logical name.
// A missing required prompt is an error; there is no embedded default.
type PromptSource interface {
	Get(name string) (string, error)
}
