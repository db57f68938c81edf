package services

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/manthysbr/lineOS/internal/core/domain"
	"github.com/manthysbr/lineOS/internal/core/ports"
)

const (
	// memoryCharBudget caps the rendered history injected into prompts.
	memoryCharBudget = 4000
	// summarySourceLimit is how many trailing messages feed a summary.
	summarySourceLimit = 16
	summaryMaxTokens   = 320
)

// MemoryStore persists conversation turns and maintains a rolling summary
// per thread. Writes to the same thread are serialized; different threads
// proceed concurrently.
type MemoryStore struct {
	repo    ports.Repository
	llm     ports.LLMProvider
	prompts ports.PromptSource
	logger  *slog.Logger

	interval int // summarize every N messages
	limit    int // recent turns rendered into prompts

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func NewMemoryStore(repo ports.Repository, llm ports.LLMProvider, prompts ports.PromptSource, cfg domain.AgentConfig, logger *slog.Logger) *MemoryStore {
	interval := cfg.SummaryInterval
	if interval <= 0 {
		interval = 12
	}
	limit := cfg.MemoryLimit
	if limit <= 0 {
		limit = 8
	}
	return &MemoryStore{
		repo:     repo,
		llm:      llm,
		prompts:  prompts,
		logger:   logger,
		interval: interval,
		limit:    limit,
		locks:    make(map[string]*sync.Mutex),
	}
}

func (m *MemoryStore) lockFor(threadID string) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.locks[threadID]
	if !ok {
		l = &sync.Mutex{}
		m.locks[threadID] = l
	}
	return l
}

// PersistTurn stores the user question and assistant answer for a thread
// and refreshes the rolling summary when the interval boundary is crossed.
// Summarization failures are logged, never surfaced: the turn itself is
// already durable.
func (m *MemoryStore) PersistTurn(ctx context.Context, threadID, question, answer string) error {
	l := m.lockFor(threadID)
	l.Lock()
	defer l.Unlock()

	if err := m.repo.AddMessage(ctx, domain.MemoryMessage{
		ThreadID: threadID,
		Role:     domain.RoleUser,
		Content:  question,
	}); err != nil {
		return fmt.Errorf("persist user turn: %w", err)
	}
	if err := m.repo.AddMessage(ctx, domain.MemoryMessage{
		ThreadID: threadID,
		Role:     domain.RoleAssistant,
		Content:  answer,
	}); err != nil {
		return fmt.Errorf("persist assistant turn: %w", err)
	}

	count, err := m.repo.CountMessages(ctx, threadID)
	if err != nil {
		m.logger.Warn("message count failed, skipping summary check", "thread_id", threadID, "error", err)
		return nil
	}
	if m.ShouldSummarize(count) {
		if err := m.summarize(ctx, threadID); err != nil {
			m.logger.Warn("thread summarization failed", "thread_id", threadID, "error", err)
		}
	}
	return nil
}

// ShouldSummarize reports whether a thread at the given message count is
// due for a summary refresh: only at exact interval boundaries.
func (m *MemoryStore) ShouldSummarize(count int) bool {
	return count >= m.interval && count%m.interval == 0
}

func (m *MemoryStore) summarize(ctx context.Context, threadID string) error {
	messages, err := m.repo.ListRecent(ctx, threadID, summarySourceLimit)
	if err != nil {
		return err
	}
	if len(messages) == 0 {
		return nil
	}

	system, err := m.prompts.Get("summary-system")
	if err != nil {
		return err
	}

	prior, err := m.repo.GetSummary(ctx, threadID)
	if err != nil {
		prior = ""
	}
	if prior == "" {
		prior = "None"
	}

	var sb strings.Builder
	sb.WriteString("Existing summary:\n")
	sb.WriteString(prior)
	sb.WriteString("\n\nRecent turns:\n")
	for _, msg := range messages {
		sb.WriteString(roleLabel(msg.Role))
		sb.WriteString(": ")
		sb.WriteString(msg.Content)
		sb.WriteByte('\n')
	}

	summary, err := m.llm.Complete(ctx, []domain.ChatMessage{
		{Role: "system", Content: system},
		{Role: "user", Content: sb.String()},
	}, summaryMaxTokens)
	if err != nil {
		return err
	}
	summary = strings.TrimSpace(summary)
	if summary == "" {
		return nil
	}

	if err := m.repo.UpsertSummary(ctx, threadID, summary); err != nil {
		return err
	}
	m.logger.Debug("thread summary updated", "thread_id", threadID, "chars", len(summary))
	return nil
}

// Context loads the prompt-facing view of a thread: its rolling summary
// plus the most recent messages.
func (m *MemoryStore) Context(ctx context.Context, threadID string) (domain.MemoryContext, error) {
	summary, err := m.repo.GetSummary(ctx, threadID)
	if err != nil {
		return domain.MemoryContext{}, err
	}
	recent, err := m.repo.ListRecent(ctx, threadID, m.limit)
	if err != nil {
		return domain.MemoryContext{}, err
	}
	return domain.MemoryContext{Summary: summary, Recent: recent}, nil
}

// Render flattens a memory context into prompt text under a hard character
// budget. Long messages keep their head and tail with an explicit trim
// marker in between, so entities mentioned early and conclusions reached
// late both survive.
func (m *MemoryStore) Render(mc domain.MemoryContext) string {
	if mc.Summary == "" && len(mc.Recent) == 0 {
		return ""
	}

	var sb strings.Builder
	if mc.Summary != "" {
		sb.WriteString("Conversation summary:\n")
		sb.WriteString(mc.Summary)
		sb.WriteString("\n\n")
	}
	if len(mc.Recent) == 0 {
		return strings.TrimSpace(sb.String())
	}

	perTurn := memoryCharBudget / len(mc.Recent)
	if perTurn < 400 {
		perTurn = 400
	}

	sb.WriteString("Recent conversation:\n")
	for _, msg := range mc.Recent {
		content := msg.Content
		if len(content) > perTurn {
			head := int(float64(perTurn) * 0.6)
			tail := int(float64(perTurn) * 0.4)
			if tail < 120 {
				tail = 120
			}
			trimmed := len(content) - head - tail
			content = fmt.Sprintf("%s ... [trimmed %d chars] ... %s", content[:head], trimmed, content[len(content)-tail:])
		}
		sb.WriteString(roleLabel(msg.Role))
		sb.WriteString(": ")
		sb.WriteString(content)
		sb.WriteByte('\n')
	}
	return strings.TrimSpace(sb.String())
}

func roleLabel(role domain.MessageRole) string {
	switch role {
	case domain.RoleUser:
		return "User"
	case domain.RoleAssistant:
		return "Assistant"
	default:
		return "System"
	}
}
