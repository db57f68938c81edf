package services

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/manthysbr/lineOS/internal/core/domain"
)

func newTestMemory(repo *memRepo, llm *scriptedLLM) *MemoryStore {
	return NewMemoryStore(repo, llm, staticPrompts{}, domain.AgentConfig{
		SummaryInterval: 12,
		MemoryLimit:     8,
	}, testLogger())
}

func TestShouldSummarize(t *testing.T) {
	m := newTestMemory(newMemRepo(), &scriptedLLM{})

	assert.False(t, m.ShouldSummarize(0))
	assert.False(t, m.ShouldSummarize(11))
	assert.True(t, m.ShouldSummarize(12))
	assert.False(t, m.ShouldSummarize(13))
	assert.True(t, m.ShouldSummarize(24))
	assert.False(t, m.ShouldSummarize(25))
}

func TestPersistTurnStoresBothHalves(t *testing.T) {
	repo := newMemRepo()
	m := newTestMemory(repo, &scriptedLLM{})

	require.NoError(t, m.PersistTurn(context.Background(), "t1", "what is OEE?", "OEE is ..."))

	msgs, err := repo.ListRecent(context.Background(), "t1", 10)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, domain.RoleUser, msgs[0].Role)
	assert.Equal(t, "what is OEE?", msgs[0].Content)
	assert.Equal(t, domain.RoleAssistant, msgs[1].Role)
}

func TestPersistTurnRefreshesSummaryAtInterval(t *testing.T) {
	repo := newMemRepo()
	llm := &scriptedLLM{responses: []string{"- user is tracking OEE on ST001"}}
	m := newTestMemory(repo, llm)

	// 5 turns = 10 messages, below the interval: no summary yet.
	for i := 0; i < 5; i++ {
		require.NoError(t, m.PersistTurn(context.Background(), "t1", fmt.Sprintf("q%d", i), "a"))
	}
	summary, _ := repo.GetSummary(context.Background(), "t1")
	assert.Empty(t, summary)

	// Turn 6 crosses 12 messages and triggers summarization.
	require.NoError(t, m.PersistTurn(context.Background(), "t1", "q6", "a"))
	summary, _ = repo.GetSummary(context.Background(), "t1")
	assert.Equal(t, "- user is tracking OEE on ST001", summary)
}

func TestPersistTurnSummaryFailureIsNotFatal(t *testing.T) {
	repo := newMemRepo()
	llm := &scriptedLLM{} // no scripted response: summarization errors
	m := newTestMemory(repo, llm)

	for i := 0; i < 6; i++ {
		require.NoError(t, m.PersistTurn(context.Background(), "t1", "q", "a"))
	}
	count, _ := repo.CountMessages(context.Background(), "t1")
	assert.Equal(t, 12, count)
}

func TestRenderEmptyContext(t *testing.T) {
	m := newTestMemory(newMemRepo(), &scriptedLLM{})
	assert.Empty(t, m.Render(domain.MemoryContext{}))
}

func TestRenderIncludesSummaryAndTurns(t *testing.T) {
	m := newTestMemory(newMemRepo(), &scriptedLLM{})

	out := m.Render(domain.MemoryContext{
		Summary: "- watching ST001",
		Recent: []domain.MemoryMessage{
			{Role: domain.RoleUser, Content: "how is ST001?", CreatedAt: time.Now()},
			{Role: domain.RoleAssistant, Content: "Running at 92%.", CreatedAt: time.Now()},
		},
	})

	assert.Contains(t, out, "Conversation summary:")
	assert.Contains(t, out, "- watching ST001")
	assert.Contains(t, out, "User: how is ST001?")
	assert.Contains(t, out, "Assistant: Running at 92%.")
}

func TestRenderTrimsLongMessages(t *testing.T) {
	m := newTestMemory(newMemRepo(), &scriptedLLM{})

	long := strings.Repeat("x", 6000)
	out := m.Render(domain.MemoryContext{
		Recent: []domain.MemoryMessage{
			{Role: domain.RoleUser, Content: "start-" + long + "-end"},
		},
	})

	assert.Contains(t, out, "[trimmed")
	assert.Contains(t, out, "User: start-")
	assert.Contains(t, out, "-end")
	assert.Less(t, len(out), 6000)
}

func TestRenderShortMessagesUntouched(t *testing.T) {
	m := newTestMemory(newMemRepo(), &scriptedLLM{})

	out := m.Render(domain.MemoryContext{
		Recent: []domain.MemoryMessage{
			{Role: domain.RoleUser, Content: "short question"},
		},
	})
	assert.NotContains(t, out, "[trimmed")
}
