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

func newTestAgent(t *testing.T, llm *scriptedLLM, repo *memRepo, tools ...*domain.Tool) *AgentService {
	t.Helper()
	registry := domain.NewToolRegistry()
	for _, tool := range tools {
		require.NoError(t, registry.Register(tool))
	}
	cfg := domain.AgentConfig{
		ReactEnabled:       true,
		ReactMaxIterations: domain.DefaultMaxIterations,
		SummaryInterval:    12,
		MemoryLimit:        8,
	}
	tracer := testTracer()
	runner := NewToolRunner(registry, tracer, testLogger())
	pipeline := NewPipeline(llm, staticPrompts{}, runner, tracer, testLogger())
	synth := NewSynthesizer(llm, staticPrompts{}, tracer, testLogger())
	memory := NewMemoryStore(repo, llm, staticPrompts{}, cfg, testLogger())
	return NewAgentService(pipeline, synth, memory, tracer, NewEventBus(testLogger()), cfg, testLogger())
}

func TestAgentRunGreeting(t *testing.T) {
	repo := newMemRepo()
	llm := &scriptedLLM{responses: []string{
		validInputJSON,
		directIntent,
		"Hello! Ask me anything about the line.",
	}}
	agent := newTestAgent(t, llm, repo)

	state, err := agent.Run(context.Background(), "hi", "")
	require.NoError(t, err)

	assert.Equal(t, "Hello! Ask me anything about the line.", state.Answer())
	assert.True(t, strings.HasPrefix(state.ThreadID, "thread-"))

	// Final timeline entry marks completion.
	require.NotEmpty(t, state.Timeline)
	assert.Equal(t, "Response complete", state.Timeline[len(state.Timeline)-1].Message)

	// Both turn halves persisted.
	msgs, err := repo.ListRecent(context.Background(), state.ThreadID, 10)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "hi", msgs[0].Content)
}

func TestAgentRunWithTools(t *testing.T) {
	repo := newMemRepo()
	tool := &domain.Tool{
		Name:        "find_bottleneck",
		Description: "bottleneck",
		Execute: func(_ context.Context, _ map[string]any) (any, error) {
			return map[string]any{"bottleneck_station_id": "ST003"}, nil
		},
	}
	llm := &scriptedLLM{responses: []string{
		validInputJSON,
		liveIntent,
		emptyPlanJSON,
		"Thought: find it\nAction: find_bottleneck\nAction Input: {}",
		"Final Answer: ST003 is the bottleneck.",
		"ST003 is currently the bottleneck on the line.",
	}}
	agent := newTestAgent(t, llm, repo, tool)

	state, err := agent.Run(context.Background(), "where is the bottleneck?", "t9")
	require.NoError(t, err)

	assert.Equal(t, "ST003 is currently the bottleneck on the line.", state.Answer())
	assert.True(t, state.ToolResults["find_bottleneck"].Success)
	assert.Equal(t, 1.0, state.OutputValidation.Confidence)
	assert.NotEmpty(t, state.Data["trace_id"])
}

func TestAgentRunClarificationSkipsSynthesis(t *testing.T) {
	repo := newMemRepo()
	llm := &scriptedLLM{responses: []string{
		`{"status": "needs_clarification", "is_safe": true, "is_clear": false, "is_relevant": true,
		  "suggested_clarification": "Which metric do you mean?"}`,
	}}
	agent := newTestAgent(t, llm, repo)

	state, err := agent.Run(context.Background(), "numbers?", "t1")
	require.NoError(t, err)
	assert.Equal(t, "Which metric do you mean?", state.Answer())
	assert.Empty(t, llm.responses, "synthesis must not consume a model call")
}

func TestAgentStreamDeliversDeltas(t *testing.T) {
	repo := newMemRepo()
	llm := &scriptedLLM{responses: []string{
		validInputJSON,
		directIntent,
		"Streaming hello.",
	}}
	agent := newTestAgent(t, llm, repo)

	var deltas []string
	state, err := agent.Stream(context.Background(), "hello", "t1", func(d string) {
		deltas = append(deltas, d)
	})
	require.NoError(t, err)
	assert.Equal(t, "Streaming hello.", state.Answer())
	assert.Equal(t, []string{"Streaming hello."}, deltas)
}

func TestAgentStreamShortCircuitAnswerIsStreamedWhole(t *testing.T) {
	repo := newMemRepo()
	llm := &scriptedLLM{responses: []string{
		`{"status": "off_topic", "is_safe": true, "is_clear": true, "is_relevant": false,
		  "reason": "I can only help with questions about the production line."}`,
	}}
	agent := newTestAgent(t, llm, repo)

	var deltas []string
	state, err := agent.Stream(context.Background(), "stock tips?", "t1", func(d string) {
		deltas = append(deltas, d)
	})
	require.NoError(t, err)
	require.Len(t, deltas, 1)
	assert.Equal(t, state.Answer(), deltas[0])
}

func TestAgentRunProviderOutage(t *testing.T) {
	repo := newMemRepo()
	llm := &scriptedLLM{
		responses: []string{""},
		errs:      []error{fmt.Errorf("dial: %w", domain.ErrProviderUnavailable)},
	}
	agent := newTestAgent(t, llm, repo)

	state, err := agent.Run(context.Background(), "hi", "t1")
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrProviderUnavailable)
	require.NotEmpty(t, state.Timeline)
	assert.Equal(t, "Response failed", state.Timeline[len(state.Timeline)-1].Message)

	// Nothing persisted for a failed run.
	count, _ := repo.CountMessages(context.Background(), "t1")
	assert.Equal(t, 0, count)
}

func TestAgentToolTimeoutStillAnswers(t *testing.T) {
	repo := newMemRepo()
	// A tool that ignores its context entirely would hit the 30s cap; here
	// it respects cancellation so the test stays fast, and the runner
	// reports the deadline error either way.
	slow := &domain.Tool{
		Name:        "slow_sensor",
		Description: "never answers",
		Execute: func(ctx context.Context, _ map[string]any) (any, error) {
			<-ctx.Done()
			return nil, fmt.Errorf("Tool call timed out after 30 seconds")
		},
	}
	llm := &scriptedLLM{responses: []string{
		validInputJSON,
		liveIntent,
		emptyPlanJSON,
		"Thought: read sensor\nAction: slow_sensor\nAction Input: {}",
		"Final Answer: sensor unavailable.",
		"The sensor did not respond; data is currently unavailable.",
	}}
	agent := newTestAgent(t, llm, repo, slow)

	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()

	state, err := agent.Run(ctx, "read the slow sensor", "t1")
	require.NoError(t, err)

	assert.False(t, state.ToolResults["slow_sensor"].Success)
	assert.Equal(t, 0.0, state.OutputValidation.Confidence)
	assert.NotEmpty(t, state.Answer())
}
