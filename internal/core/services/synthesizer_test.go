package services

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/manthysbr/lineOS/internal/core/domain"
)

func newTestSynth(llm *scriptedLLM) *Synthesizer {
	return NewSynthesizer(llm, staticPrompts{}, testTracer(), testLogger())
}

func TestSynthesizerDirectPath(t *testing.T) {
	llm := &scriptedLLM{responses: []string{"Hello! How can I help with the line today?"}}
	synth := newTestSynth(llm)

	state := domain.NewRunState("hi", "t1")
	answer, err := synth.Answer(context.Background(), state, "")
	require.NoError(t, err)
	assert.Equal(t, "Hello! How can I help with the line today?", answer)

	// No tool results: the direct prompt is selected.
	require.Len(t, llm.calls, 1)
	assert.Contains(t, llm.calls[0][0].Content, "synthesis-direct-system")
}

func TestSynthesizerDataPathIncludesResults(t *testing.T) {
	llm := &scriptedLLM{responses: []string{"ST001 is running at 92% efficiency."}}
	synth := newTestSynth(llm)

	state := domain.NewRunState("how is ST001?", "t1")
	state.ToolResults["get_station"] = domain.ToolResult{
		ToolName: "get_station",
		Success:  true,
		Data:     map[string]any{"id": "ST001", "efficiency": 92.0},
	}

	_, err := synth.Answer(context.Background(), state, "")
	require.NoError(t, err)

	require.Len(t, llm.calls, 1)
	assert.Contains(t, llm.calls[0][0].Content, "synthesis-data-system")
	assert.Contains(t, llm.calls[0][1].Content, "get_station")
	assert.Contains(t, llm.calls[0][1].Content, "ST001")
}

func TestSynthesizerTruncatesLargeResults(t *testing.T) {
	llm := &scriptedLLM{responses: []string{"summarized."}}
	synth := newTestSynth(llm)

	state := domain.NewRunState("dump everything", "t1")
	state.ToolResults["get_all_stations"] = domain.ToolResult{
		ToolName: "get_all_stations",
		Success:  true,
		Data:     strings.Repeat("station-data ", 200),
	}

	_, err := synth.Answer(context.Background(), state, "")
	require.NoError(t, err)

	user := llm.calls[0][1].Content
	assert.Contains(t, user, "...[truncated]")
	assert.Less(t, len(user), 2000)
}

func TestSynthesizerFailedResultsCarryValidationVerdict(t *testing.T) {
	llm := &scriptedLLM{responses: []string{"Could not reach the sensor."}}
	synth := newTestSynth(llm)

	state := domain.NewRunState("energy for ST009?", "t1")
	state.ToolResults["get_station_energy"] = domain.ToolResult{
		ToolName: "get_station_energy",
		Success:  false,
		Error:    "no energy data for station ST009",
	}
	state.Data["tool_errors"] = []map[string]string{
		{"tool": "get_station_energy", "error": "no energy data for station ST009"},
	}
	state.OutputValidation = &domain.OutputValidation{
		Confidence:  0,
		MissingInfo: []string{"get_station_energy failed: no energy data for station ST009"},
	}

	_, err := synth.Answer(context.Background(), state, "")
	require.NoError(t, err)

	user := llm.calls[0][1].Content
	assert.Contains(t, user, "no energy data for station ST009")
	assert.Contains(t, user, `"missing_info"`)
	assert.Contains(t, user, `"errors"`)
	assert.Contains(t, user, `"confidence": 0`)
}

func TestSynthesizerDataContextCarriesReasoningTrace(t *testing.T) {
	llm := &scriptedLLM{responses: []string{"ST002 looks like the bottleneck."}}
	synth := newTestSynth(llm)

	state := domain.NewRunState("where is the bottleneck?", "t1")
	state.Intent = &domain.IntentAnalysis{
		PrimaryIntent: "bottleneck analysis",
		Summary:       "wants the slowest station",
	}
	state.ToolResults["find_bottleneck"] = domain.ToolResult{
		ToolName: "find_bottleneck",
		Success:  true,
		Data:     map[string]any{"station_id": "ST002"},
	}
	state.Observations = []string{`{"station_id":"ST002"}`}
	state.ReActSteps = []domain.ReActStep{
		{
			Iteration:   1,
			Thought:     "I should check the slowest station.",
			Action:      "find_bottleneck",
			Observation: strings.Repeat("x", 600),
		},
		{Iteration: 2, Action: "finish", Observation: "Final Answer: ST002."},
	}
	state.Data["react_answer"] = "ST002."

	_, err := synth.Answer(context.Background(), state, "")
	require.NoError(t, err)

	user := llm.calls[0][1].Content
	assert.Contains(t, user, "I should check the slowest station.")
	assert.Contains(t, user, "wants the slowest station")
	assert.Contains(t, user, `"draft_answer": "ST002."`)
	// Long observations are cut down before they reach the prompt.
	assert.Contains(t, user, "...[truncated]")
	assert.NotContains(t, user, strings.Repeat("x", 600))
}

func TestSynthesizerMemoryGoesToSystemPrompt(t *testing.T) {
	llm := &scriptedLLM{responses: []string{"Hello again!"}}
	synth := newTestSynth(llm)

	state := domain.NewRunState("hi", "t1")
	_, err := synth.Answer(context.Background(), state, "Summary: the user tracks ST002 closely")
	require.NoError(t, err)

	require.Len(t, llm.calls, 1)
	assert.Contains(t, llm.calls[0][0].Content, "Conversation context:")
	assert.Contains(t, llm.calls[0][0].Content, "ST002")
	assert.Equal(t, "hi", llm.calls[0][1].Content)
}

func TestSynthesizerFallbackOnError(t *testing.T) {
	llm := &scriptedLLM{} // no response scripted, Complete errors
	synth := newTestSynth(llm)

	state := domain.NewRunState("hi", "t1")
	answer, err := synth.Answer(context.Background(), state, "")
	require.NoError(t, err)
	assert.Equal(t, fallbackAnswer, answer)
}

func TestSynthesizerProviderOutagePropagates(t *testing.T) {
	llm := &scriptedLLM{
		responses: []string{""},
		errs:      []error{fmt.Errorf("dial: %w", domain.ErrProviderUnavailable)},
	}
	synth := newTestSynth(llm)

	state := domain.NewRunState("hi", "t1")
	_, err := synth.Answer(context.Background(), state, "")
	assert.ErrorIs(t, err, domain.ErrProviderUnavailable)
}

func TestSynthesizerStreamEmitsDeltas(t *testing.T) {
	llm := &scriptedLLM{responses: []string{"streamed answer"}}
	synth := newTestSynth(llm)

	var got []string
	state := domain.NewRunState("hi", "t1")
	answer, err := synth.StreamAnswer(context.Background(), state, "", func(delta string) {
		got = append(got, delta)
	})
	require.NoError(t, err)
	assert.Equal(t, "streamed answer", answer)
	assert.Equal(t, []string{"streamed answer"}, got)
}

func TestSynthesizerStreamFallsBackOnError(t *testing.T) {
	llm := &scriptedLLM{}
	synth := newTestSynth(llm)

	var got []string
	state := domain.NewRunState("hi", "t1")
	answer, err := synth.StreamAnswer(context.Background(), state, "", func(delta string) {
		got = append(got, delta)
	})
	require.NoError(t, err)
	assert.Equal(t, fallbackAnswer, answer)
	assert.Equal(t, []string{fallbackAnswer}, got)
}
