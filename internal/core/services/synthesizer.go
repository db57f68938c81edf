package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/manthysbr/lineOS/internal/core/domain"
	"github.com/manthysbr/lineOS/internal/core/ports"
)

const (
	synthesisMaxTokens = 400
	// maxSynthesisResultChars caps each tool result rendered into the
	// synthesis prompt.
	maxSynthesisResultChars = 500
)

// fallbackAnswer is returned when synthesis itself fails. The user gets
// a polite nudge instead of an error page.
const fallbackAnswer = "Happy to help. Could you share a bit more detail?"

// Synthesizer turns a completed run state into the final natural-language
// answer, in blocking or streaming form.
type Synthesizer struct {
	llm     ports.LLMProvider
	prompts ports.PromptSource
	tracer  *TraceCollector
	logger  *slog.Logger
}

func NewSynthesizer(llm ports.LLMProvider, prompts ports.PromptSource, tracer *TraceCollector, logger *slog.Logger) *Synthesizer {
	return &Synthesizer{llm: llm, prompts: prompts, tracer: tracer, logger: logger}
}

// Answer produces the final answer text. Synthesis failures degrade to a
// fixed fallback; a fatal provider outage propagates.
func (s *Synthesizer) Answer(ctx context.Context, state *domain.RunState, memory string) (string, error) {
	messages, err := s.buildMessages(state, memory)
	if err != nil {
		return "", err
	}

	ctx, spanID := s.tracer.StartSpan(ctx, "synthesis", domain.SpanKindLLM, nil)
	answer, err := s.llm.Complete(ctx, messages, synthesisMaxTokens)
	if err != nil {
		s.tracer.EndSpan(spanID, domain.SpanStatusError, "", err.Error())
		if errors.Is(err, domain.ErrProviderUnavailable) {
			return "", err
		}
		s.logger.Warn("synthesis failed, using fallback answer", "error", err)
		return fallbackAnswer, nil
	}
	s.tracer.EndSpan(spanID, domain.SpanStatusOK, answer, "")

	answer = strings.TrimSpace(answer)
	if answer == "" {
		answer = fallbackAnswer
	}
	return answer, nil
}

// StreamAnswer streams the final answer, invoking onDelta per text chunk,
// and returns the accumulated text. On a non-fatal failure the fallback
// answer is emitted as a single chunk.
func (s *Synthesizer) StreamAnswer(ctx context.Context, state *domain.RunState, memory string, onDelta func(string)) (string, error) {
	messages, err := s.buildMessages(state, memory)
	if err != nil {
		return "", err
	}

	ctx, spanID := s.tracer.StartSpan(ctx, "synthesis", domain.SpanKindLLM, nil)
	answer, err := s.llm.Stream(ctx, messages, synthesisMaxTokens, onDelta)
	if err != nil {
		s.tracer.EndSpan(spanID, domain.SpanStatusError, "", err.Error())
		if errors.Is(err, domain.ErrProviderUnavailable) {
			return "", err
		}
		s.logger.Warn("streaming synthesis failed, using fallback answer", "error", err)
		onDelta(fallbackAnswer)
		return fallbackAnswer, nil
	}
	s.tracer.EndSpan(spanID, domain.SpanStatusOK, answer, "")

	answer = strings.TrimSpace(answer)
	if answer == "" {
		answer = fallbackAnswer
		onDelta(fallbackAnswer)
	}
	return answer, nil
}

// synthesisContext is the JSON document handed to the data-grounded
// synthesis prompt: everything the run gathered, plus the validation
// verdict, so the model can ground and caveat its answer.
type synthesisContext struct {
	Question      string                       `json:"question"`
	IntentSummary string                       `json:"intent_summary"`
	PrimaryIntent string                       `json:"primary_intent"`
	ToolResults   map[string]domain.ToolResult `json:"tool_results"`
	Observations  []string                     `json:"observations"`
	Validation    synthesisValidation          `json:"validation"`
	Errors        []map[string]string          `json:"errors"`
	Reasoning     []synthesisStep              `json:"reasoning,omitempty"`
	DraftAnswer   string                       `json:"draft_answer,omitempty"`
}

type synthesisValidation struct {
	Confidence  float64  `json:"confidence"`
	Warnings    []string `json:"warnings"`
	MissingInfo []string `json:"missing_info"`
}

type synthesisStep struct {
	Thought     string `json:"thought,omitempty"`
	Action      string `json:"action,omitempty"`
	Observation string `json:"observation,omitempty"`
}

// buildMessages picks the direct or data-grounded prompt. A run that
// neither planned nor gathered anything answers conversationally; any
// other run gets the full JSON context.
func (s *Synthesizer) buildMessages(state *domain.RunState, memory string) ([]domain.ChatMessage, error) {
	dataDriven := len(state.ToolPlan) > 0 || len(state.ToolResults) > 0
	promptName := "synthesis-direct-system"
	if dataDriven {
		promptName = "synthesis-data-system"
	}
	system, err := s.prompts.Get(promptName)
	if err != nil {
		return nil, fmt.Errorf("load prompt %s: %w", promptName, err)
	}
	if memory != "" {
		system += "\n\nConversation context:\n" + memory
	}

	if !dataDriven {
		return []domain.ChatMessage{
			{Role: "system", Content: system},
			{Role: "user", Content: state.Question},
		}, nil
	}

	sc := synthesisContext{
		Question:     state.Question,
		ToolResults:  boundedResults(state.ToolResults),
		Observations: state.Observations,
		Validation:   synthesisValidation{Confidence: 1.0, Warnings: []string{}, MissingInfo: []string{}},
		Errors:       []map[string]string{},
	}
	if state.Intent != nil {
		sc.IntentSummary = state.Intent.Summary
		sc.PrimaryIntent = state.Intent.PrimaryIntent
	}
	if ov := state.OutputValidation; ov != nil {
		sc.Validation.Confidence = ov.Confidence
		if ov.Warnings != nil {
			sc.Validation.Warnings = ov.Warnings
		}
		if ov.MissingInfo != nil {
			sc.Validation.MissingInfo = ov.MissingInfo
		}
	}
	if errs, ok := state.Data["tool_errors"].([]map[string]string); ok {
		sc.Errors = errs
	}
	for _, step := range state.ReActSteps {
		sc.Reasoning = append(sc.Reasoning, synthesisStep{
			Thought:     step.Thought,
			Action:      step.Action,
			Observation: truncate(step.Observation, maxSynthesisResultChars),
		})
	}
	if draft, ok := state.Data["react_answer"].(string); ok && draft != "" {
		sc.DraftAnswer = draft
	}

	payload, err := json.MarshalIndent(sc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode synthesis context: %w", err)
	}
	return []domain.ChatMessage{
		{Role: "system", Content: system},
		{Role: "user", Content: string(payload)},
	}, nil
}

// boundedResults copies the result map, replacing oversized payloads with
// a truncated JSON rendering so the prompt stays within budget.
func boundedResults(results map[string]domain.ToolResult) map[string]domain.ToolResult {
	out := make(map[string]domain.ToolResult, len(results))
	for name, res := range results {
		if res.Success {
			if raw, err := json.Marshal(res.Data); err == nil && len(raw) > maxSynthesisResultChars {
				res.Data = truncate(string(raw), maxSynthesisResultChars)
			}
		}
		out[name] = res
	}
	return out
}

func sortedResultNames(results map[string]domain.ToolResult) []string {
	names := make([]string, 0, len(results))
	for name := range results {
		names = append(names, name)
	}
	// Deterministic prompt rendering across runs.
	sort.Strings(names)
	return names
}
