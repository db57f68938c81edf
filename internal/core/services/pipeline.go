package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/manthysbr/lineOS/internal/core/domain"
	"github.com/manthysbr/lineOS/internal/core/ports"
	"github.com/manthysbr/lineOS/internal/extract"
)

// Per-phase completion budgets.
const (
	validationMaxTokens    = 300
	understandingMaxTokens = 400
	planningMaxTokens      = 500
	reactMaxTokens         = 600
)

// PhaseOutcome reports how a phase ended. Degraded means the phase fell
// back to a heuristic because the model reply was unusable; the pipeline
// still advances.
type PhaseOutcome struct {
	Degraded bool
	Note     string
}

// Pipeline runs a question through the phase sequence:
// validate input, understand, plan, gather data (ReAct loop or planned
// execution), validate output. Synthesis and persistence live outside,
// in the agent service.
//
// Only a completely unreachable provider aborts a run. Every other
// failure (bad JSON, a failed tool, a timeout) degrades the affected
// phase and keeps going, so the user always gets an answer.
type Pipeline struct {
	llm     ports.LLMProvider
	prompts ports.PromptSource
	runner  *ToolRunner
	tracer  *TraceCollector
	logger  *slog.Logger
}

func NewPipeline(llm ports.LLMProvider, prompts ports.PromptSource, runner *ToolRunner, tracer *TraceCollector, logger *slog.Logger) *Pipeline {
	return &Pipeline{
		llm:     llm,
		prompts: prompts,
		runner:  runner,
		tracer:  tracer,
		logger:  logger,
	}
}

var greetingWords = []string{"hi", "hello", "hey", "good morning", "good afternoon"}

// isGreeting reports whether the question mentions a greeting word.
// Substring containment, not word match; established routing behavior
// that older clients depend on ("which" and "highest" trip on "hi").
func isGreeting(question string) bool {
	q := strings.ToLower(question)
	for _, g := range greetingWords {
		if strings.Contains(q, g) {
			return true
		}
	}
	return false
}

// Execute runs all pre-synthesis phases, mutating state in place.
// When input validation rejects the question, the clarification text is
// stored as the answer and the remaining phases are skipped.
func (p *Pipeline) Execute(ctx context.Context, state *domain.RunState, memory string) error {
	out, err := p.validateInput(ctx, state, memory)
	if err != nil {
		return err
	}
	p.noteOutcome("input_validation", out)
	if state.Answer() != "" {
		// Rejected or needs clarification; nothing to gather.
		return nil
	}

	out, err = p.understand(ctx, state, memory)
	if err != nil {
		return err
	}
	p.noteOutcome("understanding", out)

	out, err = p.plan(ctx, state)
	if err != nil {
		return err
	}
	p.noteOutcome("planning", out)

	switch {
	case state.ReactEnabled && state.Intent != nil && state.Intent.RequiresLiveData:
		if err := p.runReact(ctx, state); err != nil {
			return err
		}
	case len(state.ToolPlan) > 0:
		p.executePlan(ctx, state)
	}

	p.validateOutput(state)
	return nil
}

// --- Phase: input validation ---

func (p *Pipeline) validateInput(ctx context.Context, state *domain.RunState, memory string) (PhaseOutcome, error) {
	ctx, spanID := p.tracer.StartSpan(ctx, "input_validation", domain.SpanKindPhase, nil)

	raw, err := p.completeJSON(ctx, "input-validation-system", p.withMemory(memory, state.Question), validationMaxTokens)
	if err != nil {
		if errors.Is(err, domain.ErrProviderUnavailable) || isConfigError(err) {
			p.tracer.EndSpan(spanID, domain.SpanStatusError, "", err.Error())
			return PhaseOutcome{}, err
		}
		// Unusable reply: assume the question is fine and move on.
		state.InputValidation = &domain.InputValidation{
			Status: domain.ValidationValid, IsSafe: true, IsClear: true, IsRelevant: true,
			Reason: "validation degraded: " + err.Error(),
		}
		state.RecordStep("input_validation", "Validation degraded, assuming valid input")
		p.tracer.EndSpan(spanID, domain.SpanStatusOK, "degraded", "")
		return PhaseOutcome{Degraded: true, Note: err.Error()}, nil
	}

	var v domain.InputValidation
	decodeInto(raw, &v)
	if v.Status == "" {
		v.Status = domain.ValidationValid
	}
	state.InputValidation = &v

	switch v.Status {
	case domain.ValidationValid:
		state.RecordStep("input_validation", "Input accepted")
	case domain.ValidationNeedsClarification:
		answer := v.SuggestedClarification
		if answer == "" {
			answer = "Could you clarify what you would like to know about the production line?"
		}
		state.SetAnswer(answer)
		state.RecordStep("input_validation", "Input needs clarification")
	default: // invalid, off_topic
		answer := v.Reason
		if answer == "" {
			answer = "I can only help with questions about the production line."
		}
		state.SetAnswer(answer)
		state.RecordStep("input_validation", fmt.Sprintf("Input rejected (%s)", v.Status))
	}

	p.tracer.EndSpan(spanID, domain.SpanStatusOK, string(v.Status), "")
	return PhaseOutcome{}, nil
}

// --- Phase: understanding ---

func (p *Pipeline) understand(ctx context.Context, state *domain.RunState, memory string) (PhaseOutcome, error) {
	ctx, spanID := p.tracer.StartSpan(ctx, "understanding", domain.SpanKindPhase, nil)

	raw, err := p.completeJSON(ctx, "understanding-system", p.withMemory(memory, state.Question), understandingMaxTokens)
	if err != nil {
		if errors.Is(err, domain.ErrProviderUnavailable) || isConfigError(err) {
			p.tracer.EndSpan(spanID, domain.SpanStatusError, "", err.Error())
			return PhaseOutcome{}, err
		}
		// Heuristic fallback: greetings and very short inputs answer
		// directly, anything substantial is assumed to need live data.
		state.Intent = &domain.IntentAnalysis{
			PrimaryIntent:    "general_query",
			RequiresLiveData: !isGreeting(state.Question) && len(state.Question) > 10,
			Confidence:       0.7,
			Summary:          "understanding degraded, heuristic routing",
		}
		state.RecordStep("understanding", "Understanding degraded, using heuristic intent")
		p.tracer.EndSpan(spanID, domain.SpanStatusOK, "degraded", "")
		return PhaseOutcome{Degraded: true, Note: err.Error()}, nil
	}

	var intent domain.IntentAnalysis
	decodeInto(raw, &intent)
	if intent.Confidence == 0 {
		intent.Confidence = 0.7
	}
	state.Intent = &intent
	state.RecordStep("understanding",
		fmt.Sprintf("Intent: %s (live data: %t)", intent.PrimaryIntent, intent.RequiresLiveData),
		"intent")

	p.tracer.EndSpan(spanID, domain.SpanStatusOK, intent.PrimaryIntent, "")
	return PhaseOutcome{}, nil
}

// --- Phase: planning ---

func (p *Pipeline) plan(ctx context.Context, state *domain.RunState) (PhaseOutcome, error) {
	ctx, spanID := p.tracer.StartSpan(ctx, "planning", domain.SpanKindPhase, nil)

	if state.Intent == nil || !state.Intent.RequiresLiveData {
		state.ExecutionStrategy = "direct"
		state.RecordStep("planning", "Direct response path (no tools needed)")
		p.tracer.EndSpan(spanID, domain.SpanStatusOK, "direct", "")
		return PhaseOutcome{}, nil
	}

	prompt := state.Question + "\n\n" + p.runner.Registry().FormatForPrompt()
	raw, err := p.completeJSON(ctx, "planning-system", prompt, planningMaxTokens)
	if err != nil {
		if errors.Is(err, domain.ErrProviderUnavailable) || isConfigError(err) {
			p.tracer.EndSpan(spanID, domain.SpanStatusError, "", err.Error())
			return PhaseOutcome{}, err
		}
		// The ReAct loop plans its own calls; an empty plan is fine there.
		state.ExecutionStrategy = "direct"
		state.RecordStep("planning", "Planning degraded, continuing without a pre-built plan")
		state.Data["planning_error"] = err.Error()
		p.tracer.EndSpan(spanID, domain.SpanStatusOK, "degraded", "")
		return PhaseOutcome{Degraded: true, Note: err.Error()}, nil
	}

	if strategy, ok := raw["strategy"].(string); ok && strategy != "" {
		state.ExecutionStrategy = strategy
	}
	if tools, ok := raw["tools"].([]any); ok {
		for _, t := range tools {
			tm, ok := t.(map[string]any)
			if !ok {
				continue
			}
			var item domain.ToolPlanItem
			decodeInto(tm, &item)
			if item.Name == "" {
				continue
			}
			// Hallucinated tool names are dropped, never invoked.
			if _, registered := p.runner.Registry().Get(item.Name); !registered {
				continue
			}
			state.ToolPlan = append(state.ToolPlan, item)
		}
	}
	state.RecordStep("planning", fmt.Sprintf("Planned %d tool call(s)", len(state.ToolPlan)), "tool_plan")

	p.tracer.EndSpan(spanID, domain.SpanStatusOK, fmt.Sprintf("%d tools", len(state.ToolPlan)), "")
	return PhaseOutcome{}, nil
}

func (p *Pipeline) noteOutcome(phase string, out PhaseOutcome) {
	if out.Degraded {
		p.logger.Warn("phase degraded", "phase", phase, "note", out.Note)
	}
}

// --- Phase: output validation ---

// validateOutput scores the gathered data before synthesis. A run that
// touched no tools is trusted fully; otherwise the mode that gathered the
// data decides how it is scored.
func (p *Pipeline) validateOutput(state *domain.RunState) {
	if len(state.ToolResults) == 0 && len(state.ReActSteps) == 0 {
		state.OutputValidation = &domain.OutputValidation{
			IsComplete: true, IsAccurate: true, IsSafe: true, Confidence: 1.0,
		}
		state.RecordStep("output_validation", "Nothing to validate, direct response")
		return
	}

	if len(state.ReActSteps) > 0 {
		p.validateReactOutput(state)
		return
	}
	p.validateLegacyOutput(state)
}

// validateReactOutput scores a reasoning run per step. A non-finish step
// counts as successful when its observation is present and is not an
// error; error observations accumulate as missing information. Hitting
// the iteration cap without a finish is penalized.
func (p *Pipeline) validateReactOutput(state *domain.RunState) {
	successes, total := 0, 0
	var missing []string
	for _, step := range state.ReActSteps {
		if strings.HasPrefix(step.Observation, "Error:") {
			missing = append(missing, step.Observation)
		}
		if step.Action == extract.FinishAction {
			continue
		}
		total++
		if step.Observation != "" && !strings.HasPrefix(step.Observation, "Error:") {
			successes++
		}
	}

	confidence := 1.0
	if total > 0 {
		confidence = float64(successes) / float64(total)
	}

	finished := reactFinished(state)
	var warnings []string
	if !finished {
		confidence *= 0.8
		warnings = append(warnings, "reasoning loop reached its iteration limit without finishing")
	}

	state.OutputValidation = &domain.OutputValidation{
		IsComplete:  len(missing) == 0 && finished,
		IsAccurate:  true,
		IsSafe:      true,
		Confidence:  confidence,
		MissingInfo: missing,
		Warnings:    warnings,
	}
	if len(missing) > 0 {
		state.RecordStep("output_validation", fmt.Sprintf("Partial data (%d/%d actions)", successes, total))
	} else {
		state.RecordStep("output_validation", fmt.Sprintf("Reasoning completed (%d steps)", len(state.ReActSteps)))
	}
}

// validateLegacyOutput scores a planned execution run per tool result.
// Failures land in missing information; a success that carried no data
// only warns.
func (p *Pipeline) validateLegacyOutput(state *domain.RunState) {
	successes, total := 0, len(state.ToolResults)
	var warnings, missing []string
	for _, name := range sortedResultNames(state.ToolResults) {
		res := state.ToolResults[name]
		if !res.Success {
			missing = append(missing, fmt.Sprintf("%s failed: %s", name, res.Error))
			continue
		}
		successes++
		if res.Data == nil {
			warnings = append(warnings, name+" returned no data")
		}
	}

	confidence := 1.0
	if total > 0 {
		confidence = float64(successes) / float64(total)
	}

	state.OutputValidation = &domain.OutputValidation{
		IsComplete:  len(missing) == 0,
		IsAccurate:  true,
		IsSafe:      true,
		Confidence:  confidence,
		MissingInfo: missing,
		Warnings:    warnings,
	}
	if len(missing) > 0 {
		state.RecordStep("output_validation", fmt.Sprintf("Partial data (%d/%d tools)", successes, total))
	} else {
		state.RecordStep("output_validation", "Results validated")
	}
}

func reactFinished(state *domain.RunState) bool {
	for _, step := range state.ReActSteps {
		if step.Action == extract.FinishAction {
			return true
		}
	}
	return false
}

// --- Shared helpers ---

// completeJSON runs one phase completion and parses the reply as a JSON
// object. Prompt lookup failures are fatal configuration errors.
func (p *Pipeline) completeJSON(ctx context.Context, promptName, userContent string, maxTokens int) (map[string]any, error) {
	system, err := p.prompts.Get(promptName)
	if err != nil {
		return nil, fmt.Errorf("load prompt %s: %w", promptName, err)
	}

	ctx, spanID := p.tracer.StartSpan(ctx, promptName, domain.SpanKindLLM, nil)
	p.tracer.SetSpanInput(spanID, userContent)

	response, err := p.llm.Complete(ctx, []domain.ChatMessage{
		{Role: "system", Content: system},
		{Role: "user", Content: userContent},
	}, maxTokens)
	if err != nil {
		p.tracer.EndSpan(spanID, domain.SpanStatusError, "", err.Error())
		return nil, err
	}
	p.tracer.EndSpan(spanID, domain.SpanStatusOK, response, "")

	return extract.JSONObject(response)
}

func (p *Pipeline) withMemory(memory, question string) string {
	if memory == "" {
		return question
	}
	return memory + "\n\nCurrent question: " + question
}

func isConfigError(err error) bool {
	return errors.Is(err, domain.ErrPromptNotFound)
}

// decodeInto maps a parsed JSON object onto a typed struct via a
// marshal round-trip. Unknown keys are ignored, missing keys zeroed.
func decodeInto(m map[string]any, v any) {
	b, err := json.Marshal(m)
	if err != nil {
		return
	}
	_ = json.Unmarshal(b, v)
}
