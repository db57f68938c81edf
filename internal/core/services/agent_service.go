package services

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/manthysbr/lineOS/internal/core/domain"
)

// AgentService is the front door for question answering. It owns the
// run lifecycle around the pipeline: memory context, synthesis,
// persistence, and tracing.
type AgentService struct {
	pipeline *Pipeline
	synth    *Synthesizer
	memory   *MemoryStore
	tracer   *TraceCollector
	bus      *EventBus
	logger   *slog.Logger
	cfg      domain.AgentConfig
}

func NewAgentService(pipeline *Pipeline, synth *Synthesizer, memory *MemoryStore, tracer *TraceCollector, bus *EventBus, cfg domain.AgentConfig, logger *slog.Logger) *AgentService {
	return &AgentService{
		pipeline: pipeline,
		synth:    synth,
		memory:   memory,
		tracer:   tracer,
		bus:      bus,
		logger:   logger,
		cfg:      cfg,
	}
}

// Run answers one question end to end and returns the final state.
// The only error callers ever see is a completely unreachable provider.
func (a *AgentService) Run(ctx context.Context, question, threadID string) (*domain.RunState, error) {
	return a.run(ctx, question, threadID, nil)
}

// Stream behaves like Run but emits the answer incrementally through
// onDelta as synthesis produces it.
func (a *AgentService) Stream(ctx context.Context, question, threadID string, onDelta func(string)) (*domain.RunState, error) {
	return a.run(ctx, question, threadID, onDelta)
}

func (a *AgentService) run(ctx context.Context, question, threadID string, onDelta func(string)) (*domain.RunState, error) {
	state := domain.NewRunState(question, threadID)
	state.ReactEnabled = a.cfg.ReactEnabled
	if a.cfg.ReactMaxIterations > 0 {
		state.ReactMaxIterations = a.cfg.ReactMaxIterations
	}

	ctx, traceID, _ := a.tracer.StartTrace(ctx, "agent_run", state.ThreadID)
	state.Data["trace_id"] = string(traceID)

	memText := a.loadMemory(ctx, state.ThreadID)

	if err := a.pipeline.Execute(ctx, state, memText); err != nil {
		return a.fail(state, traceID, err)
	}

	if state.Answer() == "" {
		var answer string
		var err error
		if onDelta != nil {
			answer, err = a.synth.StreamAnswer(ctx, state, memText, onDelta)
		} else {
			answer, err = a.synth.Answer(ctx, state, memText)
		}
		if err != nil {
			return a.fail(state, traceID, err)
		}
		state.SetAnswer(answer)
	} else if onDelta != nil {
		// Validation short-circuited with a fixed reply; stream it whole.
		onDelta(state.Answer())
	}

	state.RecordStep("finalize", "Response complete")

	if err := a.memory.PersistTurn(ctx, state.ThreadID, question, state.Answer()); err != nil {
		a.logger.Warn("failed to persist turn", "thread_id", state.ThreadID, "error", err)
	}

	a.tracer.EndTrace(traceID, domain.SpanStatusOK, "")
	a.publishAnswer(state)

	a.logger.Info("run complete",
		"thread_id", state.ThreadID,
		"phases", len(state.Timeline),
		"tool_calls", len(state.ToolResults),
		"confidence", confidenceOf(state))

	return state, nil
}

func (a *AgentService) fail(state *domain.RunState, traceID domain.TraceID, err error) (*domain.RunState, error) {
	state.RecordStep("finalize", "Response failed")
	a.tracer.EndTrace(traceID, domain.SpanStatusError, err.Error())
	a.logger.Error("run failed", "thread_id", state.ThreadID, "error", err)
	return state, err
}

func (a *AgentService) loadMemory(ctx context.Context, threadID string) string {
	mc, err := a.memory.Context(ctx, threadID)
	if err != nil {
		a.logger.Warn("memory context unavailable, continuing without history", "thread_id", threadID, "error", err)
		return ""
	}
	return a.memory.Render(mc)
}

func (a *AgentService) publishAnswer(state *domain.RunState) {
	if a.bus == nil {
		return
	}
	payload, _ := json.Marshal(map[string]any{
		"thread_id":  state.ThreadID,
		"answer":     state.Answer(),
		"confidence": confidenceOf(state),
	})
	a.bus.Publish(Event{
		ThreadID:  state.ThreadID,
		Type:      EventTypeAnswer,
		Data:      string(payload),
		Timestamp: time.Now().UnixMilli(),
	})
}

func confidenceOf(state *domain.RunState) float64 {
	if state.OutputValidation != nil {
		return state.OutputValidation.Confidence
	}
	return 1.0
}
