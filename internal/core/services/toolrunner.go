package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/manthysbr/lineOS/internal/core/domain"
)

// toolTimeout bounds a single tool invocation.
const toolTimeout = 30 * time.Second

var errToolTimeout = errors.New("Tool call timed out after 30 seconds")

// ToolRunner executes registered tools with validation, a per-call timeout,
// and tracing. Every invocation yields a ToolResult; failures are data,
// never panics or aborts.
type ToolRunner struct {
	registry *domain.ToolRegistry
	tracer   *TraceCollector
	logger   *slog.Logger
}

func NewToolRunner(registry *domain.ToolRegistry, tracer *TraceCollector, logger *slog.Logger) *ToolRunner {
	return &ToolRunner{registry: registry, tracer: tracer, logger: logger}
}

// Registry exposes the underlying tool set for prompt rendering.
func (tr *ToolRunner) Registry() *domain.ToolRegistry {
	return tr.registry
}

// Invoke runs one tool call end to end: lookup, argument validation,
// execution under a 30 second timeout. The returned result always carries
// the tool name and wall-clock duration.
func (tr *ToolRunner) Invoke(ctx context.Context, name string, args map[string]any) domain.ToolResult {
	start := time.Now()

	ctx, spanID := tr.tracer.StartSpan(ctx, name, domain.SpanKindTool, nil)
	if argsJSON, err := json.Marshal(args); err == nil {
		tr.tracer.SetSpanInput(spanID, string(argsJSON))
	}

	result := tr.invoke(ctx, name, args)
	result.ToolName = name
	result.ExecutionTimeMs = float64(time.Since(start).Microseconds()) / 1000

	if result.Success {
		out, _ := json.Marshal(result.Data)
		tr.tracer.EndSpan(spanID, domain.SpanStatusOK, string(out), "")
	} else {
		tr.tracer.EndSpan(spanID, domain.SpanStatusError, "", result.Error)
		tr.logger.Warn("tool call failed", "tool", name, "error", result.Error)
	}
	return result
}

func (tr *ToolRunner) invoke(ctx context.Context, name string, args map[string]any) domain.ToolResult {
	tool, ok := tr.registry.Get(name)
	if !ok {
		return domain.ToolResult{
			Error: fmt.Sprintf("%v: %s. Known tools: %v", domain.ErrToolNotFound, name, tr.registry.Names()),
		}
	}

	validated, err := ValidateArgs(tool, args)
	if err != nil {
		return domain.ToolResult{Error: err.Error()}
	}

	ctx, cancel := context.WithTimeoutCause(ctx, toolTimeout, errToolTimeout)
	defer cancel()

	type outcome struct {
		data any
		err  error
	}
	done := make(chan outcome, 1)
	go func() {
		data, err := tool.Execute(ctx, validated)
		done <- outcome{data, err}
	}()

	select {
	case <-ctx.Done():
		if errors.Is(context.Cause(ctx), errToolTimeout) {
			return domain.ToolResult{Error: errToolTimeout.Error()}
		}
		return domain.ToolResult{Error: ctx.Err().Error()}
	case out := <-done:
		if out.err != nil {
			return domain.ToolResult{Error: out.err.Error()}
		}
		return domain.ToolResult{Success: true, Data: out.data}
	}
}
