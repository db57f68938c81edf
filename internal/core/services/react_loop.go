package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/manthysbr/lineOS/internal/core/domain"
	"github.com/manthysbr/lineOS/internal/extract"
)

// maxObservationChars caps what a single observation contributes to the
// next reasoning prompt.
const maxObservationChars = 2000

// runReact drives the bounded Reason-Act-Observe loop. Each iteration asks
// the model for a thought and an action; tool outcomes (including failures
// and hallucinated tool names) come back as observations the model can
// correct against. The loop ends on the finish action or at the iteration
// cap, whichever comes first.
func (p *Pipeline) runReact(ctx context.Context, state *domain.RunState) error {
	ctx, spanID := p.tracer.StartSpan(ctx, "react_loop", domain.SpanKindPhase, nil)

	system, err := p.prompts.Get("react-reasoning-system")
	if err != nil {
		p.tracer.EndSpan(spanID, domain.SpanStatusError, "", err.Error())
		return err
	}

	maxIter := state.ReactMaxIterations
	if maxIter <= 0 {
		maxIter = domain.DefaultMaxIterations
	}

	for iter := 1; iter <= maxIter; iter++ {
		state.ReactIteration = iter

		prompt := p.buildReactPrompt(state)
		llmCtx, llmSpan := p.tracer.StartSpan(ctx, fmt.Sprintf("react_iteration_%d", iter), domain.SpanKindLLM, nil)
		p.tracer.SetSpanInput(llmSpan, prompt)

		response, err := p.llm.Complete(llmCtx, []domain.ChatMessage{
			{Role: "system", Content: system},
			{Role: "user", Content: prompt},
		}, reactMaxTokens)
		if err != nil {
			p.tracer.EndSpan(llmSpan, domain.SpanStatusError, "", err.Error())
			if errors.Is(err, domain.ErrProviderUnavailable) {
				p.tracer.EndSpan(spanID, domain.SpanStatusError, "", err.Error())
				return err
			}
			// Transient model failure: stop reasoning, synthesize from
			// whatever was gathered so far.
			state.RecordStep("react", fmt.Sprintf("Reasoning stopped at iteration %d: %s", iter, err.Error()))
			break
		}
		p.tracer.EndSpan(llmSpan, domain.SpanStatusOK, response, "")

		reply := extract.ReAct(response)
		step := domain.ReActStep{
			Iteration:   iter,
			Thought:     reply.Thought,
			Action:      reply.Action,
			ActionInput: reply.ActionInput,
			ParseError:  reply.ParseError,
		}

		if reply.ParseError && reply.Action == "" {
			step.Observation = "Error: Could not parse your reply. Respond with Thought, Action, and Action Input lines, or a Final Answer."
			state.ReActSteps = append(state.ReActSteps, step)
			state.Observations = append(state.Observations, step.Observation)
			state.RecordStep("react", fmt.Sprintf("Iteration %d: unparseable reply", iter))
			continue
		}

		if reply.Action == extract.FinishAction {
			answer, _ := reply.ActionInput["answer"].(string)
			if answer == "" {
				answer = reply.Thought
			}
			state.Data["react_answer"] = answer
			step.Observation = "Final Answer: " + answer
			state.ReActSteps = append(state.ReActSteps, step)
			state.RecordStep("react", fmt.Sprintf("Finished after %d iteration(s)", iter))
			break
		}

		// Lookup and argument validation gate the call. A rejected action
		// becomes an observation only; ToolResults holds nothing but
		// outcomes of registered tools that were actually invoked.
		tool, ok := p.runner.Registry().Get(reply.Action)
		if !ok {
			step.Observation = fmt.Sprintf("Error: Tool '%s' not found. Available tools: %s",
				reply.Action, strings.Join(p.runner.Registry().Names(), ", "))
			state.ReActSteps = append(state.ReActSteps, step)
			state.Observations = append(state.Observations, step.Observation)
			state.RecordStep("react", fmt.Sprintf("Iteration %d: unknown tool %s", iter, reply.Action))
			continue
		}
		if _, verr := ValidateArgs(tool, reply.ActionInput); verr != nil {
			step.Observation = fmt.Sprintf("Error: Invalid arguments for %s: %s", reply.Action, verr.Error())
			state.ReActSteps = append(state.ReActSteps, step)
			state.Observations = append(state.Observations, step.Observation)
			state.RecordStep("react", fmt.Sprintf("Iteration %d: invalid arguments for %s", iter, reply.Action))
			continue
		}

		result := p.runner.Invoke(ctx, reply.Action, reply.ActionInput)
		state.ToolResults[reply.Action] = result
		mirrorLegacyAliases(state, result)
		step.Observation = renderObservation(result)
		state.ReActSteps = append(state.ReActSteps, step)
		state.Observations = append(state.Observations, step.Observation)
		state.RecordStep("react", fmt.Sprintf("Iteration %d: %s (success: %t)", iter, reply.Action, result.Success), "tool_results")
	}

	if !reactFinished(state) && len(state.ReActSteps) > 0 {
		state.RecordStep("react", fmt.Sprintf("Stopped at iteration cap (%d)", maxIter))
	}

	p.tracer.EndSpan(spanID, domain.SpanStatusOK, fmt.Sprintf("%d iterations", state.ReactIteration), "")
	return nil
}

// buildReactPrompt assembles the user message for one reasoning turn:
// available tools, the question, and the full step history so far.
func (p *Pipeline) buildReactPrompt(state *domain.RunState) string {
	var sb strings.Builder
	sb.WriteString(p.runner.Registry().FormatForPrompt())
	sb.WriteString("\nQuestion: ")
	sb.WriteString(state.Question)
	sb.WriteString("\n")

	if len(state.ReActSteps) > 0 {
		sb.WriteString("\nPrevious steps:\n")
		for _, step := range state.ReActSteps {
			if step.Thought != "" {
				fmt.Fprintf(&sb, "Thought: %s\n", step.Thought)
			}
			if step.Action != "" {
				fmt.Fprintf(&sb, "Action: %s\n", step.Action)
			}
			if step.ActionInput != nil {
				if in, err := json.Marshal(step.ActionInput); err == nil {
					fmt.Fprintf(&sb, "Action Input: %s\n", in)
				}
			}
			if step.Observation != "" {
				fmt.Fprintf(&sb, "Observation: %s\n", step.Observation)
			}
		}
		sb.WriteString("\nContinue reasoning. Use finish when you can answer.\n")
	}
	return sb.String()
}

func renderObservation(result domain.ToolResult) string {
	if !result.Success {
		return "Error: " + result.Error
	}
	data, err := json.Marshal(result.Data)
	if err != nil {
		return fmt.Sprintf("%v", result.Data)
	}
	return truncate(string(data), maxObservationChars)
}
