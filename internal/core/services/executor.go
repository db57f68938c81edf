package services

import (
	"context"
	"fmt"
	"sort"

	"github.com/manthysbr/lineOS/internal/core/domain"
)

// executePlan runs the pre-committed tool plan sequentially, in priority
// order. Failed calls are recorded like any other result; the plan never
// aborts early, so synthesis sees everything that was attempted.
func (p *Pipeline) executePlan(ctx context.Context, state *domain.RunState) {
	ctx, spanID := p.tracer.StartSpan(ctx, "execution", domain.SpanKindPhase, nil)

	plan := make([]domain.ToolPlanItem, len(state.ToolPlan))
	copy(plan, state.ToolPlan)
	sort.SliceStable(plan, func(i, j int) bool { return plan[i].Priority < plan[j].Priority })

	succeeded := 0
	for _, item := range plan {
		result := p.runner.Invoke(ctx, item.Name, item.Args)
		state.ToolResults[item.Name] = result
		mirrorLegacyAliases(state, result)
		state.Observations = append(state.Observations, renderObservation(result))
		if result.Success {
			succeeded++
		}
	}

	state.RecordStep("execution",
		fmt.Sprintf("Executed %d planned tool call(s), %d succeeded", len(plan), succeeded),
		"tool_results")
	p.tracer.EndSpan(spanID, domain.SpanStatusOK, fmt.Sprintf("%d/%d", succeeded, len(plan)), "")
}

// mirrorLegacyAliases copies well-known tool outputs into the scratch data
// map under the key names older API consumers still read.
func mirrorLegacyAliases(state *domain.RunState, result domain.ToolResult) {
	state.Data["tools"] = state.ToolResults

	if !result.Success {
		errs, _ := state.Data["tool_errors"].([]map[string]string)
		state.Data["tool_errors"] = append(errs, map[string]string{
			"tool":  result.ToolName,
			"error": result.Error,
		})
		return
	}
	switch result.ToolName {
	case "get_production_metrics":
		state.Data["metrics"] = result.Data
	case "find_bottleneck":
		state.Data["bottleneck"] = result.Data
	case "calculate_oee":
		state.Data["oee"] = result.Data
	}
}
