package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/manthysbr/lineOS/internal/core/domain"
)

func newTestRunner(t *testing.T, tools ...*domain.Tool) *ToolRunner {
	t.Helper()
	registry := domain.NewToolRegistry()
	for _, tool := range tools {
		require.NoError(t, registry.Register(tool))
	}
	return NewToolRunner(registry, testTracer(), testLogger())
}

func TestInvokeSuccess(t *testing.T) {
	runner := newTestRunner(t, &domain.Tool{
		Name: "echo",
		Execute: func(_ context.Context, args map[string]any) (any, error) {
			return map[string]any{"ok": true}, nil
		},
	})

	result := runner.Invoke(context.Background(), "echo", nil)
	assert.True(t, result.Success)
	assert.Equal(t, "echo", result.ToolName)
	assert.Empty(t, result.Error)
	assert.GreaterOrEqual(t, result.ExecutionTimeMs, 0.0)
}

func TestInvokeUnknownTool(t *testing.T) {
	runner := newTestRunner(t, &domain.Tool{Name: "echo", Execute: noopExec})

	result := runner.Invoke(context.Background(), "get_stationz", nil)
	assert.False(t, result.Success)
	assert.Contains(t, result.Error, "tool not found")
	// The error lists the real names so the model can self-correct.
	assert.Contains(t, result.Error, "echo")
}

func TestInvokeValidationFailure(t *testing.T) {
	runner := newTestRunner(t, stationTool())

	result := runner.Invoke(context.Background(), "get_station", map[string]any{})
	assert.False(t, result.Success)
	assert.Contains(t, result.Error, "station_id")
}

func TestInvokeExecutorError(t *testing.T) {
	runner := newTestRunner(t, &domain.Tool{
		Name: "broken",
		Execute: func(_ context.Context, _ map[string]any) (any, error) {
			return nil, assert.AnError
		},
	})

	result := runner.Invoke(context.Background(), "broken", nil)
	assert.False(t, result.Success)
	assert.NotEmpty(t, result.Error)
}

func TestInvokeHonorsContextCancel(t *testing.T) {
	blocked := &domain.Tool{
		Name: "slow",
		Execute: func(ctx context.Context, _ map[string]any) (any, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		},
	}
	runner := newTestRunner(t, blocked)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	start := time.Now()
	result := runner.Invoke(ctx, "slow", nil)
	assert.False(t, result.Success)
	assert.NotEmpty(t, result.Error)
	assert.Less(t, time.Since(start), 5*time.Second)
}
