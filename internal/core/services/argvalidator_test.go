package services

import (
	"context"
	"testing"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/manthysbr/lineOS/internal/core/domain"
)

func noopExec(_ context.Context, _ map[string]any) (any, error) { return nil, nil }

func stationTool() *domain.Tool {
	schema := openapi3.NewObjectSchema().
		WithProperty("station_id", openapi3.NewStringSchema())
	schema.Required = []string{"station_id"}
	return &domain.Tool{Name: "get_station", Args: schema, Execute: noopExec}
}

func limitTool() *domain.Tool {
	return &domain.Tool{
		Name: "get_recent_runs",
		Args: openapi3.NewObjectSchema().
			WithProperty("limit", openapi3.NewIntegerSchema().WithDefault(5).WithMin(1).WithMax(500)),
		Execute: noopExec,
	}
}

func statusTool() *domain.Tool {
	schema := openapi3.NewObjectSchema().
		WithProperty("status", openapi3.NewStringSchema().WithEnum("running", "idle", "maintenance", "error"))
	schema.Required = []string{"status"}
	return &domain.Tool{Name: "get_stations_by_status", Args: schema, Execute: noopExec}
}

func TestValidateArgsRequired(t *testing.T) {
	_, err := ValidateArgs(stationTool(), map[string]any{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "station_id")

	out, err := ValidateArgs(stationTool(), map[string]any{"station_id": "ST001"})
	require.NoError(t, err)
	assert.Equal(t, "ST001", out["station_id"])
}

func TestValidateArgsDefaultApplied(t *testing.T) {
	out, err := ValidateArgs(limitTool(), nil)
	require.NoError(t, err)
	assert.Equal(t, 5, out["limit"])
}

func TestValidateArgsIntegerCoercion(t *testing.T) {
	// JSON decoding hands integers over as float64.
	out, err := ValidateArgs(limitTool(), map[string]any{"limit": float64(10)})
	require.NoError(t, err)
	assert.Equal(t, 10, out["limit"])

	out, err = ValidateArgs(limitTool(), map[string]any{"limit": "25"})
	require.NoError(t, err)
	assert.Equal(t, 25, out["limit"])

	_, err = ValidateArgs(limitTool(), map[string]any{"limit": 2.5})
	assert.Error(t, err)
}

func TestValidateArgsRange(t *testing.T) {
	_, err := ValidateArgs(limitTool(), map[string]any{"limit": 0})
	assert.Error(t, err)

	_, err = ValidateArgs(limitTool(), map[string]any{"limit": 501})
	assert.Error(t, err)

	out, err := ValidateArgs(limitTool(), map[string]any{"limit": 500})
	require.NoError(t, err)
	assert.Equal(t, 500, out["limit"])
}

func TestValidateArgsEnum(t *testing.T) {
	out, err := ValidateArgs(statusTool(), map[string]any{"status": "running"})
	require.NoError(t, err)
	assert.Equal(t, "running", out["status"])

	_, err = ValidateArgs(statusTool(), map[string]any{"status": "on fire"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "must be one of")
}

func TestValidateArgsDropsUnknownKeys(t *testing.T) {
	out, err := ValidateArgs(stationTool(), map[string]any{"station_id": "ST001", "verbose": true})
	require.NoError(t, err)
	assert.NotContains(t, out, "verbose")
}
