package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/manthysbr/lineOS/internal/core/domain"
	"github.com/manthysbr/lineOS/internal/simulator"
)

func newProductionRunner(t *testing.T) *ToolRunner {
	t.Helper()
	registry := domain.NewToolRegistry()
	require.NoError(t, RegisterProductionTools(registry, simulator.New(7)))
	return NewToolRunner(registry, testTracer(), testLogger())
}

func TestProductionToolsRegistered(t *testing.T) {
	runner := newProductionRunner(t)

	names := runner.Registry().Names()
	assert.Len(t, names, 14)
	for _, expected := range []string{
		"get_all_stations", "get_station", "get_station_status",
		"get_production_metrics", "calculate_oee", "find_bottleneck",
		"get_stations_by_status", "get_maintenance_schedule",
		"update_station_status", "get_recent_runs", "get_alarm_log",
		"get_station_energy", "get_scrap_summary", "get_product_mix",
	} {
		assert.Contains(t, names, expected)
	}
}

func TestProductionToolsEndToEnd(t *testing.T) {
	runner := newProductionRunner(t)
	ctx := context.Background()

	res := runner.Invoke(ctx, "get_all_stations", nil)
	require.True(t, res.Success)
	stations, ok := res.Data.([]simulator.Station)
	require.True(t, ok)
	assert.Len(t, stations, 5)

	res = runner.Invoke(ctx, "get_station", map[string]any{"station_id": "ST001"})
	assert.True(t, res.Success)

	res = runner.Invoke(ctx, "get_station", map[string]any{"station_id": "ST099"})
	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "not found")

	res = runner.Invoke(ctx, "get_recent_runs", nil)
	require.True(t, res.Success)
	runs, ok := res.Data.([]simulator.Run)
	require.True(t, ok)
	assert.Len(t, runs, 4) // default limit is 5, only 4 seeded

	res = runner.Invoke(ctx, "get_recent_runs", map[string]any{"limit": float64(2)})
	require.True(t, res.Success)
	assert.Len(t, res.Data.([]simulator.Run), 2)

	res = runner.Invoke(ctx, "update_station_status", map[string]any{
		"station_id": "ST002", "status": "maintenance",
	})
	require.True(t, res.Success)

	res = runner.Invoke(ctx, "update_station_status", map[string]any{
		"station_id": "ST002", "status": "broken",
	})
	assert.False(t, res.Success)

	res = runner.Invoke(ctx, "calculate_oee", nil)
	require.True(t, res.Success)
	oee := res.Data.(map[string]any)
	assert.Contains(t, oee, "overall_oee")

	res = runner.Invoke(ctx, "calculate_oee", map[string]any{"station_id": "ST003"})
	require.True(t, res.Success)
	assert.Equal(t, "ST003", res.Data.(map[string]any)["station_id"])
}

func TestProductionToolPromptListing(t *testing.T) {
	runner := newProductionRunner(t)

	listing := runner.Registry().FormatForPrompt()
	assert.Contains(t, listing, "Available Tools:")
	assert.Contains(t, listing, "get_station:")
	assert.Contains(t, listing, "required: station_id")
	assert.Contains(t, listing, "limit:integer")
}
