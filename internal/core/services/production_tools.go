package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/manthysbr/lineOS/internal/core/domain"
	"github.com/manthysbr/lineOS/internal/simulator"
)

// RegisterProductionTools wires the production-line capability set onto a
// registry, backed by the given line data source.
func RegisterProductionTools(registry *domain.ToolRegistry, line *simulator.Simulator) error {
	stationIDSchema := func() *openapi3.Schema {
		s := openapi3.NewObjectSchema().
			WithProperty("station_id", openapi3.NewStringSchema())
		s.Required = []string{"station_id"}
		return s
	}
	limitSchema := func(def int) *openapi3.Schema {
		return openapi3.NewObjectSchema().
			WithProperty("limit", openapi3.NewIntegerSchema().WithDefault(def).WithMin(1).WithMax(500))
	}

	tools := []*domain.Tool{
		{
			Name:        "get_all_stations",
			Description: "List every production station with live status and metrics",
			Execute: func(ctx context.Context, args map[string]any) (any, error) {
				return line.GetAllStations(), nil
			},
		},
		{
			Name:        "get_station",
			Description: "Get full details for one station by ID (e.g. ST001)",
			Args:        stationIDSchema(),
			Execute: func(ctx context.Context, args map[string]any) (any, error) {
				id := args["station_id"].(string)
				st, ok := line.GetStation(id)
				if !ok {
					return nil, fmt.Errorf("station %s not found", id)
				}
				return st, nil
			},
		},
		{
			Name:        "get_station_status",
			Description: "Get the current status summary of one station",
			Args:        stationIDSchema(),
			Execute: func(ctx context.Context, args map[string]any) (any, error) {
				id := args["station_id"].(string)
				status, ok := line.GetStationStatus(id)
				if !ok {
					return nil, fmt.Errorf("station %s not found", id)
				}
				return status, nil
			},
		},
		{
			Name:        "get_production_metrics",
			Description: "Get aggregated line metrics: units produced, efficiency, downtime, quality rate, energy",
			Execute: func(ctx context.Context, args map[string]any) (any, error) {
				return line.GetProductionMetrics(), nil
			},
		},
		{
			Name:        "calculate_oee",
			Description: "Calculate Overall Equipment Effectiveness, line-wide or for one station",
			Args: openapi3.NewObjectSchema().
				WithProperty("station_id", openapi3.NewStringSchema()),
			Execute: func(ctx context.Context, args map[string]any) (any, error) {
				id, _ := args["station_id"].(string)
				return line.CalculateOEE(id)
			},
		},
		{
			Name:        "find_bottleneck",
			Description: "Find the running station with the lowest throughput",
			Execute: func(ctx context.Context, args map[string]any) (any, error) {
				return line.FindBottleneck(), nil
			},
		},
		{
			Name:        "get_stations_by_status",
			Description: "List stations filtered by status",
			Args: func() *openapi3.Schema {
				s := openapi3.NewObjectSchema().
					WithProperty("status", openapi3.NewStringSchema().WithEnum("running", "idle", "maintenance", "error"))
				s.Required = []string{"status"}
				return s
			}(),
			Execute: func(ctx context.Context, args map[string]any) (any, error) {
				return line.GetStationsByStatus(args["status"].(string)), nil
			},
		},
		{
			Name:        "get_maintenance_schedule",
			Description: "Get the maintenance schedule derived from last-maintenance dates, most overdue first",
			Execute: func(ctx context.Context, args map[string]any) (any, error) {
				return line.GetMaintenanceSchedule(), nil
			},
		},
		{
			Name:        "update_station_status",
			Description: "Set a station's status (running, idle, maintenance, error)",
			Args: func() *openapi3.Schema {
				s := openapi3.NewObjectSchema().
					WithProperty("station_id", openapi3.NewStringSchema()).
					WithProperty("status", openapi3.NewStringSchema().WithEnum("running", "idle", "maintenance", "error"))
				s.Required = []string{"station_id", "status"}
				return s
			}(),
			Execute: func(ctx context.Context, args map[string]any) (any, error) {
				return line.UpdateStationStatus(args["station_id"].(string), args["status"].(string))
			},
		},
		{
			Name:        "get_recent_runs",
			Description: "List recent production runs with good/scrap units and defect codes",
			Args:        limitSchema(5),
			Execute: func(ctx context.Context, args map[string]any) (any, error) {
				return line.GetRecentRuns(intArg(args, "limit", 5)), nil
			},
		},
		{
			Name:        "get_alarm_log",
			Description: "List recent alarms with severity and codes",
			Args:        limitSchema(10),
			Execute: func(ctx context.Context, args map[string]any) (any, error) {
				return line.GetAlarmLog(intArg(args, "limit", 10)), nil
			},
		},
		{
			Name:        "get_station_energy",
			Description: "Get energy consumption snapshot for one station",
			Args:        stationIDSchema(),
			Execute: func(ctx context.Context, args map[string]any) (any, error) {
				id := args["station_id"].(string)
				snap, ok := line.GetStationEnergy(id)
				if !ok {
					return nil, fmt.Errorf("no energy data for station %s", id)
				}
				return snap, nil
			},
		},
		{
			Name:        "get_scrap_summary",
			Description: "Get scrap rate and top defect codes across recent runs",
			Execute: func(ctx context.Context, args map[string]any) (any, error) {
				return line.GetScrapSummary(), nil
			},
		},
		{
			Name:        "get_product_mix",
			Description: "Get good-unit counts per product across recent runs",
			Execute: func(ctx context.Context, args map[string]any) (any, error) {
				return line.GetProductMix(), nil
			},
		},
	}

	for _, t := range tools {
		if err := registry.Register(t); err != nil {
			return fmt.Errorf("register %s: %w", t.Name, err)
		}
	}
	return nil
}

// intArg reads a validated integer argument, tolerating the float64 that
// JSON decoding produces.
func intArg(args map[string]any, key string, def int) int {
	switch v := args[key].(type) {
	case int:
		return v
	case float64:
		return int(v)
	case string:
		var n int
		if _, err := fmt.Sscanf(strings.TrimSpace(v), "%d", &n); err == nil {
			return n
		}
	}
	return def
}
