package simulator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLine(t *testing.T) *Simulator {
	t.Helper()
	return New(42)
}

func TestStations(t *testing.T) {
	line := newTestLine(t)

	stations := line.GetAllStations()
	require.Len(t, stations, 5)
	assert.Equal(t, "ST001", stations[0].ID)
	assert.Equal(t, "ST005", stations[4].ID)

	st, ok := line.GetStation("ST002")
	require.True(t, ok)
	assert.Equal(t, "Quality Check Station", st.Name)
	assert.GreaterOrEqual(t, st.Throughput, 50.0)
	assert.LessOrEqual(t, st.Throughput, 150.0)

	_, ok = line.GetStation("ST099")
	assert.False(t, ok)
}

func TestGetStationStatus(t *testing.T) {
	line := newTestLine(t)

	status, ok := line.GetStationStatus("ST001")
	require.True(t, ok)
	assert.Equal(t, "ST001", status["id"])
	assert.Contains(t, status, "uptime")
	assert.Contains(t, status, "efficiency")

	_, ok = line.GetStationStatus("nope")
	assert.False(t, ok)
}

func TestProductionMetrics(t *testing.T) {
	line := newTestLine(t)

	m := line.GetProductionMetrics()
	assert.Equal(t, 1000, m.TargetUnits)
	assert.GreaterOrEqual(t, m.Efficiency, 75.0)
	assert.LessOrEqual(t, m.Efficiency, 98.0)
	assert.GreaterOrEqual(t, m.DowntimeHours, 0.0)
	assert.NotEmpty(t, m.Timestamp)
}

func TestCalculateOEE(t *testing.T) {
	line := newTestLine(t)

	lineWide, err := line.CalculateOEE("")
	require.NoError(t, err)
	assert.Contains(t, lineWide, "overall_oee")
	assert.Greater(t, lineWide["overall_oee"].(float64), 0.0)

	single, err := line.CalculateOEE("ST001")
	require.NoError(t, err)
	assert.Equal(t, "ST001", single["station_id"])
	assert.Contains(t, single, "oee")

	_, err = line.CalculateOEE("ST099")
	assert.Error(t, err)
}

func TestFindBottleneck(t *testing.T) {
	line := newTestLine(t)

	// Force a known topology: two running stations, rest idle.
	for _, id := range []string{"ST001", "ST002", "ST003", "ST004", "ST005"} {
		_, err := line.UpdateStationStatus(id, "idle")
		require.NoError(t, err)
	}
	_, err := line.UpdateStationStatus("ST001", "running")
	require.NoError(t, err)
	_, err = line.UpdateStationStatus("ST004", "running")
	require.NoError(t, err)

	b := line.FindBottleneck()
	id, ok := b["bottleneck_station_id"].(string)
	require.True(t, ok)
	assert.Contains(t, []string{"ST001", "ST004"}, id)

	st1, _ := line.GetStation("ST001")
	st4, _ := line.GetStation("ST004")
	if st1.Throughput < st4.Throughput {
		assert.Equal(t, "ST001", id)
	} else {
		assert.Equal(t, "ST004", id)
	}
}

func TestFindBottleneckNoRunning(t *testing.T) {
	line := newTestLine(t)
	for _, id := range []string{"ST001", "ST002", "ST003", "ST004", "ST005"} {
		_, err := line.UpdateStationStatus(id, "maintenance")
		require.NoError(t, err)
	}

	b := line.FindBottleneck()
	assert.Equal(t, "No running stations", b["bottleneck"])
}

func TestStationsByStatus(t *testing.T) {
	line := newTestLine(t)
	for _, id := range []string{"ST001", "ST002", "ST003", "ST004", "ST005"} {
		_, err := line.UpdateStationStatus(id, "idle")
		require.NoError(t, err)
	}
	_, err := line.UpdateStationStatus("ST003", "error")
	require.NoError(t, err)

	errored := line.GetStationsByStatus("error")
	require.Len(t, errored, 1)
	assert.Equal(t, "ST003", errored[0].ID)
	assert.Len(t, line.GetStationsByStatus("idle"), 4)
}

func TestUpdateStationStatus(t *testing.T) {
	line := newTestLine(t)

	out, err := line.UpdateStationStatus("ST001", "maintenance")
	require.NoError(t, err)
	assert.Equal(t, true, out["success"])

	st, _ := line.GetStation("ST001")
	assert.Equal(t, "maintenance", st.Status)

	_, err = line.UpdateStationStatus("ST001", "exploded")
	assert.Error(t, err)

	_, err = line.UpdateStationStatus("ST099", "running")
	assert.Error(t, err)
}

func TestMaintenanceSchedule(t *testing.T) {
	line := newTestLine(t)

	schedule := line.GetMaintenanceSchedule()
	require.Len(t, schedule, 5)

	// Most overdue first.
	for i := 1; i < len(schedule); i++ {
		prev := schedule[i-1]["days_since_maintenance"].(int)
		cur := schedule[i]["days_since_maintenance"].(int)
		assert.GreaterOrEqual(t, prev, cur)
	}
	for _, entry := range schedule {
		assert.Contains(t, []string{"low", "medium", "high"}, entry["priority"])
	}
}

func TestRecentRunsAndAlarms(t *testing.T) {
	line := newTestLine(t)

	runs := line.GetRecentRuns(2)
	require.Len(t, runs, 2)
	assert.GreaterOrEqual(t, runs[0].EndedAt, runs[1].EndedAt)

	all := line.GetRecentRuns(0)
	assert.Len(t, all, 4)

	alarms := line.GetAlarmLog(1)
	require.Len(t, alarms, 1)
	assert.Equal(t, "AL-9001", alarms[0].ID)
}

func TestEnergySnapshots(t *testing.T) {
	line := newTestLine(t)

	snap, ok := line.GetStationEnergy("ST003")
	require.True(t, ok)
	assert.Equal(t, "ST003", snap.StationID)
	assert.Greater(t, snap.KwhLast24h, snap.KwhLastHour)

	_, ok = line.GetStationEnergy("ST099")
	assert.False(t, ok)
}

func TestScrapSummary(t *testing.T) {
	line := newTestLine(t)

	s := line.GetScrapSummary()
	assert.Equal(t, 1550, s["total_good"])
	assert.Equal(t, 37, s["total_scrap"])
	assert.InDelta(t, 37.0/1587.0*100, s["scrap_rate"].(float64), 0.001)
}

func TestProductMix(t *testing.T) {
	line := newTestLine(t)

	mix := line.GetProductMix()
	require.Len(t, mix, 3)
	assert.Equal(t, "Widget-A", mix[0]["product"])
	assert.Equal(t, 870, mix[0]["good_units"])
	assert.Equal(t, "Widget-B", mix[1]["product"])
	assert.Equal(t, "Widget-C", mix[2]["product"])
}
