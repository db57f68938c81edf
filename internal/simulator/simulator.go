// Package simulator provides a mock production line: five stations with
// live-looking metrics, a small run log, alarms, and energy snapshots.
// It stands in for the real plant data provider during development and tests.
package simulator

import (
	"fmt"
	"math/rand"
	"sort"
	"sync"
	"time"
)

// Station represents a production station.
type Station struct {
	ID              string  `json:"id"`
	Name            string  `json:"name"`
	Status          string  `json:"status"` // running, idle, maintenance, error
	Throughput      float64 `json:"throughput"` // units per hour
	Efficiency      float64 `json:"efficiency"` // percentage
	Temperature     float64 `json:"temperature"` // celsius
	Pressure        float64 `json:"pressure"` // psi
	LastMaintenance string  `json:"last_maintenance"`
	Uptime          float64 `json:"uptime"` // percentage
}

// ProductionMetrics aggregates the whole line.
type ProductionMetrics struct {
	TotalUnitsProduced int     `json:"total_units_produced"`
	TargetUnits        int     `json:"target_units"`
	Efficiency         float64 `json:"efficiency"`
	DowntimeHours      float64 `json:"downtime_hours"`
	QualityRate        float64 `json:"quality_rate"`
	EnergyConsumption  float64 `json:"energy_consumption"` // kWh
	Timestamp          string  `json:"timestamp"`
}

// Run is one completed production run.
type Run struct {
	RunID          string   `json:"run_id"`
	Product        string   `json:"product"`
	Line           string   `json:"line"`
	Shift          string   `json:"shift"`
	GoodUnits      int      `json:"good_units"`
	ScrapUnits     int      `json:"scrap_units"`
	CycleTimeAvgS  float64  `json:"cycle_time_avg_s"`
	DefectCodes    []string `json:"defect_codes"`
	StartedAt      string   `json:"started_at"`
	EndedAt        string   `json:"ended_at"`
}

// Alarm is one logged alert.
type Alarm struct {
	ID        string `json:"id"`
	StationID string `json:"station_id"`
	Severity  string `json:"severity"`
	Code      string `json:"code"`
	Message   string `json:"message"`
	Timestamp string `json:"timestamp"`
}

// EnergySnapshot is per-station consumption.
type EnergySnapshot struct {
	StationID   string  `json:"station_id"`
	KwhLastHour float64 `json:"kwh_last_hour"`
	KwhLast24h  float64 `json:"kwh_last_24h"`
	PeakKw      float64 `json:"peak_kw"`
}

// ValidStatuses are the station states update_station_status accepts.
var ValidStatuses = []string{"running", "idle", "maintenance", "error"}

// Simulator holds the line state. Safe for concurrent use.
type Simulator struct {
	mu       sync.RWMutex
	rng      *rand.Rand
	stations map[string]*Station
	order    []string // stable station iteration order
	runs     []Run
	alarms   []Alarm
	energy   map[string]EnergySnapshot
}

// New seeds a line with stations ST001-ST005. A fixed seed gives
// deterministic fixtures in tests.
func New(seed int64) *Simulator {
	s := &Simulator{
		rng:      rand.New(rand.NewSource(seed)),
		stations: make(map[string]*Station),
		energy:   make(map[string]EnergySnapshot),
	}
	s.initStations()
	s.loadSampleRuns()
	s.loadSampleAlarms()
	s.loadEnergySnapshots()
	return s
}

func (s *Simulator) initStations() {
	configs := []struct{ id, name string }{
		{"ST001", "Assembly Station 1"},
		{"ST002", "Quality Check Station"},
		{"ST003", "Packaging Station"},
		{"ST004", "Assembly Station 2"},
		{"ST005", "Testing Station"},
	}
	statuses := []string{"running", "running", "running", "idle", "maintenance"}
	for _, c := range configs {
		s.stations[c.id] = &Station{
			ID:              c.id,
			Name:            c.name,
			Status:          statuses[s.rng.Intn(len(statuses))],
			Throughput:      s.uniform(50, 150),
			Efficiency:      s.uniform(75, 98),
			Temperature:     s.uniform(20, 45),
			Pressure:        s.uniform(10, 50),
			LastMaintenance: time.Now().AddDate(0, 0, -(1 + s.rng.Intn(30))).Format(time.RFC3339),
			Uptime:          s.uniform(85, 99),
		}
		s.order = append(s.order, c.id)
	}
}

func (s *Simulator) uniform(lo, hi float64) float64 {
	return lo + s.rng.Float64()*(hi-lo)
}

// GetAllStations returns every station.
func (s *Simulator) GetAllStations() []Station {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Station, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, *s.stations[id])
	}
	return out
}

// GetStation returns one station by ID.
func (s *Simulator) GetStation(stationID string) (Station, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.stations[stationID]
	if !ok {
		return Station{}, false
	}
	return *st, true
}

// GetStationStatus returns the status summary of one station.
func (s *Simulator) GetStationStatus(stationID string) (map[string]any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.stations[stationID]
	if !ok {
		return nil, false
	}
	return map[string]any{
		"id":         st.ID,
		"name":       st.Name,
		"status":     st.Status,
		"uptime":     st.Uptime,
		"efficiency": st.Efficiency,
	}, true
}

// GetProductionMetrics aggregates the current line metrics.
func (s *Simulator) GetProductionMetrics() ProductionMetrics {
	s.mu.Lock()
	defer s.mu.Unlock()

	totalUnits := 0
	var effSum float64
	down := 0
	for _, st := range s.stations {
		effSum += st.Efficiency
		if st.Status == "running" {
			totalUnits += int(st.Throughput * 0.8)
		} else {
			down++
		}
	}
	return ProductionMetrics{
		TotalUnitsProduced: totalUnits,
		TargetUnits:        1000,
		Efficiency:         effSum / float64(len(s.stations)),
		DowntimeHours:      float64(down) * 0.5,
		QualityRate:        s.uniform(92, 99),
		EnergyConsumption:  s.uniform(500, 1200),
		Timestamp:          time.Now().Format(time.RFC3339),
	}
}

// CalculateOEE computes availability × performance × quality, per station
// or line-wide when stationID is empty.
func (s *Simulator) CalculateOEE(stationID string) (map[string]any, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	quality := 0.90 + s.rng.Float64()*0.08
	if stationID != "" {
		st, ok := s.stations[stationID]
		if !ok {
			return nil, fmt.Errorf("station %s not found", stationID)
		}
		availability := st.Uptime / 100
		performance := st.Efficiency / 100
		return map[string]any{
			"station_id":   stationID,
			"availability": availability * 100,
			"performance":  performance * 100,
			"quality":      quality * 100,
			"oee":          availability * performance * quality * 100,
		}, nil
	}

	var availSum, perfSum float64
	for _, st := range s.stations {
		availSum += st.Uptime
		perfSum += st.Efficiency
	}
	n := float64(len(s.stations))
	avgAvail := availSum / n
	avgPerf := perfSum / n
	return map[string]any{
		"overall_oee":          (avgAvail / 100) * (avgPerf / 100) * quality * 100,
		"average_availability": avgAvail,
		"average_performance":  avgPerf,
		"quality":              quality * 100,
	}, nil
}

// FindBottleneck returns the running station with the lowest throughput.
func (s *Simulator) FindBottleneck() map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var bottleneck *Station
	for _, id := range s.order {
		st := s.stations[id]
		if st.Status != "running" {
			continue
		}
		if bottleneck == nil || st.Throughput < bottleneck.Throughput {
			bottleneck = st
		}
	}
	if bottleneck == nil {
		return map[string]any{"bottleneck": "No running stations", "throughput": 0}
	}
	return map[string]any{
		"bottleneck_station_id":   bottleneck.ID,
		"bottleneck_station_name": bottleneck.Name,
		"throughput":              bottleneck.Throughput,
		"efficiency":              bottleneck.Efficiency,
		"status":                  bottleneck.Status,
		"recommendation":          fmt.Sprintf("Optimize %s to improve overall throughput", bottleneck.Name),
	}
}

// GetStationsByStatus filters stations by status.
func (s *Simulator) GetStationsByStatus(status string) []Station {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []Station{}
	for _, id := range s.order {
		if s.stations[id].Status == status {
			out = append(out, *s.stations[id])
		}
	}
	return out
}

// GetMaintenanceSchedule derives a schedule from last-maintenance dates,
// most overdue first.
func (s *Simulator) GetMaintenanceSchedule() []map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()

	schedule := make([]map[string]any, 0, len(s.stations))
	for _, id := range s.order {
		st := s.stations[id]
		last, err := time.Parse(time.RFC3339, st.LastMaintenance)
		if err != nil {
			last = time.Now()
		}
		daysSince := int(time.Since(last).Hours() / 24)
		daysUntil := 30 - daysSince
		if daysUntil < 0 {
			daysUntil = 0
		}
		priority := "low"
		switch {
		case daysSince > 25:
			priority = "high"
		case daysSince > 20:
			priority = "medium"
		}
		schedule = append(schedule, map[string]any{
			"station_id":             st.ID,
			"station_name":           st.Name,
			"days_since_maintenance": daysSince,
			"days_until_next":        daysUntil,
			"priority":               priority,
		})
	}
	sort.Slice(schedule, func(i, j int) bool {
		return schedule[i]["days_since_maintenance"].(int) > schedule[j]["days_since_maintenance"].(int)
	})
	return schedule
}

// GetRecentRuns returns recent runs, newest first.
func (s *Simulator) GetRecentRuns(limit int) []Run {
	s.mu.RLock()
	defer s.mu.RUnlock()
	runs := make([]Run, len(s.runs))
	copy(runs, s.runs)
	sort.Slice(runs, func(i, j int) bool { return runs[i].EndedAt > runs[j].EndedAt })
	if limit > 0 && limit < len(runs) {
		runs = runs[:limit]
	}
	return runs
}

// GetAlarmLog returns recent alarms, newest first.
func (s *Simulator) GetAlarmLog(limit int) []Alarm {
	s.mu.RLock()
	defer s.mu.RUnlock()
	alarms := make([]Alarm, len(s.alarms))
	copy(alarms, s.alarms)
	sort.Slice(alarms, func(i, j int) bool { return alarms[i].Timestamp > alarms[j].Timestamp })
	if limit > 0 && limit < len(alarms) {
		alarms = alarms[:limit]
	}
	return alarms
}

// GetStationEnergy returns the energy snapshot for a station.
func (s *Simulator) GetStationEnergy(stationID string) (EnergySnapshot, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap, ok := s.energy[stationID]
	return snap, ok
}

// GetScrapSummary aggregates scrap rate and top defect codes.
func (s *Simulator) GetScrapSummary() map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()

	totalGood, totalScrap := 0, 0
	defectCounts := map[string]int{}
	for _, r := range s.runs {
		totalGood += r.GoodUnits
		totalScrap += r.ScrapUnits
		for _, code := range r.DefectCodes {
			defectCounts[code]++
		}
	}
	scrapRate := 0.0
	if totalGood > 0 {
		scrapRate = float64(totalScrap) / float64(totalGood+totalScrap) * 100
	}

	type defect struct {
		Code  string `json:"code"`
		Count int    `json:"count"`
	}
	topDefects := make([]defect, 0, len(defectCounts))
	for c, n := range defectCounts {
		topDefects = append(topDefects, defect{c, n})
	}
	sort.Slice(topDefects, func(i, j int) bool {
		if topDefects[i].Count != topDefects[j].Count {
			return topDefects[i].Count > topDefects[j].Count
		}
		return topDefects[i].Code < topDefects[j].Code
	})

	return map[string]any{
		"total_good":  totalGood,
		"total_scrap": totalScrap,
		"scrap_rate":  scrapRate,
		"top_defects": topDefects,
	}
}

// GetProductMix returns good-unit counts per product.
func (s *Simulator) GetProductMix() []map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()

	counts := map[string]int{}
	for _, r := range s.runs {
		counts[r.Product] += r.GoodUnits
	}
	products := make([]string, 0, len(counts))
	for p := range counts {
		products = append(products, p)
	}
	sort.Strings(products)

	out := make([]map[string]any, 0, len(products))
	for _, p := range products {
		out = append(out, map[string]any{"product": p, "good_units": counts[p]})
	}
	return out
}

// UpdateStationStatus sets a station's status.
func (s *Simulator) UpdateStationStatus(stationID, status string) (map[string]any, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.stations[stationID]; !ok {
		return nil, fmt.Errorf("station %s not found", stationID)
	}
	valid := false
	for _, v := range ValidStatuses {
		if status == v {
			valid = true
			break
		}
	}
	if !valid {
		return nil, fmt.Errorf("invalid status %q, must be one of %v", status, ValidStatuses)
	}
	s.stations[stationID].Status = status
	return map[string]any{"success": true, "station_id": stationID, "new_status": status}, nil
}

func (s *Simulator) loadSampleRuns() {
	now := time.Now()
	iso := func(d time.Duration) string { return now.Add(-d).Format(time.RFC3339) }
	s.runs = []Run{
		{RunID: "R-2401", Product: "Widget-A", Line: "L1", Shift: "A", GoodUnits: 420, ScrapUnits: 6, CycleTimeAvgS: 5.8, DefectCodes: []string{"D14"}, StartedAt: iso(6 * time.Hour), EndedAt: iso(4 * time.Hour)},
		{RunID: "R-2402", Product: "Widget-B", Line: "L2", Shift: "A", GoodUnits: 380, ScrapUnits: 12, CycleTimeAvgS: 6.1, DefectCodes: []string{"D07", "D21"}, StartedAt: iso(4 * time.Hour), EndedAt: iso(2 * time.Hour)},
		{RunID: "R-2403", Product: "Widget-A", Line: "L1", Shift: "B", GoodUnits: 450, ScrapUnits: 4, CycleTimeAvgS: 5.5, DefectCodes: []string{}, StartedAt: iso(2 * time.Hour), EndedAt: iso(10 * time.Minute)},
		{RunID: "R-2404", Product: "Widget-C", Line: "L3", Shift: "B", GoodUnits: 300, ScrapUnits: 15, CycleTimeAvgS: 7.2, DefectCodes: []string{"D04", "D19"}, StartedAt: iso(3 * time.Hour), EndedAt: iso(80 * time.Minute)},
	}
}

func (s *Simulator) loadSampleAlarms() {
	now := time.Now()
	iso := func(d time.Duration) string { return now.Add(-d).Format(time.RFC3339) }
	s.alarms = []Alarm{
		{ID: "AL-9001", StationID: "ST002", Severity: "high", Code: "VISION_MISALIGN", Message: "Vision system detected part misalignment", Timestamp: iso(35 * time.Minute)},
		{ID: "AL-9002", StationID: "ST003", Severity: "medium", Code: "LABEL_LOW_CONTRAST", Message: "Label contrast below threshold", Timestamp: iso(65 * time.Minute)},
		{ID: "AL-9003", StationID: "ST005", Severity: "low", Code: "TEMP_DRIFT", Message: "Chamber temperature drifted +1.5C", Timestamp: iso(130 * time.Minute)},
	}
}

func (s *Simulator) loadEnergySnapshots() {
	for _, id := range s.order {
		s.energy[id] = EnergySnapshot{
			StationID:   id,
			KwhLastHour: s.uniform(8, 18),
			KwhLast24h:  s.uniform(160, 360),
			PeakKw:      s.uniform(4, 9),
		}
	}
}
