package manager

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"time"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// runStats accumulates over the whole run; guarded by statsMu.
type runStats struct {
	created        int
	removed        int
	throughput     int
	throughputStep int
	waits          []float64
	travels        []float64
}

type benchmark struct {
	name    string
	started time.Time
	step    int
	metrics []BenchmarkMetrics
}

type BenchmarkMetrics struct {
	TimeStep              int     `json:"timeStep"`
	TotalVehicles         int     `json:"totalVehicles"`
	WaitingVehicles       int     `json:"waitingVehicles"`
	CrossingVehicles      int     `json:"crossingVehicles"`
	EmergencyVehicles     int     `json:"emergencyVehicles"`
	AverageWaitTime       float64 `json:"averageWaitTime"`
	MaxWaitTime           float64 `json:"maxWaitTime"`
	WaitTimeStdDev        float64 `json:"waitTimeStdDev"`
	ThroughputCount       int     `json:"throughputCount"`
	TotalThroughput       int     `json:"totalThroughput"`
	TotalCreatedVehicles  int     `json:"totalCreatedVehicles"`
	TotalRemovedVehicles  int     `json:"totalRemovedVehicles"`
	AverageTravelTime     float64 `json:"averageTravelTime"`
	MaxTravelTime         float64 `json:"maxTravelTime"`
	GreenLights           int     `json:"greenLights"`
	SimulationTimeElapsed float64 `json:"simulationTimeElapsed"`
}

type SimulationSummary struct {
	RunID               string  `json:"runId"`
	Mode                Mode    `json:"mode"`
	Name                string  `json:"name"`
	TotalSteps          int     `json:"totalSteps"`
	AverageVehicles     float64 `json:"averageVehicles"`
	TotalUniqueVehicles int     `json:"totalUniqueVehicles"`
	FinalThroughput     int     `json:"finalThroughput"`
	AverageWaitTime     float64 `json:"averageWaitTime"`
	MaxWaitTime         float64 `json:"maxWaitTime"`
	AverageTravelTime   float64 `json:"averageTravelTime"`
	MaxTravelTime       float64 `json:"maxTravelTime"`
	AverageWaitingQueue float64 `json:"averageWaitingQueue"`
	SimulationRuntime   float64 `json:"simulationRuntime"`
	Timestamp           string  `json:"timestamp"`
}

func (tm *TrafficManager) StartBenchmark(name string) {
	tm.statsMu.Lock()
	tm.bench = benchmark{name: name, started: time.Now()}
	tm.statsMu.Unlock()

	tm.Logger.Info("starting benchmark", "name", name, "run", tm.RunID)
}

// CurrentMetrics samples the run without recording the sample.
func (tm *TrafficManager) CurrentMetrics() BenchmarkMetrics {
	actors := tm.Vehicles()

	var m BenchmarkMetrics
	var waits []float64
	for _, a := range actors {
		if a.Finished() {
			continue
		}
		m.TotalVehicles++
		switch a.State() {
		case Waiting, AtLight:
			m.WaitingVehicles++
		case Crossing:
			m.CrossingVehicles++
		}
		if a.Vehicle.IsEmergency() {
			m.EmergencyVehicles++
		}
		waits = append(waits, a.WaitTime().Seconds())
	}
	if tm.Mode == ModeMotorway {
		for _, green := range tm.Lights.Phases() {
			if green {
				m.GreenLights++
			}
		}
	}

	tm.statsMu.Lock()
	defer tm.statsMu.Unlock()

	waits = append(waits, tm.stats.waits...)
	m.AverageWaitTime, m.MaxWaitTime, m.WaitTimeStdDev = summarize(waits)
	m.AverageTravelTime, m.MaxTravelTime, _ = summarize(tm.stats.travels)

	m.TimeStep = tm.bench.step
	m.ThroughputCount = tm.stats.throughputStep
	m.TotalThroughput = tm.stats.throughput
	m.TotalCreatedVehicles = tm.stats.created
	m.TotalRemovedVehicles = tm.stats.removed
	if !tm.bench.started.IsZero() {
		m.SimulationTimeElapsed = time.Since(tm.bench.started).Seconds()
	}
	return m
}

// RecordBenchmarkMetrics appends one sample and starts a new throughput step.
func (tm *TrafficManager) RecordBenchmarkMetrics() BenchmarkMetrics {
	m := tm.CurrentMetrics()

	tm.statsMu.Lock()
	tm.bench.metrics = append(tm.bench.metrics, m)
	tm.bench.step++
	tm.stats.throughputStep = 0
	tm.statsMu.Unlock()

	return m
}

// RunMetrics samples every interval and prunes finished vehicles until ctx
// is done.
func (tm *TrafficManager) RunMetrics(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			tm.RecordBenchmarkMetrics()
			tm.RemoveFinished()
		}
	}
}

// Metrics returns the recorded samples.
func (tm *TrafficManager) Metrics() []BenchmarkMetrics {
	tm.statsMu.Lock()
	defer tm.statsMu.Unlock()
	return slices.Clone(tm.bench.metrics)
}

func summarize(xs []float64) (mean, maximum, stddev float64) {
	if len(xs) == 0 {
		return 0, 0, 0
	}
	mean = stat.Mean(xs, nil)
	maximum = floats.Max(xs)
	if len(xs) > 1 {
		stddev = stat.StdDev(xs, nil)
	}
	return mean, maximum, stddev
}

// SaveBenchmarkResults writes the samples as CSV and a JSON summary into
// dir and returns both paths.
func (tm *TrafficManager) SaveBenchmarkResults(dir string) (string, string, error) {
	samples := tm.Metrics()
	if len(samples) == 0 {
		tm.Logger.Info("no benchmark metrics to save")
		return "", "", nil
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", "", fmt.Errorf("create statistics dir: %w", err)
	}

	stamp := time.Now().Format("20060102_150405")
	name := tm.benchName()

	csvFilename := filepath.Join(dir, fmt.Sprintf("benchmark_%s_%s.csv", name, stamp))
	if err := writeMetricsCSV(csvFilename, samples); err != nil {
		return "", "", err
	}

	jsonFilename := filepath.Join(dir, fmt.Sprintf("summary_%s_%s.json", name, stamp))
	jsonData, err := json.MarshalIndent(tm.createSimulationSummary(samples), "", "  ")
	if err != nil {
		return "", "", fmt.Errorf("marshal summary: %w", err)
	}
	if err := os.WriteFile(jsonFilename, jsonData, 0644); err != nil {
		return "", "", fmt.Errorf("write summary: %w", err)
	}

	tm.Logger.Info("benchmark results saved", "csv", csvFilename, "summary", jsonFilename)
	return csvFilename, jsonFilename, nil
}

func (tm *TrafficManager) benchName() string {
	tm.statsMu.Lock()
	defer tm.statsMu.Unlock()

	if tm.bench.name == "" {
		return string(tm.Mode)
	}
	return tm.bench.name
}

var csvHeader = []string{
	"TimeStep",
	"TotalVehicles",
	"WaitingVehicles",
	"CrossingVehicles",
	"EmergencyVehicles",
	"AverageWaitTime",
	"MaxWaitTime",
	"WaitTimeStdDev",
	"ThroughputCount",
	"TotalThroughput",
	"TotalCreatedVehicles",
	"TotalRemovedVehicles",
	"AverageTravelTime",
	"MaxTravelTime",
	"GreenLights",
	"SimulationTimeElapsed",
}

func writeMetricsCSV(filename string, samples []BenchmarkMetrics) error {
	file, err := os.Create(filename)
	if err != nil {
		return fmt.Errorf("create benchmark csv: %w", err)
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	if err := writer.Write(csvHeader); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}

	for _, m := range samples {
		record := []string{
			fmt.Sprintf("%d", m.TimeStep),
			fmt.Sprintf("%d", m.TotalVehicles),
			fmt.Sprintf("%d", m.WaitingVehicles),
			fmt.Sprintf("%d", m.CrossingVehicles),
			fmt.Sprintf("%d", m.EmergencyVehicles),
			fmt.Sprintf("%.2f", m.AverageWaitTime),
			fmt.Sprintf("%.2f", m.MaxWaitTime),
			fmt.Sprintf("%.2f", m.WaitTimeStdDev),
			fmt.Sprintf("%d", m.ThroughputCount),
			fmt.Sprintf("%d", m.TotalThroughput),
			fmt.Sprintf("%d", m.TotalCreatedVehicles),
			fmt.Sprintf("%d", m.TotalRemovedVehicles),
			fmt.Sprintf("%.2f", m.AverageTravelTime),
			fmt.Sprintf("%.2f", m.MaxTravelTime),
			fmt.Sprintf("%d", m.GreenLights),
			fmt.Sprintf("%.2f", m.SimulationTimeElapsed),
		}
		if err := writer.Write(record); err != nil {
			return fmt.Errorf("write csv record: %w", err)
		}
	}

	writer.Flush()
	return writer.Error()
}

func (tm *TrafficManager) createSimulationSummary(samples []BenchmarkMetrics) SimulationSummary {
	vehicles := make([]float64, len(samples))
	waiting := make([]float64, len(samples))
	for i, m := range samples {
		vehicles[i] = float64(m.TotalVehicles)
		waiting[i] = float64(m.WaitingVehicles)
	}

	final := samples[len(samples)-1]
	return SimulationSummary{
		RunID:               tm.RunID,
		Mode:                tm.Mode,
		Name:                tm.benchName(),
		TotalSteps:          len(samples),
		AverageVehicles:     stat.Mean(vehicles, nil),
		TotalUniqueVehicles: final.TotalCreatedVehicles,
		FinalThroughput:     final.TotalThroughput,
		AverageWaitTime:     final.AverageWaitTime,
		MaxWaitTime:         final.MaxWaitTime,
		AverageTravelTime:   final.AverageTravelTime,
		MaxTravelTime:       final.MaxTravelTime,
		AverageWaitingQueue: stat.Mean(waiting, nil),
		SimulationRuntime:   final.SimulationTimeElapsed,
		Timestamp:           time.Now().Format("2006-01-02T15:04:05"),
	}
}
