package manager

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"smartflow/models"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSummarize(t *testing.T) {
	mean, maximum, stddev := summarize(nil)
	assert.Zero(t, mean)
	assert.Zero(t, maximum)
	assert.Zero(t, stddev)

	mean, maximum, stddev = summarize([]float64{4})
	assert.Equal(t, 4.0, mean)
	assert.Equal(t, 4.0, maximum)
	assert.Zero(t, stddev)

	mean, maximum, stddev = summarize([]float64{2, 4, 6})
	assert.InDelta(t, 4.0, mean, 1e-9)
	assert.Equal(t, 6.0, maximum)
	assert.InDelta(t, 2.0, stddev, 1e-9)
}

func TestSaveBenchmarkResults_NoSamples(t *testing.T) {
	tm := newTestManager(ModeIntersection)

	csvPath, jsonPath, err := tm.SaveBenchmarkResults(t.TempDir())
	require.NoError(t, err)
	assert.Empty(t, csvPath)
	assert.Empty(t, jsonPath)
}

func TestSaveBenchmarkResults(t *testing.T) {
	tm := newTestManager(ModeMotorway)
	tm.StartBenchmark("unit")

	place(tm, models.NewMotorwayVehicle(models.Normal, models.West, models.Straight, 0), orb.Point{0, 390}).setState(Waiting)
	place(tm, models.NewMotorwayVehicle(models.Emergency, models.East, models.Straight, 0), orb.Point{900, 210})

	first := tm.RecordBenchmarkMetrics()
	second := tm.RecordBenchmarkMetrics()
	assert.Equal(t, 0, first.TimeStep)
	assert.Equal(t, 1, second.TimeStep)
	assert.Equal(t, 2, second.TotalVehicles)
	assert.Equal(t, 1, second.WaitingVehicles)
	assert.Equal(t, 1, second.EmergencyVehicles)

	dir := filepath.Join(t.TempDir(), "statistics")
	csvPath, jsonPath, err := tm.SaveBenchmarkResults(dir)
	require.NoError(t, err)
	assert.Contains(t, filepath.Base(csvPath), "benchmark_unit_")
	assert.Contains(t, filepath.Base(jsonPath), "summary_unit_")

	f, err := os.Open(csvPath)
	require.NoError(t, err)
	defer f.Close()

	records, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, csvHeader, records[0])
	assert.Equal(t, "2", records[2][1])

	raw, err := os.ReadFile(jsonPath)
	require.NoError(t, err)

	var summary SimulationSummary
	require.NoError(t, json.Unmarshal(raw, &summary))
	assert.Equal(t, tm.RunID, summary.RunID)
	assert.Equal(t, ModeMotorway, summary.Mode)
	assert.Equal(t, 2, summary.TotalSteps)
	assert.InDelta(t, 2.0, summary.AverageVehicles, 1e-9)
	assert.InDelta(t, 1.0, summary.AverageWaitingQueue, 1e-9)
}

func TestRunMetrics_PrunesFinished(t *testing.T) {
	tm := newTestManager(ModeIntersection)

	a := place(tm, models.NewVehicle(models.Normal, models.West, models.Straight), orb.Point{0, 450})
	a.finish(false)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	require.NoError(t, tm.RunMetrics(ctx, 5*time.Millisecond))

	assert.Empty(t, tm.Vehicles())
	assert.NotEmpty(t, tm.Metrics())
	assert.Equal(t, 1, tm.CurrentMetrics().TotalRemovedVehicles)
}
