package conflict

import (
	"io"
	"log/slog"
	"sync"
	"testing"

	"smartflow/models"

	"github.com/stretchr/testify/assert"
)

func newTracker() *Tracker {
	t := NewTracker()
	t.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	return t
}

func TestOpposingTraffic(t *testing.T) {
	turning := models.NewMotorwayVehicle(models.Normal, models.West, models.TurnLeft, 2)
	east := models.NewMotorwayVehicle(models.Normal, models.East, models.Straight, 0)
	west := models.NewMotorwayVehicle(models.Normal, models.West, models.Straight, 0)

	tests := map[string]struct {
		zone     []*models.Vehicle
		expected bool
	}{
		"empty zone":          {zone: nil, expected: false},
		"same direction only": {zone: []*models.Vehicle{west, turning}, expected: false},
		"opposing through":    {zone: []*models.Vehicle{west, east}, expected: true},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, test.expected, OpposingTraffic(test.zone, turning))
		})
	}
}

func TestTracker_EnterExit(t *testing.T) {
	tr := newTracker()
	turning := models.NewMotorwayVehicle(models.Normal, models.East, models.UTurn, 3)
	through := models.NewMotorwayVehicle(models.Normal, models.West, models.Straight, 0)

	assert.False(t, tr.IsOpposingTrafficCrossing(3, turning))

	tr.EnterZone(3, through)
	tr.EnterZone(3, through)
	assert.Len(t, tr.Occupants(3), 1)
	assert.True(t, tr.IsOpposingTrafficCrossing(3, turning))
	assert.False(t, tr.IsOpposingTrafficCrossing(2, turning), "zones are per node")

	tr.ExitZone(3, through)
	assert.False(t, tr.IsOpposingTrafficCrossing(3, turning))
}

func TestTracker_ExitAll(t *testing.T) {
	tr := newTracker()
	v := models.NewMotorwayVehicle(models.Normal, models.West, models.Straight, 0)
	tr.EnterZone(1, v)
	tr.EnterZone(2, v)

	tr.ExitAll(v)

	assert.Empty(t, tr.Occupants(1))
	assert.Empty(t, tr.Occupants(2))
}

func TestTracker_ConcurrentUpdates(t *testing.T) {
	tr := newTracker()

	var wg sync.WaitGroup
	for i := range 50 {
		v := models.NewMotorwayVehicle(models.Normal, models.West, models.Straight, 0)
		wg.Add(1)
		go func() {
			defer wg.Done()
			node := i%4 + 1
			tr.EnterZone(node, v)
			_ = tr.Occupants(node)
			tr.ExitZone(node, v)
		}()
	}
	wg.Wait()

	for node := 1; node <= 4; node++ {
		assert.Empty(t, tr.Occupants(node))
	}
}

func TestTracker_OccupantsOrderedByID(t *testing.T) {
	tr := newTracker()

	var entered []*models.Vehicle
	for range 5 {
		entered = append(entered, models.NewMotorwayVehicle(models.Normal, models.East, models.Straight, 0))
	}
	for i := len(entered) - 1; i >= 0; i-- {
		tr.EnterZone(2, entered[i])
	}

	assert.Equal(t, entered, tr.Occupants(2))
	assert.Empty(t, tr.Occupants(4))
}
