package arbiter

import (
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"smartflow/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var quiet = slog.New(slog.NewTextHandler(io.Discard, nil))

func newSimple() *Simple {
	s := NewSimple(1)
	s.Logger = quiet
	return s
}

func TestSimple_FIFOWithinArrivalOrder(t *testing.T) {
	s := newSimple()
	a := models.NewVehicle(models.Normal, models.North, models.Straight)
	b := models.NewVehicle(models.Normal, models.East, models.TurnLeft)
	c := models.NewVehicle(models.Normal, models.North, models.TurnRight)
	for _, v := range []*models.Vehicle{a, b, c} {
		s.Enqueue(v)
	}

	var order []int64
	for range 3 {
		for _, v := range []*models.Vehicle{c, b, a} {
			if s.IsMyTurn(v) {
				require.True(t, s.StartCrossing(v))
				order = append(order, v.ID)
				s.Leave(v)
				break
			}
		}
	}

	assert.Equal(t, []int64{a.ID, b.ID, c.ID}, order)
}

func TestSimple_PositionInQueue(t *testing.T) {
	s := newSimple()
	a := models.NewVehicle(models.Normal, models.West, models.Straight)
	b := models.NewVehicle(models.Normal, models.South, models.Straight)
	c := models.NewVehicle(models.Normal, models.West, models.TurnLeft)
	s.Enqueue(a)
	s.Enqueue(b)
	s.Enqueue(c)

	assert.Equal(t, 0, s.PositionInQueue(a))
	assert.Equal(t, 0, s.PositionInQueue(b))
	assert.Equal(t, 1, s.PositionInQueue(c))

	require.True(t, s.StartCrossing(a))
	assert.Equal(t, -1, s.PositionInQueue(a))
	assert.Equal(t, 0, s.PositionInQueue(c))
}

func TestSimple_EmergencyPrecedence(t *testing.T) {
	s := newSimple()
	n1 := models.NewVehicle(models.Normal, models.North, models.Straight)
	n2 := models.NewVehicle(models.Normal, models.South, models.Straight)
	em := models.NewVehicle(models.Emergency, models.East, models.TurnLeft)
	s.Enqueue(n1)
	s.Enqueue(n2)
	s.Enqueue(em)

	assert.True(t, s.IsEmergencyActive())
	assert.False(t, s.IsMyTurn(n1))
	assert.False(t, s.IsMyTurn(n2))
	assert.True(t, s.IsMyTurn(em))

	require.True(t, s.StartCrossing(em))
	assert.True(t, s.IsEmergencyActive())
	s.Leave(em)
	assert.False(t, s.IsEmergencyActive())
	assert.True(t, s.IsMyTurn(n1))
}

func TestSimple_EmergencyWaitsBehindItsOriginHead(t *testing.T) {
	s := newSimple()
	other := models.NewVehicle(models.Normal, models.South, models.Straight)
	ahead := models.NewVehicle(models.Normal, models.West, models.Straight)
	em := models.NewVehicle(models.Emergency, models.West, models.Straight)
	s.Enqueue(other)
	s.Enqueue(ahead)
	s.Enqueue(em)

	assert.False(t, s.IsMyTurn(other))
	assert.False(t, s.IsMyTurn(em))
	assert.True(t, s.IsMyTurn(ahead))
}

func TestSimple_EmergencyNeverInterruptsCrossing(t *testing.T) {
	s := newSimple()
	n := models.NewVehicle(models.Normal, models.North, models.Straight)
	s.Enqueue(n)
	require.True(t, s.StartCrossing(n))

	em := models.NewVehicle(models.Emergency, models.South, models.Straight)
	s.Enqueue(em)

	assert.False(t, s.IsMyTurn(em))
	assert.False(t, s.StartCrossing(em))

	s.Leave(n)
	assert.True(t, s.IsMyTurn(em))
}

func TestSimple_LeaveWithdrawsWaitingVehicle(t *testing.T) {
	s := newSimple()
	a := models.NewVehicle(models.Normal, models.North, models.Straight)
	b := models.NewVehicle(models.Normal, models.North, models.Straight)
	s.Enqueue(a)
	s.Enqueue(b)

	s.Leave(a)
	s.Leave(a)

	assert.Equal(t, -1, s.PositionInQueue(a))
	assert.True(t, s.IsMyTurn(b))
	assert.Equal(t, 1, s.Occupancy().Waiting)
}

func TestSimple_MutualExclusionUnderContention(t *testing.T) {
	s := newSimple()
	origins := []models.Direction{models.North, models.South, models.East, models.West}

	var (
		inside  atomic.Int32
		maxSeen atomic.Int32
		wg      sync.WaitGroup
	)

	const vehicles = 40
	for i := range vehicles {
		priority := models.Normal
		if i%7 == 0 {
			priority = models.Emergency
		}
		v := models.NewVehicle(priority, origins[i%len(origins)], models.Straight)
		s.Enqueue(v)

		wg.Add(1)
		go func() {
			defer wg.Done()
			for !s.IsMyTurn(v) || !s.StartCrossing(v) {
				time.Sleep(50 * time.Microsecond)
			}
			n := inside.Add(1)
			for {
				old := maxSeen.Load()
				if n <= old || maxSeen.CompareAndSwap(old, n) {
					break
				}
			}
			assert.Len(t, s.Occupancy().Crossing, 1)
			inside.Add(-1)
			s.Leave(v)
		}()
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(10 * time.Second):
		t.Fatal("vehicles did not all cross")
	}

	assert.Equal(t, int32(1), maxSeen.Load())
	assert.Zero(t, s.Occupancy().Waiting)
}
