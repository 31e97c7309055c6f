package geometry

import (
	"testing"

	"smartflow/models"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBehindAndAhead(t *testing.T) {
	p := orb.Point{100, 100}
	tests := []struct {
		origin   models.Direction
		expected orb.Point
	}{
		{origin: models.North, expected: orb.Point{100, 70}},
		{origin: models.South, expected: orb.Point{100, 130}},
		{origin: models.East, expected: orb.Point{130, 100}},
		{origin: models.West, expected: orb.Point{70, 100}},
	}

	for _, test := range tests {
		behind := Behind(p, test.origin, 30)
		assert.Equal(t, test.expected, behind, string(test.origin))
		assert.True(t, Ahead(test.origin, behind, p), string(test.origin))
		assert.False(t, Ahead(test.origin, p, behind), string(test.origin))
	}
}

func TestIntersection_RouteEndpoints(t *testing.T) {
	g := Intersection{Width: 800, Height: 800}

	tests := []struct {
		origin   models.Direction
		movement models.Movement
		points   int
		exit     orb.Point
	}{
		{origin: models.West, movement: models.Straight, points: 4, exit: orb.Point{850, 450}},
		{origin: models.West, movement: models.TurnRight, points: 5, exit: orb.Point{350, 850}},
		{origin: models.West, movement: models.TurnLeft, points: 5, exit: orb.Point{450, -50}},
		{origin: models.West, movement: models.UTurn, points: 4, exit: orb.Point{-50, 350}},
		{origin: models.North, movement: models.Straight, points: 4, exit: orb.Point{350, 850}},
		{origin: models.South, movement: models.TurnLeft, points: 5, exit: orb.Point{-50, 350}},
		{origin: models.East, movement: models.TurnRight, points: 5, exit: orb.Point{450, -50}},
	}

	for _, test := range tests {
		v := models.NewVehicle(models.Normal, test.origin, test.movement)
		route, err := g.Route(v, nil)
		require.NoError(t, err)
		assert.Len(t, route.Path, test.points, "%s %s", test.origin, test.movement)
		assert.Equal(t, test.exit, route.Path[len(route.Path)-1], "%s %s", test.origin, test.movement)
		assert.Empty(t, route.Signals)
	}
}

func TestIntersection_StopPoints(t *testing.T) {
	g := Intersection{Width: 800, Height: 800}

	route, err := g.Route(models.NewVehicle(models.Normal, models.West, models.Straight), nil)
	require.NoError(t, err)
	assert.Equal(t, orb.Point{280, 450}, route.Path[1])

	route, err = g.Route(models.NewVehicle(models.Normal, models.North, models.TurnLeft), nil)
	require.NoError(t, err)
	assert.Equal(t, orb.Point{350, 280}, route.Path[1])
}

func TestIntersection_Errors(t *testing.T) {
	_, err := Intersection{}.Route(models.NewVehicle(models.Normal, models.West, models.Straight), nil)
	assert.ErrorIs(t, err, ErrEmptyLayout)

	g := Intersection{Width: 800, Height: 600}
	_, err = g.Route(models.NewVehicle(models.Normal, models.West, models.StraightAfterUTurn), nil)
	assert.ErrorIs(t, err, ErrUnsupportedRoute)
}

func TestMotorway_Layout(t *testing.T) {
	m := Motorway{Width: 1200, Height: 600}

	assert.Equal(t, 120.0, m.Top())
	for node, expected := range map[int]float64{1: 60, 2: 450, 3: 750, 4: 1140} {
		center, ok := m.NodeCenter(node)
		require.True(t, ok)
		assert.Equal(t, expected, center, "node %d", node)
	}
	_, ok := m.NodeCenter(5)
	assert.False(t, ok)

	assert.Equal(t, 270.0, m.LaneY(models.East, models.FirstRail))
	assert.Equal(t, 150.0, m.LaneY(models.East, models.ThirdRail))
	assert.Equal(t, 330.0, m.LaneY(models.West, models.FirstRail))
	assert.Equal(t, 450.0, m.LaneY(models.West, models.ThirdRail))

	stop, ok := m.StopLine(3, models.West, models.SecondRail)
	require.True(t, ok)
	assert.Equal(t, orb.Point{340, 390}, stop)
	stop, ok = m.StopLine(2, models.East, models.SecondRail)
	require.True(t, ok)
	assert.Equal(t, orb.Point{560, 210}, stop)
}

func TestMotorway_Zones(t *testing.T) {
	m := Motorway{Width: 1200, Height: 600}

	node, ok := m.ZoneAt(orb.Point{460, 300})
	assert.True(t, ok)
	assert.Equal(t, 2, node)

	_, ok = m.ZoneAt(orb.Point{600, 300})
	assert.False(t, ok, "between nodes")

	_, ok = m.ZoneAt(orb.Point{450, 20})
	assert.False(t, ok, "above the carriageway")
}

func TestMotorway_ThroughSignals(t *testing.T) {
	m := Motorway{Width: 1200, Height: 600}

	route, err := m.Route(models.NewMotorwayVehicle(models.Normal, models.West, models.Straight, 0), nil)
	require.NoError(t, err)
	assert.Equal(t, []Signal{{3, 2}, {5, 3}, {6, 4}}, route.Signals)
	assert.Equal(t, orb.LineString{{-50, 390}, {1250, 390}}, route.Path)

	route, err = m.Route(models.NewMotorwayVehicle(models.Normal, models.East, models.Straight, 0), nil)
	require.NoError(t, err)
	assert.Equal(t, []Signal{{4, 3}, {2, 2}, {1, 1}}, route.Signals)

	uturn := models.NewMotorwayVehicle(models.Normal, models.West, models.UTurn, 2)
	from := orb.Point{420, 210}
	route, err = m.Route(uturn.Continuation(), &from)
	require.NoError(t, err)
	assert.Equal(t, []Signal{{1, 1}}, route.Signals)
	assert.Equal(t, from, route.Path[0])
}

func TestMotorway_TurnRoutes(t *testing.T) {
	m := Motorway{Width: 1200, Height: 600}

	tests := []struct {
		origin   models.Direction
		movement models.Movement
		target   int
		signals  []Signal
		exit     orb.Point
	}{
		{models.West, models.TurnLeft, 3, []Signal{{3, 2}, {5, 3}}, orb.Point{750, -50}},
		{models.West, models.TurnRight, 2, []Signal{{3, 2}}, orb.Point{450, 650}},
		{models.East, models.TurnLeft, 1, []Signal{{4, 3}, {2, 2}, {1, 1}}, orb.Point{60, 650}},
		{models.East, models.TurnRight, 3, []Signal{{4, 3}}, orb.Point{750, -50}},
		{models.West, models.UTurn, 4, []Signal{{3, 2}, {5, 3}, {6, 4}}, orb.Point{1110, 210}},
		{models.East, models.UTurn, 2, []Signal{{4, 3}, {2, 2}}, orb.Point{480, 390}},
	}

	for _, test := range tests {
		v := models.NewMotorwayVehicle(models.Normal, test.origin, test.movement, test.target)
		route, err := m.Route(v, nil)
		require.NoError(t, err)
		assert.Equal(t, test.signals, route.Signals, "%s %s", test.origin, test.movement)
		assert.Equal(t, test.exit, route.Path[len(route.Path)-1], "%s %s", test.origin, test.movement)

		final := route.Signals[len(route.Signals)-1]
		assert.True(t, IsFinalTurnLight(final.Light, test.target))
		stop, _ := m.StopLine(final.Light, test.origin, v.Lane)
		assert.Equal(t, stop, route.Path[1])
	}
}

func TestMotorway_RouteErrors(t *testing.T) {
	m := Motorway{Width: 1200, Height: 600}

	_, err := m.Route(models.NewMotorwayVehicle(models.Normal, models.West, models.TurnLeft, 0), nil)
	assert.ErrorIs(t, err, ErrNoTargetNode)

	_, err = m.Route(models.NewMotorwayVehicle(models.Normal, models.West, models.TurnLeft, 1), nil)
	assert.ErrorIs(t, err, ErrInvalidTarget)

	_, err = m.Route(models.NewMotorwayVehicle(models.Normal, models.North, models.Straight, 0), nil)
	assert.ErrorIs(t, err, ErrUnsupportedRoute)

	_, err = Motorway{}.Route(models.NewMotorwayVehicle(models.Normal, models.West, models.Straight, 0), nil)
	assert.ErrorIs(t, err, ErrEmptyLayout)
}

func TestMotorway_Signal(t *testing.T) {
	m := Motorway{Width: 1200, Height: 600}

	s, ok := m.Signal(3, models.West)
	assert.True(t, ok)
	assert.Equal(t, Signal{Light: 5, Node: 3}, s)

	_, ok = m.Signal(1, models.West)
	assert.False(t, ok)
}
