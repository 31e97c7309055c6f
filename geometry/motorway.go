package geometry

import (
	"fmt"

	"smartflow/models"

	"github.com/paulmach/orb"
	"github.com/samber/lo"
)

// Motorway layout: six lanes, three per direction, with four merge nodes.
// Eastbound traffic (origin west) uses the lower half, westbound traffic
// (origin east) the upper half; lane offsets count from the median.
const (
	LaneHeight     = 60.0
	TotalLanes     = 6
	NodeWidth      = 120.0
	UTurnOffset    = 30.0
	StopLineOffset = 50.0
	NodeCount      = 4
)

type Motorway struct {
	Width  float64
	Height float64
}

// Top is the y coordinate of the motorway's upper edge.
func (m Motorway) Top() float64 {
	return (m.Height - LaneHeight*TotalLanes) / 2
}

func (m Motorway) NodeCenter(node int) (float64, bool) {
	switch node {
	case 1:
		return NodeWidth / 2, true
	case 2:
		return m.Width/2 - m.Width/8, true
	case 3:
		return m.Width/2 + m.Width/8, true
	case 4:
		return m.Width - NodeWidth/2, true
	default:
		return 0, false
	}
}

func (m Motorway) LaneY(origin models.Direction, lane models.Lane) float64 {
	offset := 0.5
	switch lane {
	case models.SecondRail:
		offset = 1.5
	case models.ThirdRail:
		offset = 2.5
	}

	if origin == models.East {
		return m.Top() + (3-offset)*LaneHeight
	}
	return m.Top() + 3*LaneHeight + offset*LaneHeight
}

// AllowedTargets lists the nodes a vehicle from origin may turn off at.
func AllowedTargets(origin models.Direction) []int {
	switch origin {
	case models.West:
		return []int{2, 3, 4}
	case models.East:
		return []int{1, 2, 3}
	default:
		return nil
	}
}

// LightNode is the node guarded by a light.
func LightNode(light int) (int, bool) {
	switch light {
	case 1:
		return 1, true
	case 2, 3:
		return 2, true
	case 4, 5:
		return 3, true
	case 6:
		return 4, true
	default:
		return 0, false
	}
}

// IsFinalTurnLight reports whether light is the last one before a vehicle
// turning off at target.
func IsFinalTurnLight(light, target int) bool {
	node, ok := LightNode(light)
	return ok && node == target
}

// StopLine is where a vehicle in lane waits for light.
func (m Motorway) StopLine(light int, origin models.Direction, lane models.Lane) (orb.Point, bool) {
	node, ok := LightNode(light)
	if !ok {
		return orb.Point{}, false
	}
	center, _ := m.NodeCenter(node)

	var x float64
	switch light {
	case 1, 2, 4:
		x = center + NodeWidth/2 + StopLineOffset
	default:
		x = center - NodeWidth/2 - StopLineOffset
	}
	return orb.Point{x, m.LaneY(origin, lane)}, true
}

// Zone is the window around a node in which through traffic counts as
// crossing it.
func (m Motorway) Zone(node int) (orb.Bound, bool) {
	center, ok := m.NodeCenter(node)
	if !ok {
		return orb.Bound{}, false
	}
	return orb.Bound{
		Min: orb.Point{center - NodeWidth/2, m.Top()},
		Max: orb.Point{center + NodeWidth/2, m.Top() + LaneHeight*TotalLanes},
	}, true
}

// ZoneAt returns the node whose zone contains p.
func (m Motorway) ZoneAt(p orb.Point) (int, bool) {
	for node := 1; node <= NodeCount; node++ {
		if zone, _ := m.Zone(node); zone.Contains(p) {
			return node, true
		}
	}
	return 0, false
}

func (m Motorway) Route(v *models.Vehicle, from *orb.Point) (Route, error) {
	if m.Width <= 0 || m.Height <= 0 {
		return Route{}, ErrEmptyLayout
	}
	if v.Origin != models.West && v.Origin != models.East {
		return Route{}, fmt.Errorf("%w: motorway traffic from %s", ErrUnsupportedRoute, v.Origin)
	}

	lane := v.Lane
	if lane == models.NoLane {
		lane = models.LaneFor(v.Movement)
	}
	y := m.LaneY(v.Origin, lane)

	start := orb.Point{-VehicleOffset, y}
	end := orb.Point{m.Width + VehicleOffset, y}
	if v.Origin == models.East {
		start, end = end, start
	}
	if from != nil {
		start = *from
	}

	switch v.Movement {
	case models.Straight, models.StraightAfterUTurn:
		return Route{
			Path:    orb.LineString{start, end},
			Signals: m.throughSignals(v.Origin, start.X()),
		}, nil
	case models.TurnLeft, models.TurnRight, models.UTurn:
		return m.turnRoute(v, lane, start)
	default:
		return Route{}, fmt.Errorf("%w: motorway %s", ErrUnsupportedRoute, v.Movement)
	}
}

func (m Motorway) turnRoute(v *models.Vehicle, lane models.Lane, start orb.Point) (Route, error) {
	if v.TargetNode == 0 {
		return Route{}, fmt.Errorf("%w: vehicle %d %s from %s", ErrNoTargetNode, v.ID, v.Movement, v.Origin)
	}
	if !lo.Contains(AllowedTargets(v.Origin), v.TargetNode) {
		return Route{}, fmt.Errorf("%w: node %d from %s", ErrInvalidTarget, v.TargetNode, v.Origin)
	}

	signals := m.turnSignals(v.Origin, v.TargetNode)
	final := signals[len(signals)-1]
	stop, _ := m.StopLine(final.Light, v.Origin, lane)
	center, _ := m.NodeCenter(v.TargetNode)
	y := start.Y()

	path := orb.LineString{start, {stop.X(), y}, {center, y}}

	// Westbound vehicles turn left towards the bottom, eastbound ones
	// towards the top.
	up, down := orb.Point{center, -VehicleOffset}, orb.Point{center, m.Height + VehicleOffset}
	switch {
	case v.Movement == models.UTurn:
		back := m.LaneY(v.Origin.Opposite(), models.SecondRail)
		shift := -UTurnOffset
		if v.Origin == models.East {
			shift = UTurnOffset
		}
		path = append(path, orb.Point{center, back}, orb.Point{center + shift, back})
	case (v.Movement == models.TurnLeft) == (v.Origin == models.West):
		path = append(path, up)
	default:
		path = append(path, down)
	}

	return Route{Path: path, Signals: signals}, nil
}

// throughSignals lists the lights still ahead of a vehicle at x.
func (m Motorway) throughSignals(origin models.Direction, x float64) []Signal {
	var signals []Signal
	for _, s := range directionSignals(origin) {
		center, _ := m.NodeCenter(s.Node)
		if (origin == models.West && x < center) || (origin == models.East && x > center) {
			signals = append(signals, s)
		}
	}
	return signals
}

func (m Motorway) turnSignals(origin models.Direction, target int) []Signal {
	var signals []Signal
	for _, s := range directionSignals(origin) {
		signals = append(signals, s)
		if s.Node == target {
			break
		}
	}
	return signals
}

// directionSignals is the order in which traffic from origin meets the lights.
func directionSignals(origin models.Direction) []Signal {
	if origin == models.East {
		return []Signal{{Light: 4, Node: 3}, {Light: 2, Node: 2}, {Light: 1, Node: 1}}
	}
	return []Signal{{Light: 3, Node: 2}, {Light: 5, Node: 3}, {Light: 6, Node: 4}}
}

// Signal returns the light on a node for traffic from origin.
func (m Motorway) Signal(node int, origin models.Direction) (Signal, bool) {
	return lo.Find(directionSignals(origin), func(s Signal) bool {
		return s.Node == node
	})
}
