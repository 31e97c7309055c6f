// Package geometry computes the waypoints a vehicle follows across a
// layout, the signals it meets on the way and the zone windows of the
// motorway nodes.
package geometry

import (
	"errors"

	"smartflow/models"

	"github.com/paulmach/orb"
)

var (
	ErrEmptyLayout      = errors.New("layout has no size")
	ErrNoTargetNode     = errors.New("turning vehicle has no target node")
	ErrInvalidTarget    = errors.New("target node is not reachable from origin")
	ErrUnsupportedRoute = errors.New("unsupported origin and movement combination")
)

// VehicleOffset is how far outside the layout vehicles appear and vanish.
const VehicleOffset = 50.0

// Signal is a light a vehicle must clear before the node it guards.
type Signal struct {
	Light int `json:"light"`
	Node  int `json:"node"`
}

// Route is everything a vehicle needs to drive across a layout. Path[0] is
// the entry point and Path[1] the point where the vehicle stops to wait.
type Route struct {
	Path    orb.LineString
	Signals []Signal
}

// Router produces routes. from overrides the entry point for vehicles that
// start mid-layout, such as a U-turn continuation; nil means the default.
type Router interface {
	Route(v *models.Vehicle, from *orb.Point) (Route, error)
}

// Behind moves p by offset against the direction of travel of a vehicle
// coming from origin.
func Behind(p orb.Point, origin models.Direction, offset float64) orb.Point {
	switch origin {
	case models.North:
		return orb.Point{p.X(), p.Y() - offset}
	case models.South:
		return orb.Point{p.X(), p.Y() + offset}
	case models.East:
		return orb.Point{p.X() + offset, p.Y()}
	case models.West:
		return orb.Point{p.X() - offset, p.Y()}
	default:
		return p
	}
}

// Ahead reports whether b is further along than a for traffic from origin.
func Ahead(origin models.Direction, a, b orb.Point) bool {
	switch origin {
	case models.North:
		return b.Y() > a.Y()
	case models.South:
		return b.Y() < a.Y()
	case models.East:
		return b.X() < a.X()
	case models.West:
		return b.X() > a.X()
	default:
		return false
	}
}
