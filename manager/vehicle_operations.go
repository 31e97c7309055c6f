package manager

import (
	"sync"
	"time"

	"smartflow/geometry"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
)

// FindVehicleAhead returns the nearest unfinished vehicle in front of a on
// the same origin and lane, within DetectionDistance.
func (tm *TrafficManager) FindVehicleAhead(a *Actor) *Actor {
	var closestVehicle *Actor
	minDistance := tm.DetectionDistance + 1
	pos := a.Position()

	tm.mu.RLock()
	defer tm.mu.RUnlock()

	for _, other := range tm.actors {
		if other == a || other.Finished() || !sameLane(a, other) {
			continue
		}

		otherPos := other.Position()
		if !geometry.Ahead(a.Vehicle.Origin, pos, otherPos) {
			continue
		}

		distance := planar.Distance(pos, otherPos)
		if distance > tm.DetectionDistance {
			continue
		}

		if distance < minDistance {
			minDistance = distance
			closestVehicle = other
		}
	}

	return closestVehicle
}

// FindEmergencyFollower returns an emergency vehicle right behind a in its
// lane, if any. a is then the escort follower and must clear the way.
func (tm *TrafficManager) FindEmergencyFollower(a *Actor) *Actor {
	if a.Vehicle.IsEmergency() {
		return nil
	}
	pos := a.Position()

	tm.mu.RLock()
	defer tm.mu.RUnlock()

	for _, other := range tm.actors {
		if other == a || other.Finished() || !other.Vehicle.IsEmergency() || !sameLane(a, other) {
			continue
		}

		otherPos := other.Position()
		if geometry.Ahead(a.Vehicle.Origin, otherPos, pos) && planar.Distance(pos, otherPos) <= tm.EscortDistance {
			return other
		}
	}

	return nil
}

func sameLane(a, b *Actor) bool {
	return a.Vehicle.Origin == b.Vehicle.Origin && a.Vehicle.Lane == b.Vehicle.Lane
}

// step moves from toward target by at most speed, landing exactly on the
// target when it is closer than one step.
func step(from, target orb.Point, speed float64) orb.Point {
	distance := planar.Distance(from, target)
	if distance <= speed {
		return target
	}

	ratio := speed / distance
	return orb.Point{
		from.X() + (target.X()-from.X())*ratio,
		from.Y() + (target.Y()-from.Y())*ratio,
	}
}

// bypassBook grants at most one escort-follower red-light bypass per light
// per tick.
type bypassBook struct {
	mu     sync.Mutex
	grants map[int]bypassGrant
}

type bypassGrant struct {
	vehicle int64
	at      time.Time
}

func (b *bypassBook) claim(light int, vehicle int64, window time.Duration) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.grants == nil {
		b.grants = make(map[int]bypassGrant)
	}

	now := time.Now()
	if g, ok := b.grants[light]; ok && g.vehicle != vehicle && now.Sub(g.at) < window {
		return false
	}

	b.grants[light] = bypassGrant{vehicle: vehicle, at: now}
	return true
}
