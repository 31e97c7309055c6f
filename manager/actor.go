package manager

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"smartflow/arbiter"
	"smartflow/geometry"
	"smartflow/models"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
)

type State string

const (
	Approaching State = "approaching"
	Waiting     State = "waiting"
	AtLight     State = "at_light"
	Crossing    State = "crossing"
	Exited      State = "exited"
)

// Actor drives one vehicle along its route on its own goroutine. The
// position is written only by that goroutine and read by everyone else.
type Actor struct {
	Vehicle *models.Vehicle

	tm     *TrafficManager
	route  geometry.Route
	zone   int
	ticker *time.Ticker

	mu        sync.RWMutex
	pos       orb.Point
	state     State
	since     time.Time
	waited    time.Duration
	createdAt time.Time
	endedAt   time.Time
	completed bool

	stopped  atomic.Bool
	finished atomic.Bool
	done     chan struct{}
}

func newActor(tm *TrafficManager, v *models.Vehicle) *Actor {
	now := time.Now()
	return &Actor{
		Vehicle:   v,
		tm:        tm,
		state:     Approaching,
		since:     now,
		createdAt: now,
		done:      make(chan struct{}),
	}
}

func (a *Actor) Position() orb.Point {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.pos
}

func (a *Actor) State() State {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.state
}

// WaitTime is the time spent held at a stop point or a light so far.
func (a *Actor) WaitTime() time.Duration {
	a.mu.RLock()
	defer a.mu.RUnlock()

	waited := a.waited
	if !a.finished.Load() && (a.state == Waiting || a.state == AtLight) {
		waited += time.Since(a.since)
	}
	return waited
}

// TravelTime is the time from creation to exit, or until now while running.
func (a *Actor) TravelTime() time.Duration {
	a.mu.RLock()
	defer a.mu.RUnlock()

	if a.endedAt.IsZero() {
		return time.Since(a.createdAt)
	}
	return a.endedAt.Sub(a.createdAt)
}

// Completed reports whether the vehicle reached the end of its path, as
// opposed to being stopped or rejected.
func (a *Actor) Completed() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.completed
}

func (a *Actor) Finished() bool {
	return a.finished.Load()
}

// Stop asks the actor to end its loop. It takes effect on the next tick.
func (a *Actor) Stop() {
	a.stopped.Store(true)
}

func (a *Actor) Running() bool {
	return !a.stopped.Load()
}

// Done is closed once the actor has finished and cleaned up.
func (a *Actor) Done() <-chan struct{} {
	return a.done
}

func (a *Actor) setPosition(p orb.Point) {
	a.mu.Lock()
	a.pos = p
	a.mu.Unlock()
}

func (a *Actor) setState(s State) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.state == s {
		return
	}

	now := time.Now()
	if a.state == Waiting || a.state == AtLight {
		a.waited += now.Sub(a.since)
	}
	a.state = s
	a.since = now
}

func (a *Actor) finish(completed bool) {
	if a.finished.Load() {
		return
	}

	a.setState(Exited)
	a.mu.Lock()
	a.endedAt = time.Now()
	a.completed = completed
	a.mu.Unlock()

	a.finished.Store(true)
	close(a.done)
}

func (a *Actor) run() {
	v := a.Vehicle
	log := a.tm.Logger.With("vehicle", v.ID)
	log.Debug("vehicle started", "origin", v.Origin, "movement", v.Movement, "priority", v.Priority)

	a.ticker = time.NewTicker(a.tm.Tick)
	defer a.ticker.Stop()

	var completed bool
	switch a.tm.Mode {
	case ModeMotorway:
		completed = a.runMotorway()
	default:
		completed = a.runIntersection()
	}

	a.finish(completed)
	a.tm.recordExit(a)
	log.Debug("vehicle finished", "completed", completed, "wait", a.WaitTime())
}

func (a *Actor) sleep() {
	<-a.ticker.C
}

func (a *Actor) moveToward(target orb.Point, clearing bool) {
	speed := a.tm.NormalSpeed
	if clearing {
		speed = a.tm.EmergencySpeed
	}
	a.setPosition(step(a.Position(), target, speed))
}

// clearing reports whether the vehicle moves at emergency speed: it is an
// emergency, it escorts one, or extra holds.
func (a *Actor) clearing(extra bool) bool {
	return a.Vehicle.IsEmergency() || extra || a.tm.FindEmergencyFollower(a) != nil
}

func (a *Actor) following(gap float64) bool {
	leader := a.tm.FindVehicleAhead(a)
	return leader != nil && planar.Distance(a.Position(), leader.Position()) < gap
}

// runIntersection drives the vehicle across the single crossing guarded by
// the manager's Crossing arbiter. The vehicle leaves the arbiter as soon as
// it starts its exit segment.
func (a *Actor) runIntersection() bool {
	arb := a.tm.Crossing
	v := a.Vehicle
	path := a.route.Path

	arb.Enqueue(v)
	defer arb.Leave(v)

	segment := 1
	crossing, left := false, false

	for a.Running() && segment < len(path) {
		target := path[segment]

		if !crossing {
			if arb.IsMyTurn(v) && arb.StartCrossing(v) {
				crossing = true
				a.setState(Crossing)
			} else {
				queued := max(arb.PositionInQueue(v), 0)
				target = geometry.Behind(path[1], v.Origin, float64(queued)*a.tm.VehicleSpacing)

				if a.following(a.tm.FollowingGap) {
					a.setState(Waiting)
					a.sleep()
					continue
				}
			}
		}

		a.moveToward(target, a.clearing(arb.IsEmergencyActive()))
		pos := a.Position()

		if !crossing {
			if pos.Equal(target) {
				a.setState(Waiting)
			} else {
				a.setState(Approaching)
			}
		} else if planar.Distance(pos, target) < a.tm.TargetReached {
			segment++
		}

		if crossing && !left && segment == len(path)-1 {
			arb.Leave(v)
			left = true
		}

		a.sleep()
	}

	return segment >= len(path)
}

// runMotorway drives the vehicle along the carriageway, stopping at each
// light on its route. A turning vehicle is admitted by the lane arbiter of
// its target node at the final light.
func (a *Actor) runMotorway() bool {
	v := a.Vehicle
	path, signals := a.route.Path, a.route.Signals

	var node *arbiter.Lane
	if v.Movement.IsTurn() {
		node = a.tm.Nodes[v.TargetNode]
		defer node.Leave(v)
	}
	defer a.tm.Zones.ExitAll(v)

	segment, next := 1, 0
	crossing := false

	for a.Running() && segment < len(path) {
		if a.following(a.tm.SafeDistance) {
			a.setState(Waiting)
			a.trackZone()
			a.sleep()
			continue
		}

		if next < len(signals) {
			signal := signals[next]
			stop, ok := a.tm.Motorway.StopLine(signal.Light, v.Origin, v.Lane)
			if !ok {
				a.tm.Logger.Error("no stop line for signal", "vehicle", v.ID, "light", signal.Light)
				return false
			}
			pos := a.Position()

			if !geometry.Ahead(v.Origin, stop, pos) {
				if planar.Distance(pos, stop) > a.tm.StopLineProximity {
					a.setState(Approaching)
					a.moveToward(stop, a.clearing(false))
					a.trackZone()
					a.sleep()
					continue
				}

				if !a.clearSignal(signal, node) {
					a.setState(AtLight)
					a.sleep()
					continue
				}
				crossing = crossing || (node != nil && geometry.IsFinalTurnLight(signal.Light, v.TargetNode))
			}

			next++
		}

		if crossing {
			a.setState(Crossing)
		} else {
			a.setState(Approaching)
		}

		target := path[segment]
		a.moveToward(target, a.clearing(false))
		if planar.Distance(a.Position(), target) < a.tm.TargetReached {
			segment++
		}

		a.trackZone()
		a.sleep()
	}

	completed := segment >= len(path)
	if completed && a.Running() && v.Movement == models.UTurn {
		from := a.Position()
		_, err := a.tm.Spawn(v.Continuation(), &from)
		if err != nil && !errors.Is(err, ErrStopping) {
			a.tm.Logger.Warn("u-turn continuation rejected", "vehicle", v.ID, "error", err)
		}
	}

	return completed
}

// clearSignal decides whether the vehicle may pass the stop line of signal.
func (a *Actor) clearSignal(signal geometry.Signal, node *arbiter.Lane) bool {
	v := a.Vehicle
	final := node != nil && geometry.IsFinalTurnLight(signal.Light, v.TargetNode)

	if final {
		node.Enqueue(v)
	}

	if !a.tm.Lights.IsGreen(signal.Light) {
		switch {
		case v.IsEmergency():
			if err := a.tm.Lights.SetEmergencyGreen(signal.Light, true); err != nil {
				a.tm.Logger.Warn("emergency override failed", "light", signal.Light, "error", err)
			}
		case a.tm.FindEmergencyFollower(a) != nil && a.tm.bypass.claim(signal.Light, v.ID, a.tm.Tick):
			a.tm.Logger.Debug("escort bypassing red light", "vehicle", v.ID, "light", signal.Light)
		default:
			return false
		}
	}

	if !final {
		return true
	}

	if v.Movement.CrossesOpposingTraffic() && a.tm.Zones.IsOpposingTrafficCrossing(v.TargetNode, v) {
		return false
	}

	return node.IsMyTurn(v) && node.StartCrossing(v)
}

// trackZone keeps the zone tracker in sync with the node window the vehicle
// is currently in.
func (a *Actor) trackZone() {
	node, ok := a.tm.Motorway.ZoneAt(a.Position())
	if a.zone != 0 && a.zone != node {
		a.tm.Zones.ExitZone(a.zone, a.Vehicle)
	}
	if ok && a.zone != node {
		a.tm.Zones.EnterZone(node, a.Vehicle)
	}
	a.zone = node
}
