// Package manager runs the simulation: one actor per vehicle, the arbiters
// that admit them, the light scheduler and the zone tracker.
package manager

import (
	"cmp"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"smartflow/arbiter"
	"smartflow/conflict"
	"smartflow/geometry"
	"smartflow/lights"
	"smartflow/models"

	"github.com/google/uuid"
	"github.com/paulmach/orb"
	"github.com/samber/lo"
)

type Mode string

const (
	ModeIntersection Mode = "intersection"
	ModeMotorway     Mode = "motorway"
)

var (
	ErrUnknownMode   = errors.New("unknown mode")
	ErrUnknownAction = errors.New("unknown action")
	ErrStopping      = errors.New("manager is stopping")
)

func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModeIntersection, ModeMotorway:
		return Mode(s), nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownMode, s)
	}
}

type TrafficManager struct {
	Mode   Mode
	RunID  string
	Logger *slog.Logger

	Tick              time.Duration
	NormalSpeed       float64
	EmergencySpeed    float64
	DetectionDistance float64
	SafeDistance      float64
	FollowingGap      float64
	VehicleSpacing    float64
	TargetReached     float64
	StopLineProximity float64
	EscortDistance    float64

	Router       geometry.Router
	Intersection geometry.Intersection
	Motorway     geometry.Motorway

	// Crossing admits vehicles in intersection mode.
	Crossing *arbiter.Simple
	// Nodes admit turning vehicles in motorway mode, keyed by node.
	Nodes  map[int]*arbiter.Lane
	Lights *lights.Scheduler
	Zones  *conflict.Tracker

	mu       sync.RWMutex
	actors   map[int64]*Actor
	stopping bool
	wg       sync.WaitGroup
	bypass   bypassBook

	statsMu sync.Mutex
	stats   runStats
	bench   benchmark
}

// NewTrafficManager builds a manager for a width x height layout in mode.
func NewTrafficManager(mode Mode, width, height float64) *TrafficManager {
	tm := &TrafficManager{
		Mode:   mode,
		RunID:  uuid.NewString(),
		Logger: slog.Default(),

		Tick:              16 * time.Millisecond,
		NormalSpeed:       2.0,
		EmergencySpeed:    7.4,
		DetectionDistance: 50.0,
		SafeDistance:      50.0,
		FollowingGap:      25.0,
		VehicleSpacing:    30.0,
		TargetReached:     1.5,
		StopLineProximity: 2.0,
		EscortDistance:    75.0,

		Crossing: arbiter.NewSimple(0),
		Nodes:    make(map[int]*arbiter.Lane),
		Lights:   lights.NewScheduler(lights.DefaultCycle),
		Zones:    conflict.NewTracker(),

		actors: make(map[int64]*Actor),
	}

	switch mode {
	case ModeMotorway:
		tm.Motorway = geometry.Motorway{Width: width, Height: height}
		tm.Router = tm.Motorway
		for node := 1; node <= geometry.NodeCount; node++ {
			tm.Nodes[node] = arbiter.NewLane(node)
		}
	default:
		tm.Intersection = geometry.Intersection{Width: width, Height: height}
		tm.Router = tm.Intersection
	}

	return tm
}

// SetLogger hands logger to the manager and every component it owns.
func (tm *TrafficManager) SetLogger(logger *slog.Logger) {
	tm.Logger = logger
	tm.Crossing.Logger = logger
	tm.Lights.Logger = logger
	tm.Zones.Logger = logger
	for _, node := range tm.Nodes {
		node.Logger = logger
	}
}

// Spawn routes v and starts its actor. from overrides the entry point. A
// vehicle that cannot be routed, or arrives after StopAll, is returned
// already finished, together with the error, and never enters the
// simulation.
func (tm *TrafficManager) Spawn(v *models.Vehicle, from *orb.Point) (*Actor, error) {
	a := newActor(tm, v)

	if err := v.Validate(); err != nil {
		a.finish(false)
		return a, err
	}

	route, err := tm.Router.Route(v, from)
	if err != nil {
		a.finish(false)
		tm.Logger.Warn("vehicle rejected", "vehicle", v.ID, "error", err)
		return a, fmt.Errorf("spawn vehicle %d: %w", v.ID, err)
	}
	a.route = route
	a.setPosition(route.Path[0])

	tm.mu.Lock()
	if tm.stopping {
		tm.mu.Unlock()
		a.finish(false)
		return a, fmt.Errorf("spawn vehicle %d: %w", v.ID, ErrStopping)
	}
	tm.actors[v.ID] = a
	tm.wg.Add(1)
	tm.mu.Unlock()

	tm.statsMu.Lock()
	tm.stats.created++
	tm.statsMu.Unlock()

	go func() {
		defer tm.wg.Done()
		a.run()
	}()

	return a, nil
}

// Vehicles returns the registered actors ordered by vehicle id.
func (tm *TrafficManager) Vehicles() []*Actor {
	tm.mu.RLock()
	actors := lo.Values(tm.actors)
	tm.mu.RUnlock()

	slices.SortFunc(actors, func(a, b *Actor) int {
		return cmp.Compare(a.Vehicle.ID, b.Vehicle.ID)
	})
	return actors
}

// StopAll closes the manager to new vehicles, asks every running actor to
// stop and returns how many were asked.
func (tm *TrafficManager) StopAll() int {
	tm.mu.Lock()
	tm.stopping = true
	tm.mu.Unlock()

	running := lo.Filter(tm.Vehicles(), func(a *Actor, _ int) bool {
		return !a.Finished()
	})
	for _, a := range running {
		a.Stop()
	}

	tm.Logger.Info("stopping all vehicles", "count", len(running))
	return len(running)
}

// Stopping reports whether StopAll has run.
func (tm *TrafficManager) Stopping() bool {
	tm.mu.RLock()
	defer tm.mu.RUnlock()
	return tm.stopping
}

// Wait blocks until every spawned actor has finished.
func (tm *TrafficManager) Wait() {
	tm.wg.Wait()
}

// RemoveFinished drops finished actors from the registry.
func (tm *TrafficManager) RemoveFinished() int {
	tm.mu.Lock()
	finished := lo.PickBy(tm.actors, func(_ int64, a *Actor) bool {
		return a.Finished()
	})
	for id := range finished {
		delete(tm.actors, id)
	}
	tm.mu.Unlock()

	if len(finished) > 0 {
		tm.statsMu.Lock()
		tm.stats.removed += len(finished)
		tm.statsMu.Unlock()
	}
	return len(finished)
}

func (tm *TrafficManager) recordExit(a *Actor) {
	tm.statsMu.Lock()
	defer tm.statsMu.Unlock()

	if !a.Completed() {
		return
	}
	tm.stats.throughput++
	tm.stats.throughputStep++
	tm.stats.waits = append(tm.stats.waits, a.WaitTime().Seconds())
	tm.stats.travels = append(tm.stats.travels, a.TravelTime().Seconds())
}

type VehicleSnapshot struct {
	models.Vehicle
	X        float64 `json:"x"`
	Y        float64 `json:"y"`
	State    State   `json:"state"`
	WaitTime float64 `json:"waitTime"`
}

// Snapshot is the observable state of a run at one instant.
type Snapshot struct {
	RunID    string                    `json:"runId"`
	Mode     Mode                      `json:"mode"`
	Time     time.Time                 `json:"time"`
	Vehicles []VehicleSnapshot         `json:"vehicles"`
	Lights   map[int]bool              `json:"lights,omitempty"`
	Nodes    map[int]arbiter.Occupancy `json:"nodes"`
	Metrics  BenchmarkMetrics          `json:"metrics"`
}

func (tm *TrafficManager) Snapshot() Snapshot {
	actors := lo.Reject(tm.Vehicles(), func(a *Actor, _ int) bool {
		return a.Finished()
	})

	snapshot := Snapshot{
		RunID: tm.RunID,
		Mode:  tm.Mode,
		Time:  time.Now(),
		Vehicles: lo.Map(actors, func(a *Actor, _ int) VehicleSnapshot {
			pos := a.Position()
			return VehicleSnapshot{
				Vehicle:  *a.Vehicle,
				X:        pos.X(),
				Y:        pos.Y(),
				State:    a.State(),
				WaitTime: a.WaitTime().Seconds(),
			}
		}),
		Nodes:   make(map[int]arbiter.Occupancy),
		Metrics: tm.CurrentMetrics(),
	}

	switch tm.Mode {
	case ModeMotorway:
		snapshot.Lights = tm.Lights.Phases()
		for id, node := range tm.Nodes {
			snapshot.Nodes[id] = node.Occupancy()
		}
	default:
		snapshot.Nodes[tm.Crossing.ID] = tm.Crossing.Occupancy()
	}

	return snapshot
}

const (
	ActionSpawn          = "spawn"
	ActionStopAll        = "stop_all"
	ActionEmergencyGreen = "emergency_green"
)

// Command is an external control request, received over the web API or
// the feed connection.
type Command struct {
	Action     string           `json:"action"`
	Priority   models.Priority  `json:"priority,omitempty"`
	Origin     models.Direction `json:"origin,omitempty"`
	Movement   models.Movement  `json:"movement,omitempty"`
	TargetNode int              `json:"targetNode,omitempty"`
	Light      int              `json:"light,omitempty"`
	Green      bool             `json:"green,omitempty"`
}

func (tm *TrafficManager) Apply(cmd Command) error {
	switch cmd.Action {
	case ActionSpawn:
		priority := cmd.Priority
		if priority == "" {
			priority = models.Normal
		}

		var v *models.Vehicle
		if tm.Mode == ModeMotorway {
			v = models.NewMotorwayVehicle(priority, cmd.Origin, cmd.Movement, cmd.TargetNode)
		} else {
			v = models.NewVehicle(priority, cmd.Origin, cmd.Movement)
		}

		_, err := tm.Spawn(v, nil)
		return err
	case ActionStopAll:
		tm.StopAll()
		return nil
	case ActionEmergencyGreen:
		return tm.Lights.SetEmergencyGreen(cmd.Light, cmd.Green)
	default:
		return fmt.Errorf("%w: %q", ErrUnknownAction, cmd.Action)
	}
}
