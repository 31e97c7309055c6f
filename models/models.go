package models

import (
	"errors"
	"fmt"
	"sync/atomic"
)

var ErrInvalidVehicle = errors.New("invalid vehicle")

type Direction string

const (
	North Direction = "north"
	South Direction = "south"
	East  Direction = "east"
	West  Direction = "west"
)

// Opposite returns the compass direction facing d, or "" for an unknown direction.
func (d Direction) Opposite() Direction {
	switch d {
	case North:
		return South
	case South:
		return North
	case East:
		return West
	case West:
		return East
	default:
		return ""
	}
}

func (d Direction) Valid() bool {
	return d.Opposite() != ""
}

type Movement string

const (
	Straight           Movement = "straight"
	TurnLeft           Movement = "left"
	TurnRight          Movement = "right"
	UTurn              Movement = "u_turn"
	StraightAfterUTurn Movement = "straight_after_u_turn"
)

func (m Movement) Valid() bool {
	switch m {
	case Straight, TurnLeft, TurnRight, UTurn, StraightAfterUTurn:
		return true
	default:
		return false
	}
}

func (m Movement) IsTurn() bool {
	return m == TurnLeft || m == TurnRight || m == UTurn
}

// CrossesOpposingTraffic reports whether the movement cuts across the
// lanes of the opposite direction.
func (m Movement) CrossesOpposingTraffic() bool {
	return m == TurnLeft || m == UTurn
}

type Priority string

const (
	Normal    Priority = "normal"
	Emergency Priority = "emergency"
)

func (p Priority) Valid() bool {
	return p == Normal || p == Emergency
}

// Lane is one of the three motorway rails per direction, counted from the median.
type Lane string

const (
	NoLane     Lane = ""
	FirstRail  Lane = "first"
	SecondRail Lane = "second"
	ThirdRail  Lane = "third"
)

// LaneFor returns the rail a motorway vehicle takes for a movement.
func LaneFor(m Movement) Lane {
	switch m {
	case TurnLeft, UTurn:
		return FirstRail
	case TurnRight:
		return ThirdRail
	default:
		return SecondRail
	}
}

// Vehicle is the immutable description of one vehicle. The mutable control
// state (position, flags) belongs to the actor driving it.
type Vehicle struct {
	ID         int64     `json:"id"`
	Priority   Priority  `json:"priority"`
	Origin     Direction `json:"origin"`
	Movement   Movement  `json:"movement"`
	Lane       Lane      `json:"lane,omitempty"`
	TargetNode int       `json:"targetNode,omitempty"`
}

var vehicleIDs atomic.Int64

// NextVehicleID hands out process-wide unique ids starting at 1.
func NextVehicleID() int64 {
	return vehicleIDs.Add(1)
}

// NewVehicle describes a vehicle for the single intersection.
func NewVehicle(priority Priority, origin Direction, movement Movement) *Vehicle {
	return &Vehicle{
		ID:       NextVehicleID(),
		Priority: priority,
		Origin:   origin,
		Movement: movement,
	}
}

// NewMotorwayVehicle describes a motorway vehicle; the lane follows from the
// movement. targetNode is 0 for vehicles that do not leave the motorway.
func NewMotorwayVehicle(priority Priority, origin Direction, movement Movement, targetNode int) *Vehicle {
	return &Vehicle{
		ID:         NextVehicleID(),
		Priority:   priority,
		Origin:     origin,
		Movement:   movement,
		Lane:       LaneFor(movement),
		TargetNode: targetNode,
	}
}

// Continuation describes the vehicle that carries on after v completes a U-turn.
func (v *Vehicle) Continuation() *Vehicle {
	return &Vehicle{
		ID:       NextVehicleID(),
		Priority: v.Priority,
		Origin:   v.Origin.Opposite(),
		Movement: StraightAfterUTurn,
		Lane:     SecondRail,
	}
}

func (v *Vehicle) IsEmergency() bool {
	return v.Priority == Emergency
}

func (v *Vehicle) Validate() error {
	if !v.Priority.Valid() {
		return fmt.Errorf("%w: vehicle %d has priority %q", ErrInvalidVehicle, v.ID, v.Priority)
	}
	if !v.Origin.Valid() {
		return fmt.Errorf("%w: vehicle %d has origin %q", ErrInvalidVehicle, v.ID, v.Origin)
	}
	if !v.Movement.Valid() {
		return fmt.Errorf("%w: vehicle %d has movement %q", ErrInvalidVehicle, v.ID, v.Movement)
	}
	return nil
}

func (v *Vehicle) String() string {
	return fmt.Sprintf("vehicle %d (%s %s %s)", v.ID, v.Priority, v.Origin, v.Movement)
}
