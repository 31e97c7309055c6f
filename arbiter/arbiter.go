// Package arbiter decides which waiting vehicle may occupy a shared road
// resource next.
//
// Two policies implement Arbiter: Simple serves a single four-way
// intersection in global arrival order, Lane serves one motorway node with
// per-lane queues and one active direction at a time. Both give emergency
// vehicles precedence over normal traffic that has not started crossing, and
// neither ever interrupts a crossing in progress.
package arbiter

import (
	"slices"

	"smartflow/models"

	"github.com/samber/lo"
)

// Arbiter is the admission-control contract a vehicle actor talks to.
type Arbiter interface {
	// Enqueue registers a vehicle that wants to cross.
	Enqueue(v *models.Vehicle)
	// IsMyTurn reports whether v may start crossing now.
	IsMyTurn(v *models.Vehicle) bool
	// StartCrossing admits v if it is still its turn and reports whether it did.
	StartCrossing(v *models.Vehicle) bool
	// Leave releases v. It is safe to call for a vehicle that never crossed
	// and to call more than once.
	Leave(v *models.Vehicle)
	// PositionInQueue is the 0-based place of v in its own queue, or -1.
	PositionInQueue(v *models.Vehicle) int
	IsEmergencyActive() bool
}

// Occupancy is a point-in-time view of an arbiter used by observers.
type Occupancy struct {
	Waiting   int     `json:"waiting"`
	Crossing  []int64 `json:"crossing"`
	Emergency bool    `json:"emergency"`
}

// Inspector is implemented by arbiters that can report their occupancy.
type Inspector interface {
	Occupancy() Occupancy
}

func remove(queue []*models.Vehicle, v *models.Vehicle) []*models.Vehicle {
	return lo.Reject(queue, func(q *models.Vehicle, _ int) bool {
		return q.ID == v.ID
	})
}

func indexOf(queue []*models.Vehicle, v *models.Vehicle) int {
	_, i, ok := lo.FindIndexOf(queue, func(q *models.Vehicle) bool {
		return q.ID == v.ID
	})
	if !ok {
		return -1
	}
	return i
}

func isHead(queue []*models.Vehicle, v *models.Vehicle) bool {
	return len(queue) > 0 && queue[0].ID == v.ID
}

func crossingIDs(crossing map[int64]*models.Vehicle) []int64 {
	ids := lo.Keys(crossing)
	slices.Sort(ids)
	return ids
}
