// Package conflict tracks which vehicles are inside the through zone of each
// motorway node and detects turns that would cut across opposing traffic.
package conflict

import (
	"cmp"
	"log/slog"
	"slices"
	"sync"

	"smartflow/models"

	"github.com/samber/lo"
)

// OpposingTraffic reports whether any vehicle in zone comes from the
// direction opposite to the turning vehicle's origin.
func OpposingTraffic(zone []*models.Vehicle, turning *models.Vehicle) bool {
	opposite := turning.Origin.Opposite()
	return lo.SomeBy(zone, func(v *models.Vehicle) bool {
		return v.ID != turning.ID && v.Origin == opposite
	})
}

// Tracker records zone membership per node. Membership is positional: each
// vehicle reports its own entries and exits.
type Tracker struct {
	Logger *slog.Logger

	mu    sync.RWMutex
	zones map[int]map[int64]*models.Vehicle
}

func NewTracker() *Tracker {
	return &Tracker{
		Logger: slog.Default(),
		zones:  make(map[int]map[int64]*models.Vehicle),
	}
}

func (t *Tracker) EnterZone(node int, v *models.Vehicle) {
	t.mu.Lock()
	defer t.mu.Unlock()

	zone, ok := t.zones[node]
	if !ok {
		zone = make(map[int64]*models.Vehicle)
		t.zones[node] = zone
	}
	if _, inside := zone[v.ID]; !inside {
		zone[v.ID] = v
		t.Logger.Debug("vehicle entered zone", "node", node, "id", v.ID, "origin", v.Origin)
	}
}

func (t *Tracker) ExitZone(node int, v *models.Vehicle) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, inside := t.zones[node][v.ID]; inside {
		delete(t.zones[node], v.ID)
		t.Logger.Debug("vehicle left zone", "node", node, "id", v.ID)
	}
}

// ExitAll removes v from every zone.
func (t *Tracker) ExitAll(v *models.Vehicle) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for _, zone := range t.zones {
		delete(zone, v.ID)
	}
}

// Occupants lists the vehicles inside a node's zone ordered by id.
func (t *Tracker) Occupants(node int) []*models.Vehicle {
	t.mu.RLock()
	defer t.mu.RUnlock()

	occupants := lo.Values(t.zones[node])
	slices.SortFunc(occupants, func(a, b *models.Vehicle) int {
		return cmp.Compare(a.ID, b.ID)
	})
	return occupants
}

func (t *Tracker) IsOpposingTrafficCrossing(node int, turning *models.Vehicle) bool {
	zone := t.Occupants(node)
	if !OpposingTraffic(zone, turning) {
		return false
	}

	t.Logger.Debug("opposing traffic detected", "node", node, "id", turning.ID, "origin", turning.Origin,
		"occupants", len(zone))
	return true
}
