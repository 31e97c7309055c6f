package arbiter

import (
	"log/slog"
	"sync"
	"sync/atomic"

	"smartflow/models"

	"github.com/samber/lo"
)

// Lane arbitrates one motorway node. Origins take turns owning the node in
// activation order; inside the active origin every lane admits its own
// queue head, one vehicle per lane at a time.
type Lane struct {
	Node   int
	Logger *slog.Logger

	mu         sync.Mutex
	queues     map[models.Direction]map[models.Lane][]*models.Vehicle
	activation []models.Direction
	crossing   map[int64]*models.Vehicle
	emergency  atomic.Bool
}

func NewLane(node int) *Lane {
	return &Lane{
		Node:     node,
		Logger:   slog.Default(),
		queues:   make(map[models.Direction]map[models.Lane][]*models.Vehicle),
		crossing: make(map[int64]*models.Vehicle),
	}
}

func (l *Lane) Enqueue(v *models.Vehicle) {
	l.mu.Lock()
	defer l.mu.Unlock()

	lanes, ok := l.queues[v.Origin]
	if !ok {
		lanes = make(map[models.Lane][]*models.Vehicle)
		l.queues[v.Origin] = lanes
	}
	if indexOf(lanes[v.Lane], v) >= 0 {
		return
	}
	lanes[v.Lane] = append(lanes[v.Lane], v)

	if v.IsEmergency() {
		if !l.emergency.Swap(true) {
			l.Logger.Info("emergency mode activated", "node", l.Node, "id", v.ID, "origin", v.Origin)
		}
		if len(l.activation) == 0 || l.activation[0] != v.Origin {
			l.activation = append([]models.Direction{v.Origin}, lo.Without(l.activation, v.Origin)...)
			l.Logger.Info("direction promoted", "node", l.Node, "origin", v.Origin, "id", v.ID)
		}
	} else if !lo.Contains(l.activation, v.Origin) {
		l.activation = append(l.activation, v.Origin)
	}

	l.Logger.Info("vehicle queued",
		"node", l.Node, "id", v.ID, "priority", v.Priority, "origin", v.Origin, "lane", v.Lane,
		"position", len(lanes[v.Lane])-1)
}

func (l *Lane) IsMyTurn(v *models.Vehicle) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.isMyTurn(v)
}

func (l *Lane) isMyTurn(v *models.Vehicle) bool {
	for id, c := range l.crossing {
		if c.Origin != v.Origin {
			return false
		}
		if id != v.ID && c.Lane == v.Lane {
			return false
		}
	}

	if len(l.activation) == 0 || l.activation[0] != v.Origin {
		return false
	}

	queue := l.queues[v.Origin][v.Lane]
	if !isHead(queue, v) {
		return false
	}

	if _, crossing := l.crossing[v.ID]; crossing {
		return true
	}

	if v.IsEmergency() {
		return len(l.crossing) == 0
	}

	// A normal vehicle only moves ahead of a waiting emergency of its own
	// direction when that emergency is stuck behind it in the same lane.
	if l.emergency.Load() && l.originHasEmergency(v.Origin) {
		return lo.SomeBy(queue[1:], isEmergency)
	}

	return true
}

func (l *Lane) StartCrossing(v *models.Vehicle) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.isMyTurn(v) {
		return false
	}
	if _, ok := l.crossing[v.ID]; ok {
		return true
	}

	l.crossing[v.ID] = v
	l.Logger.Info("vehicle crossing started",
		"node", l.Node, "id", v.ID, "priority", v.Priority, "origin", v.Origin, "lane", v.Lane)
	return true
}

func (l *Lane) Leave(v *models.Vehicle) {
	l.mu.Lock()
	defer l.mu.Unlock()

	_, wasCrossing := l.crossing[v.ID]
	delete(l.crossing, v.ID)

	lanes := l.queues[v.Origin]
	wasQueued := indexOf(lanes[v.Lane], v) >= 0
	if wasQueued {
		lanes[v.Lane] = remove(lanes[v.Lane], v)
	}

	if !wasCrossing && !wasQueued {
		return
	}

	if wasCrossing {
		l.Logger.Info("vehicle crossing completed",
			"node", l.Node, "id", v.ID, "priority", v.Priority, "origin", v.Origin, "lane", v.Lane)
	} else {
		l.Logger.Info("vehicle withdrawn", "node", l.Node, "id", v.ID, "origin", v.Origin, "lane", v.Lane)
	}

	if l.emergency.Load() && !l.anyEmergency() {
		l.emergency.Store(false)
		l.Logger.Info("emergency mode deactivated", "node", l.Node, "id", v.ID)
	}

	if l.directionClear(v.Origin) && lo.Contains(l.activation, v.Origin) {
		l.activation = lo.Without(l.activation, v.Origin)
		l.Logger.Info("direction cleared", "node", l.Node, "origin", v.Origin)
	}

	l.promoteEmergency()
}

// promoteEmergency hands the node to a waiting emergency once the active
// direction has none left.
func (l *Lane) promoteEmergency() {
	if len(l.activation) < 2 || l.originHasEmergency(l.activation[0]) {
		return
	}
	for _, origin := range l.activation[1:] {
		if l.originHasEmergency(origin) {
			l.activation = append([]models.Direction{origin}, lo.Without(l.activation, origin)...)
			l.Logger.Info("direction promoted", "node", l.Node, "origin", origin)
			return
		}
	}
}

func (l *Lane) originHasEmergency(origin models.Direction) bool {
	for _, queue := range l.queues[origin] {
		if lo.SomeBy(queue, isEmergency) {
			return true
		}
	}
	return false
}

func isEmergency(v *models.Vehicle) bool {
	return v.IsEmergency()
}

func (l *Lane) anyEmergency() bool {
	for origin := range l.queues {
		if l.originHasEmergency(origin) {
			return true
		}
	}
	return lo.SomeBy(lo.Values(l.crossing), isEmergency)
}

func (l *Lane) directionClear(origin models.Direction) bool {
	for _, queue := range l.queues[origin] {
		if len(queue) > 0 {
			return false
		}
	}
	return !lo.SomeBy(lo.Values(l.crossing), func(q *models.Vehicle) bool {
		return q.Origin == origin
	})
}

func (l *Lane) PositionInQueue(v *models.Vehicle) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	return indexOf(l.queues[v.Origin][v.Lane], v)
}

// IsEmergencyActive reads the node's emergency flag without taking the lock.
func (l *Lane) IsEmergencyActive() bool {
	return l.emergency.Load()
}

// ActiveDirection is the origin that currently owns the node, or "".
func (l *Lane) ActiveDirection() models.Direction {
	l.mu.Lock()
	defer l.mu.Unlock()

	if len(l.activation) == 0 {
		return ""
	}
	return l.activation[0]
}

func (l *Lane) Occupancy() Occupancy {
	l.mu.Lock()
	defer l.mu.Unlock()

	waiting := 0
	for _, lanes := range l.queues {
		for _, queue := range lanes {
			waiting += len(queue)
		}
	}

	return Occupancy{
		Waiting:   waiting - len(l.crossing),
		Crossing:  crossingIDs(l.crossing),
		Emergency: l.emergency.Load(),
	}
}
