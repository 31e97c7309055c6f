package arbiter

import (
	"log/slog"
	"sync"

	"smartflow/models"

	"github.com/samber/lo"
)

// Simple arbitrates a single intersection. At most one vehicle crosses at a
// time; the next one is the global head of the arrival queue, unless an
// emergency vehicle waits, in which case the head of that emergency's origin
// queue goes next.
type Simple struct {
	ID     int
	Logger *slog.Logger

	mu       sync.Mutex
	arrivals []*models.Vehicle
	byOrigin map[models.Direction][]*models.Vehicle
	crossing map[int64]*models.Vehicle
}

func NewSimple(id int) *Simple {
	return &Simple{
		ID:       id,
		Logger:   slog.Default(),
		byOrigin: make(map[models.Direction][]*models.Vehicle),
		crossing: make(map[int64]*models.Vehicle),
	}
}

func (s *Simple) Enqueue(v *models.Vehicle) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if indexOf(s.arrivals, v) >= 0 {
		return
	}
	s.arrivals = append(s.arrivals, v)
	s.byOrigin[v.Origin] = append(s.byOrigin[v.Origin], v)

	s.Logger.Info("vehicle queued",
		"intersection", s.ID, "id", v.ID, "priority", v.Priority, "origin", v.Origin,
		"position", len(s.byOrigin[v.Origin])-1)
}

func (s *Simple) IsMyTurn(v *models.Vehicle) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.isMyTurn(v)
}

func (s *Simple) isMyTurn(v *models.Vehicle) bool {
	if len(s.crossing) > 0 {
		return false
	}

	if em, ok := s.firstEmergency(); ok {
		return isHead(s.byOrigin[em.Origin], v)
	}

	return isHead(s.arrivals, v)
}

// firstEmergency is the earliest-arrived emergency vehicle still waiting.
func (s *Simple) firstEmergency() (*models.Vehicle, bool) {
	return lo.Find(s.arrivals, func(q *models.Vehicle) bool {
		return q.IsEmergency()
	})
}

func (s *Simple) StartCrossing(v *models.Vehicle) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.isMyTurn(v) {
		return false
	}

	s.arrivals = remove(s.arrivals, v)
	s.byOrigin[v.Origin] = remove(s.byOrigin[v.Origin], v)
	s.crossing[v.ID] = v

	s.Logger.Info("vehicle crossing started",
		"intersection", s.ID, "id", v.ID, "priority", v.Priority, "origin", v.Origin)
	return true
}

func (s *Simple) Leave(v *models.Vehicle) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.crossing[v.ID]; ok {
		delete(s.crossing, v.ID)
		s.Logger.Info("vehicle crossing completed",
			"intersection", s.ID, "id", v.ID, "priority", v.Priority, "origin", v.Origin)
		return
	}

	if indexOf(s.arrivals, v) >= 0 {
		s.arrivals = remove(s.arrivals, v)
		s.byOrigin[v.Origin] = remove(s.byOrigin[v.Origin], v)
		s.Logger.Info("vehicle withdrawn", "intersection", s.ID, "id", v.ID, "origin", v.Origin)
	}
}

func (s *Simple) PositionInQueue(v *models.Vehicle) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return indexOf(s.byOrigin[v.Origin], v)
}

func (s *Simple) IsEmergencyActive() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.emergencyActive()
}

func (s *Simple) emergencyActive() bool {
	if _, ok := s.firstEmergency(); ok {
		return true
	}
	return lo.SomeBy(lo.Values(s.crossing), func(q *models.Vehicle) bool {
		return q.IsEmergency()
	})
}

func (s *Simple) Occupancy() Occupancy {
	s.mu.Lock()
	defer s.mu.Unlock()

	return Occupancy{
		Waiting:   len(s.arrivals),
		Crossing:  crossingIDs(s.crossing),
		Emergency: s.emergencyActive(),
	}
}
