// Package lights owns the motorway signal phases.
package lights

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

var ErrUnknownLight = errors.New("unknown traffic light")

// Signal points. Node 1 has only the eastbound-side light 1, node 4 only the
// westbound-side light 6; nodes 2 and 3 have one light per side.
const (
	Light1 = iota + 1
	Light2
	Light3
	Light4
	Light5
	Light6

	LightCount = Light6
)

const DefaultCycle = 10 * time.Second

type Scheduler struct {
	Period time.Duration
	Logger *slog.Logger

	mu     sync.RWMutex
	green  map[int]bool
	cycles int
}

// NewScheduler returns a scheduler with every light red. A non-positive
// period falls back to DefaultCycle.
func NewScheduler(period time.Duration) *Scheduler {
	if period <= 0 {
		period = DefaultCycle
	}

	green := make(map[int]bool, LightCount)
	for id := Light1; id <= LightCount; id++ {
		green[id] = false
	}

	return &Scheduler{
		Period: period,
		Logger: slog.Default(),
		green:  green,
	}
}

// Run advances the phases right away and then once per period until ctx ends.
func (s *Scheduler) Run(ctx context.Context) error {
	s.Logger.Info("traffic light cycle started", "period", s.Period)

	ticker := time.NewTicker(s.Period)
	defer ticker.Stop()

	s.Advance()
	for {
		select {
		case <-ctx.Done():
			s.Logger.Info("traffic light cycle stopped", "cycles", s.Cycles())
			return nil
		case <-ticker.C:
			s.Advance()
		}
	}
}

// Advance performs one phase change. The two sides of nodes 2 and 3 are
// toggled together so that they never show green at the same time.
func (s *Scheduler) Advance() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.green[Light1] = !s.green[Light1]
	s.green[Light6] = !s.green[Light6]

	node2 := s.green[Light2]
	s.green[Light2] = !node2
	s.green[Light3] = node2

	node3 := s.green[Light4]
	s.green[Light4] = !node3
	s.green[Light5] = node3

	s.cycles++
	s.Logger.Debug("traffic lights changed", "cycle", s.cycles, slog.Any("phases", s.green))
}

func (s *Scheduler) IsGreen(id int) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.green[id]
}

// SetEmergencyGreen forces one light. The next Advance restores the coupling.
func (s *Scheduler) SetEmergencyGreen(id int, green bool) error {
	if id < Light1 || id > LightCount {
		return fmt.Errorf("%w: %d", ErrUnknownLight, id)
	}

	s.mu.Lock()
	s.green[id] = green
	s.mu.Unlock()

	s.Logger.Info("emergency override", "light", id, "green", green)
	return nil
}

// Phases returns a copy of every light's state.
func (s *Scheduler) Phases() map[int]bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	phases := make(map[int]bool, len(s.green))
	for id, g := range s.green {
		phases[id] = g
	}
	return phases
}

func (s *Scheduler) Cycles() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.cycles
}
