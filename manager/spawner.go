package manager

import (
	"context"
	"errors"
	"log/slog"
	"math/rand/v2"
	"time"

	"smartflow/geometry"
	"smartflow/models"

	"github.com/samber/lo"
)

type SpawnConfig struct {
	// BatchSize vehicles are created per batch, Interval apart.
	BatchSize int
	Interval  time.Duration
	// EmergencyRate is the chance for a new vehicle to be an emergency.
	EmergencyRate float64
	// Total stops the spawner after that many vehicles; 0 means no limit.
	Total int
	Seed  uint64
}

func DefaultSpawnConfig(mode Mode) SpawnConfig {
	cfg := SpawnConfig{
		BatchSize:     15,
		Interval:      time.Second,
		EmergencyRate: 1.0 / 200,
		Seed:          uint64(time.Now().UnixNano()),
	}
	if mode == ModeMotorway {
		cfg.EmergencyRate = 1.0 / 1000
	}
	return cfg
}

// Spawner feeds random traffic into a manager.
type Spawner struct {
	Logger *slog.Logger

	tm      *TrafficManager
	cfg     SpawnConfig
	rng     *rand.Rand
	spawned int
}

func NewSpawner(tm *TrafficManager, cfg SpawnConfig) *Spawner {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 1
	}
	if cfg.Interval <= 0 {
		cfg.Interval = time.Second
	}
	cfg.EmergencyRate = lo.Clamp(cfg.EmergencyRate, 0, 1)

	return &Spawner{
		Logger: tm.Logger,
		tm:     tm,
		cfg:    cfg,
		rng:    rand.New(rand.NewPCG(cfg.Seed, cfg.Seed^0x9e3779b97f4a7c15)),
	}
}

var (
	intersectionOrigins   = []models.Direction{models.North, models.South, models.East, models.West}
	intersectionMovements = []models.Movement{models.Straight, models.TurnLeft, models.TurnRight, models.UTurn}
	motorwayOrigins       = []models.Direction{models.West, models.East}
	motorwayMovements     = []models.Movement{models.Straight, models.TurnLeft, models.TurnRight, models.UTurn}
)

// Next draws a random vehicle that the manager's layout can route.
func (s *Spawner) Next() *models.Vehicle {
	priority := models.Normal
	if s.rng.Float64() < s.cfg.EmergencyRate {
		priority = models.Emergency
	}

	if s.tm.Mode != ModeMotorway {
		return models.NewVehicle(priority, pick(s.rng, intersectionOrigins), pick(s.rng, intersectionMovements))
	}

	origin := pick(s.rng, motorwayOrigins)
	movement := pick(s.rng, motorwayMovements)
	target := 0
	if movement.IsTurn() {
		target = pick(s.rng, geometry.AllowedTargets(origin))
	}
	return models.NewMotorwayVehicle(priority, origin, movement, target)
}

func pick[T any](rng *rand.Rand, items []T) T {
	return items[rng.IntN(len(items))]
}

// Batch spawns one batch and returns how many vehicles entered.
func (s *Spawner) Batch() int {
	n := s.cfg.BatchSize
	if s.cfg.Total > 0 {
		n = min(n, s.cfg.Total-s.spawned)
	}

	entered := 0
	for range n {
		if _, err := s.tm.Spawn(s.Next(), nil); err != nil {
			if errors.Is(err, ErrStopping) {
				break
			}
			s.Logger.Warn("spawn failed", "error", err)
			continue
		}
		entered++
	}
	s.spawned += n

	s.Logger.Debug("batch spawned", "vehicles", entered, "total", s.spawned)
	return entered
}

// Run spawns a batch every Interval until ctx is done or Total is reached.
func (s *Spawner) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	for {
		if s.cfg.Total > 0 && s.spawned >= s.cfg.Total {
			s.Logger.Info("spawner finished", "vehicles", s.spawned)
			return nil
		}
		if s.tm.Stopping() {
			s.Logger.Info("spawner stopped", "vehicles", s.spawned)
			return nil
		}

		s.Batch()

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}
