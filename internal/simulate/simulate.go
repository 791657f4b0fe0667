package simulate

import (
	"context"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/pointercrate/demonlist/internal/domain/ledger"
	"github.com/pointercrate/demonlist/internal/domain/model"
	"github.com/pointercrate/demonlist/internal/domain/timemachine"
	"github.com/pointercrate/demonlist/pkg/logger"
)

// Store is everything a run reads and writes. Both repository stores
// satisfy it.
type Store interface {
	ledger.Store
	timemachine.Store
}

// entry is the part of a ranked demon a checkpoint compares.
type entry struct {
	ID       int64
	Position int
	Name     string
}

type checkpoint struct {
	step    int
	at      time.Time
	entries []entry
}

// Simulator applies random operations to one store.
type Simulator struct {
	cfg     Config
	store   Store
	clock   *stepClock
	ledger  *ledger.Ledger
	machine *timemachine.Reconstructor
	rng     *rand.Rand
	log     logger.Logger

	ids         []int64
	checkpoints []checkpoint
	stats       Stats
}

// New creates a Simulator over store. The store should be empty.
func New(store Store, cfg Config) *Simulator {
	if cfg.Tick <= 0 {
		cfg.Tick = time.Second
	}
	if cfg.CheckEvery <= 0 {
		cfg.CheckEvery = 1
	}
	if cfg.Start.IsZero() {
		cfg.Start = DefaultConfig().Start
	}
	clock := &stepClock{now: cfg.Start.UTC(), tick: cfg.Tick}
	return &Simulator{
		cfg:     cfg,
		store:   store,
		clock:   clock,
		ledger:  ledger.New(store, ledger.WithClock(clock.Now)),
		machine: timemachine.New(store, timemachine.WithClock(clock.Now), timemachine.WithMinimum(cfg.Start.Add(-time.Hour))),
		rng:     rand.New(rand.NewPCG(cfg.Seed, cfg.Seed^0x9e3779b97f4a7c15)),
		log:     logger.Get().Named("simulate"),
		stats:   Stats{Seed: cfg.Seed},
	}
}

// Run seeds the list, applies cfg.Steps random operations checking density
// after each, then replays every checkpoint through the time machine.
func (s *Simulator) Run(ctx context.Context) (Stats, error) {
	start := time.Now()
	s.log.Info(ctx, "simulation started",
		logger.Int("steps", s.cfg.Steps),
		logger.Int("initial_demons", s.cfg.InitialDemons),
		logger.Int64("seed", int64(s.cfg.Seed)))

	for i := 0; i < s.cfg.InitialDemons; i++ {
		if err := s.insert(ctx, i+1); err != nil {
			return s.stats, err
		}
	}
	if err := s.checkpoint(ctx, 0); err != nil {
		return s.stats, err
	}

	for step := 1; step <= s.cfg.Steps; step++ {
		if err := ctx.Err(); err != nil {
			return s.stats, err
		}
		if err := s.step(ctx); err != nil {
			return s.stats, fmt.Errorf("step %d: %w", step, err)
		}
		s.stats.Steps++
		if step%s.cfg.CheckEvery == 0 {
			if err := s.checkpoint(ctx, step); err != nil {
				return s.stats, fmt.Errorf("step %d: %w", step, err)
			}
		}
	}

	if err := s.verify(ctx); err != nil {
		return s.stats, err
	}

	s.stats.Duration = time.Since(start)
	s.log.Info(ctx, "simulation passed",
		logger.Int("steps", s.stats.Steps),
		logger.Int("checkpoints", s.stats.Checkpoints),
		logger.Int("final_size", s.stats.FinalSize),
		logger.Duration("duration", s.stats.Duration))
	return s.stats, nil
}

// step applies one random operation. About one in ten targets an invalid
// position and must be rejected without touching the list.
func (s *Simulator) step(ctx context.Context) error {
	last, err := s.store.LastPosition(ctx)
	if err != nil {
		return err
	}

	op := s.pickOp(last)
	invalid := s.rng.IntN(10) == 0

	switch op {
	case OpInsert:
		pos := 1 + s.rng.IntN(last+1)
		if invalid {
			pos = last + 2 + s.rng.IntN(3)
		}
		return s.guard(ctx, invalid, func() error { return s.insert(ctx, pos) })
	case OpMove:
		id := s.rankedID(ctx)
		pos := 1 + s.rng.IntN(last)
		if invalid {
			pos = last + 1 + s.rng.IntN(3)
		}
		return s.guard(ctx, invalid, func() error {
			if _, err := s.ledger.Move(ctx, id, pos); err != nil {
				return err
			}
			s.stats.Moves++
			return nil
		})
	default:
		id := s.ids[s.rng.IntN(len(s.ids))]
		if _, err := s.ledger.Remove(ctx, id); err != nil {
			return err
		}
		s.stats.Removes++
		return s.checkDense(ctx)
	}
}

func (s *Simulator) pickOp(last int) Op {
	if last == 0 {
		return OpInsert
	}
	switch n := s.rng.IntN(10); {
	case n < 4:
		return OpInsert
	case n < 8:
		return OpMove
	default:
		return OpRemove
	}
}

// guard runs fn and checks its outcome. A rejected operation must report
// InvalidPosition and leave the live list untouched.
func (s *Simulator) guard(ctx context.Context, invalid bool, fn func() error) error {
	if !invalid {
		if err := fn(); err != nil {
			return err
		}
		return s.checkDense(ctx)
	}

	before, err := s.live(ctx)
	if err != nil {
		return err
	}
	err = fn()
	if model.KindOf(err) != model.KindInvalidPosition {
		return fmt.Errorf("%w: expected invalid position, got %v", ErrRejectedMutation, err)
	}
	s.stats.Rejected++
	after, err := s.live(ctx)
	if err != nil {
		return err
	}
	if diff := diffEntries(before, after); diff != "" {
		return fmt.Errorf("%w (-before +after):\n%s", ErrRejectedMutation, diff)
	}
	return nil
}

func (s *Simulator) insert(ctx context.Context, pos int) error {
	n := len(s.ids) + 1
	d, err := s.ledger.Insert(ctx, model.NewDemon{
		Name:        fmt.Sprintf("Demon %d", n),
		Position:    pos,
		Requirement: s.rng.IntN(101),
		Publisher:   fmt.Sprintf("publisher-%d", s.rng.IntN(5)),
		Verifier:    fmt.Sprintf("verifier-%d", s.rng.IntN(5)),
	})
	if err != nil {
		return err
	}
	s.ids = append(s.ids, d.ID)
	s.stats.Inserts++
	return s.checkDense(ctx)
}

// rankedID picks a random ranked demon.
func (s *Simulator) rankedID(ctx context.Context) int64 {
	live, err := s.store.Live(ctx)
	if err != nil || len(live) == 0 {
		return s.ids[0]
	}
	return live[s.rng.IntN(len(live))].ID
}

// checkDense verifies the ranked positions are exactly 1..n and agree with
// LastPosition.
func (s *Simulator) checkDense(ctx context.Context) error {
	live, err := s.store.Live(ctx)
	if err != nil {
		return err
	}
	for i, d := range live {
		if d.Position == nil || *d.Position != i+1 {
			return fmt.Errorf("%w: index %d holds demon %d at %v", ErrNotDense, i, d.ID, d.Position)
		}
	}
	last, err := s.store.LastPosition(ctx)
	if err != nil {
		return err
	}
	if last != len(live) {
		return fmt.Errorf("%w: last position %d with %d ranked demons", ErrNotDense, last, len(live))
	}
	return nil
}

func (s *Simulator) checkpoint(ctx context.Context, step int) error {
	entries, err := s.live(ctx)
	if err != nil {
		return err
	}
	s.checkpoints = append(s.checkpoints, checkpoint{step: step, at: s.clock.Now(), entries: entries})
	s.stats.Checkpoints++
	return nil
}

func (s *Simulator) live(ctx context.Context) ([]entry, error) {
	demons, err := s.store.Live(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]entry, 0, len(demons))
	for _, d := range demons {
		out = append(out, entry{ID: d.ID, Position: *d.Position, Name: d.Name})
	}
	return out, nil
}

// stepClock advances by tick on every reading, so no two log entries share
// an instant and every checkpoint falls strictly between two operations.
type stepClock struct {
	mu   sync.Mutex
	now  time.Time
	tick time.Duration
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(c.tick)
	return c.now
}
