// Package timemachine rebuilds the list as it stood at a past instant by
// replaying the position log.
package timemachine

import (
	"context"
	"sort"
	"time"

	"github.com/pointercrate/demonlist/internal/domain/model"
	"github.com/pointercrate/demonlist/pkg/logger"
	"github.com/pointercrate/demonlist/pkg/metrics"
)

// DefaultMinimum is the earliest instant the position log covers.
var DefaultMinimum = time.Date(2017, time.January, 4, 0, 0, 0, 0, time.UTC)

// Snapshot is the list at one instant.
type Snapshot struct {
	// At is the instant actually shown, after clamping.
	At time.Time `json:"at"`
	// Live is true when the request fell at or after now and the live
	// ledger was read instead of the log.
	Live   bool                     `json:"live"`
	Demons []model.TimeShiftedDemon `json:"demons"`
}

// Reconstructor answers time machine queries.
type Reconstructor struct {
	store  Store
	now    func() time.Time
	bounds Bounds
	log    logger.Logger
}

// New creates a Reconstructor over store.
func New(store Store, opts ...Option) *Reconstructor {
	r := &Reconstructor{
		store:  store,
		now:    time.Now,
		bounds: fixedBounds(DefaultMinimum),
		log:    logger.Get().Named("timemachine"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// At returns the ranked list as of t. Instants before the minimum are
// clamped to it; instants at or after now return the live list.
//
// Demons without a log entry at t did not exist yet and are omitted, as
// are demons whose latest entry at t is a removal. A past list therefore
// never has a legacy section.
func (r *Reconstructor) At(ctx context.Context, t time.Time) (Snapshot, error) {
	t = t.UTC()
	if t.Before(r.bounds.TimeMachineMin()) {
		t = r.bounds.TimeMachineMin()
	}

	if !t.Before(r.now()) {
		return r.Current(ctx)
	}

	metrics.RecordListRead("time_machine")
	start := time.Now()
	defer func() {
		metrics.RecordReconstructionLatency(float64(time.Since(start).Microseconds()) / 1000)
	}()

	events, err := r.store.EventsUntil(ctx, t)
	if err != nil {
		return Snapshot{}, model.StorageFailure("load position log", err)
	}

	latest := make(map[int64]model.PositionEvent)
	added := make(map[int64]bool)
	for _, ev := range events {
		latest[ev.DemonID] = ev
		if ev.Kind == model.EventAddition {
			added[ev.DemonID] = true
		}
	}

	demons, err := r.demonsByID(ctx)
	if err != nil {
		return Snapshot{}, err
	}

	var orphaned []int64
	out := make([]model.TimeShiftedDemon, 0, len(latest))
	for id, ev := range latest {
		if !added[id] {
			// Best effort: the earliest entry stands in for the addition.
			orphaned = append(orphaned, id)
		}
		if ev.Position == nil {
			continue
		}
		d, ok := demons[id]
		if !ok {
			orphaned = append(orphaned, id)
			continue
		}
		out = append(out, model.TimeShiftedDemon{
			ID:              id,
			Position:        *ev.Position,
			Name:            d.Name,
			Publisher:       d.Publisher.Name,
			Requirement:     d.Requirement,
			CurrentPosition: d.Position,
		})
	}

	if len(orphaned) > 0 {
		metrics.RecordReconstructionAnomaly()
		r.log.Warn(ctx, "position log inconsistent, reconstructing best effort",
			logger.Time("at", t),
			logger.Int("demons", len(orphaned)),
			logger.Any("demon_ids", orphaned))
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Position != out[j].Position {
			return out[i].Position < out[j].Position
		}
		return out[i].ID < out[j].ID
	})

	return Snapshot{At: t, Demons: out}, nil
}

// Movements returns the position history of one demon: its addition
// followed by every change that left it ranked.
func (r *Reconstructor) Movements(ctx context.Context, id int64) ([]model.Movement, error) {
	d, err := r.store.Demon(ctx, id)
	if err != nil {
		return nil, model.StorageFailure("load demon", err)
	}
	events, err := r.store.Events(ctx, id)
	if err != nil {
		return nil, model.StorageFailure("load position log", err)
	}
	if len(events) == 0 {
		return nil, nil
	}

	addition := -1
	for i, ev := range events {
		if ev.Kind == model.EventAddition {
			addition = i
			break
		}
	}
	if addition < 0 {
		r.log.Warn(ctx, "demon has no addition entry, using its earliest entry",
			logger.Int64("demon_id", id))
		metrics.RecordReconstructionAnomaly()
		addition = 0
	}

	out := make([]model.Movement, 0, len(events))
	first := events[addition]
	if pos := first.Position; pos != nil || d.Position != nil {
		if pos == nil {
			pos = d.Position
		}
		out = append(out, model.Movement{Time: first.Time, Position: *pos, Kind: model.EventAddition})
	}
	for i, ev := range events {
		if i == addition || ev.Position == nil || ev.Time.Before(first.Time) {
			continue
		}
		out = append(out, model.Movement{Time: ev.Time, Position: *ev.Position, Kind: model.EventModification})
	}
	return out, nil
}

// Current returns the live list in snapshot form.
func (r *Reconstructor) Current(ctx context.Context) (Snapshot, error) {
	metrics.RecordListRead("live")
	demons, err := r.store.Live(ctx)
	if err != nil {
		return Snapshot{}, model.StorageFailure("load live list", err)
	}
	out := make([]model.TimeShiftedDemon, 0, len(demons))
	for _, d := range demons {
		out = append(out, model.TimeShiftedDemon{
			ID:              d.ID,
			Position:        *d.Position,
			Name:            d.Name,
			Publisher:       d.Publisher.Name,
			Requirement:     d.Requirement,
			CurrentPosition: d.Position,
		})
	}
	return Snapshot{At: r.now().UTC(), Live: true, Demons: out}, nil
}

func (r *Reconstructor) demonsByID(ctx context.Context) (map[int64]model.Demon, error) {
	demons, err := r.store.Demons(ctx)
	if err != nil {
		return nil, model.StorageFailure("load demons", err)
	}
	byID := make(map[int64]model.Demon, len(demons))
	for _, d := range demons {
		byID[d.ID] = d
	}
	return byID, nil
}
