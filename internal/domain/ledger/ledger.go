// Package ledger maintains the dense position sequence of the list.
//
// After every committed operation the ranked demons occupy exactly the
// positions 1..n. Each mutation runs in a single storage transaction and
// appends to the position log consumed by the time machine.
package ledger

import (
	"context"
	"time"

	"github.com/pointercrate/demonlist/internal/domain/model"
	"github.com/pointercrate/demonlist/pkg/logger"
	"github.com/pointercrate/demonlist/pkg/metrics"
)

const (
	minRequirement = 0
	maxRequirement = 100
)

// Ledger mutates demon positions through a Store.
type Ledger struct {
	store Store
	now   func() time.Time
	log   logger.Logger
}

// New creates a Ledger over store.
func New(store Store, opts ...Option) *Ledger {
	l := &Ledger{
		store: store,
		now:   time.Now,
		log:   logger.Get().Named("ledger"),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// MaxPosition returns the highest assigned position, or 1 for an empty list.
func (l *Ledger) MaxPosition(ctx context.Context) (int, error) {
	last, err := l.store.LastPosition(ctx)
	if err != nil {
		return 0, model.StorageFailure("max position", err)
	}
	return maxPosition(last), nil
}

// Demon returns one demon by id.
func (l *Ledger) Demon(ctx context.Context, id int64) (model.Demon, error) {
	d, err := l.store.Demon(ctx, id)
	if err != nil {
		return model.Demon{}, model.StorageFailure("load demon", err)
	}
	return d, nil
}

// ByPosition returns the demon currently ranked at position.
func (l *Ledger) ByPosition(ctx context.Context, position int) (model.Demon, error) {
	d, err := l.store.DemonAt(ctx, position)
	if err != nil {
		return model.Demon{}, model.StorageFailure("load demon by position", err)
	}
	return d, nil
}

// Live returns the ranked demons in position order.
func (l *Ledger) Live(ctx context.Context) ([]model.Demon, error) {
	demons, err := l.store.Live(ctx)
	if err != nil {
		return nil, model.StorageFailure("load live list", err)
	}
	return demons, nil
}

// Insert places a new demon at nd.Position, pushing every demon at or
// after it down by one.
func (l *Ledger) Insert(ctx context.Context, nd model.NewDemon) (model.Demon, error) {
	if nd.Requirement < minRequirement || nd.Requirement > maxRequirement {
		metrics.RecordLedgerMutation("insert", "rejected")
		return model.Demon{}, model.InvalidRequirement(nd.Requirement)
	}

	var created model.Demon
	var last int
	err := l.withTx(ctx, "insert", func(tx *txn) error {
		var err error
		if last, err = tx.LastPosition(ctx); err != nil {
			return model.StorageFailure("max position", err)
		}
		// Appending right after the last ranked demon is allowed; on an
		// empty list that bound is 1.
		bound := last + 1
		if nd.Position < 1 || nd.Position > bound {
			return model.InvalidPosition(bound)
		}

		if nd.Position <= last {
			if err := l.shift(ctx, tx, "insert", nd.Position, 0, 1); err != nil {
				return err
			}
		}

		if created, err = tx.CreateDemon(ctx, nd); err != nil {
			return model.StorageFailure("create demon", err)
		}

		return l.appendEvent(ctx, tx, created.ID, created.Position, model.EventAddition)
	})
	if err != nil {
		return model.Demon{}, err
	}

	metrics.UpdateLedgerMaxPosition(last + 1)
	l.log.Info(ctx, "demon added",
		logger.Int64("demon_id", created.ID),
		logger.String("name", created.Name),
		logger.Int("position", nd.Position))
	return created, nil
}

// Move changes the position of a ranked demon. Moving up pushes the demons
// in [to, from) down by one; moving down pulls the demons in (from, to] up
// by one. A move onto the current position leaves every other row alone
// and is still logged.
func (l *Ledger) Move(ctx context.Context, id int64, to int) (model.Demon, error) {
	var moved model.Demon
	err := l.withTx(ctx, "move", func(tx *txn) error {
		var err error
		if moved, err = tx.Demon(ctx, id); err != nil {
			return model.StorageFailure("load demon", err)
		}
		last, err := tx.LastPosition(ctx)
		if err != nil {
			return model.StorageFailure("max position", err)
		}
		bound := maxPosition(last)
		if moved.Position == nil || to < 1 || to > bound {
			return model.InvalidPosition(bound)
		}

		from := *moved.Position
		switch {
		case to < from:
			err = l.shift(ctx, tx, "move", to, from-1, 1)
		case to > from:
			err = l.shift(ctx, tx, "move", from+1, to, -1)
		}
		if err != nil {
			return err
		}

		moved.Position = model.IntPtr(to)
		if err := tx.SetPosition(ctx, id, moved.Position); err != nil {
			return model.StorageFailure("set position", err)
		}

		return l.appendEvent(ctx, tx, id, moved.Position, model.EventModification)
	})
	if err != nil {
		return model.Demon{}, err
	}

	l.log.Info(ctx, "demon moved",
		logger.Int64("demon_id", id),
		logger.Int("position", to))
	return moved, nil
}

// Remove demotes a demon to legacy, pulling every demon after it up by one.
// Removing a demon that is already legacy changes nothing and logs nothing.
func (l *Ledger) Remove(ctx context.Context, id int64) (model.Demon, error) {
	var removed model.Demon
	var last int
	err := l.withTx(ctx, "remove", func(tx *txn) error {
		var err error
		if removed, err = tx.Demon(ctx, id); err != nil {
			return model.StorageFailure("load demon", err)
		}
		if removed.Position == nil {
			return nil
		}
		if last, err = tx.LastPosition(ctx); err != nil {
			return model.StorageFailure("max position", err)
		}

		from := *removed.Position
		if from < last {
			if err := l.shift(ctx, tx, "remove", from+1, 0, -1); err != nil {
				return err
			}
		}

		removed.Position = nil
		if err := tx.SetPosition(ctx, id, nil); err != nil {
			return model.StorageFailure("set position", err)
		}

		return l.appendEvent(ctx, tx, id, nil, model.EventModification)
	})
	if err != nil {
		return model.Demon{}, err
	}

	if last > 0 {
		metrics.UpdateLedgerMaxPosition(maxPosition(last - 1))
		l.log.Info(ctx, "demon moved to legacy", logger.Int64("demon_id", id))
	}
	return removed, nil
}

// shift moves a range of demons and logs the new position of each, so the
// time machine can replay positions that changed as a side effect.
func (l *Ledger) shift(ctx context.Context, tx *txn, op string, from, to, delta int) error {
	moved, err := tx.Shift(ctx, from, to, delta)
	if err != nil {
		return model.StorageFailure("shift positions", err)
	}
	for _, p := range moved {
		if err := l.appendEvent(ctx, tx, p.DemonID, model.IntPtr(p.Position), model.EventModification); err != nil {
			return err
		}
	}
	metrics.RecordLedgerShift(op, int64(len(moved)))
	l.log.Info(ctx, "shifted demons",
		logger.String("op", op),
		logger.Int("from", from),
		logger.Int("to", to),
		logger.Int("delta", delta),
		logger.Int("rows", len(moved)))
	return nil
}

func (l *Ledger) appendEvent(ctx context.Context, tx *txn, id int64, position *int, kind model.EventKind) error {
	ev := model.PositionEvent{
		DemonID:  id,
		Position: position,
		Time:     tx.at,
		Kind:     kind,
	}
	if err := tx.AppendEvent(ctx, ev); err != nil {
		return model.StorageFailure("append position event", err)
	}
	return nil
}

// txn is a storage transaction plus the one instant every event it logs
// is stamped with. A reader replaying the log at any instant therefore sees
// either none or all of an operation's position changes.
type txn struct {
	Tx
	at time.Time
}

// withTx runs fn in a transaction and commits only when fn succeeds and ctx
// is still live.
func (l *Ledger) withTx(ctx context.Context, op string, fn func(*txn) error) (err error) {
	start := time.Now()
	defer func() {
		metrics.RecordLedgerMutation(op, outcome(err))
		metrics.RecordLedgerLatency(op, float64(time.Since(start).Microseconds())/1000)
	}()

	stx, err := l.store.BeginTx(ctx)
	if err != nil {
		return model.StorageFailure("begin "+op, err)
	}
	tx := &txn{Tx: stx, at: l.now().UTC()}
	defer func() {
		if err == nil {
			return
		}
		if rbErr := tx.Rollback(); rbErr != nil {
			l.log.Warn(ctx, "rollback failed", logger.String("op", op), logger.Error(rbErr))
		}
	}()

	if err = fn(tx); err != nil {
		return err
	}
	if err = ctx.Err(); err != nil {
		return model.StorageFailure(op, err)
	}
	if err = tx.Commit(); err != nil {
		return model.StorageFailure("commit "+op, err)
	}
	return nil
}

func maxPosition(last int) int {
	if last < 1 {
		return 1
	}
	return last
}

func outcome(err error) string {
	switch model.KindOf(err) {
	case 0:
		if err != nil {
			return "error"
		}
		return "ok"
	case model.KindStorageFailure:
		return "error"
	default:
		return "rejected"
	}
}
