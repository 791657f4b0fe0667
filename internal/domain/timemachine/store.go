package timemachine

import (
	"context"
	"time"

	"github.com/pointercrate/demonlist/internal/domain/model"
)

// Store is the read-only view of the position log and demon table.
type Store interface {
	// EventsUntil returns every log entry with time <= t, oldest first.
	EventsUntil(ctx context.Context, t time.Time) ([]model.PositionEvent, error)
	// Events returns the log entries of one demon, oldest first.
	Events(ctx context.Context, demonID int64) ([]model.PositionEvent, error)
	// Demons returns every demon, legacy ones included.
	Demons(ctx context.Context) ([]model.Demon, error)
	// Live returns the ranked demons ordered by position.
	Live(ctx context.Context) ([]model.Demon, error)
	// Demon returns one demon or a model NotFound error.
	Demon(ctx context.Context, id int64) (model.Demon, error)
}

// Bounds supplies the earliest instant that can be reconstructed.
// config.Live satisfies it.
type Bounds interface {
	TimeMachineMin() time.Time
}

type fixedBounds time.Time

func (b fixedBounds) TimeMachineMin() time.Time { return time.Time(b) }
