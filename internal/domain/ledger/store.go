package ledger

import (
	"context"

	"github.com/pointercrate/demonlist/internal/domain/model"
)

// Reader is the read side of the demon table.
type Reader interface {
	// LastPosition returns the highest assigned position, or 0 when no demon
	// is ranked.
	LastPosition(ctx context.Context) (int, error)
	// Demon returns the demon with id or a model NotFound error.
	Demon(ctx context.Context, id int64) (model.Demon, error)
	// DemonAt returns the demon ranked at position or a model NotFound error.
	DemonAt(ctx context.Context, position int) (model.Demon, error)
	// Live returns all ranked demons ordered by position.
	Live(ctx context.Context) ([]model.Demon, error)
}

// Placement is the position a demon was shifted to.
type Placement struct {
	DemonID  int64
	Position int
}

// Tx is one storage transaction. Every read and write of a ledger operation
// goes through the same Tx. Implementations must serialize transactions
// against each other.
type Tx interface {
	Reader

	// Shift adds delta to every position in [from, to]. to <= 0 means no
	// upper bound. It returns the new placement of every row it changed.
	Shift(ctx context.Context, from, to, delta int) ([]Placement, error)
	// CreateDemon inserts a demon at nd.Position, resolving or creating
	// the referenced players by name.
	CreateDemon(ctx context.Context, nd model.NewDemon) (model.Demon, error)
	// SetPosition updates one demon. A nil position demotes it to legacy.
	SetPosition(ctx context.Context, id int64, position *int) error
	// AppendEvent adds an entry to the position log.
	AppendEvent(ctx context.Context, ev model.PositionEvent) error

	Commit() error
	Rollback() error
}

// Store opens ledger transactions.
type Store interface {
	Reader
	BeginTx(ctx context.Context) (Tx, error)
}
