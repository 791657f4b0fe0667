// Package repository provides the storage adapters behind the ledger, the
// time machine and the record submission pipeline.
//
// Two implementations are provided: SQLiteStore for production and
// MemoryStore for tests and simulations. Both satisfy every interface here.
package repository

import (
	"context"
	"time"

	"github.com/pointercrate/demonlist/internal/domain/ledger"
	"github.com/pointercrate/demonlist/internal/domain/model"
	"github.com/pointercrate/demonlist/internal/domain/scoring"
	"github.com/pointercrate/demonlist/internal/domain/timemachine"
)

// RecordStore persists records and player flags.
type RecordStore interface {
	// CreateRecord persists a submission with status submitted. Saving the
	// same submission id twice returns the existing record.
	CreateRecord(ctx context.Context, sub model.Submission) (model.Record, error)
	// SetRecordStatus updates the approval state of a record.
	SetRecordStatus(ctx context.Context, id int64, status model.RecordStatus) (model.Record, error)
	// Record returns one record.
	Record(ctx context.Context, id int64) (model.Record, error)
	// SetBanned flags a player; banned players are left out of the ranking.
	SetBanned(ctx context.Context, playerID int64, banned bool) (model.Player, error)
	// Contributions returns every approved record and every verification.
	Contributions(ctx context.Context) ([]scoring.Contribution, error)
}

// Store is everything the service needs from persistence.
type Store interface {
	ledger.Store
	timemachine.Store
	RecordStore
	Close() error
}

var (
	_ Store = (*SQLiteStore)(nil)
	_ Store = (*MemoryStore)(nil)
)

func toNanos(t time.Time) int64 { return t.UTC().UnixNano() }

func fromNanos(n int64) time.Time { return time.Unix(0, n).UTC() }
