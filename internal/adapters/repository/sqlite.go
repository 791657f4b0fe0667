package repository

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"sort"

	_ "github.com/mattn/go-sqlite3"

	"github.com/pointercrate/demonlist/internal/domain/ledger"
	"github.com/pointercrate/demonlist/internal/domain/model"
)

//go:embed schema.sql
var schemaSQL string

// Schema version tracking:
// 1 - Initial schema
const currentSchemaVersion = 1

// SQLiteStore is the SQLite-backed Store.
//
// The pool is limited to one connection, so the single writer serializes
// every transaction and ledger shifts can never interleave.
type SQLiteStore struct {
	reader
	db *sql.DB
}

// OpenSQLite creates or opens the database at path, applying pragmas and
// migrations. It is idempotent.
func OpenSQLite(ctx context.Context, path string, opts ...Option) (*SQLiteStore, error) {
	o := defaultSQLiteOptions()
	for _, opt := range opts {
		opt(&o)
	}

	// _txlock=immediate takes the write lock at BEGIN so a transaction
	// never upgrades from a stale read snapshot.
	db, err := sql.Open("sqlite3", "file:"+path+"?_txlock=immediate")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := applyPragmas(ctx, db, o); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply pragmas: %w", err)
	}

	if err := applySchema(ctx, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	return &SQLiteStore{reader: reader{q: db}, db: db}, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// BeginTx starts a ledger transaction.
func (s *SQLiteStore) BeginTx(ctx context.Context) (ledger.Tx, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	return &sqliteTx{reader: reader{q: tx}, tx: tx}, nil
}

func applyPragmas(ctx context.Context, db *sql.DB, o sqliteOptions) error {
	pragmas := []string{
		fmt.Sprintf("PRAGMA journal_mode = %s", o.journalMode),
		"PRAGMA synchronous = NORMAL",
		fmt.Sprintf("PRAGMA busy_timeout = %d", o.busyTimeout.Milliseconds()),
		"PRAGMA foreign_keys = ON",
	}

	for _, pragma := range pragmas {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			return fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}

	return nil
}

func applySchema(ctx context.Context, db *sql.DB) error {
	var version int
	if err := db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("get user_version: %w", err)
	}
	if version > currentSchemaVersion {
		return fmt.Errorf("%w: found %d, want %d", ErrSchemaTooNew, version, currentSchemaVersion)
	}

	if _, err := db.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("failed to execute schema: %w", err)
	}

	if _, err := db.ExecContext(ctx, fmt.Sprintf("PRAGMA user_version = %d", currentSchemaVersion)); err != nil {
		return fmt.Errorf("set user_version: %w", err)
	}

	return nil
}

// sqliteTx implements ledger.Tx.
type sqliteTx struct {
	reader
	tx *sql.Tx
}

func (t *sqliteTx) Commit() error {
	if err := t.tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// Rollback is a no-op after Commit.
func (t *sqliteTx) Rollback() error {
	if err := t.tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		return fmt.Errorf("rollback: %w", err)
	}
	return nil
}

func (t *sqliteTx) Shift(ctx context.Context, from, to, delta int) ([]ledger.Placement, error) {
	rows, err := t.tx.QueryContext(ctx, `
		UPDATE demons SET position = position + ?
		WHERE position >= ? AND (? <= 0 OR position <= ?)
		RETURNING id, position
	`, delta, from, to, to)
	if err != nil {
		return nil, fmt.Errorf("shift positions: %w", err)
	}
	defer rows.Close()

	var moved []ledger.Placement
	for rows.Next() {
		var p ledger.Placement
		if err := rows.Scan(&p.DemonID, &p.Position); err != nil {
			return nil, fmt.Errorf("shift positions: %w", err)
		}
		moved = append(moved, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("shift positions: %w", err)
	}
	sort.Slice(moved, func(i, j int) bool { return moved[i].Position < moved[j].Position })
	return moved, nil
}

func (t *sqliteTx) CreateDemon(ctx context.Context, nd model.NewDemon) (model.Demon, error) {
	publisher, err := resolvePlayer(ctx, t.tx, nd.Publisher)
	if err != nil {
		return model.Demon{}, err
	}
	verifier, err := resolvePlayer(ctx, t.tx, nd.Verifier)
	if err != nil {
		return model.Demon{}, err
	}

	res, err := t.tx.ExecContext(ctx, `
		INSERT INTO demons (name, position, requirement, video, publisher, verifier)
		VALUES (?, ?, ?, ?, ?, ?)
	`, nd.Name, nd.Position, nd.Requirement, nullString(nd.Video), publisher.ID, verifier.ID)
	if err != nil {
		return model.Demon{}, fmt.Errorf("insert demon: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return model.Demon{}, fmt.Errorf("insert demon: %w", err)
	}

	creators := make([]model.Player, 0, len(nd.Creators))
	for _, name := range nd.Creators {
		creator, err := resolvePlayer(ctx, t.tx, name)
		if err != nil {
			return model.Demon{}, err
		}
		if _, err := t.tx.ExecContext(ctx, `
			INSERT INTO creators (demon, creator) VALUES (?, ?)
			ON CONFLICT DO NOTHING
		`, id, creator.ID); err != nil {
			return model.Demon{}, fmt.Errorf("insert creator: %w", err)
		}
		creators = append(creators, creator)
	}

	return model.Demon{
		ID:          id,
		Name:        nd.Name,
		Position:    model.IntPtr(nd.Position),
		Requirement: nd.Requirement,
		Video:       nd.Video,
		Publisher:   publisher,
		Verifier:    verifier,
		Creators:    creators,
	}, nil
}

func (t *sqliteTx) SetPosition(ctx context.Context, id int64, position *int) error {
	res, err := t.tx.ExecContext(ctx, `UPDATE demons SET position = ? WHERE id = ?`, nullInt(position), id)
	if err != nil {
		return fmt.Errorf("set position: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return model.NotFound("demon", id)
	}
	return nil
}

func (t *sqliteTx) AppendEvent(ctx context.Context, ev model.PositionEvent) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO position_events (demon, position, kind, time) VALUES (?, ?, ?, ?)
	`, ev.DemonID, nullInt(ev.Position), string(ev.Kind), toNanos(ev.Time))
	if err != nil {
		return fmt.Errorf("append position event: %w", err)
	}
	return nil
}

// resolvePlayer returns the player called name, creating it on first use.
func resolvePlayer(ctx context.Context, q querier, name string) (model.Player, error) {
	if _, err := q.ExecContext(ctx, `
		INSERT INTO players (name) VALUES (?) ON CONFLICT(name) DO NOTHING
	`, name); err != nil {
		return model.Player{}, fmt.Errorf("create player %q: %w", name, err)
	}
	var p model.Player
	err := q.QueryRowContext(ctx, `SELECT id, name, banned FROM players WHERE name = ?`, name).
		Scan(&p.ID, &p.Name, &p.Banned)
	if err != nil {
		return model.Player{}, fmt.Errorf("load player %q: %w", name, err)
	}
	return p, nil
}

func nullInt(p *int) sql.NullInt64 {
	if p == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*p), Valid: true}
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func intPtr(n sql.NullInt64) *int {
	if !n.Valid {
		return nil
	}
	v := int(n.Int64)
	return &v
}
