package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/pointercrate/demonlist/internal/domain/model"
)

// querier is satisfied by both *sql.DB and *sql.Tx so reads run either
// standalone or inside a ledger transaction.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type reader struct {
	q querier
}

const demonColumns = `
	SELECT d.id, d.name, d.position, d.requirement, COALESCE(d.video, ''),
	       p.id, p.name, p.banned, v.id, v.name, v.banned
	FROM demons d
	JOIN players p ON p.id = d.publisher
	JOIN players v ON v.id = d.verifier`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDemon(row rowScanner) (model.Demon, error) {
	var d model.Demon
	var pos sql.NullInt64
	err := row.Scan(&d.ID, &d.Name, &pos, &d.Requirement, &d.Video,
		&d.Publisher.ID, &d.Publisher.Name, &d.Publisher.Banned,
		&d.Verifier.ID, &d.Verifier.Name, &d.Verifier.Banned)
	if err != nil {
		return model.Demon{}, err
	}
	d.Position = intPtr(pos)
	return d, nil
}

func (r reader) LastPosition(ctx context.Context) (int, error) {
	var last int
	if err := r.q.QueryRowContext(ctx, `SELECT COALESCE(MAX(position), 0) FROM demons`).Scan(&last); err != nil {
		return 0, fmt.Errorf("max position: %w", err)
	}
	return last, nil
}

func (r reader) Demon(ctx context.Context, id int64) (model.Demon, error) {
	d, err := scanDemon(r.q.QueryRowContext(ctx, demonColumns+` WHERE d.id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return model.Demon{}, model.NotFound("demon", id)
	}
	if err != nil {
		return model.Demon{}, fmt.Errorf("load demon %d: %w", id, err)
	}
	return r.withCreators(ctx, d)
}

func (r reader) DemonAt(ctx context.Context, position int) (model.Demon, error) {
	d, err := scanDemon(r.q.QueryRowContext(ctx, demonColumns+` WHERE d.position = ?`, position))
	if errors.Is(err, sql.ErrNoRows) {
		return model.Demon{}, model.NotFound("demon at position", position)
	}
	if err != nil {
		return model.Demon{}, fmt.Errorf("load demon at %d: %w", position, err)
	}
	return r.withCreators(ctx, d)
}

func (r reader) Live(ctx context.Context) ([]model.Demon, error) {
	return r.queryDemons(ctx, demonColumns+` WHERE d.position IS NOT NULL ORDER BY d.position`)
}

func (r reader) Demons(ctx context.Context) ([]model.Demon, error) {
	return r.queryDemons(ctx, demonColumns+` ORDER BY d.id`)
}

func (r reader) queryDemons(ctx context.Context, query string, args ...any) ([]model.Demon, error) {
	rows, err := r.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query demons: %w", err)
	}
	defer rows.Close()

	var out []model.Demon
	for rows.Next() {
		d, err := scanDemon(rows)
		if err != nil {
			return nil, fmt.Errorf("scan demon: %w", err)
		}
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate demons: %w", err)
	}
	return out, nil
}

func (r reader) withCreators(ctx context.Context, d model.Demon) (model.Demon, error) {
	rows, err := r.q.QueryContext(ctx, `
		SELECT p.id, p.name, p.banned
		FROM creators c JOIN players p ON p.id = c.creator
		WHERE c.demon = ?
		ORDER BY p.id
	`, d.ID)
	if err != nil {
		return model.Demon{}, fmt.Errorf("query creators: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var p model.Player
		if err := rows.Scan(&p.ID, &p.Name, &p.Banned); err != nil {
			return model.Demon{}, fmt.Errorf("scan creator: %w", err)
		}
		d.Creators = append(d.Creators, p)
	}
	if err := rows.Err(); err != nil {
		return model.Demon{}, fmt.Errorf("iterate creators: %w", err)
	}
	return d, nil
}

// EventsUntil returns every log entry with time <= t in log order.
func (r reader) EventsUntil(ctx context.Context, t time.Time) ([]model.PositionEvent, error) {
	return r.queryEvents(ctx, `
		SELECT demon, position, kind, time FROM position_events
		WHERE time <= ? ORDER BY time, seq
	`, toNanos(t))
}

// Events returns the log of one demon in log order.
func (r reader) Events(ctx context.Context, demonID int64) ([]model.PositionEvent, error) {
	return r.queryEvents(ctx, `
		SELECT demon, position, kind, time FROM position_events
		WHERE demon = ? ORDER BY time, seq
	`, demonID)
}

func (r reader) queryEvents(ctx context.Context, query string, args ...any) ([]model.PositionEvent, error) {
	rows, err := r.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query position events: %w", err)
	}
	defer rows.Close()

	var out []model.PositionEvent
	for rows.Next() {
		var ev model.PositionEvent
		var pos sql.NullInt64
		var kind string
		var nanos int64
		if err := rows.Scan(&ev.DemonID, &pos, &kind, &nanos); err != nil {
			return nil, fmt.Errorf("scan position event: %w", err)
		}
		ev.Position = intPtr(pos)
		ev.Kind = model.EventKind(kind)
		ev.Time = fromNanos(nanos)
		out = append(out, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate position events: %w", err)
	}
	return out, nil
}
