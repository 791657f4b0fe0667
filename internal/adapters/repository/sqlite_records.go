package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/pointercrate/demonlist/internal/domain/model"
	"github.com/pointercrate/demonlist/internal/domain/scoring"
)

const recordColumns = `
	SELECT r.id, r.progress, COALESCE(r.video, ''), r.status,
	       p.id, p.name, p.banned, d.id, d.name, d.position
	FROM records r
	JOIN players p ON p.id = r.player
	JOIN demons d ON d.id = r.demon`

func scanRecord(row rowScanner) (model.Record, error) {
	var rec model.Record
	var status string
	var pos sql.NullInt64
	err := row.Scan(&rec.ID, &rec.Progress, &rec.Video, &status,
		&rec.Player.ID, &rec.Player.Name, &rec.Player.Banned,
		&rec.Demon.ID, &rec.Demon.Name, &pos)
	if err != nil {
		return model.Record{}, err
	}
	rec.Status = model.RecordStatus(status)
	rec.Demon.Position = intPtr(pos)
	return rec, nil
}

// CreateRecord persists sub as a submitted record.
func (s *SQLiteStore) CreateRecord(ctx context.Context, sub model.Submission) (model.Record, error) {
	if sub.Progress < 0 || sub.Progress > 100 {
		return model.Record{}, ErrInvalidProgress
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return model.Record{}, fmt.Errorf("create record: begin tx: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	if _, err := (reader{q: tx}).Demon(ctx, sub.DemonID); err != nil {
		return model.Record{}, err
	}

	player, err := resolvePlayer(ctx, tx, sub.Player)
	if err != nil {
		return model.Record{}, fmt.Errorf("create record: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO records (submission, progress, video, status, player, demon, submitted_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(submission) DO NOTHING
	`, sub.ID, sub.Progress, nullString(sub.Video), string(model.StatusSubmitted),
		player.ID, sub.DemonID, toNanos(sub.SubmittedAt)); err != nil {
		return model.Record{}, fmt.Errorf("create record: %w", err)
	}

	rec, err := scanRecord(tx.QueryRowContext(ctx, recordColumns+` WHERE r.submission = ?`, sub.ID))
	if err != nil {
		return model.Record{}, fmt.Errorf("create record: reload: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return model.Record{}, fmt.Errorf("create record: commit: %w", err)
	}
	return rec, nil
}

// SetRecordStatus updates the approval state of a record.
func (s *SQLiteStore) SetRecordStatus(ctx context.Context, id int64, status model.RecordStatus) (model.Record, error) {
	res, err := s.db.ExecContext(ctx, `UPDATE records SET status = ? WHERE id = ?`, string(status), id)
	if err != nil {
		return model.Record{}, fmt.Errorf("set record status: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return model.Record{}, model.NotFound("record", id)
	}
	return s.Record(ctx, id)
}

// Record returns one record.
func (s *SQLiteStore) Record(ctx context.Context, id int64) (model.Record, error) {
	rec, err := scanRecord(s.db.QueryRowContext(ctx, recordColumns+` WHERE r.id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return model.Record{}, model.NotFound("record", id)
	}
	if err != nil {
		return model.Record{}, fmt.Errorf("load record %d: %w", id, err)
	}
	return rec, nil
}

// SetBanned flags or unflags a player.
func (s *SQLiteStore) SetBanned(ctx context.Context, playerID int64, banned bool) (model.Player, error) {
	res, err := s.db.ExecContext(ctx, `UPDATE players SET banned = ? WHERE id = ?`, banned, playerID)
	if err != nil {
		return model.Player{}, fmt.Errorf("set banned: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return model.Player{}, model.NotFound("player", playerID)
	}
	var p model.Player
	if err := s.db.QueryRowContext(ctx, `SELECT id, name, banned FROM players WHERE id = ?`, playerID).
		Scan(&p.ID, &p.Name, &p.Banned); err != nil {
		return model.Player{}, fmt.Errorf("load player %d: %w", playerID, err)
	}
	return p, nil
}

// Contributions returns approved records plus one full completion per
// verified demon.
func (s *SQLiteStore) Contributions(ctx context.Context) ([]scoring.Contribution, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT p.id, p.name, p.banned, d.id, d.position, r.progress, d.requirement
		FROM records r
		JOIN players p ON p.id = r.player
		JOIN demons d ON d.id = r.demon
		WHERE r.status = 'approved'
		UNION ALL
		SELECT p.id, p.name, p.banned, d.id, d.position, 100, d.requirement
		FROM demons d
		JOIN players p ON p.id = d.verifier
	`)
	if err != nil {
		return nil, fmt.Errorf("query contributions: %w", err)
	}
	defer rows.Close()

	var out []scoring.Contribution
	for rows.Next() {
		var c scoring.Contribution
		var pos sql.NullInt64
		if err := rows.Scan(&c.Player.ID, &c.Player.Name, &c.Player.Banned,
			&c.DemonID, &pos, &c.Progress, &c.Requirement); err != nil {
			return nil, fmt.Errorf("scan contribution: %w", err)
		}
		c.Position = intPtr(pos)
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate contributions: %w", err)
	}
	return out, nil
}
