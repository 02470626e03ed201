package storage

import (
	"context"
	"time"
)

type WarningRecord struct {
	ID           int64
	GuildID      string
	UserID       string
	Reason       string
	ModeratorID  string
	ModeratorTag string
	IssuedAt     time.Time
}

// AddWarning appends to the member's ledger and returns the new ledger length.
func (s *Store) AddWarning(ctx context.Context, warning WarningRecord) (int, error) {
	if warning.IssuedAt.IsZero() {
		warning.IssuedAt = time.Now()
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	_, err = tx.ExecContext(ctx, s.rebind(`
		INSERT INTO warnings (guild_id, user_id, reason, moderator_id, moderator_tag, issued_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`), warning.GuildID, warning.UserID, warning.Reason, warning.ModeratorID, warning.ModeratorTag, warning.IssuedAt.Unix())
	if err != nil {
		return 0, err
	}

	var total int
	err = tx.QueryRowContext(ctx, s.rebind(`
		SELECT COUNT(*) FROM warnings WHERE guild_id = ? AND user_id = ?
	`), warning.GuildID, warning.UserID).Scan(&total)
	if err != nil {
		return 0, err
	}
	if err = tx.Commit(); err != nil {
		return 0, err
	}
	return total, nil
}

func (s *Store) ListWarnings(ctx context.Context, guildID, userID string) ([]WarningRecord, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(`
		SELECT id, guild_id, user_id, reason, moderator_id, moderator_tag, issued_at
		FROM warnings
		WHERE guild_id = ? AND user_id = ?
		ORDER BY id ASC
	`), guildID, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var warnings []WarningRecord
	for rows.Next() {
		var w WarningRecord
		var issued int64
		if err := rows.Scan(&w.ID, &w.GuildID, &w.UserID, &w.Reason, &w.ModeratorID, &w.ModeratorTag, &issued); err != nil {
			return nil, err
		}
		w.IssuedAt = time.Unix(issued, 0)
		warnings = append(warnings, w)
	}
	return warnings, rows.Err()
}

// ClearWarnings empties the member's ledger and reports how many entries went.
func (s *Store) ClearWarnings(ctx context.Context, guildID, userID string) (int, error) {
	res, err := s.db.ExecContext(ctx, s.rebind(`DELETE FROM warnings WHERE guild_id = ? AND user_id = ?`), guildID, userID)
	if err != nil {
		return 0, err
	}
	removed, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(removed), nil
}
