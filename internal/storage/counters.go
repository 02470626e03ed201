package storage

import (
	"context"
	"database/sql"
	"errors"
	"strconv"
	"time"
)

const metaStartTime = "start_time"

// IncrementCounter bumps name by one and returns the new value.
func (s *Store) IncrementCounter(ctx context.Context, name string) (int64, error) {
	row := s.db.QueryRowContext(ctx, s.rebind(`
		INSERT INTO counters (name, value) VALUES (?, 1)
		ON CONFLICT(name) DO UPDATE SET value = counters.value + 1
		RETURNING value
	`), name)

	var value int64
	if err := row.Scan(&value); err != nil {
		return 0, err
	}
	return value, nil
}

func (s *Store) Counters(ctx context.Context) (map[string]int64, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT name, value FROM counters`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counters := make(map[string]int64)
	for rows.Next() {
		var name string
		var value int64
		if err := rows.Scan(&name, &value); err != nil {
			return nil, err
		}
		counters[name] = value
	}
	return counters, rows.Err()
}

// EnsureStartTime records now as the tracking start on first run and returns
// whatever start time is stored.
func (s *Store) EnsureStartTime(ctx context.Context, now time.Time) (time.Time, error) {
	_, err := s.db.ExecContext(ctx, s.rebind(`
		INSERT INTO bot_meta (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO NOTHING
	`), metaStartTime, strconv.FormatInt(now.Unix(), 10))
	if err != nil {
		return time.Time{}, err
	}
	start, ok, err := s.StartTime(ctx)
	if err != nil {
		return time.Time{}, err
	}
	if !ok {
		return now, nil
	}
	return start, nil
}

func (s *Store) StartTime(ctx context.Context) (time.Time, bool, error) {
	row := s.db.QueryRowContext(ctx, s.rebind(`SELECT value FROM bot_meta WHERE key = ?`), metaStartTime)
	var raw string
	if err := row.Scan(&raw); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return time.Time{}, false, nil
		}
		return time.Time{}, false, err
	}
	unix, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return time.Time{}, false, err
	}
	return time.Unix(unix, 0), true, nil
}
