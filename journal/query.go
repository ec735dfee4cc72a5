package journal

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rustyeddy/tradeguard/risk"
)

// GetRiskEvent returns a single event by ID.
func (j *SQLite) GetRiskEvent(ctx context.Context, eventID string) (risk.Event, error) {
	row := j.db.QueryRowContext(ctx, `
		SELECT event_id, time, kind, message, stats
		FROM risk_events
		WHERE event_id = ?`, eventID)

	ev, err := scanEvent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return risk.Event{}, fmt.Errorf("risk event %q not found", eventID)
	}
	return ev, err
}

// EventFilter narrows ListRiskEvents. Zero fields do not filter.
type EventFilter struct {
	Since time.Time
	Kind  risk.EventKind
	Limit int
}

// ListRiskEvents returns matching events, newest first.
func (j *SQLite) ListRiskEvents(ctx context.Context, f EventFilter) ([]risk.Event, error) {
	q := `SELECT event_id, time, kind, message, stats FROM risk_events WHERE time >= ?`
	args := []any{f.Since.UTC()}
	if f.Kind != "" {
		q += ` AND kind = ?`
		args = append(args, string(f.Kind))
	}
	q += ` ORDER BY time DESC, event_id DESC`
	if f.Limit > 0 {
		q += ` LIMIT ?`
		args = append(args, f.Limit)
	}

	rows, err := j.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []risk.Event
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// CountByKind returns the number of stored events per kind.
func (j *SQLite) CountByKind(ctx context.Context) (map[risk.EventKind]int, error) {
	rows, err := j.db.QueryContext(ctx, `SELECT kind, COUNT(*) FROM risk_events GROUP BY kind`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := map[risk.EventKind]int{}
	for rows.Next() {
		var (
			kind string
			n    int
		)
		if err := rows.Scan(&kind, &n); err != nil {
			return nil, err
		}
		out[risk.EventKind(kind)] = n
	}
	return out, rows.Err()
}

// ListValidations returns the audits for path, or for every path when path
// is empty, newest first.
func (j *SQLite) ListValidations(ctx context.Context, path string, limit int) ([]ValidationRecord, error) {
	q := `SELECT validation_id, time, path, is_safe, errors, warnings FROM validations`
	var args []any
	if path != "" {
		q += ` WHERE path = ?`
		args = append(args, path)
	}
	q += ` ORDER BY time DESC, validation_id DESC`
	if limit > 0 {
		q += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := j.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ValidationRecord
	for rows.Next() {
		var (
			rec         ValidationRecord
			errs, warns string
		)
		if err := rows.Scan(&rec.ID, &rec.Time, &rec.Path, &rec.Safe, &errs, &warns); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(errs), &rec.Errors); err != nil {
			return nil, fmt.Errorf("decode errors of %s: %w", rec.ID, err)
		}
		if err := json.Unmarshal([]byte(warns), &rec.Warnings); err != nil {
			return nil, fmt.Errorf("decode warnings of %s: %w", rec.ID, err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEvent(s scanner) (risk.Event, error) {
	var (
		ev    risk.Event
		kind  string
		stats string
	)
	if err := s.Scan(&ev.ID, &ev.Timestamp, &kind, &ev.Message, &stats); err != nil {
		return risk.Event{}, err
	}
	ev.Kind = risk.EventKind(kind)
	if err := json.Unmarshal([]byte(stats), &ev.Stats); err != nil {
		return risk.Event{}, fmt.Errorf("decode stats of %s: %w", ev.ID, err)
	}
	return ev, nil
}
