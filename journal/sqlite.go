package journal

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/rustyeddy/tradeguard/pkg/id"
	"github.com/rustyeddy/tradeguard/risk"
	"github.com/rustyeddy/tradeguard/security"
)

type SQLite struct {
	db *sql.DB
}

var _ Journal = (*SQLite)(nil)

func NewSQLite(path string) (*SQLite, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}

	if _, err := db.Exec(Schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	return &SQLite{db: db}, nil
}

func (j *SQLite) RecordRiskEvent(ctx context.Context, ev risk.Event) error {
	stats, err := json.Marshal(ev.Stats)
	if err != nil {
		return fmt.Errorf("encode stats: %w", err)
	}
	if ev.ID == "" {
		ev.ID = id.At(ev.Timestamp)
	}
	_, err = j.db.ExecContext(ctx, `
		INSERT INTO risk_events
		(event_id, time, kind, message, stats)
		VALUES (?, ?, ?, ?, ?)`,
		ev.ID, ev.Timestamp.UTC(), string(ev.Kind), ev.Message, string(stats),
	)
	return err
}

func (j *SQLite) RecordValidation(ctx context.Context, path string, out security.Outcome, at time.Time) error {
	errs, err := json.Marshal(nonNil(out.Errors))
	if err != nil {
		return err
	}
	warns, err := json.Marshal(nonNil(out.Warnings))
	if err != nil {
		return err
	}
	_, err = j.db.ExecContext(ctx, `
		INSERT INTO validations
		(validation_id, time, path, is_safe, errors, warnings)
		VALUES (?, ?, ?, ?, ?, ?)`,
		id.At(at), at.UTC(), path, out.Safe, string(errs), string(warns),
	)
	return err
}

func (j *SQLite) Close() error {
	return j.db.Close()
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
