package journal

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rustyeddy/tradeguard/pkg/id"
	"github.com/rustyeddy/tradeguard/risk"
	"github.com/rustyeddy/tradeguard/security"
)

func newTestSQLite(t *testing.T) (*SQLite, string) {
	t.Helper()

	dir := t.TempDir()
	path := filepath.Join(dir, "test.db")

	j, err := NewSQLite(path)
	require.NoError(t, err)

	return j, path
}

func testEvent(at time.Time, kind risk.EventKind, blocked int64) risk.Event {
	return risk.Event{
		ID:        id.At(at),
		Timestamp: at,
		Kind:      kind,
		Message:   string(kind) + " hit",
		Stats:     risk.Stats{TotalChecks: blocked * 2, OrdersBlocked: blocked},
	}
}

func TestSQLiteSchemaCreated(t *testing.T) {
	t.Parallel()

	j, path := newTestSQLite(t)
	assert.NoError(t, j.Close())

	db, err := sql.Open("sqlite3", path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	rows, err := db.Query(`SELECT name FROM sqlite_master WHERE type='table' AND name IN ('risk_events','validations')`)
	require.NoError(t, err)
	defer rows.Close()

	found := map[string]bool{}
	for rows.Next() {
		var name string
		assert.NoError(t, rows.Scan(&name))
		found[name] = true
	}
	assert.NoError(t, rows.Err())

	assert.True(t, found["risk_events"])
	assert.True(t, found["validations"])
}

func TestSQLiteRecordRiskEvent(t *testing.T) {
	t.Parallel()

	j, path := newTestSQLite(t)

	at := time.Date(2026, 2, 3, 9, 31, 0, 0, time.UTC)
	ev := testEvent(at, risk.KindDrawdownLimit, 4)

	require.NoError(t, j.RecordRiskEvent(context.Background(), ev))
	require.NoError(t, j.Close())

	db, err := sql.Open("sqlite3", path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	var (
		eventID string
		gotTime time.Time
		kind    string
		message string
		stats   string
	)
	err = db.QueryRow(`
        SELECT event_id, time, kind, message, stats
        FROM risk_events LIMIT 1`).Scan(&eventID, &gotTime, &kind, &message, &stats)
	require.NoError(t, err)

	assert.Equal(t, ev.ID, eventID)
	assert.True(t, gotTime.Equal(at))
	assert.Equal(t, "drawdown_limit_exceeded", kind)
	assert.Equal(t, ev.Message, message)
	assert.Contains(t, stats, `"orders_blocked":4`)
}

func TestSQLiteRecordRiskEventAssignsID(t *testing.T) {
	t.Parallel()

	j, _ := newTestSQLite(t)
	defer j.Close()

	ev := testEvent(time.Date(2026, 2, 3, 9, 31, 0, 0, time.UTC), risk.KindOrderLimit, 1)
	ev.ID = ""
	require.NoError(t, j.RecordRiskEvent(context.Background(), ev))

	got, err := j.ListRiskEvents(context.Background(), EventFilter{})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Len(t, got[0].ID, 26)
}

func TestSQLiteRecordValidation(t *testing.T) {
	t.Parallel()

	j, _ := newTestSQLite(t)
	defer j.Close()
	ctx := context.Background()

	at := time.Date(2026, 2, 3, 8, 0, 0, 0, time.UTC)
	require.NoError(t, j.RecordValidation(ctx, "/srv/strategies/a.py",
		security.Outcome{Safe: true, Warnings: []string{"call to unknown function: helper"}}, at))
	require.NoError(t, j.RecordValidation(ctx, "/srv/strategies/b.py",
		security.Outcome{Errors: []string{"import of module os is forbidden"}}, at.Add(time.Minute)))

	all, err := j.ListValidations(ctx, "", 0)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "/srv/strategies/b.py", all[0].Path)
	assert.False(t, all[0].Safe)
	assert.Equal(t, []string{"import of module os is forbidden"}, all[0].Errors)
	assert.Equal(t, []string{}, all[0].Warnings)
	assert.True(t, all[1].Safe)
	assert.True(t, all[1].Time.Equal(at))

	one, err := j.ListValidations(ctx, "/srv/strategies/a.py", 10)
	require.NoError(t, err)
	require.Len(t, one, 1)
	assert.Equal(t, []string{"call to unknown function: helper"}, one[0].Warnings)
}

func TestNopJournal(t *testing.T) {
	t.Parallel()

	var j Journal = Nop{}
	assert.NoError(t, j.RecordRiskEvent(context.Background(), risk.Event{}))
	assert.NoError(t, j.RecordValidation(context.Background(), "x.py", security.Outcome{}, time.Now()))
	assert.NoError(t, j.Close())
}
