package cmd

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rustyeddy/tradeguard/download"
	"github.com/rustyeddy/tradeguard/risk"
)

// run executes the root command with args. Commands share package state,
// so these tests are not parallel.
func run(t *testing.T, args ...string) (string, error) {
	t.Helper()

	cfgFile, logLevel = "", ""
	validateBase = ""
	riskLedgerPath = ""
	riskSignal = risk.Signal{Action: "buy"}
	journalDBPath, journalKind, journalSince, journalPath = "", "", "", ""
	journalLimit, journalFormat = 50, "yaml"
	fetchSHA256, fetchSize, fetchOut = "", 0, "."

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(io.Discard)
	rootCmd.SetArgs(args)
	err := rootCmd.ExecuteContext(context.Background())
	return out.String(), err
}

func writeFile(t *testing.T, dir, name, body string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, []byte(body), 0o644))
	return p
}

const ledgerYAML = `cash: 900000
positions:
  AAA: {market_value: 60000}
  BBB: {current_price: 40, volume: 1000}
orders_today: %d
`

func TestVersion(t *testing.T) {
	out, err := run(t, "version")
	require.NoError(t, err)
	assert.Equal(t, "tradeguard version "+version+"\n", out)
}

func TestConfigInitAndValidate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tradeguard.yaml")

	out, err := run(t, "config", "init", "-o", path)
	require.NoError(t, err)
	assert.Contains(t, out, "Created default configuration")
	assert.FileExists(t, path)

	out, err = run(t, "config", "validate", "-f", path)
	require.NoError(t, err)
	assert.Contains(t, out, "Configuration valid")
	assert.Contains(t, out, "orders 100/day")

	bad := writeFile(t, t.TempDir(), "bad.yaml", "risk:\n  position_limit: 3\n")
	_, err = run(t, "config", "validate", "-f", bad)
	assert.ErrorContains(t, err, "risk.position_limit")
}

func TestValidateCommand(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "good.py", "import numpy as np\n\ndef on_bar(d):\n    return np.ones(4)\n")
	writeFile(t, dir, "bad.py", "import subprocess\n")

	out, err := run(t, "validate", "--base", dir, "good.py")
	require.NoError(t, err)
	assert.Contains(t, out, "✓ good.py")

	out, err = run(t, "validate", "--base", dir, "good.py", "bad.py")
	assert.EqualError(t, err, "1 of 2 strategies refused")
	assert.Contains(t, out, "✗ bad.py")
}

func TestScanCommand(t *testing.T) {
	dir := t.TempDir()
	risky := writeFile(t, dir, "risky.py", "x = eval(data)\n")
	clean := writeFile(t, dir, "clean.py", "x = 1\n")

	out, err := run(t, "scan", risky)
	require.NoError(t, err)
	assert.Contains(t, out, "contains eval call")

	out, err = run(t, "scan", clean)
	require.NoError(t, err)
	assert.Contains(t, out, "no risky constructs found")
}

func TestFetchRefusesPlainHTTP(t *testing.T) {
	_, err := run(t, "fetch", "http://evil.example.com/payload.py", "-o", t.TempDir())
	require.Error(t, err)
	assert.Equal(t, download.PolicyRejected, download.KindOf(err))
}

func TestRiskCheck(t *testing.T) {
	dir := t.TempDir()
	ok := writeFile(t, dir, "ok.yaml", fmt.Sprintf(ledgerYAML, 3))
	busy := writeFile(t, dir, "busy.yaml", fmt.Sprintf(ledgerYAML, 100))

	out, err := run(t, "risk", "check", "--ledger", ok, "--code", "AAA", "--volume", "100", "--price", "10")
	require.NoError(t, err)
	assert.Contains(t, out, "✓ allowed")

	out, err = run(t, "risk", "check", "--ledger", ok, "--code", "AAA", "--volume", "40000", "--price", "10")
	assert.ErrorContains(t, err, string(risk.KindSingleOrder))
	assert.Contains(t, out, "✗ rejected")

	out, err = run(t, "risk", "check", "--ledger", busy)
	assert.ErrorContains(t, err, string(risk.KindOrderLimit))
	assert.Contains(t, out, "daily order count 100 reached limit 100")
}

func TestRiskReport(t *testing.T) {
	ledger := writeFile(t, t.TempDir(), "ledger.yaml", fmt.Sprintf(ledgerYAML, 7))

	out, err := run(t, "risk", "report", "--ledger", ledger)
	require.NoError(t, err)
	assert.Contains(t, out, "orders_submitted: 7")
	assert.Contains(t, out, "order_count_today: 7")
}

func TestJournalEvents(t *testing.T) {
	dir := t.TempDir()
	db := filepath.Join(dir, "journal.db")
	cfg := writeFile(t, dir, "tradeguard.yaml", "journal:\n  type: sqlite\n  db_path: "+db+"\n")
	ledger := writeFile(t, dir, "ledger.yaml", fmt.Sprintf(ledgerYAML, 100))

	_, err := run(t, "--config", cfg, "risk", "check", "--ledger", ledger)
	require.Error(t, err)

	out, err := run(t, "journal", "events", "--db", db, "--format", "csv")
	require.NoError(t, err)
	assert.Contains(t, out, "event_id,time,kind")
	assert.Contains(t, out, string(risk.KindOrderLimit))

	out, err = run(t, "journal", "events", "--db", db, "--kind", string(risk.KindDailyLoss))
	require.NoError(t, err)
	assert.Equal(t, "no risk events\n", out)

	_, err = run(t, "journal", "events")
	assert.ErrorContains(t, err, "no SQLite journal configured")
}

func TestJournalValidations(t *testing.T) {
	dir := t.TempDir()
	db := filepath.Join(dir, "journal.db")
	cfg := writeFile(t, dir, "tradeguard.yaml", "journal:\n  type: sqlite\n  db_path: "+db+"\n")
	writeFile(t, dir, "bad.py", "import os\n")

	_, err := run(t, "--config", cfg, "validate", "--base", dir, "bad.py")
	require.Error(t, err)

	out, err := run(t, "journal", "validations", "--db", db)
	require.NoError(t, err)
	assert.Contains(t, out, "✗ ")
	assert.Contains(t, out, "import of module os is forbidden")
}
