package loader

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/rustyeddy/tradeguard/metrics"
	"github.com/rustyeddy/tradeguard/pathsafe"
	"github.com/rustyeddy/tradeguard/security"
)

const safeScript = `import numpy as np

def on_bar(data):
    x = np.zeros(3)
    khBuy("600000", 100)
    return x
`

const unsafeScript = `import os

def on_bar(data):
    os.system("rm -rf /")
`

type auditRecorder struct {
	mu   sync.Mutex
	seen map[string]bool
}

func (a *auditRecorder) RecordValidation(_ context.Context, path string, out security.Outcome, _ time.Time) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.seen == nil {
		a.seen = map[string]bool{}
	}
	a.seen[filepath.Base(path)] = out.Safe
	return nil
}

func setup(t *testing.T, opts ...Option) (*Loader, string) {
	t.Helper()

	base := t.TempDir()
	files := map[string]string{
		"good.py":   safeScript,
		"GOOD2.KH":  safeScript,
		"bad.py":    unsafeScript,
		"notes.txt": safeScript,
		"binary.py": string([]byte{0xff, 0xfe}),
		"warn.py":   "def on_bar(d):\n    helper()\n",
	}
	for name, body := range files {
		require.NoError(t, os.WriteFile(filepath.Join(base, name), []byte(body), 0o644))
	}

	r, err := pathsafe.NewResolver(base)
	require.NoError(t, err)
	opts = append([]Option{WithLogger(zaptest.NewLogger(t))}, opts...)
	return New(r, security.NewValidator(), opts...), base
}

func TestLoad(t *testing.T) {
	t.Parallel()

	l, _ := setup(t)
	ctx := context.Background()

	s, err := l.Load(ctx, "good.py")
	require.NoError(t, err)
	assert.Equal(t, "good.py", s.Name)
	assert.Equal(t, safeScript, s.Source)
	assert.True(t, s.Outcome.Safe)

	_, err = l.Load(ctx, "GOOD2.KH")
	require.NoError(t, err)

	s, err = l.Load(ctx, "warn.py")
	require.NoError(t, err)
	assert.NotEmpty(t, s.Outcome.Warnings)
}

func TestLoad_Refusals(t *testing.T) {
	t.Parallel()

	l, _ := setup(t)
	ctx := context.Background()

	s, err := l.Load(ctx, "bad.py")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnsafeScript)
	assert.Nil(t, s, "refused source must not reach the caller")
	var unsafe *UnsafeScriptError
	require.True(t, errors.As(err, &unsafe))
	assert.False(t, unsafe.Outcome.Safe)
	assert.Contains(t, err.Error(), "import of module os is forbidden")

	_, err = l.Load(ctx, "binary.py")
	assert.ErrorIs(t, err, ErrUnsafeScript)

	_, err = l.Load(ctx, "notes.txt")
	assert.ErrorIs(t, err, ErrUnsupportedExtension)

	_, err = l.Load(ctx, "../outside.py")
	var secErr *pathsafe.SecurityError
	assert.True(t, errors.As(err, &secErr))

	_, err = l.Load(ctx, "missing.py")
	require.Error(t, err)
	assert.True(t, errors.Is(err, os.ErrNotExist))
}

func TestCheck(t *testing.T) {
	t.Parallel()

	l, _ := setup(t)
	ctx := context.Background()

	tests := []struct {
		path   string
		ok     bool
		prefix string
	}{
		{"good.py", true, "strategy passed validation: good.py"},
		{"bad.py", false, "strategy failed security validation: bad.py\n  - "},
		{"notes.txt", false, "unsupported file type: .txt"},
		{"../../etc/passwd.py", false, "path security check failed: "},
		{"missing.py", false, "validation error: "},
	}

	for _, tt := range tests {
		ok, msg := l.Check(ctx, tt.path)
		assert.Equal(t, tt.ok, ok, tt.path)
		assert.Contains(t, msg, tt.prefix, tt.path)
	}
}

func TestValidateStrategyFile(t *testing.T) {
	t.Parallel()

	_, base := setup(t)

	ok, msg := ValidateStrategyFile("good.py", base)
	assert.True(t, ok, msg)

	ok, _ = ValidateStrategyFile(filepath.Join(base, "bad.py"), base)
	assert.False(t, ok)
}

func TestLoadAll(t *testing.T) {
	t.Parallel()

	audit := &auditRecorder{}
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	l, _ := setup(t, WithAuditSink(audit), WithMetrics(m), WithWorkers(2))

	paths := []string{"good.py", "bad.py", "notes.txt", "GOOD2.KH", "warn.py"}
	res, err := l.LoadAll(context.Background(), paths)
	require.NoError(t, err)
	require.Len(t, res, len(paths))

	for i, r := range res {
		assert.Equal(t, paths[i], r.Path)
	}
	assert.NoError(t, res[0].Err)
	assert.ErrorIs(t, res[1].Err, ErrUnsafeScript)
	assert.Nil(t, res[1].Script)
	assert.ErrorIs(t, res[2].Err, ErrUnsupportedExtension)
	assert.NoError(t, res[3].Err)
	assert.NoError(t, res[4].Err)

	assert.Equal(t, map[string]bool{"good.py": true, "bad.py": false, "GOOD2.KH": true, "warn.py": true}, audit.seen)
	assert.Equal(t, 3.0, testutil.ToFloat64(m.Validations.WithLabelValues("safe")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Validations.WithLabelValues("unsafe")))
}

func TestLoadAll_Cancelled(t *testing.T) {
	t.Parallel()

	l, _ := setup(t, WithWorkers(1))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	paths := make([]string, 20)
	for i := range paths {
		paths[i] = fmt.Sprintf("s%d.py", i)
	}
	_, err := l.LoadAll(ctx, paths)
	assert.ErrorIs(t, err, context.Canceled)
}
