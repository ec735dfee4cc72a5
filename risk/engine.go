// Package risk gates trade signals against position, order-rate, loss and
// drawdown limits.
//
// An Engine is shared by the order-submission path, the fill reporting path
// and the daily reset job. Every public method takes the same mutex, so a
// Check never sees a half-applied update.
//
// Bookkeeping faults fail open: when a check cannot read the ledger or
// panics, that check allows the signal and the fault is logged and counted.
package risk

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/rustyeddy/tradeguard/metrics"
	"github.com/rustyeddy/tradeguard/pkg/id"
)

// RecentEventLimit is the number of events a Report carries.
const RecentEventLimit = 50

// Signal is a proposed order. Volume and Price feed the single-order check.
type Signal struct {
	Action string  `json:"action" yaml:"action"`
	Code   string  `json:"code" yaml:"code"`
	Volume float64 `json:"volume" yaml:"volume"`
	Price  float64 `json:"price" yaml:"price"`
}

// Decision is the outcome of Check. A rejection carries the violated rule
// and a human readable reason.
type Decision struct {
	Allowed bool      `json:"allowed" yaml:"allowed"`
	Kind    EventKind `json:"kind,omitempty" yaml:"kind,omitempty"`
	Reason  string    `json:"reason,omitempty" yaml:"reason,omitempty"`
}

func allow() Decision { return Decision{Allowed: true} }

func reject(kind EventKind, format string, args ...any) Decision {
	return Decision{Kind: kind, Reason: fmt.Sprintf(format, args...)}
}

// Stats are the engine counters.
type Stats struct {
	TotalChecks           int64 `json:"total_checks" yaml:"total_checks"`
	OrdersSubmitted       int64 `json:"orders_submitted" yaml:"orders_submitted"`
	OrdersBlocked         int64 `json:"orders_blocked" yaml:"orders_blocked"`
	PositionViolations    int64 `json:"position_violations" yaml:"position_violations"`
	OrderRateViolations   int64 `json:"order_rate_violations" yaml:"order_rate_violations"`
	LossViolations        int64 `json:"loss_violations" yaml:"loss_violations"`
	DrawdownViolations    int64 `json:"drawdown_violations" yaml:"drawdown_violations"`
	SingleOrderViolations int64 `json:"single_order_violations" yaml:"single_order_violations"`
	DailyLossViolations   int64 `json:"daily_loss_violations" yaml:"daily_loss_violations"`
	CheckFaults           int64 `json:"check_faults" yaml:"check_faults"`
}

// Runtime is the day-scoped state.
type Runtime struct {
	OrderCountToday int     `json:"order_count_today" yaml:"order_count_today"`
	DailyPnL        float64 `json:"daily_pnl" yaml:"daily_pnl"`
	PeakEquity      float64 `json:"peak_equity" yaml:"peak_equity"`
}

// Report is a detached copy of the engine state.
type Report struct {
	Timestamp    time.Time `json:"timestamp" yaml:"timestamp"`
	Stats        Stats     `json:"stats" yaml:"stats"`
	Runtime      Runtime   `json:"runtime" yaml:"runtime"`
	Config       Config    `json:"config" yaml:"config"`
	RecentEvents []Event   `json:"recent_events" yaml:"recent_events"`
}

type Engine struct {
	mu sync.Mutex

	cfg     Config
	ledger  LedgerView
	runtime Runtime
	stats   Stats
	events  eventRing

	log     *zap.Logger
	metrics *metrics.Collectors
	sink    EventSink
	now     func() time.Time
}

type Option func(*Engine)

func WithLedger(l LedgerView) Option { return func(e *Engine) { e.ledger = l } }

func WithLogger(l *zap.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.log = l
		}
	}
}

func WithMetrics(m *metrics.Collectors) Option { return func(e *Engine) { e.metrics = m } }

func WithEventSink(s EventSink) Option { return func(e *Engine) { e.sink = s } }

// WithClock overrides time.Now for event timestamps.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// NewEngine builds an engine. Zero fields of cfg take their defaults. Peak
// equity starts at the ledger's current equity.
func NewEngine(cfg Config, opts ...Option) *Engine {
	e := &Engine{
		cfg: cfg.WithDefaults(),
		log: zap.NewNop(),
		now: time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	e.initPeak()

	e.log.Info("risk engine ready",
		zap.Float64("position_limit", e.cfg.PositionLimit),
		zap.Int("order_limit", e.cfg.OrderLimit),
		zap.Float64("loss_limit", e.cfg.LossLimit),
		zap.Float64("drawdown_limit", e.cfg.DrawdownLimit),
		zap.Bool("ledger", e.ledger != nil),
	)
	return e
}

func (e *Engine) initPeak() {
	if e.ledger == nil {
		return
	}
	eq, err := readEquity(e.ledger)
	if err != nil {
		e.log.Error("seed peak equity", zap.Error(err))
		return
	}
	e.runtime.PeakEquity = max(eq, 0)
}

// readEquity is Equity with a ledger panic reported as an error.
func readEquity(l LedgerView) (eq float64, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("ledger panic: %v", r)
		}
	}()
	return Equity(l)
}

// SetLedger attaches or replaces the ledger. Peak equity is seeded from it
// when no peak has been observed yet.
func (e *Engine) SetLedger(l LedgerView) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.ledger = l
	if e.runtime.PeakEquity == 0 {
		e.initPeak()
	}
}

func (e *Engine) Config() Config {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cfg
}

// Check runs the checks in order and stops at the first rejection. sig may
// be nil, in which case the single-order check is skipped.
func (e *Engine) Check(sig *Signal) Decision {
	return e.CheckContext(context.Background(), sig)
}

// CheckContext is Check with a context for the event sink.
func (e *Engine) CheckContext(ctx context.Context, sig *Signal) Decision {
	e.mu.Lock()
	e.stats.TotalChecks++
	d := e.evaluate(sig)
	var ev Event
	if !d.Allowed {
		e.stats.OrdersBlocked++
		now := e.now()
		ev = Event{
			ID:        id.At(now),
			Timestamp: now,
			Kind:      d.Kind,
			Message:   d.Reason,
			Stats:     e.stats,
		}
		e.events.push(ev)
	}
	sink := e.sink
	e.mu.Unlock()

	e.metrics.ObserveRiskDecision(d.Allowed, string(d.Kind))
	if d.Allowed {
		return d
	}

	e.log.Warn("signal rejected",
		zap.String("kind", string(d.Kind)),
		zap.String("reason", d.Reason),
		zap.String("event_id", ev.ID),
	)
	if sink != nil {
		if err := sink.RecordRiskEvent(ctx, ev); err != nil {
			e.log.Error("record risk event", zap.String("event_id", ev.ID), zap.Error(err))
		}
	}
	return d
}

// evaluate runs with e.mu held.
func (e *Engine) evaluate(sig *Signal) Decision {
	if d := e.guard("position", e.checkPosition); !d.Allowed {
		return d
	}
	if d := e.guard("order_rate", e.checkOrderRate); !d.Allowed {
		return d
	}
	if sig != nil {
		s := *sig
		if d := e.guard("single_order", func() (Decision, error) { return e.checkSingleOrder(s) }); !d.Allowed {
			return d
		}
	}
	return e.guard("loss", e.checkLoss)
}

// guard converts an error or panic from one check into an Allow.
func (e *Engine) guard(name string, check func() (Decision, error)) (d Decision) {
	defer func() {
		if r := recover(); r != nil {
			d = e.fault(name, fmt.Errorf("panic: %v", r))
		}
	}()
	d, err := check()
	if err != nil {
		return e.fault(name, err)
	}
	return d
}

func (e *Engine) fault(check string, err error) Decision {
	e.stats.CheckFaults++
	e.metrics.ObserveRiskFault(check)
	e.log.Error("risk check failed open", zap.String("check", check), zap.Error(err))
	return allow()
}

func (e *Engine) checkPosition() (Decision, error) {
	if e.ledger == nil {
		return allow(), nil
	}
	cash, pos, err := balances(e.ledger)
	if err != nil {
		return allow(), err
	}
	ratio, ok := positionRatio(cash, pos)
	if !ok || ratio <= e.cfg.PositionLimit {
		return allow(), nil
	}
	e.stats.PositionViolations++
	return reject(KindPositionLimit, "position ratio %.2f%% exceeds limit %.2f%%",
		100*ratio, 100*e.cfg.PositionLimit), nil
}

func (e *Engine) checkOrderRate() (Decision, error) {
	if e.runtime.OrderCountToday < e.cfg.OrderLimit {
		return allow(), nil
	}
	e.stats.OrderRateViolations++
	return reject(KindOrderLimit, "daily order count %d reached limit %d",
		e.runtime.OrderCountToday, e.cfg.OrderLimit), nil
}

func (e *Engine) checkSingleOrder(sig Signal) (Decision, error) {
	if e.ledger == nil {
		return allow(), nil
	}
	cash, pos, err := balances(e.ledger)
	if err != nil {
		return allow(), err
	}
	ratio, ok := orderRatio(sig.Volume, sig.Price, cash+pos)
	if !ok || ratio <= e.cfg.SingleOrderLimit {
		return allow(), nil
	}
	e.stats.SingleOrderViolations++
	return reject(KindSingleOrder, "order value %.2f is %.2f%% of equity, limit %.2f%%",
		sig.Volume*sig.Price, 100*ratio, 100*e.cfg.SingleOrderLimit), nil
}

func (e *Engine) checkLoss() (Decision, error) {
	if e.ledger == nil {
		return allow(), nil
	}
	current, err := Equity(e.ledger)
	if err != nil {
		return allow(), err
	}

	if current > e.runtime.PeakEquity {
		e.runtime.PeakEquity = current
	}
	peak := e.runtime.PeakEquity

	if peak > 0 {
		if dd := drawdown(peak, current); dd > e.cfg.DrawdownLimit {
			e.stats.DrawdownViolations++
			return reject(KindDrawdownLimit, "drawdown %.2f%% exceeds limit %.2f%%",
				100*dd, 100*e.cfg.DrawdownLimit), nil
		}
	}

	if e.cfg.InitCapital > 0 {
		if lr := lossRatio(e.cfg.InitCapital, current); lr >= e.cfg.LossLimit {
			e.stats.LossViolations++
			return reject(KindLossLimit, "cumulative loss %.2f%% reached stop %.2f%%",
				100*lr, 100*e.cfg.LossLimit), nil
		}
	}

	if e.runtime.DailyPnL < 0 {
		if dl := dailyLossRatio(e.runtime.DailyPnL, peak, e.cfg.InitCapital); dl >= e.cfg.DailyLossLimit {
			e.stats.DailyLossViolations++
			return reject(KindDailyLoss, "daily loss %.2f%% reached limit %.2f%%",
				100*dl, 100*e.cfg.DailyLossLimit), nil
		}
	}
	return allow(), nil
}

// RecordOrderSubmitted counts n submitted orders against today's limit.
func (e *Engine) RecordOrderSubmitted(n int) {
	if n <= 0 {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.runtime.OrderCountToday += n
	e.stats.OrdersSubmitted += int64(n)
}

// RecordPnL accumulates realized P&L for the day.
func (e *Engine) RecordPnL(delta float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.runtime.DailyPnL += delta
}

// ResetDaily clears the day counters and moves peak equity to the ledger's
// current equity. Without a readable ledger the peak is left unchanged.
func (e *Engine) ResetDaily() {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.runtime.OrderCountToday = 0
	e.runtime.DailyPnL = 0

	if e.ledger == nil {
		e.log.Info("daily counters reset", zap.Bool("peak_updated", false))
		return
	}
	eq, err := readEquity(e.ledger)
	if err != nil {
		e.log.Error("daily reset kept previous peak", zap.Float64("peak_equity", e.runtime.PeakEquity), zap.Error(err))
		return
	}
	e.runtime.PeakEquity = max(eq, 0)
	e.log.Info("daily counters reset", zap.Bool("peak_updated", true), zap.Float64("peak_equity", e.runtime.PeakEquity))
}

func (e *Engine) Report() Report {
	e.mu.Lock()
	defer e.mu.Unlock()
	return Report{
		Timestamp:    e.now(),
		Stats:        e.stats,
		Runtime:      e.runtime,
		Config:       e.cfg,
		RecentEvents: e.events.last(RecentEventLimit),
	}
}

func (e *Engine) Runtime() Runtime {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.runtime
}

// BlockedCount is the number of signals Check has rejected.
func (e *Engine) BlockedCount() int64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.stats.OrdersBlocked
}

// ViolationsSummary returns the per-rule violation counts plus total_blocked.
func (e *Engine) ViolationsSummary() map[string]int64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	s := e.stats
	return map[string]int64{
		"position_violations":     s.PositionViolations,
		"order_rate_violations":   s.OrderRateViolations,
		"loss_violations":         s.LossViolations,
		"drawdown_violations":     s.DrawdownViolations,
		"single_order_violations": s.SingleOrderViolations,
		"daily_loss_violations":   s.DailyLossViolations,
		"total_blocked":           s.OrdersBlocked,
	}
}
