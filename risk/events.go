package risk

import (
	"context"
	"time"
)

// EventKind names the rule a rejection violated.
type EventKind string

const (
	KindPositionLimit EventKind = "position_limit_exceeded"
	KindOrderLimit    EventKind = "order_limit_exceeded"
	KindLossLimit     EventKind = "loss_limit_triggered"
	KindDrawdownLimit EventKind = "drawdown_limit_exceeded"
	KindSingleOrder   EventKind = "single_order_limit"
	KindDailyLoss     EventKind = "daily_loss_limit"
)

// Event records one rejection. Events are values; nothing mutates them
// after creation.
type Event struct {
	ID        string    `json:"id" yaml:"id"`
	Timestamp time.Time `json:"timestamp" yaml:"timestamp"`
	Kind      EventKind `json:"kind" yaml:"kind"`
	Message   string    `json:"message" yaml:"message"`
	Stats     Stats     `json:"stats" yaml:"stats"`
}

// EventSink receives every event after the engine lock is released.
type EventSink interface {
	RecordRiskEvent(ctx context.Context, ev Event) error
}

// EventCapacity bounds the in-memory event log.
const EventCapacity = 100

// eventRing is a fixed-capacity FIFO that drops the oldest event on overflow.
type eventRing struct {
	buf   [EventCapacity]Event
	start int
	n     int
}

func (r *eventRing) push(ev Event) {
	if r.n < len(r.buf) {
		r.buf[(r.start+r.n)%len(r.buf)] = ev
		r.n++
		return
	}
	r.buf[r.start] = ev
	r.start = (r.start + 1) % len(r.buf)
}

func (r *eventRing) len() int { return r.n }

// last copies out the newest n events, oldest first.
func (r *eventRing) last(n int) []Event {
	if n > r.n {
		n = r.n
	}
	out := make([]Event, n)
	skip := r.n - n
	for i := range out {
		out[i] = r.buf[(r.start+skip+i)%len(r.buf)]
	}
	return out
}
