// Package journal persists risk events and strategy validation audits.
package journal

import (
	"context"
	"time"

	"github.com/rustyeddy/tradeguard/risk"
	"github.com/rustyeddy/tradeguard/security"
)

// ValidationRecord is one audited strategy validation.
type ValidationRecord struct {
	ID       string    `json:"id" yaml:"id"`
	Time     time.Time `json:"time" yaml:"time"`
	Path     string    `json:"path" yaml:"path"`
	Safe     bool      `json:"is_safe" yaml:"is_safe"`
	Errors   []string  `json:"errors" yaml:"errors"`
	Warnings []string  `json:"warnings" yaml:"warnings"`
}

// Journal is both a risk.EventSink and a loader audit sink.
type Journal interface {
	RecordRiskEvent(ctx context.Context, ev risk.Event) error
	RecordValidation(ctx context.Context, path string, out security.Outcome, at time.Time) error
	Close() error
}

// Nop discards everything. It backs journal type "none".
type Nop struct{}

func (Nop) RecordRiskEvent(context.Context, risk.Event) error { return nil }

func (Nop) RecordValidation(context.Context, string, security.Outcome, time.Time) error {
	return nil
}

func (Nop) Close() error { return nil }
