package risk

import (
	"errors"
	"fmt"
)

// LedgerView is the read-only account view the engine consults. Adapters
// below cover the ledger shapes found in practice.
type LedgerView interface {
	Cash() (float64, error)
	Positions() (map[string]Holding, error)
	EquityOf(code string) (float64, error)
}

// Holding is one position. MarketValue wins when set; otherwise the value
// is derived from CurrentPrice * Volume.
type Holding struct {
	MarketValue  float64 `json:"market_value,omitempty" yaml:"market_value,omitempty"`
	CurrentPrice float64 `json:"current_price,omitempty" yaml:"current_price,omitempty"`
	Volume       float64 `json:"volume,omitempty" yaml:"volume,omitempty"`
}

func (h Holding) Value() float64 {
	if h.MarketValue != 0 {
		return h.MarketValue
	}
	return h.CurrentPrice * h.Volume
}

var ErrUnknownPosition = errors.New("unknown position")

// balances returns cash and the summed position value of l.
func balances(l LedgerView) (cash, positions float64, err error) {
	cash, err = l.Cash()
	if err != nil {
		return 0, 0, fmt.Errorf("ledger cash: %w", err)
	}
	pos, err := l.Positions()
	if err != nil {
		return 0, 0, fmt.Errorf("ledger positions: %w", err)
	}
	for _, h := range pos {
		positions += h.Value()
	}
	return cash, positions, nil
}

// Equity is cash plus the value of every position.
func Equity(l LedgerView) (float64, error) {
	cash, pos, err := balances(l)
	if err != nil {
		return 0, err
	}
	return cash + pos, nil
}

// Snapshot is a mapping-style ledger: a cash figure plus positions keyed by
// instrument code. It is what the CLI reads from YAML.
type Snapshot struct {
	CashBalance float64            `json:"cash" yaml:"cash"`
	Holdings    map[string]Holding `json:"positions" yaml:"positions"`
}

func (s *Snapshot) Cash() (float64, error) { return s.CashBalance, nil }

func (s *Snapshot) Positions() (map[string]Holding, error) {
	out := make(map[string]Holding, len(s.Holdings))
	for code, h := range s.Holdings {
		out[code] = h
	}
	return out, nil
}

func (s *Snapshot) EquityOf(code string) (float64, error) {
	h, ok := s.Holdings[code]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrUnknownPosition, code)
	}
	return h.Value(), nil
}

// PositionRecord is the attribute-style position shape exposed by broker
// books, which only report a market value.
type PositionRecord interface {
	Code() string
	MarketValue() float64
}

// Book is a broker account that reports its cash and a list of records.
type Book interface {
	Cash() (float64, error)
	Records() ([]PositionRecord, error)
}

// BookLedger adapts a Book to LedgerView.
type BookLedger struct {
	Book Book
}

func FromBook(b Book) *BookLedger { return &BookLedger{Book: b} }

func (b *BookLedger) Cash() (float64, error) { return b.Book.Cash() }

func (b *BookLedger) Positions() (map[string]Holding, error) {
	recs, err := b.Book.Records()
	if err != nil {
		return nil, err
	}
	out := make(map[string]Holding, len(recs))
	for _, r := range recs {
		h := out[r.Code()]
		h.MarketValue += r.MarketValue()
		out[r.Code()] = h
	}
	return out, nil
}

func (b *BookLedger) EquityOf(code string) (float64, error) {
	pos, err := b.Positions()
	if err != nil {
		return 0, err
	}
	h, ok := pos[code]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrUnknownPosition, code)
	}
	return h.Value(), nil
}
