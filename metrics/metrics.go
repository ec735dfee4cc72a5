// Package metrics exposes Prometheus collectors for the trading-safety core.
//
// Collectors are registered on a caller supplied registry so tests and
// embedding processes never touch the global default. Every method is safe
// on a nil *Collectors, which turns instrumentation off.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "tradeguard"

type Collectors struct {
	Validations   *prometheus.CounterVec
	RiskDecisions *prometheus.CounterVec
	RiskFaults    *prometheus.CounterVec
	Downloads     *prometheus.CounterVec
	DownloadBytes prometheus.Counter
}

// New creates the collectors and registers them on reg.
func New(reg prometheus.Registerer) *Collectors {
	c := &Collectors{
		Validations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "security",
				Name:      "validations_total",
				Help:      "Strategy script validations by result",
			},
			[]string{"result"},
		),
		RiskDecisions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "risk",
				Name:      "decisions_total",
				Help:      "Risk checks by decision and violated rule",
			},
			[]string{"decision", "rule"},
		),
		RiskFaults: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "risk",
				Name:      "check_faults_total",
				Help:      "Risk checks that failed open because of a bookkeeping fault",
			},
			[]string{"check"},
		),
		Downloads: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "download",
				Name:      "fetches_total",
				Help:      "Secure downloads by outcome",
			},
			[]string{"outcome"},
		),
		DownloadBytes: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "download",
				Name:      "bytes_total",
				Help:      "Bytes received by successful downloads",
			},
		),
	}
	reg.MustRegister(c.Validations, c.RiskDecisions, c.RiskFaults, c.Downloads, c.DownloadBytes)
	return c
}

func (c *Collectors) ObserveValidation(safe bool) {
	if c == nil {
		return
	}
	result := "unsafe"
	if safe {
		result = "safe"
	}
	c.Validations.WithLabelValues(result).Inc()
}

// ObserveRiskDecision counts one check. rule is empty for allowed signals.
func (c *Collectors) ObserveRiskDecision(allowed bool, rule string) {
	if c == nil {
		return
	}
	decision := "reject"
	if allowed {
		decision, rule = "allow", "none"
	}
	c.RiskDecisions.WithLabelValues(decision, rule).Inc()
}

func (c *Collectors) ObserveRiskFault(check string) {
	if c == nil {
		return
	}
	c.RiskFaults.WithLabelValues(check).Inc()
}

func (c *Collectors) ObserveDownload(outcome string, n int) {
	if c == nil {
		return
	}
	c.Downloads.WithLabelValues(outcome).Inc()
	if n > 0 {
		c.DownloadBytes.Add(float64(n))
	}
}
