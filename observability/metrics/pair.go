package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// PairMetrics tracks swap flow and pricing state per pair.
type PairMetrics struct {
	swaps       *prometheus.CounterVec
	volume      *prometheus.CounterVec
	fees        *prometheus.CounterVec
	failures    *prometheus.CounterVec
	transitions *prometheus.CounterVec
	shortage    *prometheus.GaugeVec
	p0          *prometheus.GaugeVec
	targetRatio *prometheus.GaugeVec
}

var (
	pairOnce     sync.Once
	pairRegistry *PairMetrics
)

func Pair() *PairMetrics {
	pairOnce.Do(func() {
		pairRegistry = &PairMetrics{
			swaps: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "plaza_pair_swaps_total",
				Help: "Count of committed swaps by pair and direction.",
			}, []string{"pair", "direction"}),
			volume: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "plaza_pair_input_volume",
				Help: "Cumulative swap input by pair and direction.",
			}, []string{"pair", "direction"}),
			fees: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "plaza_pair_fees",
				Help: "Cumulative fees and rounding dust moved into the fee vault.",
			}, []string{"pair", "resource"}),
			failures: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "plaza_pair_failures_total",
				Help: "Count of rejected pair calls by operation and reason.",
			}, []string{"operation", "reason"}),
			transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "plaza_pair_shortage_transitions_total",
				Help: "Count of shortage state transitions.",
			}, []string{"pair", "from", "to"}),
			shortage: prometheus.NewGaugeVec(prometheus.GaugeOpts{
				Name: "plaza_pair_shortage",
				Help: "Current shortage state (0 equilibrium, 1 quote, 2 base).",
			}, []string{"pair"}),
			p0: prometheus.NewGaugeVec(prometheus.GaugeOpts{
				Name: "plaza_pair_p0",
				Help: "Current equilibrium price in quote per base.",
			}, []string{"pair"}),
			targetRatio: prometheus.NewGaugeVec(prometheus.GaugeOpts{
				Name: "plaza_pair_target_ratio",
				Help: "Current target ratio of the short asset.",
			}, []string{"pair"}),
		}
		prometheus.MustRegister(
			pairRegistry.swaps,
			pairRegistry.volume,
			pairRegistry.fees,
			pairRegistry.failures,
			pairRegistry.transitions,
			pairRegistry.shortage,
			pairRegistry.p0,
			pairRegistry.targetRatio,
		)
	})
	return pairRegistry
}

func (m *PairMetrics) ObserveSwap(pair, direction string, input, fee float64, feeResource string) {
	if m == nil {
		return
	}
	m.swaps.WithLabelValues(pair, direction).Inc()
	if input > 0 {
		m.volume.WithLabelValues(pair, direction).Add(input)
	}
	if fee > 0 {
		m.fees.WithLabelValues(pair, feeResource).Add(fee)
	}
}

func (m *PairMetrics) ObserveFailure(operation, reason string) {
	if m == nil {
		return
	}
	if reason == "" {
		reason = "unknown"
	}
	m.failures.WithLabelValues(operation, reason).Inc()
}

func (m *PairMetrics) ObserveTransition(pair, from, to string) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(pair, from, to).Inc()
}

// SetState publishes the pricing state gauges for a pair.
func (m *PairMetrics) SetState(pair string, shortage int, p0, targetRatio float64) {
	if m == nil {
		return
	}
	m.shortage.WithLabelValues(pair).Set(float64(shortage))
	m.p0.WithLabelValues(pair).Set(p0)
	m.targetRatio.WithLabelValues(pair).Set(targetRatio)
}
