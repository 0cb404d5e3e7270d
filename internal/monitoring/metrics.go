package monitoring

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Data metrics
	barsProcessed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tradecore_bars_processed_total",
			Help: "Total number of bars folded into indicator series",
		},
		[]string{"symbol"},
	)

	dataErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tradecore_data_errors_total",
			Help: "Total number of rejected bars",
		},
		[]string{"symbol"},
	)

	// Decision metrics
	signalsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tradecore_signals_total",
			Help: "Total number of trading signals emitted",
		},
		[]string{"symbol", "direction", "tier"},
	)

	signalConfidence = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "tradecore_signal_confidence",
			Help:    "Distribution of emitted signal confidence",
			Buckets: prometheus.LinearBuckets(0.1, 0.1, 10),
		},
		[]string{"source"},
	)

	vetoesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tradecore_vetoes_total",
			Help: "Bars whose votes were suppressed by a veto rule",
		},
		[]string{"rule"},
	)

	evaluatorFaults = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tradecore_evaluator_faults_total",
			Help: "Discarded votes from misbehaving evaluators",
		},
		[]string{"rule"},
	)

	// Risk metrics
	riskDecisions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tradecore_risk_decisions_total",
			Help: "Risk manager outcomes",
		},
		[]string{"outcome", "reason"},
	)

	// Simulation metrics
	fillsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tradecore_fills_total",
			Help: "Total number of simulated fills",
		},
		[]string{"symbol", "side"},
	)

	fillNotional = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "tradecore_fill_notional",
			Help:    "Distribution of fill notional values",
			Buckets: prometheus.ExponentialBuckets(10, 4, 8),
		},
		[]string{"symbol"},
	)

	equityValue = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "tradecore_equity_value",
			Help: "Latest total portfolio value",
		},
		[]string{"run"},
	)

	breakerState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "tradecore_circuit_breaker_state",
			Help: "Circuit breaker state (0 closed, 1 open, 2 half-open)",
		},
		[]string{"breaker"},
	)

	runsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tradecore_backtest_runs_total",
			Help: "Backtest runs by final state",
		},
		[]string{"state"},
	)
)

func init() {
	prometheus.MustRegister(barsProcessed)
	prometheus.MustRegister(dataErrors)
	prometheus.MustRegister(signalsTotal)
	prometheus.MustRegister(signalConfidence)
	prometheus.MustRegister(vetoesTotal)
	prometheus.MustRegister(evaluatorFaults)
	prometheus.MustRegister(riskDecisions)
	prometheus.MustRegister(fillsTotal)
	prometheus.MustRegister(fillNotional)
	prometheus.MustRegister(equityValue)
	prometheus.MustRegister(breakerState)
	prometheus.MustRegister(runsTotal)
}

// MetricsHandler handles Prometheus metrics endpoint
type MetricsHandler struct{}

// NewMetricsHandler creates a new metrics handler
func NewMetricsHandler() *MetricsHandler {
	return &MetricsHandler{}
}

// ServeHTTP serves the Prometheus metrics endpoint
func (m *MetricsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	promhttp.Handler().ServeHTTP(w, r)
}

func RecordBar(symbol string) {
	barsProcessed.WithLabelValues(symbol).Inc()
}

func RecordDataError(symbol string) {
	dataErrors.WithLabelValues(symbol).Inc()
}

// RecordSignal records an emitted signal
func RecordSignal(symbol, direction, tier, source string, confidence float64) {
	signalsTotal.WithLabelValues(symbol, direction, tier).Inc()
	signalConfidence.WithLabelValues(source).Observe(confidence)
}

func RecordVeto(rule string) {
	vetoesTotal.WithLabelValues(rule).Inc()
}

func RecordEvaluatorFault(rule string) {
	evaluatorFaults.WithLabelValues(rule).Inc()
}

// RecordRiskDecision records an accepted, scaled or rejected sizing outcome
func RecordRiskDecision(outcome, reason string) {
	riskDecisions.WithLabelValues(outcome, reason).Inc()
}

// RecordFill records a simulated fill
func RecordFill(symbol, side string, notional float64) {
	fillsTotal.WithLabelValues(symbol, side).Inc()
	fillNotional.WithLabelValues(symbol).Observe(notional)
}

func UpdateEquity(run string, value float64) {
	equityValue.WithLabelValues(run).Set(value)
}

func RecordRun(state string) {
	runsTotal.WithLabelValues(state).Inc()
}

// SetBreakerState exports a circuit breaker's state as a gauge
func SetBreakerState(name string, state int) {
	breakerState.WithLabelValues(name).Set(float64(state))
}
