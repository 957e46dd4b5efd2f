package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus collectors for the application.
// It is passed explicitly to every component that records metrics; a nil
// *Metrics is accepted by callers and means "record nothing".
type Metrics struct {
	// Solana RPC Metrics
	solanaRPCCallsTotal    *prometheus.CounterVec
	solanaRPCCallDuration  *prometheus.HistogramVec
	solanaRPCRateLimitHits *prometheus.CounterVec
	solanaRPCThrottleWait  *prometheus.HistogramVec
	confirmationPolls      *prometheus.HistogramVec

	// Session Metrics
	connectAttemptsTotal *prometheus.CounterVec
	balanceRefreshTotal  *prometheus.CounterVec
	transfersTotal       *prometheus.CounterVec
	transferDuration     *prometheus.HistogramVec
	transferInFlight     prometheus.Gauge

	// Agent Metrics
	agentRequestsTotal   *prometheus.CounterVec
	agentRequestDuration *prometheus.HistogramVec

	// HTTP Metrics
	httpRequestDuration *prometheus.HistogramVec
	httpRequestsTotal   *prometheus.CounterVec
}

// NewMetrics creates a new Metrics instance and registers all collectors.
// If registry is nil, prometheus.DefaultRegisterer is used.
func NewMetrics(registry prometheus.Registerer) *Metrics {
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}

	factory := promauto.With(registry)

	return &Metrics{
		// Solana RPC Metrics
		solanaRPCCallsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "solana_rpc_calls_total",
				Help: "Total number of Solana RPC calls by method and status",
			},
			[]string{"method", "status", "endpoint"},
		),
		solanaRPCCallDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "solana_rpc_call_duration_seconds",
				Help:    "Duration of Solana RPC calls in seconds",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0},
			},
			[]string{"method", "endpoint"},
		),
		solanaRPCRateLimitHits: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "solana_rpc_rate_limit_hits_total",
				Help: "Total number of Solana RPC rate limit hits (429 errors)",
			},
			[]string{"endpoint"},
		),
		solanaRPCThrottleWait: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "solana_rpc_throttle_wait_seconds",
				Help:    "Time spent waiting on the client-side RPC rate limiter",
				Buckets: []float64{0.001, 0.01, 0.05, 0.1, 0.5, 1.0, 5.0},
			},
			[]string{"endpoint"},
		),
		confirmationPolls: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "solana_confirmation_polls",
				Help:    "Number of signature status polls needed to reach a terminal state",
				Buckets: []float64{1, 2, 5, 10, 20, 40, 90},
			},
			[]string{"endpoint", "outcome"},
		),

		// Session Metrics
		connectAttemptsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "wallet_connect_attempts_total",
				Help: "Total number of signing agent connect attempts by mode and outcome",
			},
			[]string{"mode", "outcome"},
		),
		balanceRefreshTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "wallet_balance_refresh_total",
				Help: "Total number of balance refreshes by status",
			},
			[]string{"status"},
		),
		transfersTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "wallet_transfers_total",
				Help: "Total number of transfer submissions by outcome (success or error kind)",
			},
			[]string{"outcome"},
		),
		transferDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "wallet_transfer_duration_seconds",
				Help:    "Duration of transfer submissions from validation to report",
				Buckets: []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
			},
			[]string{"outcome"},
		),
		transferInFlight: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "wallet_transfer_in_flight",
				Help: "1 while a transfer is being submitted, 0 otherwise",
			},
		),

		// Agent Metrics
		agentRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "agent_requests_total",
				Help: "Total number of signing agent requests by operation and status",
			},
			[]string{"operation", "status"},
		),
		agentRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "agent_request_duration_seconds",
				Help:    "Duration of signing agent requests in seconds",
				Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 30, 120},
			},
			[]string{"operation"},
		),

		// HTTP Metrics
		httpRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Duration of HTTP requests in seconds",
				Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5},
			},
			[]string{"handler", "method", "status"},
		),
		httpRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"handler", "method", "status"},
		),
	}
}

// Solana RPC metric helpers

// RecordRPCCall records a Solana RPC call with duration.
func (m *Metrics) RecordRPCCall(method, status, endpoint string, duration float64) {
	m.solanaRPCCallsTotal.WithLabelValues(method, status, endpoint).Inc()
	m.solanaRPCCallDuration.WithLabelValues(method, endpoint).Observe(duration)
}

// RecordRateLimitHit records a rate limit hit (429 error).
func (m *Metrics) RecordRateLimitHit(endpoint string) {
	m.solanaRPCRateLimitHits.WithLabelValues(endpoint).Inc()
}

// RecordThrottleWait records time spent blocked on the local rate limiter.
func (m *Metrics) RecordThrottleWait(endpoint string, duration float64) {
	m.solanaRPCThrottleWait.WithLabelValues(endpoint).Observe(duration)
}

// RecordConfirmationPolls records how many status polls a confirmation took.
func (m *Metrics) RecordConfirmationPolls(endpoint, outcome string, polls int) {
	m.confirmationPolls.WithLabelValues(endpoint, outcome).Observe(float64(polls))
}

// Session metric helpers

// RecordConnect records a connect attempt. Mode is "silent" or "explicit".
func (m *Metrics) RecordConnect(mode, outcome string) {
	m.connectAttemptsTotal.WithLabelValues(mode, outcome).Inc()
}

// RecordBalanceRefresh records a balance refresh attempt.
func (m *Metrics) RecordBalanceRefresh(status string) {
	m.balanceRefreshTotal.WithLabelValues(status).Inc()
}

// RecordTransfer records a finished transfer submission.
func (m *Metrics) RecordTransfer(outcome string, duration float64) {
	m.transfersTotal.WithLabelValues(outcome).Inc()
	m.transferDuration.WithLabelValues(outcome).Observe(duration)
}

// SetTransferInFlight flips the in-flight gauge.
func (m *Metrics) SetTransferInFlight(inFlight bool) {
	if inFlight {
		m.transferInFlight.Set(1)
		return
	}
	m.transferInFlight.Set(0)
}

// Agent metric helpers

// RecordAgentRequest records a request made to (or served by) the signing agent.
func (m *Metrics) RecordAgentRequest(operation, status string, duration float64) {
	m.agentRequestsTotal.WithLabelValues(operation, status).Inc()
	m.agentRequestDuration.WithLabelValues(operation).Observe(duration)
}

// HTTP metric helpers

// RecordHTTPRequest records an HTTP request with duration.
func (m *Metrics) RecordHTTPRequest(handler, method string, statusCode int, duration float64) {
	status := statusCodeToString(statusCode)
	m.httpRequestDuration.WithLabelValues(handler, method, status).Observe(duration)
	m.httpRequestsTotal.WithLabelValues(handler, method, status).Inc()
}

// Helper functions

func statusCodeToString(code int) string {
	// Group status codes by class
	switch {
	case code >= 200 && code < 300:
		return "2xx"
	case code >= 300 && code < 400:
		return "3xx"
	case code >= 400 && code < 500:
		return "4xx"
	case code >= 500 && code < 600:
		return "5xx"
	default:
		return "unknown"
	}
}
