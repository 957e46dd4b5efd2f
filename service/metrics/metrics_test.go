package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestRecordTransfer(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	m.RecordTransfer("success", 1.2)
	m.RecordTransfer("signing_rejected", 0.3)
	m.RecordTransfer("success", 2.0)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.transfersTotal.WithLabelValues("success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.transfersTotal.WithLabelValues("signing_rejected")))
}

func TestSetTransferInFlight(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	m.SetTransferInFlight(true)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.transferInFlight))

	m.SetTransferInFlight(false)
	assert.Equal(t, 0.0, testutil.ToFloat64(m.transferInFlight))
}

func TestHTTPMetricsMiddleware(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	handler := HTTPMetricsMiddleware(m, "session_transfer")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/session/transfer", nil))

	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.httpRequestsTotal.WithLabelValues("session_transfer", "POST", "4xx")))
}

func TestHTTPMetricsMiddleware_NilMetrics(t *testing.T) {
	called := false
	handler := HTTPMetricsMiddleware(nil, "health")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.True(t, called)
}

func TestStatusCodeToString(t *testing.T) {
	tests := map[int]string{
		200: "2xx",
		204: "2xx",
		302: "3xx",
		400: "4xx",
		409: "4xx",
		502: "5xx",
		99:  "unknown",
	}
	for code, want := range tests {
		assert.Equal(t, want, statusCodeToString(code), "code %d", code)
	}
}
