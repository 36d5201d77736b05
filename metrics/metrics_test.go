package metrics

import (
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecorder_Counters(t *testing.T) {
	t.Parallel()

	r := New()
	r.RecordBar("EUR_USD")
	r.RecordBar("EUR_USD")
	r.RecordDecision("EUR_USD", "skipped", "NO_SIGNAL")
	r.RecordDecision("EUR_USD", "skipped", "NO_SIGNAL")
	r.RecordDecision("EUR_USD", "filled", "PAPER_FILL")
	r.RecordOrder("EUR_USD", "BUY", "paper")
	r.RecordError("unavailable")

	assert.Equal(t, 2.0, testutil.ToFloat64(r.barsProcessed.WithLabelValues("EUR_USD")))
	assert.Equal(t, 2.0, testutil.ToFloat64(r.decisions.WithLabelValues("EUR_USD", "skipped", "NO_SIGNAL")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.decisions.WithLabelValues("EUR_USD", "filled", "PAPER_FILL")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.orders.WithLabelValues("EUR_USD", "BUY", "paper")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.errorsTotal.WithLabelValues("unavailable")))
}

func TestRecorder_Gauges(t *testing.T) {
	t.Parallel()

	r := New()
	r.SetEquity(10150.5)
	r.SetUsedRisk(0.7)
	r.SetGuardLocked(true)
	assert.Equal(t, 10150.5, testutil.ToFloat64(r.equity))
	assert.Equal(t, 0.7, testutil.ToFloat64(r.usedRisk))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.guardLocked))

	r.SetGuardLocked(false)
	assert.Equal(t, 0.0, testutil.ToFloat64(r.guardLocked))
}

func TestRecorder_SeparateRegistries(t *testing.T) {
	t.Parallel()

	a, b := New(), New()
	a.RecordBar("EUR_USD")
	assert.Equal(t, 0.0, testutil.ToFloat64(b.barsProcessed.WithLabelValues("EUR_USD")))
}

func TestRecorder_Handler(t *testing.T) {
	t.Parallel()

	r := New()
	r.RecordDecision("GBP_USD", "skipped", "POSITION_QUOTA")
	r.ObserveBar(15 * time.Millisecond)

	srv := httptest.NewServer(r.Handler())
	defer srv.Close()

	resp, err := srv.Client().Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Contains(t, string(body), `breakout_decisions_total{action="skipped",instrument="GBP_USD",reason="POSITION_QUOTA"} 1`)
	assert.Contains(t, string(body), "breakout_bar_duration_seconds_count 1")
}
