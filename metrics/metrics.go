package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

const namespace = "breakout"

// Recorder collects engine metrics on its own registry so several engines
// (and tests) never collide on the global one.
type Recorder struct {
	reg *prometheus.Registry

	barsProcessed *prometheus.CounterVec
	decisions     *prometheus.CounterVec
	orders        *prometheus.CounterVec
	errorsTotal   *prometheus.CounterVec
	equity        prometheus.Gauge
	usedRisk      prometheus.Gauge
	guardLocked   prometheus.Gauge
	loopLatency   prometheus.Histogram
}

// New creates a Recorder with all collectors registered.
func New() *Recorder {
	r := &Recorder{
		reg: prometheus.NewRegistry(),
		barsProcessed: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "bars_processed_total",
				Help:      "Closed bars evaluated by the control loop",
			},
			[]string{"instrument"},
		),
		decisions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "decisions_total",
				Help:      "Per-bar decisions by action and reason code",
			},
			[]string{"instrument", "action", "reason"},
		),
		orders: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "orders_total",
				Help:      "Orders placed, by side and mode",
			},
			[]string{"instrument", "side", "mode"},
		),
		errorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "errors_total",
				Help:      "Errors encountered by the control loop",
			},
			[]string{"type"},
		),
		equity: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "account_equity",
			Help:      "Last observed account equity",
		}),
		usedRisk: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "portfolio_risk_percent",
			Help:      "Open risk to stop as a percentage of equity",
		}),
		guardLocked: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "daily_guard_locked",
			Help:      "1 while the daily loss guard blocks new entries",
		}),
		loopLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "bar_duration_seconds",
			Help:      "Time spent deciding on one bar",
			Buckets:   prometheus.DefBuckets,
		}),
	}

	r.reg.MustRegister(
		r.barsProcessed,
		r.decisions,
		r.orders,
		r.errorsTotal,
		r.equity,
		r.usedRisk,
		r.guardLocked,
		r.loopLatency,
	)
	return r
}

// Registry exposes the underlying registry, mostly for tests.
func (r *Recorder) Registry() *prometheus.Registry { return r.reg }

func (r *Recorder) RecordBar(instrument string) {
	r.barsProcessed.WithLabelValues(instrument).Inc()
}

func (r *Recorder) RecordDecision(instrument, action, reason string) {
	r.decisions.WithLabelValues(instrument, action, reason).Inc()
}

func (r *Recorder) RecordOrder(instrument, side, mode string) {
	r.orders.WithLabelValues(instrument, side, mode).Inc()
}

func (r *Recorder) RecordError(kind string) {
	r.errorsTotal.WithLabelValues(kind).Inc()
}

func (r *Recorder) SetEquity(v float64) { r.equity.Set(v) }

func (r *Recorder) SetUsedRisk(pct float64) { r.usedRisk.Set(pct) }

func (r *Recorder) SetGuardLocked(locked bool) {
	if locked {
		r.guardLocked.Set(1)
		return
	}
	r.guardLocked.Set(0)
}

func (r *Recorder) ObserveBar(d time.Duration) {
	r.loopLatency.Observe(d.Seconds())
}

// Handler serves the recorder's registry in the Prometheus text format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{})
}

// Serve exposes Handler at path on addr until ctx is cancelled.
func (r *Recorder) Serve(ctx context.Context, addr, path string, log zerolog.Logger) error {
	if path == "" {
		path = "/metrics"
	}
	mux := http.NewServeMux()
	mux.Handle(path, r.Handler())

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", addr).Str("path", path).Msg("metrics server listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
