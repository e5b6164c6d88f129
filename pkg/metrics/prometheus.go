// Package metrics exports sweep progress to Prometheus.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

const namespace = "sweeper"

// Batch results for BatchFinished
const (
	BatchCompleted = "completed"
	BatchAborted   = "aborted"
	BatchCancelled = "cancelled"
)

// Collector implements sweep.Metrics on a private registry.
type Collector struct {
	registry          *prometheus.Registry
	jobs              *prometheus.CounterVec
	jobDuration       *prometheus.HistogramVec
	feeChecks         *prometheus.CounterVec
	consecutiveErrors prometheus.Gauge
	batches           *prometheus.CounterVec
	price             prometheus.Gauge
	logger            *logrus.Logger
}

func NewCollector(logger *logrus.Logger) *Collector {
	if logger == nil {
		logger = logrus.New()
	}

	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)

	return &Collector{
		registry: registry,
		jobs: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_total",
			Help:      "Jobs finished, by outcome",
		}, []string{"outcome"}),
		jobDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "job_duration_seconds",
			Help:      "Time from balance query to final outcome",
			// fee waits poll every 10 minutes, finality every few seconds
			Buckets: []float64{1, 5, 15, 30, 60, 300, 600, 1800, 3600},
		}, []string{"outcome"}),
		feeChecks: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fee_checks_total",
			Help:      "Fee quotes compared against the ceiling, by result",
		}, []string{"result"}),
		consecutiveErrors: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "consecutive_errors",
			Help:      "Current run of failed jobs",
		}),
		batches: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "batches_total",
			Help:      "Batches finished, by result",
		}, []string{"result"}),
		price: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "price_fiat",
			Help:      "Last fetched fiat price of one display unit",
		}),
		logger: logger,
	}
}

func (c *Collector) JobCompleted(outcome string, duration time.Duration) {
	c.jobs.WithLabelValues(outcome).Inc()
	c.jobDuration.WithLabelValues(outcome).Observe(duration.Seconds())
}

func (c *Collector) FeeChecked(accepted bool) {
	result := "rejected"
	if accepted {
		result = "accepted"
	}
	c.feeChecks.WithLabelValues(result).Inc()
}

func (c *Collector) SetConsecutiveErrors(n int) {
	c.consecutiveErrors.Set(float64(n))
}

// BatchFinished counts a finished batch under result.
func (c *Collector) BatchFinished(result string) {
	c.batches.WithLabelValues(result).Inc()
}

// PriceRefreshed records a freshly fetched price.
func (c *Collector) PriceRefreshed(price decimal.Decimal) {
	c.price.Set(price.InexactFloat64())
}

func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// StartServer serves /metrics on addr in the background. Shut it down with
// the returned server.
func (c *Collector) StartServer(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", c.Handler())

	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		c.logger.WithField("addr", addr).Info("Starting metrics server")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			c.logger.WithError(err).Error("Metrics server failed")
		}
	}()

	return server
}

// Shutdown stops a server returned by StartServer.
func Shutdown(ctx context.Context, server *http.Server) error {
	if server == nil {
		return nil
	}
	return server.Shutdown(ctx)
}
