// Package promexport exposes the latest logged metric values of a tracking
// dir in the Prometheus text format.
package promexport

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tinytrack/ttrack/internal/domain"
	"github.com/tinytrack/ttrack/internal/ports"
)

var runLabels = []string{"experiment_id", "experiment", "run_id", "run_name"}

// Exporter reads the store on every scrape; nothing is cached between scrapes.
type Exporter struct {
	store ports.TrackingStore
	log   *slog.Logger

	metricValue *prometheus.Desc
	metricStep  *prometheus.Desc
	runStatus   *prometheus.Desc
	runs        *prometheus.Desc

	scrapes        prometheus.Counter
	scrapeErrors   prometheus.Counter
	scrapeDuration prometheus.Histogram

	registry *prometheus.Registry
}

func New(store ports.TrackingStore, log *slog.Logger) *Exporter {
	if log == nil {
		log = slog.Default()
	}
	registry := prometheus.NewRegistry()

	e := &Exporter{
		store: store,
		log:   log,

		metricValue: prometheus.NewDesc(
			"ttrack_metric_value",
			"Latest logged value of a run metric",
			append(runLabels, "key"), nil,
		),
		metricStep: prometheus.NewDesc(
			"ttrack_metric_step",
			"Step of the latest logged value of a run metric",
			append(runLabels, "key"), nil,
		),
		runStatus: prometheus.NewDesc(
			"ttrack_run_status",
			"Run status code (1=running, 2=scheduled, 3=finished, 4=failed, 5=killed)",
			runLabels, nil,
		),
		runs: prometheus.NewDesc(
			"ttrack_runs",
			"Number of active runs per experiment and status",
			[]string{"experiment_id", "experiment", "status"}, nil,
		),

		scrapes: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ttrack_export_scrapes_total",
			Help: "Total number of tracking dir scrapes",
		}),
		scrapeErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ttrack_export_scrape_errors_total",
			Help: "Total number of failed tracking dir scrapes",
		}),
		scrapeDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "ttrack_export_scrape_duration_seconds",
			Help:    "Time spent reading the tracking dir per scrape",
			Buckets: prometheus.DefBuckets,
		}),

		registry: registry,
	}

	registry.MustRegister(e, e.scrapes, e.scrapeErrors, e.scrapeDuration)
	return e
}

func (e *Exporter) Describe(ch chan<- *prometheus.Desc) {
	ch <- e.metricValue
	ch <- e.metricStep
	ch <- e.runStatus
	ch <- e.runs
}

func (e *Exporter) Collect(ch chan<- prometheus.Metric) {
	start := time.Now()
	e.scrapes.Inc()
	defer func() { e.scrapeDuration.Observe(time.Since(start).Seconds()) }()

	exps, err := e.store.ListExperiments()
	if err != nil {
		e.fail(ch, err)
		return
	}

	for _, exp := range exps {
		if exp.LifecycleStage != domain.StageActive {
			continue
		}
		runs, err := e.store.ListRuns(exp.ID)
		if err != nil {
			e.fail(ch, err)
			continue
		}

		counts := map[domain.RunStatus]int{}
		for _, r := range runs {
			if r.Info.LifecycleStage != domain.StageActive {
				continue
			}
			counts[r.Info.Status]++

			labels := []string{exp.ID, exp.Name, r.Info.RunID, r.Info.RunName}
			ch <- prometheus.MustNewConstMetric(e.runStatus, prometheus.GaugeValue, float64(r.Info.Status), labels...)

			for key, m := range r.Metrics {
				ml := append(append([]string{}, labels...), key)
				ch <- prometheus.MustNewConstMetric(e.metricValue, prometheus.GaugeValue, m.Value, ml...)
				ch <- prometheus.MustNewConstMetric(e.metricStep, prometheus.GaugeValue, float64(m.Step), ml...)
			}
		}
		for status, n := range counts {
			ch <- prometheus.MustNewConstMetric(e.runs, prometheus.GaugeValue, float64(n), exp.ID, exp.Name, status.String())
		}
	}
}

func (e *Exporter) fail(ch chan<- prometheus.Metric, err error) {
	e.scrapeErrors.Inc()
	e.log.Warn("export.scrape_failed", "err", err)
	ch <- prometheus.NewInvalidMetric(e.runs, err)
}

// Handler returns the Prometheus metrics HTTP handler
func (e *Exporter) Handler() http.Handler {
	return promhttp.HandlerFor(e.registry, promhttp.HandlerOpts{})
}

// Registry returns the Prometheus registry
func (e *Exporter) Registry() *prometheus.Registry {
	return e.registry
}

// Serve listens on addr and serves /metrics until ctx is done.
func (e *Exporter) Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", e.Handler())
	mux.HandleFunc("/", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte("ttrack exporter: see /metrics\n"))
	})

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()
	e.log.Info("export.listening", "addr", addr)

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return &domain.OpError{Op: "promexport.serve", Kind: domain.KindExecution, Err: err}
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
