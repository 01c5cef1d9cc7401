// Package metrics exposes mining telemetry over Prometheus plus a
// small JSON status endpoint. Fire and forget: nothing here affects
// search results.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Metrics is the miner's instrument set on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	HashesTotal prometheus.Counter
	HashRate    prometheus.Gauge
	Searches    *prometheus.CounterVec
	Solutions   *prometheus.CounterVec
	Retries     prometheus.Counter
	RomBuilds   prometheus.Counter
	Cycles      prometheus.Counter
}

// New registers all instruments.
func New() *Metrics {
	m := &Metrics{registry: prometheus.NewRegistry()}

	m.HashesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "scavminer_hashes_total",
		Help: "Total hash evaluations across all search tasks.",
	})
	m.HashRate = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "scavminer_hash_rate",
		Help: "Hash rate of the most recent search task in H/s.",
	})
	m.Searches = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "scavminer_searches_total",
		Help: "Search tasks by outcome.",
	}, []string{"outcome"})
	m.Solutions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "scavminer_submissions_total",
		Help: "Submission attempts by resulting record status.",
	}, []string{"status"})
	m.Retries = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "scavminer_retries_total",
		Help: "Resubmission attempts made by the retry sweep.",
	})
	m.RomBuilds = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "scavminer_rom_builds_total",
		Help: "Table builds, i.e. rom cache misses.",
	})
	m.Cycles = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "scavminer_cycles_total",
		Help: "Completed orchestrator cycles.",
	})

	m.registry.MustRegister(m.HashesTotal, m.HashRate, m.Searches,
		m.Solutions, m.Retries, m.RomBuilds, m.Cycles)
	return m
}

// Server serves /metrics, /healthz and /status.
type Server struct {
	logger *zap.Logger
	http   *http.Server
}

// StatusFunc supplies the /status document; it runs on every request.
type StatusFunc func() any

// NewServer wires the routes. status may be nil.
func NewServer(logger *zap.Logger, addr string, m *Metrics, status StatusFunc) *Server {
	r := mux.NewRouter()
	r.Handle("/metrics", promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}))
	r.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	if status != nil {
		r.HandleFunc("/status", func(w http.ResponseWriter, _ *http.Request) {
			data, err := sonic.Marshal(status())
			if err != nil {
				http.Error(w, err.Error(), http.StatusInternalServerError)
				return
			}
			w.Header().Set("Content-Type", "application/json")
			w.Write(data)
		})
	}

	return &Server{
		logger: logger.Named("metrics"),
		http: &http.Server{
			Addr:              addr,
			Handler:           r,
			ReadHeaderTimeout: 5 * time.Second,
		},
	}
}

// Start serves in the background until Shutdown.
func (s *Server) Start() {
	go func() {
		s.logger.Info("metrics listening", zap.String("addr", s.http.Addr))
		if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("metrics server stopped", zap.Error(err))
		}
	}()
}

// Shutdown drains the listener.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}
