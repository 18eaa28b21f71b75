package metrics

import (
	"context"
	"database/sql"
	"encoding/json"
	"log"
	"net/http"
	"strconv"
	"sync"
	"time"

	goredis "github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/AnyChart/AnyChart-sub039/internal/table"
)

// Metrics holds all Prometheus metrics for the table service. It implements
// table.Observer.
type Metrics struct {
	reg *prometheus.Registry

	// Table
	CommitsTotal    *prometheus.CounterVec // labels: kind=tail|structural
	RowsAppended    prometheus.Counter
	RowsRemoved     prometheus.Counter
	TableRows       prometheus.Gauge
	CommitDur       prometheus.Histogram
	AggregationsDur *prometheus.HistogramVec // labels: interval, mode=rebuild|append
	AggBuckets      *prometheus.GaugeVec     // labels: interval
	ReplayRows      *prometheus.CounterVec   // labels: mode=full|incremental

	// Ingestion and persistence
	IngestBatches   prometheus.Counter
	IngestErrors    prometheus.Counter
	SQLiteCommitDur prometheus.Histogram
	PersistedRows   prometheus.Counter

	// Fan-out
	PublishedRecords *prometheus.CounterVec // labels: interval
	PublishErrors    prometheus.Counter
	WSClients        prometheus.Gauge
	WSDrops          prometheus.Counter

	IndicatorReloads *prometheus.CounterVec // labels: result=ok|error
}

// NewMetrics registers all metrics on a fresh registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		reg: prometheus.NewRegistry(),

		CommitsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "table_commits_total",
			Help: "Committed transactions that changed the table",
		}, []string{"kind"}),
		RowsAppended: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "table_rows_appended_total",
			Help: "Rows added by commits",
		}),
		RowsRemoved: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "table_rows_removed_total",
			Help: "Committed rows removed",
		}),
		TableRows: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "table_rows",
			Help: "Rows in the main storage",
		}),
		CommitDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "table_commit_duration_seconds",
			Help:    "Commit latency including computer replays",
			Buckets: []float64{0.00001, 0.00005, 0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1},
		}),
		AggregationsDur: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "table_aggregation_duration_seconds",
			Help:    "Aggregated storage refresh latency",
			Buckets: []float64{0.00001, 0.0001, 0.001, 0.01, 0.1, 1},
		}, []string{"interval", "mode"}),
		AggBuckets: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "table_aggregation_buckets",
			Help: "Buckets in an aggregated storage after its last refresh",
		}, []string{"interval"}),
		ReplayRows: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "table_computer_rows_total",
			Help: "Rows passed through computer calculation functions",
		}, []string{"mode"}),

		IngestBatches: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tableserver_ingest_batches_total",
			Help: "Stream batches applied as one transaction",
		}),
		IngestErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tableserver_ingest_errors_total",
			Help: "Stream batches or entries rejected",
		}),
		SQLiteCommitDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "tableserver_sqlite_commit_duration_seconds",
			Help:    "SQLite batch commit latency",
			Buckets: prometheus.DefBuckets,
		}),
		PersistedRows: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tableserver_persisted_rows_total",
			Help: "Rows written to SQLite",
		}),

		PublishedRecords: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tableserver_published_records_total",
			Help: "Aggregated records published to Redis",
		}, []string{"interval"}),
		PublishErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tableserver_publish_errors_total",
			Help: "Failed Redis publishes",
		}),
		WSClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "tableserver_ws_clients",
			Help: "Connected WebSocket clients",
		}),
		WSDrops: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tableserver_ws_drops_total",
			Help: "Messages dropped for slow WebSocket clients",
		}),
		IndicatorReloads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tableserver_indicator_reloads_total",
			Help: "Indicator configuration reloads",
		}, []string{"result"}),
	}

	m.reg.MustRegister(
		m.CommitsTotal,
		m.RowsAppended,
		m.RowsRemoved,
		m.TableRows,
		m.CommitDur,
		m.AggregationsDur,
		m.AggBuckets,
		m.ReplayRows,
		m.IngestBatches,
		m.IngestErrors,
		m.SQLiteCommitDur,
		m.PersistedRows,
		m.PublishedRecords,
		m.PublishErrors,
		m.WSClients,
		m.WSDrops,
		m.IndicatorReloads,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return m
}

// Registry exposes the underlying registry, for tests and custom handlers.
func (m *Metrics) Registry() *prometheus.Registry { return m.reg }

var _ table.Observer = (*Metrics)(nil)

func (m *Metrics) ObserveCommit(c table.Change, took time.Duration) {
	kind := "structural"
	if c.TailAppend {
		kind = "tail"
	}
	m.CommitsTotal.WithLabelValues(kind).Inc()
	m.RowsAppended.Add(float64(c.Appended))
	m.RowsRemoved.Add(float64(c.Removed))
	m.TableRows.Set(float64(c.Rows))
	m.CommitDur.Observe(took.Seconds())
}

func (m *Metrics) ObserveAggregation(interval string, rebuilt bool, buckets int, took time.Duration) {
	mode := "append"
	if rebuilt {
		mode = "rebuild"
	}
	m.AggregationsDur.WithLabelValues(interval, mode).Observe(took.Seconds())
	m.AggBuckets.WithLabelValues(interval).Set(float64(buckets))
}

func (m *Metrics) ObserveReplay(full bool, rows int) {
	mode := "incremental"
	if full {
		mode = "full"
	}
	m.ReplayRows.WithLabelValues(mode).Add(float64(rows))
}

// HealthStatus represents the system health.
type HealthStatus struct {
	mu sync.RWMutex

	RedisConnected bool      `json:"redis_connected"`
	SQLiteOK       bool      `json:"sqlite_ok"`
	LastCommitTime time.Time `json:"last_commit_time"`
	Rows           int       `json:"rows"`
	Intervals      []string  `json:"intervals"`

	// Liveness probe results
	RedisLatencyMs  float64   `json:"redis_latency_ms"`
	SQLiteLatencyMs float64   `json:"sqlite_latency_ms"`
	LastCheckAt     time.Time `json:"last_check_at"`
	StartedAt       time.Time `json:"started_at"`
}

// NewHealthStatus returns a default health status.
func NewHealthStatus() *HealthStatus {
	return &HealthStatus{
		StartedAt: time.Now(),
	}
}

func (h *HealthStatus) SetRedisConnected(v bool) {
	h.mu.Lock()
	h.RedisConnected = v
	h.mu.Unlock()
}

func (h *HealthStatus) SetSQLiteOK(v bool) {
	h.mu.Lock()
	h.SQLiteOK = v
	h.mu.Unlock()
}

// RecordCommit notes a commit leaving rows rows in the table.
func (h *HealthStatus) RecordCommit(rows int, at time.Time) {
	h.mu.Lock()
	h.Rows = rows
	h.LastCommitTime = at
	h.mu.Unlock()
}

func (h *HealthStatus) SetIntervals(iv []string) {
	h.mu.Lock()
	h.Intervals = iv
	h.mu.Unlock()
}

// CheckRedis pings Redis and records latency + connectivity.
func (h *HealthStatus) CheckRedis(ctx context.Context, rdb *goredis.Client) {
	start := time.Now()
	err := rdb.Ping(ctx).Err()
	latency := time.Since(start)

	h.mu.Lock()
	h.RedisConnected = err == nil
	h.RedisLatencyMs = float64(latency.Microseconds()) / 1000.0
	h.LastCheckAt = time.Now()
	h.mu.Unlock()
}

// CheckSQLite pings the database and records latency + health.
func (h *HealthStatus) CheckSQLite(ctx context.Context, db *sql.DB) {
	start := time.Now()
	err := db.PingContext(ctx)
	latency := time.Since(start)

	h.mu.Lock()
	h.SQLiteOK = err == nil
	h.SQLiteLatencyMs = float64(latency.Microseconds()) / 1000.0
	h.LastCheckAt = time.Now()
	h.mu.Unlock()
}

// StartLivenessChecker runs periodic dependency checks. Nil clients are
// skipped.
func (h *HealthStatus) StartLivenessChecker(ctx context.Context, rdb *goredis.Client, sqlDB *sql.DB, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				probeCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
				if rdb != nil {
					h.CheckRedis(probeCtx, rdb)
				}
				if sqlDB != nil {
					h.CheckSQLite(probeCtx, sqlDB)
				}
				cancel()
			}
		}
	}()
}

// ServeHTTP handles the /healthz endpoint.
func (h *HealthStatus) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	overallStatus := "healthy"
	httpCode := http.StatusOK
	if !h.RedisConnected || !h.SQLiteOK {
		overallStatus = "degraded"
		httpCode = http.StatusServiceUnavailable
	}
	if !h.RedisConnected && !h.SQLiteOK {
		overallStatus = "unhealthy"
	}

	commitAge := ""
	lastCommit := ""
	if !h.LastCommitTime.IsZero() {
		commitAge = time.Since(h.LastCommitTime).Round(time.Millisecond).String()
		lastCommit = h.LastCommitTime.Format(time.RFC3339)
	}

	status := struct {
		Status          string   `json:"status"`
		Uptime          string   `json:"uptime"`
		Rows            int      `json:"rows"`
		LastCommitTime  string   `json:"last_commit_time"`
		CommitAge       string   `json:"commit_age"`
		RedisConnected  bool     `json:"redis_connected"`
		RedisLatencyMs  float64  `json:"redis_latency_ms"`
		SQLiteOK        bool     `json:"sqlite_ok"`
		SQLiteLatencyMs float64  `json:"sqlite_latency_ms"`
		Intervals       []string `json:"intervals"`
		LastCheckAt     string   `json:"last_check_at"`
	}{
		Status:          overallStatus,
		Uptime:          time.Since(h.StartedAt).Round(time.Second).String(),
		Rows:            h.Rows,
		LastCommitTime:  lastCommit,
		CommitAge:       commitAge,
		RedisConnected:  h.RedisConnected,
		RedisLatencyMs:  h.RedisLatencyMs,
		SQLiteOK:        h.SQLiteOK,
		SQLiteLatencyMs: h.SQLiteLatencyMs,
		Intervals:       h.Intervals,
		LastCheckAt:     h.LastCheckAt.Format(time.RFC3339),
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Table-Rows", strconv.Itoa(h.Rows))
	if httpCode != http.StatusOK {
		w.WriteHeader(httpCode)
	}
	json.NewEncoder(w).Encode(status)
}

// Server runs an HTTP server exposing /metrics and /healthz.
type Server struct {
	addr string
	srv  *http.Server
}

// NewServer creates a metrics and health server.
func NewServer(addr string, m *Metrics, health *HealthStatus) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{}))
	mux.HandleFunc("/healthz", health.ServeHTTP)

	return &Server{
		addr: addr,
		srv: &http.Server{
			Addr:              addr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		},
	}
}

// Handler returns the server mux.
func (s *Server) Handler() http.Handler { return s.srv.Handler }

// Start launches the HTTP server in a goroutine.
func (s *Server) Start() {
	go func() {
		log.Printf("[metrics] server listening on %s", s.addr)
		if err := s.srv.ListenAndServe(); err != http.ErrServerClosed {
			log.Printf("[metrics] server error: %v", err)
		}
	}()
}

// Stop gracefully shuts down the metrics server.
func (s *Server) Stop(ctx context.Context) {
	s.srv.Shutdown(ctx)
}
