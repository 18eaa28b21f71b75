// Command tableserver keeps a time-series table in memory, fed from a Redis
// stream, persisted to SQLite and served over websocket and HTTP.
package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/AnyChart/AnyChart-sub039/config"
	"github.com/AnyChart/AnyChart-sub039/internal/datasvc"
	"github.com/AnyChart/AnyChart-sub039/internal/gateway"
	"github.com/AnyChart/AnyChart-sub039/internal/logger"
	"github.com/AnyChart/AnyChart-sub039/internal/metrics"
	redisstore "github.com/AnyChart/AnyChart-sub039/internal/store/redis"
	sqlitestore "github.com/AnyChart/AnyChart-sub039/internal/store/sqlite"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds | log.Lshortfile)
	configPath := flag.String("config", "config/tableserver.yaml", "Path to the YAML config file")
	watch := flag.Bool("watch", true, "Reload indicators when the config file changes")
	flag.Parse()

	cfg, err := config.LoadWithEnvOverrides(*configPath)
	if err != nil {
		log.Fatalf("[tableserver] config: %v", err)
	}
	lg := logger.Init("tableserver", logger.ParseLevel(cfg.LogLevel))

	prom := metrics.NewMetrics()
	health := metrics.NewHealthStatus()
	deps := datasvc.Deps{Metrics: prom, Health: health, Logger: lg}

	// ---- Open SQLite ----
	if err := os.MkdirAll(filepath.Dir(cfg.SQLite.Path), 0o755); err != nil {
		log.Fatalf("[tableserver] data dir: %v", err)
	}
	reader, err := sqlitestore.NewReader(cfg.SQLite.Path)
	if err != nil {
		log.Fatalf("[tableserver] sqlite reader: %v", err)
	}
	writer, err := sqlitestore.New(sqlitestore.WriterConfig{
		DBPath:     cfg.SQLite.Path,
		BatchSize:  cfg.SQLite.BatchSize,
		FlushDelay: cfg.SQLite.FlushInterval,
		OnCommit: func(rows int, took time.Duration) {
			prom.PersistedRows.Add(float64(rows))
			prom.SQLiteCommitDur.Observe(took.Seconds())
		},
	})
	if err != nil {
		log.Fatalf("[tableserver] sqlite writer: %v", err)
	}
	deps.Writer = writer
	health.SetSQLiteOK(true)

	// ---- Connect to Redis ----
	consumer, err := redisstore.NewConsumer(redisstore.ConsumerConfig{
		Addr:      cfg.Redis.Addr,
		Password:  cfg.Redis.Password,
		DB:        cfg.Redis.DB,
		Stream:    cfg.Redis.Stream,
		StartID:   cfg.Redis.StartID,
		BatchSize: cfg.Redis.BatchSize,
		Block:     cfg.Redis.Block,
		OnBatch: func(_, rejected int) {
			prom.IngestErrors.Add(float64(rejected))
		},
	})
	if err != nil {
		log.Printf("[tableserver] WARNING: redis consumer unavailable: %v (serving persisted rows only)", err)
	} else {
		deps.Source = consumer
	}
	publisher, err := redisstore.NewPublisher(redisstore.PublisherConfig{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
		Prefix:   cfg.Redis.PublishPrefix,
	})
	if err != nil {
		log.Printf("[tableserver] WARNING: redis publisher unavailable: %v", err)
	} else {
		deps.Publisher = publisher
		health.SetRedisConnected(true)
	}

	svc, err := datasvc.New(cfg, deps)
	if err != nil {
		log.Fatalf("[tableserver] init failed: %v", err)
	}
	defer svc.Close()

	// ---- Warm start ----
	n, err := svc.WarmStart(reader)
	reader.Close()
	if err != nil {
		log.Fatalf("[tableserver] warm start: %v", err)
	}
	log.Printf("[tableserver] restored %d rows, intervals %v", n, svc.Intervals())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Println("[tableserver] shutting down...")
		cancel()
	}()

	// ---- Config hot reload ----
	if *watch {
		w, err := config.NewWatcher(*configPath, svc.OnConfigChange, lg)
		if err != nil {
			log.Printf("[tableserver] WARNING: config watcher disabled: %v", err)
		} else {
			go func() {
				if err := w.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
					lg.Error("config watcher stopped", "error", err)
				}
			}()
		}
	}

	// ---- Liveness ----
	if publisher != nil {
		health.StartLivenessChecker(ctx, publisher.Client(), writer.DB(), 10*time.Second)
	} else {
		health.StartLivenessChecker(ctx, nil, writer.DB(), 10*time.Second)
	}

	// ---- HTTP ----
	metricsSrv := metrics.NewServer(cfg.MetricsAddr, prom, health)
	metricsSrv.Start()

	mux := http.NewServeMux()
	gateway.RegisterRoutes(mux, svc.Hub())
	gw := &http.Server{Addr: cfg.Gateway.Addr, Handler: withRequestLog(lg, mux)}
	go func() {
		log.Printf("[tableserver] gateway listening on %s", cfg.Gateway.Addr)
		if err := gw.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("[tableserver] gateway error: %v", err)
			cancel()
		}
	}()

	runErr := svc.Run(ctx)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	gw.Shutdown(shutdownCtx)
	metricsSrv.Stop(shutdownCtx)

	if consumer != nil {
		log.Printf("[tableserver] stream consumed through %s", consumer.LastID())
	}
	if runErr != nil {
		log.Fatalf("[tableserver] fatal: %v", runErr)
	}
	log.Println("[tableserver] stopped")
}

// withRequestLog tags every request with an id and logs it at debug level.
func withRequestLog(lg *slog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ctx := logger.WithRequestID(r.Context(), logger.GenerateRequestID("http", start))
		next.ServeHTTP(w, r.WithContext(ctx))
		lg.Debug("http request", append(logger.LogWithRequest(ctx),
			"method", r.Method, "path", r.URL.Path, "took", time.Since(start))...)
	})
}
