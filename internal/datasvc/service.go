// Package datasvc runs a table as a long-lived service: warm start from
// SQLite, ingestion from a row source, persistence of committed rows,
// publishing of aggregated records and hot-reloadable indicators.
package datasvc

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/AnyChart/AnyChart-sub039/config"
	"github.com/AnyChart/AnyChart-sub039/internal/aggregator"
	"github.com/AnyChart/AnyChart-sub039/internal/gateway"
	"github.com/AnyChart/AnyChart-sub039/internal/indicator"
	"github.com/AnyChart/AnyChart-sub039/internal/interval"
	"github.com/AnyChart/AnyChart-sub039/internal/metrics"
	"github.com/AnyChart/AnyChart-sub039/internal/model"
	"github.com/AnyChart/AnyChart-sub039/internal/table"
)

const warmStartPage = 1000

// ErrUnknownInterval is returned for intervals the service does not serve.
var ErrUnknownInterval = errors.New("datasvc: unknown interval")

// Deps are the optional collaborators of a Service. Nil members disable the
// corresponding feature.
type Deps struct {
	Source    model.RowSource
	Writer    model.RowWriter
	Publisher model.RecordPublisher
	Metrics   *metrics.Metrics
	Health    *metrics.HealthStatus
	Logger    *slog.Logger
}

type servedInterval struct {
	name string
	gen  *interval.Generator
}

// Service owns the table and everything attached to it.
type Service struct {
	cfg  config.Config
	deps Deps
	log  *slog.Logger

	table     *table.Table
	mapping   *table.Mapping
	registry  *indicator.Registry
	intervals []servedInterval
	hub       *gateway.Hub

	rowCh    chan []model.RawRow
	warming  atomic.Bool
	pubCtx   context.Context
	pubMu    sync.RWMutex
	stopOnce sync.Once
}

var _ gateway.Source = (*Service)(nil)

// New builds the table, mapping and indicators described by cfg.
func New(cfg config.Config, deps Deps) (*Service, error) {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	s := &Service{
		cfg:    cfg,
		deps:   deps,
		log:    logger.With("component", "datasvc"),
		rowCh:  make(chan []model.RawRow, 256),
		pubCtx: context.Background(),
	}

	opts := []table.Option{
		table.WithLogger(logger),
		table.WithTimeOffset(cfg.Table.TimeOffset),
		table.WithAggregateCacheSize(cfg.Table.CacheSize),
	}
	if cfg.Table.DateTimePattern != "" {
		opts = append(opts, table.WithDateTimePattern(cfg.Table.DateTimePattern))
	}
	if deps.Metrics != nil {
		opts = append(opts, table.WithObserver(deps.Metrics))
	}
	t, err := table.New(cfg.Table.Columns, opts...)
	if err != nil {
		return nil, fmt.Errorf("create table: %w", err)
	}
	s.table = t

	if s.mapping, err = buildMapping(t, cfg.Table); err != nil {
		return nil, err
	}

	names := make([]string, 0, len(cfg.Intervals))
	for _, iv := range cfg.Intervals {
		g, err := interval.Parse(iv)
		if err != nil {
			return nil, err
		}
		s.intervals = append(s.intervals, servedInterval{name: iv, gen: g})
		names = append(names, iv)
	}

	s.registry = indicator.NewRegistry(t, s.mapping, logger)
	if err := s.registry.Apply(cfg.Indicators); err != nil {
		return nil, fmt.Errorf("attach indicators: %w", err)
	}

	var hubOpts []gateway.HubOption
	if deps.Metrics != nil {
		hubOpts = append(hubOpts,
			gateway.WithClientGauge(func(n int) { deps.Metrics.WSClients.Set(float64(n)) }),
			gateway.WithDropCounter(deps.Metrics.WSDrops.Inc),
		)
	}
	s.hub = gateway.NewHub(s, hubOpts...)

	if deps.Health != nil {
		deps.Health.SetIntervals(names)
	}
	t.Subscribe(s.onCommit)
	return s, nil
}

// buildMapping maps the configured fields. Aggregation overrides replace the
// name-based defaults.
func buildMapping(t *table.Table, tc config.TableConfig) (*table.Mapping, error) {
	m, err := t.MapAs(tc.Fields)
	if err != nil {
		return nil, fmt.Errorf("map fields: %w", err)
	}
	for name, aggName := range tc.Aggregations {
		col, ok := tc.Fields[name]
		if !ok {
			return nil, fmt.Errorf("aggregation for unmapped field %q", name)
		}
		typ, err := aggregator.ParseType(aggName)
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", name, err)
		}
		if err := m.SetField(name, col, typ); err != nil {
			return nil, fmt.Errorf("field %q: %w", name, err)
		}
	}
	return m, nil
}

// Table returns the underlying table.
func (s *Service) Table() *table.Table { return s.table }

// Mapping returns the service mapping, including indicator outputs.
func (s *Service) Mapping() *table.Mapping { return s.mapping }

// Hub returns the websocket hub.
func (s *Service) Hub() *gateway.Hub { return s.hub }

// WarmStart loads every persisted row into the table in one transaction.
// Loaded rows are not persisted again.
func (s *Service) WarmStart(r model.RowReader) (int, error) {
	start := time.Now()
	if err := s.table.StartTransaction(); err != nil {
		return 0, err
	}
	s.warming.Store(true)
	defer s.warming.Store(false)

	var (
		cursor int64
		total  int
	)
	for {
		rows, next, err := r.ReadRows(cursor, warmStartPage)
		if err != nil {
			s.table.Rollback()
			return 0, fmt.Errorf("warm start read: %w", err)
		}
		if len(rows) == 0 {
			break
		}
		tuples := make([][]any, len(rows))
		for i, row := range rows {
			tuples[i] = row.Tuple()
		}
		if err := s.table.AddData(tuples); err != nil {
			s.table.Rollback()
			return 0, fmt.Errorf("warm start apply: %w", err)
		}
		total += len(rows)
		cursor = next
	}
	if err := s.table.Commit(); err != nil {
		return 0, err
	}
	s.warming.Store(false)
	s.applyRetention(s.table.Len())
	s.log.Info("warm start complete", "rows", total, "took", time.Since(start))
	return total, nil
}

// Apply ingests one batch of row tuples as a single transaction.
func (s *Service) Apply(rows [][]any) error {
	if err := s.table.AddData(rows); err != nil {
		if s.deps.Metrics != nil {
			s.deps.Metrics.IngestErrors.Inc()
		}
		return err
	}
	if s.deps.Metrics != nil {
		s.deps.Metrics.IngestBatches.Inc()
	}
	return nil
}

// onCommit persists the added rows, applies retention and fans the touched
// buckets out. It runs on the committing goroutine after the table lock is
// released.
func (s *Service) onCommit(c table.Change) {
	if s.deps.Health != nil {
		s.deps.Health.RecordCommit(c.Rows, time.Now())
	}
	if len(c.Added) == 0 || s.warming.Load() {
		return
	}
	if s.deps.Writer != nil {
		raw := make([]model.RawRow, len(c.Added))
		for i, r := range c.Added {
			raw[i] = model.RawRow{Key: r.Key(), Values: r.Values()}
		}
		s.pubMu.RLock()
		ctx := s.pubCtx
		s.pubMu.RUnlock()
		select {
		case s.rowCh <- raw:
		case <-ctx.Done():
			s.log.Warn("rows not persisted, shutting down", "rows", len(raw))
		}
	}
	s.applyRetention(c.Rows)
	s.fanOut(c.Added[0].Key())
}

func (s *Service) applyRetention(rows int) {
	limit := s.cfg.Table.MaxRows
	if limit <= 0 || rows <= limit {
		return
	}
	if err := s.table.RemoveFirst(rows - limit); err != nil {
		s.log.Error("retention failed", "error", err)
		return
	}
	if s.deps.Writer == nil {
		return
	}
	st, err := s.table.MainStorage()
	if err != nil || st.Len() == 0 {
		return
	}
	if err := s.deps.Writer.DeleteThrough(st.At(0).Key() - 1); err != nil {
		s.log.Error("retention delete failed", "error", err)
	}
}

// fanOut publishes every bucket at or after the one holding fromKey, and the
// raw rows from fromKey on.
func (s *Service) fanOut(fromKey int64) {
	s.pubMu.RLock()
	ctx := s.pubCtx
	s.pubMu.RUnlock()

	if raw, err := s.table.Records(s.mapping, nil, fromKey, math.MaxInt64); err == nil {
		s.broadcast("", raw)
	}
	for _, iv := range s.intervals {
		// a private generator; the shared one is used by the table under its lock
		g, err := interval.New(iv.gen.Unit(), iv.gen.Count())
		if err != nil {
			continue
		}
		records, err := s.table.Records(s.mapping, iv.gen, g.Start(fromKey), math.MaxInt64)
		if err != nil {
			s.log.Error("aggregate failed", "interval", iv.name, "error", err)
			continue
		}
		s.broadcast(iv.name, records)
		if s.deps.Publisher == nil || len(records) == 0 {
			continue
		}
		if err := s.deps.Publisher.PublishRecords(ctx, iv.name, records); err != nil {
			if s.deps.Metrics != nil {
				s.deps.Metrics.PublishErrors.Inc()
			}
			s.log.Warn("publish failed", "interval", iv.name, "error", err)
			continue
		}
		if s.deps.Metrics != nil {
			s.deps.Metrics.PublishedRecords.WithLabelValues(iv.name).Add(float64(len(records)))
		}
	}
}

func (s *Service) broadcast(interval string, records []model.Record) {
	if err := s.hub.Broadcast(interval, records); err != nil {
		s.log.Error("broadcast failed", "interval", interval, "error", err)
	}
}

// Run starts persistence and ingestion and blocks until ctx is cancelled or
// the row source fails.
func (s *Service) Run(ctx context.Context) error {
	s.pubMu.Lock()
	s.pubCtx = ctx
	s.pubMu.Unlock()

	var wg sync.WaitGroup
	if s.deps.Writer != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.deps.Writer.Run(ctx, s.rowCh)
		}()
	}

	var err error
	if s.deps.Source != nil {
		s.log.Info("ingestion started")
		err = s.deps.Source.Consume(ctx, s.Apply)
	} else {
		<-ctx.Done()
		err = ctx.Err()
	}

	wg.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// Records implements gateway.Source. An empty interval selects raw rows.
func (s *Service) Records(name string, from, to int64) ([]model.Record, error) {
	if name == "" {
		return s.table.Records(s.mapping, nil, from, to)
	}
	for _, iv := range s.intervals {
		if iv.name == name {
			return s.table.Records(s.mapping, iv.gen, from, to)
		}
	}
	return nil, fmt.Errorf("%w %q", ErrUnknownInterval, name)
}

// Fields implements gateway.Source.
func (s *Service) Fields() []string { return s.mapping.Fields() }

// Intervals implements gateway.Source.
func (s *Service) Intervals() []string {
	out := make([]string, len(s.intervals))
	for i, iv := range s.intervals {
		out[i] = iv.name
	}
	return out
}

// Indicators implements gateway.Source.
func (s *Service) Indicators() []indicator.Config { return s.registry.Configs() }

// ReloadIndicators replaces the active indicator set, keeping unchanged
// indicators and their state.
func (s *Service) ReloadIndicators(cfgs []indicator.Config) (preserved, created int, err error) {
	preserved, created, err = s.registry.Reload(cfgs)
	if s.deps.Metrics != nil {
		result := "ok"
		if err != nil {
			result = "error"
		}
		s.deps.Metrics.IndicatorReloads.WithLabelValues(result).Inc()
	}
	return preserved, created, err
}

// OnConfigChange applies the indicator list of a reloaded config file.
// Other settings need a restart.
func (s *Service) OnConfigChange(cfg config.Config) {
	if _, _, err := s.ReloadIndicators(cfg.Indicators); err != nil {
		s.log.Error("indicator reload rejected", "error", err)
	}
}

// Close releases the stores. Safe to call more than once.
func (s *Service) Close() error {
	var errs []error
	s.stopOnce.Do(func() {
		if s.deps.Source != nil {
			errs = append(errs, s.deps.Source.Close())
		}
		if s.deps.Publisher != nil {
			errs = append(errs, s.deps.Publisher.Close())
		}
		if s.deps.Writer != nil {
			errs = append(errs, s.deps.Writer.Close())
		}
	})
	return errors.Join(errs...)
}
