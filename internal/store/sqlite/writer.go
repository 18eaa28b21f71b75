package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"time"

	"github.com/AnyChart/AnyChart-sub039/internal/model"

	_ "github.com/mattn/go-sqlite3"
)

const (
	defaultBatchSize  = 500
	defaultFlushDelay = 200 * time.Millisecond

	dsnOptions = "?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000"
)

// WriterConfig configures the SQLite writer.
type WriterConfig struct {
	DBPath     string // path to SQLite database file, e.g. "data/rows.db"
	BatchSize  int
	FlushDelay time.Duration

	// OnCommit, when set, is called after every committed batch.
	OnCommit func(rows int, took time.Duration)
}

// Writer is a single-goroutine SQLite writer with transaction batching.
type Writer struct {
	db  *sql.DB
	cfg WriterConfig
}

var _ model.RowWriter = (*Writer)(nil)

// DB returns the underlying sql.DB for health checks.
func (w *Writer) DB() *sql.DB { return w.db }

// New creates a new SQLite Writer, initializes the database with WAL mode and schema.
func New(cfg WriterConfig) (*Writer, error) {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = defaultBatchSize
	}
	if cfg.FlushDelay <= 0 {
		cfg.FlushDelay = defaultFlushDelay
	}
	db, err := sql.Open("sqlite3", cfg.DBPath+dsnOptions)
	if err != nil {
		return nil, fmt.Errorf("sqlite open: %w", err)
	}

	// Set connection pool for single-writer
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := createSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite schema: %w", err)
	}

	log.Printf("[sqlite] opened database at %s", cfg.DBPath)
	return &Writer{db: db, cfg: cfg}, nil
}

// Rows are stored in commit order; id doubles as the replay cursor. Keys
// may repeat.
func createSchema(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS table_rows (
			id   INTEGER PRIMARY KEY AUTOINCREMENT,
			key  INTEGER NOT NULL,
			vals TEXT    NOT NULL
		);

		CREATE INDEX IF NOT EXISTS table_rows_key ON table_rows (key);
	`)
	return err
}

// Run reads row batches from rowCh and inserts them in batched transactions.
// Flushes every BatchSize rows OR every FlushDelay, whichever first.
// Blocks until ctx is cancelled or rowCh is closed.
func (w *Writer) Run(ctx context.Context, rowCh <-chan []model.RawRow) {
	batch := make([]model.RawRow, 0, w.cfg.BatchSize)
	timer := time.NewTimer(w.cfg.FlushDelay)
	defer timer.Stop()

	flush := func() {
		if len(batch) == 0 {
			return
		}
		start := time.Now()
		if err := w.insertBatch(batch); err != nil {
			log.Printf("[sqlite] batch insert error: %v", err)
		} else if w.cfg.OnCommit != nil {
			w.cfg.OnCommit(len(batch), time.Since(start))
		}
		batch = batch[:0]
	}

	for {
		select {
		case <-ctx.Done():
			// drain what was already queued
		drain:
			for {
				select {
				case rows, ok := <-rowCh:
					if !ok {
						break drain
					}
					batch = append(batch, rows...)
				default:
					break drain
				}
			}
			flush()
			return

		case rows, ok := <-rowCh:
			if !ok {
				flush()
				return
			}
			batch = append(batch, rows...)
			if len(batch) >= w.cfg.BatchSize {
				flush()
				timer.Reset(w.cfg.FlushDelay)
			}

		case <-timer.C:
			flush()
			timer.Reset(w.cfg.FlushDelay)
		}
	}
}

// insertBatch inserts a batch of rows in a single transaction.
func (w *Writer) insertBatch(rows []model.RawRow) error {
	tx, err := w.db.Begin()
	if err != nil {
		return err
	}

	stmt, err := tx.Prepare(`INSERT INTO table_rows (key, vals) VALUES (?, ?)`)
	if err != nil {
		tx.Rollback()
		return err
	}
	defer stmt.Close()

	for _, r := range rows {
		vals, err := model.EncodeValues(r.Values)
		if err != nil {
			tx.Rollback()
			return fmt.Errorf("encode row %d: %w", r.Key, err)
		}
		if _, err := stmt.Exec(r.Key, string(vals)); err != nil {
			tx.Rollback()
			return err
		}
	}

	return tx.Commit()
}

// DeleteThrough drops persisted rows with key <= key.
func (w *Writer) DeleteThrough(key int64) error {
	res, err := w.db.Exec(`DELETE FROM table_rows WHERE key <= ?`, key)
	if err != nil {
		return fmt.Errorf("sqlite delete rows: %w", err)
	}
	if n, _ := res.RowsAffected(); n > 0 {
		log.Printf("[sqlite] retention dropped %d rows through key %d", n, key)
	}
	return nil
}

// Close closes the database.
func (w *Writer) Close() error {
	return w.db.Close()
}
