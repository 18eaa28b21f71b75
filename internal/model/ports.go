package model

import "context"

// ── Storage Port Interfaces ──
// These decouple the table service from concrete stores (SQLite, Redis).

// RowWriter persists committed raw rows.
type RowWriter interface {
	// Run reads row batches from rowCh and writes them.
	// Blocks until ctx is cancelled or rowCh is closed.
	Run(ctx context.Context, rowCh <-chan []RawRow)

	// DeleteThrough drops persisted rows with key <= key (retention).
	DeleteThrough(key int64) error

	Close() error
}

// RowReader loads persisted rows for a warm start.
type RowReader interface {
	// ReadRows returns up to limit rows stored after cursor, in insertion
	// order, and the cursor of the last returned row. Start from cursor 0.
	ReadRows(cursor int64, limit int) (rows []RawRow, next int64, err error)

	Close() error
}

// RecordPublisher fans aggregated records out to external subscribers.
type RecordPublisher interface {
	PublishRecords(ctx context.Context, interval string, records []Record) error
	Close() error
}

// RowSource delivers raw ingestion tuples in batches; each batch is applied
// to the table as one transaction.
type RowSource interface {
	// Consume blocks until ctx is cancelled, calling apply for every batch.
	Consume(ctx context.Context, apply func(rows [][]any) error) error
	Close() error
}
