package sqlite

import (
	"database/sql"
	"fmt"
	"log"

	"github.com/AnyChart/AnyChart-sub039/internal/model"

	_ "github.com/mattn/go-sqlite3"
)

// Reader provides read-only access to SQLite for warm starts.
type Reader struct {
	db *sql.DB
}

var _ model.RowReader = (*Reader)(nil)

// NewReader opens a SQLite connection for reading. The schema is created
// when missing so an empty database reads as no rows.
func NewReader(dbPath string) (*Reader, error) {
	db, err := sql.Open("sqlite3", dbPath+dsnOptions)
	if err != nil {
		return nil, fmt.Errorf("sqlite open reader: %w", err)
	}
	db.SetMaxOpenConns(2)
	db.SetMaxIdleConns(2)
	if err := createSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite schema: %w", err)
	}

	log.Printf("[sqlite-reader] opened %s", dbPath)
	return &Reader{db: db}, nil
}

// ReadRows returns up to limit rows stored after cursor in insertion order.
func (r *Reader) ReadRows(cursor int64, limit int) ([]model.RawRow, int64, error) {
	rows, err := r.db.Query(`
		SELECT id, key, vals
		FROM table_rows
		WHERE id > ?
		ORDER BY id ASC
		LIMIT ?
	`, cursor, limit)
	if err != nil {
		return nil, cursor, fmt.Errorf("sqlite query table_rows: %w", err)
	}
	defer rows.Close()

	var out []model.RawRow
	next := cursor
	for rows.Next() {
		var (
			id   int64
			row  model.RawRow
			vals string
		)
		if err := rows.Scan(&id, &row.Key, &vals); err != nil {
			return nil, cursor, fmt.Errorf("sqlite scan table_rows: %w", err)
		}
		if row.Values, err = model.DecodeValues([]byte(vals)); err != nil {
			return nil, cursor, fmt.Errorf("sqlite decode row %d: %w", id, err)
		}
		out = append(out, row)
		next = id
	}
	return out, next, rows.Err()
}

// Count returns the number of persisted rows.
func (r *Reader) Count() (int, error) {
	var n int
	err := r.db.QueryRow(`SELECT COUNT(*) FROM table_rows`).Scan(&n)
	return n, err
}

// Close closes the database.
func (r *Reader) Close() error {
	return r.db.Close()
}
