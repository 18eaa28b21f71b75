// Package table implements an in-memory, key-ordered columnar store for
// time-series rows.
//
// Rows are kept sorted by (key, insertion sequence) in a B-tree. Mutations are
// grouped in transactions: readers only ever see committed state, and
// subscribers, computers and cached aggregations are brought up to date once
// per commit. Mappings give symbolic names to raw, aggregated and computed
// columns; computers derive new columns with streaming calculation functions;
// GetAggregated rolls the table up into interval buckets.
//
// Table methods and Mapping reads are safe for concurrent use. Storages and
// rows returned to callers are not: a later commit rewrites computed values
// in place, so Row.Computed and reads of computed fields straight off a
// storage row must not overlap a commit. Read through
// Mapping.Value, Mapping.Records or Table.Records from other goroutines.
package table

import (
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/google/btree"
	lru "github.com/hashicorp/golang-lru"

	"github.com/AnyChart/AnyChart-sub039/internal/aggregator"
)

const (
	btreeDegree           = 32
	defaultAggregateCache = 16
)

// Change describes one committed transaction.
type Change struct {
	// Appended is the number of rows added (net of rows removed again
	// within the same transaction).
	Appended int
	// Removed is the number of previously committed rows removed.
	Removed int
	// TailAppend is set when nothing was removed and every added key is at
	// or after the previous maximum key.
	TailAppend bool
	// Rows is the committed row count after the change.
	Rows int
	// FirstKey and LastKey bound the committed rows; zero when empty.
	FirstKey, LastKey int64
	// Version is the commit counter.
	Version uint64
	// Added holds the rows added by the transaction that are still present,
	// in key order.
	Added []*Row
}

// Observer receives table instrumentation events. Calls happen with the
// table lock held and must not call back into the table.
type Observer interface {
	ObserveCommit(c Change, took time.Duration)
	ObserveAggregation(interval string, rebuilt bool, buckets int, took time.Duration)
	ObserveReplay(full bool, rows int)
}

// Option configures a Table.
type Option func(*options)

type options struct {
	pattern    string
	offsetHrs  float64
	baseMillis int64
	lenient    bool
	logger     *slog.Logger
	cacheSize  int
	observer   Observer
}

// WithDateTimePattern sets the pattern used to parse string keys, e.g.
// "yyyy-MM-dd HH:mm". Without it string keys are parsed as numbers or
// ISO-8601 dates.
func WithDateTimePattern(pattern string) Option {
	return func(o *options) { o.pattern = pattern }
}

// WithTimeOffset declares the UTC offset, in hours, of parsed date strings.
func WithTimeOffset(hours float64) Option {
	return func(o *options) { o.offsetHrs = hours }
}

// WithBaseDate supplies the date parts a pattern omits.
func WithBaseDate(epochMillis int64) Option {
	return func(o *options) { o.baseMillis = epochMillis }
}

// WithLenientRows pads short rows with NaN and truncates long ones instead
// of failing with ErrSchemaMismatch.
func WithLenientRows() Option {
	return func(o *options) { o.lenient = true }
}

// WithLogger sets the logger; slog.Default() otherwise.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithAggregateCacheSize bounds the number of cached aggregated storages.
func WithAggregateCacheSize(n int) Option {
	return func(o *options) { o.cacheSize = n }
}

// WithObserver attaches instrumentation.
func WithObserver(obs Observer) Option {
	return func(o *options) { o.observer = obs }
}

type aggSpec struct {
	typ     aggregator.Type
	col     int
	weights int
}

// txState tracks one open transaction.
type txState struct {
	startSeq   uint64
	hadRows    bool
	prevMax    int64
	appended   int
	removedOld int
	tail       bool // every added key >= prevMax
	prefix     bool // every removal took a prefix of the working rows
}

// Table is the columnar row store.
type Table struct {
	mu sync.Mutex

	columns int
	keys    keyParser
	lenient bool
	log     *slog.Logger
	obs     Observer

	tree *btree.BTreeG[*Row] // committed index
	work *btree.BTreeG[*Row] // working copy while a transaction is open
	tx   *txState
	rows []*Row // committed rows in order
	seq  uint64

	version uint64

	aggSpecs []aggSpec
	aggIndex map[string]int

	computers  []*Computer
	aliases    map[string]*Computer
	slots      int
	freeSlots  []int
	mainStates map[*Computer]*computeState

	cache *lru.Cache

	subs   map[int]func(Change)
	subSeq int
}

// New creates an empty table with the given column count. Column 0 is the
// key.
func New(columns int, opts ...Option) (*Table, error) {
	if columns < 1 {
		return nil, fmt.Errorf("columns must be >= 1, got %d: %w", columns, ErrOutOfRange)
	}
	o := options{cacheSize: defaultAggregateCache}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	if o.cacheSize < 1 {
		o.cacheSize = defaultAggregateCache
	}
	kp, err := newKeyParser(o.pattern, o.offsetHrs, o.baseMillis)
	if err != nil {
		return nil, err
	}
	cache, err := lru.New(o.cacheSize)
	if err != nil {
		return nil, fmt.Errorf("aggregate cache: %w", err)
	}
	return &Table{
		columns:    columns,
		keys:       kp,
		lenient:    o.lenient,
		log:        o.logger,
		obs:        o.observer,
		tree:       btree.NewG[*Row](btreeDegree, rowLess),
		aggIndex:   make(map[string]int),
		aliases:    make(map[string]*Computer),
		mainStates: make(map[*Computer]*computeState),
		cache:      cache,
		subs:       make(map[int]func(Change)),
	}, nil
}

// Columns returns the declared column count.
func (t *Table) Columns() int { return t.columns }

// Len returns the committed row count.
func (t *Table) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.rows)
}

// Version returns the number of effective commits so far.
func (t *Table) Version() uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.version
}

// InTransaction reports whether a transaction is open.
func (t *Table) InTransaction() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.tx != nil
}

// Subscribe registers fn to be called once after every commit that changed
// the table. fn runs on the committing goroutine after the lock is released.
func (t *Table) Subscribe(fn func(Change)) (unsubscribe func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.subSeq++
	id := t.subSeq
	t.subs[id] = fn
	return func() {
		t.mu.Lock()
		defer t.mu.Unlock()
		delete(t.subs, id)
	}
}

// StartTransaction opens a transaction. Nested transactions are rejected.
func (t *Table) StartTransaction() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.begin()
}

func (t *Table) begin() error {
	if t.tx != nil {
		return fmt.Errorf("start transaction: already open: %w", ErrIllegalState)
	}
	tx := &txState{startSeq: t.seq, tail: true, prefix: true}
	if n := len(t.rows); n > 0 {
		tx.hadRows = true
		tx.prevMax = t.rows[n-1].key
	}
	t.tx = tx
	t.work = t.tree.Clone()
	return nil
}

// Commit applies the open transaction and notifies subscribers once.
func (t *Table) Commit() error {
	t.mu.Lock()
	change, changed, err := t.commit()
	subs := t.subscribers(changed)
	t.mu.Unlock()
	if err != nil {
		return err
	}
	for _, fn := range subs {
		fn(change)
	}
	return nil
}

// Rollback discards the open transaction.
func (t *Table) Rollback() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.tx == nil {
		return fmt.Errorf("rollback: no open transaction: %w", ErrIllegalState)
	}
	t.discard()
	return nil
}

func (t *Table) discard() {
	t.tx = nil
	t.work = nil
}

func (t *Table) subscribers(changed bool) []func(Change) {
	if !changed || len(t.subs) == 0 {
		return nil
	}
	out := make([]func(Change), 0, len(t.subs))
	for id := 1; id <= t.subSeq; id++ {
		if fn, ok := t.subs[id]; ok {
			out = append(out, fn)
		}
	}
	return out
}

func (t *Table) commit() (Change, bool, error) {
	if t.tx == nil {
		return Change{}, false, fmt.Errorf("commit: no open transaction: %w", ErrIllegalState)
	}
	start := time.Now()
	tx := t.tx
	if tx.appended == 0 && tx.removedOld == 0 {
		t.discard()
		return Change{}, false, nil
	}

	tail := tx.removedOld == 0 && tx.tail
	var rows, added []*Row
	if tx.tail && tx.prefix {
		survivors := t.rows[tx.removedOld:]
		rows = survivors
		pivot := &Row{key: tx.prevMax, seq: tx.startSeq}
		collect := func(r *Row) bool {
			rows = append(rows, r)
			return true
		}
		if tx.hadRows {
			t.work.AscendGreaterOrEqual(pivot, collect)
		} else {
			t.work.Ascend(collect)
		}
		added = rows[len(survivors):len(rows):len(rows)]
	} else {
		rows = make([]*Row, 0, t.work.Len())
		t.work.Ascend(func(r *Row) bool {
			rows = append(rows, r)
			if r.seq >= tx.startSeq {
				added = append(added, r)
			}
			return true
		})
	}
	t.tree = t.work
	t.rows = rows
	t.discard()
	t.version++

	change := Change{
		Appended:   tx.appended,
		Removed:    tx.removedOld,
		TailAppend: tail,
		Rows:       len(rows),
		Version:    t.version,
		Added:      added,
	}
	if len(rows) > 0 {
		change.FirstKey = rows[0].key
		change.LastKey = rows[len(rows)-1].key
	}

	if !tail {
		for _, st := range t.mainStates {
			st.valid = false
		}
	}
	if err := t.computeMain(); err != nil {
		t.log.Debug("table commit: computers pending configuration", "error", err)
	}
	t.markAggregates(tail)

	took := time.Since(start)
	if t.obs != nil {
		t.obs.ObserveCommit(change, took)
	}
	t.log.Debug("table commit",
		"appended", change.Appended,
		"removed", change.Removed,
		"tail", change.TailAppend,
		"rows", change.Rows,
		"took", took)
	return change, true, nil
}

// autoTx runs fn inside the caller's transaction, or inside its own one that
// is committed afterwards even when fn fails part way.
func (t *Table) autoTx(fn func() error) error {
	t.mu.Lock()
	if t.tx != nil {
		err := fn()
		if err != nil {
			t.discard()
		}
		t.mu.Unlock()
		return err
	}
	if err := t.begin(); err != nil {
		t.mu.Unlock()
		return err
	}
	fnErr := fn()
	change, changed, err := t.commit()
	subs := t.subscribers(changed)
	t.mu.Unlock()
	for _, s := range subs {
		s(change)
	}
	if fnErr != nil {
		return fnErr
	}
	return err
}

// AddData inserts rows. Each row is [key, v1, v2, ...] with exactly Columns()
// cells unless the table is lenient.
//
// Inside an open transaction a failing row discards the whole transaction.
// Outside one, AddData commits the rows before the failing row and returns
// the error.
func (t *Table) AddData(rows [][]any) error {
	if len(rows) == 0 {
		return nil
	}
	return t.autoTx(func() error {
		for i, cells := range rows {
			r, err := t.buildRow(cells)
			if err != nil {
				return fmt.Errorf("row %d: %w", i, err)
			}
			t.insert(r)
		}
		return nil
	})
}

func (t *Table) buildRow(cells []any) (*Row, error) {
	if len(cells) != t.columns && !t.lenient {
		return nil, fmt.Errorf("got %d cells, want %d: %w", len(cells), t.columns, ErrSchemaMismatch)
	}
	if len(cells) == 0 {
		return nil, fmt.Errorf("empty row: %w", ErrSchemaMismatch)
	}
	key, err := t.keys.parseKey(cells[0])
	if err != nil {
		return nil, fmt.Errorf("key: %v: %w", err, ErrSchemaMismatch)
	}
	values := make([]float64, t.columns)
	values[0] = float64(key)
	for c := 1; c < t.columns; c++ {
		if c >= len(cells) {
			values[c] = math.NaN()
			continue
		}
		v, err := coerceValue(cells[c])
		if err != nil {
			return nil, fmt.Errorf("column %d: %v: %w", c, err, ErrSchemaMismatch)
		}
		values[c] = v
	}
	r := &Row{key: key, seq: t.seq, values: values}
	t.seq++
	return r, nil
}

func (t *Table) insert(r *Row) {
	t.work.ReplaceOrInsert(r)
	t.tx.appended++
	if t.tx.hadRows && r.key < t.tx.prevMax {
		t.tx.tail = false
	}
}

func (t *Table) removed(r *Row) {
	if r.seq >= t.tx.startSeq {
		t.tx.appended--
		return
	}
	t.tx.removedOld++
}

// RemoveFirst removes the n lowest rows, counting rows added earlier in the
// same transaction. n == 0 is a no-op.
func (t *Table) RemoveFirst(n int) error {
	if n < 0 {
		return fmt.Errorf("remove first %d: %w", n, ErrOutOfRange)
	}
	if n == 0 {
		return nil
	}
	return t.autoTx(func() error {
		for i := 0; i < n; i++ {
			r, ok := t.work.DeleteMin()
			if !ok {
				break
			}
			t.removed(r)
		}
		return nil
	})
}

// Remove removes every row with from <= key <= to.
func (t *Table) Remove(from, to int64) error {
	if from > to {
		return fmt.Errorf("remove [%d, %d]: %w", from, to, ErrOutOfRange)
	}
	return t.autoTx(func() error {
		var doomed []*Row
		t.work.AscendGreaterOrEqual(&Row{key: from}, func(r *Row) bool {
			if r.key > to {
				return false
			}
			doomed = append(doomed, r)
			return true
		})
		if len(doomed) == 0 {
			return nil
		}
		if first, ok := t.work.Min(); ok && first.key < from {
			t.tx.prefix = false
		}
		for _, r := range doomed {
			t.work.Delete(r)
			t.removed(r)
		}
		return nil
	})
}

// MainStorage returns the committed rows with every computer up to date.
func (t *Table) MainStorage() (Storage, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.computeMain(); err != nil {
		return nil, err
	}
	return rowsStorage{rows: t.rows}, nil
}

// registerAggregator returns the registry index of an aggregation config,
// adding it when new.
func (t *Table) registerAggregator(typ aggregator.Type, col, weights int) (int, error) {
	if _, err := aggregator.New(typ, col, weights); err != nil {
		return 0, err
	}
	if typ != aggregator.WeightedAverage {
		weights = aggregator.NoColumn
	}
	h := aggregator.Hash(typ, col, weights)
	if i, ok := t.aggIndex[h]; ok {
		return i, nil
	}
	t.aggSpecs = append(t.aggSpecs, aggSpec{typ: typ, col: col, weights: weights})
	i := len(t.aggSpecs) - 1
	t.aggIndex[h] = i
	return i, nil
}
