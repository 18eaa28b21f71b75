package sqlite

import (
	"context"
	"math"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AnyChart/AnyChart-sub039/internal/model"
)

func TestWriterReader_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rows.db")
	committed := make(chan int, 4)
	w, err := New(WriterConfig{
		DBPath:     path,
		BatchSize:  3,
		FlushDelay: 20 * time.Millisecond,
		OnCommit:   func(n int, _ time.Duration) { committed <- n },
	})
	require.NoError(t, err)
	defer w.Close()

	ctx, cancel := context.WithCancel(context.Background())
	ch := make(chan []model.RawRow, 4)
	done := make(chan struct{})
	go func() {
		w.Run(ctx, ch)
		close(done)
	}()

	ch <- []model.RawRow{{Key: 1, Values: []float64{1, 10}}, {Key: 1, Values: []float64{1, 11}}}
	ch <- []model.RawRow{{Key: 3, Values: []float64{3, math.NaN()}}}
	ch <- []model.RawRow{{Key: 2, Values: []float64{2, 20}}}
	close(ch)
	<-done
	cancel()

	total := 0
	for len(committed) > 0 {
		total += <-committed
	}
	assert.Equal(t, 4, total)

	r, err := NewReader(path)
	require.NoError(t, err)
	defer r.Close()

	first, cursor, err := r.ReadRows(0, 2)
	require.NoError(t, err)
	require.Len(t, first, 2)
	assert.Equal(t, []float64{1, 10}, first[0].Values)
	assert.Equal(t, []float64{1, 11}, first[1].Values)

	rest, cursor, err := r.ReadRows(cursor, 10)
	require.NoError(t, err)
	require.Len(t, rest, 2)
	assert.Equal(t, int64(3), rest[0].Key)
	assert.True(t, math.IsNaN(rest[0].Values[1]))
	assert.Equal(t, int64(2), rest[1].Key)

	none, same, err := r.ReadRows(cursor, 10)
	require.NoError(t, err)
	assert.Empty(t, none)
	assert.Equal(t, cursor, same)
}

func TestWriter_DeleteThrough(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rows.db")
	w, err := New(WriterConfig{DBPath: path})
	require.NoError(t, err)
	defer w.Close()

	require.NoError(t, w.insertBatch([]model.RawRow{
		{Key: 1, Values: []float64{1}}, {Key: 2, Values: []float64{2}}, {Key: 5, Values: []float64{5}},
	}))
	require.NoError(t, w.DeleteThrough(2))

	r, err := NewReader(path)
	require.NoError(t, err)
	defer r.Close()
	n, err := r.Count()
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestReader_EmptyDatabase(t *testing.T) {
	r, err := NewReader(filepath.Join(t.TempDir(), "empty.db"))
	require.NoError(t, err)
	defer r.Close()

	rows, next, err := r.ReadRows(0, 100)
	require.NoError(t, err)
	assert.Empty(t, rows)
	assert.Zero(t, next)
}
