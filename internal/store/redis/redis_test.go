package redis

import (
	"encoding/json"
	"math"
	"testing"

	goredis "github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AnyChart/AnyChart-sub039/internal/model"
)

func TestDecodeRow_KeepsIntegerKeys(t *testing.T) {
	row, err := DecodeRow(map[string]interface{}{"row": `[1700000000123, 1.5, "2024-01-02", null]`})
	require.NoError(t, err)
	require.Len(t, row, 4)
	assert.Equal(t, json.Number("1700000000123"), row[0])
	assert.Equal(t, json.Number("1.5"), row[1])
	assert.Equal(t, "2024-01-02", row[2])
	assert.Nil(t, row[3])
}

func TestDecodeRow_Errors(t *testing.T) {
	cases := []struct {
		name   string
		values map[string]interface{}
	}{
		{"missing field", map[string]interface{}{"data": "[1]"}},
		{"not json", map[string]interface{}{"row": "1,2,3"}},
		{"object", map[string]interface{}{"row": `{"key": 1}`}},
		{"empty", map[string]interface{}{"row": "[]"}},
		{"wrong type", map[string]interface{}{"row": 42}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := DecodeRow(tc.values)
			assert.Error(t, err)
		})
	}
}

func TestDecodeEntries_SkipsBadEntries(t *testing.T) {
	rows, rejected := DecodeEntries([]goredis.XMessage{
		{ID: "1-0", Values: map[string]interface{}{"row": "[5, 1.25]"}},
		{ID: "2-0", Values: map[string]interface{}{"row": "oops"}},
		{ID: "3-0", Values: map[string]interface{}{"row": []byte(`[6, 2]`)}},
	})
	assert.Equal(t, 1, rejected)
	require.Len(t, rows, 2)
	assert.Equal(t, []any{json.Number("5"), json.Number("1.25")}, rows[0])
	assert.Equal(t, []any{json.Number("6"), json.Number("2")}, rows[1])
}

func TestEncodeRecords(t *testing.T) {
	msgs, err := EncodeRecords("1min", []model.Record{
		{Key: 60000, Values: map[string]float64{"close": 3, "rsi_14": math.NaN()}},
	})
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.JSONEq(t,
		`{"interval":"1min","record":{"key":60000,"values":{"close":3,"rsi_14":null}}}`,
		msgs[0])

	var back RecordMessage
	require.NoError(t, json.Unmarshal([]byte(msgs[0]), &back))
	assert.Equal(t, int64(60000), back.Record.Key)
	assert.True(t, math.IsNaN(back.Record.Values["rsi_14"]))
}
