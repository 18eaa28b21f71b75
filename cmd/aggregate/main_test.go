package main

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AnyChart/AnyChart-sub039/internal/model"
)

const sample = `key,open,high,low,close,volume
0,1,3,0.5,1,10
30000,1,3,0.5,2,5
60000,2,2.5,1.5,4,7
`

func TestRun_CSVAggregated(t *testing.T) {
	var out bytes.Buffer
	err := run([]string{"-skip-header", "-interval", "1min", "-indicators", "sma:2", "-format", "csv"},
		strings.NewReader(sample), &out)
	require.NoError(t, err)

	assert.Equal(t, strings.Join([]string{
		"key,close,high,low,open,volume,sma_2",
		"0,2,3,0.5,1,15,",
		"60000,4,2.5,1.5,2,7,3",
		"",
	}, "\n"), out.String())
}

func TestRun_JSONRaw(t *testing.T) {
	var out bytes.Buffer
	err := run([]string{"-skip-header", "-fields", "close=4"}, strings.NewReader(sample), &out)
	require.NoError(t, err)

	var records []model.Record
	require.NoError(t, json.Unmarshal(out.Bytes(), &records))
	require.Len(t, records, 3)
	assert.Equal(t, int64(30000), records[1].Key)
	assert.Equal(t, map[string]float64{"close": 2}, records[1].Values)
}

func TestRun_DatePattern(t *testing.T) {
	var out bytes.Buffer
	in := "2024-01-02 10:00;1;1;1;5;1\n2024-01-02 10:30;1;1;1;6;1\n"
	err := run([]string{"-delimiter", ";", "-pattern", "yyyy-MM-dd HH:mm", "-interval", "1h", "-fields", "close=4"},
		strings.NewReader(in), &out)
	require.NoError(t, err)

	var records []model.Record
	require.NoError(t, json.Unmarshal(out.Bytes(), &records))
	require.Len(t, records, 1)
	assert.Equal(t, int64(1704189600000), records[0].Key)
	assert.Equal(t, 6.0, records[0].Values["close"])
}

func TestRun_Errors(t *testing.T) {
	cases := map[string][]string{
		"bad format":    {"-format", "xml"},
		"bad fields":    {"-fields", "close"},
		"bad interval":  {"-interval", "5parsecs"},
		"bad indicator": {"-indicators", "sma:x"},
		"bad delimiter": {"-delimiter", ";;"},
	}
	for name, args := range cases {
		t.Run(name, func(t *testing.T) {
			err := run(append([]string{"-skip-header"}, args...), strings.NewReader(sample), &bytes.Buffer{})
			assert.Error(t, err)
		})
	}
}

func TestParseFields(t *testing.T) {
	got, err := parseFields(" open=1, close = 4 ,")
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"open": 1, "close": 4}, got)

	_, err = parseFields("")
	assert.Error(t, err)
	_, err = parseFields("open=x")
	assert.Error(t, err)
}
