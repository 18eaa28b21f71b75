package model

import (
	"encoding/json"
	"math"
	"strings"
	"testing"
)

func TestRecord_NaNEncodesAsNull(t *testing.T) {
	r := Record{
		Key:    1000,
		Values: map[string]float64{"close": 10.5, "sma": math.NaN()},
		Lists:  map[string][]float64{"ticks": {1, math.NaN()}},
	}
	data, err := json.Marshal(r)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	s := string(data)
	if !strings.Contains(s, `"sma":null`) || !strings.Contains(s, `"ticks":[1,null]`) {
		t.Fatalf("unexpected encoding %s", s)
	}

	var back Record
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if back.Key != 1000 || back.Values["close"] != 10.5 || !math.IsNaN(back.Values["sma"]) {
		t.Fatalf("unexpected decode %+v", back)
	}
	if !math.IsNaN(back.Lists["ticks"][1]) {
		t.Fatal("null list element should decode to NaN")
	}
}

func TestRecord_Names(t *testing.T) {
	r := Record{Values: map[string]float64{"low": 1, "close": 2, "high": 3}}
	got := strings.Join(r.Names(), ",")
	if got != "close,high,low" {
		t.Fatalf("got %s", got)
	}
}

func TestRawRow_Tuple(t *testing.T) {
	vals, err := DecodeValues([]byte(`[5,1.5,null]`))
	if err != nil {
		t.Fatal(err)
	}
	tuple := RawRow{Key: 5, Values: vals}.Tuple()
	if tuple[0] != int64(5) || tuple[1] != 1.5 || !math.IsNaN(tuple[2].(float64)) {
		t.Fatalf("unexpected tuple %v", tuple)
	}
	enc, _ := EncodeValues(vals)
	if string(enc) != `[5,1.5,null]` {
		t.Fatalf("unexpected encoding %s", enc)
	}
}
