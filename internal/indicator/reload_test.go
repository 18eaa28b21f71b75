package indicator

import (
	"errors"
	"math"
	"strings"
	"sync"
	"testing"

	"github.com/AnyChart/AnyChart-sub039/internal/table"
)

func TestValidateConfigs(t *testing.T) {
	cases := []struct {
		name    string
		cfgs    []Config
		wantErr string
	}{
		{"valid", []Config{{Type: "SMA", Period: 20}, {Type: "rsi", Period: 14}, {Type: "obv"}}, ""},
		{"alias", []Config{{Type: "smma", Period: 5}, {Type: "bollinger", Period: 20}}, ""},
		{"unknown type", []Config{{Type: "KAMA", Period: 10}}, "unknown indicator type"},
		{"zero period", []Config{{Type: "EMA"}}, "invalid period"},
		{"bad macd", []Config{{Type: "MACD", Fast: 30, Slow: 10}}, "invalid MACD"},
		{"duplicate", []Config{{Type: "SMA", Period: 5}, {Type: "SMA", Period: 5, Source: "high"}}, "duplicate"},
		{"output collision", []Config{{Type: "MACD", Name: "m"}, {Type: "EMA", Period: 3, Name: "m_signal"}}, "duplicate"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := ValidateConfigs(tc.cfgs)
			if tc.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tc.wantErr) {
				t.Fatalf("expected error containing %q, got %v", tc.wantErr, err)
			}
		})
	}
}

func TestConfigNormalized(t *testing.T) {
	c := Config{Type: " ema ", Period: 9}.Normalized()
	if c.Type != TypeEMA || c.Name != "ema_9" || c.Source != "close" {
		t.Fatalf("unexpected normalization %+v", c)
	}
	m := Config{Type: "macd"}.Normalized()
	if m.Name != "macd" || m.Fast != 12 || m.Slow != 26 || m.Signal != 9 {
		t.Fatalf("unexpected MACD defaults %+v", m)
	}
	got := Config{Type: "aroon", Period: 25}.Outputs()
	if strings.Join(got, ",") != "aroon_25_up,aroon_25_down,aroon_25_osc" {
		t.Fatalf("unexpected outputs %v", got)
	}
}

func TestParseConfigs(t *testing.T) {
	cfgs, err := ParseConfigs("sma:20:close, rsi:14 ,obv")
	if err != nil {
		t.Fatal(err)
	}
	if len(cfgs) != 3 || cfgs[0].Period != 20 || cfgs[0].Source != "close" || cfgs[2].Type != "obv" {
		t.Fatalf("unexpected configs %+v", cfgs)
	}
	for _, bad := range []string{"sma:x", "sma:1:close:extra", "nope:3"} {
		if _, err := ParseConfigs(bad); err == nil {
			t.Errorf("%q should fail", bad)
		}
	}
}

func TestRegistry_ReloadPreservesUnchanged(t *testing.T) {
	tbl, m := ohlcvTable(t, 30)
	reg := NewRegistry(tbl, m, nil)
	if err := reg.Apply([]Config{{Type: "SMA", Period: 5}, {Type: "RSI", Period: 14}}); err != nil {
		t.Fatal(err)
	}
	before := mainColumn(t, tbl, m, "sma_5")

	preserved, created, err := reg.Reload([]Config{{Type: "SMA", Period: 5}, {Type: "EMA", Period: 3}})
	if err != nil {
		t.Fatal(err)
	}
	if preserved != 1 || created != 1 {
		t.Fatalf("expected 1 preserved / 1 created, got %d / %d", preserved, created)
	}
	if m.Has("rsi_14") {
		t.Fatal("removed indicator should be unmapped")
	}
	if !m.Has("ema_3") {
		t.Fatal("new indicator should be mapped")
	}
	after := mainColumn(t, tbl, m, "sma_5")
	for i := range before {
		assertClose(t, "sma_5", after[i], before[i], 0)
	}
	ema := mainColumn(t, tbl, m, "ema_3")
	if math.IsNaN(ema[29]) {
		t.Fatal("new indicator should be computed over existing rows")
	}

	got := reg.Outputs()
	if strings.Join(got, ",") != "sma_5,ema_3" {
		t.Fatalf("unexpected outputs %v", got)
	}
}

func TestRegistry_ReloadChangedConfigReattaches(t *testing.T) {
	tbl, m := ohlcvTable(t, 10)
	reg := NewRegistry(tbl, m, nil)
	if err := reg.Apply([]Config{{Name: "fast", Type: "SMA", Period: 2}}); err != nil {
		t.Fatal(err)
	}
	preserved, created, err := reg.Reload([]Config{{Name: "fast", Type: "SMA", Period: 3}})
	if err != nil || preserved != 0 || created != 1 {
		t.Fatalf("unexpected reload result %d %d %v", preserved, created, err)
	}
	got := mainColumn(t, tbl, m, "fast")
	assertClose(t, "fast[1]", got[1], nan, 0)
	if c := reg.Configs(); len(c) != 1 || c[0].Period != 3 {
		t.Fatalf("unexpected configs %+v", c)
	}
}

func TestRegistry_InvalidReloadKeepsState(t *testing.T) {
	tbl, m := ohlcvTable(t, 10)
	reg := NewRegistry(tbl, m, nil)
	if err := reg.Apply([]Config{{Type: "SMA", Period: 2}}); err != nil {
		t.Fatal(err)
	}
	if _, _, err := reg.Reload([]Config{{Type: "SMA", Period: -1}}); err == nil {
		t.Fatal("invalid reload should fail")
	}
	if !m.Has("sma_2") {
		t.Fatal("active indicators must survive an invalid reload")
	}
	if err := reg.Apply([]Config{{Type: "SMA", Period: 2}}); err == nil {
		t.Fatal("applying an attached indicator twice should fail")
	}
}

func TestSetup_OutputNamedLikeFieldFails(t *testing.T) {
	tbl, m := ohlcvTable(t, 5)
	if _, err := SetupSMA(tbl, m, "close", "close", 2); !errors.Is(err, table.ErrDuplicateField) {
		t.Fatalf("expected ErrDuplicateField, got %v", err)
	}
	if got := strings.Join(m.Fields(), ","); got != "close,high,low,open,volume" {
		t.Fatalf("failed setup changed the mapping: %s", got)
	}
	closes := mainColumn(t, tbl, m, "close")
	if math.IsNaN(closes[4]) {
		t.Fatal("raw close column must survive a failed setup")
	}
}

func TestRegistry_RejectsMappedFieldNames(t *testing.T) {
	tbl, m := ohlcvTable(t, 5)
	closes := mainColumn(t, tbl, m, "close")
	reg := NewRegistry(tbl, m, nil)

	err := reg.Apply([]Config{{Name: "close", Type: "SMA", Period: 2}})
	if !errors.Is(err, table.ErrDuplicateField) {
		t.Fatalf("expected ErrDuplicateField, got %v", err)
	}
	if err := reg.Apply([]Config{{Type: "SMA", Period: 2}}); err != nil {
		t.Fatal(err)
	}
	_, _, err = reg.Reload([]Config{{Name: "high", Type: "EMA", Period: 3}})
	if !errors.Is(err, table.ErrDuplicateField) {
		t.Fatalf("expected ErrDuplicateField on reload, got %v", err)
	}
	if !m.Has("sma_2") {
		t.Fatal("a rejected reload must keep the active indicators")
	}

	after := mainColumn(t, tbl, m, "close")
	for i := range closes {
		assertClose(t, "close", after[i], closes[i], 0)
	}
	if got := strings.Join(m.Fields(), ","); got != "close,high,low,open,volume,sma_2" {
		t.Fatalf("unexpected fields %s", got)
	}
}

func TestRegistry_ReloadWhileReading(t *testing.T) {
	tbl, m := ohlcvTable(t, 20)
	reg := NewRegistry(tbl, m, nil)
	if err := reg.Apply([]Config{{Type: "SMA", Period: 3}}); err != nil {
		t.Fatal(err)
	}
	s, err := tbl.MainStorage()
	if err != nil {
		t.Fatal(err)
	}
	row := s.At(s.Len() - 1)

	var wg sync.WaitGroup
	wg.Add(3)
	go func() {
		defer wg.Done()
		sets := [][]Config{
			{{Type: "SMA", Period: 3}, {Type: "EMA", Period: 4}},
			{{Type: "RSI", Period: 5}},
		}
		for i := 0; i < 50; i++ {
			if _, _, err := reg.Reload(sets[i%2]); err != nil {
				t.Error(err)
				return
			}
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 50; i++ {
			if err := tbl.AddData([][]any{{100 + i, 1, 2, 0.5, 1.5, 10}}); err != nil {
				t.Error(err)
				return
			}
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 200; i++ {
			_ = m.Fields()
			_ = m.Has("ema_4")
			_ = m.Value(row, "sma_3")
			_ = m.Record(row)
		}
	}()
	wg.Wait()

	if _, err := tbl.Records(m, nil, 0, math.MaxInt64); err != nil {
		t.Fatal(err)
	}
}
