package model

import (
	"encoding/json"
	"math"
	"sort"
)

// Record is one row projected through a field mapping. Key is the row key
// (bucket start for aggregated rows) in epoch milliseconds.
type Record struct {
	Key    int64                `json:"key"`
	Values map[string]float64   `json:"values"`
	Lists  map[string][]float64 `json:"lists,omitempty"`
}

// Names returns the value field names in lexical order.
func (r Record) Names() []string {
	names := make([]string, 0, len(r.Values))
	for n := range r.Values {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

type recordJSON struct {
	Key    int64                 `json:"key"`
	Values map[string]*float64   `json:"values"`
	Lists  map[string][]*float64 `json:"lists,omitempty"`
}

// MarshalJSON encodes missing (NaN) values as null.
func (r Record) MarshalJSON() ([]byte, error) {
	out := recordJSON{Key: r.Key, Values: make(map[string]*float64, len(r.Values))}
	for k, v := range r.Values {
		out.Values[k] = nullable(v)
	}
	if len(r.Lists) > 0 {
		out.Lists = make(map[string][]*float64, len(r.Lists))
		for k, l := range r.Lists {
			out.Lists[k] = nullableSlice(l)
		}
	}
	return json.Marshal(out)
}

// UnmarshalJSON decodes null values back to NaN.
func (r *Record) UnmarshalJSON(data []byte) error {
	var in recordJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	r.Key = in.Key
	r.Values = make(map[string]float64, len(in.Values))
	for k, v := range in.Values {
		r.Values[k] = fromNullable(v)
	}
	r.Lists = nil
	if len(in.Lists) > 0 {
		r.Lists = make(map[string][]float64, len(in.Lists))
		for k, l := range in.Lists {
			r.Lists[k] = fromNullableSlice(l)
		}
	}
	return nil
}

func nullable(v float64) *float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}

func nullableSlice(vs []float64) []*float64 {
	out := make([]*float64, len(vs))
	for i, v := range vs {
		out[i] = nullable(v)
	}
	return out
}

func fromNullable(p *float64) float64 {
	if p == nil {
		return math.NaN()
	}
	return *p
}

func fromNullableSlice(ps []*float64) []float64 {
	out := make([]float64, len(ps))
	for i, p := range ps {
		out[i] = fromNullable(p)
	}
	return out
}
