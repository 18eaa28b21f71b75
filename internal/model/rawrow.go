package model

import "encoding/json"

// RawRow is a committed table row as persisted and replayed: the key and the
// declared column values (column 0 mirrors the key).
type RawRow struct {
	Key    int64     `json:"key"`
	Values []float64 `json:"values"`
}

// EncodeValues renders values as a JSON array with null for NaN.
func EncodeValues(values []float64) ([]byte, error) {
	return json.Marshal(nullableSlice(values))
}

// DecodeValues parses a JSON array produced by EncodeValues.
func DecodeValues(data []byte) ([]float64, error) {
	var ps []*float64
	if err := json.Unmarshal(data, &ps); err != nil {
		return nil, err
	}
	return fromNullableSlice(ps), nil
}

// Tuple converts the row back into an ingestion tuple.
func (r RawRow) Tuple() []any {
	out := make([]any, len(r.Values))
	out[0] = r.Key
	for i := 1; i < len(r.Values); i++ {
		out[i] = r.Values[i]
	}
	return out
}
