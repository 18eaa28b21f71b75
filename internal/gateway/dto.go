package gateway

import (
	"github.com/AnyChart/AnyChart-sub039/internal/indicator"
	"github.com/AnyChart/AnyChart-sub039/internal/model"
)

// ── WS Protocol Message Types ──

// SubscribeMsg is the client → server SUBSCRIBE request.
type SubscribeMsg struct {
	Type     string `json:"type"`     // "SUBSCRIBE"
	ReqID    string `json:"reqId"`    // client-generated request ID
	Interval string `json:"interval"` // e.g. "5min"; empty subscribes to raw rows
	// AfterSeq, when positive, asks for buffered envelopes after that
	// channel seq instead of a snapshot.
	AfterSeq int64 `json:"afterSeq,omitempty"`
	// Limit caps the snapshot to the newest records. Defaults to 500.
	Limit int `json:"limit,omitempty"`
}

// UnsubscribeMsg is the client → server UNSUBSCRIBE request.
type UnsubscribeMsg struct {
	Type     string `json:"type"` // "UNSUBSCRIBE"
	ReqID    string `json:"reqId"`
	Interval string `json:"interval"`
}

// SnapshotResponse is the server → client SNAPSHOT with the current records.
type SnapshotResponse struct {
	Type     string         `json:"type"` // "SNAPSHOT"
	ReqID    string         `json:"reqId"`
	Interval string         `json:"interval"`
	Seq      int64          `json:"seq"`
	Records  []model.Record `json:"records"`
}

// ErrorResponse is sent for rejected requests.
type ErrorResponse struct {
	Type    string `json:"type"` // "ERROR"
	ReqID   string `json:"reqId,omitempty"`
	Message string `json:"message"`
}

// IndicatorsResponse is the REST response type for /api/indicators.
type IndicatorsResponse struct {
	Indicators []indicator.Config `json:"indicators"`
	Preserved  int                `json:"preserved,omitempty"`
	Created    int                `json:"created,omitempty"`
}

// RowsResponse is the REST response type for /api/rows.
type RowsResponse struct {
	Interval string         `json:"interval"`
	Records  []model.Record `json:"records"`
}
