package gateway

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AnyChart/AnyChart-sub039/internal/indicator"
	"github.com/AnyChart/AnyChart-sub039/internal/model"
)

type fakeSource struct {
	mu      sync.Mutex
	records map[string][]model.Record
	configs []indicator.Config
	reloads int
}

func newFakeSource() *fakeSource {
	return &fakeSource{records: map[string][]model.Record{
		"":     {rec(1, 10), rec(2, 11), rec(61, 12)},
		"1min": {rec(0, 11), rec(60, 12)},
	}}
}

func rec(key int64, close float64) model.Record {
	return model.Record{Key: key, Values: map[string]float64{"close": close}}
}

func (f *fakeSource) Records(interval string, from, to int64) ([]model.Record, error) {
	var out []model.Record
	for _, r := range f.records[interval] {
		if r.Key >= from && r.Key <= to {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *fakeSource) Fields() []string    { return []string{"close"} }
func (f *fakeSource) Intervals() []string { return []string{"1min", "5min"} }

func (f *fakeSource) Indicators() []indicator.Config {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.configs
}

func (f *fakeSource) ReloadIndicators(cfgs []indicator.Config) (int, int, error) {
	if err := indicator.ValidateConfigs(cfgs); err != nil {
		return 0, 0, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.reloads++; f.reloads > 5 {
		return 0, 0, errors.New("too many reloads")
	}
	f.configs = cfgs
	return 0, len(cfgs), nil
}

func newTestServer(t *testing.T, opts ...HubOption) (*Hub, *httptest.Server) {
	t.Helper()
	hub := NewHub(newFakeSource(), opts...)
	mux := http.NewServeMux()
	RegisterRoutes(mux, hub)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return hub, srv
}

func dial(t *testing.T, srv *httptest.Server, query string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws" + query
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readJSON(t *testing.T, conn *websocket.Conn, v interface{}) {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, v), string(data))
}

type envelope struct {
	Type    string         `json:"type"`
	Channel string         `json:"channel"`
	Records []model.Record `json:"records"`
	TS      string         `json:"ts"`
	Seq     int64          `json:"seq"`
}

func TestBuildEnvelope(t *testing.T) {
	now := time.Date(2026, 2, 25, 10, 0, 1, 0, time.UTC)
	data, err := json.Marshal([]model.Record{rec(60000, 3)})
	require.NoError(t, err)

	var env envelope
	require.NoError(t, json.Unmarshal(buildEnvelope("5min", data, now, 42), &env))
	assert.Equal(t, "RECORDS", env.Type)
	assert.Equal(t, "5min", env.Channel)
	assert.Equal(t, int64(42), env.Seq)
	require.Len(t, env.Records, 1)
	assert.Equal(t, int64(60000), env.Records[0].Key)

	parsed, err := time.Parse(time.RFC3339Nano, env.TS)
	require.NoError(t, err)
	assert.True(t, parsed.Equal(now))
}

func TestWS_SnapshotThenBroadcast(t *testing.T) {
	var mu sync.Mutex
	var counts []int
	hub, srv := newTestServer(t, WithClientGauge(func(n int) {
		mu.Lock()
		counts = append(counts, n)
		mu.Unlock()
	}))
	conn := dial(t, srv, "?interval=1min")

	var snap SnapshotResponse
	readJSON(t, conn, &snap)
	assert.Equal(t, "SNAPSHOT", snap.Type)
	assert.Equal(t, "1min", snap.Interval)
	require.Len(t, snap.Records, 2)
	assert.Equal(t, 1, hub.ClientCount())

	require.NoError(t, hub.Broadcast("5min", []model.Record{rec(0, 1)}))
	require.NoError(t, hub.Broadcast("1min", []model.Record{rec(120, 13)}))

	var env envelope
	readJSON(t, conn, &env)
	assert.Equal(t, "1min", env.Channel)
	assert.Equal(t, int64(1), env.Seq)
	require.Len(t, env.Records, 1)
	assert.Equal(t, 13.0, env.Records[0].Values["close"])

	conn.Close()
	require.Eventually(t, func() bool { return hub.ClientCount() == 0 }, 2*time.Second, 10*time.Millisecond)
	mu.Lock()
	assert.Equal(t, []int{1, 0}, counts)
	mu.Unlock()
}

func TestWS_SubscribeReplaysAfterSeq(t *testing.T) {
	hub, srv := newTestServer(t)
	for i := int64(1); i <= 3; i++ {
		require.NoError(t, hub.Broadcast("1min", []model.Record{rec(i*60, float64(i))}))
	}

	conn := dial(t, srv, "")
	require.NoError(t, conn.WriteJSON(SubscribeMsg{Type: "SUBSCRIBE", ReqID: "r1", Interval: "1min", AfterSeq: 1}))

	for want := int64(2); want <= 3; want++ {
		var env envelope
		readJSON(t, conn, &env)
		assert.Equal(t, want, env.Seq)
	}
}

func TestWS_SubscribeErrors(t *testing.T) {
	_, srv := newTestServer(t)
	conn := dial(t, srv, "")

	require.NoError(t, conn.WriteJSON(SubscribeMsg{Type: "SUBSCRIBE", ReqID: "r2", Interval: "7sec"}))
	var resp ErrorResponse
	readJSON(t, conn, &resp)
	assert.Equal(t, "ERROR", resp.Type)
	assert.Equal(t, "r2", resp.ReqID)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"PING"}`)))
	readJSON(t, conn, &resp)
	assert.Contains(t, resp.Message, "unknown message type")
}

func TestWS_RejectsUnknownIntervalBeforeUpgrade(t *testing.T) {
	_, srv := newTestServer(t)
	resp, err := http.Get(srv.URL + "/ws?interval=7sec")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestRoutes_Rows(t *testing.T) {
	_, srv := newTestServer(t)

	resp, err := http.Get(srv.URL + "/api/rows?from=2&to=100")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var rows RowsResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&rows))
	require.Len(t, rows.Records, 2)
	assert.Equal(t, int64(2), rows.Records[0].Key)
	assert.Equal(t, int64(61), rows.Records[1].Key)

	bad, err := http.Get(srv.URL + "/api/rows?interval=1min&from=abc")
	require.NoError(t, err)
	bad.Body.Close()
	assert.Equal(t, http.StatusBadRequest, bad.StatusCode)
}

func TestRoutes_FieldsAndIntervals(t *testing.T) {
	_, srv := newTestServer(t)

	var fields, intervals []string
	for path, dst := range map[string]*[]string{"/api/fields": &fields, "/api/intervals": &intervals} {
		resp, err := http.Get(srv.URL + path)
		require.NoError(t, err)
		require.NoError(t, json.NewDecoder(resp.Body).Decode(dst))
		resp.Body.Close()
	}
	assert.Equal(t, []string{"close"}, fields)
	assert.Equal(t, []string{"1min", "5min"}, intervals)
}

func TestRoutes_Indicators(t *testing.T) {
	_, srv := newTestServer(t)

	resp, err := http.Post(srv.URL+"/api/indicators", "application/json",
		strings.NewReader(`[{"type":"sma","period":3}]`))
	require.NoError(t, err)
	var out IndicatorsResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 1, out.Created)
	require.Len(t, out.Indicators, 1)

	resp, err = http.Post(srv.URL+"/api/indicators", "application/json",
		strings.NewReader(`[{"type":"nope","period":3}]`))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
}

func TestRoutes_Missed(t *testing.T) {
	hub, srv := newTestServer(t)
	for i := int64(1); i <= 4; i++ {
		require.NoError(t, hub.Broadcast("1min", []model.Record{rec(i, 1)}))
	}

	resp, err := http.Get(srv.URL + "/api/missed?interval=1min&from_seq=2&to_seq=3")
	require.NoError(t, err)
	defer resp.Body.Close()
	var envs []envelope
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&envs))
	require.Len(t, envs, 2)
	assert.Equal(t, int64(2), envs[0].Seq)
	assert.Equal(t, int64(3), envs[1].Seq)
}
