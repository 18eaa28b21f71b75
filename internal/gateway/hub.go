// Package gateway streams aggregated table records to websocket clients and
// serves read-only HTTP queries over the table.
package gateway

import (
	"encoding/json"
	"log"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/AnyChart/AnyChart-sub039/internal/indicator"
	"github.com/AnyChart/AnyChart-sub039/internal/model"
)

// RawChannel is the channel name used for unaggregated rows.
const RawChannel = "raw"

// Source is the table-side view the gateway serves.
type Source interface {
	// Records returns records with from <= key <= to. An empty interval
	// selects the raw rows.
	Records(interval string, from, to int64) ([]model.Record, error)
	Fields() []string
	Intervals() []string
	Indicators() []indicator.Config
	ReloadIndicators(cfgs []indicator.Config) (preserved, created int, err error)
}

// HubOption configures a Hub.
type HubOption func(*Hub)

// WithClientGauge reports the client count after every connect and disconnect.
func WithClientGauge(fn func(n int)) HubOption { return func(h *Hub) { h.onClients = fn } }

// WithDropCounter is called whenever a slow client misses an envelope.
func WithDropCounter(fn func()) HubOption { return func(h *Hub) { h.onDrop = fn } }

// WithReplayCapacity sets the per-channel replay buffer size.
func WithReplayCapacity(n int) HubOption { return func(h *Hub) { h.replayCap = n } }

// Hub manages websocket clients and fans record updates out to them.
type Hub struct {
	src Source

	mu      sync.RWMutex
	clients map[*Client]bool

	// Per-channel monotonic sequence numbers for gap detection
	seqs       map[string]int64
	replayBufs map[string]*ReplayBuffer
	replayCap  int

	onClients func(int)
	onDrop    func()
}

// NewHub creates a Hub serving snapshots from src.
func NewHub(src Source, opts ...HubOption) *Hub {
	h := &Hub{
		src:        src,
		clients:    make(map[*Client]bool),
		seqs:       make(map[string]int64),
		replayBufs: make(map[string]*ReplayBuffer),
		replayCap:  500,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func channelOf(interval string) string {
	if interval == "" {
		return RawChannel
	}
	return interval
}

// buildEnvelope renders {"type":"RECORDS","channel":...,"records":...,"ts":...,"seq":N}.
// records must already be valid JSON.
func buildEnvelope(channel string, records []byte, now time.Time, seq int64) []byte {
	buf := make([]byte, 0, len(channel)+len(records)+128)
	buf = append(buf, `{"type":"RECORDS","channel":`...)
	buf = strconv.AppendQuote(buf, channel)
	buf = append(buf, `,"records":`...)
	buf = append(buf, records...)
	buf = append(buf, `,"ts":"`...)
	buf = now.AppendFormat(buf, time.RFC3339Nano)
	buf = append(buf, `","seq":`...)
	buf = strconv.AppendInt(buf, seq, 10)
	buf = append(buf, '}')
	return buf
}

// Broadcast sends records on the interval's channel to every subscribed
// client. Slow clients whose send queue is full miss the envelope and can
// backfill it by seq.
func (h *Hub) Broadcast(interval string, records []model.Record) error {
	if len(records) == 0 {
		return nil
	}
	data, err := json.Marshal(records)
	if err != nil {
		return err
	}
	channel := channelOf(interval)

	h.mu.Lock()
	h.seqs[channel]++
	seq := h.seqs[channel]
	rb, ok := h.replayBufs[channel]
	if !ok {
		rb = NewReplayBuffer(h.replayCap)
		h.replayBufs[channel] = rb
	}
	h.mu.Unlock()

	buf := buildEnvelope(channel, data, time.Now().UTC(), seq)
	rb.Push(seq, buf)

	h.mu.RLock()
	defer h.mu.RUnlock()
	for client := range h.clients {
		if !client.subscribed(channel) {
			continue
		}
		select {
		case client.send <- buf:
		default:
			if h.onDrop != nil {
				h.onDrop()
			}
		}
	}
	return nil
}

// HandleConn registers an upgraded connection, optionally pre-subscribed to
// one interval.
func (h *Hub) HandleConn(conn *websocket.Conn, interval string) {
	client := newClient(h, conn)
	if interval != "" {
		client.subscribe(channelOf(interval))
	}

	h.mu.Lock()
	h.clients[client] = true
	count := len(h.clients)
	h.mu.Unlock()
	h.reportClients(count)

	log.Printf("[gateway] ws client connected (%d total)", count)

	if interval != "" {
		go client.sendSnapshot(SubscribeMsg{Interval: interval})
	}
	go client.writePump()
	go client.readPump()
}

// RemoveClient removes a client from the hub.
func (h *Hub) RemoveClient(c *Client) {
	h.mu.Lock()
	if !h.clients[c] {
		h.mu.Unlock()
		return
	}
	delete(h.clients, c)
	count := len(h.clients)
	close(c.send)
	h.mu.Unlock()
	h.reportClients(count)
}

func (h *Hub) reportClients(n int) {
	if h.onClients != nil {
		h.onClients(n)
	}
}

// GetReplayRange returns buffered envelopes of a channel in [fromSeq, toSeq].
func (h *Hub) GetReplayRange(channel string, fromSeq, toSeq int64) [][]byte {
	h.mu.RLock()
	rb, ok := h.replayBufs[channel]
	h.mu.RUnlock()
	if !ok {
		return nil
	}
	return rb.Range(fromSeq, toSeq)
}

// ChannelSeq returns the current sequence number of a channel.
func (h *Hub) ChannelSeq(channel string) int64 {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.seqs[channel]
}

// ClientCount returns the number of connected WS clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
