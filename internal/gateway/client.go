package gateway

import (
	"encoding/json"
	"log"
	"math"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait       = 10 * time.Second
	pongWait        = 60 * time.Second
	pingPeriod      = 30 * time.Second
	defaultSnapshot = 500
)

// Client represents a single WebSocket peer.
type Client struct {
	conn *websocket.Conn
	send chan []byte
	hub  *Hub

	subMu sync.RWMutex
	subs  map[string]bool
}

func newClient(h *Hub, conn *websocket.Conn) *Client {
	return &Client{
		conn: conn,
		send: make(chan []byte, 256),
		hub:  h,
		subs: make(map[string]bool),
	}
}

func (c *Client) subscribe(channel string) {
	c.subMu.Lock()
	c.subs[channel] = true
	c.subMu.Unlock()
}

func (c *Client) unsubscribe(channel string) {
	c.subMu.Lock()
	delete(c.subs, channel)
	c.subMu.Unlock()
}

func (c *Client) subscribed(channel string) bool {
	c.subMu.RLock()
	defer c.subMu.RUnlock()
	return c.subs[channel]
}

// queue hands msg to the write pump unless the client is gone or its queue
// is full.
func (c *Client) queue(msg []byte) bool {
	c.hub.mu.RLock()
	defer c.hub.mu.RUnlock()
	if !c.hub.clients[c] {
		return false
	}
	select {
	case c.send <- msg:
		return true
	default:
		return false
	}
}

// SendJSON marshals v and queues it for the client.
func SendJSON(c *Client, v interface{}) {
	data, err := json.Marshal(v)
	if err != nil {
		log.Printf("[gateway] marshal %T: %v", v, err)
		return
	}
	c.queue(data)
}

// SendError queues an ERROR message.
func SendError(c *Client, reqID, msg string) {
	SendJSON(c, ErrorResponse{Type: "ERROR", ReqID: reqID, Message: msg})
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Client) readPump() {
	defer func() {
		c.hub.RemoveClient(c)
		c.conn.Close()
		log.Println("[gateway] ws client disconnected")
	}()

	c.conn.SetReadLimit(4096)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, msg, err := c.conn.ReadMessage()
		if err != nil {
			return
		}

		var base struct {
			Type string `json:"type"`
		}
		if json.Unmarshal(msg, &base) != nil {
			SendError(c, "", "invalid message")
			continue
		}

		switch base.Type {
		case "SUBSCRIBE":
			var sub SubscribeMsg
			if err := json.Unmarshal(msg, &sub); err != nil {
				SendError(c, "", "invalid SUBSCRIBE: "+err.Error())
				continue
			}
			c.handleSubscribe(sub)

		case "UNSUBSCRIBE":
			var unsub UnsubscribeMsg
			if err := json.Unmarshal(msg, &unsub); err != nil {
				SendError(c, "", "invalid UNSUBSCRIBE: "+err.Error())
				continue
			}
			c.unsubscribe(channelOf(unsub.Interval))

		default:
			SendError(c, "", "unknown message type "+base.Type)
		}
	}
}

func (c *Client) handleSubscribe(msg SubscribeMsg) {
	if msg.Interval != "" && !c.knownInterval(msg.Interval) {
		SendError(c, msg.ReqID, "unknown interval "+msg.Interval)
		return
	}
	channel := channelOf(msg.Interval)
	c.subscribe(channel)

	if msg.AfterSeq > 0 {
		if c.replay(channel, msg.AfterSeq) {
			return
		}
	}
	c.sendSnapshot(msg)
}

func (c *Client) knownInterval(interval string) bool {
	for _, iv := range c.hub.src.Intervals() {
		if iv == interval {
			return true
		}
	}
	return false
}

// replay sends the envelopes after seq. It reports false when the replay
// buffer no longer holds them all and a snapshot is needed instead.
func (c *Client) replay(channel string, afterSeq int64) bool {
	c.hub.mu.RLock()
	rb, ok := c.hub.replayBufs[channel]
	current := c.hub.seqs[channel]
	c.hub.mu.RUnlock()
	if afterSeq >= current {
		return true
	}
	if !ok || rb.Oldest() > afterSeq+1 {
		return false
	}
	for _, env := range rb.Range(afterSeq+1, current) {
		c.queue(env)
	}
	return true
}

func (c *Client) sendSnapshot(msg SubscribeMsg) {
	channel := channelOf(msg.Interval)
	seq := c.hub.ChannelSeq(channel)
	records, err := c.hub.src.Records(msg.Interval, math.MinInt64, math.MaxInt64)
	if err != nil {
		SendError(c, msg.ReqID, "snapshot failed: "+err.Error())
		return
	}
	limit := msg.Limit
	if limit <= 0 {
		limit = defaultSnapshot
	}
	if len(records) > limit {
		records = records[len(records)-limit:]
	}
	SendJSON(c, SnapshotResponse{
		Type:     "SNAPSHOT",
		ReqID:    msg.ReqID,
		Interval: msg.Interval,
		Seq:      seq,
		Records:  records,
	})
}
