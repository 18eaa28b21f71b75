package gateway

import (
	"encoding/json"
	"log"
	"math"
	"net/http"
	"strconv"

	"github.com/gorilla/websocket"

	"github.com/AnyChart/AnyChart-sub039/internal/indicator"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// SetCORS sets CORS headers for REST endpoints.
func SetCORS(w http.ResponseWriter) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// RegisterRoutes registers the websocket endpoint and REST queries on mux.
func RegisterRoutes(mux *http.ServeMux, hub *Hub) {
	src := hub.src

	validInterval := func(iv string) bool {
		if iv == "" {
			return true
		}
		for _, known := range src.Intervals() {
			if known == iv {
				return true
			}
		}
		return false
	}

	// WebSocket endpoint: /ws?interval=5min
	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		interval := r.URL.Query().Get("interval")
		if !validInterval(interval) {
			writeError(w, http.StatusBadRequest, "unknown interval "+interval)
			return
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Printf("[gateway] ws upgrade error: %v", err)
			return
		}
		hub.HandleConn(conn, interval)
	})

	// REST: mapped field names
	mux.HandleFunc("/api/fields", func(w http.ResponseWriter, r *http.Request) {
		SetCORS(w)
		writeJSON(w, http.StatusOK, src.Fields())
	})

	// REST: configured intervals
	mux.HandleFunc("/api/intervals", func(w http.ResponseWriter, r *http.Request) {
		SetCORS(w)
		writeJSON(w, http.StatusOK, src.Intervals())
	})

	// REST: /api/rows?interval=5min&from=<ms>&to=<ms>
	mux.HandleFunc("/api/rows", func(w http.ResponseWriter, r *http.Request) {
		SetCORS(w)
		q := r.URL.Query()
		interval := q.Get("interval")
		if !validInterval(interval) {
			writeError(w, http.StatusBadRequest, "unknown interval "+interval)
			return
		}
		from, err := parseBound(q.Get("from"), math.MinInt64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid from: "+err.Error())
			return
		}
		to, err := parseBound(q.Get("to"), math.MaxInt64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid to: "+err.Error())
			return
		}
		records, err := src.Records(interval, from, to)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, RowsResponse{Interval: interval, Records: records})
	})

	// REST: /api/missed?interval=5min&from_seq=10&to_seq=20 returns buffered envelopes
	mux.HandleFunc("/api/missed", func(w http.ResponseWriter, r *http.Request) {
		SetCORS(w)
		q := r.URL.Query()
		channel := channelOf(q.Get("interval"))
		fromSeq, err1 := strconv.ParseInt(q.Get("from_seq"), 10, 64)
		toSeq, err2 := strconv.ParseInt(q.Get("to_seq"), 10, 64)
		if err1 != nil || err2 != nil || fromSeq > toSeq {
			writeError(w, http.StatusBadRequest, "from_seq and to_seq are required")
			return
		}
		envs := hub.GetReplayRange(channel, fromSeq, toSeq)
		out := make([]json.RawMessage, len(envs))
		for i, e := range envs {
			out[i] = e
		}
		writeJSON(w, http.StatusOK, out)
	})

	// REST: GET/POST /api/indicators
	mux.HandleFunc("/api/indicators", func(w http.ResponseWriter, r *http.Request) {
		SetCORS(w)
		switch r.Method {
		case http.MethodOptions:
			w.WriteHeader(http.StatusOK)
		case http.MethodGet:
			writeJSON(w, http.StatusOK, IndicatorsResponse{Indicators: src.Indicators()})
		case http.MethodPost:
			var req []indicator.Config
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				writeError(w, http.StatusBadRequest, "invalid JSON")
				return
			}
			preserved, created, err := src.ReloadIndicators(req)
			if err != nil {
				writeError(w, http.StatusUnprocessableEntity, err.Error())
				return
			}
			log.Printf("[gateway] indicators reloaded: %d preserved, %d created", preserved, created)
			writeJSON(w, http.StatusOK, IndicatorsResponse{
				Indicators: src.Indicators(),
				Preserved:  preserved,
				Created:    created,
			})
		default:
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		}
	})
}

func parseBound(s string, def int64) (int64, error) {
	if s == "" {
		return def, nil
	}
	return strconv.ParseInt(s, 10, 64)
}
