// Package pricefeed owns the upstream market websocket. One Feed holds
// one connection; callers only ever read the cached latest sample.
package pricefeed

import (
	"encoding/json"
	"errors"
	"math"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

var ErrNoSample = errors.New("price_unavailable")

const (
	connectTimeout = 5 * time.Second
	reconnectDelay = 5 * time.Second
)

type State string

const (
	StateClosed     State = "closed"
	StateConnecting State = "connecting"
	StateConnected  State = "connected"
	StateError      State = "error"
)

type Diag struct {
	Feed         string     `json:"feed"`
	Coin         string     `json:"coin"`
	State        State      `json:"state"`
	LastError    string     `json:"last_error,omitempty"`
	LastEventAt  *time.Time `json:"last_event_at,omitempty"`
	LastUpdateAt *time.Time `json:"last_update_at,omitempty"`
}

type Feed struct {
	url  string
	mode string
	coin string

	mu           sync.Mutex
	state        State
	conn         *websocket.Conn
	connecting   bool
	started      bool
	latestPrice  float64
	lastUpdateAt time.Time
	lastEventAt  time.Time
	lastErr      string
	reconnect    *time.Timer
}

func New(url, mode, coin string) *Feed {
	return &Feed{url: url, mode: mode, coin: coin, state: StateClosed}
}

// Price returns the most recent sample. Freshness is the caller's
// concern; only "no sample yet" is an error here. The first call forces
// the initial connect.
func (f *Feed) Price() (float64, time.Time, error) {
	f.ensureStarted()
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.lastUpdateAt.IsZero() {
		return 0, time.Time{}, ErrNoSample
	}
	return f.latestPrice, f.lastUpdateAt, nil
}

func (f *Feed) Diag() Diag {
	f.mu.Lock()
	defer f.mu.Unlock()
	d := Diag{Feed: f.mode, Coin: f.coin, State: f.state, LastError: f.lastErr}
	if !f.lastEventAt.IsZero() {
		t := f.lastEventAt
		d.LastEventAt = &t
	}
	if !f.lastUpdateAt.IsZero() {
		t := f.lastUpdateAt
		d.LastUpdateAt = &t
	}
	return d
}

func (f *Feed) ensureStarted() {
	f.mu.Lock()
	if f.started {
		f.mu.Unlock()
		return
	}
	f.started = true
	f.mu.Unlock()
	go f.connect()
}

// Start begins connecting without waiting for the first Price call.
func (f *Feed) Start() { f.ensureStarted() }

func (f *Feed) connect() {
	f.mu.Lock()
	if f.connecting || f.state == StateConnected {
		f.mu.Unlock()
		return
	}
	f.connecting = true
	f.state = StateConnecting
	f.mu.Unlock()

	dialer := websocket.Dialer{HandshakeTimeout: connectTimeout}
	conn, _, err := dialer.Dial(f.url, nil)

	f.mu.Lock()
	f.connecting = false
	if err != nil {
		f.state = StateError
		f.lastErr = err.Error()
		f.scheduleReconnectLocked()
		f.mu.Unlock()
		log.Warn().Err(err).Str("url", f.url).Msg("price feed connect failed")
		return
	}
	f.conn = conn
	f.state = StateConnected
	f.lastErr = ""
	f.mu.Unlock()

	if err := conn.WriteJSON(f.subscribeRequest()); err != nil {
		f.dropConn(conn, err)
		return
	}
	log.Info().Str("feed", f.mode).Str("coin", f.coin).Msg("price feed connected")
	go f.readLoop(conn)
}

// subscribeRequest is the flat subscription object the feed expects:
// {type: "allMids"}, {type: "trades", coin}, or {type: <mode>, coin}.
func (f *Feed) subscribeRequest() map[string]any {
	sub := map[string]any{"type": f.mode}
	if f.mode != "allMids" {
		sub["coin"] = f.coin
	}
	return sub
}

func (f *Feed) readLoop(conn *websocket.Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			f.dropConn(conn, err)
			return
		}
		f.handleMessage(data)
	}
}

func (f *Feed) dropConn(conn *websocket.Conn, err error) {
	_ = conn.Close()
	f.mu.Lock()
	if f.conn == conn {
		f.conn = nil
		f.state = StateError
		if err != nil {
			f.lastErr = err.Error()
		}
		f.scheduleReconnectLocked()
	}
	f.mu.Unlock()
}

func (f *Feed) scheduleReconnectLocked() {
	if f.reconnect != nil {
		f.reconnect.Stop()
	}
	f.reconnect = time.AfterFunc(reconnectDelay, f.connect)
}

type feedMessage struct {
	Channel string          `json:"channel"`
	Data    json.RawMessage `json:"data"`
}

func (f *Feed) handleMessage(data []byte) {
	var msg feedMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return
	}
	f.mu.Lock()
	f.lastEventAt = time.Now()
	f.mu.Unlock()

	var price float64
	var ok bool
	switch msg.Channel {
	case "allMids":
		price, ok = parseAllMids(msg.Data, f.coin)
	case "trades":
		price, ok = parseTrades(msg.Data)
	default:
		return
	}
	if !ok || math.IsNaN(price) || math.IsInf(price, 0) {
		return
	}
	f.mu.Lock()
	f.latestPrice = price
	f.lastUpdateAt = time.Now()
	f.mu.Unlock()
}

func parseAllMids(data json.RawMessage, coin string) (float64, bool) {
	var payload struct {
		Mids map[string]string `json:"mids"`
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		return 0, false
	}
	raw, ok := payload.Mids[coin]
	if !ok {
		return 0, false
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

func parseTrades(data json.RawMessage) (float64, bool) {
	var trades []map[string]json.RawMessage
	if err := json.Unmarshal(data, &trades); err != nil || len(trades) == 0 {
		return 0, false
	}
	last := trades[len(trades)-1]
	for _, key := range []string{"px", "price"} {
		raw, ok := last[key]
		if !ok {
			continue
		}
		var s string
		if err := json.Unmarshal(raw, &s); err == nil {
			if v, err := strconv.ParseFloat(s, 64); err == nil {
				return v, true
			}
			continue
		}
		var v float64
		if err := json.Unmarshal(raw, &v); err == nil {
			return v, true
		}
	}
	return 0, false
}
