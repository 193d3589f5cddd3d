package main

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	orderedmap "github.com/wk8/go-ordered-map/v2"

	"quicktiles/internal/ipc"
	"quicktiles/internal/tile"
)

// ============================================================================
// State WebSocket: hub + per-client pumps + broadcaster
// ============================================================================
//
// This file implements:
//   - A Hub that tracks connected WebSocket clients
//   - Per-client write pumps so one slow client doesn't block others
//   - A panel.Sink that turns panel output into broadcasts
//   - A broadcaster loop that coalesces tile updates and fans out
//
// Design constraints:
//   - The panel is daemon-owned; the initial snapshot goes through the daemon loop.
//   - The sink runs on the daemon goroutine and must never block it.
//   - Slow clients are disconnected when their send buffer fills.
//
// Messages are JSON text frames with an envelope: {type, ts, data}. The first
// message on connect is "state_init".
//
// ============================================================================

// wsMessageSnapshot is the JSON `data` payload for "state_init".
type wsMessageSnapshot struct {
	Tiles []tile.View     `json:"tiles"`
	Flags map[string]bool `json:"flags,omitempty"`
	User  *int            `json:"user,omitempty"`
}

// wsTileRemovedData is the JSON `data` payload for "tile_removed".
type wsTileRemovedData struct {
	Spec string `json:"spec"`
}

// wsLaunchIntentData is the JSON `data` payload for "launch_intent".
type wsLaunchIntentData struct {
	Spec   string `json:"spec"`
	Intent string `json:"intent"`
}

// wsOutboundEvent is a pre-typed, externally-consumable state event.
type wsOutboundEvent struct {
	Type string
	Data any
	At   time.Time // zero means now
}

// envelope is the wire format envelope for WS messages.
type envelope struct {
	Type string     `json:"type"`
	Ts   *time.Time `json:"ts,omitempty"`
	Data any        `json:"data,omitempty"`
}

// ============================================================================
// Panel output
// ============================================================================

// stateBroadcast is panel output headed for WS clients.
type stateBroadcast interface {
	broadcastMarker()
}

type broadcastTileChanged struct {
	View tile.View
	At   time.Time
}

type broadcastTileRemoved struct {
	Spec string
	At   time.Time
}

type broadcastIntentLaunched struct {
	Spec   string
	Intent string
	At     time.Time
}

func (broadcastTileChanged) broadcastMarker()    {}
func (broadcastTileRemoved) broadcastMarker()    {}
func (broadcastIntentLaunched) broadcastMarker() {}

// wsSink implements panel.Sink. It never blocks; output is dropped when the
// broadcaster falls behind.
type wsSink struct {
	out    chan<- stateBroadcast
	logger *slog.Logger
}

func (s wsSink) TileChanged(v tile.View) {
	s.emit(broadcastTileChanged{View: v, At: time.Now().UTC()})
}

func (s wsSink) TileRemoved(spec string) {
	s.emit(broadcastTileRemoved{Spec: spec, At: time.Now().UTC()})
}

func (s wsSink) IntentLaunched(spec, intent string) {
	s.emit(broadcastIntentLaunched{Spec: spec, Intent: intent, At: time.Now().UTC()})
}

func (s wsSink) emit(b stateBroadcast) {
	if s.out == nil {
		return
	}
	select {
	case s.out <- b:
	default:
		s.logger.Warn("ws broadcast queue full, dropping update")
	}
}

// ============================================================================
// Hub
// ============================================================================

type Hub struct {
	logger *slog.Logger

	// Buffered broadcast channel for already-serialized JSON frames.
	broadcast  chan []byte
	register   chan *Client
	unregister chan *Client

	mu      sync.Mutex
	clients map[*Client]struct{}

	sendBuf int
}

type HubConfig struct {
	// SendBuf is the per-client outbound queue size. Zero means 32.
	SendBuf int

	// BroadcastBuf is the hub inbound broadcast queue size. Zero means 128.
	BroadcastBuf int
}

// NewHub constructs a hub. Call Run(ctx) to start it.
func NewHub(logger *slog.Logger, cfg HubConfig) *Hub {
	sendBuf := cfg.SendBuf
	if sendBuf <= 0 {
		sendBuf = 32
	}
	bcastBuf := cfg.BroadcastBuf
	if bcastBuf <= 0 {
		bcastBuf = 128
	}

	return &Hub{
		logger:     logger,
		broadcast:  make(chan []byte, bcastBuf),
		register:   make(chan *Client, 64),
		unregister: make(chan *Client, 64),
		clients:    make(map[*Client]struct{}),
		sendBuf:    sendBuf,
	}
}

// Run processes hub events until ctx is canceled.
// It disconnects all clients on shutdown.
func (h *Hub) Run(ctx context.Context) {
	h.logger.Info("ws hub starting")

	for {
		select {
		case <-ctx.Done():
			h.logger.Info("ws hub stopping (context canceled)")
			h.closeAllClients()
			return

		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = struct{}{}
			n := len(h.clients)
			h.mu.Unlock()
			h.logger.Info("ws client registered", "remote_addr", c.remoteAddr, "clients", n)

		case c := <-h.unregister:
			h.removeClient(c, "unregister")

		case msg := <-h.broadcast:
			// Collect slow clients first, then remove them after we unlock.
			var slow []*Client

			h.mu.Lock()
			for c := range h.clients {
				select {
				case c.send <- msg:
				default:
					slow = append(slow, c)
				}
			}
			h.mu.Unlock()

			for _, c := range slow {
				h.removeClient(c, "slow_client")
			}
		}
	}
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

func (h *Hub) closeAllClients() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		if c.conn != nil {
			_ = c.conn.Close()
		}
		safeCloseChan(c.send)
		delete(h.clients, c)
	}
}

func (h *Hub) removeClient(c *Client, reason string) {
	h.mu.Lock()
	_, ok := h.clients[c]
	if ok {
		delete(h.clients, c)
	}
	n := len(h.clients)
	h.mu.Unlock()

	if ok {
		if c.conn != nil {
			_ = c.conn.Close()
		}
		// Closing send signals writePump to exit.
		safeCloseChan(c.send)

		h.logger.Info("ws client disconnected", "remote_addr", c.remoteAddr, "reason", reason, "clients", n)
	}
}

func safeCloseChan(ch chan []byte) {
	defer func() {
		_ = recover() // ignore "close of closed channel"
	}()
	close(ch)
}

// BroadcastBytes enqueues a pre-serialized JSON WS frame for broadcast.
// It never blocks; if the hub queue is full it drops the message.
func (h *Hub) BroadcastBytes(msg []byte) {
	select {
	case h.broadcast <- msg:
	default:
		h.logger.Warn("ws hub broadcast queue full, dropping message", "bytes", len(msg))
	}
}

// ============================================================================
// Client
// ============================================================================

type Client struct {
	hub *Hub

	conn *websocket.Conn
	send chan []byte

	remoteAddr string
	logger     *slog.Logger
}

// NewClient creates a client with a buffered send channel.
func NewClient(hub *Hub, conn *websocket.Conn, remoteAddr string, logger *slog.Logger) *Client {
	sendBuf := 32
	if hub != nil && hub.sendBuf > 0 {
		sendBuf = hub.sendBuf
	}
	return &Client{
		hub:        hub,
		conn:       conn,
		send:       make(chan []byte, sendBuf),
		remoteAddr: remoteAddr,
		logger:     logger,
	}
}

const (
	writeWait  = 5 * time.Second
	pongWait   = 30 * time.Second
	pingPeriod = 20 * time.Second
)

// wsTileCoalesceWindow bounds how long bursty updates of one tile (countdown ticks,
// rapid taps) are held back before the latest is broadcast.
const wsTileCoalesceWindow = 50 * time.Millisecond

// closeStatus extracts a websocket close code / text when possible.
func closeStatus(err error) (code int, text string, ok bool) {
	var ce *websocket.CloseError
	if errors.As(err, &ce) {
		return ce.Code, ce.Text, true
	}
	return 0, "", false
}

func (c *Client) logExit(pump string, err error) {
	if errors.Is(err, websocket.ErrCloseSent) {
		return
	}
	if code, text, ok := closeStatus(err); ok {
		c.logger.Info("ws "+pump+" exiting (close)", "remote_addr", c.remoteAddr, "code", code, "reason", text)
		return
	}
	c.logger.Info("ws "+pump+" exiting", "remote_addr", c.remoteAddr, "error", err)
}

// writePump writes messages from the send queue to the websocket.
// It exits on write error or when send is closed.
func (c *Client) writePump(ctx context.Context) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// Channel closed: hub is disconnecting us.
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				c.logExit("writePump", err)
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.logExit("writePump", err)
				return
			}
		}
	}
}

// readPump discards incoming messages to detect disconnects and handle control frames.
// It exits on read error, then unregisters the client.
func (c *Client) readPump() {
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			c.logExit("readPump", err)
			if c.hub != nil {
				c.hub.unregister <- c
			}
			return
		}
	}
}

// ============================================================================
// HTTP Handler
// ============================================================================

type Server struct {
	logger *slog.Logger
	hub    *Hub

	// Used for the initial snapshot on connect.
	requests chan<- request
}

// NewServer constructs the WS state server. Call Register on a mux, then start
// hub.Run(ctx) and RunBroadcaster.
func NewServer(logger *slog.Logger, requests chan<- request, cfg HubConfig) *Server {
	return &Server{
		logger:   logger,
		hub:      NewHub(logger, cfg),
		requests: requests,
	}
}

func (s *Server) Hub() *Hub { return s.hub }

// Register registers the WS handler on the provided mux.
func (s *Server) Register(mux *http.ServeMux, path string) {
	if mux == nil {
		return
	}
	mux.HandleFunc(path, s.handleStateWS)
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// handleStateWS upgrades and registers a client, then sends state_init.
func (s *Server) handleStateWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("ws upgrade failed", "error", err)
		return
	}

	client := NewClient(s.hub, conn, r.RemoteAddr, s.logger)

	// Register first so no broadcast after the snapshot is missed.
	s.hub.register <- client

	// The pumps outlive the request; net/http cancels r.Context() when this returns.
	go client.writePump(context.Background())
	go client.readPump()

	if s.requests == nil {
		return
	}
	resp, err := submit(r.Context(), s.requests, ipc.GetState{})
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			s.logger.Warn("ws snapshot request failed", "error", err)
		}
		return
	}

	now := time.Now().UTC()
	initMsg, err := json.Marshal(envelope{
		Type: "state_init",
		Ts:   &now,
		Data: wsMessageSnapshot{Tiles: resp.Tiles, Flags: resp.Flags, User: resp.User},
	})
	if err != nil {
		s.logger.Warn("ws snapshot marshal failed", "error", err)
		return
	}
	// If the client is already slow, disconnect it.
	select {
	case client.send <- initMsg:
	default:
		s.hub.unregister <- client
	}
}

// ============================================================================
// Broadcaster
// ============================================================================

// RunBroadcaster reads panel output, marshals it and broadcasts it to all hub clients.
// tile_changed is coalesced per tile, latest wins, flushed at most once per
// wsTileCoalesceWindow. Other events flush pending tile updates first so clients see
// them in order. Intended to run as a single goroutine.
func RunBroadcaster(ctx context.Context, hub *Hub, src <-chan stateBroadcast, logger *slog.Logger) {
	if hub == nil || src == nil {
		return
	}

	// Pending tile updates in first-seen order; Set on a queued tile keeps its slot.
	pending := orderedmap.New[string, wsOutboundEvent]()
	var timer *time.Timer
	var timerCh <-chan time.Time

	publish := func(ev wsOutboundEvent) {
		ts := ev.At
		if ts.IsZero() {
			ts = time.Now().UTC()
		}
		msg, err := json.Marshal(envelope{Type: ev.Type, Ts: &ts, Data: ev.Data})
		if err != nil {
			logger.Warn("ws broadcaster marshal failed", "error", err, "type", ev.Type)
			return
		}
		hub.BroadcastBytes(msg)
	}

	flushPending := func() {
		for pair := pending.Oldest(); pair != nil; pair = pair.Next() {
			publish(pair.Value)
		}
		pending = orderedmap.New[string, wsOutboundEvent]()
	}

	stopTimer := func() {
		if timer != nil && !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		timer = nil
		timerCh = nil
	}

	for {
		select {
		case <-ctx.Done():
			flushPending()
			stopTimer()
			return

		case <-timerCh:
			timer = nil
			timerCh = nil
			flushPending()

		case b, ok := <-src:
			if !ok {
				flushPending()
				stopTimer()
				logger.Info("ws broadcaster stopping (source ended)")
				return
			}

			if changed, isChange := b.(broadcastTileChanged); isChange {
				pending.Set(changed.View.Spec, wsOutboundEvent{Type: "tile_changed", Data: changed.View, At: changed.At})
				// Do not reset a running timer: bursts still flush every window.
				if timer == nil {
					timer = time.NewTimer(wsTileCoalesceWindow)
					timerCh = timer.C
				}
				continue
			}

			ev, ok := convertBroadcast(b)
			if !ok {
				continue
			}
			flushPending()
			stopTimer()
			publish(ev)
		}
	}
}

func convertBroadcast(b stateBroadcast) (wsOutboundEvent, bool) {
	switch ev := b.(type) {
	case broadcastTileChanged:
		return wsOutboundEvent{Type: "tile_changed", Data: ev.View, At: ev.At}, true

	case broadcastTileRemoved:
		return wsOutboundEvent{Type: "tile_removed", Data: wsTileRemovedData{Spec: ev.Spec}, At: ev.At}, true

	case broadcastIntentLaunched:
		return wsOutboundEvent{
			Type: "launch_intent",
			Data: wsLaunchIntentData{Spec: ev.Spec, Intent: ev.Intent},
			At:   ev.At,
		}, true

	default:
		return wsOutboundEvent{}, false
	}
}
