// Package ws implements the live event channel: a sharded websocket hub
// that fans job events out to every open connection of the owning user.
package ws

import (
	"encoding/json"
	"hash/fnv"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/introweave/matchpipe/internal/adapter/observability"
	"github.com/introweave/matchpipe/internal/config"
	"github.com/introweave/matchpipe/internal/domain"
)

const shardCount = 16

// Hub tracks authenticated connections grouped by user id. Registration is
// sharded so fan-out on one user never contends with unrelated users.
// Delivery is best effort: a slow consumer loses events rather than
// blocking the pipeline.
type Hub struct {
	cfg      config.Config
	upgrader websocket.Upgrader
	shards   [shardCount]*shard
}

type shard struct {
	mu    sync.RWMutex
	conns map[string]map[*client]struct{}
}

type client struct {
	ws     *websocket.Conn
	send   chan []byte
	userID string
}

// authMessage is the first frame a connection must send to bind to a user.
type authMessage struct {
	Type   string `json:"type"`
	UserID string `json:"user_id"`
}

// NewHub constructs a hub using the configured websocket timings.
func NewHub(cfg config.Config) *Hub {
	h := &Hub{
		cfg: cfg,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     originChecker(cfg),
		},
	}
	for i := range h.shards {
		h.shards[i] = &shard{conns: map[string]map[*client]struct{}{}}
	}
	return h
}

func originChecker(cfg config.Config) func(*http.Request) bool {
	if cfg.CORSAllowOrigins == "*" || cfg.IsDev() {
		return func(*http.Request) bool { return true }
	}
	allowed := map[string]bool{}
	for _, o := range strings.Split(cfg.CORSAllowOrigins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			allowed[o] = true
		}
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		return origin == "" || allowed[origin]
	}
}

func (h *Hub) shardFor(userID string) *shard {
	f := fnv.New32a()
	_, _ = f.Write([]byte(userID))
	return h.shards[f.Sum32()%shardCount]
}

// ServeHTTP upgrades the request and waits for the auth frame before the
// connection joins the hub. Unauthenticated connections are dropped after
// the grace period.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("websocket upgrade failed", slog.Any("error", err))
		return
	}

	_ = ws.SetReadDeadline(time.Now().Add(h.cfg.WSAuthGrace))
	var auth authMessage
	if err := ws.ReadJSON(&auth); err != nil || auth.Type != "auth" || auth.UserID == "" {
		_ = ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "auth required"),
			time.Now().Add(h.cfg.WSWriteWait))
		_ = ws.Close()
		return
	}

	c := &client{ws: ws, send: make(chan []byte, h.cfg.WSSendBuffer), userID: auth.UserID}
	h.register(c)
	observability.WSConnections.Inc()
	slog.Debug("websocket connected", slog.String("user_id", auth.UserID))

	go h.writeLoop(c)
	h.readLoop(c)
}

func (h *Hub) register(c *client) {
	s := h.shardFor(c.userID)
	s.mu.Lock()
	defer s.mu.Unlock()
	set, ok := s.conns[c.userID]
	if !ok {
		set = map[*client]struct{}{}
		s.conns[c.userID] = set
	}
	set[c] = struct{}{}
}

func (h *Hub) unregister(c *client) {
	s := h.shardFor(c.userID)
	s.mu.Lock()
	defer s.mu.Unlock()
	set, ok := s.conns[c.userID]
	if !ok {
		return
	}
	if _, present := set[c]; !present {
		return
	}
	delete(set, c)
	if len(set) == 0 {
		delete(s.conns, c.userID)
	}
	close(c.send)
	observability.WSConnections.Dec()
}

// readLoop consumes inbound frames. Clients may send {"type":"ping"} and
// get a pong back; everything else is ignored.
func (h *Hub) readLoop(c *client) {
	defer func() {
		h.unregister(c)
		_ = c.ws.Close()
	}()
	_ = c.ws.SetReadDeadline(time.Now().Add(h.cfg.WSPongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(h.cfg.WSPongWait))
	})
	for {
		var msg map[string]any
		if err := c.ws.ReadJSON(&msg); err != nil {
			return
		}
		_ = c.ws.SetReadDeadline(time.Now().Add(h.cfg.WSPongWait))
		if t, _ := msg["type"].(string); t == "ping" {
			h.enqueue(c, []byte(`{"type":"pong"}`))
		}
	}
}

func (h *Hub) writeLoop(c *client) {
	pingPeriod := h.cfg.WSPongWait * 9 / 10
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.ws.Close()
	}()
	for {
		select {
		case msg, ok := <-c.send:
			if !ok {
				_ = c.ws.WriteControl(websocket.CloseMessage, nil, time.Now().Add(h.cfg.WSWriteWait))
				return
			}
			_ = c.ws.SetWriteDeadline(time.Now().Add(h.cfg.WSWriteWait))
			if err := c.ws.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.ws.SetWriteDeadline(time.Now().Add(h.cfg.WSWriteWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// enqueue delivers without blocking; a full buffer drops the frame.
func (h *Hub) enqueue(c *client, msg []byte) {
	select {
	case c.send <- msg:
	default:
		slog.Warn("websocket send buffer full; dropping frame", slog.String("user_id", c.userID))
	}
}

// Publish sends the event to every open connection of the event's user.
// Implements domain.Notifier.
func (h *Hub) Publish(_ domain.Context, ev domain.JobEvent) {
	raw, err := json.Marshal(ev)
	if err != nil {
		slog.Error("marshal job event", slog.Any("error", err))
		return
	}
	s := h.shardFor(ev.UserID)
	s.mu.RLock()
	defer s.mu.RUnlock()
	for c := range s.conns[ev.UserID] {
		h.enqueue(c, raw)
	}
}
