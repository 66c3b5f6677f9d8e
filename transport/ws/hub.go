// Package ws implements the long-lived bidirectional channel of spec §4.8:
// a single authenticate handshake frame, then server-to-client event
// envelopes, with 30s ping/pong liveness.
package ws

import (
	"context"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/gorilla/websocket"
	"github.com/rindwa/dispatch/authz"
	"github.com/rindwa/dispatch/db"
)

const (
	pingInterval    = 30 * time.Second
	maxMissedProbes = 2
	// pongWait lets maxMissedProbes pings go unanswered before the read
	// deadline closes the connection.
	pongWait = maxMissedProbes*pingInterval + 10*time.Second
)

var upgrader = websocket.Upgrader{
	// Origin checking is the caller's concern (behind the same CORS
	// configuration as the rest of the HTTP surface); accept all here.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Registrar is the subset of NotificationBus the hub needs: binding and
// unbinding a live channel to a user id. Kept as an interface so the hub
// package has no import cycle back onto notify.
type Registrar interface {
	Register(userID string, ch interface{ Push(frame interface{}) error })
	Unregister(userID string)
}

// authenticateFrame is the one client-to-server message type §4.8 allows.
type authenticateFrame struct {
	Type  string `json:"type"`
	Token string `json:"token"`
}

// Conn adapts one websocket connection into a notify.LiveChannel. Writes
// are serialized per-connection with a mutex, matching the §5 requirement
// that writes to a single channel are serialized.
type Conn struct {
	ws       *websocket.Conn
	mu       sync.Mutex
	missed   int
}

func (c *Conn) Push(frame interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ws.WriteJSON(frame)
}

// Hub accepts new connections and runs their authenticate-then-pump
// lifecycle. It holds no connection map of its own — that ownership lives
// in notify.NotificationBus; the hub only bridges the transport to the
// bus.
type Hub struct {
	JWT   *authz.JWTService
	Bus   Registrar
	Cache *redis.Client // optional; backs cross-pod presence, nil disables it
}

func NewHub(jwt *authz.JWTService, bus Registrar) *Hub {
	return &Hub{JWT: jwt, Bus: bus}
}

// WithCache attaches the presence cache.
func (h *Hub) WithCache(cache *redis.Client) *Hub {
	h.Cache = cache
	return h
}

func presenceKey(userID string) string { return "ws:presence:" + userID }

// touchPresence refreshes this pod's claim on userID with a TTL of
// pongWait, the same span the read deadline allows. A pod that dies
// without a clean close simply stops renewing the key, and Redis expiry is the staleness
// signal — no separate sweep is needed.
func (h *Hub) touchPresence(userID string) {
	if h.Cache == nil {
		return
	}
	if err := h.Cache.Set(context.Background(), presenceKey(userID), time.Now().Unix(), pongWait).Err(); err != nil {
		log.Printf("ws: failed to refresh presence for %s: %v", userID, err)
	}
}

func (h *Hub) clearPresence(userID string) {
	if h.Cache == nil {
		return
	}
	h.Cache.Del(context.Background(), presenceKey(userID))
}

func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("ws: upgrade failed: %v", err)
		return
	}

	var frame authenticateFrame
	conn.SetReadDeadline(time.Now().Add(pongWait))
	if err := conn.ReadJSON(&frame); err != nil || frame.Type != "authenticate" {
		conn.Close()
		return
	}

	principal, err := h.JWT.Validate(frame.Token)
	if err != nil {
		conn.WriteJSON(map[string]string{"type": "error", "message": "invalid token"})
		conn.Close()
		return
	}

	c := &Conn{ws: conn}
	h.Bus.Register(principal.UserID, c)
	h.touchPresence(principal.UserID)
	defer h.clearPresence(principal.UserID)
	defer h.Bus.Unregister(principal.UserID)

	h.pump(conn, principal)
}

// pump runs the ping/pong liveness loop and drains inbound frames (which
// carry no further semantics once authenticated) until the connection
// fails two consecutive liveness probes.
func (h *Hub) pump(conn *websocket.Conn, principal db.Principal) {
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		h.touchPresence(principal.UserID)
		return nil
	})

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	defer conn.Close()

	missed := 0
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second)); err != nil {
				missed++
			} else {
				missed = 0
			}
			if missed >= maxMissedProbes {
				return
			}
		}
	}
}
