package handlers

import (
	"context"
	"errors"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/prudhvinik1/syncboard/internal/models"
	"github.com/prudhvinik1/syncboard/internal/services"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	headPeriod     = 5 * time.Second
	maxMessageSize = 1 << 20
	sendBuffer     = 256
)

type WebSocketHandler struct {
	relay      Relay
	upgrader   websocket.Upgrader
	PingPeriod time.Duration
	PongWait   time.Duration
	// HeadPeriod is how often the session's head sequence number is
	// announced to the replica.
	HeadPeriod time.Duration
}

// Option tunes the WebSocket endpoint.
type Option func(*WebSocketHandler)

// WithHeadPeriod sets how often connections announce the session head.
func WithHeadPeriod(d time.Duration) Option {
	return func(h *WebSocketHandler) { h.HeadPeriod = d }
}

func NewWebSocketHandler(relay Relay) *WebSocketHandler {
	return &WebSocketHandler{
		relay: relay,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		PingPeriod: pingPeriod,
		PongWait:   pongWait,
		HeadPeriod: headPeriod,
	}
}

// connection is one replica attached to one session.
type connection struct {
	relay     Relay
	conn      *websocket.Conn
	sessionID uuid.UUID
	replicaID uuid.UUID
	send      chan models.Frame
	done      chan struct{}
	closeOnce sync.Once
}

// Serve upgrades to a WebSocket and relays for one replica until either
// side hangs up.
func (h *WebSocketHandler) Serve(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := sessionID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid session id")
		return
	}
	replicaID, err := uuid.Parse(r.URL.Query().Get("replica"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid replica id")
		return
	}

	if _, err := h.relay.GetSession(r.Context(), sessionID); err != nil {
		if errors.Is(err, services.ErrSessionNotFound) {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		log.Printf("failed to get session %s: %v", sessionID, err)
		writeError(w, http.StatusInternalServerError, "failed to get session")
		return
	}

	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already replied
		log.Printf("websocket upgrade failed: %v", err)
		return
	}

	c := &connection{
		relay:     h.relay,
		conn:      ws,
		sessionID: sessionID,
		replicaID: replicaID,
		send:      make(chan models.Frame, sendBuffer),
		done:      make(chan struct{}),
	}
	c.run(r.Context(), h.PingPeriod, h.PongWait, h.HeadPeriod)
}

func (c *connection) run(ctx context.Context, pingEvery, pongWait, headEvery time.Duration) {
	defer c.conn.Close()

	// 1. Subscribe before reading the journal so nothing falls in between
	events, unsubscribe, err := c.relay.Subscribe(ctx, c.sessionID)
	if err != nil {
		log.Printf("failed to subscribe to session %s: %v", c.sessionID, err)
		c.writeNow(models.Frame{Type: models.FrameError, Error: "failed to subscribe"})
		return
	}
	defer unsubscribe()

	// 2. Join and send the welcome
	welcome, err := c.relay.Join(ctx, c.sessionID, c.replicaID)
	if err != nil {
		log.Printf("replica %s failed to join session %s: %v", c.replicaID, c.sessionID, err)
		c.writeNow(models.Frame{Type: models.FrameError, Error: err.Error()})
		return
	}
	defer func() {
		if err := c.relay.Leave(context.Background(), c.sessionID, c.replicaID); err != nil {
			log.Printf("failed to leave session %s: %v", c.sessionID, err)
		}
	}()

	if err := c.writeNow(models.Frame{Type: models.FrameWelcome, Welcome: welcome}); err != nil {
		log.Printf("failed to send welcome: %v", err)
		return
	}

	// 3. Pump
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		c.writePump(ctx, events, pingEvery, headEvery)
	}()

	c.readPump(ctx, pongWait)
	c.stop()
	wg.Wait()
}

func (c *connection) stop() {
	c.closeOnce.Do(func() {
		close(c.done)
		// unblocks readPump when the writer is the one giving up
		c.conn.Close()
	})
}

func (c *connection) readPump(ctx context.Context, pongWait time.Duration) {
	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		if err := c.relay.Heartbeat(ctx, c.sessionID, c.replicaID); err != nil {
			log.Printf("failed to refresh presence of %s: %v", c.replicaID, err)
		}
		return nil
	})

	for {
		var frame models.Frame
		if err := c.conn.ReadJSON(&frame); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Printf("replica %s disconnected: %v", c.replicaID, err)
			}
			return
		}
		c.handle(ctx, frame)
	}
}

func (c *connection) handle(ctx context.Context, frame models.Frame) {
	switch frame.Type {
	case models.FramePublish:
		// the event comes back to everyone, this replica included, through
		// the subscription
		if _, err := c.relay.Publish(ctx, c.sessionID, c.replicaID, frame.Kind, frame.Payload); err != nil {
			c.reply(errorFrame("publish", err))
		}

	case models.FrameCheckpoint:
		if frame.Checkpoint == nil {
			c.reply(models.Frame{Type: models.FrameError, Error: "checkpoint frame without checkpoint"})
			return
		}
		err := c.relay.SaveCheckpoint(ctx, c.sessionID, *frame.Checkpoint)
		if err != nil && !errors.Is(err, models.ErrStaleCheckpoint) {
			c.reply(errorFrame("checkpoint", err))
		}

	case models.FrameResync:
		events, err := c.relay.EventsSince(ctx, c.sessionID, frame.After)
		if err != nil {
			c.reply(errorFrame("resync", err))
			return
		}
		for _, ev := range events {
			c.reply(models.Frame{Type: models.FrameEvent, Event: ev})
		}

	default:
		c.reply(models.Frame{Type: models.FrameError, Error: "unsupported frame type " + string(frame.Type)})
	}
}

// reply queues a frame for the writer. It gives up once the connection is
// shutting down.
func (c *connection) reply(frame models.Frame) {
	select {
	case c.send <- frame:
	case <-c.done:
	}
}

func (c *connection) writePump(ctx context.Context, events <-chan *models.SyncEvent, pingEvery, headEvery time.Duration) {
	ticker := time.NewTicker(pingEvery)
	defer ticker.Stop()
	heads := time.NewTicker(headEvery)
	defer heads.Stop()
	defer c.stop()

	for {
		select {
		case ev, ok := <-events:
			if !ok {
				log.Printf("subscription to session %s ended", c.sessionID)
				return
			}
			if err := c.writeNow(models.Frame{Type: models.FrameEvent, Event: ev}); err != nil {
				return
			}
		case frame := <-c.send:
			if err := c.writeNow(frame); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-heads.C:
			// a lost broadcast at the tail has no later event to expose it
			head, err := c.relay.Head(ctx, c.sessionID)
			if err != nil {
				log.Printf("failed to get head of session %s: %v", c.sessionID, err)
				continue
			}
			if head == 0 {
				continue
			}
			if err := c.writeNow(models.Frame{Type: models.FrameHead, Head: head}); err != nil {
				return
			}
		case <-c.done:
			return
		}
	}
}

func (c *connection) writeNow(frame models.Frame) error {
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteJSON(frame)
}

func errorFrame(op string, err error) models.Frame {
	return models.Frame{Type: models.FrameError, Error: op + ": " + err.Error()}
}
