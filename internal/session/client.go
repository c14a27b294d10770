package session

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/prudhvinik1/syncboard/internal/models"
)

const writeWait = 10 * time.Second

var ErrSessionNotFound = errors.New("session not found")

// Client is a Session backed by a relay server WebSocket connection.
type Client struct {
	serverURL string
	sessionID uuid.UUID
	dialer    *websocket.Dialer

	writeMu sync.Mutex
	conn    *websocket.Conn
	onHead  func(int64)

	done      chan struct{}
	closing   atomic.Bool
	closeOnce sync.Once
	errMu     sync.Mutex
	err       error
}

var (
	_ Session     = (*Client)(nil)
	_ HeadWatcher = (*Client)(nil)
)

// NewClient targets sessionID on the relay at serverURL (http, https, ws or
// wss scheme).
func NewClient(serverURL string, sessionID uuid.UUID) *Client {
	return &Client{
		serverURL: strings.TrimSuffix(serverURL, "/"),
		sessionID: sessionID,
		dialer:    websocket.DefaultDialer,
		done:      make(chan struct{}),
	}
}

func (c *Client) Join(ctx context.Context, replicaID uuid.UUID, deliver Deliver) (*models.Welcome, error) {
	if c.conn != nil {
		return nil, errors.New("session already joined")
	}

	url := fmt.Sprintf("%s/sessions/%s/ws?replica=%s", websocketURL(c.serverURL), c.sessionID, replicaID)
	conn, resp, err := c.dialer.DialContext(ctx, url, nil)
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusNotFound {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("failed to dial relay: %w", err)
	}

	// 1. The first frame is always the welcome (or an error)
	if deadline, ok := ctx.Deadline(); ok {
		conn.SetReadDeadline(deadline)
	}
	var frame models.Frame
	if err := conn.ReadJSON(&frame); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to read welcome: %w", err)
	}
	conn.SetReadDeadline(time.Time{})

	if frame.Type == models.FrameError {
		conn.Close()
		return nil, fmt.Errorf("relay refused join: %s", frame.Error)
	}
	if frame.Type != models.FrameWelcome || frame.Welcome == nil {
		conn.Close()
		return nil, fmt.Errorf("unexpected first frame %q", frame.Type)
	}

	// 2. Everything after that is pumped to deliver
	c.conn = conn
	go c.readLoop(deliver)

	return frame.Welcome, nil
}

func (c *Client) OnHead(fn func(head int64)) {
	c.onHead = fn
}

func (c *Client) Publish(_ context.Context, ev models.Event) error {
	kind, payload, err := models.EncodeEvent(ev)
	if err != nil {
		return err
	}
	return c.write(models.Frame{Type: models.FramePublish, Kind: kind, Payload: payload})
}

func (c *Client) Checkpoint(_ context.Context, cp models.Checkpoint) error {
	return c.write(models.Frame{Type: models.FrameCheckpoint, Checkpoint: &cp})
}

func (c *Client) Resync(_ context.Context, after int64) error {
	return c.write(models.Frame{Type: models.FrameResync, After: after})
}

// Done is closed when the connection ends.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// Err reports why the connection ended, if it has.
func (c *Client) Err() error {
	c.errMu.Lock()
	defer c.errMu.Unlock()
	return c.err
}

func (c *Client) Close() error {
	if c.conn == nil {
		return nil
	}
	var err error
	c.closeOnce.Do(func() {
		c.closing.Store(true)
		c.writeMu.Lock()
		c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(writeWait))
		c.writeMu.Unlock()
		err = c.conn.Close()
	})
	return err
}

func (c *Client) write(frame models.Frame) error {
	if c.conn == nil {
		return ErrNotJoined
	}
	select {
	case <-c.done:
		return ErrClosed
	default:
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := c.conn.WriteJSON(frame); err != nil {
		return fmt.Errorf("failed to send %s frame: %w", frame.Type, err)
	}
	return nil
}

func (c *Client) readLoop(deliver Deliver) {
	defer close(c.done)

	for {
		var frame models.Frame
		if err := c.conn.ReadJSON(&frame); err != nil {
			if !c.closing.Load() && !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Printf("session: relay connection lost: %v", err)
			}
			c.errMu.Lock()
			c.err = err
			c.errMu.Unlock()
			return
		}

		switch frame.Type {
		case models.FrameEvent:
			if frame.Event != nil {
				deliver(frame.Event)
			}
		case models.FrameHead:
			if c.onHead != nil {
				c.onHead(frame.Head)
			}
		case models.FrameError:
			log.Printf("session: relay error: %s", frame.Error)
		default:
			log.Printf("session: ignoring %q frame", frame.Type)
		}
	}
}

// CreateSession asks the relay for a new whiteboard session.
func CreateSession(ctx context.Context, serverURL, name string) (*models.Session, error) {
	body, err := json.Marshal(map[string]string{"name": name})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, httpURL(strings.TrimSuffix(serverURL, "/"))+"/sessions", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		return nil, fmt.Errorf("failed to create session: relay returned %s", resp.Status)
	}

	var s models.Session
	if err := json.NewDecoder(resp.Body).Decode(&s); err != nil {
		return nil, fmt.Errorf("failed to decode session: %w", err)
	}
	return &s, nil
}

func websocketURL(u string) string {
	switch {
	case strings.HasPrefix(u, "http://"):
		return "ws://" + strings.TrimPrefix(u, "http://")
	case strings.HasPrefix(u, "https://"):
		return "wss://" + strings.TrimPrefix(u, "https://")
	}
	return u
}

func httpURL(u string) string {
	switch {
	case strings.HasPrefix(u, "ws://"):
		return "http://" + strings.TrimPrefix(u, "ws://")
	case strings.HasPrefix(u, "wss://"):
		return "https://" + strings.TrimPrefix(u, "wss://")
	}
	return u
}
