package testutil

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"mentorlink/pkg/types"
)

// Client is a websocket client for end-to-end tests. Inbound events are
// buffered and consumed with Receive / ReceiveEvent.
type Client struct {
	ServerURL string
	Token     string

	conn   *websocket.Conn
	events chan types.InboundEvent
	errors chan error
	done   chan struct{}

	mu        sync.Mutex
	writeMu   sync.Mutex
	closed    bool
	connected bool
}

func NewClient(serverURL, token string) *Client {
	return &Client{
		ServerURL: serverURL,
		Token:     token,
		events:    make(chan types.InboundEvent, 100),
		errors:    make(chan error, 10),
		done:      make(chan struct{}),
	}
}

// Connect dials /ws with the token as a query parameter. On a rejected
// handshake the HTTP response is returned with the error.
func (c *Client) Connect(ctx context.Context) (*http.Response, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.connected {
		return nil, fmt.Errorf("client already connected")
	}

	u, err := url.Parse(c.ServerURL)
	if err != nil {
		return nil, fmt.Errorf("invalid server URL: %w", err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	}
	u.Path = "/ws"
	if c.Token != "" {
		query := u.Query()
		query.Set("token", c.Token)
		u.RawQuery = query.Encode()
	}

	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return resp, fmt.Errorf("failed to connect: %w", err)
	}

	c.conn = conn
	c.connected = true
	go c.readLoop()
	return resp, nil
}

func (c *Client) readLoop() {
	defer close(c.done)

	for {
		_ = c.conn.SetReadDeadline(time.Now().Add(30 * time.Second))

		var event types.InboundEvent
		if err := c.conn.ReadJSON(&event); err != nil {
			c.mu.Lock()
			c.connected = false
			closed := c.closed
			c.mu.Unlock()

			if !closed {
				select {
				case c.errors <- fmt.Errorf("read error: %w", err):
				default:
				}
			}
			return
		}

		select {
		case c.events <- event:
		default:
			select {
			case c.errors <- fmt.Errorf("event buffer full, dropping %s", event.Name):
			default:
			}
		}
	}
}

// Send writes one {event, data} frame.
func (c *Client) Send(name string, data interface{}) error {
	c.mu.Lock()
	conn, connected := c.conn, c.connected
	c.mu.Unlock()

	if !connected || conn == nil {
		return fmt.Errorf("client not connected")
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	if err := conn.WriteJSON(types.NewEvent(name, data)); err != nil {
		return fmt.Errorf("failed to send %s: %w", name, err)
	}
	return nil
}

// Receive returns the next event.
func (c *Client) Receive(timeout time.Duration) (types.InboundEvent, error) {
	select {
	case event := <-c.events:
		return event, nil
	case err := <-c.errors:
		return types.InboundEvent{}, err
	case <-time.After(timeout):
		return types.InboundEvent{}, fmt.Errorf("timeout waiting for event")
	case <-c.done:
		select {
		case event := <-c.events:
			return event, nil
		default:
		}
		return types.InboundEvent{}, fmt.Errorf("client disconnected")
	}
}

// ReceiveEvent skips events until one named name arrives and decodes its
// data into dst when dst is not nil.
func (c *Client) ReceiveEvent(name string, dst interface{}, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return fmt.Errorf("timeout waiting for %s", name)
		}
		event, err := c.Receive(remaining)
		if err != nil {
			return fmt.Errorf("waiting for %s: %w", name, err)
		}
		if event.Name != name {
			continue
		}
		if dst == nil {
			return nil
		}
		return json.Unmarshal(event.Data, dst)
	}
}

// Drain discards buffered events and returns them.
func (c *Client) Drain() []types.InboundEvent {
	var out []types.InboundEvent
	for {
		select {
		case event := <-c.events:
			out = append(out, event)
		default:
			return out
		}
	}
}

// ExpectSilence fails if any event arrives within d.
func (c *Client) ExpectSilence(d time.Duration) error {
	select {
	case event := <-c.events:
		return fmt.Errorf("unexpected event %s", event.Name)
	case <-time.After(d):
		return nil
	}
}

// Close sends a close frame and tears the connection down.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	conn := c.conn
	c.mu.Unlock()

	if conn == nil {
		return nil
	}

	c.writeMu.Lock()
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	c.writeMu.Unlock()

	err := conn.Close()
	<-c.done
	return err
}
