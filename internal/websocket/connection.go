package websocket

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"mentorlink/pkg/types"
)

// DefaultSendBuffer is the outbound queue size of a connection.
const DefaultSendBuffer = 100

// Connection implements interfaces.Connection over a gorilla websocket.
// All writes go through one writer goroutine; gorilla allows a single
// concurrent writer per connection.
type Connection struct {
	id       string
	conn     *websocket.Conn
	identity types.Identity
	writeCh  chan []byte

	writeTimeout time.Duration

	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once

	mu    sync.RWMutex
	rooms map[string]struct{}
}

// NewConnection wraps an upgraded websocket with its authenticated identity
// and starts the writer.
func NewConnection(conn *websocket.Conn, identity types.Identity, bufferSize int, writeTimeout time.Duration) *Connection {
	if bufferSize <= 0 {
		bufferSize = DefaultSendBuffer
	}
	if writeTimeout <= 0 {
		writeTimeout = 5 * time.Second
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := &Connection{
		id:           uuid.New().String(),
		conn:         conn,
		identity:     identity,
		writeCh:      make(chan []byte, bufferSize),
		writeTimeout: writeTimeout,
		ctx:          ctx,
		cancel:       cancel,
		rooms:        make(map[string]struct{}),
	}

	go c.writeLoop()

	return c
}

func (c *Connection) writeLoop() {
	defer func() { _ = c.Close() }()

	for {
		select {
		case data := <-c.writeCh:
			if err := c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout)); err != nil {
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-c.ctx.Done():
			return
		}
	}
}

func (c *Connection) ID() string {
	return c.id
}

func (c *Connection) Identity() types.Identity {
	return c.identity
}

// Send queues an event without blocking. A full buffer is reported as
// ErrSendBufferFull; the caller decides whether that matters.
func (c *Connection) Send(event types.Event) error {
	select {
	case <-c.ctx.Done():
		return ErrConnectionClosed
	default:
	}

	data, err := json.Marshal(event)
	if err != nil {
		return ErrInvalidJSON
	}

	select {
	case c.writeCh <- data:
		return nil
	case <-c.ctx.Done():
		return ErrConnectionClosed
	default:
		return ErrSendBufferFull
	}
}

// Close cancels the writer and closes the socket. Idempotent.
func (c *Connection) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.cancel()
		if c.conn != nil {
			err = c.conn.Close()
		}
	})
	return err
}

// Done is closed once the connection has been closed.
func (c *Connection) Done() <-chan struct{} {
	return c.ctx.Done()
}

func (c *Connection) JoinedRooms() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	rooms := make([]string, 0, len(c.rooms))
	for id := range c.rooms {
		rooms = append(rooms, id)
	}
	sort.Strings(rooms)
	return rooms
}

func (c *Connection) AddRoom(assignmentID string) {
	c.mu.Lock()
	c.rooms[assignmentID] = struct{}{}
	c.mu.Unlock()
}

func (c *Connection) RemoveRoom(assignmentID string) {
	c.mu.Lock()
	delete(c.rooms, assignmentID)
	c.mu.Unlock()
}
