// Package testutil holds in-memory collaborators shared by package tests.
package testutil

import (
	"errors"
	"sort"
	"sync"

	"mentorlink/pkg/types"
)

var ErrClosed = errors.New("fake connection closed")

// Conn is an in-memory interfaces.Connection and interfaces.RoomTracker that
// records every event sent to it.
type Conn struct {
	id       string
	identity types.Identity

	mu      sync.Mutex
	events  []types.Event
	rooms   map[string]struct{}
	closed  bool
	sendErr error
}

func NewConn(id string, identity types.Identity) *Conn {
	return &Conn{id: id, identity: identity, rooms: make(map[string]struct{})}
}

func (c *Conn) ID() string               { return c.id }
func (c *Conn) Identity() types.Identity { return c.identity }

func (c *Conn) Send(event types.Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	if c.sendErr != nil {
		return c.sendErr
	}
	c.events = append(c.events, event)
	return nil
}

func (c *Conn) Close() error {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	return nil
}

// FailSends makes every later Send return err.
func (c *Conn) FailSends(err error) {
	c.mu.Lock()
	c.sendErr = err
	c.mu.Unlock()
}

func (c *Conn) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// Events returns a copy of everything sent so far.
func (c *Conn) Events() []types.Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]types.Event(nil), c.events...)
}

// EventsNamed returns the sent events with the given name.
func (c *Conn) EventsNamed(name string) []types.Event {
	var out []types.Event
	for _, event := range c.Events() {
		if event.Name == name {
			out = append(out, event)
		}
	}
	return out
}

// Last returns the most recent event, or false if none was sent.
func (c *Conn) Last() (types.Event, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.events) == 0 {
		return types.Event{}, false
	}
	return c.events[len(c.events)-1], true
}

func (c *Conn) Reset() {
	c.mu.Lock()
	c.events = nil
	c.mu.Unlock()
}

func (c *Conn) JoinedRooms() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	rooms := make([]string, 0, len(c.rooms))
	for id := range c.rooms {
		rooms = append(rooms, id)
	}
	sort.Strings(rooms)
	return rooms
}

func (c *Conn) AddRoom(assignmentID string) {
	c.mu.Lock()
	c.rooms[assignmentID] = struct{}{}
	c.mu.Unlock()
}

func (c *Conn) RemoveRoom(assignmentID string) {
	c.mu.Lock()
	delete(c.rooms, assignmentID)
	c.mu.Unlock()
}
