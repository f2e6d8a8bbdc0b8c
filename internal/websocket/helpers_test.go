package websocket

import (
	"context"
	"sync"

	"mentorlink/pkg/types"
)

func testContext() (context.Context, context.CancelFunc) {
	return context.WithCancel(context.Background())
}

// fakeConnection is an in-memory interfaces.Connection.
type fakeConnection struct {
	id       string
	identity types.Identity

	mu     sync.Mutex
	events []types.Event
	closed bool
}

func newFakeConnection(id, userID string) *fakeConnection {
	return &fakeConnection{id: id, identity: types.Identity{UserID: userID, Role: types.RoleMentee}}
}

func (f *fakeConnection) ID() string               { return f.id }
func (f *fakeConnection) Identity() types.Identity { return f.identity }

func (f *fakeConnection) Send(event types.Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return ErrConnectionClosed
	}
	f.events = append(f.events, event)
	return nil
}

func (f *fakeConnection) Close() error {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
	return nil
}

func (f *fakeConnection) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}
