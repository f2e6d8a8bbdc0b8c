package room

import (
	"sync"

	"go.uber.org/zap"

	"mentorlink/internal/metrics"
	"mentorlink/pkg/interfaces"
	"mentorlink/pkg/types"
)

// Manager owns the membership set of every assignment room.
type Manager struct {
	mu    sync.RWMutex
	rooms map[string]map[string]interfaces.Connection

	sequencer *sequencer
	logger    *zap.Logger
	metrics   *metrics.Metrics
}

func NewManager(logger *zap.Logger, m *metrics.Metrics) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		rooms:     make(map[string]map[string]interfaces.Connection),
		sequencer: newSequencer(),
		logger:    logger,
		metrics:   m,
	}
}

// Join adds conn to the room. It reports false if conn was already a member.
func (m *Manager) Join(assignmentID string, conn interfaces.Connection) bool {
	m.mu.Lock()
	members, exists := m.rooms[assignmentID]
	if !exists {
		members = make(map[string]interfaces.Connection)
		m.rooms[assignmentID] = members
	}
	_, already := members[conn.ID()]
	members[conn.ID()] = conn
	m.mu.Unlock()

	if tracker, ok := conn.(interfaces.RoomTracker); ok {
		tracker.AddRoom(assignmentID)
	}
	if !already {
		m.metrics.RoomMembersChanged(1)
	}
	return !already
}

// Leave removes conn from the room. Empty rooms are dropped.
func (m *Manager) Leave(assignmentID string, conn interfaces.Connection) bool {
	if tracker, ok := conn.(interfaces.RoomTracker); ok {
		tracker.RemoveRoom(assignmentID)
	}

	m.mu.Lock()
	removed := m.removeLocked(assignmentID, conn.ID())
	m.mu.Unlock()

	if removed {
		m.metrics.RoomMembersChanged(-1)
	}
	return removed
}

// LeaveAll removes conn from every room it is in and returns those rooms.
func (m *Manager) LeaveAll(conn interfaces.Connection) []string {
	var candidates []string
	tracker, tracked := conn.(interfaces.RoomTracker)
	if tracked {
		candidates = tracker.JoinedRooms()
	}

	m.mu.Lock()
	if !tracked {
		for assignmentID, members := range m.rooms {
			if _, ok := members[conn.ID()]; ok {
				candidates = append(candidates, assignmentID)
			}
		}
	}

	left := make([]string, 0, len(candidates))
	for _, assignmentID := range candidates {
		if m.removeLocked(assignmentID, conn.ID()) {
			left = append(left, assignmentID)
		}
	}
	m.mu.Unlock()

	if tracked {
		for _, assignmentID := range candidates {
			tracker.RemoveRoom(assignmentID)
		}
	}
	m.metrics.RoomMembersChanged(-len(left))
	return left
}

func (m *Manager) removeLocked(assignmentID, connID string) bool {
	members, exists := m.rooms[assignmentID]
	if !exists {
		return false
	}
	if _, ok := members[connID]; !ok {
		return false
	}
	delete(members, connID)
	if len(members) == 0 {
		delete(m.rooms, assignmentID)
	}
	return true
}

func (m *Manager) IsMember(assignmentID string, conn interfaces.Connection) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	_, ok := m.rooms[assignmentID][conn.ID()]
	return ok
}

// Members returns a snapshot of the room's connections.
func (m *Manager) Members(assignmentID string) []interfaces.Connection {
	m.mu.RLock()
	defer m.mu.RUnlock()

	members := m.rooms[assignmentID]
	snapshot := make([]interfaces.Connection, 0, len(members))
	for _, conn := range members {
		snapshot = append(snapshot, conn)
	}
	return snapshot
}

// Broadcast sends event to every member of the room except the connection
// whose id is exclude, and returns how many sends succeeded. A failed send
// only affects its own recipient.
func (m *Manager) Broadcast(assignmentID string, event types.Event, exclude string) int {
	delivered := 0
	for _, conn := range m.Members(assignmentID) {
		if exclude != "" && conn.ID() == exclude {
			continue
		}
		if err := conn.Send(event); err != nil {
			m.metrics.ObserveDelivery(false)
			m.logger.Debug("broadcast delivery failed",
				zap.String("assignment_id", assignmentID),
				zap.String("event", event.Name),
				zap.String("user_id", conn.Identity().UserID),
				zap.Error(err))
			continue
		}
		m.metrics.ObserveDelivery(true)
		delivered++
	}
	return delivered
}

// Sequence runs fn while holding the assignment's ordering lock so that
// broadcasts leave in the same order writes were persisted.
func (m *Manager) Sequence(assignmentID string, fn func() error) error {
	unlock := m.sequencer.lock(assignmentID)
	defer unlock()
	return fn()
}

// Stats reports the number of rooms and total memberships.
func (m *Manager) Stats() map[string]int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	members := 0
	for _, room := range m.rooms {
		members += len(room)
	}
	return map[string]int{
		"active_rooms": len(m.rooms),
		"room_members": members,
	}
}
