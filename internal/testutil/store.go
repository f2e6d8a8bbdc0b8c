package testutil

import (
	"context"
	"fmt"
	"sync"
	"time"

	"mentorlink/pkg/interfaces"
	"mentorlink/pkg/types"
)

// Store is an in-memory interfaces.DatabaseManager. Failing operations can be
// injected through the Err fields.
type Store struct {
	mu          sync.Mutex
	assignments map[string]*types.Assignment
	messages    []*types.AssignmentMessage
	reads       map[string][]string
	nextID      int

	GetErr    error
	UpdateErr error
	CreateErr error
	ReadErr   error

	// UpdateDelay is slept inside UpdateSectionStatus to widen races in tests.
	UpdateDelay time.Duration
}

func NewStore() *Store {
	return &Store{
		assignments: make(map[string]*types.Assignment),
		reads:       make(map[string][]string),
	}
}

// Seed adds an assignment for mentorID and menteeID.
func (s *Store) Seed(id, mentorID, menteeID string) *types.Assignment {
	assignment := &types.Assignment{ID: id, MentorID: mentorID, MenteeID: menteeID, Status: "active"}
	s.mu.Lock()
	s.assignments[id] = assignment
	s.mu.Unlock()
	return assignment
}

func (s *Store) GetAssignment(ctx context.Context, assignmentID string) (*types.Assignment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.GetErr != nil {
		return nil, s.GetErr
	}
	assignment, ok := s.assignments[assignmentID]
	if !ok {
		return nil, interfaces.ErrAssignmentNotFound
	}
	clone := *assignment
	return &clone, nil
}

// SetParticipants replaces the mentor and mentee of an assignment.
func (s *Store) SetParticipants(assignmentID, mentorID, menteeID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if assignment, ok := s.assignments[assignmentID]; ok {
		assignment.MentorID = mentorID
		assignment.MenteeID = menteeID
	}
}

func (s *Store) UpdateSectionStatus(ctx context.Context, assignmentID string, section types.Section, completed bool, at time.Time) (*types.CollaborationSection, error) {
	if s.UpdateDelay > 0 {
		time.Sleep(s.UpdateDelay)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.UpdateErr != nil {
		return nil, s.UpdateErr
	}
	assignment, ok := s.assignments[assignmentID]
	if !ok {
		return nil, interfaces.ErrAssignmentNotFound
	}
	target := assignment.Section(section)
	if target == nil {
		return nil, fmt.Errorf("unknown section %q", section)
	}
	at = at.UTC()
	target.Completed = completed
	target.LastUpdatedAt = &at
	result := *target
	return &result, nil
}

func (s *Store) CreateAssignment(ctx context.Context, assignment *types.Assignment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	clone := *assignment
	s.assignments[assignment.ID] = &clone
	return nil
}

func (s *Store) CreateMessage(ctx context.Context, assignmentID, senderID, body string) (*types.AssignmentMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.CreateErr != nil {
		return nil, s.CreateErr
	}
	s.nextID++
	message := &types.AssignmentMessage{
		ID:           fmt.Sprintf("msg-%d", s.nextID),
		AssignmentID: assignmentID,
		SenderID:     senderID,
		Body:         body,
		CreatedAt:    time.Now().UTC().Truncate(time.Microsecond),
		ReadBy:       []string{},
	}
	s.messages = append(s.messages, message)
	clone := *message
	return &clone, nil
}

func (s *Store) MarkMessagesRead(ctx context.Context, assignmentID string, messageIDs []string, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ReadErr != nil {
		return s.ReadErr
	}
	for _, id := range messageIDs {
		for _, message := range s.messages {
			if message.ID != id || message.AssignmentID != assignmentID {
				continue
			}
			if !contains(s.reads[id], userID) {
				s.reads[id] = append(s.reads[id], userID)
			}
		}
	}
	return nil
}

func (s *Store) ListMessages(ctx context.Context, assignmentID string) ([]*types.AssignmentMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*types.AssignmentMessage
	for _, message := range s.messages {
		if message.AssignmentID != assignmentID {
			continue
		}
		clone := *message
		clone.ReadBy = append([]string{}, s.reads[message.ID]...)
		out = append(out, &clone)
	}
	return out, nil
}

func (s *Store) HealthCheck(ctx context.Context) error { return nil }
func (s *Store) Close() error                          { return nil }

func contains(list []string, value string) bool {
	for _, v := range list {
		if v == value {
			return true
		}
	}
	return false
}
