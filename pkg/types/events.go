package types

import (
	"encoding/json"
	"time"
)

// Wire event names.
const (
	EventJoinAssignment      = "joinAssignment"
	EventJoinedAssignment    = "joinedAssignment"
	EventLeaveAssignment     = "leaveAssignment"
	EventLeftAssignment      = "leftAssignment"
	EventChatMessage         = "chat:message"
	EventCollaborationUpdate = "collaboration:update"
	EventTyping              = "typing"
	EventStopTyping          = "stopTyping"
	EventMessageRead         = "message:read"
	EventNotification        = "notification"
	EventError               = "error"
	EventPing                = "ping"
	EventPong                = "pong"
)

// Event is the outbound envelope written to a connection.
type Event struct {
	Name string      `json:"event"`
	Data interface{} `json:"data,omitempty"`
}

// InboundEvent is the envelope read from a connection. Data is decoded into
// one of the typed payloads below once the name is known.
type InboundEvent struct {
	Name string          `json:"event"`
	Data json.RawMessage `json:"data"`
}

// AssignmentRef is the payload of joinAssignment, leaveAssignment and their
// confirmations.
type AssignmentRef struct {
	AssignmentID string `json:"assignmentId" validate:"required,max=50"`
}

// ChatMessageRequest is the inbound chat:message payload.
type ChatMessageRequest struct {
	AssignmentID string `json:"assignmentId" validate:"required,max=50"`
	Message      string `json:"message"`
}

// ChatMessageEvent is the broadcast chat:message payload.
type ChatMessageEvent struct {
	AssignmentID string             `json:"assignmentId"`
	Message      *AssignmentMessage `json:"message"`
}

// CollaborationUpdateRequest is the inbound collaboration:update payload.
type CollaborationUpdateRequest struct {
	AssignmentID string  `json:"assignmentId" validate:"required,max=50"`
	Section      Section `json:"section" validate:"required,oneof=lessonPlanReview examPlanReview dayOfPreparation"`
	Completed    *bool   `json:"completed" validate:"required"`
}

// CollaborationUpdateEvent is the broadcast collaboration:update payload.
type CollaborationUpdateEvent struct {
	AssignmentID  string    `json:"assignmentId"`
	Section       Section   `json:"section"`
	Completed     bool      `json:"completed"`
	LastUpdatedAt time.Time `json:"lastUpdatedAt"`
}

// TypingPayload is relayed verbatim (after identity stamping) for typing and
// stopTyping.
type TypingPayload struct {
	AssignmentID string `json:"assignmentId" validate:"required,max=50"`
	UserID       string `json:"userId"`
	FirstName    string `json:"firstName"`
}

// MessageReadRequest is the inbound message:read payload.
type MessageReadRequest struct {
	AssignmentID string   `json:"assignmentId" validate:"required,max=50"`
	MessageIDs   []string `json:"messageIds" validate:"required,min=1,dive,required"`
	UserID       string   `json:"userId" validate:"required"`
}

// MessageReadEvent is the broadcast message:read payload.
type MessageReadEvent struct {
	AssignmentID string   `json:"assignmentId"`
	MessageIDs   []string `json:"messageIds"`
	UserID       string   `json:"userId"`
}

// ErrorEvent is sent to the originating connection only.
type ErrorEvent struct {
	Message string `json:"message"`
}

// NewEvent builds an outbound envelope.
func NewEvent(name string, data interface{}) Event {
	return Event{Name: name, Data: data}
}
