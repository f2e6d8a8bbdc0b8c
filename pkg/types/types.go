package types

import (
	"time"
)

// Roles carried by an authenticated connection.
const (
	RoleMentor = "mentor"
	RoleMentee = "mentee"
	RoleAdmin  = "admin"
)

// Section names one of the three collaboration stages of an assignment.
type Section string

const (
	SectionLessonPlanReview Section = "lessonPlanReview"
	SectionExamPlanReview   Section = "examPlanReview"
	SectionDayOfPreparation Section = "dayOfPreparation"
)

// Sections lists the collaboration sections in their natural workflow order.
// The order is informational only; sections are independent toggles.
var Sections = []Section{
	SectionLessonPlanReview,
	SectionExamPlanReview,
	SectionDayOfPreparation,
}

// Identity is the immutable result of authenticating a transport connection.
// It is produced once at connect time and never mutated afterwards.
type Identity struct {
	UserID    string `json:"userId"`
	Role      string `json:"role"`
	FirstName string `json:"firstName,omitempty"`
}

// IsAdmin reports whether the identity claims the administrator role.
func (i Identity) IsAdmin() bool {
	return i.Role == RoleAdmin
}

// CollaborationSection is one checklist/file-exchange stage of an assignment.
type CollaborationSection struct {
	FileReference *string    `json:"fileReference,omitempty" db:"file_reference"`
	Notes         *string    `json:"notes,omitempty" db:"notes"`
	Completed     bool       `json:"completed" db:"completed"`
	LastUpdatedAt *time.Time `json:"lastUpdatedAt,omitempty" db:"last_updated_at"`
}

// Assignment is a bounded mentor-mentee engagement. The core reads the
// participants and mutates only the collaboration sections.
type Assignment struct {
	ID       string `json:"id" db:"id"`
	MentorID string `json:"mentorId" db:"mentor_id"`
	MenteeID string `json:"menteeId" db:"mentee_id"`
	Status   string `json:"status" db:"status"`

	LessonPlanReview CollaborationSection `json:"lessonPlanReview"`
	ExamPlanReview   CollaborationSection `json:"examPlanReview"`
	DayOfPreparation CollaborationSection `json:"dayOfPreparation"`
}

// Section returns a pointer to the named collaboration section, or nil for an
// unknown name.
func (a *Assignment) Section(name Section) *CollaborationSection {
	switch name {
	case SectionLessonPlanReview:
		return &a.LessonPlanReview
	case SectionExamPlanReview:
		return &a.ExamPlanReview
	case SectionDayOfPreparation:
		return &a.DayOfPreparation
	default:
		return nil
	}
}

// IsParticipant reports whether userID is the mentor or mentee of the assignment.
func (a *Assignment) IsParticipant(userID string) bool {
	return userID != "" && (userID == a.MentorID || userID == a.MenteeID)
}

// CanAccess reports whether the identity may read or mutate the assignment's
// collaboration state.
func (a *Assignment) CanAccess(identity Identity) bool {
	return identity.IsAdmin() || a.IsParticipant(identity.UserID)
}

// AssignmentMessage is a persisted chat message. ReadBy only ever grows.
type AssignmentMessage struct {
	ID           string    `json:"id" db:"id"`
	AssignmentID string    `json:"assignmentId" db:"assignment_id"`
	SenderID     string    `json:"senderId" db:"sender_id"`
	Body         string    `json:"body" db:"body"`
	CreatedAt    time.Time `json:"createdAt" db:"created_at"`
	ReadBy       []string  `json:"readBy"`
}

// Notification is an in-flight copy of a notification owned by the REST layer.
// Only UserID and Payload are needed to route it.
type Notification struct {
	ID        string      `json:"id,omitempty"`
	UserID    string      `json:"userId"`
	Type      string      `json:"type,omitempty"`
	Payload   interface{} `json:"payload"`
	Read      bool        `json:"read,omitempty"`
	CreatedAt *time.Time  `json:"createdAt,omitempty"`
}
