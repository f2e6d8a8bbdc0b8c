package types

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAssignment_CanAccess(t *testing.T) {
	a := &Assignment{ID: "A-1", MentorID: "mentor_m", MenteeID: "mentee_n"}

	tests := []struct {
		name     string
		identity Identity
		want     bool
	}{
		{"mentor", Identity{UserID: "mentor_m", Role: RoleMentor}, true},
		{"mentee", Identity{UserID: "mentee_n", Role: RoleMentee}, true},
		{"admin not participant", Identity{UserID: "admin_1", Role: RoleAdmin}, true},
		{"unrelated mentor", Identity{UserID: "user_x", Role: RoleMentor}, false},
		{"participant id but empty", Identity{UserID: "", Role: RoleMentee}, false},
		{"role does not grant mentor access", Identity{UserID: "user_x", Role: "mentor "}, false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, a.CanAccess(tc.identity))
		})
	}
}

func TestAssignment_EmptyParticipantDoesNotMatchEmptyUser(t *testing.T) {
	a := &Assignment{ID: "A-2", MentorID: "mentor_m"}
	assert.False(t, a.IsParticipant(""))
}

func TestAssignment_Section(t *testing.T) {
	a := &Assignment{}
	now := time.Now()

	a.Section(SectionExamPlanReview).Completed = true
	a.Section(SectionDayOfPreparation).LastUpdatedAt = &now

	assert.True(t, a.ExamPlanReview.Completed)
	assert.False(t, a.LessonPlanReview.Completed)
	require.NotNil(t, a.DayOfPreparation.LastUpdatedAt)
	assert.Nil(t, a.Section("finalReview"))
}

func TestIsValidID(t *testing.T) {
	assert.True(t, IsValidID("A-1"))
	assert.True(t, IsValidID("6512bd43d9caa6e02c990b0a"))
	assert.True(t, IsValidID("user_123"))
	assert.False(t, IsValidID(""))
	assert.False(t, IsValidID(strings.Repeat("a", 51)))
	assert.False(t, IsValidID("a b"))
	assert.False(t, IsValidID("id;drop"))
}

func TestIsValidSection(t *testing.T) {
	for _, s := range Sections {
		assert.True(t, IsValidSection(s), s)
	}
	assert.False(t, IsValidSection("lessonplanreview"))
	assert.False(t, IsValidSection(""))
}

func TestIsValidRole(t *testing.T) {
	assert.True(t, IsValidRole(RoleMentor))
	assert.True(t, IsValidRole(RoleMentee))
	assert.True(t, IsValidRole(RoleAdmin))
	assert.False(t, IsValidRole("administrator"))
}

func TestNormalizeBody(t *testing.T) {
	body, err := NormalizeBody("  ready to review \n", 100)
	require.NoError(t, err)
	assert.Equal(t, "ready to review", body)

	_, err = NormalizeBody(" \t\n ", 100)
	assert.ErrorIs(t, err, ErrEmptyMessageBody)

	_, err = NormalizeBody("", 0)
	assert.ErrorIs(t, err, ErrEmptyMessageBody)

	_, err = NormalizeBody(strings.Repeat("é", 11), 10)
	assert.ErrorIs(t, err, ErrMessageBodyTooLong)

	body, err = NormalizeBody(strings.Repeat("é", 10), 10)
	require.NoError(t, err)
	assert.Len(t, []rune(body), 10)
}

func TestEvent_WireShape(t *testing.T) {
	data, err := json.Marshal(NewEvent(EventJoinedAssignment, AssignmentRef{AssignmentID: "A-1"}))
	require.NoError(t, err)
	assert.JSONEq(t, `{"event":"joinedAssignment","data":{"assignmentId":"A-1"}}`, string(data))

	data, err = json.Marshal(NewEvent(EventError, ErrorEvent{Message: "Unauthorized to access this assignment"}))
	require.NoError(t, err)
	assert.JSONEq(t, `{"event":"error","data":{"message":"Unauthorized to access this assignment"}}`, string(data))
}

func TestInboundEvent_DecodesRawData(t *testing.T) {
	var in InboundEvent
	require.NoError(t, json.Unmarshal([]byte(`{"event":"collaboration:update","data":{"assignmentId":"A-1","section":"lessonPlanReview","completed":false}}`), &in))
	assert.Equal(t, EventCollaborationUpdate, in.Name)

	var req CollaborationUpdateRequest
	require.NoError(t, json.Unmarshal(in.Data, &req))
	assert.Equal(t, SectionLessonPlanReview, req.Section)
	require.NotNil(t, req.Completed)
	assert.False(t, *req.Completed)
}
