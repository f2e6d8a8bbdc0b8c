package errors

import (
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromError_UnknownBecomesInternal(t *testing.T) {
	cause := stderrors.New("disk I/O error")
	e := FromError(fmt.Errorf("insert message: %w", cause))

	require.NotNil(t, e)
	assert.Equal(t, KindInternal, e.Kind)
	assert.Equal(t, "Internal server error", e.Message)
	assert.ErrorIs(t, e, cause)
}

func TestFromError_KeepsTypedError(t *testing.T) {
	wrapped := fmt.Errorf("join: %w", ErrUnauthorized)
	e := FromError(wrapped)

	assert.Same(t, ErrUnauthorized, e)
	assert.Equal(t, KindUnauthorized, KindOf(wrapped))
}

func TestFromError_Nil(t *testing.T) {
	assert.Nil(t, FromError(nil))
	assert.Equal(t, Kind(""), KindOf(nil))
}

func TestIs_MatchesKindAndMessage(t *testing.T) {
	copyErr := New(KindNotFound, "Assignment not found")
	assert.ErrorIs(t, copyErr, ErrAssignmentNotFound)
	assert.NotErrorIs(t, ErrNotJoined, ErrUnauthorized)
}

func TestError_String(t *testing.T) {
	assert.Equal(t, "Invalid input", ErrInvalidInput.Error())
	assert.Equal(t, "Internal server error: boom", Internal(stderrors.New("boom")).Error())

	var nilErr *Error
	assert.Equal(t, "<nil>", nilErr.Error())
}
