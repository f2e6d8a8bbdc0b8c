package websocket

import "errors"

// Connection-related errors
var (
	ErrConnectionClosed = errors.New("connection closed")
	ErrSendBufferFull   = errors.New("send buffer full")
	ErrInvalidJSON      = errors.New("invalid JSON data")
)

// Registry-related errors
var (
	ErrNilConnection   = errors.New("connection cannot be nil")
	ErrMissingIdentity = errors.New("connection has no user id")
)

// Handler-related errors
var (
	ErrMissingToken = errors.New("missing access token")
)
