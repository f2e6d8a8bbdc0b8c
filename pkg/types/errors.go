package types

import "errors"

var (
	ErrEmptyMessageBody   = errors.New("message body cannot be empty")
	ErrMessageBodyTooLong = errors.New("message body is too long")
)
