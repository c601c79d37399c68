package domain

import "errors"

var (
	ErrRoomNotFound   = errors.New("room not found")
	ErrUserNotFound   = errors.New("user not found")
	ErrRecordNotFound = errors.New("notification record not found")
	ErrAlreadyExists  = errors.New("already exists")
	ErrInvalidInput   = errors.New("invalid input")

	ErrMissingRoom      = errors.New("missing room id")
	ErrEmptyMessage     = errors.New("empty message")
	ErrMessageTooLong   = errors.New("message too long")
	ErrSenderUnresolved = errors.New("sender cannot be resolved")
	ErrRateLimited      = errors.New("rate limited")
	ErrEndpointGone     = errors.New("push endpoint gone")
)
