package server

import "errors"

var (
	ErrServerClosed       = errors.New("server is closed")
	ErrMaxClientsExceeded = errors.New("maximum clients exceeded")
	ErrSessionNotFound    = errors.New("session not found")
	ErrInvalidFrame       = errors.New("invalid frame")
	ErrSendBufferFull     = errors.New("send buffer full")
)
