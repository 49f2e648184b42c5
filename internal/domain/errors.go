package domain

import "errors"

var (
	ErrNotFound             = errors.New("not found")
	ErrAlreadyExists        = errors.New("already exists")
	ErrWSDisconnect         = errors.New("websocket disconnected")
	ErrLockHeld             = errors.New("lock already held")
	ErrInvalidRule          = errors.New("invalid alert rule")
	ErrUnsupportedChannel   = errors.New("unsupported channel")
	ErrChannelNotConfigured = errors.New("channel not configured")
)
