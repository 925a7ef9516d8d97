package domain

import "errors"

var (
	// ErrNotConnected means an operation referenced an unknown connection id.
	ErrNotConnected = errors.New("connection not registered")

	// ErrRecipientUnavailable means a signal target is gone or in another room.
	ErrRecipientUnavailable = errors.New("recipient unavailable")

	// ErrTransportFailure means a write to a connection could not be queued.
	ErrTransportFailure = errors.New("transport failure")

	ErrEmptyRoomID      = errors.New("room id cannot be empty")
	ErrMalformedMessage = errors.New("malformed message")
)
