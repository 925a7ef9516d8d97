package domain

import (
	"strings"

	"github.com/google/uuid"
)

// ConnectionID is assigned by the relay when a transport is accepted.
type ConnectionID string

// RoomID is supplied by clients; rooms exist only while they have members.
type RoomID string

func NewConnectionID() ConnectionID {
	return ConnectionID(uuid.New().String())
}

func (id ConnectionID) String() string {
	return string(id)
}

func (id RoomID) String() string {
	return string(id)
}

// ParseRoomID trims surrounding whitespace and rejects empty ids.
func ParseRoomID(s string) (RoomID, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", ErrEmptyRoomID
	}
	return RoomID(s), nil
}
