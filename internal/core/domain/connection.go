package domain

import (
	"sort"
	"time"
)

type ConnState int

const (
	StateRegistered ConnState = iota
	StateInRoom
	StateClosed
)

func (s ConnState) String() string {
	switch s {
	case StateRegistered:
		return "registered"
	case StateInRoom:
		return "in_room"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Connection is the registry's view of one live transport session.
// RoomID is empty until the connection joins a room.
type Connection struct {
	ID          ConnectionID
	RoomID      RoomID
	State       ConnState
	ConnectedAt time.Time
}

func (c Connection) InRoom() bool {
	return c.State == StateInRoom && c.RoomID != ""
}

// Room is a point-in-time snapshot of a room's membership.
type Room struct {
	ID      RoomID         `json:"id"`
	Members []ConnectionID `json:"members"`
}

// Departure describes a connection leaving a room: the room it left and who
// was still in it right after.
type Departure struct {
	ConnectionID ConnectionID
	RoomID       RoomID
	Remaining    []ConnectionID
}

type RegistryStats struct {
	Connections int `json:"connections"`
	Rooms       int `json:"rooms"`
}

// SortIDs orders ids in place so snapshots are deterministic.
func SortIDs(ids []ConnectionID) {
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
}
