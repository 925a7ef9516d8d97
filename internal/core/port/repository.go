package port

import "github.com/Wyydra/devmeet/internal/core/domain"

// SessionRegistry is the authoritative store of connections and rooms.
// Every method is linearizable with respect to the others.
type SessionRegistry interface {
	Register() domain.Connection
	Join(id domain.ConnectionID, room domain.RoomID) ([]domain.ConnectionID, error)
	// Leave reports true only on the call that actually removed id from a room.
	Leave(id domain.ConnectionID) (domain.Departure, bool)
	// Unregister leaves the current room and drops id from the connection
	// table. It reports false when id was not registered. The departure is
	// zero when the connection was not in a room.
	Unregister(id domain.ConnectionID) (domain.Departure, bool)
	Lookup(id domain.ConnectionID) (domain.Connection, bool)
	RoomOf(id domain.ConnectionID) (domain.RoomID, bool)
	Members(room domain.RoomID) []domain.ConnectionID
	Rooms() []domain.Room
	Stats() domain.RegistryStats
}
