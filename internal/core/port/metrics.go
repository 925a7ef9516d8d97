package port

type Metrics interface {
	ConnectionOpened()
	ConnectionClosed()
	RoomJoined()
	SignalRelayed()
	SignalDropped(reason string)
	NotificationFailed(event string)
	RoomsActive(n int)
}
