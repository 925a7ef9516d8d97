package domain

import (
	"encoding/json"
	"errors"
)

// Wire event names. These are shared with the browser client and must not change.
const (
	EventConnected        = "connected"
	EventJoinRoom         = "join-room"
	EventUserJoined       = "user-joined"
	EventSignal           = "signal"
	EventUserDisconnected = "user-disconnected"
)

type InboundKind int

const (
	KindJoin InboundKind = iota + 1
	KindSignal
	KindDisconnect
)

func (k InboundKind) String() string {
	switch k {
	case KindJoin:
		return "join"
	case KindSignal:
		return "signal"
	case KindDisconnect:
		return "disconnect"
	default:
		return "unknown"
	}
}

// Inbound is one control message from a client. Which fields are set
// depends on Kind: RoomID for KindJoin, To and Payload for KindSignal.
type Inbound struct {
	Kind    InboundKind
	RoomID  RoomID
	To      ConnectionID
	Payload json.RawMessage
}

func JoinMessage(room RoomID) Inbound {
	return Inbound{Kind: KindJoin, RoomID: room}
}

func SignalMessage(to ConnectionID, payload json.RawMessage) Inbound {
	return Inbound{Kind: KindSignal, To: to, Payload: payload}
}

func DisconnectMessage() Inbound {
	return Inbound{Kind: KindDisconnect}
}

// Envelope is a relayed negotiation payload. The relay never looks inside Payload.
type Envelope struct {
	From    ConnectionID
	To      ConnectionID
	Payload json.RawMessage
}

func NewEnvelope(from, to ConnectionID, payload json.RawMessage) (*Envelope, error) {
	if to == "" {
		return nil, errors.Join(ErrMalformedMessage, errors.New("signal has no recipient"))
	}
	if len(payload) == 0 {
		return nil, errors.Join(ErrMalformedMessage, errors.New("signal has no payload"))
	}
	return &Envelope{
		From:    from,
		To:      to,
		Payload: payload,
	}, nil
}

// Outbound is an event addressed to a single connection.
type Outbound struct {
	Event string
	Data  any
}

// RelayedSignal is the data of a relay -> recipient signal event.
type RelayedSignal struct {
	From   ConnectionID    `json:"from"`
	Signal json.RawMessage `json:"signal"`
}

// OutgoingSignal is the data of a client -> relay signal event.
type OutgoingSignal struct {
	To     ConnectionID    `json:"to"`
	Signal json.RawMessage `json:"signal"`
}

func UserJoined(id ConnectionID) Outbound {
	return Outbound{Event: EventUserJoined, Data: id}
}

func UserDisconnected(id ConnectionID) Outbound {
	return Outbound{Event: EventUserDisconnected, Data: id}
}

func Connected(id ConnectionID) Outbound {
	return Outbound{Event: EventConnected, Data: id}
}

func (e Envelope) Relayed() Outbound {
	return Outbound{
		Event: EventSignal,
		Data:  RelayedSignal{From: e.From, Signal: e.Payload},
	}
}
