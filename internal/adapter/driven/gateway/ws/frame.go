package ws

import (
	"encoding/json"
	"fmt"

	"github.com/Wyydra/devmeet/internal/core/domain"
)

// Frame is the JSON envelope of every websocket text message, in both
// directions: {"event": "...", "data": ...}.
type Frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

func EncodeOutbound(ev domain.Outbound) ([]byte, error) {
	data, err := json.Marshal(ev.Data)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", ev.Event, err)
	}
	return json.Marshal(Frame{Event: ev.Event, Data: data})
}

// DecodeInbound parses a client frame into a relay message. Only join-room
// and signal are accepted from clients; disconnects come from the transport.
func DecodeInbound(raw []byte) (domain.Inbound, error) {
	var f Frame
	if err := json.Unmarshal(raw, &f); err != nil {
		return domain.Inbound{}, fmt.Errorf("%w: %v", domain.ErrMalformedMessage, err)
	}

	switch f.Event {
	case domain.EventJoinRoom:
		var room string
		if err := json.Unmarshal(f.Data, &room); err != nil {
			return domain.Inbound{}, fmt.Errorf("%w: join-room wants a string: %v", domain.ErrMalformedMessage, err)
		}
		id, err := domain.ParseRoomID(room)
		if err != nil {
			return domain.Inbound{}, err
		}
		return domain.JoinMessage(id), nil

	case domain.EventSignal:
		var sig domain.OutgoingSignal
		if err := json.Unmarshal(f.Data, &sig); err != nil {
			return domain.Inbound{}, fmt.Errorf("%w: signal: %v", domain.ErrMalformedMessage, err)
		}
		return domain.SignalMessage(sig.To, sig.Signal), nil

	default:
		return domain.Inbound{}, fmt.Errorf("%w: unknown event %q", domain.ErrMalformedMessage, f.Event)
	}
}
