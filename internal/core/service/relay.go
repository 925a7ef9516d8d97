package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/Wyydra/devmeet/internal/core/domain"
	"github.com/Wyydra/devmeet/internal/core/port"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Drop reasons reported to metrics.
const (
	DropUnknownRecipient = "unknown_recipient"
	DropNotColocated     = "not_colocated"
	DropSenderNotInRoom  = "sender_not_in_room"
	DropTransport        = "transport"
)

// RelayService turns client control messages into registry operations and
// point-to-point deliveries.
type RelayService struct {
	registry  port.SessionRegistry
	transport port.Transport
	metrics   port.Metrics
}

func NewRelayService(registry port.SessionRegistry, transport port.Transport, metrics port.Metrics) *RelayService {
	return &RelayService{
		registry:  registry,
		transport: transport,
		metrics:   metrics,
	}
}

// Connect registers a freshly accepted transport and returns its id.
func (s *RelayService) Connect(ctx context.Context) domain.Connection {
	c := s.registry.Register()
	s.metrics.ConnectionOpened()
	log.Info().Str("conn_id", c.ID.String()).Msg("Client connected")
	return c
}

// Handle dispatches one inbound message from a connection.
func (s *RelayService) Handle(ctx context.Context, from domain.ConnectionID, msg domain.Inbound) error {
	switch msg.Kind {
	case domain.KindJoin:
		_, err := s.Join(ctx, from, msg.RoomID)
		return err
	case domain.KindSignal:
		env, err := domain.NewEnvelope(from, msg.To, msg.Payload)
		if err != nil {
			return err
		}
		return s.Signal(ctx, *env)
	case domain.KindDisconnect:
		s.Disconnect(ctx, from)
		return nil
	default:
		return fmt.Errorf("%w: unknown kind %d", domain.ErrMalformedMessage, msg.Kind)
	}
}

// Join puts the connection into room and tells every member already there
// about it. The newcomer is not told about them; it waits for their offers.
// A connection in another room leaves that room first.
func (s *RelayService) Join(ctx context.Context, id domain.ConnectionID, room domain.RoomID) ([]domain.ConnectionID, error) {
	l := log.With().Str("conn_id", id.String()).Str("room_id", room.String()).Logger()

	if room == "" {
		return nil, domain.ErrEmptyRoomID
	}

	current, ok := s.registry.RoomOf(id)
	if ok && current == room {
		l.Debug().Msg("Already in room, ignoring join")
		return s.others(room, id), nil
	}
	if ok {
		if dep, left := s.registry.Leave(id); left {
			l.Info().Str("previous_room", dep.RoomID.String()).Msg("Switching rooms")
			s.broadcast(ctx, dep.Remaining, domain.UserDisconnected(id))
			s.roomsChanged()
		}
	}

	existing, err := s.registry.Join(id, room)
	if err != nil {
		return nil, fmt.Errorf("join %s: %w", room, err)
	}
	s.metrics.RoomJoined()
	s.roomsChanged()

	l.Info().Int("existing", len(existing)).Msg("Client joined room")
	s.broadcast(ctx, existing, domain.UserJoined(id))
	return existing, nil
}

// Signal forwards env to its single recipient when both ends share a room.
// Anything else is dropped; the sender gets no error event.
func (s *RelayService) Signal(ctx context.Context, env domain.Envelope) error {
	l := log.With().
		Str("conn_id", env.From.String()).
		Str("to", env.To.String()).
		Logger()

	senderRoom, ok := s.registry.RoomOf(env.From)
	if !ok {
		return s.drop(l, DropSenderNotInRoom)
	}
	target, ok := s.registry.Lookup(env.To)
	if !ok {
		return s.drop(l, DropUnknownRecipient)
	}
	if !target.InRoom() || target.RoomID != senderRoom {
		return s.drop(l, DropNotColocated)
	}

	if err := s.transport.Send(ctx, env.To, env.Relayed()); err != nil {
		// Recipient went away between lookup and send.
		s.metrics.SignalDropped(DropTransport)
		l.Warn().Err(err).Msg("Signal delivery failed")
		return errors.Join(domain.ErrRecipientUnavailable, err)
	}

	s.metrics.SignalRelayed()
	l.Debug().Str("room_id", senderRoom.String()).Msg("Relayed signal")
	return nil
}

// Disconnect cleans up after a closed transport. Safe to call more than once;
// remaining members are notified only by the first call.
func (s *RelayService) Disconnect(ctx context.Context, id domain.ConnectionID) {
	l := log.With().Str("conn_id", id.String()).Logger()

	dep, known := s.registry.Unregister(id)
	if !known {
		l.Debug().Msg("Disconnect for unknown connection")
		return
	}
	s.metrics.ConnectionClosed()
	if dep.RoomID == "" {
		l.Info().Msg("Client disconnected")
		return
	}

	s.roomsChanged()
	l.Info().Str("room_id", dep.RoomID.String()).Int("remaining", len(dep.Remaining)).Msg("Client disconnected")
	s.broadcast(ctx, dep.Remaining, domain.UserDisconnected(id))
}

// Rooms returns a membership snapshot of every live room.
func (s *RelayService) Rooms() []domain.Room {
	return s.registry.Rooms()
}

func (s *RelayService) Room(id domain.RoomID) (domain.Room, bool) {
	members := s.registry.Members(id)
	if len(members) == 0 {
		return domain.Room{}, false
	}
	return domain.Room{ID: id, Members: members}, true
}

func (s *RelayService) Stats() domain.RegistryStats {
	return s.registry.Stats()
}

// broadcast sends ev to each recipient independently. A failed send is
// logged and skipped.
func (s *RelayService) broadcast(ctx context.Context, to []domain.ConnectionID, ev domain.Outbound) {
	for _, id := range to {
		if err := s.transport.Send(ctx, id, ev); err != nil {
			s.metrics.NotificationFailed(ev.Event)
			log.Warn().Err(err).
				Str("to", id.String()).
				Str("event", ev.Event).
				Msg("Notification not delivered")
		}
	}
}

func (s *RelayService) others(room domain.RoomID, self domain.ConnectionID) []domain.ConnectionID {
	members := s.registry.Members(room)
	out := make([]domain.ConnectionID, 0, len(members))
	for _, m := range members {
		if m != self {
			out = append(out, m)
		}
	}
	return out
}

func (s *RelayService) drop(l zerolog.Logger, reason string) error {
	s.metrics.SignalDropped(reason)
	l.Warn().Str("reason", reason).Msg("Dropping signal")
	return fmt.Errorf("%w: %s", domain.ErrRecipientUnavailable, reason)
}

func (s *RelayService) roomsChanged() {
	s.metrics.RoomsActive(s.registry.Stats().Rooms)
}
