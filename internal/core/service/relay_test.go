package service

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"

	"github.com/Wyydra/devmeet/internal/adapter/driven/metrics"
	"github.com/Wyydra/devmeet/internal/adapter/driven/persistence/memory"
	"github.com/Wyydra/devmeet/internal/core/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type delivery struct {
	To domain.ConnectionID
	Ev domain.Outbound
}

// fakeTransport records every send. Sends to ids in fail return
// ErrTransportFailure, like a closed socket would.
type fakeTransport struct {
	mu   sync.Mutex
	sent []delivery
	fail map[domain.ConnectionID]bool
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{fail: make(map[domain.ConnectionID]bool)}
}

func (f *fakeTransport) Send(ctx context.Context, to domain.ConnectionID, ev domain.Outbound) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail[to] {
		return domain.ErrTransportFailure
	}
	f.sent = append(f.sent, delivery{To: to, Ev: ev})
	return nil
}

func (f *fakeTransport) breakConn(id domain.ConnectionID) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fail[id] = true
}

func (f *fakeTransport) to(id domain.ConnectionID) []domain.Outbound {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.Outbound
	for _, d := range f.sent {
		if d.To == id {
			out = append(out, d.Ev)
		}
	}
	return out
}

func (f *fakeTransport) total() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

type fixture struct {
	relay     *RelayService
	registry  *memory.Registry
	transport *fakeTransport
}

func newFixture() *fixture {
	var n int
	reg := memory.NewRegistry(memory.WithIDGenerator(func() domain.ConnectionID {
		n++
		return domain.ConnectionID(fmt.Sprintf("conn-%d", n))
	}))
	tr := newFakeTransport()
	return &fixture{
		relay:     NewRelayService(reg, tr, metrics.NewPrometheus()),
		registry:  reg,
		transport: tr,
	}
}

func (f *fixture) connect() domain.ConnectionID {
	return f.relay.Connect(context.Background()).ID
}

func offer() json.RawMessage {
	return json.RawMessage(`{"type":"offer","sdp":"v=0"}`)
}

func TestRelay_TwoPeerScenario(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	a := f.connect()
	b := f.connect()

	got, err := f.relay.Join(ctx, a, "r1")
	require.NoError(t, err)
	assert.Empty(t, got)

	got, err = f.relay.Join(ctx, b, "r1")
	require.NoError(t, err)
	assert.Equal(t, []domain.ConnectionID{a}, got)

	assert.Equal(t, []domain.Outbound{domain.UserJoined(b)}, f.transport.to(a))
	assert.Empty(t, f.transport.to(b), "newcomer is not told about existing members")

	require.NoError(t, f.relay.Handle(ctx, a, domain.SignalMessage(b, json.RawMessage(`{"type":"offer"}`))))
	assert.Equal(t, []domain.Outbound{{
		Event: domain.EventSignal,
		Data:  domain.RelayedSignal{From: a, Signal: json.RawMessage(`{"type":"offer"}`)},
	}}, f.transport.to(b))

	require.NoError(t, f.relay.Handle(ctx, a, domain.DisconnectMessage()))
	bGot := f.transport.to(b)
	require.Len(t, bGot, 2)
	assert.Equal(t, domain.UserDisconnected(a), bGot[1])

	assert.Equal(t, []domain.ConnectionID{b}, f.registry.Members("r1"))
}

func TestRelay_SignalToUnknownIsDropped(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	c := f.connect()
	_, _ = f.relay.Join(ctx, c, "r1")

	err := f.relay.Handle(ctx, c, domain.SignalMessage("unknown-id", offer()))

	assert.ErrorIs(t, err, domain.ErrRecipientUnavailable)
	assert.Zero(t, f.transport.total(), "no delivery and no error event")
}

func TestRelay_SignalAcrossRoomsIsDropped(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	a := f.connect()
	b := f.connect()
	_, _ = f.relay.Join(ctx, a, "r1")
	_, _ = f.relay.Join(ctx, b, "r2")

	err := f.relay.Signal(ctx, domain.Envelope{From: a, To: b, Payload: offer()})

	assert.ErrorIs(t, err, domain.ErrRecipientUnavailable)
	assert.Empty(t, f.transport.to(b))
}

func TestRelay_SignalFromOutsideRoomIsDropped(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	a := f.connect()
	b := f.connect()
	_, _ = f.relay.Join(ctx, b, "r1")

	err := f.relay.Signal(ctx, domain.Envelope{From: a, To: b, Payload: offer()})

	assert.ErrorIs(t, err, domain.ErrRecipientUnavailable)
	assert.Empty(t, f.transport.to(b))
}

func TestRelay_SignalToRecipientOutsideRoomIsDropped(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	a := f.connect()
	b := f.connect()
	_, _ = f.relay.Join(ctx, a, "r1")

	err := f.relay.Signal(ctx, domain.Envelope{From: a, To: b, Payload: offer()})

	assert.ErrorIs(t, err, domain.ErrRecipientUnavailable)
	assert.Zero(t, f.transport.total())
}

func TestRelay_SignalReachesOnlyNamedRecipient(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	a := f.connect()
	b := f.connect()
	c := f.connect()
	for _, id := range []domain.ConnectionID{a, b, c} {
		_, err := f.relay.Join(ctx, id, "r1")
		require.NoError(t, err)
	}
	before := f.transport.total()

	require.NoError(t, f.relay.Signal(ctx, domain.Envelope{From: c, To: a, Payload: offer()}))

	assert.Equal(t, before+1, f.transport.total())
	last := f.transport.to(a)
	assert.Equal(t, domain.EventSignal, last[len(last)-1].Event)
	for _, ev := range f.transport.to(b) {
		assert.NotEqual(t, domain.EventSignal, ev.Event)
	}
}

func TestRelay_SignalRaceWithRecipientDisconnect(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	a := f.connect()
	b := f.connect()
	_, _ = f.relay.Join(ctx, a, "r1")
	_, _ = f.relay.Join(ctx, b, "r1")

	// The socket is already gone but the read pump has not reported it yet.
	f.transport.breakConn(b)
	err := f.relay.Signal(ctx, domain.Envelope{From: a, To: b, Payload: offer()})
	assert.ErrorIs(t, err, domain.ErrRecipientUnavailable)
	assert.ErrorIs(t, err, domain.ErrTransportFailure)

	f.relay.Disconnect(ctx, b)
	err = f.relay.Signal(ctx, domain.Envelope{From: a, To: b, Payload: offer()})
	assert.ErrorIs(t, err, domain.ErrRecipientUnavailable)
}

func TestRelay_MultiPeerJoinNotifiesEveryExistingMember(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	ids := make([]domain.ConnectionID, 4)
	for i := range ids {
		ids[i] = f.connect()
		got, err := f.relay.Join(ctx, ids[i], "mesh")
		require.NoError(t, err)
		assert.Len(t, got, i)
	}

	// Member i heard about every member that joined after it.
	for i, id := range ids {
		var want []domain.Outbound
		for _, later := range ids[i+1:] {
			want = append(want, domain.UserJoined(later))
		}
		assert.Equal(t, want, f.transport.to(id), "member %d", i)
	}
}

func TestRelay_BroadcastSurvivesFailedRecipient(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	a := f.connect()
	b := f.connect()
	c := f.connect()
	_, _ = f.relay.Join(ctx, a, "r1")
	_, _ = f.relay.Join(ctx, b, "r1")

	f.transport.breakConn(a)
	_, err := f.relay.Join(ctx, c, "r1")
	require.NoError(t, err)

	assert.Equal(t, []domain.Outbound{domain.UserJoined(c)}, f.transport.to(b))
	assert.Len(t, f.registry.Members("r1"), 3)
}

func TestRelay_DisconnectNotifiesOncePerMember(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	a := f.connect()
	b := f.connect()
	c := f.connect()
	for _, id := range []domain.ConnectionID{a, b, c} {
		_, _ = f.relay.Join(ctx, id, "r1")
	}

	f.relay.Disconnect(ctx, a)
	f.relay.Disconnect(ctx, a)

	for _, id := range []domain.ConnectionID{b, c} {
		var n int
		for _, ev := range f.transport.to(id) {
			if ev == domain.UserDisconnected(a) {
				n++
			}
		}
		assert.Equal(t, 1, n, "member %s", id)
	}
	assert.Equal(t, []domain.ConnectionID{b, c}, f.registry.Members("r1"))
}

func TestRelay_ConcurrentDisconnectBroadcastsOnce(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	a := f.connect()
	b := f.connect()
	_, _ = f.relay.Join(ctx, a, "r1")
	_, _ = f.relay.Join(ctx, b, "r1")

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			f.relay.Disconnect(ctx, a)
		}()
	}
	wg.Wait()

	var n int
	for _, ev := range f.transport.to(b) {
		if ev.Event == domain.EventUserDisconnected {
			n++
		}
	}
	assert.Equal(t, 1, n)
}

func TestRelay_LastMemberLeavingDeletesRoom(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	a := f.connect()
	_, _ = f.relay.Join(ctx, a, "r1")

	f.relay.Disconnect(ctx, a)

	_, ok := f.relay.Room("r1")
	assert.False(t, ok)
	assert.Empty(t, f.relay.Rooms())
	assert.Equal(t, domain.RegistryStats{}, f.relay.Stats())
}

func TestRelay_DisconnectBeforeJoin(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	a := f.connect()

	f.relay.Disconnect(ctx, a)

	assert.Zero(t, f.transport.total())
	_, ok := f.registry.Lookup(a)
	assert.False(t, ok)
}

func TestRelay_SwitchRoomNotifiesOldRoom(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	a := f.connect()
	b := f.connect()
	c := f.connect()
	_, _ = f.relay.Join(ctx, a, "r1")
	_, _ = f.relay.Join(ctx, b, "r1")
	_, _ = f.relay.Join(ctx, c, "r2")

	got, err := f.relay.Join(ctx, b, "r2")
	require.NoError(t, err)
	assert.Equal(t, []domain.ConnectionID{c}, got)

	aGot := f.transport.to(a)
	assert.Equal(t, domain.UserDisconnected(b), aGot[len(aGot)-1])
	assert.Equal(t, []domain.Outbound{domain.UserJoined(b)}, f.transport.to(c))

	assert.Equal(t, []domain.ConnectionID{a}, f.registry.Members("r1"))
	assert.Equal(t, []domain.ConnectionID{b, c}, f.registry.Members("r2"))
}

func TestRelay_RejoinSameRoomIsNoop(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	a := f.connect()
	b := f.connect()
	_, _ = f.relay.Join(ctx, a, "r1")
	_, _ = f.relay.Join(ctx, b, "r1")
	before := f.transport.total()

	got, err := f.relay.Join(ctx, b, "r1")
	require.NoError(t, err)

	assert.Equal(t, []domain.ConnectionID{a}, got)
	assert.Equal(t, before, f.transport.total(), "no duplicate user-joined")
}

func TestRelay_JoinErrors(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	_, err := f.relay.Join(ctx, "ghost", "r1")
	assert.ErrorIs(t, err, domain.ErrNotConnected)

	a := f.connect()
	_, err = f.relay.Join(ctx, a, "")
	assert.ErrorIs(t, err, domain.ErrEmptyRoomID)
}

func TestRelay_HandleRejectsMalformed(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	a := f.connect()

	err := f.relay.Handle(ctx, a, domain.SignalMessage("", offer()))
	assert.ErrorIs(t, err, domain.ErrMalformedMessage)

	err = f.relay.Handle(ctx, a, domain.SignalMessage("conn-9", nil))
	assert.ErrorIs(t, err, domain.ErrMalformedMessage)

	err = f.relay.Handle(ctx, a, domain.Inbound{})
	assert.ErrorIs(t, err, domain.ErrMalformedMessage)
}

func TestRelay_PayloadIsOpaque(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	a := f.connect()
	b := f.connect()
	_, _ = f.relay.Join(ctx, a, "r1")
	_, _ = f.relay.Join(ctx, b, "r1")

	payload := json.RawMessage(`{"candidate":"x","weird":[1,{"n":null}]}`)
	require.NoError(t, f.relay.Signal(ctx, domain.Envelope{From: b, To: a, Payload: payload}))

	got := f.transport.to(a)
	relayed, ok := got[len(got)-1].Data.(domain.RelayedSignal)
	require.True(t, ok)
	assert.Equal(t, string(payload), string(relayed.Signal))
}
