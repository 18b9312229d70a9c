//go:build test

package central

import (
	"runtime"
	"time"

	"github.com/srg/blecentral/internal/eventbus"
	"github.com/srg/blecentral/internal/testutils"
	"github.com/srg/blecentral/pkg/adapter"
	"github.com/srg/blecentral/pkg/config"
)

const gcPollInterval = 10 * time.Millisecond

// GOAL: Ensure a pending connect keeps its handle alive across garbage collections
//
// TEST SCENARIO: GC runs inside the connected event, ahead of the correlation → Connect resolves with the registered, connected handle
func (s *SessionSuite) TestPendingConnectKeepsHandle() {
	c := s.session.core
	var cancel eventbus.Cancel
	c.loop.Sync(func() {
		cancel = c.adapterBus.Connected.Subscribe(func(adapter.Connected) {
			runtime.GC()
			runtime.GC()
		})
	})
	defer c.loop.Sync(func() { cancel() })

	r := s.session.Connect("zz", adapter.ConnectOptions{})
	s.settle()
	connecting, ok := s.session.Peripheral("zz")
	s.Require().True(ok, "handle MUST exist while the connect is pending")
	s.Equal(Connecting, connecting.State())
	connecting = nil

	runtime.GC()
	s.adapter.EmitConnected("zz")

	p, err := await(s.T(), r)
	s.Require().NoError(err)
	s.Equal(Connected, p.State(), "resolved handle MUST be the one the connected event updated")
	registered, ok := s.session.Peripheral("zz")
	s.Require().True(ok)
	s.Same(p, registered)
}

// GOAL: Ensure an unreferenced handle is dropped from the registry together with its topics
//
// TEST SCENARIO: connect aa → open per-peripheral topics → drop the handle → GC → registry entry and topics removed
func (s *SessionSuite) TestCollectedHandleIsForgotten() {
	c := s.session.core
	s.connect("aa")
	c.loop.Sync(func() { c.peripheralBus.For("aa") })

	s.Eventually(func() bool {
		runtime.GC()
		forgotten := false
		c.loop.Sync(func() {
			_, registered := c.registry.Get("aa")
			forgotten = !registered && c.peripheralBus.Len() == 0
		})
		return forgotten
	}, awaitTimeout, gcPollInterval, "collected handles MUST be removed with their topics")

	_, ok := s.session.Peripheral("aa")
	s.False(ok)
	s.Empty(s.session.Peripherals())
}

// GOAL: Ensure a session that is garbage collected without Close shuts down
//
// TEST SCENARIO: session with a pending discovery is dropped → GC → adapter detached → pending and new operations fail with ErrSessionDestroyed
func (s *SessionSuite) TestCollectedSessionShutsDown() {
	a := testutils.NewFakeAdapter()
	p, pending := s.abandonedSession(a)

	s.Eventually(func() bool {
		runtime.GC()
		return !a.HasHandler()
	}, awaitTimeout, gcPollInterval, "a collected session MUST detach from its adapter")

	_, err := await(s.T(), pending)
	s.ErrorIs(err, ErrSessionDestroyed, "pending operations MUST fail when the session is collected")

	_, err = await(s.T(), p.DiscoverServices())
	s.ErrorIs(err, ErrSessionDestroyed, "orphaned handles MUST reject new operations")
	_, err = await(s.T(), p.Connect(adapter.ConnectOptions{}))
	s.ErrorIs(err, ErrSessionDestroyed)

	_, ok := <-p.ObserveConnectionState().C
	s.False(ok, "streams of orphaned handles MUST be closed")
}

// abandonedSession connects aa on a session nobody references after return
// and leaves a service discovery pending on it.
func (s *SessionSuite) abandonedSession(a *testutils.FakeAdapter) (*Peripheral, *Result[[]*Service]) {
	session, err := New(a, WithLogger(s.helper.Logger), WithName("abandoned"))
	s.Require().NoError(err)

	r := session.Connect("aa", adapter.ConnectOptions{})
	session.core.loop.Sync(func() {})
	a.EmitConnected("aa")
	p, err := await(s.T(), r)
	s.Require().NoError(err)

	pending := p.DiscoverServices()
	session.core.loop.Sync(func() {})
	return p, pending
}

// GOAL: Ensure a stream whose consumer stopped reading is still closed on shutdown
//
// TEST SCENARIO: fill the stream buffer → publish more → Close without reading → pump exits → C yields at most the buffer, then closes
func (s *SessionSuite) TestAbandonedStreamClosesOnShutdown() {
	st := s.session.ObserveState()
	capacity := config.DefaultConfig().ObserverBuffer

	toggle := func(i int) {
		if i%2 == 0 {
			s.adapter.SetState(adapter.StatePoweredOff)
		} else {
			s.adapter.SetState(adapter.StatePoweredOn)
		}
	}
	for i := 0; i < capacity; i++ {
		toggle(i)
	}
	s.Eventually(func() bool { return len(st.C) == capacity }, awaitTimeout, gcPollInterval)
	toggle(capacity)
	toggle(capacity + 1)
	s.settle()

	s.Require().NoError(s.session.Close())

	s.Eventually(func() bool {
		select {
		case <-st.done:
			return true
		default:
			return false
		}
	}, awaitTimeout, gcPollInterval, "stream pump MUST exit on shutdown without a reader")

	received := 0
	for range st.C {
		received++
	}
	s.LessOrEqual(received, capacity)
}
