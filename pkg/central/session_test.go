//go:build test

package central

import (
	"context"
	"errors"
	"time"

	"github.com/srg/blecentral/pkg/adapter"
)

// GOAL: Ensure Scan resolves with the first matching peripheral and stops the radio once
//
// TEST SCENARIO: scan for 180d → non-matching ad ignored → matching ad resolves → later ads change nothing
func (s *SessionSuite) TestScanResolvesFirstMatch() {
	r := s.session.Scan([]adapter.UUID{"180d"}, nil)
	s.settle()
	s.True(s.session.IsScanning())
	s.Require().Len(s.adapter.Calls("StartScan"), 1)
	s.Equal([]adapter.UUID{"180d"}, s.adapter.Calls("StartScan")[0].Filter)

	s.adapter.EmitDiscovered("aa:01", advertising("Battery", "180f"), -70)
	s.adapter.EmitDiscovered("aa:02", advertising("HRM", "180d"), -42)
	s.adapter.EmitDiscovered("aa:03", advertising("HRM 2", "180d"), -40)

	p, err := await(s.T(), r)
	s.Require().NoError(err)
	s.Equal(adapter.Identity("aa:02"), p.ID())
	s.Equal("HRM", p.Name())
	s.Equal(-42, p.RSSI())
	adv, ok := p.Advertisement()
	s.True(ok)
	s.True(adv.HasService("180d"))

	s.settle()
	s.Equal(1, s.adapter.CallCount("StopScan"), "radio scan MUST be stopped exactly once")
	s.False(s.session.IsScanning(), "scan slot MUST be released after completion")
	s.Equal(0, s.pendingOps())

	same, ok := s.session.Peripheral("aa:02")
	s.True(ok)
	s.Same(p, same, "session MUST keep one handle per identity")
	_, ok = s.session.Peripheral("aa:01")
	s.False(ok, "non-matching discoveries MUST NOT create handles")
}

// GOAL: Ensure an empty filter matches any peripheral and Match narrows the result
//
// TEST SCENARIO: scan with no services and a name predicate → first ad rejected by predicate → second resolves
func (s *SessionSuite) TestScanMatchPredicate() {
	r := s.session.Scan(nil, &ScanOptions{
		AllowDuplicates: true,
		Match:           func(e adapter.PeripheralDiscovered) bool { return e.Advertisement.LocalName == "Target" },
	})
	s.settle()

	s.adapter.EmitDiscovered("aa:01", advertising("Other"), -50)
	s.adapter.EmitDiscovered("aa:02", advertising("Target"), -50)

	p, err := await(s.T(), r)
	s.Require().NoError(err)
	s.Equal(adapter.Identity("aa:02"), p.ID())
}

// GOAL: Ensure Scan fails fast when the adapter is not powered on
//
// TEST SCENARIO: power off → scan → ErrAdapterNotReady without touching the radio
func (s *SessionSuite) TestScanAdapterNotReady() {
	s.adapter.SetState(adapter.StatePoweredOff)

	_, err := await(s.T(), s.session.Scan(nil, nil))
	s.ErrorIs(err, ErrAdapterNotReady)
	s.Equal(KindAdapterNotReady, KindOf(err))
	s.Equal(0, s.adapter.CallCount("StartScan"), "StartScan MUST NOT be called when the adapter is not ready")
	s.False(s.session.IsScanning())
}

// GOAL: Ensure only one scan may be pending and the first one is unaffected by the rejection
//
// TEST SCENARIO: scan pending → second scan → ErrScanAlreadyInProgress → first scan still resolves
func (s *SessionSuite) TestScanAlreadyInProgress() {
	first := s.session.Scan(nil, nil)
	s.settle()

	_, err := await(s.T(), s.session.Scan(nil, nil))
	s.ErrorIs(err, ErrScanAlreadyInProgress)
	s.False(first.Completed(), "first scan MUST still be pending")
	s.Equal(1, s.adapter.CallCount("StartScan"))

	s.adapter.EmitDiscovered("aa:01", advertising("Any"), -50)
	p, err := await(s.T(), first)
	s.Require().NoError(err)
	s.Equal(adapter.Identity("aa:01"), p.ID())

	// slot is free again
	again := s.session.Scan(nil, nil)
	s.settle()
	again.Cancel()
	_, err = await(s.T(), again)
	s.ErrorIs(err, ErrOperationCancelled)
}

// GOAL: Ensure a scan started by someone else on the adapter blocks a new scan
//
// TEST SCENARIO: adapter already scanning → scan → ErrScanAlreadyInProgress wrapping the adapter error
func (s *SessionSuite) TestScanWhileAdapterScanning() {
	s.Require().NoError(s.adapter.StartScan(nil, adapter.ScanOptions{}))

	_, err := await(s.T(), s.session.Scan(nil, nil))
	s.ErrorIs(err, ErrScanAlreadyInProgress)
	s.ErrorIs(err, adapter.ErrScanInProgress)
	s.False(s.session.IsScanning(), "rejected scan MUST release the slot")
}

// GOAL: Ensure a synchronous StartScan failure is reported and leaves no scan behind
//
// TEST SCENARIO: StartScan fails → ErrAdapterNotReady with cause → StopScan never called
func (s *SessionSuite) TestScanStartFailure() {
	cause := errors.New("radio busy")
	s.adapter.FailNext("StartScan", cause)

	_, err := await(s.T(), s.session.Scan(nil, nil))
	s.ErrorIs(err, ErrAdapterNotReady)
	s.ErrorIs(err, cause)
	s.settle()
	s.Equal(0, s.adapter.CallCount("StopScan"))
	s.False(s.session.IsScanning())
	s.Equal(0, s.pendingOps())
}

// GOAL: Ensure a cancelled scan fails with ErrOperationCancelled and never reports a late success
//
// TEST SCENARIO: scan → cancel → OperationCancelled → matching ad afterwards → result unchanged
func (s *SessionSuite) TestScanCancel() {
	r := s.session.Scan(nil, nil)
	s.settle()
	r.Cancel()

	_, err := await(s.T(), r)
	s.ErrorIs(err, ErrOperationCancelled)
	s.Equal(1, s.adapter.CallCount("StopScan"), "cancel MUST stop the radio scan")

	s.adapter.EmitDiscovered("aa:01", advertising("Late"), -50)
	s.settle()
	_, err = r.Get()
	s.ErrorIs(err, ErrOperationCancelled, "late discovery MUST NOT change the outcome")
	_, ok := s.session.Peripheral("aa:01")
	s.False(ok)
}

// GOAL: Ensure Await cancels the operation when its context ends
//
// TEST SCENARIO: scan with a short deadline → no ads → OperationCancelled, scan stopped
func (s *SessionSuite) TestAwaitDeadlineCancels() {
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := s.session.Scan(nil, nil).Await(ctx)
	s.ErrorIs(err, ErrOperationCancelled)
	s.settle()
	s.Equal(1, s.adapter.CallCount("StopScan"))
	s.False(s.session.IsScanning())
}

// GOAL: Ensure Connect completes once from the first event for its identity
//
// TEST SCENARIO: connect aa → event for bb ignored → connected aa twice → resolves once, no pending ops
func (s *SessionSuite) TestConnectSuccess() {
	r := s.session.Connect("aa", adapter.ConnectOptions{DialTimeout: time.Second})
	s.settle()
	s.Require().Len(s.adapter.Calls("Connect"), 1)

	s.adapter.EmitConnected("bb")
	s.settle()
	s.False(r.Completed(), "events of other peripherals MUST NOT complete the connect")

	s.adapter.EmitConnected("aa")
	s.adapter.EmitConnected("aa")
	p, err := await(s.T(), r)
	s.Require().NoError(err)
	s.Equal(adapter.Identity("aa"), p.ID())
	s.True(p.IsConnected())
	s.Equal(0, s.pendingOps(), "duplicate events MUST find no pending operation")

	s.settle()
	spans := s.spans.Ended()
	s.Require().NotEmpty(spans)
	s.Equal("ble.connect", spans[len(spans)-1].Name())
}

// GOAL: Ensure connect failures carry the adapter cause
//
// TEST SCENARIO: connect → connect-failed event → ErrConnectFailed wrapping cause, handle disconnected
func (s *SessionSuite) TestConnectFailure() {
	p := s.connect("aa")
	s.adapter.EmitDisconnected("aa", adapter.ErrConnectionLost)
	s.settle()
	s.Equal(Disconnected, p.State())

	cause := errors.New("peer refused")
	r := p.Connect(adapter.ConnectOptions{})
	s.settle()
	s.Equal(Connecting, p.State())
	s.adapter.EmitConnectFailed("aa", cause)

	_, err := await(s.T(), r)
	s.ErrorIs(err, ErrConnectFailed)
	s.ErrorIs(err, cause)
	s.Equal(adapter.Identity("aa"), err.(*Error).Peripheral)
	s.Equal(Disconnected, p.State())
}

// GOAL: Ensure a synchronous adapter connect error fails the operation
//
// TEST SCENARIO: Connect returns error → ErrConnectFailed, no pending operation
func (s *SessionSuite) TestConnectSyncError() {
	s.adapter.FailNext("Connect", adapter.ErrAlreadyConnected)

	_, err := await(s.T(), s.session.Connect("aa", adapter.ConnectOptions{}))
	s.ErrorIs(err, ErrConnectFailed)
	s.ErrorIs(err, adapter.ErrAlreadyConnected)
	s.Equal(0, s.pendingOps())
}

// GOAL: Ensure Close fails pending work and rejects new work
//
// TEST SCENARIO: connect pending → Close → SessionDestroyed → handler removed → new ops and streams dead
func (s *SessionSuite) TestCloseDestroysSession() {
	p := s.connect("aa")
	pending := s.session.Connect("bb", adapter.ConnectOptions{})
	s.settle()
	states := s.session.ObserveState()

	s.Require().NoError(s.session.Close())
	s.Require().NoError(s.session.Close(), "Close MUST be idempotent")

	_, err := await(s.T(), pending)
	s.ErrorIs(err, ErrSessionDestroyed)
	s.False(s.adapter.HasHandler(), "Close MUST detach the session from the adapter")

	_, err = await(s.T(), s.session.Scan(nil, nil))
	s.ErrorIs(err, ErrSessionDestroyed)
	_, err = await(s.T(), s.session.Connect("cc", adapter.ConnectOptions{}))
	s.ErrorIs(err, ErrSessionDestroyed)
	_, err = await(s.T(), p.DiscoverServices())
	s.ErrorIs(err, ErrSessionDestroyed)

	s.Eventually(func() bool {
		select {
		case _, ok := <-states.C:
			return !ok
		default:
			return false
		}
	}, awaitTimeout, 5*time.Millisecond, "observer streams MUST be closed")

	_, ok := <-s.session.ObserveDiscoveries().C
	s.False(ok, "streams opened after Close MUST be closed")
}

// GOAL: Ensure state observers see changes in order and only after subscribing
//
// TEST SCENARIO: change state before subscribing → subscribe → off then on → stream yields off, on
func (s *SessionSuite) TestObserveState() {
	s.adapter.SetState(adapter.StateResetting)
	s.settle()

	st := s.session.ObserveState()
	defer st.Close()

	s.adapter.SetState(adapter.StatePoweredOff)
	s.adapter.SetState(adapter.StatePoweredOn)

	s.Equal(adapter.StatePoweredOff, receive(s.T(), st))
	s.Equal(adapter.StatePoweredOn, receive(s.T(), st))
	s.Equal(adapter.StatePoweredOn, s.session.State())
}

// GOAL: Ensure discovery, connect and disconnect observers are independent multicast feeds
//
// TEST SCENARIO: two discovery observers → ad → both receive → connect/disconnect observers see their events
func (s *SessionSuite) TestObserveEvents() {
	d1, d2 := s.session.ObserveDiscoveries(), s.session.ObserveDiscoveries()
	connects, disconnects := s.session.ObserveConnect(), s.session.ObserveDisconnect()
	defer d1.Close()
	defer d2.Close()
	defer connects.Close()
	defer disconnects.Close()

	s.adapter.EmitDiscovered("aa", advertising("HRM", "180d"), -50)
	s.Equal(adapter.Identity("aa"), receive(s.T(), d1).Peripheral)
	s.Equal(adapter.Identity("aa"), receive(s.T(), d2).Peripheral)

	p := s.connect("aa")
	s.Equal(adapter.Connected{Peripheral: "aa"}, receive(s.T(), connects))

	states := p.ObserveConnectionState()
	defer states.Close()
	s.adapter.EmitDisconnected("bb", nil)
	s.adapter.EmitDisconnected("aa", adapter.ErrConnectionLost)

	s.Equal(adapter.Identity("bb"), receive(s.T(), disconnects).Peripheral)
	lost := receive(s.T(), disconnects)
	s.ErrorIs(lost.Err, adapter.ErrConnectionLost)
	s.False(receive(s.T(), states), "peripheral stream MUST only carry its own link changes")
}

// GOAL: Ensure Peripherals lists live handles in identity order
//
// TEST SCENARIO: connect bb then aa → Peripherals returns aa, bb
func (s *SessionSuite) TestPeripheralsSorted() {
	b := s.connect("bb")
	a := s.connect("aa")

	list := s.session.Peripherals()
	s.Require().Len(list, 2)
	s.Same(a, list[0])
	s.Same(b, list[1])
	s.Contains(a.String(), "connected")
}

// GOAL: Ensure UUIDs and identities typed by callers match what adapters report
//
// TEST SCENARIO: scan for "0x180D" → adapter filter is 180d and a 180d ad matches → connect " AA:02 " → adapter sees aa:02
func (s *SessionSuite) TestScanAndConnectNormalizeInput() {
	r := s.session.Scan([]adapter.UUID{"0x180D"}, nil)
	s.settle()
	s.Require().Len(s.adapter.Calls("StartScan"), 1)
	s.Equal([]adapter.UUID{"180d"}, s.adapter.Calls("StartScan")[0].Filter)

	s.adapter.EmitDiscovered("aa:01", advertising("HRM", "180d"), -50)
	p, err := await(s.T(), r)
	s.Require().NoError(err, "normalized filter MUST match the adapter's UUID form")
	s.Equal(adapter.Identity("aa:01"), p.ID())

	c := s.session.Connect(" AA:02 ", adapter.ConnectOptions{})
	s.settle()
	s.Require().Len(s.adapter.Calls("Connect"), 1)
	s.Equal(adapter.Identity("aa:02"), s.adapter.Calls("Connect")[0].Peripheral)

	s.adapter.EmitConnected("aa:02")
	connected, err := await(s.T(), c)
	s.Require().NoError(err)
	s.Equal(adapter.Identity("aa:02"), connected.ID())
}
