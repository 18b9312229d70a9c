//go:build test

package central

import (
	"errors"

	"github.com/srg/blecentral/pkg/adapter"
)

// GOAL: Ensure service discovery installs the reported services in order
//
// TEST SCENARIO: connect → discover → services 180d, 180f → handles cached on the peripheral
func (s *SessionSuite) TestDiscoverServices() {
	p := s.connect("aa")
	s.Nil(p.Services(), "services MUST be nil before discovery")

	r := p.DiscoverServices("180d", "180f")
	s.settle()
	calls := s.adapter.Calls("DiscoverServices")
	s.Require().Len(calls, 1)
	s.Equal([]adapter.UUID{"180d", "180f"}, calls[0].Filter)

	s.adapter.EmitServices("bb", []adapter.UUID{"1800"}, nil)
	s.adapter.EmitServices("aa", []adapter.UUID{"180d", "180f", "180d"}, nil)

	services, err := await(s.T(), r)
	s.Require().NoError(err)
	s.Require().Len(services, 2, "duplicate UUIDs MUST collapse")
	s.Equal(adapter.UUID("180d"), services[0].UUID())
	s.Same(p, services[0].Peripheral())
	s.Equal(services, p.Services())

	svc, ok := p.Service("180f")
	s.True(ok)
	s.Same(services[1], svc)
	s.Equal(0, s.session.core.peripheralBus.Len(), "idle peripheral topics MUST be released")
}

// GOAL: Ensure rediscovery keeps handles of services that are still present
//
// TEST SCENARIO: discover 180d, 180f → rediscover 180f, 1800 → 180f handle reused, 180d dropped
func (s *SessionSuite) TestRediscoverServicesReusesHandles() {
	p, first := s.discover("aa", "180d", "180f")

	r := p.DiscoverServices()
	s.settle()
	s.adapter.EmitServices("aa", []adapter.UUID{"180f", "1800"}, nil)
	second, err := await(s.T(), r)
	s.Require().NoError(err)

	s.Require().Len(second, 2)
	s.Same(first[1], second[0])
	_, ok := p.Service("180d")
	s.False(ok)
}

// GOAL: Ensure empty and absent service lists are failures, not empty successes
//
// TEST SCENARIO: discovery returns [] → NoServicesForPeripheral; returns nil → same; error → ServiceDiscoveryFailed
func (s *SessionSuite) TestDiscoverServicesFailures() {
	p := s.connect("aa")

	cases := []struct {
		name     string
		services []adapter.UUID
		err      error
		want     *Error
	}{
		{name: "empty list", services: []adapter.UUID{}, want: ErrNoServicesForPeripheral},
		{name: "absent list", services: nil, want: ErrNoServicesForPeripheral},
		{name: "adapter error", err: adapter.ErrConnectionLost, want: ErrServiceDiscoveryFailed},
	}
	for _, tc := range cases {
		s.Run(tc.name, func() {
			r := p.DiscoverServices()
			s.settle()
			s.adapter.EmitServices("aa", tc.services, tc.err)
			_, err := await(s.T(), r)
			s.ErrorIs(err, tc.want)
			if tc.err != nil {
				s.ErrorIs(err, tc.err)
			}
		})
	}
	s.Nil(p.Services(), "failed discoveries MUST NOT populate the cache")

	s.adapter.FailNext("DiscoverServices", adapter.ErrNotConnected)
	_, err := await(s.T(), p.DiscoverServices())
	s.ErrorIs(err, ErrServiceDiscoveryFailed)
	s.ErrorIs(err, adapter.ErrNotConnected)
}

// GOAL: Ensure characteristic discoveries on different services of one peripheral run concurrently
//
// TEST SCENARIO: discover chars of 180d and 180f → 180f completes first → each result gets its own list
func (s *SessionSuite) TestDiscoverCharacteristicsPerService() {
	_, services := s.discover("aa", "180d", "180f")
	hr, battery := services[0], services[1]

	rHR := hr.DiscoverCharacteristics()
	rBattery := battery.DiscoverCharacteristics("2a19")
	s.settle()
	s.Equal(2, s.adapter.CallCount("DiscoverCharacteristics"))

	s.adapter.EmitCharacteristics("aa", "180f", []adapter.DiscoveredCharacteristic{
		{UUID: "2a19", Properties: adapter.PropRead | adapter.PropNotify},
	}, nil)
	batteryChars, err := await(s.T(), rBattery)
	s.Require().NoError(err)
	s.False(rHR.Completed(), "completion for another service MUST NOT complete this discovery")

	s.adapter.EmitCharacteristics("aa", "180d", []adapter.DiscoveredCharacteristic{
		{UUID: "2a37", Properties: adapter.PropNotify},
		{UUID: "2a38", Properties: adapter.PropRead},
	}, nil)
	hrChars, err := await(s.T(), rHR)
	s.Require().NoError(err)

	s.Require().Len(batteryChars, 1)
	s.Equal(adapter.UUID("2a19"), batteryChars[0].UUID())
	s.Equal(adapter.PropRead|adapter.PropNotify, batteryChars[0].Properties())
	s.Same(battery, batteryChars[0].Service())

	s.Require().Len(hrChars, 2)
	s.Equal(hrChars, hr.Characteristics())
	ch, ok := hr.Characteristic("2a38")
	s.True(ok)
	s.Same(hrChars[1], ch)
	s.Equal(0, s.pendingOps())
}

// GOAL: Ensure characteristic discovery failures map to their kinds
//
// TEST SCENARIO: empty list → NoCharacteristicsForService; error → CharacteristicDiscoveryFailed; foreign service rejected
func (s *SessionSuite) TestDiscoverCharacteristicsFailures() {
	p, services := s.discover("aa", "180d")
	svc := services[0]

	r := svc.DiscoverCharacteristics()
	s.settle()
	s.adapter.EmitCharacteristics("aa", "180d", nil, nil)
	_, err := await(s.T(), r)
	s.ErrorIs(err, ErrNoCharacteristicsForService)
	s.Equal(adapter.UUID("180d"), err.(*Error).Service)

	r = svc.DiscoverCharacteristics()
	s.settle()
	s.adapter.EmitCharacteristics("aa", "180d", nil, adapter.ErrConnectionLost)
	_, err = await(s.T(), r)
	s.ErrorIs(err, ErrCharacteristicDiscoveryFailed)
	s.ErrorIs(err, adapter.ErrConnectionLost)

	_, foreign := s.discover("bb", "180d")
	_, err = await(s.T(), p.DiscoverCharacteristics(foreign[0]))
	s.ErrorIs(err, ErrCharacteristicDiscoveryFailed)
	var nf *adapter.NotFoundError
	s.ErrorAs(err, &nf)

	_, err = await(s.T(), p.DiscoverCharacteristics(nil))
	s.ErrorIs(err, ErrCharacteristicDiscoveryFailed)
}

// discoverHeartRate returns the 2a37 characteristic of a discovered heart-rate service.
func (s *SessionSuite) discoverHeartRate(id adapter.Identity) (*Peripheral, *Characteristic) {
	p, services := s.discover(id, "180d")
	r := services[0].DiscoverCharacteristics()
	s.settle()
	s.adapter.EmitCharacteristics(id, "180d", []adapter.DiscoveredCharacteristic{
		{UUID: "2a37", Properties: adapter.PropRead | adapter.PropNotify},
	}, nil)
	chars, err := await(s.T(), r)
	s.Require().NoError(err)
	return p, chars[0]
}

// GOAL: Ensure ReadValue resolves with the value for its characteristic and updates the cache
//
// TEST SCENARIO: read 2a37 → value of another characteristic ignored → matching value resolves
func (s *SessionSuite) TestReadValue() {
	p, ch := s.discoverHeartRate("aa")
	s.Nil(ch.Value())

	r := p.ReadValue(ch)
	s.settle()
	calls := s.adapter.Calls("ReadValue")
	s.Require().Len(calls, 1)
	s.Equal(adapter.UUID("180d"), calls[0].Service)
	s.Equal(adapter.UUID("2a37"), calls[0].Characteristic)

	s.adapter.EmitValue("aa", "180d", "2a38", []byte{0xff}, nil)
	s.adapter.EmitValue("aa", "180d", "2a37", []byte{0x06, 0x48}, nil)

	v, err := await(s.T(), r)
	s.Require().NoError(err)
	s.Equal([]byte{0x06, 0x48}, v)
	s.Equal([]byte{0x06, 0x48}, ch.Value())

	r = p.ReadValue(ch)
	s.settle()
	s.adapter.EmitValue("aa", "180d", "2a37", nil, adapter.ErrConnectionLost)
	_, err = await(s.T(), r)
	s.ErrorIs(err, ErrReadFailed)
	s.Equal([]byte{0x06, 0x48}, ch.Value(), "failed reads MUST NOT clear the cached value")
}

// GOAL: Ensure value observers see notifications of their peripheral
//
// TEST SCENARIO: observe aa values → notifications for aa and bb → only aa delivered, cache updated
func (s *SessionSuite) TestObserveValueUpdates() {
	p, ch := s.discoverHeartRate("aa")
	values := p.ObserveValueUpdates()
	defer values.Close()

	s.adapter.EmitValue("bb", "180d", "2a37", []byte{0x01}, nil)
	s.adapter.EmitValue("aa", "180d", "2a37", []byte{0x02}, nil)

	got := receive(s.T(), values)
	s.Equal(adapter.Identity("aa"), got.Peripheral)
	s.Equal([]byte{0x02}, got.Value)
	s.Equal([]byte{0x02}, ch.Value())
}

// GOAL: Ensure SetNotify reports the adapter's notifying state
//
// TEST SCENARIO: enable → notifying true → disable → false; synchronous failure → NotifyFailed
func (s *SessionSuite) TestSetNotify() {
	p, ch := s.discoverHeartRate("aa")

	r := p.SetNotify(ch, true)
	s.settle()
	s.True(s.adapter.Calls("SetNotify")[0].Enabled)
	s.adapter.EmitNotifyState("aa", "180d", "2a37", true, nil)
	on, err := await(s.T(), r)
	s.Require().NoError(err)
	s.True(on)
	s.True(ch.IsNotifying())

	r = p.SetNotify(ch, false)
	s.settle()
	s.adapter.EmitNotifyState("aa", "180d", "2a37", false, nil)
	on, err = await(s.T(), r)
	s.Require().NoError(err)
	s.False(on)
	s.False(ch.IsNotifying())

	cause := errors.New("cccd write rejected")
	s.adapter.FailNext("SetNotify", cause)
	_, err = await(s.T(), p.SetNotify(ch, true))
	s.ErrorIs(err, ErrNotifyFailed)
	s.ErrorIs(err, cause)
}

// GOAL: Ensure characteristic operations reject characteristics of other peripherals
//
// TEST SCENARIO: read and notify on aa with bb's characteristic → ReadFailed / NotifyFailed with NotFoundError
func (s *SessionSuite) TestCharacteristicOwnership() {
	p, _ := s.discoverHeartRate("aa")
	_, foreign := s.discoverHeartRate("bb")

	_, err := await(s.T(), p.ReadValue(foreign))
	s.ErrorIs(err, ErrReadFailed)
	var nf *adapter.NotFoundError
	s.ErrorAs(err, &nf)

	_, err = await(s.T(), p.SetNotify(nil, true))
	s.ErrorIs(err, ErrNotifyFailed)
	s.Equal(0, s.adapter.CallCount("ReadValue"))
	s.Equal(0, s.adapter.CallCount("SetNotify"))
}

// GOAL: Ensure Disconnect resolves on the adapter's disconnection event
//
// TEST SCENARIO: connected → Disconnect → state disconnecting → disconnected event → resolves, state disconnected
func (s *SessionSuite) TestDisconnect() {
	p := s.connect("aa")

	r := p.Disconnect()
	s.settle()
	s.Equal(1, s.adapter.CallCount("CancelConnection"))
	s.Equal(Disconnecting, p.State())

	s.adapter.EmitDisconnected("aa", nil)
	got, err := await(s.T(), r)
	s.Require().NoError(err)
	s.Same(p, got)
	s.Equal(Disconnected, p.State())

	s.adapter.FailNext("CancelConnection", adapter.ErrNotConnected)
	_, err = await(s.T(), p.Disconnect())
	s.ErrorIs(err, ErrDisconnectFailed)
	s.ErrorIs(err, adapter.ErrNotConnected)
}

// GOAL: Ensure optional adapter capabilities are detected
//
// TEST SCENARIO: adapter without read, notify or disconnect support → ErrUnsupported without adapter calls
func (s *SessionSuite) TestUnsupportedCapabilities() {
	_, ch := s.discoverHeartRate("aa")
	s.Require().NoError(s.session.Close())

	basic, err := New(minimalAdapter{s.adapter}, WithLogger(s.helper.Logger))
	s.Require().NoError(err)
	s.session = basic

	p := s.connect("aa")
	_, err = await(s.T(), p.Disconnect())
	s.ErrorIs(err, ErrUnsupported)

	// ch belongs to the closed session's handle, so build one on this session
	r := p.DiscoverServices()
	s.settle()
	s.adapter.EmitServices("aa", []adapter.UUID{"180d"}, nil)
	services, err := await(s.T(), r)
	s.Require().NoError(err)
	rc := services[0].DiscoverCharacteristics()
	s.settle()
	s.adapter.EmitCharacteristics("aa", "180d", []adapter.DiscoveredCharacteristic{{UUID: ch.UUID()}}, nil)
	chars, err := await(s.T(), rc)
	s.Require().NoError(err)

	_, err = await(s.T(), p.ReadValue(chars[0]))
	s.ErrorIs(err, ErrUnsupported)
	_, err = await(s.T(), p.SetNotify(chars[0], true))
	s.ErrorIs(err, ErrUnsupported)
	s.Equal(0, s.adapter.CallCount("ReadValue"))
}

// minimalAdapter hides the optional capabilities of the wrapped adapter.
type minimalAdapter struct {
	adapter.Adapter
}
