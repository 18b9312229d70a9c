package testutils

import (
	"bytes"
	"errors"
	"sync"

	"github.com/srg/blecentral/pkg/adapter"
)

// Call records one request made to FakeAdapter.
type Call struct {
	Method         string
	Peripheral     adapter.Identity
	Service        adapter.UUID
	Characteristic adapter.UUID
	Filter         []adapter.UUID
	Enabled        bool
}

// FakeAdapter is an in-memory adapter.Adapter. By default it only records
// requests and tests drive outcomes with the Emit methods. With AutoRespond
// it answers requests from the registered peripheral profiles, emitting the
// events a real stack would.
type FakeAdapter struct {
	mu       sync.Mutex
	handler  adapter.EventHandler
	state    adapter.State
	scanning bool
	calls    []Call
	failNext map[string]error
	auto     bool
	profiles []*PeripheralProfile
}

var (
	_ adapter.Adapter      = (*FakeAdapter)(nil)
	_ adapter.Disconnector = (*FakeAdapter)(nil)
	_ adapter.ValueReader  = (*FakeAdapter)(nil)
	_ adapter.NotifySetter = (*FakeAdapter)(nil)
)

// ErrUnknownPeripheral is reported when an auto-responding adapter is asked
// about an identity it has no profile for.
var ErrUnknownPeripheral = errors.New("unknown peripheral")

// NewFakeAdapter returns a powered-on adapter in record-only mode.
func NewFakeAdapter() *FakeAdapter {
	return &FakeAdapter{
		state:    adapter.StatePoweredOn,
		failNext: make(map[string]error),
	}
}

// WithPeripherals registers profiles and switches to auto-respond mode.
func (f *FakeAdapter) WithPeripherals(profiles ...*PeripheralProfile) *FakeAdapter {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.auto = true
	f.profiles = append(f.profiles, profiles...)
	return f
}

// FailNext makes the next call of method return err synchronously.
func (f *FakeAdapter) FailNext(method string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failNext[method] = err
}

// Calls returns the recorded requests of method, or all requests when method is empty.
func (f *FakeAdapter) Calls(method string) []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []Call
	for _, c := range f.calls {
		if method == "" || c.Method == method {
			out = append(out, c)
		}
	}
	return out
}

func (f *FakeAdapter) CallCount(method string) int {
	return len(f.Calls(method))
}

// HasHandler reports whether an event handler is installed.
func (f *FakeAdapter) HasHandler() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.handler != nil
}

// ----------------------------
// adapter.Adapter
// ----------------------------

func (f *FakeAdapter) SetHandler(h adapter.EventHandler) {
	f.mu.Lock()
	f.handler = h
	f.mu.Unlock()
}

func (f *FakeAdapter) State() adapter.State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

func (f *FakeAdapter) IsScanning() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.scanning
}

func (f *FakeAdapter) StartScan(services []adapter.UUID, _ adapter.ScanOptions) error {
	if err := f.record(Call{Method: "StartScan", Filter: services}); err != nil {
		return err
	}
	f.mu.Lock()
	f.scanning = true
	auto, profiles := f.auto, append([]*PeripheralProfile(nil), f.profiles...)
	f.mu.Unlock()

	if auto {
		for _, p := range profiles {
			adv := p.Advertisement()
			if adv.MatchesAny(services) {
				f.EmitDiscovered(p.ID, adv, p.RSSI)
			}
		}
	}
	return nil
}

func (f *FakeAdapter) StopScan() error {
	if err := f.record(Call{Method: "StopScan"}); err != nil {
		return err
	}
	f.mu.Lock()
	f.scanning = false
	f.mu.Unlock()
	return nil
}

func (f *FakeAdapter) Connect(id adapter.Identity, _ adapter.ConnectOptions) error {
	if err := f.record(Call{Method: "Connect", Peripheral: id}); err != nil {
		return err
	}
	p, auto := f.profile(id)
	if !auto {
		return nil
	}
	switch {
	case p == nil:
		f.EmitConnectFailed(id, ErrUnknownPeripheral)
	case p.ConnectErr != nil:
		f.EmitConnectFailed(id, p.ConnectErr)
	default:
		f.EmitConnected(id)
	}
	return nil
}

func (f *FakeAdapter) DiscoverServices(id adapter.Identity, filter []adapter.UUID) error {
	if err := f.record(Call{Method: "DiscoverServices", Peripheral: id, Filter: filter}); err != nil {
		return err
	}
	p, auto := f.profile(id)
	if !auto {
		return nil
	}
	if p == nil {
		f.EmitServices(id, nil, ErrUnknownPeripheral)
		return nil
	}
	found := []adapter.UUID{}
	for _, s := range p.Services {
		u := adapter.NormalizeUUID(s.UUID)
		if len(filter) == 0 || adapter.ContainsUUID(filter, u) {
			found = append(found, u)
		}
	}
	f.EmitServices(id, found, nil)
	return nil
}

func (f *FakeAdapter) DiscoverCharacteristics(id adapter.Identity, service adapter.UUID, filter []adapter.UUID) error {
	call := Call{Method: "DiscoverCharacteristics", Peripheral: id, Service: service, Filter: filter}
	if err := f.record(call); err != nil {
		return err
	}
	p, auto := f.profile(id)
	if !auto {
		return nil
	}
	var svc *ServiceConfig
	if p != nil {
		svc = p.service(service)
	}
	if svc == nil {
		f.EmitCharacteristics(id, service, nil, &adapter.NotFoundError{Resource: "service", IDs: []string{string(service)}})
		return nil
	}
	found := []adapter.DiscoveredCharacteristic{}
	for _, c := range svc.Characteristics {
		u := adapter.NormalizeUUID(c.UUID)
		if len(filter) == 0 || adapter.ContainsUUID(filter, u) {
			found = append(found, adapter.DiscoveredCharacteristic{UUID: u, Properties: ParseProperties(c.Properties)})
		}
	}
	f.EmitCharacteristics(id, service, found, nil)
	return nil
}

func (f *FakeAdapter) CancelConnection(id adapter.Identity) error {
	if err := f.record(Call{Method: "CancelConnection", Peripheral: id}); err != nil {
		return err
	}
	if _, auto := f.profile(id); auto {
		f.EmitDisconnected(id, nil)
	}
	return nil
}

func (f *FakeAdapter) ReadValue(id adapter.Identity, service, char adapter.UUID) error {
	call := Call{Method: "ReadValue", Peripheral: id, Service: service, Characteristic: char}
	if err := f.record(call); err != nil {
		return err
	}
	p, auto := f.profile(id)
	if !auto {
		return nil
	}
	var c *CharacteristicConfig
	if p != nil {
		c = p.characteristic(service, char)
	}
	if c == nil {
		f.EmitValue(id, service, char, nil, &adapter.NotFoundError{Resource: "characteristic", IDs: []string{string(service), string(char)}})
		return nil
	}
	f.EmitValue(id, service, char, bytes.Clone(c.Value), nil)
	return nil
}

func (f *FakeAdapter) SetNotify(id adapter.Identity, service, char adapter.UUID, enabled bool) error {
	call := Call{Method: "SetNotify", Peripheral: id, Service: service, Characteristic: char, Enabled: enabled}
	if err := f.record(call); err != nil {
		return err
	}
	if _, auto := f.profile(id); auto {
		f.EmitNotifyState(id, service, char, enabled, nil)
	}
	return nil
}

// ----------------------------
// Event injection
// ----------------------------

// SetState changes the adapter state and emits StateChanged.
func (f *FakeAdapter) SetState(s adapter.State) {
	f.mu.Lock()
	f.state = s
	if s != adapter.StatePoweredOn {
		f.scanning = false
	}
	f.mu.Unlock()
	f.emit(func(h adapter.EventHandler) { h.StateChanged(adapter.StateChanged{State: s}) })
}

func (f *FakeAdapter) EmitDiscovered(id adapter.Identity, adv adapter.Advertisement, rssi int) {
	f.emit(func(h adapter.EventHandler) {
		h.PeripheralDiscovered(adapter.PeripheralDiscovered{Peripheral: id, Advertisement: adv, RSSI: rssi})
	})
}

func (f *FakeAdapter) EmitConnected(id adapter.Identity) {
	f.emit(func(h adapter.EventHandler) { h.Connected(adapter.Connected{Peripheral: id}) })
}

func (f *FakeAdapter) EmitConnectFailed(id adapter.Identity, err error) {
	f.emit(func(h adapter.EventHandler) { h.ConnectFailed(adapter.ConnectFailed{Peripheral: id, Err: err}) })
}

func (f *FakeAdapter) EmitDisconnected(id adapter.Identity, err error) {
	f.emit(func(h adapter.EventHandler) { h.Disconnected(adapter.Disconnected{Peripheral: id, Err: err}) })
}

func (f *FakeAdapter) EmitServices(id adapter.Identity, services []adapter.UUID, err error) {
	f.emit(func(h adapter.EventHandler) {
		h.ServicesDiscovered(adapter.ServicesDiscovered{Peripheral: id, Services: services, Err: err})
	})
}

func (f *FakeAdapter) EmitCharacteristics(id adapter.Identity, service adapter.UUID, chars []adapter.DiscoveredCharacteristic, err error) {
	f.emit(func(h adapter.EventHandler) {
		h.CharacteristicsDiscovered(adapter.CharacteristicsDiscovered{
			Peripheral: id, Service: service, Characteristics: chars, Err: err,
		})
	})
}

func (f *FakeAdapter) EmitValue(id adapter.Identity, service, char adapter.UUID, value []byte, err error) {
	f.emit(func(h adapter.EventHandler) {
		h.ValueUpdated(adapter.ValueUpdated{
			Peripheral: id, Service: service, Characteristic: char, Value: value, Err: err,
		})
	})
}

func (f *FakeAdapter) EmitNotifyState(id adapter.Identity, service, char adapter.UUID, notifying bool, err error) {
	f.emit(func(h adapter.EventHandler) {
		h.NotificationStateUpdated(adapter.NotificationStateUpdated{
			Peripheral: id, Service: service, Characteristic: char, Notifying: notifying, Err: err,
		})
	})
}

func (f *FakeAdapter) emit(fn func(h adapter.EventHandler)) {
	f.mu.Lock()
	h := f.handler
	f.mu.Unlock()
	if h != nil {
		fn(h)
	}
}

func (f *FakeAdapter) record(c Call) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, c)
	if err, ok := f.failNext[c.Method]; ok {
		delete(f.failNext, c.Method)
		return err
	}
	return nil
}

func (f *FakeAdapter) profile(id adapter.Identity) (*PeripheralProfile, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.auto {
		return nil, false
	}
	for _, p := range f.profiles {
		if p.ID == id {
			return p, true
		}
	}
	return nil, true
}
