package central

import (
	"fmt"
	"weak"

	orderedmap "github.com/wk8/go-ordered-map/v2"
	"go.uber.org/atomic"

	"github.com/srg/blecentral/internal/eventbus"
	"github.com/srg/blecentral/pkg/adapter"
)

// ConnectionState is the link state of a peripheral as seen by the session.
type ConnectionState int32

const (
	Disconnected ConnectionState = iota
	Connecting
	Connected
	Disconnecting
)

func (s ConnectionState) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case Disconnecting:
		return "disconnecting"
	default:
		return fmt.Sprintf("ConnectionState(%d)", int32(s))
	}
}

// Peripheral is the session's handle for one remote device. A session keeps
// at most one live handle per identity. Cached fields are snapshots updated
// by the session event loop and may be read from any goroutine.
type Peripheral struct {
	id      adapter.Identity
	session weak.Pointer[Session]

	name  atomic.String
	rssi  atomic.Int64
	adv   atomic.Pointer[adapter.Advertisement]
	state atomic.Int32

	services atomic.Pointer[[]*Service]
	// serviceIndex is loop-confined
	serviceIndex *orderedmap.OrderedMap[adapter.UUID, *Service]
}

func newPeripheral(id adapter.Identity, session weak.Pointer[Session]) *Peripheral {
	return &Peripheral{
		id:           id,
		session:      session,
		serviceIndex: orderedmap.New[adapter.UUID, *Service](),
	}
}

func (p *Peripheral) ID() adapter.Identity {
	return p.id
}

// Name returns the advertised local name, or the identity when none was seen.
func (p *Peripheral) Name() string {
	if n := p.name.Load(); n != "" {
		return n
	}
	return string(p.id)
}

func (p *Peripheral) RSSI() int {
	return int(p.rssi.Load())
}

// Advertisement returns the last advertisement received, if any.
func (p *Peripheral) Advertisement() (adapter.Advertisement, bool) {
	a := p.adv.Load()
	if a == nil {
		return adapter.Advertisement{}, false
	}
	return *a, true
}

func (p *Peripheral) State() ConnectionState {
	return ConnectionState(p.state.Load())
}

func (p *Peripheral) IsConnected() bool {
	return p.State() == Connected
}

// Services returns the services found by the latest successful discovery, or
// nil if discovery has not succeeded yet.
func (p *Peripheral) Services() []*Service {
	list := p.services.Load()
	if list == nil {
		return nil
	}
	return append([]*Service(nil), (*list)...)
}

// Service returns the cached service with the given UUID.
func (p *Peripheral) Service(uuid adapter.UUID) (*Service, bool) {
	list := p.services.Load()
	if list == nil {
		return nil, false
	}
	for _, s := range *list {
		if s.uuid == uuid {
			return s, true
		}
	}
	return nil, false
}

func (p *Peripheral) String() string {
	return fmt.Sprintf("Peripheral(%s, %q, %s)", p.id, p.Name(), p.State())
}

// owner returns the session core, or nil once the session is closed or gone.
func (p *Peripheral) owner() *core {
	s := p.session.Value()
	if s == nil || s.core.closed.Load() {
		return nil
	}
	return s.core
}

// ObserveConnectionState streams true on connect and false on disconnect.
func (p *Peripheral) ObserveConnectionState() *Stream[bool] {
	c := p.owner()
	if c == nil {
		return closedStream[bool]()
	}
	id := p.id
	convert := func(msg any) (bool, bool) {
		switch e := msg.(type) {
		case adapter.Connected:
			return true, e.Peripheral == id
		case adapter.Disconnected:
			return false, e.Peripheral == id
		default:
			return false, false
		}
	}
	return newStream(c.hub, c.cfg.ObserverBuffer, convert, eventbus.TopicConnected, eventbus.TopicDisconnected)
}

// ObserveValueUpdates streams read responses and notifications of this peripheral.
func (p *Peripheral) ObserveValueUpdates() *Stream[adapter.ValueUpdated] {
	c := p.owner()
	if c == nil {
		return closedStream[adapter.ValueUpdated]()
	}
	return newStream(c.hub, c.cfg.ObserverBuffer,
		eventOf[adapter.ValueUpdated](nil, passThrough[adapter.ValueUpdated]),
		eventbus.PeripheralTopic(p.id, eventbus.KindValue))
}

// Connect asks the owning session to connect this peripheral.
func (p *Peripheral) Connect(opts adapter.ConnectOptions) *Result[*Peripheral] {
	s := p.session.Value()
	if s == nil {
		return failed[*Peripheral](nil, operation{kind: opConnect, peripheral: p.id}, KindSessionDestroyed, nil)
	}
	return s.Connect(p.id, opts)
}

// ----------------------------
// Loop-side cache updates
// ----------------------------

func (p *Peripheral) setState(s ConnectionState) {
	p.state.Store(int32(s))
}

func (p *Peripheral) applyDiscovery(e adapter.PeripheralDiscovered) {
	if e.Advertisement.LocalName != "" {
		p.name.Store(e.Advertisement.LocalName)
	}
	p.rssi.Store(int64(e.RSSI))
	adv := e.Advertisement
	p.adv.Store(&adv)
}

// replaceServices installs the services of a discovery, reusing handles for
// UUIDs already known so their characteristic caches survive.
func (p *Peripheral) replaceServices(uuids []adapter.UUID) []*Service {
	next := orderedmap.New[adapter.UUID, *Service]()
	for _, u := range uuids {
		if _, dup := next.Get(u); dup {
			continue
		}
		s, ok := p.serviceIndex.Get(u)
		if !ok {
			s = newService(u, p)
		}
		next.Set(u, s)
	}
	p.serviceIndex = next

	list := make([]*Service, 0, next.Len())
	for pair := next.Oldest(); pair != nil; pair = pair.Next() {
		list = append(list, pair.Value)
	}
	p.services.Store(&list)
	return append([]*Service(nil), list...)
}

func (p *Peripheral) characteristic(service, char adapter.UUID) *Characteristic {
	s, ok := p.serviceIndex.Get(service)
	if !ok {
		return nil
	}
	c, _ := s.index.Get(char)
	return c
}

func (p *Peripheral) applyValue(e adapter.ValueUpdated) {
	if c := p.characteristic(e.Service, e.Characteristic); c != nil {
		c.setValue(e.Value)
	}
}

func (p *Peripheral) applyNotifyState(e adapter.NotificationStateUpdated) {
	if c := p.characteristic(e.Service, e.Characteristic); c != nil {
		c.notifying.Store(e.Notifying)
	}
}
