package central

import (
	"bytes"
	"fmt"

	orderedmap "github.com/wk8/go-ordered-map/v2"
	"go.uber.org/atomic"

	"github.com/srg/blecentral/pkg/adapter"
)

// Service is a GATT service found on a peripheral.
type Service struct {
	uuid       adapter.UUID
	peripheral *Peripheral

	characteristics atomic.Pointer[[]*Characteristic]
	// index is loop-confined
	index *orderedmap.OrderedMap[adapter.UUID, *Characteristic]
}

func newService(uuid adapter.UUID, p *Peripheral) *Service {
	return &Service{
		uuid:       uuid,
		peripheral: p,
		index:      orderedmap.New[adapter.UUID, *Characteristic](),
	}
}

func (s *Service) UUID() adapter.UUID {
	return s.uuid
}

func (s *Service) Peripheral() *Peripheral {
	return s.peripheral
}

// Characteristics returns the characteristics found by the latest successful
// discovery on this service, or nil before one.
func (s *Service) Characteristics() []*Characteristic {
	list := s.characteristics.Load()
	if list == nil {
		return nil
	}
	return append([]*Characteristic(nil), (*list)...)
}

func (s *Service) Characteristic(uuid adapter.UUID) (*Characteristic, bool) {
	list := s.characteristics.Load()
	if list == nil {
		return nil, false
	}
	for _, c := range *list {
		if c.uuid == uuid {
			return c, true
		}
	}
	return nil, false
}

// DiscoverCharacteristics discovers the characteristics of this service.
func (s *Service) DiscoverCharacteristics(filter ...adapter.UUID) *Result[[]*Characteristic] {
	return s.peripheral.DiscoverCharacteristics(s, filter...)
}

func (s *Service) String() string {
	return fmt.Sprintf("Service(%s)", s.uuid)
}

func (s *Service) replaceCharacteristics(found []adapter.DiscoveredCharacteristic) []*Characteristic {
	next := orderedmap.New[adapter.UUID, *Characteristic]()
	for _, d := range found {
		if _, dup := next.Get(d.UUID); dup {
			continue
		}
		c, ok := s.index.Get(d.UUID)
		if !ok {
			c = &Characteristic{uuid: d.UUID, service: s}
		}
		c.properties.Store(uint32(d.Properties))
		next.Set(d.UUID, c)
	}
	s.index = next

	list := make([]*Characteristic, 0, next.Len())
	for pair := next.Oldest(); pair != nil; pair = pair.Next() {
		list = append(list, pair.Value)
	}
	s.characteristics.Store(&list)
	return append([]*Characteristic(nil), list...)
}

// Characteristic is a read-only view of a GATT characteristic. Its value and
// notifying flag follow the value and notification events of the session.
type Characteristic struct {
	uuid    adapter.UUID
	service *Service

	properties atomic.Uint32
	value      atomic.Pointer[[]byte]
	notifying  atomic.Bool
}

func (c *Characteristic) UUID() adapter.UUID {
	return c.uuid
}

func (c *Characteristic) Service() *Service {
	return c.service
}

func (c *Characteristic) Properties() adapter.Property {
	return adapter.Property(c.properties.Load())
}

// Value returns a copy of the latest value, or nil if none was received.
func (c *Characteristic) Value() []byte {
	v := c.value.Load()
	if v == nil {
		return nil
	}
	return bytes.Clone(*v)
}

func (c *Characteristic) IsNotifying() bool {
	return c.notifying.Load()
}

func (c *Characteristic) String() string {
	return fmt.Sprintf("Characteristic(%s, %s)", c.uuid, c.Properties())
}

func (c *Characteristic) setValue(v []byte) {
	cp := bytes.Clone(v)
	if cp == nil {
		cp = []byte{}
	}
	c.value.Store(&cp)
}
