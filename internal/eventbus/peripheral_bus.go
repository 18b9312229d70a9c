package eventbus

import (
	"github.com/srg/blecentral/pkg/adapter"
)

// PeripheralTopics groups the per-peripheral event streams.
type PeripheralTopics struct {
	Services        *Topic[adapter.ServicesDiscovered]
	Characteristics *Topic[adapter.CharacteristicsDiscovered]
	Values          *Topic[adapter.ValueUpdated]
	NotifyState     *Topic[adapter.NotificationStateUpdated]
}

func (t *PeripheralTopics) idle() bool {
	return t.Services.Len() == 0 && t.Characteristics.Len() == 0 &&
		t.Values.Len() == 0 && t.NotifyState.Len() == 0
}

// PeripheralBus demultiplexes GATT events by peripheral identity. Topics are
// created on first use and confined to the event loop.
type PeripheralBus struct {
	topics map[adapter.Identity]*PeripheralTopics
	hub    *Hub
}

func NewPeripheralBus(hub *Hub) *PeripheralBus {
	return &PeripheralBus{
		topics: make(map[adapter.Identity]*PeripheralTopics),
		hub:    hub,
	}
}

// PeripheralTopic names the hub topic for kind events of peripheral id.
func PeripheralTopic(id adapter.Identity, kind string) string {
	return "peripheral/" + string(id) + "/" + kind
}

// Hub topic kinds for per-peripheral events.
const (
	KindServices        = "services"
	KindCharacteristics = "characteristics"
	KindValue           = "value"
	KindNotifyState     = "notify-state"
)

// For returns the topics of id, creating them if needed.
func (b *PeripheralBus) For(id adapter.Identity) *PeripheralTopics {
	t, ok := b.topics[id]
	if !ok {
		prefix := string(id) + "."
		t = &PeripheralTopics{
			Services:        NewTopic[adapter.ServicesDiscovered](prefix + KindServices),
			Characteristics: NewTopic[adapter.CharacteristicsDiscovered](prefix + KindCharacteristics),
			Values:          NewTopic[adapter.ValueUpdated](prefix + KindValue),
			NotifyState:     NewTopic[adapter.NotificationStateUpdated](prefix + KindNotifyState),
		}
		b.topics[id] = t
	}
	return t
}

// Release drops the topics of id when nobody is subscribed any more.
func (b *PeripheralBus) Release(id adapter.Identity) bool {
	t, ok := b.topics[id]
	if !ok {
		return true
	}
	if !t.idle() {
		return false
	}
	delete(b.topics, id)
	return true
}

// Len returns the number of peripherals with live topics.
func (b *PeripheralBus) Len() int {
	return len(b.topics)
}

func (b *PeripheralBus) PublishServices(e adapter.ServicesDiscovered) {
	if t, ok := b.topics[e.Peripheral]; ok {
		t.Services.Publish(e)
	}
	b.hub.Publish(PeripheralTopic(e.Peripheral, KindServices), e)
}

func (b *PeripheralBus) PublishCharacteristics(e adapter.CharacteristicsDiscovered) {
	if t, ok := b.topics[e.Peripheral]; ok {
		t.Characteristics.Publish(e)
	}
	b.hub.Publish(PeripheralTopic(e.Peripheral, KindCharacteristics), e)
}

func (b *PeripheralBus) PublishValue(e adapter.ValueUpdated) {
	if t, ok := b.topics[e.Peripheral]; ok {
		t.Values.Publish(e)
	}
	b.hub.Publish(PeripheralTopic(e.Peripheral, KindValue), e)
}

func (b *PeripheralBus) PublishNotifyState(e adapter.NotificationStateUpdated) {
	if t, ok := b.topics[e.Peripheral]; ok {
		t.NotifyState.Publish(e)
	}
	b.hub.Publish(PeripheralTopic(e.Peripheral, KindNotifyState), e)
}
