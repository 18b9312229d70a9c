package eventbus

import (
	"github.com/srg/blecentral/pkg/adapter"
)

// Hub topics for adapter-wide events.
const (
	TopicState        = "adapter.state"
	TopicDiscovered   = "adapter.discovered"
	TopicConnected    = "adapter.connected"
	TopicConnectFail  = "adapter.connect-failed"
	TopicDisconnected = "adapter.disconnected"
)

// AdapterBus carries adapter-wide events: power state, discovery and the
// connection lifecycle of every peripheral.
type AdapterBus struct {
	State         *Topic[adapter.StateChanged]
	Discovered    *Topic[adapter.PeripheralDiscovered]
	Connected     *Topic[adapter.Connected]
	ConnectFailed *Topic[adapter.ConnectFailed]
	Disconnected  *Topic[adapter.Disconnected]

	hub *Hub
}

func NewAdapterBus(hub *Hub) *AdapterBus {
	return &AdapterBus{
		State:         NewTopic[adapter.StateChanged](TopicState),
		Discovered:    NewTopic[adapter.PeripheralDiscovered](TopicDiscovered),
		Connected:     NewTopic[adapter.Connected](TopicConnected),
		ConnectFailed: NewTopic[adapter.ConnectFailed](TopicConnectFail),
		Disconnected:  NewTopic[adapter.Disconnected](TopicDisconnected),
		hub:           hub,
	}
}

func (b *AdapterBus) PublishState(e adapter.StateChanged) {
	b.State.Publish(e)
	b.hub.Publish(TopicState, e)
}

func (b *AdapterBus) PublishDiscovered(e adapter.PeripheralDiscovered) {
	b.Discovered.Publish(e)
	b.hub.Publish(TopicDiscovered, e)
}

func (b *AdapterBus) PublishConnected(e adapter.Connected) {
	b.Connected.Publish(e)
	b.hub.Publish(TopicConnected, e)
}

func (b *AdapterBus) PublishConnectFailed(e adapter.ConnectFailed) {
	b.ConnectFailed.Publish(e)
	b.hub.Publish(TopicConnectFail, e)
}

func (b *AdapterBus) PublishDisconnected(e adapter.Disconnected) {
	b.Disconnected.Publish(e)
	b.hub.Publish(TopicDisconnected, e)
}
