package testutils

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/srg/blecentral/pkg/adapter"
)

// CharacteristicConfig describes a simulated characteristic.
type CharacteristicConfig struct {
	UUID       string `json:"uuid"`
	Properties string `json:"properties,omitempty"` // e.g. "read,notify"
	Value      []byte `json:"value,omitempty"`
}

// ServiceConfig describes a simulated service.
type ServiceConfig struct {
	UUID            string                 `json:"uuid"`
	Characteristics []CharacteristicConfig `json:"characteristics,omitempty"`
}

// PeripheralProfile is a simulated remote device served by FakeAdapter.
type PeripheralProfile struct {
	ID             adapter.Identity `json:"id"`
	Name           string           `json:"name,omitempty"`
	RSSI           int              `json:"rssi,omitempty"`
	Advertised     []string         `json:"advertised,omitempty"`
	Manufacturer   []byte           `json:"manufacturer_data,omitempty"`
	TxPower        *int             `json:"tx_power,omitempty"`
	NotConnectable bool             `json:"not_connectable,omitempty"`
	Services       []ServiceConfig  `json:"services,omitempty"`

	// ConnectErr makes connect attempts fail with this error.
	ConnectErr error `json:"-"`
}

// Advertisement renders the profile's advertising data.
func (p *PeripheralProfile) Advertisement() adapter.Advertisement {
	tx := adapter.TxPowerUnavailable
	if p.TxPower != nil {
		tx = *p.TxPower
	}
	return adapter.Advertisement{
		LocalName:        p.Name,
		ManufacturerData: p.Manufacturer,
		Services:         adapter.NormalizeUUIDs(p.Advertised),
		TxPowerLevel:     tx,
		Connectable:      !p.NotConnectable,
	}
}

func (p *PeripheralProfile) service(uuid adapter.UUID) *ServiceConfig {
	for i := range p.Services {
		if adapter.NormalizeUUID(p.Services[i].UUID) == uuid {
			return &p.Services[i]
		}
	}
	return nil
}

func (p *PeripheralProfile) characteristic(svc, char adapter.UUID) *CharacteristicConfig {
	s := p.service(svc)
	if s == nil {
		return nil
	}
	for i := range s.Characteristics {
		if adapter.NormalizeUUID(s.Characteristics[i].UUID) == char {
			return &s.Characteristics[i]
		}
	}
	return nil
}

// ParseProperties turns "read,notify" into a Property bitset.
func ParseProperties(s string) adapter.Property {
	var p adapter.Property
	for _, name := range strings.Split(s, ",") {
		switch strings.TrimSpace(strings.ToLower(name)) {
		case "broadcast":
			p |= adapter.PropBroadcast
		case "read":
			p |= adapter.PropRead
		case "write-without-response", "writewithoutresponse":
			p |= adapter.PropWriteWithoutResponse
		case "write":
			p |= adapter.PropWrite
		case "notify":
			p |= adapter.PropNotify
		case "indicate":
			p |= adapter.PropIndicate
		case "signed-write":
			p |= adapter.PropSignedWrite
		case "extended":
			p |= adapter.PropExtended
		}
	}
	return p
}

// PeripheralBuilder builds a PeripheralProfile fluently.
type PeripheralBuilder struct {
	profile PeripheralProfile
}

// NewPeripheralBuilder starts a connectable profile with the given identity.
func NewPeripheralBuilder(id string) *PeripheralBuilder {
	return &PeripheralBuilder{profile: PeripheralProfile{ID: adapter.NormalizeIdentity(id), RSSI: -60}}
}

// FromJSON replaces the profile with the formatted JSON document.
func (b *PeripheralBuilder) FromJSON(jsonStrFmt string, args ...any) *PeripheralBuilder {
	doc := fmt.Sprintf(jsonStrFmt, args...)
	var p PeripheralProfile
	if err := json.Unmarshal([]byte(doc), &p); err != nil {
		panic(fmt.Sprintf("invalid peripheral profile JSON: %v", err))
	}
	if p.ID == "" {
		p.ID = b.profile.ID
	}
	p.ID = adapter.NormalizeIdentity(string(p.ID))
	b.profile = p
	return b
}

func (b *PeripheralBuilder) WithName(name string) *PeripheralBuilder {
	b.profile.Name = name
	return b
}

func (b *PeripheralBuilder) WithRSSI(rssi int) *PeripheralBuilder {
	b.profile.RSSI = rssi
	return b
}

// WithAdvertisedServices sets the service UUIDs put in advertisements.
func (b *PeripheralBuilder) WithAdvertisedServices(uuids ...string) *PeripheralBuilder {
	b.profile.Advertised = append(b.profile.Advertised, uuids...)
	return b
}

func (b *PeripheralBuilder) WithManufacturerData(data []byte) *PeripheralBuilder {
	b.profile.Manufacturer = data
	return b
}

func (b *PeripheralBuilder) WithTxPower(power int) *PeripheralBuilder {
	b.profile.TxPower = &power
	return b
}

func (b *PeripheralBuilder) WithConnectError(err error) *PeripheralBuilder {
	b.profile.ConnectErr = err
	return b
}

// WithService adds a GATT service.
func (b *PeripheralBuilder) WithService(uuid string) *PeripheralBuilder {
	b.profile.Services = append(b.profile.Services, ServiceConfig{UUID: uuid})
	return b
}

// WithCharacteristic adds a characteristic to the last added service.
func (b *PeripheralBuilder) WithCharacteristic(uuid, properties string, value []byte) *PeripheralBuilder {
	if len(b.profile.Services) == 0 {
		panic("WithCharacteristic called before WithService")
	}
	last := &b.profile.Services[len(b.profile.Services)-1]
	last.Characteristics = append(last.Characteristics, CharacteristicConfig{
		UUID:       uuid,
		Properties: properties,
		Value:      value,
	})
	return b
}

func (b *PeripheralBuilder) Build() *PeripheralProfile {
	p := b.profile
	return &p
}
