package adapter

// TxPowerUnavailable is reported when an advertisement carries no TX power level.
const TxPowerUnavailable = 127

// Advertisement is a snapshot of the advertising data received with a
// discovery event. It is treated as immutable once published.
type Advertisement struct {
	LocalName        string
	ManufacturerData []byte
	ServiceData      map[UUID][]byte
	Services         []UUID
	TxPowerLevel     int
	Connectable      bool
}

// HasService reports whether the advertisement lists u among its services.
func (a Advertisement) HasService(u UUID) bool {
	return ContainsUUID(a.Services, u)
}

// MatchesAny reports whether the advertisement lists at least one UUID from
// filter. An empty filter matches every advertisement.
func (a Advertisement) MatchesAny(filter []UUID) bool {
	if len(filter) == 0 {
		return true
	}
	for _, u := range filter {
		if a.HasService(u) {
			return true
		}
		if _, ok := a.ServiceData[u]; ok {
			return true
		}
	}
	return false
}
