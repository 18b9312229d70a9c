package adapter

import "strings"

// Property is the characteristic properties bitset as defined by the Core
// specification (Vol 3, Part G, 3.3.1.1).
type Property uint8

const (
	PropBroadcast            Property = 0x01
	PropRead                 Property = 0x02
	PropWriteWithoutResponse Property = 0x04
	PropWrite                Property = 0x08
	PropNotify               Property = 0x10
	PropIndicate             Property = 0x20
	PropSignedWrite          Property = 0x40
	PropExtended             Property = 0x80
)

var propertyNames = []struct {
	p    Property
	name string
}{
	{PropBroadcast, "broadcast"},
	{PropRead, "read"},
	{PropWriteWithoutResponse, "write-without-response"},
	{PropWrite, "write"},
	{PropNotify, "notify"},
	{PropIndicate, "indicate"},
	{PropSignedWrite, "signed-write"},
	{PropExtended, "extended"},
}

// Has reports whether all bits of flag are set.
func (p Property) Has(flag Property) bool {
	return p&flag == flag
}

// Names returns the names of the set properties in bit order.
func (p Property) Names() []string {
	var names []string
	for _, pn := range propertyNames {
		if p&pn.p != 0 {
			names = append(names, pn.name)
		}
	}
	return names
}

func (p Property) String() string {
	return strings.Join(p.Names(), ",")
}
