package adapter

// State is the power/authorization state reported by the platform stack.
type State int

const (
	StateUnknown State = iota
	StateResetting
	StateUnsupported
	StateUnauthorized
	StatePoweredOff
	StatePoweredOn
)

var stateNames = [...]string{
	StateUnknown:      "unknown",
	StateResetting:    "resetting",
	StateUnsupported:  "unsupported",
	StateUnauthorized: "unauthorized",
	StatePoweredOff:   "poweredOff",
	StatePoweredOn:    "poweredOn",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "unknown"
	}
	return stateNames[s]
}

// Ready reports whether the adapter accepts scan and connect requests.
func (s State) Ready() bool {
	return s == StatePoweredOn
}
