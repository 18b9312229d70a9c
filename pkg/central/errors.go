package central

import (
	"errors"
	"strings"

	"github.com/srg/blecentral/pkg/adapter"
)

// ErrorKind classifies the terminal failure of an operation.
type ErrorKind int

const (
	KindUnknown ErrorKind = iota
	KindAdapterNotReady
	KindScanAlreadyInProgress
	KindConnectFailed
	KindServiceDiscoveryFailed
	KindNoServicesForPeripheral
	KindCharacteristicDiscoveryFailed
	KindNoCharacteristicsForService
	KindSessionDestroyed
	KindOperationCancelled
	KindReadFailed
	KindNotifyFailed
	KindDisconnectFailed
	KindUnsupported
)

var kindNames = [...]string{
	KindUnknown:                       "unknown error",
	KindAdapterNotReady:               "adapter not ready",
	KindScanAlreadyInProgress:         "scan already in progress",
	KindConnectFailed:                 "connect failed",
	KindServiceDiscoveryFailed:        "service discovery failed",
	KindNoServicesForPeripheral:       "no services for peripheral",
	KindCharacteristicDiscoveryFailed: "characteristic discovery failed",
	KindNoCharacteristicsForService:   "no characteristics for service",
	KindSessionDestroyed:              "session destroyed",
	KindOperationCancelled:            "operation cancelled",
	KindReadFailed:                    "read failed",
	KindNotifyFailed:                  "notify state change failed",
	KindDisconnectFailed:              "disconnect failed",
	KindUnsupported:                   "unsupported by adapter",
}

func (k ErrorKind) String() string {
	if k < 0 || int(k) >= len(kindNames) {
		return kindNames[KindUnknown]
	}
	return kindNames[k]
}

// Error is the failure outcome of an operation. The adapter cause, if any,
// is available through errors.Unwrap.
type Error struct {
	Kind           ErrorKind
	Peripheral     adapter.Identity
	Service        adapter.UUID
	Characteristic adapter.UUID
	Err            error
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	var b strings.Builder
	b.WriteString(e.Kind.String())

	var scope []string
	if e.Peripheral != "" {
		scope = append(scope, "peripheral "+string(e.Peripheral))
	}
	if e.Service != "" {
		scope = append(scope, "service "+string(e.Service))
	}
	if e.Characteristic != "" {
		scope = append(scope, "characteristic "+string(e.Characteristic))
	}
	if len(scope) > 0 {
		b.WriteString(" (")
		b.WriteString(strings.Join(scope, ", "))
		b.WriteString(")")
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is compares Error values by Kind.
func (e *Error) Is(target error) bool {
	if e == nil {
		return false
	}
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

// Sentinels for errors.Is checks.
var (
	ErrAdapterNotReady               = &Error{Kind: KindAdapterNotReady}
	ErrScanAlreadyInProgress         = &Error{Kind: KindScanAlreadyInProgress}
	ErrConnectFailed                 = &Error{Kind: KindConnectFailed}
	ErrServiceDiscoveryFailed        = &Error{Kind: KindServiceDiscoveryFailed}
	ErrNoServicesForPeripheral       = &Error{Kind: KindNoServicesForPeripheral}
	ErrCharacteristicDiscoveryFailed = &Error{Kind: KindCharacteristicDiscoveryFailed}
	ErrNoCharacteristicsForService   = &Error{Kind: KindNoCharacteristicsForService}
	ErrSessionDestroyed              = &Error{Kind: KindSessionDestroyed}
	ErrOperationCancelled            = &Error{Kind: KindOperationCancelled}
	ErrReadFailed                    = &Error{Kind: KindReadFailed}
	ErrNotifyFailed                  = &Error{Kind: KindNotifyFailed}
	ErrDisconnectFailed              = &Error{Kind: KindDisconnectFailed}
	ErrUnsupported                   = &Error{Kind: KindUnsupported}
)

// KindOf returns the kind of the first *Error in err's chain.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}
