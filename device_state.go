package adb

import (
	"fmt"

	"github.com/openatx/goadbutils/wire"
)

// DeviceState represents one of the possible states adb will report devices.
// A device can be communicated with when it's in StateOnline.
// A USB device will make the following state transitions:
//
//	Plugged in: StateDisconnected->StateOffline->StateOnline
//	Unplugged:  StateOnline->StateDisconnected
type DeviceState int8

const (
	StateInvalid DeviceState = iota
	StateUnauthorized
	StateAuthorizing
	StateDisconnected
	StateOffline
	StateOnline
	StateHost
)

var deviceStateStrings = map[string]DeviceState{
	"":             StateDisconnected,
	"offline":      StateOffline,
	"device":       StateOnline,
	"unauthorized": StateUnauthorized,
	"authorizing":  StateAuthorizing,
	"host":         StateHost,
}

func parseDeviceState(str string) (DeviceState, error) {
	state, ok := deviceStateStrings[str]
	if !ok {
		return StateInvalid, fmt.Errorf("%w: invalid device state: %s", wire.ErrParse, str)
	}
	return state, nil
}

func (s DeviceState) String() string {
	switch s {
	case StateUnauthorized:
		return "StateUnauthorized"
	case StateAuthorizing:
		return "StateAuthorizing"
	case StateDisconnected:
		return "StateDisconnected"
	case StateOffline:
		return "StateOffline"
	case StateOnline:
		return "StateOnline"
	case StateHost:
		return "StateHost"
	default:
		return "StateInvalid"
	}
}
