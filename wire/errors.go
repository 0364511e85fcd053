package wire

import (
	"errors"
)

var (
	ErrAssertion = errors.New("AssertionError")
	ErrParse     = errors.New("ParseError")
	// ErrServerNotAvailable the server was not available on the requested port.
	ErrServerNotAvailable = errors.New("ServerNotAvailable")
	// ErrNetwork general network error communicating with the server.
	ErrNetwork = errors.New("Network")
	// ErrConnectionReset the connection to the server was reset in the middle of an operation. Server probably died.
	ErrConnectionReset = errors.New("ConnectionReset")
	// ErrAdb the server or device answered FAIL; the wrapped message carries the reported reason.
	ErrAdb = errors.New("AdbError")
	// ErrDeviceNotFound the server returned a "device not found" error.
	ErrDeviceNotFound = errors.New("DeviceNotFound")
	// ErrFileNoExist tried to perform an operation on a path that doesn't exist on the device.
	ErrFileNoExist = errors.New("FileNoExist")
	// ErrNotFound a queried entity (property, package, activity) isn't present.
	ErrNotFound = errors.New("NotFound")
	// ErrTransferIntegrity transferred byte count doesn't match the remote size. Never retried.
	ErrTransferIntegrity = errors.New("TransferIntegrity")
	// ErrTimeout a blocking operation exceeded its deadline. The session must be
	// closed by whoever set the deadline; the operation is not retried.
	ErrTimeout = errors.New("Timeout")
	// ErrBrokenPipe the transport died mid-write. The only class the install
	// call boundary retries.
	ErrBrokenPipe = errors.New("BrokenPipe")
)
