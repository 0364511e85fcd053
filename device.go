package adb

import (
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/openatx/goadbutils/wire"
)

// Device communicates with a specific Android device.
// To get an instance, call Device() on an Adb.
//
// Each operation opens its own transport session through the host server and
// closes it on every exit path; a Device is safe to use from multiple
// goroutines because sessions are never shared across operations.
type Device struct {
	server     server
	descriptor DeviceDescriptor

	// Used to get device info.
	deviceListFunc func() ([]*DeviceInfo, error)
	deviceFeatures map[string]bool

	// Per-device system property cache, see properties.go.
	properties *propertyCache

	CmdTimeoutShort time.Duration
	CmdTimeoutLong  time.Duration
}

const (
	FeatureShell2         = "shell_v2"
	FeatureCmd            = "cmd"
	FeatureStat2          = "stat_v2"
	FeatureLs2            = "ls_v2"
	FeatureFixedPushMkdir = "fixed_push_mkdir"
	FeatureAbb            = "abb"
	FeatureAbbExec        = "abb_exec"
)

// Network is the endpoint class of a device-local socket connect request.
type Network string

const (
	NetworkTCP           Network = "tcp"
	NetworkLocalAbstract Network = "localabstract"
	NetworkLocalReserved Network = "localreserved"
	NetworkLocal         Network = "local"
	NetworkDev           Network = "dev"
)

func (c *Device) String() string {
	return c.descriptor.String()
}

func (c *Device) Serial() (string, error) {
	attr, err := c.getAttribute("get-serialno")
	return attr, wrapClientError(err, c, "Serial")
}

func (c *Device) DevicePath() (string, error) {
	attr, err := c.getAttribute("get-devpath")
	return attr, wrapClientError(err, c, "DevicePath")
}

func (c *Device) DeviceFeatures() (features map[string]bool, err error) {
	attr, err := c.getAttribute("features")
	if err != nil {
		return nil, wrapClientError(err, c, "features")
	}
	features = featuresStrToMap(attr)
	return
}

func (c *Device) State() (DeviceState, error) {
	attr, err := c.getAttribute("get-state")
	if err != nil {
		if strings.Contains(err.Error(), "unauthorized") {
			return StateUnauthorized, nil
		}
		return StateInvalid, wrapClientError(err, c, "State")
	}
	state, err := parseDeviceState(attr)
	return state, wrapClientError(err, c, "State")
}

func (c *Device) DeviceInfo() (*DeviceInfo, error) {
	// Adb doesn't actually provide a way to get this for an individual device,
	// so we have to just list devices and find ourselves.

	serial, err := c.Serial()
	if err != nil {
		return nil, wrapClientError(err, c, "DeviceInfo(GetSerial)")
	}

	devices, err := c.deviceListFunc()
	if err != nil {
		return nil, wrapClientError(err, c, "DeviceInfo(ListDevices)")
	}

	for _, deviceInfo := range devices {
		if deviceInfo.Serial == serial {
			return deviceInfo, nil
		}
	}

	err = fmt.Errorf("%w: device list doesn't contain serial %s", wire.ErrDeviceNotFound, serial)
	return nil, wrapClientError(err, c, "DeviceInfo")
}

// CreateConnection opens a transport to the device and connects it to a
// device-local socket endpoint, handing the raw channel back to the caller.
//
// Endpoint specs:
//
//	tcp:<port>
//	localabstract:<unix domain socket name>
//	localreserved:<unix domain socket name>
//	local:<unix domain socket name>
//	dev:<character device name>
//
// The caller owns the returned connection and must close it.
func (c *Device) CreateConnection(network Network, address string) (net.Conn, error) {
	spec := string(network) + ":" + address
	conn, err := c.dialDevice()
	if err != nil {
		return nil, wrapClientError(err, c, "CreateConnection(%s)", spec)
	}
	if err = conn.SendMessage([]byte(spec)); err != nil {
		conn.Close()
		return nil, wrapClientError(err, c, "CreateConnection(%s)", spec)
	}
	if _, err = conn.ReadStatus(spec); err != nil {
		conn.Close()
		return nil, wrapClientError(err, c, "CreateConnection(%s)", spec)
	}

	return conn, nil
}

// ConnectPort is shorthand for CreateConnection to tcp:<port> on the device.
func (c *Device) ConnectPort(port int) (net.Conn, error) {
	return c.CreateConnection(NetworkTCP, strconv.Itoa(port))
}

// Remount asks adbd to remount the device's filesystem in read-write mode,
// instead of read-only. This is usually necessary before performing a push
// into a system directory. The request may not succeed on certain builds.
func (c *Device) Remount() (string, error) {
	conn, err := c.dialDevice()
	if err != nil {
		return "", wrapClientError(err, c, "Remount")
	}
	defer conn.Close()

	resp, err := conn.RoundTripSingleResponse([]byte("remount"))
	return string(resp), wrapClientError(err, c, "Remount")
}

func (c *Device) Stat(path string) (*DirEntry, error) {
	conn, err := c.getSyncConn()
	if err != nil {
		return nil, wrapClientError(err, c, "Stat(%s)", path)
	}
	defer conn.Close()

	entry, err := conn.Stat(path)
	return entry, wrapClientError(err, c, "Stat(%s)", path)
}

// ListDirEntries opens a lazy directory listing. The returned iterator owns a
// sync session and closes it when the listing is exhausted or abandoned;
// calling again re-issues a fresh request.
func (c *Device) ListDirEntries(path string) (*DirEntries, error) {
	conn, err := c.getSyncConn()
	if err != nil {
		return nil, wrapClientError(err, c, "ListDirEntries(%s)", path)
	}

	if err = conn.List(path); err != nil {
		conn.Close()
		return nil, wrapClientError(err, c, "ListDirEntries(%s)", path)
	}
	return &DirEntries{syncConn: conn}, nil
}

// getAttribute returns the first message returned by the server by running
// <host-prefix>:<attr>, where host-prefix is determined from the DeviceDescriptor.
func (c *Device) getAttribute(attr string) (string, error) {
	resp, err := roundTripSingleResponse(c.server,
		fmt.Sprintf("%s:%s", c.descriptor.getHostPrefix(), attr))
	if err != nil {
		return "", err
	}
	return string(resp), nil
}

// getSyncConn dials the device and switches the connection into sync mode.
func (c *Device) getSyncConn() (*wire.SyncConn, error) {
	conn, err := c.dialDevice()
	if err != nil {
		return nil, err
	}

	if err := conn.SendMessage([]byte("sync:")); err != nil {
		conn.Close()
		return nil, err
	}
	if _, err := conn.ReadStatus("sync"); err != nil {
		conn.Close()
		return nil, err
	}

	return wire.NewSyncConn(conn), nil
}

// dialDevice switches the connection to communicate directly with the device
// by requesting the transport defined by the DeviceDescriptor.
func (c *Device) dialDevice() (wire.IConn, error) {
	conn, err := c.server.Dial()
	if err != nil {
		return nil, err
	}

	req := fmt.Sprintf("host:%s", c.descriptor.getTransportDescriptor())
	if err = conn.SendMessage([]byte(req)); err != nil {
		conn.Close()
		return nil, fmt.Errorf("error connecting to device '%s': %w", c.descriptor, err)
	}

	if _, err = conn.ReadStatus(req); err != nil {
		conn.Close()
		return nil, err
	}

	return conn, nil
}

// prepareCommandLine validates the command and argument strings, quotes
// arguments if required, and joins them into a valid adb command string.
func prepareCommandLine(cmd string, args ...string) (string, error) {
	if isBlank(cmd) {
		return "", fmt.Errorf("%w: command cannot be empty", wire.ErrAssertion)
	}

	for i, arg := range args {
		if strings.ContainsRune(arg, '"') {
			return "", fmt.Errorf("%w: arg at index %d contains an invalid double quote: %s", wire.ErrParse, i, arg)
		}
		if containsWhitespace(arg) {
			args[i] = fmt.Sprintf("\"%s\"", arg)
		}
	}

	// Prepend the command to the args array.
	if len(args) > 0 {
		cmd = fmt.Sprintf("%s %s", cmd, strings.Join(args, " "))
	}

	return cmd, nil
}
