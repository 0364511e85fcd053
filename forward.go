package adb

import (
	"fmt"
	"net"
	"strconv"
	"strings"

	"github.com/openatx/goadbutils/wire"
)

// ForwardEntry is one active host-to-device port forward.
type ForwardEntry struct {
	Serial string
	// Local endpoint spec on the host, e.g. "tcp:6100".
	Local string
	// Remote endpoint spec on the device, e.g. "tcp:7100" or
	// "localabstract:scrcpy".
	Remote string
}

func (e ForwardEntry) String() string {
	return fmt.Sprintf("%s %s %s", e.Serial, e.Local, e.Remote)
}

// parseForwardList parses `host:list-forward` output: one forward per line,
// three space-separated fields.
func parseForwardList(resp string) ([]ForwardEntry, error) {
	var entries []ForwardEntry
	for _, line := range strings.Split(resp, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) != 3 {
			return nil, fmt.Errorf("%w: invalid forward list line: %s", wire.ErrParse, line)
		}
		entries = append(entries, ForwardEntry{Serial: fields[0], Local: fields[1], Remote: fields[2]})
	}
	return entries, nil
}

// hostService runs a host-prefix service that answers with a bare status,
// e.g. forward and killforward.
func (c *Device) hostService(req string) error {
	conn, err := c.server.Dial()
	if err != nil {
		return err
	}
	defer conn.Close()

	full := fmt.Sprintf("%s:%s", c.descriptor.getHostPrefix(), req)
	if err = conn.SendMessage([]byte(full)); err != nil {
		return err
	}
	_, err = conn.ReadStatus(full)
	return err
}

// Forward asks the server to forward the host endpoint local to the device
// endpoint remote. Specs use adb syntax ("tcp:<port>", "localabstract:<name>").
// An existing forward on local is rebound unless noRebind is set.
func (c *Device) Forward(local, remote string, noRebind bool) error {
	req := fmt.Sprintf("forward:%s;%s", local, remote)
	if noRebind {
		req = fmt.Sprintf("forward:norebind:%s;%s", local, remote)
	}
	return wrapClientError(c.hostService(req), c, "Forward(%s, %s)", local, remote)
}

// ForwardPort forwards host localPort to the same-numbered tcp port style
// endpoint remote on the device and returns localPort for chaining.
func (c *Device) ForwardPort(localPort int, remote string) (int, error) {
	err := c.Forward(fmt.Sprintf("tcp:%d", localPort), remote, false)
	return localPort, err
}

// ForwardList lists this device's active forwards.
func (c *Device) ForwardList() ([]ForwardEntry, error) {
	serial, err := c.Serial()
	if err != nil {
		return nil, wrapClientError(err, c, "ForwardList")
	}

	// list-forward reports forwards for every device, filter to ours.
	resp, err := roundTripSingleResponse(c.server, "host:list-forward")
	if err != nil {
		return nil, wrapClientError(err, c, "ForwardList")
	}
	all, err := parseForwardList(string(resp))
	if err != nil {
		return nil, wrapClientError(err, c, "ForwardList")
	}

	var mine []ForwardEntry
	for _, entry := range all {
		if entry.Serial == serial {
			mine = append(mine, entry)
		}
	}
	return mine, nil
}

// RemoveForward removes the forward bound to the host endpoint local.
func (c *Device) RemoveForward(local string) error {
	return wrapClientError(c.hostService("killforward:"+local), c, "RemoveForward(%s)", local)
}

// RemoveAllForwards removes every forward for this device.
func (c *Device) RemoveAllForwards() error {
	return wrapClientError(c.hostService("killforward-all"), c, "RemoveAllForwards")
}

// ForwardToFreePort returns a host tcp port forwarded to the device endpoint
// remote. If a tcp forward to remote already exists it is reused, otherwise a
// free port is picked and bound.
func (c *Device) ForwardToFreePort(remote string) (int, error) {
	forwards, err := c.ForwardList()
	if err != nil {
		return 0, err
	}
	for _, entry := range forwards {
		if entry.Remote == remote && strings.HasPrefix(entry.Local, "tcp:") {
			port, err := strconv.Atoi(strings.TrimPrefix(entry.Local, "tcp:"))
			if err == nil {
				return port, nil
			}
		}
	}

	port, err := pickFreePort()
	if err != nil {
		return 0, wrapClientError(err, c, "ForwardToFreePort(%s)", remote)
	}
	return c.ForwardPort(port, remote)
}

// pickFreePort asks the OS for an unused tcp port. The listener is closed
// before the forward is bound, so another process could grab the port in
// between; callers that care should retry.
func pickFreePort() (int, error) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return 0, err
	}
	defer listener.Close()
	return listener.Addr().(*net.TCPAddr).Port, nil
}

// deviceService runs a request on the device transport that answers with a
// bare status, then optionally a payload read by the caller.
func (c *Device) deviceService(req string) (wire.IConn, error) {
	conn, err := c.dialDevice()
	if err != nil {
		return nil, err
	}
	if err = conn.SendMessage([]byte(req)); err != nil {
		conn.Close()
		return nil, err
	}
	if _, err = conn.ReadStatus(req); err != nil {
		conn.Close()
		return nil, err
	}
	return conn, nil
}

// Reverse asks adbd to forward the device endpoint remote to the host
// endpoint local. Directions mirror Forward.
func (c *Device) Reverse(remote, local string, noRebind bool) error {
	req := fmt.Sprintf("reverse:forward:%s;%s", remote, local)
	if noRebind {
		req = fmt.Sprintf("reverse:forward:norebind:%s;%s", remote, local)
	}
	conn, err := c.deviceService(req)
	if err != nil {
		return wrapClientError(err, c, "Reverse(%s, %s)", remote, local)
	}
	conn.Close()
	return nil
}

// ReverseList lists this device's active reverses.
func (c *Device) ReverseList() ([]ForwardEntry, error) {
	conn, err := c.deviceService("reverse:list-forward")
	if err != nil {
		return nil, wrapClientError(err, c, "ReverseList")
	}
	defer conn.Close()

	resp, err := conn.ReadMessage()
	if err != nil {
		return nil, wrapClientError(err, c, "ReverseList")
	}
	entries, err := parseForwardList(string(resp))
	return entries, wrapClientError(err, c, "ReverseList")
}

// RemoveReverse removes the reverse bound to the device endpoint remote.
func (c *Device) RemoveReverse(remote string) error {
	conn, err := c.deviceService("reverse:killforward:" + remote)
	if err != nil {
		return wrapClientError(err, c, "RemoveReverse(%s)", remote)
	}
	conn.Close()
	return nil
}
