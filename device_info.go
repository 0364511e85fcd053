package adb

import (
	"bufio"
	"bytes"
	"fmt"
	"strconv"
	"strings"

	"github.com/openatx/goadbutils/wire"
)

type DeviceInfo struct {
	// Always set.
	Serial string

	State string
	// Product, device, and model are not set in the short form.
	Product     string
	Model       string
	DeviceInfo  string
	TransportID int

	// Only set for devices connected via USB.
	Usb string
}

// IsUsb returns true if the device is connected via USB.
func (d *DeviceInfo) IsUsb() bool {
	return d.Usb != ""
}

func newDevice(serial, state string, attrs map[string]string) (*DeviceInfo, error) {
	if serial == "" {
		return nil, fmt.Errorf("%w: device serial cannot be blank", wire.ErrAssertion)
	}

	var tid int
	tidstr, ok := attrs["transport_id"]
	if ok {
		value, err := strconv.Atoi(tidstr)
		if err == nil {
			tid = value
		}
	}

	return &DeviceInfo{
		Serial:      serial,
		State:       state,
		Product:     attrs["product"],
		Model:       attrs["model"],
		DeviceInfo:  attrs["device"],
		Usb:         attrs["usb"],
		TransportID: tid,
	}, nil
}

func parseDeviceList(list string, lineParseFunc func(string) (*DeviceInfo, error)) ([]*DeviceInfo, error) {
	devices := []*DeviceInfo{}
	scanner := bufio.NewScanner(strings.NewReader(list))

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		device, err := lineParseFunc(line)
		if err != nil {
			return nil, err
		}
		devices = append(devices, device)
	}

	return devices, nil
}

func parseDeviceShort(line string) (*DeviceInfo, error) {
	fields := strings.Fields(line)
	if len(fields) != 2 {
		return nil, fmt.Errorf("%w: malformed device line, expected 2 fields but found %d",
			wire.ErrParse, len(fields))
	}

	return newDevice(fields[0], fields[1], map[string]string{})
}

// parseDeviceLong parses one line of `adb devices -l` output.
//
// Devices connected over TCP have no usb attribute, and `unauthorized` lines
// only carry usb/transport_id, so every attribute is optional. Values may
// themselves contain spaces (e.g. model:Nexus 7), hence the last-colon walk
// instead of a straight strings.Fields split.
func parseDeviceLong(line string) (*DeviceInfo, error) {
	invalidErr := fmt.Errorf("%w: invalid device line: %q", wire.ErrParse, line)
	buf := bytes.NewBufferString(strings.TrimSpace(line))

	serial, err := readBuff(buf, true)
	if err != nil {
		return nil, invalidErr
	}
	if _, err = readBuff(buf, false); err != nil {
		return nil, invalidErr
	}

	state, err := readBuff(buf, true)
	if err != nil {
		// State is the last token on the line, no attributes follow.
		return newDevice(string(serial), buf.String(), map[string]string{})
	}
	if _, err = readBuff(buf, false); err != nil {
		return newDevice(string(serial), string(state), map[string]string{})
	}

	attrs := map[string]string{}
	rbuf, err := buf.ReadBytes(':')
	if err != nil {
		return nil, invalidErr
	}
	key := string(rbuf[:len(rbuf)-1])
	for {
		rbuf, err = buf.ReadBytes(':')
		if err != nil {
			// Last value runs to end of line.
			attrs[key] = string(rbuf)
			break
		}
		bi := bytes.LastIndexByte(rbuf, ' ')
		if bi < 0 {
			return nil, invalidErr
		}
		attrs[key] = string(bytes.TrimSpace(rbuf[:bi]))

		key = string(rbuf[bi+1 : len(rbuf)-1])
	}
	return newDevice(string(serial), string(state), attrs)
}

// readBuff consumes buf up to the next whitespace boundary (toSpace true) or
// the next non-whitespace byte (toSpace false).
func readBuff(buf *bytes.Buffer, toSpace bool) ([]byte, error) {
	cbuf := buf.Bytes()

	for i, c := range cbuf {
		isSpace := c == '\t' || c == ' '
		if toSpace == isSpace {
			return buf.Next(i), nil
		}
	}
	return nil, fmt.Errorf("not found")
}
