package adb

import (
	"bytes"
	"strings"
)

func checkNameValid(name string) bool {
	return !(name == "" || name == "null" || strings.Contains(strings.ToLower(name), "error"))
}

// Settings reads one key from a settings namespace ("system", "secure" or
// "global"). A missing key comes back as the empty string.
func (d *Device) Settings(namespace, key string) (string, error) {
	resp, err := d.RunCommand("settings", "get", namespace, key)
	if err != nil {
		return "", wrapClientError(err, d, "Settings(%s, %s)", namespace, key)
	}
	value := string(bytes.TrimSpace(resp))
	if value == "null" {
		value = ""
	}
	return value, nil
}

// PutSettings writes one key in a settings namespace.
func (d *Device) PutSettings(namespace, key, value string) error {
	_, err := d.RunCommand("settings", "put", namespace, key, value)
	return wrapClientError(err, d, "PutSettings(%s, %s)", namespace, key)
}

// GetDeviceName finds the user-visible device name. There is no single
// source for it, so the bluetooth name, the global device name and the
// product name property are tried in turn.
// see: https://stackoverflow.com/questions/16704597/how-do-you-get-the-user-defined-device-name-in-android
func (d *Device) GetDeviceName() (name string, err error) {
	name, err = d.Settings("secure", "bluetooth_name")
	if err != nil {
		return
	}
	if checkNameValid(name) {
		return
	}

	name, err = d.Settings("global", "device_name")
	if err != nil {
		return
	}
	if checkNameValid(name) {
		return
	}

	name, err = d.GetProperty(PropProductName)
	return
}

// SetAccelerometerRotation toggles auto-rotate.
func (d *Device) SetAccelerometerRotation(enable bool) error {
	value := "0"
	if enable {
		value = "1"
	}
	return d.PutSettings("system", "accelerometer_rotation", value)
}
