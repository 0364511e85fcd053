package adb

import (
	"bytes"
	"fmt"
	"regexp"
	"strconv"
	"sync"

	"github.com/Masterminds/semver"
	"github.com/openatx/goadbutils/wire"
)

const (
	PropSysBootCompleted       = "sys.boot_completed"
	PropSerial                 = "ro.serialno"
	PropProductName            = "ro.product.name"
	PropProductBrand           = "ro.product.brand"
	PropProductModel           = "ro.product.model"
	PropProductManu            = "ro.product.manufacturer"
	PropProductCpuAbi          = "ro.product.cpu.abi"
	PropBuildVersionSdk        = "ro.build.version.sdk"         // api level
	PropProductBuildVersionSdk = "ro.product.build.version.sdk" // api level
	PropBuildVersionRelease    = "ro.build.version.release"     // android os version
	PropDeviceName             = "ro.product.device"
)

var devicePropertyRegex = regexp.MustCompile(`(?m)\[(\S+)\]:\s*\[(.*)\]\s*$`)

type PropertiesFilter func(k, v string) bool

// AndroidProperties is a parsed getprop dump.
type AndroidProperties map[string]string

func parseDeviceProperties(resp []byte, filter PropertiesFilter) AndroidProperties {
	matches := devicePropertyRegex.FindAllSubmatch(resp, -1)
	properties := make(AndroidProperties)
	for _, match := range matches {
		if len(match) < 3 {
			continue
		}
		key := string(match[1])
		value := string(match[2])

		if filter == nil || filter(key, value) {
			properties[key] = value
		}
	}
	return properties
}

// propertyCache memoizes a device's full getprop dump. Properties are cheap
// to query but installs and CLI loops hit them repeatedly, so the first load
// wins and later loads reuse it until invalidated. Concurrent refreshes may
// race; the last writer wins, which is fine since dumps from the same device
// are equivalent.
type propertyCache struct {
	mu    sync.Mutex
	props AndroidProperties
}

func newPropertyCache() *propertyCache {
	return &propertyCache{}
}

func (p *propertyCache) load(fetch func() (AndroidProperties, error), refresh bool) (AndroidProperties, error) {
	p.mu.Lock()
	cached := p.props
	p.mu.Unlock()
	if cached != nil && !refresh {
		return cached, nil
	}

	props, err := fetch()
	if err != nil {
		return nil, err
	}
	p.mu.Lock()
	p.props = props
	p.mu.Unlock()
	return props, nil
}

func (p *propertyCache) invalidate() {
	p.mu.Lock()
	p.props = nil
	p.mu.Unlock()
}

// GetProperties runs getprop and parses the full dump, bypassing the cache.
func (d *Device) GetProperties(filter PropertiesFilter) (properties AndroidProperties, err error) {
	resp, err := d.RunCommand("getprop")
	if err != nil {
		return
	}

	properties = parseDeviceProperties(resp, filter)
	if len(properties) == 0 {
		err = fmt.Errorf("%w: no properties in getprop output", wire.ErrParse)
	}
	return
}

// Properties returns the cached getprop dump, loading it on first use.
func (d *Device) Properties() (AndroidProperties, error) {
	return d.properties.load(func() (AndroidProperties, error) {
		return d.GetProperties(nil)
	}, false)
}

// RefreshProperties reloads the property cache from the device.
func (d *Device) RefreshProperties() (AndroidProperties, error) {
	return d.properties.load(func() (AndroidProperties, error) {
		return d.GetProperties(nil)
	}, true)
}

// InvalidateProperties drops the cached dump. The next Properties call
// queries the device again.
func (d *Device) InvalidateProperties() {
	d.properties.invalidate()
}

// GetProperty queries a single property, bypassing the cache.
func (d *Device) GetProperty(name string) (value string, err error) {
	resp, err := d.RunCommand("getprop", name)
	if err != nil {
		return
	}
	value = string(bytes.TrimSpace(resp))
	return
}

// SetProperty runs setprop. Read-only (ro.) properties silently keep their
// value; callers that care should read the property back.
func (d *Device) SetProperty(key, value string) (err error) {
	_, err = d.RunCommand("setprop", key, value)
	return
}

func (d *Device) BootCompleted() (bool, error) {
	booted, err := d.GetProperty(PropSysBootCompleted)
	if err != nil {
		return false, err
	}
	return booted == "1", nil
}

func (a AndroidProperties) GetMapValue(key string) (string, error) {
	if v, ok := a[key]; ok {
		return v, nil
	}
	return "", fmt.Errorf("getprop %s: %w", key, wire.ErrNotFound)
}

func (a AndroidProperties) Serial() (string, error) {
	return a.GetMapValue(PropSerial)
}

func (a AndroidProperties) ProductName() (string, error) {
	return a.GetMapValue(PropProductName)
}

func (a AndroidProperties) ProductBrand() (string, error) {
	return a.GetMapValue(PropProductBrand)
}

func (a AndroidProperties) ProductManufacturer() (string, error) {
	return a.GetMapValue(PropProductManu)
}

func (a AndroidProperties) ProductModel() (string, error) {
	return a.GetMapValue(PropProductModel)
}

func (a AndroidProperties) CpuAbi() (string, error) {
	return a.GetMapValue(PropProductCpuAbi)
}

func (a AndroidProperties) SdkLevel() (int, error) {
	sdkstr, err := a.GetMapValue(PropBuildVersionSdk)
	if err != nil {
		sdkstr, err = a.GetMapValue(PropProductBuildVersionSdk)
		if err != nil {
			return -1, fmt.Errorf("neither %s nor %s prop found", PropBuildVersionSdk, PropProductBuildVersionSdk)
		}
	}
	v, err := strconv.Atoi(sdkstr)
	if err != nil {
		return 0, fmt.Errorf("parse 'getprop %s': %w", PropBuildVersionSdk, err)
	}
	return v, nil
}

// BuildVersion parses the Android release version, e.g. "13" or "4.4.2".
func (a AndroidProperties) BuildVersion() (version *semver.Version, err error) {
	versionStr, err := a.GetMapValue(PropBuildVersionRelease)
	if err != nil {
		return
	}
	return semver.NewVersion(versionStr)
}
