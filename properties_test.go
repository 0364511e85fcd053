package adb

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/openatx/goadbutils/wire"
)

const getpropDump = `[ro.build.version.release]: [13]
[ro.build.version.sdk]: [33]
[ro.product.brand]: [Google]
[ro.product.model]: [Pixel 6]
[ro.product.name]: [oriole]
[ro.serialno]: [1C051FDF6000EV]
[sys.boot_completed]: [1]
[persist.sys.locale]: []
`

func TestParseDeviceProperties(t *testing.T) {
	props := parseDeviceProperties([]byte(getpropDump), nil)
	assert.Equal(t, "13", props["ro.build.version.release"])
	assert.Equal(t, "Pixel 6", props["ro.product.model"])
	assert.Equal(t, "", props["persist.sys.locale"])
	assert.Len(t, props, 8)
}

func TestParseDevicePropertiesFilter(t *testing.T) {
	props := parseDeviceProperties([]byte(getpropDump), func(k, v string) bool {
		return k == "ro.product.model"
	})
	assert.Len(t, props, 1)
	assert.Equal(t, "Pixel 6", props["ro.product.model"])
}

func TestAndroidPropertiesAccessors(t *testing.T) {
	props := parseDeviceProperties([]byte(getpropDump), nil)

	model, err := props.ProductModel()
	assert.NoError(t, err)
	assert.Equal(t, "Pixel 6", model)

	brand, err := props.ProductBrand()
	assert.NoError(t, err)
	assert.Equal(t, "Google", brand)

	sdk, err := props.SdkLevel()
	assert.NoError(t, err)
	assert.Equal(t, 33, sdk)

	version, err := props.BuildVersion()
	assert.NoError(t, err)
	assert.Equal(t, int64(13), version.Major())

	_, err = props.CpuAbi()
	assert.ErrorIs(t, err, wire.ErrNotFound)
}

func TestPropertiesCached(t *testing.T) {
	s := &MockServer{
		Status: wire.StatusSuccess,
		ReadSegments: [][]byte{
			[]byte(getpropDump),
		},
	}
	client := (&Adb{s}).Device(AnyDevice())

	first, err := client.Properties()
	assert.NoError(t, err)
	assert.Equal(t, "Pixel 6", first["ro.product.model"])
	dials := len(s.Trace)

	// Second call answers from the cache without touching the server.
	second, err := client.Properties()
	assert.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, dials, len(s.Trace))
}

func TestInvalidatePropertiesForcesReload(t *testing.T) {
	s := &MockServer{
		Status: wire.StatusSuccess,
		ReadSegments: [][]byte{
			[]byte(getpropDump),
			[]byte("[ro.product.model]: [Pixel 7]\n"),
		},
	}
	client := (&Adb{s}).Device(AnyDevice())

	props, err := client.Properties()
	assert.NoError(t, err)
	assert.Equal(t, "Pixel 6", props["ro.product.model"])

	client.InvalidateProperties()

	props, err = client.Properties()
	assert.NoError(t, err)
	assert.Equal(t, "Pixel 7", props["ro.product.model"])
}

func TestBootCompleted(t *testing.T) {
	s := &MockServer{
		Status:       wire.StatusSuccess,
		ReadSegments: [][]byte{[]byte("1\n")},
	}
	client := (&Adb{s}).Device(AnyDevice())

	booted, err := client.BootCompleted()
	assert.NoError(t, err)
	assert.True(t, booted)
	assert.Equal(t, "shell:getprop sys.boot_completed", s.Requests[1])
}

func TestGetPropertiesEmptyOutputIsError(t *testing.T) {
	s := &MockServer{
		Status:       wire.StatusSuccess,
		ReadSegments: [][]byte{[]byte("")},
	}
	client := (&Adb{s}).Device(AnyDevice())

	_, err := client.GetProperties(nil)
	assert.Error(t, err)
}
