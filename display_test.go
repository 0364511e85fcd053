package adb

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/openatx/goadbutils/wire"
)

func TestWindowSizePhysical(t *testing.T) {
	s := &MockServer{
		Status:       wire.StatusSuccess,
		ReadSegments: [][]byte{[]byte("Physical size: 1080x2400\n")},
	}
	client := (&Adb{s}).Device(AnyDevice())

	size, err := client.WindowSize()
	assert.NoError(t, err)
	assert.Equal(t, &WindowSize{Width: 1080, Height: 2400}, size)
	assert.Equal(t, "shell:wm size", s.Requests[1])
}

func TestWindowSizeOverrideWins(t *testing.T) {
	s := &MockServer{
		Status:       wire.StatusSuccess,
		ReadSegments: [][]byte{[]byte("Physical size: 1080x2400\nOverride size: 720x1600\n")},
	}
	client := (&Adb{s}).Device(AnyDevice())

	size, err := client.WindowSize()
	assert.NoError(t, err)
	assert.Equal(t, &WindowSize{Width: 720, Height: 1600}, size)
}

func TestWindowSizeFallsBackToDumpsys(t *testing.T) {
	s := &MockServer{
		Status: wire.StatusSuccess,
		ReadSegments: [][]byte{
			[]byte(""), // wm size answered nothing useful
			[]byte("mViewports=[DisplayViewport{... deviceWidth=1440, deviceHeight=3120}]\n"),
		},
	}
	client := (&Adb{s}).Device(AnyDevice())

	size, err := client.WindowSize()
	assert.NoError(t, err)
	assert.Equal(t, &WindowSize{Width: 1440, Height: 3120}, size)
}

func TestWindowSizeUndeterminable(t *testing.T) {
	s := &MockServer{
		Status: wire.StatusSuccess,
		ReadSegments: [][]byte{
			[]byte(""),
			[]byte("no viewport here"),
		},
	}
	client := (&Adb{s}).Device(AnyDevice())

	_, err := client.WindowSize()
	assert.ErrorIs(t, err, wire.ErrParse)
	assert.Contains(t, err.Error(), "could not determine window size")
}

func TestRotation(t *testing.T) {
	s := &MockServer{
		Status:       wire.StatusSuccess,
		ReadSegments: [][]byte{[]byte("  mCurrentOrientation=1\n ... orientation=1\n")},
	}
	client := (&Adb{s}).Device(AnyDevice())

	rotation, err := client.Rotation()
	assert.NoError(t, err)
	assert.Equal(t, 1, rotation)
}

func TestRotationFallsBackToInput(t *testing.T) {
	s := &MockServer{
		Status: wire.StatusSuccess,
		ReadSegments: [][]byte{
			[]byte("nothing about rotation"),
			[]byte("SurfaceOrientation: 3\n"),
		},
	}
	client := (&Adb{s}).Device(AnyDevice())

	rotation, err := client.Rotation()
	assert.NoError(t, err)
	assert.Equal(t, 3, rotation)
}

func TestWlanIPFromIfconfig(t *testing.T) {
	s := &MockServer{
		Status: wire.StatusSuccess,
		ReadSegments: [][]byte{
			[]byte("wlan0     Link encap:Ethernet\n          inet addr:192.168.1.42  Bcast:192.168.1.255\n"),
		},
	}
	client := (&Adb{s}).Device(AnyDevice())

	ip, err := client.WlanIP()
	assert.NoError(t, err)
	assert.Equal(t, "192.168.1.42", ip)
}

func TestWlanIPFromIpAddr(t *testing.T) {
	s := &MockServer{
		Status: wire.StatusSuccess,
		ReadSegments: [][]byte{
			[]byte("wlan0: flags=4163<UP>\n"), // ifconfig output without an address
			[]byte("    inet 10.0.0.7/24 brd 10.0.0.255 scope global wlan0\n"),
		},
	}
	client := (&Adb{s}).Device(AnyDevice())

	ip, err := client.WlanIP()
	assert.NoError(t, err)
	assert.Equal(t, "10.0.0.7", ip)
}

func TestWlanIPUndeterminable(t *testing.T) {
	s := &MockServer{
		Status: wire.StatusSuccess,
		ReadSegments: [][]byte{
			[]byte(""), []byte(""), []byte(""),
		},
	}
	client := (&Adb{s}).Device(AnyDevice())

	_, err := client.WlanIP()
	assert.ErrorIs(t, err, wire.ErrNotFound)
	assert.Contains(t, err.Error(), "could not determine wlan ip")
}
