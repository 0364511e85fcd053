package adb

import (
	"fmt"
	"regexp"
	"strconv"

	"github.com/openatx/goadbutils/wire"
)

// WindowSize is a display resolution in pixels, portrait-oriented: callers
// that want the landscape size swap the fields after checking Rotation.
type WindowSize struct {
	Width  int
	Height int
}

func (s WindowSize) String() string {
	return fmt.Sprintf("%dx%d", s.Width, s.Height)
}

var (
	wmSizeOverrideRegex  = regexp.MustCompile(`Override size:\s*(\d+)x(\d+)`)
	wmSizePhysicalRegex  = regexp.MustCompile(`Physical size:\s*(\d+)x(\d+)`)
	displayViewportRegex = regexp.MustCompile(`deviceWidth=(\d+), deviceHeight=(\d+)`)
	rotationRegex        = regexp.MustCompile(`orientation=(\d+)`)
	surfaceRotationRegex = regexp.MustCompile(`SurfaceOrientation:\s*(\d+)`)
)

// WindowSize reads the display resolution. An override (set with `wm size`)
// wins over the physical size; when `wm size` answers with neither, the
// display service's viewport is scraped instead.
func (d *Device) WindowSize() (*WindowSize, error) {
	resp, err := d.RunCommandTimeout(d.CmdTimeoutShort, "wm", "size")
	if err != nil {
		return nil, wrapClientError(err, d, "WindowSize")
	}

	for _, re := range []*regexp.Regexp{wmSizeOverrideRegex, wmSizePhysicalRegex} {
		if m := re.FindSubmatch(resp); m != nil {
			return parseWindowSize(string(m[1]), string(m[2]))
		}
	}

	// Some emulators and TV builds answer `wm size` with nothing useful.
	resp, err = d.RunCommandTimeout(d.CmdTimeoutLong, "dumpsys", "display")
	if err != nil {
		return nil, wrapClientError(err, d, "WindowSize")
	}
	if m := displayViewportRegex.FindSubmatch(resp); m != nil {
		return parseWindowSize(string(m[1]), string(m[2]))
	}

	err = fmt.Errorf("%w: could not determine window size", wire.ErrParse)
	return nil, wrapClientError(err, d, "WindowSize")
}

func parseWindowSize(w, h string) (*WindowSize, error) {
	width, err := strconv.Atoi(w)
	if err != nil {
		return nil, fmt.Errorf("%w: bad width %q", wire.ErrParse, w)
	}
	height, err := strconv.Atoi(h)
	if err != nil {
		return nil, fmt.Errorf("%w: bad height %q", wire.ErrParse, h)
	}
	return &WindowSize{Width: width, Height: height}, nil
}

// Rotation reads the current display rotation as a quarter-turn count
// (0, 1, 2, 3 for 0, 90, 180, 270 degrees).
//
// Note that a size-then-rotation pair of calls is not atomic: the user can
// rotate the device between them. Callers that need a consistent pair should
// re-read until both agree.
func (d *Device) Rotation() (int, error) {
	resp, err := d.RunCommandTimeout(d.CmdTimeoutLong, "dumpsys", "display")
	if err == nil {
		if m := rotationRegex.FindSubmatch(resp); m != nil {
			return strconv.Atoi(string(m[1]))
		}
	}

	resp, err = d.RunCommandTimeout(d.CmdTimeoutLong, "dumpsys", "input")
	if err != nil {
		return 0, wrapClientError(err, d, "Rotation")
	}
	if m := surfaceRotationRegex.FindSubmatch(resp); m != nil {
		return strconv.Atoi(string(m[1]))
	}

	err = fmt.Errorf("%w: could not determine rotation", wire.ErrParse)
	return 0, wrapClientError(err, d, "Rotation")
}

var ipAddrRegexes = []*regexp.Regexp{
	regexp.MustCompile(`inet\s*addr:(\d+\.\d+\.\d+\.\d+)`),      // ifconfig
	regexp.MustCompile(`inet (\d+\.\d+\.\d+\.\d+)/\d+`),         // ip addr show
	regexp.MustCompile(`inet\s+(\d+\.\d+\.\d+\.\d+)\s+netmask`), // toybox ifconfig
}

// WlanIP finds the device's LAN address. Interface tooling varies wildly
// across releases, so several commands are scraped in order.
func (d *Device) WlanIP() (string, error) {
	queries := [][]string{
		{"ifconfig", "wlan0"},
		{"ip", "addr", "show", "dev", "wlan0"},
		{"ifconfig", "eth0"},
	}

	for _, query := range queries {
		resp, err := d.RunCommandTimeout(d.CmdTimeoutShort, query[0], query[1:]...)
		if err != nil {
			continue
		}
		for _, re := range ipAddrRegexes {
			if m := re.FindSubmatch(resp); m != nil {
				return string(m[1]), nil
			}
		}
	}

	err := fmt.Errorf("%w: could not determine wlan ip", wire.ErrNotFound)
	return "", wrapClientError(err, d, "WlanIP")
}
