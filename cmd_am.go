package adb

import (
	"bytes"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/avast/retry-go/v4"

	"github.com/openatx/goadbutils/wire"
)

var activityRegex = regexp.MustCompile(`\b(\w+(\.\w+)*)\/([\.\w]+)`)

// RunningApp is the package/activity pair in the foreground.
type RunningApp struct {
	Package  string
	Activity string
}

func (a RunningApp) String() string {
	return a.Package + "/" + a.Activity
}

// unpackActivities extracts unique <package>/<component> pairs from dumpsys
// output, in order of appearance.
func unpackActivities(resp []byte) (l []RunningApp) {
	matches := activityRegex.FindAllSubmatch(resp, -1)
	seen := make(map[string]struct{})
	for _, match := range matches {
		fullname := string(match[0])
		if _, ok := seen[fullname]; !ok {
			seen[fullname] = struct{}{}
			l = append(l, RunningApp{Package: string(match[1]), Activity: string(match[3])})
		}
	}
	return
}

// AppStart launches an app. With an activity it uses `am start -n`; with just
// a package it falls back to firing the LAUNCHER intent through monkey, which
// works without knowing the main activity's name.
func (d *Device) AppStart(packageName string, activity ...string) error {
	if len(activity) > 0 && activity[0] != "" {
		component := packageName + "/" + activity[0]
		resp, err := d.RunCommandTimeout(d.CmdTimeoutLong, "am", "start", "-n", component)
		if err != nil {
			return wrapClientError(err, d, "AppStart(%s)", component)
		}
		if bytes.Contains(resp, []byte("Error")) {
			err = fmt.Errorf("%w: am start -n %s: %s", wire.ErrAdb, component, bytes.TrimSpace(resp))
			return wrapClientError(err, d, "AppStart(%s)", component)
		}
		return nil
	}

	resp, err := d.RunCommandTimeout(d.CmdTimeoutLong,
		"monkey", "-p", packageName, "-c", "android.intent.category.LAUNCHER", "1")
	if err != nil {
		return wrapClientError(err, d, "AppStart(%s)", packageName)
	}
	if bytes.Contains(resp, []byte("Events injected: ")) {
		return nil
	}
	if bytes.Contains(resp, []byte("No activities found to run, monkey aborted")) {
		err = fmt.Errorf("%w: no launchable activity in %s", wire.ErrNotFound, packageName)
		return wrapClientError(err, d, "AppStart(%s)", packageName)
	}
	err = fmt.Errorf("%w: monkey: %s", wire.ErrAdb, bytes.TrimSpace(resp))
	return wrapClientError(err, d, "AppStart(%s)", packageName)
}

// AppStop force-stops an app.
func (d *Device) AppStop(packageName string) error {
	resp, err := d.RunCommandTimeout(d.CmdTimeoutLong, "am", "force-stop", packageName)
	if err != nil {
		return wrapClientError(err, d, "AppStop(%s)", packageName)
	}
	if len(bytes.TrimSpace(resp)) != 0 {
		err = fmt.Errorf("%w: am force-stop %s: %s", wire.ErrAdb, packageName, bytes.TrimSpace(resp))
		return wrapClientError(err, d, "AppStop(%s)", packageName)
	}
	return nil
}

// currentAppQueries is the fallback chain for finding the foreground app.
// Which dumpsys knows the answer varies by Android release, so each query is
// tried in order until one yields a focused activity.
//
//	Android <= 7: dumpsys window windows, mCurrentFocus/mFocusedApp lines
//	Android  8+:  dumpsys activity activities, ResumedActivity lines
//	last resort:  dumpsys activity top
var currentAppQueries = [][]string{
	{"dumpsys", "window", "windows"},
	{"dumpsys", "activity", "activities"},
	{"dumpsys", "activity", "top"},
}

var (
	focusLineRegex   = regexp.MustCompile(`(?m)(?:mCurrentFocus|mFocusedApp|mFocusedWindow).*?\b(\w+(?:\.\w+)+)/([\.\w]+)`)
	resumedLineRegex = regexp.MustCompile(`(?m)(?:topResumedActivity|ResumedActivity).*?\b(\w+(?:\.\w+)+)/([\.\w]+)`)
)

// Activity focus flickers during app transitions, so an empty answer is
// asked again a couple of times before giving up.
const (
	currentAppAttempts = 3
	currentAppDelay    = 500 * time.Millisecond
)

// CurrentApp finds the app in the foreground. The whole fallback chain runs
// up to three times with a short delay; devices that answer but print no
// focused activity (e.g. on the lock screen) yield wire.ErrNotFound.
func (d *Device) CurrentApp() (*RunningApp, error) {
	var app *RunningApp
	err := retry.Do(
		func() error {
			a, err := d.currentAppOnce()
			if err != nil {
				return err
			}
			app = a
			return nil
		},
		retry.Attempts(currentAppAttempts),
		retry.Delay(currentAppDelay),
		retry.DelayType(retry.FixedDelay),
		retry.LastErrorOnly(true),
	)
	if err != nil {
		return nil, err
	}
	return app, nil
}

func (d *Device) currentAppOnce() (*RunningApp, error) {
	var lastErr error
	for _, query := range currentAppQueries {
		resp, err := d.RunCommandTimeout(d.CmdTimeoutLong, query[0], query[1:]...)
		if err != nil {
			lastErr = err
			continue
		}

		for _, re := range []*regexp.Regexp{focusLineRegex, resumedLineRegex} {
			if m := re.FindSubmatch(resp); m != nil {
				return &RunningApp{Package: string(m[1]), Activity: string(m[2])}, nil
			}
		}

		// Last resort: any component mentioned at all.
		if query[2] == "top" {
			if apps := unpackActivities(resp); len(apps) > 0 {
				app := apps[len(apps)-1]
				return &app, nil
			}
		}
	}

	if lastErr != nil {
		return nil, wrapClientError(lastErr, d, "CurrentApp")
	}
	return nil, wrapClientError(fmt.Errorf("%w: no focused activity reported", wire.ErrNotFound), d, "CurrentApp")
}

// KillProcessesByName kills background processes of an app.
func (d *Device) KillProcessesByName(packageName string) error {
	resp, err := d.RunCommandTimeout(d.CmdTimeoutLong, "am", "kill", packageName)
	if err != nil {
		return wrapClientError(err, d, "KillProcessesByName(%s)", packageName)
	}
	if out := strings.TrimSpace(string(resp)); out != "" {
		err = fmt.Errorf("%w: am kill %s: %s", wire.ErrAdb, packageName, out)
		return wrapClientError(err, d, "KillProcessesByName(%s)", packageName)
	}
	return nil
}
