package adb

import (
	"bytes"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/openatx/goadbutils/wire"
)

// ListPackages adb shell pm list packages
//
//	-3: filter to only show third party packages
func (d *Device) ListPackages(thirdParty bool) (names []string, err error) {
	args := []string{"list", "packages"}
	if thirdParty {
		args = append(args, "-3")
	}

	list, err := d.RunCommand("pm", args...)
	if err != nil {
		return nil, fmt.Errorf("pm "+strings.Join(args, " ")+": %w", err)
	}

	lines := bytes.Split(list, []byte("\n"))
	for _, line := range lines {
		pos := bytes.Index(line, []byte("package:"))
		if pos >= 0 {
			l := bytes.TrimSpace(line[pos+8:]) // cut `package:`
			names = append(names, string(l))
		}
	}
	return
}

// InstallRemote installs an apk already present on the device filesystem.
// Replaces an existing install (-r) and allows test packages (-t). pm prints
// "Success" on success and "Failure [REASON]" otherwise; the reason string is
// surfaced as an *InstallError so callers can branch on the failure class.
func (d *Device) InstallRemote(remotePath string) error {
	resp, err := d.RunCommandTimeout(d.CmdTimeoutLong, "pm", "install", "-r", "-t", remotePath)
	if err != nil {
		return wrapClientError(err, d, "InstallRemote(%s)", remotePath)
	}

	if bytes.Contains(resp, []byte("Success")) {
		return nil
	}
	return &InstallError{Reason: extractInstallFailure(string(resp))}
}

var installFailureRegex = regexp.MustCompile(`Failure \[([^\]]+)\]`)

// extractInstallFailure pulls "INSTALL_FAILED_..." out of pm output. If pm
// printed something unrecognizable the raw output becomes the reason.
func extractInstallFailure(output string) string {
	if m := installFailureRegex.FindStringSubmatch(output); m != nil {
		return m[1]
	}
	return strings.TrimSpace(output)
}

// Uninstall removes a package. keepData preserves its data and caches (-k).
func (d *Device) Uninstall(packageName string, keepData bool) error {
	args := []string{"uninstall"}
	if keepData {
		args = append(args, "-k")
	}
	args = append(args, packageName)

	resp, err := d.RunCommandTimeout(d.CmdTimeoutLong, "pm", args...)
	if err != nil {
		return wrapClientError(err, d, "Uninstall(%s)", packageName)
	}
	if !bytes.Contains(resp, []byte("Success")) {
		err = fmt.Errorf("%w: pm uninstall %s: %s", wire.ErrAdb, packageName, bytes.TrimSpace(resp))
		return wrapClientError(err, d, "Uninstall(%s)", packageName)
	}
	return nil
}

// ClearData clears a package's user data, like Settings > Apps > Clear Data.
func (d *Device) ClearData(packageName string) error {
	resp, err := d.RunCommandTimeout(d.CmdTimeoutLong, "pm", "clear", packageName)
	if err != nil {
		return wrapClientError(err, d, "ClearData(%s)", packageName)
	}
	if !bytes.Contains(resp, []byte("Success")) {
		err = fmt.Errorf("%w: pm clear %s: %s", wire.ErrAdb, packageName, bytes.TrimSpace(resp))
		return wrapClientError(err, d, "ClearData(%s)", packageName)
	}
	return nil
}

// PackageInfo is the subset of `dumpsys package` this client cares about.
type PackageInfo struct {
	Name        string
	VersionName string
	VersionCode int
	// Signature digest as reported by dumpsys, empty on newer releases that
	// no longer print it.
	Signature        string
	Flags            []string
	FirstInstallTime string
	LastUpdateTime   string
}

var (
	versionNameRegex  = regexp.MustCompile(`versionName=(\S+)`)
	versionCodeRegex  = regexp.MustCompile(`versionCode=(\d+)`)
	signatureRegex    = regexp.MustCompile(`PackageSignatures\{[^\[]*\[(.*)\]\}`)
	pkgFlagsRegex     = regexp.MustCompile(`pkgFlags=\[\s*([^\]]*)\]`)
	firstInstallRegex = regexp.MustCompile(`firstInstallTime=([^\r\n]+)`)
	lastUpdateRegex   = regexp.MustCompile(`lastUpdateTime=([^\r\n]+)`)
)

// PackageInfo queries dumpsys for an installed package. Returns
// wire.ErrNotFound when the package isn't installed.
func (d *Device) PackageInfo(packageName string) (*PackageInfo, error) {
	resp, err := d.RunCommandTimeout(d.CmdTimeoutLong, "dumpsys", "package", packageName)
	if err != nil {
		return nil, wrapClientError(err, d, "PackageInfo(%s)", packageName)
	}

	output := string(resp)
	if !strings.Contains(output, "Package ["+packageName+"]") {
		err = fmt.Errorf("%w: package %s not installed", wire.ErrNotFound, packageName)
		return nil, wrapClientError(err, d, "PackageInfo(%s)", packageName)
	}

	info := &PackageInfo{Name: packageName}
	if m := versionNameRegex.FindStringSubmatch(output); m != nil {
		info.VersionName = m[1]
	}
	if m := versionCodeRegex.FindStringSubmatch(output); m != nil {
		info.VersionCode, _ = strconv.Atoi(m[1])
	}
	if m := signatureRegex.FindStringSubmatch(output); m != nil {
		info.Signature = strings.TrimSpace(m[1])
	}
	if m := pkgFlagsRegex.FindStringSubmatch(output); m != nil {
		info.Flags = strings.Fields(m[1])
	}
	if m := firstInstallRegex.FindStringSubmatch(output); m != nil {
		info.FirstInstallTime = strings.TrimSpace(m[1])
	}
	if m := lastUpdateRegex.FindStringSubmatch(output); m != nil {
		info.LastUpdateTime = strings.TrimSpace(m[1])
	}
	return info, nil
}
