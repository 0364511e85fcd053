package adb

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/shogo82148/androidbinary/apk"
	log "github.com/sirupsen/logrus"

	"github.com/openatx/goadbutils/wire"
)

// InstallError is a pm install failure. Reason holds the INSTALL_FAILED_*
// code pm reported, or pm's raw output when no code could be extracted.
type InstallError struct {
	Reason string
}

func (e *InstallError) Error() string {
	return "install failed: " + e.Reason
}

// Conflict reasons resolved by uninstalling the old package and installing
// once more. Anything else is surfaced to the caller.
var uninstallableConflicts = map[string]bool{
	"INSTALL_FAILED_PERMISSION_MODEL_DOWNGRADE": true,
	"INSTALL_FAILED_UPDATE_INCOMPATIBLE":        true,
	"INSTALL_FAILED_VERSION_DOWNGRADE":          true,
}

// Transient reason resolved by installing once more without uninstalling.
// Shows up when a confirmation dialog on the device is dismissed.
const conflictCancelledByUser = "INSTALL_FAILED_CANCELLED_BY_USER"

// InstallStage identifies a step of the install workflow, reported through
// InstallOptions.OnStage.
type InstallStage string

const (
	StageFetching   InstallStage = "fetching"
	StagePushing    InstallStage = "pushing"
	StageRenaming   InstallStage = "renaming"
	StageVerifying  InstallStage = "verifying"
	StageInstalling InstallStage = "installing"
	StageResolving  InstallStage = "resolving conflict"
	StageLaunching  InstallStage = "launching"
	StageCleanup    InstallStage = "cleanup"
)

// Transport retry at the install boundary: the fixed delay plus a jitter
// drawn from [installRetryJitterMin, installRetryJitterMax).
const (
	installRetryAttempts  = 3
	installRetryDelay     = 5 * time.Second
	installRetryJitterMin = 3 * time.Second
	installRetryJitterMax = 5 * time.Second
)

// InstallOptions tune InstallAPK. The zero value installs without launching.
type InstallOptions struct {
	// Uninstall removes any existing install of the package before
	// installing, discarding its data.
	Uninstall bool

	// Launch starts the apk's main activity after a successful install,
	// falling back to the LAUNCHER intent when no activity is known.
	Launch bool

	// Clean removes the staged apk after a successful install. On failure
	// the staged file is always left on the device for manual inspection.
	Clean bool

	// Progress observes byte counts while fetching and pushing.
	Progress func(sent, total int64)

	// OnStage observes workflow stage transitions.
	OnStage func(stage InstallStage, detail string)
}

func (opts *InstallOptions) stage(s InstallStage, detail string) {
	if opts.OnStage != nil {
		opts.OnStage(s, detail)
	}
	log.WithFields(log.Fields{"stage": s, "detail": detail}).Debug("install")
}

// InstallReport summarizes a finished install.
type InstallReport struct {
	PackageName string
	VersionName string
	// Main activity from the manifest, in absolute component form.
	// Empty when the manifest could not be parsed.
	MainActivity string
	// Remote path of the staged apk after the on-device rename. The file
	// stays on the device unless the install succeeded and Clean was set.
	StagedPath  string
	BytesPushed int64
	// Attempts counts transport-level tries, not conflict resolutions.
	Attempts int
}

// InstallAPK installs an apk from a local path or an http(s) URL.
//
// The workflow stages the apk under /data/local/tmp, renames it to
// <package>-<version>.apk once the manifest has been read, verifies the
// staged size, runs pm install, and resolves the conflict classes pm is
// known to report for in-place upgrades. A transport that dies mid-push is
// retried a couple of times with a delay, since adbd restarting (common
// right after boot or under memory pressure) presents exactly that way.
// On failure the staged file is left on the device so the reason can be
// inspected and the install finished by hand.
func (c *Device) InstallAPK(pathOrURL string, opts InstallOptions) (*InstallReport, error) {
	localPath := pathOrURL
	if strings.HasPrefix(pathOrURL, "http://") || strings.HasPrefix(pathOrURL, "https://") {
		opts.stage(StageFetching, pathOrURL)
		fetched, err := fetchToTempFile(pathOrURL, opts.Progress)
		if err != nil {
			return nil, wrapClientError(err, c, "InstallAPK(%s)", pathOrURL)
		}
		defer os.Remove(fetched)
		localPath = fetched
	}

	report := &InstallReport{}
	if pkg, err := apk.OpenFile(localPath); err == nil {
		report.PackageName = pkg.PackageName()
		if v, err := pkg.Manifest().VersionName.String(); err == nil {
			report.VersionName = v
		}
		if act, err := pkg.MainActivity(); err == nil {
			report.MainActivity = normalizeMainActivity(act)
		}
		pkg.Close()
	} else {
		// Not fatal: conflict resolution needs the package name, a plain
		// install does not.
		log.WithError(err).Debugf("could not parse apk manifest of %s", localPath)
	}

	err := retry.Do(
		func() error { return c.installOnce(localPath, report, &opts) },
		retry.Attempts(installRetryAttempts),
		retry.Delay(installRetryDelay+installRetryJitterMin),
		retry.MaxJitter(installRetryJitterMax-installRetryJitterMin),
		retry.DelayType(retry.CombineDelay(retry.FixedDelay, retry.RandomDelay)),
		retry.RetryIf(func(err error) bool { return errors.Is(err, wire.ErrBrokenPipe) }),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			log.WithError(err).Warnf("transport died during install, attempt %d", n+1)
		}),
	)
	if err != nil {
		return report, err
	}

	if opts.Launch && report.PackageName != "" {
		if err := c.launchInstalled(report, &opts); err != nil {
			return report, err
		}
	}
	return report, nil
}

// normalizeMainActivity turns a relative manifest activity name into the
// absolute component form am start expects.
func normalizeMainActivity(activity string) string {
	if activity == "" || strings.Contains(activity, ".") {
		return activity
	}
	return "." + activity
}

// stagedApkPath is the on-device name the staged apk is renamed to once the
// manifest has been read.
func stagedApkPath(packageName, versionName string) string {
	if versionName == "" {
		return fmt.Sprintf("/data/local/tmp/%s.apk", packageName)
	}
	return fmt.Sprintf("/data/local/tmp/%s-%s.apk", packageName, versionName)
}

func (c *Device) launchInstalled(report *InstallReport, opts *InstallOptions) error {
	opts.stage(StageLaunching, report.PackageName)
	return c.AppStart(report.PackageName, report.MainActivity)
}

// installOnce performs one push-rename-verify-install cycle. Only transport
// failures bubble out as retryable; everything else is final. The staged
// file survives every failure path.
func (c *Device) installOnce(localPath string, report *InstallReport, opts *InstallOptions) error {
	report.Attempts++
	staged := fmt.Sprintf("/data/local/tmp/tmp-%d.apk", time.Now().UnixMilli())
	report.StagedPath = staged

	opts.stage(StagePushing, staged)
	sent, err := c.PushWithOptions(PushPath(localPath), staged, PushOptions{
		Progress: opts.Progress,
	})
	if err != nil {
		return err
	}
	report.BytesPushed = sent

	if report.PackageName != "" {
		renamed := stagedApkPath(report.PackageName, report.VersionName)
		opts.stage(StageRenaming, renamed)
		if err := c.runCheckedShell("InstallAPK", "mv", staged, renamed); err != nil {
			return err
		}
		staged = renamed
		report.StagedPath = staged
	}

	opts.stage(StageVerifying, staged)
	entry, err := c.Stat(staged)
	if err != nil {
		return err
	}
	if int64(entry.Size) != sent {
		err = fmt.Errorf("%w: pushed %d bytes but staged size is %d",
			wire.ErrTransferIntegrity, sent, entry.Size)
		return wrapClientError(err, c, "InstallAPK(%s)", staged)
	}

	if opts.Uninstall && report.PackageName != "" {
		opts.stage(StageResolving, "uninstalling "+report.PackageName)
		if err := c.Uninstall(report.PackageName, false); err != nil {
			log.WithError(err).Debugf("pre-install uninstall of %s failed", report.PackageName)
		}
	}

	opts.stage(StageInstalling, staged)
	if err := c.installStagedResolvingConflicts(staged, report.PackageName, opts); err != nil {
		log.Debugf("staged apk kept at %s", staged)
		return err
	}

	if opts.Clean {
		opts.stage(StageCleanup, staged)
		if err := c.RemoveFile(staged); err != nil {
			log.WithError(err).Debugf("could not remove staged apk %s", staged)
		}
	}
	return nil
}

// installStagedResolvingConflicts runs pm install and applies the conflict
// policy: downgrade and signature conflicts get one uninstall-then-install
// retry, a user-cancelled confirmation gets one plain retry, everything else
// is returned with manual-install guidance.
func (c *Device) installStagedResolvingConflicts(staged, packageName string, opts *InstallOptions) error {
	err := c.InstallRemote(staged)
	if err == nil {
		return nil
	}

	var installErr *InstallError
	if !errors.As(err, &installErr) {
		return err
	}

	switch {
	case uninstallableConflicts[installErr.Reason]:
		if packageName == "" {
			return fmt.Errorf("%w (package name unknown, cannot uninstall to resolve)", installErr)
		}
		opts.stage(StageResolving, installErr.Reason)
		if err := c.Uninstall(packageName, false); err != nil {
			return fmt.Errorf("%w (uninstall to resolve failed: %v)", installErr, err)
		}
		return c.InstallRemote(staged)

	case installErr.Reason == conflictCancelledByUser:
		opts.stage(StageResolving, installErr.Reason)
		return c.InstallRemote(staged)

	default:
		return fmt.Errorf("%w; try installing manually: adb shell pm install -r -t %s", installErr, staged)
	}
}
