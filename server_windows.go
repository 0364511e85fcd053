//go:build windows

package adb

// Windows has no executable bit; os.Stat already confirmed the file exists.
func isExecutable(path string) error {
	return nil
}
