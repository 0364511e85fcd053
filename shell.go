package adb

import (
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/openatx/goadbutils/wire"
)

// shellExitMarker is echoed after the command so the exit code can be
// recovered from the legacy shell: service, which forwards no status itself.
// The string is unlikely to appear in legitimate command output.
const shellExitMarker = "X4EXIT:"

// ShellResult is the outcome of a command run with exit-code recovery.
type ShellResult struct {
	Command  string
	ExitCode int
	Output   string
}

// RunShellCommand opens a shell service on the device and returns the raw
// stream. From the Android docs:
//
//	Run 'command arg1 arg2 ...' in a shell on the device, and return
//	its output and error streams. Note that arguments must be separated
//	by spaces. If an argument contains a space, it must be quoted with
//	double-quotes. Arguments cannot contain double quotes or things
//	will go very wrong.
//	Note that this is the non-interactive version of "adb shell"
//
// Source: https://android.googlesource.com/platform/system/core/+/master/adb/SERVICES.TXT
// This method quotes the arguments for you, and will return an error if any of
// them contain double quotes.
//
// Shell responses don't include a length header; the stream simply ends when
// the remote side closes it. The caller owns the returned connection and must
// close it, including when abandoning a long-running command early.
//
// With v2 the shell,v2 service is requested instead, which frames stdout,
// stderr and the exit code; RunCommandToEnd knows how to trim that framing.
func (c *Device) RunShellCommand(v2 bool, cmd string, args ...string) (net.Conn, error) {
	cmd, err := prepareCommandLine(cmd, args...)
	if err != nil {
		return nil, wrapClientError(err, c, "RunShellCommand")
	}

	conn, err := c.dialDevice()
	if err != nil {
		return nil, wrapClientError(err, c, "RunShellCommand")
	}

	var req string
	if v2 {
		req = fmt.Sprintf("shell,v2:%s", cmd)
	} else {
		req = fmt.Sprintf("shell:%s", cmd)
	}

	if err = conn.SendMessage([]byte(req)); err != nil {
		conn.Close()
		return nil, wrapClientError(err, c, "RunShellCommand")
	}
	if _, err = conn.ReadStatus(req); err != nil {
		conn.Close()
		return nil, wrapClientError(err, c, "RunShellCommand")
	}

	return conn, nil
}

func (c *Device) RunCommand(cmd string, args ...string) ([]byte, error) {
	return c.RunCommandTimeout(0, cmd, args...)
}

// RunCommandTimeout runs the command and buffers its output until the remote
// side closes the stream. A timeout of zero blocks indefinitely; a negative
// timeout also blocks indefinitely (kept for call sites that compute one).
// On expiry the session is closed and ErrTimeout surfaces; the remote process
// may keep running detached.
func (c *Device) RunCommandTimeout(timeout time.Duration, cmd string, args ...string) ([]byte, error) {
	return c.runCommandToEnd(false, timeout, cmd, args...)
}

// RunCommandToEnd is RunCommand with the shell,v2 service. The v2 framing
// wraps the payload with a 5-byte header and 6-byte exit trailer, which are
// trimmed here.
func (c *Device) RunCommandToEnd(v2 bool, cmd string, args ...string) ([]byte, error) {
	return c.runCommandToEnd(v2, 0, cmd, args...)
}

func (c *Device) runCommandToEnd(v2 bool, timeout time.Duration, cmd string, args ...string) (resp []byte, err error) {
	conn, err := c.RunShellCommand(v2, cmd, args...)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	if timeout > 0 {
		if err = conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
			return nil, wrapClientError(err, c, "RunCommand")
		}
	}

	resp, err = io.ReadAll(conn)
	if err != nil {
		return nil, wrapClientError(wire.ClassifyNetError(err), c, "RunCommand(%s)", cmd)
	}
	if v2 {
		// trim the v2 framing around the payload
		if len(resp) >= (5 + 6) {
			resp = resp[5 : len(resp)-6]
		}
	}
	return resp, nil
}

// Shell runs the command and returns its output as a string with the trailing
// newline stripped, which is what interactive callers almost always want.
func (c *Device) Shell(cmdline string) (string, error) {
	return c.ShellTimeout(0, cmdline)
}

func (c *Device) ShellTimeout(timeout time.Duration, cmdline string) (string, error) {
	resp, err := c.RunCommandTimeout(timeout, cmdline)
	if err != nil {
		return "", err
	}
	return strings.TrimRight(string(resp), "\r\n"), nil
}

// ShellDetail runs the command and recovers its exit code by appending
// "; echo X4EXIT:$?" and scanning the buffered output backwards for the
// marker. Output before the marker is the command's true output. A missing
// marker means the device shell misbehaved and is reported as a protocol
// error, never guessed around.
func (c *Device) ShellDetail(cmdline string) (*ShellResult, error) {
	return c.ShellDetailTimeout(0, cmdline)
}

func (c *Device) ShellDetailTimeout(timeout time.Duration, cmdline string) (*ShellResult, error) {
	wrapped := fmt.Sprintf("%s; echo %s$?", cmdline, shellExitMarker)
	resp, err := c.RunCommandTimeout(timeout, wrapped)
	if err != nil {
		return nil, err
	}

	output := string(resp)
	rindex := strings.LastIndex(output, shellExitMarker)
	if rindex == -1 {
		return nil, wrapClientError(
			fmt.Errorf("%w: shell output missing exit marker: %q", wire.ErrAdb, output),
			c, "ShellDetail(%s)", cmdline)
	}

	codeStr := strings.TrimSpace(output[rindex+len(shellExitMarker):])
	exitCode, err := strconv.Atoi(codeStr)
	if err != nil {
		return nil, wrapClientError(
			fmt.Errorf("%w: cannot parse exit code from %q", wire.ErrParse, codeStr),
			c, "ShellDetail(%s)", cmdline)
	}

	return &ShellResult{
		Command:  cmdline,
		ExitCode: exitCode,
		Output:   output[:rindex],
	}, nil
}
