package adb

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/openatx/goadbutils/wire"
)

func newShellTestDevice(rawOutput string) (*Device, *MockServer) {
	s := &MockServer{
		Status: wire.StatusSuccess,
		mockConn: mockConn{
			Buffer: bytes.NewBufferString(rawOutput),
		},
	}
	return (&Adb{s}).Device(AnyDevice()), s
}

func TestShellStripsTrailingNewline(t *testing.T) {
	client, s := newShellTestDevice("my-hostname\r\n")

	out, err := client.Shell("hostname")
	assert.NoError(t, err)
	assert.Equal(t, "shell:hostname", s.Requests[1])
	assert.Equal(t, "my-hostname", out)
}

func TestRunShellCommandQuotesArgs(t *testing.T) {
	client, s := newShellTestDevice("")

	_, err := client.RunCommand("echo", "hello world")
	assert.NoError(t, err)
	assert.Equal(t, "shell:echo \"hello world\"", s.Requests[1])
}

func TestShellDetailZeroExit(t *testing.T) {
	client, s := newShellTestDevice("hello\nX4EXIT:0\n")

	result, err := client.ShellDetail("echo hello")
	assert.NoError(t, err)
	assert.Equal(t, "shell:echo hello; echo X4EXIT:$?", s.Requests[1])
	assert.Equal(t, 0, result.ExitCode)
	assert.Equal(t, "hello\n", result.Output)
	assert.Equal(t, "echo hello", result.Command)
}

func TestShellDetailNonzeroExit(t *testing.T) {
	client, _ := newShellTestDevice("ls: /nope: No such file or directory\nX4EXIT:1\n")

	result, err := client.ShellDetail("ls /nope")
	assert.NoError(t, err)
	assert.Equal(t, 1, result.ExitCode)
	assert.Equal(t, "ls: /nope: No such file or directory\n", result.Output)
}

func TestShellDetailEmptyOutput(t *testing.T) {
	client, _ := newShellTestDevice("X4EXIT:0\n")

	result, err := client.ShellDetail("true")
	assert.NoError(t, err)
	assert.Equal(t, 0, result.ExitCode)
	assert.Equal(t, "", result.Output)
}

func TestShellDetailMissingMarkerIsProtocolError(t *testing.T) {
	client, _ := newShellTestDevice("output without marker\n")

	result, err := client.ShellDetail("broken")
	assert.Nil(t, result)
	assert.True(t, errors.Is(err, wire.ErrAdb))
	assert.Contains(t, err.Error(), "missing exit marker")
}

func TestShellDetailMangledExitCode(t *testing.T) {
	client, _ := newShellTestDevice("X4EXIT:not-a-number\n")

	result, err := client.ShellDetail("weird")
	assert.Nil(t, result)
	assert.True(t, errors.Is(err, wire.ErrParse))
}

func TestShellDetailUsesLastMarker(t *testing.T) {
	// Command output that itself echoes the marker must not confuse the
	// backwards scan.
	client, _ := newShellTestDevice("X4EXIT:42 is not the real one\nX4EXIT:7\n")

	result, err := client.ShellDetail("tricky")
	assert.NoError(t, err)
	assert.Equal(t, 7, result.ExitCode)
	assert.Equal(t, "X4EXIT:42 is not the real one\n", result.Output)
}

func TestRunCommandToEndTrimsV2Framing(t *testing.T) {
	raw := append([]byte{1, 0, 0, 0, 0}, []byte("payload")...)
	raw = append(raw, []byte{3, 1, 0, 0, 0, 0}...)
	client, s := newShellTestDevice(string(raw))

	out, err := client.RunCommandToEnd(true, "cmd")
	assert.NoError(t, err)
	assert.Equal(t, "shell,v2:cmd", s.Requests[1])
	assert.Equal(t, "payload", string(out))
}
