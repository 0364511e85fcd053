package wire

import (
	"errors"
	"fmt"
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAdbServerError_NoRequest(t *testing.T) {
	err := adbServerError("", "fail")
	assert.True(t, errors.Is(err, ErrAdb))
	assert.EqualError(t, err, "AdbError: request , server error: fail")
}

func TestAdbServerError_WithRequest(t *testing.T) {
	err := adbServerError("polite", "fail")
	assert.True(t, errors.Is(err, ErrAdb))
	assert.EqualError(t, err, "AdbError: request polite, server error: fail")
}

func TestAdbServerError_DeviceNotFound(t *testing.T) {
	err := adbServerError("", "device not found")
	assert.True(t, errors.Is(err, ErrDeviceNotFound))
	assert.EqualError(t, err, "DeviceNotFound: request , server error: device not found")
}

func TestAdbServerError_DeviceSerialNotFound(t *testing.T) {
	err := adbServerError("", "device 'LGV4801c74eccd' not found")
	assert.True(t, errors.Is(err, ErrDeviceNotFound))
	assert.EqualError(t, err, "DeviceNotFound: request , server error: device 'LGV4801c74eccd' not found")
}

func TestClassifyNetError(t *testing.T) {
	assert.NoError(t, ClassifyNetError(nil))

	err := ClassifyNetError(fmt.Errorf("write: %w", syscall.EPIPE))
	assert.True(t, errors.Is(err, ErrBrokenPipe))

	err = ClassifyNetError(fmt.Errorf("read: %w", syscall.ECONNRESET))
	assert.True(t, errors.Is(err, ErrBrokenPipe))

	plain := errors.New("some other failure")
	assert.Equal(t, plain, ClassifyNetError(plain))
}

func TestMultiCloseable(t *testing.T) {
	c := &countingCloser{}
	mc := MultiCloseable(c)
	assert.NoError(t, mc.Close())
	assert.NoError(t, mc.Close())
	assert.Equal(t, 1, c.closed)
}

type countingCloser struct {
	closed int
}

func (c *countingCloser) Read(p []byte) (int, error)  { return 0, nil }
func (c *countingCloser) Write(p []byte) (int, error) { return len(p), nil }
func (c *countingCloser) Close() error {
	c.closed++
	return nil
}
