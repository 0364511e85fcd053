package adb

import (
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/openatx/goadbutils/wire"
)

// ScreenRecorder drives the device's screenrecord tool over a held-open
// shell session. Recording stops when the session receives an interrupt, so
// the session stays alive between Start and Stop.
//
// Safe for concurrent use; at most one recording runs per recorder.
type ScreenRecorder struct {
	device *Device

	mu         sync.Mutex
	conn       net.Conn
	remotePath string
}

func NewScreenRecorder(device *Device) *ScreenRecorder {
	return &ScreenRecorder{device: device}
}

// Start begins recording into remotePath on the device. Starting while a
// recording is already running is a no-op with a warning, matching the
// device-side tool which refuses concurrent recordings anyway.
func (r *ScreenRecorder) Start(remotePath string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.conn != nil {
		log.Warnf("screenrecord already running into %s, ignoring start", r.remotePath)
		return nil
	}

	conn, err := r.device.RunShellCommand(false, "screenrecord", remotePath)
	if err != nil {
		return wrapClientError(err, r.device, "ScreenRecord.Start(%s)", remotePath)
	}

	r.conn = conn
	r.remotePath = remotePath
	return nil
}

// Recording reports whether a recording is in progress.
func (r *ScreenRecorder) Recording() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.conn != nil
}

// Stop ends the recording. screenrecord finalizes the mp4 on SIGINT, so an
// interrupt byte is written to the session's pty and the session drained
// until the tool exits. Stopping when nothing is running is a no-op.
func (r *ScreenRecorder) Stop() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.conn == nil {
		return nil
	}
	conn := r.conn
	r.conn = nil
	defer conn.Close()

	if _, err := conn.Write([]byte{0x03}); err != nil {
		return wrapClientError(wire.ClassifyNetError(err), r.device, "ScreenRecord.Stop")
	}

	// Drain until the tool exits and adbd closes the stream. The deadline
	// guards against a hung tool holding us forever.
	conn.SetReadDeadline(time.Now().Add(10 * time.Second))
	if _, err := io.Copy(io.Discard, conn); err != nil {
		err = wire.ClassifyNetError(err)
		return wrapClientError(fmt.Errorf("draining screenrecord session: %w", err), r.device, "ScreenRecord.Stop")
	}
	return nil
}

// StopAndPull stops the recording, downloads the mp4 to localPath and
// removes the device-side file.
func (r *ScreenRecorder) StopAndPull(localPath string) error {
	r.mu.Lock()
	remotePath := r.remotePath
	r.mu.Unlock()
	if remotePath == "" {
		return wrapClientError(fmt.Errorf("%w: nothing was recorded", wire.ErrAssertion), r.device, "ScreenRecord.StopAndPull")
	}

	if err := r.Stop(); err != nil {
		return err
	}

	if err := r.device.PullFile(remotePath, localPath, nil); err != nil {
		return err
	}
	return r.device.RemoveFile(remotePath)
}
