package adb

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/openatx/goadbutils/wire"
)

// DeviceStateChangedEvent represents a device state transition.
// Contains the device's old and new states, but also provides methods to
// query the type of state transition.
type DeviceStateChangedEvent struct {
	Serial   string
	OldState DeviceState
	NewState DeviceState
}

// CameOnline returns true if this event represents a device coming online.
func (e DeviceStateChangedEvent) CameOnline() bool {
	return e.OldState != StateOnline && e.NewState == StateOnline
}

// WentOffline returns true if this event represents a device going offline.
func (e DeviceStateChangedEvent) WentOffline() bool {
	return e.OldState == StateOnline && e.NewState != StateOnline
}

// DeviceWatcher publishes device status change events.
// If the server dies while listening for events, it restarts the server.
type DeviceWatcher struct {
	server server

	// If an error occurs, it is stored here and eventChan is closed.
	err atomic.Value

	eventChan chan DeviceStateChangedEvent

	startOnce sync.Once

	// Function to start the server if it's not running or dies.
	startServer func() error
}

func newDeviceWatcher(server server) *DeviceWatcher {
	return &DeviceWatcher{
		server:      server,
		eventChan:   make(chan DeviceStateChangedEvent),
		startServer: server.Start,
	}
}

// C returns a channel than can be received on to get events.
// If an unrecoverable error occurs, or Shutdown is called, the channel will be closed.
func (w *DeviceWatcher) C() <-chan DeviceStateChangedEvent {
	w.startOnce.Do(func() {
		go publishDevices(w)
	})
	return w.eventChan
}

// Err returns the error that caused the channel returned by C to be closed,
// if C is closed. If C is not closed, its return value is undefined.
func (w *DeviceWatcher) Err() error {
	if err, ok := w.err.Load().(error); ok {
		return err
	}
	return nil
}

// Shutdown stops the watcher from listening for events and closes the channel
// returned from C.
func (w *DeviceWatcher) Shutdown() {
	// TODO(zach): Make this method thread-safe.
	close(w.eventChan)
}

func (w *DeviceWatcher) reportErr(err error) {
	w.err.Store(err)
}

/*
publishDevices reads device lists from the server, calculates diffs, and
publishes them until the eventChan is closed. Returns when the connection dies
or the channel is closed.

host:track-devices replies once immediately with the full device list, then
again with the new full list on every change. Each reply is diffed against
the previous one to synthesize per-device transition events.
*/
func publishDevices(watcher *DeviceWatcher) {
	defer close(watcher.eventChan)

	var lastKnownStates map[string]DeviceState
	finished := false

	for {
		scanner, err := connectToTrackDevices(watcher.server)
		if err != nil {
			watcher.reportErr(err)
			return
		}

		finished, err = publishDevicesUntilError(scanner, watcher.eventChan, &lastKnownStates)

		if finished {
			scanner.Close()
			return
		}

		if errors.Is(err, wire.ErrConnectionReset) {
			// The server died, restart and reconnect.
			log.Debug("adb.DeviceWatcher: server died, restarting")
			if err := watcher.startServer(); err != nil {
				log.Debugf("adb.DeviceWatcher: error restarting server, giving up: %v", err)
				watcher.reportErr(err)
				return
			}
			// Retry.
		} else {
			// Unknown error, don't retry.
			watcher.reportErr(err)
			return
		}
	}
}

func connectToTrackDevices(server server) (wire.Scanner, error) {
	conn, err := server.Dial()
	if err != nil {
		return nil, err
	}

	if err := conn.SendMessage([]byte("host:track-devices")); err != nil {
		conn.Close()
		return nil, err
	}
	if _, err := conn.ReadStatus("host:track-devices"); err != nil {
		conn.Close()
		return nil, err
	}

	return conn, nil
}

func publishDevicesUntilError(scanner wire.Scanner, eventChan chan<- DeviceStateChangedEvent, lastKnownStates *map[string]DeviceState) (finished bool, err error) {
	for {
		msg, err := scanner.ReadMessage()
		if err != nil {
			return false, err
		}

		deviceStates, err := parseDeviceStates(string(msg))
		if err != nil {
			return false, err
		}

		for _, event := range calculateStateDiffs(*lastKnownStates, deviceStates) {
			eventChan <- event
		}
		*lastKnownStates = deviceStates
	}
}

func parseDeviceStates(msg string) (states map[string]DeviceState, err error) {
	states = make(map[string]DeviceState)

	for lineNum, line := range strings.Split(msg, "\n") {
		if len(line) == 0 {
			continue
		}

		fields := strings.Split(line, "\t")
		if len(fields) != 2 {
			err = fmt.Errorf("%w: invalid device state line %d: %s", wire.ErrParse, lineNum, line)
			return
		}

		serial, stateString := fields[0], fields[1]
		var state DeviceState
		state, err = parseDeviceState(stateString)
		if err != nil {
			return
		}
		states[serial] = state
	}

	return
}

func calculateStateDiffs(oldStates, newStates map[string]DeviceState) (events []DeviceStateChangedEvent) {
	for serial, oldState := range oldStates {
		newState, ok := newStates[serial]

		if oldState != newState {
			if ok {
				// Device present in both lists, state changed.
				events = append(events, DeviceStateChangedEvent{serial, oldState, newState})
			} else {
				// Device only present in old list, device was removed.
				events = append(events, DeviceStateChangedEvent{serial, oldState, StateDisconnected})
			}
		}
	}

	for serial, newState := range newStates {
		if _, ok := oldStates[serial]; !ok {
			// Device only present in new list, device was added.
			events = append(events, DeviceStateChangedEvent{serial, StateDisconnected, newState})
		}
	}

	return events
}

// WaitForDeviceOnline blocks until the descriptor's device reports online or
// the timeout elapses. Zero timeout means wait forever.
func (c *Device) WaitForDeviceOnline(timeout time.Duration) error {
	var deadline time.Time
	if timeout > 0 {
		deadline = time.Now().Add(timeout)
	}

	for {
		state, err := c.State()
		if err == nil && state == StateOnline {
			return nil
		}
		if !deadline.IsZero() && time.Now().After(deadline) {
			return wrapClientError(fmt.Errorf("%w: device not online after %s", wire.ErrTimeout, timeout), c, "WaitForDeviceOnline")
		}
		time.Sleep(time.Second)
	}
}
