package adb

import (
	"github.com/openatx/goadbutils/wire"
)

// DirEntry holds information about a directory entry on a device.
type DirEntry = wire.DirEntry

// DirEntries iterates over directory entries produced by a LIST request.
// The sequence is finite and non-restartable: once the terminating DONE is
// consumed the underlying session is closed, and a fresh listing requires a
// fresh call to Device.ListDirEntries.
type DirEntries struct {
	syncConn     *wire.SyncConn
	currentEntry *DirEntry
	err          error
	closed       bool
}

// ReadAll reads all the remaining directory entries into a slice,
// closes self, and returns any error.
// If err is non-nil, result will contain any entries read until the error occurred.
func (entries *DirEntries) ReadAll() (result []*DirEntry, err error) {
	defer entries.Close()

	for entries.Next() {
		result = append(result, entries.Entry())
	}
	err = entries.Err()

	return
}

func (entries *DirEntries) Next() bool {
	if entries.err != nil || entries.closed {
		return false
	}

	entry, done, err := entries.syncConn.ReadDirEntry()
	if err != nil {
		entries.err = err
		entries.Close()
		return false
	}

	if done {
		entries.Close()
		return false
	}

	entries.currentEntry = entry
	return true
}

func (entries *DirEntries) Entry() *DirEntry {
	return entries.currentEntry
}

func (entries *DirEntries) Err() error {
	return entries.err
}

// Close closes the sync session. Next() calls Close() before returning false.
func (entries *DirEntries) Close() error {
	if entries.closed {
		return nil
	}
	entries.closed = true
	return entries.syncConn.Close()
}
