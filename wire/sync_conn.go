package wire

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"os"
	"time"
)

const (
	ID_STAT = "STAT"
	ID_LIST = "LIST"
	ID_DENT = "DENT"
	ID_SEND = "SEND"
	ID_RECV = "RECV"
	ID_DONE = "DONE"
	ID_DATA = "DATA"
	ID_OKAY = "OKAY"
	ID_FAIL = "FAIL"
	ID_QUIT = "QUIT"

	// SyncMaxChunkSize bounds a single sync request payload (paths, names).
	SyncMaxChunkSize = 64 * 1024

	// PushChunkSize bounds a single DATA segment when sending a file.
	// adbd accepts larger chunks on recent Androids but 4 KiB works everywhere.
	PushChunkSize = 4096
)

var (
	zeroTime = time.Unix(0, 0).UTC()
)

// DirEntry holds information about a file or directory entry on a device.
type DirEntry struct {
	Name       string
	Mode       os.FileMode
	Size       int32
	ModifiedAt time.Time
}

func (entry DirEntry) String() string {
	return fmt.Sprintf("%s %12d %v %s", entry.Mode.String(), entry.Size, entry.ModifiedAt, entry.Name)
}

// SyncConn is a connection to the adb server in sync mode.
// Assumes the connection has been put into sync mode (by sending "sync:" in
// transport mode). The adb sync protocol is defined at
// https://android.googlesource.com/platform/system/core/+/master/adb/SYNC.TXT.
// Unlike the normal adb protocol (implemented in Conn), the sync protocol is binary.
// Command codes are 4 ASCII bytes; lengths, sizes, modes and mtimes are
// unsigned 32-bit little-endian. Modification time is seconds since Epoch UTC.
type SyncConn struct {
	net.Conn
	rbuf []byte
	wbuf []byte
}

func NewSyncConn(conn net.Conn) *SyncConn {
	return &SyncConn{conn, make([]byte, 8), make([]byte, 8)}
}

// ReadStatus reads a 4-byte status string followed by a little-endian message
// length and, on failure, the message itself.
func (s *SyncConn) ReadStatus(req string) (string, error) {
	return readSyncStatusFailureAsError(s, s.rbuf, req)
}

func (s *SyncConn) ReadInt32() (int32, error) {
	if _, err := io.ReadFull(s, s.rbuf[:4]); err != nil {
		return 0, ClassifyNetError(err)
	}
	return int32(binary.LittleEndian.Uint32(s.rbuf)), nil
}

// ReadBytes reads a little-endian length, then that many bytes.
func (s *SyncConn) ReadBytes(buf []byte) (out []byte, err error) {
	length, err := s.ReadInt32()
	if err != nil {
		return nil, fmt.Errorf("error reading bytes from sync conn: %w", err)
	}
	if len(buf) < int(length) {
		buf = make([]byte, length)
	}
	n, err := io.ReadFull(s, buf[:length])
	if err == io.ErrUnexpectedEOF {
		return nil, errIncompleteMessage("bytes", n, int(length))
	} else if err != nil {
		return nil, fmt.Errorf("error reading bytes from sync conn: %w", ClassifyNetError(err))
	}

	return buf[:n], nil
}

//	struct __attribute__((packed)) {
//		uint32_t id;
//		uint32_t mode;
//		uint32_t size;
//		uint32_t mtime;
//	} stat_v1;
func unpackStat(rbuf []byte) (d *DirEntry, err error) {
	id := rbuf[:4]
	if string(id) != ID_STAT {
		err = fmt.Errorf("%w: expected stat ID 'STAT', but got '%s'", ErrAssertion, id)
		return
	}
	mode := ParseFileModeFromAdb(binary.LittleEndian.Uint32(rbuf[4:8]))
	size := int32(binary.LittleEndian.Uint32(rbuf[8:12]))
	mtime := time.Unix(int64(int32(binary.LittleEndian.Uint32(rbuf[12:16]))), 0).UTC()

	// adb doesn't indicate when a file doesn't exist, but will return all zeros.
	// Theoretically this could be an actual file, but that's very unlikely.
	if mode == os.FileMode(0) && size == 0 && mtime == zeroTime {
		err = fmt.Errorf("%w: file doesn't exist", ErrFileNoExist)
		return
	}

	d = &DirEntry{Mode: mode, Size: size, ModifiedAt: mtime}
	return
}

func (s *SyncConn) finishStat() (*DirEntry, error) {
	var rbuf [16]byte
	if _, err := io.ReadFull(s, rbuf[:]); err != nil {
		return nil, ClassifyNetError(err)
	}
	return unpackStat(rbuf[:])
}

// Stat issues a STAT request for path. A response of all zero fields means the
// path does not exist and is reported as ErrFileNoExist.
func (s *SyncConn) Stat(path string) (*DirEntry, error) {
	if err := s.SendRequest([]byte(ID_STAT), []byte(path)); err != nil {
		return nil, err
	}
	return s.finishStat()
}

//	struct __attribute__((packed)) {
//		uint32_t id;
//		uint32_t mode;
//		uint32_t size;
//		uint32_t mtime;
//		uint32_t namelen;
//	} dent_v1; // followed by `namelen` bytes of the name.
func (s *SyncConn) ReadDirEntry() (entry *DirEntry, done bool, err error) {
	var buf [20]byte
	if _, err = io.ReadFull(s.Conn, buf[:]); err != nil {
		err = fmt.Errorf("read dir entry header failed: %w", ClassifyNetError(err))
		return
	}

	id := string(buf[:4])
	mode := ParseFileModeFromAdb(binary.LittleEndian.Uint32(buf[4:8]))
	size := int32(binary.LittleEndian.Uint32(buf[8:12]))
	mtime := time.Unix(int64(int32(binary.LittleEndian.Uint32(buf[12:16]))), 0).UTC()
	namelen := binary.LittleEndian.Uint32(buf[16:20])

	var name []byte
	if namelen > 0 {
		name = make([]byte, namelen)
		if _, err = io.ReadFull(s, name); err != nil {
			err = fmt.Errorf("read dir entry name failed: %w", ClassifyNetError(err))
			return
		}
	}

	if id == ID_DONE {
		done = true
		return
	} else if id != ID_DENT {
		err = fmt.Errorf("%w: expected dir entry ID 'DENT', but got '%s'", ErrAssertion, id)
		return
	}

	entry = &DirEntry{
		Name:       string(name),
		Mode:       mode,
		Size:       size,
		ModifiedAt: mtime,
	}
	return
}

// List issues a LIST request for path. Entries are then consumed with
// ReadDirEntry until it reports done.
//
// On Android 5.x listing a nonexistent directory doesn't fail, the device just
// answers DONE immediately. A STAT is issued first so the caller can tell the
// two apart.
func (s *SyncConn) List(path string) error {
	if _, err := s.Stat(path); err != nil {
		return err
	}
	return s.SendRequest([]byte(ID_LIST), []byte(path))
}

// Recv issues a RECV request for path. The file body is then consumed with
// ReadNextChunkSize + raw reads, typically through a sync file reader.
func (s *SyncConn) Recv(path string) error {
	return s.SendRequest([]byte(ID_RECV), []byte(path))
}

// Send starts a SEND stream to the file at path, created with permissions mode.
// From SYNC.TXT: the remote file name is split into two parts separated by the
// last comma; the first part is the actual path, the second a decimal encoded
// file mode containing the permissions of the file on device.
func (s *SyncConn) Send(path string, mode os.FileMode) error {
	pathAndMode := []byte(fmt.Sprintf("%s,%d", path, syscallMode(mode)))
	return s.SendRequest([]byte(ID_SEND), pathAndMode)
}

// ReadNextChunkSize reads the header of the next DATA segment and returns its
// length. Returns io.EOF after the terminating DONE. A FAIL segment carries a
// UTF-8 reason which is surfaced as the error. Any other command code is a
// protocol violation and fails fast.
//
//	struct __attribute__((packed)) {
//		uint32_t id;
//		uint32_t size;
//	} data; // followed by `size` bytes of data, if id == ID_DATA.
func (s *SyncConn) ReadNextChunkSize() (int32, error) {
	if _, err := io.ReadFull(s, s.rbuf[:8]); err != nil {
		return 0, fmt.Errorf("sync read: %w", ClassifyNetError(err))
	}

	id := string(s.rbuf[:4])
	size := int32(binary.LittleEndian.Uint32(s.rbuf[4:8]))

	switch id {
	case ID_DATA:
		return size, nil
	case ID_DONE:
		return 0, io.EOF
	case ID_FAIL:
		buf := make([]byte, size)
		if _, err := io.ReadFull(s, buf); err != nil {
			return 0, fmt.Errorf("sync read: %w", ClassifyNetError(err))
		}
		if bytes.Contains(buf, []byte("No such file or directory")) {
			return 0, fmt.Errorf("%w: no such file or directory", ErrFileNoExist)
		}
		return 0, adbServerError("read-chunk", string(buf))
	default:
		return 0, fmt.Errorf("%w: expected chunk id '%s' or '%s', but got '%s'",
			ErrAssertion, ID_DATA, ID_DONE, id)
	}
}

// SendChunk writes one DATA segment. data must be at most PushChunkSize bytes.
func (s *SyncConn) SendChunk(data []byte) error {
	if len(data) > PushChunkSize {
		return fmt.Errorf("%w: chunk must be <= %d in length", ErrAssertion, PushChunkSize)
	}
	copy(s.wbuf[:4], []byte(ID_DATA))
	binary.LittleEndian.PutUint32(s.wbuf[4:8], uint32(len(data)))
	if _, err := s.Write(s.wbuf[:8]); err != nil {
		return ClassifyNetError(err)
	}
	if _, err := s.Write(data); err != nil {
		return ClassifyNetError(err)
	}
	return nil
}

// SendDone terminates a SEND stream, stamping t as the file modification time.
func (s *SyncConn) SendDone(t time.Time) error {
	copy(s.wbuf[:4], []byte(ID_DONE))
	binary.LittleEndian.PutUint32(s.wbuf[4:8], uint32(t.Unix()))
	_, err := s.Write(s.wbuf[:8])
	return ClassifyNetError(err)
}

// SendRequest sends a 4-byte id, then len(data) little-endian, then the bytes.
func (s *SyncConn) SendRequest(id []byte, data []byte) error {
	if len(id) != 4 {
		return fmt.Errorf("%w: octet string must be exactly 4 bytes: '%s'", ErrAssertion, id)
	}

	dataLen := len(data)
	if dataLen > SyncMaxChunkSize {
		// This limit might not apply to filenames, but it's big enough
		// that it shouldn't be a problem.
		return fmt.Errorf("%w: data must be <= %d in length", ErrAssertion, SyncMaxChunkSize)
	}

	if len(s.wbuf) < (8 + dataLen) {
		s.wbuf = make([]byte, 8+dataLen)
	}

	copy(s.wbuf[:4], id)
	binary.LittleEndian.PutUint32(s.wbuf[4:8], uint32(dataLen))
	copy(s.wbuf[8:8+dataLen], data)
	if n, err := s.Write(s.wbuf[:8+dataLen]); err != nil {
		return fmt.Errorf("error send bytes: %w, sent %d", ClassifyNetError(err), n)
	}
	return nil
}

// Quit tells the device to end the sync session. Best effort, errors ignored
// by callers that are about to close anyway.
func (s *SyncConn) Quit() error {
	return s.SendRequest([]byte(ID_QUIT), nil)
}

// Reads the status, and if failure, reads the message and returns it as an error.
// If the status is success, doesn't read the message.
func readSyncStatusFailureAsError(r io.Reader, buf []byte, req string) (string, error) {
	if len(buf) < 8 {
		buf = make([]byte, 8)
	}

	n, err := io.ReadFull(r, buf[0:8])
	if err == io.ErrUnexpectedEOF {
		return "", fmt.Errorf("error reading status for %s: %w", req, errIncompleteMessage(req, n, 8))
	} else if err != nil {
		return "", fmt.Errorf("error reading status for %s: %w", req, ClassifyNetError(err))
	}

	status := string(buf[:4])
	if status == StatusSuccess {
		return status, nil
	}

	length := binary.LittleEndian.Uint32(buf[4:8])
	if length > 0 {
		if length > uint32(len(buf)) {
			buf = make([]byte, length)
		}
		if _, err = io.ReadFull(r, buf[:length]); err != nil {
			return status, fmt.Errorf("read status body error: %w", ClassifyNetError(err))
		}
	}

	if status == ID_FAIL {
		return status, adbServerError(req, string(buf[:length]))
	}

	return status, fmt.Errorf("%w: unknown status %s", ErrAssertion, status)
}
