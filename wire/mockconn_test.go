package wire

import (
	"bytes"
	"io"
	"net"
	"strings"
	"time"
)

// mockNetConn adapts an arbitrary reader/writer pair into a net.Conn for
// driving Conn/SyncConn in tests.
type mockNetConn struct {
	io.Reader
	io.Writer
}

func (mockNetConn) Close() error                       { return nil }
func (mockNetConn) LocalAddr() net.Addr                { return nil }
func (mockNetConn) RemoteAddr() net.Addr               { return nil }
func (mockNetConn) SetDeadline(t time.Time) error      { return nil }
func (mockNetConn) SetReadDeadline(t time.Time) error  { return nil }
func (mockNetConn) SetWriteDeadline(t time.Time) error { return nil }

// makeMockConnBuf reads and writes through the same buffer, so a test can
// write a canned response and have the code under test read it back.
func makeMockConnBuf(buf *bytes.Buffer) net.Conn {
	return mockNetConn{Reader: buf, Writer: buf}
}

func makeMockConnStr(s string) net.Conn {
	return mockNetConn{Reader: strings.NewReader(s), Writer: io.Discard}
}
