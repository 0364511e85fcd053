package adb

import (
	"bytes"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/openatx/goadbutils/wire"
)

// mockConn is a net.Conn whose reads come from an in-memory buffer and whose
// writes go to a second one. Used to feed raw byte streams (shell output,
// sync payloads) to code that reads straight off the connection.
type mockConn struct {
	// Buffer holds the bytes Read returns. A nil Buffer reads as EOF.
	Buffer *bytes.Buffer
	// Written collects everything written to the conn.
	Written bytes.Buffer
	Closed  bool
}

func (c *mockConn) Read(b []byte) (int, error) {
	if c.Buffer == nil {
		return 0, io.EOF
	}
	return c.Buffer.Read(b)
}

func (c *mockConn) Write(b []byte) (int, error) {
	return c.Written.Write(b)
}

func (c *mockConn) Close() error {
	c.Closed = true
	return nil
}

func (c *mockConn) LocalAddr() net.Addr                { return nil }
func (c *mockConn) RemoteAddr() net.Addr               { return nil }
func (c *mockConn) SetDeadline(t time.Time) error      { return nil }
func (c *mockConn) SetReadDeadline(t time.Time) error  { return nil }
func (c *mockConn) SetWriteDeadline(t time.Time) error { return nil }

// MockServer implements both server and wire.IConn: Dial hands the server
// itself back as the connection. Protocol-level messages come from Status
// and Messages, raw stream bytes from the embedded mockConn, and every
// request sent is recorded in Requests.
type MockServer struct {
	mockConn

	Status string

	// Messages returned from calls to ReadMessage, in order.
	Messages []string
	nextMsg  int

	// Errs returned from method calls, in order. A nil entry means success.
	Errs    []error
	nextErr int

	// Requests sent via SendMessage.
	Requests []string

	// Trace of the methods called.
	Trace []string

	// ReadSegments, when set, are loaded into the read buffer one per Dial,
	// so each session's raw stream can be scripted separately.
	ReadSegments [][]byte
}

var _ server = &MockServer{}
var _ wire.IConn = &MockServer{}

func (s *MockServer) Start() error {
	s.logMethod("Start")
	return s.getNextErr()
}

func (s *MockServer) Dial() (wire.IConn, error) {
	s.logMethod("Dial")
	if err := s.getNextErr(); err != nil {
		return nil, err
	}
	if len(s.ReadSegments) > 0 {
		s.Buffer = bytes.NewBuffer(s.ReadSegments[0])
		s.ReadSegments = s.ReadSegments[1:]
	}
	return s, nil
}

func (s *MockServer) SendMessage(msg []byte) error {
	s.logMethod("SendMessage")
	s.Requests = append(s.Requests, string(msg))
	return s.getNextErr()
}

func (s *MockServer) ReadStatus(req string) (string, error) {
	s.logMethod("ReadStatus")
	if err := s.getNextErr(); err != nil {
		return "", err
	}
	if s.Status != wire.StatusSuccess {
		return s.Status, fmt.Errorf("%w: request %s, server error: %s", wire.ErrAdb, req, s.nextMessage())
	}
	return s.Status, nil
}

func (s *MockServer) ReadMessage() ([]byte, error) {
	s.logMethod("ReadMessage")
	if err := s.getNextErr(); err != nil {
		return nil, err
	}
	return []byte(s.nextMessage()), nil
}

func (s *MockServer) ReadUntilEof() ([]byte, error) {
	s.logMethod("ReadUntilEof")
	if err := s.getNextErr(); err != nil {
		return nil, err
	}
	return io.ReadAll(&s.mockConn)
}

func (s *MockServer) RoundTripSingleResponse(req []byte) ([]byte, error) {
	if err := s.SendMessage(req); err != nil {
		return nil, err
	}
	if _, err := s.ReadStatus(string(req)); err != nil {
		return nil, err
	}
	return s.ReadMessage()
}

func (s *MockServer) Close() error {
	s.logMethod("Close")
	return s.mockConn.Close()
}

func (s *MockServer) nextMessage() string {
	if s.nextMsg >= len(s.Messages) {
		return ""
	}
	msg := s.Messages[s.nextMsg]
	s.nextMsg++
	return msg
}

func (s *MockServer) getNextErr() error {
	if s.nextErr >= len(s.Errs) {
		return nil
	}
	err := s.Errs[s.nextErr]
	s.nextErr++
	return err
}

func (s *MockServer) logMethod(name string) {
	s.Trace = append(s.Trace, name)
}
