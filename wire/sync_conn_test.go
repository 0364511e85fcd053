package wire

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	someTime = time.Date(2015, 04, 12, 20, 7, 51, 0, time.UTC)
)

func packStat(mode os.FileMode, size int32, mtime time.Time) []byte {
	var b bytes.Buffer
	b.Write([]byte(ID_STAT))
	binary.Write(&b, binary.LittleEndian, uint32(mode))
	binary.Write(&b, binary.LittleEndian, uint32(size))
	binary.Write(&b, binary.LittleEndian, uint32(mtime.Unix()))
	return b.Bytes()
}

func packDent(name string, mode os.FileMode, size int32, mtime time.Time) []byte {
	var b bytes.Buffer
	b.Write([]byte(ID_DENT))
	binary.Write(&b, binary.LittleEndian, uint32(mode))
	binary.Write(&b, binary.LittleEndian, uint32(size))
	binary.Write(&b, binary.LittleEndian, uint32(mtime.Unix()))
	binary.Write(&b, binary.LittleEndian, uint32(len(name)))
	b.WriteString(name)
	return b.Bytes()
}

func packDone() []byte {
	var b bytes.Buffer
	b.Write([]byte(ID_DONE))
	b.Write(make([]byte, 16))
	return b.Bytes()
}

func TestStatValid(t *testing.T) {
	var buf bytes.Buffer
	conn := NewSyncConn(makeMockConnBuf(&buf))

	var mode os.FileMode = 0777
	buf.Write(packStat(mode, 4, someTime))

	entry, err := conn.Stat("/thing")
	assert.NoError(t, err)
	require.NotNil(t, entry)
	assert.Equal(t, mode, entry.Mode, "expected os.FileMode %s, got %s", mode, entry.Mode)
	assert.Equal(t, int32(4), entry.Size)
	assert.Equal(t, someTime, entry.ModifiedAt)
	assert.Equal(t, "", entry.Name)
}

func TestStatBadResponse(t *testing.T) {
	var buf bytes.Buffer
	conn := NewSyncConn(makeMockConnBuf(&buf))
	buf.Write([]byte("SPAT"))
	buf.Write(make([]byte, 12))

	entry, err := conn.Stat("/")
	assert.Nil(t, entry)
	assert.True(t, errors.Is(err, ErrAssertion))
}

func TestStatNoExist(t *testing.T) {
	var buf bytes.Buffer
	conn := NewSyncConn(makeMockConnBuf(&buf))
	buf.Write(packStat(0, 0, time.Unix(0, 0).UTC()))

	entry, err := conn.Stat("/")
	assert.Nil(t, entry)
	assert.True(t, errors.Is(err, ErrFileNoExist))
}

func TestSyncSendRequest(t *testing.T) {
	var buf bytes.Buffer
	s := NewSyncConn(makeMockConnBuf(&buf))
	err := s.SendRequest([]byte(ID_DATA), []byte("hello"))
	assert.NoError(t, err)
	assert.Equal(t, "DATA\005\000\000\000hello", buf.String())
}

func TestSyncSendRequestIdTooLong(t *testing.T) {
	var buf bytes.Buffer
	s := NewSyncConn(makeMockConnBuf(&buf))
	err := s.SendRequest([]byte("hello"), nil)
	assert.EqualError(t, err, "AssertionError: octet string must be exactly 4 bytes: 'hello'")
}

func TestSyncReadBytes(t *testing.T) {
	s := NewSyncConn(makeMockConnStr("\005\000\000\000helloworld"))
	buf, err := s.ReadBytes(nil)
	assert.NoError(t, err)
	assert.Equal(t, "hello", string(buf))
}

func TestSyncReadBytesTooShort(t *testing.T) {
	s := NewSyncConn(makeMockConnStr("\005\000\000\000h"))
	_, err := s.ReadBytes(nil)
	assert.True(t, errors.Is(err, ErrConnectionReset))
}

func TestSendHeaderEncodesModeAfterComma(t *testing.T) {
	var buf bytes.Buffer
	s := NewSyncConn(makeMockConnBuf(&buf))
	err := s.Send("/sdcard/f.txt", 0644)
	assert.NoError(t, err)
	// 0o100644 == 33188
	assert.Equal(t, "SEND\x13\x00\x00\x00/sdcard/f.txt,33188", buf.String())
}

func TestListReadsEntriesUntilDone(t *testing.T) {
	var buf bytes.Buffer
	conn := NewSyncConn(makeMockConnBuf(&buf))

	buf.Write(packStat(os.ModeDir|0755, 0, someTime))
	buf.Write(packDent("a.txt", 0644, 10, someTime))
	buf.Write(packDent("b.txt", 0600, 20, someTime))
	buf.Write(packDone())

	err := conn.List("/sdcard")
	require.NoError(t, err)

	entry, done, err := conn.ReadDirEntry()
	require.NoError(t, err)
	assert.False(t, done)
	assert.Equal(t, "a.txt", entry.Name)
	assert.Equal(t, int32(10), entry.Size)

	entry, done, err = conn.ReadDirEntry()
	require.NoError(t, err)
	assert.False(t, done)
	assert.Equal(t, "b.txt", entry.Name)

	_, done, err = conn.ReadDirEntry()
	require.NoError(t, err)
	assert.True(t, done)
}

func TestReadNextChunkSizeDataThenDone(t *testing.T) {
	var b bytes.Buffer
	b.Write([]byte(ID_DATA))
	binary.Write(&b, binary.LittleEndian, uint32(3))
	b.WriteString("abc")
	b.Write([]byte(ID_DONE))
	binary.Write(&b, binary.LittleEndian, uint32(0))

	conn := NewSyncConn(makeMockConnBuf(&b))

	size, err := conn.ReadNextChunkSize()
	require.NoError(t, err)
	assert.Equal(t, int32(3), size)

	chunk := make([]byte, size)
	_, err = io.ReadFull(conn, chunk)
	require.NoError(t, err)
	assert.Equal(t, "abc", string(chunk))

	_, err = conn.ReadNextChunkSize()
	assert.Equal(t, io.EOF, err)
}

func TestReadNextChunkSizeFail(t *testing.T) {
	var b bytes.Buffer
	b.Write([]byte(ID_FAIL))
	binary.Write(&b, binary.LittleEndian, uint32(4))
	b.WriteString("oops")

	conn := NewSyncConn(makeMockConnBuf(&b))
	_, err := conn.ReadNextChunkSize()
	assert.True(t, errors.Is(err, ErrAdb))
	assert.Contains(t, err.Error(), "oops")
}

func TestReadNextChunkSizeUnknownID(t *testing.T) {
	var b bytes.Buffer
	b.Write([]byte("WAT?"))
	binary.Write(&b, binary.LittleEndian, uint32(0))

	conn := NewSyncConn(makeMockConnBuf(&b))
	_, err := conn.ReadNextChunkSize()
	assert.True(t, errors.Is(err, ErrAssertion))
}

func TestSendChunkTooBig(t *testing.T) {
	var buf bytes.Buffer
	conn := NewSyncConn(makeMockConnBuf(&buf))
	err := conn.SendChunk(make([]byte, PushChunkSize+1))
	assert.True(t, errors.Is(err, ErrAssertion))
}

func TestSendDoneStampsMtime(t *testing.T) {
	var buf bytes.Buffer
	conn := NewSyncConn(makeMockConnBuf(&buf))
	require.NoError(t, conn.SendDone(someTime))

	assert.Equal(t, ID_DONE, buf.String()[:4])
	assert.Equal(t, uint32(someTime.Unix()), binary.LittleEndian.Uint32(buf.Bytes()[4:8]))
}
