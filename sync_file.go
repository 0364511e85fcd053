package adb

import (
	"fmt"
	"io"
	"time"

	"github.com/openatx/goadbutils/wire"
)

// syncFileReader exposes a RECV stream as an io.ReadCloser. Reads cross DATA
// segment boundaries transparently and return io.EOF once the terminating
// DONE has been consumed. Closing early is safe: the session is simply torn
// down and later operations open fresh sessions.
type syncFileReader struct {
	syncConn *wire.SyncConn
	toRead   int
	eof      bool
}

var _ io.ReadCloser = &syncFileReader{}

func newSyncFileReader(s *wire.SyncConn) io.ReadCloser {
	return &syncFileReader{syncConn: s}
}

func (r *syncFileReader) Read(buf []byte) (n int, err error) {
	if r.eof {
		return 0, io.EOF
	}
	if r.toRead == 0 {
		length, err := r.syncConn.ReadNextChunkSize()
		if err == io.EOF {
			r.eof = true
			return 0, io.EOF
		} else if err != nil {
			return 0, err
		}
		r.toRead = int(length)
		if r.toRead == 0 {
			// Empty DATA segment, keep going.
			return r.Read(buf)
		}
	}

	if len(buf) > r.toRead {
		buf = buf[:r.toRead]
	}
	n, err = io.ReadFull(r.syncConn, buf)
	r.toRead -= n
	if err != nil {
		return n, wire.ClassifyNetError(err)
	}
	return n, nil
}

func (r *syncFileReader) Close() error {
	return r.syncConn.Close()
}

// syncFileWriter exposes a SEND stream as an io.WriteCloser. Writes are split
// into DATA segments of at most wire.PushChunkSize bytes; Close sends the
// DONE trailer stamped with mtime, waits for the device's OKAY, and tears
// down the session.
type syncFileWriter struct {
	syncConn *wire.SyncConn

	// Modification time stamped in the DONE trailer. Zero means Close time.
	mtime   time.Time
	written int64
}

var _ io.WriteCloser = &syncFileWriter{}

func newSyncFileWriter(s *wire.SyncConn, mtime time.Time) *syncFileWriter {
	return &syncFileWriter{syncConn: s, mtime: mtime}
}

func (w *syncFileWriter) Write(buf []byte) (n int, err error) {
	written := 0

	// If buf is bigger than the chunk bound we'll send multiple chunks.
	for len(buf) > 0 {
		chunk := buf
		if len(chunk) > wire.PushChunkSize {
			chunk = chunk[:wire.PushChunkSize]
		}
		if err := w.syncConn.SendChunk(chunk); err != nil {
			return written, err
		}
		written += len(chunk)
		buf = buf[len(chunk):]
	}

	w.written += int64(written)
	return written, nil
}

// Close finishes the transfer. Zero-length files are fine: the DONE trailer
// alone creates an empty file.
func (w *syncFileWriter) Close() error {
	defer w.syncConn.Close()

	if w.mtime.IsZero() {
		w.mtime = time.Now()
	}

	if err := w.syncConn.SendDone(w.mtime); err != nil {
		return fmt.Errorf("error sending done chunk to close stream: %w", err)
	}

	if _, err := w.syncConn.ReadStatus("send"); err != nil {
		return fmt.Errorf("error reading status after file transfer: %w", err)
	}
	return nil
}
