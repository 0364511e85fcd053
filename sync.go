package adb

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/openatx/goadbutils/wire"
)

// DefaultFileMode is used when pushing without an explicit mode.
const DefaultFileMode = os.FileMode(0o644)

// PushSource is a closed variant over the three kinds of upload input: a local
// file path, an in-memory buffer, or an already-open stream. All three resolve
// to a readable byte source when the transfer starts.
type PushSource struct {
	path   string
	data   []byte
	reader io.Reader
}

// PushPath pushes the contents of the local file at p. Size and modification
// time are taken from the local file, so transfers from a path can report
// their total size up front.
func PushPath(p string) PushSource { return PushSource{path: p} }

// PushBytes pushes an in-memory buffer.
func PushBytes(b []byte) PushSource { return PushSource{data: b} }

// PushReader pushes everything r yields until EOF. The total size is unknown
// up front, so progress callbacks see total == -1.
func PushReader(r io.Reader) PushSource { return PushSource{reader: r} }

// open resolves the variant to a stream plus the best-known total size
// (-1 when unknown) and modification time (zero when unknown).
func (s PushSource) open() (rc io.ReadCloser, total int64, mtime time.Time, err error) {
	switch {
	case s.path != "":
		f, err := os.Open(s.path)
		if err != nil {
			return nil, 0, time.Time{}, err
		}
		info, err := f.Stat()
		if err != nil {
			f.Close()
			return nil, 0, time.Time{}, err
		}
		return f, info.Size(), info.ModTime(), nil
	case s.reader != nil:
		if rc, ok := s.reader.(io.ReadCloser); ok {
			return rc, -1, time.Time{}, nil
		}
		return io.NopCloser(s.reader), -1, time.Time{}, nil
	default:
		return io.NopCloser(bytes.NewReader(s.data)), int64(len(s.data)), time.Time{}, nil
	}
}

// PushOptions tune a push. The zero value is usable.
type PushOptions struct {
	// Mode for the remote file. Zero means DefaultFileMode.
	Mode os.FileMode

	// Mtime stamped on the remote file. Zero means time of completion.
	Mtime time.Time

	// Check stats the remote file after the transfer and fails with
	// wire.ErrTransferIntegrity if its size differs from the bytes sent.
	Check bool

	// Progress, if set, is invoked after each chunk with the running byte
	// count and the total (-1 when the source size is unknown).
	Progress func(sent, total int64)
}

// OpenWrite opens a sync SEND stream to path on the device. Written bytes are
// chunked onto the wire; Close stamps mtime (zero means now) and waits for
// the device's acknowledgement. The caller must Close the writer.
func (c *Device) OpenWrite(path string, mode os.FileMode, mtime time.Time) (io.WriteCloser, error) {
	conn, err := c.getSyncConn()
	if err != nil {
		return nil, wrapClientError(err, c, "OpenWrite(%s)", path)
	}
	if err = conn.Send(path, mode); err != nil {
		conn.Close()
		return nil, wrapClientError(err, c, "OpenWrite(%s)", path)
	}
	return newSyncFileWriter(conn, mtime), nil
}

// Push uploads src to remotePath with default options, returning the number
// of bytes transferred.
func (c *Device) Push(src PushSource, remotePath string) (int64, error) {
	return c.PushWithOptions(src, remotePath, PushOptions{})
}

// PushWithOptions uploads src to remotePath.
func (c *Device) PushWithOptions(src PushSource, remotePath string, opts PushOptions) (int64, error) {
	if opts.Mode == 0 {
		opts.Mode = DefaultFileMode
	}

	local, total, mtime, err := src.open()
	if err != nil {
		return 0, wrapClientError(err, c, "Push(%s)", remotePath)
	}
	defer local.Close()
	if !opts.Mtime.IsZero() {
		mtime = opts.Mtime
	}

	writer, err := c.OpenWrite(remotePath, opts.Mode, mtime)
	if err != nil {
		return 0, err
	}

	sent, err := copyWithProgress(writer, local, total, opts.Progress)
	if err != nil {
		writer.Close()
		return sent, wrapClientError(err, c, "Push(%s)", remotePath)
	}
	if err = writer.Close(); err != nil {
		return sent, wrapClientError(err, c, "Push(%s)", remotePath)
	}

	if opts.Check {
		entry, err := c.Stat(remotePath)
		if err != nil {
			return sent, wrapClientError(err, c, "Push(%s)", remotePath)
		}
		if int64(entry.Size) != sent {
			err = fmt.Errorf("%w: pushed %d bytes but remote size is %d",
				wire.ErrTransferIntegrity, sent, entry.Size)
			return sent, wrapClientError(err, c, "Push(%s)", remotePath)
		}
	}
	return sent, nil
}

// PushFile uploads the local file at localPath to remotePath, preserving its
// permission bits and modification time.
func (c *Device) PushFile(localPath, remotePath string, progress func(sent, total int64)) error {
	info, err := os.Stat(localPath)
	if err != nil {
		return wrapClientError(err, c, "PushFile(%s)", localPath)
	}
	_, err = c.PushWithOptions(PushPath(localPath), remotePath, PushOptions{
		Mode:     info.Mode().Perm(),
		Mtime:    info.ModTime(),
		Progress: progress,
	})
	return err
}

func copyWithProgress(dst io.Writer, src io.Reader, total int64, progress func(sent, total int64)) (int64, error) {
	buf := make([]byte, wire.PushChunkSize)
	var sent int64
	for {
		n, err := src.Read(buf)
		if n > 0 {
			if _, werr := dst.Write(buf[:n]); werr != nil {
				return sent, werr
			}
			sent += int64(n)
			if progress != nil {
				progress(sent, total)
			}
		}
		if err == io.EOF {
			return sent, nil
		}
		if err != nil {
			return sent, err
		}
	}
}

// OpenRead opens a sync RECV stream for the file at path. The returned reader
// owns the session and must be closed.
func (c *Device) OpenRead(path string) (io.ReadCloser, error) {
	conn, err := c.getSyncConn()
	if err != nil {
		return nil, wrapClientError(err, c, "OpenRead(%s)", path)
	}
	if err = conn.Recv(path); err != nil {
		conn.Close()
		return nil, wrapClientError(err, c, "OpenRead(%s)", path)
	}
	return newSyncFileReader(conn), nil
}

// PullToWriter streams the remote file at remotePath into w, returning the
// number of bytes copied.
func (c *Device) PullToWriter(remotePath string, w io.Writer, progress func(received, total int64)) (int64, error) {
	var total int64 = -1
	if progress != nil {
		if entry, err := c.Stat(remotePath); err == nil {
			total = int64(entry.Size)
		}
	}

	reader, err := c.OpenRead(remotePath)
	if err != nil {
		return 0, err
	}
	defer reader.Close()

	n, err := copyWithProgress(w, reader, total, progress)
	return n, wrapClientError(err, c, "Pull(%s)", remotePath)
}

// PullFile downloads the remote file at remotePath to localPath.
func (c *Device) PullFile(remotePath, localPath string, progress func(received, total int64)) error {
	f, err := os.Create(localPath)
	if err != nil {
		return wrapClientError(err, c, "PullFile(%s)", remotePath)
	}
	defer f.Close()

	_, err = c.PullToWriter(remotePath, f, progress)
	return err
}

// ReadFileBytes reads the whole remote file at path into memory.
func (c *Device) ReadFileBytes(path string) ([]byte, error) {
	reader, err := c.OpenRead(path)
	if err != nil {
		return nil, err
	}
	defer reader.Close()

	data, err := io.ReadAll(reader)
	return data, wrapClientError(err, c, "ReadFileBytes(%s)", path)
}

// ReadFileText reads the whole remote file at path as a string.
func (c *Device) ReadFileText(path string) (string, error) {
	data, err := c.ReadFileBytes(path)
	return string(data), err
}

// FileExists reports whether path exists on the device.
func (c *Device) FileExists(path string) (bool, error) {
	_, err := c.Stat(path)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, wire.ErrFileNoExist) {
		return false, nil
	}
	return false, err
}

// RemoveFile deletes path on the device. Directories need RemoveAll.
func (c *Device) RemoveFile(path string) error {
	return c.runCheckedShell("RemoveFile", "rm", path)
}

// RemoveAll deletes path recursively on the device.
func (c *Device) RemoveAll(path string) error {
	return c.runCheckedShell("RemoveAll", "rm", "-rf", path)
}

// Mkdirs creates every directory in paths, parents included.
func (c *Device) Mkdirs(paths ...string) error {
	if len(paths) == 0 {
		return nil
	}
	args := append([]string{"-p"}, paths...)
	return c.runCheckedShell("Mkdirs", "mkdir", args...)
}

// runCheckedShell runs cmd and turns a nonzero exit code into a wire.ErrAdb.
func (c *Device) runCheckedShell(op string, cmd string, args ...string) error {
	cmdline, err := prepareCommandLine(cmd, args...)
	if err != nil {
		return wrapClientError(err, c, op)
	}
	result, err := c.ShellDetail(cmdline)
	if err != nil {
		return wrapClientError(err, c, "%s(%s)", op, cmdline)
	}
	if result.ExitCode != 0 {
		err = fmt.Errorf("%w: %s: %s", wire.ErrAdb, cmdline, strings.TrimSpace(result.Output))
		return wrapClientError(err, c, "%s(%s)", op, cmdline)
	}
	return nil
}
