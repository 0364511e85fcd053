package adb

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/openatx/goadbutils/wire"
)

var apkFetchClient = &http.Client{Timeout: 10 * time.Minute}

// fetchToTempFile downloads url into a temp file and returns its path. The
// caller owns the file and should remove it. A rolling sha256 is computed
// over the body and logged so a bad download can be matched against the
// publisher's checksum after the fact.
func fetchToTempFile(url string, progress func(received, total int64)) (string, error) {
	resp, err := apkFetchClient.Get(url)
	if err != nil {
		return "", fmt.Errorf("%w: fetching %s: %w", wire.ErrNetwork, url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%w: fetching %s: http status %s", wire.ErrNetwork, url, resp.Status)
	}

	f, err := os.CreateTemp("", "goadbutils-*.apk")
	if err != nil {
		return "", err
	}

	total := resp.ContentLength
	hasher := sha256.New()
	body := io.TeeReader(resp.Body, hasher)

	var observer io.Writer = f
	if progress != nil {
		observer = io.MultiWriter(f, &progressWriter{total: total, progress: progress})
	}

	n, err := io.Copy(observer, body)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(f.Name())
		return "", fmt.Errorf("%w: fetching %s: %w", wire.ErrNetwork, url, err)
	}
	if total >= 0 && n != total {
		os.Remove(f.Name())
		return "", fmt.Errorf("%w: fetched %d of %d bytes from %s", wire.ErrTransferIntegrity, n, total, url)
	}

	log.WithFields(log.Fields{
		"url":    url,
		"bytes":  n,
		"sha256": hex.EncodeToString(hasher.Sum(nil)),
	}).Debug("fetched apk")
	return f.Name(), nil
}

// progressWriter reports a running byte count to a callback.
type progressWriter struct {
	total    int64
	received int64
	progress func(received, total int64)
}

func (w *progressWriter) Write(p []byte) (int, error) {
	w.received += int64(len(p))
	w.progress(w.received, w.total)
	return len(p), nil
}
