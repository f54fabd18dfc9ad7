package store

import (
	"bufio"
	"os"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/ssargent/litetx/pkg/ltx"
	"github.com/ssargent/litetx/pkg/metrics"
)

// FileWriter writes one LTX file into the store
type FileWriter struct {
	store  *Store
	file   *os.File
	writer *bufio.Writer
	enc    *ltx.Encoder
	pages  int
	start  time.Time
	done   bool
}

// Header returns the header of the file being written
func (w *FileWriter) Header() ltx.Header {
	return w.enc.Header()
}

// EncodePage appends a page to the file
func (w *FileWriter) EncodePage(pgno ltx.PageNum, data []byte) error {
	if w.done {
		return ErrClosed
	}
	if err := w.enc.EncodePage(pgno, data); err != nil {
		return err
	}
	w.pages++
	return nil
}

// Commit finishes the file with the given post-apply checksum and moves it
// to its final name.
func (w *FileWriter) Commit(postApplyChecksum ltx.Checksum) (FileInfo, error) {
	if w.done {
		return FileInfo{}, ErrClosed
	}
	if _, err := w.enc.Finish(postApplyChecksum); err != nil {
		if errors.Is(err, ltx.ErrPostApplyChecksumRequired) {
			return FileInfo{}, err
		}
		_ = w.Abort()
		return FileInfo{}, err
	}
	return w.finish(w.enc.Header())
}

// finish flushes, syncs and renames the temporary file.
func (w *FileWriter) finish(hdr ltx.Header) (FileInfo, error) {
	w.done = true
	m := w.store.metrics
	fail := func(err error) (FileInfo, error) {
		_ = w.file.Close()
		_ = os.Remove(w.file.Name())
		m.RecordFile("commit", false, time.Since(w.start))
		return FileInfo{}, err
	}

	if err := w.writer.Flush(); err != nil {
		return fail(errors.Wrap(err, "flush ltx file"))
	}
	if w.store.config.Fsync {
		if err := w.file.Sync(); err != nil {
			return fail(errors.Wrap(err, "sync ltx file"))
		}
	}
	if err := w.file.Close(); err != nil {
		return fail(errors.Wrap(err, "close ltx file"))
	}

	info, err := w.store.commit(w.file.Name(), hdr)
	if err != nil {
		_ = os.Remove(w.file.Name())
		m.RecordFile("commit", false, time.Since(w.start))
		return FileInfo{}, err
	}

	m.RecordPages(metrics.Encode, w.pages)
	m.RecordBytes(metrics.Encode, info.Size)
	m.RecordFile("commit", true, time.Since(w.start))

	w.store.log.WithFields(logrus.Fields{
		"file":     info.Name,
		"size":     info.Size,
		"snapshot": hdr.IsSnapshot(),
	}).Info("ltx file committed")
	return info, nil
}

// Abort discards the file. It is safe to call after Commit.
func (w *FileWriter) Abort() error {
	if w.done {
		return nil
	}
	w.done = true

	_ = w.file.Close()
	if err := os.Remove(w.file.Name()); err != nil && !os.IsNotExist(err) {
		return errors.Wrap(err, "remove temporary file")
	}
	return nil
}
