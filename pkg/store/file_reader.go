package store

import (
	"os"
	"time"

	"github.com/pkg/errors"

	"github.com/ssargent/litetx/pkg/ltx"
	"github.com/ssargent/litetx/pkg/metrics"
)

// FileReader provides sequential access to the pages of a committed file
type FileReader struct {
	name    string
	file    *os.File
	dec     *ltx.Decoder
	metrics *metrics.Metrics
	pages   int
	start   time.Time
}

// Name returns the file name
func (r *FileReader) Name() string {
	return r.name
}

// Header returns the file header
func (r *FileReader) Header() ltx.Header {
	return r.dec.Header()
}

// DecodePage reads the next page into buf. It returns io.EOF after the last
// page.
func (r *FileReader) DecodePage(buf []byte) (ltx.PageNum, error) {
	pgno, err := r.dec.DecodePage(buf)
	if err == nil {
		r.pages++
	}
	return pgno, err
}

// Finish reads the rest of the file and verifies its checksum.
func (r *FileReader) Finish() (ltx.Trailer, error) {
	trailer, err := r.dec.Finish()

	r.metrics.RecordPages(metrics.Decode, r.pages)
	r.metrics.RecordBytes(metrics.Decode, r.dec.N())
	r.metrics.RecordFile("verify", err == nil, time.Since(r.start))
	if errors.Is(err, ltx.ErrChecksumMismatch) {
		r.metrics.RecordChecksumFailure()
	}
	return trailer, err
}

// Close releases the underlying file
func (r *FileReader) Close() error {
	return r.file.Close()
}

// Size returns the size of the file on disk
func (r *FileReader) Size() (int64, error) {
	fi, err := r.file.Stat()
	if err != nil {
		return 0, err
	}
	return fi.Size(), nil
}
