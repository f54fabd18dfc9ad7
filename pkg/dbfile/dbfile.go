package dbfile

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/pkg/errors"

	"github.com/ssargent/litetx/pkg/ltx"
)

// SQLite stores the page size as a big-endian u16 at this offset of page 1.
// The value 1 stands for 65536.
const pageSizeOffset = 16

// ErrInvalidDatabase is returned for files that are not a whole number of
// pages of a supported size.
var ErrInvalidDatabase = errors.New("invalid database file")

// ChecksumMismatchError reports a database whose running checksum differs
// from the one recorded in an LTX file.
type ChecksumMismatchError struct {
	Stage     string // "pre-apply" or "post-apply"
	Want, Got ltx.Checksum
}

func (e *ChecksumMismatchError) Error() string {
	return fmt.Sprintf("%s checksum mismatch: expected %s, got %s", e.Stage, e.Want, e.Got)
}

// WriterAtTruncater is a database file that can be written page by page and
// resized to its commit size.
type WriterAtTruncater interface {
	io.WriterAt
	Truncate(size int64) error
}

// EncodeOptions controls EncodeSnapshot.
type EncodeOptions struct {
	Compress  bool
	MaxTXID   ltx.TXID  // defaults to 1
	Timestamp time.Time // defaults to now
}

// ReadPageSize returns the page size recorded in the database header.
func ReadPageSize(r io.ReaderAt) (ltx.PageSize, error) {
	var b [2]byte
	if err := readFullAt(r, b[:], pageSizeOffset); err != nil {
		if err == io.ErrUnexpectedEOF {
			return ltx.PageSize{}, errors.Wrap(ErrInvalidDatabase, "database header too short")
		}
		return ltx.PageSize{}, errors.Wrap(err, "read database header")
	}

	v := uint32(binary.BigEndian.Uint16(b[:]))
	if v == 1 {
		v = ltx.MaxPageSize
	}
	sz, err := ltx.NewPageSize(v)
	if err != nil {
		return ltx.PageSize{}, errors.Wrapf(ErrInvalidDatabase, "%v", err)
	}
	return sz, nil
}

// PageCount returns the number of pages in a database of the given size.
func PageCount(size int64, pageSize ltx.PageSize) (ltx.PageNum, error) {
	ps := int64(pageSize.Uint32())
	if size <= 0 || size%ps != 0 {
		return ltx.PageNum{}, errors.Wrapf(ErrInvalidDatabase, "size %d is not a multiple of page size %s", size, pageSize)
	}
	n := size / ps
	if n > int64(^uint32(0)) {
		return ltx.PageNum{}, errors.Wrapf(ErrInvalidDatabase, "too many pages: %d", n)
	}
	return ltx.NewPageNum(uint32(n))
}

// Checksum computes the running checksum of pages 1..commit of db.
func Checksum(db io.ReaderAt, pageSize ltx.PageSize, commit ltx.PageNum) (ltx.Checksum, error) {
	chksum := ltx.NewChecksum(0)
	err := forEachPage(db, pageSize, commit, func(pgno ltx.PageNum, data []byte) error {
		chksum = chksum.XOR(ltx.ChecksumPage(pgno, data))
		return nil
	})
	return chksum, err
}

// EncodeSnapshot writes the first size bytes of db to w as a snapshot file.
func EncodeSnapshot(w io.Writer, db io.ReaderAt, size int64, opts EncodeOptions) (ltx.Header, ltx.Trailer, error) {
	pageSize, err := ReadPageSize(db)
	if err != nil {
		return ltx.Header{}, ltx.Trailer{}, err
	}
	commit, err := PageCount(size, pageSize)
	if err != nil {
		return ltx.Header{}, ltx.Trailer{}, err
	}

	hdr := ltx.Header{
		PageSize:  pageSize,
		Commit:    commit,
		MinTXID:   ltx.TXIDOne,
		MaxTXID:   opts.MaxTXID,
		Timestamp: opts.Timestamp,
	}
	if opts.Compress {
		hdr.Flags |= ltx.HeaderFlagCompressLZ4
	}
	if hdr.MaxTXID.IsZero() {
		hdr.MaxTXID = ltx.TXIDOne
	}
	if hdr.Timestamp.IsZero() {
		hdr.Timestamp = time.Now()
	}
	hdr.Timestamp = time.UnixMilli(hdr.Timestamp.UnixMilli()).UTC()

	enc, err := ltx.NewEncoder(w, hdr)
	if err != nil {
		return ltx.Header{}, ltx.Trailer{}, err
	}

	h := ltx.NewHasher()
	chksum := ltx.NewChecksum(0)
	if err := forEachPage(db, pageSize, commit, func(pgno ltx.PageNum, data []byte) error {
		chksum = chksum.XOR(ltx.ChecksumPageWithHasher(h, pgno, data))
		return enc.EncodePage(pgno, data)
	}); err != nil {
		return ltx.Header{}, ltx.Trailer{}, err
	}

	trailer, err := enc.Finish(chksum)
	if err != nil {
		return ltx.Header{}, ltx.Trailer{}, err
	}
	return hdr, trailer, nil
}

// Apply decodes an LTX file from r into db and resizes db to the file's
// commit size. It returns the file's header and trailer.
//
// Pages are written to db as they are decoded, before the file checksum in
// the trailer is checked. A corrupt file can therefore leave db partially
// written; callers that need db untouched on failure should run ltx.Verify
// over the file first.
func Apply(db WriterAtTruncater, r io.Reader) (ltx.Header, ltx.Trailer, error) {
	dec, err := ltx.NewDecoder(r)
	if err != nil {
		return ltx.Header{}, ltx.Trailer{}, err
	}
	hdr := dec.Header()
	ps := int64(hdr.PageSize.Uint32())

	// Incremental files can only be checked against a readable destination.
	ra, readable := db.(io.ReaderAt)
	if !hdr.IsSnapshot() && readable {
		if err := checkPreApply(ra, hdr); err != nil {
			return ltx.Header{}, ltx.Trailer{}, err
		}
	}

	h := ltx.NewHasher()
	chksum := ltx.NewChecksum(0)
	buf := make([]byte, ps)
	for {
		pgno, err := dec.DecodePage(buf)
		if err == io.EOF {
			break
		} else if err != nil {
			return ltx.Header{}, ltx.Trailer{}, err
		}

		if _, err := db.WriteAt(buf, int64(pgno.Uint32()-1)*ps); err != nil {
			return ltx.Header{}, ltx.Trailer{}, errors.Wrapf(err, "write page %s", pgno)
		}
		if hdr.IsSnapshot() {
			chksum = chksum.XOR(ltx.ChecksumPageWithHasher(h, pgno, buf))
		}
	}

	trailer, err := dec.Finish()
	if err != nil {
		return ltx.Header{}, ltx.Trailer{}, err
	}

	if err := db.Truncate(int64(hdr.Commit.Uint32()) * ps); err != nil {
		return ltx.Header{}, ltx.Trailer{}, errors.Wrap(err, "truncate database")
	}

	switch {
	case hdr.IsSnapshot():
	case readable:
		if chksum, err = Checksum(ra, hdr.PageSize, hdr.Commit); err != nil {
			return ltx.Header{}, ltx.Trailer{}, err
		}
	default:
		return hdr, trailer, nil
	}

	if chksum != trailer.PostApplyChecksum {
		return ltx.Header{}, ltx.Trailer{}, &ChecksumMismatchError{
			Stage: "post-apply",
			Want:  trailer.PostApplyChecksum,
			Got:   chksum,
		}
	}
	return hdr, trailer, nil
}

func checkPreApply(db io.ReaderAt, hdr ltx.Header) error {
	// The database may be shorter or longer than the commit recorded in the
	// previous file; only its current pages count.
	size, err := readerSize(db)
	if err != nil {
		return err
	}
	commit, err := PageCount(size, hdr.PageSize)
	if err != nil {
		return err
	}

	got, err := Checksum(db, hdr.PageSize, commit)
	if err != nil {
		return err
	}
	if got != hdr.PreApplyChecksum {
		return &ChecksumMismatchError{Stage: "pre-apply", Want: hdr.PreApplyChecksum, Got: got}
	}
	return nil
}

func readerSize(r io.ReaderAt) (int64, error) {
	switch r := r.(type) {
	case interface{ Stat() (os.FileInfo, error) }:
		fi, err := r.Stat()
		if err != nil {
			return 0, errors.Wrap(err, "stat database")
		}
		return fi.Size(), nil
	case interface{ Size() int64 }:
		return r.Size(), nil
	}
	return 0, errors.New("cannot determine database size")
}

// forEachPage reads pages 1..commit of db in order, skipping the lock page.
// The buffer passed to fn is reused between calls.
func forEachPage(db io.ReaderAt, pageSize ltx.PageSize, commit ltx.PageNum, fn func(ltx.PageNum, []byte) error) error {
	lock := ltx.LockPageNum(pageSize)
	buf := make([]byte, pageSize.Int())
	ps := int64(pageSize.Uint32())

	for n := uint32(1); n <= commit.Uint32(); n++ {
		pgno, err := ltx.NewPageNum(n)
		if err != nil {
			return err
		}
		if pgno == lock {
			continue
		}

		if err := readFullAt(db, buf, int64(n-1)*ps); err != nil {
			return errors.Wrapf(err, "read page %s", pgno)
		}
		if err := fn(pgno, buf); err != nil {
			return err
		}

		if n == ^uint32(0) {
			break
		}
	}
	return nil
}

// readFullAt is ReaderAt.ReadAt with the end-of-input case folded in: a
// complete read is never an error and a partial one is io.ErrUnexpectedEOF.
func readFullAt(r io.ReaderAt, b []byte, off int64) error {
	n, err := r.ReadAt(b, off)
	if n == len(b) {
		return nil
	}
	if err == nil || err == io.EOF {
		return io.ErrUnexpectedEOF
	}
	return err
}
