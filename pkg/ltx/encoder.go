package ltx

import (
	"encoding/binary"
	"hash"
	"io"

	"github.com/pkg/errors"
)

type encoderState int

const (
	encoderOpen encoderState = iota
	encoderClosed
)

// Encoder writes a single LTX file to an underlying writer.
//
// Bytes flow Encoder -> checksum -> LZ4 frame (optional) -> w. A rejected
// EncodePage call writes nothing, but any bytes already written cannot be
// taken back, so callers should discard the output after an error.
type Encoder struct {
	w     *countingWriter
	frame frameWriter
	body  *checksumWriter
	hash  hash.Hash64

	header   Header
	lockPgno PageNum
	prevPgno PageNum // zero until the first page
	state    encoderState

	buf [PageHeaderSize]byte
}

// NewEncoder validates hdr and writes it to w.
func NewEncoder(w io.Writer, hdr Header) (*Encoder, error) {
	b, err := hdr.MarshalBinary()
	if err != nil {
		return nil, err
	}

	cw := &countingWriter{w: w}
	h := NewHasher()

	// The header is always stored uncompressed: a reader needs the flags
	// before it can tell whether a frame follows.
	if _, err := (&checksumWriter{w: cw, h: h}).Write(b); err != nil {
		return nil, errors.Wrap(err, "write header")
	}

	frame, err := newFrameWriter(cw, hdr.Flags)
	if err != nil {
		return nil, err
	}

	return &Encoder{
		w:        cw,
		frame:    frame,
		body:     &checksumWriter{w: frame, h: h},
		hash:     h,
		header:   hdr,
		lockPgno: LockPageNum(hdr.PageSize),
	}, nil
}

// Header returns the header the encoder was created with.
func (enc *Encoder) Header() Header { return enc.header }

// N returns the number of bytes written to the underlying writer so far.
func (enc *Encoder) N() int64 { return enc.w.n }

// EncodePage writes one page.
//
// Snapshots must contain pages 1, 2, 3, ... with the lock page skipped.
// Incremental files may skip pages but must be strictly increasing. The
// lock page is never allowed, and data must be exactly one page long.
func (enc *Encoder) EncodePage(pgno PageNum, data []byte) error {
	if enc.state == encoderClosed {
		return ErrEncoderClosed
	}
	if err := enc.validatePageNum(pgno); err != nil {
		return err
	}
	if len(data) != enc.header.PageSize.Int() {
		return &BufferSizeError{Size: len(data), PageSize: enc.header.PageSize}
	}

	putPageNum(enc.buf[:], pgno)
	if _, err := enc.body.Write(enc.buf[:]); err != nil {
		return errors.Wrapf(err, "write page header %s", pgno)
	}
	if _, err := enc.body.Write(data); err != nil {
		return errors.Wrapf(err, "write page %s", pgno)
	}

	enc.prevPgno = pgno
	return nil
}

func (enc *Encoder) validatePageNum(pgno PageNum) error {
	if pgno.IsZero() {
		return ErrZeroPageNum
	}
	if pgno == enc.lockPgno {
		return &LockPageError{Pgno: pgno}
	}

	if enc.header.IsSnapshot() {
		if enc.prevPgno.IsZero() {
			if pgno != PageNumOne {
				return &FirstSnapshotPageError{Pgno: pgno}
			}
			return nil
		}

		next, err := enc.prevPgno.Add(1)
		if err == nil && next == enc.lockPgno {
			next, err = next.Add(1)
		}
		if err != nil || pgno != next {
			return &NonsequentialPagesError{Last: enc.prevPgno, Pgno: pgno}
		}
		return nil
	}

	if !enc.prevPgno.IsZero() && pgno.v <= enc.prevPgno.v {
		return &OutOfOrderPageError{Last: enc.prevPgno, Pgno: pgno}
	}
	return nil
}

// Finish writes the sentinel, ends the compression frame and writes the
// trailer. The encoder cannot be used afterwards. If the underlying writer
// has a Flush method it is called last.
func (enc *Encoder) Finish(postApplyChecksum Checksum) (Trailer, error) {
	if enc.state == encoderClosed {
		return Trailer{}, ErrEncoderClosed
	}
	if postApplyChecksum.IsZero() {
		return Trailer{}, ErrPostApplyChecksumRequired
	}
	enc.state = encoderClosed

	putPageNum(enc.buf[:], PageNum{})
	if _, err := enc.body.Write(enc.buf[:]); err != nil {
		return Trailer{}, errors.Wrap(err, "write sentinel")
	}
	if err := enc.frame.finish(); err != nil {
		return Trailer{}, err
	}

	trailer := Trailer{
		PostApplyChecksum: postApplyChecksum,
		FileChecksum:      sumWith(enc.hash, postApplyChecksum),
	}

	var b [TrailerSize]byte
	binary.BigEndian.PutUint64(b[0:8], trailer.PostApplyChecksum.v)
	binary.BigEndian.PutUint64(b[8:16], trailer.FileChecksum.v)
	if _, err := enc.w.Write(b[:]); err != nil {
		return Trailer{}, errors.Wrap(err, "write trailer")
	}

	if f, ok := enc.w.w.(interface{ Flush() error }); ok {
		if err := f.Flush(); err != nil {
			return Trailer{}, errors.Wrap(err, "flush")
		}
	}
	return trailer, nil
}

type countingWriter struct {
	w io.Writer
	n int64
}

func (cw *countingWriter) Write(p []byte) (int, error) {
	n, err := cw.w.Write(p)
	cw.n += int64(n)
	return n, err
}
