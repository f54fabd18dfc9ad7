package ltx

import (
	"hash"
	"io"

	"github.com/pkg/errors"
)

type decoderState int

const (
	decoderPages decoderState = iota
	decoderPagesDone
	decoderClosed
)

// Decoder reads a single LTX file from an underlying reader.
//
// Corruption is only detected by Finish, which compares the trailer's file
// checksum with one computed over everything read. Pages returned before
// Finish succeeds must not be trusted.
type Decoder struct {
	r     *countingReader
	frame frameReader
	body  *checksumReader
	hash  hash.Hash64

	header Header
	state  decoderState

	buf [PageHeaderSize]byte
}

// NewDecoder reads and validates the header from r.
func NewDecoder(r io.Reader) (*Decoder, error) {
	cr := &countingReader{r: r}
	h := NewHasher()

	b := make([]byte, HeaderSize)
	if _, err := io.ReadFull(&checksumReader{r: cr, h: h}, b); err != nil {
		return nil, errors.Wrap(err, "read header")
	}

	var hdr Header
	if err := hdr.UnmarshalBinary(b); err != nil {
		return nil, err
	}

	frame := newFrameReader(cr, hdr.Flags)
	return &Decoder{
		r:      cr,
		frame:  frame,
		body:   &checksumReader{r: frame, h: h},
		hash:   h,
		header: hdr,
	}, nil
}

// Header returns the decoded file header.
func (dec *Decoder) Header() Header { return dec.header }

// N returns the number of bytes read from the underlying reader so far.
func (dec *Decoder) N() int64 { return dec.r.n }

// DecodePage reads the next page into buf, which must be exactly one page
// long, and returns its page number. It returns io.EOF once the sentinel has
// been read, and on every call after that.
func (dec *Decoder) DecodePage(buf []byte) (PageNum, error) {
	if dec.state == decoderClosed {
		return PageNum{}, ErrDecoderClosed
	}
	if len(buf) != dec.header.PageSize.Int() {
		return PageNum{}, &BufferSizeError{Size: len(buf), PageSize: dec.header.PageSize}
	}
	if dec.state == decoderPagesDone {
		return PageNum{}, io.EOF
	}

	if _, err := io.ReadFull(dec.body, dec.buf[:]); err != nil {
		return PageNum{}, errors.Wrap(unexpectedEOF(err), "read page header")
	}

	var phdr PageHeader
	if err := phdr.UnmarshalBinary(dec.buf[:]); err != nil {
		return PageNum{}, err
	}
	if phdr.IsSentinel() {
		dec.state = decoderPagesDone
		return PageNum{}, io.EOF
	}

	if _, err := io.ReadFull(dec.body, buf); err != nil {
		return PageNum{}, errors.Wrapf(unexpectedEOF(err), "read page %s", phdr.Pgno)
	}
	return phdr.Pgno, nil
}

// Finish reads the trailer and verifies the file checksum. Pages not yet
// read are consumed and discarded first. The decoder cannot be used
// afterwards.
func (dec *Decoder) Finish() (Trailer, error) {
	if dec.state == decoderClosed {
		return Trailer{}, ErrDecoderClosed
	}
	if dec.state == decoderPages {
		buf := make([]byte, dec.header.PageSize.Int())
		for {
			if _, err := dec.DecodePage(buf); err == io.EOF {
				break
			} else if err != nil {
				dec.state = decoderClosed
				return Trailer{}, err
			}
		}
	}
	dec.state = decoderClosed

	if err := dec.frame.finish(); err != nil {
		return Trailer{}, err
	}

	b := make([]byte, TrailerSize)
	if _, err := io.ReadFull(dec.r, b); err != nil {
		return Trailer{}, errors.Wrap(unexpectedEOF(err), "read trailer")
	}

	var trailer Trailer
	if err := trailer.UnmarshalBinary(b); err != nil {
		return Trailer{}, err
	}

	if got := sumWith(dec.hash, trailer.PostApplyChecksum); got != trailer.FileChecksum {
		return Trailer{}, &ChecksumMismatchError{Want: trailer.FileChecksum, Got: got}
	}
	return trailer, nil
}

// Verify decodes an entire file, discarding page data, and returns its
// header and trailer.
func Verify(r io.Reader) (Header, Trailer, error) {
	dec, err := NewDecoder(r)
	if err != nil {
		return Header{}, Trailer{}, err
	}
	trailer, err := dec.Finish()
	if err != nil {
		return Header{}, Trailer{}, err
	}
	return dec.Header(), trailer, nil
}

// unexpectedEOF converts a clean EOF in the middle of a record into
// io.ErrUnexpectedEOF.
func unexpectedEOF(err error) error {
	if err == io.EOF {
		return io.ErrUnexpectedEOF
	}
	return err
}

type countingReader struct {
	r io.Reader
	n int64
}

func (cr *countingReader) Read(p []byte) (int, error) {
	n, err := cr.r.Read(p)
	cr.n += int64(n)
	return n, err
}
