package ltx

import (
	"encoding/binary"
	"io"
	"math"
	"time"
)

const (
	// Magic is the first four bytes of every LTX file.
	Magic = "LTX1"

	HeaderSize     = 100
	PageHeaderSize = 4
	TrailerSize    = 16
)

// HeaderFlags changes how the body of a file is encoded.
type HeaderFlags uint32

const (
	// HeaderFlagCompressLZ4 wraps page records in an LZ4 frame.
	HeaderFlagCompressLZ4 HeaderFlags = 1 << 0

	headerFlagMask = HeaderFlagCompressLZ4
)

// IsValidHeaderFlags reports whether flags contains only known bits.
func IsValidHeaderFlags(flags HeaderFlags) bool {
	return flags&^headerFlagMask == 0
}

// Compressed reports whether the LZ4 flag is set.
func (f HeaderFlags) Compressed() bool {
	return f&HeaderFlagCompressLZ4 != 0
}

// Header is the first record of an LTX file.
type Header struct {
	Flags     HeaderFlags
	PageSize  PageSize
	Commit    PageNum // database size in pages after the file is applied
	MinTXID   TXID
	MaxTXID   TXID
	Timestamp time.Time // stored with millisecond precision

	// Database checksum before the file is applied. Zero on snapshots.
	PreApplyChecksum Checksum
}

// IsSnapshot reports whether the file holds a full database image.
func (h *Header) IsSnapshot() bool {
	return h.MinTXID == TXIDOne
}

// Validate checks the cross-field rules of the header.
func (h *Header) Validate() error {
	switch {
	case !IsValidHeaderFlags(h.Flags):
		return &HeaderFieldError{Field: "flags", Value: uint32(h.Flags), Err: ErrUnknownFlags}
	case h.PageSize.IsZero():
		return &HeaderFieldError{Field: "page size", Value: 0, Err: &PageSizeError{}}
	case h.Commit.IsZero():
		return &HeaderFieldError{Field: "commit", Value: 0, Err: ErrZeroPageNum}
	case h.MinTXID.IsZero():
		return &HeaderFieldError{Field: "min txid", Value: 0, Err: ErrZeroTXID}
	case h.MaxTXID.IsZero():
		return &HeaderFieldError{Field: "max txid", Value: 0, Err: ErrZeroTXID}
	}

	if h.MinTXID.Compare(h.MaxTXID) > 0 {
		return &TXIDOrderError{Min: h.MinTXID, Max: h.MaxTXID}
	}
	if h.IsSnapshot() && !h.PreApplyChecksum.IsZero() {
		return ErrPreApplyChecksumOnSnapshot
	}
	if !h.IsSnapshot() && h.PreApplyChecksum.IsZero() {
		return ErrNoPreApplyChecksum
	}
	return nil
}

// MarshalBinary encodes the header into its fixed 100-byte form.
func (h *Header) MarshalBinary() ([]byte, error) {
	if err := h.Validate(); err != nil {
		return nil, err
	}
	ms := h.Timestamp.UnixMilli()
	if ms < 0 {
		return nil, &HeaderFieldError{Field: "timestamp", Value: h.Timestamp, Err: ErrInvalidTimestamp}
	}

	b := make([]byte, HeaderSize)
	copy(b[0:4], Magic)
	binary.BigEndian.PutUint32(b[4:8], uint32(h.Flags))
	binary.BigEndian.PutUint32(b[8:12], h.PageSize.v)
	binary.BigEndian.PutUint32(b[12:16], h.Commit.v)
	binary.BigEndian.PutUint64(b[16:24], h.MinTXID.v)
	binary.BigEndian.PutUint64(b[24:32], h.MaxTXID.v)
	binary.BigEndian.PutUint64(b[32:40], uint64(ms))
	binary.BigEndian.PutUint64(b[40:48], h.PreApplyChecksum.v)
	return b, nil
}

// UnmarshalBinary decodes and validates a header. Bytes past offset 48 are
// reserved and ignored.
func (h *Header) UnmarshalBinary(b []byte) error {
	if len(b) < HeaderSize {
		return io.ErrShortBuffer
	}

	if string(b[0:4]) != Magic {
		return &HeaderFieldError{Field: "magic", Value: b[0:4], Err: ErrInvalidMagic}
	}

	var hdr Header
	hdr.Flags = HeaderFlags(binary.BigEndian.Uint32(b[4:8]))
	if !IsValidHeaderFlags(hdr.Flags) {
		return &HeaderFieldError{Field: "flags", Value: uint32(hdr.Flags), Err: ErrUnknownFlags}
	}

	var err error
	v32 := binary.BigEndian.Uint32(b[8:12])
	if hdr.PageSize, err = NewPageSize(v32); err != nil {
		return &HeaderFieldError{Field: "page size", Value: v32, Err: err}
	}
	v32 = binary.BigEndian.Uint32(b[12:16])
	if hdr.Commit, err = NewPageNum(v32); err != nil {
		return &HeaderFieldError{Field: "commit", Value: v32, Err: err}
	}
	v64 := binary.BigEndian.Uint64(b[16:24])
	if hdr.MinTXID, err = NewTXID(v64); err != nil {
		return &HeaderFieldError{Field: "min txid", Value: v64, Err: err}
	}
	v64 = binary.BigEndian.Uint64(b[24:32])
	if hdr.MaxTXID, err = NewTXID(v64); err != nil {
		return &HeaderFieldError{Field: "max txid", Value: v64, Err: err}
	}

	v64 = binary.BigEndian.Uint64(b[32:40])
	if v64 > math.MaxInt64 {
		return &HeaderFieldError{Field: "timestamp", Value: v64, Err: ErrInvalidTimestamp}
	}
	hdr.Timestamp = time.UnixMilli(int64(v64)).UTC()

	if v64 = binary.BigEndian.Uint64(b[40:48]); v64 != 0 {
		hdr.PreApplyChecksum = NewChecksum(v64)
	}

	if err := hdr.Validate(); err != nil {
		return err
	}
	*h = hdr
	return nil
}

// PageHeader precedes each page record. The zero value is the sentinel that
// ends the page sequence.
type PageHeader struct {
	Pgno PageNum
}

// IsSentinel reports whether h marks the end of the pages.
func (h PageHeader) IsSentinel() bool {
	return h.Pgno.IsZero()
}

// MarshalBinary encodes the header into 4 bytes.
func (h PageHeader) MarshalBinary() ([]byte, error) {
	b := make([]byte, PageHeaderSize)
	putPageNum(b, h.Pgno)
	return b, nil
}

// UnmarshalBinary decodes a page header. A zero page number decodes to the sentinel.
func (h *PageHeader) UnmarshalBinary(b []byte) error {
	if len(b) < PageHeaderSize {
		return io.ErrShortBuffer
	}
	h.Pgno = PageNum{v: binary.BigEndian.Uint32(b[0:4])}
	return nil
}

// Trailer is the last record of an LTX file.
type Trailer struct {
	PostApplyChecksum Checksum `json:"postApplyChecksum"`
	FileChecksum      Checksum `json:"fileChecksum"`
}

// MarshalBinary encodes the trailer into 16 bytes.
func (t *Trailer) MarshalBinary() ([]byte, error) {
	b := make([]byte, TrailerSize)
	binary.BigEndian.PutUint64(b[0:8], t.PostApplyChecksum.v)
	binary.BigEndian.PutUint64(b[8:16], t.FileChecksum.v)
	return b, nil
}

// UnmarshalBinary decodes a trailer. Both checksums must carry ChecksumFlag.
func (t *Trailer) UnmarshalBinary(b []byte) error {
	if len(b) < TrailerSize {
		return io.ErrShortBuffer
	}

	post := binary.BigEndian.Uint64(b[0:8])
	if post&ChecksumFlag == 0 {
		return &TrailerFieldError{Field: "post-apply checksum", Value: post}
	}
	file := binary.BigEndian.Uint64(b[8:16])
	if file&ChecksumFlag == 0 {
		return &TrailerFieldError{Field: "file checksum", Value: file}
	}

	t.PostApplyChecksum = Checksum{v: post}
	t.FileChecksum = Checksum{v: file}
	return nil
}
