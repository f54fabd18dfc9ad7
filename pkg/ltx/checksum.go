package ltx

import (
	"encoding/binary"
	"hash"
	"hash/crc64"
	"io"
)

// crc64Table is the ISO polynomial table, reflected with an all-ones initial
// value and final XOR, as implemented by hash/crc64.
var crc64Table = crc64.MakeTable(crc64.ISO)

// NewHasher returns the digest used for file and page checksums.
func NewHasher() hash.Hash64 {
	return crc64.New(crc64Table)
}

// ChecksumPage returns the checksum of a page: CRC-64 over the big-endian
// page number followed by the page data.
func ChecksumPage(pgno PageNum, data []byte) Checksum {
	return ChecksumPageWithHasher(NewHasher(), pgno, data)
}

// ChecksumPageWithHasher is ChecksumPage with a caller-supplied digest, which
// is reset before use.
func ChecksumPageWithHasher(h hash.Hash64, pgno PageNum, data []byte) Checksum {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], pgno.v)

	h.Reset()
	_, _ = h.Write(b[:])
	_, _ = h.Write(data)
	return NewChecksum(h.Sum64())
}

// checksumWriter passes writes to w and feeds the bytes that w accepted into h.
type checksumWriter struct {
	w io.Writer
	h hash.Hash64
}

func (cw *checksumWriter) Write(p []byte) (int, error) {
	n, err := cw.w.Write(p)
	_, _ = cw.h.Write(p[:n])
	return n, err
}

// checksumReader reads from r and feeds every byte returned into h.
type checksumReader struct {
	r io.Reader
	h hash.Hash64
}

func (cr *checksumReader) Read(p []byte) (int, error) {
	n, err := cr.r.Read(p)
	_, _ = cr.h.Write(p[:n])
	return n, err
}

// sumWith folds the post-apply checksum into h and returns the file checksum.
func sumWith(h hash.Hash64, postApplyChecksum Checksum) Checksum {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], postApplyChecksum.v)
	_, _ = h.Write(b[:])
	return NewChecksum(h.Sum64())
}
