package ltx

import (
	"encoding/binary"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// TXID is a database transaction ID. The zero value is not a valid ID and
// is only ever produced by Go's zero initialization.
type TXID struct {
	v uint64
}

// TXIDOne is the first transaction ID. Files starting at it are snapshots.
var TXIDOne = TXID{v: 1}

// NewTXID returns a transaction ID for v.
func NewTXID(v uint64) (TXID, error) {
	if v == 0 {
		return TXID{}, ErrZeroTXID
	}
	return TXID{v: v}, nil
}

// Uint64 returns the integer form of the ID.
func (t TXID) Uint64() uint64 { return t.v }

// IsZero reports whether t is the zero value.
func (t TXID) IsZero() bool { return t.v == 0 }

// Compare returns -1, 0 or +1 depending on whether t is less than, equal to
// or greater than other.
func (t TXID) Compare(other TXID) int {
	switch {
	case t.v < other.v:
		return -1
	case t.v > other.v:
		return 1
	}
	return 0
}

// Add returns t+delta. It fails with ErrTXIDOverflow instead of wrapping.
func (t TXID) Add(delta uint64) (TXID, error) {
	if t.v == 0 {
		return TXID{}, ErrZeroTXID
	}
	if delta > math.MaxUint64-t.v {
		return TXID{}, ErrTXIDOverflow
	}
	return TXID{v: t.v + delta}, nil
}

// String returns the 16-character hex form of the ID.
func (t TXID) String() string {
	return fmt.Sprintf("%016x", t.v)
}

// MarshalText implements encoding.TextMarshaler.
func (t TXID) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (t *TXID) UnmarshalText(data []byte) error {
	v, err := ParseTXID(string(data))
	if err != nil {
		return err
	}
	*t = v
	return nil
}

// ParseTXID parses the 16-character hex form produced by TXID.String.
func ParseTXID(s string) (TXID, error) {
	if len(s) != 16 {
		return TXID{}, fmt.Errorf("invalid formatted transaction id length: %q", s)
	}
	v, err := strconv.ParseUint(s, 16, 64)
	if err != nil {
		return TXID{}, fmt.Errorf("invalid transaction id format: %q", s)
	}
	return NewTXID(v)
}

// PageNum is a database page number, starting from 1.
type PageNum struct {
	v uint32
}

// PageNumOne is the first page of a database.
var PageNumOne = PageNum{v: 1}

// NewPageNum returns a page number for v.
func NewPageNum(v uint32) (PageNum, error) {
	if v == 0 {
		return PageNum{}, ErrZeroPageNum
	}
	return PageNum{v: v}, nil
}

// LockPageNum returns the page that holds SQLite's pending-byte lock region
// for the given page size. That page never holds data and is never encoded.
func LockPageNum(pageSize PageSize) PageNum {
	if pageSize.v == 0 {
		return PageNum{}
	}
	return PageNum{v: 0x40000000/pageSize.v + 1}
}

// Uint32 returns the integer form of the page number.
func (p PageNum) Uint32() uint32 { return p.v }

// IsZero reports whether p is the zero value.
func (p PageNum) IsZero() bool { return p.v == 0 }

// Add returns p+delta. It fails with ErrPageNumOverflow instead of wrapping.
func (p PageNum) Add(delta uint32) (PageNum, error) {
	if p.v == 0 {
		return PageNum{}, ErrZeroPageNum
	}
	if delta > math.MaxUint32-p.v {
		return PageNum{}, ErrPageNumOverflow
	}
	return PageNum{v: p.v + delta}, nil
}

// String returns the decimal form of the page number.
func (p PageNum) String() string {
	return strconv.FormatUint(uint64(p.v), 10)
}

// Hex returns the 8-character hex form used when a page is stored as its own file.
func (p PageNum) Hex() string {
	return fmt.Sprintf("%08x", p.v)
}

// ParsePageNumHex parses the form produced by PageNum.Hex.
func ParsePageNumHex(s string) (PageNum, error) {
	if len(s) != 8 {
		return PageNum{}, fmt.Errorf("invalid formatted page number length: %q", s)
	}
	v, err := strconv.ParseUint(s, 16, 32)
	if err != nil {
		return PageNum{}, fmt.Errorf("invalid page number format: %q", s)
	}
	return NewPageNum(uint32(v))
}

const (
	MinPageSize = 512
	MaxPageSize = 65536
)

// PageSize is the size in bytes of every page in a file.
type PageSize struct {
	v uint32
}

// NewPageSize returns a page size for v. v must be a power of two between
// MinPageSize and MaxPageSize.
func NewPageSize(v uint32) (PageSize, error) {
	if !IsValidPageSize(v) {
		return PageSize{}, &PageSizeError{Size: v}
	}
	return PageSize{v: v}, nil
}

// IsValidPageSize reports whether v is an acceptable page size.
func IsValidPageSize(v uint32) bool {
	return v >= MinPageSize && v <= MaxPageSize && v&(v-1) == 0
}

// Uint32 returns the integer form of the page size.
func (s PageSize) Uint32() uint32 { return s.v }

// Int returns the page size as an int, for slicing.
func (s PageSize) Int() int { return int(s.v) }

// IsZero reports whether s is the zero value.
func (s PageSize) IsZero() bool { return s.v == 0 }

func (s PageSize) String() string {
	return strconv.FormatUint(uint64(s.v), 10)
}

// ChecksumFlag is set on every valid checksum so that a zero checksum can
// mean "absent" on the wire.
const ChecksumFlag uint64 = 1 << 63

// Checksum is a CRC-64 database or file checksum. The zero value means no
// checksum; NewChecksum never returns it.
type Checksum struct {
	v uint64
}

// NewChecksum returns v with ChecksumFlag set.
func NewChecksum(v uint64) Checksum {
	return Checksum{v: v | ChecksumFlag}
}

// Uint64 returns the integer form of the checksum.
func (c Checksum) Uint64() uint64 { return c.v }

// IsZero reports whether c is absent.
func (c Checksum) IsZero() bool { return c.v == 0 }

// XOR combines two checksums. The operation is commutative, so a database
// checksum can be accumulated page by page in any order.
func (c Checksum) XOR(other Checksum) Checksum {
	return NewChecksum(c.v ^ other.v)
}

// String returns the 16-character hex form of the checksum.
func (c Checksum) String() string {
	return fmt.Sprintf("%016x", c.v)
}

// MarshalText implements encoding.TextMarshaler.
func (c Checksum) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (c *Checksum) UnmarshalText(data []byte) error {
	v, err := ParseChecksum(string(data))
	if err != nil {
		return err
	}
	*c = v
	return nil
}

// ParseChecksum parses the form produced by Checksum.String. The all-zero
// string parses to the absent checksum.
func ParseChecksum(s string) (Checksum, error) {
	if len(s) != 16 {
		return Checksum{}, fmt.Errorf("invalid formatted checksum length: %q", s)
	}
	v, err := strconv.ParseUint(s, 16, 64)
	if err != nil {
		return Checksum{}, fmt.Errorf("invalid checksum format: %q", s)
	}
	if v == 0 {
		return Checksum{}, nil
	}
	return NewChecksum(v), nil
}

// Pos identifies the state of a database after a given transaction.
type Pos struct {
	TXID              TXID     `json:"txid"`
	PostApplyChecksum Checksum `json:"postApplyChecksum"`
}

func (p Pos) String() string {
	return p.TXID.String() + "/" + p.PostApplyChecksum.String()
}

// ParsePos parses the "txid/checksum" form produced by Pos.String.
func ParsePos(s string) (Pos, error) {
	txid, chksum, ok := strings.Cut(s, "/")
	if !ok || len(s) != 33 {
		return Pos{}, fmt.Errorf("invalid formatted position: %q", s)
	}

	var pos Pos
	var err error
	if pos.TXID, err = ParseTXID(txid); err != nil {
		return Pos{}, err
	}
	if pos.PostApplyChecksum, err = ParseChecksum(chksum); err != nil {
		return Pos{}, err
	}
	return pos, nil
}

// FormatFilename returns the conventional name of a file spanning min..max.
func FormatFilename(min, max TXID) string {
	return fmt.Sprintf("%s-%s.ltx", min, max)
}

// ParseFilename extracts the transaction range from a name produced by
// FormatFilename.
func ParseFilename(name string) (min, max TXID, err error) {
	base, ok := strings.CutSuffix(name, ".ltx")
	if !ok {
		return TXID{}, TXID{}, fmt.Errorf("invalid ltx filename: %q", name)
	}
	lo, hi, ok := strings.Cut(base, "-")
	if !ok {
		return TXID{}, TXID{}, fmt.Errorf("invalid ltx filename: %q", name)
	}
	if min, err = ParseTXID(lo); err != nil {
		return TXID{}, TXID{}, err
	}
	if max, err = ParseTXID(hi); err != nil {
		return TXID{}, TXID{}, err
	}
	return min, max, nil
}

func putPageNum(b []byte, p PageNum) {
	binary.BigEndian.PutUint32(b, p.v)
}
