package ltx

import (
	"errors"
	"fmt"
)

var (
	ErrZeroTXID        = errors.New("transaction id must be non-zero")
	ErrZeroPageNum     = errors.New("page number must be non-zero")
	ErrTXIDOverflow    = errors.New("transaction id overflow")
	ErrPageNumOverflow = errors.New("page number overflow")

	ErrPreApplyChecksumOnSnapshot = errors.New("pre-apply checksum must be unset on snapshots")
	ErrNoPreApplyChecksum         = errors.New("pre-apply checksum required on non-snapshot files")
	ErrPostApplyChecksumRequired  = errors.New("post-apply checksum required")

	ErrFrameEnd          = errors.New("expected lz4 end frame")
	ErrChecksumMismatch  = errors.New("file checksum mismatch")
	ErrEncoderClosed     = errors.New("encoder closed")
	ErrDecoderClosed     = errors.New("decoder closed")
	ErrInvalidMagic      = errors.New("invalid magic")
	ErrUnknownFlags      = errors.New("unknown flags")
	ErrInvalidTimestamp  = errors.New("invalid timestamp")
	ErrChecksumFlagUnset = errors.New("checksum flag unset")
)

// PageSizeError reports an unsupported page size.
type PageSizeError struct {
	Size uint32
}

func (e *PageSizeError) Error() string {
	return fmt.Sprintf("unsupported page size: %d", e.Size)
}

// HeaderFieldError reports a header field that failed to encode or decode.
type HeaderFieldError struct {
	Field string
	Value any
	Err   error
}

func (e *HeaderFieldError) Error() string {
	return fmt.Sprintf("invalid %s record: %v: %v", e.Field, e.Value, e.Err)
}

func (e *HeaderFieldError) Unwrap() error { return e.Err }

// TrailerFieldError reports a trailer checksum stored without its flag bit.
type TrailerFieldError struct {
	Field string
	Value uint64
}

func (e *TrailerFieldError) Error() string {
	return fmt.Sprintf("invalid %s: %016x", e.Field, e.Value)
}

func (e *TrailerFieldError) Unwrap() error { return ErrChecksumFlagUnset }

// TXIDOrderError reports a header whose MinTXID is after its MaxTXID.
type TXIDOrderError struct {
	Min, Max TXID
}

func (e *TXIDOrderError) Error() string {
	return fmt.Sprintf("transaction ids out of order: (%s,%s)", e.Min, e.Max)
}

// LockPageError reports an attempt to encode the lock page.
type LockPageError struct {
	Pgno PageNum
}

func (e *LockPageError) Error() string {
	return fmt.Sprintf("cannot encode lock page: %s", e.Pgno)
}

// FirstSnapshotPageError reports a snapshot that does not start at page 1.
type FirstSnapshotPageError struct {
	Pgno PageNum
}

func (e *FirstSnapshotPageError) Error() string {
	return fmt.Sprintf("snapshot transaction file must start with page number 1, got %s", e.Pgno)
}

// NonsequentialPagesError reports a gap in a snapshot's page sequence.
type NonsequentialPagesError struct {
	Last, Pgno PageNum
}

func (e *NonsequentialPagesError) Error() string {
	return fmt.Sprintf("nonsequential page numbers in snapshot transaction: %s, %s", e.Last, e.Pgno)
}

// OutOfOrderPageError reports a page that does not follow its predecessor
// in an incremental file.
type OutOfOrderPageError struct {
	Last, Pgno PageNum
}

func (e *OutOfOrderPageError) Error() string {
	return fmt.Sprintf("out-of-order page numbers: %s, %s", e.Last, e.Pgno)
}

// BufferSizeError reports a page buffer whose length is not the page size.
type BufferSizeError struct {
	Size     int
	PageSize PageSize
}

func (e *BufferSizeError) Error() string {
	return fmt.Sprintf("invalid page buffer size: %d, expected %s", e.Size, e.PageSize)
}

// ChecksumMismatchError reports a file whose trailer checksum does not match
// its contents.
type ChecksumMismatchError struct {
	Want, Got Checksum
}

func (e *ChecksumMismatchError) Error() string {
	return fmt.Sprintf("file checksum mismatch: trailer %s, computed %s", e.Want, e.Got)
}

func (e *ChecksumMismatchError) Is(target error) bool { return target == ErrChecksumMismatch }
