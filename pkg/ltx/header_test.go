package ltx

import (
	"encoding/binary"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// now returns the current time truncated to what a header can store.
func now() time.Time {
	return time.UnixMilli(time.Now().UnixMilli()).UTC()
}

func snapshotHeader(t testing.TB) Header {
	return Header{
		Flags:     HeaderFlagCompressLZ4,
		PageSize:  pageSize(t, 4096),
		Commit:    pgno(t, 10),
		MinTXID:   txid(t, 1),
		MaxTXID:   txid(t, 5),
		Timestamp: now(),
	}
}

func incrementalHeader(t testing.TB) Header {
	return Header{
		Flags:            HeaderFlagCompressLZ4,
		PageSize:         pageSize(t, 4096),
		Commit:           pgno(t, 10),
		MinTXID:          txid(t, 3),
		MaxTXID:          txid(t, 5),
		Timestamp:        now(),
		PreApplyChecksum: NewChecksum(123),
	}
}

func TestHeader_MarshalBinary(t *testing.T) {
	for name, hdr := range map[string]Header{
		"snapshot":     snapshotHeader(t),
		"non-snapshot": incrementalHeader(t),
	} {
		t.Run(name, func(t *testing.T) {
			b, err := hdr.MarshalBinary()
			require.NoError(t, err)
			require.Len(t, b, HeaderSize)
			assert.Equal(t, Magic, string(b[0:4]))

			var other Header
			require.NoError(t, other.UnmarshalBinary(b))
			assert.Equal(t, hdr, other)
		})
	}
}

func TestHeader_Layout(t *testing.T) {
	hdr := incrementalHeader(t)
	hdr.Timestamp = time.UnixMilli(1009).UTC()

	b, err := hdr.MarshalBinary()
	require.NoError(t, err)

	assert.Equal(t, uint32(1), binary.BigEndian.Uint32(b[4:8]))
	assert.Equal(t, uint32(4096), binary.BigEndian.Uint32(b[8:12]))
	assert.Equal(t, uint32(10), binary.BigEndian.Uint32(b[12:16]))
	assert.Equal(t, uint64(3), binary.BigEndian.Uint64(b[16:24]))
	assert.Equal(t, uint64(5), binary.BigEndian.Uint64(b[24:32]))
	assert.Equal(t, uint64(1009), binary.BigEndian.Uint64(b[32:40]))
	assert.Equal(t, 123|ChecksumFlag, binary.BigEndian.Uint64(b[40:48]))
	assert.Equal(t, make([]byte, HeaderSize-48), b[48:])
}

func TestHeader_Validate(t *testing.T) {
	t.Run("OK", func(t *testing.T) {
		hdr := incrementalHeader(t)
		assert.NoError(t, hdr.Validate())
	})
	t.Run("ErrTXIDOrder", func(t *testing.T) {
		hdr := incrementalHeader(t)
		hdr.MinTXID, hdr.MaxTXID = txid(t, 5), txid(t, 3)

		var e *TXIDOrderError
		require.ErrorAs(t, hdr.Validate(), &e)
		assert.Equal(t, txid(t, 5), e.Min)
		assert.Equal(t, txid(t, 3), e.Max)
		assert.EqualError(t, e, "transaction ids out of order: (0000000000000005,0000000000000003)")
	})
	t.Run("ErrPreApplyChecksumOnSnapshot", func(t *testing.T) {
		hdr := snapshotHeader(t)
		hdr.PreApplyChecksum = NewChecksum(123)
		assert.ErrorIs(t, hdr.Validate(), ErrPreApplyChecksumOnSnapshot)
	})
	t.Run("ErrNoPreApplyChecksum", func(t *testing.T) {
		hdr := incrementalHeader(t)
		hdr.PreApplyChecksum = Checksum{}
		assert.ErrorIs(t, hdr.Validate(), ErrNoPreApplyChecksum)
	})
	t.Run("ErrUnknownFlags", func(t *testing.T) {
		hdr := snapshotHeader(t)
		hdr.Flags = 1 << 3
		assert.ErrorIs(t, hdr.Validate(), ErrUnknownFlags)
	})
	t.Run("ErrZeroFields", func(t *testing.T) {
		var e *HeaderFieldError
		hdr := Header{}
		require.ErrorAs(t, hdr.Validate(), &e)
		assert.Equal(t, "page size", e.Field)

		hdr = snapshotHeader(t)
		hdr.Commit = PageNum{}
		require.ErrorAs(t, hdr.Validate(), &e)
		assert.Equal(t, "commit", e.Field)

		hdr = snapshotHeader(t)
		hdr.MaxTXID = TXID{}
		require.ErrorAs(t, hdr.Validate(), &e)
		assert.Equal(t, "max txid", e.Field)
	})
	t.Run("ErrPreEpochTimestamp", func(t *testing.T) {
		hdr := snapshotHeader(t)
		hdr.Timestamp = time.Date(1960, 1, 1, 0, 0, 0, 0, time.UTC)
		_, err := hdr.MarshalBinary()

		var e *HeaderFieldError
		require.ErrorAs(t, err, &e)
		assert.Equal(t, "timestamp", e.Field)
		assert.ErrorIs(t, err, ErrInvalidTimestamp)
	})
}

func TestHeader_UnmarshalBinary(t *testing.T) {
	valid := func(t *testing.T) []byte {
		hdr := incrementalHeader(t)
		b, err := hdr.MarshalBinary()
		require.NoError(t, err)
		return b
	}

	t.Run("ErrShortBuffer", func(t *testing.T) {
		var hdr Header
		assert.Equal(t, io.ErrShortBuffer, hdr.UnmarshalBinary(make([]byte, 10)))
	})

	for _, tt := range []struct {
		name   string
		mutate func(b []byte)
		field  string
		target error
	}{
		{"magic", func(b []byte) { copy(b, "LTX2") }, "magic", ErrInvalidMagic},
		{"flags", func(b []byte) { binary.BigEndian.PutUint32(b[4:], 2) }, "flags", ErrUnknownFlags},
		{"page size", func(b []byte) { binary.BigEndian.PutUint32(b[8:], 1000) }, "page size", nil},
		{"commit", func(b []byte) { binary.BigEndian.PutUint32(b[12:], 0) }, "commit", ErrZeroPageNum},
		{"min txid", func(b []byte) { binary.BigEndian.PutUint64(b[16:], 0) }, "min txid", ErrZeroTXID},
		{"max txid", func(b []byte) { binary.BigEndian.PutUint64(b[24:], 0) }, "max txid", ErrZeroTXID},
	} {
		t.Run(tt.name, func(t *testing.T) {
			b := valid(t)
			tt.mutate(b)

			var hdr Header
			err := hdr.UnmarshalBinary(b)

			var e *HeaderFieldError
			require.ErrorAs(t, err, &e)
			assert.Equal(t, tt.field, e.Field)
			if tt.target != nil {
				assert.ErrorIs(t, err, tt.target)
			}
		})
	}

	t.Run("ErrValidation", func(t *testing.T) {
		b := valid(t)
		binary.BigEndian.PutUint64(b[40:], 0)

		var hdr Header
		assert.ErrorIs(t, hdr.UnmarshalBinary(b), ErrNoPreApplyChecksum)
	})

	t.Run("ReservedPaddingIgnored", func(t *testing.T) {
		b := valid(t)
		b[HeaderSize-1] = 0xff

		var hdr Header
		assert.NoError(t, hdr.UnmarshalBinary(b))
	})
}

func TestPageHeader(t *testing.T) {
	for _, hdr := range []PageHeader{{Pgno: pgno(t, 10)}, {}} {
		b, err := hdr.MarshalBinary()
		require.NoError(t, err)
		require.Len(t, b, PageHeaderSize)

		var other PageHeader
		require.NoError(t, other.UnmarshalBinary(b))
		assert.Equal(t, hdr, other)
	}

	assert.True(t, PageHeader{}.IsSentinel())
	assert.False(t, PageHeader{Pgno: PageNumOne}.IsSentinel())

	var hdr PageHeader
	assert.Equal(t, io.ErrShortBuffer, hdr.UnmarshalBinary(make([]byte, 2)))
}

func TestTrailer(t *testing.T) {
	trailer := Trailer{PostApplyChecksum: NewChecksum(123), FileChecksum: NewChecksum(456)}
	b, err := trailer.MarshalBinary()
	require.NoError(t, err)
	require.Len(t, b, TrailerSize)

	var other Trailer
	require.NoError(t, other.UnmarshalBinary(b))
	assert.Equal(t, trailer, other)

	t.Run("ErrPostApplyChecksumFlag", func(t *testing.T) {
		b := append([]byte(nil), b...)
		b[0] &^= 0x80

		var e *TrailerFieldError
		require.ErrorAs(t, other.UnmarshalBinary(b), &e)
		assert.Equal(t, "post-apply checksum", e.Field)
		assert.Equal(t, uint64(123), e.Value)
	})
	t.Run("ErrFileChecksumFlag", func(t *testing.T) {
		b := append([]byte(nil), b...)
		b[8] &^= 0x80

		var e *TrailerFieldError
		require.ErrorAs(t, other.UnmarshalBinary(b), &e)
		assert.Equal(t, "file checksum", e.Field)
	})
}
