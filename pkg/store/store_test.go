package store

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ssargent/litetx/pkg/ltx"
	"github.com/ssargent/litetx/pkg/metrics"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(Config{
		Dir:        filepath.Join(t.TempDir(), "ltx"),
		BufferSize: 4096,
		Fsync:      true,
		Metrics:    metrics.NewMetrics(prometheus.NewRegistry()),
	})
	require.NoError(t, err)
	return s
}

func mustTXID(t testing.TB, v uint64) ltx.TXID {
	t.Helper()
	id, err := ltx.NewTXID(v)
	require.NoError(t, err)
	return id
}

func mustPageNum(t testing.TB, v uint32) ltx.PageNum {
	t.Helper()
	p, err := ltx.NewPageNum(v)
	require.NoError(t, err)
	return p
}

func testHeader(t testing.TB, min, max uint64) ltx.Header {
	pageSize, err := ltx.NewPageSize(512)
	require.NoError(t, err)

	hdr := ltx.Header{
		Flags:     ltx.HeaderFlagCompressLZ4,
		PageSize:  pageSize,
		Commit:    mustPageNum(t, 2),
		MinTXID:   mustTXID(t, min),
		MaxTXID:   mustTXID(t, max),
		Timestamp: time.UnixMilli(1700000000000).UTC(),
	}
	if min != 1 {
		hdr.PreApplyChecksum = ltx.NewChecksum(min)
	}
	return hdr
}

// writeTestFile commits a two-page file covering min..max.
func writeTestFile(t *testing.T, s *Store, min, max uint64) FileInfo {
	t.Helper()
	w, err := s.Create(testHeader(t, min, max))
	require.NoError(t, err)
	require.NoError(t, w.EncodePage(mustPageNum(t, 1), bytes.Repeat([]byte{1}, 512)))
	require.NoError(t, w.EncodePage(mustPageNum(t, 2), bytes.Repeat([]byte{2}, 512)))

	info, err := w.Commit(ltx.NewChecksum(max))
	require.NoError(t, err)
	return info
}

func TestNew(t *testing.T) {
	t.Run("creates directory", func(t *testing.T) {
		dir := filepath.Join(t.TempDir(), "nested", "ltx")
		s, err := New(Config{Dir: dir})
		require.NoError(t, err)
		assert.DirExists(t, dir)
		assert.Equal(t, dir, s.Dir())
	})

	t.Run("removes temporary files", func(t *testing.T) {
		dir := t.TempDir()
		stale := filepath.Join(dir, ".ltx-123.tmp")
		require.NoError(t, os.WriteFile(stale, []byte("partial"), 0600))

		_, err := New(Config{Dir: dir})
		require.NoError(t, err)
		assert.NoFileExists(t, stale)
	})

	t.Run("requires directory", func(t *testing.T) {
		_, err := New(Config{})
		assert.Error(t, err)
	})
}

func TestStore_Path(t *testing.T) {
	s := newTestStore(t)

	path, err := s.Path("0000000000000001-0000000000000002.ltx")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(s.Dir(), "0000000000000001-0000000000000002.ltx"), path)

	for _, name := range []string{
		"../0000000000000001-0000000000000002.ltx",
		"000000000000000A-000000000000000B.ltx",
		"x.ltx",
		"",
	} {
		_, err := s.Path(name)
		assert.ErrorIs(t, err, ErrInvalidName, name)
	}
}

func TestStore_CreateAndOpen(t *testing.T) {
	s := newTestStore(t)
	info := writeTestFile(t, s, 1, 3)

	assert.Equal(t, "0000000000000001-0000000000000003.ltx", info.Name)
	assert.Equal(t, mustTXID(t, 1), info.MinTXID)
	assert.Equal(t, mustTXID(t, 3), info.MaxTXID)
	assert.Positive(t, info.Size)
	assert.FileExists(t, filepath.Join(s.Dir(), info.Name))

	r, err := s.Open(mustTXID(t, 1), mustTXID(t, 3))
	require.NoError(t, err)
	defer r.Close()

	assert.Equal(t, info.Name, r.Name())
	assert.Equal(t, testHeader(t, 1, 3), r.Header())

	buf := make([]byte, 512)
	for i := uint32(1); i <= 2; i++ {
		pgno, err := r.DecodePage(buf)
		require.NoError(t, err)
		assert.Equal(t, mustPageNum(t, i), pgno)
		assert.Equal(t, bytes.Repeat([]byte{byte(i)}, 512), buf)
	}
	_, err = r.DecodePage(buf)
	assert.Equal(t, io.EOF, err)

	trailer, err := r.Finish()
	require.NoError(t, err)
	assert.Equal(t, ltx.NewChecksum(3), trailer.PostApplyChecksum)

	size, err := r.Size()
	require.NoError(t, err)
	assert.Equal(t, info.Size, size)
}

func TestStore_OpenErrors(t *testing.T) {
	s := newTestStore(t)

	_, err := s.Open(mustTXID(t, 1), mustTXID(t, 1))
	assert.ErrorIs(t, err, ErrFileNotFound)

	_, err = s.OpenFile("bogus")
	assert.ErrorIs(t, err, ErrInvalidName)

	// A file with an LTX name but no valid header.
	name := ltx.FormatFilename(mustTXID(t, 1), mustTXID(t, 1))
	require.NoError(t, os.WriteFile(filepath.Join(s.Dir(), name), []byte("garbage"), 0600))
	_, err = s.OpenFile(name)
	assert.Error(t, err)
}

func TestStore_Files(t *testing.T) {
	s := newTestStore(t)

	infos, err := s.Files()
	require.NoError(t, err)
	assert.Empty(t, infos)

	writeTestFile(t, s, 4, 7)
	writeTestFile(t, s, 1, 3)
	writeTestFile(t, s, 8, 8)

	// Ignored entries.
	require.NoError(t, os.WriteFile(filepath.Join(s.Dir(), "README"), nil, 0600))
	require.NoError(t, os.Mkdir(filepath.Join(s.Dir(), "0000000000000009-0000000000000009.ltx"), 0750))

	infos, err = s.Files()
	require.NoError(t, err)
	require.Len(t, infos, 3)
	assert.Equal(t, "0000000000000001-0000000000000003.ltx", infos[0].Name)
	assert.Equal(t, "0000000000000004-0000000000000007.ltx", infos[1].Name)
	assert.Equal(t, "0000000000000008-0000000000000008.ltx", infos[2].Name)
}

func TestStore_Verify(t *testing.T) {
	s := newTestStore(t)
	info := writeTestFile(t, s, 2, 5)

	hdr, trailer, err := s.Verify(info.Name)
	require.NoError(t, err)
	assert.Equal(t, mustTXID(t, 5), hdr.MaxTXID)
	assert.Equal(t, ltx.NewChecksum(5), trailer.PostApplyChecksum)

	t.Run("corrupt", func(t *testing.T) {
		path := filepath.Join(s.Dir(), info.Name)
		b, err := os.ReadFile(path)
		require.NoError(t, err)

		// Flip a bit in the post-apply checksum.
		b[len(b)-ltx.TrailerSize+7] ^= 0x01
		require.NoError(t, os.WriteFile(path, b, 0600))

		_, _, err = s.Verify(info.Name)
		assert.ErrorIs(t, err, ltx.ErrChecksumMismatch)
	})

	t.Run("renamed", func(t *testing.T) {
		other := writeTestFile(t, s, 6, 7)
		renamed := "0000000000000006-0000000000000009.ltx"
		require.NoError(t, os.Rename(filepath.Join(s.Dir(), other.Name), filepath.Join(s.Dir(), renamed)))

		_, _, err := s.Verify(renamed)
		assert.ErrorIs(t, err, ErrNameMismatch)
		assert.ErrorContains(t, err, "0000000000000006-0000000000000007")
	})
}

func TestCheckName(t *testing.T) {
	hdr := testHeader(t, 2, 5)
	assert.NoError(t, CheckName("0000000000000002-0000000000000005.ltx", hdr))
	assert.ErrorIs(t, CheckName("0000000000000002-0000000000000006.ltx", hdr), ErrNameMismatch)
	assert.ErrorIs(t, CheckName("0000000000000001-0000000000000005.ltx", hdr), ErrNameMismatch)
	assert.ErrorIs(t, CheckName("bogus", hdr), ErrInvalidName)
}

func TestStore_WriteFile(t *testing.T) {
	s := newTestStore(t)

	info, err := s.WriteFile(func(w io.Writer) (ltx.Header, error) {
		hdr := testHeader(t, 1, 9)
		enc, err := ltx.NewEncoder(w, hdr)
		if err != nil {
			return ltx.Header{}, err
		}
		if err := enc.EncodePage(mustPageNum(t, 1), make([]byte, 512)); err != nil {
			return ltx.Header{}, err
		}
		_, err = enc.Finish(ltx.NewChecksum(9))
		return hdr, err
	})
	require.NoError(t, err)
	assert.Equal(t, "0000000000000001-0000000000000009.ltx", info.Name)

	_, _, err = s.Verify(info.Name)
	assert.NoError(t, err)

	t.Run("callback error leaves nothing behind", func(t *testing.T) {
		_, err := s.WriteFile(func(w io.Writer) (ltx.Header, error) {
			_, _ = w.Write([]byte("partial"))
			return ltx.Header{}, assert.AnError
		})
		assert.ErrorIs(t, err, assert.AnError)

		entries, err := os.ReadDir(s.Dir())
		require.NoError(t, err)
		assert.Len(t, entries, 1)
	})
}

func TestStore_Remove(t *testing.T) {
	s := newTestStore(t)
	info := writeTestFile(t, s, 1, 1)

	require.NoError(t, s.Remove(info.Name))
	assert.NoFileExists(t, filepath.Join(s.Dir(), info.Name))
	assert.ErrorIs(t, s.Remove(info.Name), ErrFileNotFound)
}
