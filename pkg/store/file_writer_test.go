package store

import (
	"bytes"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ssargent/litetx/pkg/ltx"
)

func TestFileWriter_NotVisibleUntilCommit(t *testing.T) {
	s := newTestStore(t)

	w, err := s.Create(testHeader(t, 1, 1))
	require.NoError(t, err)
	require.NoError(t, w.EncodePage(mustPageNum(t, 1), make([]byte, 512)))

	infos, err := s.Files()
	require.NoError(t, err)
	assert.Empty(t, infos)

	_, err = w.Commit(ltx.NewChecksum(1))
	require.NoError(t, err)

	infos, err = s.Files()
	require.NoError(t, err)
	assert.Len(t, infos, 1)
}

func TestFileWriter_Abort(t *testing.T) {
	s := newTestStore(t)

	w, err := s.Create(testHeader(t, 1, 1))
	require.NoError(t, err)
	require.NoError(t, w.EncodePage(mustPageNum(t, 1), make([]byte, 512)))
	require.NoError(t, w.Abort())
	require.NoError(t, w.Abort())

	entries, err := os.ReadDir(s.Dir())
	require.NoError(t, err)
	assert.Empty(t, entries)

	assert.ErrorIs(t, w.EncodePage(mustPageNum(t, 2), make([]byte, 512)), ErrClosed)
	_, err = w.Commit(ltx.NewChecksum(1))
	assert.ErrorIs(t, err, ErrClosed)
}

func TestFileWriter_InvalidHeader(t *testing.T) {
	s := newTestStore(t)

	hdr := testHeader(t, 1, 1)
	hdr.PreApplyChecksum = ltx.NewChecksum(1)
	_, err := s.Create(hdr)
	assert.ErrorIs(t, err, ltx.ErrPreApplyChecksumOnSnapshot)

	entries, err := os.ReadDir(s.Dir())
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestFileWriter_EncodeErrorKeepsWriter(t *testing.T) {
	s := newTestStore(t)

	w, err := s.Create(testHeader(t, 2, 2))
	require.NoError(t, err)
	require.NoError(t, w.EncodePage(mustPageNum(t, 5), make([]byte, 512)))

	var e *ltx.OutOfOrderPageError
	require.ErrorAs(t, w.EncodePage(mustPageNum(t, 3), make([]byte, 512)), &e)

	_, err = w.Commit(ltx.Checksum{})
	assert.ErrorIs(t, err, ltx.ErrPostApplyChecksumRequired)

	info, err := w.Commit(ltx.NewChecksum(2))
	require.NoError(t, err)
	assert.Equal(t, "0000000000000002-0000000000000002.ltx", info.Name)
}

func TestFileWriter_ErrFileExists(t *testing.T) {
	s := newTestStore(t)
	writeTestFile(t, s, 1, 2)

	w, err := s.Create(testHeader(t, 1, 2))
	require.NoError(t, err)
	require.NoError(t, w.EncodePage(mustPageNum(t, 1), bytes.Repeat([]byte{9}, 512)))

	_, err = w.Commit(ltx.NewChecksum(2))
	assert.ErrorIs(t, err, ErrFileExists)

	// The existing file is untouched and no temporary file remains.
	entries, err := os.ReadDir(s.Dir())
	require.NoError(t, err)
	assert.Len(t, entries, 1)

	_, _, err = s.Verify("0000000000000001-0000000000000002.ltx")
	assert.NoError(t, err)
}
