package ltx

import (
	"io"

	"github.com/pierrec/lz4/v4"
	"github.com/pkg/errors"
)

// frameWriter is the body writer below the checksum layer. finish ends the
// frame but leaves the underlying writer open for the trailer.
type frameWriter interface {
	io.Writer
	finish() error
}

// frameReader is the body reader below the checksum layer. finish checks
// that the frame ended cleanly so the trailer can be read from the source.
type frameReader interface {
	io.Reader
	finish() error
}

func newFrameWriter(w io.Writer, flags HeaderFlags) (frameWriter, error) {
	if !flags.Compressed() {
		return rawWriter{w}, nil
	}

	zw := lz4.NewWriter(w)
	if err := zw.Apply(lz4.BlockSizeOption(lz4.Block64Kb)); err != nil {
		return nil, errors.Wrap(err, "configure lz4 writer")
	}
	return &lz4Writer{zw: zw}, nil
}

func newFrameReader(r io.Reader, flags HeaderFlags) frameReader {
	if !flags.Compressed() {
		return rawReader{r}
	}
	return &lz4Reader{zr: lz4.NewReader(r)}
}

type rawWriter struct{ io.Writer }

func (rawWriter) finish() error { return nil }

type rawReader struct{ io.Reader }

func (rawReader) finish() error { return nil }

type lz4Writer struct {
	zw *lz4.Writer
}

func (w *lz4Writer) Write(p []byte) (int, error) {
	return w.zw.Write(p)
}

// finish flushes the last block and writes the end mark. lz4.Writer.Close
// does not close the writer underneath it.
func (w *lz4Writer) finish() error {
	return errors.Wrap(w.zw.Close(), "close lz4 frame")
}

type lz4Reader struct {
	zr *lz4.Reader
}

func (r *lz4Reader) Read(p []byte) (int, error) {
	return r.zr.Read(p)
}

// finish reads past the sentinel. The frame must report io.EOF there, which
// also verifies the frame content checksum when one is present.
func (r *lz4Reader) finish() error {
	var b [1]byte
	n, err := r.zr.Read(b[:])
	switch {
	case n > 0:
		return ErrFrameEnd
	case errors.Is(err, io.EOF):
		return nil
	case err == nil:
		return ErrFrameEnd
	}
	return errors.Wrap(err, "read lz4 end frame")
}
