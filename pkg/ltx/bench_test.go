//go:build bench
// +build bench

package ltx

import (
	"bytes"
	"io"
	"math/rand"
	"testing"
)

func benchmarkPages(n int) []testPage {
	rng := rand.New(rand.NewSource(0))
	pages := make([]testPage, n)
	for i := range pages {
		// Half random, half zero so compression has something to do.
		data := make([]byte, 4096)
		_, _ = rng.Read(data[:2048])
		pages[i] = testPage{pgno: PageNum{v: uint32(i + 1)}, data: data}
	}
	return pages
}

func BenchmarkEncoder(b *testing.B) {
	pages := benchmarkPages(256)

	for name, flags := range map[string]HeaderFlags{
		"uncompressed": 0,
		"lz4":          HeaderFlagCompressLZ4,
	} {
		b.Run(name, func(b *testing.B) {
			hdr := encoderHeader(b, flags, 1, 1)
			b.SetBytes(int64(len(pages) * 4096))
			b.ReportAllocs()
			b.ResetTimer()

			for i := 0; i < b.N; i++ {
				enc, err := NewEncoder(io.Discard, hdr)
				if err != nil {
					b.Fatal(err)
				}
				for _, p := range pages {
					if err := enc.EncodePage(p.pgno, p.data); err != nil {
						b.Fatal(err)
					}
				}
				if _, err := enc.Finish(NewChecksum(1)); err != nil {
					b.Fatal(err)
				}
			}
		})
	}
}

func BenchmarkDecoder(b *testing.B) {
	pages := benchmarkPages(256)

	for name, flags := range map[string]HeaderFlags{
		"uncompressed": 0,
		"lz4":          HeaderFlagCompressLZ4,
	} {
		b.Run(name, func(b *testing.B) {
			data := encodeFile(b, encoderHeader(b, flags, 1, 1), pages, NewChecksum(1))
			buf := make([]byte, 4096)
			b.SetBytes(int64(len(pages) * 4096))
			b.ReportAllocs()
			b.ResetTimer()

			for i := 0; i < b.N; i++ {
				dec, err := NewDecoder(bytes.NewReader(data))
				if err != nil {
					b.Fatal(err)
				}
				for {
					if _, err := dec.DecodePage(buf); err == io.EOF {
						break
					} else if err != nil {
						b.Fatal(err)
					}
				}
				if _, err := dec.Finish(); err != nil {
					b.Fatal(err)
				}
			}
		})
	}
}

func BenchmarkChecksumPage(b *testing.B) {
	data := make([]byte, 4096)
	h := NewHasher()
	b.SetBytes(4096)
	for i := 0; i < b.N; i++ {
		ChecksumPageWithHasher(h, PageNumOne, data)
	}
}
