// Package ltx implements streaming encoding and decoding of LTX files.
//
// An LTX file records a contiguous run of database page changes between two
// transaction IDs. Files are written once, front to back, and read the same
// way; there is no random access to individual pages.
//
// # File Format
//
// All integers are big-endian.
//
//	Header (100 bytes)
//	  [Magic "LTX1"(4)][Flags(4)][PageSize(4)][Commit(4)]
//	  [MinTXID(8)][MaxTXID(8)][Timestamp(8)][PreApplyChecksum(8)][zero padding]
//	Page records, repeated
//	  [Pgno(4)][Data(PageSize)]
//	Sentinel
//	  [Pgno(4) == 0]
//	Trailer (16 bytes)
//	  [PostApplyChecksum(8)][FileChecksum(8)]
//
// A file whose MinTXID is 1 is a snapshot: it carries every page of the
// database from page 1 up to Commit, in order, except the lock page. Any
// other file is incremental: pages appear in strictly increasing order and
// gaps are allowed. Snapshots have no pre-apply checksum; incremental files
// must have one.
//
// # Compression
//
// When HeaderFlagCompressLZ4 is set, page records and the sentinel are
// wrapped in a single LZ4 frame with 64KB blocks. The header and trailer are
// never compressed.
//
// # Checksums
//
// Every checksum is a CRC-64 (ISO polynomial) with the top bit forced to 1,
// so a stored zero always means "no checksum".
//
// The file checksum covers the uncompressed bytes of the header, every page
// record and the sentinel, followed by the 8 bytes of the post-apply
// checksum. It is only verified when Decoder.Finish runs, so a caller that
// stops reading early gets no integrity guarantee.
//
// Page checksums (ChecksumPage) cover the page number and page data. XOR-ing
// the page checksums of every page in a database yields the running database
// checksum that is stored as the pre- and post-apply checksums.
//
// # Usage
//
//	enc, err := ltx.NewEncoder(w, hdr)
//	if err != nil {
//	    return err
//	}
//	for _, p := range pages {
//	    if err := enc.EncodePage(p.Pgno, p.Data); err != nil {
//	        return err
//	    }
//	}
//	trailer, err := enc.Finish(postApplyChecksum)
//
// Decoding mirrors it:
//
//	dec, err := ltx.NewDecoder(r)
//	...
//	for {
//	    pgno, err := dec.DecodePage(buf)
//	    if err == io.EOF {
//	        break
//	    }
//	    ...
//	}
//	trailer, err := dec.Finish()
//
// # Thread Safety
//
// Encoder and Decoder are not safe for concurrent use. Independent files may
// be processed in parallel with independent instances.
package ltx
