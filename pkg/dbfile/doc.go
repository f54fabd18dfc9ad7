// Package dbfile moves whole SQLite database files in and out of LTX files.
//
// A database file is treated as a flat array of pages: page N lives at byte
// offset (N-1)*pageSize. The lock page, which SQLite never writes, is never
// read into or written from an LTX file.
//
// # Snapshots
//
// EncodeSnapshot writes every page of a database into a snapshot file whose
// post-apply checksum is the running checksum of the database: the XOR of
// ltx.ChecksumPage over every page. Apply reverses the process and checks the
// resulting database against that checksum.
//
// # Incremental files
//
// Apply also accepts incremental files. When the destination can be read back
// (it implements io.ReaderAt, as *os.File does) the database checksum is
// checked against the header's pre-apply checksum before any page is written
// and against the trailer's post-apply checksum afterwards.
//
// Apply writes pages as they are decoded, before the file checksum has been
// verified. Apply to a copy when the source is untrusted.
package dbfile
