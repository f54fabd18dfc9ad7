// Package catalog records the LTX files a node has produced or applied.
//
// Entries live in a pebble database keyed by KSUID, so listing order follows
// creation time at one-second resolution.
package catalog

import (
	"encoding/json"
	"time"

	"github.com/cockroachdb/pebble"
	"github.com/pkg/errors"
	"github.com/segmentio/ksuid"

	"github.com/ssargent/litetx/pkg/ltx"
)

// Operations recorded in an Entry.
const (
	OpEncode = "encode"
	OpApply  = "apply"
)

var (
	entryPrefix = []byte("entry/")
	entryEnd    = []byte("entry0") // first key after entryPrefix
)

// ErrNotFound is returned when no entry matches.
var ErrNotFound = errors.New("catalog entry not found")

// Entry describes one LTX file and what was done with it.
type Entry struct {
	ID        ksuid.KSUID `json:"id"`
	Operation string      `json:"operation"`
	Filename  string      `json:"filename"`
	Database  string      `json:"database,omitempty"`

	MinTXID           ltx.TXID     `json:"minTXID"`
	MaxTXID           ltx.TXID     `json:"maxTXID"`
	PageSize          uint32       `json:"pageSize"`
	Commit            uint32       `json:"commit"`
	Timestamp         time.Time    `json:"timestamp"`
	PreApplyChecksum  ltx.Checksum `json:"preApplyChecksum"`
	PostApplyChecksum ltx.Checksum `json:"postApplyChecksum"`
	FileChecksum      ltx.Checksum `json:"fileChecksum"`
	Compressed        bool         `json:"compressed"`
	Size              int64        `json:"size"`
}

// NewEntry builds an entry from a file's header and trailer.
func NewEntry(op, filename string, hdr ltx.Header, trailer ltx.Trailer, size int64) Entry {
	return Entry{
		Operation:         op,
		Filename:          filename,
		MinTXID:           hdr.MinTXID,
		MaxTXID:           hdr.MaxTXID,
		PageSize:          hdr.PageSize.Uint32(),
		Commit:            hdr.Commit.Uint32(),
		Timestamp:         hdr.Timestamp,
		PreApplyChecksum:  hdr.PreApplyChecksum,
		PostApplyChecksum: trailer.PostApplyChecksum,
		FileChecksum:      trailer.FileChecksum,
		Compressed:        hdr.Flags.Compressed(),
		Size:              size,
	}
}

// Pos returns the database position after this file has been applied.
func (e Entry) Pos() ltx.Pos {
	return ltx.Pos{TXID: e.MaxTXID, PostApplyChecksum: e.PostApplyChecksum}
}

// Catalog is a pebble-backed list of entries.
type Catalog struct {
	db *pebble.DB
}

// Open opens or creates the catalog at path.
func Open(path string) (*Catalog, error) {
	db, err := pebble.Open(path, &pebble.Options{})
	if err != nil {
		return nil, errors.Wrap(err, "open catalog")
	}
	return &Catalog{db: db}, nil
}

func entryKey(id ksuid.KSUID) []byte {
	return append(append([]byte{}, entryPrefix...), id.Bytes()...)
}

// Put stores e under a new ID and returns it. Any ID already set on e is
// replaced.
func (c *Catalog) Put(e Entry) (ksuid.KSUID, error) {
	e.ID = ksuid.New()
	data, err := json.Marshal(e)
	if err != nil {
		return ksuid.Nil, errors.Wrap(err, "encode catalog entry")
	}
	if err := c.db.Set(entryKey(e.ID), data, pebble.Sync); err != nil {
		return ksuid.Nil, errors.Wrap(err, "write catalog entry")
	}
	return e.ID, nil
}

// Get returns the entry with the given ID.
func (c *Catalog) Get(id ksuid.KSUID) (Entry, error) {
	data, closer, err := c.db.Get(entryKey(id))
	if errors.Is(err, pebble.ErrNotFound) {
		return Entry{}, errors.Wrap(ErrNotFound, id.String())
	} else if err != nil {
		return Entry{}, errors.Wrap(err, "read catalog entry")
	}
	defer closer.Close()

	// data is only valid until closer is closed
	var e Entry
	if err := json.Unmarshal(data, &e); err != nil {
		return Entry{}, errors.Wrap(err, "decode catalog entry")
	}
	return e, nil
}

// List returns all entries ordered by ID.
func (c *Catalog) List() ([]Entry, error) {
	var entries []Entry
	err := c.scan(func(e Entry) {
		entries = append(entries, e)
	})
	return entries, err
}

// Latest returns the entry with the highest MaxTXID. Ties go to the entry
// with the greater ID.
func (c *Catalog) Latest() (Entry, error) {
	var latest Entry
	found := false
	err := c.scan(func(e Entry) {
		if !found || e.MaxTXID.Compare(latest.MaxTXID) >= 0 {
			latest, found = e, true
		}
	})
	if err != nil {
		return Entry{}, err
	}
	if !found {
		return Entry{}, ErrNotFound
	}
	return latest, nil
}

// Delete removes the entry with the given ID.
func (c *Catalog) Delete(id ksuid.KSUID) error {
	if _, err := c.Get(id); err != nil {
		return err
	}
	return errors.Wrap(c.db.Delete(entryKey(id), pebble.Sync), "delete catalog entry")
}

// Close closes the underlying database.
func (c *Catalog) Close() error {
	return c.db.Close()
}

func (c *Catalog) scan(fn func(Entry)) error {
	iter, err := c.db.NewIter(&pebble.IterOptions{
		LowerBound: entryPrefix,
		UpperBound: entryEnd,
	})
	if err != nil {
		return errors.Wrap(err, "iterate catalog")
	}
	defer iter.Close()

	for iter.First(); iter.Valid(); iter.Next() {
		var e Entry
		if err := json.Unmarshal(iter.Value(), &e); err != nil {
			return errors.Wrapf(err, "decode catalog entry %x", iter.Key())
		}
		fn(e)
	}
	return errors.Wrap(iter.Error(), "iterate catalog")
}
