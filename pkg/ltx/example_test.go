package ltx_test

import (
	"bytes"
	"fmt"
	"io"
	"log"
	"time"

	"github.com/ssargent/litetx/pkg/ltx"
)

// ExampleEncoder writes an incremental file and reads it back
func ExampleEncoder() {
	pageSize, _ := ltx.NewPageSize(512)
	commit, _ := ltx.NewPageNum(4)
	minTXID, _ := ltx.NewTXID(5)
	maxTXID, _ := ltx.NewTXID(6)

	var buf bytes.Buffer
	enc, err := ltx.NewEncoder(&buf, ltx.Header{
		Flags:            ltx.HeaderFlagCompressLZ4,
		PageSize:         pageSize,
		Commit:           commit,
		MinTXID:          minTXID,
		MaxTXID:          maxTXID,
		Timestamp:        time.UnixMilli(1700000000000).UTC(),
		PreApplyChecksum: ltx.NewChecksum(0x1234),
	})
	if err != nil {
		log.Fatal(err)
	}

	for _, n := range []uint32{2, 4} {
		pgno, _ := ltx.NewPageNum(n)
		if err := enc.EncodePage(pgno, bytes.Repeat([]byte{byte(n)}, 512)); err != nil {
			log.Fatal(err)
		}
	}
	if _, err := enc.Finish(ltx.NewChecksum(0x5678)); err != nil {
		log.Fatal(err)
	}

	dec, err := ltx.NewDecoder(&buf)
	if err != nil {
		log.Fatal(err)
	}
	hdr := dec.Header()
	fmt.Printf("TXIDs: %s-%s\n", hdr.MinTXID, hdr.MaxTXID)

	page := make([]byte, 512)
	for {
		pgno, err := dec.DecodePage(page)
		if err == io.EOF {
			break
		} else if err != nil {
			log.Fatal(err)
		}
		fmt.Printf("Page %s: %02x\n", pgno, page[0])
	}

	trailer, err := dec.Finish()
	if err != nil {
		log.Fatal(err)
	}
	fmt.Printf("Post-apply: %s\n", trailer.PostApplyChecksum)

	// Output:
	// TXIDs: 0000000000000005-0000000000000006
	// Page 2: 02
	// Page 4: 04
	// Post-apply: 8000000000005678
}

// ExampleFormatFilename shows the name a file covering a TXID range is stored under
func ExampleFormatFilename() {
	minTXID, _ := ltx.NewTXID(1)
	maxTXID, _ := ltx.NewTXID(255)
	fmt.Println(ltx.FormatFilename(minTXID, maxTXID))

	// Output:
	// 0000000000000001-00000000000000ff.ltx
}

// ExampleLockPageNum prints the page reserved for database locking
func ExampleLockPageNum() {
	pageSize, _ := ltx.NewPageSize(4096)
	fmt.Println(ltx.LockPageNum(pageSize))

	// Output:
	// 262145
}
