package cmd

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/ssargent/litetx/pkg/ltx"
)

// fileDump is the decoded contents of an LTX file, without page data.
type fileDump struct {
	Header dumpHeader `json:"header"`
	Pages  []dumpPage `json:"pages"`

	PostApplyChecksum ltx.Checksum `json:"postApplyChecksum"`
	FileChecksum      ltx.Checksum `json:"fileChecksum"`
}

type dumpHeader struct {
	Flags            uint32       `json:"flags"`
	PageSize         uint32       `json:"pageSize"`
	Commit           uint32       `json:"commit"`
	MinTXID          ltx.TXID     `json:"minTXID"`
	MaxTXID          ltx.TXID     `json:"maxTXID"`
	Timestamp        time.Time    `json:"timestamp"`
	PreApplyChecksum ltx.Checksum `json:"preApplyChecksum"`
}

type dumpPage struct {
	Pgno     uint32       `json:"pgno"`
	Checksum ltx.Checksum `json:"checksum"`
}

func newDumpCmd(a *app) *cobra.Command {
	dumpCmd := &cobra.Command{
		Use:   "dump <ltx>",
		Short: "Print the header, pages and trailer of an LTX file",
		Long: `Decode an LTX file and print its header, the page numbers it contains with
each page's checksum, and its trailer.

Examples:
  litetx dump snapshot.ltx
  litetx dump snapshot.ltx --format json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			format, err := outputFormat(cmd)
			if err != nil {
				return err
			}

			f, err := os.Open(args[0])
			if err != nil {
				return errors.Wrap(err, "open ltx file")
			}
			defer closeQuietly(a.log, f)

			d, err := dumpFile(bufio.NewReaderSize(f, 64*1024))
			if err != nil {
				return err
			}

			if format == formatJSON {
				return outputJSON(cmd.OutOrStdout(), d)
			}
			return outputDumpTable(cmd.OutOrStdout(), d)
		},
	}

	addFormatFlag(dumpCmd)
	return dumpCmd
}

func dumpFile(r io.Reader) (*fileDump, error) {
	dec, err := ltx.NewDecoder(r)
	if err != nil {
		return nil, err
	}
	hdr := dec.Header()

	d := &fileDump{
		Header: dumpHeader{
			Flags:            uint32(hdr.Flags),
			PageSize:         hdr.PageSize.Uint32(),
			Commit:           hdr.Commit.Uint32(),
			MinTXID:          hdr.MinTXID,
			MaxTXID:          hdr.MaxTXID,
			Timestamp:        hdr.Timestamp,
			PreApplyChecksum: hdr.PreApplyChecksum,
		},
		Pages: []dumpPage{},
	}

	h := ltx.NewHasher()
	buf := make([]byte, hdr.PageSize.Int())
	for {
		pgno, err := dec.DecodePage(buf)
		if err == io.EOF {
			break
		} else if err != nil {
			return nil, err
		}
		d.Pages = append(d.Pages, dumpPage{
			Pgno:     pgno.Uint32(),
			Checksum: ltx.ChecksumPageWithHasher(h, pgno, buf),
		})
	}

	trailer, err := dec.Finish()
	if err != nil {
		return nil, err
	}
	d.PostApplyChecksum = trailer.PostApplyChecksum
	d.FileChecksum = trailer.FileChecksum
	return d, nil
}

func outputDumpTable(w io.Writer, d *fileDump) error {
	tw := newTable(w)

	fmt.Fprintf(tw, "Flags:\t0x%08x\n", d.Header.Flags)
	fmt.Fprintf(tw, "Page size:\t%d\n", d.Header.PageSize)
	fmt.Fprintf(tw, "Commit:\t%d\n", d.Header.Commit)
	fmt.Fprintf(tw, "Min TXID:\t%s\n", d.Header.MinTXID)
	fmt.Fprintf(tw, "Max TXID:\t%s\n", d.Header.MaxTXID)
	fmt.Fprintf(tw, "Timestamp:\t%s\n", d.Header.Timestamp.Format(time.RFC3339Nano))
	fmt.Fprintf(tw, "Pre-apply:\t%s\n", d.Header.PreApplyChecksum)
	fmt.Fprintf(tw, "\n")

	for _, p := range d.Pages {
		fmt.Fprintf(tw, "Page %d:\t%s\n", p.Pgno, p.Checksum)
	}

	fmt.Fprintf(tw, "\n")
	fmt.Fprintf(tw, "Post-apply:\t%s\n", d.PostApplyChecksum)
	fmt.Fprintf(tw, "File checksum:\t%s\n", d.FileChecksum)
	return tw.Flush()
}
