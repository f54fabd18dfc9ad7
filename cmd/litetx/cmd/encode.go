package cmd

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"github.com/segmentio/ksuid"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/ssargent/litetx/pkg/catalog"
	"github.com/ssargent/litetx/pkg/dbfile"
	"github.com/ssargent/litetx/pkg/ltx"
)

func newEncodeDBCmd(a *app) *cobra.Command {
	encodeCmd := &cobra.Command{
		Use:   "encode-db <db>",
		Short: "Encode a database file as an LTX snapshot",
		Long: `Encode every page of a database file into an LTX snapshot.

Without --output the snapshot is committed to the store directory under its
canonical name.

Examples:
  litetx encode-db app.db
  litetx encode-db app.db -o app.ltx --compress=false --max-txid 42
  litetx encode-db app.db --catalog`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output, _ := cmd.Flags().GetString("output")
			maxTXID, _ := cmd.Flags().GetUint64("max-txid")
			record, _ := cmd.Flags().GetBool("catalog")

			compress := a.cfg.Compress
			if cmd.Flags().Changed("compress") {
				compress, _ = cmd.Flags().GetBool("compress")
			}

			id, err := ltx.NewTXID(maxTXID)
			if err != nil {
				return err
			}
			opts := dbfile.EncodeOptions{Compress: compress, MaxTXID: id}

			res, err := encodeDB(a, args[0], output, opts)
			if err != nil {
				return err
			}

			log := a.log.WithFields(logrus.Fields{
				"file":    res.path,
				"minTXID": res.hdr.MinTXID.String(),
				"maxTXID": res.hdr.MaxTXID.String(),
				"commit":  res.hdr.Commit.Uint32(),
			})
			log.Info("database encoded")

			if record {
				entry := catalog.NewEntry(catalog.OpEncode, filepath.Base(res.path), res.hdr, res.trailer, res.size)
				entry.Database = absPath(args[0])
				id, err := recordEntry(a, entry)
				if err != nil {
					return err
				}
				log.WithField("entry", id.String()).Debug("catalog entry recorded")
			}

			fmt.Fprintf(cmd.OutOrStdout(), "%s\t%d pages\tpost-apply %s\n",
				res.path, res.hdr.Commit.Uint32(), res.trailer.PostApplyChecksum)
			return nil
		},
	}

	encodeCmd.Flags().StringP("output", "o", "", "Write the snapshot to this path instead of the store")
	encodeCmd.Flags().BoolP("compress", "c", true, "Compress pages with LZ4 (default from config)")
	encodeCmd.Flags().Uint64("max-txid", 1, "Transaction ID the snapshot represents")
	encodeCmd.Flags().Bool("catalog", false, "Record the file in the catalog")
	return encodeCmd
}

type encodeResult struct {
	path    string
	size    int64
	hdr     ltx.Header
	trailer ltx.Trailer
}

func encodeDB(a *app, dbPath, output string, opts dbfile.EncodeOptions) (encodeResult, error) {
	db, err := os.Open(dbPath)
	if err != nil {
		return encodeResult{}, errors.Wrap(err, "open database")
	}
	defer closeQuietly(a.log, db)

	fi, err := db.Stat()
	if err != nil {
		return encodeResult{}, errors.Wrap(err, "stat database")
	}

	var res encodeResult
	if output == "" {
		st, err := a.openStore(nil)
		if err != nil {
			return encodeResult{}, err
		}
		info, err := st.WriteFile(func(w io.Writer) (ltx.Header, error) {
			var err error
			res.hdr, res.trailer, err = dbfile.EncodeSnapshot(w, db, fi.Size(), opts)
			return res.hdr, err
		})
		if err != nil {
			return encodeResult{}, err
		}
		res.path = filepath.Join(st.Dir(), info.Name)
		res.size = info.Size
		return res, nil
	}

	if err := writeFileAtomic(output, func(w io.Writer) error {
		var err error
		res.hdr, res.trailer, err = dbfile.EncodeSnapshot(w, db, fi.Size(), opts)
		return err
	}); err != nil {
		return encodeResult{}, err
	}
	res.path = output
	if res.size, err = fileSize(output); err != nil {
		return encodeResult{}, err
	}
	return res, nil
}

// writeFileAtomic writes path through a temporary file in the same
// directory, renaming it into place once fn succeeds.
func writeFileAtomic(path string, fn func(w io.Writer) error) error {
	f, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return errors.Wrap(err, "create output file")
	}
	tmp := f.Name()
	defer func() { _ = os.Remove(tmp) }()

	bw := bufio.NewWriterSize(f, 64*1024)
	if err := fn(bw); err != nil {
		_ = f.Close()
		return err
	}
	if err := bw.Flush(); err != nil {
		_ = f.Close()
		return errors.Wrap(err, "flush output file")
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return errors.Wrap(err, "sync output file")
	}
	if err := f.Close(); err != nil {
		return errors.Wrap(err, "close output file")
	}
	return errors.Wrap(os.Rename(tmp, path), "rename output file")
}

func recordEntry(a *app, entry catalog.Entry) (ksuid.KSUID, error) {
	c, err := a.openCatalog()
	if err != nil {
		return ksuid.Nil, err
	}
	defer closeQuietly(a.log, c)
	return c.Put(entry)
}

func absPath(path string) string {
	if abs, err := filepath.Abs(path); err == nil {
		return abs
	}
	return path
}
