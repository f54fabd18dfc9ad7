package cmd

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/ssargent/litetx/pkg/catalog"
	"github.com/ssargent/litetx/pkg/dbfile"
	"github.com/ssargent/litetx/pkg/ltx"
)

func newApplyCmd(a *app) *cobra.Command {
	applyCmd := &cobra.Command{
		Use:   "apply <ltx>...",
		Short: "Apply LTX files to a database file",
		Long: `Apply one or more LTX files, in order, to a database file. The database is
created if it does not exist. Incremental files are checked against the
database's checksum before and after they are applied.

Examples:
  litetx apply snapshot.ltx --db app.db
  litetx apply 0000000000000001-0000000000000001.ltx 0000000000000002-0000000000000005.ltx --db app.db`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dbPath, _ := cmd.Flags().GetString("db")
			record, _ := cmd.Flags().GetBool("catalog")

			db, err := os.OpenFile(dbPath, os.O_RDWR|os.O_CREATE, 0644)
			if err != nil {
				return errors.Wrap(err, "open database")
			}
			defer closeQuietly(a.log, db)

			for _, path := range args {
				entry, err := applyFile(db, path)
				if err != nil {
					return errors.Wrap(err, path)
				}
				if err := db.Sync(); err != nil {
					return errors.Wrap(err, "sync database")
				}

				a.log.WithFields(logrus.Fields{
					"file":    path,
					"db":      dbPath,
					"maxTXID": entry.MaxTXID.String(),
					"commit":  entry.Commit,
				}).Info("ltx file applied")

				if record {
					entry.Database = absPath(dbPath)
					if _, err := recordEntry(a, entry); err != nil {
						return err
					}
				}

				fmt.Fprintf(cmd.OutOrStdout(), "%s\ttxid %s\tpost-apply %s\n",
					path, entry.Pos().TXID, entry.PostApplyChecksum)
			}
			return nil
		},
	}

	applyCmd.Flags().String("db", "", "Database file to apply to (required)")
	applyCmd.Flags().Bool("catalog", false, "Record each applied file in the catalog")
	_ = applyCmd.MarkFlagRequired("db")
	return applyCmd
}

func applyFile(db *os.File, path string) (catalog.Entry, error) {
	f, err := os.Open(path)
	if err != nil {
		return catalog.Entry{}, errors.Wrap(err, "open ltx file")
	}
	defer f.Close()

	// Pages are written as they decode, so a corrupt file is rejected
	// before the database is touched.
	if _, _, err := ltx.Verify(bufio.NewReaderSize(f, 64*1024)); err != nil {
		return catalog.Entry{}, err
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return catalog.Entry{}, errors.Wrap(err, "seek ltx file")
	}

	hdr, trailer, err := dbfile.Apply(db, bufio.NewReaderSize(f, 64*1024))
	if err != nil {
		return catalog.Entry{}, err
	}

	fi, err := f.Stat()
	if err != nil {
		return catalog.Entry{}, errors.Wrap(err, "stat ltx file")
	}
	return catalog.NewEntry(catalog.OpApply, filepath.Base(path), hdr, trailer, fi.Size()), nil
}
