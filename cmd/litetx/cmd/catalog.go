package cmd

import (
	"fmt"
	"time"

	"github.com/segmentio/ksuid"
	"github.com/spf13/cobra"

	"github.com/ssargent/litetx/pkg/catalog"
)

func newCatalogCmd(a *app) *cobra.Command {
	catalogCmd := &cobra.Command{
		Use:   "catalog",
		Short: "Inspect the record of encoded and applied files",
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List catalog entries, oldest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			format, err := outputFormat(cmd)
			if err != nil {
				return err
			}

			c, err := a.openCatalog()
			if err != nil {
				return err
			}
			defer closeQuietly(a.log, c)

			entries, err := c.List()
			if err != nil {
				return err
			}
			if entries == nil {
				entries = []catalog.Entry{}
			}

			if format == formatJSON {
				return outputJSON(cmd.OutOrStdout(), entries)
			}

			tw := newTable(cmd.OutOrStdout())
			fmt.Fprintf(tw, "ID\tOPERATION\tFILE\tMAX TXID\tPOST-APPLY\tTIMESTAMP\n")
			for _, e := range entries {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
					e.ID, e.Operation, e.Filename, e.MaxTXID, e.PostApplyChecksum, e.Timestamp.Format(time.RFC3339))
			}
			return tw.Flush()
		},
	}
	addFormatFlag(listCmd)

	latestCmd := &cobra.Command{
		Use:   "latest",
		Short: "Print the position of the entry with the highest TXID",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := a.openCatalog()
			if err != nil {
				return err
			}
			defer closeQuietly(a.log, c)

			e, err := c.Latest()
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", e.Pos(), e.Filename)
			return nil
		},
	}

	rmCmd := &cobra.Command{
		Use:   "rm <id>",
		Short: "Remove a catalog entry",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := ksuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid entry id: %w", err)
			}

			c, err := a.openCatalog()
			if err != nil {
				return err
			}
			defer closeQuietly(a.log, c)

			if err := c.Delete(id); err != nil {
				return err
			}
			a.log.WithField("entry", id.String()).Info("catalog entry removed")
			return nil
		},
	}

	catalogCmd.AddCommand(listCmd, latestCmd, rmCmd)
	return catalogCmd
}
