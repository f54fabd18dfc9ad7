package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/ssargent/litetx/pkg/store"
)

func newListCmd(a *app) *cobra.Command {
	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List LTX files in the store",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			format, err := outputFormat(cmd)
			if err != nil {
				return err
			}

			st, err := a.openStore(nil)
			if err != nil {
				return err
			}
			files, err := st.Files()
			if err != nil {
				return err
			}
			if files == nil {
				files = []store.FileInfo{}
			}

			if format == formatJSON {
				return outputJSON(cmd.OutOrStdout(), files)
			}

			tw := newTable(cmd.OutOrStdout())
			fmt.Fprintf(tw, "NAME\tMIN TXID\tMAX TXID\tSIZE\tMODIFIED\n")
			for _, fi := range files {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\n",
					fi.Name, fi.MinTXID, fi.MaxTXID, fi.Size, fi.ModTime.Format(time.RFC3339))
			}
			return tw.Flush()
		},
	}

	addFormatFlag(listCmd)
	return listCmd
}
